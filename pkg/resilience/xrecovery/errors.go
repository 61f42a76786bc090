package xrecovery

import "errors"

var (
	// ErrUnknownType 表示无法识别的恢复类型名。
	ErrUnknownType = errors.New("xrecovery: unknown recovery type")

	// ErrCyclicChain 表示降级链存在环。
	ErrCyclicChain = errors.New("xrecovery: fallback chain contains a cycle")

	// ErrInvalidChain 表示降级链参数非法（空模型名等）。
	ErrInvalidChain = errors.New("xrecovery: invalid fallback chain")

	// ErrNoHandler 表示注册表中没有该类型的处理器。
	ErrNoHandler = errors.New("xrecovery: no handler registered")

	// ErrNilRequest 表示 Attempt 收到 nil 请求。
	ErrNilRequest = errors.New("xrecovery: nil request")
)
