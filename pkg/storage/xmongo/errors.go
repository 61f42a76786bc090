package xmongo

import "errors"

var (
	// ErrNilClient 表示传入的客户端为 nil。
	ErrNilClient = errors.New("xmongo: nil client")

	// ErrNilCollection 表示传入的 collection 为 nil。
	ErrNilCollection = errors.New("xmongo: nil collection")

	// ErrNilContext 表示传入的 context 为 nil。
	// Close 是例外：nil context 会被替换为 context.Background()。
	ErrNilContext = errors.New("xmongo: context must not be nil")

	// ErrClosed 表示归档已关闭。
	ErrClosed = errors.New("xmongo: archive closed")

	// ErrNilDeadLetter 表示死信为 nil。
	ErrNilDeadLetter = errors.New("xmongo: nil dead letter")

	// ErrEmptyDocs 表示批量写入的死信列表为空。
	ErrEmptyDocs = errors.New("xmongo: empty documents")

	// ErrNotFound 表示指定消息 ID 的死信不存在。
	ErrNotFound = errors.New("xmongo: dead letter not found")
)

// 分页错误
var (
	// ErrInvalidPage 表示页码无效（必须 >= 1）。
	ErrInvalidPage = errors.New("xmongo: page must be >= 1")

	// ErrInvalidPageSize 表示每页大小无效（必须在 1 到 MaxPageSize 之间）。
	ErrInvalidPageSize = errors.New("xmongo: invalid page size")

	// ErrPageOverflow 表示分页计算溢出。
	ErrPageOverflow = errors.New("xmongo: page offset overflow")
)
