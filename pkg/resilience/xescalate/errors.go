package xescalate

import "errors"

var (
	// ErrNilQueue 表示未提供恢复队列。
	ErrNilQueue = errors.New("xescalate: nil queue")

	// ErrNilSink 表示未提供死信接收端。
	ErrNilSink = errors.New("xescalate: nil dead-letter sink")

	// ErrInvalidMessage 表示消息无法解码或缺少必填字段。
	ErrInvalidMessage = errors.New("xescalate: invalid message")

	// ErrUnknownOperation 表示重投消息引用了未注册的操作。
	ErrUnknownOperation = errors.New("xescalate: unknown operation")

	// ErrDeliver 表示队列与死信都写入失败，消息可能丢失。
	ErrDeliver = errors.New("xescalate: delivery failed")
)
