package xredisq

import (
	"errors"

	"github.com/omeyang/xresilience/internal/mqcore"
)

var (
	// ErrNilClient 客户端为 nil
	ErrNilClient = mqcore.ErrNilClient

	// ErrNilMessage 消息为 nil
	ErrNilMessage = mqcore.ErrNilMessage

	// ErrNilHandler 处理器为 nil
	ErrNilHandler = mqcore.ErrNilHandler

	// ErrEmptyKey 键名为空
	ErrEmptyKey = errors.New("xredisq: empty key")

	// ErrNilQueue 队列为 nil
	ErrNilQueue = errors.New("xredisq: nil queue")

	// ErrNotFound 死信不存在
	ErrNotFound = errors.New("xredisq: dead letter not found")
)
