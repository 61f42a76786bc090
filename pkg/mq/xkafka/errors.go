package xkafka

import (
	"errors"

	"github.com/omeyang/xresilience/internal/mqcore"
)

// 重导出共享错误
var (
	// ErrNilClient 表示传入的客户端为空。
	ErrNilClient = mqcore.ErrNilClient

	// ErrNilMessage 表示传入的消息为空。
	ErrNilMessage = mqcore.ErrNilMessage

	// ErrNilHandler 表示传入的处理函数为空。
	ErrNilHandler = mqcore.ErrNilHandler

	// ErrClosed 表示客户端已关闭。
	ErrClosed = mqcore.ErrClosed
)

// Kafka 特有错误
var (
	// ErrNilConfig 表示传入的配置为空。
	ErrNilConfig = errors.New("xkafka: nil config")

	// ErrEmptyTopic 表示目标 Topic 为空。
	ErrEmptyTopic = errors.New("xkafka: empty topic")

	// ErrEmptyTopics 表示订阅的主题列表为空。
	ErrEmptyTopics = errors.New("xkafka: empty topics")

	// ErrDelivery 表示 Broker 未确认消息写入。
	ErrDelivery = errors.New("xkafka: delivery failed")

	// ErrFlushTimeout 表示消息刷新超时。
	ErrFlushTimeout = errors.New("xkafka: flush timeout")

	// ErrNotDue 表示消息尚未到期，已回退 offset 等待下次读取。
	ErrNotDue = errors.New("xkafka: message not due")
)
