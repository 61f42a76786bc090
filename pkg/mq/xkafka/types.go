package xkafka

import (
	"context"
	"time"

	"github.com/omeyang/xresilience/internal/mqcore"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Tracer 定义链路追踪接口。
// 用于在消息生产/消费时注入和提取追踪信息。
type Tracer = mqcore.Tracer

// NoopTracer 是 Tracer 的空实现。
type NoopTracer = mqcore.NoopTracer

// OTelTracer 基于 OpenTelemetry 的链路追踪实现。
type OTelTracer = mqcore.OTelTracer

// NewOTelTracer 创建 OTelTracer。
var NewOTelTracer = mqcore.NewOTelTracer

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, msg *kafka.Message) error

// producerClient 是 *kafka.Producer 中本包用到的方法。
type producerClient interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Len() int
	Close()
}

// consumerClient 是 *kafka.Consumer 中本包用到的方法。
type consumerClient interface {
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	StoreMessage(m *kafka.Message) ([]kafka.TopicPartition, error)
	Seek(partition kafka.TopicPartition, ignoredTimeoutMs int) error
	Commit() ([]kafka.TopicPartition, error)
	Close() error
}

var (
	_ producerClient = (*kafka.Producer)(nil)
	_ consumerClient = (*kafka.Consumer)(nil)
)
