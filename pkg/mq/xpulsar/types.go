package xpulsar

import (
	"context"

	"github.com/omeyang/xresilience/internal/mqcore"

	"github.com/apache/pulsar-client-go/pulsar"
)

// Tracer 定义链路追踪器接口。
// 用于在消息发送时注入追踪上下文，在接收时提取追踪上下文。
type Tracer = mqcore.Tracer

// NoopTracer 是一个空实现的追踪器。
type NoopTracer = mqcore.NoopTracer

// OTelTracer 是基于 OpenTelemetry 的追踪器实现。
type OTelTracer = mqcore.OTelTracer

// NewOTelTracer 创建基于 OpenTelemetry 的追踪器。
var NewOTelTracer = mqcore.NewOTelTracer

// MessageHandler 定义 Pulsar 消息处理函数。
type MessageHandler func(ctx context.Context, msg pulsar.Message) error

// messageSender 是 pulsar.Producer 中本包用到的方法。
type messageSender interface {
	Topic() string
	Send(ctx context.Context, msg *pulsar.ProducerMessage) (pulsar.MessageID, error)
	Close()
}

// messageReceiver 是 pulsar.Consumer 中本包用到的方法。
type messageReceiver interface {
	Subscription() string
	Receive(ctx context.Context) (pulsar.Message, error)
	Ack(msg pulsar.Message) error
	Nack(msg pulsar.Message)
	Close()
}

var (
	_ messageSender   = pulsar.Producer(nil)
	_ messageReceiver = pulsar.Consumer(nil)
)
