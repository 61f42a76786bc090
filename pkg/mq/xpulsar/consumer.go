package xpulsar

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/omeyang/xresilience/internal/mqcore"
	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/observability/xmetrics"
	"github.com/omeyang/xresilience/pkg/resilience/xretry"

	"github.com/apache/pulsar-client-go/pulsar"
)

// ConsumerOption 配置 Consumer。
type ConsumerOption func(*Consumer)

// WithConsumerTracer 设置链路追踪器。
func WithConsumerTracer(tracer Tracer) ConsumerOption {
	return func(c *Consumer) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithConsumerObserver 设置统一观测接口。
func WithConsumerObserver(observer xmetrics.Observer) ConsumerOption {
	return func(c *Consumer) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithConsumerLogger 设置日志。
func WithConsumerLogger(logger xlog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConsumerBackoff 设置 Receive 失败后的退避曲线，非法曲线被忽略。
func WithConsumerBackoff(curve xretry.Curve) ConsumerOption {
	return func(c *Consumer) {
		if curve.Validate() == nil {
			c.backoff = curve
		}
	}
}

// Consumer 带追踪提取的消费者：处理成功 Ack，失败 Nack。
type Consumer struct {
	consumer messageReceiver
	topic    string
	tracer   Tracer
	observer xmetrics.Observer
	logger   xlog.Logger
	backoff  xretry.Curve

	errorsCount atomic.Int64
}

// WrapConsumer 包装原生 Consumer。consumer 不能为 nil，否则返回 ErrNilConsumer。
//
// 设计决策: topic 为空时不自动回填。pulsar.Consumer 可订阅多个 topic，无单一 Topic() 方法。
func WrapConsumer(consumer pulsar.Consumer, topic string, opts ...ConsumerOption) (*Consumer, error) {
	if consumer == nil {
		return nil, ErrNilConsumer
	}
	return wrapReceiver(consumer, topic, opts...), nil
}

func wrapReceiver(consumer messageReceiver, topic string, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		consumer: consumer,
		topic:    topic,
		tracer:   NoopTracer{},
		observer: xmetrics.NoopObserver{},
		logger:   xlog.Discard(),
		backoff:  mqcore.DefaultBackoff(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Consume 消费一条消息并执行处理函数。
// 成功时自动 Ack，失败时自动 Nack。
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) (err error) {
	if handler == nil {
		return ErrNilHandler
	}
	if ctx == nil {
		ctx = context.Background()
	}

	msg, err := c.consumer.Receive(ctx)
	if err != nil {
		return err
	}
	// 设计决策: 正常情况下 Receive 要么返回消息要么返回错误，此分支仅作为安全兜底。
	if msg == nil {
		return nil
	}
	msgCtx := extractPulsarTrace(ctx, c.tracer, msg)

	attrs := pulsarAttrs(c.topic)
	if sub := c.consumer.Subscription(); sub != "" {
		attrs = append(attrs, xmetrics.String("messaging.consumer.group.name", sub))
	}
	if id := msg.ID(); id != nil {
		attrs = append(attrs, xmetrics.String("messaging.message.id", id.String()))
	}

	var ackErr error
	msgCtx, span := xmetrics.Start(msgCtx, c.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "consume",
		Kind:      xmetrics.KindConsumer,
		Attrs:     attrs,
	})
	defer func() {
		result := xmetrics.Result{Err: err}
		if ackErr != nil {
			result.Attrs = []xmetrics.Attr{
				xmetrics.String("messaging.pulsar.ack_error", ackErr.Error()),
			}
		}
		span.End(result)
	}()

	if err = handler(msgCtx, msg); err != nil {
		c.consumer.Nack(msg)
		return err
	}

	// 设计决策: Ack 失败不应阻止已成功处理的消息。返回 Ack 错误会导致调用方误认为处理失败。
	// Pulsar 客户端会在后台重试 Ack，Ack 错误通过 span 属性记录。
	ackErr = c.consumer.Ack(msg)
	return nil
}

// ConsumeLoop 循环消费消息直到 ctx 取消。
//
// 处理失败的消息已被 Nack，由 Broker 按 Nack 退避重新投递，循环继续下一条；
// 只有 Receive 本身失败才按退避曲线等待。
func (c *Consumer) ConsumeLoop(ctx context.Context, handler MessageHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	consume := func(ctx context.Context) error {
		handlerFailed := false
		err := c.Consume(ctx, func(ctx context.Context, msg pulsar.Message) error {
			herr := handler(ctx, msg)
			handlerFailed = herr != nil
			if herr != nil && !errors.Is(herr, ErrNotDue) {
				c.logger.Warn(ctx, "pulsar handler failed, message nacked", xlog.Component(componentName), xlog.Err(herr))
			}
			return herr
		})
		if handlerFailed {
			return nil
		}
		return err
	}
	onError := func(err error) {
		if ctx.Err() != nil {
			return
		}
		c.errorsCount.Add(1)
		c.logger.Warn(ctx, "pulsar receive failed", xlog.Component(componentName), xlog.Err(err))
	}
	return mqcore.RunConsumeLoop(ctx, consume, mqcore.WithBackoff(c.backoff), mqcore.WithOnError(onError))
}

// Errors 返回 Receive 失败的次数。
func (c *Consumer) Errors() int64 {
	return c.errorsCount.Load()
}

// Close 关闭底层消费者。
func (c *Consumer) Close() {
	c.consumer.Close()
}
