package xpulsar

import (
	"context"

	"github.com/omeyang/xresilience/pkg/observability/xmetrics"

	"github.com/apache/pulsar-client-go/pulsar"
)

// Producer 带追踪注入的同步生产者。
type Producer struct {
	producer messageSender
	tracer   Tracer
	observer xmetrics.Observer
}

// WrapProducer 包装原生 Producer。producer 不能为 nil，否则返回 ErrNilProducer。
func WrapProducer(producer pulsar.Producer, tracer Tracer, observer xmetrics.Observer) (*Producer, error) {
	if producer == nil {
		return nil, ErrNilProducer
	}
	return wrapSender(producer, tracer, observer), nil
}

func wrapSender(producer messageSender, tracer Tracer, observer xmetrics.Observer) *Producer {
	if observer == nil {
		observer = xmetrics.NoopObserver{}
	}
	if tracer == nil {
		tracer = NoopTracer{}
	}
	return &Producer{producer: producer, tracer: tracer, observer: observer}
}

// Topic 返回生产者的 Topic。
func (p *Producer) Topic() string {
	return p.producer.Topic()
}

// Send 发送消息并注入追踪信息，等待 Broker 确认。
func (p *Producer) Send(ctx context.Context, msg *pulsar.ProducerMessage) (id pulsar.MessageID, err error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := xmetrics.Start(ctx, p.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "produce",
		Kind:      xmetrics.KindProducer,
		Attrs:     pulsarAttrs(p.producer.Topic()),
	})
	defer func() {
		result := xmetrics.Result{Err: err}
		if id != nil {
			result.Attrs = []xmetrics.Attr{
				xmetrics.String("messaging.message.id", id.String()),
			}
		}
		span.End(result)
	}()

	injectPulsarTrace(ctx, p.tracer, msg)
	return p.producer.Send(ctx, msg)
}

// Close 关闭底层生产者。
func (p *Producer) Close() {
	p.producer.Close()
}
