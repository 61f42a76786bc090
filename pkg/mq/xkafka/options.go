package xkafka

import (
	"time"

	"github.com/omeyang/xresilience/internal/mqcore"
	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/observability/xmetrics"
	"github.com/omeyang/xresilience/pkg/resilience/xretry"
)

// producerOptions 包含 Kafka Producer 的配置选项。
type producerOptions struct {
	Tracer       Tracer
	Observer     xmetrics.Observer
	FlushTimeout time.Duration
}

func defaultProducerOptions() *producerOptions {
	return &producerOptions{
		Tracer:       NoopTracer{},
		Observer:     xmetrics.NoopObserver{},
		FlushTimeout: 10 * time.Second,
	}
}

// ProducerOption 定义 Kafka Producer 的配置选项函数类型。
type ProducerOption func(*producerOptions)

// WithProducerTracer 设置链路追踪器。
func WithProducerTracer(tracer Tracer) ProducerOption {
	return func(o *producerOptions) {
		if tracer != nil {
			o.Tracer = tracer
		}
	}
}

// WithProducerObserver 设置统一观测接口。
func WithProducerObserver(observer xmetrics.Observer) ProducerOption {
	return func(o *producerOptions) {
		if observer != nil {
			o.Observer = observer
		}
	}
}

// WithProducerFlushTimeout 设置关闭时的刷新超时时间。
func WithProducerFlushTimeout(d time.Duration) ProducerOption {
	return func(o *producerOptions) {
		if d > 0 {
			o.FlushTimeout = d
		}
	}
}

// consumerOptions 包含 Kafka Consumer 的配置选项。
type consumerOptions struct {
	Tracer      Tracer
	Observer    xmetrics.Observer
	Logger      xlog.Logger
	PollTimeout time.Duration
	Backoff     xretry.Curve
}

func defaultConsumerOptions() *consumerOptions {
	return &consumerOptions{
		Tracer:      NoopTracer{},
		Observer:    xmetrics.NoopObserver{},
		Logger:      xlog.Discard(),
		PollTimeout: 100 * time.Millisecond,
		Backoff:     mqcore.DefaultBackoff(),
	}
}

// ConsumerOption 定义 Kafka Consumer 的配置选项函数类型。
type ConsumerOption func(*consumerOptions)

// WithConsumerTracer 设置链路追踪器。
func WithConsumerTracer(tracer Tracer) ConsumerOption {
	return func(o *consumerOptions) {
		if tracer != nil {
			o.Tracer = tracer
		}
	}
}

// WithConsumerObserver 设置统一观测接口。
func WithConsumerObserver(observer xmetrics.Observer) ConsumerOption {
	return func(o *consumerOptions) {
		if observer != nil {
			o.Observer = observer
		}
	}
}

// WithConsumerLogger 设置消费循环的日志。
func WithConsumerLogger(logger xlog.Logger) ConsumerOption {
	return func(o *consumerOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithConsumerPollTimeout 设置轮询超时时间。
func WithConsumerPollTimeout(d time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		if d > 0 {
			o.PollTimeout = d
		}
	}
}

// WithConsumerBackoff 设置消费失败后的退避曲线，非法曲线被忽略。
func WithConsumerBackoff(curve xretry.Curve) ConsumerOption {
	return func(o *consumerOptions) {
		if curve.Validate() == nil {
			o.Backoff = curve
		}
	}
}
