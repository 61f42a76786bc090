package xkafka

import (
	"context"
	"errors"
	"time"

	"github.com/omeyang/xresilience/internal/mqcore"
	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// DefaultMaxWait 单条消息在消费循环中最长等待到期的时间。
const DefaultMaxWait = 30 * time.Second

// RedeliverOption 配置 RedeliverHandler。
type RedeliverOption func(*redeliverOptions)

type redeliverOptions struct {
	maxWait time.Duration
	now     func() time.Time
	logger  xlog.Logger
}

// WithMaxWait 设置单次等待上限。
func WithMaxWait(d time.Duration) RedeliverOption {
	return func(o *redeliverOptions) {
		if d > 0 {
			o.maxWait = d
		}
	}
}

// WithRedeliverClock 替换时钟（测试用）。
func WithRedeliverClock(now func() time.Time) RedeliverOption {
	return func(o *redeliverOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRedeliverLogger 设置日志。
func WithRedeliverLogger(logger xlog.Logger) RedeliverOption {
	return func(o *redeliverOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// RedeliverHandler 返回消费重试 Topic 的处理函数：等待消息到期后交给 Redeliverer。
//
// 无法解码的消息被跳过（返回 nil，offset 前移）；ErrNotDue、ctx 取消与
// xescalate.ErrDeliver 原样返回，由 Consumer 回退 offset。
func RedeliverHandler(r *xescalate.Redeliverer, opts ...RedeliverOption) MessageHandler {
	o := &redeliverOptions{maxWait: DefaultMaxWait, now: time.Now, logger: xlog.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	return func(ctx context.Context, msg *kafka.Message) error {
		if msg == nil {
			return ErrNilMessage
		}
		deliverAt, err := mqcore.DeliverAt(kafkaHeadersToMap(msg.Headers))
		if err != nil {
			// 到期时间损坏时立即处理，不让消息卡在分区头部
			o.logger.Warn(ctx, "ignore malformed deliver-at header", xlog.Component(componentName), xlog.Err(err))
		}

		if wait := deliverAt.Sub(o.now()); wait > 0 {
			if wait > o.maxWait {
				if err := mqcore.Sleep(ctx, o.maxWait); err != nil {
					return err
				}
				return ErrNotDue
			}
			if err := mqcore.Sleep(ctx, wait); err != nil {
				return err
			}
		}

		err = r.HandlePayload(ctx, msg.Value)
		if errors.Is(err, xescalate.ErrInvalidMessage) {
			return nil
		}
		return err
	}
}
