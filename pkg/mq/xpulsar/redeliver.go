package xpulsar

import (
	"context"
	"errors"
	"time"

	"github.com/omeyang/xresilience/internal/mqcore"
	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"

	"github.com/apache/pulsar-client-go/pulsar"
)

// DefaultEarlyTolerance 允许消息早于到期时间到达的误差（Broker 调度粒度）。
const DefaultEarlyTolerance = time.Second

// RedeliverHandler 返回消费重试 Topic 的处理函数。
//
// 提前超过 DefaultEarlyTolerance 到达的消息返回 ErrNotDue（Nack 后稍后重投）；
// 无法解码的消息返回 nil 并被 Ack 丢弃。now 为 nil 时使用 time.Now。
func RedeliverHandler(r *xescalate.Redeliverer, now func() time.Time, logger xlog.Logger) MessageHandler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = xlog.Discard()
	}
	return func(ctx context.Context, msg pulsar.Message) error {
		if msg == nil {
			return ErrNilMessage
		}
		deliverAt, err := mqcore.DeliverAt(msg.Properties())
		if err != nil {
			logger.Warn(ctx, "ignore malformed deliver-at property", xlog.Component(componentName), xlog.Err(err))
		} else if deliverAt.Sub(now()) > DefaultEarlyTolerance {
			return ErrNotDue
		}

		err = r.HandlePayload(ctx, msg.Payload())
		if errors.Is(err, xescalate.ErrInvalidMessage) {
			return nil
		}
		return err
	}
}
