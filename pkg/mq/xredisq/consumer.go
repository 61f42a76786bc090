package xredisq

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/omeyang/xresilience/internal/mqcore"
	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
	"github.com/omeyang/xresilience/pkg/resilience/xretry"
)

const (
	componentName = "xredisq"

	// DefaultPollInterval 队列为空时的轮询间隔
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultBatchSize 单次取出上限
	DefaultBatchSize = 16

	// DefaultRequeueDelay 处理失败后写回的延迟
	DefaultRequeueDelay = 5 * time.Second
)

// PayloadHandler 处理一条消息体。*xescalate.Redeliverer 的 HandlePayload 满足此签名。
type PayloadHandler func(ctx context.Context, payload []byte) error

// ConsumerOption 配置 Consumer。
type ConsumerOption func(*consumerOptions)

type consumerOptions struct {
	pollInterval time.Duration
	batchSize    int
	requeueDelay time.Duration
	backoff      xretry.Curve
	logger       xlog.Logger
}

// WithPollInterval 设置空轮询间隔。
func WithPollInterval(d time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithBatchSize 设置单次取出上限。
func WithBatchSize(n int) ConsumerOption {
	return func(o *consumerOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithRequeueDelay 设置失败写回延迟。
func WithRequeueDelay(d time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		if d >= 0 {
			o.requeueDelay = d
		}
	}
}

// WithBackoff 设置 Redis 出错时的退避曲线，非法曲线被忽略。
func WithBackoff(curve xretry.Curve) ConsumerOption {
	return func(o *consumerOptions) {
		if curve.Validate() == nil {
			o.backoff = curve
		}
	}
}

// WithLogger 设置日志。
func WithLogger(logger xlog.Logger) ConsumerOption {
	return func(o *consumerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// ConsumerStats 消费统计。
type ConsumerStats struct {
	Handled  int64
	Requeued int64
	Dropped  int64
	Errors   int64
}

// Consumer 轮询 Queue 并把到期消息交给处理函数。
type Consumer struct {
	queue   *Queue
	handler PayloadHandler
	opts    *consumerOptions

	handled  atomic.Int64
	requeued atomic.Int64
	dropped  atomic.Int64
	errs     atomic.Int64
}

// NewConsumer 创建消费者，到期消息交给 r.HandlePayload。
func NewConsumer(queue *Queue, r *xescalate.Redeliverer, opts ...ConsumerOption) (*Consumer, error) {
	if r == nil {
		return nil, ErrNilHandler
	}
	return NewConsumerFunc(queue, r.HandlePayload, opts...)
}

// NewConsumerFunc 以任意处理函数创建消费者。
func NewConsumerFunc(queue *Queue, handler PayloadHandler, opts ...ConsumerOption) (*Consumer, error) {
	if queue == nil {
		return nil, ErrNilQueue
	}
	if handler == nil {
		return nil, ErrNilHandler
	}
	o := &consumerOptions{
		pollInterval: DefaultPollInterval,
		batchSize:    DefaultBatchSize,
		requeueDelay: DefaultRequeueDelay,
		backoff:      mqcore.DefaultBackoff(),
		logger:       xlog.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Consumer{queue: queue, handler: handler, opts: o}, nil
}

// ConsumeOnce 取出一批到期消息并逐条处理，返回取出的条数。
//
// 无法解码的消息被丢弃；其余处理失败的消息按 requeueDelay 写回。
// 只有 Redis 本身出错时返回 error。
func (c *Consumer) ConsumeOnce(ctx context.Context) (int, error) {
	payloads, err := c.queue.PopDue(ctx, c.opts.batchSize)
	if err != nil {
		return 0, err
	}
	for i, payload := range payloads {
		if ctx.Err() != nil {
			// 已取出但未处理的消息原样写回
			if err := c.requeueAll(ctx, payloads[i:]); err != nil {
				return i, err
			}
			return i, ctx.Err()
		}
		if err := c.handle(ctx, payload); err != nil {
			return i + 1, err
		}
	}
	return len(payloads), nil
}

func (c *Consumer) handle(ctx context.Context, payload []byte) error {
	err := c.handler(ctx, payload)
	switch {
	case err == nil:
		c.handled.Add(1)
		return nil
	case errors.Is(err, xescalate.ErrInvalidMessage):
		c.dropped.Add(1)
		return nil
	}

	c.opts.logger.Warn(ctx, "requeue escalation message", xlog.Component(componentName),
		xlog.Delay(c.opts.requeueDelay), xlog.Err(err))
	wctx := context.WithoutCancel(ctx)
	if err := c.queue.add(wctx, payload, c.queue.now().Add(c.opts.requeueDelay)); err != nil {
		c.opts.logger.Error(ctx, "requeue failed, message lost", xlog.Component(componentName), xlog.Err(err))
		return err
	}
	c.requeued.Add(1)
	return nil
}

func (c *Consumer) requeueAll(ctx context.Context, payloads [][]byte) error {
	wctx := context.WithoutCancel(ctx)
	now := c.queue.now()
	for _, p := range payloads {
		if err := c.queue.add(wctx, p, now); err != nil {
			return err
		}
	}
	return nil
}

// ConsumeLoop 持续消费直到 ctx 取消。队列为空时按 pollInterval 等待，
// Redis 出错时按退避曲线等待。
func (c *Consumer) ConsumeLoop(ctx context.Context) error {
	consume := func(ctx context.Context) error {
		n, err := c.ConsumeOnce(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return mqcore.Sleep(ctx, c.opts.pollInterval)
		}
		return nil
	}
	onError := func(err error) {
		if ctx.Err() != nil {
			return
		}
		c.errs.Add(1)
		c.opts.logger.Warn(ctx, "redis consume failed", xlog.Component(componentName), xlog.Err(err))
	}
	return mqcore.RunConsumeLoop(ctx, consume,
		mqcore.WithBackoff(c.opts.backoff),
		mqcore.WithOnError(onError),
	)
}

// Stats 返回消费统计。
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Handled:  c.handled.Load(),
		Requeued: c.requeued.Load(),
		Dropped:  c.dropped.Load(),
		Errors:   c.errs.Load(),
	}
}
