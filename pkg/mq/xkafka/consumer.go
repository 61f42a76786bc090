package xkafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/omeyang/xresilience/internal/mqcore"
	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/observability/xmetrics"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// ConsumerStats 包含 Consumer 的统计信息。
type ConsumerStats struct {
	// MessagesConsumed 已读取的消息数量。
	MessagesConsumed int64
	// BytesConsumed 已读取的字节数。
	BytesConsumed int64
	// Errors 消费循环中处理失败的次数，不含 ErrNotDue。
	Errors int64
}

// Consumer Kafka 消费者，处理成功后才存储 offset。
type Consumer struct {
	client  consumerClient
	options *consumerOptions
	groupID string

	// closeMu 保护 Consume 与 Close 的并发。
	// Consume 持有读锁，Close 持有写锁。
	// 确保 Close 等待进行中的 Consume（含 StoreMessage）完成后再关闭资源。
	closeMu sync.RWMutex
	closed  atomic.Bool

	messagesConsumed atomic.Int64
	bytesConsumed    atomic.Int64
	errorsCount      atomic.Int64
}

// NewConsumer 创建 Kafka 消费者并订阅 topics。
// config 必须包含 "bootstrap.servers" 和 "group.id" 配置项。
func NewConsumer(config *kafka.ConfigMap, topics []string, opts ...ConsumerOption) (*Consumer, error) {
	if config == nil {
		return nil, ErrNilConfig
	}
	if len(topics) == 0 {
		return nil, ErrEmptyTopics
	}

	// 复制配置，避免修改调用方传入的 ConfigMap
	clonedConfig := &kafka.ConfigMap{}
	for k, v := range *config {
		if err := clonedConfig.SetKey(k, v); err != nil {
			return nil, fmt.Errorf("clone config key %q: %w", k, err)
		}
	}

	// 强制设置 enable.auto.offset.store=false 以确保 at-least-once 语义
	if err := clonedConfig.SetKey("enable.auto.offset.store", false); err != nil {
		return nil, fmt.Errorf("failed to set enable.auto.offset.store: %w", err)
	}

	consumer, err := kafka.NewConsumer(clonedConfig)
	if err != nil {
		return nil, err
	}
	if err := consumer.SubscribeTopics(topics, nil); err != nil {
		return nil, errors.Join(err, consumer.Close())
	}

	groupID, _ := clonedConfig.Get("group.id", "")
	groupStr, _ := groupID.(string)
	return newConsumer(consumer, groupStr, opts...)
}

func newConsumer(client consumerClient, groupID string, opts ...ConsumerOption) (*Consumer, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	options := defaultConsumerOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Consumer{client: client, options: options, groupID: groupID}, nil
}

// ReadMessage 读取下一条消息并提取追踪信息，轮询超时会被吞掉并继续等待。
func (c *Consumer) ReadMessage(ctx context.Context) (context.Context, *kafka.Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if c.closed.Load() {
			return ctx, nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return ctx, nil, err
		}

		msg, err := c.client.ReadMessage(c.options.PollTimeout)
		if err != nil {
			var kafkaErr kafka.Error
			if errors.As(err, &kafkaErr) && kafkaErr.Code() == kafka.ErrTimedOut {
				continue
			}
			return ctx, nil, err
		}

		c.messagesConsumed.Add(1)
		c.bytesConsumed.Add(int64(len(msg.Value)))
		return extractKafkaTrace(ctx, c.options.Tracer, msg), msg, nil
	}
}

// Consume 消费一条消息并执行处理函数。
//
// 成功后 StoreMessage；失败时 Seek 回该消息，下一次读取重新投递。
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) (err error) {
	if handler == nil {
		return ErrNilHandler
	}

	msgCtx, msg, err := c.ReadMessage(ctx)
	if err != nil {
		return err
	}

	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed.Load() {
		return ErrClosed
	}

	msgCtx, span := xmetrics.Start(msgCtx, c.options.Observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "consume",
		Kind:      xmetrics.KindConsumer,
		Attrs:     kafkaMessageAttrs(msg, c.groupID),
	})
	defer func() {
		span.End(xmetrics.Result{Err: err})
	}()

	if err = handler(msgCtx, msg); err != nil {
		if seekErr := c.client.Seek(msg.TopicPartition, 0); seekErr != nil {
			err = errors.Join(err, fmt.Errorf("seek back: %w", seekErr))
		}
		return err
	}

	// 设计决策: 使用 StoreMessage 而非 StoreOffsets，因为 StoreMessage 内部会将 offset+1，
	// 表示"下次从此 offset 之后的位置开始消费"。
	if _, storeErr := c.client.StoreMessage(msg); storeErr != nil {
		return fmt.Errorf("store offset failed: %w", storeErr)
	}
	return nil
}

// ConsumeLoop 循环消费直到 ctx 取消，失败时按退避曲线等待。
func (c *Consumer) ConsumeLoop(ctx context.Context, handler MessageHandler) error {
	if handler == nil {
		return ErrNilHandler
	}
	onError := func(err error) {
		if errors.Is(err, ErrNotDue) || ctx.Err() != nil {
			return
		}
		c.errorsCount.Add(1)
		c.options.Logger.Warn(ctx, "kafka consume failed", xlog.Component(componentName), xlog.Err(err))
	}
	return mqcore.RunConsumeLoop(ctx, func(ctx context.Context) error {
		return c.Consume(ctx, handler)
	}, mqcore.WithBackoff(c.options.Backoff), mqcore.WithOnError(onError))
}

// Stats 返回消费者统计信息。
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		MessagesConsumed: c.messagesConsumed.Load(),
		BytesConsumed:    c.bytesConsumed.Load(),
		Errors:           c.errorsCount.Load(),
	}
}

// Close 等待进行中的 Consume 完成，提交已存储的 offset 后关闭。
// 重复调用 Close 安全返回 ErrClosed。
func (c *Consumer) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	_, commitErr := c.client.Commit()
	var kafkaErr kafka.Error
	if errors.As(commitErr, &kafkaErr) && kafkaErr.Code() == kafka.ErrNoOffset {
		// 没有 offset 需要提交，是正常情况
		commitErr = nil
	}

	closeErr := c.client.Close()
	if commitErr != nil {
		return errors.Join(fmt.Errorf("commit offset on close failed: %w", commitErr), closeErr)
	}
	return closeErr
}
