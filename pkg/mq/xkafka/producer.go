package xkafka

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/omeyang/xresilience/pkg/observability/xmetrics"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Sender 同步发送一条消息，Queue 与 DeadLetterSink 依赖此接口。
type Sender interface {
	Send(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// ProducerStats 包含 Producer 的统计信息。
type ProducerStats struct {
	// MessagesProduced Broker 已确认的消息数量。
	MessagesProduced int64
	// BytesProduced Broker 已确认的消息字节数。
	BytesProduced int64
	// Errors 入队或投递失败的消息数量。
	Errors int64
	// QueueLength 当前队列中等待发送的消息数量。
	QueueLength int
}

// Producer 同步语义的 Kafka 生产者。
//
// 升级消息一旦丢失就无法恢复，因此 Send 会等待 delivery report，
// 而不是像通用生产者那样只确认入队。
type Producer struct {
	client  producerClient
	options *producerOptions

	// mu 保护 Flush、Close 等管理操作。Produce 本身是线程安全的，不需要加锁。
	mu     sync.Mutex
	closed atomic.Bool

	messagesProduced atomic.Int64
	bytesProduced    atomic.Int64
	errors           atomic.Int64
}

// NewProducer 创建 Kafka 生产者。config 必须包含 "bootstrap.servers"。
func NewProducer(config *kafka.ConfigMap, opts ...ProducerOption) (*Producer, error) {
	if config == nil {
		return nil, ErrNilConfig
	}

	// 复制配置，避免修改调用方传入的 ConfigMap
	clonedConfig := &kafka.ConfigMap{}
	for k, v := range *config {
		if err := clonedConfig.SetKey(k, v); err != nil {
			return nil, fmt.Errorf("clone config key %q: %w", k, err)
		}
	}

	producer, err := kafka.NewProducer(clonedConfig)
	if err != nil {
		return nil, err
	}
	return newProducer(producer, opts...)
}

func newProducer(client producerClient, opts ...ProducerOption) (*Producer, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	options := defaultProducerOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Producer{client: client, options: options}, nil
}

// Send 发送消息并等待 Broker 确认。
// ctx 取消时立即返回 ctx.Err()，此时消息可能已经写入。
func (p *Producer) Send(ctx context.Context, topic string, key, value []byte, headers map[string]string) (err error) {
	if p.closed.Load() {
		return ErrClosed
	}
	if topic == "" {
		return ErrEmptyTopic
	}
	if ctx == nil {
		ctx = context.Background()
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            key,
		Value:          value,
	}
	for k, v := range headers {
		setHeader(msg, k, v)
	}

	ctx, span := xmetrics.Start(ctx, p.options.Observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "produce",
		Kind:      xmetrics.KindProducer,
		Attrs:     kafkaAttrs(topic),
	})
	defer func() {
		span.End(xmetrics.Result{Err: err})
	}()

	injectKafkaTrace(ctx, p.options.Tracer, msg)

	// 缓冲为 1，ctx 先结束时 librdkafka 投递报告不会阻塞
	delivery := make(chan kafka.Event, 1)
	if err = p.client.Produce(msg, delivery); err != nil {
		p.errors.Add(1)
		return fmt.Errorf("kafka produce: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-delivery:
		reported, ok := ev.(*kafka.Message)
		if !ok {
			p.errors.Add(1)
			return fmt.Errorf("%w: unexpected event %v", ErrDelivery, ev)
		}
		if reported.TopicPartition.Error != nil {
			p.errors.Add(1)
			return fmt.Errorf("%w: %w", ErrDelivery, reported.TopicPartition.Error)
		}
	}

	p.messagesProduced.Add(1)
	p.bytesProduced.Add(int64(len(value)))
	return nil
}

// Stats 返回生产者统计信息。已关闭时 QueueLength 为 0。
func (p *Producer) Stats() ProducerStats {
	var queueLen int
	p.mu.Lock()
	if !p.closed.Load() {
		queueLen = p.client.Len()
	}
	p.mu.Unlock()

	return ProducerStats{
		MessagesProduced: p.messagesProduced.Load(),
		BytesProduced:    p.bytesProduced.Load(),
		Errors:           p.errors.Load(),
		QueueLength:      queueLen,
	}
}

// Close 刷新未发送的消息（受 FlushTimeout 限制）后关闭。
// 重复调用 Close 安全返回 ErrClosed。
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	remaining := p.client.Flush(int(p.options.FlushTimeout.Milliseconds()))
	p.client.Close()
	if remaining > 0 {
		return fmt.Errorf("%w: %d messages still in queue", ErrFlushTimeout, remaining)
	}
	return nil
}

var _ Sender = (*Producer)(nil)
