package xkafka

import (
	"context"
	"time"

	"github.com/omeyang/xresilience/internal/mqcore"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
)

// DefaultRetryTopic 返回业务 Topic 对应的重试 Topic 名称。
func DefaultRetryTopic(topic string) string {
	return topic + ".retry"
}

// DefaultDLQTopic 返回业务 Topic 对应的死信 Topic 名称。
func DefaultDLQTopic(topic string) string {
	return topic + ".dlq"
}

// QueueOption 配置 Queue / DeadLetterSink。
type QueueOption func(*queueOptions)

type queueOptions struct {
	now func() time.Time
}

// WithClock 替换时钟（测试用）。
func WithClock(now func() time.Time) QueueOption {
	return func(o *queueOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func applyQueueOptions(opts []QueueOption) *queueOptions {
	o := &queueOptions{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Queue 把升级消息写入重试 Topic，到期时间写在消息头中。
// 消息 Key 为消息 ID，同一事件的多次重投落在同一分区。
type Queue struct {
	sender Sender
	topic  string
	now    func() time.Time
}

// NewQueue 创建重试 Topic 队列。
func NewQueue(sender Sender, topic string, opts ...QueueOption) (*Queue, error) {
	if sender == nil {
		return nil, ErrNilClient
	}
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	o := applyQueueOptions(opts)
	return &Queue{sender: sender, topic: topic, now: o.now}, nil
}

// Topic 返回重试 Topic。
func (q *Queue) Topic() string { return q.topic }

// Enqueue 实现 xescalate.Queue。
func (q *Queue) Enqueue(ctx context.Context, msg *xescalate.Message, delay time.Duration) error {
	payload, err := xescalate.Encode(msg)
	if err != nil {
		return err
	}
	headers := mqcore.EscalationHeaders(msg, q.now().Add(delay))
	return q.sender.Send(ctx, q.topic, []byte(msg.ID), payload, headers)
}

// DeadLetterSink 把死信写入死信 Topic。
type DeadLetterSink struct {
	sender Sender
	topic  string
}

// NewDeadLetterSink 创建死信 Topic 接收端。
func NewDeadLetterSink(sender Sender, topic string) (*DeadLetterSink, error) {
	if sender == nil {
		return nil, ErrNilClient
	}
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	return &DeadLetterSink{sender: sender, topic: topic}, nil
}

// Topic 返回死信 Topic。
func (s *DeadLetterSink) Topic() string { return s.topic }

// DeadLetter 实现 xescalate.DeadLetterSink。
func (s *DeadLetterSink) DeadLetter(ctx context.Context, dl *xescalate.DeadLetter) error {
	payload, err := xescalate.EncodeDeadLetter(dl)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, s.topic, []byte(dl.ID), payload, mqcore.DeadLetterHeaders(dl))
}

var (
	_ xescalate.Queue          = (*Queue)(nil)
	_ xescalate.DeadLetterSink = (*DeadLetterSink)(nil)
)
