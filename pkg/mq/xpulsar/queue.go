package xpulsar

import (
	"context"
	"time"

	"github.com/omeyang/xresilience/internal/mqcore"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"

	"github.com/apache/pulsar-client-go/pulsar"
)

// DefaultRetryTopic 返回业务 Topic 对应的重试 Topic，与 Pulsar 原生命名一致。
func DefaultRetryTopic(topic string) string {
	return topic + "-RETRY"
}

// DefaultDLQTopic 返回业务 Topic 对应的死信 Topic，与 Pulsar 原生命名一致。
func DefaultDLQTopic(topic string) string {
	return topic + "-DLQ"
}

// Queue 把升级消息以 DeliverAfter 写入重试 Topic。
type Queue struct {
	producer *Producer
	now      func() time.Time
}

// NewQueue 创建恢复队列。now 为 nil 时使用 time.Now，只影响消息头中的到期时间。
func NewQueue(producer *Producer, now func() time.Time) (*Queue, error) {
	if producer == nil {
		return nil, ErrNilProducer
	}
	if now == nil {
		now = time.Now
	}
	return &Queue{producer: producer, now: now}, nil
}

// Enqueue 实现 xescalate.Queue。
func (q *Queue) Enqueue(ctx context.Context, msg *xescalate.Message, delay time.Duration) error {
	payload, err := xescalate.Encode(msg)
	if err != nil {
		return err
	}
	_, err = q.producer.Send(ctx, &pulsar.ProducerMessage{
		Payload:      payload,
		Key:          msg.ID,
		Properties:   mqcore.EscalationHeaders(msg, q.now().Add(delay)),
		DeliverAfter: delay,
	})
	return err
}

// DeadLetterSink 把死信写入死信 Topic。
type DeadLetterSink struct {
	producer *Producer
}

// NewDeadLetterSink 创建死信接收端。
func NewDeadLetterSink(producer *Producer) (*DeadLetterSink, error) {
	if producer == nil {
		return nil, ErrNilProducer
	}
	return &DeadLetterSink{producer: producer}, nil
}

// DeadLetter 实现 xescalate.DeadLetterSink。
func (s *DeadLetterSink) DeadLetter(ctx context.Context, dl *xescalate.DeadLetter) error {
	payload, err := xescalate.EncodeDeadLetter(dl)
	if err != nil {
		return err
	}
	_, err = s.producer.Send(ctx, &pulsar.ProducerMessage{
		Payload:    payload,
		Key:        dl.ID,
		Properties: mqcore.DeadLetterHeaders(dl),
		EventTime:  dl.DeadLetteredAt,
	})
	return err
}

var (
	_ xescalate.Queue          = (*Queue)(nil)
	_ xescalate.DeadLetterSink = (*DeadLetterSink)(nil)
)
