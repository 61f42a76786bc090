package xkafka

import (
	"context"
	"sync"
	"time"

	"github.com/omeyang/xresilience/pkg/resilience/xretry"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// fakeProducer 模拟 *kafka.Producer：Produce 同步写入投递报告。
type fakeProducer struct {
	mu             sync.Mutex
	produced       []*kafka.Message
	produceErr     error
	deliveryErr    error
	noReport       bool
	flushRemaining int
	closed         bool
}

func (f *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	if f.produceErr != nil {
		return f.produceErr
	}
	f.mu.Lock()
	f.produced = append(f.produced, msg)
	f.mu.Unlock()
	if !f.noReport {
		report := *msg
		report.TopicPartition.Error = f.deliveryErr
		deliveryChan <- &report
	}
	return nil
}

func (f *fakeProducer) Flush(int) int { return f.flushRemaining }

func (f *fakeProducer) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.produced)
}

func (f *fakeProducer) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// fakeConsumer 模拟分区日志：Seek 回退读取位置，空时返回超时错误。
type fakeConsumer struct {
	mu        sync.Mutex
	log       []*kafka.Message
	pos       int
	stored    []kafka.Offset
	seeks     []kafka.Offset
	commitErr error
	closed    bool
}

func newFakeConsumer(topic string, values ...[]byte) *fakeConsumer {
	f := &fakeConsumer{}
	for i, v := range values {
		f.append(topic, kafka.Offset(i), v, nil)
	}
	return f
}

func (f *fakeConsumer) append(topic string, offset kafka.Offset, value []byte, headers []kafka.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: offset},
		Value:          value,
		Headers:        headers,
	})
}

func (f *fakeConsumer) ReadMessage(timeout time.Duration) (*kafka.Message, error) {
	f.mu.Lock()
	if f.pos < len(f.log) {
		msg := f.log[f.pos]
		f.pos++
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	time.Sleep(timeout)
	return nil, kafka.NewError(kafka.ErrTimedOut, "timed out", false)
}

func (f *fakeConsumer) StoreMessage(m *kafka.Message) ([]kafka.TopicPartition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, m.TopicPartition.Offset)
	return []kafka.TopicPartition{m.TopicPartition}, nil
}

func (f *fakeConsumer) Seek(tp kafka.TopicPartition, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, tp.Offset)
	for i, m := range f.log {
		if m.TopicPartition.Offset == tp.Offset {
			f.pos = i
			break
		}
	}
	return nil
}

func (f *fakeConsumer) Commit() ([]kafka.TopicPartition, error) {
	return nil, f.commitErr
}

func (f *fakeConsumer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConsumer) snapshot() (stored, seeks []kafka.Offset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Offset(nil), f.stored...), append([]kafka.Offset(nil), f.seeks...)
}

// recordingSender 记录 Send 调用。
type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

type sentMessage struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

func (s *recordingSender) Send(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func fixedBackoff(d time.Duration) xretry.Curve {
	return xretry.Curve{Base: d, Max: d, Multiplier: 1}
}
