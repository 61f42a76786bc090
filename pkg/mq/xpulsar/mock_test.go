package xpulsar

import (
	"context"
	"sync"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
)

// =============================================================================
// mockProducer - 实现 messageSender 用于测试
// =============================================================================

type mockProducer struct {
	mu      sync.Mutex
	sent    []*pulsar.ProducerMessage
	sendErr error
	closed  bool
}

func (m *mockProducer) Topic() string { return "persistent://public/default/orders-RETRY" }
func (m *mockProducer) Send(_ context.Context, msg *pulsar.ProducerMessage) (pulsar.MessageID, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil, nil
}
func (m *mockProducer) Close() { m.closed = true }

// =============================================================================
// mockConsumer - 实现 messageReceiver 用于测试
// =============================================================================

// mockConsumer 依次返回 messages 中的消息，耗尽后阻塞到 ctx 结束。
type mockConsumer struct {
	mu          sync.Mutex
	messages    []pulsar.Message
	receiveErrs []error
	acked       []pulsar.Message
	nacked      []pulsar.Message
	ackErr      error
	closed      bool
}

func (m *mockConsumer) Subscription() string { return "xresilience" }
func (m *mockConsumer) Receive(ctx context.Context) (pulsar.Message, error) {
	m.mu.Lock()
	if len(m.receiveErrs) > 0 {
		err := m.receiveErrs[0]
		m.receiveErrs = m.receiveErrs[1:]
		m.mu.Unlock()
		return nil, err
	}
	if len(m.messages) > 0 {
		msg := m.messages[0]
		m.messages = m.messages[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}
func (m *mockConsumer) Ack(msg pulsar.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, msg)
	return m.ackErr
}
func (m *mockConsumer) Nack(msg pulsar.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nacked = append(m.nacked, msg)
}
func (m *mockConsumer) Close() { m.closed = true }

func (m *mockConsumer) counts() (acked, nacked int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.acked), len(m.nacked)
}

// =============================================================================
// mockMessage - 实现 pulsar.Message 接口用于测试
// =============================================================================

type mockMessage struct {
	properties map[string]string
	payload    []byte
}

func (m *mockMessage) Topic() string                                   { return "test-topic" }
func (m *mockMessage) Properties() map[string]string                   { return m.properties }
func (m *mockMessage) Payload() []byte                                 { return m.payload }
func (m *mockMessage) ID() pulsar.MessageID                            { return nil }
func (m *mockMessage) PublishTime() time.Time                          { return time.Time{} }
func (m *mockMessage) EventTime() time.Time                            { return time.Time{} }
func (m *mockMessage) Key() string                                     { return "" }
func (m *mockMessage) OrderingKey() string                             { return "" }
func (m *mockMessage) RedeliveryCount() uint32                         { return 0 }
func (m *mockMessage) IsReplicated() bool                              { return false }
func (m *mockMessage) GetReplicatedFrom() string                       { return "" }
func (m *mockMessage) GetSchemaValue(v interface{}) error              { return nil }
func (m *mockMessage) ProducerName() string                            { return "" }
func (m *mockMessage) SchemaVersion() []byte                           { return nil }
func (m *mockMessage) GetEncryptionContext() *pulsar.EncryptionContext { return nil }
func (m *mockMessage) Index() *uint64                                  { return nil }
func (m *mockMessage) BrokerPublishTime() *time.Time                   { return nil }

var _ pulsar.Message = (*mockMessage)(nil)
