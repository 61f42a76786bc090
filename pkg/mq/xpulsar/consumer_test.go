package xpulsar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omeyang/xresilience/pkg/resilience/xretry"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapConsumer_Nil(t *testing.T) {
	consumer, err := WrapConsumer(nil, "t")

	assert.Nil(t, consumer)
	assert.ErrorIs(t, err, ErrNilConsumer)
}

func TestConsumer_ConsumeAcks(t *testing.T) {
	mc := &mockConsumer{messages: []pulsar.Message{&mockMessage{payload: []byte("a")}}}
	consumer := wrapReceiver(mc, "orders-RETRY")

	var got string
	err := consumer.Consume(context.Background(), func(_ context.Context, msg pulsar.Message) error {
		got = string(msg.Payload())
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "a", got)
	acked, nacked := mc.counts()
	assert.Equal(t, 1, acked)
	assert.Zero(t, nacked)
}

func TestConsumer_ConsumeNacksOnFailure(t *testing.T) {
	mc := &mockConsumer{messages: []pulsar.Message{&mockMessage{}}}
	consumer := wrapReceiver(mc, "orders-RETRY")
	boom := errors.New("boom")

	err := consumer.Consume(context.Background(), func(context.Context, pulsar.Message) error { return boom })

	assert.ErrorIs(t, err, boom)
	acked, nacked := mc.counts()
	assert.Zero(t, acked)
	assert.Equal(t, 1, nacked)
}

func TestConsumer_AckErrorIsNotReturned(t *testing.T) {
	mc := &mockConsumer{messages: []pulsar.Message{&mockMessage{}}, ackErr: errors.New("ack timeout")}
	consumer := wrapReceiver(mc, "")

	assert.NoError(t, consumer.Consume(context.Background(), func(context.Context, pulsar.Message) error { return nil }))
}

func TestConsumer_ConsumeErrors(t *testing.T) {
	consumer := wrapReceiver(&mockConsumer{}, "")
	assert.ErrorIs(t, consumer.Consume(context.Background(), nil), ErrNilHandler)
	assert.ErrorIs(t, consumer.ConsumeLoop(context.Background(), nil), ErrNilHandler)

	disconnected := errors.New("disconnected")
	consumer = wrapReceiver(&mockConsumer{receiveErrs: []error{disconnected}}, "")
	err := consumer.Consume(context.Background(), func(context.Context, pulsar.Message) error { return nil })
	assert.ErrorIs(t, err, disconnected)
}

func TestConsumer_ConsumeLoop(t *testing.T) {
	mc := &mockConsumer{
		receiveErrs: []error{errors.New("disconnected")},
		messages: []pulsar.Message{
			&mockMessage{payload: []byte("ok")},
			&mockMessage{payload: []byte("fail")},
			&mockMessage{payload: []byte("ok")},
		},
	}
	consumer := wrapReceiver(mc, "orders-RETRY",
		WithConsumerBackoff(xretry.Curve{Base: time.Millisecond, Max: time.Millisecond, Multiplier: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := consumer.ConsumeLoop(ctx, func(_ context.Context, msg pulsar.Message) error {
		if string(msg.Payload()) == "fail" {
			return errors.New("handler failed")
		}
		return nil
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	acked, nacked := mc.counts()
	assert.Equal(t, 2, acked)
	assert.Equal(t, 1, nacked)
	// 只有 Receive 失败计入错误，handler 失败已 Nack
	assert.Equal(t, int64(1), consumer.Errors())
}

func TestConsumer_Close(t *testing.T) {
	mc := &mockConsumer{}
	wrapReceiver(mc, "").Close()
	assert.True(t, mc.closed)
}
