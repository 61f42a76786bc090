package xkafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omeyang/xresilience/internal/mqcore"
	"github.com/omeyang/xresilience/pkg/resilience/xclassify"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testMessage() *xescalate.Message {
	return &xescalate.Message{Attempt: xescalate.Attempt{
		ID:                "msg-1",
		RecoveryType:      "network-wait",
		OriginalOperation: "data-retrieval",
		RetryCount:        1,
		LastAttempt:       t0,
		Category:          xclassify.Network,
		Error:             "connection reset by peer",
	}}
}

func TestTopicNames(t *testing.T) {
	assert.Equal(t, "orders.retry", DefaultRetryTopic("orders"))
	assert.Equal(t, "orders.dlq", DefaultDLQTopic("orders"))
}

func TestNewQueue_Validates(t *testing.T) {
	_, err := NewQueue(nil, "t")
	assert.ErrorIs(t, err, ErrNilClient)
	_, err = NewQueue(&recordingSender{}, "")
	assert.ErrorIs(t, err, ErrEmptyTopic)

	_, err = NewDeadLetterSink(nil, "t")
	assert.ErrorIs(t, err, ErrNilClient)
	_, err = NewDeadLetterSink(&recordingSender{}, "")
	assert.ErrorIs(t, err, ErrEmptyTopic)
}

func TestQueue_Enqueue(t *testing.T) {
	sender := &recordingSender{}
	queue, err := NewQueue(sender, "orders.retry", WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)
	assert.Equal(t, "orders.retry", queue.Topic())

	require.NoError(t, queue.Enqueue(context.Background(), testMessage(), 120*time.Second))

	require.Len(t, sender.sent, 1)
	sent := sender.sent[0]
	assert.Equal(t, "orders.retry", sent.topic)
	assert.Equal(t, []byte("msg-1"), sent.key)
	assert.Equal(t, "1", sent.headers[mqcore.HeaderRetryCount])

	deliverAt, err := mqcore.DeliverAt(sent.headers)
	require.NoError(t, err)
	assert.True(t, deliverAt.Equal(t0.Add(120*time.Second)))

	decoded, err := xescalate.Decode(sent.value)
	require.NoError(t, err)
	assert.Equal(t, xclassify.Network, decoded.Category)
	assert.Equal(t, "data-retrieval", decoded.OriginalOperation)
}

func TestQueue_EnqueueErrors(t *testing.T) {
	queue, err := NewQueue(&recordingSender{}, "t")
	require.NoError(t, err)
	assert.ErrorIs(t, queue.Enqueue(context.Background(), &xescalate.Message{}, time.Second), xescalate.ErrInvalidMessage)

	down := errors.New("down")
	queue, err = NewQueue(&recordingSender{err: down}, "t")
	require.NoError(t, err)
	assert.ErrorIs(t, queue.Enqueue(context.Background(), testMessage(), time.Second), down)
}

func TestDeadLetterSink(t *testing.T) {
	sender := &recordingSender{}
	sink, err := NewDeadLetterSink(sender, "orders.dlq")
	require.NoError(t, err)

	dl := &xescalate.DeadLetter{Message: *testMessage(), DeadLetteredAt: t0, Reason: "max retries exceeded"}
	require.NoError(t, sink.DeadLetter(context.Background(), dl))

	require.Len(t, sender.sent, 1)
	sent := sender.sent[0]
	assert.Equal(t, "orders.dlq", sent.topic)
	assert.Equal(t, "max retries exceeded", sent.headers[mqcore.HeaderReason])
	assert.NotContains(t, sent.headers, mqcore.HeaderDeliverAt)

	decoded, err := xescalate.DecodeDeadLetter(sent.value)
	require.NoError(t, err)
	assert.True(t, decoded.DeadLetteredAt.Equal(t0))

	assert.ErrorIs(t, sink.DeadLetter(context.Background(), nil), xescalate.ErrInvalidMessage)
}
