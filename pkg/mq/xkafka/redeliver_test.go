package xkafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/omeyang/xresilience/internal/mqcore"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
	"github.com/omeyang/xresilience/pkg/resilience/xrecovery"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReplayer struct {
	mu       sync.Mutex
	replayed []*xescalate.Message
	err      error
}

func (r *recordingReplayer) Replay(_ context.Context, msg *xescalate.Message, _ xrecovery.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replayed = append(r.replayed, msg)
	return r.err
}

func newRedeliverer(replayer xescalate.Replayer) *xescalate.Redeliverer {
	table := xescalate.NewOperationTable()
	table.Register("data-retrieval", func(context.Context) (any, error) { return "ok", nil })
	return xescalate.NewRedeliverer(table, replayer, nil, nil)
}

func retryMessage(t *testing.T, deliverAt time.Time) *kafka.Message {
	t.Helper()
	payload, err := xescalate.Encode(testMessage())
	require.NoError(t, err)

	msg := &kafka.Message{Value: payload}
	for k, v := range mqcore.EscalationHeaders(testMessage(), deliverAt) {
		setHeader(msg, k, v)
	}
	return msg
}

func TestRedeliverHandler_Due(t *testing.T) {
	replayer := &recordingReplayer{}
	handler := RedeliverHandler(newRedeliverer(replayer), WithRedeliverClock(func() time.Time { return t0 }))

	require.NoError(t, handler(context.Background(), retryMessage(t, t0.Add(-time.Second))))

	require.Len(t, replayer.replayed, 1)
	assert.Equal(t, "msg-1", replayer.replayed[0].ID)
	assert.Equal(t, 1, replayer.replayed[0].RetryCount)
}

func TestRedeliverHandler_WaitsShortDelay(t *testing.T) {
	replayer := &recordingReplayer{}
	handler := RedeliverHandler(newRedeliverer(replayer))

	start := time.Now()
	require.NoError(t, handler(context.Background(), retryMessage(t, start.Add(20*time.Millisecond))))

	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	assert.Len(t, replayer.replayed, 1)
}

func TestRedeliverHandler_NotDue(t *testing.T) {
	replayer := &recordingReplayer{}
	handler := RedeliverHandler(newRedeliverer(replayer),
		WithMaxWait(5*time.Millisecond),
		WithRedeliverClock(func() time.Time { return t0 }),
	)

	err := handler(context.Background(), retryMessage(t, t0.Add(time.Minute)))

	assert.ErrorIs(t, err, ErrNotDue)
	assert.Empty(t, replayer.replayed)
}

func TestRedeliverHandler_CanceledWhileWaiting(t *testing.T) {
	handler := RedeliverHandler(newRedeliverer(&recordingReplayer{}),
		WithRedeliverClock(func() time.Time { return t0 }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := handler(ctx, retryMessage(t, t0.Add(10*time.Second)))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedeliverHandler_SkipsUndecodable(t *testing.T) {
	replayer := &recordingReplayer{}
	handler := RedeliverHandler(newRedeliverer(replayer))

	assert.NoError(t, handler(context.Background(), &kafka.Message{Value: []byte("{not json")}))
	assert.Empty(t, replayer.replayed)
	assert.ErrorIs(t, handler(context.Background(), nil), ErrNilMessage)
}

func TestRedeliverHandler_MalformedDeliverAtIsDue(t *testing.T) {
	replayer := &recordingReplayer{}
	handler := RedeliverHandler(newRedeliverer(replayer))

	msg := retryMessage(t, time.Time{})
	setHeader(msg, mqcore.HeaderDeliverAt, "later")

	require.NoError(t, handler(context.Background(), msg))
	assert.Len(t, replayer.replayed, 1)
}

func TestRedeliverHandler_DeliverErrorPropagates(t *testing.T) {
	replayer := &recordingReplayer{err: xescalate.ErrDeliver}
	handler := RedeliverHandler(newRedeliverer(replayer))

	err := handler(context.Background(), retryMessage(t, time.Time{}))
	assert.ErrorIs(t, err, xescalate.ErrDeliver)
}
