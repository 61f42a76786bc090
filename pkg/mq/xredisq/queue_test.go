package xredisq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
)

func TestNewQueue_Validation(t *testing.T) {
	_, client := setupRedis(t)

	_, err := NewQueue(nil, "k")
	assert.ErrorIs(t, err, ErrNilClient)

	_, err = NewQueue(client, "  ")
	assert.ErrorIs(t, err, ErrEmptyKey)

	q, err := NewQueue(client, "k")
	require.NoError(t, err)
	assert.Equal(t, "k", q.Key())
	assert.Equal(t, client, q.Client())
}

func TestQueue_EnqueueScoresByDeliverAt(t *testing.T) {
	mr, client := setupRedis(t)
	clock := newManualClock()
	q := newQueue(t, client, clock)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testMessage("msg-1"), 2*time.Minute))

	members, err := mr.ZMembers(q.Key())
	require.NoError(t, err)
	require.Len(t, members, 1)

	score, err := mr.ZScore(q.Key(), members[0])
	require.NoError(t, err)
	assert.Equal(t, float64(t0.Add(2*time.Minute).UnixMilli()), score)

	msg, err := xescalate.Decode([]byte(members[0]))
	require.NoError(t, err)
	assert.Equal(t, "msg-1", msg.ID)
}

func TestQueue_EnqueueNil(t *testing.T) {
	_, client := setupRedis(t)
	q := newQueue(t, client, newManualClock())
	assert.ErrorIs(t, q.Enqueue(context.Background(), nil, 0), ErrNilMessage)
}

func TestQueue_EnqueueInvalidMessage(t *testing.T) {
	_, client := setupRedis(t)
	q := newQueue(t, client, newManualClock())
	err := q.Enqueue(context.Background(), &xescalate.Message{}, 0)
	assert.ErrorIs(t, err, xescalate.ErrInvalidMessage)
}

func TestQueue_PopDue(t *testing.T) {
	_, client := setupRedis(t)
	clock := newManualClock()
	q := newQueue(t, client, clock)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testMessage("late"), 10*time.Second))
	require.NoError(t, q.Enqueue(ctx, testMessage("early"), 2*time.Second))
	require.NoError(t, q.Enqueue(ctx, testMessage("now"), 0))

	due, err := q.PopDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	msg, err := xescalate.Decode(due[0])
	require.NoError(t, err)
	assert.Equal(t, "now", msg.ID)

	clock.Advance(time.Minute)
	due, err = q.PopDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	first, err := xescalate.Decode(due[0])
	require.NoError(t, err)
	assert.Equal(t, "early", first.ID)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueue_PopDueRespectsLimit(t *testing.T) {
	_, client := setupRedis(t)
	q := newQueue(t, client, newManualClock())
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, testMessage(id), 0))
	}

	due, err := q.PopDue(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, due, 2)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestQueue_PopDueEmpty(t *testing.T) {
	_, client := setupRedis(t)
	q := newQueue(t, client, newManualClock())

	due, err := q.PopDue(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestQueue_RedisDown(t *testing.T) {
	mr, client := setupRedis(t)
	q := newQueue(t, client, newManualClock())
	mr.Close()

	ctx := context.Background()
	assert.Error(t, q.Enqueue(ctx, testMessage("x"), 0))
	_, err := q.PopDue(ctx, 1)
	assert.Error(t, err)
}
