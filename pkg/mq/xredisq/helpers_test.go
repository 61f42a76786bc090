package xredisq

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xresilience/pkg/resilience/xclassify"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock { return &manualClock{now: t0} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testMessage(id string) *xescalate.Message {
	return &xescalate.Message{Attempt: xescalate.Attempt{
		ID:                id,
		RecoveryType:      "network-wait",
		OriginalOperation: "data-retrieval",
		RetryCount:        1,
		LastAttempt:       t0,
		Category:          xclassify.Network,
		Error:             "connection reset",
	}}
}

func newQueue(t *testing.T, client redis.UniversalClient, clock *manualClock) *Queue {
	t.Helper()
	q, err := NewQueue(client, "resilience:retry", WithClock(clock.Now))
	require.NoError(t, err)
	return q
}
