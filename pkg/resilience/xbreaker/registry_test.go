package xbreaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortTimeout 打开时长；gobreaker 使用真实时间，测试以短超时加等待推进状态
const shortTimeout = 40 * time.Millisecond

var errBoom = errors.New("boom")

func newTestRegistry(s Settings, opts ...RegistryOption) *Registry {
	return NewRegistry(append([]RegistryOption{WithDefaultSettings(s)}, opts...)...)
}

// fail 申请凭证并报告一次失败
func fail(t *testing.T, r *Registry, key string) {
	t.Helper()
	p, err := r.Guard(key)
	require.NoError(t, err)
	p.Done(errBoom)
}

func succeed(t *testing.T, r *Registry, key string) {
	t.Helper()
	p, err := r.Guard(key)
	require.NoError(t, err)
	p.Done(nil)
}

func waitOpenTimeout(d time.Duration) { time.Sleep(d + d/2) }

func TestRegistry_OpensOnThresholdWithSingleHalfOpenSlot(t *testing.T) {
	r := newTestRegistry(Settings{FailureThreshold: 3, Timeout: shortTimeout, Strategy: StrategyGradual})
	const key = "model-inference"

	for i := 0; i < 2; i++ {
		fail(t, r, key)
		assert.Equal(t, StateClosed, r.Snapshot(key).State, "failure %d", i+1)
	}

	before := time.Now()
	fail(t, r, key)
	snap := r.Snapshot(key)
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, 3, snap.ConsecutiveFailures)
	assert.False(t, snap.OpenedAt.Before(before))

	// 超时前全部拒绝
	_, ok := r.Allow(key)
	assert.False(t, ok)
	_, err := r.Guard(key)
	assert.True(t, IsOpen(err))

	// 超时后恰好放行一个探测
	waitOpenTimeout(shortTimeout)
	trial, ok := r.Allow(key)
	require.True(t, ok)
	assert.Equal(t, StateHalfOpen, r.Snapshot(key).State)
	assert.Equal(t, 1, r.Snapshot(key).HalfOpenProbesInFlight)
	_, ok = r.Allow(key)
	assert.False(t, ok)
	_, err = r.Guard(key)
	assert.True(t, IsTooManyRequests(err))

	var be *BreakerError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, StateHalfOpen, be.State)
	trial.Release()
}

func TestRegistry_HalfOpenSuccessCloses(t *testing.T) {
	r := newTestRegistry(Settings{FailureThreshold: 1, Timeout: shortTimeout})
	const key = "data-retrieval"

	fail(t, r, key)
	waitOpenTimeout(shortTimeout)
	succeed(t, r, key)

	snap := r.Snapshot(key)
	assert.Equal(t, StateClosed, snap.State)
	assert.Zero(t, snap.ConsecutiveFailures)
	assert.Zero(t, snap.HalfOpenProbesInFlight)
	assert.True(t, snap.OpenedAt.IsZero())
}

func TestRegistry_HalfOpenFailureReopens(t *testing.T) {
	r := newTestRegistry(Settings{FailureThreshold: 1, Timeout: shortTimeout})
	const key = "data-retrieval"

	fail(t, r, key)
	firstOpened := r.Snapshot(key).OpenedAt

	waitOpenTimeout(shortTimeout)
	fail(t, r, key)

	snap := r.Snapshot(key)
	assert.Equal(t, StateOpen, snap.State)
	assert.True(t, snap.OpenedAt.After(firstOpened))
	_, ok := r.Allow(key)
	assert.False(t, ok)
}

func TestRegistry_SuccessResetsCounterWhenClosed(t *testing.T) {
	r := newTestRegistry(Settings{FailureThreshold: 3, Timeout: time.Minute})

	fail(t, r, "k")
	fail(t, r, "k")
	succeed(t, r, "k")
	fail(t, r, "k")
	fail(t, r, "k")
	assert.Equal(t, StateClosed, r.Snapshot("k").State)
	assert.Equal(t, 2, r.Snapshot("k").ConsecutiveFailures)
}

func TestRegistry_Strategies(t *testing.T) {
	t.Run("immediate grants full quota and closes on one success", func(t *testing.T) {
		r := newTestRegistry(Settings{
			FailureThreshold: 1, Timeout: shortTimeout,
			HalfOpenTestRequests: 3, Strategy: StrategyImmediate,
		})
		fail(t, r, "k")
		waitOpenTimeout(shortTimeout)

		var trials []*Permit
		for range 3 {
			p, ok := r.Allow("k")
			require.True(t, ok)
			trials = append(trials, p)
		}
		_, ok := r.Allow("k")
		assert.False(t, ok)
		assert.Equal(t, 3, r.Snapshot("k").HalfOpenProbesInFlight)

		trials[0].Done(nil)
		assert.Equal(t, StateClosed, r.Snapshot("k").State)

		// 闭合后其余探测的迟到失败不再影响新实例
		trials[1].Done(errBoom)
		trials[2].Done(errBoom)
		assert.Equal(t, StateClosed, r.Snapshot("k").State)
		assert.Zero(t, r.Snapshot("k").ConsecutiveFailures)
	})

	t.Run("cautious stretches timeout", func(t *testing.T) {
		r := newTestRegistry(Settings{
			FailureThreshold: 1, Timeout: shortTimeout,
			HalfOpenTestRequests: 3, Strategy: StrategyCautious, CautiousMultiplier: 3,
		})
		fail(t, r, "k")

		waitOpenTimeout(shortTimeout)
		_, ok := r.Allow("k")
		assert.False(t, ok, "still open after the base timeout")

		time.Sleep(3 * shortTimeout)
		p, ok := r.Allow("k")
		require.True(t, ok)
		_, ok = r.Allow("k")
		assert.False(t, ok, "cautious only grants one trial")
		p.Release()
	})
}

func TestRegistry_PerKeyIsolation(t *testing.T) {
	r := newTestRegistry(Settings{FailureThreshold: 2, Timeout: time.Minute},
		WithOperationSettings("fragile", Settings{FailureThreshold: 1}))

	fail(t, r, "fragile")
	fail(t, r, "sturdy")

	assert.Equal(t, StateOpen, r.Snapshot("fragile").State)
	assert.Equal(t, StateClosed, r.Snapshot("sturdy").State)
	assert.Equal(t, time.Minute, r.SettingsFor("fragile").Timeout)
}

func TestRegistry_Release(t *testing.T) {
	r := newTestRegistry(Settings{FailureThreshold: 1, Timeout: shortTimeout})

	fail(t, r, "k")
	waitOpenTimeout(shortTimeout)
	p, ok := r.Allow("k")
	require.True(t, ok)
	_, ok = r.Allow("k")
	require.False(t, ok)

	p.Release()
	p.Done(errBoom) // 已归还的凭证不再计入结果
	assert.Equal(t, StateHalfOpen, r.Snapshot("k").State)
	assert.Zero(t, r.Snapshot("k").HalfOpenProbesInFlight)

	p, ok = r.Allow("k")
	assert.True(t, ok)
	p.Release()
}

func TestRegistry_ConcurrentHalfOpenIsExclusive(t *testing.T) {
	r := newTestRegistry(Settings{FailureThreshold: 1, Timeout: shortTimeout})
	fail(t, r, "k")
	waitOpenTimeout(shortTimeout)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Allow("k"); ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), granted.Load())
}

func TestRegistry_OnStateChange(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
	)
	r := newTestRegistry(Settings{FailureThreshold: 1, Timeout: shortTimeout},
		WithOnStateChange(func(key string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, key+":"+from.String()+"->"+to.String())
		}))

	fail(t, r, "k")
	waitOpenTimeout(shortTimeout)
	succeed(t, r, "k")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"k:closed->open",
		"k:open->half-open",
		"k:half-open->closed",
	}, transitions)
}

func TestRegistry_ResetAndSnapshots(t *testing.T) {
	r := newTestRegistry(Settings{FailureThreshold: 1, Timeout: time.Hour})

	assert.Empty(t, r.Snapshots())
	assert.Equal(t, "closed", r.Snapshot("unused").Status)

	fail(t, r, "b")
	succeed(t, r, "a")
	snaps := r.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "a", snaps[0].OperationKey)
	assert.Equal(t, "open", snaps[1].Status)
	assert.False(t, snaps[1].OpenedAt.IsZero())

	r.Reset("b")
	snap := r.Snapshot("b")
	assert.Equal(t, StateClosed, snap.State)
	assert.Zero(t, snap.ConsecutiveFailures)
	assert.True(t, snap.OpenedAt.IsZero())
	succeed(t, r, "b")
}

func TestPermit_NilAndOnce(t *testing.T) {
	var nilPermit *Permit
	assert.NotPanics(t, func() {
		nilPermit.Done(errBoom)
		nilPermit.Release()
	})

	r := newTestRegistry(Settings{FailureThreshold: 2, Timeout: time.Minute})
	p, err := r.Guard("k")
	require.NoError(t, err)
	p.Done(errBoom)
	p.Done(errBoom)
	assert.Equal(t, StateClosed, r.Snapshot("k").State, "a permit reports only once")
	assert.Equal(t, 1, r.Snapshot("k").ConsecutiveFailures)
}

func TestSettings(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())

	bad := DefaultSettings()
	bad.FailureThreshold = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSettings)

	bad = DefaultSettings()
	bad.Strategy = "eventually"
	assert.ErrorIs(t, bad.Validate(), ErrUnknownStrategy)

	st, err := ParseStrategy("immediate_recovery")
	require.NoError(t, err)
	assert.Equal(t, StrategyImmediate, st)

	merged := Settings{FailureThreshold: 2}.Merge(DefaultSettings())
	assert.Equal(t, 2, merged.FailureThreshold)
	assert.Equal(t, DefaultTimeout, merged.Timeout)

	r := NewRegistry(WithOperationSettings("x", Settings{Strategy: "cautious_recovery"}))
	assert.Equal(t, StrategyCautious, r.SettingsFor("x").Strategy)
	assert.Equal(t, 2*DefaultTimeout, r.SettingsFor("x").OpenTimeout())
}

func TestBreakerError(t *testing.T) {
	err := rejection("k", ErrOpenState)
	assert.Equal(t, "breaker k: circuit breaker is open", err.Error())
	assert.Equal(t, StateOpen, err.State)
	assert.False(t, err.Retryable())
	assert.True(t, IsBreakerError(err))

	err = rejection("k", ErrTooManyRequests)
	assert.Equal(t, StateHalfOpen, err.State)
	assert.True(t, IsTooManyRequests(err))
	assert.False(t, IsOpen(err))
}
