package xresilience

import (
	"context"
	"sync"
	"time"

	"github.com/omeyang/xresilience/pkg/observability/xmetrics"
	"github.com/omeyang/xresilience/pkg/resilience/xbreaker"
	"github.com/omeyang/xresilience/pkg/resilience/xclassify"
	"github.com/omeyang/xresilience/pkg/resilience/xretry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingSleeper 记录等待时长但不真正等待
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

type opResult struct {
	operation, category string
	success             bool
}

type fakeRecorder struct {
	xmetrics.NoopRecorder

	mu           sync.Mutex
	opened       []string
	finished     []opResult
	recoveries   int
	escalated    int
	deadLettered int
}

func (r *fakeRecorder) CircuitBreakerOpened(_ context.Context, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, key)
}

func (r *fakeRecorder) OperationFinished(_ context.Context, op, category string, success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, opResult{op, category, success})
}

func (r *fakeRecorder) RecoveryAttempted(context.Context, string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recoveries++
}

func (r *fakeRecorder) Escalated(_ context.Context, _ string, deadLettered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if deadLettered {
		r.deadLettered++
	} else {
		r.escalated++
	}
}

func (r *fakeRecorder) Finished() []opResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]opResult(nil), r.finished...)
}

// fastConfig 所有类别 1ms 退避、无下限，测试不必真正等待。
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry.MaxRetries = 2
	cfg.Retry.Floor = 0
	for _, c := range xclassify.Categories() {
		cfg.Retry.Curves[c.String()] = xretry.Curve{Base: time.Millisecond, Max: time.Millisecond, Multiplier: 1}
	}
	cfg.Breaker.Default = xbreaker.Settings{FailureThreshold: 3, Timeout: time.Minute}
	return cfg
}

// failingCall 前 n 次返回 err，之后返回 value；n < 0 表示永远失败。
type failingCall struct {
	mu    sync.Mutex
	n     int
	err   error
	value any
	calls int
}

func (f *failingCall) Call(context.Context) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.n < 0 || f.calls <= f.n {
		return nil, f.err
	}
	return f.value, nil
}

func (f *failingCall) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
