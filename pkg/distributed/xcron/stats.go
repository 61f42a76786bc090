package xcron

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats 任务执行统计快照
type Stats struct {
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	Skipped   int64         `json:"skipped"`
	LastRun   time.Time     `json:"last_run,omitzero"`
	LastTook  time.Duration `json:"last_took"`
	LastError string        `json:"last_error,omitempty"`
}

// counters 并发安全的统计累加器
type counters struct {
	runs     atomic.Int64
	failures atomic.Int64
	skipped  atomic.Int64

	mu       sync.Mutex
	lastRun  time.Time
	lastTook time.Duration
	lastErr  error
}

func (c *counters) record(start time.Time, took time.Duration, err error) {
	c.runs.Add(1)
	if err != nil {
		c.failures.Add(1)
	}
	c.mu.Lock()
	c.lastRun, c.lastTook, c.lastErr = start, took, err
	c.mu.Unlock()
}

func (c *counters) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Runs:     c.runs.Load(),
		Failures: c.failures.Load(),
		Skipped:  c.skipped.Load(),
		LastRun:  c.lastRun,
		LastTook: c.lastTook,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}
