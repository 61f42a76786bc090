package xrecovery

import (
	"context"
	"time"
)

// Sleeper 可取消的等待
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep 基于 time.Timer 的默认 Sleeper，ctx 取消时返回 ctx.Err()。
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s Sleeper) orDefault() Sleeper {
	if s == nil {
		return Sleep
	}
	return s
}

// expDelay 返回 min(base·2^n, limit)
func expDelay(base, limit time.Duration, n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := base
	for range n {
		if d >= limit {
			return limit
		}
		d *= 2
	}
	return min(d, limit)
}

type attemptKey struct{}

// WithAttempt 在 ctx 中写入重试标记，供下游识别这是第几次恢复重调。
func WithAttempt(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, attemptKey{}, n)
}

// AttemptMarker 读取 ctx 中的重试标记，未设置时为 0。
func AttemptMarker(ctx context.Context) int {
	n, _ := ctx.Value(attemptKey{}).(int)
	return n
}
