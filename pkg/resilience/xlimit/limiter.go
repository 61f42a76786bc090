package xlimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xresilience/pkg/observability/xlog"
)

// DefaultKeyPrefix 默认 Redis key 前缀
const DefaultKeyPrefix = "xresilience:ratelimit:"

var (
	// ErrNilClient Redis 客户端为空
	ErrNilClient = errors.New("xlimit: redis client is nil")

	// ErrEmptyKey 限流 key 为空
	ErrEmptyKey = errors.New("xlimit: key must not be empty")

	// ErrInvalidLimit 速率或突发量不合法
	ErrInvalidLimit = errors.New("xlimit: rate and burst must be positive")

	// ErrLimited 请求被限流（仅 FallbackClose 降级时返回）
	ErrLimited = errors.New("xlimit: rate limited")
)

// Limit 限流规则：每 Period 允许 Rate 次，最多累积 Burst 次。
type Limit struct {
	Rate   int
	Burst  int
	Period time.Duration
}

// PerSecond 每秒 n 次，突发量等于 n。
func PerSecond(n int) Limit {
	return Limit{Rate: n, Burst: n, Period: time.Second}
}

// PerMinute 每分钟 n 次，突发量等于 n。
func PerMinute(n int) Limit {
	return Limit{Rate: n, Burst: n, Period: time.Minute}
}

// Validate 检查规则
func (l Limit) Validate() error {
	if l.Rate <= 0 || l.Burst <= 0 || l.Period <= 0 {
		return fmt.Errorf("%w: rate=%d burst=%d period=%s", ErrInvalidLimit, l.Rate, l.Burst, l.Period)
	}
	return nil
}

// Fallback Redis 不可用时的降级策略
type Fallback string

const (
	// FallbackOpen 放行
	FallbackOpen Fallback = "open"
	// FallbackClose 拒绝，Allow 返回 ErrLimited
	FallbackClose Fallback = "close"
)

// Result 单次限流判定结果
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	// Degraded 为 true 表示 Redis 不可用，结果来自降级策略
	Degraded bool
}

// Stats 限流统计
type Stats struct {
	Allowed  int64 `json:"allowed"`
	Limited  int64 `json:"limited"`
	Degraded int64 `json:"degraded"`
}

// Limiter 分布式限流器，并发安全。
type Limiter struct {
	rl       *redis_rate.Limiter
	limit    Limit
	prefix   string
	fallback Fallback
	logger   xlog.Logger

	allowed  atomic.Int64
	limited  atomic.Int64
	degraded atomic.Int64
}

// Option 限流器选项
type Option func(*Limiter)

// WithKeyPrefix 设置 key 前缀
func WithKeyPrefix(prefix string) Option {
	return func(l *Limiter) {
		l.prefix = prefix
	}
}

// WithFallback 设置降级策略
func WithFallback(f Fallback) Option {
	return func(l *Limiter) {
		if f == FallbackOpen || f == FallbackClose {
			l.fallback = f
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger xlog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New 创建限流器
func New(rdb redis.UniversalClient, limit Limit, opts ...Option) (*Limiter, error) {
	if rdb == nil {
		return nil, ErrNilClient
	}
	if err := limit.Validate(); err != nil {
		return nil, err
	}
	l := &Limiter{
		rl:       redis_rate.NewLimiter(rdb),
		limit:    limit,
		prefix:   DefaultKeyPrefix,
		fallback: FallbackOpen,
		logger:   xlog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Allow 消耗一个配额
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN 消耗 n 个配额。Redis 出错时按降级策略返回，Degraded 置为 true。
func (l *Limiter) AllowN(ctx context.Context, key string, n int) (Result, error) {
	if strings.TrimSpace(key) == "" {
		return Result{}, ErrEmptyKey
	}
	res, err := l.rl.AllowN(ctx, l.prefix+key, redis_rate.Limit{
		Rate:   l.limit.Rate,
		Burst:  l.limit.Burst,
		Period: l.limit.Period,
	}, n)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return l.degrade(ctx, key, err)
	}

	r := Result{Allowed: res.Allowed >= n, Remaining: res.Remaining, RetryAfter: res.RetryAfter}
	if r.Allowed {
		l.allowed.Add(1)
	} else {
		l.limited.Add(1)
	}
	return r, nil
}

func (l *Limiter) degrade(ctx context.Context, key string, err error) (Result, error) {
	l.degraded.Add(1)
	l.logger.Warn(ctx, "rate limiter degraded, redis unavailable",
		slog.String("key", key),
		slog.String("fallback", string(l.fallback)),
		xlog.Err(err),
	)
	if l.fallback == FallbackClose {
		return Result{Degraded: true}, fmt.Errorf("%w: %w", ErrLimited, err)
	}
	return Result{Allowed: true, Degraded: true}, nil
}

// Reset 清除 key 的计数
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return l.rl.Reset(ctx, l.prefix+key)
}

// Limit 返回限流规则
func (l *Limiter) Limit() Limit { return l.limit }

// Stats 返回统计快照
func (l *Limiter) Stats() Stats {
	return Stats{
		Allowed:  l.allowed.Load(),
		Limited:  l.limited.Load(),
		Degraded: l.degraded.Load(),
	}
}

// Wait 阻塞直到 key 获得一个配额或 ctx 结束。
func Wait(ctx context.Context, l *Limiter, key string) error {
	for {
		r, err := l.Allow(ctx, key)
		if err != nil {
			return err
		}
		if r.Allowed {
			return nil
		}
		delay := r.RetryAfter
		if delay <= 0 {
			delay = l.limit.Period / time.Duration(l.limit.Rate)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
