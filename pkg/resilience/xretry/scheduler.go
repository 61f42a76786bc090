package xretry

import (
	"fmt"
	"sync"
	"time"

	"github.com/omeyang/xresilience/pkg/resilience/xclassify"
)

// 默认值
const (
	DefaultMaxRetries = 5
	DefaultJitter     = 0.25
	DefaultFloor      = 100 * time.Millisecond

	// credentialRetryLimit 凭证类错误最多重试一次
	credentialRetryLimit = 1
)

// DefaultCurves 返回各类别的默认退避曲线，每次调用返回新 map。
func DefaultCurves() map[xclassify.Category]Curve {
	return map[xclassify.Category]Curve{
		xclassify.Throttling: {Base: 2 * time.Second, Max: 60 * time.Second, Multiplier: 2.0},
		xclassify.Network:    {Base: 1500 * time.Millisecond, Max: 45 * time.Second, Multiplier: 1.5},
		xclassify.Timeout:    {Base: 1 * time.Second, Max: 30 * time.Second, Multiplier: 2.0},
		xclassify.Quota:      {Base: 5 * time.Second, Max: 120 * time.Second, Multiplier: 3.0},
		xclassify.Credential: {Base: 1 * time.Second, Max: 5 * time.Second, Multiplier: 2.0},
		xclassify.Generic:    {Base: 1 * time.Second, Max: 30 * time.Second, Multiplier: 2.0},
	}
}

// SchedulerOption 调度器配置选项
type SchedulerOption func(*Scheduler)

// WithCurve 设置某个类别的退避曲线
func WithCurve(c xclassify.Category, curve Curve) SchedulerOption {
	return func(s *Scheduler) {
		s.curves[c] = curve
	}
}

// WithDefaultMaxRetries 设置未单独配置的操作键的最大重试次数，负数被忽略。
func WithDefaultMaxRetries(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n >= 0 {
			s.defaultMaxRetries = n
		}
	}
}

// WithMaxRetries 设置指定操作键的最大重试次数，负数被忽略。
func WithMaxRetries(key string, n int) SchedulerOption {
	return func(s *Scheduler) {
		if n >= 0 {
			s.maxRetries[key] = n
		}
	}
}

// WithJitter 设置抖动比例（0-1 之间，越界截断）
func WithJitter(j float64) SchedulerOption {
	return func(s *Scheduler) {
		s.jitter = min(max(j, 0), 1)
	}
}

// WithFloor 设置延迟下限，负数被忽略。
func WithFloor(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d >= 0 {
			s.floor = d
		}
	}
}

// WithRandom 设置 [0,1) 随机源，用于确定性测试。nil 被忽略。
func WithRandom(fn func() float64) SchedulerOption {
	return func(s *Scheduler) {
		if fn != nil {
			s.random = fn
		}
	}
}

// Scheduler 重试调度器，构造后只读，并发安全（随机源需自行保证并发安全）。
type Scheduler struct {
	curves            map[xclassify.Category]Curve
	maxRetries        map[string]int
	defaultMaxRetries int
	jitter            float64
	floor             time.Duration
	random            func() float64
}

// NewScheduler 创建调度器
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		curves:            DefaultCurves(),
		maxRetries:        make(map[string]int),
		defaultMaxRetries: DefaultMaxRetries,
		jitter:            DefaultJitter,
		floor:             DefaultFloor,
		random:            RandomFloat64,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Validate 校验所有曲线
func (s *Scheduler) Validate() error {
	for _, c := range xclassify.Categories() {
		if err := s.Curve(c).Validate(); err != nil {
			return fmt.Errorf("curve %s: %w", c, err)
		}
	}
	return nil
}

// Curve 返回类别的退避曲线，未配置的类别使用 Generic 曲线。
func (s *Scheduler) Curve(c xclassify.Category) Curve {
	if curve, ok := s.curves[c]; ok {
		return curve
	}
	return s.curves[xclassify.Generic]
}

// MaxRetries 返回操作键的最大重试次数
func (s *Scheduler) MaxRetries(key string) int {
	if n, ok := s.maxRetries[key]; ok {
		return n
	}
	return s.defaultMaxRetries
}

// NextDelay 计算第 attempt 次重试（从 0 开始）前的等待时长。
// attempt >= MaxRetries(key) 时返回 (0, false)，表示 STOP。
func (s *Scheduler) NextDelay(key string, c xclassify.Category, attempt int) (time.Duration, bool) {
	if attempt >= s.MaxRetries(key) {
		return 0, false
	}
	return s.Curve(c).Jittered(attempt, s.jitter, s.random(), s.floor), true
}

// ShouldRetry 判断该类别在已重试 attempt 次后是否还允许重试。
// 凭证类错误最多重试一次，其他类别的上限由 NextDelay 控制。
func (s *Scheduler) ShouldRetry(c xclassify.Category, attempt int) bool {
	if c == xclassify.Credential {
		return attempt < credentialRetryLimit
	}
	return true
}

// Schedule 返回从第 0 次重试开始的完整延迟序列，供诊断与 CLI 展示。
func (s *Scheduler) Schedule(key string, c xclassify.Category) []time.Duration {
	var out []time.Duration
	for attempt := 0; s.ShouldRetry(c, attempt); attempt++ {
		d, ok := s.NextDelay(key, c, attempt)
		if !ok {
			break
		}
		out = append(out, d)
	}
	return out
}

// RetryHook 每次决定重试时回调。attempt 从 0 开始，delay 是即将等待的时长。
type RetryHook func(attempt int, c xclassify.Category, delay time.Duration, err error)

// Options 将调度器适配为 retry-go 选项，用于驱动 key 的本地重试循环。
//
// classify 为每个失败分类；不可重试的错误（RetryableError.Retryable()==false
// 或 Unrecoverable）立即终止循环。返回的选项一次性使用，不可跨调用复用。
//
// 设计决策: 延迟在 RetryIf 中计算并暂存，DelayType 只读取暂存值，
// 这样 STOP 判定与实际等待使用同一次抽样，也不依赖 retry-go 的 n 计数语义。
func (s *Scheduler) Options(key string, classify func(error) xclassify.Category, hook RetryHook) []Option {
	var (
		mu      sync.Mutex
		retries int
		next    time.Duration
	)
	return []Option{
		Attempts(safeIntToUint(s.MaxRetries(key) + 1)),
		RetryIf(func(err error) bool {
			if !IsRecoverable(err) || !IsRetryable(err) {
				return false
			}
			c := classify(err)

			mu.Lock()
			defer mu.Unlock()
			if !s.ShouldRetry(c, retries) {
				return false
			}
			d, ok := s.NextDelay(key, c, retries)
			if !ok {
				return false
			}
			if hook != nil {
				hook(retries, c, d, err)
			}
			next = d
			retries++
			return true
		}),
		DelayType(func(_ uint, _ error, _ DelayContext) time.Duration {
			mu.Lock()
			defer mu.Unlock()
			return next
		}),
		LastErrorOnly(true),
	}
}
