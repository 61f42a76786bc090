package xbreaker

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Snapshot 某个操作键的熔断状态快照
type Snapshot struct {
	OperationKey           string    `json:"operationKey"`
	State                  State     `json:"-"`
	Status                 string    `json:"status"`
	ConsecutiveFailures    int       `json:"consecutiveFailures"`
	OpenedAt               time.Time `json:"openedAt,omitzero"`
	HalfOpenProbesInFlight int       `json:"halfOpenProbesInFlight"`
}

// StateChangeFunc 状态变更回调。
// 在 gobreaker 内部锁内同步调用，回调中不得再访问同一操作键的熔断器。
type StateChangeFunc func(key string, from, to State)

// RegistryOption 注册表配置选项
type RegistryOption func(*Registry)

// WithDefaultSettings 设置未单独配置的操作键所用的默认配置。
// 零值字段由 DefaultSettings 补齐。
func WithDefaultSettings(s Settings) RegistryOption {
	return func(r *Registry) {
		r.defaults = s.Merge(DefaultSettings())
	}
}

// WithOperationSettings 为指定操作键设置配置，零值字段由默认配置补齐。
func WithOperationSettings(key string, s Settings) RegistryOption {
	return func(r *Registry) {
		r.overrides[key] = s
	}
}

// WithOnStateChange 设置状态变更回调，nil 被忽略。
func WithOnStateChange(fn StateChangeFunc) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.onStateChange = fn
		}
	}
}

// Registry 按操作键管理熔断器，每个键背后是一个 gobreaker.TwoStepCircuitBreaker。
//
// 设计决策: 放行检查与探测名额预占由 gobreaker 在同一把锁内完成；
// Registry 只负责按键创建、按策略换算 Settings，以及 Reset 和半开提前闭合时整体替换实例。
type Registry struct {
	mu        sync.RWMutex
	circuits  map[string]*circuit
	defaults  Settings
	overrides map[string]Settings

	onStateChange StateChangeFunc
}

// NewRegistry 创建熔断注册表
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		circuits:  make(map[string]*circuit),
		defaults:  DefaultSettings(),
		overrides: make(map[string]Settings),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// SettingsFor 返回操作键的生效配置
func (r *Registry) SettingsFor(key string) Settings {
	s := r.defaults
	if o, ok := r.overrides[key]; ok {
		s = o.Merge(r.defaults)
	}
	if st, err := ParseStrategy(string(s.Strategy)); err == nil {
		s.Strategy = st
	} else {
		s.Strategy = StrategyGradual
	}
	return s
}

type twoStep = gobreaker.TwoStepCircuitBreaker[any]

// errReleased 归还名额时上报给 gobreaker 的结果，经 IsExcluded 排除在计数之外
var errReleased = errors.New("xbreaker: slot released")

// circuit 单个操作键。failures 与 openedAt 只用于快照，状态判定全部在 gobreaker 内。
type circuit struct {
	key      string
	settings Settings
	registry *Registry

	cb       atomic.Pointer[twoStep]
	failures atomic.Int64
	openedAt atomic.Int64 // UnixNano，0 表示未打开
}

func (r *Registry) get(key string) *circuit {
	r.mu.RLock()
	c, ok := r.circuits[key]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.circuits[key]; ok {
		return c
	}
	c = &circuit{key: key, settings: r.SettingsFor(key), registry: r}
	c.cb.Store(c.newBreaker())
	r.circuits[key] = c
	return c
}

// newBreaker 按策略换算 gobreaker 配置：探测名额即 MaxRequests，
// cautious 的打开时长已在 OpenTimeout 中放大。
func (c *circuit) newBreaker() *twoStep {
	var cb *twoStep
	threshold := uint32(c.settings.FailureThreshold)
	cb = gobreaker.NewTwoStepCircuitBreaker[any](gobreaker.Settings{
		Name:        c.key,
		MaxRequests: uint32(c.settings.ProbeQuota()),
		Timeout:     c.settings.OpenTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsExcluded: func(err error) bool { return errors.Is(err, errReleased) },
		OnStateChange: func(_ string, from, to State) {
			// 被 Reset 替换掉的旧实例仍可能收到迟到的结果，忽略它的状态变化
			if c.cb.Load() != cb {
				return
			}
			c.transitioned(from, to)
		},
	})
	return cb
}

func (c *circuit) transitioned(from, to State) {
	switch to {
	case StateOpen:
		c.openedAt.Store(time.Now().UnixNano())
	case StateClosed:
		c.failures.Store(0)
		c.openedAt.Store(0)
	}
	if fn := c.registry.onStateChange; fn != nil && from != to {
		fn(c.key, from, to)
	}
}

// replace 用一个全新的 CLOSED 实例替换 old，old 上未完成的凭证随之作废。
func (c *circuit) replace(old *twoStep) bool {
	if !c.cb.CompareAndSwap(old, c.newBreaker()) {
		return false
	}
	c.transitioned(old.State(), StateClosed)
	return true
}

// Permit 一次放行凭证。Done 或 Release 只有第一次调用生效，nil 凭证的方法为空操作。
type Permit struct {
	c    *circuit
	cb   *twoStep
	done func(error)
	used atomic.Bool
}

// Done 报告调用结果，err 为 nil 计为成功。
//
// CLOSED：成功清零连续失败，失败累加并在达到阈值时打开。
// HALF_OPEN：一次成功即闭合（immediate 策略下其余探测的结果随之作废），任一失败重新打开。
func (p *Permit) Done(err error) {
	if p == nil || !p.used.CompareAndSwap(false, true) {
		return
	}
	if err != nil {
		if p.c.cb.Load() == p.cb {
			p.c.failures.Add(1)
		}
		p.done(err)
		return
	}
	p.done(nil)
	if p.c.cb.Load() != p.cb {
		return
	}
	switch p.cb.State() {
	case StateClosed:
		p.c.failures.Store(0)
	case StateHalfOpen:
		// 名额大于 1 时 gobreaker 要求连续成功数达到名额才闭合，这里提前闭合
		p.c.replace(p.cb)
	}
}

// Release 归还未使用的探测名额，不计成功或失败。用于调用方在拿到凭证后被取消的情况。
func (p *Permit) Release() {
	if p == nil || !p.used.CompareAndSwap(false, true) {
		return
	}
	p.done(errReleased)
}

// Guard 申请放行凭证。
//
// OPEN 且未超时、或 HALF_OPEN 且探测名额用尽时返回 *BreakerError。
// OPEN 已超时则转入 HALF_OPEN 并预占一个探测名额。
// 拿到凭证的调用方必须随后调用 Done 或 Release 之一。
func (r *Registry) Guard(key string) (*Permit, error) {
	c := r.get(key)
	cb := c.cb.Load()
	done, err := cb.Allow()
	if err != nil {
		return nil, rejection(key, err)
	}
	return &Permit{c: c, cb: cb, done: done}, nil
}

// Allow 与 Guard 相同，以 bool 表示是否放行。
func (r *Registry) Allow(key string) (*Permit, bool) {
	p, err := r.Guard(key)
	return p, err == nil
}

// Reset 将操作键恢复到 CLOSED 初始状态
func (r *Registry) Reset(key string) {
	c := r.get(key)
	for {
		if c.replace(c.cb.Load()) {
			return
		}
	}
}

// Snapshot 返回操作键的状态快照。未使用过的键返回 CLOSED 初始状态。
func (r *Registry) Snapshot(key string) Snapshot {
	r.mu.RLock()
	c, ok := r.circuits[key]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{OperationKey: key, State: StateClosed, Status: StateClosed.String()}
	}
	return c.snapshot()
}

// Snapshots 返回所有已使用操作键的快照，按键排序。
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	circuits := make([]*circuit, 0, len(r.circuits))
	for _, c := range r.circuits {
		circuits = append(circuits, c)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(circuits))
	for _, c := range circuits {
		out = append(out, c.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OperationKey < out[j].OperationKey })
	return out
}

func (c *circuit) snapshot() Snapshot {
	cb := c.cb.Load()
	state := cb.State()
	s := Snapshot{
		OperationKey:        c.key,
		State:               state,
		Status:              state.String(),
		ConsecutiveFailures: int(c.failures.Load()),
	}
	if ns := c.openedAt.Load(); ns != 0 {
		s.OpenedAt = time.Unix(0, ns)
	}
	if state == StateHalfOpen {
		n := cb.Counts()
		settled := n.TotalSuccesses + n.TotalFailures + n.TotalExclusions
		if n.Requests > settled {
			s.HalfOpenProbesInFlight = int(n.Requests - settled)
		}
	}
	return s
}
