package xresilience

import (
	"sort"
	"sync"
	"time"
)

// 限流追踪参数
const (
	throttleMaxMultiplier = 16
	throttleWindow        = time.Minute
	throttleStep          = 5 * time.Second
	throttleMaxWait       = 30 * time.Second
)

// ThrottleSnapshot 某个操作键的限流状态
type ThrottleSnapshot struct {
	OperationKey string    `json:"operationKey"`
	Count        int       `json:"count"`
	Multiplier   int       `json:"multiplier"`
	First        time.Time `json:"firstOccurrence"`
	Last         time.Time `json:"lastOccurrence"`
	Until        time.Time `json:"until"`
}

type throttleState struct {
	count      int
	multiplier int
	first      time.Time
	last       time.Time
}

// window 限流窗口 60s·multiplier
func (s *throttleState) window() time.Duration {
	return throttleWindow * time.Duration(s.multiplier)
}

// throttleTracker 记录最近被限流的操作。
//
// 每次 THROTTLING 失败倍数翻倍（上限 16）；在窗口 60s·倍数内的新调用
// 先等待 min(5s·倍数, 30s)；调用成功后清除。
type throttleTracker struct {
	mu    sync.Mutex
	state map[string]*throttleState
}

func newThrottleTracker() *throttleTracker {
	return &throttleTracker{state: make(map[string]*throttleState)}
}

func (t *throttleTracker) record(key string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.state[key]
	if !ok {
		s = &throttleState{multiplier: 1, first: now}
		t.state[key] = s
	}
	s.count++
	s.multiplier = min(s.multiplier*2, throttleMaxMultiplier)
	s.last = now
}

// preWait 返回调用前需要等待的时长，窗口已过的记录顺带清除。
func (t *throttleTracker) preWait(key string, now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.state[key]
	if !ok {
		return 0
	}
	if now.Sub(s.last) >= s.window() {
		delete(t.state, key)
		return 0
	}
	return min(throttleStep*time.Duration(s.multiplier), throttleMaxWait)
}

func (t *throttleTracker) clear(key string) {
	t.mu.Lock()
	delete(t.state, key)
	t.mu.Unlock()
}

// active 返回窗口内的限流记录，按键排序。
func (t *throttleTracker) active(now time.Time) []ThrottleSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ThrottleSnapshot, 0, len(t.state))
	for key, s := range t.state {
		until := s.last.Add(s.window())
		if !now.Before(until) {
			continue
		}
		out = append(out, ThrottleSnapshot{
			OperationKey: key, Count: s.count, Multiplier: s.multiplier,
			First: s.first, Last: s.last, Until: until,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OperationKey < out[j].OperationKey })
	return out
}
