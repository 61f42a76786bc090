package xresilience

import (
	"github.com/omeyang/xresilience/pkg/resilience/xbreaker"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
	"github.com/omeyang/xresilience/pkg/resilience/xrecovery"
	"github.com/omeyang/xresilience/pkg/resilience/xretry"
)

// Stats 引擎运行时状态
type Stats struct {
	Breakers  []xbreaker.Snapshot `json:"breakers"`
	Throttles []ThrottleSnapshot  `json:"throttles"`
	Features  Features            `json:"features"`
}

// Health 健康状态：没有打开的熔断器且没有处于限流窗口内的操作时为健康。
type Health struct {
	Healthy      bool     `json:"healthy"`
	OpenBreakers []string `json:"openBreakers,omitempty"`
	Throttled    []string `json:"throttled,omitempty"`
}

// Stats 返回所有已使用操作键的熔断快照与当前限流记录。
func (e *Engine) Stats() Stats {
	return Stats{
		Breakers:  e.breakers.Snapshots(),
		Throttles: e.throttle.active(e.now()),
		Features:  e.cfg.Features,
	}
}

// Health 汇总健康状态。
func (e *Engine) Health() Health {
	s := e.Stats()
	var h Health
	for _, b := range s.Breakers {
		if b.State == xbreaker.StateOpen {
			h.OpenBreakers = append(h.OpenBreakers, b.OperationKey)
		}
	}
	for _, t := range s.Throttles {
		h.Throttled = append(h.Throttled, t.OperationKey)
	}
	h.Healthy = len(h.OpenBreakers) == 0 && len(h.Throttled) == 0
	return h
}

// ResetBreaker 将操作键的熔断器恢复到 CLOSED，并清除其限流记录。
func (e *Engine) ResetBreaker(key string) {
	e.breakers.Reset(key)
	e.throttle.clear(key)
}

// Config 返回引擎配置。
func (e *Engine) Config() Config { return e.cfg }

// Breakers 返回熔断注册表。
func (e *Engine) Breakers() *xbreaker.Registry { return e.breakers }

// Scheduler 返回重试调度器。
func (e *Engine) Scheduler() *xretry.Scheduler { return e.scheduler }

// Recovery 返回恢复策略注册表。
func (e *Engine) Recovery() *xrecovery.Registry { return e.recovery }

// Escalation 返回升级管理器，未配置队列时为 nil。
func (e *Engine) Escalation() *xescalate.Manager { return e.escalation }

var _ xescalate.Replayer = (*Engine)(nil)
