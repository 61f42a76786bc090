package xcron

import (
	"time"

	"github.com/omeyang/xresilience/pkg/distributed/xdlock"
	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/observability/xmetrics"
)

// Option 调度器选项
type Option func(*Scheduler)

// WithLocker 设置分布式锁。为 nil 时所有任务在本实例直接执行。
func WithLocker(l *xdlock.Locker) Option {
	return func(s *Scheduler) {
		s.locker = l
	}
}

// WithLogger 设置日志
func WithLogger(l xlog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver 设置观测器，每次执行生成一个 span。
func WithObserver(o xmetrics.Observer) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// WithLocation 设置 cron 表达式使用的时区，默认 time.Local。
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// JobOption 任务选项
type JobOption func(*job)

// WithTimeout 设置单次执行超时，0 表示不限制。
func WithTimeout(d time.Duration) JobOption {
	return func(j *job) {
		if d > 0 {
			j.timeout = d
		}
	}
}

// WithImmediate Run 启动时先执行一次，再按计划调度。
func WithImmediate() JobOption {
	return func(j *job) {
		j.immediate = true
	}
}
