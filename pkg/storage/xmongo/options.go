package xmongo

import (
	"time"

	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/observability/xmetrics"
)

const (
	// DefaultHealthTimeout 健康检查默认超时。
	DefaultHealthTimeout = 5 * time.Second

	// DefaultQueryTimeout 查询操作默认兜底超时时间。
	// 当调用方 context 没有 deadline 时，FindPage/Take 使用此超时防止无限阻塞。
	DefaultQueryTimeout = 30 * time.Second

	// DefaultWriteTimeout 写入操作默认兜底超时时间。
	DefaultWriteTimeout = 60 * time.Second
)

// Options 定义归档的配置选项。
type Options struct {
	// HealthTimeout 健康检查超时时间，默认 5 秒。
	HealthTimeout time.Duration

	// SlowQueryThreshold 慢查询阈值，为 0 时禁用慢查询检测。
	// 超过阈值的操作记一条 Warn 日志并计入 Stats().SlowQueries。
	SlowQueryThreshold time.Duration

	// QueryTimeout 查询兜底超时，0 表示完全依赖调用方 context。
	QueryTimeout time.Duration

	// WriteTimeout 写入兜底超时，0 表示完全依赖调用方 context。
	WriteTimeout time.Duration

	// Observer 是统一观测接口（metrics/tracing）。
	Observer xmetrics.Observer

	// Logger 慢查询日志。
	Logger xlog.Logger
}

// Option 定义配置归档的函数类型。
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		HealthTimeout: DefaultHealthTimeout,
		QueryTimeout:  DefaultQueryTimeout,
		WriteTimeout:  DefaultWriteTimeout,
		Observer:      xmetrics.NoopObserver{},
		Logger:        xlog.Discard(),
	}
}

// WithHealthTimeout 设置健康检查超时时间。非正值被忽略。
func WithHealthTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout > 0 {
			o.HealthTimeout = timeout
		}
	}
}

// WithSlowQueryThreshold 设置慢查询阈值。负值被忽略。
func WithSlowQueryThreshold(threshold time.Duration) Option {
	return func(o *Options) {
		if threshold >= 0 {
			o.SlowQueryThreshold = threshold
		}
	}
}

// WithQueryTimeout 设置查询兜底超时。负值被忽略。
func WithQueryTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout >= 0 {
			o.QueryTimeout = timeout
		}
	}
}

// WithWriteTimeout 设置写入兜底超时。负值被忽略。
func WithWriteTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout >= 0 {
			o.WriteTimeout = timeout
		}
	}
}

// WithObserver 设置观测接口。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *Options) {
		if observer != nil {
			o.Observer = observer
		}
	}
}

// WithLogger 设置日志。
func WithLogger(logger xlog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}
