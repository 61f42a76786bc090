package xresilience

import (
	"maps"
	"time"

	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/observability/xmetrics"
	"github.com/omeyang/xresilience/pkg/resilience/xclassify"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
	"github.com/omeyang/xresilience/pkg/resilience/xrecovery"
)

// Option 引擎配置选项
type Option func(*engineOptions)

type engineOptions struct {
	classifier   *xclassify.Classifier
	recorder     xmetrics.Recorder
	observer     xmetrics.Observer
	logger       xlog.Logger
	now          func() time.Time
	sleep        xrecovery.Sleeper
	random       func() float64
	queue        xescalate.Queue
	sink         xescalate.DeadLetterSink
	recoveryOpts []xrecovery.Option
}

// WithClassifier 设置错误分类器，默认使用 xclassify 的默认规则。
func WithClassifier(c *xclassify.Classifier) Option {
	return func(o *engineOptions) {
		if c != nil {
			o.classifier = c
		}
	}
}

// WithRecorder 设置指标上报器，恢复与升级共用。
func WithRecorder(r xmetrics.Recorder) Option {
	return func(o *engineOptions) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithObserver 设置链路观测，每次受保护调用一个跨度。
func WithObserver(obs xmetrics.Observer) Option {
	return func(o *engineOptions) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithLogger 设置日志。
func WithLogger(l xlog.Logger) Option {
	return func(o *engineOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock 设置时钟（限流窗口、升级时间戳）。熔断打开时长由 gobreaker 按真实时间计算，不受影响。
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSleeper 设置限流预等待与恢复处理器使用的等待函数。
func WithSleeper(s xrecovery.Sleeper) Option {
	return func(o *engineOptions) {
		if s != nil {
			o.sleep = s
		}
	}
}

// WithRandom 设置重试抖动的 [0,1) 随机源。
func WithRandom(fn func() float64) Option {
	return func(o *engineOptions) {
		if fn != nil {
			o.random = fn
		}
	}
}

// WithEscalation 设置升级使用的恢复队列与死信接收端。
// 不设置时恢复失败只返回 *Failure，不做升级。
func WithEscalation(queue xescalate.Queue, sink xescalate.DeadLetterSink) Option {
	return func(o *engineOptions) {
		o.queue = queue
		o.sink = sink
	}
}

// WithRecoveryOptions 追加恢复注册表选项（模型调用者、网络探测器、凭证刷新器等）。
func WithRecoveryOptions(opts ...xrecovery.Option) Option {
	return func(o *engineOptions) {
		o.recoveryOpts = append(o.recoveryOpts, opts...)
	}
}

// CallOption 单次调用选项
type CallOption func(*callOptions)

type callOptions struct {
	model        *xrecovery.ModelRequest
	recoveryType xrecovery.Type
	context      map[string]string

	// 来自升级消息的状态
	messageID  string
	retryCount int
	startedAt  time.Time
	history    []xescalate.Attempt
}

// WithModel 附带模型调用，失败时可走 model-fallback。
func WithModel(req *xrecovery.ModelRequest) CallOption {
	return func(o *callOptions) { o.model = req }
}

// WithRecoveryType 固定本次调用的恢复策略，跳过自动选择。
func WithRecoveryType(t xrecovery.Type) CallOption {
	return func(o *callOptions) { o.recoveryType = t }
}

// WithContext 附带业务上下文，随升级消息透传。
func WithContext(kv map[string]string) CallOption {
	return func(o *callOptions) { o.context = maps.Clone(kv) }
}

// FromMessage 以升级消息的状态执行调用：沿用消息 ID、重投次数、历史与上下文。
func FromMessage(msg *xescalate.Message) CallOption {
	return func(o *callOptions) {
		if msg == nil {
			return
		}
		o.messageID = msg.ID
		o.retryCount = msg.RetryCount
		o.startedAt = msg.StartedAt
		o.history = append([]xescalate.Attempt(nil), msg.History...)
		o.context = maps.Clone(msg.Context)
		if msg.Model != nil {
			model := *msg.Model
			o.model = &model
		}
	}
}
