package xrecovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/observability/xmetrics"
	"github.com/omeyang/xresilience/pkg/resilience/xclassify"
)

// 操作名关键字，决定按操作名选择的策略。
var (
	modelKeywords   = []string{"model", "bedrock", "inference", "analysis"}
	computeKeywords = []string{"lambda", "compute", "retrieval"}
)

type registryOptions struct {
	handlers  map[Type]Handler
	overrides map[string]Type
	recorder  xmetrics.Recorder
	logger    xlog.Logger
	now       func() time.Time

	sleep     Sleeper
	chain     *FallbackChain
	invoker   ModelInvoker
	prober    NetworkProber
	refresher CredentialRefresher
	executor  Executor
	random    func() float64
}

// Option 注册表配置选项
type Option func(*registryOptions)

// WithHandler 注册或替换某类型的处理器。
func WithHandler(t Type, h Handler) Option {
	return func(o *registryOptions) {
		if h != nil {
			o.handlers[t] = h
		}
	}
}

// WithOverride 为指定操作固定恢复类型，优先于自动选择。
func WithOverride(operation string, t Type) Option {
	return func(o *registryOptions) {
		if operation != "" {
			o.overrides[operation] = t
		}
	}
}

// WithRecorder 设置指标上报器。
func WithRecorder(r xmetrics.Recorder) Option {
	return func(o *registryOptions) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithLogger 设置日志。
func WithLogger(l xlog.Logger) Option {
	return func(o *registryOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSleeper 设置内置处理器共用的 Sleeper。
func WithSleeper(s Sleeper) Option {
	return func(o *registryOptions) { o.sleep = s }
}

// WithFallbackChain 设置模型降级链。
func WithFallbackChain(c *FallbackChain) Option {
	return func(o *registryOptions) {
		if c != nil {
			o.chain = c
		}
	}
}

// WithModelInvoker 设置替代模型的调用者。
func WithModelInvoker(inv ModelInvoker) Option {
	return func(o *registryOptions) { o.invoker = inv }
}

// WithNetworkProber 设置网络探测器。
func WithNetworkProber(p NetworkProber) Option {
	return func(o *registryOptions) { o.prober = p }
}

// WithCredentialRefresher 设置凭证刷新器。
func WithCredentialRefresher(r CredentialRefresher) Option {
	return func(o *registryOptions) { o.refresher = r }
}

// WithExecutor 设置 generic 策略的执行者。
func WithExecutor(e Executor) Option {
	return func(o *registryOptions) { o.executor = e }
}

// WithRandom 设置 retry-backoff 抖动的随机源。
func WithRandom(fn func() float64) Option {
	return func(o *registryOptions) { o.random = fn }
}

// withClock 测试用时钟。
func withClock(now func() time.Time) Option {
	return func(o *registryOptions) { o.now = now }
}

// Registry 恢复策略注册表，创建后只读，可并发使用。
type Registry struct {
	handlers  map[Type]Handler
	overrides map[string]Type
	recorder  xmetrics.Recorder
	logger    xlog.Logger
	now       func() time.Time
}

// NewRegistry 创建注册表，内置全部策略；WithHandler 可替换任意一个。
func NewRegistry(opts ...Option) *Registry {
	o := &registryOptions{
		handlers:  make(map[Type]Handler),
		overrides: make(map[string]Type),
		recorder:  xmetrics.NoopRecorder{},
		logger:    xlog.Discard(),
		now:       time.Now,
		chain:     DefaultFallbackChain(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	builtin := map[Type]Handler{
		TypeModelFallback:     &ModelFallback{Chain: o.chain, Invoker: o.invoker},
		TypeComputeRetry:      &ComputeRetry{Sleep: o.sleep},
		TypeNetworkWait:       &NetworkWaitHandler{Sleep: o.sleep, Prober: o.prober},
		TypeCredentialRefresh: &CredentialRefresh{Refresher: o.refresher},
		TypeRetryBackoff:      &RetryBackoff{Sleep: o.sleep, Random: o.random},
		TypeGeneric:           &Generic{Sleep: o.sleep, Executor: o.executor},
	}
	for t, h := range builtin {
		if _, ok := o.handlers[t]; !ok {
			o.handlers[t] = h
		}
	}
	return &Registry{
		handlers:  o.handlers,
		overrides: o.overrides,
		recorder:  o.recorder,
		logger:    o.logger,
		now:       o.now,
	}
}

// Select 为失败选择恢复类型。
//
// 顺序：操作覆盖 → CREDENTIAL → NETWORK → 模型类操作（需附带模型调用）
// → 计算类操作 → TIMEOUT/THROTTLING → generic。
func (r *Registry) Select(operation string, category xclassify.Category, hasModel bool) Type {
	if t, ok := r.overrides[operation]; ok {
		return t
	}
	switch category {
	case xclassify.Credential:
		return TypeCredentialRefresh
	case xclassify.Network:
		return TypeNetworkWait
	}
	name := strings.ToLower(operation)
	if hasModel && containsAny(name, modelKeywords) {
		return TypeModelFallback
	}
	if containsAny(name, computeKeywords) {
		return TypeComputeRetry
	}
	if category == xclassify.Timeout || category == xclassify.Throttling {
		return TypeRetryBackoff
	}
	return TypeGeneric
}

// Handler 返回某类型的处理器。
func (r *Registry) Handler(t Type) (Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

// Attempt 执行一次恢复并上报指标。
//
// 返回的 error 只可能是 ctx 取消、未注册类型或 nil 请求；处理器 panic 视为恢复失败。
func (r *Registry) Attempt(ctx context.Context, t Type, req *Request) (out Outcome, err error) {
	if req == nil {
		return Outcome{}, ErrNilRequest
	}
	h, ok := r.handlers[t]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNoHandler, t)
	}

	ctx = xlog.WithOperation(ctx, req.Operation)
	recType := string(t)
	r.recorder.RecoveryAttempted(ctx, recType, req.Operation)
	start := r.now()

	defer func() {
		if rec := recover(); rec != nil {
			out, err = failed("recovery handler panicked: %v", rec), nil
		}
		elapsed := r.now().Sub(start)
		r.recorder.RecoveryFinished(ctx, recType, req.Operation, err == nil && out.Success, elapsed)
		switch {
		case err != nil:
			r.logger.Warn(ctx, "recovery interrupted",
				xlog.RecoveryType(recType), xlog.Attempt(req.RetryCount), xlog.Err(err))
		case out.Success:
			r.logger.Info(ctx, "recovery succeeded",
				xlog.RecoveryType(recType), xlog.Attempt(req.RetryCount), xlog.Duration(elapsed))
		default:
			r.logger.Warn(ctx, "recovery failed",
				xlog.RecoveryType(recType), xlog.Attempt(req.RetryCount),
				xlog.Duration(elapsed), slog.String("detail", out.Detail))
		}
	}()

	return h.Recover(ctx, req)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
