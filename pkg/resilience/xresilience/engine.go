package xresilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/observability/xmetrics"
	"github.com/omeyang/xresilience/pkg/resilience/xbreaker"
	"github.com/omeyang/xresilience/pkg/resilience/xclassify"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
	"github.com/omeyang/xresilience/pkg/resilience/xrecovery"
	"github.com/omeyang/xresilience/pkg/resilience/xretry"
)

const (
	componentName = "xresilience"

	// categoryUnavailable 熔断拒绝在 OperationErrors 指标中的类别值
	categoryUnavailable = "UNAVAILABLE"
)

// Engine 韧性编排引擎：熔断 → 限流预等待 → 本地重试 → 类型化恢复 → 异步升级。
//
// 所有状态（熔断、限流）都挂在实例上，按操作键隔离；Engine 可并发使用。
type Engine struct {
	cfg        Config
	classifier *xclassify.Classifier
	breakers   *xbreaker.Registry
	scheduler  *xretry.Scheduler
	recovery   *xrecovery.Registry
	escalation *xescalate.Manager
	throttle   *throttleTracker

	recorder xmetrics.Recorder
	observer xmetrics.Observer
	logger   xlog.Logger
	now      func() time.Time
	sleep    xrecovery.Sleeper
}

// New 按配置创建引擎。配置先经过 Validate。
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := engineOptions{
		classifier: xclassify.New(),
		recorder:   xmetrics.NoopRecorder{},
		observer:   xmetrics.NoopObserver{},
		logger:     xlog.Discard(),
		now:        time.Now,
		sleep:      xrecovery.Sleep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	e := &Engine{
		cfg:        cfg,
		classifier: o.classifier,
		throttle:   newThrottleTracker(),
		recorder:   o.recorder,
		observer:   o.observer,
		logger:     o.logger,
		now:        o.now,
		sleep:      o.sleep,
	}

	e.breakers = xbreaker.NewRegistry(append(cfg.breakerOptions(),
		xbreaker.WithOnStateChange(e.onBreakerChange),
	)...)

	var schedOpts []xretry.SchedulerOption
	if o.random != nil {
		schedOpts = append(schedOpts, xretry.WithRandom(o.random))
	}
	e.scheduler = cfg.Scheduler(schedOpts...)

	recOpts := append(cfg.recoveryOptions(),
		xrecovery.WithRecorder(o.recorder),
		xrecovery.WithLogger(o.logger),
		xrecovery.WithSleeper(o.sleep),
	)
	e.recovery = xrecovery.NewRegistry(append(recOpts, o.recoveryOpts...)...)

	if o.queue != nil || o.sink != nil {
		m, err := xescalate.NewManager(o.queue, o.sink,
			xescalate.WithMaxGlobalRetries(cfg.Escalation.MaxGlobalRetries),
			xescalate.WithRecorder(o.recorder),
			xescalate.WithLogger(o.logger),
			xescalate.WithClock(o.now),
		)
		if err != nil {
			return nil, err
		}
		e.escalation = m
	}
	return e, nil
}

// ExecuteWithResilience 执行受保护调用。
//
// 返回值三种情况：
//   - 调用（或其恢复）成功：结果与 nil
//   - 熔断拒绝：包装 ErrUnavailable 与 *xbreaker.BreakerError 的错误
//   - 终态失败：*Failure，失败已按配置交给升级管理器
//
// ctx 在等待或恢复期间取消时，放弃剩余重试并返回包装 ctx.Err() 的错误。
func (e *Engine) ExecuteWithResilience(ctx context.Context, key string, call xrecovery.Call, opts ...CallOption) (result any, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if key == "" {
		return nil, ErrEmptyOperation
	}
	if call == nil {
		return nil, ErrNilCall
	}
	var co callOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&co)
		}
	}

	ctx = xlog.WithOperation(ctx, key)
	kind := xmetrics.KindInternal
	if co.messageID != "" {
		ctx = xlog.WithMessageID(ctx, co.messageID)
		kind = xmetrics.KindConsumer
	}
	ctx, span := xmetrics.Start(ctx, e.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: key,
		Kind:      kind,
		Attrs:     []xmetrics.Attr{xmetrics.Int("retry_count", co.retryCount)},
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	if cerr := ctx.Err(); cerr != nil {
		return nil, canceled(key, cerr)
	}

	start := e.now()
	permit, gerr := e.guard(key)
	if gerr != nil {
		e.logger.Warn(ctx, "call rejected by circuit breaker", xlog.Err(gerr))
		e.recorder.OperationFinished(ctx, key, categoryUnavailable, false, 0)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, gerr)
	}

	if d := e.throttle.preWait(key, start); d > 0 {
		e.logger.Info(ctx, "operation recently throttled, waiting", xlog.Delay(d))
		if serr := e.sleep(ctx, d); serr != nil {
			permit.Release()
			return nil, canceled(key, serr)
		}
	}

	var (
		attempts int
		lastErr  error
	)
	attempt := func() (any, error) {
		p := permit
		if attempts > 0 {
			// 重试期间熔断器可能已打开，BreakerError 不可重试，循环随即结束
			var gerr error
			if p, gerr = e.guard(key); gerr != nil {
				return nil, gerr
			}
		}
		attempts++
		v, cerr := invoke(ctx, call)
		e.settle(ctx, p, key, cerr)
		if cerr != nil {
			lastErr = cerr
		}
		return v, cerr
	}
	hook := func(n int, c xclassify.Category, d time.Duration, herr error) {
		e.logger.Warn(ctx, "attempt failed, retrying",
			xlog.Attempt(n+1), xlog.Category(c), xlog.Delay(d), xlog.Err(herr))
	}

	v, err := xretry.DoWithData(ctx, attempt, e.scheduler.Options(key, e.classifier.Classify, hook)...)
	if err == nil {
		e.throttle.clear(key)
		e.recorder.OperationFinished(ctx, key, "", true, e.now().Sub(start))
		return v, nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, canceled(key, cerr)
	}
	if lastErr == nil {
		lastErr = err
	}
	return e.recoverOrEscalate(ctx, key, call, co, attempts, lastErr, start)
}

// recoverOrEscalate 本地重试用尽后的恢复与升级。
func (e *Engine) recoverOrEscalate(ctx context.Context, key string, call xrecovery.Call, co callOptions, attempts int, lastErr error, start time.Time) (any, error) {
	category := e.classifier.Classify(lastErr)
	recType := co.recoveryType
	if recType == "" {
		recType = e.recovery.Select(key, category, co.model != nil)
	}
	failure := &Failure{
		Operation:    key,
		Category:     category,
		Attempts:     attempts,
		RecoveryType: recType,
		History:      co.history,
		Err:          lastErr,
	}

	if e.cfg.Features.Recovery {
		// 恢复处理器的重新调用同样要经过熔断放行，结果计入熔断状态
		gated := func(callCtx context.Context) (any, error) {
			p, gerr := e.guard(key)
			if gerr != nil {
				return nil, fmt.Errorf("%w: %w", ErrUnavailable, gerr)
			}
			v, cerr := invoke(callCtx, call)
			e.settle(ctx, p, key, cerr)
			return v, cerr
		}
		out, rerr := e.recovery.Attempt(ctx, recType, &xrecovery.Request{
			Operation:  key,
			Category:   category,
			RetryCount: co.retryCount,
			Err:        lastErr,
			Call:       gated,
			Model:      co.model,
			Context:    co.context,
		})
		switch {
		case rerr != nil:
			if cerr := ctx.Err(); cerr != nil {
				return nil, canceled(key, cerr)
			}
			failure.Recovery = rerr.Error()
		case out.Success:
			e.recorder.OperationFinished(ctx, key, "", true, e.now().Sub(start))
			e.logger.Info(ctx, "operation recovered",
				xlog.RecoveryType(string(recType)), slog.String("detail", out.Detail))
			return out.Value, nil
		default:
			failure.Recovery = out.Detail
		}
	}

	if e.cfg.Features.Escalation && e.escalation != nil {
		msg := &xescalate.Message{
			Attempt: xescalate.Attempt{
				ID:                co.messageID,
				RecoveryType:      string(recType),
				OriginalOperation: key,
				Context:           co.context,
				RetryCount:        co.retryCount,
				StartedAt:         co.startedAt,
				Category:          category,
				Error:             lastErr.Error(),
			},
			Model:   co.model,
			History: co.history,
		}
		out, eerr := e.escalation.OnRecoveryExhausted(ctx, msg)
		if eerr != nil {
			failure.Err = errors.Join(lastErr, eerr)
		} else {
			failure.Escalation = &out
			failure.History = out.Message.History
		}
	}

	e.recorder.OperationFinished(ctx, key, category.String(), false, e.now().Sub(start))
	e.logger.Error(ctx, "operation failed",
		xlog.Category(category), xlog.Attempt(attempts),
		xlog.RecoveryType(string(recType)), xlog.Err(failure.Err))
	return nil, failure
}

// guard 申请熔断放行凭证；熔断关闭时返回 nil 凭证，其方法均为空操作。
func (e *Engine) guard(key string) (*xbreaker.Permit, error) {
	if !e.cfg.Features.CircuitBreaker {
		return nil, nil
	}
	return e.breakers.Guard(key)
}

// settle 把一次调用结果记入熔断与限流状态。
// ctx 已取消导致的失败不计入熔断，只归还探测名额。
func (e *Engine) settle(ctx context.Context, permit *xbreaker.Permit, key string, err error) {
	cancelled := ctx.Err() != nil
	if err != nil && !cancelled && e.classifier.Classify(err) == xclassify.Throttling {
		e.throttle.record(key, e.now())
	}
	switch {
	case err == nil:
		permit.Done(nil)
	case cancelled:
		permit.Release()
	default:
		permit.Done(err)
	}
}

func (e *Engine) onBreakerChange(key string, from, to xbreaker.State) {
	ctx := xlog.WithOperation(context.Background(), key)
	if to == xbreaker.StateOpen {
		e.recorder.CircuitBreakerOpened(ctx, key)
		e.logger.Warn(ctx, "circuit breaker opened", slog.String("from", from.String()))
		return
	}
	e.logger.Info(ctx, "circuit breaker state changed",
		slog.String("from", from.String()), xlog.State(to))
}

// invoke 执行调用，panic 转换为 GENERIC 错误。
func invoke(ctx context.Context, call xrecovery.Call) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, xclassify.Classified(xclassify.Generic, fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()
	return call(ctx)
}

func canceled(key string, err error) error {
	return fmt.Errorf("xresilience: %s canceled: %w", key, err)
}

// Execute 是 ExecuteWithResilience 的泛型版本。
//
// 恢复策略产生的结果（如替代模型输出 xrecovery.ModelResult）类型可能与 T 不同，
// 此时返回 ErrResultType。
func Execute[T any](ctx context.Context, e *Engine, key string, call func(context.Context) (T, error), opts ...CallOption) (T, error) {
	var zero T
	if call == nil {
		return zero, ErrNilCall
	}
	v, err := e.ExecuteWithResilience(ctx, key, func(ctx context.Context) (any, error) {
		return call(ctx)
	}, opts...)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: want %T, got %T", ErrResultType, zero, v)
	}
	return t, nil
}

// Replay 实现 xescalate.Replayer：以消息携带的状态重新执行调用。
//
// 熔断拒绝时消息按一次失败重新升级，不会因为快速失败而丢失。
func (e *Engine) Replay(ctx context.Context, msg *xescalate.Message, call xrecovery.Call) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	_, err := e.ExecuteWithResilience(ctx, msg.OriginalOperation, call, FromMessage(msg))
	if !errors.Is(err, ErrUnavailable) || e.escalation == nil || !e.cfg.Features.Escalation {
		return err
	}
	next := msg.Clone()
	next.Error = err.Error()
	if _, eerr := e.escalation.OnRecoveryExhausted(ctx, next); eerr != nil {
		return errors.Join(err, eerr)
	}
	return err
}
