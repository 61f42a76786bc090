package xmetrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// 指标名称
const (
	MetricRecoveryAttempts      = "RecoveryAttempts"
	MetricRecoveryDuration      = "RecoveryDuration"
	MetricSuccessfulRecoveries  = "SuccessfulRecoveries"
	MetricFailedRecoveries      = "FailedRecoveries"
	MetricCircuitBreakerOpened  = "CircuitBreakerOpened"
	MetricOperationSuccess      = "OperationSuccess"
	MetricOperationErrors       = "OperationErrors"
	MetricOperationDuration     = "OperationDuration"
	MetricEscalationsEnqueued   = "EscalationsEnqueued"
	MetricDeadLetterMessageSent = "DLQMessagesSent"
)

// 维度名称
const (
	DimRecoveryType      = "RecoveryType"
	DimOriginalOperation = "OriginalOperation"
	DimSuccess           = "Success"
	DimOperationKey      = "OperationKey"
	DimOperationName     = "OperationName"
	DimCategory          = "Category"
)

// Recorder 韧性引擎的指标上报接口。
//
// 所有方法即发即弃：实现不得阻塞调用方，也不返回错误。
type Recorder interface {
	// RecoveryAttempted 记录一次恢复尝试的开始
	RecoveryAttempted(ctx context.Context, recoveryType, operation string)

	// RecoveryFinished 记录恢复结果与耗时
	RecoveryFinished(ctx context.Context, recoveryType, operation string, success bool, elapsed time.Duration)

	// CircuitBreakerOpened 记录熔断器打开
	CircuitBreakerOpened(ctx context.Context, operationKey string)

	// OperationFinished 记录受保护调用的最终结果。成功时 category 为空。
	OperationFinished(ctx context.Context, operation, category string, success bool, elapsed time.Duration)

	// Escalated 记录升级结果：重新入队或进入死信
	Escalated(ctx context.Context, operation string, deadLettered bool)
}

// NoopRecorder 是空实现。
type NoopRecorder struct{}

var _ Recorder = NoopRecorder{}

func (NoopRecorder) RecoveryAttempted(context.Context, string, string)                      {}
func (NoopRecorder) RecoveryFinished(context.Context, string, string, bool, time.Duration)  {}
func (NoopRecorder) CircuitBreakerOpened(context.Context, string)                           {}
func (NoopRecorder) OperationFinished(context.Context, string, string, bool, time.Duration) {}
func (NoopRecorder) Escalated(context.Context, string, bool)                                {}

type otelRecorder struct {
	recoveryAttempts  metric.Int64Counter
	recoveryDuration  metric.Float64Histogram
	recoverySucceeded metric.Int64Counter
	recoveryFailed    metric.Int64Counter
	breakerOpened     metric.Int64Counter
	opSuccess         metric.Int64Counter
	opErrors          metric.Int64Counter
	opDuration        metric.Float64Histogram
	escalated         metric.Int64Counter
	deadLettered      metric.Int64Counter
}

var _ Recorder = (*otelRecorder)(nil)

// NewOTelRecorder 创建基于 OpenTelemetry Meter 的 Recorder。
func NewOTelRecorder(opts ...Option) (Recorder, error) {
	p := resolveProviders(opts)
	meter := p.meter.Meter(p.scope)

	r := &otelRecorder{}
	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&r.recoveryAttempts, MetricRecoveryAttempts, "recovery attempts"},
		{&r.recoverySucceeded, MetricSuccessfulRecoveries, "successful recoveries"},
		{&r.recoveryFailed, MetricFailedRecoveries, "failed recoveries"},
		{&r.breakerOpened, MetricCircuitBreakerOpened, "circuit breaker transitions to open"},
		{&r.opSuccess, MetricOperationSuccess, "protected calls that succeeded"},
		{&r.opErrors, MetricOperationErrors, "protected calls that failed terminally"},
		{&r.escalated, MetricEscalationsEnqueued, "escalation messages enqueued"},
		{&r.deadLettered, MetricDeadLetterMessageSent, "escalation messages dead-lettered"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCreateCounter, c.name, err)
		}
		*c.target = counter
	}

	var err error
	if r.recoveryDuration, err = meter.Float64Histogram(MetricRecoveryDuration,
		metric.WithDescription("recovery handler duration"), metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCreateHistogram, MetricRecoveryDuration, err)
	}
	if r.opDuration, err = meter.Float64Histogram(MetricOperationDuration,
		metric.WithDescription("protected call duration"), metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCreateHistogram, MetricOperationDuration, err)
	}
	return r, nil
}

func (r *otelRecorder) RecoveryAttempted(ctx context.Context, recoveryType, operation string) {
	r.recoveryAttempts.Add(metricsCtx(ctx), 1, metric.WithAttributes(
		attribute.String(DimRecoveryType, recoveryType),
		attribute.String(DimOriginalOperation, operation),
	))
}

func (r *otelRecorder) RecoveryFinished(ctx context.Context, recoveryType, operation string, success bool, elapsed time.Duration) {
	ctx = metricsCtx(ctx)
	r.recoveryDuration.Record(ctx, millis(elapsed), metric.WithAttributes(
		attribute.String(DimRecoveryType, recoveryType),
		attribute.String(DimSuccess, strconv.FormatBool(success)),
	))
	outcome := r.recoveryFailed
	if success {
		outcome = r.recoverySucceeded
	}
	outcome.Add(ctx, 1, metric.WithAttributes(
		attribute.String(DimRecoveryType, recoveryType),
		attribute.String(DimOriginalOperation, operation),
	))
}

func (r *otelRecorder) CircuitBreakerOpened(ctx context.Context, operationKey string) {
	r.breakerOpened.Add(metricsCtx(ctx), 1, metric.WithAttributes(
		attribute.String(DimOperationKey, operationKey),
	))
}

func (r *otelRecorder) OperationFinished(ctx context.Context, operation, category string, success bool, elapsed time.Duration) {
	ctx = metricsCtx(ctx)
	r.opDuration.Record(ctx, millis(elapsed), metric.WithAttributes(
		attribute.String(DimOperationName, operation),
	))
	if success {
		r.opSuccess.Add(ctx, 1, metric.WithAttributes(attribute.String(DimOperationName, operation)))
		return
	}
	r.opErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(DimOperationName, operation),
		attribute.String(DimCategory, category),
	))
}

func (r *otelRecorder) Escalated(ctx context.Context, operation string, deadLettered bool) {
	counter := r.escalated
	if deadLettered {
		counter = r.deadLettered
	}
	counter.Add(metricsCtx(ctx), 1, metric.WithAttributes(
		attribute.String(DimOriginalOperation, operation),
	))
}

// metricsCtx 使用不可取消的 context 记录指标，
// 请求 context 已取消或超时时指标仍能记录。
func metricsCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
