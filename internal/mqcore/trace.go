package mqcore

import (
	"context"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Tracer 在升级消息的消息头中传递链路上下文，使重投调用与最初失败的调用
// 落在同一条 trace 上。Header 名称遵循 W3C Trace Context（traceparent / tracestate）。
type Tracer interface {
	// Inject 把 ctx 中的链路信息写入 headers
	Inject(ctx context.Context, headers map[string]string)

	// Extract 从 headers 还原链路信息，返回值只用于 MergeTraceContext
	Extract(headers map[string]string) context.Context
}

// NoopTracer 不传递链路信息。
type NoopTracer struct{}

// Inject 不写入任何 header
func (NoopTracer) Inject(context.Context, map[string]string) {}

// Extract 返回 context.Background()
func (NoopTracer) Extract(map[string]string) context.Context { return context.Background() }

// OTelTracer 使用 OpenTelemetry propagator 读写消息头。
type OTelTracer struct {
	propagator propagation.TextMapPropagator
}

// NewOTelTracer 创建 OTelTracer。未传 propagator 时使用 TraceContext + Baggage，
// 传入多个时按顺序组合。
func NewOTelTracer(propagators ...propagation.TextMapPropagator) OTelTracer {
	ps := make([]propagation.TextMapPropagator, 0, len(propagators))
	for _, p := range propagators {
		if p != nil {
			ps = append(ps, p)
		}
	}
	switch len(ps) {
	case 0:
		return OTelTracer{propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		)}
	case 1:
		return OTelTracer{propagator: ps[0]}
	default:
		return OTelTracer{propagator: propagation.NewCompositeTextMapPropagator(ps...)}
	}
}

// Inject headers 为 nil 时忽略
func (t OTelTracer) Inject(ctx context.Context, headers map[string]string) {
	if headers == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t.propagator.Inject(ctx, propagation.MapCarrier(headers))
}

// Extract headers 为 nil 时返回 context.Background()
func (t OTelTracer) Extract(headers map[string]string) context.Context {
	if headers == nil {
		return context.Background()
	}
	return t.propagator.Extract(context.Background(), propagation.MapCarrier(headers))
}

var (
	_ Tracer = NoopTracer{}
	_ Tracer = OTelTracer{}
)

// MergeTraceContext 把 extracted 中的远端 SpanContext 与 Baggage 挂到 base 上。
// base 通常是消费循环的 ctx，取消信号与其他值都来自 base；nil 视为 Background。
func MergeTraceContext(base, extracted context.Context) context.Context {
	if base == nil {
		base = context.Background()
	}
	if extracted == nil {
		return base
	}
	if sc := trace.SpanContextFromContext(extracted); sc.IsValid() {
		base = trace.ContextWithRemoteSpanContext(base, sc)
	}
	if bag := baggage.FromContext(extracted); bag.Len() > 0 {
		base = baggage.ContextWithBaggage(base, bag)
	}
	return base
}
