package xmetrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// unnamed 组件或操作名缺失时的占位
const unnamed = "unknown"

// 跨度上的公共属性键
const (
	AttrComponent = "resilience.component"
	AttrOperation = "resilience.operation"
	AttrErrorType = "error.type"
)

// NewOTelObserver 创建基于 OpenTelemetry Tracer 的 Observer。
// 跨度名为操作名，组件与操作名同时作为属性写入，便于按组件聚合。
func NewOTelObserver(opts ...Option) (Observer, error) {
	p := resolveProviders(opts)
	return &otelObserver{tracer: p.tracer.Tracer(p.scope)}, nil
}

type otelObserver struct {
	tracer trace.Tracer
}

func (o *otelObserver) Start(ctx context.Context, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	component, operation := orUnnamed(opts.Component), orUnnamed(opts.Operation)

	attrs := append([]attribute.KeyValue{
		attribute.String(AttrComponent, component),
		attribute.String(AttrOperation, operation),
	}, toOTel(opts.Attrs)...)

	ctx, span := o.tracer.Start(ctx, operation,
		trace.WithSpanKind(spanKind(opts.Kind)),
		trace.WithAttributes(attrs...),
	)
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span  trace.Span
	ended atomic.Bool
}

// End 只有第一次调用生效。失败时记录错误事件，并以 error.type 标注错误种类。
func (s *otelSpan) End(result Result) {
	if s == nil || !s.ended.CompareAndSwap(false, true) {
		return
	}
	if len(result.Attrs) > 0 {
		s.span.SetAttributes(toOTel(result.Attrs)...)
	}
	if resolveStatus(result) == StatusOK {
		s.span.SetStatus(codes.Ok, "")
		s.span.End()
		return
	}

	desc := "operation failed"
	if result.Err != nil {
		desc = result.Err.Error()
		s.span.RecordError(result.Err)
		s.span.SetAttributes(attribute.String(AttrErrorType, errorType(result.Err)))
	}
	s.span.SetStatus(codes.Error, desc)
	s.span.End()
}

// errorType 优先使用错误自带的种类（如 ECONNRESET），否则取具体类型名。
func errorType(err error) string {
	var kinder interface{ Kind() string }
	if errors.As(err, &kinder) && kinder.Kind() != "" {
		return kinder.Kind()
	}
	return fmt.Sprintf("%T", err)
}

func orUnnamed(s string) string {
	if s == "" {
		return unnamed
	}
	return s
}

func spanKind(kind Kind) trace.SpanKind {
	switch kind {
	case KindProducer:
		return trace.SpanKindProducer
	case KindConsumer:
		return trace.SpanKindConsumer
	default:
		return trace.SpanKindInternal
	}
}

// toOTel 丢弃空键与 nil 值。Duration 以毫秒整数记录。
func toOTel(attrs []Attr) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		if a.Key == "" || a.Value == nil {
			continue
		}
		k := attribute.Key(a.Key)
		switch v := a.Value.(type) {
		case string:
			out = append(out, k.String(v))
		case bool:
			out = append(out, k.Bool(v))
		case int:
			out = append(out, k.Int(v))
		case int64:
			out = append(out, k.Int64(v))
		case uint64:
			if v > math.MaxInt64 {
				out = append(out, k.String(fmt.Sprint(v)))
			} else {
				out = append(out, k.Int64(int64(v)))
			}
		case float64:
			out = append(out, k.Float64(v))
		case time.Duration:
			out = append(out, k.Int64(v.Milliseconds()))
		case fmt.Stringer:
			out = append(out, k.String(v.String()))
		default:
			out = append(out, k.String(fmt.Sprint(v)))
		}
	}
	return out
}
