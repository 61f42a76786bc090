package xmetrics

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultInstrumentationName Tracer / Meter 默认的 instrumentation scope
const DefaultInstrumentationName = "github.com/omeyang/xresilience"

// Option 配置 NewOTelObserver 与 NewOTelRecorder。
type Option func(*providers)

// providers 未设置的 provider 取 otel 全局实例
type providers struct {
	scope  string
	tracer trace.TracerProvider
	meter  metric.MeterProvider
}

// WithInstrumentationName 设置 instrumentation scope，空串忽略。
func WithInstrumentationName(name string) Option {
	return func(p *providers) {
		if name != "" {
			p.scope = name
		}
	}
}

// WithTracerProvider 设置 TracerProvider，nil 忽略。
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *providers) {
		if tp != nil {
			p.tracer = tp
		}
	}
}

// WithMeterProvider 设置 MeterProvider，nil 忽略。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *providers) {
		if mp != nil {
			p.meter = mp
		}
	}
}

func resolveProviders(opts []Option) providers {
	p := providers{scope: DefaultInstrumentationName}
	for _, opt := range opts {
		if opt != nil {
			opt(&p)
		}
	}
	if p.tracer == nil {
		p.tracer = otel.GetTracerProvider()
	}
	if p.meter == nil {
		p.meter = otel.GetMeterProvider()
	}
	return p
}
