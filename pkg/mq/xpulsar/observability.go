package xpulsar

import (
	"context"

	"github.com/omeyang/xresilience/internal/mqcore"
	"github.com/omeyang/xresilience/pkg/observability/xmetrics"

	"github.com/apache/pulsar-client-go/pulsar"
)

const componentName = "xpulsar"

func pulsarAttrs(topic string) []xmetrics.Attr {
	attrs := []xmetrics.Attr{xmetrics.String("messaging.system", "pulsar")}
	if topic != "" {
		attrs = append(attrs, xmetrics.String("messaging.destination.name", topic))
	}
	return attrs
}

func injectPulsarTrace(ctx context.Context, tracer Tracer, msg *pulsar.ProducerMessage) {
	if tracer == nil || msg == nil {
		return
	}
	if msg.Properties == nil {
		msg.Properties = make(map[string]string)
	}
	tracer.Inject(ctx, msg.Properties)
}

func extractPulsarTrace(ctx context.Context, tracer Tracer, msg pulsar.Message) context.Context {
	if tracer == nil || msg == nil {
		return ctx
	}
	extracted := tracer.Extract(msg.Properties())
	return mqcore.MergeTraceContext(ctx, extracted)
}
