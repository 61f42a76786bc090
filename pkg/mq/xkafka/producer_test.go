package xkafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestNewProducer_NilConfig(t *testing.T) {
	producer, err := NewProducer(nil)

	assert.Nil(t, producer)
	assert.ErrorIs(t, err, ErrNilConfig)
}

func TestNewProducer_NilClient(t *testing.T) {
	_, err := newProducer(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestProducerOptions(t *testing.T) {
	opts := defaultProducerOptions()
	assert.Equal(t, 10*time.Second, opts.FlushTimeout)

	WithProducerTracer(nil)(opts)
	WithProducerObserver(nil)(opts)
	WithProducerFlushTimeout(-time.Second)(opts)
	assert.Equal(t, NoopTracer{}, opts.Tracer)
	assert.NotNil(t, opts.Observer)
	assert.Equal(t, 10*time.Second, opts.FlushTimeout)

	WithProducerFlushTimeout(time.Second)(opts)
	assert.Equal(t, time.Second, opts.FlushTimeout)
}

func TestProducer_Send(t *testing.T) {
	client := &fakeProducer{}
	producer, err := newProducer(client, WithProducerTracer(NewOTelTracer()))
	require.NoError(t, err)

	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	err = producer.Send(ctx, "orders.retry", []byte("msg-1"), []byte(`{"id":"msg-1"}`),
		map[string]string{"x-escalation-id": "msg-1"})
	require.NoError(t, err)

	require.Len(t, client.produced, 1)
	msg := client.produced[0]
	assert.Equal(t, "orders.retry", topicOf(msg))
	assert.Equal(t, kafka.PartitionAny, msg.TopicPartition.Partition)
	assert.Equal(t, []byte("msg-1"), msg.Key)

	headers := kafkaHeadersToMap(msg.Headers)
	assert.Equal(t, "msg-1", headers["x-escalation-id"])
	assert.Contains(t, headers["traceparent"], "0af7651916cd43dd8448eb211c80319c")

	stats := producer.Stats()
	assert.Equal(t, int64(1), stats.MessagesProduced)
	assert.Equal(t, int64(len(`{"id":"msg-1"}`)), stats.BytesProduced)
	assert.Zero(t, stats.Errors)
}

func TestProducer_SendErrors(t *testing.T) {
	brokerDown := errors.New("broker down")

	tests := []struct {
		name    string
		client  *fakeProducer
		topic   string
		wantErr error
	}{
		{"empty topic", &fakeProducer{}, "", ErrEmptyTopic},
		{"produce", &fakeProducer{produceErr: brokerDown}, "t", brokerDown},
		{"delivery report", &fakeProducer{deliveryErr: kafka.NewError(kafka.ErrMsgTimedOut, "timed out", false)}, "t", ErrDelivery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer, err := newProducer(tt.client)
			require.NoError(t, err)

			err = producer.Send(context.Background(), tt.topic, nil, []byte("v"), nil)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, producer.Stats().MessagesProduced)
		})
	}
}

func TestProducer_SendCanceledWaitingForReport(t *testing.T) {
	producer, err := newProducer(&fakeProducer{noReport: true})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err = producer.Send(ctx, "t", nil, []byte("v"), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProducer_Close(t *testing.T) {
	client := &fakeProducer{}
	producer, err := newProducer(client)
	require.NoError(t, err)

	require.NoError(t, producer.Close())
	assert.True(t, client.closed)
	assert.Zero(t, producer.Stats().QueueLength)

	assert.ErrorIs(t, producer.Close(), ErrClosed)
	assert.ErrorIs(t, producer.Send(context.Background(), "t", nil, nil, nil), ErrClosed)
}

func TestProducer_CloseFlushTimeout(t *testing.T) {
	client := &fakeProducer{flushRemaining: 3}
	producer, err := newProducer(client)
	require.NoError(t, err)

	err = producer.Close()
	assert.ErrorIs(t, err, ErrFlushTimeout)
	assert.True(t, client.closed)
}
