package xpulsar

import (
	"testing"
	"time"

	"github.com/omeyang/xresilience/pkg/resilience/xretry"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDLQBuilder(t *testing.T) {
	policy := NewDLQBuilder().Build()
	assert.Equal(t, uint32(3), policy.MaxDeliveries)

	policy = NewDLQBuilder().
		WithMaxDeliveries(0).
		WithMaxDeliveries(5).
		WithDeadLetterTopic("orders-RETRY-DLQ").
		WithInitialSubscription("ops").
		Build()

	assert.Equal(t, uint32(5), policy.MaxDeliveries)
	assert.Equal(t, "orders-RETRY-DLQ", policy.DeadLetterTopic)
	assert.Equal(t, "ops", policy.InitialSubscriptionName)
}

func TestToPulsarNackBackoff(t *testing.T) {
	assert.Nil(t, ToPulsarNackBackoff(xretry.Curve{}))

	policy := ToPulsarNackBackoff(xretry.Curve{Base: time.Second, Max: 8 * time.Second, Multiplier: 2})
	require.NotNil(t, policy)

	assert.Equal(t, time.Second, policy.Next(0))
	assert.Equal(t, 2*time.Second, policy.Next(1))
	assert.Equal(t, 4*time.Second, policy.Next(2))
	assert.Equal(t, 8*time.Second, policy.Next(3))
	assert.Equal(t, 8*time.Second, policy.Next(^uint32(0)))
}

func TestConsumerOptionsBuilder(t *testing.T) {
	opts := NewConsumerOptionsBuilder("orders-RETRY", "xresilience").Build()
	assert.Equal(t, pulsar.Shared, opts.Type)
	assert.Nil(t, opts.DLQ)

	opts = NewConsumerOptionsBuilder("orders-RETRY", "xresilience").
		WithType(pulsar.KeyShared).
		WithDLQBuilder(NewDLQBuilder().WithMaxDeliveries(10)).
		WithDLQBuilder(nil).
		WithNackBackoff(xretry.Curve{Base: time.Second, Max: time.Minute, Multiplier: 2}).
		WithNackBackoff(xretry.Curve{}).
		WithNackRedeliveryDelay(0).
		WithNackRedeliveryDelay(30 * time.Second).
		Build()

	assert.Equal(t, "orders-RETRY", opts.Topic)
	assert.Equal(t, "xresilience", opts.SubscriptionName)
	assert.Equal(t, pulsar.KeyShared, opts.Type)
	require.NotNil(t, opts.DLQ)
	assert.Equal(t, uint32(10), opts.DLQ.MaxDeliveries)
	assert.NotNil(t, opts.NackBackoffPolicy)
	assert.Equal(t, 30*time.Second, opts.NackRedeliveryDelay)
}
