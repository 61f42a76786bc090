package xpulsar

import (
	"time"

	"github.com/omeyang/xresilience/pkg/resilience/xretry"

	"github.com/apache/pulsar-client-go/pulsar"
)

// DLQBuilder Pulsar 原生 DLQ 配置构建器，提供流畅的 API 来构建 pulsar.DLQPolicy。
//
// 原生 DLQ 接住的是投递故障（反复 Nack 的消息），业务死信由 DeadLetterSink 负责。
type DLQBuilder struct {
	maxDeliveries           uint32
	deadLetterTopic         string
	initialSubscriptionName string
}

// NewDLQBuilder 创建 DLQ 配置构建器，默认最多投递 3 次。
func NewDLQBuilder() *DLQBuilder {
	return &DLQBuilder{maxDeliveries: 3}
}

// WithMaxDeliveries 设置最大投递次数，超过此次数的消息将被发送到死信 Topic。
func (b *DLQBuilder) WithMaxDeliveries(n uint32) *DLQBuilder {
	if n > 0 {
		b.maxDeliveries = n
	}
	return b
}

// WithDeadLetterTopic 设置死信 Topic 名称。
// 如果不设置，Pulsar 会自动生成：{topic}-{subscription}-DLQ
func (b *DLQBuilder) WithDeadLetterTopic(topic string) *DLQBuilder {
	b.deadLetterTopic = topic
	return b
}

// WithInitialSubscription 设置第一次订阅死信 Topic 时使用的订阅名。
func (b *DLQBuilder) WithInitialSubscription(name string) *DLQBuilder {
	b.initialSubscriptionName = name
	return b
}

// Build 构建 pulsar.DLQPolicy
func (b *DLQBuilder) Build() *pulsar.DLQPolicy {
	return &pulsar.DLQPolicy{
		MaxDeliveries:           b.maxDeliveries,
		DeadLetterTopic:         b.deadLetterTopic,
		InitialSubscriptionName: b.initialSubscriptionName,
	}
}

// curveNackBackoff 将 xretry.Curve 适配为 Pulsar NackBackoffPolicy
type curveNackBackoff struct {
	curve xretry.Curve
}

// ToPulsarNackBackoff 将退避曲线转换为 Pulsar NackBackoffPolicy，非法曲线返回 nil。
func ToPulsarNackBackoff(curve xretry.Curve) pulsar.NackBackoffPolicy {
	if curve.Validate() != nil {
		return nil
	}
	return &curveNackBackoff{curve: curve}
}

// Next 返回第 redeliveryCount 次重投的延迟（从 0 开始）。
func (b *curveNackBackoff) Next(redeliveryCount uint32) time.Duration {
	attempt := int(redeliveryCount)
	// 32 位架构上 uint32 转 int 可能为负，Raw 对负数按 0 处理，这里统一视为已达上限
	if attempt < 0 {
		return b.curve.Max
	}
	return b.curve.Raw(attempt)
}

var _ pulsar.NackBackoffPolicy = (*curveNackBackoff)(nil)

// ConsumerOptionsBuilder Pulsar Consumer 配置构建器
type ConsumerOptionsBuilder struct {
	opts pulsar.ConsumerOptions
}

// NewConsumerOptionsBuilder 创建 Consumer 配置构建器。
//
// 设计决策: 默认订阅类型为 Shared（而非 Pulsar 原生默认的 Exclusive），
// 因为 DeliverAfter 只对 Shared / Key_Shared 订阅生效。
func NewConsumerOptionsBuilder(topic, subscription string) *ConsumerOptionsBuilder {
	return &ConsumerOptionsBuilder{
		opts: pulsar.ConsumerOptions{
			Topic:            topic,
			SubscriptionName: subscription,
			Type:             pulsar.Shared,
		},
	}
}

// WithType 设置订阅类型
func (b *ConsumerOptionsBuilder) WithType(t pulsar.SubscriptionType) *ConsumerOptionsBuilder {
	b.opts.Type = t
	return b
}

// WithDLQBuilder 使用 DLQ Builder 设置原生 DLQ 策略
func (b *ConsumerOptionsBuilder) WithDLQBuilder(builder *DLQBuilder) *ConsumerOptionsBuilder {
	if builder != nil {
		b.opts.DLQ = builder.Build()
	}
	return b
}

// WithNackBackoff 设置 Nack 退避曲线
func (b *ConsumerOptionsBuilder) WithNackBackoff(curve xretry.Curve) *ConsumerOptionsBuilder {
	if policy := ToPulsarNackBackoff(curve); policy != nil {
		b.opts.NackBackoffPolicy = policy
	}
	return b
}

// WithNackRedeliveryDelay 设置 Nack 重投递延迟，delay 必须大于 0。
func (b *ConsumerOptionsBuilder) WithNackRedeliveryDelay(delay time.Duration) *ConsumerOptionsBuilder {
	if delay > 0 {
		b.opts.NackRedeliveryDelay = delay
	}
	return b
}

// Build 构建 pulsar.ConsumerOptions
func (b *ConsumerOptionsBuilder) Build() pulsar.ConsumerOptions {
	return b.opts
}
