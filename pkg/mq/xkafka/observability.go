package xkafka

import (
	"github.com/omeyang/xresilience/pkg/observability/xmetrics"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	componentName = "xkafka"
)

func kafkaAttrs(topic string) []xmetrics.Attr {
	attrs := []xmetrics.Attr{xmetrics.String("messaging.system", "kafka")}
	if topic != "" {
		attrs = append(attrs, xmetrics.String("messaging.destination", topic))
	}
	return attrs
}

func kafkaMessageAttrs(msg *kafka.Message, groupID string) []xmetrics.Attr {
	attrs := kafkaAttrs(topicOf(msg))
	if msg != nil {
		attrs = append(attrs,
			xmetrics.Int("messaging.kafka.partition", int(msg.TopicPartition.Partition)),
			xmetrics.Int("messaging.kafka.offset", int(msg.TopicPartition.Offset)),
		)
	}
	if groupID != "" {
		attrs = append(attrs, xmetrics.String("messaging.kafka.consumer.group", groupID))
	}
	return attrs
}
