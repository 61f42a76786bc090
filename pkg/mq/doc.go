// Package mq 提供升级队列的消息队列后端。
//
// 子包列表：
//   - xkafka: Kafka 后端，延迟由消息头 + 消费侧等待实现
//   - xpulsar: Pulsar 后端，使用原生 DeliverAfter
//   - xredisq: Redis 后端，ZSET 延迟队列 + LIST 死信
//
// 内部包：
//   - internal/mqcore: 共享的消息头、消费循环与追踪传播
//
// 三个后端都实现 xescalate.Queue 与 xescalate.DeadLetterSink，
// 消费侧统一交给 xescalate.Redeliverer 处理。
package mq
