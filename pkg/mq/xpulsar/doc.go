// Package xpulsar 基于 Apache Pulsar 实现升级消息的恢复队列与死信后端。
//
// Pulsar 原生支持延迟投递：[Queue] 把 xescalate.EscalationDelay 直接写入
// ProducerMessage.DeliverAfter，Broker 到期后才把消息推给订阅者。
// 消息属性中同样带有 x-escalation-* 头，便于不解码消息体就能排查。
//
// # 组件
//
//   - [Client]：连接管理，创建带追踪的 [Producer] / [Consumer]
//   - [Queue] / [DeadLetterSink]：实现 xescalate.Queue / xescalate.DeadLetterSink
//   - [Consumer]：成功 Ack、失败 Nack 的消费循环
//   - [RedeliverHandler]：把重试 Topic 的消息交给 xescalate.Redeliverer
//   - [DLQBuilder] / [ConsumerOptionsBuilder]：Pulsar 原生 DLQ 与 Nack 退避配置
//
// 设计决策: 延迟投递只对 Shared / Key_Shared 订阅生效，Exclusive 订阅会立即收到消息。
// ConsumerOptionsBuilder 默认使用 Shared；若消息提前到达，RedeliverHandler
// 返回 [ErrNotDue]，消息被 Nack 后按 Nack 退避重新投递。
//
// # 死信的两条路径
//
// 超出重投预算的事件由 xescalate.Manager 写入 [DeadLetterSink]（业务死信，带完整历史）；
// Nack 次数超过 DLQBuilder.WithMaxDeliveries 的消息由 Pulsar 原生 DLQ 转移
// （投递故障，例如恢复队列与死信同时不可用）。两者使用不同的 Topic。
package xpulsar
