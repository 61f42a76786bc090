// Package xkafka 基于 confluent-kafka-go 实现升级消息的恢复队列与死信后端。
//
// Kafka 没有原生的延迟投递，因此升级消息写入独立的重试 Topic，
// 到期时间放在消息头 x-escalation-deliver-at（Unix 毫秒）中；
// 消费侧读取后等待到期，再交给 xescalate.Redeliverer 重放。
//
// # 组件
//
//   - [Producer]：同步发送（等待 delivery report），注入追踪头并记录 span
//   - [Queue]：实现 xescalate.Queue，写入重试 Topic
//   - [DeadLetterSink]：实现 xescalate.DeadLetterSink，写入死信 Topic
//   - [Consumer]：读取、处理、存储 offset 的消费循环
//   - [RedeliverHandler]：把重试 Topic 的消息交给 Redeliverer
//
// 推荐使用 [DefaultRetryTopic] / [DefaultDLQTopic] 生成 Topic 名称以保持命名一致性。
//
// # Offset 提交模型
//
// 本包强制设置 enable.auto.offset.store=false 以确保 at-least-once 语义。
// Offset 仅在成功处理后通过 StoreMessage 存储，由 auto-commit 机制定期提交。
// 处理失败时 Seek 回该消息，下一次读取会重新投递。Close() 时会执行一次显式 Commit。
//
// 设计决策: 未到期的消息不会长时间阻塞轮询。单次最多等待 MaxWait（默认 30s，
// 远小于 max.poll.interval.ms），仍未到期则返回 [ErrNotDue] 并回退 offset，
// 避免消费者因长时间不轮询被踢出消费组。
//
// # 并发安全
//
// Consumer.Consume 通过 closeMu RWMutex 与 Close 协调，
// 确保消息处理完成（含 StoreMessage）后才关闭资源。
package xkafka
