// Package xescalate 处理恢复失败后的升级：延迟重投或进入死信。
//
// Manager 为每次失败计算重投延迟 min(60s·(retryCount+1), 900s)，
// 在全局重投预算内把消息（RetryCount 加一）写入 Queue，
// 超出预算后把完整历史写入 DeadLetterSink。
//
// 消息以 JSON 编码，字段名保持 camelCase 以便与其他语言的消费者互通：
//
//	{"id":"...","recoveryType":"compute-retry","originalOperation":"data-retrieval",
//	 "retryCount":1,"lastAttempt":"2026-03-01T12:00:00Z","category":"NETWORK"}
//
// 消费侧由 Redeliverer 完成：解码消息，按 OperationTable 找回原始调用，
// 再交给 Replayer（通常是 xresilience.Engine）重新执行。
//
// MemoryQueue 和 MemorySink 是进程内实现；Kafka、Pulsar、Redis 与 MongoDB
// 的实现位于 pkg/mq 和 pkg/storage 下。
package xescalate
