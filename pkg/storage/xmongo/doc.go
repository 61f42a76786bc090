// Package xmongo 死信归档：把升级失败的死信长期保存到 MongoDB 集合。
//
// # 设计理念
//
// Redis/Kafka/Pulsar 的死信通道适合短期排查，容量和保留期有限。
// Archive 实现 xescalate.DeadLetterSink，可直接作为 Manager 的死信出口，
// 也可由运维工具把其他通道的死信批量搬入（ArchiveBatch）。
//
// 每条死信存为一个文档：检索字段（message_id、operation、category、
// dead_lettered_at 等）平铺，完整死信以 JSON 存于 payload，读取时据此还原。
//
// # 核心功能
//
//   - DeadLetter()：写入单条死信
//   - ArchiveBatch()：分批写入（BatchSize 上限 10000）
//   - FindPage()：按操作、类别、时间范围分页查询，按进入死信时间倒序
//   - Take()：按消息 ID 取出并删除一条死信，用于重放
//   - Health() / Stats()：健康检查与统计
//
// Close() 可安全重复调用，首次关闭执行断连，后续调用返回 ErrClosed。
// 除 Stats() 外的所有方法在 Close() 后调用均返回 ErrClosed。
//
// # 超时兜底
//
// 查询默认 30 秒、写入默认 60 秒兜底超时，仅当调用方 context 没有 deadline 时生效。
// 传入 0 可显式禁用：
//
//	archive, _ := xmongo.NewArchive(client, coll,
//	    xmongo.WithQueryTimeout(0),
//	    xmongo.WithWriteTimeout(0),
//	)
//
// # 索引
//
// xmongo 不负责建索引。建议在集合上建立：
//
//	{message_id: 1}
//	{operation: 1, dead_lettered_at: -1}
//	{category: 1, dead_lettered_at: -1}
package xmongo
