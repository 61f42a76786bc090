// Package xredisq 基于 Redis 的升级队列后端。
//
// 组件：
//   - Queue: 实现 xescalate.Queue，消息写入 ZSET，score 为到期时间（Unix 毫秒）
//   - Consumer: 轮询 ZSET，原子取出已到期成员交给 xescalate.Redeliverer
//   - DeadLetters: 实现 xescalate.DeadLetterSink，死信写入 LIST，支持查看与重放
//
// 取出到期消息使用 Lua 脚本（ZRANGEBYSCORE + ZREM），多个消费者并发轮询时
// 同一成员只会被一个消费者取到。
//
// 设计决策: 取出即删除，处理失败时由 Consumer 按 requeueDelay 写回 ZSET。
// 进程在取出与写回之间崩溃会丢失该消息；需要至少一次语义时使用 xkafka 或 xpulsar。
//
// 基本用法：
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	queue, _ := xredisq.NewQueue(rdb, "resilience:retry")
//	sink, _ := xredisq.NewDeadLetters(rdb, "resilience:dlq")
//	manager, _ := xescalate.NewManager(queue, sink)
//
//	consumer, _ := xredisq.NewConsumer(queue, redeliverer)
//	go consumer.ConsumeLoop(ctx)
package xredisq
