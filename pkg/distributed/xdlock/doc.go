// Package xdlock 提供基于 Redis 的分布式互斥锁，用于保证维护任务（如死信归档）
// 在多副本部署时同一时刻只有一个实例执行。
//
// 锁由 [redsync] 实现：单节点为标准 SET NX PX 锁，多节点使用 Redlock（需过半成功）。
//
// # 使用
//
//	locker, _ := xdlock.NewLocker([]redis.UniversalClient{rdb}, xdlock.WithExpiry(time.Minute))
//	ran, err := xdlock.Guard(ctx, locker, "dlq-archive", func(ctx context.Context) error {
//	    return archive(ctx)
//	})
//	if !ran {
//	    // 其他实例正在执行
//	}
//
// # 续期
//
// Guard 在 fn 执行期间按 Expiry/3 的间隔续期。续期确认锁已丢失时取消 fn 的 context，
// fn 必须响应 ctx.Done()，否则可能在失去锁后继续执行。
//
// 提供尽力互斥语义：Redis 主从切换可能导致短暂的双持有。
//
// [redsync]: https://github.com/go-redsync/redsync
package xdlock
