// Package xlimit 为升级重投提供分布式限流，防止大量积压消息同时重投
// 冲击下游服务。
//
// 限流由 [redis_rate] 的 GCRA 算法实现，所有副本共享同一 Redis 计数。
// Redis 不可用时按 [Fallback] 降级：FallbackOpen（默认）放行，FallbackClose 拒绝。
//
// # 使用
//
//	l, _ := xlimit.New(rdb, xlimit.PerSecond(20), xlimit.WithLogger(logger))
//	if err := xlimit.Wait(ctx, l, "data-retrieval"); err != nil {
//	    return err
//	}
//
// [redis_rate]: https://github.com/go-redis/redis_rate
package xlimit
