// Package xbreaker 提供按操作键隔离的熔断器注册表。
//
// # 设计理念
//
// 每个操作键（OperationKey）拥有独立的熔断状态，首次使用时惰性创建，
// 直到显式 Reset 前一直存在。不同键之间从不共享状态。
//
// 每个键背后是一个 [sony/gobreaker/v2] 的 TwoStepCircuitBreaker：
// Guard 对应 Allow，返回的 Permit 对应 done 回调。恢复策略换算成 gobreaker 的
// MaxRequests 与 Timeout；半开阶段单次探测成功即闭合，名额大于 1 时由 Registry 提前闭合。
//
// 用法:
//
//	permit, err := reg.Guard("data-retrieval")
//	if err != nil {
//	    return err // *BreakerError，不可重试
//	}
//	v, err := call(ctx)
//	permit.Done(err)
//
// # 状态机
//
//	CLOSED --(连续失败 ≥ 阈值)--> OPEN --(超时)--> HALF_OPEN --(探测成功)--> CLOSED
//	HALF_OPEN --(探测失败)--> OPEN
//
// 没有终止状态，熔断器在操作键的生命周期内往复切换。
//
// # 恢复策略
//
//   - gradual：半开阶段发放 1 个探测名额
//   - cautious：1 个探测名额，打开时长乘以 CautiousMultiplier
//   - immediate：立即发放全部 HalfOpenTestRequests 个名额
//
// # 并发
//
// 同一键的放行检查与探测名额预占在 gobreaker 的同一临界区内完成，
// 两个并发调用方不可能同时拿到唯一的探测名额。
// 打开时长按真实时间计算，gobreaker 不支持注入时钟。
//
// [sony/gobreaker/v2]: https://github.com/sony/gobreaker
package xbreaker
