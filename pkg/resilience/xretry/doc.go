// Package xretry 提供按错误类别自适应的退避调度。
//
// # 设计理念
//
// Scheduler 是不可变配置：每个错误类别一条退避曲线（Curve），
// 每个操作键一个最大重试次数。调度结果只依赖 (操作键, 类别, 第几次重试)，
// 调用方不需要在多个调用点之间重复退避参数。
//
// # 延迟计算
//
//	exp   = min(base * multiplier^attempt, max)
//	delay = max(100ms, exp ± 25%)
//
// attempt 从 0 开始计数，表示已经进行过的重试次数；
// attempt >= MaxRetries(key) 时返回 STOP（ok=false）。
//
// # 与 retry-go 的关系
//
// 本地重试循环由 [avast/retry-go/v5] 驱动，Scheduler.Options 把调度器
// 适配为 retry-go 的 Attempts/RetryIf/DelayType 选项，等待期间可被 context 取消。
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
package xretry
