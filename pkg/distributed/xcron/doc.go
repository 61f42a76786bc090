// Package xcron 在 [robfig/cron] 之上提供带分布式锁的周期任务调度，
// 用于多副本部署下的死信归档等维护任务。
//
// 每个任务有名字；配置了 [xdlock.Locker] 时，同名任务每次触发前先尝试获取锁，
// 锁被其他实例持有则跳过本轮并计入 Stats.Skipped。
//
// # 使用
//
//	s := xcron.New(xcron.WithLocker(locker), xcron.WithLogger(logger))
//	_ = s.AddFunc("@every 1h", "dlq-archive", archive, xcron.WithTimeout(10*time.Minute))
//	err := s.Run(ctx) // 阻塞直到 ctx 结束，等待运行中的任务退出
//
// 设计决策: 同一任务上一轮未结束时跳过下一轮（cron.SkipIfStillRunning），
// 单实例内不并发执行同名任务。
//
// [robfig/cron]: https://github.com/robfig/cron
package xcron
