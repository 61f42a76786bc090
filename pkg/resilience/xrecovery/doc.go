// Package xrecovery 提供按类型分派的恢复策略注册表。
//
// 本地重试耗尽后，引擎根据操作名与错误类别选择一种恢复策略：
//
//   - model-fallback：沿 [FallbackChain] 切换到替代模型，请求被缩减
//     （MaxTokens ≤ 2000，Temperature ≥ 0.1，保留 system 指令）
//   - compute-retry：等待 min(1s·2^n, 10s) 后以 ≤30s 超时重调原操作，
//     ctx 中携带递增的重试标记（[AttemptMarker]）
//   - network-wait：等待 min(2s·2^n, 30s) 后做一次连通性探测
//   - credential-refresh：刷新凭证，结果即成败
//   - retry-backoff：按带抖动的指数曲线等待后重调原操作
//   - generic：等待 min(500ms·(n+1), 5s) 后交给可插拔的 [Executor]
//
// 所有等待都经过可注入的 [Sleeper]，ctx 取消时立即返回。
// [Registry.Attempt] 在返回前通过 xmetrics.Recorder 上报
// RecoveryAttempts / RecoveryDuration / SuccessfulRecoveries / FailedRecoveries。
//
// Handler 的 error 返回值只用于 ctx 取消；恢复失败通过 Outcome.Success=false 表达。
package xrecovery
