package xrecovery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/omeyang/xresilience/pkg/resilience/xclassify"
	"github.com/omeyang/xresilience/pkg/resilience/xretry"
)

// 各策略的等待参数。
const (
	computeBaseWait = time.Second
	computeMaxWait  = 10 * time.Second

	// ComputeMaxTimeout compute-retry 重调的超时上限
	ComputeMaxTimeout = 30 * time.Second

	networkBaseWait = 2 * time.Second
	networkMaxWait  = 30 * time.Second

	genericStepWait = 500 * time.Millisecond
	genericMaxWait  = 5 * time.Second
)

// ComputeWait 返回 compute-retry 的等待时间 min(1s·2^n, 10s)。
func ComputeWait(n int) time.Duration { return expDelay(computeBaseWait, computeMaxWait, n) }

// NetworkWait 返回 network-wait 的等待时间 min(2s·2^n, 30s)。
func NetworkWait(n int) time.Duration { return expDelay(networkBaseWait, networkMaxWait, n) }

// GenericWait 返回 generic 的等待时间 min(500ms·(n+1), 5s)。
func GenericWait(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n >= int(genericMaxWait/genericStepWait) {
		return genericMaxWait
	}
	return genericStepWait * time.Duration(n+1)
}

// StatusCoder 由携带状态码的调用结果实现，compute-retry 以 2xx 作为成功判据。
type StatusCoder interface {
	StatusCode() int
}

// callSucceeded 判定重调结果：无错误，且若结果携带状态码则必须是 2xx。
func callSucceeded(v any, err error) (bool, string) {
	if err != nil {
		return false, err.Error()
	}
	if sc, ok := v.(StatusCoder); ok {
		if code := sc.StatusCode(); code < 200 || code > 299 {
			return false, fmt.Sprintf("downstream returned status %d", code)
		}
	}
	return true, ""
}

// reinvoke 重调原操作。调用被 ctx 取消时返回 ctx.Err()。
func reinvoke(ctx context.Context, req *Request, label string) (Outcome, error) {
	if req.Call == nil {
		return failed("%s: no call to re-invoke", label), nil
	}
	v, err := req.Call(ctx)
	if cerr := ctx.Err(); cerr != nil {
		return Outcome{}, cerr
	}
	ok, reason := callSucceeded(v, err)
	if !ok {
		return failed("%s: %s", label, reason), nil
	}
	return Outcome{Success: true, Detail: label + " succeeded", Value: v}, nil
}

// ComputeRetry 远程计算调用的恢复处理器
type ComputeRetry struct {
	Sleep      Sleeper
	MaxTimeout time.Duration
}

// Recover 等待后以受限超时重调原操作，ctx 中的重试标记为 RetryCount+1。
func (h *ComputeRetry) Recover(ctx context.Context, req *Request) (Outcome, error) {
	if err := h.Sleep.orDefault()(ctx, ComputeWait(req.RetryCount)); err != nil {
		return Outcome{}, err
	}
	timeout := h.MaxTimeout
	if timeout <= 0 || timeout > ComputeMaxTimeout {
		timeout = ComputeMaxTimeout
	}
	callCtx, cancel := context.WithTimeout(WithAttempt(ctx, req.RetryCount+1), timeout)
	defer cancel()

	if req.Call == nil {
		return failed("compute retry: no call to re-invoke"), nil
	}
	v, err := req.Call(callCtx)
	if cerr := ctx.Err(); cerr != nil {
		return Outcome{}, cerr
	}
	ok, reason := callSucceeded(v, err)
	if !ok {
		return failed("compute retry attempt %d: %s", req.RetryCount+1, reason), nil
	}
	return Outcome{Success: true, Detail: fmt.Sprintf("compute retry attempt %d succeeded", req.RetryCount+1), Value: v}, nil
}

// NetworkProber 轻量连通性探测
type NetworkProber interface {
	Probe(ctx context.Context, operation string) error
}

// NetworkProberFunc 函数适配器
type NetworkProberFunc func(ctx context.Context, operation string) error

// Probe 实现 NetworkProber
func (f NetworkProberFunc) Probe(ctx context.Context, operation string) error {
	return f(ctx, operation)
}

// NetworkWaitHandler 网络故障恢复处理器
type NetworkWaitHandler struct {
	Sleep  Sleeper
	Prober NetworkProber
}

// Recover 等待网络恢复后探测；未配置 Prober 时以重调原操作作为探测。
func (h *NetworkWaitHandler) Recover(ctx context.Context, req *Request) (Outcome, error) {
	wait := NetworkWait(req.RetryCount)
	if err := h.Sleep.orDefault()(ctx, wait); err != nil {
		return Outcome{}, err
	}
	if h.Prober == nil {
		return reinvoke(ctx, req, "network probe")
	}
	if err := h.Prober.Probe(ctx, req.Operation); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return Outcome{}, cerr
		}
		return failed("network still unavailable after %s: %v", wait, err), nil
	}
	return Outcome{Success: true, Detail: "network reachable after " + wait.String()}, nil
}

// CredentialRefresher 刷新/校验凭证
type CredentialRefresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// CredentialRefresherFunc 函数适配器
type CredentialRefresherFunc func(ctx context.Context) (bool, error)

// Refresh 实现 CredentialRefresher
func (f CredentialRefresherFunc) Refresh(ctx context.Context) (bool, error) { return f(ctx) }

// CredentialRefresh 凭证刷新处理器
type CredentialRefresh struct {
	Refresher CredentialRefresher
}

// Recover 刷新凭证，刷新结果即恢复结果。
func (h *CredentialRefresh) Recover(ctx context.Context, _ *Request) (Outcome, error) {
	if h.Refresher == nil {
		return failed("no credential refresher configured"), nil
	}
	ok, err := h.Refresher.Refresh(ctx)
	if cerr := ctx.Err(); cerr != nil {
		return Outcome{}, cerr
	}
	if err != nil {
		return failed("credential refresh failed: %v", err), nil
	}
	if !ok {
		return failed("credential refresh rejected"), nil
	}
	return Outcome{Success: true, Detail: "credentials refreshed"}, nil
}

// RetryBackoff 按指数抖动曲线等待后重调原操作
type RetryBackoff struct {
	Sleep  Sleeper
	Curve  xretry.Curve
	Random func() float64
}

// Delay 返回第 n 次恢复的等待时间。
func (h *RetryBackoff) Delay(n int) time.Duration {
	curve := h.Curve
	if curve.Validate() != nil {
		curve = xretry.DefaultCurves()[xclassify.Generic]
	}
	random := h.Random
	if random == nil {
		random = xretry.RandomFloat64
	}
	return curve.Jittered(n, xretry.DefaultJitter, random(), xretry.DefaultFloor)
}

// Recover 实现 Handler
func (h *RetryBackoff) Recover(ctx context.Context, req *Request) (Outcome, error) {
	if err := h.Sleep.orDefault()(ctx, h.Delay(req.RetryCount)); err != nil {
		return Outcome{}, err
	}
	return reinvoke(ctx, req, "retry with backoff")
}

// Executor generic 策略等待结束后的实际执行者
type Executor interface {
	Execute(ctx context.Context, req *Request) (Outcome, error)
}

// ExecutorFunc 函数适配器
type ExecutorFunc func(ctx context.Context, req *Request) (Outcome, error)

// Execute 实现 Executor
func (f ExecutorFunc) Execute(ctx context.Context, req *Request) (Outcome, error) { return f(ctx, req) }

// CallExecutor 默认执行者：重调原操作。
type CallExecutor struct{}

// Execute 实现 Executor
func (CallExecutor) Execute(ctx context.Context, req *Request) (Outcome, error) {
	return reinvoke(ctx, req, "generic retry")
}

// ProbabilityExecutor 以 max(0.2, 0.7−0.15n) 的概率判定成功，不触碰原操作。
//
// 仅用于演练与测试，生产环境使用 CallExecutor。
type ProbabilityExecutor struct {
	Random func() float64
}

// SuccessProbability 返回第 n 次恢复的成功概率。
func SuccessProbability(n int) float64 {
	return math.Max(0.2, 0.7-0.15*float64(max(n, 0)))
}

// Execute 实现 Executor
func (p ProbabilityExecutor) Execute(ctx context.Context, req *Request) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	random := p.Random
	if random == nil {
		random = xretry.RandomFloat64
	}
	prob := SuccessProbability(req.RetryCount)
	if random() < prob {
		return Outcome{Success: true, Detail: fmt.Sprintf("generic recovery succeeded (p=%.2f)", prob)}, nil
	}
	return failed("generic recovery failed (p=%.2f)", prob), nil
}

// Generic 兜底恢复处理器
type Generic struct {
	Sleep    Sleeper
	Executor Executor
}

// Recover 等待 min(500ms·(n+1), 5s) 后交给 Executor。
func (h *Generic) Recover(ctx context.Context, req *Request) (Outcome, error) {
	if err := h.Sleep.orDefault()(ctx, GenericWait(req.RetryCount)); err != nil {
		return Outcome{}, err
	}
	exec := h.Executor
	if exec == nil {
		exec = CallExecutor{}
	}
	out, err := exec.Execute(ctx, req)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		// Executor 只应返回取消错误，其它错误按恢复失败处理
		return failed("generic executor: %v", err), nil
	}
	return out, err
}
