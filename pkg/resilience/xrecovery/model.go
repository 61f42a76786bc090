package xrecovery

import (
	"context"
	"errors"
	"strings"
)

// 降级请求的缩减上限。
const (
	FallbackMaxTokens      = 2000
	FallbackMinTemperature = 0.1

	// DefaultFallbackPrompt 原请求没有用户消息时使用的提示词。
	DefaultFallbackPrompt = "Generate a simple analysis based on the provided data."
)

// ModelRequest 一次模型调用的请求
type ModelRequest struct {
	ModelID     string  `json:"modelId"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Reduced 构造发往替代模型的缩减请求：MaxTokens ≤ 2000，Temperature ≥ 0.1，
// System 原样保留。未设置的 MaxTokens / Temperature 分别取上限与下限。
func (r ModelRequest) Reduced(modelID string) ModelRequest {
	out := ModelRequest{
		ModelID:     modelID,
		System:      r.System,
		Prompt:      r.Prompt,
		MaxTokens:   FallbackMaxTokens,
		Temperature: FallbackMinTemperature,
	}
	if strings.TrimSpace(out.Prompt) == "" {
		out.Prompt = DefaultFallbackPrompt
	}
	if r.MaxTokens > 0 && r.MaxTokens < FallbackMaxTokens {
		out.MaxTokens = r.MaxTokens
	}
	if r.Temperature > FallbackMinTemperature {
		out.Temperature = r.Temperature
	}
	return out
}

// ModelInvoker 调用一个模型并返回文本输出。
type ModelInvoker interface {
	Invoke(ctx context.Context, req ModelRequest) (string, error)
}

// ModelInvokerFunc 函数适配器
type ModelInvokerFunc func(ctx context.Context, req ModelRequest) (string, error)

// Invoke 实现 ModelInvoker
func (f ModelInvokerFunc) Invoke(ctx context.Context, req ModelRequest) (string, error) {
	return f(ctx, req)
}

// ModelResult 降级成功的结果
type ModelResult struct {
	ModelID       string `json:"modelId"`
	OriginalModel string `json:"originalModel"`
	Text          string `json:"text"`
}

// ModelFallback 模型降级处理器
type ModelFallback struct {
	Chain   *FallbackChain
	Invoker ModelInvoker
}

// Recover 沿降级链依次尝试替代模型，首个返回非空文本的模型即成功。
func (h *ModelFallback) Recover(ctx context.Context, req *Request) (Outcome, error) {
	if req.Model == nil {
		return failed("no model call attached to %s", req.Operation), nil
	}
	if h.Invoker == nil {
		return failed("no model invoker configured"), nil
	}
	candidates := h.Chain.Walk(req.Model.ModelID)
	if len(candidates) == 0 {
		return failed("model %s has no fallback", req.Model.ModelID), nil
	}

	var tried []string
	for _, model := range candidates {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		text, err := h.Invoker.Invoke(ctx, req.Model.Reduced(model))
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return Outcome{}, ctx.Err()
		}
		if err == nil && strings.TrimSpace(text) != "" {
			return Outcome{
				Success: true,
				Detail:  "fell back from " + req.Model.ModelID + " to " + model,
				Value:   ModelResult{ModelID: model, OriginalModel: req.Model.ModelID, Text: text},
			}, nil
		}
		tried = append(tried, model)
	}
	return failed("all fallback models failed: %s", strings.Join(tried, ", ")), nil
}
