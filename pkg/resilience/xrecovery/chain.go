package xrecovery

import (
	"fmt"
	"sort"
	"strings"
)

// 默认降级链使用的模型 ID。
const (
	ModelNovaPremier  = "amazon.nova-premier-v1:0"
	ModelTitanExpress = "amazon.titan-text-express-v1"
	ModelTitanLite    = "amazon.titan-text-lite-v1"
)

// FallbackChain 模型降级链，构造时校验无环，沿链行走必然终止。
//
// 链上没有显式后继的模型（终点模型除外）统一降级到 terminal。
type FallbackChain struct {
	next     map[string]string
	terminal string
}

// NewFallbackChain 由 "模型 → 替代模型" 映射构造降级链。
//
// terminal 为空表示未知模型不降级；terminal 自身不能再有后继。
func NewFallbackChain(links map[string]string, terminal string) (*FallbackChain, error) {
	terminal = strings.TrimSpace(terminal)
	next := make(map[string]string, len(links))
	for from, to := range links {
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if from == "" || to == "" {
			return nil, fmt.Errorf("%w: empty model id in link %q -> %q", ErrInvalidChain, from, to)
		}
		if from == to {
			return nil, fmt.Errorf("%w: %s falls back to itself", ErrCyclicChain, from)
		}
		next[from] = to
	}
	if _, ok := next[terminal]; ok && terminal != "" {
		return nil, fmt.Errorf("%w: terminal model %s has a successor", ErrInvalidChain, terminal)
	}

	// 从每个起点出发行走，出现重复即为环
	for _, start := range sortedKeys(next) {
		seen := map[string]bool{start: true}
		for cur, ok := next[start]; ok; cur, ok = next[cur] {
			if seen[cur] {
				return nil, fmt.Errorf("%w: %s revisits %s", ErrCyclicChain, start, cur)
			}
			seen[cur] = true
		}
	}
	return &FallbackChain{next: next, terminal: terminal}, nil
}

// LinearChain 按顺序构造降级链，最后一个模型为终点。
func LinearChain(models ...string) (*FallbackChain, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: no models", ErrInvalidChain)
	}
	links := make(map[string]string, len(models)-1)
	for i := 0; i+1 < len(models); i++ {
		if _, dup := links[models[i]]; dup {
			return nil, fmt.Errorf("%w: %s appears twice", ErrCyclicChain, models[i])
		}
		links[models[i]] = models[i+1]
	}
	return NewFallbackChain(links, models[len(models)-1])
}

// DefaultFallbackChain nova-premier → titan-express → titan-lite。
func DefaultFallbackChain() *FallbackChain {
	return &FallbackChain{
		next: map[string]string{
			ModelNovaPremier:  ModelTitanExpress,
			ModelTitanExpress: ModelTitanLite,
		},
		terminal: ModelTitanLite,
	}
}

// Next 返回 model 的直接替代模型。
func (c *FallbackChain) Next(model string) (string, bool) {
	if c == nil {
		return "", false
	}
	if to, ok := c.next[model]; ok {
		return to, true
	}
	if c.terminal != "" && model != c.terminal {
		return c.terminal, true
	}
	return "", false
}

// Walk 返回从 model 出发依次尝试的替代模型（不含 model 自身）。
func (c *FallbackChain) Walk(model string) []string {
	var path []string
	seen := map[string]bool{model: true}
	for cur, ok := c.Next(model); ok && !seen[cur]; cur, ok = c.Next(cur) {
		seen[cur] = true
		path = append(path, cur)
	}
	return path
}

// Terminal 返回终点模型。
func (c *FallbackChain) Terminal() string {
	if c == nil {
		return ""
	}
	return c.terminal
}

// Links 返回链的映射副本。
func (c *FallbackChain) Links() map[string]string {
	if c == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(c.next))
	for k, v := range c.next {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
