package xresilience

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/omeyang/xresilience/pkg/config/xconf"
	"github.com/omeyang/xresilience/pkg/resilience/xbreaker"
	"github.com/omeyang/xresilience/pkg/resilience/xclassify"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
	"github.com/omeyang/xresilience/pkg/resilience/xrecovery"
	"github.com/omeyang/xresilience/pkg/resilience/xretry"
)

// Config 引擎配置，启动时加载并校验一次，之后只读。
//
// YAML 示例:
//
//	features:
//	  circuit_breaker: true
//	breaker:
//	  default: {failure_threshold: 5, timeout: 60s, strategy: gradual}
//	  operations:
//	    model-inference: {failure_threshold: 3, strategy: cautious}
//	retry:
//	  max_retries: 5
//	  operations: {data-retrieval: 3}
//	  curves:
//	    network: {base_delay: 1500ms, max_delay: 45s, multiplier: 1.5}
//	recovery:
//	  overrides: {nightly-report: generic}
//	  fallback_links: {premium-model: standard-model, standard-model: lite-model}
//	  terminal_model: lite-model
//	escalation:
//	  max_global_retries: 2
type Config struct {
	Features   Features         `json:"features" yaml:"features" koanf:"features"`
	Breaker    BreakerConfig    `json:"breaker" yaml:"breaker" koanf:"breaker"`
	Retry      RetryConfig      `json:"retry" yaml:"retry" koanf:"retry"`
	Recovery   RecoveryConfig   `json:"recovery" yaml:"recovery" koanf:"recovery"`
	Escalation EscalationConfig `json:"escalation" yaml:"escalation" koanf:"escalation"`
}

// Features 功能开关
type Features struct {
	CircuitBreaker bool `json:"circuit_breaker" yaml:"circuit_breaker" koanf:"circuit_breaker"`
	Recovery       bool `json:"recovery" yaml:"recovery" koanf:"recovery"`
	Escalation     bool `json:"escalation" yaml:"escalation" koanf:"escalation"`
}

// BreakerConfig 熔断配置
type BreakerConfig struct {
	Default    xbreaker.Settings            `json:"default" yaml:"default" koanf:"default"`
	Operations map[string]xbreaker.Settings `json:"operations" yaml:"operations" koanf:"operations"`
}

// RetryConfig 本地重试配置
type RetryConfig struct {
	// MaxRetries 未单独配置的操作键的最大本地重试次数
	MaxRetries int `json:"max_retries" yaml:"max_retries" koanf:"max_retries"`

	// Operations 操作键 → 最大本地重试次数
	Operations map[string]int `json:"operations" yaml:"operations" koanf:"operations"`

	// Curves 类别名（大小写不敏感）→ 退避曲线，只需列出要覆盖默认值的类别
	Curves map[string]xretry.Curve `json:"curves" yaml:"curves" koanf:"curves"`

	// Jitter 对称抖动比例
	Jitter float64 `json:"jitter" yaml:"jitter" koanf:"jitter"`

	// Floor 延迟下限
	Floor time.Duration `json:"floor" yaml:"floor" koanf:"floor"`
}

// RecoveryConfig 恢复策略配置
type RecoveryConfig struct {
	// Overrides 操作键 → 恢复类型名（接受旧别名）
	Overrides map[string]string `json:"overrides" yaml:"overrides" koanf:"overrides"`

	// FallbackLinks 模型 → 替代模型；与 TerminalModel 都为空时使用默认降级链
	FallbackLinks map[string]string `json:"fallback_links" yaml:"fallback_links" koanf:"fallback_links"`
	TerminalModel string            `json:"terminal_model" yaml:"terminal_model" koanf:"terminal_model"`
}

// EscalationConfig 升级配置
type EscalationConfig struct {
	MaxGlobalRetries int `json:"max_global_retries" yaml:"max_global_retries" koanf:"max_global_retries"`
}

// DefaultConfig 返回默认配置：全部功能开启，各项取包默认值。
func DefaultConfig() Config {
	return Config{
		Features: Features{CircuitBreaker: true, Recovery: true, Escalation: true},
		Breaker: BreakerConfig{
			Default:    xbreaker.DefaultSettings(),
			Operations: map[string]xbreaker.Settings{},
		},
		Retry: RetryConfig{
			MaxRetries: xretry.DefaultMaxRetries,
			Operations: map[string]int{},
			Curves:     map[string]xretry.Curve{},
			Jitter:     xretry.DefaultJitter,
			Floor:      xretry.DefaultFloor,
		},
		Recovery:   RecoveryConfig{Overrides: map[string]string{}},
		Escalation: EscalationConfig{MaxGlobalRetries: xescalate.DefaultMaxGlobalRetries},
	}
}

// LoadConfig 从文件加载配置：在 DefaultConfig 之上覆盖文件中出现的键，然后校验。
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := xconf.Load(path, "", &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 校验配置，返回的错误包含全部问题并包装 ErrInvalidConfig。
func (c Config) Validate() error {
	var errs []error
	add := func(err error, format string, args ...any) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err))
		}
	}

	def := c.Breaker.Default.Merge(xbreaker.DefaultSettings())
	add(def.Validate(), "breaker.default")
	for _, key := range sortedKeys(c.Breaker.Operations) {
		add(c.Breaker.Operations[key].Merge(def).Validate(), "breaker.operations.%s", key)
	}

	if c.Retry.MaxRetries < 0 {
		add(xretry.ErrInvalidMaxRetries, "retry.max_retries")
	}
	for _, key := range sortedKeys(c.Retry.Operations) {
		if c.Retry.Operations[key] < 0 {
			add(xretry.ErrInvalidMaxRetries, "retry.operations.%s", key)
		}
	}
	seen := make(map[xclassify.Category]string)
	for _, name := range sortedKeys(c.Retry.Curves) {
		cat, err := xclassify.ParseCategory(name)
		if err != nil {
			add(err, "retry.curves.%s", name)
			continue
		}
		if prev, dup := seen[cat]; dup {
			add(fmt.Errorf("duplicates %s", prev), "retry.curves.%s", name)
		}
		seen[cat] = name
		add(c.Retry.Curves[name].Validate(), "retry.curves.%s", name)
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		add(fmt.Errorf("jitter must be within [0, 1], got %g", c.Retry.Jitter), "retry.jitter")
	}
	if c.Retry.Floor < 0 {
		add(fmt.Errorf("floor cannot be negative, got %s", c.Retry.Floor), "retry.floor")
	}

	for _, op := range sortedKeys(c.Recovery.Overrides) {
		_, err := xrecovery.ParseType(c.Recovery.Overrides[op])
		add(err, "recovery.overrides.%s", op)
	}
	_, err := c.fallbackChain()
	add(err, "recovery.fallback_links")

	if c.Escalation.MaxGlobalRetries < 0 {
		add(fmt.Errorf("cannot be negative, got %d", c.Escalation.MaxGlobalRetries), "escalation.max_global_retries")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func (c Config) fallbackChain() (*xrecovery.FallbackChain, error) {
	if len(c.Recovery.FallbackLinks) == 0 && c.Recovery.TerminalModel == "" {
		return xrecovery.DefaultFallbackChain(), nil
	}
	return xrecovery.NewFallbackChain(c.Recovery.FallbackLinks, c.Recovery.TerminalModel)
}

// Scheduler 按配置构造重试调度器。配置须已通过 Validate。
func (c Config) Scheduler(opts ...xretry.SchedulerOption) *xretry.Scheduler {
	all := []xretry.SchedulerOption{
		xretry.WithDefaultMaxRetries(c.Retry.MaxRetries),
		xretry.WithJitter(c.Retry.Jitter),
		xretry.WithFloor(c.Retry.Floor),
	}
	for name, curve := range c.Retry.Curves {
		if cat, err := xclassify.ParseCategory(name); err == nil {
			all = append(all, xretry.WithCurve(cat, curve))
		}
	}
	for key, n := range c.Retry.Operations {
		all = append(all, xretry.WithMaxRetries(key, n))
	}
	return xretry.NewScheduler(append(all, opts...)...)
}

func (c Config) breakerOptions() []xbreaker.RegistryOption {
	opts := []xbreaker.RegistryOption{xbreaker.WithDefaultSettings(c.Breaker.Default)}
	for key, s := range c.Breaker.Operations {
		opts = append(opts, xbreaker.WithOperationSettings(key, s))
	}
	return opts
}

func (c Config) recoveryOptions() []xrecovery.Option {
	var opts []xrecovery.Option
	for op, name := range c.Recovery.Overrides {
		if t, err := xrecovery.ParseType(name); err == nil {
			opts = append(opts, xrecovery.WithOverride(op, t))
		}
	}
	if chain, err := c.fallbackChain(); err == nil {
		opts = append(opts, xrecovery.WithFallbackChain(chain))
	}
	return opts
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
