package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xresilience/pkg/config/xconf"
	"github.com/omeyang/xresilience/pkg/resilience/xresilience"
	"github.com/omeyang/xresilience/pkg/util/xjson"
)

func createConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "配置相关命令",
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "校验 --config 指定的配置文件",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "持续监视文件，变更后重新校验",
					},
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "监视防抖时间",
						Value: xconf.DefaultDebounce,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := cmd.String("config")
					if path == "" {
						return usagef("config validate 需要 --config")
					}
					if cmd.Bool("watch") {
						return cmdConfigWatch(ctx, cmd, path, cmd.Duration("debounce"))
					}
					return cmdConfigValidate(cmd, path)
				},
			},
		},
	}
}

// configSummary 校验通过时输出的摘要。
type configSummary struct {
	Path              string               `json:"path"`
	Features          xresilience.Features `json:"features"`
	BreakerOperations []string             `json:"breaker_operations"`
	RetryOperations   []string             `json:"retry_operations"`
	RecoveryOverrides []string             `json:"recovery_overrides"`
	MaxRetries        int                  `json:"max_retries"`
	MaxGlobalRetries  int                  `json:"max_global_retries"`
}

func summarize(path string, cfg xresilience.Config) configSummary {
	return configSummary{
		Path:              path,
		Features:          cfg.Features,
		BreakerOperations: sortedKeys(cfg.Breaker.Operations),
		RetryOperations:   sortedKeys(cfg.Retry.Operations),
		RecoveryOverrides: sortedKeys(cfg.Recovery.Overrides),
		MaxRetries:        cfg.Retry.MaxRetries,
		MaxGlobalRetries:  cfg.Escalation.MaxGlobalRetries,
	}
}

func cmdConfigValidate(cmd *cli.Command, path string) error {
	cfg, err := xresilience.LoadConfig(path)
	if err != nil {
		return err
	}
	return xjson.Write(outWriter(cmd), summarize(path, cfg), true)
}

// cmdConfigWatch 先校验一次，之后每次文件变更重新校验。
// 校验失败只打印，不退出；ctx 结束时正常返回。
func cmdConfigWatch(ctx context.Context, cmd *cli.Command, path string, debounce time.Duration) error {
	logger, cleanup, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	c, err := xconf.New(path)
	if err != nil {
		return err
	}
	report := func(c *xconf.Config) {
		cfg := xresilience.DefaultConfig()
		err := c.Unmarshal("", &cfg)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			fmt.Fprintf(outWriter(cmd), "invalid: %v\n", err)
			return
		}
		fmt.Fprintf(outWriter(cmd), "valid: %s\n", path)
	}
	report(c)

	logger.Info(ctx, "watching config", slog.String("path", path))
	err = xconf.Watch(ctx, c, debounce, func(c *xconf.Config, err error) {
		if err != nil {
			fmt.Fprintf(outWriter(cmd), "reload failed: %v\n", err)
			return
		}
		report(c)
	})
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
