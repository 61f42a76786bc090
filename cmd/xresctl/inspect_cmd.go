package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xresilience/pkg/resilience/xclassify"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
	"github.com/omeyang/xresilience/pkg/resilience/xresilience"
	"github.com/omeyang/xresilience/pkg/resilience/xretry"
	"github.com/omeyang/xresilience/pkg/util/xjson"
)

func createDelayCommand() *cli.Command {
	return &cli.Command{
		Name:      "delay",
		Usage:     "打印操作在某类错误下的本地重试延迟与升级延迟",
		ArgsUsage: "<operation>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "category",
				Aliases: []string{"k"},
				Usage:   "错误类别（throttling, network, timeout, quota, credential, generic），大小写不敏感",
				Value:   xclassify.Generic.String(),
			},
			&cli.BoolFlag{
				Name:  "jitter",
				Usage: "按配置施加抖动（默认关闭以便结果可复现）",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "格式化输出",
				Value: true,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return usagef("delay 需要一个 operation 参数")
			}
			cat, err := xclassify.ParseCategory(cmd.String("category"))
			if err != nil {
				return usagef("%v", err)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			report := delayReport(cfg, cmd.Args().First(), cat, cmd.Bool("jitter"))
			return xjson.Write(outWriter(cmd), report, cmd.Bool("pretty"))
		},
	}
}

// delayInfo delay 命令的输出。
type delayInfo struct {
	Operation        string             `json:"operation"`
	Category         xclassify.Category `json:"category"`
	MaxRetries       int                `json:"max_retries"`
	LocalSchedule    []string           `json:"local_schedule"`
	MaxGlobalRetries int                `json:"max_global_retries"`
	Escalation       []string           `json:"escalation_delays"`
}

func delayReport(cfg xresilience.Config, op string, cat xclassify.Category, jitter bool) delayInfo {
	var opts []xretry.SchedulerOption
	if !jitter {
		opts = append(opts, xretry.WithJitter(0))
	}
	s := cfg.Scheduler(opts...)

	info := delayInfo{
		Operation:        op,
		Category:         cat,
		MaxRetries:       s.MaxRetries(op),
		LocalSchedule:    durations(s.Schedule(op, cat)),
		MaxGlobalRetries: cfg.Escalation.MaxGlobalRetries,
	}
	for n := 0; n < cfg.Escalation.MaxGlobalRetries; n++ {
		info.Escalation = append(info.Escalation, xescalate.EscalationDelay(n).String())
	}
	return info
}

func durations(ds []time.Duration) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}

func createClassifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "对一条错误消息分类并给出选用的恢复策略",
		ArgsUsage: "<message>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "kind",
				Usage: "错误类型名（如 TimeoutError）",
			},
			&cli.StringFlag{
				Name:    "operation",
				Aliases: []string{"o"},
				Usage:   "操作键，用于匹配恢复策略覆盖",
			},
			&cli.BoolFlag{
				Name:  "model",
				Usage: "调用带有模型请求",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return usagef("classify 需要一个 message 参数")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			engine, err := xresilience.New(cfg)
			if err != nil {
				return err
			}
			err = xclassify.NewError(cmd.String("kind"), cmd.Args().First())
			cat := xclassify.Classify(err)
			out := classifyInfo{
				Message:  cmd.Args().First(),
				Kind:     cmd.String("kind"),
				Category: cat,
				Recovery: string(engine.Recovery().Select(cmd.String("operation"), cat, cmd.Bool("model"))),
			}
			return xjson.Write(outWriter(cmd), out, true)
		},
	}
}

// classifyInfo classify 命令的输出。
type classifyInfo struct {
	Message  string             `json:"message"`
	Kind     string             `json:"kind,omitempty"`
	Category xclassify.Category `json:"category"`
	Recovery string             `json:"recovery_type"`
}
