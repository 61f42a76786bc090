package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/resilience/xresilience"
)

// newLogger 按全局选项构建日志。默认输出到 stderr，stdout 只留给命令结果；
// 指定 --log-file 时写入按大小轮转的文件。
func newLogger(cmd *cli.Command) (xlog.Logger, func() error, error) {
	b := xlog.New().
		SetOutput(errWriter(cmd)).
		SetLevelString(cmd.String("log-level")).
		SetFormat(cmd.String("log-format")).
		SetFields(slog.String("app", "xresctl"))
	if path := cmd.String("log-file"); path != "" {
		b.SetRotation(path, xlog.Rotation{
			MaxSizeMB:  cmd.Int("log-max-size"),
			MaxBackups: cmd.Int("log-max-backups"),
			Compress:   true,
		})
	}
	logger, cleanup, err := b.Build()
	if err != nil {
		return nil, nil, usagef("%v", err)
	}
	return logger, cleanup, nil
}

// loadConfig 加载 --config；未指定时返回默认配置。
func loadConfig(cmd *cli.Command) (xresilience.Config, error) {
	path := cmd.String("config")
	if path == "" {
		return xresilience.DefaultConfig(), nil
	}
	return xresilience.LoadConfig(path)
}

func outWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func errWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}
