// xresctl 是弹性引擎的运维命令行工具。
//
// 用法:
//
//	xresctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config      引擎配置文件（YAML/JSON），缺省时使用默认配置
//	--log-level       日志级别 (debug/info/warn/error，默认 info)
//	--log-format      日志格式 (text/json，默认 text)
//	--log-file        日志文件，按 --log-max-size 轮转；缺省输出到 stderr
//
// 命令:
//
//	config validate   校验配置文件，--watch 时持续监视并在变更后重新校验
//	delay             打印某类别的本地重试延迟序列与升级延迟
//	classify <消息>   对一条错误消息分类并给出将采用的恢复策略
//	consume           运行升级消费者（redis/kafka/pulsar）
//	dlq list          列出死信（redis 或 mongo 归档）
//	dlq replay <id>   把一条死信放回 redis 重试队列
//	dlq archive       把 redis 死信批量归档到 mongo，--cron 时周期执行
//
// 退出码:
//
//	0: 成功
//	1: 执行失败（含配置校验不通过）
//	2: 参数错误
//
// 示例:
//
//	xresctl -c resilience.yaml config validate --watch
//	xresctl -c resilience.yaml delay --category network data-retrieval
//	xresctl classify --kind ECONNRESET "connection reset by peer"
//	xresctl consume --backend redis --redis-addr localhost:6379 --ack data-retrieval
//	xresctl --log-file /var/log/xresctl.log dlq archive --purge --cron "@every 1h"
//	xresctl dlq list --source mongo --mongo-uri mongodb://localhost:27017 --limit 20
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

// 版本信息，可通过 -ldflags "-X main.Version=..." 注入。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xresctl",
		Usage:   "弹性引擎运维工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "引擎配置文件（YAML/JSON）",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "日志格式 (text/json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "日志文件路径，缺省输出到 stderr",
			},
			&cli.IntFlag{
				Name:  "log-max-size",
				Usage: "单个日志文件上限（MB）",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "log-max-backups",
				Usage: "保留的历史日志文件数",
				Value: 5,
			},
		},
		Commands: []*cli.Command{
			createConfigCommand(),
			createDelayCommand(),
			createClassifyCommand(),
			createConsumeCommand(),
			createDLQCommand(),
		},
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，由 run() 统一映射退出码。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run(args []string) int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	return exitCode(app.Run(ctx, args))
}

// exitCode 把命令错误映射为退出码。
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	if isCLIUsageError(err) {
		return 2
	}
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	return 1
}

// setupSignalHandler 第一次信号取消 context，第二次强制退出。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
