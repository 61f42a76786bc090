package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xresilience/pkg/lifecycle/xrun"
	"github.com/omeyang/xresilience/pkg/mq/xkafka"
	"github.com/omeyang/xresilience/pkg/mq/xpulsar"
	"github.com/omeyang/xresilience/pkg/mq/xredisq"
	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
	"github.com/omeyang/xresilience/pkg/resilience/xlimit"
	"github.com/omeyang/xresilience/pkg/resilience/xresilience"
	"github.com/omeyang/xresilience/pkg/util/xjson"
)

// 消费后端
const (
	backendRedis  = "redis"
	backendKafka  = "kafka"
	backendPulsar = "pulsar"
)

const closeTimeout = 10 * time.Second

func createConsumeCommand() *cli.Command {
	return &cli.Command{
		Name:  "consume",
		Usage: "运行升级消费者，把到期的恢复消息交给引擎重放",
		Flags: append(backendFlags(),
			&cli.StringFlag{
				Name:  "backend",
				Usage: "队列后端 (redis/kafka/pulsar)",
				Value: backendRedis,
			},
			&cli.StringSliceFlag{
				Name:  "ack",
				Usage: "注册为直接成功的操作名，可重复；未注册的操作进入死信",
			},
			&cli.DurationFlag{
				Name:  "stats-interval",
				Usage: "周期打印引擎与消费者统计，0 表示关闭",
				Value: time.Minute,
			},
			&cli.IntFlag{
				Name:  "rate",
				Usage: "每个操作每秒最多重放次数，配额存放在 --redis-addr，0 表示不限",
			},
			&cli.StringFlag{
				Name:  "rate-fallback",
				Usage: "限流 redis 不可用时的策略 (open/close)",
				Value: string(xlimit.FallbackOpen),
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "只处理一批到期消息后退出（仅 redis）",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger, cleanup, err := newLogger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := openBackend(ctx, cmd, logger)
			if err != nil {
				return err
			}
			return runConsumer(ctx, cmd, cfg, b, logger)
		},
	}
}

// redisFlags Redis 连接与键名参数，consume 与 dlq 共用。
func redisFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "redis-addr",
			Usage: "Redis 地址，逗号分隔多个时按集群连接",
			Value: "localhost:6379",
		},
		&cli.StringFlag{
			Name:  "queue-key",
			Usage: "Redis 重试队列 ZSET 键",
			Value: "resilience:retry",
		},
		&cli.StringFlag{
			Name:  "dlq-key",
			Usage: "Redis 死信 LIST 键",
			Value: "resilience:dlq",
		},
		&cli.Int64Flag{
			Name:  "dlq-max-len",
			Usage: "Redis 死信最多保留条数，0 表示不限",
		},
	}
}

// backendFlags 各后端的连接参数。
func backendFlags() []cli.Flag {
	return append(redisFlags(),
		&cli.StringFlag{
			Name:  "brokers",
			Usage: "Kafka bootstrap.servers",
			Value: "localhost:9092",
		},
		&cli.StringFlag{
			Name:  "group",
			Usage: "Kafka 消费组",
			Value: "xresilience",
		},
		&cli.StringFlag{
			Name:  "pulsar-url",
			Usage: "Pulsar 服务地址",
			Value: "pulsar://localhost:6650",
		},
		&cli.StringFlag{
			Name:  "subscription",
			Usage: "Pulsar 订阅名",
			Value: "xresilience",
		},
		&cli.StringFlag{
			Name:  "topic",
			Usage: "业务 Topic，重试与死信 Topic 由它派生",
			Value: "resilience",
		},
	)
}

// backend 一个已连接的队列后端。
type backend struct {
	name  string
	queue xescalate.Queue
	sink  xescalate.DeadLetterSink

	// loop 阻塞消费直到 ctx 取消
	loop func(ctx context.Context, r *xescalate.Redeliverer) error

	// once 只处理一批，nil 表示后端不支持
	once func(ctx context.Context, r *xescalate.Redeliverer) (int, error)

	stats func() any
	close func(ctx context.Context) error
}

func openBackend(ctx context.Context, cmd *cli.Command, logger xlog.Logger) (*backend, error) {
	switch name := cmd.String("backend"); name {
	case backendRedis:
		return openRedisBackend(ctx, cmd, logger)
	case backendKafka:
		return openKafkaBackend(cmd, logger)
	case backendPulsar:
		return openPulsarBackend(cmd, logger)
	default:
		return nil, usagef("未知后端 %q", name)
	}
}

func newRedisClient(ctx context.Context, cmd *cli.Command) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: strings.Split(cmd.String("redis-addr"), ","),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("connect redis: %w", err), client.Close())
	}
	return client, nil
}

func openRedisBackend(ctx context.Context, cmd *cli.Command, logger xlog.Logger) (*backend, error) {
	client, err := newRedisClient(ctx, cmd)
	if err != nil {
		return nil, err
	}
	queue, err := xredisq.NewQueue(client, cmd.String("queue-key"))
	if err != nil {
		return nil, errors.Join(err, client.Close())
	}
	sink, err := xredisq.NewDeadLetters(client, cmd.String("dlq-key"), xredisq.WithMaxLen(cmd.Int64("dlq-max-len")))
	if err != nil {
		return nil, errors.Join(err, client.Close())
	}

	var consumer *xredisq.Consumer
	getConsumer := func(r *xescalate.Redeliverer) (*xredisq.Consumer, error) {
		if consumer != nil {
			return consumer, nil
		}
		c, err := xredisq.NewConsumer(queue, r, xredisq.WithLogger(logger))
		consumer = c
		return c, err
	}
	return &backend{
		name:  backendRedis,
		queue: queue,
		sink:  sink,
		loop: func(ctx context.Context, r *xescalate.Redeliverer) error {
			c, err := getConsumer(r)
			if err != nil {
				return err
			}
			return c.ConsumeLoop(ctx)
		},
		once: func(ctx context.Context, r *xescalate.Redeliverer) (int, error) {
			c, err := getConsumer(r)
			if err != nil {
				return 0, err
			}
			return c.ConsumeOnce(ctx)
		},
		stats: func() any {
			if consumer == nil {
				return nil
			}
			return consumer.Stats()
		},
		close: func(context.Context) error { return client.Close() },
	}, nil
}

func openKafkaBackend(cmd *cli.Command, logger xlog.Logger) (*backend, error) {
	brokers := cmd.String("brokers")
	topic := cmd.String("topic")

	producer, err := xkafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": brokers})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	queue, err := xkafka.NewQueue(producer, xkafka.DefaultRetryTopic(topic))
	if err != nil {
		return nil, errors.Join(err, producer.Close())
	}
	sink, err := xkafka.NewDeadLetterSink(producer, xkafka.DefaultDLQTopic(topic))
	if err != nil {
		return nil, errors.Join(err, producer.Close())
	}
	consumer, err := xkafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"group.id":          cmd.String("group"),
		"auto.offset.reset": "earliest",
	}, []string{queue.Topic()}, xkafka.WithConsumerLogger(logger))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create kafka consumer: %w", err), producer.Close())
	}

	return &backend{
		name:  backendKafka,
		queue: queue,
		sink:  sink,
		loop: func(ctx context.Context, r *xescalate.Redeliverer) error {
			return consumer.ConsumeLoop(ctx, xkafka.RedeliverHandler(r, xkafka.WithRedeliverLogger(logger)))
		},
		stats: func() any {
			return map[string]any{"consumer": consumer.Stats(), "producer": producer.Stats()}
		},
		close: func(context.Context) error {
			// 先关消费者提交位点，再关生产者刷出重投消息
			return errors.Join(consumer.Close(), producer.Close())
		},
	}, nil
}

func openPulsarBackend(cmd *cli.Command, logger xlog.Logger) (*backend, error) {
	client, err := xpulsar.NewClient(cmd.String("pulsar-url"), xpulsar.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create pulsar client: %w", err)
	}
	topic := cmd.String("topic")
	retryTopic := xpulsar.DefaultRetryTopic(topic)

	retryProducer, err := client.CreateProducer(pulsar.ProducerOptions{Topic: retryTopic})
	if err != nil {
		return nil, errors.Join(err, client.Close())
	}
	dlqProducer, err := client.CreateProducer(pulsar.ProducerOptions{Topic: xpulsar.DefaultDLQTopic(topic)})
	if err != nil {
		retryProducer.Close()
		return nil, errors.Join(err, client.Close())
	}
	queue, err := xpulsar.NewQueue(retryProducer, nil)
	if err != nil {
		return nil, err
	}
	sink, err := xpulsar.NewDeadLetterSink(dlqProducer)
	if err != nil {
		return nil, err
	}
	consumer, err := client.Subscribe(
		xpulsar.NewConsumerOptionsBuilder(retryTopic, cmd.String("subscription")).
			WithDLQBuilder(xpulsar.NewDLQBuilder()).
			Build())
	if err != nil {
		retryProducer.Close()
		dlqProducer.Close()
		return nil, errors.Join(err, client.Close())
	}

	return &backend{
		name:  backendPulsar,
		queue: queue,
		sink:  sink,
		loop: func(ctx context.Context, r *xescalate.Redeliverer) error {
			return consumer.ConsumeLoop(ctx, xpulsar.RedeliverHandler(r, nil, logger))
		},
		stats: func() any { return map[string]int64{"errors": consumer.Errors()} },
		close: func(context.Context) error {
			consumer.Close()
			retryProducer.Close()
			dlqProducer.Close()
			return client.Close()
		},
	}, nil
}

// ackCall 直接成功的调用，用于验证链路或清空已修复操作的积压。
func ackCall(logger xlog.Logger) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		logger.Info(ctx, "operation acknowledged")
		return nil, nil
	}
}

func runConsumer(ctx context.Context, cmd *cli.Command, cfg xresilience.Config, b *backend, logger xlog.Logger) error {
	logger = logger.With(slog.String("backend", b.name))
	engine, err := xresilience.New(cfg,
		xresilience.WithLogger(logger),
		xresilience.WithEscalation(b.queue, b.sink),
	)
	if err != nil {
		return errors.Join(err, b.close(context.WithoutCancel(ctx)))
	}
	replayer, limitStats, err := withReplayLimit(ctx, cmd, b, engine, logger)
	if err != nil {
		return errors.Join(err, b.close(context.WithoutCancel(ctx)))
	}

	closeBackend := func(ctx context.Context) error {
		if err := b.close(ctx); err != nil {
			logger.Warn(ctx, "close backend", xlog.Err(err))
			return err
		}
		return nil
	}

	table := xescalate.NewOperationTable()
	for _, op := range cmd.StringSlice("ack") {
		table.Register(op, ackCall(logger))
	}
	r := xescalate.NewRedeliverer(table, replayer, engine.Escalation(), logger)

	if cmd.Bool("once") {
		if b.once == nil {
			return errors.Join(usagef("--once 只支持 redis 后端"), closeBackend(context.WithoutCancel(ctx)))
		}
		n, err := b.once(ctx, r)
		err = errors.Join(err, closeBackend(context.WithoutCancel(ctx)))
		if err != nil {
			return err
		}
		out := map[string]any{"handled": n, "stats": b.stats()}
		if limitStats != nil {
			out["rate_limit"] = limitStats()
		}
		return xjson.Write(outWriter(cmd), out, false)
	}

	services := []func(ctx context.Context) error{
		xrun.Loop(xrun.LooperFunc(func(ctx context.Context) error { return b.loop(ctx, r) })),
		xrun.OnShutdown(closeTimeout, closeBackend),
	}
	if interval := cmd.Duration("stats-interval"); interval > 0 {
		services = append(services, xrun.Ticker(interval, false, func(ctx context.Context) error {
			h := engine.Health()
			attrs := []slog.Attr{
				slog.Bool("healthy", h.Healthy),
				slog.Any("open_breakers", h.OpenBreakers),
				slog.Any("backend_stats", b.stats()),
			}
			if limitStats != nil {
				attrs = append(attrs, slog.Any("rate_limit", limitStats()))
			}
			logger.Info(ctx, "consumer stats", attrs...)
			return nil
		}))
	}

	logger.Info(ctx, "consumer started", slog.Any("ack", cmd.StringSlice("ack")))
	// 信号由 main 统一处理并取消 ctx
	err = xrun.RunWithOptions(ctx,
		[]xrun.Option{xrun.WithLogger(logger), xrun.WithName("consume"), xrun.WithoutSignalHandler()},
		services...)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, xrun.ErrSignal) {
		logger.Info(context.WithoutCancel(ctx), "consumer stopped")
		return nil
	}
	return err
}
