package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/xresilience/pkg/distributed/xcron"
	"github.com/omeyang/xresilience/pkg/distributed/xdlock"
	"github.com/omeyang/xresilience/pkg/mq/xredisq"
	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
	"github.com/omeyang/xresilience/pkg/storage/xmongo"
	"github.com/omeyang/xresilience/pkg/util/xjson"
)

// 死信来源
const (
	sourceRedis = "redis"
	sourceMongo = "mongo"
)

func createDLQCommand() *cli.Command {
	return &cli.Command{
		Name:  "dlq",
		Usage: "死信查看、重放与归档",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "列出死信",
				Flags: append(dlqFlags(),
					&cli.StringFlag{Name: "source", Usage: "死信来源 (redis/mongo)", Value: sourceRedis},
					&cli.Int64Flag{Name: "limit", Usage: "最多返回条数", Value: 50},
					&cli.Int64Flag{Name: "page", Usage: "页码（仅 mongo）", Value: 1},
					&cli.StringFlag{Name: "operation", Usage: "按操作过滤（仅 mongo）"},
					&cli.StringFlag{Name: "category", Usage: "按错误类别过滤（仅 mongo）"},
					&cli.DurationFlag{Name: "since", Usage: "只看最近这段时间内的死信（仅 mongo）"},
				),
				Action: cmdDLQList,
			},
			{
				Name:      "replay",
				Usage:     "把一条死信放回 redis 重试队列，立即到期",
				ArgsUsage: "<message-id>",
				Flags: append(dlqFlags(),
					&cli.StringFlag{Name: "source", Usage: "死信来源 (redis/mongo)", Value: sourceRedis},
				),
				Action: cmdDLQReplay,
			},
			{
				Name:  "archive",
				Usage: "把 redis 死信批量归档到 mongo",
				Flags: append(dlqFlags(),
					&cli.IntFlag{Name: "batch-size", Usage: "每批写入条数", Value: 1000},
					&cli.BoolFlag{Name: "purge", Usage: "全部写入成功后清空 redis 死信"},
					&cli.StringFlag{Name: "cron", Usage: "按 cron 表达式周期归档，如 \"@every 1h\"；缺省只执行一次"},
					&cli.DurationFlag{Name: "job-timeout", Usage: "周期归档单轮超时，0 不限制"},
					&cli.BoolFlag{Name: "no-lock", Usage: "不获取分布式锁（仅单副本部署时使用）"},
					&cli.DurationFlag{Name: "lock-expiry", Usage: "归档锁过期时间，执行期间自动续期", Value: xdlock.DefaultExpiry},
				),
				Action: cmdDLQArchive,
			},
		},
	}
}

func dlqFlags() []cli.Flag {
	return append(redisFlags(),
		&cli.StringFlag{
			Name:  "mongo-uri",
			Usage: "MongoDB 连接串",
			Value: "mongodb://localhost:27017",
		},
		&cli.StringFlag{
			Name:  "mongo-db",
			Usage: "归档数据库",
			Value: "resilience",
		},
		&cli.StringFlag{
			Name:  "mongo-collection",
			Usage: "归档集合",
			Value: "dead_letters",
		},
	)
}

// redisStore 死信列表与重试队列共用一个 redis 连接。
type redisStore struct {
	client redis.UniversalClient
	dls    *xredisq.DeadLetters
	queue  *xredisq.Queue
}

func openRedisStore(ctx context.Context, cmd *cli.Command) (*redisStore, error) {
	client, err := newRedisClient(ctx, cmd)
	if err != nil {
		return nil, err
	}
	dls, err := xredisq.NewDeadLetters(client, cmd.String("dlq-key"), xredisq.WithMaxLen(cmd.Int64("dlq-max-len")))
	if err != nil {
		return nil, errors.Join(err, client.Close())
	}
	queue, err := xredisq.NewQueue(client, cmd.String("queue-key"))
	if err != nil {
		return nil, errors.Join(err, client.Close())
	}
	return &redisStore{client: client, dls: dls, queue: queue}, nil
}

func (s *redisStore) close() error { return s.client.Close() }

func openArchive(ctx context.Context, cmd *cli.Command) (*xmongo.Archive, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cmd.String("mongo-uri")))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	coll := client.Database(cmd.String("mongo-db")).Collection(cmd.String("mongo-collection"))

	logger, _, err := newLogger(cmd)
	if err != nil {
		return nil, errors.Join(err, client.Disconnect(ctx))
	}
	archive, err := xmongo.NewArchive(client, coll, xmongo.WithLogger(logger))
	if err != nil {
		return nil, errors.Join(err, client.Disconnect(ctx))
	}
	if err := archive.Health(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("mongo health: %w", err), archive.Close(ctx))
	}
	return archive, nil
}

// dlqList dlq list 的输出。
type dlqList struct {
	Source string                  `json:"source"`
	Total  int64                   `json:"total"`
	Items  []*xescalate.DeadLetter `json:"items"`
}

func cmdDLQList(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int64("limit")
	if limit < 1 {
		return usagef("--limit 必须大于 0")
	}

	switch source := cmd.String("source"); source {
	case sourceRedis:
		store, err := openRedisStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() { _ = store.close() }()

		total, err := store.dls.Len(ctx)
		if err != nil {
			return err
		}
		items, err := store.dls.List(ctx, limit)
		if err != nil {
			return err
		}
		return xjson.Write(outWriter(cmd), dlqList{Source: source, Total: total, Items: items}, true)

	case sourceMongo:
		archive, err := openArchive(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() { _ = archive.Close(context.WithoutCancel(ctx)) }()

		filter := xmongo.Filter{Operation: cmd.String("operation"), Category: cmd.String("category")}
		if since := cmd.Duration("since"); since > 0 {
			filter.Since = time.Now().Add(-since)
		}
		page, err := archive.FindPage(ctx, filter, xmongo.PageOptions{Page: cmd.Int64("page"), PageSize: limit})
		if err != nil {
			return err
		}
		return xjson.Write(outWriter(cmd), dlqList{Source: source, Total: page.Total, Items: page.Items}, true)

	default:
		return usagef("未知死信来源 %q", source)
	}
}

func cmdDLQReplay(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return usagef("dlq replay 需要一个 message-id 参数")
	}
	id := cmd.Args().First()
	source := cmd.String("source")
	if source != sourceRedis && source != sourceMongo {
		return usagef("未知死信来源 %q", source)
	}

	store, err := openRedisStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.close() }()

	var msg *xescalate.Message
	if source == sourceRedis {
		msg, err = store.dls.Replay(ctx, id, store.queue)
	} else {
		msg, err = replayFromArchive(ctx, cmd, id, store.queue)
	}
	if err != nil {
		return err
	}
	return xjson.Write(outWriter(cmd), map[string]any{
		"replayed":  msg.ID,
		"operation": msg.OriginalOperation,
		"queue":     store.queue.Key(),
	}, true)
}

// replayFromArchive 从归档取出死信放回队列。入队失败时写回归档。
func replayFromArchive(ctx context.Context, cmd *cli.Command, id string, queue xescalate.Queue) (*xescalate.Message, error) {
	archive, err := openArchive(ctx, cmd)
	if err != nil {
		return nil, err
	}
	defer func() { _ = archive.Close(context.WithoutCancel(ctx)) }()

	dl, err := archive.Take(ctx, id)
	if err != nil {
		return nil, err
	}
	msg := dl.Message.Clone()
	if err := queue.Enqueue(ctx, msg, 0); err != nil {
		return nil, errors.Join(err, archive.DeadLetter(context.WithoutCancel(ctx), dl))
	}
	return msg, nil
}

// archiveLockKey 归档任务的锁名，一次性执行与 --cron 共用。
const archiveLockKey = "dlq-archive"

// archiveResult dlq archive 单轮的输出。
type archiveResult struct {
	Archived int64 `json:"archived"`
	Purged   bool  `json:"purged"`
	Skipped  bool  `json:"skipped,omitempty"`
}

func cmdDLQArchive(ctx context.Context, cmd *cli.Command) error {
	if cmd.Int("batch-size") < 1 {
		return usagef("--batch-size 必须大于 0")
	}
	store, err := openRedisStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.close() }()

	logger, cleanup, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	var locker *xdlock.Locker
	if !cmd.Bool("no-lock") {
		locker, err = xdlock.NewLocker([]redis.UniversalClient{store.client}, xdlock.WithExpiry(cmd.Duration("lock-expiry")))
		if err != nil {
			return err
		}
		defer func() { _ = locker.Close() }()
	}

	if spec := cmd.String("cron"); spec != "" {
		return runArchiveCron(ctx, cmd, spec, store.dls, locker, logger)
	}

	var res archiveResult
	job := func(ctx context.Context) error {
		var err error
		res, err = archiveOnce(ctx, cmd, store.dls)
		return err
	}
	if locker == nil {
		err = job(ctx)
	} else {
		var ran bool
		ran, err = xdlock.Guard(ctx, locker, archiveLockKey, job)
		res.Skipped = !ran && err == nil
	}
	if err != nil {
		return err
	}
	return xjson.Write(outWriter(cmd), res, true)
}

// runArchiveCron 按 spec 周期归档，启动时先执行一轮；ctx 结束后输出各轮统计。
func runArchiveCron(ctx context.Context, cmd *cli.Command, spec string, dls *xredisq.DeadLetters, locker *xdlock.Locker, logger xlog.Logger) error {
	s := xcron.New(xcron.WithLocker(locker), xcron.WithLogger(logger))
	err := s.AddFunc(spec, archiveLockKey, func(ctx context.Context) error {
		res, err := archiveOnce(ctx, cmd, dls)
		if err == nil {
			logger.Info(ctx, "dead letters archived",
				slog.Int64("archived", res.Archived),
				slog.Bool("purged", res.Purged),
			)
		}
		return err
	}, xcron.WithImmediate(), xcron.WithTimeout(cmd.Duration("job-timeout")))
	if err != nil {
		return usagef("--cron: %v", err)
	}

	logger.Info(ctx, "archive scheduled", slog.String("cron", spec))
	if err := s.Run(ctx); err != nil {
		return err
	}
	return xjson.Write(outWriter(cmd), s.Stats(), true)
}

// archiveOnce 把当前全部 redis 死信写入 mongo，按需清空。
func archiveOnce(ctx context.Context, cmd *cli.Command, dls *xredisq.DeadLetters) (archiveResult, error) {
	items, err := dls.List(ctx, 0)
	if err != nil || len(items) == 0 {
		return archiveResult{}, err
	}

	archive, err := openArchive(ctx, cmd)
	if err != nil {
		return archiveResult{}, err
	}
	defer func() { _ = archive.Close(context.WithoutCancel(ctx)) }()

	res, err := archive.ArchiveBatch(ctx, items, xmongo.BulkOptions{BatchSize: cmd.Int("batch-size"), Ordered: true})
	if err != nil {
		return archiveResult{}, err
	}
	purged, err := purgeIfUnchanged(ctx, cmd.Bool("purge"), dls, res.InsertedCount, int64(len(items)))
	if err != nil {
		return archiveResult{Archived: res.InsertedCount}, err
	}
	return archiveResult{Archived: res.InsertedCount, Purged: purged}, nil
}

// purgeIfUnchanged 归档全部成功且期间没有新死信写入时清空列表。
// 列表长度变化说明有新死信，此时保留列表，下次归档会产生重复记录但不会丢失。
func purgeIfUnchanged(ctx context.Context, purge bool, dls *xredisq.DeadLetters, inserted, listed int64) (bool, error) {
	if !purge || inserted != listed {
		return false, nil
	}
	n, err := dls.Len(ctx)
	if err != nil {
		return false, err
	}
	if n != listed {
		return false, nil
	}
	if err := dls.Purge(ctx); err != nil {
		return false, err
	}
	return true, nil
}
