package xmongo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/observability/xmetrics"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
)

const (
	mongoComponent = "xmongo"

	// defaultBatchSize 批量写入默认每批文档数。
	defaultBatchSize = 1000

	// maxBatchSize 批量写入每批文档数上限。
	// 避免单次 InsertMany 请求过大触及 16MB BSON 限制。
	maxBatchSize = 10000
)

// Archive 死信归档。
type Archive struct {
	clientOps clientOperations
	coll      collectionOperations
	options   *Options

	pingCount   atomic.Int64
	pingErrors  atomic.Int64
	slowQueries atomic.Int64
	archived    atomic.Int64
	taken       atomic.Int64

	// 设计决策: closed 用 atomic.Bool，Close 与其他方法可并发调用。
	closed atomic.Bool
}

// NewArchive 创建归档。client 用于健康检查与关闭，coll 为归档集合。
func NewArchive(client *mongo.Client, coll *mongo.Collection, opts ...Option) (*Archive, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if coll == nil {
		return nil, ErrNilCollection
	}
	return newArchive(client, coll, opts...), nil
}

func newArchive(client clientOperations, coll collectionOperations, opts ...Option) *Archive {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &Archive{clientOps: client, coll: coll, options: o}
}

// DeadLetter 写入一条死信，实现 xescalate.DeadLetterSink。
func (a *Archive) DeadLetter(ctx context.Context, dl *xescalate.DeadLetter) (err error) {
	if err := a.check(ctx); err != nil {
		return err
	}
	rec, err := NewRecord(dl)
	if err != nil {
		return err
	}

	ctx, cancel := applyTimeout(ctx, a.options.WriteTimeout)
	defer cancel()
	ctx, done := a.observe(ctx, "insert", xmetrics.String("message.id", dl.ID))
	defer func() { done(err) }()

	if _, err = a.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("xmongo insert %s: %w", a.coll.Name(), err)
	}
	a.archived.Add(1)
	return nil
}

// ArchiveBatch 分批写入多条死信。
func (a *Archive) ArchiveBatch(ctx context.Context, dls []*xescalate.DeadLetter, opts BulkOptions) (result *BulkResult, err error) {
	if err := a.check(ctx); err != nil {
		return nil, err
	}
	if len(dls) == 0 {
		return nil, ErrEmptyDocs
	}
	docs := make([]any, 0, len(dls))
	for _, dl := range dls {
		rec, err := NewRecord(dl)
		if err != nil {
			return nil, err
		}
		docs = append(docs, rec)
	}

	batchSize := opts.BatchSize
	if batchSize < 1 {
		batchSize = defaultBatchSize
	} else if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}

	ctx, cancel := applyTimeout(ctx, a.options.WriteTimeout)
	defer cancel()
	ctx, done := a.observe(ctx, "bulk_insert", xmetrics.Int("batch.size", batchSize))
	defer func() { done(err) }()

	inserted, errs := a.executeBatches(ctx, docs, batchSize, opts.Ordered)
	a.archived.Add(inserted)

	// 存在错误时同时返回结果和合并的错误
	if len(errs) > 0 {
		err = errors.Join(errs...)
	}
	return &BulkResult{InsertedCount: inserted, Errors: errs}, err
}

func (a *Archive) executeBatches(ctx context.Context, docs []any, batchSize int, ordered bool) (int64, []error) {
	var inserted int64
	var errs []error
	insertOpts := options.InsertMany().SetOrdered(ordered)

	for i := 0; i < len(docs); i += batchSize {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("context canceled before batch %d: %w", i/batchSize, err))
			break
		}
		end := min(i+batchSize, len(docs))

		res, err := a.coll.InsertMany(ctx, docs[i:end], insertOpts)
		if res != nil {
			inserted += int64(len(res.InsertedIDs))
		}
		if err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("xmongo bulk_insert: %w", err))
		if ordered || ctx.Err() != nil {
			break
		}
	}
	return inserted, errs
}

// FindPage 分页查询死信，按进入死信时间倒序。
func (a *Archive) FindPage(ctx context.Context, filter Filter, page PageOptions) (result *PageResult, err error) {
	if err := a.check(ctx); err != nil {
		return nil, err
	}
	skip, err := validatePagination(page.Page, page.PageSize)
	if err != nil {
		return nil, err
	}
	query := filter.toBSON()

	ctx, cancel := applyTimeout(ctx, a.options.QueryTimeout)
	defer cancel()
	ctx, done := a.observe(ctx, "find_page")
	defer func() { done(err) }()

	total, err := a.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("xmongo find_page count %s: %w", a.coll.Name(), err)
	}

	findOpts := options.Find().
		SetSkip(skip).
		SetLimit(page.PageSize).
		SetSort(bson.D{{Key: "dead_lettered_at", Value: -1}})
	cursor, err := a.coll.Find(ctx, query, findOpts)
	if err != nil {
		return nil, fmt.Errorf("xmongo find_page find %s: %w", a.coll.Name(), err)
	}
	defer func() {
		if closeErr := cursor.Close(ctx); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("xmongo find_page close cursor: %w", closeErr))
		}
	}()

	var records []Record
	if err = cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("xmongo find_page decode %s: %w", a.coll.Name(), err)
	}

	// 设计决策: 空结果返回空切片而非 nil，JSON 输出为 [] 而非 null。
	items := make([]*xescalate.DeadLetter, 0, len(records))
	for i := range records {
		dl, err := records[i].DeadLetter()
		if err != nil {
			a.options.Logger.Warn(ctx, "skip undecodable archive record", xlog.Component(mongoComponent), xlog.Err(err))
			continue
		}
		items = append(items, dl)
	}

	return &PageResult{
		Items:      items,
		Total:      total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: totalPages(total, page.PageSize),
	}, nil
}

// Take 取出并删除指定消息 ID 的最新一条死信。
func (a *Archive) Take(ctx context.Context, messageID string) (dl *xescalate.DeadLetter, err error) {
	if err := a.check(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := applyTimeout(ctx, a.options.QueryTimeout)
	defer cancel()
	ctx, done := a.observe(ctx, "take", xmetrics.String("message.id", messageID))
	defer func() { done(err) }()

	res := a.coll.FindOneAndDelete(ctx,
		bson.D{{Key: "message_id", Value: messageID}},
		options.FindOneAndDelete().SetSort(bson.D{{Key: "dead_lettered_at", Value: -1}}),
	)
	var rec Record
	if err = res.Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, messageID)
		}
		return nil, fmt.Errorf("xmongo take %s: %w", messageID, err)
	}
	dl, err = rec.DeadLetter()
	if err != nil {
		return nil, err
	}
	a.taken.Add(1)
	return dl, nil
}

// Health 执行健康检查。
func (a *Archive) Health(ctx context.Context) (err error) {
	if err := a.check(ctx); err != nil {
		return err
	}
	ctx, done := a.observe(ctx, "health")
	defer func() { done(err) }()

	a.pingCount.Add(1)
	ctx, cancel := context.WithTimeout(ctx, a.options.HealthTimeout)
	defer cancel()
	if err = a.clientOps.Ping(ctx, readpref.Primary()); err != nil {
		a.pingErrors.Add(1)
		return fmt.Errorf("xmongo health: %w", err)
	}
	return nil
}

// Stats 返回统计信息，Close 后仍可调用。
func (a *Archive) Stats() Stats {
	return Stats{
		PingCount:     a.pingCount.Load(),
		PingErrors:    a.pingErrors.Load(),
		SlowQueries:   a.slowQueries.Load(),
		Archived:      a.archived.Load(),
		Taken:         a.taken.Load(),
		InUseSessions: a.clientOps.NumberSessionsInProgress(),
	}
}

// Close 断开连接。重复调用返回 ErrClosed。
//
// 设计决策: Disconnect 失败时不回滚 closed 状态，io.Closer 契约为调用一次释放资源。
func (a *Archive) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !a.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if err := a.clientOps.Disconnect(ctx); err != nil {
		return fmt.Errorf("xmongo close: %w", err)
	}
	return nil
}

func (a *Archive) check(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	if a.closed.Load() {
		return ErrClosed
	}
	return nil
}

// observe 开始观测跨度；返回的 done 结束跨度并做慢查询检测。
func (a *Archive) observe(ctx context.Context, operation string, attrs ...xmetrics.Attr) (context.Context, func(error)) {
	start := time.Now()
	attrs = append(attrs,
		xmetrics.String("db.system", "mongodb"),
		xmetrics.String("db.collection", a.coll.Name()),
	)
	ctx, span := xmetrics.Start(ctx, a.options.Observer, xmetrics.SpanOptions{
		Component: mongoComponent,
		Operation: operation,
		Kind:      xmetrics.KindInternal,
		Attrs:     attrs,
	})
	return ctx, func(err error) {
		elapsed := time.Since(start)
		var endAttrs []xmetrics.Attr
		if threshold := a.options.SlowQueryThreshold; threshold > 0 && elapsed >= threshold {
			a.slowQueries.Add(1)
			endAttrs = append(endAttrs, xmetrics.Bool("slow", true))
			a.options.Logger.Warn(ctx, "slow mongo operation",
				xlog.Component(mongoComponent), xlog.Operation(operation), xlog.Duration(elapsed))
		}
		span.End(xmetrics.Result{Err: err, Attrs: endAttrs})
	}
}

// applyTimeout 当调用方未设置 deadline 且 timeout > 0 时，添加超时兜底。
func applyTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			return context.WithTimeout(ctx, timeout)
		}
	}
	return ctx, func() {}
}

var _ xescalate.DeadLetterSink = (*Archive)(nil)
