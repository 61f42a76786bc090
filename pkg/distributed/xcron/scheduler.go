package xcron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xresilience/pkg/distributed/xdlock"
	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/observability/xmetrics"
)

var (
	// ErrEmptyName 任务名为空
	ErrEmptyName = errors.New("xcron: job name must not be empty")

	// ErrDuplicateName 任务名重复
	ErrDuplicateName = errors.New("xcron: duplicate job name")

	// ErrNilFunc 任务函数为 nil
	ErrNilFunc = errors.New("xcron: job func is nil")

	// ErrRunning Run 已在执行
	ErrRunning = errors.New("xcron: scheduler already running")
)

// Func 任务函数。ctx 在调度器停止、执行超时或锁丢失时取消。
type Func func(ctx context.Context) error

type job struct {
	id        cron.EntryID
	name      string
	fn        Func
	timeout   time.Duration
	immediate bool
	stats     counters
}

// Scheduler 周期任务调度器
type Scheduler struct {
	cron     *cron.Cron
	locker   *xdlock.Locker
	logger   xlog.Logger
	observer xmetrics.Observer
	location *time.Location

	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	running bool
	runCtx  context.Context
	wg      sync.WaitGroup
}

// New 创建调度器。表达式支持标准 5 段格式与 @every / @hourly 等描述符。
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:   xlog.Default(),
		location: time.Local,
		jobs:     make(map[string]*job),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.cron = cron.New(
		cron.WithLocation(s.location),
		cron.WithChain(cron.Recover(cronLogger{s.logger}), cron.SkipIfStillRunning(cronLogger{s.logger})),
		cron.WithLogger(cronLogger{s.logger}),
	)
	return s
}

// AddFunc 注册任务。spec 非法时返回解析错误。
func (s *Scheduler) AddFunc(spec, name string, fn Func, opts ...JobOption) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if fn == nil {
		return ErrNilFunc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	j := &job{name: name, fn: fn}
	for _, opt := range opts {
		if opt != nil {
			opt(j)
		}
	}
	id, err := s.cron.AddFunc(spec, func() { s.execute(j) })
	if err != nil {
		return fmt.Errorf("xcron: job %s: %w", name, err)
	}
	j.id = id
	s.jobs[name] = j
	s.order = append(s.order, name)
	return nil
}

// Run 启动调度并阻塞，直到 ctx 结束；返回前等待运行中的任务退出。
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	s.running = true
	s.runCtx = ctx
	var immediate []*job
	for _, name := range s.order {
		if j := s.jobs[name]; j.immediate {
			immediate = append(immediate, j)
		}
	}
	s.mu.Unlock()

	for _, j := range immediate {
		s.execute(j)
	}

	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// Stats 返回各任务的统计快照
func (s *Scheduler) Stats() map[string]Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Stats, len(s.jobs))
	for name, j := range s.jobs {
		out[name] = j.stats.snapshot()
	}
	return out
}

// Next 返回任务的下一次计划执行时间，调度未启动时为零值。
func (s *Scheduler) Next() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.jobs))
	for name, j := range s.jobs {
		out[name] = s.cron.Entry(j.id).Next
	}
	return out
}

func (s *Scheduler) execute(j *job) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()

	if s.locker == nil {
		_ = s.runOnce(ctx, j)
		return
	}
	ran, err := xdlock.Guard(ctx, s.locker, j.name, func(ctx context.Context) error {
		return s.runOnce(ctx, j)
	})
	switch {
	case !ran && err == nil:
		j.stats.skipped.Add(1)
		s.logger.Debug(ctx, "job skipped, lock held elsewhere", slog.String("job", j.name))
	case !ran:
		j.stats.skipped.Add(1)
		s.logger.Warn(ctx, "job lock failed", slog.String("job", j.name), xlog.Err(err))
	case errors.Is(err, xdlock.ErrNotLocked):
		s.logger.Warn(ctx, "job lost its lock", slog.String("job", j.name))
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j *job) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	ctx, span := xmetrics.Start(ctx, s.observer, xmetrics.SpanOptions{
		Component: "xcron",
		Operation: j.name,
		Kind:      xmetrics.KindInternal,
	})

	start := time.Now()
	err := j.fn(ctx)
	took := time.Since(start)
	span.End(xmetrics.Result{Err: err})
	j.stats.record(start, took, err)

	if err != nil {
		s.logger.Error(ctx, "job failed", slog.String("job", j.name), xlog.Duration(took), xlog.Err(err))
	} else {
		s.logger.Info(ctx, "job completed", slog.String("job", j.name), xlog.Duration(took))
	}
	return err
}

// cronLogger 把 robfig/cron 的日志接到 xlog
type cronLogger struct {
	l xlog.Logger
}

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug(context.Background(), "cron: "+msg, kvAttrs(kv)...)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error(context.Background(), "cron: "+msg, append(kvAttrs(kv), xlog.Err(err))...)
}

func kvAttrs(kv []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		attrs = append(attrs, slog.Any(key, kv[i+1]))
	}
	return attrs
}
