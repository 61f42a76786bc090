package xmongo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/omeyang/xresilience/pkg/resilience/xclassify"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testDeadLetter(id string) *xescalate.DeadLetter {
	return &xescalate.DeadLetter{
		Message: xescalate.Message{Attempt: xescalate.Attempt{
			ID:                id,
			RecoveryType:      "network-wait",
			OriginalOperation: "data-retrieval",
			RetryCount:        3,
			LastAttempt:       t0,
			Category:          xclassify.Network,
			Error:             "connection reset",
		}},
		DeadLetteredAt: t0.Add(time.Hour),
		Reason:         "retry budget 3 exhausted",
	}
}

func newTestArchive(opts ...Option) (*Archive, *mockClientOps, *mockCollection) {
	client := &mockClientOps{}
	coll := &mockCollection{}
	return newArchive(client, coll, opts...), client, coll
}

func TestNewArchive_Validation(t *testing.T) {
	a, err := NewArchive(nil, nil)
	assert.Nil(t, a)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestNewRecord(t *testing.T) {
	_, err := NewRecord(nil)
	assert.ErrorIs(t, err, ErrNilDeadLetter)

	rec, err := NewRecord(testDeadLetter("msg-1"))
	require.NoError(t, err)
	assert.Equal(t, "msg-1", rec.MessageID)
	assert.Equal(t, "data-retrieval", rec.Operation)
	assert.Equal(t, xclassify.Network.String(), rec.Category)
	assert.Equal(t, 3, rec.RetryCount)
	assert.True(t, rec.DeadLetteredAt.Equal(t0.Add(time.Hour)))

	dl, err := rec.DeadLetter()
	require.NoError(t, err)
	assert.Equal(t, "retry budget 3 exhausted", dl.Reason)

	rec.Payload = []byte("{")
	_, err = rec.DeadLetter()
	assert.ErrorIs(t, err, xescalate.ErrInvalidMessage)
}

func TestFilter_ToBSON(t *testing.T) {
	assert.Empty(t, Filter{}.toBSON())

	d := Filter{
		Operation: "data-retrieval",
		Category:  "network",
		Since:     t0,
		Until:     t0.Add(time.Hour),
	}.toBSON()
	require.Len(t, d, 3)
	assert.Equal(t, "operation", d[0].Key)
	assert.Equal(t, "category", d[1].Key)
	assert.Equal(t, "dead_lettered_at", d[2].Key)
	rng, ok := d[2].Value.(bson.D)
	require.True(t, ok)
	assert.Len(t, rng, 2)
}

func TestArchive_DeadLetter(t *testing.T) {
	a, _, coll := newTestArchive()
	ctx := context.Background()

	require.NoError(t, a.DeadLetter(ctx, testDeadLetter("msg-1")))
	require.Equal(t, 1, coll.insertedCount())
	rec, ok := coll.inserted[0].(*Record)
	require.True(t, ok)
	assert.Equal(t, "msg-1", rec.MessageID)
	assert.Equal(t, int64(1), a.Stats().Archived)

	assert.ErrorIs(t, a.DeadLetter(ctx, nil), ErrNilDeadLetter)

	coll.insertErr = errMockInsert
	assert.ErrorIs(t, a.DeadLetter(ctx, testDeadLetter("msg-2")), errMockInsert)
}

func TestArchive_ManagerUsesArchiveAsSink(t *testing.T) {
	a, _, coll := newTestArchive()
	m, err := xescalate.NewManager(xescalate.NewMemoryQueue(nil), a, xescalate.WithMaxGlobalRetries(0))
	require.NoError(t, err)

	out, err := m.OnRecoveryExhausted(context.Background(), &testDeadLetter("msg-1").Message)
	require.NoError(t, err)
	assert.Equal(t, xescalate.DeadLettered, out.Kind)
	assert.Equal(t, 1, coll.insertedCount())
}

func TestArchive_ArchiveBatch(t *testing.T) {
	tests := []struct {
		name        string
		count       int
		opts        BulkOptions
		failBatchAt int
		wantCount   int64
		wantErr     bool
	}{
		{name: "single batch", count: 5, wantCount: 5},
		{name: "multiple batches", count: 5, opts: BulkOptions{BatchSize: 2}, wantCount: 5},
		{name: "ordered stops on error", count: 6, opts: BulkOptions{BatchSize: 2, Ordered: true}, failBatchAt: 2, wantCount: 2, wantErr: true},
		{name: "unordered continues", count: 6, opts: BulkOptions{BatchSize: 2}, failBatchAt: 2, wantCount: 4, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, coll := newTestArchive()
			coll.failBatchAt = tt.failBatchAt

			dls := make([]*xescalate.DeadLetter, tt.count)
			for i := range dls {
				dls[i] = testDeadLetter(fmt.Sprintf("msg-%d", i))
			}

			res, err := a.ArchiveBatch(context.Background(), dls, tt.opts)
			require.NotNil(t, res)
			assert.Equal(t, tt.wantCount, res.InsertedCount)
			assert.Equal(t, tt.wantCount, a.Stats().Archived)
			if tt.wantErr {
				assert.ErrorIs(t, err, errMockInsert)
				assert.Len(t, res.Errors, 1)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestArchive_ArchiveBatchEmpty(t *testing.T) {
	a, _, _ := newTestArchive()
	_, err := a.ArchiveBatch(context.Background(), nil, BulkOptions{})
	assert.ErrorIs(t, err, ErrEmptyDocs)
}

func TestArchive_ArchiveBatchCanceled(t *testing.T) {
	a, _, coll := newTestArchive()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := a.ArchiveBatch(ctx, []*xescalate.DeadLetter{testDeadLetter("a")}, BulkOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.InsertedCount)
	assert.Zero(t, coll.insertedCount())
}

func TestArchive_FindPage(t *testing.T) {
	a, _, coll := newTestArchive()
	rec1, err := NewRecord(testDeadLetter("newest"))
	require.NoError(t, err)
	rec2, err := NewRecord(testDeadLetter("older"))
	require.NoError(t, err)
	corrupt := &Record{MessageID: "bad", Payload: []byte("nope")}
	coll.findDocs = []any{rec1, rec2, corrupt}
	coll.count = 12

	res, err := a.FindPage(context.Background(), Filter{Operation: "data-retrieval"}, PageOptions{Page: 2, PageSize: 5})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "newest", res.Items[0].ID)
	assert.Equal(t, int64(12), res.Total)
	assert.Equal(t, int64(3), res.TotalPages)
	assert.Equal(t, bson.D{{Key: "operation", Value: "data-retrieval"}}, coll.lastFilter)
}

func TestArchive_FindPageEmpty(t *testing.T) {
	a, _, _ := newTestArchive()
	res, err := a.FindPage(context.Background(), Filter{}, PageOptions{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)
	assert.Zero(t, res.TotalPages)
}

func TestArchive_FindPageErrors(t *testing.T) {
	tests := []struct {
		name    string
		page    PageOptions
		setup   func(*mockCollection)
		wantErr error
	}{
		{name: "invalid page", page: PageOptions{Page: 0, PageSize: 10}, wantErr: ErrInvalidPage},
		{name: "invalid size", page: PageOptions{Page: 1, PageSize: 0}, wantErr: ErrInvalidPageSize},
		{name: "size too large", page: PageOptions{Page: 1, PageSize: MaxPageSize + 1}, wantErr: ErrInvalidPageSize},
		{name: "overflow", page: PageOptions{Page: 1 << 62, PageSize: 100}, wantErr: ErrPageOverflow},
		{name: "count error", page: PageOptions{Page: 1, PageSize: 10}, setup: func(c *mockCollection) { c.countErr = errMockCount }, wantErr: errMockCount},
		{name: "find error", page: PageOptions{Page: 1, PageSize: 10}, setup: func(c *mockCollection) { c.findErr = errMockFind }, wantErr: errMockFind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, coll := newTestArchive()
			if tt.setup != nil {
				tt.setup(coll)
			}
			_, err := a.FindPage(context.Background(), Filter{}, tt.page)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestArchive_Take(t *testing.T) {
	a, _, coll := newTestArchive()
	ctx := context.Background()

	_, err := a.Take(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	rec, err := NewRecord(testDeadLetter("msg-1"))
	require.NoError(t, err)
	coll.takeDoc = rec

	dl, err := a.Take(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", dl.ID)
	assert.Equal(t, bson.D{{Key: "message_id", Value: "msg-1"}}, coll.lastFilter)
	assert.Equal(t, int64(1), a.Stats().Taken)
}

func TestArchive_Health(t *testing.T) {
	a, client, _ := newTestArchive(WithHealthTimeout(time.Second))
	ctx := context.Background()

	require.NoError(t, a.Health(ctx))
	client.pingErr = errMockPing
	assert.ErrorIs(t, a.Health(ctx), errMockPing)

	stats := a.Stats()
	assert.Equal(t, int64(2), stats.PingCount)
	assert.Equal(t, int64(1), stats.PingErrors)
}

func TestArchive_SlowQuery(t *testing.T) {
	a, _, _ := newTestArchive(WithSlowQueryThreshold(time.Nanosecond))
	require.NoError(t, a.DeadLetter(context.Background(), testDeadLetter("msg-1")))
	assert.Equal(t, int64(1), a.Stats().SlowQueries)
}

func TestArchive_Close(t *testing.T) {
	a, client, _ := newTestArchive()
	client.sessionsInProgress = 2

	//nolint:staticcheck // nil ctx 替换为 Background
	require.NoError(t, a.Close(nil))
	assert.True(t, client.disconnected)
	assert.ErrorIs(t, a.Close(context.Background()), ErrClosed)

	ctx := context.Background()
	assert.ErrorIs(t, a.DeadLetter(ctx, testDeadLetter("x")), ErrClosed)
	_, err := a.FindPage(ctx, Filter{}, PageOptions{Page: 1, PageSize: 1})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, a.Health(ctx), ErrClosed)
	assert.Equal(t, 2, a.Stats().InUseSessions)
}

func TestArchive_CloseDisconnectError(t *testing.T) {
	a, client, _ := newTestArchive()
	client.disconnectErr = errMockDisconnect
	assert.ErrorIs(t, a.Close(context.Background()), errMockDisconnect)
}

func TestArchive_NilContext(t *testing.T) {
	a, _, _ := newTestArchive()
	//nolint:staticcheck // 验证 nil ctx 校验
	assert.ErrorIs(t, a.DeadLetter(nil, testDeadLetter("x")), ErrNilContext)
}

func TestApplyTimeout(t *testing.T) {
	ctx, cancel := applyTimeout(context.Background(), time.Minute)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.True(t, ok)

	base, baseCancel := context.WithTimeout(context.Background(), time.Second)
	defer baseCancel()
	ctx2, cancel2 := applyTimeout(base, time.Minute)
	defer cancel2()
	assert.Equal(t, base, ctx2)

	ctx3, cancel3 := applyTimeout(context.Background(), 0)
	defer cancel3()
	_, ok = ctx3.Deadline()
	assert.False(t, ok)
}
