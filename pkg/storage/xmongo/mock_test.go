package xmongo

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// mockClientOps 实现 clientOperations 接口
type mockClientOps struct {
	pingErr            error
	disconnectErr      error
	disconnected       bool
	sessionsInProgress int
}

func (m *mockClientOps) Ping(_ context.Context, _ *readpref.ReadPref) error { return m.pingErr }

func (m *mockClientOps) Disconnect(_ context.Context) error {
	m.disconnected = true
	return m.disconnectErr
}

func (m *mockClientOps) NumberSessionsInProgress() int { return m.sessionsInProgress }

// mockCollection 内存集合：记录写入的文档，Find 返回预置文档。
type mockCollection struct {
	mu sync.Mutex

	inserted     []any
	insertErr    error
	failBatchAt  int // 第 n 次 InsertMany 失败（从 1 开始），0 表示不失败
	manyCalls    int
	count        int64
	countErr     error
	findDocs     []any
	findErr      error
	lastFilter   any
	lastFindOpts []options.Lister[options.FindOptions]
	takeDoc      any
}

func (m *mockCollection) InsertOne(_ context.Context, doc any, _ ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	m.inserted = append(m.inserted, doc)
	return &mongo.InsertOneResult{InsertedID: bson.NewObjectID()}, nil
}

func (m *mockCollection) InsertMany(_ context.Context, documents any, _ ...options.Lister[options.InsertManyOptions]) (*mongo.InsertManyResult, error) {
	docs, _ := documents.([]any)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manyCalls++
	if m.failBatchAt == m.manyCalls {
		return nil, errMockInsert
	}
	m.inserted = append(m.inserted, docs...)
	ids := make([]any, len(docs))
	for i := range docs {
		ids[i] = bson.NewObjectID()
	}
	return &mongo.InsertManyResult{InsertedIDs: ids}, nil
}

func (m *mockCollection) CountDocuments(_ context.Context, filter any, _ ...options.Lister[options.CountOptions]) (int64, error) {
	m.lastFilter = filter
	return m.count, m.countErr
}

func (m *mockCollection) Find(_ context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error) {
	m.lastFilter = filter
	m.lastFindOpts = opts
	if m.findErr != nil {
		return nil, m.findErr
	}
	return mongo.NewCursorFromDocuments(m.findDocs, nil, nil)
}

func (m *mockCollection) FindOneAndDelete(_ context.Context, filter any, _ ...options.Lister[options.FindOneAndDeleteOptions]) *mongo.SingleResult {
	m.lastFilter = filter
	if m.takeDoc == nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(m.takeDoc, nil, nil)
}

func (m *mockCollection) Name() string { return "dead_letters" }

func (m *mockCollection) insertedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inserted)
}

var (
	errMockPing       = errors.New("mock ping error")
	errMockDisconnect = errors.New("mock disconnect error")
	errMockCount      = errors.New("mock count error")
	errMockFind       = errors.New("mock find error")
	errMockInsert     = errors.New("mock insert error")
)
