package xmongo

// Stats 包含归档的统计信息。
type Stats struct {
	PingCount   int64
	PingErrors  int64
	SlowQueries int64
	Archived    int64
	Taken       int64

	// InUseSessions 活跃会话数，来自 mongo.Client.NumberSessionsInProgress()。
	// MongoDB driver v2 不暴露连接池明细，这是最接近"使用中连接数"的指标。
	InUseSessions int
}
