//go:build integration

package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/omeyang/xresilience/pkg/distributed/xdlock"
	"github.com/omeyang/xresilience/pkg/mq/xredisq"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
)

// setupRedis 启动 Redis 容器；设置 XRESILIENCE_REDIS_ADDR 时直接使用外部 Redis。
func setupRedis(t *testing.T) string {
	t.Helper()
	if addr := os.Getenv("XRESILIENCE_REDIS_ADDR"); addr != "" {
		return addr
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("无法启动 Redis 容器: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	return endpoint
}

func TestIntegration_ConsumeAndArchiveLock(t *testing.T) {
	addr := setupRedis(t)
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	// 每个测试使用独立的 key，外部 Redis 上可重复运行
	suffix := time.Now().Format("150405.000000")
	queueKey, dlqKey := "it:retry:"+suffix, "it:dlq:"+suffix

	queue, err := xredisq.NewQueue(client, queueKey)
	if err != nil {
		t.Fatal(err)
	}
	dls, err := xredisq.NewDeadLetters(client, dlqKey)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []*xescalate.Message{message("i1", "sync"), message("i2", "unknown-op")} {
		if err := queue.Enqueue(ctx, m, 0); err != nil {
			t.Fatal(err)
		}
	}

	redisArgs := []string{"--redis-addr", addr, "--queue-key", queueKey, "--dlq-key", dlqKey}
	out, err := runApp(t, append([]string{"consume", "--ack", "sync", "--once", "--rate", "10"}, redisArgs...)...)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	var res struct {
		Handled int `json:"handled"`
	}
	decode(t, out, &res)
	if res.Handled != 2 {
		t.Errorf("handled = %d, want 2", res.Handled)
	}
	if n, _ := dls.Len(ctx); n != 1 {
		t.Errorf("dead letters = %d, want 1", n)
	}

	// 归档锁被占用时跳过，不触碰 mongo
	locker, err := xdlock.NewLocker([]redis.UniversalClient{client})
	if err != nil {
		t.Fatal(err)
	}
	held, err := locker.TryLock(ctx, archiveLockKey)
	if err != nil || held == nil {
		t.Fatalf("TryLock = %v, %v", held, err)
	}
	defer func() { _ = held.Unlock(ctx) }()

	out, err = runApp(t, append([]string{"dlq", "archive", "--mongo-uri", "mongodb://127.0.0.1:1"}, redisArgs...)...)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	var ar archiveResult
	decode(t, out, &ar)
	if !ar.Skipped {
		t.Errorf("archive = %+v, want skipped", ar)
	}
}
