package xconf

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_Reloads(t *testing.T) {
	path := writeFile(t, "config.yaml", sampleYAML)
	cfg, err := New(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan error, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, cfg, 20*time.Millisecond, func(_ *Config, err error) { reloaded <- err })
	}()

	// 给 fsnotify 注册目录的时间
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("name: updated\n"), 0o600))

	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload callback")
	}
	assert.Equal(t, "updated", cfg.Client().String("name"))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_RequiresFile(t *testing.T) {
	cfg, err := NewFromBytes([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)
	assert.ErrorIs(t, Watch(context.Background(), cfg, 0, nil), ErrNotReloadable)
	assert.ErrorIs(t, Watch(context.Background(), nil, 0, nil), ErrNotReloadable)
}
