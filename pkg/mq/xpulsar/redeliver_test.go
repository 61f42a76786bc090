package xpulsar

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/omeyang/xresilience/internal/mqcore"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
	"github.com/omeyang/xresilience/pkg/resilience/xrecovery"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReplayer struct {
	mu       sync.Mutex
	replayed []*xescalate.Message
}

func (r *recordingReplayer) Replay(_ context.Context, msg *xescalate.Message, _ xrecovery.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replayed = append(r.replayed, msg)
	return nil
}

func newRedeliverer(replayer xescalate.Replayer) *xescalate.Redeliverer {
	table := xescalate.NewOperationTable()
	table.Register("data-retrieval", func(context.Context) (any, error) { return nil, nil })
	return xescalate.NewRedeliverer(table, replayer, nil, nil)
}

func retryMessage(t *testing.T, deliverAt time.Time) *mockMessage {
	t.Helper()
	payload, err := xescalate.Encode(testMessage())
	require.NoError(t, err)
	return &mockMessage{payload: payload, properties: mqcore.EscalationHeaders(testMessage(), deliverAt)}
}

func TestRedeliverHandler(t *testing.T) {
	now := func() time.Time { return t0 }

	tests := []struct {
		name       string
		deliverAt  time.Time
		wantErr    error
		wantReplay int
	}{
		{"due", t0.Add(-time.Second), nil, 1},
		{"within tolerance", t0.Add(500 * time.Millisecond), nil, 1},
		{"early", t0.Add(time.Minute), ErrNotDue, 0},
		{"no header", time.Time{}, nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replayer := &recordingReplayer{}
			handler := RedeliverHandler(newRedeliverer(replayer), now, nil)

			err := handler(context.Background(), retryMessage(t, tt.deliverAt))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, replayer.replayed, tt.wantReplay)
		})
	}
}

func TestRedeliverHandler_MalformedAndUndecodable(t *testing.T) {
	replayer := &recordingReplayer{}
	handler := RedeliverHandler(newRedeliverer(replayer), nil, nil)

	msg := retryMessage(t, time.Time{})
	msg.properties[mqcore.HeaderDeliverAt] = "tomorrow"
	require.NoError(t, handler(context.Background(), msg))
	assert.Len(t, replayer.replayed, 1)

	assert.NoError(t, handler(context.Background(), &mockMessage{payload: []byte("garbage")}))
	assert.Len(t, replayer.replayed, 1)

	assert.ErrorIs(t, handler(context.Background(), nil), ErrNilMessage)
}
