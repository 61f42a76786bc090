package xretry

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xresilience/pkg/resilience/xclassify"
)

func fixedRandom(v float64) func() float64 {
	return func() float64 { return v }
}

func TestCurve_Raw(t *testing.T) {
	c := Curve{Base: 1500 * time.Millisecond, Max: 45 * time.Second, Multiplier: 1.5}
	assert.Equal(t, 1500*time.Millisecond, c.Raw(0))
	assert.Equal(t, 3375*time.Millisecond, c.Raw(2))
	assert.Equal(t, 45*time.Second, c.Raw(100))
	assert.Equal(t, 45*time.Second, c.Raw(math.MaxInt32), "overflow clamps to max")
	assert.Equal(t, 1500*time.Millisecond, c.Raw(-3))
}

func TestCurve_Validate(t *testing.T) {
	assert.NoError(t, Curve{Base: time.Second, Max: time.Second, Multiplier: 1}.Validate())
	assert.ErrorIs(t, Curve{Max: time.Second, Multiplier: 2}.Validate(), ErrInvalidCurve)
	assert.ErrorIs(t, Curve{Base: 2 * time.Second, Max: time.Second, Multiplier: 2}.Validate(), ErrInvalidCurve)
	assert.ErrorIs(t, Curve{Base: time.Second, Max: time.Second, Multiplier: 0.5}.Validate(), ErrInvalidCurve)
}

func TestScheduler_DelayWithinJitterBounds(t *testing.T) {
	s := NewScheduler(WithDefaultMaxRetries(12))
	for _, c := range xclassify.Categories() {
		curve := s.Curve(c)
		for attempt := 0; attempt < s.MaxRetries("op"); attempt++ {
			exp := float64(curve.Raw(attempt))
			lo := time.Duration(math.Max(float64(DefaultFloor), 0.75*exp))
			hi := time.Duration(1.25 * exp)
			for i := 0; i < 20; i++ {
				d, ok := s.NextDelay("op", c, attempt)
				require.True(t, ok)
				assert.GreaterOrEqual(t, d, lo, "%s attempt %d", c, attempt)
				assert.LessOrEqual(t, d, hi, "%s attempt %d", c, attempt)
			}
		}
	}
}

func TestScheduler_DataRetrievalNetworkScenario(t *testing.T) {
	s := NewScheduler(
		WithCurve(xclassify.Network, Curve{Base: 1500 * time.Millisecond, Max: 45 * time.Second, Multiplier: 1.5}),
		WithMaxRetries("data-retrieval", 7),
	)
	for _, r := range []float64{0, 0.25, 0.5, 0.75, 0.999999} {
		s.random = fixedRandom(r)
		d, ok := s.NextDelay("data-retrieval", xclassify.Network, 2)
		require.True(t, ok)
		assert.GreaterOrEqual(t, d, 2531*time.Millisecond)
		assert.LessOrEqual(t, d, 4219*time.Millisecond)
	}

	s.random = fixedRandom(0.5)
	d, _ := s.NextDelay("data-retrieval", xclassify.Network, 2)
	assert.Equal(t, 3375*time.Millisecond, d)
}

func TestScheduler_FloorAndStop(t *testing.T) {
	s := NewScheduler(
		WithCurve(xclassify.Generic, Curve{Base: 50 * time.Millisecond, Max: time.Second, Multiplier: 2}),
		WithRandom(fixedRandom(0)),
		WithMaxRetries("short", 2),
	)

	d, ok := s.NextDelay("short", xclassify.Generic, 0)
	require.True(t, ok)
	assert.Equal(t, DefaultFloor, d)

	_, ok = s.NextDelay("short", xclassify.Generic, 2)
	assert.False(t, ok)
	_, ok = s.NextDelay("other", xclassify.Generic, DefaultMaxRetries)
	assert.False(t, ok)
}

func TestScheduler_ShouldRetry(t *testing.T) {
	s := NewScheduler()
	assert.True(t, s.ShouldRetry(xclassify.Credential, 0))
	assert.False(t, s.ShouldRetry(xclassify.Credential, 1))
	assert.True(t, s.ShouldRetry(xclassify.Throttling, 50))

	assert.Len(t, s.Schedule("op", xclassify.Credential), 1)
	assert.Len(t, s.Schedule("op", xclassify.Network), DefaultMaxRetries)
}

func TestScheduler_Validate(t *testing.T) {
	assert.NoError(t, NewScheduler().Validate())
	bad := NewScheduler(WithCurve(xclassify.Quota, Curve{Base: time.Second}))
	assert.ErrorIs(t, bad.Validate(), ErrInvalidCurve)
}

func TestOptions_DrivesRetryLoop(t *testing.T) {
	fast := Curve{Base: time.Millisecond, Max: time.Millisecond, Multiplier: 1}
	s := NewScheduler(
		WithCurve(xclassify.Network, fast),
		WithCurve(xclassify.Credential, fast),
		WithFloor(0),
		WithMaxRetries("op", 3),
	)

	t.Run("stops at max retries", func(t *testing.T) {
		var calls int
		var hooked []int
		_, err := DoWithData(context.Background(), func() (int, error) {
			calls++
			return 0, errors.New("connection reset")
		}, s.Options("op", xclassify.Classify, func(attempt int, c xclassify.Category, _ time.Duration, _ error) {
			assert.Equal(t, xclassify.Network, c)
			hooked = append(hooked, attempt)
		})...)

		require.Error(t, err)
		assert.Equal(t, "connection reset", err.Error())
		assert.Equal(t, 4, calls)
		assert.Equal(t, []int{0, 1, 2}, hooked)
	})

	t.Run("credential retries once", func(t *testing.T) {
		var calls int
		_, err := DoWithData(context.Background(), func() (int, error) {
			calls++
			return 0, errors.New("expired credentials")
		}, s.Options("op", xclassify.Classify, nil)...)
		require.Error(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("non retryable error stops", func(t *testing.T) {
		var calls int
		_, err := DoWithData(context.Background(), func() (int, error) {
			calls++
			return 0, NewPermanentError(errors.New("bad request"))
		}, s.Options("op", xclassify.Classify, nil)...)
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("success after retry", func(t *testing.T) {
		var calls int
		v, err := DoWithData(context.Background(), func() (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("network down")
			}
			return "ok", nil
		}, s.Options("op", xclassify.Classify, nil)...)
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, 3, calls)
	})
}

func TestOptions_CancelDuringDelay(t *testing.T) {
	s := NewScheduler(
		WithCurve(xclassify.Network, Curve{Base: time.Minute, Max: time.Minute, Multiplier: 1}),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _ = DoWithData(ctx, func() (int, error) {
		return 0, errors.New("connection refused")
	}, s.Options("op", xclassify.Classify, nil)...)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("x")))
	assert.False(t, IsRetryable(NewPermanentError(errors.New("x"))))
	assert.Equal(t, "permanent error", NewPermanentError(nil).Error())
}
