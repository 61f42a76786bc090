package xrun

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestGroup_Empty(t *testing.T) {
	g, _ := NewGroup(context.Background())
	if err := g.Wait(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestGroup_ServiceError(t *testing.T) {
	expectedErr := errors.New("consumer failed")

	g, ctx := NewGroup(context.Background(), WithName("consumers"))
	g.Go(func(ctx context.Context) error { return expectedErr })
	g.GoWithName("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := g.Wait(); !errors.Is(err, expectedErr) {
		t.Errorf("expected %v, got %v", expectedErr, err)
	}
	if ctx.Err() == nil {
		t.Error("group context should be canceled")
	}
}

func TestGroup_NilFunc(t *testing.T) {
	g, _ := NewGroup(context.Background())
	g.Go(nil)
	if err := g.Wait(); !errors.Is(err, ErrNilFunc) {
		t.Errorf("expected ErrNilFunc, got %v", err)
	}

	g, _ = NewGroup(context.Background())
	g.GoWithName("nil", nil)
	if err := g.Wait(); !errors.Is(err, ErrNilFunc) {
		t.Errorf("expected ErrNilFunc, got %v", err)
	}
}

func TestGroup_NilContextAndOption(t *testing.T) {
	//nolint:staticcheck // nil ctx 归一化为 Background
	g, ctx := NewGroup(nil, nil, WithLogger(nil), WithName(""))
	if ctx == nil {
		t.Fatal("context should not be nil")
	}
	if g.opts.name != "xrun" {
		t.Errorf("expected default name, got %q", g.opts.name)
	}
	if err := g.Wait(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestGroup_CancelWithCause(t *testing.T) {
	cause := errors.New("config reload")

	g, _ := NewGroup(context.Background())
	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	g.Cancel(cause)

	if err := g.Wait(); !errors.Is(err, cause) {
		t.Errorf("expected cause %v, got %v", cause, err)
	}
}

func TestGroup_CancelCauseWhenServicesReturnNil(t *testing.T) {
	cause := errors.New("stop")

	g, _ := NewGroup(context.Background())
	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	g.Cancel(cause)

	if err := g.Wait(); !errors.Is(err, cause) {
		t.Errorf("expected cause %v, got %v", cause, err)
	}
}

func TestGroup_CancelWithoutCause(t *testing.T) {
	g, _ := NewGroup(context.Background())
	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	g.Cancel(nil)

	if err := g.Wait(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestGroup_InternalCanceledNotFiltered(t *testing.T) {
	g, _ := NewGroup(context.Background())
	g.Go(func(ctx context.Context) error { return context.Canceled })

	if err := g.Wait(); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRun_Signal(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	ctx := withTestSigChan(context.Background(), sigCh)

	var stopped atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, func(ctx context.Context) error {
			<-ctx.Done()
			stopped.Store(true)
			return ctx.Err()
		})
	}()

	sigCh <- syscall.SIGTERM

	select {
	case err := <-done:
		var sigErr *SignalError
		if !errors.As(err, &sigErr) {
			t.Fatalf("expected *SignalError, got %v", err)
		}
		if sigErr.Signal != syscall.SIGTERM {
			t.Errorf("expected SIGTERM, got %v", sigErr.Signal)
		}
		if !errors.Is(err, ErrSignal) {
			t.Error("expected errors.Is(err, ErrSignal)")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after signal")
	}
	if !stopped.Load() {
		t.Error("service was not stopped")
	}
}

func TestRunWithOptions_NoSignalHandler(t *testing.T) {
	var ran atomic.Bool
	err := RunWithOptions(context.Background(), []Option{WithoutSignalHandler()},
		func(ctx context.Context) error {
			ran.Store(true)
			return nil
		})
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if !ran.Load() {
		t.Error("service was not executed")
	}
}

func TestRunWithOptions_CustomSignals(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	ctx := withTestSigChan(context.Background(), sigCh)
	sigCh <- syscall.SIGINT

	err := RunWithOptions(ctx, []Option{WithSignals([]os.Signal{syscall.SIGINT})},
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	if !errors.Is(err, ErrSignal) {
		t.Errorf("expected ErrSignal, got %v", err)
	}
}

func TestSignalError(t *testing.T) {
	e := &SignalError{Signal: syscall.SIGHUP}
	if e.Error() != "received signal hangup" {
		t.Errorf("unexpected message %q", e.Error())
	}
	if (&SignalError{}).Error() != "received signal <nil>" {
		t.Error("unexpected nil signal message")
	}
	if !errors.Is(e, ErrSignal) || errors.Unwrap(e) != ErrSignal {
		t.Error("SignalError should unwrap to ErrSignal")
	}
}

func TestDefaultSignals(t *testing.T) {
	a := DefaultSignals()
	a[0] = nil
	if DefaultSignals()[0] == nil {
		t.Error("DefaultSignals should return a fresh slice")
	}
}
