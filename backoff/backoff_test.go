package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayLinearWithCap(t *testing.T) {
	p := Policy{Base: 10 * time.Second, Cap: 25 * time.Second}

	cases := []struct {
		n    int
		want time.Duration
	}{
		{0, 10 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 25 * time.Second},
		{100, 25 * time.Second},
	}
	for _, c := range cases {
		if got := p.Delay(c.n); got != c.want {
			t.Errorf("Delay(%d): got %v, want %v", c.n, got, c.want)
		}
	}
}

func TestDelayFixedWhenCapEqualsBase(t *testing.T) {
	// Login retries use a fixed delay: Cap == Base.
	p := Policy{Base: 15 * time.Second, Cap: 15 * time.Second}
	for n := 1; n <= 5; n++ {
		if got := p.Delay(n); got != 15*time.Second {
			t.Errorf("Delay(%d): got %v, want 15s", n, got)
		}
	}
}

func TestWaitCancelled(t *testing.T) {
	p := Policy{Base: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Wait(ctx, 1) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancellation")
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	p := Policy{Base: time.Millisecond, MaxAttempts: 5}
	calls := 0
	err := p.Retry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	p := Policy{Base: time.Millisecond, MaxAttempts: 3}
	wantErr := errors.New("always fails")
	calls := 0
	err := p.Retry(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want last error", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestRetryRespectsContext(t *testing.T) {
	p := Policy{Base: time.Hour, MaxAttempts: 3}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- p.Retry(ctx, func(context.Context) error {
			return errors.New("fail")
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Retry did not return after cancellation")
	}
}
