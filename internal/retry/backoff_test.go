package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

var errNotYet = errors.New("not mounted")

type sleeps []time.Duration

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	*s = append(*s, d)
	return nil
}

func TestDelayGrowsByFactor(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, Factor: 1.5}
	want := []time.Duration{0, 100 * time.Millisecond, 150 * time.Millisecond, 225 * time.Millisecond}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Fatalf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestDoStopsOnSuccess(t *testing.T) {
	var s sleeps
	p := Policy{BaseDelay: 10 * time.Millisecond, Factor: 1.5, MaxAttempts: 5, Sleep: s.sleep}

	calls := 0
	err := p.Do(context.Background(), func(n int) error {
		calls++
		if n < 3 {
			return errNotYet
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(s) != 2 || s[0] != 10*time.Millisecond || s[1] != 15*time.Millisecond {
		t.Fatalf("sleeps = %v", s)
	}
}

func TestDoExhausts(t *testing.T) {
	var s sleeps
	p := Policy{BaseDelay: time.Millisecond, MaxAttempts: 4, Sleep: s.sleep}

	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		return errNotYet
	})
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, errNotYet) {
		t.Fatalf("err = %v", err)
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
}

func TestDoHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancelOnSleep := func(context.Context, time.Duration) error {
		cancel()
		return nil
	}
	p := Policy{BaseDelay: time.Millisecond, MaxAttempts: 10, Sleep: cancelOnSleep}
	calls := 0
	err := p.Do(ctx, func(int) error {
		calls++
		return errNotYet
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoWithMockClock(t *testing.T) {
	clk := clock.NewMock()
	p := Policy{BaseDelay: time.Second, MaxAttempts: 2, Clock: clk}

	done := make(chan error, 1)
	go func() {
		done <- p.Do(context.Background(), func(n int) error {
			if n == 1 {
				return errNotYet
			}
			return nil
		})
	}()

	deadline := time.After(time.Second)
	for {
		clk.Add(time.Second)
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Do: %v", err)
			}
			return
		case <-deadline:
			t.Fatal("Do did not finish")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
