// Package retry runs an operation until it succeeds or a bounded number of
// attempts with exponentially growing delays is used up.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

var ErrExhausted = errors.New("retry: attempts exhausted")

const DefaultFactor = 1.5

type Policy struct {
	BaseDelay   time.Duration
	Factor      float64
	MaxAttempts int

	// Clock drives the default sleep.
	Clock clock.Clock
	// Sleep overrides the wait between attempts.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Delay returns the wait before attempt n (1-based). The first attempt is immediate.
func (p Policy) Delay(n int) time.Duration {
	if n <= 1 {
		return 0
	}
	f := p.Factor
	if f <= 0 {
		f = DefaultFactor
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(f, float64(n-2)))
}

// Do calls fn until it returns nil, ctx is done, or MaxAttempts calls have
// failed. The attempt number passed to fn is 1-based.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var last error
	for n := 1; n <= attempts; n++ {
		if d := p.Delay(n); d > 0 {
			if err := p.sleep(ctx, d); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if last = fn(n); last == nil {
			return nil
		}
	}
	return fmt.Errorf("%w after %d: %w", ErrExhausted, attempts, last)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	t := clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
