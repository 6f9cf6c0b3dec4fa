package backoff

import (
	"context"
	"math"
	"time"
)

const DefaultBase = time.Second

// Controller computes exponentially increasing, deterministic retry delays.
// The number of attempts is bounded by the caller.
type Controller struct {
	base time.Duration
}

func New(base time.Duration) Controller {
	if base <= 0 {
		base = DefaultBase
	}
	return Controller{base: base}
}

func (c Controller) Base() time.Duration {
	if c.base <= 0 {
		return DefaultBase
	}
	return c.base
}

// DelayFor returns base * 2^(attempt-1). Attempts are 1-indexed, 0 is treated
// as 1. The result saturates at the largest representable duration.
func (c Controller) DelayFor(attempt uint) time.Duration {
	if attempt == 0 {
		attempt = 1
	}

	base := c.Base()
	shift := attempt - 1
	if shift >= 63 || base > time.Duration(math.MaxInt64>>shift) {
		return time.Duration(math.MaxInt64)
	}
	return base << shift
}

// Wait blocks for the delay of the given attempt or until ctx is done.
func (c Controller) Wait(ctx context.Context, attempt uint) error {
	timer := time.NewTimer(c.DelayFor(attempt))
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
