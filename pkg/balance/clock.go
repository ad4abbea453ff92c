package balance

import (
	"context"
	"time"
)

// Clock is the time source of the control loop.  Now fails only if the
// platform timer is gone, which the session treats as fatal.
type Clock interface {
	Now() (time.Time, error)
	Sleep(ctx context.Context, d time.Duration) error
}

type SystemClock struct{}

func (SystemClock) Now() (time.Time, error) {
	return time.Now(), nil
}

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
