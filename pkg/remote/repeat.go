package remote

import (
	"time"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/drive"
)

const (
	RepeatInterval = 100 * time.Millisecond
	TuneInterval   = 250 * time.Millisecond
)

// Source reports the movement or fire command currently being held.
type Source interface {
	Held(now time.Time) drive.Command
}

// Repeater limits how often a held command takes effect.  Between accepted
// commands it reports drive.Hold so the set-points stay where they are.
type Repeater struct {
	Interval time.Duration
	last     time.Time
}

func (r *Repeater) Next(now time.Time, sources ...Source) drive.Command {
	if !r.last.IsZero() && now.Sub(r.last) < r.Interval {
		return drive.Hold
	}
	cmd := drive.None
	for _, s := range sources {
		if cmd = s.Held(now); cmd != drive.None {
			break
		}
	}
	if cmd != drive.None {
		r.last = now
	}
	return cmd
}

// limiter drops events that come less than interval after the last
// accepted one.
type limiter struct {
	interval time.Duration
	last     time.Time
}

func (l *limiter) allow(now time.Time) bool {
	if !l.last.IsZero() && now.Sub(l.last) < l.interval {
		return false
	}
	l.last = now
	return true
}
