package balance

import (
	"time"

	"github.com/pkg/errors"
)

var ErrClockUnavailable = errors.New("clock unavailable")

// TimingSource measures the loop period used for integration.  After the
// first tick it reports the mean period since the session started rather
// than the last delta, which smooths scheduling jitter.
type TimingSource struct {
	Clock        Clock
	InitInterval float64

	LoopCount       int
	IntervalSeconds float64
	start           time.Time
}

func (t *TimingSource) Reset() {
	t.LoopCount = 0
	t.IntervalSeconds = t.InitInterval
	t.start = time.Time{}
}

// Tick advances the loop counter and returns the integration interval in
// seconds together with the timestamp it was taken at.
func (t *TimingSource) Tick() (float64, time.Time, error) {
	now, err := t.Clock.Now()
	if err != nil {
		return 0, time.Time{}, errors.Wrapf(ErrClockUnavailable, "tick %d: %v", t.LoopCount, err)
	}

	t.LoopCount++
	if t.LoopCount == 1 {
		t.start = now
		t.IntervalSeconds = t.InitInterval
		return t.IntervalSeconds, now, nil
	}

	mean := now.Sub(t.start).Seconds() / float64(t.LoopCount)
	if mean > 0 {
		t.IntervalSeconds = mean
	}
	return t.IntervalSeconds, now, nil
}
