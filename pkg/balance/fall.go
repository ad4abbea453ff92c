package balance

import (
	"time"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/hardware"
)

// FallDetector reports a fall once the base power has been saturated for
// the threshold duration.
type FallDetector struct {
	lastOK time.Time
}

func (f *FallDetector) Reset(now time.Time) {
	f.lastOK = now
}

func (f *FallDetector) LastOK() time.Time {
	return f.lastOK
}

// Observe returns true if the robot has fallen.
func (f *FallDetector) Observe(basePower float64, now time.Time, threshold time.Duration) bool {
	if basePower > -hardware.MaxPower && basePower < hardware.MaxPower {
		f.lastOK = now
		return false
	}
	return now.Sub(f.lastOK) >= threshold
}
