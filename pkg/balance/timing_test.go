package balance

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestFirstTickUsesInitInterval(t *testing.T) {
	c := newFakeClock()
	ts := TimingSource{Clock: c, InitInterval: 0.014}
	ts.Reset()

	dt, _, err := ts.Tick()
	if err != nil {
		t.Fatal(err)
	}
	if dt != 0.014 || ts.LoopCount != 1 {
		t.Fatalf("First tick gave %v (count %d), expected 0.014", dt, ts.LoopCount)
	}
}

func TestIntervalIsMeanSinceStart(t *testing.T) {
	c := newFakeClock()
	ts := TimingSource{Clock: c, InitInterval: 0.014}
	ts.Reset()
	_, start, _ := ts.Tick()

	// A slow tick followed by fast ones: the mean lags behind the
	// instantaneous period.
	c.advance(20 * time.Millisecond)
	dt, _, _ := ts.Tick()
	expectFloat(t, "tick 2", dt, 0.020/2)

	c.advance(5 * time.Millisecond)
	dt, now, _ := ts.Tick()
	expectFloat(t, "tick 3", dt, 0.025/3)
	if now.Sub(start) != 25*time.Millisecond {
		t.Errorf("Timestamp not returned: %v", now.Sub(start))
	}
}

func TestIntervalNeverZero(t *testing.T) {
	c := newFakeClock()
	ts := TimingSource{Clock: c, InitInterval: 0.014}
	ts.Reset()
	for i := 0; i < 5; i++ {
		dt, _, _ := ts.Tick()
		if dt <= 0 {
			t.Fatalf("Tick %d gave non-positive interval %v", i, dt)
		}
	}
}

func TestResetRestartsTiming(t *testing.T) {
	c := newFakeClock()
	ts := TimingSource{Clock: c, InitInterval: 0.014}
	ts.Reset()
	ts.Tick()
	c.advance(time.Second)
	ts.Tick()

	ts.Reset()
	dt, _, _ := ts.Tick()
	if dt != 0.014 || ts.LoopCount != 1 {
		t.Fatalf("Reset didn't restart: dt=%v count=%d", dt, ts.LoopCount)
	}
}

func TestClockFailureIsReported(t *testing.T) {
	c := newFakeClock()
	c.failNow = true
	ts := TimingSource{Clock: c, InitInterval: 0.014}
	ts.Reset()
	_, _, err := ts.Tick()
	if !errors.Is(err, ErrClockUnavailable) {
		t.Fatalf("Expected ErrClockUnavailable, got %v", err)
	}
}

func expectFloat(t *testing.T, what string, actual, expected float64) {
	t.Helper()
	if math.Abs(actual-expected) > 1e-9*math.Max(1, math.Abs(expected)) {
		t.Errorf("%s: got %v, expected %v", what, actual, expected)
	}
}
