package balance

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func newTestSession(d *fakeDrivers) (*Session, *fakeClock, *eventRecorder) {
	if d.batteryMV == 0 {
		d.batteryMV = 7500
	}
	c := newFakeClock()
	s := NewSession(d, c, testParams())
	r := &eventRecorder{}
	s.AddListener(r.record)
	return s, c, r
}

// startSession runs s in the background.  The returned function cancels it
// and returns Run's result.
func startSession(s *Session) (context.CancelFunc, func() error) {
	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() {
		errC <- s.Run(ctx)
	}()
	return cancel, func() error {
		cancel()
		select {
		case err := <-errC:
			return err
		case <-time.After(10 * time.Second):
			panic("session didn't stop")
		}
	}
}

func waitFor(t *testing.T, s *Session, want Status) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if !s.WaitForStatus(ctx, want, time.Millisecond) {
		t.Fatalf("Session never reached %v (now %v)", want, s.Status())
	}
}

func expectStatuses(t *testing.T, r *eventRecorder, expected ...Status) {
	t.Helper()
	actual := r.statuses()
	if len(actual) != len(expected) {
		t.Fatalf("Statuses %v, expected %v", actual, expected)
	}
	for i := range actual {
		if actual[i] != expected[i] {
			t.Fatalf("Statuses %v, expected %v", actual, expected)
		}
	}
}

func TestStationaryRobotBalances(t *testing.T) {
	d := &fakeDrivers{}
	s, c, r := newTestSession(d)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.onWrite = func(d *fakeDrivers) {
		if len(d.writes) == 1000 {
			cancel()
		}
	}

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	expectStatuses(t, r, Calibrating, Running)
	snap := s.Snapshot()
	if snap.LoopCount != 500 {
		t.Fatalf("Expected 500 ticks, got %d", snap.LoopCount)
	}
	// Both wheels are sampled in one read per tick.
	if d.encoderReads != 500 {
		t.Fatalf("Expected one encoder read per tick, got %d", d.encoderReads)
	}
	if math.Abs(snap.BasePower) > 5 {
		t.Fatalf("Base power %v not near zero", snap.BasePower)
	}
	for _, w := range d.writes {
		if w.power < -5 || w.power > 5 {
			t.Fatalf("Unexpected motor write %+v", w)
		}
	}
	expectFloat(t, "offset", snap.Gyro.Offset, 0)
	expectFloat(t, "angle", snap.Gyro.Angle, -0.25)
	if !d.stoppedBoth() {
		t.Fatal("Motors not stopped on shutdown")
	}
	if c.sleptTime < 800*time.Millisecond+499*5*time.Millisecond {
		t.Fatalf("Loop didn't pace itself: slept %v", c.sleptTime)
	}
}

// tiltAfterCalibration reads still for one calibration window and then
// reports a steady fall.
func tiltAfterCalibration(call int) int {
	if call <= 200 {
		return 0
	}
	return 1000
}

func TestSaturatedPowerFalls(t *testing.T) {
	d := &fakeDrivers{gyro: tiltAfterCalibration}
	s, _, r := newTestSession(d)
	_, stop := startSession(s)

	waitFor(t, s, Fallen)
	if err := stop(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	expectStatuses(t, r, Calibrating, Running, Fallen)
	if r.count(LightRed) != 1 {
		t.Fatal("Expected red light on fall")
	}
	if !d.stoppedBoth() {
		t.Fatal("Both motors should be stopped after a fall")
	}
	// 5ms per tick: the first tick at 0ms refreshes the fall timer, the
	// 201st is the first at least 1s later.
	snap := s.Snapshot()
	if snap.LoopCount != 201 {
		t.Fatalf("Fell on tick %d, expected 201", snap.LoopCount)
	}
	if len(d.writes) != 400 {
		t.Fatalf("Expected motor writes only before the fall, got %d", len(d.writes))
	}
	for _, w := range d.writes {
		if w.power != 100 && w.power != -100 {
			t.Fatalf("Expected saturated output, got %+v", w)
		}
	}
}

func TestRestartAfterFall(t *testing.T) {
	d := &fakeDrivers{gyro: tiltAfterCalibration}
	s, _, r := newTestSession(d)
	_, stop := startSession(s)

	waitFor(t, s, Fallen)
	if !s.Restart() {
		t.Fatal("Restart refused while fallen")
	}
	// The gyro now reads a steady 1000, which recalibration absorbs.
	waitFor(t, s, Running)
	if err := stop(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	expectStatuses(t, r, Calibrating, Running, Fallen, Calibrating, Running)
	if d.resets != 2 {
		t.Fatalf("Expected encoders reset per session, got %d", d.resets)
	}
	expectFloat(t, "recalibrated offset", math.Round(s.Snapshot().Gyro.Offset), 1000)
}

func TestRestartIgnoredUnlessFallen(t *testing.T) {
	s, _, _ := newTestSession(&fakeDrivers{})
	if s.Restart() {
		t.Fatal("Restart accepted while idle")
	}
	select {
	case <-s.restartC:
		t.Fatal("Restart request queued while idle")
	default:
	}
}

func TestResetClearsSession(t *testing.T) {
	d := &fakeDrivers{left: 50, right: 70}
	s, _, _ := newTestSession(d)
	s.SetCommand(300, -80)
	s.estimator.SetOffset(12)
	s.estimator.Update(20, 50, 70, 300, 0.01, true)
	s.mixer.Mix(0, -80, &s.estimator.Motor, 0.01, -0.25)
	s.timing.LoopCount = 40
	s.restartC <- struct{}{}

	s.reset()

	if drive, steer := s.Command(); drive != 0 || steer != 0 {
		t.Errorf("Command not cleared: %d/%d", drive, steer)
	}
	if s.estimator.Motor != (MotorState{}) || s.estimator.Gyro.Angle != 0 {
		t.Errorf("Estimator not cleared: %+v", s.estimator)
	}
	if s.mixer.SteerPower != 0 {
		t.Errorf("Steer power not cleared")
	}
	if s.timing.LoopCount != 0 || s.timing.IntervalSeconds != 0.014 {
		t.Errorf("Timing not reset: %+v", s.timing)
	}
	if d.left != 0 || d.right != 0 {
		t.Errorf("Encoders not reset")
	}
	if len(s.restartC) != 0 {
		t.Errorf("Stale restart request kept")
	}
}

func TestCalibrationGivesUp(t *testing.T) {
	d := &fakeDrivers{gyro: func(call int) int { return 5 * (call % 2) }}
	s, _, r := newTestSession(d)
	_, stop := startSession(s)

	waitFor(t, s, Fallen)
	if err := stop(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	expectStatuses(t, r, Calibrating, Fallen)
	if n := r.count(LightOrange); n != 9 {
		t.Fatalf("Expected 9 retry events, got %d", n)
	}
	if d.gyroCalls != 10*200 {
		t.Fatalf("Expected 10 sample windows, read %d", d.gyroCalls)
	}
	if len(d.writes) != 0 {
		t.Fatal("Motors driven without calibration")
	}
}

func TestClockFailureIsFatal(t *testing.T) {
	d := &fakeDrivers{}
	s, c, r := newTestSession(d)
	c.failNow = true

	err := s.Run(context.Background())
	if !errors.Is(err, ErrClockUnavailable) {
		t.Fatalf("Expected ErrClockUnavailable, got %v", err)
	}
	expectStatuses(t, r, Calibrating, Running, Fallen)
	if !d.stoppedBoth() {
		t.Fatal("Motors not stopped")
	}
	if len(d.writes) != 0 {
		t.Fatal("Motors driven without a timestamp")
	}
}

func TestCommandReachesLoop(t *testing.T) {
	d := &fakeDrivers{}
	s, _, _ := newTestSession(d)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.onWrite = func(d *fakeDrivers) {
		switch len(d.writes) {
		case 2:
			s.SetCommand(100, 20)
		case 202:
			cancel()
		}
	}
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	snap := s.Snapshot()
	if snap.Drive != 100 || snap.Steer != 20 {
		t.Fatalf("Snapshot shows command %d/%d", snap.Drive, snap.Steer)
	}
	if snap.Motor.WheelDiffTarget <= 0 {
		t.Fatalf("Steer rate not integrated: %v", snap.Motor.WheelDiffTarget)
	}
	// Commanded drive is removed from the position so the robot doesn't
	// try to roll back to where it started.
	if snap.Motor.Position >= 0 {
		t.Fatalf("Drive not compensated in position: %v", snap.Motor.Position)
	}
}
