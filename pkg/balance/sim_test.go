package balance

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/hardware"
)

// simDrivers runs the session against the simulated robot, with a hook on
// every motor write so tests can push it or stop the run.
type simDrivers struct {
	*hardware.Sim
	writes  int
	onWrite func(n int)
}

func (d *simDrivers) SetMotorPower(w hardware.Wheel, power int) {
	d.Sim.SetMotorPower(w, power)
	d.writes++
	if d.onWrite != nil {
		d.onWrite(d.writes)
	}
}

func newSimSession() (*Session, *simDrivers, *eventRecorder) {
	d := &simDrivers{Sim: hardware.NewSim(hardware.SimOptions{
		Step:     5 * time.Millisecond,
		GyroBias: 3,
	})}
	s := NewSession(d, newFakeClock(), testParams())
	r := &eventRecorder{}
	s.AddListener(r.record)
	return s, d, r
}

func TestSimulatedRobotStaysUp(t *testing.T) {
	s, d, r := newSimSession()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	maxTilt := 0.0
	d.onWrite = func(n int) {
		if tilt, _ := d.Tilt(); math.Abs(tilt) > maxTilt {
			maxTilt = math.Abs(tilt)
		}
		// Two writes per tick: ten seconds of balancing.
		if n == 4000 {
			cancel()
		}
	}

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	expectStatuses(t, r, Calibrating, Running)
	if s.Status() != Running {
		t.Fatalf("Ended %v", s.Status())
	}
	if snap := s.Snapshot(); snap.LoopCount != 2000 {
		t.Fatalf("Expected 2000 ticks, got %d", snap.LoopCount)
	}
	if math.Round(s.Snapshot().Gyro.Offset) != 3 {
		t.Fatalf("Offset %v, expected the gyro bias", s.Snapshot().Gyro.Offset)
	}
	if maxTilt > 5 {
		t.Fatalf("Robot leaned %v degrees", maxTilt)
	}
}

// runNudged pushes the robot once it has balanced for half a second and
// runs until it falls or ten more seconds pass.
func runNudged(t *testing.T, degreesPerSecond float64) (*Session, *simDrivers) {
	t.Helper()
	s, d, _ := newSimSession()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.AddListener(func(e Event) {
		if e.Status == Fallen {
			cancel()
		}
	})
	d.onWrite = func(n int) {
		switch n {
		case 200:
			d.Nudge(degreesPerSecond)
		case 4200:
			cancel()
		}
	}
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return s, d
}

func TestSimulatedRobotKnockedOver(t *testing.T) {
	s, d := runNudged(t, 1000)
	if s.Status() != Fallen {
		t.Fatalf("Expected a hard push to knock the robot over, status %v", s.Status())
	}
	if tilt, _ := d.Tilt(); math.Abs(tilt) < 45 {
		t.Fatalf("Fallen but the robot is at %v degrees", tilt)
	}
}

func TestSimulatedRobotGentlePush(t *testing.T) {
	s, d := runNudged(t, 20)
	switch s.Status() {
	case Running:
		if tilt, _ := d.Tilt(); math.Abs(tilt) > 10 {
			t.Fatalf("Still running but leaning %v degrees", tilt)
		}
	case Fallen:
		if tilt, _ := d.Tilt(); math.Abs(tilt) < 45 {
			t.Fatalf("Fallen but the robot is at %v degrees", tilt)
		}
	default:
		t.Fatalf("Unexpected status %v", s.Status())
	}
}
