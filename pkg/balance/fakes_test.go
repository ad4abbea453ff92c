package balance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/config"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/tunable"
)

var errNoTimer = errors.New("timer gone")

// fakeClock only moves when something sleeps on it.
type fakeClock struct {
	now       time.Time
	failNow   bool
	nowCalls  int
	sleptTime time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() (time.Time, error) {
	c.nowCalls++
	if c.failNow {
		return time.Time{}, errNoTimer
	}
	return c.now, nil
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	c.sleptTime += d
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type motorWrite struct {
	wheel hardware.Wheel
	power int
}

type fakeDrivers struct {
	gyroCalls int
	gyro      func(call int) int
	left      int32
	right     int32
	batteryMV int

	encoderReads int

	resets int
	writes []motorWrite
	stops  []hardware.Wheel

	// onWrite is called after each motor write.
	onWrite func(d *fakeDrivers)
}

func (d *fakeDrivers) GyroRate() int {
	d.gyroCalls++
	if d.gyro == nil {
		return 0
	}
	return d.gyro(d.gyroCalls)
}

func (d *fakeDrivers) EncoderCounts() (left, right int32) {
	d.encoderReads++
	return d.left, d.right
}

func (d *fakeDrivers) ResetEncoders() {
	d.resets++
	d.left, d.right = 0, 0
}

func (d *fakeDrivers) BatteryMillivolts() int {
	return d.batteryMV
}

func (d *fakeDrivers) SetMotorPower(w hardware.Wheel, power int) {
	d.writes = append(d.writes, motorWrite{w, power})
	if d.onWrite != nil {
		d.onWrite(d)
	}
}

func (d *fakeDrivers) StopMotor(w hardware.Wheel) {
	d.stops = append(d.stops, w)
}

func (d *fakeDrivers) stoppedBoth() bool {
	var l, r bool
	for _, w := range d.stops {
		if w == hardware.Left {
			l = true
		} else {
			r = true
		}
	}
	return l && r
}

type eventRecorder struct {
	lock   sync.Mutex
	events []Event
}

func (r *eventRecorder) record(e Event) {
	r.lock.Lock()
	r.events = append(r.events, e)
	r.lock.Unlock()
}

func (r *eventRecorder) statuses() []Status {
	r.lock.Lock()
	defer r.lock.Unlock()
	var out []Status
	for _, e := range r.events {
		if len(out) == 0 || out[len(out)-1] != e.Status {
			out = append(out, e.Status)
		}
	}
	return out
}

func (r *eventRecorder) count(light Light) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Light == light {
			n++
		}
	}
	return n
}

func testParams() *Params {
	return NewParams(config.Default(), &tunable.Tunables{})
}
