package hardware

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	gravityCMPerS2 = 981.0
	// Distance from the axle to the centre of mass.
	pendulumCM = 12.0
	// Wheel rate at full power, in encoder degrees per second.
	maxWheelRate   = 900.0
	driveTau       = 0.05
	coastTau       = 0.5
	lyingDownAngle = 90.0
	simSubstep     = time.Millisecond
)

type SimOptions struct {
	WheelDiameterCM float64
	GyroBias        float64
	GyroNoise       float64
	BatteryMV       int
	InitialTilt     float64
	Seed            int64
	// Step is the simulated time per gyro read.  Zero follows the wall
	// clock.
	Step time.Duration
}

type simWheel struct {
	angle, rate float64
	zero        float64
	power       int
	coasting    bool
}

// Sim is an inverted pendulum on two wheels.  Time advances each time the
// gyro is read, which the balance loop does once per tick.  Tilt is in
// degrees, positive leaning forwards, and forward wheel power pushes it back
// upright.
type Sim struct {
	lock sync.Mutex
	opts SimOptions
	rand *rand.Rand
	last time.Time

	tilt, tiltRate float64
	wheels         [2]simWheel

	auxDegrees int
}

func NewSim(opts SimOptions) *Sim {
	if opts.WheelDiameterCM == 0 {
		opts.WheelDiameterCM = 5.6
	}
	if opts.BatteryMV == 0 {
		opts.BatteryMV = 7800
	}
	s := &Sim{
		opts: opts,
		rand: rand.New(rand.NewSource(opts.Seed)),
		tilt: opts.InitialTilt,
	}
	for i := range s.wheels {
		s.wheels[i].coasting = true
	}
	return s
}

var _ Interface = (*Sim)(nil)

func (s *Sim) GyroRate() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.advance()
	noise := 0.0
	if s.opts.GyroNoise > 0 {
		noise = s.rand.NormFloat64() * s.opts.GyroNoise
	}
	return int(math.Round(s.tiltRate + s.opts.GyroBias + noise))
}

func (s *Sim) EncoderCounts() (left, right int32) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.count(Left), s.count(Right)
}

func (s *Sim) count(w Wheel) int32 {
	wh := &s.wheels[w]
	return int32(wh.angle - wh.zero)
}

func (s *Sim) ResetEncoders() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for i := range s.wheels {
		s.wheels[i].zero = s.wheels[i].angle
	}
}

// BatteryMillivolts sags a little with load.
func (s *Sim) BatteryMillivolts() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	load := 0
	for _, wh := range s.wheels {
		if !wh.coasting {
			load += abs(wh.power)
		}
	}
	return s.opts.BatteryMV - 2*load
}

func (s *Sim) SetMotorPower(w Wheel, power int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if power > MaxPower {
		power = MaxPower
	} else if power < -MaxPower {
		power = -MaxPower
	}
	s.wheels[w].power = power
	s.wheels[w].coasting = false
}

func (s *Sim) StopMotor(w Wheel) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.wheels[w].power = 0
	s.wheels[w].coasting = true
}

func (s *Sim) RotateAux(degrees, power int) error {
	s.lock.Lock()
	s.auxDegrees += degrees * sign(power)
	s.lock.Unlock()
	fmt.Printf("HW: sim aux motor turned %d degrees at power %d\n", degrees, power)
	return nil
}

func (s *Sim) Shutdown() {
	fmt.Println("HW: sim shutdown")
	s.StopMotor(Left)
	s.StopMotor(Right)
}

// Tilt returns the true chassis angle and rate, without gyro bias or noise.
func (s *Sim) Tilt() (angle, rate float64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.tilt, s.tiltRate
}

func (s *Sim) AuxDegrees() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.auxDegrees
}

// Nudge adds to the tilt rate, as if the robot had been pushed.
func (s *Sim) Nudge(degreesPerSecond float64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tiltRate += degreesPerSecond
}

// Advance runs the model forward by d.  The gyro read does this
// implicitly.
func (s *Sim) Advance(d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.integrate(d)
}

func (s *Sim) advance() {
	d := s.opts.Step
	if d == 0 {
		now := time.Now()
		if !s.last.IsZero() {
			d = now.Sub(s.last)
		}
		s.last = now
		// A long pause (debugger, stopped process) shouldn't teleport
		// the robot.
		if d > 50*time.Millisecond {
			d = 50 * time.Millisecond
		}
	}
	s.integrate(d)
}

func (s *Sim) integrate(d time.Duration) {
	cmPerWheelDegree := math.Pi * s.opts.WheelDiameterCM / 360
	for d > 0 {
		step := simSubstep
		if d < step {
			step = d
		}
		d -= step
		dt := step.Seconds()

		var accel float64
		for i := range s.wheels {
			wh := &s.wheels[i]
			var rateAccel float64
			if wh.coasting {
				rateAccel = -wh.rate / coastTau
			} else {
				target := float64(wh.power) / MaxPower * maxWheelRate
				rateAccel = (target - wh.rate) / driveTau
			}
			wh.rate += rateAccel * dt
			wh.angle += wh.rate * dt
			accel += rateAccel / 2
		}

		if math.Abs(s.tilt) >= lyingDownAngle {
			continue
		}
		theta := s.tilt * math.Pi / 180
		linearAccel := accel * cmPerWheelDegree
		alpha := (gravityCMPerS2*math.Sin(theta) - linearAccel*math.Cos(theta)) / pendulumCM
		s.tiltRate += alpha * 180 / math.Pi * dt
		s.tilt += s.tiltRate * dt
		if math.Abs(s.tilt) >= lyingDownAngle {
			s.tilt = math.Copysign(lyingDownAngle, s.tilt)
			s.tiltRate = 0
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	if x < 0 {
		return -1
	}
	return 1
}
