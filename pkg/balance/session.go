package balance

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/hardware"
)

type Status int32

const (
	Idle Status = iota
	Calibrating
	Running
	Fallen
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Calibrating:
		return "calibrating"
	case Running:
		return "running"
	case Fallen:
		return "fallen"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Light is the status light colour that goes with a status event.
type Light int

const (
	LightOff Light = iota
	LightOrange
	LightGreen
	LightRed
)

func (l Light) String() string {
	return [...]string{"off", "orange", "green", "red"}[l]
}

// Event is passed to listeners on every status change and on each failed
// calibration attempt.
type Event struct {
	Status  Status
	Light   Light
	Attempt int
}

// Snapshot is a copy of the loop state taken at the end of a tick.
type Snapshot struct {
	Status     Status      `json:"status"`
	LoopCount  int         `json:"loopCount"`
	Interval   float64     `json:"interval"`
	Gyro       GyroState   `json:"gyro"`
	Motor      MotorState  `json:"motor"`
	BasePower  float64     `json:"basePower"`
	SteerPower float64     `json:"steerPower"`
	Output     PowerOutput `json:"output"`
	BatteryMV  int         `json:"batteryMV"`
	Drive      int         `json:"drive"`
	Steer      int         `json:"steer"`
}

// Session is the balance state machine.  Run owns all loop state; the other
// methods are safe to call from any goroutine.
type Session struct {
	hw     hardware.Drivers
	clock  Clock
	params *Params

	status   atomic.Int32
	command  ControlCommand
	restartC chan struct{}

	timing     TimingSource
	calibrator GyroCalibrator
	estimator  StateEstimator
	controller BalanceController
	fall       FallDetector
	mixer      SteeringMixer

	snapLock sync.Mutex
	snap     Snapshot

	listenersLock sync.Mutex
	listeners     []func(Event)
}

func NewSession(hw hardware.Drivers, clock Clock, params *Params) *Session {
	return &Session{
		hw:       hw,
		clock:    clock,
		params:   params,
		restartC: make(chan struct{}, 1),
		timing: TimingSource{
			Clock:        clock,
			InitInterval: params.InitInterval,
		},
		calibrator: GyroCalibrator{
			Samples:        params.CalibrationSamples,
			Spacing:        params.CalibrationSpacing,
			NoiseThreshold: params.NoiseThreshold,
		},
		estimator:  StateEstimator{Alpha: params.EMAOffset},
		controller: BalanceController{Params: params},
	}
}

// AddListener registers f for status events.  f is called from the control
// goroutine and must not block.
func (s *Session) AddListener(f func(Event)) {
	s.listenersLock.Lock()
	s.listeners = append(s.listeners, f)
	s.listenersLock.Unlock()
}

func (s *Session) Status() Status {
	return Status(s.status.Load())
}

// SetCommand overwrites the drive and steer set-points.
func (s *Session) SetCommand(drive, steer int) {
	s.command.Set(drive, steer)
}

func (s *Session) Command() (drive, steer int) {
	return s.command.Load()
}

// Restart asks a fallen session to calibrate and run again.  It returns
// false, and does nothing, in any other state.
func (s *Session) Restart() bool {
	if s.Status() != Fallen {
		return false
	}
	select {
	case s.restartC <- struct{}{}:
	default:
	}
	return true
}

func (s *Session) Snapshot() Snapshot {
	s.snapLock.Lock()
	defer s.snapLock.Unlock()
	snap := s.snap
	snap.Status = s.Status()
	return snap
}

// Run calibrates and balances until ctx is done, waiting for Restart after
// each fall.  It only returns an error if the clock fails.
func (s *Session) Run(ctx context.Context) error {
	defer fmt.Println("BAL: session loop exited")
	for {
		err := s.activate(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.restartC:
			fmt.Println("BAL: restarting balance session")
		}
	}
}

// activate runs one session from reset to fall.
func (s *Session) activate(ctx context.Context) error {
	s.reset()
	s.setStatus(Calibrating, LightOff, 0)

	fmt.Println("BAL: start calibration of the gyro sensor")
	offset, err := s.calibrateWithRetries(ctx)
	if errors.Is(err, ErrCalibrationNoise) {
		fmt.Println("BAL: max retries for calibration exceeded")
		s.setStatus(Fallen, LightRed, 0)
		return nil
	} else if err != nil {
		return err
	}
	fmt.Printf("BAL: calibration succeeded, offset is %.3f\n", offset)

	s.estimator.SetOffset(offset)
	s.estimator.Gyro.Angle = s.params.InitGyroAngle
	s.setStatus(Running, LightGreen, 0)

	for {
		fallen, err := s.tick()
		if err != nil {
			s.stopMotors()
			s.setStatus(Fallen, LightRed, 0)
			fmt.Println("BAL: fatal:", err)
			return err
		}
		if fallen {
			s.stopMotors()
			fmt.Println("BAL: Knock out!")
			s.setStatus(Fallen, LightRed, 0)
			return nil
		}
		if err := s.clock.Sleep(ctx, s.params.WaitTime()); err != nil {
			s.stopMotors()
			return err
		}
	}
}

func (s *Session) reset() {
	select {
	case <-s.restartC:
	default:
	}
	s.command.Set(0, 0)
	s.timing.Reset()
	s.estimator.Reset()
	s.mixer = SteeringMixer{}
	s.hw.ResetEncoders()

	s.snapLock.Lock()
	s.snap = Snapshot{Interval: s.timing.IntervalSeconds}
	s.snapLock.Unlock()
}

func (s *Session) calibrateWithRetries(ctx context.Context) (float64, error) {
	var err error
	for attempt := 1; attempt <= s.params.CalibrationTries; attempt++ {
		var offset float64
		offset, err = s.calibrator.Calibrate(ctx, s.hw, s.clock, s.estimator.ObserveRate)
		if err == nil {
			return offset, nil
		}
		if !errors.Is(err, ErrCalibrationNoise) {
			return 0, err
		}
		fmt.Printf("CAL: calibration attempt %d failed (%v)\n", attempt, err)
		if attempt == s.params.CalibrationTries {
			break
		}
		fmt.Println("CAL: calibration failed, retry")
		s.emit(Event{Status: Calibrating, Light: LightOrange, Attempt: attempt})
		if err := s.clock.Sleep(ctx, s.params.RetryBackoff); err != nil {
			return 0, err
		}
	}
	return 0, err
}

// tick runs one control step and returns true if the robot has fallen.
func (s *Session) tick() (bool, error) {
	interval, now, err := s.timing.Tick()
	if err != nil {
		return false, err
	}
	if s.timing.LoopCount == 1 {
		s.fall.Reset(now)
	}
	drive, steer := s.command.Load()

	rate := s.hw.GyroRate()
	left, right := s.hw.EncoderCounts()
	s.estimator.Update(rate, left, right, float64(drive), interval, s.Status() == Running)

	batteryMV := s.hw.BatteryMillivolts()
	basePower := s.controller.Compute(s.estimator.Gyro, s.estimator.Motor, float64(drive), batteryMV)

	if s.fall.Observe(basePower, now, s.params.FallTime()) {
		s.record(interval, basePower, PowerOutput{}, batteryMV, drive, steer)
		return true, nil
	}

	out := s.mixer.Mix(basePower, float64(steer), &s.estimator.Motor, interval, s.params.KSteer.Get())
	s.hw.SetMotorPower(hardware.Left, out.Left)
	s.hw.SetMotorPower(hardware.Right, out.Right)

	s.record(interval, basePower, out, batteryMV, drive, steer)
	if s.params.Verbose {
		fmt.Printf("BAL: %d dt=%.4f angle=%.2f rate=%.2f pos=%.1f speed=%.1f base=%.1f -> %d/%d\n",
			s.timing.LoopCount, interval, s.estimator.Gyro.Angle, s.estimator.Gyro.Rate,
			s.estimator.Motor.Position, s.estimator.Motor.Speed, basePower, out.Left, out.Right)
	}
	return false, nil
}

func (s *Session) record(interval, basePower float64, out PowerOutput, batteryMV, drive, steer int) {
	s.snapLock.Lock()
	s.snap = Snapshot{
		LoopCount:  s.timing.LoopCount,
		Interval:   interval,
		Gyro:       s.estimator.Gyro,
		Motor:      s.estimator.Motor,
		BasePower:  basePower,
		SteerPower: s.mixer.SteerPower,
		Output:     out,
		BatteryMV:  batteryMV,
		Drive:      drive,
		Steer:      steer,
	}
	s.snapLock.Unlock()
}

func (s *Session) stopMotors() {
	s.hw.StopMotor(hardware.Left)
	s.hw.StopMotor(hardware.Right)
}

func (s *Session) setStatus(status Status, light Light, attempt int) {
	s.status.Store(int32(status))
	s.emit(Event{Status: status, Light: light, Attempt: attempt})
}

func (s *Session) emit(e Event) {
	s.listenersLock.Lock()
	listeners := append([]func(Event){}, s.listeners...)
	s.listenersLock.Unlock()
	for _, l := range listeners {
		l(e)
	}
}

// WaitForStatus polls until the session reaches want or ctx is done.
func (s *Session) WaitForStatus(ctx context.Context, want Status, poll time.Duration) bool {
	for ctx.Err() == nil {
		if s.Status() == want {
			return true
		}
		time.Sleep(poll)
	}
	return false
}
