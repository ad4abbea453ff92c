package hardware

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/config"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/gyro"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/ina219"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/motorboard"
)

const (
	shuntOhms  = 0.1
	maxCurrent = 3.2

	// The board stops the motors if we go quiet for this long.
	watchdogTimeout = 250 * time.Millisecond
)

// Hardware talks to the real robot.  The sensor reads return the last good
// value on a bus error so one glitch doesn't fault the control loop.
type Hardware struct {
	lock sync.Mutex

	gyro    gyro.Interface
	board   *motorboard.Board
	battery ina219.Interface

	lastRate     int
	lastEncoders motorboard.PerMotor[int32]
	lastMV       int
}

func New(devs config.Devices) (*Hardware, error) {
	var g *gyro.Gyro
	var err error
	if devs.GyroSPI != "" {
		g, err = gyro.NewSPI(devs.GyroSPI)
	} else {
		g, err = gyro.NewI2C(devs.I2CBus)
	}
	if err != nil {
		return nil, err
	}
	if err := g.Configure(); err != nil {
		_ = g.Close()
		return nil, errors.Wrap(err, "configuring gyro")
	}

	board, err := motorboard.New(devs.I2CBus, devs.MotorBoardI2C)
	if err != nil {
		_ = g.Close()
		return nil, err
	}
	if err := board.Start(watchdogTimeout); err != nil {
		_ = g.Close()
		_ = board.Close()
		return nil, errors.Wrap(err, "starting motor board")
	}

	h := &Hardware{
		gyro:  g,
		board: board,
	}

	// The board has its own battery sense; the INA219 is more accurate but
	// optional.
	if devs.BatteryI2C != 0 {
		pwr, err := ina219.NewI2C(devs.I2CBus, devs.BatteryI2C)
		if err == nil {
			err = pwr.Configure(shuntOhms, maxCurrent)
		}
		if err != nil {
			fmt.Println("HW: failed to open power sensor; using motor board battery reading:", err)
		} else {
			h.battery = pwr
		}
	}
	return h, nil
}

var _ Interface = (*Hardware)(nil)

func (h *Hardware) GyroRate() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	rate, err := h.gyro.Rate()
	if err != nil {
		fmt.Println("HW: gyro read failed:", err)
		return h.lastRate
	}
	h.lastRate = rate
	return rate
}

// EncoderCounts reads both wheels in one board poll so the pair comes from
// the same instant.
func (h *Hardware) EncoderCounts() (left, right int32) {
	h.lock.Lock()
	defer h.lock.Unlock()
	counts, err := h.board.Encoders()
	if err == nil {
		h.lastEncoders = counts
	} else if !errors.Is(err, motorboard.ErrNotReady) {
		fmt.Println("HW: encoder read failed:", err)
	}
	return h.lastEncoders[motorboard.Left], h.lastEncoders[motorboard.Right]
}

func (h *Hardware) ResetEncoders() {
	h.lock.Lock()
	defer h.lock.Unlock()
	// Latch the current raw counts so the reset starts from here.
	if _, err := h.board.Encoders(); err != nil && !errors.Is(err, motorboard.ErrNotReady) {
		fmt.Println("HW: encoder read failed:", err)
	}
	h.board.ResetEncoders()
	h.lastEncoders = motorboard.PerMotor[int32]{}
}

func (h *Hardware) BatteryMillivolts() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	var mv int
	var err error
	if h.battery != nil {
		mv, err = h.battery.ReadBusMillivolts()
	} else {
		mv, err = h.board.BattMillivolts()
	}
	if err != nil {
		fmt.Println("HW: battery read failed:", err)
		return h.lastMV
	}
	h.lastMV = mv
	return mv
}

func (h *Hardware) SetMotorPower(w Wheel, power int) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if err := h.board.SetPower(motorFor(w), power); err != nil {
		fmt.Println("HW: failed to set motor power:", err)
	}
}

func (h *Hardware) StopMotor(w Wheel) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if err := h.board.Coast(motorFor(w)); err != nil {
		fmt.Println("HW: failed to stop motor:", err)
	}
}

// RotateAux only holds the bus while talking to the board so the control
// loop keeps running while the aux motor turns.
func (h *Hardware) RotateAux(degrees, power int) error {
	return h.board.RotateAux(degrees, power, &h.lock)
}

func (h *Hardware) Shutdown() {
	h.lock.Lock()
	defer h.lock.Unlock()
	fmt.Println("HW: shutting down")
	if err := h.board.Close(); err != nil {
		fmt.Println("HW: failed to close motor board:", err)
	}
	_ = h.gyro.Close()
	if h.battery != nil {
		_ = h.battery.Close()
	}
}

func motorFor(w Wheel) motorboard.Motor {
	if w == Left {
		return motorboard.Left
	}
	return motorboard.Right
}
