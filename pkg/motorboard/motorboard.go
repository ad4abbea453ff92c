package motorboard

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"golang.org/x/exp/io/i2c"
)

const DefaultAddr = 0x42

type Register byte

const (
	RegCtrl Register = iota
	RegStatus
	RegWatchdogTimeout
	RegFaultCount

	RegPowerLeft
	RegPowerRight
	RegPowerAux

	RegCoast // bit per motor

	RegEncLeft // free-running, wraps at 16 bits
	RegEncRight
	RegEncAux

	RegAuxTarget // degrees, board stops the aux motor on arrival

	RegBattV // LSB=4mV
)

const BattVLSBMillivolts = 4

const (
	RegCtrlEnableI2CControl uint16 = 1 << iota
	RegCtrlRun
	RegCtrlReset
	RegCtrlWatchdogEnable
)

type StatusFlag uint16

const (
	StatusFault StatusFlag = 1 << iota
	StatusEncodersValid
	StatusAuxBusy
	StatusWatchdogExpired
)

type Motor int

const (
	Left Motor = iota
	Right
	Aux
	NumMotors
)

func (m Motor) String() string {
	switch m {
	case Left:
		return "left"
	case Right:
		return "right"
	case Aux:
		return "aux"
	}
	return fmt.Sprintf("motor(%d)", int(m))
}

type PerMotor[T any] [NumMotors]T

var ErrNotReady = errors.New("motor board not ready")

type device interface {
	ReadReg(reg byte, buf []byte) error
	Write(buf []byte) error
	Close() error
}

// Board drives the two wheel motors and the aux motor through the motor
// controller's register interface.  It is not safe for concurrent use.
type Board struct {
	open func() (device, error)
	dev  device

	coastMask uint16
	encoders  *EncoderTracker

	// AuxTimeout bounds how long RotateAux waits for the board.
	AuxTimeout time.Duration
}

func New(bus string, addr int) (*Board, error) {
	open := func() (device, error) {
		return i2c.Open(&i2c.Devfs{Dev: bus}, addr)
	}
	dev, err := open()
	if err != nil {
		return nil, errors.Wrapf(err, "opening motor board on %s", bus)
	}
	return newBoard(dev, open), nil
}

func newBoard(dev device, open func() (device, error)) *Board {
	b := &Board{
		open:       open,
		dev:        dev,
		AuxTimeout: 5 * time.Second,
	}
	b.encoders = NewEncoderTracker(b)
	return b
}

// Start enables I2C control and arms the watchdog so the board stops the
// motors if the controller dies.
func (b *Board) Start(watchdog time.Duration) error {
	ctrl := RegCtrlEnableI2CControl | RegCtrlRun | RegCtrlReset
	if watchdog > 0 {
		if err := b.writeReg(RegWatchdogTimeout, uint16(watchdog.Milliseconds())); err != nil {
			return err
		}
		ctrl |= RegCtrlWatchdogEnable
	}
	if err := b.writeReg(RegCtrl, ctrl); err != nil {
		return err
	}
	b.coastMask = 0
	return b.writeReg(RegCoast, 0)
}

// SetPower sets a motor's power in percent and takes it out of coast.
func (b *Board) SetPower(m Motor, power int) error {
	if power > 100 {
		power = 100
	} else if power < -100 {
		power = -100
	}
	if b.coastMask&(1<<m) != 0 {
		b.coastMask &^= 1 << m
		if err := b.writeReg(RegCoast, b.coastMask); err != nil {
			return err
		}
	}
	return b.writeReg(RegPowerLeft+Register(m), uint16(int16(power)))
}

// Coast removes drive from the motor and lets it spin freely.
func (b *Board) Coast(m Motor) error {
	if err := b.writeReg(RegPowerLeft+Register(m), 0); err != nil {
		return err
	}
	b.coastMask |= 1 << m
	return b.writeReg(RegCoast, b.coastMask)
}

// RawEncoders reads the board's wrapping 16-bit counters.  It returns
// ErrNotReady until the board has latched its first encoder reading.
func (b *Board) RawEncoders() (PerMotor[int16], error) {
	var raw PerMotor[int16]
	status, err := b.Status()
	if err != nil {
		return raw, err
	}
	if status&StatusEncodersValid == 0 {
		return raw, ErrNotReady
	}
	for m := Left; m < NumMotors; m++ {
		v, err := b.readReg(RegEncLeft + Register(m))
		if err != nil {
			return raw, err
		}
		raw[m] = int16(v)
	}
	return raw, nil
}

// Encoders polls the board and returns the counts since the last reset.
func (b *Board) Encoders() (PerMotor[int32], error) {
	if err := b.encoders.Poll(); err != nil {
		return PerMotor[int32]{}, err
	}
	return b.encoders.Counts(), nil
}

func (b *Board) ResetEncoders() {
	b.encoders.Zero()
}

// StartAux sets the aux motor turning towards a relative target.  The board
// clears StatusAuxBusy on arrival.
func (b *Board) StartAux(degrees, power int) error {
	if power < 0 {
		power, degrees = -power, -degrees
	}
	if err := b.writeReg(RegAuxTarget, uint16(int16(degrees))); err != nil {
		return err
	}
	return b.SetPower(Aux, power)
}

func (b *Board) AuxBusy() (bool, error) {
	status, err := b.Status()
	if err != nil {
		return false, err
	}
	return status&StatusAuxBusy != 0, nil
}

// RotateAux turns the aux motor and blocks until it arrives or AuxTimeout
// passes.  The motor is left coasting either way.  bus is held only while
// talking to the board so other users of the bus carry on during the turn.
func (b *Board) RotateAux(degrees, power int, bus sync.Locker) error {
	bus.Lock()
	err := b.StartAux(degrees, power)
	bus.Unlock()
	if err != nil {
		return err
	}

	arrived := false
	deadline := time.Now().Add(b.AuxTimeout)
	for time.Now().Before(deadline) {
		bus.Lock()
		busy, err := b.AuxBusy()
		bus.Unlock()
		if err == nil && !busy {
			arrived = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	bus.Lock()
	defer bus.Unlock()
	if err := b.Coast(Aux); err != nil {
		return err
	}
	if !arrived {
		return errors.Errorf("aux motor didn't finish %d degree turn in %v", degrees, b.AuxTimeout)
	}
	return nil
}

func (b *Board) BattMillivolts() (int, error) {
	raw, err := b.readReg(RegBattV)
	if err != nil {
		return 0, err
	}
	return int(raw) * BattVLSBMillivolts, nil
}

func (b *Board) Status() (StatusFlag, error) {
	raw, err := b.readReg(RegStatus)
	if err != nil {
		return 0, err
	}
	return StatusFlag(raw), nil
}

func (b *Board) Close() error {
	for m := Left; m < NumMotors; m++ {
		_ = b.Coast(m)
	}
	_ = b.writeReg(RegCtrl, RegCtrlEnableI2CControl|RegCtrlReset)
	return b.dev.Close()
}

func (b *Board) writeReg(reg Register, value uint16) error {
	return b.writeWithRetries([]byte{byte(reg), byte(value >> 8), byte(value)})
}

func (b *Board) readReg(reg Register) (uint16, error) {
	var buf [2]byte
	if err := b.dev.ReadReg(byte(reg), buf[:]); err != nil {
		return 0, errors.Wrapf(err, "reading motor board register %d", reg)
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// writeWithRetries reopens the device between attempts; a glitch on the
// bus can leave the kernel driver wedged.
func (b *Board) writeWithRetries(data []byte) error {
	var err error
	for tries := 0; tries < 20; tries++ {
		err = b.dev.Write(data)
		if err == nil {
			if tries > 0 {
				fmt.Println("HW: wrote to motor board after", tries, "retries")
			}
			return nil
		}
		fmt.Println("HW: failed to write to motor board:", err)
		time.Sleep(1 * time.Millisecond)
		if b.open == nil {
			continue
		}
		_ = b.dev.Close()
		dev, openErr := b.open()
		if openErr != nil {
			continue
		}
		b.dev = dev
	}
	return errors.Wrap(err, "writing to motor board")
}
