package hardware

type Wheel int

const (
	Left Wheel = iota
	Right
)

func (w Wheel) String() string {
	if w == Left {
		return "left"
	}
	return "right"
}

// MaxPower is the magnitude limit of a motor power command.
const MaxPower = 100

// Drivers is the set of sensor and actuator primitives the balance loop
// needs.  Implementations are only used from the control goroutine while a
// session is active.
type Drivers interface {
	// GyroRate returns the signed pitch rate in degrees/second.
	GyroRate() int
	// EncoderCounts returns the cumulative signed tick counts of both
	// wheels, sampled together.
	EncoderCounts() (left, right int32)
	ResetEncoders()
	BatteryMillivolts() int

	// SetMotorPower drives a wheel with power in [-MaxPower, MaxPower].
	SetMotorPower(w Wheel, power int)
	// StopMotor lets the wheel coast; unlike SetMotorPower(w, 0) it does
	// not hold position.
	StopMotor(w Wheel)
}

// Aux is the auxiliary motor channel used by the turret.
type Aux interface {
	RotateAux(degrees int, power int) error
}

type Interface interface {
	Drivers
	Aux
	Shutdown()
}
