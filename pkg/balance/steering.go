package balance

import (
	"math"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/hardware"
)

type PowerOutput struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// SteeringMixer integrates the steer rate into a target wheel difference and
// steers towards it, so heading drift gets corrected as well as the turn
// rate applied.
type SteeringMixer struct {
	SteerPower float64
}

func (s *SteeringMixer) Mix(basePower, steerRate float64, motor *MotorState, interval, kSteer float64) PowerOutput {
	motor.WheelDiffTarget += steerRate * interval
	s.SteerPower = kSteer * (motor.WheelDiffTarget - float64(motor.WheelDiff))

	power := truncPower(basePower)
	steer := truncPower(s.SteerPower)
	return PowerOutput{
		Left:  clampPower(power + steer),
		Right: clampPower(power - steer),
	}
}

func clampPower(p int) int {
	if p > hardware.MaxPower {
		return hardware.MaxPower
	}
	if p < -hardware.MaxPower {
		return -hardware.MaxPower
	}
	return p
}

// truncPower truncates towards zero, bounded so that the
// conversion is defined for any input.
func truncPower(f float64) int {
	const bound = 1 << 30
	switch {
	case math.IsNaN(f):
		return 0
	case f > bound:
		return bound
	case f < -bound:
		return -bound
	}
	return int(f)
}
