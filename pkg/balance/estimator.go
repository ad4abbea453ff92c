package balance

const speedWindow = 4

type GyroState struct {
	Offset float64 `json:"offset"`
	Rate   float64 `json:"rate"`
	Angle  float64 `json:"angle"`
}

type MotorState struct {
	Position        float64 `json:"position"`
	Speed           float64 `json:"speed"`
	WheelDiff       int32   `json:"wheelDiff"`
	WheelDiffTarget float64 `json:"wheelDiffTarget"`
}

// StateEstimator fuses the gyro rate and the wheel encoders into the state
// the balance law works on.
type StateEstimator struct {
	// Alpha is the weight of a new sample in the gyro offset EMA.
	Alpha float64

	Gyro  GyroState
	Motor MotorState

	prevSum  int32
	deltas   [speedWindow]int32
	deltaIdx int
}

// Reset clears the per-session motor history.  The gyro offset survives so
// a restart can reuse the drift estimate until calibration replaces it.
func (e *StateEstimator) Reset() {
	e.Gyro.Rate = 0
	e.Gyro.Angle = 0
	e.Motor = MotorState{}
	e.prevSum = 0
	e.deltas = [speedWindow]int32{}
	e.deltaIdx = 0
}

func (e *StateEstimator) SetOffset(offset float64) {
	e.Gyro.Offset = offset
}

// ObserveRate updates the offset EMA and the instantaneous rate only.
func (e *StateEstimator) ObserveRate(raw int) {
	e.Gyro.Offset = e.Alpha*float64(raw) + (1-e.Alpha)*e.Gyro.Offset
	e.Gyro.Rate = float64(raw) - e.Gyro.Offset
}

// Update runs one estimation step.  The angle is only integrated when
// integrate is set.  drive is subtracted from the position so commanded
// motion doesn't read as the robot drifting off its balance point.
func (e *StateEstimator) Update(rawRate int, leftCount, rightCount int32, drive, interval float64, integrate bool) {
	e.ObserveRate(rawRate)
	if integrate {
		e.Gyro.Angle += e.Gyro.Rate * interval
	}

	sum := leftCount + rightCount
	e.Motor.WheelDiff = rightCount - leftCount
	delta := sum - e.prevSum
	e.prevSum = sum

	e.Motor.Position += float64(delta)
	e.Motor.Position -= drive * interval

	e.deltas[e.deltaIdx] = delta
	e.deltaIdx = (e.deltaIdx + 1) % speedWindow
	var total int32
	for _, d := range e.deltas {
		total += d
	}
	e.Motor.Speed = float64(total) / speedWindow / interval
}
