package balance

// BalanceController turns the fused state into a base motor power.  The
// result is not clamped; SteeringMixer does that once steering is added.
type BalanceController struct {
	Params *Params
}

func (c *BalanceController) Compute(gyro GyroState, motor MotorState, drive float64, batteryMV int) float64 {
	p := c.Params
	ratioWheel := p.WheelDiameterCM.Get() / ReferenceWheelDiameterCM

	return ((p.KGyroSpeed.Get()*gyro.Rate+ // deg/s from the gyro
		p.KGyroAngle.Get()*gyro.Angle)/ratioWheel + // deg, integral of the gyro
		p.KPos.Get()*motor.Position + // encoder ticks
		p.KSpeed.Get()*motor.Speed + // encoder ticks/s
		p.KDrive.Get()*drive) * // helps start/stop
		BatteryGain(batteryMV, p.Battery)
}

// BatteryGain interpolates linearly between the two reference points.  The
// gain falls as the voltage rises since the motors get stronger.  It is not
// clamped outside the reference range.
func BatteryGain(mv int, b BatteryCompensation) float64 {
	slope := (b.MinGain - b.MaxGain) / float64(b.MaxMV-b.MinMV)
	return b.MaxGain + slope*float64(b.MaxMV-mv)
}
