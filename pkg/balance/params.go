package balance

import (
	"time"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/config"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/tunable"
)

// ReferenceWheelDiameterCM is the wheel size the gyro gains were tuned for.
const ReferenceWheelDiameterCM = 5.6

type BatteryCompensation struct {
	MinMV   int
	MinGain float64
	MaxMV   int
	MaxGain float64
}

// Params holds the loop parameters.  The tunables are read on every tick so
// they can be changed while a session runs.
type Params struct {
	KGyroAngle *tunable.Tunable
	KGyroSpeed *tunable.Tunable
	KPos       *tunable.Tunable
	KSpeed     *tunable.Tunable
	KDrive     *tunable.Tunable
	KSteer     *tunable.Tunable

	WheelDiameterCM *tunable.Tunable
	WaitTimeMS      *tunable.Tunable
	FallTimeMS      *tunable.Tunable

	EMAOffset     float64
	InitInterval  float64
	InitGyroAngle float64
	Battery       BatteryCompensation

	CalibrationSamples int
	CalibrationSpacing time.Duration
	NoiseThreshold     int
	CalibrationTries   int
	RetryBackoff       time.Duration

	Verbose bool
}

// NewParams registers the live-tunable values in ts, in the order the
// remote cycles through them.
func NewParams(cfg config.Config, ts *tunable.Tunables) *Params {
	return &Params{
		KGyroAngle: ts.Create("KGyroAngle", cfg.Gains.KGyroAngle, 0.1),
		KGyroSpeed: ts.Create("KGyroSpeed", cfg.Gains.KGyroSpeed, 0.01),
		KPos:       ts.Create("KPos", cfg.Gains.KPos, 0.005),
		KSpeed:     ts.Create("KSpeed", cfg.Gains.KSpeed, 0.01),
		KDrive:     ts.Create("KDrive", cfg.Gains.KDrive, 0.005),
		KSteer:     ts.Create("KSteer", cfg.Gains.KSteer, 0.05),

		WheelDiameterCM: ts.Create("WheelDiameterCM", cfg.WheelDiameterCM, 0.1),
		WaitTimeMS:      ts.Create("WaitTimeMS", float64(cfg.WaitTimeMS), 1),
		FallTimeMS:      ts.Create("FallTimeMS", float64(cfg.FallTimeMS), 100),

		EMAOffset:     cfg.EMAOffset,
		InitInterval:  cfg.InitIntervalSeconds,
		InitGyroAngle: cfg.InitGyroAngle,
		Battery: BatteryCompensation{
			MinMV:   cfg.Battery.MinMV,
			MinGain: cfg.Battery.MinGain,
			MaxMV:   cfg.Battery.MaxMV,
			MaxGain: cfg.Battery.MaxGain,
		},

		CalibrationSamples: cfg.Calibration.Samples,
		CalibrationSpacing: time.Duration(cfg.Calibration.SampleSpacingMS) * time.Millisecond,
		NoiseThreshold:     cfg.Calibration.NoiseThreshold,
		CalibrationTries:   cfg.Calibration.Attempts,
		RetryBackoff:       time.Duration(cfg.Calibration.RetryBackoffMS) * time.Millisecond,

		Verbose: cfg.Verbose,
	}
}

func (p *Params) WaitTime() time.Duration {
	ms := p.WaitTimeMS.Get()
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func (p *Params) FallTime() time.Duration {
	return time.Duration(p.FallTimeMS.Get() * float64(time.Millisecond))
}
