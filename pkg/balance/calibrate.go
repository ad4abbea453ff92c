package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var ErrCalibrationNoise = errors.New("gyro too noisy to calibrate")

type RateReader interface {
	GyroRate() int
}

// GyroCalibrator estimates the stationary gyro bias.  The robot must be
// still: the sample window is rejected if its spread reaches NoiseThreshold.
type GyroCalibrator struct {
	Samples        int
	Spacing        time.Duration
	NoiseThreshold int
}

// Calibrate returns the mean of the sample window.  observe, if not nil,
// sees every raw sample.
func (c *GyroCalibrator) Calibrate(ctx context.Context, gyro RateReader, clock Clock, observe func(rate int)) (float64, error) {
	var minRate, maxRate, sum int
	for i := 0; i < c.Samples; i++ {
		rate := gyro.GyroRate()
		if observe != nil {
			observe(rate)
		}
		if i == 0 || rate > maxRate {
			maxRate = rate
		}
		if i == 0 || rate < minRate {
			minRate = rate
		}
		sum += rate
		if err := clock.Sleep(ctx, c.Spacing); err != nil {
			return 0, err
		}
	}
	if maxRate-minRate >= c.NoiseThreshold {
		return 0, errors.Wrap(ErrCalibrationNoise, fmt.Sprintf("min %d max %d", minRate, maxRate))
	}
	return float64(sum) / float64(c.Samples), nil
}
