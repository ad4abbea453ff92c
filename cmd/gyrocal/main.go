package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/balance"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/config"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/gyro"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/hardware"
)

var CLI struct {
	Config   string `help:"Config file." default:"/cfg/balancer.yaml" type:"path"`
	Simulate bool   `help:"Calibrate a simulated gyro."`
	Runs     int    `help:"Number of calibrations to run." default:"10"`
}

var errNoCalibrations = errors.New("no successful calibrations")

// gyroRates adapts the raw gyro driver for the calibrator, counting read
// errors rather than stopping the sample window.
type gyroRates struct {
	g      gyro.Interface
	errors int
}

func (r *gyroRates) GyroRate() int {
	rate, err := r.g.Rate()
	if err != nil {
		r.errors++
	}
	return rate
}

func main() {
	fmt.Println("---- Gyro calibration ----")
	fmt.Println("GOMAXPROCS", runtime.GOMAXPROCS(0))

	kong.Parse(&CLI, kong.Description("Repeatedly measures the gyro bias and noise."))

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cal := balance.GyroCalibrator{
		Samples:        cfg.Calibration.Samples,
		Spacing:        time.Duration(cfg.Calibration.SampleSpacingMS) * time.Millisecond,
		NoiseThreshold: cfg.Calibration.NoiseThreshold,
	}

	if CLI.Simulate || cfg.Simulate {
		sim := hardware.NewSim(hardware.SimOptions{
			GyroBias:  cfg.Sim.GyroBias,
			GyroNoise: cfg.Sim.GyroNoise,
			Seed:      time.Now().UnixNano(),
		})
		err = measure(ctx, cal, sim, CLI.Runs, os.Stdout)
	} else {
		var g *gyro.Gyro
		if cfg.Devices.GyroSPI != "" {
			g, err = gyro.NewSPI(cfg.Devices.GyroSPI)
		} else {
			g, err = gyro.NewI2C(cfg.Devices.I2CBus)
		}
		if err != nil {
			fmt.Println("Failed to open gyro:", err)
			os.Exit(1)
		}
		err = measureGyro(ctx, cal, g, CLI.Runs, os.Stdout)
	}
	if err != nil {
		fmt.Println(err)
		cancel()
		os.Exit(1)
	}
}

// measureGyro configures g, runs the calibrations and closes g.
func measureGyro(ctx context.Context, cal balance.GyroCalibrator, g gyro.Interface, runs int, out io.Writer) error {
	defer g.Close()
	if err := g.Configure(); err != nil {
		return errors.Wrap(err, "configuring gyro")
	}
	rates := &gyroRates{g: g}
	err := measure(ctx, cal, rates, runs, out)
	if rates.errors > 0 {
		fmt.Fprintf(out, "%d gyro read errors\n", rates.errors)
	}
	return err
}

// measure runs the calibrator up to runs times and prints each result and
// the spread of the offsets that passed.
func measure(ctx context.Context, cal balance.GyroCalibrator, rates balance.RateReader, runs int, out io.Writer) error {
	var offsets []float64
	for run := 1; run <= runs && ctx.Err() == nil; run++ {
		minRate, maxRate := math.MaxInt, math.MinInt
		offset, err := cal.Calibrate(ctx, rates, balance.SystemClock{}, func(rate int) {
			if rate < minRate {
				minRate = rate
			}
			if rate > maxRate {
				maxRate = rate
			}
		})
		if ctx.Err() != nil {
			break
		}
		status := "ok"
		if err != nil {
			status = err.Error()
		} else {
			offsets = append(offsets, offset)
		}
		fmt.Fprintf(out, "Run %2d: offset %7.2f  min %4d  max %4d  %s\n", run, offset, minRate, maxRate, status)
	}

	if len(offsets) == 0 {
		return errNoCalibrations
	}
	var sum float64
	for _, o := range offsets {
		sum += o
	}
	mean := sum / float64(len(offsets))
	var variance float64
	for _, o := range offsets {
		variance += (o - mean) * (o - mean)
	}
	fmt.Fprintf(out, "%d/%d calibrations passed: mean offset %.2f, stddev %.3f\n",
		len(offsets), runs, mean, math.Sqrt(variance/float64(len(offsets))))
	return nil
}
