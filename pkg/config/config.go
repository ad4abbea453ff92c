package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

const DefaultPath = "/cfg/balancer.yaml"

type Gains struct {
	KGyroAngle float64 `yaml:"kGyroAngle"`
	KGyroSpeed float64 `yaml:"kGyroSpeed"`
	KPos       float64 `yaml:"kPos"`
	KSpeed     float64 `yaml:"kSpeed"`
	KDrive     float64 `yaml:"kDrive"`
	KSteer     float64 `yaml:"kSteer"`
}

type Battery struct {
	MinMV   int     `yaml:"minMV"`
	MinGain float64 `yaml:"minGain"`
	MaxMV   int     `yaml:"maxMV"`
	MaxGain float64 `yaml:"maxGain"`
}

type Calibration struct {
	Samples         int `yaml:"samples"`
	SampleSpacingMS int `yaml:"sampleSpacingMS"`
	NoiseThreshold  int `yaml:"noiseThreshold"`
	Attempts        int `yaml:"attempts"`
	RetryBackoffMS  int `yaml:"retryBackoffMS"`
}

type Devices struct {
	GyroSPI       string `yaml:"gyroSPI"`
	I2CBus        string `yaml:"i2cBus"`
	MotorBoardI2C int    `yaml:"motorBoardI2C"`
	BatteryI2C    int    `yaml:"batteryI2C"`
	Joystick      string `yaml:"joystick"`
	SerialRemote  string `yaml:"serialRemote"`
	Framebuffer   string `yaml:"framebuffer"`
	EyesDir       string `yaml:"eyesDir"`
	SoundsDir     string `yaml:"soundsDir"`
}

type Telemetry struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"clientID"`
	TopicPrefix string `yaml:"topicPrefix"`
	IntervalMS  int    `yaml:"intervalMS"`
}

// Sim configures the simulated robot used with Simulate.
type Sim struct {
	GyroBias    float64 `yaml:"gyroBias"`
	GyroNoise   float64 `yaml:"gyroNoise"`
	InitialTilt float64 `yaml:"initialTilt"`
}

type Config struct {
	Gains               Gains       `yaml:"gains"`
	EMAOffset           float64     `yaml:"emaOffset"`
	WheelDiameterCM     float64     `yaml:"wheelDiameterCM"`
	WaitTimeMS          int         `yaml:"waitTimeMS"`
	FallTimeMS          int         `yaml:"fallTimeMS"`
	InitIntervalSeconds float64     `yaml:"initIntervalSeconds"`
	InitGyroAngle       float64     `yaml:"initGyroAngle"`
	Battery             Battery     `yaml:"battery"`
	Calibration         Calibration `yaml:"calibration"`
	Devices             Devices     `yaml:"devices"`
	Telemetry           Telemetry   `yaml:"telemetry"`
	Sim                 Sim         `yaml:"sim"`

	Simulate bool `yaml:"simulate"`
	Verbose  bool `yaml:"verbose"`
}

// Default returns the gyro-hunter tuning that the robot ships with.
func Default() Config {
	return Config{
		Gains: Gains{
			KGyroAngle: 6.0,
			KGyroSpeed: 1.4,
			KPos:       0.035,
			KSpeed:     0.1,
			KDrive:     -0.02,
			KSteer:     -0.25,
		},
		EMAOffset:           0.0005,
		WheelDiameterCM:     5.6,
		WaitTimeMS:          5,
		FallTimeMS:          1000,
		InitIntervalSeconds: 0.014,
		InitGyroAngle:       -0.25,
		Battery: Battery{
			MinMV:   6500,
			MinGain: 1.12,
			MaxMV:   8500,
			MaxGain: 0.7,
		},
		Calibration: Calibration{
			Samples:         200,
			SampleSpacingMS: 4,
			NoiseThreshold:  2,
			Attempts:        10,
			RetryBackoffMS:  100,
		},
		Devices: Devices{
			GyroSPI:       "/dev/spidev0.1",
			I2CBus:        "/dev/i2c-1",
			MotorBoardI2C: 0x42,
			BatteryI2C:    0x41,
			Joystick:      "/dev/input/js0",
			SerialRemote:  "/dev/rfcomm0",
			Framebuffer:   "/dev/fb1",
			EyesDir:       "/eyes_imgs",
			SoundsDir:     "/sounds",
		},
		Telemetry: Telemetry{
			ClientID:    "balancer",
			TopicPrefix: "balancer",
			IntervalMS:  100,
		},
		Sim: Sim{
			GyroBias:  3,
			GyroNoise: 0.3,
		},
	}
}

// Load reads the YAML file at path over the defaults.  A missing file is not
// an error: the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		fmt.Println("Config file", path, "not found, using defaults")
		return cfg, nil
	} else if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// WriteInUse writes the effective config next to the source file, as
// <name>-in-use.yaml.
func WriteInUse(path string, cfg Config) error {
	cfgBytes, err := yaml.Marshal(&cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	ext := filepath.Ext(path)
	out := strings.TrimSuffix(path, ext) + "-in-use" + ext
	if err := os.WriteFile(out, cfgBytes, 0666); err != nil {
		return errors.Wrapf(err, "failed to write %s", out)
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.WaitTimeMS <= 0:
		return errors.New("waitTimeMS must be positive")
	case c.FallTimeMS <= 0:
		return errors.New("fallTimeMS must be positive")
	case c.InitIntervalSeconds <= 0:
		return errors.New("initIntervalSeconds must be positive")
	case c.WheelDiameterCM <= 0:
		return errors.New("wheelDiameterCM must be positive")
	case c.Battery.MaxMV <= c.Battery.MinMV:
		return errors.New("battery maxMV must be above minMV")
	case c.Calibration.Samples <= 0 || c.Calibration.Attempts <= 0:
		return errors.New("calibration samples and attempts must be positive")
	}
	return nil
}
