package gyro

import (
	"math"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"

	"golang.org/x/exp/io/i2c"
)

const (
	Addr = 0x68

	RegSampleRateDiv = 25
	RegConfig        = 26
	RegGyroConf      = 27
	RegGyroY         = 69 // 16 bits
	RegUserCtl       = 106
	RegWhoAmI        = 117

	// GyroRange selects +/-1000 deg/s, enough for a fall.
	GyroRange = 2
	FullScale = 1000.0
)

// Interface reads the pitch rate of the chassis.  The bias is left in; the
// balance loop calibrates and tracks it in software.
type Interface interface {
	Configure() error
	Rate() (int, error)
	Close() error
}

type port interface {
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) error
}

type Gyro struct {
	dev        port
	closer     func() error
	disableI2C bool
}

func NewI2C(deviceFile string) (*Gyro, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: deviceFile}, Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "opening gyro on %s", deviceFile)
	}
	return &Gyro{
		dev:    dev,
		closer: dev.Close,
	}, nil
}

func NewSPI(deviceFile string) (*Gyro, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "initialising periph")
	}
	p, err := spireg.Open(deviceFile)
	if err != nil {
		return nil, errors.Wrapf(err, "opening gyro on %s", deviceFile)
	}
	c, err := p.Connect(physic.KiloHertz*1000, spi.Mode3, 8)
	if err != nil {
		_ = p.Close()
		return nil, errors.Wrap(err, "connecting to gyro")
	}
	return &Gyro{
		dev:        &SPIAdapter{c: c},
		closer:     p.Close,
		disableI2C: true,
	}, nil
}

// SPIAdapter speaks the register protocol over SPI: the top bit of the
// address byte selects a read.
type SPIAdapter struct {
	c spi.Conn

	r, w []byte
}

const (
	spiWrite = 0x00
	spiRead  = 0x80
)

func (s *SPIAdapter) ReadReg(reg byte, buf []byte) error {
	n := s.prepare(1 + len(buf))
	s.w[0] = spiRead | reg
	if err := s.c.Tx(s.w[:n], s.r[:n]); err != nil {
		return err
	}
	// The first byte clocked back arrives while the address goes out.
	copy(buf, s.r[1:n])
	return nil
}

func (s *SPIAdapter) WriteReg(reg byte, buf []byte) error {
	n := s.prepare(1 + len(buf))
	s.w[0] = spiWrite | reg
	copy(s.w[1:], buf)
	return s.c.Tx(s.w[:n], s.r[:n])
}

func (s *SPIAdapter) prepare(n int) int {
	if len(s.r) < n {
		s.w = make([]byte, n)
		s.r = make([]byte, n)
		return n
	}
	for i := 0; i < n; i++ {
		s.w[i] = 0
		s.r[i] = 0
	}
	return n
}

func (g *Gyro) Configure() error {
	if g.disableI2C {
		if err := g.dev.WriteReg(RegUserCtl, []byte{0x10}); err != nil {
			return errors.Wrap(err, "disabling gyro I2C")
		}
	}
	if err := g.dev.WriteReg(RegGyroConf, []byte{GyroRange << 3}); err != nil {
		return errors.Wrap(err, "setting gyro range")
	}
	// DLPF on, 1kHz internal rate, no divider: the loop polls faster than
	// the 5ms tick.
	if err := g.dev.WriteReg(RegConfig, []byte{1}); err != nil {
		return errors.Wrap(err, "setting gyro filter")
	}
	return errors.Wrap(g.dev.WriteReg(RegSampleRateDiv, []byte{0}), "setting gyro sample rate")
}

// Rate returns the pitch rate in whole degrees per second.
func (g *Gyro) Rate() (int, error) {
	raw, err := g.read16(RegGyroY)
	if err != nil {
		return 0, errors.Wrap(err, "reading gyro")
	}
	return int(math.Round(float64(raw) * DegreesPerLSB())), nil
}

func DegreesPerLSB() float64 {
	return FullScale / math.MaxInt16
}

func (g *Gyro) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer()
}

func (g *Gyro) read16(reg byte) (int16, error) {
	var buf [2]byte
	err := g.dev.ReadReg(reg, buf[:])
	return int16(buf[0])<<8 | int16(buf[1]), err
}
