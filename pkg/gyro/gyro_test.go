package gyro

import (
	"errors"
	"testing"
)

type fakePort struct {
	regs   map[byte][]byte
	writes []byte
	err    error
}

func (p *fakePort) ReadReg(reg byte, buf []byte) error {
	copy(buf, p.regs[reg])
	return p.err
}

func (p *fakePort) WriteReg(reg byte, buf []byte) error {
	p.writes = append(p.writes, reg)
	p.regs[reg] = append([]byte{}, buf...)
	return p.err
}

func TestRateScaling(t *testing.T) {
	for _, tc := range []struct {
		raw      []byte
		expected int
	}{
		{[]byte{0, 0}, 0},
		{[]byte{0x7f, 0xff}, 1000},
		{[]byte{0x80, 0x01}, -1000},
		// 33 LSB is just over one degree per second.
		{[]byte{0, 33}, 1},
		{[]byte{0xff, 0xdf}, -1},
	} {
		g := &Gyro{dev: &fakePort{regs: map[byte][]byte{RegGyroY: tc.raw}}}
		rate, err := g.Rate()
		if err != nil {
			t.Fatal(err)
		}
		if rate != tc.expected {
			t.Errorf("Raw %x gave %d, expected %d", tc.raw, rate, tc.expected)
		}
	}
}

func TestRateError(t *testing.T) {
	g := &Gyro{dev: &fakePort{regs: map[byte][]byte{}, err: errors.New("bus fault")}}
	if _, err := g.Rate(); err == nil {
		t.Fatal("Expected error")
	}
}

func TestConfigureSPI(t *testing.T) {
	p := &fakePort{regs: map[byte][]byte{}}
	g := &Gyro{dev: p, disableI2C: true}
	if err := g.Configure(); err != nil {
		t.Fatal(err)
	}
	if p.writes[0] != RegUserCtl {
		t.Fatalf("Expected I2C to be disabled first, writes: %v", p.writes)
	}
	if p.regs[RegGyroConf][0] != GyroRange<<3 {
		t.Fatalf("Wrong range: %x", p.regs[RegGyroConf])
	}
}
