package screen

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/balance"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/drive"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/tunable"
)

const (
	Size = 128

	// FaceRevert is how long a command face stays up without more input.
	FaceRevert = 1200 * time.Millisecond
)

// StatusFaces maps each session status to the eyes shown for it.
var StatusFaces = map[balance.Status]string{
	balance.Idle:        "sleeping",
	balance.Calibrating: "tired_middle",
	balance.Running:     "awake",
	balance.Fallen:      "dizzy",
}

// Screen renders the robot's face and status to a 128x128 RGB565
// framebuffer.
type Screen struct {
	Tunables  *tunable.Tunables
	BatteryMV func() int

	lock   sync.Mutex
	images map[string]image.Image
	status balance.Status
	light  balance.Light
	face   string
	faceAt time.Time
}

func New(eyesDir string, tunables *tunable.Tunables, batteryMV func() int) *Screen {
	return &Screen{
		Tunables:  tunables,
		BatteryMV: batteryMV,
		images:    LoadFaces(eyesDir),
		face:      StatusFaces[balance.Idle],
	}
}

// OnEvent follows the session's status changes.
func (s *Screen) OnEvent(e balance.Event) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.status = e.Status
	s.light = e.Light
	s.face = StatusFaces[e.Status]
	s.faceAt = time.Now()
}

// ShowFace shows a face picked by the pilot.  Once input stops it reverts to
// the status face.
func (s *Screen) ShowFace(f drive.Face) {
	s.showFaceAt(string(f), time.Now())
}

func (s *Screen) showFaceAt(name string, now time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.face = name
	s.faceAt = now
}

// Face returns the face to show at now.
func (s *Screen) Face(now time.Time) string {
	s.lock.Lock()
	defer s.lock.Unlock()
	statusFace := StatusFaces[s.status]
	if s.face != statusFace && now.Sub(s.faceAt) >= FaceRevert {
		s.face = statusFace
		s.faceAt = now
	}
	return s.face
}

func (s *Screen) Render(now time.Time) image.Image {
	face := s.Face(now)
	s.lock.Lock()
	light := s.light
	s.lock.Unlock()

	dc := gg.NewContext(Size, Size)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	if img, ok := s.images[face]; ok {
		dc.DrawImageAnchored(img, Size/2, 40, 0.5, 0.5)
	} else {
		drawEyes(dc, face, Size, 80)
	}

	// Status light in the bottom left corner.
	if light != balance.LightOff {
		r, g, b := lightColour(light)
		dc.SetRGB(r, g, b)
		dc.DrawCircle(10, Size-10, 7)
		dc.Fill()
	}

	dc.SetRGBA(1, 0.9, 0, 1)
	if s.BatteryMV != nil {
		mv := s.BatteryMV()
		dc.Push()
		dc.Translate(Size-34, 0)
		drawPowerBar(dc, float64(mv)/1000)
		dc.Pop()
	}
	if s.Tunables != nil && len(s.Tunables.All) > 0 {
		dc.SetRGB(1, 1, 1)
		dc.DrawString(s.Tunables.Current().String(), 22, Size-6)
	}
	return dc.Image()
}

func lightColour(l balance.Light) (r, g, b float64) {
	switch l {
	case balance.LightOrange:
		return 1, 0.5, 0
	case balance.LightGreen:
		return 0, 1, 0
	case balance.LightRed:
		return 1, 0, 0
	}
	return 0, 0, 0
}

// Loop redraws the framebuffer until ctx is done, then blanks it.
func (s *Screen) Loop(ctx context.Context, device string) {
	f, err := os.OpenFile(device, os.O_RDWR, 0666)
	if err != nil {
		fmt.Println("Failed to open screen, ignoring:", err)
		return
	}
	defer f.Close()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			var blank [Size * Size * 2]byte
			_ = writeFrame(f, blank[:])
			return
		case now := <-ticker.C:
			if err := writeFrame(f, ToRGB565(s.Render(now))); err != nil {
				fmt.Println("Screen failure:", err)
				return
			}
		}
	}
}

func writeFrame(f io.WriteSeeker, buf []byte) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	const rowBytes = Size * 2
	for i := 0; i < Size; i++ {
		if _, err := f.Write(buf[i*rowBytes : (i+1)*rowBytes]); err != nil {
			return err
		}
		time.Sleep(10 * time.Microsecond)
	}
	return nil
}

// ToRGB565 converts img to the panel's little-endian RGB565 layout.  The
// panel is mounted rotated by 90 degrees.
func ToRGB565(img image.Image) []byte {
	buf := make([]byte, Size*Size*2)
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			r, g, b, _ := img.At(x, y).RGBA() // 16-bit pre-multiplied

			rb := byte(r >> (16 - 5))
			gb := byte(g >> (16 - 6)) // Green has 6 bits
			bb := byte(b >> (16 - 5))

			off := (Size-1-y)*2 + x*Size*2
			buf[off+1] = (rb << 3) | (gb >> 3)
			buf[off] = bb | (gb << 5)
		}
	}
	return buf
}

const (
	minCellVoltage = 3.3
	maxCellVoltage = 4.2
	cells          = 2
)

func drawPowerBar(dc *gg.Context, voltage float64) {
	charge := (voltage/cells - minCellVoltage) / (maxCellVoltage - minCellVoltage)

	if charge < 0.1 {
		dc.SetRGBA(1, 0.2, 0, 1)
	}
	dc.DrawRectangle(0, 70, 30, 10)
	for n := 2; n < 13; n++ {
		if charge >= (float64(n) / 13) {
			dc.DrawRectangle(2, 75-float64(n)*5, 26, 3)
		}
	}
	dc.Fill()
	dc.DrawString(fmt.Sprintf("%.1fv", voltage), -2, 93)
}
