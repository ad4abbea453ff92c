package sound

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/balance"
)

// Player plays a short wav cue for each session status change.  Cues are
// read from <dir>/<name>.wav; missing files are logged and skipped.
type Player struct {
	dir   string
	sound chan string
	last  balance.Status
	first bool
}

func New(dir string) *Player {
	p := &Player{
		dir:   dir,
		sound: make(chan string, 4),
		first: true,
	}
	go p.loop()
	return p
}

// CueFor returns the name of the cue for e, or "" for none.  Only status
// changes and calibration retries make a sound.
func CueFor(prev balance.Status, first bool, e balance.Event) string {
	if e.Status == balance.Calibrating && e.Light == balance.LightOrange {
		return "retry"
	}
	if !first && e.Status == prev {
		return ""
	}
	switch e.Status {
	case balance.Calibrating:
		return "calibrating"
	case balance.Running:
		return "running"
	case balance.Fallen:
		return "fallen"
	}
	return ""
}

func (p *Player) OnEvent(e balance.Event) {
	cue := CueFor(p.last, p.first, e)
	p.last = e.Status
	p.first = false
	if cue == "" {
		return
	}
	p.Play(filepath.Join(p.dir, cue+".wav"))
}

// Play queues a wav file without blocking the caller for long.
func (p *Player) Play(path string) {
	select {
	case p.sound <- path:
	case <-time.After(10 * time.Millisecond):
		fmt.Println("Sound queue full, dropping", path)
	}
}

func (p *Player) loop() {
	defer func() {
		recover()
		for s := range p.sound {
			fmt.Println("Unable to play", s)
		}
	}()
	sampleRate := beep.SampleRate(44100)
	err := speaker.Init(sampleRate, sampleRate.N(time.Second/5))
	if err != nil {
		fmt.Println("Failed to open speaker", err)
		for s := range p.sound {
			fmt.Println("Unable to play", s)
		}
		return
	}
	var ctrl *beep.Ctrl
	var s beep.StreamSeekCloser
	for path := range p.sound {
		if ctrl != nil {
			speaker.Lock()
			ctrl.Paused = true
			ctrl.Streamer = nil
			speaker.Unlock()
			ctrl = nil
		}
		if s != nil {
			_ = s.Close()
			s = nil
		}

		f, err := os.Open(path)
		if err != nil {
			fmt.Println("Failed to open sound", err)
			continue
		}
		s, _, err = wav.Decode(f)
		if err != nil {
			fmt.Println("Failed to decode sound", err)
			_ = f.Close()
			continue
		}
		ctrl = &beep.Ctrl{Streamer: s}
		speaker.Play(ctrl)
	}
}
