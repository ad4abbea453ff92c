package remote

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/drive"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/joystick"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/tunable"
)

const (
	stickExpo     = 1.6
	stickDeadzone = 0.1
)

// Joystick tracks the pad state.  Movement comes from the D-pad, or the
// left stick when the D-pad is centred.  R1 and R2 fire.  The face buttons
// work the tunables and Cross restarts a fallen robot.
type Joystick struct {
	Tunables *tunable.Tunables
	Restart  func()

	lock             sync.Mutex
	dPadX, dPadY     int16
	stickX, stickY   int16
	fireUp, fireDown bool
	tune             limiter
}

func NewJoystick(tunables *tunable.Tunables, restart func()) *Joystick {
	return &Joystick{
		Tunables: tunables,
		Restart:  restart,
		tune:     limiter{interval: TuneInterval},
	}
}

func (j *Joystick) OnEvent(event *joystick.Event) {
	j.lock.Lock()
	defer j.lock.Unlock()

	switch event.Type {
	case joystick.EventTypeAxis:
		switch event.Number {
		case joystick.AxisDPadX:
			j.dPadX = event.Value
		case joystick.AxisDPadY:
			j.dPadY = event.Value
		case joystick.AxisLStickX:
			j.stickX = event.Value
		case joystick.AxisLStickY:
			j.stickY = event.Value
		}
	case joystick.EventTypeButton:
		pressed := event.Value == 1
		switch event.Number {
		case joystick.ButtonR1:
			j.fireUp = pressed
		case joystick.ButtonR2:
			j.fireDown = pressed
		case joystick.ButtonCross:
			if pressed && j.Restart != nil {
				fmt.Println("Cross pressed: restarting")
				j.Restart()
			}
		case joystick.ButtonSquare, joystick.ButtonCircle, joystick.ButtonTriangle, joystick.ButtonL1:
			if pressed && j.Tunables != nil && len(j.Tunables.All) > 0 && j.tune.allow(event.Time) {
				j.onTuneButton(event.Number)
			}
		}
	}
}

func (j *Joystick) onTuneButton(button uint8) {
	switch button {
	case joystick.ButtonSquare:
		j.Tunables.SelectPrev()
	case joystick.ButtonCircle:
		j.Tunables.SelectNext()
	case joystick.ButtonTriangle:
		j.Tunables.Current().Add(1)
	case joystick.ButtonL1:
		j.Tunables.Current().Add(-1)
	}
}

func (j *Joystick) Held(time.Time) drive.Command {
	j.lock.Lock()
	defer j.lock.Unlock()

	if j.fireUp {
		return drive.FireUp
	}
	if j.fireDown {
		return drive.FireDown
	}
	x, y := float64(j.dPadX)/32767, float64(j.dPadY)/32767
	if j.dPadX == 0 && j.dPadY == 0 {
		x = applyExpo(float64(j.stickX)/32767, stickExpo)
		y = applyExpo(float64(j.stickY)/32767, stickExpo)
	}
	return classify(x, y)
}

// classify maps a direction in joystick axes (y negative is up) to one of
// the eight movement commands.
func classify(x, y float64) drive.Command {
	left, right := x < -stickDeadzone, x > stickDeadzone
	up, down := y < -stickDeadzone, y > stickDeadzone
	switch {
	case up && left:
		return drive.LeftForward
	case up && right:
		return drive.RightForward
	case up:
		return drive.Forward
	case down && left:
		return drive.LeftBackward
	case down && right:
		return drive.RightBackward
	case down:
		return drive.Backward
	case left:
		return drive.Left
	case right:
		return drive.Right
	}
	return drive.None
}

func applyExpo(value float64, expo float64) float64 {
	return math.Copysign(math.Pow(math.Abs(value), expo), value)
}
