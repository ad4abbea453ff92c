package drive

import (
	"fmt"
	"sync"
)

// Command is a discrete remote-control request.  Movement commands nudge
// the drive/steer set-points; they don't set them outright.
type Command int

const (
	None Command = iota // no button held: stop
	Hold                // button still held: keep going
	Forward
	Backward
	Left
	Right
	LeftForward
	RightForward
	LeftBackward
	RightBackward
	FireUp
	FireDown
)

func (c Command) String() string {
	switch c {
	case None:
		return "IDL"
	case Hold:
		return "HLD"
	case Forward:
		return "FWD"
	case Backward:
		return "BCK"
	case Left:
		return "LFT"
	case Right:
		return "RGT"
	case LeftForward:
		return "LFW"
	case RightForward:
		return "RFW"
	case LeftBackward:
		return "LBK"
	case RightBackward:
		return "RBK"
	case FireUp, FireDown:
		return "GUN"
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

func (c Command) IsFire() bool {
	return c == FireUp || c == FireDown
}

const (
	MaxSpeed = 600
	SpeedInc = 50
	MaxSteer = 170
	SteerInc = 85
)

// Face names the eyes to show in response to a command.  Empty means leave
// the eyes alone.
type Face string

const (
	FaceNeutral     Face = "neutral"
	FaceMiddleLeft  Face = "middle_left"
	FaceMiddleRight Face = "middle_right"
	FaceEvil        Face = "evil"
	FaceAwake       Face = "awake"
)

// Pilot turns the command stream into drive and steer set-points.
type Pilot struct {
	lock         sync.Mutex
	drive, steer int
}

// Apply updates the set-points for cmd.  wheelDiff is the current
// right-minus-left encoder difference: while the robot is already turned
// against the requested direction, the steer ramp stops at half.
func (p *Pilot) Apply(cmd Command, wheelDiff int32) (drive, steer int, face Face) {
	p.lock.Lock()
	defer p.lock.Unlock()

	switch cmd {
	case None:
		p.drive, p.steer = 0, 0
	case Hold:
	case Forward:
		p.faster()
		p.steer = 0
		face = FaceNeutral
	case Backward:
		p.slower()
		p.steer = 0
		face = FaceNeutral
	case Left:
		p.steerLeft(wheelDiff)
		p.drive = 0
		face = FaceMiddleLeft
	case Right:
		p.steerRight(wheelDiff)
		p.drive = 0
		face = FaceMiddleRight
	case LeftForward:
		p.steerLeft(wheelDiff)
		p.faster()
		face = FaceMiddleLeft
	case RightForward:
		p.steerRight(wheelDiff)
		p.faster()
		face = FaceMiddleRight
	case LeftBackward:
		p.steerLeft(wheelDiff)
		p.slower()
		face = FaceMiddleLeft
	case RightBackward:
		p.steerRight(wheelDiff)
		p.slower()
		face = FaceMiddleRight
	case FireUp, FireDown:
		face = FaceEvil
	}
	return p.drive, p.steer, face
}

// Reset zeroes the set-points, for when the session restarts.
func (p *Pilot) Reset() {
	p.lock.Lock()
	p.drive, p.steer = 0, 0
	p.lock.Unlock()
}

func (p *Pilot) SetPoints() (drive, steer int) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.drive, p.steer
}

func (p *Pilot) faster() {
	if p.drive < 0 {
		p.drive = 0
	} else if p.drive < MaxSpeed {
		p.drive += SpeedInc
	}
}

func (p *Pilot) slower() {
	if p.drive > 0 {
		p.drive = 0
	} else if p.drive > -MaxSpeed {
		p.drive -= SpeedInc
	}
}

func (p *Pilot) steerLeft(wheelDiff int32) {
	limit := MaxSteer
	if wheelDiff < 0 {
		limit = MaxSteer / 2
	}
	if p.steer < 0 {
		p.steer = 0
	} else if p.steer < limit {
		p.steer += SteerInc
	}
}

func (p *Pilot) steerRight(wheelDiff int32) {
	limit := MaxSteer
	if wheelDiff > 0 {
		limit = MaxSteer / 2
	}
	if p.steer > 0 {
		p.steer = 0
	} else if p.steer > -limit {
		p.steer -= SteerInc
	}
}
