package remote

import (
	"context"
	"time"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/balance"
	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/drive"
)

const PollInterval = 10 * time.Millisecond

type Session interface {
	Status() balance.Status
	SetCommand(drive, steer int)
	Snapshot() balance.Snapshot
}

type Gun interface {
	Fire(up bool) bool
}

// Controller polls the input sources and drives the session while it is
// running.  It only writes the session's command when its own set-points
// change, so commands from other producers (MQTT) stand until the remote
// is used.
type Controller struct {
	Session Session
	Gun     Gun
	Sources []Source
	// OnFace, if set, is told which face to show for each command.
	OnFace func(drive.Face)

	pilot    drive.Pilot
	repeater Repeater
	// Set-points last written to the session.
	sentDrive, sentSteer int
}

func NewController(session Session, gun Gun, sources ...Source) *Controller {
	return &Controller{
		Session:  session,
		Gun:      gun,
		Sources:  sources,
		repeater: Repeater{Interval: RepeatInterval},
	}
}

func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.Step(now)
		}
	}
}

// Step handles one poll and returns the command that took effect.
func (c *Controller) Step(now time.Time) drive.Command {
	if c.Session.Status() != balance.Running {
		c.pilot.Reset()
		c.sentDrive, c.sentSteer = 0, 0
		return drive.None
	}

	cmd := c.repeater.Next(now, c.Sources...)
	if cmd.IsFire() && c.Gun != nil {
		if !c.Gun.Fire(cmd == drive.FireUp) {
			// Still cooling down.
			cmd = drive.Hold
		}
	}

	wheelDiff := c.Session.Snapshot().Motor.WheelDiff
	driveSP, steerSP, face := c.pilot.Apply(cmd, wheelDiff)
	if driveSP != c.sentDrive || steerSP != c.sentSteer {
		c.Session.SetCommand(driveSP, steerSP)
		c.sentDrive, c.sentSteer = driveSP, steerSP
	}
	if face != "" && c.OnFace != nil {
		c.OnFace(face)
	}
	return cmd
}
