package balance

import "sync/atomic"

// ControlCommand holds the externally supplied set-points.  Each field is
// read and written atomically but the pair is not: the control loop may see
// a drive from one update and a steer from the next, which is harmless for
// one tick.
type ControlCommand struct {
	drive atomic.Int64
	steer atomic.Int64
}

func (c *ControlCommand) Set(drive, steer int) {
	c.drive.Store(int64(drive))
	c.steer.Store(int64(steer))
}

func (c *ControlCommand) Load() (drive, steer int) {
	return int(c.drive.Load()), int(c.steer.Load())
}
