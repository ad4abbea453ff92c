package turret

import (
	"fmt"
	"sync"
	"time"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/hardware"
)

const (
	FireTurns = 15
	FirePower = 100
	Cooldown  = 2 * time.Second
)

// Turret fires the gun on the aux motor channel.  Up and down shots turn
// the motor in opposite directions.
type Turret struct {
	aux      hardware.Aux
	Cooldown time.Duration
	now      func() time.Time

	lock     sync.Mutex
	lastShot time.Time
	inFlight sync.WaitGroup
}

func New(aux hardware.Aux) *Turret {
	return &Turret{
		aux:      aux,
		Cooldown: Cooldown,
		now:      time.Now,
	}
}

// Fire starts a shot in the background.  It returns false, without firing,
// if the last shot was less than Cooldown ago.
func (t *Turret) Fire(up bool) bool {
	t.lock.Lock()
	now := t.now()
	if !t.lastShot.IsZero() && now.Sub(t.lastShot) <= t.Cooldown {
		t.lock.Unlock()
		return false
	}
	t.lastShot = now
	t.lock.Unlock()

	degrees := FireTurns * 360
	if !up {
		degrees = -degrees
	}
	t.inFlight.Add(1)
	go func() {
		defer t.inFlight.Done()
		if err := t.aux.RotateAux(degrees, FirePower); err != nil {
			fmt.Println("HW: gun failed:", err)
		}
	}()
	return true
}

// Wait blocks until any shots in flight have finished.
func (t *Turret) Wait() {
	t.inFlight.Wait()
}
