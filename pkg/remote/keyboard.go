package remote

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	"github.com/tigerbot-team/tigerbot/go-balancer/pkg/drive"
)

// ReleaseAfter is how long a key counts as held after its last repeat.
// Terminal auto-repeat is slower than the command repeat interval.
const ReleaseAfter = 300 * time.Millisecond

var keyCommands = map[byte]drive.Command{
	'w': drive.Forward,
	's': drive.Backward,
	'a': drive.Left,
	'd': drive.Right,
	'q': drive.LeftForward,
	'e': drive.RightForward,
	'z': drive.LeftBackward,
	'c': drive.RightBackward,
	'f': drive.FireUp,
	'g': drive.FireDown,
}

const usage = `==========================
Usage:
 w/s    forwards/backwards
 a/d    turn left/right
 q/e    forwards left/right
 z/c    backwards left/right
 f/g    fire up/straight
 space  stop
 r      restart after a fall
 h      this message
==========================
`

// Keyboard takes single-key commands from a serial link, usually a
// Bluetooth SPP tty.
type Keyboard struct {
	Restart func()
	// Out gets the usage text.
	Out io.Writer

	lock    sync.Mutex
	held    drive.Command
	pressed time.Time
}

func NewKeyboard(restart func(), out io.Writer) *Keyboard {
	return &Keyboard{
		Restart: restart,
		Out:     out,
	}
}

// OpenSerial opens the serial device with a read timeout so that Loop
// notices cancellation.
func OpenSerial(device string) (serial.Port, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: 115200})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", device)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		_ = port.Close()
		return nil, errors.Wrap(err, "setting serial read timeout")
	}
	return port, nil
}

// Loop reads keys until ctx is done or r fails.  A read returning no data
// is treated as a timeout, not end of input.
func (k *Keyboard) Loop(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 16)
	for ctx.Err() == nil {
		n, err := r.Read(buf)
		now := time.Now()
		for _, b := range buf[:n] {
			k.OnKey(b, now)
		}
		if err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (k *Keyboard) OnKey(key byte, now time.Time) {
	switch key {
	case 'r':
		if k.Restart != nil {
			k.Restart()
		}
		return
	case 'h':
		if k.Out != nil {
			fmt.Fprint(k.Out, usage)
		}
		return
	case ' ':
		k.lock.Lock()
		k.held = drive.None
		k.lock.Unlock()
		return
	}
	cmd, ok := keyCommands[key]
	if !ok {
		return
	}
	k.lock.Lock()
	k.held = cmd
	k.pressed = now
	k.lock.Unlock()
}

func (k *Keyboard) Held(now time.Time) drive.Command {
	k.lock.Lock()
	defer k.lock.Unlock()
	if k.held == drive.None || now.Sub(k.pressed) > ReleaseAfter {
		return drive.None
	}
	return k.held
}
