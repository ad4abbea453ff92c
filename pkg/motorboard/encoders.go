package motorboard

type rawEncoderReader interface {
	RawEncoders() (PerMotor[int16], error)
}

// EncoderTracker extends the board's 16-bit counters to 32 bits.  It must be
// polled often enough that no counter moves more than 32767 counts between
// polls.
type EncoderTracker struct {
	board rawEncoderReader

	doneFirstPoll bool
	lastRaw       PerMotor[int16]

	accumulator PerMotor[int32]
}

func NewEncoderTracker(board rawEncoderReader) *EncoderTracker {
	return &EncoderTracker{
		board: board,
	}
}

func (e *EncoderTracker) Poll() error {
	raw, err := e.board.RawEncoders()
	if err != nil {
		return err
	}

	if e.doneFirstPoll {
		for m, newV := range raw {
			// Wraps correctly in int16 arithmetic.
			delta := newV - e.lastRaw[m]
			e.accumulator[m] += int32(delta)
		}
	}

	e.lastRaw = raw
	e.doneFirstPoll = true
	return nil
}

func (e *EncoderTracker) Counts() PerMotor[int32] {
	return e.accumulator
}

func (e *EncoderTracker) Zero() {
	e.accumulator = PerMotor[int32]{}
}
