package cm17a

import (
	"fmt"
	"sync"
	"time"
)

// Line is a digital output. Write sets the line to high (true) or low.
type Line interface {
	Write(level bool) error
}

// Sleeper blocks for at least d.
type Sleeper func(d time.Duration)

// Timing holds the protocol delay windows.
type Timing struct {
	BitDelay    time.Duration // signal hold and standby hold per bit
	RepeatDelay time.Duration // standby after each repetition
	ResetDelay  time.Duration // power-cycle hold at reset
}

// DefaultTiming is comfortably inside CM17A tolerances on a hosted OS.
var DefaultTiming = Timing{
	BitDelay:    1 * time.Millisecond,
	RepeatDelay: 30 * time.Millisecond,
	ResetDelay:  36 * time.Millisecond,
}

// Transmitter bit-bangs commands onto the DTR and RTS lines.
// Both lines high is standby (and powers the device); a bit is signalled by
// pulling one line low: RTS low for 1, DTR low for 0.
type Transmitter struct {
	mu     sync.Mutex
	dtr    Line
	rts    Line
	timing Timing
	sleep  Sleeper
}

// NewTransmitter creates a Transmitter. A nil sleep uses time.Sleep;
// zero timing fields use DefaultTiming.
func NewTransmitter(dtr, rts Line, timing Timing, sleep Sleeper) *Transmitter {
	if timing.BitDelay <= 0 {
		timing.BitDelay = DefaultTiming.BitDelay
	}
	if timing.RepeatDelay <= 0 {
		timing.RepeatDelay = DefaultTiming.RepeatDelay
	}
	if timing.ResetDelay <= 0 {
		timing.ResetDelay = DefaultTiming.ResetDelay
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Transmitter{dtr: dtr, rts: rts, timing: timing, sleep: sleep}
}

// Reset power-cycles the transmitter and leaves it in standby.
func (t *Transmitter) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.set(false, false); err != nil {
		return err
	}
	t.sleep(t.timing.ResetDelay)
	if err := t.standby(); err != nil {
		return err
	}
	t.sleep(t.timing.ResetDelay)
	return nil
}

// Transmit sends the command c.Repeat times. It blocks for the whole
// transmission and cannot be cancelled. There is no acknowledgment; a nil
// error only means every line write succeeded.
func (t *Transmitter) Transmit(c Command) error {
	if err := c.Validate(); err != nil {
		return err
	}
	bits, err := Encode(c)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.standby(); err != nil {
		return err
	}
	for r := 0; r < c.Repeat; r++ {
		for _, b := range bits {
			if err := t.sendBit(b); err != nil {
				return fmt.Errorf("repeat %d: %w", r+1, err)
			}
		}
		t.sleep(t.timing.RepeatDelay)
	}
	return nil
}

func (t *Transmitter) sendBit(b bool) error {
	// Raise before lowering so both lines are never low together mid-bit.
	if b {
		if err := t.set(true, false); err != nil {
			return err
		}
	} else {
		if err := t.set(false, true); err != nil {
			return err
		}
	}
	t.sleep(t.timing.BitDelay)
	if err := t.standby(); err != nil {
		return err
	}
	t.sleep(t.timing.BitDelay)
	return nil
}

func (t *Transmitter) standby() error {
	return t.set(true, true)
}

// set writes the high line first.
func (t *Transmitter) set(dtr, rts bool) error {
	if rts && !dtr {
		if err := t.write("RTS", t.rts, rts); err != nil {
			return err
		}
		return t.write("DTR", t.dtr, dtr)
	}
	if err := t.write("DTR", t.dtr, dtr); err != nil {
		return err
	}
	return t.write("RTS", t.rts, rts)
}

func (t *Transmitter) write(name string, l Line, level bool) error {
	if err := l.Write(level); err != nil {
		return fmt.Errorf("cm17a: write %s: %w", name, err)
	}
	return nil
}
