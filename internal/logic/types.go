// Package logic contains the pure decision logic of the reed table:
// debounce and audio feedback, blink scheduling and the main-loop latch.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Callers sample inputs and apply the returned decisions to hardware.
package logic

import "time"

// NumChannels is the number of reed switch channels.
const NumChannels = 4

// Fast-tick counts used by the engine.
const (
	DebounceThreshold = 50  // active ticks that must be exceeded before a press latches
	AudioWindow       = 100 // ticks the audio indicator stays on per pressed interval
)

// Levels holds one sample of the switch inputs in logical form.
// true = active (reed closed).
type Levels [NumChannels]bool

// AnyActive reports whether at least one channel is active.
func (l Levels) AnyActive() bool {
	for _, v := range l {
		if v {
			return true
		}
	}
	return false
}

// Feedback is the debounced state shared by all channels.
// The counters are deliberately global: any active channel sustains them and
// only a sample with every channel inactive clears them.
type Feedback struct {
	Pressed      bool // debounced: some channel has been active long enough
	Blink        bool // mirrors Pressed; consumed by the blink scheduler
	Audio        bool // audio indicator should be on
	Debounce     int  // consecutive ticks with at least one active channel, saturating
	AudioElapsed int  // ticks the audio indicator has been on this interval
}

// Period selects the slow tick rate.
type Period int

const (
	PeriodIdle Period = iota
	PeriodAlert
)

func (p Period) String() string {
	switch p {
	case PeriodIdle:
		return "IDLE"
	case PeriodAlert:
		return "ALERT"
	}
	return "UNKNOWN"
}

// LEDAction is what a scheduler wants done with one indicator.
type LEDAction int

const (
	LEDLeave LEDAction = iota // leave the indicator as it is
	LEDOn
	LEDOff
)

// EventType represents something the main loop reports.
type EventType string

const (
	EventPressed  EventType = "PRESSED"
	EventReleased EventType = "RELEASED"
	EventTransmit EventType = "TRANSMIT"
)

// Event is emitted by the main loop for publishing.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Channel   int    // 1-based; 0 for PRESSED/RELEASED
	House     string // TRANSMIT only
	Unit      int
	Action    string
	Repeat    int
	Err       error // transmission error, if any
}

// Counts tracks activity since startup.
type Counts struct {
	FastTicks     uint64
	SlowTicks     uint64
	Activations   uint64 // fast ticks spent in the debounced pressed state
	Presses       int
	Transmissions int
	TransmitFails int
}
