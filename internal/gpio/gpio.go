// Package gpio provides the digital I/O boundary of the reed table with
// hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "github.com/sweeney/reed-table/internal/logic"

// Input is a digital input in logical form (true = active).
type Input interface {
	Read() (bool, error)
}

// Output is a digital output. true drives the line to its active level.
type Output interface {
	Write(level bool) error
}

// Switches reads the four reed switch inputs in one sample.
type Switches interface {
	// Read returns the logical levels; the raw lines are active low
	// (a closed reed pulls the line to ground), so raw 0 = active.
	Read() (logic.Levels, error)
}

// Board is every line the controller touches.
type Board struct {
	Switches  Switches
	Option    Input // debug/demo mode, active low
	LEDs      [logic.NumChannels]Output
	Bell      Output // audio indicator
	Heartbeat Output
	DTR       Output // carrier transmitter lines
	RTS       Output
}

// Pins holds line offsets on the GPIO chip (BCM numbering on a Pi).
type Pins struct {
	Switches  [logic.NumChannels]int
	LEDs      [logic.NumChannels]int
	Bell      int
	Heartbeat int
	Option    int
	DTR       int
	RTS       int
}

// DefaultPins is the reference wiring.
var DefaultPins = Pins{
	Switches:  [logic.NumChannels]int{5, 6, 13, 19},
	LEDs:      [logic.NumChannels]int{17, 27, 22, 23},
	Bell:      24,
	Heartbeat: 25,
	Option:    26,
	DTR:       20,
	RTS:       21,
}

// DefaultChip is the GPIO chip the lines are requested from.
const DefaultChip = "gpiochip0"
