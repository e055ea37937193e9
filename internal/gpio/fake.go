package gpio

import (
	"errors"
	"sync"

	"github.com/sweeney/reed-table/internal/logic"
)

// FakeSwitches is a test double that returns scripted switch samples.
// It is safe for concurrent use; tick handlers and the main loop both read it.
type FakeSwitches struct {
	mu sync.Mutex

	// samples contains scripted levels. Each call to Read() consumes the
	// next sample; the last one repeats.
	samples []logic.Levels
	index   int
	reads   int

	// readErr, if set, will be returned by Read()
	readErr error
}

// NewFakeSwitches creates a FakeSwitches with the given samples.
func NewFakeSwitches(samples ...logic.Levels) *FakeSwitches {
	return &FakeSwitches{samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeSwitches) Read() (logic.Levels, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if f.readErr != nil {
		return logic.Levels{}, f.readErr
	}
	if len(f.samples) == 0 {
		return logic.Levels{}, errors.New("no samples configured")
	}

	s := f.samples[f.index]
	if f.index < len(f.samples)-1 {
		f.index++
	}
	return s, nil
}

// Set replaces the script with a single level that repeats.
func (f *FakeSwitches) Set(levels logic.Levels) {
	f.mu.Lock()
	f.samples = []logic.Levels{levels}
	f.index = 0
	f.mu.Unlock()
}

// SetError makes every Read fail with err (nil clears it).
func (f *FakeSwitches) SetError(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

// Reads returns how many times Read was called.
func (f *FakeSwitches) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Reset rewinds the script to the first sample.
func (f *FakeSwitches) Reset() {
	f.mu.Lock()
	f.index = 0
	f.reads = 0
	f.mu.Unlock()
}

// FakeInput is a settable digital input.
type FakeInput struct {
	mu    sync.Mutex
	level bool
	err   error
}

// Read returns the current level.
func (f *FakeInput) Read() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level, f.err
}

// Set changes the level.
func (f *FakeInput) Set(level bool) {
	f.mu.Lock()
	f.level = level
	f.mu.Unlock()
}

// SetError makes every Read fail with err (nil clears it).
func (f *FakeInput) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// FakeOutput records writes to a digital output.
type FakeOutput struct {
	mu      sync.Mutex
	level   bool
	history []bool // level after each change

	// WriteError, if set, will be returned by Write and the level is unchanged.
	WriteError error
}

// NewFakeOutput creates an output at the given initial level.
func NewFakeOutput(initial bool) *FakeOutput {
	return &FakeOutput{level: initial}
}

// Write sets the level, recording it if it changed.
func (f *FakeOutput) Write(level bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	if level != f.level {
		f.history = append(f.history, level)
	}
	f.level = level
	return nil
}

// Level returns the current level.
func (f *FakeOutput) Level() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

// Changes returns how many times the level changed.
func (f *FakeOutput) Changes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.history)
}

// FakeBoard bundles fakes for every line, at the startup levels.
type FakeBoard struct {
	Switches  *FakeSwitches
	Option    *FakeInput
	LEDs      [logic.NumChannels]*FakeOutput
	Bell      *FakeOutput
	Heartbeat *FakeOutput
	DTR       *FakeOutput
	RTS       *FakeOutput
}

// NewFakeBoard creates a FakeBoard with all switches released.
func NewFakeBoard() *FakeBoard {
	f := &FakeBoard{
		Switches:  NewFakeSwitches(logic.Levels{}),
		Option:    &FakeInput{},
		Bell:      NewFakeOutput(false),
		Heartbeat: NewFakeOutput(false),
		DTR:       NewFakeOutput(true),
		RTS:       NewFakeOutput(true),
	}
	for i := range f.LEDs {
		f.LEDs[i] = NewFakeOutput(true)
	}
	return f
}

// Board returns the fakes behind the Board interfaces.
func (f *FakeBoard) Board() Board {
	b := Board{
		Switches:  f.Switches,
		Option:    f.Option,
		Bell:      f.Bell,
		Heartbeat: f.Heartbeat,
		DTR:       f.DTR,
		RTS:       f.RTS,
	}
	for i, l := range f.LEDs {
		b.LEDs[i] = l
	}
	return b
}
