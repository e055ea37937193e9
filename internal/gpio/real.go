//go:build linux

package gpio

import (
	"fmt"

	"github.com/sweeney/reed-table/internal/logic"
	"github.com/warthog618/go-gpiocdev"
)

// RealBoard owns every requested line on the GPIO chip.
type RealBoard struct {
	Board

	chip     *gpiocdev.Chip
	switches [logic.NumChannels]*gpiocdev.Line
	option   *gpiocdev.Line
	outputs  []*gpiocdev.Line
}

// NewRealBoard requests all lines and establishes the startup levels:
// indicators on, audio and heartbeat off, carrier lines high (standby).
func NewRealBoard(chipName string, pins Pins) (*RealBoard, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	b := &RealBoard{chip: chip}

	// Reed switches and the option switch close to ground.
	for i, pin := range pins.Switches {
		l, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.AsActiveLow, gpiocdev.WithPullUp)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request switch %d pin %d: %w", i+1, pin, err)
		}
		b.switches[i] = l
	}
	b.option, err = chip.RequestLine(pins.Option, gpiocdev.AsInput, gpiocdev.AsActiveLow, gpiocdev.WithPullUp)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("request option pin %d: %w", pins.Option, err)
	}

	output := func(name string, pin, initial int) (Output, error) {
		l, err := chip.RequestLine(pin, gpiocdev.AsOutput(initial))
		if err != nil {
			return nil, fmt.Errorf("request %s pin %d: %w", name, pin, err)
		}
		b.outputs = append(b.outputs, l)
		return realOutput{l}, nil
	}

	for i, pin := range pins.LEDs {
		if b.LEDs[i], err = output(fmt.Sprintf("led %d", i+1), pin, 1); err != nil {
			b.Close()
			return nil, err
		}
	}
	if b.Bell, err = output("bell", pins.Bell, 0); err != nil {
		b.Close()
		return nil, err
	}
	if b.Heartbeat, err = output("heartbeat", pins.Heartbeat, 0); err != nil {
		b.Close()
		return nil, err
	}
	if b.DTR, err = output("dtr", pins.DTR, 1); err != nil {
		b.Close()
		return nil, err
	}
	if b.RTS, err = output("rts", pins.RTS, 1); err != nil {
		b.Close()
		return nil, err
	}

	b.Switches = realSwitches{lines: b.switches}
	b.Option = realInput{b.option}
	return b, nil
}

type realSwitches struct {
	lines [logic.NumChannels]*gpiocdev.Line
}

// Read samples the four switch lines. Active-low is applied by the
// line request, so a value of 1 means the reed is closed.
func (s realSwitches) Read() (logic.Levels, error) {
	var out logic.Levels
	for i, l := range s.lines {
		v, err := l.Value()
		if err != nil {
			return logic.Levels{}, fmt.Errorf("read switch %d: %w", i+1, err)
		}
		out[i] = v == 1
	}
	return out, nil
}

type realInput struct {
	line *gpiocdev.Line
}

func (r realInput) Read() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read option: %w", err)
	}
	return v == 1, nil
}

type realOutput struct {
	line *gpiocdev.Line
}

func (o realOutput) Write(level bool) error {
	v := 0
	if level {
		v = 1
	}
	return o.line.SetValue(v)
}

// Close releases GPIO resources.
// Outputs are reconfigured as inputs with pull-down before closing so the
// board is left in the Pi's boot-default state.
func (b *RealBoard) Close() error {
	var errs []error

	for _, l := range b.outputs {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	for _, l := range b.switches {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close switch line: %w", err))
		}
	}
	if b.option != nil {
		if err := b.option.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close option line: %w", err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
