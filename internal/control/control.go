// Package control glues the pure decision logic to the board.
//
// FastTick and SlowTick run on the dispatcher goroutine. Step, Run and
// RunDemo run on the main loop goroutine. Everything the two sides share
// goes through the status.Tracker.
package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/reed-table/internal/cm17a"
	"github.com/sweeney/reed-table/internal/dispatch"
	"github.com/sweeney/reed-table/internal/gpio"
	"github.com/sweeney/reed-table/internal/logic"
	"github.com/sweeney/reed-table/internal/mqtt"
	"github.com/sweeney/reed-table/internal/status"
)

// Default periods.
const (
	DefaultFast  = 10 * time.Millisecond
	DefaultIdle  = 1 * time.Second
	DefaultAlert = 250 * time.Millisecond
	DefaultPoll  = 5 * time.Millisecond
)

// DefaultChannels maps channels 1..4 to their commands.
var DefaultChannels = [logic.NumChannels]cm17a.Command{
	{House: 'M', Unit: 11, Action: cm17a.Off, Repeat: 5},
	{House: 'M', Unit: 6, Action: cm17a.Off, Repeat: 5},
	{House: 'M', Unit: 6, Action: cm17a.On, Repeat: 5},
	{House: 'M', Unit: 11, Action: cm17a.On, Repeat: 5},
}

// Transmitter sends one command frame, with its repeats.
type Transmitter interface {
	Transmit(c cm17a.Command) error
}

// Multi sends every command through each transmitter in turn.
// A failing transmitter does not stop the others.
type Multi []Transmitter

// Transmit implements Transmitter.
func (m Multi) Transmit(c cm17a.Command) error {
	var errs []error
	for _, t := range m {
		if err := t.Transmit(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config configures a Controller. Zero values use the defaults.
type Config struct {
	Channels [logic.NumChannels]cm17a.Command

	Fast  time.Duration
	Idle  time.Duration
	Alert time.Duration
	Poll  time.Duration

	Threshold   int
	AudioWindow int

	// DemoWhileIdle also enters demo mode when the option input becomes
	// active after startup.
	DemoWhileIdle bool

	Now func() time.Time
}

// Controller owns the board on behalf of both contexts.
type Controller struct {
	board   gpio.Board
	tracker *status.Tracker
	tx      Transmitter
	pub     mqtt.Publisher // nil disables publishing
	engine  logic.Engine
	cfg     Config

	// dispatcher goroutine only
	audio     bool
	heartbeat bool

	// main loop only
	pressed bool
}

// New creates a Controller. pub may be nil.
func New(board gpio.Board, tracker *status.Tracker, tx Transmitter, pub mqtt.Publisher, cfg Config) *Controller {
	if cfg.Channels == ([logic.NumChannels]cm17a.Command{}) {
		cfg.Channels = DefaultChannels
	}
	if cfg.Fast <= 0 {
		cfg.Fast = DefaultFast
	}
	if cfg.Idle <= 0 {
		cfg.Idle = DefaultIdle
	}
	if cfg.Alert <= 0 {
		cfg.Alert = DefaultAlert
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		board:   board,
		tracker: tracker,
		tx:      tx,
		pub:     pub,
		engine:  logic.NewEngine(cfg.Threshold, cfg.AudioWindow),
		cfg:     cfg,
	}
}

// SlowPeriod returns the duration of the currently selected slow period.
func (c *Controller) SlowPeriod() time.Duration {
	if c.tracker.Period() == logic.PeriodAlert {
		return c.cfg.Alert
	}
	return c.cfg.Idle
}

// Dispatcher returns a dispatcher driving FastTick and SlowTick.
// A nil newTimer uses real timers.
func (c *Controller) Dispatcher(newTimer dispatch.TimerFunc) *dispatch.Dispatcher {
	return dispatch.New(dispatch.Config{
		Fast:     c.cfg.Fast,
		Slow:     c.SlowPeriod,
		OnFast:   c.FastTick,
		OnSlow:   c.SlowTick,
		NewTimer: newTimer,
	})
}

// FastTick samples the switches and runs the debounce engine.
func (c *Controller) FastTick(n uint64) {
	in, err := c.board.Switches.Read()
	if err != nil {
		log.Printf("gpio read error on fast tick %d: %v", n, err)
		return
	}

	var fb logic.Feedback
	c.tracker.Apply(func(s *status.State) {
		s.Counts.FastTicks = n
		s.Levels = in
		s.Feedback = c.engine.Process(s.Feedback, in)
		if s.Feedback.Pressed {
			s.Counts.Activations++
		}
		fb = s.Feedback
	})

	if fb.Audio != c.audio {
		if err := c.board.Bell.Write(fb.Audio); err != nil {
			log.Printf("bell write error: %v", err)
			return
		}
		c.audio = fb.Audio
	}
}

// SlowTick toggles the heartbeat and runs the blink scheduler.
func (c *Controller) SlowTick(n uint64) {
	c.heartbeat = !c.heartbeat
	if err := c.board.Heartbeat.Write(c.heartbeat); err != nil {
		log.Printf("heartbeat write error: %v", err)
	}

	var blink bool
	c.tracker.Apply(func(s *status.State) {
		s.Counts.SlowTicks = n
		blink = s.Feedback.Blink
	})

	in, err := c.board.Switches.Read()
	if err != nil {
		log.Printf("gpio read error on slow tick %d: %v", n, err)
		return
	}
	c.applyLEDs(logic.BlinkActions(blink, n, in))
}

func (c *Controller) applyLEDs(actions [logic.NumChannels]logic.LEDAction) {
	for i, a := range actions {
		var err error
		switch a {
		case logic.LEDOn:
			err = c.board.LEDs[i].Write(true)
		case logic.LEDOff:
			err = c.board.LEDs[i].Write(false)
		default:
			continue
		}
		if err != nil {
			log.Printf("led %d write error: %v", i+1, err)
		}
	}
}

// Step runs one main loop iteration.
func (c *Controller) Step(ctx context.Context) error {
	pressed := c.tracker.Snapshot().Feedback.Pressed
	if pressed != c.pressed {
		c.pressed = pressed
		c.pressEdge(pressed)
	}

	var in logic.Levels
	if pressed {
		var err error
		if in, err = c.board.Switches.Read(); err != nil {
			return fmt.Errorf("read switches: %w", err)
		}
	}

	var d logic.Decision
	c.tracker.Apply(func(s *status.State) {
		d = logic.Decide(pressed, s.Latched, in)
		s.Period = d.Period
		s.Latched = d.Latched
	})

	c.applyLEDs(d.LEDs)
	if d.Fire != logic.NoChannel {
		c.fire(d.Fire)
	}

	if !pressed && c.cfg.DemoWhileIdle {
		active, err := c.board.Option.Read()
		if err != nil {
			return fmt.Errorf("read option: %w", err)
		}
		if active {
			return c.RunDemo(ctx)
		}
	}
	return nil
}

func (c *Controller) pressEdge(pressed bool) {
	typ := logic.EventReleased
	if pressed {
		typ = logic.EventPressed
		c.tracker.Apply(func(s *status.State) { s.Counts.Presses++ })
	}
	log.Printf("event: %s", typ)
	c.publish(logic.Event{Timestamp: c.cfg.Now(), Type: typ})
}

// fire transmits the command mapped to channel i (0-based).
func (c *Controller) fire(i int) {
	cmd := c.cfg.Channels[i]
	err := c.tx.Transmit(cmd)

	c.tracker.Apply(func(s *status.State) {
		s.Counts.Transmissions++
		if err != nil {
			s.Counts.TransmitFails++
		}
	})
	if err != nil {
		log.Printf("transmit error: channel %d %s: %v", i+1, cmd, err)
	} else {
		log.Printf("event: TRANSMIT channel %d %s", i+1, cmd)
	}

	c.publish(logic.Event{
		Timestamp: c.cfg.Now(),
		Type:      logic.EventTransmit,
		Channel:   i + 1,
		House:     string(cm17a.NormalizeHouse(cmd.House)),
		Unit:      cmd.Unit,
		Action:    cmd.Action.String(),
		Repeat:    cmd.Repeat,
		Err:       err,
	})
}

func (c *Controller) publish(e logic.Event) {
	if c.pub == nil {
		return
	}
	if err := c.pub.Publish(e); err != nil {
		log.Printf("publish error: %v", err)
	}
}

// RunDemo transmits the channel commands in channel order, over and over,
// until the option input is released or ctx is cancelled. The alert period
// is selected for the duration.
func (c *Controller) RunDemo(ctx context.Context) error {
	c.tracker.Apply(func(s *status.State) {
		s.Period = logic.PeriodAlert
		s.Demo = true
	})
	defer c.tracker.Apply(func(s *status.State) {
		s.Period = logic.PeriodIdle
		s.Demo = false
	})
	log.Printf("demo mode started")

	for {
		for i := range c.cfg.Channels {
			if ctx.Err() != nil {
				return nil
			}
			active, err := c.board.Option.Read()
			if err != nil {
				return fmt.Errorf("read option: %w", err)
			}
			if !active {
				log.Printf("demo mode ended")
				return nil
			}
			c.fire(i)
		}
	}
}

// Run enters demo mode if the option input is active at startup, then
// calls Step every poll interval until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Poll)
	defer ticker.Stop()
	return c.RunTicks(ctx, ticker.C)
}

// RunTicks is Run with an injected tick source. A failed option read at
// startup skips demo mode; the switches stay live.
func (c *Controller) RunTicks(ctx context.Context, tick <-chan time.Time) error {
	if active, err := c.board.Option.Read(); err != nil {
		log.Printf("main loop: read option at startup: %v", err)
	} else if active {
		if err := c.RunDemo(ctx); err != nil {
			log.Printf("main loop: demo: %v", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if err := c.Step(ctx); err != nil {
				log.Printf("main loop: %v", err)
			}
		}
	}
}
