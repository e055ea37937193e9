package control

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/reed-table/internal/cm17a"
	"github.com/sweeney/reed-table/internal/gpio"
	"github.com/sweeney/reed-table/internal/logic"
	"github.com/sweeney/reed-table/internal/mqtt"
	"github.com/sweeney/reed-table/internal/status"
)

// fakeTx records commands instead of driving lines.
type fakeTx struct {
	mu   sync.Mutex
	sent []cm17a.Command
	err  error

	// onSend, if set, is called after each recorded command with the total
	// number sent so far.
	onSend func(n int)
}

func (f *fakeTx) Transmit(c cm17a.Command) error {
	f.mu.Lock()
	f.sent = append(f.sent, c)
	n := len(f.sent)
	err := f.err
	f.mu.Unlock()
	if f.onSend != nil {
		f.onSend(n)
	}
	return err
}

func (f *fakeTx) commands() []cm17a.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cm17a.Command(nil), f.sent...)
}

var testTime = time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)

type harness struct {
	ctrl    *Controller
	board   *gpio.FakeBoard
	tracker *status.Tracker
	pub     *mqtt.FakePublisher
	tx      *fakeTx
	fast    uint64
}

func newHarness(cfg Config) *harness {
	h := &harness{
		board:   gpio.NewFakeBoard(),
		tracker: status.NewTracker(testTime, status.Config{}),
		pub:     mqtt.NewFakePublisher(),
		tx:      &fakeTx{},
	}
	cfg.Now = func() time.Time { return testTime }
	h.ctrl = New(h.board.Board(), h.tracker, h.tx, h.pub, cfg)
	return h
}

// hold sets the switches and runs n fast ticks.
func (h *harness) hold(levels logic.Levels, n int) {
	h.board.Switches.Set(levels)
	for i := 0; i < n; i++ {
		h.fast++
		h.ctrl.FastTick(h.fast)
	}
}

func (h *harness) step(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
}

func (h *harness) state() status.State {
	return h.tracker.Snapshot().State
}

func eventTypes(events []logic.Event) string {
	var types []string
	for _, e := range events {
		types = append(types, string(e.Type))
	}
	return strings.Join(types, ",")
}

func TestFastTickDebounceAndAudio(t *testing.T) {
	h := newHarness(Config{})

	h.hold(logic.Levels{false, false, true, false}, 50)
	if s := h.state(); s.Feedback.Pressed {
		t.Fatal("pressed after only 50 active ticks")
	}
	if h.board.Bell.Level() {
		t.Fatal("bell on before the press latched")
	}

	h.hold(logic.Levels{false, false, true, false}, 1)
	if s := h.state(); !s.Feedback.Pressed || !s.Feedback.Blink {
		t.Fatal("expected pressed and blink on tick 51")
	}
	if !h.board.Bell.Level() {
		t.Fatal("expected bell on at tick 51")
	}

	h.hold(logic.Levels{false, false, true, false}, 99)
	if !h.board.Bell.Level() {
		t.Fatal("expected bell still on at tick 150")
	}

	h.hold(logic.Levels{false, false, true, false}, 1)
	if h.board.Bell.Level() {
		t.Fatal("expected bell off at tick 151")
	}
	if got := h.board.Bell.Changes(); got != 2 {
		t.Errorf("expected exactly 2 bell changes, got %d", got)
	}

	s := h.state()
	if s.Counts.FastTicks != 151 {
		t.Errorf("FastTicks: got %d, want 151", s.Counts.FastTicks)
	}
	if s.Counts.Activations != 101 {
		t.Errorf("Activations: got %d, want 101", s.Counts.Activations)
	}

	h.hold(logic.Levels{}, 1)
	if s := h.state(); s.Feedback != (logic.Feedback{}) {
		t.Errorf("expected feedback reset on release, got %+v", s.Feedback)
	}
}

func TestFastTickReadErrorLeavesState(t *testing.T) {
	h := newHarness(Config{})
	h.hold(logic.Levels{true}, 10)

	h.board.Switches.SetError(errors.New("line busy"))
	h.ctrl.FastTick(11)

	s := h.state()
	if s.Counts.FastTicks != 10 {
		t.Errorf("FastTicks: got %d, want 10", s.Counts.FastTicks)
	}
	if s.Feedback.Debounce != 10 {
		t.Errorf("Debounce: got %d, want 10", s.Feedback.Debounce)
	}
}

func TestSlowTickForcesLEDsOnWhenNotBlinking(t *testing.T) {
	h := newHarness(Config{})
	h.board.LEDs[1].Write(false)

	h.ctrl.SlowTick(1)

	for i, led := range h.board.LEDs {
		if !led.Level() {
			t.Errorf("led %d: expected on", i+1)
		}
	}
	if !h.board.Heartbeat.Level() {
		t.Error("expected heartbeat toggled on")
	}
	if got := h.state().Counts.SlowTicks; got != 1 {
		t.Errorf("SlowTicks: got %d, want 1", got)
	}
}

func TestSlowTickBlinksActiveChannels(t *testing.T) {
	h := newHarness(Config{})
	h.hold(logic.Levels{true, false, false, false}, 51)
	h.board.LEDs[1].Write(false)

	h.ctrl.SlowTick(2)
	if h.board.LEDs[0].Level() {
		t.Error("led 1: expected off on even tick")
	}
	if h.board.LEDs[1].Level() {
		t.Error("led 2: inactive channel should be left alone")
	}

	h.ctrl.SlowTick(3)
	if !h.board.LEDs[0].Level() {
		t.Error("led 1: expected on on odd tick")
	}
	if h.board.Heartbeat.Level() {
		t.Error("expected heartbeat back off after two ticks")
	}
}

func TestStepFiresOncePerPress(t *testing.T) {
	h := newHarness(Config{})

	h.hold(logic.Levels{false, true, false, false}, 51)
	for i := 0; i < 5; i++ {
		h.step(t)
		h.hold(logic.Levels{false, true, false, false}, 3)
	}

	sent := h.tx.commands()
	if len(sent) != 1 {
		t.Fatalf("expected 1 transmission, got %d", len(sent))
	}
	if sent[0] != DefaultChannels[1] {
		t.Errorf("sent %s, want %s", sent[0], DefaultChannels[1])
	}
	s := h.state()
	if s.Period != logic.PeriodAlert {
		t.Errorf("period: got %s, want ALERT", s.Period)
	}
	if !s.Latched {
		t.Error("expected latch set")
	}
	if h.board.LEDs[1].Level() {
		t.Error("led 2: expected off after firing")
	}

	h.hold(logic.Levels{}, 1)
	h.step(t)
	if s := h.state(); s.Period != logic.PeriodIdle || s.Latched {
		t.Errorf("after release: period=%s latched=%v", s.Period, s.Latched)
	}

	h.hold(logic.Levels{false, true, false, false}, 51)
	h.step(t)
	if got := len(h.tx.commands()); got != 2 {
		t.Errorf("expected a second transmission after re-press, got %d", got)
	}

	if got := eventTypes(h.pub.Events); got != "PRESSED,TRANSMIT,RELEASED,PRESSED,TRANSMIT" {
		t.Errorf("events: got %s", got)
	}
	if got := h.state().Counts.Presses; got != 2 {
		t.Errorf("Presses: got %d, want 2", got)
	}
}

func TestStepTransmitEvent(t *testing.T) {
	h := newHarness(Config{})
	h.hold(logic.Levels{true, false, false, false}, 51)
	h.step(t)

	events := h.pub.EventsOfType(logic.EventTransmit)
	if len(events) != 1 {
		t.Fatalf("expected 1 TRANSMIT event, got %d", len(events))
	}
	want := logic.Event{
		Timestamp: testTime,
		Type:      logic.EventTransmit,
		Channel:   1,
		House:     "M",
		Unit:      11,
		Action:    "OFF",
		Repeat:    5,
	}
	if events[0] != want {
		t.Errorf("got %+v, want %+v", events[0], want)
	}
}

func TestStepSharedLatch(t *testing.T) {
	h := newHarness(Config{})

	h.hold(logic.Levels{true, false, true, false}, 51)
	h.step(t)

	// channel 1 lets go while channel 3 keeps the press alive
	h.hold(logic.Levels{false, false, true, false}, 5)
	h.step(t)

	sent := h.tx.commands()
	if len(sent) != 1 || sent[0] != DefaultChannels[0] {
		t.Fatalf("expected only channel 1 to fire, got %v", sent)
	}
	if !h.board.LEDs[0].Level() {
		t.Error("led 1: expected back on once inactive")
	}
}

func TestStepTransmitErrorNotRetried(t *testing.T) {
	h := newHarness(Config{})
	h.tx.err = errors.New("cm17a: write DTR: device busy")

	h.hold(logic.Levels{false, false, false, true}, 51)
	h.step(t)
	h.step(t)

	if got := len(h.tx.commands()); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
	events := h.pub.EventsOfType(logic.EventTransmit)
	if len(events) != 1 || events[0].Err == nil {
		t.Fatalf("expected TRANSMIT event carrying the error, got %+v", events)
	}
	c := h.state().Counts
	if c.Transmissions != 1 || c.TransmitFails != 1 {
		t.Errorf("counts: got %+v", c)
	}
}

func TestStepIdleIsIdempotent(t *testing.T) {
	h := newHarness(Config{})

	for i := 0; i < 10; i++ {
		h.step(t)
	}

	s := h.state()
	if s.Period != logic.PeriodIdle || s.Latched {
		t.Errorf("period=%s latched=%v", s.Period, s.Latched)
	}
	if len(h.tx.commands()) != 0 || len(h.pub.Events) != 0 {
		t.Error("expected nothing sent while idle")
	}
	for i, led := range h.board.LEDs {
		if led.Changes() != 0 {
			t.Errorf("led %d changed while idle", i+1)
		}
	}
}

func TestStepReadErrorSkipsIteration(t *testing.T) {
	h := newHarness(Config{})
	h.hold(logic.Levels{true}, 51)
	h.board.Switches.SetError(errors.New("line busy"))

	if err := h.ctrl.Step(context.Background()); err == nil {
		t.Fatal("expected read error")
	}
	if len(h.tx.commands()) != 0 {
		t.Error("expected no transmission")
	}
}

func TestNilPublisher(t *testing.T) {
	board := gpio.NewFakeBoard()
	tracker := status.NewTracker(testTime, status.Config{})
	tx := &fakeTx{}
	ctrl := New(board.Board(), tracker, tx, nil, Config{})

	board.Switches.Set(logic.Levels{true})
	for i := uint64(1); i <= 51; i++ {
		ctrl.FastTick(i)
	}
	if err := ctrl.Step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(tx.commands()) != 1 {
		t.Error("expected transmission without a publisher")
	}
}

func TestRunDemoUntilOptionReleased(t *testing.T) {
	h := newHarness(Config{})
	h.board.Option.Set(true)

	var periods []logic.Period
	h.tx.onSend = func(n int) {
		periods = append(periods, h.tracker.Period())
		if n == 6 {
			h.board.Option.Set(false)
		}
	}

	if err := h.ctrl.RunDemo(context.Background()); err != nil {
		t.Fatalf("demo: %v", err)
	}

	sent := h.tx.commands()
	want := []cm17a.Command{
		DefaultChannels[0], DefaultChannels[1], DefaultChannels[2], DefaultChannels[3],
		DefaultChannels[0], DefaultChannels[1],
	}
	if len(sent) != len(want) {
		t.Fatalf("expected %d transmissions, got %d", len(want), len(sent))
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Errorf("frame %d: got %s, want %s", i, sent[i], want[i])
		}
	}
	for i, p := range periods {
		if p != logic.PeriodAlert {
			t.Errorf("frame %d sent in period %s", i, p)
		}
	}
	if s := h.state(); s.Period != logic.PeriodIdle || s.Demo {
		t.Errorf("after demo: period=%s demo=%v", s.Period, s.Demo)
	}
}

func TestRunTicksStartupDemo(t *testing.T) {
	h := newHarness(Config{})
	h.board.Option.Set(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.tx.onSend = func(n int) {
		if n == 4 {
			cancel()
		}
	}

	if err := h.ctrl.RunTicks(ctx, make(chan time.Time)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := len(h.tx.commands()); got != 4 {
		t.Errorf("expected one full demo sequence, got %d frames", got)
	}
}

func TestRunTicksStepsUntilCancelled(t *testing.T) {
	h := newHarness(Config{})
	h.hold(logic.Levels{false, false, true, false}, 51)

	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- h.ctrl.RunTicks(ctx, tick) }()

	tick <- testTime
	tick <- testTime
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunTicks did not return after cancel")
	}

	sent := h.tx.commands()
	if len(sent) != 1 || sent[0] != DefaultChannels[2] {
		t.Errorf("expected channel 3 to fire once, got %v", sent)
	}
}

func TestStepDemoWhileIdle(t *testing.T) {
	h := newHarness(Config{DemoWhileIdle: true})
	h.step(t)
	if len(h.tx.commands()) != 0 {
		t.Fatal("demo ran with the option inactive")
	}

	h.board.Option.Set(true)
	h.tx.onSend = func(n int) {
		if n == 4 {
			h.board.Option.Set(false)
		}
	}
	h.step(t)

	if got := len(h.tx.commands()); got != 4 {
		t.Errorf("expected 4 demo frames, got %d", got)
	}
}

func TestStepIgnoresOptionWithoutDemoWhileIdle(t *testing.T) {
	h := newHarness(Config{})
	h.board.Option.Set(true)
	h.step(t)
	if len(h.tx.commands()) != 0 {
		t.Error("demo should only start at startup unless enabled while idle")
	}
}

func TestSlowPeriod(t *testing.T) {
	h := newHarness(Config{Idle: 2 * time.Second, Alert: 100 * time.Millisecond})

	if got := h.ctrl.SlowPeriod(); got != 2*time.Second {
		t.Errorf("idle: got %v", got)
	}
	h.tracker.Apply(func(s *status.State) { s.Period = logic.PeriodAlert })
	if got := h.ctrl.SlowPeriod(); got != 100*time.Millisecond {
		t.Errorf("alert: got %v", got)
	}
}

func TestCustomChannels(t *testing.T) {
	var channels [logic.NumChannels]cm17a.Command
	for i := range channels {
		channels[i] = cm17a.Command{House: 'A', Unit: i + 1, Action: cm17a.On, Repeat: 2}
	}
	h := newHarness(Config{Channels: channels})

	h.hold(logic.Levels{false, false, false, true}, 51)
	h.step(t)

	sent := h.tx.commands()
	if len(sent) != 1 || sent[0] != channels[3] {
		t.Errorf("got %v, want %s", sent, channels[3])
	}
}

func TestMultiTransmitter(t *testing.T) {
	ok := &fakeTx{}
	bad := &fakeTx{err: errors.New("port closed")}
	m := Multi{bad, ok}

	err := m.Transmit(DefaultChannels[0])
	if !errors.Is(err, bad.err) {
		t.Errorf("expected joined error, got %v", err)
	}
	if len(ok.commands()) != 1 || len(bad.commands()) != 1 {
		t.Error("expected every transmitter to be tried")
	}

	if err := (Multi{ok}).Transmit(DefaultChannels[1]); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// runUntilFired feeds poll ticks until n commands have been sent, then cancels.
func runUntilFired(t *testing.T, h *harness, n int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- h.ctrl.RunTicks(ctx, tick) }()

	deadline := time.After(2 * time.Second)
	for len(h.tx.commands()) < n {
		select {
		case tick <- testTime:
		case err := <-done:
			cancel()
			t.Fatalf("RunTicks returned early: %v, sent %d", err, len(h.tx.commands()))
		case <-deadline:
			cancel()
			t.Fatalf("timed out with %d commands sent", len(h.tx.commands()))
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunTicksOptionReadErrorAtStartup(t *testing.T) {
	h := newHarness(Config{})
	h.board.Option.SetError(errors.New("transient"))
	h.hold(logic.Levels{true, false, false, false}, 60)

	runUntilFired(t, h, 1)

	sent := h.tx.commands()
	if len(sent) != 1 || sent[0] != DefaultChannels[0] {
		t.Errorf("expected channel 1 to fire despite the option error, got %v", sent)
	}
}

func TestRunTicksDemoReadErrorKeepsSwitchesLive(t *testing.T) {
	h := newHarness(Config{})
	h.board.Option.Set(true)
	h.tx.onSend = func(n int) {
		if n == 2 {
			h.board.Option.SetError(errors.New("line busy"))
		}
	}

	h.hold(logic.Levels{false, false, false, true}, 60)
	runUntilFired(t, h, 3)

	sent := h.tx.commands()
	if sent[2] != DefaultChannels[3] {
		t.Errorf("expected channel 4 to fire after the demo stopped, got %s", sent[2])
	}
	if s := h.state(); s.Demo {
		t.Error("demo flag left set after the read error")
	}
}

func TestStepMissesReleaseWithinTransmission(t *testing.T) {
	h := newHarness(Config{})
	h.tx.onSend = func(n int) {
		if n == 1 {
			h.hold(logic.Levels{}, 1)
			h.hold(logic.Levels{false, true, false, false}, 60)
		}
	}

	h.hold(logic.Levels{true, false, false, false}, 51)
	h.step(t)
	h.step(t)

	if got := len(h.tx.commands()); got != 1 {
		t.Errorf("expected the re-press inside the transmission to be absorbed, got %d sends", got)
	}
	if got := len(h.pub.EventsOfType(logic.EventReleased)); got != 0 {
		t.Errorf("expected no RELEASED event, got %d", got)
	}
	if !h.state().Latched {
		t.Error("expected latch still set")
	}
}
