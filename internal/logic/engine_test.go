package logic

import "testing"

var (
	allOff = Levels{}
	ch1On  = Levels{true, false, false, false}
	ch2On  = Levels{false, true, false, false}
	ch4On  = Levels{false, false, false, true}
)

// run feeds n copies of in to the engine and returns the final state.
func run(e Engine, f Feedback, in Levels, n int) Feedback {
	for i := 0; i < n; i++ {
		f = e.Process(f, in)
	}
	return f
}

func TestNewEngineDefaults(t *testing.T) {
	e := NewEngine(0, -1)
	if e.threshold != DebounceThreshold {
		t.Errorf("expected threshold %d, got %d", DebounceThreshold, e.threshold)
	}
	if e.audioWindow != AudioWindow {
		t.Errorf("expected audio window %d, got %d", AudioWindow, e.audioWindow)
	}

	e = NewEngine(3, 7)
	if e.threshold != 3 || e.audioWindow != 7 {
		t.Errorf("expected (3, 7), got (%d, %d)", e.threshold, e.audioWindow)
	}
}

func TestEngineNotPressedAtThreshold(t *testing.T) {
	e := NewEngine(DebounceThreshold, AudioWindow)
	var f Feedback

	for tick := 1; tick <= DebounceThreshold; tick++ {
		f = e.Process(f, ch2On)
		if f.Pressed || f.Blink || f.Audio {
			t.Fatalf("tick %d: should not be pressed yet, got %+v", tick, f)
		}
	}
	if f.Debounce != DebounceThreshold {
		t.Errorf("expected debounce %d, got %d", DebounceThreshold, f.Debounce)
	}

	f = e.Process(f, ch2On)
	if !f.Pressed || !f.Blink {
		t.Fatalf("tick %d: expected pressed and blink, got %+v", DebounceThreshold+1, f)
	}
	if !f.Audio {
		t.Error("expected audio on the tick the press latches")
	}
}

func TestEngineStaysPressedUntilAllInactive(t *testing.T) {
	e := NewEngine(DebounceThreshold, AudioWindow)
	f := run(e, Feedback{}, ch1On, DebounceThreshold+1)
	if !f.Pressed {
		t.Fatal("expected pressed")
	}

	// Activity moving between channels keeps the shared state alive.
	f = run(e, f, ch4On, 30)
	f = run(e, f, Levels{true, true, true, true}, 30)
	f = run(e, f, ch2On, 500)
	if !f.Pressed || !f.Blink {
		t.Fatalf("expected still pressed, got %+v", f)
	}

	f = e.Process(f, allOff)
	if f != (Feedback{}) {
		t.Errorf("expected full reset after one all-inactive sample, got %+v", f)
	}
}

func TestEngineBounceResetsCounter(t *testing.T) {
	e := NewEngine(DebounceThreshold, AudioWindow)
	var f Feedback

	// Bounce: 40 active, 1 inactive, 40 active. Never 51 consecutive.
	f = run(e, f, ch1On, 40)
	f = e.Process(f, allOff)
	f = run(e, f, ch1On, 40)
	if f.Pressed {
		t.Fatalf("bounce should not latch a press, got %+v", f)
	}
	if f.Debounce != 40 {
		t.Errorf("expected debounce 40 after reset, got %d", f.Debounce)
	}
}

func TestEngineAudioWindow(t *testing.T) {
	e := NewEngine(DebounceThreshold, AudioWindow)
	var f Feedback

	audioTicks := 0
	firstAudio := 0
	for tick := 1; tick <= 600; tick++ {
		f = e.Process(f, ch1On)
		if f.Audio {
			if firstAudio == 0 {
				firstAudio = tick
			}
			if tick >= firstAudio+AudioWindow {
				t.Fatalf("tick %d: audio still on after window", tick)
			}
			audioTicks++
		}
	}

	if firstAudio != DebounceThreshold+1 {
		t.Errorf("expected audio to start at tick %d, got %d", DebounceThreshold+1, firstAudio)
	}
	if audioTicks != AudioWindow {
		t.Errorf("expected audio on for %d ticks, got %d", AudioWindow, audioTicks)
	}
	if !f.Pressed {
		t.Error("pressed should outlive the audio window")
	}
	if f.AudioElapsed != AudioWindow {
		t.Errorf("expected audio elapsed to hold at %d, got %d", AudioWindow, f.AudioElapsed)
	}
}

func TestEngineAudioRestartsAfterRelease(t *testing.T) {
	e := NewEngine(DebounceThreshold, AudioWindow)
	f := run(e, Feedback{}, ch1On, 300)
	if f.Audio {
		t.Fatal("audio should be off long after the press")
	}

	f = e.Process(f, allOff)
	f = run(e, f, ch2On, DebounceThreshold+1)
	if !f.Audio {
		t.Error("expected audio on again after release and re-press")
	}
}

func TestEngineDebounceSaturates(t *testing.T) {
	e := NewEngine(DebounceThreshold, AudioWindow)
	f := run(e, Feedback{}, ch1On, 10000)
	if f.Debounce != DebounceThreshold+1 {
		t.Errorf("expected debounce to saturate at %d, got %d", DebounceThreshold+1, f.Debounce)
	}
}

func TestEngineIdleStaysZero(t *testing.T) {
	e := NewEngine(DebounceThreshold, AudioWindow)
	f := run(e, Feedback{}, allOff, 100)
	if f != (Feedback{}) {
		t.Errorf("expected zero state while idle, got %+v", f)
	}
}

func TestLevelsAnyActive(t *testing.T) {
	tests := []struct {
		in   Levels
		want bool
	}{
		{allOff, false},
		{ch1On, true},
		{ch4On, true},
		{Levels{true, true, true, true}, true},
	}
	for _, tt := range tests {
		if got := tt.in.AnyActive(); got != tt.want {
			t.Errorf("%v.AnyActive(): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPeriodString(t *testing.T) {
	if PeriodIdle.String() != "IDLE" {
		t.Errorf("unexpected idle string: %s", PeriodIdle)
	}
	if PeriodAlert.String() != "ALERT" {
		t.Errorf("unexpected alert string: %s", PeriodAlert)
	}
	if Period(9).String() != "UNKNOWN" {
		t.Errorf("unexpected string for bad period: %s", Period(9))
	}
}
