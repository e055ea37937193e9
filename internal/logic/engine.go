package logic

// Engine debounces the switch inputs and times the audio feedback.
type Engine struct {
	threshold   int
	audioWindow int
}

// NewEngine creates an engine with the given thresholds, in fast ticks.
// Non-positive values fall back to DebounceThreshold and AudioWindow.
func NewEngine(threshold, audioWindow int) Engine {
	if threshold <= 0 {
		threshold = DebounceThreshold
	}
	if audioWindow <= 0 {
		audioWindow = AudioWindow
	}
	return Engine{threshold: threshold, audioWindow: audioWindow}
}

// Process takes one fast-tick sample and returns the next feedback state.
//
// A sample with every channel inactive is a global reset. Otherwise the shared
// debounce counter advances; once it exceeds the threshold the press latches
// and the audio indicator runs for audioWindow ticks, then stays off until
// the next reset.
func (e Engine) Process(f Feedback, in Levels) Feedback {
	if !in.AnyActive() {
		return Feedback{}
	}

	if f.Debounce <= e.threshold {
		f.Debounce++
	}
	if f.Debounce <= e.threshold {
		return f
	}

	f.Pressed = true
	f.Blink = true
	if f.AudioElapsed < e.audioWindow {
		f.Audio = true
		f.AudioElapsed++
	} else {
		f.Audio = false
	}
	return f
}
