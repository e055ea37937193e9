package logic

// BlinkActions decides the indicator updates for one slow tick.
//
// While blinking, every active channel flashes in step with the slow tick
// parity (odd = on, even = off) and inactive channels are left alone.
// Otherwise all indicators are forced on.
func BlinkActions(blink bool, slowTick uint64, in Levels) [NumChannels]LEDAction {
	var out [NumChannels]LEDAction
	for i := range out {
		switch {
		case !blink:
			out[i] = LEDOn
		case !in[i]:
			out[i] = LEDLeave
		case slowTick%2 == 1:
			out[i] = LEDOn
		default:
			out[i] = LEDOff
		}
	}
	return out
}
