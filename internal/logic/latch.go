package logic

// NoChannel is Decision.Fire when nothing should be transmitted.
const NoChannel = -1

// Decision is the outcome of one main-loop iteration.
type Decision struct {
	Period  Period
	Fire    int // 0-based channel whose command should be sent, or NoChannel
	LEDs    [NumChannels]LEDAction
	Latched bool // one-shot latch after this iteration
}

// Decide computes one main-loop iteration from the debounced pressed flag,
// the current one-shot latch and a fresh switch sample.
//
// The latch is shared by all channels: the first active channel (in channel
// order) fires, and every active channel sets the latch, so nothing else
// fires until the press is released. Releasing clears the latch.
func Decide(pressed, latched bool, in Levels) Decision {
	d := Decision{Period: PeriodIdle, Fire: NoChannel}
	if !pressed {
		return d
	}

	d.Period = PeriodAlert
	d.Latched = latched
	for i, active := range in {
		if !active {
			d.LEDs[i] = LEDOn
			continue
		}
		if !d.Latched {
			d.Fire = i
			d.LEDs[i] = LEDOff
		}
		d.Latched = true
	}
	return d
}
