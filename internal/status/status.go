// Package status holds the state shared between the tick handlers and the
// main loop. Every write goes through Apply and every read through
// Snapshot, both under one lock, so neither side can observe a torn update.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/reed-table/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	FastMs      int64
	IdleMs      int64
	AlertMs     int64
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	RFXtrx      string   // RFXtrx serial port (empty = disabled)
	Channels    []string // command mapped to each channel, e.g. "M11 OFF x5"
}

// State is the mutable state shared across contexts.
type State struct {
	Levels   logic.Levels // last sample taken by the fast tick
	Feedback logic.Feedback
	Period   logic.Period // slow tick rate; written only by the main loop
	Latched  bool         // one-shot latch, shared by all channels
	Counts   logic.Counts
	Demo     bool // demo transmissions in progress
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
// All counters start at zero and the slow period at idle.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     State{Period: logic.PeriodIdle},
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Apply runs update with exclusive access to the shared state.
// update must be short and must not call back into the Tracker.
func (t *Tracker) Apply(update func(s *State)) {
	t.mu.Lock()
	update(&t.snap.State)
	t.mu.Unlock()
}

// Period returns the currently selected slow period.
func (t *Tracker) Period() logic.Period {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Period
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
