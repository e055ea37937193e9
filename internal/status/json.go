package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Switches      [4]bool      `json:"switches"`
	Pressed       bool         `json:"pressed"`
	Audio         bool         `json:"audio"`
	Latched       bool         `json:"latched"`
	Period        string       `json:"period"`
	Demo          bool         `json:"demo,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of activity counters.
type CountsJSON struct {
	FastTicks     uint64 `json:"fast_ticks"`
	SlowTicks     uint64 `json:"slow_ticks"`
	Activations   uint64 `json:"activations"`
	Presses       int    `json:"presses"`
	Transmissions int    `json:"transmissions"`
	TransmitFails int    `json:"transmit_failures"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	FastMs      int64    `json:"fast_ms"`
	IdleMs      int64    `json:"idle_ms"`
	AlertMs     int64    `json:"alert_ms"`
	PollMs      int64    `json:"poll_ms"`
	HeartbeatMs int64    `json:"heartbeat_ms"`
	Broker      string   `json:"broker"`
	RFXtrx      string   `json:"rfxtrx,omitempty"`
	Channels    []string `json:"channels"`
}

func buildInner(snap Snapshot) StatusInner {
	return StatusInner{
		Switches:      snap.Levels,
		Pressed:       snap.Feedback.Pressed,
		Audio:         snap.Feedback.Audio,
		Latched:       snap.Latched,
		Period:        snap.Period.String(),
		Demo:          snap.Demo,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			FastTicks:     snap.Counts.FastTicks,
			SlowTicks:     snap.Counts.SlowTicks,
			Activations:   snap.Counts.Activations,
			Presses:       snap.Counts.Presses,
			Transmissions: snap.Counts.Transmissions,
			TransmitFails: snap.Counts.TransmitFails,
		},
		Config: ConfigJSON{
			FastMs:      snap.Config.FastMs,
			IdleMs:      snap.Config.IdleMs,
			AlertMs:     snap.Config.AlertMs,
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			RFXtrx:      snap.Config.RFXtrx,
			Channels:    snap.Config.Channels,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the indented JSON status (no event/reason), as printed
// by -print-state.
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
