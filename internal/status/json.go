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
	Event             string     `json:"event,omitempty"`
	Reason            string     `json:"reason,omitempty"`
	Healthy           bool       `json:"healthy"`
	ConfirmedHealthy  bool       `json:"confirmed_healthy"`
	PlantStatus       string     `json:"plant_status"`
	PowerKW           float64    `json:"power_kw"`
	LastOK            string     `json:"last_ok"`
	LastFault         string     `json:"last_fault"`
	ConsecutiveFaults int        `json:"consecutive_faults"`
	Ready             bool       `json:"ready"`
	LastSample        string     `json:"last_sample,omitempty"`
	ProbeError        string     `json:"probe_error,omitempty"`
	UptimeSeconds     int64      `json:"uptime_seconds"`
	StartTime         string     `json:"start_time"`
	Timestamp         string     `json:"timestamp"`
	MQTT              MQTTStatus `json:"mqtt"`
	Recipients        int        `json:"recipients"`
	Counts            CountsJSON `json:"event_counts"`
	Config            ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Recoveries int `json:"recovery_confirmed"`
	Faults     int `json:"fault_confirmed"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs             int64  `json:"poll_ms"`
	ProbeTimeoutMs     int64  `json:"probe_timeout_ms"`
	MinHealthyWindowMs int64  `json:"min_healthy_window_ms"`
	FaultThreshold     int    `json:"fault_confirmation_threshold"`
	HeartbeatMs        int64  `json:"heartbeat_ms"`
	ProbeKind          string `json:"probe"`
	Broker             string `json:"broker"`
	HTTPAddr           string `json:"http_addr"`
	Timezone           string `json:"timezone"`
}

func buildInner(snap Snapshot) StatusInner {
	st := snap.State
	label := string(st.Status)
	if label == "" {
		label = "Zustand nicht bekannt"
	}

	inner := StatusInner{
		Healthy:           st.Healthy,
		ConfirmedHealthy:  st.ConfirmedHealthy,
		PlantStatus:       label,
		PowerKW:           st.Power,
		LastOK:            st.LastHealthyAt.UTC().Format(time.RFC3339),
		LastFault:         st.LastFaultAt.UTC().Format(time.RFC3339),
		ConsecutiveFaults: st.ConsecutiveFaults,
		Ready:             snap.Ready,
		ProbeError:        snap.ProbeError,
		UptimeSeconds:     int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:         snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:         snap.Now.UTC().Format(time.RFC3339),
		MQTT:              MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Recipients:        snap.Recipients,
		Counts: CountsJSON{
			Recoveries: snap.Counts.Recoveries,
			Faults:     snap.Counts.Faults,
		},
		Config: ConfigJSON{
			PollMs:             snap.Config.PollMs,
			ProbeTimeoutMs:     snap.Config.ProbeTimeoutMs,
			MinHealthyWindowMs: snap.Config.MinHealthyWindow,
			FaultThreshold:     snap.Config.FaultThreshold,
			HeartbeatMs:        snap.Config.HeartbeatMs,
			ProbeKind:          snap.Config.ProbeKind,
			Broker:             snap.Config.Broker,
			HTTPAddr:           snap.Config.HTTPAddr,
			Timezone:           snap.Config.Timezone,
		},
	}
	if !snap.LastSampleAt.IsZero() {
		inner.LastSample = snap.LastSampleAt.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
