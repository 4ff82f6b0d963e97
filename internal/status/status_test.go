package status

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/logo-monitor/internal/logic"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func seedState() logic.ConfirmedState {
	return logic.ConfirmedState{
		Healthy:          true,
		Status:           logic.StatusOK,
		LastHealthyAt:    start,
		LastFaultAt:      start,
		ConfirmedHealthy: true,
	}
}

func faultState() logic.ConfirmedState {
	return logic.ConfirmedState{
		Healthy:           false,
		Status:            logic.StatusFault,
		Power:             -1,
		LastHealthyAt:     start.Add(time.Minute),
		LastFaultAt:       start.Add(4 * time.Minute),
		ConsecutiveFaults: 3,
	}
}

func TestNewTracker(t *testing.T) {
	cfg := Config{PollMs: 60000, FaultThreshold: 3, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(start, seedState(), cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.PollMs != 60000 {
		t.Errorf("Config.PollMs: got %d, want 60000", snap.Config.PollMs)
	}
	if snap.Config.HTTPAddr != ":8080" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":8080")
	}
	if !snap.State.ConfirmedHealthy {
		t.Error("expected seeded confirmed-healthy state")
	}
	if snap.Ready {
		t.Error("expected Ready=false before the first sample")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(start, seedState(), Config{})
	at := start.Add(4 * time.Minute)

	tr.Update(faultState(), logic.EventCounts{Faults: 1}, at, nil)

	snap := tr.Snapshot()
	if snap.State.Status != logic.StatusFault {
		t.Errorf("Status: got %q", snap.State.Status)
	}
	if snap.State.ConsecutiveFaults != 3 {
		t.Errorf("ConsecutiveFaults: got %d, want 3", snap.State.ConsecutiveFaults)
	}
	if !snap.Ready {
		t.Error("expected Ready=true")
	}
	if !snap.LastSampleAt.Equal(at) {
		t.Errorf("LastSampleAt: got %v, want %v", snap.LastSampleAt, at)
	}
	if snap.Counts.Faults != 1 {
		t.Errorf("Counts.Faults: got %d, want 1", snap.Counts.Faults)
	}
}

func TestUpdateProbeError(t *testing.T) {
	tr := NewTracker(start, seedState(), Config{})

	tr.Update(faultState(), logic.EventCounts{}, start, errors.New("dial tcp: i/o timeout"))
	if got := tr.Snapshot().ProbeError; got != "dial tcp: i/o timeout" {
		t.Errorf("ProbeError: got %q", got)
	}

	tr.Update(seedState(), logic.EventCounts{}, start, nil)
	if got := tr.Snapshot().ProbeError; got != "" {
		t.Errorf("expected ProbeError cleared, got %q", got)
	}
}

func TestSetMQTTConnectedAndRecipients(t *testing.T) {
	tr := NewTracker(start, seedState(), Config{})

	tr.SetMQTTConnected(true)
	tr.SetRecipients(4)
	snap := tr.Snapshot()
	if !snap.MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
	if snap.Recipients != 4 {
		t.Errorf("Recipients: got %d, want 4", snap.Recipients)
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(15 * time.Minute)}
	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(start, seedState(), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(start, seedState(), Config{})
	snap1 := tr.Snapshot()

	tr.Update(faultState(), logic.EventCounts{Faults: 1}, start, nil)

	if snap1.State.Status != logic.StatusOK {
		t.Error("snapshot should be a copy; status was modified")
	}
	if snap1.Counts.Faults != 0 {
		t.Error("snapshot should be a copy; counts were modified")
	}
}

func TestFormatJSON(t *testing.T) {
	snap := Snapshot{
		State:         faultState(),
		Counts:        logic.EventCounts{Recoveries: 2, Faults: 3},
		Ready:         true,
		LastSampleAt:  start.Add(4 * time.Minute),
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Recipients:    2,
		Config: Config{
			PollMs:           60000,
			ProbeTimeoutMs:   20000,
			MinHealthyWindow: 60000,
			FaultThreshold:   3,
			HeartbeatMs:      900000,
			ProbeKind:        "modbus",
			Broker:           "tcp://192.168.1.200:1883",
			HTTPAddr:         ":8080",
			Timezone:         "Europe/Berlin",
		},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.Event != "" || s.Reason != "" {
		t.Error("web JSON should not carry event/reason")
	}
	if s.Healthy || s.ConfirmedHealthy {
		t.Error("expected unhealthy, unconfirmed")
	}
	if s.PlantStatus != "Anlage Fehler" {
		t.Errorf("PlantStatus: got %q", s.PlantStatus)
	}
	if s.PowerKW != -1 {
		t.Errorf("PowerKW: got %v, want -1", s.PowerKW)
	}
	if s.LastOK != "2026-01-01T00:01:00Z" || s.LastFault != "2026-01-01T00:04:00Z" {
		t.Errorf("timestamps: last_ok=%s last_fault=%s", s.LastOK, s.LastFault)
	}
	if s.LastSample != "2026-01-01T00:04:00Z" {
		t.Errorf("LastSample: got %s", s.LastSample)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("unexpected MQTT: %+v", s.MQTT)
	}
	if s.Counts.Recoveries != 2 || s.Counts.Faults != 3 {
		t.Errorf("unexpected counts: %+v", s.Counts)
	}
	if s.Recipients != 2 {
		t.Errorf("Recipients: got %d", s.Recipients)
	}
	if s.Config.FaultThreshold != 3 || s.Config.ProbeKind != "modbus" || s.Config.Timezone != "Europe/Berlin" {
		t.Errorf("unexpected config: %+v", s.Config)
	}
}

func TestFormatJSONUnknownState(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.PlantStatus != "Zustand nicht bekannt" {
		t.Errorf("expected unknown label, got %q", parsed.Status.PlantStatus)
	}
	if parsed.Status.Ready {
		t.Error("expected ready=false")
	}
}

func TestFormatJSONOmitsEmptySampleFields(t *testing.T) {
	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(FormatJSON(Snapshot{StartTime: start, Now: start}), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"last_sample", "probe_error", "event", "reason"} {
		if _, ok := raw["status"][key]; ok {
			t.Errorf("%s should be omitted", key)
		}
	}
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{State: seedState(), StartTime: start, Now: start.Add(time.Hour)}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q", parsed.Status.Reason)
	}
	if parsed.Status.UptimeSeconds != 3600 {
		t.Errorf("UptimeSeconds: got %d", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(FormatStatusEvent(Snapshot{}, "HEARTBEAT", ""), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := raw["status"]["reason"]; ok {
		t.Error("reason should be omitted when empty")
	}
	if raw["status"]["event"] != "HEARTBEAT" {
		t.Errorf("event: got %v", raw["status"]["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(start, seedState(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(faultState(), logic.EventCounts{Faults: i}, start, nil)
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetRecipients(i)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
		}
	}()

	wg.Wait()
}
