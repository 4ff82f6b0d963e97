// Package logic contains the pure plant-state hysteresis logic.
// This package has NO external dependencies (no Modbus, MQTT, Telegram, OS, or time.Sleep).
// Time is always injectable via time.Time values carried by the samples.
package logic

import "time"

// StatusLabel is the plant's human-facing classification.
// The string values are the labels shown by the plant's own UI.
type StatusLabel string

const (
	StatusOK      StatusLabel = "Anlage OK"
	StatusFault   StatusLabel = "Anlage Fehler"
	StatusUnknown StatusLabel = "Zustand nicht bekannt"
)

// EventType represents a confirmed transition.
type EventType string

const (
	EventRecoveryConfirmed EventType = "recovery-confirmed"
	EventFaultConfirmed    EventType = "fault-confirmed"
)

// Sample is one raw observation of the plant.
// Healthy and Status are computed independently by the probe and may disagree;
// only Healthy gates transitions.
type Sample struct {
	Healthy         bool
	Status          StatusLabel
	ObservedAtOK    time.Time
	ObservedAtFault time.Time
	Power           float64 // kW, negative means unreadable
}

// FaultSample returns the conservative sample fed to the engine when no real
// sample could be obtained.
func FaultSample(now time.Time) Sample {
	return Sample{
		Healthy:         false,
		Status:          StatusUnknown,
		ObservedAtOK:    now,
		ObservedAtFault: now,
		Power:           0,
	}
}

// ConfirmedState is the engine's debounced view of the plant.
// It is a value type: copies handed out by the engine are safe to keep.
type ConfirmedState struct {
	// Display fields, overwritten by every sample.
	Healthy bool
	Status  StatusLabel
	Power   float64

	LastHealthyAt time.Time
	LastFaultAt   time.Time

	// ConfirmedHealthy is true once a recovery has been confirmed and not yet
	// retracted by a confirmed fault.
	ConfirmedHealthy  bool
	ConsecutiveFaults int
}

// Event is a confirmed transition together with the state that produced it.
type Event struct {
	Type  EventType
	State ConfirmedState
}

// Timestamp returns the sample time that triggered the event.
func (e Event) Timestamp() time.Time {
	if e.Type == EventFaultConfirmed {
		return e.State.LastFaultAt
	}
	return e.State.LastHealthyAt
}

// Observer is called synchronously for every emitted event it subscribed to.
type Observer func(Event)

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Recoveries int
	Faults     int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
