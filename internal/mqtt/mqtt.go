// Package mqtt publishes confirmed plant transitions and lifecycle events.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/logo-monitor/internal/logic"
)

// Topic is the MQTT topic for confirmed plant transitions.
const Topic = "energy/pv/logo/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "energy/pv/logo/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a confirmed transition. An empty id gets a fresh UUID.
	// Errors are reported, never fatal.
	Publish(id string, event logic.Event) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event (STARTUP, HEARTBEAT, SHUTDOWN, OFFLINE).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // shutdown only, e.g. "SIGTERM"
	RawPayload []byte // pre-formatted snapshot; FormatSystemPayload returns it as is
	Retained   bool
}

// Payload is the JSON body published on Topic.
type Payload struct {
	Plant PlantPayload `json:"plant"`
}

// PlantPayload carries one confirmed transition.
type PlantPayload struct {
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	Event     string  `json:"event"`
	Healthy   bool    `json:"healthy"`
	Status    string  `json:"status"`
	PowerKW   float64 `json:"power_kw"`
	LastOK    string  `json:"last_ok"`
	LastFault string  `json:"last_fault"`
}

// FormatPayload creates the JSON payload for a confirmed transition.
func FormatPayload(id string, event logic.Event) ([]byte, error) {
	if id == "" {
		id = uuid.NewString()
	}
	st := event.State
	payload := Payload{
		Plant: PlantPayload{
			ID:        id,
			Timestamp: event.Timestamp().UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Healthy:   st.Healthy,
			Status:    string(st.Status),
			PowerKW:   st.Power,
			LastOK:    st.LastHealthyAt.UTC().Format(time.RFC3339),
			LastFault: st.LastFaultAt.UTC().Format(time.RFC3339),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is used for events that carry no status snapshot (OFFLINE).
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(string, logic.Event) error { return nil }

func (NopPublisher) PublishSystem(SystemEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

func (NopPublisher) IsConnected() bool { return false }
