// Package status provides a thread-safe snapshot of the monitor's state for
// readers outside the poll loop (HTTP handlers, Telegram commands).
package status

import (
	"sync"
	"time"

	"github.com/sweeney/logo-monitor/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	PollMs           int64
	ProbeTimeoutMs   int64
	MinHealthyWindow int64 // ms
	FaultThreshold   int
	HeartbeatMs      int64
	ProbeKind        string
	Broker           string
	HTTPAddr         string
	Timezone         string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	State         logic.ConfirmedState
	Counts        logic.EventCounts
	Ready         bool // at least one sample processed
	LastSampleAt  time.Time
	ProbeError    string // last probe error, empty when the last probe succeeded
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Recipients    int
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
	now  func() time.Time
}

// NewTracker creates a Tracker seeded with the engine's initial state.
func NewTracker(startTime time.Time, seed logic.ConfirmedState, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     seed,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update records the engine state after a sample. Called from runLoop on
// every tick; probeErr is nil when the probe succeeded.
func (t *Tracker) Update(state logic.ConfirmedState, counts logic.EventCounts, sampledAt time.Time, probeErr error) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.Counts = counts
	t.snap.Ready = true
	t.snap.LastSampleAt = sampledAt
	t.snap.ProbeError = ""
	if probeErr != nil {
		t.snap.ProbeError = probeErr.Error()
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetRecipients sets the number of subscribed chats.
func (t *Tracker) SetRecipients(n int) {
	t.mu.Lock()
	t.snap.Recipients = n
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
