package logic

import (
	"errors"
	"time"
)

const (
	DefaultMinHealthyWindow = time.Minute
	DefaultFaultThreshold   = 3
)

// Config holds the two independent debounce parameters.
type Config struct {
	// MinHealthyWindow is the minimum time between the last recorded fault and
	// a healthy sample before a recovery is confirmed.
	MinHealthyWindow time.Duration
	// FaultThreshold is the number of consecutive unhealthy samples needed to
	// confirm a fault.
	FaultThreshold int
}

// DefaultConfig returns the default debounce parameters.
func DefaultConfig() Config {
	return Config{
		MinHealthyWindow: DefaultMinHealthyWindow,
		FaultThreshold:   DefaultFaultThreshold,
	}
}

// Validate checks the debounce parameters.
func (c Config) Validate() error {
	if c.MinHealthyWindow <= 0 {
		return errors.New("logic: min healthy window must be > 0")
	}
	if c.FaultThreshold < 1 {
		return errors.New("logic: fault threshold must be >= 1")
	}
	return nil
}

// Engine turns raw samples into confirmed fault/recovery transitions.
// Recovery is debounced by time, faults by count.
//
// Not safe for concurrent use: Update performs read-modify-write on the
// counters and must be driven from a single goroutine. Other goroutines read
// the state through status.Tracker.
type Engine struct {
	cfg       Config
	state     ConfirmedState
	counts    EventCounts
	observers map[EventType][]Observer
}

// NewEngine creates an engine seeded with a healthy, confirmed-healthy state
// whose timestamps are both seed.
func NewEngine(cfg Config, seed time.Time) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg: cfg,
		state: ConfirmedState{
			Healthy:          true,
			Status:           StatusOK,
			LastHealthyAt:    seed,
			LastFaultAt:      seed,
			ConfirmedHealthy: true,
		},
		observers: make(map[EventType][]Observer),
	}, nil
}

// Subscribe registers fn for events of type t. Observers run in registration
// order before Update returns.
func (e *Engine) Subscribe(t EventType, fn Observer) {
	if fn == nil {
		return
	}
	e.observers[t] = append(e.observers[t], fn)
}

// Update applies one sample. It returns the emitted event, if any.
// At most one event is emitted per call.
//
// Recovery compares the sample's ObservedAtOK with the stored LastFaultAt.
// Timestamps are trusted as supplied: a healthy sample timestamped before the
// stored fault gives a negative elapsed time and can never confirm recovery.
func (e *Engine) Update(s Sample) (Event, bool) {
	e.state.Power = s.Power
	e.state.Status = s.Status
	e.state.Healthy = s.Healthy

	var ev Event
	if s.Healthy {
		e.state.LastHealthyAt = s.ObservedAtOK
		e.state.ConsecutiveFaults = 0
		if e.state.ConfirmedHealthy {
			return Event{}, false
		}
		if e.state.LastHealthyAt.Sub(e.state.LastFaultAt) < e.cfg.MinHealthyWindow {
			// Still settling after the last fault.
			return Event{}, false
		}
		e.state.ConfirmedHealthy = true
		e.counts.Recoveries++
		ev = Event{Type: EventRecoveryConfirmed, State: e.state}
	} else {
		e.state.LastFaultAt = s.ObservedAtFault
		e.state.ConsecutiveFaults++
		if e.state.ConsecutiveFaults < e.cfg.FaultThreshold {
			return Event{}, false
		}
		if !e.state.ConfirmedHealthy {
			return Event{}, false
		}
		e.state.ConfirmedHealthy = false
		e.counts.Faults++
		ev = Event{Type: EventFaultConfirmed, State: e.state}
	}

	for _, fn := range e.observers[ev.Type] {
		fn(ev)
	}
	return ev, true
}

// State returns a copy of the confirmed state.
func (e *Engine) State() ConfirmedState {
	return e.state
}

// Counts returns the number of events emitted since startup.
func (e *Engine) Counts() EventCounts {
	return e.counts
}

// Config returns the debounce parameters the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}
