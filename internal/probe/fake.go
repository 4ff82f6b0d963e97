package probe

import (
	"context"
	"errors"

	"github.com/sweeney/logo-monitor/internal/logic"
)

// FakeResult is one scripted probe outcome.
type FakeResult struct {
	Sample logic.Sample
	Err    error
}

// FakeProber is a test double that returns scripted results.
type FakeProber struct {
	// Results are consumed one per Sample call; the last one repeats.
	Results []FakeResult

	index int

	// Calls counts Sample invocations.
	Calls int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeProber creates a FakeProber with the given results.
func NewFakeProber(results []FakeResult) *FakeProber {
	return &FakeProber{Results: results}
}

// Sample returns the next scripted result.
func (f *FakeProber) Sample(ctx context.Context) (logic.Sample, error) {
	f.Calls++
	if err := ctx.Err(); err != nil {
		return logic.Sample{}, err
	}
	if len(f.Results) == 0 {
		return logic.Sample{}, errors.New("no results configured")
	}

	r := f.Results[f.index]
	if f.index < len(f.Results)-1 {
		f.index++
	}
	return r.Sample, r.Err
}

// Close marks the prober as closed.
func (f *FakeProber) Close() error {
	f.Closed = true
	return nil
}
