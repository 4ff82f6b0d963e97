// Package probe acquires raw plant samples.
package probe

import (
	"context"
	"time"

	"github.com/sweeney/logo-monitor/internal/logic"
)

// DefaultHealthyPowerKW is the output above which the plant counts as healthy.
const DefaultHealthyPowerKW = 0.1

// Prober produces one sample per call.
type Prober interface {
	// Sample reads the plant. A returned error means no usable sample; the
	// caller substitutes logic.FaultSample.
	Sample(ctx context.Context) (logic.Sample, error)

	// Close releases the underlying connection.
	Close() error
}

// newSample builds a sample stamped with now for both timestamps.
// healthy is decided from power alone; the label is reported as read.
func newSample(now time.Time, status logic.StatusLabel, power, healthyAbove float64) logic.Sample {
	return logic.Sample{
		Healthy:         power > healthyAbove,
		Status:          status,
		ObservedAtOK:    now,
		ObservedAtFault: now,
		Power:           power,
	}
}
