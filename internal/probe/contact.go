package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/logo-monitor/internal/gpio"
	"github.com/sweeney/logo-monitor/internal/logic"
)

// ContactProber derives a sample from the inverter's grid-relay contact.
// Power cannot be measured this way and is always reported as unreadable.
type ContactProber struct {
	reader gpio.Reader
	now    func() time.Time
}

// NewContactProber wraps a contact reader.
func NewContactProber(reader gpio.Reader, now func() time.Time) *ContactProber {
	if now == nil {
		now = time.Now
	}
	return &ContactProber{reader: reader, now: now}
}

// Sample reads the contact once.
func (p *ContactProber) Sample(ctx context.Context) (logic.Sample, error) {
	if err := ctx.Err(); err != nil {
		return logic.Sample{}, err
	}
	feeding, err := p.reader.Read()
	if err != nil {
		return logic.Sample{}, fmt.Errorf("probe contact: %w", err)
	}

	t := p.now()
	s := logic.Sample{
		Healthy:         feeding,
		Status:          logic.StatusFault,
		ObservedAtOK:    t,
		ObservedAtFault: t,
		Power:           -1,
	}
	if feeding {
		s.Status = logic.StatusOK
	}
	return s, nil
}

// Close releases the GPIO line.
func (p *ContactProber) Close() error {
	return p.reader.Close()
}
