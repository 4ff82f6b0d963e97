package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/logo-monitor/internal/gpio"
	"github.com/sweeney/logo-monitor/internal/logic"
)

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeRegisters struct {
	power     []byte
	powerErr  error
	coils     []byte
	coilsErr  error
	powerAddr uint16
	coilAddr  uint16
}

func (f *fakeRegisters) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	f.powerAddr = address
	return f.power, f.powerErr
}

func (f *fakeRegisters) ReadCoils(address, quantity uint16) ([]byte, error) {
	f.coilAddr = address
	return f.coils, f.coilsErr
}

func newTestModbusProber(regs *fakeRegisters) *ModbusProber {
	return &ModbusProber{
		cfg: ModbusConfig{
			Endpoint:       "192.168.0.3:502",
			PowerRegister:  10,
			PowerScale:     0.01,
			StatusCoil:     8,
			HealthyPowerKW: DefaultHealthyPowerKW,
		},
		client: regs,
		now:    func() time.Time { return fixedNow },
	}
}

func TestModbusProberHealthy(t *testing.T) {
	regs := &fakeRegisters{power: []byte{0x04, 0xD2}, coils: []byte{0x01}} // 1234 * 0.01
	p := newTestModbusProber(regs)

	s, err := p.Sample(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Power != 12.34 {
		t.Errorf("expected power 12.34, got %v", s.Power)
	}
	if !s.Healthy {
		t.Error("expected healthy")
	}
	if s.Status != logic.StatusOK {
		t.Errorf("expected %q, got %q", logic.StatusOK, s.Status)
	}
	if !s.ObservedAtOK.Equal(fixedNow) || !s.ObservedAtFault.Equal(fixedNow) {
		t.Error("expected both timestamps = now")
	}
	if regs.powerAddr != 10 || regs.coilAddr != 8 {
		t.Errorf("read wrong addresses: power=%d coil=%d", regs.powerAddr, regs.coilAddr)
	}
}

func TestModbusProberHealthyIndependentOfLabel(t *testing.T) {
	// Power above threshold but status coil clear: healthy=true, label FAULT.
	regs := &fakeRegisters{power: []byte{0x01, 0xF4}, coils: []byte{0x00}}
	p := newTestModbusProber(regs)

	s, err := p.Sample(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Healthy {
		t.Error("expected healthy from power alone")
	}
	if s.Status != logic.StatusFault {
		t.Errorf("expected %q, got %q", logic.StatusFault, s.Status)
	}
}

func TestModbusProberThreshold(t *testing.T) {
	tests := []struct {
		raw     []byte
		power   float64
		healthy bool
	}{
		{[]byte{0x00, 0x0A}, 0.1, false}, // exactly at threshold is not healthy
		{[]byte{0x00, 0x0B}, 0.11, true},
		{[]byte{0x00, 0x00}, 0, false},
		{[]byte{0xFF, 0xFF}, -0.01, false},
	}
	for _, tt := range tests {
		regs := &fakeRegisters{power: tt.raw, coils: []byte{0x01}}
		s, err := newTestModbusProber(regs).Sample(context.Background())
		if err != nil {
			t.Fatalf("raw %v: unexpected error: %v", tt.raw, err)
		}
		if s.Power != tt.power {
			t.Errorf("raw %v: expected power %v, got %v", tt.raw, tt.power, s.Power)
		}
		if s.Healthy != tt.healthy {
			t.Errorf("raw %v: expected healthy=%v", tt.raw, tt.healthy)
		}
	}
}

func TestModbusProberPowerReadFails(t *testing.T) {
	regs := &fakeRegisters{powerErr: errors.New("timeout"), coils: []byte{0x01}}
	s, err := newTestModbusProber(regs).Sample(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Power != -1 {
		t.Errorf("expected unreadable power -1, got %v", s.Power)
	}
	if s.Healthy {
		t.Error("unreadable power must not be healthy")
	}
	if s.Status != logic.StatusOK {
		t.Errorf("expected status as read, got %q", s.Status)
	}
}

func TestModbusProberShortPayload(t *testing.T) {
	regs := &fakeRegisters{power: []byte{0x01}, coils: []byte{}}
	_, err := newTestModbusProber(regs).Sample(context.Background())
	if err == nil {
		t.Fatal("expected error when both reads are unusable")
	}
}

func TestModbusProberStatusReadFails(t *testing.T) {
	regs := &fakeRegisters{power: []byte{0x03, 0xE8}, coilsErr: errors.New("exception 2")}
	s, err := newTestModbusProber(regs).Sample(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Status != logic.StatusFault {
		t.Errorf("expected FAULT on status read failure, got %q", s.Status)
	}
	if s.Power != 10 {
		t.Errorf("expected power 10, got %v", s.Power)
	}
}

func TestModbusProberBothFail(t *testing.T) {
	regs := &fakeRegisters{powerErr: errors.New("connection refused"), coilsErr: errors.New("connection refused")}
	if _, err := newTestModbusProber(regs).Sample(context.Background()); err == nil {
		t.Fatal("expected error when both reads fail")
	}
}

func TestModbusProberCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	regs := &fakeRegisters{power: []byte{0x00, 0x01}, coils: []byte{0x01}}
	if _, err := newTestModbusProber(regs).Sample(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewModbusProberValidation(t *testing.T) {
	if _, err := NewModbusProber(ModbusConfig{PowerScale: 1}); err == nil {
		t.Error("expected error for missing endpoint")
	}
	if _, err := NewModbusProber(ModbusConfig{Endpoint: "127.0.0.1:502"}); err == nil {
		t.Error("expected error for zero power scale")
	}
	p, err := NewModbusProber(ModbusConfig{Endpoint: "127.0.0.1:502", PowerScale: 0.1, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("close without connection: %v", err)
	}
}

func TestNewModbusProberUsesInjectedClock(t *testing.T) {
	p, err := NewModbusProber(ModbusConfig{
		Endpoint:   "127.0.0.1:502",
		PowerScale: 0.1,
		Now:        func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()
	p.client = &fakeRegisters{power: []byte{0x00, 0x0A}, coils: []byte{0x01}}

	s, err := p.Sample(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.ObservedAtOK.Equal(fixedNow) || !s.ObservedAtFault.Equal(fixedNow) {
		t.Errorf("expected samples stamped with injected clock, got %+v", s)
	}
}

func TestContactProber(t *testing.T) {
	reader := gpio.NewFakeReader([]bool{true, false})
	p := NewContactProber(reader, func() time.Time { return fixedNow })

	s, err := p.Sample(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Healthy || s.Status != logic.StatusOK {
		t.Errorf("expected healthy OK, got %+v", s)
	}
	if s.Power != -1 {
		t.Errorf("expected unreadable power, got %v", s.Power)
	}

	s, err = p.Sample(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Healthy || s.Status != logic.StatusFault {
		t.Errorf("expected unhealthy FAULT, got %+v", s)
	}

	if err := p.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if !reader.Closed {
		t.Error("expected reader to be closed")
	}
}

func TestContactProberReadError(t *testing.T) {
	reader := gpio.NewFakeReader([]bool{true})
	reader.ReadError = errors.New("line busy")
	p := NewContactProber(reader, nil)

	if _, err := p.Sample(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestFakeProber(t *testing.T) {
	want := logic.Sample{Healthy: true, Status: logic.StatusOK, Power: 3}
	f := NewFakeProber([]FakeResult{
		{Sample: want},
		{Err: errors.New("navigation failed")},
	})

	s, err := f.Sample(context.Background())
	if err != nil || s != want {
		t.Fatalf("first call: got %+v, %v", s, err)
	}
	for i := 0; i < 2; i++ {
		if _, err := f.Sample(context.Background()); err == nil {
			t.Errorf("call %d: expected repeated error", i+2)
		}
	}
	if f.Calls != 3 {
		t.Errorf("expected 3 calls, got %d", f.Calls)
	}

	if _, err := NewFakeProber(nil).Sample(context.Background()); err == nil {
		t.Error("expected error with no results")
	}
}
