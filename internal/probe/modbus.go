package probe

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goburrow/modbus"

	"github.com/sweeney/logo-monitor/internal/logic"
)

// ModbusConfig describes where the LOGO! controller exposes power and grid status.
type ModbusConfig struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration

	// PowerRegister is a signed 16-bit holding register; kW = raw * PowerScale.
	PowerRegister uint16
	PowerScale    float64

	// StatusCoil is set while the plant reports being on the grid.
	StatusCoil uint16

	HealthyPowerKW float64

	// Now stamps samples; nil means time.Now.
	Now func() time.Time
}

// registerReader is the subset of modbus.Client the prober needs.
type registerReader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadCoils(address, quantity uint16) ([]byte, error)
}

// ModbusProber samples the plant over Modbus TCP.
// The handler connects lazily on the first request and reconnects after errors.
type ModbusProber struct {
	cfg     ModbusConfig
	handler *modbus.TCPClientHandler
	client  registerReader
	now     func() time.Time
}

// NewModbusProber creates a prober for the given endpoint. No connection is
// made until the first Sample call.
func NewModbusProber(cfg ModbusConfig) (*ModbusProber, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("probe modbus: endpoint required")
	}
	if cfg.PowerScale == 0 {
		return nil, errors.New("probe modbus: power scale must be non-zero")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID
	h.IdleTimeout = 2 * time.Minute

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &ModbusProber{
		cfg:     cfg,
		handler: h,
		client:  modbus.NewClient(h),
		now:     now,
	}, nil
}

// Sample reads power and grid status.
// A failed power read yields power -1, a failed status read yields FAULT.
// Only when both fail is an error returned.
func (p *ModbusProber) Sample(ctx context.Context) (logic.Sample, error) {
	if err := ctx.Err(); err != nil {
		return logic.Sample{}, err
	}

	power, powerErr := p.readPower()
	if err := ctx.Err(); err != nil {
		return logic.Sample{}, err
	}
	status, statusErr := p.readStatus()

	if powerErr != nil && statusErr != nil {
		return logic.Sample{}, fmt.Errorf("probe modbus: %w", errors.Join(powerErr, statusErr))
	}
	return newSample(p.now(), status, power, p.cfg.HealthyPowerKW), nil
}

func (p *ModbusProber) readPower() (float64, error) {
	b, err := p.client.ReadHoldingRegisters(p.cfg.PowerRegister, 1)
	if err != nil {
		return -1, fmt.Errorf("read power register %d: %w", p.cfg.PowerRegister, err)
	}
	if len(b) < 2 {
		return -1, fmt.Errorf("read power register %d: short payload (%d bytes)", p.cfg.PowerRegister, len(b))
	}
	raw := int16(binary.BigEndian.Uint16(b[0:2]))
	return roundKW(float64(raw) * p.cfg.PowerScale), nil
}

func (p *ModbusProber) readStatus() (logic.StatusLabel, error) {
	b, err := p.client.ReadCoils(p.cfg.StatusCoil, 1)
	if err != nil {
		return logic.StatusFault, fmt.Errorf("read status coil %d: %w", p.cfg.StatusCoil, err)
	}
	if len(b) < 1 {
		return logic.StatusFault, fmt.Errorf("read status coil %d: empty payload", p.cfg.StatusCoil)
	}
	if b[0]&0x01 != 0 {
		return logic.StatusOK, nil
	}
	return logic.StatusFault, nil
}

// Close closes the TCP connection.
func (p *ModbusProber) Close() error {
	if p == nil || p.handler == nil {
		return nil
	}
	return p.handler.Close()
}

// roundKW rounds to two decimals, the resolution the plant displays.
func roundKW(kw float64) float64 {
	return math.Round(kw*100) / 100
}
