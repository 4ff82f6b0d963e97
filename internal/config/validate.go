package config

import (
	"errors"
	"fmt"
)

// Validate checks configuration correctness.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}

	if err := cfg.EngineParams().Validate(); err != nil {
		return fmt.Errorf("config engine: %w", err)
	}

	if cfg.Poll.IntervalMs <= 0 {
		return errors.New("config poll: interval_ms must be > 0")
	}
	if cfg.Poll.TimeoutMs <= 0 {
		return errors.New("config poll: timeout_ms must be > 0")
	}
	if cfg.Poll.TimeoutMs > cfg.Poll.IntervalMs {
		return fmt.Errorf("config poll: timeout_ms (%d) must not exceed interval_ms (%d)", cfg.Poll.TimeoutMs, cfg.Poll.IntervalMs)
	}

	switch cfg.Probe.Kind {
	case ProbeModbus:
		if cfg.Probe.Modbus.Endpoint == "" {
			return errors.New("config probe: modbus.endpoint required")
		}
		if cfg.Probe.Modbus.PowerScale == 0 {
			return errors.New("config probe: modbus.power_scale must be non-zero")
		}
	case ProbeContact:
		if cfg.Probe.Contact.Chip == "" {
			return errors.New("config probe: contact.chip required")
		}
		if cfg.Probe.Contact.Line < 0 {
			return fmt.Errorf("config probe: contact.line %d invalid", cfg.Probe.Contact.Line)
		}
	case ProbeWeb:
		if cfg.Probe.Web.LoginURL == "" {
			return errors.New("config probe: web.login_url required")
		}
		if cfg.Probe.Web.Password == "" {
			return errors.New("config probe: web.password required (set " + EnvLogoPassword + ")")
		}
	default:
		return fmt.Errorf("config probe: unknown kind %q (want %q, %q or %q)", cfg.Probe.Kind, ProbeModbus, ProbeContact, ProbeWeb)
	}
	if cfg.Probe.HealthyPowerKW < 0 {
		return errors.New("config probe: healthy_power_kw must be >= 0")
	}

	if cfg.Telegram.Token == "" {
		return errNoToken
	}
	if cfg.Telegram.QueueSize <= 0 {
		return errors.New("config telegram: queue_size must be > 0")
	}
	if cfg.Telegram.ConnectRetryMaxMs <= 0 {
		return errors.New("config telegram: connect_retry_max_ms must be > 0")
	}

	if cfg.Store.Path == "" {
		return errors.New("config store: path required")
	}

	if cfg.MQTT.Broker != "" && cfg.MQTT.BufferSize <= 0 {
		return errors.New("config mqtt: buffer_size must be > 0")
	}

	if cfg.HeartbeatMs < 0 {
		return errors.New("config: heartbeat_ms must be >= 0")
	}

	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if cfg.Log.File != "" && (cfg.Log.MaxSizeMB <= 0 || cfg.Log.MaxAgeDays <= 0) {
		return errors.New("config log: max_size_mb and max_age_days must be > 0")
	}

	return nil
}
