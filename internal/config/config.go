// Package config loads the daemon configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // Pi images often ship without zoneinfo

	"gopkg.in/yaml.v3"

	"github.com/sweeney/logo-monitor/internal/logic"
)

// Environment variables that override the file.
const (
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvMQTTBroker    = "MQTT_BROKER"
	EnvRollbarToken  = "ROLLBAR_TOKEN"
	EnvLogoPassword  = "LOGO_PASSWORD"
)

// Probe kinds.
const (
	ProbeModbus  = "modbus"
	ProbeContact = "contact"
	ProbeWeb     = "web"
)

type Config struct {
	Engine      EngineConfig   `yaml:"engine"`
	Poll        PollConfig     `yaml:"poll"`
	Probe       ProbeConfig    `yaml:"probe"`
	Telegram    TelegramConfig `yaml:"telegram"`
	Store       StoreConfig    `yaml:"store"`
	MQTT        MQTTConfig     `yaml:"mqtt"`
	HTTP        HTTPConfig     `yaml:"http"`
	HeartbeatMs int            `yaml:"heartbeat_ms"`
	Timezone    string         `yaml:"timezone"`
	Log         LogConfig      `yaml:"log"`
	Rollbar     RollbarConfig  `yaml:"rollbar"`
}

// ---- ENGINE ----

type EngineConfig struct {
	MinHealthyWindowMs         int `yaml:"min_healthy_window_ms"`
	FaultConfirmationThreshold int `yaml:"fault_confirmation_threshold"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
	TimeoutMs  int `yaml:"timeout_ms"`
}

// ---- PROBE ----

type ProbeConfig struct {
	Kind           string        `yaml:"kind"`
	HealthyPowerKW float64       `yaml:"healthy_power_kw"`
	Modbus         ModbusConfig  `yaml:"modbus"`
	Contact        ContactConfig `yaml:"contact"`
	Web            WebConfig     `yaml:"web"`
}

type ModbusConfig struct {
	Endpoint      string  `yaml:"endpoint"`
	UnitID        uint8   `yaml:"unit_id"`
	PowerRegister uint16  `yaml:"power_register"`
	PowerScale    float64 `yaml:"power_scale"`
	StatusCoil    uint16  `yaml:"status_coil"`
}

// WebConfig points at the LOGO! built-in web server.
type WebConfig struct {
	LoginURL string `yaml:"login_url"` // e.g. http://192.168.0.3/
	Password string `yaml:"password"`
	PagePath string `yaml:"page_path"`
}

type ContactConfig struct {
	Chip      string `yaml:"chip"`
	Line      int    `yaml:"line"`
	ActiveLow bool   `yaml:"active_low"`
}

// ---- OUTPUTS ----

type TelegramConfig struct {
	Token             string `yaml:"token"`
	QueueSize         int    `yaml:"queue_size"`
	ConnectRetryMaxMs int    `yaml:"connect_retry_max_ms"` // cap between connect attempts
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type MQTTConfig struct {
	Broker     string `yaml:"broker"` // empty disables MQTT
	ClientID   string `yaml:"client_id"`
	BufferSize int    `yaml:"buffer_size"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the status server
}

// ---- AMBIENT ----

type LogConfig struct {
	File       string `yaml:"file"` // empty logs to stderr only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type RollbarConfig struct {
	Token       string `yaml:"token"`
	Environment string `yaml:"environment"`
}

// Default returns the configuration used for every field the file omits.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			MinHealthyWindowMs:         int(logic.DefaultMinHealthyWindow / time.Millisecond),
			FaultConfirmationThreshold: logic.DefaultFaultThreshold,
		},
		Poll: PollConfig{
			IntervalMs: 60000,
			TimeoutMs:  20000,
		},
		Probe: ProbeConfig{
			Kind:           ProbeModbus,
			HealthyPowerKW: 0.1,
			Modbus: ModbusConfig{
				UnitID:     1,
				PowerScale: 0.01,
			},
			Contact: ContactConfig{
				Chip: "gpiochip0",
				Line: 26,
			},
			Web: WebConfig{PagePath: "/logo_bm_01.shtm"},
		},
		Telegram: TelegramConfig{
			QueueSize:         32,
			ConnectRetryMaxMs: int((5 * time.Minute) / time.Millisecond),
		},
		Store:    StoreConfig{Path: "data/logo-monitor.db"},
		MQTT: MQTTConfig{
			ClientID:   "logo-monitor",
			BufferSize: 100,
		},
		HTTP:        HTTPConfig{Addr: ":8080"},
		HeartbeatMs: int((15 * time.Minute) / time.Millisecond),
		Timezone:    "Europe/Berlin",
		Log: LogConfig{
			MaxSizeMB:  20,
			MaxAgeDays: 3,
		},
		Rollbar: RollbarConfig{Environment: "production"},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvTelegramToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv(EnvMQTTBroker); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv(EnvRollbarToken); v != "" {
		cfg.Rollbar.Token = v
	}
	if v := os.Getenv(EnvLogoPassword); v != "" {
		cfg.Probe.Web.Password = v
	}
}

// EngineParams returns the hysteresis parameters.
func (c *Config) EngineParams() logic.Config {
	return logic.Config{
		MinHealthyWindow: time.Duration(c.Engine.MinHealthyWindowMs) * time.Millisecond,
		FaultThreshold:   c.Engine.FaultConfirmationThreshold,
	}
}

// PollInterval returns the sampling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalMs) * time.Millisecond
}

// ProbeTimeout returns the per-sample deadline.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Poll.TimeoutMs) * time.Millisecond
}

// Heartbeat returns the heartbeat interval; zero disables it.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatMs) * time.Millisecond
}

// TelegramRetryMax returns the longest wait between Bot API connect attempts.
func (c *Config) TelegramRetryMax() time.Duration {
	return time.Duration(c.Telegram.ConnectRetryMaxMs) * time.Millisecond
}

// Location resolves the configured timezone for report timestamps.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

var errNoToken = errors.New("config: telegram token required (set " + EnvTelegramToken + ")")
