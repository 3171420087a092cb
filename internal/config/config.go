// Package config handles configuration loading and validation for the
// head unit service.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the complete service configuration.
type Config struct {
	// HTTP server for the browser UI.
	HTTP HTTPConfig `toml:"http"`

	// Phone (Bluetooth HFP) configuration.
	Phone PhoneConfig `toml:"phone"`

	// CarPlay engine process control.
	CarPlay CarPlayConfig `toml:"carplay"`

	// Music (MPD) configuration.
	Music MusicConfig `toml:"music"`

	// Map routing service.
	Maps MapsConfig `toml:"maps"`

	// Redis IPC with other on-car services.
	Redis RedisConfig `toml:"redis"`

	// Sensor board.
	Sense SenseConfig `toml:"sense"`

	// Vehicle GPIO lines.
	Hardware HardwareConfig `toml:"hardware"`
}

type HTTPConfig struct {
	// Listen is the address the UI server binds, e.g. "0.0.0.0:5000".
	Listen string `toml:"listen"`

	// StaticDir holds the browser UI assets.
	StaticDir string `toml:"static_dir"`
}

// HeldTimerPolicy values for PhoneConfig.HeldTimerPolicy.
const (
	HeldTimerContinue = "continue"
	HeldTimerPause    = "pause"
)

type PhoneConfig struct {
	// PollIntervalSec is the status poll fallback interval. The poll runs
	// alongside the D-Bus event channel as a backstop.
	PollIntervalSec int `toml:"poll_interval_sec"`

	// HeldTimerPolicy controls whether the call duration keeps counting
	// while a call is held: "continue" or "pause".
	HeldTimerPolicy string `toml:"held_timer_policy"`

	// CallLogPath is the SQLite call history database.
	CallLogPath string `toml:"call_log_path"`

	// RecentCallsLimit caps the recent-calls list in status payloads.
	RecentCallsLimit int `toml:"recent_calls_limit"`
}

type CarPlayConfig struct {
	// EngineDir is the FastCarPlay checkout; the executable is expected
	// at <EngineDir>/out/app and settings at <EngineDir>/conf/settings.txt.
	EngineDir string `toml:"engine_dir"`

	// KeyPipePath is the named pipe FastCarPlay reads key codes from.
	KeyPipePath string `toml:"key_pipe_path"`

	Width  int `toml:"width"`
	Height int `toml:"height"`
}

type MusicConfig struct {
	// MPDAddr is the MPD server address, e.g. "localhost:6600".
	MPDAddr string `toml:"mpd_addr"`
}

type MapsConfig struct {
	// OSRMBaseURL is an OSRM-compatible routing endpoint.
	OSRMBaseURL string `toml:"osrm_base_url"`

	// RequestTimeoutSec bounds each routing request.
	RequestTimeoutSec int `toml:"request_timeout_sec"`
}

type RedisConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// Enabled turns the Redis IPC bridge on. The head unit runs fine
	// without it.
	Enabled bool `toml:"enabled"`
}

type SenseConfig struct {
	// Simulate uses the simulated sensor driver instead of I2C hardware.
	Simulate bool `toml:"simulate"`

	// I2CBus is the periph bus name, e.g. "1".
	I2CBus string `toml:"i2c_bus"`

	// SampleIntervalSec is the sensor sampling period.
	SampleIntervalSec int `toml:"sample_interval_sec"`
}

type HardwareConfig struct {
	// Enabled turns the GPIO layer on (ignition/illumination/reverse).
	Enabled bool `toml:"enabled"`

	// Chip is the GPIO chip name, e.g. "gpiochip0".
	Chip string `toml:"chip"`

	IgnitionLine     int `toml:"ignition_line"`
	IlluminationLine int `toml:"illumination_line"`
	ReverseLine      int `toml:"reverse_line"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Listen:    "0.0.0.0:5000",
			StaticDir: "static",
		},
		Phone: PhoneConfig{
			PollIntervalSec:  5,
			HeldTimerPolicy:  HeldTimerContinue,
			CallLogPath:      "/var/lib/headunit/calls.db",
			RecentCallsLimit: 10,
		},
		CarPlay: CarPlayConfig{
			EngineDir:   "carplay_engine",
			KeyPipePath: "/tmp/fastcarplay_pipe",
			Width:       800,
			Height:      480,
		},
		Music: MusicConfig{
			MPDAddr: "localhost:6600",
		},
		Maps: MapsConfig{
			OSRMBaseURL:       "http://router.project-osrm.org",
			RequestTimeoutSec: 10,
		},
		Redis: RedisConfig{
			Host:    "127.0.0.1",
			Port:    6379,
			Enabled: true,
		},
		Sense: SenseConfig{
			Simulate:          false,
			I2CBus:            "1",
			SampleIntervalSec: 2,
		},
		Hardware: HardwareConfig{
			Enabled:          false,
			Chip:             "gpiochip0",
			IgnitionLine:     17,
			IlluminationLine: 27,
			ReverseLine:      22,
		},
	}
}

// Load reads a TOML config file over the defaults. A missing file is not
// an error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.HTTP.Listen == "" {
		return fmt.Errorf("http.listen must not be empty")
	}
	if c.Phone.PollIntervalSec <= 0 {
		return fmt.Errorf("phone.poll_interval_sec must be positive")
	}
	switch c.Phone.HeldTimerPolicy {
	case HeldTimerContinue, HeldTimerPause:
	default:
		return fmt.Errorf("phone.held_timer_policy must be %q or %q",
			HeldTimerContinue, HeldTimerPause)
	}
	if c.Phone.RecentCallsLimit <= 0 {
		return fmt.Errorf("phone.recent_calls_limit must be positive")
	}
	if c.Maps.RequestTimeoutSec <= 0 {
		return fmt.Errorf("maps.request_timeout_sec must be positive")
	}
	return nil
}

// PollInterval returns the phone poll period as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Phone.PollIntervalSec) * time.Second
}
