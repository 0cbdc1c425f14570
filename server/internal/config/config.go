package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NotifyConfig holds webhook delivery targets for yard events.
type NotifyConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultHTTPPort       = 8080
	DefaultDataDir        = "/var/lib/railyard"
	DefaultLogLevel       = "info"
	DefaultMaxRecords     = 500
	DefaultStreamInterval = 5 * time.Second
	DefaultResetWait      = 3 * time.Second
	DefaultBackend        = "periph"
	DefaultInterface      = "wlan0"
	DefaultScanTTL        = 30 * time.Second
	DefaultBlink          = 100 * time.Millisecond
	DefaultSafeShutdown   = 4 * time.Second
	DefaultActionPeriod   = 2 * time.Second
	DefaultStepDelay      = 66 * time.Millisecond
	DefaultMotorRun       = time.Second
	DefaultOTABaseURL     = "https://raw.githubusercontent.com"
	DefaultOTAUser        = "railyard"
	DefaultOTARepo        = "railyard-release"
	DefaultOTAVersion     = "main"
	DefaultOTAManifest    = "version.json"
	DefaultOTAInstallDir  = "/opt/railyard"
	maxGPIO               = 63
)

// Config holds the controller configuration parsed from config.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Hardware HardwareConfig `yaml:"hardware"`
	Network  NetworkConfig  `yaml:"network"`
	OTA      OTAConfig      `yaml:"ota"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// ServerConfig holds the HTTP surface and storage settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket stream listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// DataDir holds profiles/, secrets/ and the event log database.
	DataDir string `yaml:"data_dir"`

	// Auth configures how the server authenticates REST clients.
	Auth AuthConfig `yaml:"auth"`

	Log LogConfig `yaml:"log"`

	Stream StreamConfig `yaml:"stream"`

	// ResetWait is how long reset and update wait before the process exits.
	ResetWait time.Duration `yaml:"reset_wait"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// LogConfig controls the process log and the request event log.
type LogConfig struct {
	// Level is one of: debug | info | warn | error. Reloaded on change.
	Level string `yaml:"level"`

	// MaxRecords bounds the event log served by GET /log. 0 keeps everything.
	MaxRecords int `yaml:"max_records"`
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("server.log.level %q unknown: want debug|info|warn|error", l.Level)
	}
	return lvl, nil
}

// StreamConfig controls the WebSocket device stream.
type StreamConfig struct {
	// Interval between unsolicited snapshots (default 5s).
	Interval time.Duration `yaml:"interval"`
}

// HardwareConfig selects the GPIO backend and the device layout.
type HardwareConfig struct {
	// Backend is one of: periph | sim.
	Backend string `yaml:"backend"`

	// Pins are the GPIOs devices may use (default 0..28).
	Pins []int `yaml:"pins"`

	// StatusLEDPin lights while a request is served. -1 disables it.
	StatusLEDPin int `yaml:"status_led_pin"`

	// DefaultDevices is the boot layout when no favorite profile loads.
	// Omit it for thirteen relay switches on every pin pair.
	DefaultDevices []DevicePlacement `yaml:"default_devices"`

	Timing TimingConfig `yaml:"timing"`
}

// DevicePlacement is one device of the default layout.
type DevicePlacement struct {
	Pins string `yaml:"pins"`
	Type string `yaml:"type"`
}

// TimingConfig groups the hardware delays.
type TimingConfig struct {
	Blink        time.Duration `yaml:"blink"`
	SafeShutdown time.Duration `yaml:"safe_shutdown"`
	ActionPeriod time.Duration `yaml:"action_period"`
	StepDelay    time.Duration `yaml:"step_delay"`
	MotorRun     time.Duration `yaml:"motor_run"`
}

// NetworkConfig names the wireless interface to report and scan on.
type NetworkConfig struct {
	Interface string        `yaml:"interface"`
	ScanTTL   time.Duration `yaml:"scan_ttl"`
}

// OTAConfig controls over-the-air updates from a GitHub repository.
type OTAConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	User       string `yaml:"user"`
	Repo       string `yaml:"repo"`
	Version    string `yaml:"version"`
	Manifest   string `yaml:"manifest"`
	InstallDir string `yaml:"install_dir"`
}

// ProfileDir is where saved layouts live.
func (c *Config) ProfileDir() string { return filepath.Join(c.Server.DataDir, "profiles") }

// EventLogPath is the SQLite file behind GET /log.
func (c *Config) EventLogPath() string { return filepath.Join(c.Server.DataDir, "log.db") }

// Load reads and parses the config file at path.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML config data. An empty document yields the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config { return defaults() }

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	pins := make([]int, 29)
	for i := range pins {
		pins[i] = i
	}
	return &Config{
		Server: ServerConfig{
			HTTPPort:  DefaultHTTPPort,
			DataDir:   DefaultDataDir,
			Log:       LogConfig{Level: DefaultLogLevel, MaxRecords: DefaultMaxRecords},
			Stream:    StreamConfig{Interval: DefaultStreamInterval},
			ResetWait: DefaultResetWait,
		},
		Hardware: HardwareConfig{
			Backend:      DefaultBackend,
			Pins:         pins,
			StatusLEDPin: -1,
			Timing: TimingConfig{
				Blink:        DefaultBlink,
				SafeShutdown: DefaultSafeShutdown,
				ActionPeriod: DefaultActionPeriod,
				StepDelay:    DefaultStepDelay,
				MotorRun:     DefaultMotorRun,
			},
		},
		Network: NetworkConfig{
			Interface: DefaultInterface,
			ScanTTL:   DefaultScanTTL,
		},
		OTA: OTAConfig{
			BaseURL:    DefaultOTABaseURL,
			User:       DefaultOTAUser,
			Repo:       DefaultOTARepo,
			Version:    DefaultOTAVersion,
			Manifest:   DefaultOTAManifest,
			InstallDir: DefaultOTAInstallDir,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.DataDir == "" {
		return fmt.Errorf("server.data_dir must not be empty")
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Auth.Mode == "apikey" && s.Auth.KeyEnv == "" {
		return fmt.Errorf("server.auth.key_env is required when mode is apikey")
	}
	if _, err := s.Log.SlogLevel(); err != nil {
		return err
	}
	if s.Log.MaxRecords < 0 {
		return fmt.Errorf("server.log.max_records must not be negative")
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}
	if s.ResetWait < 0 {
		return fmt.Errorf("server.reset_wait must not be negative")
	}

	h := cfg.Hardware
	switch h.Backend {
	case "periph", "sim":
	default:
		return fmt.Errorf("hardware.backend %q unknown: want periph|sim", h.Backend)
	}
	if len(h.Pins) == 0 {
		return fmt.Errorf("hardware.pins must not be empty")
	}
	seen := make(map[int]bool, len(h.Pins))
	for _, p := range h.Pins {
		if p < 0 || p > maxGPIO {
			return fmt.Errorf("hardware.pins: %d is out of range [0, %d]", p, maxGPIO)
		}
		if seen[p] {
			return fmt.Errorf("hardware.pins: %d listed twice", p)
		}
		seen[p] = true
	}
	if h.StatusLEDPin < -1 || h.StatusLEDPin > maxGPIO {
		return fmt.Errorf("hardware.status_led_pin %d is out of range [-1, %d]", h.StatusLEDPin, maxGPIO)
	}
	if seen[h.StatusLEDPin] {
		return fmt.Errorf("hardware.status_led_pin %d is also a device pin", h.StatusLEDPin)
	}
	for i, d := range h.DefaultDevices {
		if d.Pins == "" || d.Type == "" {
			return fmt.Errorf("hardware.default_devices[%d]: pins and type are required", i)
		}
	}
	t := h.Timing
	for name, d := range map[string]time.Duration{
		"blink":         t.Blink,
		"safe_shutdown": t.SafeShutdown,
		"action_period": t.ActionPeriod,
		"step_delay":    t.StepDelay,
		"motor_run":     t.MotorRun,
	} {
		if d < 0 {
			return fmt.Errorf("hardware.timing.%s must not be negative", name)
		}
	}

	if cfg.Network.ScanTTL < 0 {
		return fmt.Errorf("network.scan_ttl must not be negative")
	}

	if cfg.OTA.Enabled {
		o := cfg.OTA
		if o.BaseURL == "" || o.User == "" || o.Repo == "" || o.Version == "" {
			return fmt.Errorf("ota: base_url, user, repo and version are required when enabled")
		}
		if o.InstallDir == "" || o.Manifest == "" {
			return fmt.Errorf("ota: install_dir and manifest are required when enabled")
		}
	}

	for i, w := range cfg.Notify.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("notify.webhooks[%d].type %q unknown: want slack|teams|http", i, w.Type)
		}
	}
	return nil
}
