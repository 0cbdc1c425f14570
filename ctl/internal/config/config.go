package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultFile     = ".railyardctl.yaml"
	DefaultEndpoint = "http://localhost:8080"
	DefaultHeader   = "x-api-key"
)

// ErrUnknownTarget is returned by Target for names not in the file.
var ErrUnknownTarget = errors.New("config: unknown target")

// Config is the CLI configuration.
type Config struct {
	// Timeout bounds every request.
	Timeout time.Duration `yaml:"timeout"`

	// Targets are the servers the CLI knows by name. The first one is the
	// default.
	Targets []Target `yaml:"targets"`
}

// Target is one railyard-server.
type Target struct {
	Name     string     `yaml:"name"`
	Endpoint string     `yaml:"endpoint"`
	Auth     AuthConfig `yaml:"auth"`
}

// AuthConfig specifies how to authenticate to a target.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultHeader
}

// DefaultPath is ~/.railyardctl.yaml, or the bare file name when the home
// directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultFile
	}
	return filepath.Join(home, DefaultFile)
}

// Load reads and parses the YAML config file at path. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Target returns the named target, or the first one when name is empty.
// With no targets configured it falls back to DefaultEndpoint.
func (c *Config) Target(name string) (Target, error) {
	if name == "" {
		if len(c.Targets) == 0 {
			return Target{Name: "default", Endpoint: DefaultEndpoint}, nil
		}
		return c.Targets[0], nil
	}
	for _, t := range c.Targets {
		if t.Name == name {
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("%w %q", ErrUnknownTarget, name)
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{Timeout: DefaultTimeout}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	seen := make(map[string]bool, len(cfg.Targets))
	for i, t := range cfg.Targets {
		if t.Name == "" {
			return fmt.Errorf("targets[%d]: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("targets[%d]: duplicate name %q", i, t.Name)
		}
		seen[t.Name] = true
		if t.Endpoint == "" {
			return fmt.Errorf("targets[%d] %q: endpoint is required", i, t.Name)
		}
		u, err := url.Parse(t.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("targets[%d] %q: endpoint %q must be an http(s) URL", i, t.Name, t.Endpoint)
		}
		switch t.Auth.Mode {
		case "apikey", "none", "":
		default:
			return fmt.Errorf("targets[%d] %q: unknown auth mode %q", i, t.Name, t.Auth.Mode)
		}
		if t.Auth.Mode == "apikey" && t.Auth.KeyEnv == "" {
			return fmt.Errorf("targets[%d] %q: auth.key_env is required for apikey", i, t.Name)
		}
	}
	return nil
}
