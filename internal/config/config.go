package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level fleetmedic configuration.
type Config struct {
	Groups   map[string]Group `yaml:"groups"`
	Defaults Defaults         `yaml:"defaults"`
	Health   Health           `yaml:"health,omitempty"`
	Notify   Notify           `yaml:"notify,omitempty"`
	Batches  map[string]Batch `yaml:"batches,omitempty"`
}

// Group defines a named set of target hosts with optional overrides.
type Group struct {
	Hosts   []string `yaml:"hosts"`
	User    string   `yaml:"user,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

// Defaults holds default dispatch settings.
type Defaults struct {
	Concurrency int      `yaml:"concurrency"`
	Timeout     Duration `yaml:"timeout"`
	Output      string   `yaml:"output"` // "table" or "json"
}

// Health configures the remediation loop.
type Health struct {
	Interval Duration      `yaml:"interval,omitempty"`
	TickLog  string        `yaml:"ticklog,omitempty"`
	Checks   []CheckConfig `yaml:"checks,omitempty"`
}

// CheckConfig enables and tunes a single built-in health check.
// Options carries check-specific settings (thresholds, service names, paths).
type CheckConfig struct {
	Name    string            `yaml:"name"`
	Enabled *bool             `yaml:"enabled,omitempty"` // nil means enabled
	Options map[string]string `yaml:"options,omitempty"`
}

// IsEnabled reports whether the check should be registered.
func (c CheckConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Notify configures notification channels.
type Notify struct {
	Webhook WebhookConfig `yaml:"webhook,omitempty"`
	Log     bool          `yaml:"log,omitempty"`
}

// WebhookConfig holds settings for the webhook notification channel.
type WebhookConfig struct {
	URL     string            `yaml:"url,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// Batch defines a named ordered list of catalog actions.
type Batch struct {
	Description     string      `yaml:"description,omitempty"`
	ContinueOnError bool        `yaml:"continue_on_error,omitempty"`
	Steps           []BatchStep `yaml:"steps"`
}

// BatchStep is one action invocation within a batch, with optional parameters.
type BatchStep struct {
	Action string            `yaml:"action"`
	Params map[string]string `yaml:"params,omitempty"`
}

// UnmarshalYAML allows a step to be written either as a bare action id string
// or as a mapping with action and params.
func (s *BatchStep) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&s.Action)
	}
	type plain BatchStep
	return value.Decode((*plain)(s))
}

// Duration wraps time.Duration to support YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Groups: make(map[string]Group),
		Defaults: Defaults{
			Concurrency: 20,
			Timeout:     Duration{30 * time.Second},
			Output:      "table",
		},
		Health: Health{
			Interval: Duration{15 * time.Minute},
		},
	}
}

// DefaultConfigPath returns the default config file path.
// Respects $XDG_CONFIG_HOME if set, otherwise falls back to ~/.config.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir != "" {
		return filepath.Join(configDir, "fleetmedic", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "fleetmedic", "config.yaml")
}

// Load reads and parses a config YAML file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadDefault loads the config from the default path. If the file does not
// exist, it returns the default config.
func LoadDefault() (*Config, error) {
	path := DefaultConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Save writes the config to the given file path as YAML.
// It creates parent directories if they don't exist.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks the config for logical errors.
func (c *Config) Validate() error {
	if c.Defaults.Concurrency < 0 {
		return fmt.Errorf("concurrency must be non-negative, got %d", c.Defaults.Concurrency)
	}
	if c.Defaults.Timeout.Duration < 0 {
		return fmt.Errorf("default timeout must be non-negative, got %s", c.Defaults.Timeout)
	}

	validOutputModes := map[string]bool{"table": true, "json": true}
	if c.Defaults.Output != "" && !validOutputModes[c.Defaults.Output] {
		return fmt.Errorf("invalid output mode %q, must be one of: table, json", c.Defaults.Output)
	}

	for name, group := range c.Groups {
		if len(group.Hosts) == 0 {
			return fmt.Errorf("group %q has no hosts", name)
		}
		if group.Timeout.Duration < 0 {
			return fmt.Errorf("group %q has negative timeout: %s", name, group.Timeout)
		}
	}

	if c.Health.Interval.Duration < 0 {
		return fmt.Errorf("health interval must be non-negative, got %s", c.Health.Interval)
	}
	seenChecks := make(map[string]bool, len(c.Health.Checks))
	for i, check := range c.Health.Checks {
		if check.Name == "" {
			return fmt.Errorf("health check %d has no name", i)
		}
		if seenChecks[check.Name] {
			return fmt.Errorf("health check %q listed more than once", check.Name)
		}
		seenChecks[check.Name] = true
	}

	nameRe := regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	for name, batch := range c.Batches {
		if !nameRe.MatchString(name) {
			return fmt.Errorf("batch name %q must match [a-zA-Z0-9_-]+", name)
		}
		if len(batch.Steps) == 0 {
			return fmt.Errorf("batch %q has no steps", name)
		}
		for i, step := range batch.Steps {
			if step.Action == "" {
				return fmt.Errorf("batch %q step %d has no action", name, i)
			}
		}
	}

	return nil
}
