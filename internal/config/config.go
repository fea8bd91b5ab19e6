// Package config loads harness settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/lockstep/pkg/domain"
)

// Role selection values.
const (
	RoleBoth   = "both"
	RoleFirst  = "first"
	RoleSecond = "second"
)

// Config holds every setting the harness CLI understands.
type Config struct {
	Tool           string        `mapstructure:"tool"`
	ToolsFile      string        `mapstructure:"tools_file"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Stagger        time.Duration `mapstructure:"stagger"`
	Role           string        `mapstructure:"role"`
	RunID          string        `mapstructure:"run_id"`
	RedisURL       string        `mapstructure:"redis_url"`
	CombinedOutput bool          `mapstructure:"combined_output"`
	StatusAddr     string        `mapstructure:"status_addr"`
	MetricsFile    string        `mapstructure:"metrics_file"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
}

// Defaults returns the settings used when nothing else is configured.
func Defaults() Config {
	return Config{
		Tool:         "lock-test",
		Timeout:      60 * time.Second,
		PollInterval: time.Second,
		Stagger:      time.Second,
		Role:         RoleBoth,
		LogLevel:     "info",
		LogFormat:    "auto",
	}
}

// Load reads path on top of Defaults. An empty path or a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := Decode(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return cfg, nil
}

// Decode applies raw settings onto cfg. Durations accept strings such as "90s".
func Decode(raw map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           cfg,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// Validate rejects settings the harness cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Tool == "" {
		errs = append(errs, errors.New("tool must not be empty"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.Stagger < 0 {
		errs = append(errs, fmt.Errorf("stagger must not be negative, got %s", c.Stagger))
	}
	switch c.Role {
	case RoleBoth:
	case RoleFirst, RoleSecond:
		// Split roles run in separate harness processes and meet on Redis.
		if c.RedisURL == "" {
			errs = append(errs, fmt.Errorf("role %q requires redis_url", c.Role))
		}
		if c.RunID == "" {
			errs = append(errs, fmt.Errorf("role %q requires run_id", c.Role))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown role %q (want both, first or second)", c.Role))
	}
	return errors.Join(errs...)
}

// Roles maps the role selection to the driver roles to run.
func (c Config) Roles() []domain.Role {
	switch c.Role {
	case RoleFirst:
		return []domain.Role{domain.RoleFirstHolder}
	case RoleSecond:
		return []domain.Role{domain.RoleSecondContender}
	default:
		return []domain.Role{domain.RoleFirstHolder, domain.RoleSecondContender}
	}
}
