// ABOUTME: Configuration loading and parsing for dbgate.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete dbgate configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Logging   LoggingConfig    `yaml:"logging"`
	Auth      AuthConfig       `yaml:"auth"`
	Confirm   ConfirmConfig    `yaml:"confirm"`
	Resources []ResourceConfig `yaml:"resources"`
}

// ServerConfig holds server address configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig holds authentication configuration for the MCP endpoint.
type AuthConfig struct {
	RequireAuth bool          `yaml:"require_auth"`
	JWTSecret   string        `yaml:"jwt_secret"`
	Tokens      []TokenConfig `yaml:"tokens"`
}

// TokenConfig is a static access token with its capabilities.
type TokenConfig struct {
	Token        string   `yaml:"token"`
	Capabilities []string `yaml:"capabilities"`
}

// ConfirmConfig selects the interactive confirmation policy for mutating
// statements. Mode "off" disables prompting (the allow_writes flag alone
// authorizes writes), "prompt" asks the operator terminal, "allow" and
// "deny" answer every prompt statically.
type ConfirmConfig struct {
	Mode    string        `yaml:"mode"`
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// ResourceConfig declares one named database resource.
type ResourceConfig struct {
	Name        string `yaml:"name"`
	Driver      string `yaml:"driver"` // "sqlite" or "postgres"
	DSN         string `yaml:"dsn"`
	AllowWrites bool   `yaml:"allow_writes"`
	Enabled     *bool  `yaml:"enabled"` // nil means enabled
}

// IsEnabled reports whether the resource should be activated at startup.
// Resources are enabled unless explicitly disabled.
func (r ResourceConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch c.Confirm.Mode {
	case "", "off", "prompt", "allow", "deny":
	default:
		return fmt.Errorf("confirm.mode must be one of off, prompt, allow, deny (got %q)", c.Confirm.Mode)
	}

	if c.Auth.RequireAuth && c.Auth.JWTSecret == "" && len(c.Auth.Tokens) == 0 {
		return fmt.Errorf("auth.jwt_secret or auth.tokens is required when auth.require_auth is set")
	}

	seen := make(map[string]bool, len(c.Resources))
	for i, r := range c.Resources {
		if r.Name == "" {
			return fmt.Errorf("resources[%d].name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("resources[%d]: duplicate resource name %q", i, r.Name)
		}
		seen[r.Name] = true

		switch r.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("resources[%d]: unknown driver %q (want sqlite or postgres)", i, r.Driver)
		}
		if r.DSN == "" {
			return fmt.Errorf("resources[%d].dsn is required", i)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	if cfg.Confirm.TimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Confirm.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing confirm.timeout %q: %w", cfg.Confirm.TimeoutRaw, err)
		}
		cfg.Confirm.Timeout = d
	}
	return nil
}
