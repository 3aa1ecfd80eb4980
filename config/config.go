// Package config loads factory defaults and condition profiles from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/aponysus/simplecall/call"
	"github.com/aponysus/simplecall/circuit"
	"github.com/aponysus/simplecall/classify"
)

// Environment variables that override file values.
const (
	EnvLogLevel       = "SIMPLECALL_LOG_LEVEL"
	EnvMaxConcurrency = "SIMPLECALL_MAX_CONCURRENCY"
)

// Config is the file representation of factory defaults.
type Config struct {
	// Conditions is the default condition set of every handle.
	Conditions []classify.Condition `yaml:"conditions"`
	// Profiles are registered next to the builtin profiles and may override them.
	Profiles       map[string][]classify.Condition `yaml:"profiles"`
	MaxConcurrency int                             `yaml:"max_concurrency"`
	RecoverPanics  bool                            `yaml:"recover_panics"`
	// LogLevel is a zap level name. Empty disables logging.
	LogLevel string `yaml:"log_level"`
	// Development selects zap's development logger instead of production.
	Development bool           `yaml:"development"`
	Circuit     circuit.Config `yaml:"circuit"`
}

// Load reads and parses the file at path, then applies environment overrides.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("simplecall: read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, err
	}
	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes YAML. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("simplecall: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overrides cfg from the process environment.
func ApplyEnvOverrides(cfg *Config) error {
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		cfg.LogLevel = level
	}

	raw := strings.TrimSpace(os.Getenv(EnvMaxConcurrency))
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("simplecall: invalid %s %q: %w", EnvMaxConcurrency, raw, err)
	}
	cfg.MaxConcurrency = n
	return nil
}

// Validate reports the first invalid value.
func (c Config) Validate() error {
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("simplecall: max_concurrency must be >= 0, got %d", c.MaxConcurrency)
	}
	if c.Circuit.Threshold < 0 {
		return fmt.Errorf("simplecall: circuit.threshold must be >= 0, got %d", c.Circuit.Threshold)
	}
	if c.Circuit.Cooldown < 0 {
		return fmt.Errorf("simplecall: circuit.cooldown must be >= 0, got %s", c.Circuit.Cooldown)
	}
	for name := range c.Profiles {
		if strings.TrimSpace(name) == "" {
			return errors.New("simplecall: profile name must not be empty")
		}
	}
	if strings.TrimSpace(c.LogLevel) != "" {
		var lvl zapcore.Level
		if err := lvl.Set(c.LogLevel); err != nil {
			return fmt.Errorf("simplecall: invalid log_level %q: %w", c.LogLevel, err)
		}
	}
	return nil
}

// Logger builds a zap logger for LogLevel. An empty level yields a no-op logger.
func (c Config) Logger() (*zap.Logger, error) {
	if strings.TrimSpace(c.LogLevel) == "" {
		return zap.NewNop(), nil
	}

	var lvl zapcore.Level
	if err := lvl.Set(c.LogLevel); err != nil {
		return nil, fmt.Errorf("simplecall: invalid log_level %q: %w", c.LogLevel, err)
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("simplecall: build logger: %w", err)
	}
	return logger, nil
}

// ProfileRegistry returns the builtin profiles plus the configured ones.
func (c Config) ProfileRegistry() *classify.Registry {
	reg := classify.NewRegistry()
	classify.RegisterBuiltins(reg)
	for name, conds := range c.Profiles {
		reg.Register(name, classify.NewConditionSet(conds...))
	}
	return reg
}

// FactoryOptions converts the config into factory options using logger.
func (c Config) FactoryOptions(logger *zap.Logger) call.FactoryOptions {
	opts := call.FactoryOptions{
		Conditions:     classify.NewConditionSet(c.Conditions...),
		Profiles:       c.ProfileRegistry(),
		Logger:         logger,
		MaxConcurrency: c.MaxConcurrency,
		RecoverPanics:  c.RecoverPanics,
	}
	if c.Circuit.Enabled {
		opts.Breakers = circuit.NewRegistry(c.Circuit)
	}
	return opts
}

// NewFactory builds the logger and a factory from the config. Extra options
// are applied on top, so callers can add a dispatcher or an observer.
func (c Config) NewFactory(extra ...call.FactoryOption) (*call.Factory, error) {
	logger, err := c.Logger()
	if err != nil {
		return nil, err
	}
	opts := c.FactoryOptions(logger)
	for _, opt := range extra {
		if opt != nil {
			opt(&opts)
		}
	}
	return call.NewFactoryFromOptions(opts), nil
}
