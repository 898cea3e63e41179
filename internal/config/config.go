package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/autosave/internal/core/observability/log"
)

// EnvPrefix prefixes every environment override, e.g. AUTOSAVE_LOG_LEVEL.
const EnvPrefix = "AUTOSAVE_"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the service configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" envPrefix:"LOG_"`
	Autosave   AutosaveConfig   `yaml:"autosave" envPrefix:"SAVE_"`
	Monitor    MonitorConfig    `yaml:"monitor" envPrefix:"MONITOR_"`
	Simulation SimulationConfig `yaml:"simulation" envPrefix:"SIM_"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
}

type AutosaveConfig struct {
	Interval   time.Duration `yaml:"interval" env:"INTERVAL"`
	Path       string        `yaml:"path" env:"PATH"`
	KeepBackup bool          `yaml:"keep_backup" env:"KEEP_BACKUP"`
	SaveOnStop bool          `yaml:"save_on_stop" env:"ON_STOP"`
}

type MonitorConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Addr    string `yaml:"addr" env:"ADDR"`
}

type SimulationConfig struct {
	Tick     time.Duration `yaml:"tick" env:"TICK"`
	Entities int           `yaml:"entities" env:"ENTITIES"`
	Seed     int64         `yaml:"seed" env:"SEED"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Autosave: AutosaveConfig{
			Interval:   30 * time.Second,
			Path:       "data/world.yaml",
			KeepBackup: true,
			SaveOnStop: true,
		},
		Monitor: MonitorConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8089",
		},
		Simulation: SimulationConfig{
			Tick:     50 * time.Millisecond,
			Entities: 1000,
			Seed:     1,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer func() { _ = f.Close() }()

		if err = decodeYAML(f, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, cfg.Validate()
}

// LoadYAML decodes r over the defaults without consulting the environment.
func LoadYAML(r io.Reader) (Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Autosave.Interval <= 0 {
		return fmt.Errorf("%w: autosave interval must be positive", ErrInvalidConfig)
	}
	if c.Autosave.Path == "" {
		return fmt.Errorf("%w: autosave path is required", ErrInvalidConfig)
	}
	if c.Monitor.Enabled && c.Monitor.Addr == "" {
		return fmt.Errorf("%w: monitor address is required", ErrInvalidConfig)
	}
	if c.Simulation.Tick <= 0 {
		return fmt.Errorf("%w: simulation tick must be positive", ErrInvalidConfig)
	}
	if c.Simulation.Entities < 0 {
		return fmt.Errorf("%w: simulation entities must not be negative", ErrInvalidConfig)
	}
	return nil
}

// LogLevel returns the parsed log level. Call it on a validated config.
func (c Config) LogLevel() log.Level {
	level, _ := log.ParseLevel(c.Log.Level)
	return level
}
