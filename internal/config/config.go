// Package config loads the rendertask YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Swind/render-task-runner/core"
	yaml "github.com/goccy/go-yaml"
	"github.com/rs/zerolog"
)

// Config mirrors rendertask.yaml
type Config struct {
	Runner   RunnerSection   `yaml:"runner"`
	Simulate SimulateSection `yaml:"simulate"`
	Metrics  MetricsSection  `yaml:"metrics"`
	Log      LogSection      `yaml:"log"`
}

type RunnerSection struct {
	Name            string `yaml:"name"`             // "render" (by default)
	HistoryCapacity int    `yaml:"history_capacity"` // 100 (by default)
	MaxGPUDeferred  int    `yaml:"max_gpu_deferred"` // 16 (by default)
	LenientAffinity bool   `yaml:"lenient_affinity"`
}

type SimulateSection struct {
	Producers        int     `yaml:"producers"`          // 4 (by default)
	TasksPerProducer int     `yaml:"tasks_per_producer"` // 250 (by default)
	ToggleIntervalMS int     `yaml:"toggle_interval_ms"` // 20 (by default)
	TaskCostUS       int     `yaml:"task_cost_us"`       // 200 (by default)
	GPUTaskRatio     float64 `yaml:"gpu_task_ratio"`     // 0.25 (by default)
}

type MetricsSection struct {
	Addr      string `yaml:"addr"` // empty = disabled
	Namespace string `yaml:"namespace"`
}

type LogSection struct {
	Level string `yaml:"level"` // "info" (by default)
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Runner: RunnerSection{
			Name:            "render",
			HistoryCapacity: 100,
			MaxGPUDeferred:  16,
		},
		Simulate: SimulateSection{
			Producers:        4,
			TasksPerProducer: 250,
			ToggleIntervalMS: 20,
			TaskCostUS:       200,
			GPUTaskRatio:     0.25,
		},
		Metrics: MetricsSection{
			Namespace: "rendertask",
		},
		Log: LogSection{
			Level: "info",
		},
	}
}

// Load reads YAML and overrides defaults. An empty path or a missing file
// yields the defaults; a file that exists but cannot be read or parsed is an
// error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return Default(), fmt.Errorf("config %s: log.level: %w", path, err)
	}

	cfg.clamp()
	return cfg, nil
}

// sanity clamps
func (c *Config) clamp() {
	def := Default()
	if c.Runner.Name == "" {
		c.Runner.Name = def.Runner.Name
	}
	if c.Runner.HistoryCapacity <= 0 {
		c.Runner.HistoryCapacity = def.Runner.HistoryCapacity
	}
	if c.Runner.MaxGPUDeferred <= 0 {
		c.Runner.MaxGPUDeferred = def.Runner.MaxGPUDeferred
	}
	if c.Simulate.Producers <= 0 {
		c.Simulate.Producers = def.Simulate.Producers
	}
	if c.Simulate.TasksPerProducer <= 0 {
		c.Simulate.TasksPerProducer = def.Simulate.TasksPerProducer
	}
	if c.Simulate.ToggleIntervalMS <= 0 {
		c.Simulate.ToggleIntervalMS = def.Simulate.ToggleIntervalMS
	}
	if c.Simulate.TaskCostUS < 0 {
		c.Simulate.TaskCostUS = 0
	}
	if c.Simulate.GPUTaskRatio < 0 {
		c.Simulate.GPUTaskRatio = 0
	}
	if c.Simulate.GPUTaskRatio > 1 {
		c.Simulate.GPUTaskRatio = 1
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = def.Metrics.Namespace
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// ToggleInterval is Simulate.ToggleIntervalMS as a duration.
func (c Config) ToggleInterval() time.Duration {
	return time.Duration(c.Simulate.ToggleIntervalMS) * time.Millisecond
}

// TaskCost is Simulate.TaskCostUS as a duration.
func (c Config) TaskCost() time.Duration {
	return time.Duration(c.Simulate.TaskCostUS) * time.Microsecond
}

// LogLevel returns the parsed log level, falling back to info.
func (c Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// RunnerConfig builds a core.RunnerConfig from the runner section.
// Handlers left nil are filled in by the runner.
func (c Config) RunnerConfig(logger core.Logger, metrics core.Metrics) *core.RunnerConfig {
	return &core.RunnerConfig{
		Name:            c.Runner.Name,
		Logger:          logger,
		Metrics:         metrics,
		HistoryCapacity: c.Runner.HistoryCapacity,
		MaxGPUDeferred:  c.Runner.MaxGPUDeferred,
		LenientAffinity: c.Runner.LenientAffinity,
	}
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
