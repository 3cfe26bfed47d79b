// Package config loads the agent-level YAML configuration: where sensor
// JSON files live, how the trap listener binds, how output is written, and
// at what level the agent logs. Per-sensor monitor definitions are JSON
// (internal/monitor); this package owns only the surrounding process
// configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved agent configuration, produced by Load from the raw
// YAML shape (rawConfig) with defaults applied.
type Config struct {
	// SensorDir is a directory of *.json sensor configuration files,
	// each parsed by internal/monitor.ParseSensor.
	SensorDir string

	// PollInterval is how often each sensor's pass runs.
	PollInterval time.Duration

	// Workers bounds the sensor worker pool size; 0 defaults to the
	// number of configured sensors (applied by cmd/monitoragent;
	// internal/engine.NewPool itself falls back to 16).
	Workers int

	Trap    TrapConfig
	Output  OutputConfig
	Metrics MetricsConfig

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string
}

// rawConfig mirrors the on-disk YAML shape. Intervals are plain integers in
// seconds; Load resolves them into durations.
type rawConfig struct {
	SensorDir    string        `yaml:"sensor_dir"`
	PollInterval int           `yaml:"poll_interval"`
	Workers      int           `yaml:"workers"`
	Trap         TrapConfig    `yaml:"trap"`
	Output       OutputConfig  `yaml:"output"`
	Metrics      MetricsConfig `yaml:"metrics"`
	LogLevel     string        `yaml:"log_level"`
}

// TrapConfig configures the SNMP trap listener.
type TrapConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ListenAddr  string `yaml:"listen_addr"`
	Community   string `yaml:"community"`
	SNMPVersion string `yaml:"snmp_version"`
}

// OutputConfig configures the downstream sink, realized as the file
// transport unless Stdout is set.
type OutputConfig struct {
	// Stdout, when true, writes records to stdout instead of a file.
	Stdout bool `yaml:"stdout"`

	// Split, when true, routes records carrying an "if_index" key to
	// TrapFile and every other record to MetricFile
	// (internal/transport.NewSplit); trap records without an ifIndex
	// varbind therefore land in MetricFile.
	Split bool `yaml:"split"`

	MetricFile string `yaml:"metric_file"`
	TrapFile   string `yaml:"trap_file"`

	MaxBytes   int64 `yaml:"max_bytes"`
	MaxBackups int   `yaml:"max_backups"`
}

// MetricsConfig configures the operational /metrics and /healthz endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// defaults applies documented fallbacks for every field left unset.
func (c *Config) defaults() {
	if c.SensorDir == "" {
		c.SensorDir = "/etc/monitoragent/sensors"
	}
	if c.PollInterval == 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.Trap.ListenAddr == "" {
		c.Trap.ListenAddr = "0.0.0.0:162"
	}
	if c.Trap.SNMPVersion == "" {
		c.Trap.SNMPVersion = "2c"
	}
	if c.Output.MetricFile == "" {
		c.Output.MetricFile = "monitoragent_metrics.json"
	}
	if c.Output.TrapFile == "" {
		c.Output.TrapFile = "monitoragent_traps.json"
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = "0.0.0.0:9116"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Load reads and parses the YAML file at path, applying defaults to any
// field left unset.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var raw rawConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false) // be lenient: extra keys are fine
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	c := &Config{
		SensorDir:    raw.SensorDir,
		PollInterval: time.Duration(raw.PollInterval) * time.Second,
		Workers:      raw.Workers,
		Trap:         raw.Trap,
		Output:       raw.Output,
		Metrics:      raw.Metrics,
		LogLevel:     raw.LogLevel,
	}
	c.defaults()
	return c, nil
}
