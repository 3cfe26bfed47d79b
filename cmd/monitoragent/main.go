// Command monitoragent is the monitor evaluation engine binary: it loads
// sensor configuration from a directory, runs each sensor's periodic pass
// against a worker pool, listens for SNMP traps, and publishes the
// resulting measurement records to a downstream sink.
//
// Usage:
//
//	monitoragent run --config /etc/monitoragent/agent.yaml
//	monitoragent validate-config --config /etc/monitoragent/agent.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nkazuki-labs/monitor-agent/internal/config"
	"github.com/nkazuki-labs/monitor-agent/internal/emit"
	"github.com/nkazuki-labs/monitor-agent/internal/engine"
	"github.com/nkazuki-labs/monitor-agent/internal/metrics"
	"github.com/nkazuki-labs/monitor-agent/internal/monitor"
	"github.com/nkazuki-labs/monitor-agent/internal/resolve"
	"github.com/nkazuki-labs/monitor-agent/internal/transport"
	"github.com/nkazuki-labs/monitor-agent/internal/trapd"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "monitoragent: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	root := &cobra.Command{
		Use:   "monitoragent",
		Short: "Monitor evaluation engine: SNMP/shell probes, expression evaluation, trap listener",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/monitoragent/agent.yaml", "Path to the agent YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log.level", "", "Override the config file's log level: debug, info, warn, error")

	root.AddCommand(newRunCmd(&configPath, &logLevel))
	root.AddCommand(newValidateConfigCmd(&configPath))
	return root
}

// newValidateConfigCmd parses every sensor file under the configured
// SensorDir and reports config errors without starting the agent.
func newValidateConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Parse every sensor file and report config errors, without starting the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			sensors, errs := loadSensors(cfg.SensorDir, nil)
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "invalid: %v\n", e)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d sensor(s) valid, %d rejected\n", len(sensors), len(errs))
			if len(errs) > 0 {
				return fmt.Errorf("validate-config: %d sensor(s) rejected", len(errs))
			}
			return nil
		},
	}
}

func newRunCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the agent: sensor worker pool, trap listener, metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(*configPath, *logLevel)
		},
	}
}

func runAgent(configPath, logLevelOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.LogLevel
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	logger, err := buildLogger(level)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	collectors := metrics.NewCollectors(registry)

	sensors, parseErrs := loadSensors(cfg.SensorDir, logger)
	for _, e := range parseErrs {
		logger.Error("config: sensor rejected", "error", e.Error())
	}
	if len(sensors) == 0 {
		logger.Warn("config: no valid sensors loaded", "sensor_dir", cfg.SensorDir)
	}
	defer func() {
		for _, s := range sensors {
			s.Release()
		}
	}()

	sink, formatter, err := buildTransport(cfg, logger)
	if err != nil {
		return fmt.Errorf("build transport: %w", err)
	}
	defer sink.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := engine.New(nil, logger, collectors)
	numWorkers := cfg.Workers
	if numWorkers <= 0 {
		numWorkers = len(sensors)
	}
	pool := engine.NewPool(numWorkers, eng, sink, formatter, logger, collectors)
	pool.Start(ctx)
	defer pool.Stop()

	if cfg.Trap.Enabled {
		listener := trapd.New(trapd.Config{
			ListenAddr:  cfg.Trap.ListenAddr,
			Community:   cfg.Trap.Community,
			SNMPVersion: snmpVersionFromString(cfg.Trap.SNMPVersion),
		}, sink, formatter, logger, collectors)
		go func() {
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("trapd: listener stopped unexpectedly", "error", err.Error())
			}
		}()
		defer listener.Stop()
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.ListenAddr, registry)
		go func() {
			if err := metricsServer.Run(ctx); err != nil {
				logger.Error("metrics: server stopped unexpectedly", "error", err.Error())
			}
		}()
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	logger.Info("monitoragent: running", "sensors", len(sensors), "poll_interval", cfg.PollInterval)
	for _, s := range sensors {
		pool.Submit(s)
	}
	for {
		select {
		case <-ctx.Done():
			logger.Info("monitoragent: shutting down")
			return nil
		case <-ticker.C:
			for _, s := range sensors {
				pool.Submit(s)
			}
		}
	}
}

// loadSensors reads every *.json file in dir and parses it as a sensor
// configuration. Files that fail to parse are collected into errs rather
// than aborting the load.
func loadSensors(dir string, logger *slog.Logger) ([]*monitor.Sensor, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("read sensor dir %s: %w", dir, err)}
	}

	var sensors []*monitor.Sensor
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		sensor, err := monitor.ParseSensor(raw, logger)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		sensor.Deps = resolve.Resolve(sensor.Monitors, logger)
		sensors = append(sensors, sensor)
	}
	return sensors, errs
}

func buildTransport(cfg *config.Config, logger *slog.Logger) (transport.Transport, emit.Formatter, error) {
	formatter := emit.NewJSONFormatter(logger)

	if cfg.Output.Stdout {
		return transport.New(transport.Config{Writer: os.Stdout}, logger), formatter, nil
	}

	if cfg.Output.Split {
		metricW, err := transport.NewRotatingFile(transport.RotateConfig{
			FilePath:   cfg.Output.MetricFile,
			MaxBytes:   cfg.Output.MaxBytes,
			MaxBackups: cfg.Output.MaxBackups,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		trapW, err := transport.NewRotatingFile(transport.RotateConfig{
			FilePath:   cfg.Output.TrapFile,
			MaxBytes:   cfg.Output.MaxBytes,
			MaxBackups: cfg.Output.MaxBackups,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return transport.NewSplit(transport.SplitConfig{MetricWriter: metricW, TrapWriter: trapW}, logger), formatter, nil
	}

	w, err := transport.NewRotatingFile(transport.RotateConfig{
		FilePath:   cfg.Output.MetricFile,
		MaxBytes:   cfg.Output.MaxBytes,
		MaxBackups: cfg.Output.MaxBackups,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return transport.New(transport.Config{Writer: w}, logger), formatter, nil
}

func snmpVersionFromString(v string) gosnmp.SnmpVersion {
	if v == "1" {
		return gosnmp.Version1
	}
	return gosnmp.Version2c
}

func buildLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}
