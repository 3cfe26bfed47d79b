package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nkazuki-labs/monitor-agent/internal/config"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, "sensor_dir: /etc/monitoragent/sensors\n")
	c, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if c.PollInterval != 60*time.Second {
		t.Errorf("PollInterval = %v, want 60s", c.PollInterval)
	}
	if c.Trap.ListenAddr != "0.0.0.0:162" {
		t.Errorf("Trap.ListenAddr = %q", c.Trap.ListenAddr)
	}
	if c.Trap.SNMPVersion != "2c" {
		t.Errorf("Trap.SNMPVersion = %q", c.Trap.SNMPVersion)
	}
	if c.LogLevel != "info" {
		t.Errorf("LogLevel = %q", c.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeFile(t, `
sensor_dir: /opt/sensors
poll_interval: 30
workers: 4
log_level: debug
trap:
  enabled: true
  listen_addr: "0.0.0.0:1162"
  community: public
output:
  split: true
  metric_file: metrics.json
  trap_file: traps.json
  max_bytes: 1048576
  max_backups: 3
metrics:
  enabled: true
  listen_addr: "127.0.0.1:9116"
`)
	c, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if c.SensorDir != "/opt/sensors" {
		t.Errorf("SensorDir = %q", c.SensorDir)
	}
	if c.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v", c.PollInterval)
	}
	if c.Workers != 4 {
		t.Errorf("Workers = %d", c.Workers)
	}
	if !c.Trap.Enabled || c.Trap.ListenAddr != "0.0.0.0:1162" {
		t.Errorf("Trap = %+v", c.Trap)
	}
	if !c.Output.Split || c.Output.MaxBackups != 3 {
		t.Errorf("Output = %+v", c.Output)
	}
	if !c.Metrics.Enabled || c.Metrics.ListenAddr != "127.0.0.1:9116" {
		t.Errorf("Metrics = %+v", c.Metrics)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
