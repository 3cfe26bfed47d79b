package monitor_test

import (
	"testing"

	"github.com/nkazuki-labs/monitor-agent/internal/monitor"
)

// Sensors missing required keys are rejected at parse time.
func TestParseSensorRejectsMissingKeys(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"missing monitors", `{"sensor_name":"s1","sensor_ip":"127.0.0.1:161","community":"public"}`},
		{"missing sensor_name", `{"sensor_ip":"127.0.0.1:161","community":"public","monitors":[]}`},
		{"missing sensor_ip", `{"sensor_name":"s1","community":"public","monitors":[{"name":"m","system":"echo 1"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := monitor.ParseSensor([]byte(tc.json), nil)
			if err == nil {
				t.Fatalf("expected ConfigError for %s", tc.name)
			}
			if _, ok := err.(*monitor.ConfigError); !ok {
				t.Fatalf("error type = %T, want *monitor.ConfigError", err)
			}
		})
	}
}

// community is optional: its presence enables SNMP, and a sensor without it
// is still constructed, just with no session.
func TestParseSensorWithoutCommunityHasNoSession(t *testing.T) {
	raw := `{
		"sensor_name": "s1",
		"sensor_id": 7,
		"sensor_ip": "127.0.0.1:161",
		"enrichment": {"datacenter": "dc1"},
		"monitors": [
			{"name": "load_1", "system": "echo 3"},
			{"name": "load_5", "system": "echo 2", "unit": "%"}
		]
	}`
	s, err := monitor.ParseSensor([]byte(raw), nil)
	if err != nil {
		t.Fatalf("ParseSensor error: %v", err)
	}
	if s.Session != nil {
		t.Fatal("sensor without community should have no SNMP session")
	}
	if s.Name != "s1" || s.ID != 7 {
		t.Fatalf("sensor identity = %q/%d", s.Name, s.ID)
	}
	if len(s.Monitors) != 2 {
		t.Fatalf("len(Monitors) = %d, want 2", len(s.Monitors))
	}
	if sn, _ := s.Enrichment.Get("sensor_name"); sn != "s1" {
		t.Fatalf("enrichment sensor_name = %v", sn)
	}
	if id, _ := s.Enrichment.Get("sensor_id"); id != int64(7) {
		t.Fatalf("enrichment sensor_id = %v", id)
	}
	if dc, _ := s.Enrichment.Get("datacenter"); dc != "dc1" {
		t.Fatalf("enrichment datacenter = %v", dc)
	}
	if unit, _ := s.Monitors[1].Enrichment.Get("unit"); unit != "%" {
		t.Fatalf("monitor unit = %v", unit)
	}
}

func TestParseMonitorKindPrecedence(t *testing.T) {
	enrich := monitor.NewEnrichment([]string{"sensor_name"}, map[string]any{"sensor_name": "s1"})
	m, err := monitor.ParseMonitor([]byte(`{"name":"m","system":"echo 1","oid":".1.2.3"}`), enrich, nil)
	if err != nil {
		t.Fatalf("ParseMonitor error: %v", err)
	}
	if m.Kind != monitor.KindSystem {
		t.Fatalf("Kind = %v, want KindSystem (system checked before oid)", m.Kind)
	}
}

func TestParseMonitorMissingKindFails(t *testing.T) {
	enrich := monitor.NewEnrichment(nil, nil)
	_, err := monitor.ParseMonitor([]byte(`{"name":"m"}`), enrich, nil)
	if err == nil {
		t.Fatal("expected parse failure when none of system/oid/op is present")
	}
}

func TestParseMonitorDefaults(t *testing.T) {
	enrich := monitor.NewEnrichment(nil, nil)
	m, err := monitor.ParseMonitor([]byte(`{"name":"m","system":"echo 1"}`), enrich, nil)
	if err != nil {
		t.Fatalf("ParseMonitor error: %v", err)
	}
	if !m.Send {
		t.Error("Send should default true")
	}
	if m.Integer {
		t.Error("Integer should default false")
	}
}

func TestParseMonitorUnknownSplitOpDropped(t *testing.T) {
	enrich := monitor.NewEnrichment(nil, nil)
	m, err := monitor.ParseMonitor([]byte(`{"name":"m","system":"echo 1","split_op":"median"}`), enrich, nil)
	if err != nil {
		t.Fatalf("ParseMonitor error: %v", err)
	}
	if m.SplitReduction != "" {
		t.Errorf("SplitReduction = %q, want empty (unknown split_op dropped)", m.SplitReduction)
	}
}

func TestParseMonitorEnrichmentOrder(t *testing.T) {
	enrich := monitor.NewEnrichment([]string{"sensor_name"}, map[string]any{"sensor_name": "s1"})
	m, err := monitor.ParseMonitor([]byte(`{"name":"m","oid":".1.2.3","unit":"pct","group_name":"cpu"}`), enrich, nil)
	if err != nil {
		t.Fatalf("ParseMonitor error: %v", err)
	}
	keys := m.Enrichment.Keys()
	want := []string{"sensor_name", "type", "unit", "group_name"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], k)
		}
	}
	typ, _ := m.Enrichment.Get("type")
	if typ != "snmp" {
		t.Errorf("type = %v, want snmp", typ)
	}
}

func TestEnrichmentCloneIsIndependent(t *testing.T) {
	base := monitor.NewEnrichment([]string{"sensor_name"}, map[string]any{"sensor_name": "s1"})
	clone := base.Clone()
	clone.Set("type", "system")
	if _, ok := base.Get("type"); ok {
		t.Fatal("mutating a clone must not affect the original enrichment")
	}
}
