package emit_test

import (
	"encoding/json"
	"testing"

	"github.com/nkazuki-labs/monitor-agent/internal/emit"
	"github.com/nkazuki-labs/monitor-agent/internal/monitor"
	"github.com/nkazuki-labs/monitor-agent/internal/value"
)

func baseMonitor(name string) *monitor.Monitor {
	enrich := monitor.NewEnrichment([]string{"sensor_name", "type"}, map[string]any{
		"sensor_name": "sensor1",
		"type":        "op",
	})
	return &monitor.Monitor{Name: name, Send: true, Enrichment: enrich}
}

func TestEmitScalar(t *testing.T) {
	m := baseMonitor("load_1")
	recs := emit.Emit(value.Number(3), m, 100, nil)
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	if recs[0].Value != "3.000000" {
		t.Fatalf("Value = %q, want 3.000000", recs[0].Value)
	}
	if recs[0].HasInst {
		t.Fatalf("scalar record should not have an instance")
	}
}

func TestEmitVectorNoSuffix(t *testing.T) {
	m := baseMonitor("load_1_ns")
	v := value.Vector([]*value.Value{value.Number(3), value.Number(2), value.Number(1), value.Number(0)}, nil)
	recs := emit.Emit(v, m, 0, nil)
	if len(recs) != 4 {
		t.Fatalf("len(recs) = %d, want 4", len(recs))
	}
	for _, r := range recs {
		if r.Monitor != "load_1_ns" {
			t.Fatalf("Monitor = %q, want load_1_ns", r.Monitor)
		}
		if r.HasInst {
			t.Fatalf("record should have no instance when InstancePrefix unset")
		}
	}
}

func TestEmitVectorWithSuffixAndInstance(t *testing.T) {
	m := baseMonitor("load_1")
	m.NameSuffix = "_per_instance"
	m.InstancePrefix = "if"
	v := value.Vector([]*value.Value{value.Number(3), value.Number(2)}, value.Number(2.5))
	recs := emit.Emit(v, m, 0, nil)
	if len(recs) != 3 {
		t.Fatalf("len(recs) = %d, want 3 (2 elements + 1 reduction)", len(recs))
	}
	if recs[0].Monitor != "load_1_per_instance" || recs[0].Instance != "if0" {
		t.Fatalf("recs[0] = %+v", recs[0])
	}
	if recs[2].Monitor != "load_1" || recs[2].HasInst {
		t.Fatalf("reduction record should use base name with no instance: %+v", recs[2])
	}
}

func TestEmitAbsentVectorSlotSkipped(t *testing.T) {
	m := baseMonitor("load_1")
	v := value.Vector([]*value.Value{nil, value.Number(2)}, nil)
	recs := emit.Emit(v, m, 0, nil)
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1 (one absent slot skipped)", len(recs))
	}
}

func TestFormatterFieldOrderAndEnrichment(t *testing.T) {
	enrich := monitor.NewEnrichment([]string{"type", "sensor_id"}, map[string]any{
		"type":      "op",
		"sensor_id": int64(42),
	})
	rec := emit.Record{
		Timestamp: 1700000000,
		Monitor:   "load_1",
		Value:     "3.000000",
		Enrich:    enrich,
	}
	f := emit.NewJSONFormatter(nil)
	data, err := f.Format(rec)
	if err != nil {
		t.Fatalf("Format error: %v", err)
	}
	if want := `{"timestamp":1700000000,"monitor":"load_1","value":"3.000000","type":"op","sensor_id":42}`; string(data) != want {
		t.Fatalf("Format = %s, want %s", data, want)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, data)
	}
	if string(decoded["monitor"]) != `"load_1"` {
		t.Fatalf("monitor = %s", decoded["monitor"])
	}
	if string(decoded["type"]) != `"op"` {
		t.Fatalf("type = %s", decoded["type"])
	}
	if string(decoded["sensor_id"]) != `42` {
		t.Fatalf("sensor_id = %s", decoded["sensor_id"])
	}
}
