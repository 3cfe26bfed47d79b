package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nkazuki-labs/monitor-agent/internal/value"
)

// ConfigError reports a sensor or monitor rejected at parse time. The
// sensor is not created when this error is returned.
type ConfigError struct {
	Sensor string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Sensor == "" {
		return fmt.Sprintf("config: %s", e.Reason)
	}
	return fmt.Sprintf("config: sensor %q: %s", e.Sensor, e.Reason)
}

// rawMonitor mirrors the JSON shape of one entry in a sensor's "monitors"
// array.
type rawMonitor struct {
	Name string `json:"name"`

	System string `json:"system"`
	OID    string `json:"oid"`
	Op     string `json:"op"`

	Split      string `json:"split"`
	SplitOp    string `json:"split_op"`
	NameSuffix string `json:"name_split_suffix"`
	Instance   string `json:"instance_prefix"`

	Send    *bool `json:"send"`
	Integer bool  `json:"integer"`

	Unit      string `json:"unit"`
	GroupName string `json:"group_name"`
}

// ParseMonitor builds a Monitor from one JSON monitor object and the
// sensor's base enrichment. Kind and argument are determined by the
// presence of exactly one of "system", "oid", "op", checked in that order.
func ParseMonitor(raw json.RawMessage, sensorEnrichment *Enrichment, logger *slog.Logger) (*Monitor, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	var rm rawMonitor
	if err := json.Unmarshal(raw, &rm); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid monitor JSON: %v", err)}
	}

	if rm.Name == "" {
		return nil, &ConfigError{Reason: "monitor missing required \"name\""}
	}

	var kind Kind
	var arg string
	switch {
	case rm.System != "":
		kind, arg = KindSystem, rm.System
	case rm.OID != "":
		kind, arg = KindOID, rm.OID
	case rm.Op != "":
		kind, arg = KindOp, rm.Op
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("monitor %q has none of system/oid/op", rm.Name)}
	}

	splitReduction := ""
	if rm.SplitOp != "" {
		red, ok := value.ParseReduction(rm.SplitOp)
		if !ok {
			logger.Warn("monitor: unknown split_op, dropping", "monitor", rm.Name, "split_op", rm.SplitOp)
		} else {
			splitReduction = string(red)
		}
	}

	send := true
	if rm.Send != nil {
		send = *rm.Send
	}

	enrichment := sensorEnrichment.Clone()
	enrichment.Set("type", kind.typeString())
	if rm.Unit != "" {
		enrichment.Set("unit", rm.Unit)
	}
	if rm.GroupName != "" {
		enrichment.Set("group_name", rm.GroupName)
	}

	m := &Monitor{
		Name:           rm.Name,
		Kind:           kind,
		SplitToken:     rm.Split,
		SplitReduction: splitReduction,
		NameSuffix:     rm.NameSuffix,
		InstancePrefix: rm.Instance,
		Send:           send,
		Integer:        rm.Integer,
		Enrichment:     enrichment,
	}
	switch kind {
	case KindSystem:
		m.Command = arg
	case KindOID:
		m.OID = arg
	case KindOp:
		m.Expression = arg
	}
	return m, nil
}

// ParseMonitors parses every element of a sensor's "monitors" JSON array.
// A monitor that fails to parse is logged and skipped; the sensor itself is
// still constructed as long as the array parses.
func ParseMonitors(raw json.RawMessage, sensorEnrichment *Enrichment, logger *slog.Logger) ([]*Monitor, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid monitors array: %v", err)}
	}

	monitors := make([]*Monitor, 0, len(items))
	for i, item := range items {
		m, err := ParseMonitor(item, sensorEnrichment, logger)
		if err != nil {
			logger.Warn("monitor: rejected, skipping", "index", i, "error", err.Error())
			continue
		}
		monitors = append(monitors, m)
	}
	return monitors, nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
