package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/gosnmp/gosnmp"
)

// rawSensor mirrors the JSON shape of one sensor configuration object.
type rawSensor struct {
	SensorName  string          `json:"sensor_name"`
	SensorID    int64           `json:"sensor_id"`
	SensorIP    string          `json:"sensor_ip"`
	Community   string          `json:"community"`
	SNMPVersion string          `json:"snmp_version"`
	Timeout     int             `json:"timeout"`
	Retries     int             `json:"retries"`
	Enrichment  map[string]any  `json:"enrichment"`
	Monitors    json.RawMessage `json:"monitors"`
}

// ParseSensor builds a Sensor from one sensor configuration object. The
// keys sensor_name, sensor_ip, and monitors are required; a sensor missing
// any of them is rejected at construction. community is optional: its
// presence enables SNMP, and a sensor without it is constructed with no
// session (oid monitors then always produce absent).
func ParseSensor(raw []byte, logger *slog.Logger) (*Sensor, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	var rs rawSensor
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid sensor JSON: %v", err)}
	}

	if rs.SensorName == "" {
		return nil, &ConfigError{Reason: "missing required \"sensor_name\""}
	}
	if len(rs.Monitors) == 0 {
		return nil, &ConfigError{Sensor: rs.SensorName, Reason: "missing required \"monitors\""}
	}
	if rs.SensorIP == "" {
		return nil, &ConfigError{Sensor: rs.SensorName, Reason: "missing required \"sensor_ip\""}
	}

	version := rs.SNMPVersion
	if version == "" {
		version = "2c"
	}

	// No community means no SNMP in this sensor.
	var session *gosnmp.GoSNMP
	if rs.Community != "" {
		var err error
		session, err = newSession(rs.SensorIP, rs.Community, version, rs.Timeout, rs.Retries)
		if err != nil {
			return nil, &ConfigError{Sensor: rs.SensorName, Reason: err.Error()}
		}
	}

	keys := []string{"sensor_name"}
	values := map[string]any{"sensor_name": rs.SensorName}
	if rs.SensorID != 0 {
		keys = append(keys, "sensor_id")
		values["sensor_id"] = rs.SensorID
	}
	for k, v := range rs.Enrichment {
		if _, exists := values[k]; exists {
			continue
		}
		keys = append(keys, k)
		values[k] = v
	}
	enrichment := NewEnrichment(keys, values)

	monitors, err := ParseMonitors(rs.Monitors, enrichment, logger)
	if err != nil {
		return nil, &ConfigError{Sensor: rs.SensorName, Reason: err.Error()}
	}

	s := &Sensor{
		Name:       rs.SensorName,
		ID:         rs.SensorID,
		Session:    session,
		Monitors:   monitors,
		Enrichment: enrichment,
		refs:       1,
	}
	return s, nil
}

// newSession dials an SNMP session for addr, a "host:port" string; a bare
// host defaults to port 161.
func newSession(addr, community, version string, timeoutMs, retries int) (*gosnmp.GoSNMP, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host, portStr = addr, "161"
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid sensor_ip port %q in %q", portStr, addr)
	}

	g := &gosnmp.GoSNMP{
		Target:    host,
		Port:      uint16(port),
		Community: community,
		Timeout:   time.Duration(timeoutMs) * time.Millisecond,
		Retries:   retries,
	}
	if g.Timeout == 0 {
		g.Timeout = 2 * time.Second
	}
	switch version {
	case "1":
		g.Version = gosnmp.Version1
	case "2c":
		g.Version = gosnmp.Version2c
	default:
		return nil, fmt.Errorf("unsupported snmp_version %q", version)
	}
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("snmp connect %s: %w", addr, err)
	}
	return g, nil
}
