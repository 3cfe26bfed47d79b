package probe

import (
	"fmt"
	"log/slog"

	"github.com/gosnmp/gosnmp"
	"github.com/nkazuki-labs/monitor-agent/internal/value"
)

// SNMP issues a single GET for oid using session and converts the response
// to a Value by ASN type: Integer/Gauge32 → Number, OctetString → String
// (then auto-promoted per value.String); any other type is a warning and
// returns absent. An empty octet string, a failed session response, or a
// missing PDU all return absent rather than an error.
func SNMP(session *gosnmp.GoSNMP, oid string, logger *slog.Logger) (*value.Value, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopDiscard{}, nil))
	}
	if session == nil {
		return nil, &ProbeError{Kind: "snmp", Arg: oid, Reason: "no SNMP session configured"}
	}

	result, err := session.Get([]string{oid})
	if err != nil {
		logger.Error("probe: snmp get failed", "oid", oid, "error", err.Error())
		return nil, nil
	}
	if result == nil || len(result.Variables) == 0 {
		logger.Error("probe: snmp get returned no PDU", "oid", oid)
		return nil, nil
	}

	return decodePDU(result.Variables[0], oid, logger), nil
}

// decodePDU converts one SNMP varbind to a Value by ASN type, independent
// of the session/transport so the type-dispatch rules are unit-testable
// without a live SNMP agent.
func decodePDU(pdu gosnmp.SnmpPDU, oid string, logger *slog.Logger) *value.Value {
	switch pdu.Type {
	case gosnmp.Integer, gosnmp.Gauge32:
		n, ok := toFloat(pdu.Value)
		if !ok {
			logger.Warn("probe: snmp numeric PDU had unexpected Go type", "oid", oid, "type", pdu.Type)
			return nil
		}
		logger.Debug("probe: snmp response", "oid", oid, "value", n)
		return value.Number(n)

	case gosnmp.OctetString:
		raw := pduOctets(pdu.Value)
		if len(raw) == 0 {
			return nil
		}
		logger.Debug("probe: snmp response", "oid", oid, "value", raw)
		return value.String(raw)

	default:
		logger.Warn("probe: snmp unsupported PDU type", "oid", oid, "type", pdu.Type)
		return nil
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

func pduOctets(v interface{}) string {
	switch b := v.(type) {
	case []byte:
		return string(b)
	case string:
		return b
	default:
		return fmt.Sprintf("%v", b)
	}
}
