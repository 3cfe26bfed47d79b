package emit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Formatter serializes a Record into a JSON byte slice. Kept narrow so
// alternative encodings could implement it without touching the emitter.
type Formatter interface {
	Format(rec Record) ([]byte, error)
}

// JSONFormatter renders a Record as one JSON object per the external output
// contract: fields ordered timestamp, monitor, instance (vector elements
// only), value, followed by every enrichment key in insertion order.
//
// A struct-tag-driven encoding/json.Marshal cannot express this, since the
// enrichment object's keys and JSON types are only known at runtime, so
// this formatter builds the object by hand, one field at a time.
type JSONFormatter struct {
	logger *slog.Logger
}

// NewJSONFormatter constructs a JSONFormatter. A nil logger is replaced
// with a no-op logger.
func NewJSONFormatter(logger *slog.Logger) *JSONFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &JSONFormatter{logger: logger}
}

// Format renders rec as a single-line JSON object.
func (f *JSONFormatter) Format(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	writeKey(&buf, "timestamp")
	fmt.Fprintf(&buf, "%d", rec.Timestamp)

	buf.WriteByte(',')
	writeKey(&buf, "monitor")
	writeJSONString(&buf, rec.Monitor)

	if rec.HasInst {
		buf.WriteByte(',')
		writeKey(&buf, "instance")
		writeJSONString(&buf, rec.Instance)
	}

	buf.WriteByte(',')
	writeKey(&buf, "value")
	writeJSONString(&buf, rec.Value)

	if rec.Enrich != nil {
		for _, key := range rec.Enrich.Keys() {
			val, _ := rec.Enrich.Get(key)
			buf.WriteByte(',')
			writeKey(&buf, key)
			if err := writeEnrichValue(&buf, val, f.logger); err != nil {
				return nil, err
			}
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) {
	writeJSONString(buf, key)
	buf.WriteByte(':')
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// writeEnrichValue serializes an enrichment value by its JSON type: strings
// quoted, integers literal, floats with six fractional digits, booleans
// true/false, nil as null. Nested objects/arrays are not supported at this
// layer and are logged as a warning, emitted as null.
func writeEnrichValue(buf *bytes.Buffer, v any, logger *slog.Logger) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		writeJSONString(buf, t)
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int:
		fmt.Fprintf(buf, "%d", t)
	case int64:
		fmt.Fprintf(buf, "%d", t)
	case float64:
		fmt.Fprintf(buf, "%.6f", t)
	case float32:
		fmt.Fprintf(buf, "%.6f", t)
	default:
		logger.Warn("emit: enrichment value of unsupported type, emitting null", "type", fmt.Sprintf("%T", v))
		buf.WriteString("null")
	}
	return nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
