// Package emit implements the message emitter: it formats a Value plus its
// owning Monitor's enrichment into one or more JSON records.
package emit

import (
	"fmt"

	"github.com/nkazuki-labs/monitor-agent/internal/monitor"
	"github.com/nkazuki-labs/monitor-agent/internal/value"
)

// EmitError reports a sink rejection. Logged and the payload dropped; it
// never aborts the pass.
type EmitError struct {
	Monitor string
	Reason  string
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("emit: monitor %q: %s", e.Monitor, e.Reason)
}

// Record is one emitted measurement, field order preserved for rendering:
// timestamp, monitor, instance (vector elements only), value, then every
// enrichment key in insertion order.
type Record struct {
	Timestamp int64
	Monitor   string
	Instance  string // empty when not applicable
	HasInst   bool
	Value     string // already rendered per type
	Enrich    *monitor.Enrichment
}

// Emit formats v (the result of evaluating m) into zero or more Records,
// appended to out, per the rendering rules:
//   - a scalar Number emits one record, value rendered fixed-point;
//   - a String emits one record, value the raw (quoted) string;
//   - a Vector emits one record per present child (name+suffix, instance
//     prefix+index) plus, if a reduction is present, one additional record
//     with the base name and no instance.
func Emit(v *value.Value, m *monitor.Monitor, now int64, out []Record) []Record {
	if v == nil {
		return out
	}

	switch v.Kind() {
	case value.Num:
		out = append(out, Record{
			Timestamp: now,
			Monitor:   m.Name,
			Value:     v.FixedPoint(),
			Enrich:    m.Enrichment,
		})

	case value.Str:
		s, _ := v.RawString()
		out = append(out, Record{
			Timestamp: now,
			Monitor:   m.Name,
			Value:     s,
			Enrich:    m.Enrichment,
		})

	case value.Vec:
		name := m.EffectiveName()
		for k, child := range v.Children() {
			if child == nil {
				continue
			}
			rec := Record{
				Timestamp: now,
				Monitor:   name,
				Value:     child.FixedPoint(),
				Enrich:    m.Enrichment,
			}
			if m.InstancePrefix != "" {
				rec.Instance = fmt.Sprintf("%s%d", m.InstancePrefix, k)
				rec.HasInst = true
			}
			out = append(out, rec)
		}
		if red := v.Reduction(); red != nil {
			out = append(out, Record{
				Timestamp: now,
				Monitor:   m.Name,
				Value:     red.FixedPoint(),
				Enrich:    m.Enrichment,
			})
		}
	}
	return out
}
