// Package monitor holds the parsed Monitor and Sensor records produced from
// sensor configuration, plus the enrichment object every emitted record
// carries.
package monitor

import (
	"sync/atomic"

	"github.com/gosnmp/gosnmp"
)

// Kind identifies how a Monitor obtains its raw value.
type Kind string

const (
	KindSystem Kind = "system" // shell command probe
	KindOID    Kind = "oid"    // SNMP GET probe
	KindOp     Kind = "op"     // arithmetic expression over other monitors
)

// typeString returns the canonical enrichment "type" value for a Kind, per
// the monitor-kind → type-string mapping (system, snmp, op).
func (k Kind) typeString() string {
	if k == KindOID {
		return "snmp"
	}
	return string(k)
}

// Enrichment is an ordered key/value object attached to every emitted
// record. Keys preserve insertion order because the emitter walks them
// without re-sorting; order matters for output stability.
type Enrichment struct {
	keys   []string
	values map[string]any
}

// NewEnrichment builds an Enrichment from a base map, preserving the
// supplied key order.
func NewEnrichment(keys []string, values map[string]any) *Enrichment {
	e := &Enrichment{
		keys:   append([]string(nil), keys...),
		values: make(map[string]any, len(values)),
	}
	for k, v := range values {
		e.values[k] = v
	}
	return e
}

// Clone returns an independent deep copy. Aliasing sensor enrichment across
// monitors is forbidden because the emitter walks it without synchronization.
func (e *Enrichment) Clone() *Enrichment {
	if e == nil {
		return NewEnrichment(nil, nil)
	}
	return NewEnrichment(e.keys, e.values)
}

// Set adds or overwrites a key, appending it to the iteration order the
// first time it is set.
func (e *Enrichment) Set(key string, val any) {
	if _, exists := e.values[key]; !exists {
		e.keys = append(e.keys, key)
	}
	e.values[key] = val
}

// Keys returns enrichment keys in insertion order.
func (e *Enrichment) Keys() []string { return e.keys }

// Get returns the value for key and whether it is present.
func (e *Enrichment) Get(key string) (any, bool) {
	v, ok := e.values[key]
	return v, ok
}

// Monitor is one measurement recipe: a probe plus post-processing and
// emission settings, parsed from a sensor's monitor list.
type Monitor struct {
	Name string
	Kind Kind

	Command    string // KindSystem
	OID        string // KindOID
	Expression string // KindOp

	SplitToken     string // optional; non-empty enables vector splitting
	SplitReduction string // "", "sum", or "mean" — already validated

	NameSuffix     string
	InstancePrefix string

	Send    bool
	Integer bool

	Enrichment *Enrichment
}

// EffectiveName is the monitor name used in per-element vector records:
// Name+NameSuffix when NameSuffix is set, else Name.
func (m *Monitor) EffectiveName() string {
	if m.NameSuffix != "" {
		return m.Name + m.NameSuffix
	}
	return m.Name
}

// TypeString returns the canonical "type" enrichment value for m.Kind.
func (m *Monitor) TypeString() string { return m.Kind.typeString() }

// Sensor holds an SNMP session (possibly nil), an ordered monitor list, the
// dependency resolver's output (one index-vector per monitor, parallel to
// Monitors), a base enrichment object, and a reference count controlling
// teardown.
type Sensor struct {
	Name string
	ID   int64 // 0 means unset

	Session *gosnmp.GoSNMP // nil when the sensor has no community configured

	Monitors []*Monitor
	Deps     [][]int // Deps[i] lists dependency indices for Monitors[i]; nil when none

	Enrichment *Enrichment

	refs int32
}

// AddRef atomically increments the sensor's reference count.
func (s *Sensor) AddRef() { atomic.AddInt32(&s.refs, 1) }

// Release atomically decrements the reference count and tears down the
// sensor's SNMP session when it reaches zero. Returns true if this call
// performed the teardown.
func (s *Sensor) Release() bool {
	if atomic.AddInt32(&s.refs, -1) > 0 {
		return false
	}
	if s.Session != nil && s.Session.Conn != nil {
		_ = s.Session.Conn.Close()
	}
	return true
}
