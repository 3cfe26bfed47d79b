// Package engine implements the sensor engine: the one-pass executor that
// walks a sensor's ordered monitor list, dispatches each monitor to its
// probe or the evaluator, and hands present results to the emitter.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nkazuki-labs/monitor-agent/internal/emit"
	"github.com/nkazuki-labs/monitor-agent/internal/eval"
	"github.com/nkazuki-labs/monitor-agent/internal/metrics"
	"github.com/nkazuki-labs/monitor-agent/internal/monitor"
	"github.com/nkazuki-labs/monitor-agent/internal/probe"
	"github.com/nkazuki-labs/monitor-agent/internal/value"
)

// Clock returns the current Unix time in seconds; overridable in tests.
type Clock func() int64

// Engine runs passes over sensors, sharing a Clock and logger.
type Engine struct {
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Collectors // nil when metrics are disabled
}

// New constructs an Engine. A nil clock defaults to time.Now; a nil logger
// defaults to a no-op logger; a nil metrics collector set disables counter
// reporting entirely (every increment below is guarded).
func New(clock Clock, logger *slog.Logger, collectors *metrics.Collectors) *Engine {
	if clock == nil {
		clock = func() int64 { return time.Now().Unix() }
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Engine{clock: clock, logger: logger, metrics: collectors}
}

// Pass executes one sequential evaluation of sensor's monitor list, appending
// every emitted Record to out and returning it. Individual probe/eval
// failures are local: they leave that monitor's value absent and the pass
// continues. Pass returns an error only on setup failure (nil sensor, or a
// monitor/dependency slice length mismatch) — a FatalError that aborts
// before any monitor runs.
func (e *Engine) Pass(ctx context.Context, sensor *monitor.Sensor, out []emit.Record) ([]emit.Record, error) {
	if sensor == nil {
		return out, fmt.Errorf("engine: nil sensor")
	}
	if len(sensor.Deps) != len(sensor.Monitors) {
		return out, fmt.Errorf("engine: sensor %q: deps/monitors length mismatch", sensor.Name)
	}

	if e.metrics != nil {
		e.metrics.PassesTotal.Inc()
	}

	now := e.clock()
	values := make([]*value.Value, len(sensor.Monitors))

	for i, m := range sensor.Monitors {
		v := e.evalOne(ctx, sensor, m, i, values)
		values[i] = v
		if v != nil && m.Send {
			out = emit.Emit(v, m, now, out)
		}
	}
	return out, nil
}

// evalOne computes monitor i's value, given the values already computed for
// indices < i (and, per the forward-reference design decision, possibly
// referencing an index >= i which is simply still nil at this point).
func (e *Engine) evalOne(ctx context.Context, sensor *monitor.Sensor, m *monitor.Monitor, i int, values []*value.Value) *value.Value {
	var raw *value.Value

	switch m.Kind {
	case monitor.KindSystem:
		v, err := probe.Shell(ctx, m.Command, e.logger)
		if err != nil {
			e.logger.Error("engine: shell probe error", "monitor", m.Name, "error", err.Error())
			e.countProbeFailure("shell")
			return nil
		}
		raw = v

	case monitor.KindOID:
		v, err := probe.SNMP(sensor.Session, m.OID, e.logger)
		if err != nil {
			e.logger.Error("engine: snmp probe error", "monitor", m.Name, "error", err.Error())
			e.countProbeFailure("snmp")
			return nil
		}
		raw = v

	case monitor.KindOp:
		deps := buildDepView(sensor.Deps[i], values, sensor.Monitors)
		v, err := eval.Eval(m.Expression, deps, m.SplitReduction)
		if err != nil {
			e.logger.Error("engine: eval error", "monitor", m.Name, "expression", m.Expression, "error", err.Error())
			e.countEvalFailure("error")
			return nil
		}
		if v == nil {
			e.logger.Warn("engine: expression produced absent result", "monitor", m.Name, "expression", m.Expression)
		} else {
			e.logger.Debug("engine: expression result", "monitor", m.Name, "expression", m.Expression, "value", v.String())
		}
		return v // evaluator output is already a finished Value; no split applies to op monitors
	}

	if raw == nil {
		return nil
	}

	if m.SplitToken != "" {
		s, ok := raw.RawString()
		if !ok {
			// A Number probed directly (not a String) has nothing to split.
			return raw
		}
		return probe.Split(s, m.SplitToken, m.SplitReduction, e.logger)
	}
	return raw
}

// buildDepView maps each dependency index to its monitor's name → computed
// value, building the variable environment the evaluator substitutes into
// the expression. An index that has not been computed yet (forward
// reference, including self-reference) is simply absent in values and maps
// to a nil Value, which the evaluator treats as absence.
func buildDepView(depIdx []int, values []*value.Value, monitors []*monitor.Monitor) map[string]*value.Value {
	deps := make(map[string]*value.Value, len(depIdx))
	for _, idx := range depIdx {
		deps[monitors[idx].Name] = values[idx]
	}
	return deps
}

func (e *Engine) countProbeFailure(kind string) {
	if e.metrics != nil {
		e.metrics.ProbeFailures.WithLabelValues(kind).Inc()
	}
}

func (e *Engine) countEvalFailure(reason string) {
	if e.metrics != nil {
		e.metrics.EvalFailures.WithLabelValues(reason).Inc()
	}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
