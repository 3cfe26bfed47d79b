// Package resolve implements the dependency resolver: for each op monitor,
// it precomputes the indices of the monitors its expression references.
package resolve

import (
	"log/slog"

	"github.com/nkazuki-labs/monitor-agent/internal/eval"
	"github.com/nkazuki-labs/monitor-agent/internal/monitor"
)

// Resolve returns one dependency index-slice per monitor, parallel to
// monitors. Non-op monitors get nil. For an op monitor, each free variable
// in its expression is looked up by name against the *entire* monitor list
// — forward references (indices greater than the op monitor's own index,
// including a self-reference) are permitted here and simply recorded; the
// sensor engine resolves them to an absent value at evaluation time rather
// than rejecting them, matching the source behavior this was grounded on.
// If any variable has no matching monitor by name, the whole dependency
// slice for that monitor is discarded (nil) and the monitor will always
// evaluate to absent.
func Resolve(monitors []*monitor.Monitor, logger *slog.Logger) [][]int {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	index := make(map[string]int, len(monitors))
	for i, m := range monitors {
		index[m.Name] = i
	}

	deps := make([][]int, len(monitors))
	for i, m := range monitors {
		if m.Kind != monitor.KindOp {
			continue
		}
		vars, err := eval.FreeVariables(m.Expression)
		if err != nil {
			logger.Warn("resolve: could not parse expression, monitor unevaluable",
				"monitor", m.Name, "expression", m.Expression, "error", err.Error())
			continue
		}
		if len(vars) == 0 {
			continue
		}

		slice := make([]int, 0, len(vars))
		ok := true
		for _, name := range vars {
			pos, found := index[name]
			if !found {
				logger.Error("resolve: could not find variable in operation, discarding",
					"monitor", m.Name, "variable", name, "expression", m.Expression)
				ok = false
				break
			}
			slice = append(slice, pos)
		}
		if ok {
			deps[i] = slice
		}
	}
	return deps
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
