package resolve_test

import (
	"testing"

	"github.com/nkazuki-labs/monitor-agent/internal/monitor"
	"github.com/nkazuki-labs/monitor-agent/internal/resolve"
)

func mon(name string, kind monitor.Kind, expr string) *monitor.Monitor {
	m := &monitor.Monitor{Name: name, Kind: kind}
	if kind == monitor.KindOp {
		m.Expression = expr
	}
	return m
}

func TestResolveMapsNamesToIndices(t *testing.T) {
	monitors := []*monitor.Monitor{
		mon("load_1", monitor.KindSystem, ""),
		mon("load_5", monitor.KindSystem, ""),
		mon("ratio", monitor.KindOp, "load_5*load_1"),
	}
	deps := resolve.Resolve(monitors, nil)
	if len(deps) != 3 {
		t.Fatalf("len(deps) = %d, want 3", len(deps))
	}
	if deps[0] != nil || deps[1] != nil {
		t.Fatalf("non-op monitors should have nil deps, got %v %v", deps[0], deps[1])
	}
	if len(deps[2]) != 2 {
		t.Fatalf("deps[2] = %v, want 2 entries", deps[2])
	}
	seen := map[int]bool{deps[2][0]: true, deps[2][1]: true}
	if !seen[0] || !seen[1] {
		t.Fatalf("deps[2] = %v, want indices {0,1}", deps[2])
	}
}

func TestResolveUnknownVariableDiscardsDeps(t *testing.T) {
	monitors := []*monitor.Monitor{
		mon("load_1", monitor.KindSystem, ""),
		mon("ratio", monitor.KindOp, "load_1*missing"),
	}
	deps := resolve.Resolve(monitors, nil)
	if deps[1] != nil {
		t.Fatalf("deps[1] = %v, want nil (unevaluable)", deps[1])
	}
}

func TestResolveForwardReferenceRecorded(t *testing.T) {
	monitors := []*monitor.Monitor{
		mon("fwd", monitor.KindOp, "later*2"),
		mon("later", monitor.KindSystem, ""),
	}
	deps := resolve.Resolve(monitors, nil)
	if len(deps[0]) != 1 || deps[0][0] != 1 {
		t.Fatalf("deps[0] = %v, want [1] (forward reference permitted)", deps[0])
	}
}

func TestResolveSelfReferenceRecorded(t *testing.T) {
	monitors := []*monitor.Monitor{
		mon("loop", monitor.KindOp, "loop*2"),
	}
	deps := resolve.Resolve(monitors, nil)
	if len(deps[0]) != 1 || deps[0][0] != 0 {
		t.Fatalf("deps[0] = %v, want [0] (self-reference recorded, resolves absent at eval time)", deps[0])
	}
}
