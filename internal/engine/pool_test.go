package engine_test

import (
	"context"
	"strings"
	"testing"

	"github.com/nkazuki-labs/monitor-agent/internal/emit"
	"github.com/nkazuki-labs/monitor-agent/internal/engine"
	"github.com/nkazuki-labs/monitor-agent/internal/monitor"
	"github.com/nkazuki-labs/monitor-agent/internal/transport"
)

func TestPoolRunsPassAndPublishes(t *testing.T) {
	sensor := buildSensor(t, []*monitor.Monitor{
		systemMonitor("load_1", "echo 3"),
	})
	sensor.AddRef() // construction reference, normally taken by the loader

	sink := transport.NewMemory()
	eng := engine.New(func() int64 { return 1700000000 }, nil, nil)
	pool := engine.NewPool(2, eng, sink, emit.NewJSONFormatter(nil), nil, nil)

	ctx := context.Background()
	pool.Start(ctx)
	pool.Submit(sensor)
	pool.Stop()

	recs := sink.Snapshot()
	if len(recs) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(recs))
	}
	got := string(recs[0])
	if want := `"monitor":"load_1"`; !strings.Contains(got, want) {
		t.Errorf("record %q missing %q", got, want)
	}
	if want := `"value":"3.000000"`; !strings.Contains(got, want) {
		t.Errorf("record %q missing %q", got, want)
	}

	// The pool released its pass reference in Stop; only the construction
	// reference remains, so this release performs the teardown.
	if !sensor.Release() {
		t.Fatal("final release should tear the sensor down")
	}
}
