package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nkazuki-labs/monitor-agent/internal/emit"
	"github.com/nkazuki-labs/monitor-agent/internal/metrics"
	"github.com/nkazuki-labs/monitor-agent/internal/monitor"
	"github.com/nkazuki-labs/monitor-agent/internal/transport"
)

// Pool runs one sensor pass per job on its own goroutine; distinct sensors
// run concurrently and share no mutable state, while a single sensor's
// probes are always serialized by Pass's internal sequential loop.
type Pool struct {
	numWorkers int
	engine     *Engine
	sink       transport.Transport
	formatter  emit.Formatter
	logger     *slog.Logger
	metrics    *metrics.Collectors

	jobs chan *monitor.Sensor
	wg   sync.WaitGroup
}

// NewPool creates a Pool of numWorkers goroutines, defaulting to 16 when
// numWorkers <= 0. A nil collectors disables record-count reporting.
func NewPool(numWorkers int, eng *Engine, sink transport.Transport, formatter emit.Formatter, logger *slog.Logger, collectors *metrics.Collectors) *Pool {
	if numWorkers <= 0 {
		numWorkers = 16
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Pool{
		numWorkers: numWorkers,
		engine:     eng,
		sink:       sink,
		formatter:  formatter,
		logger:     logger,
		metrics:    collectors,
		jobs:       make(chan *monitor.Sensor, numWorkers*2),
	}
}

// Start launches the worker goroutines. They run until ctx is cancelled or
// Stop is called.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit enqueues a sensor pass, blocking if the job channel is full. The
// pool holds a reference on the sensor until its pass completes, so a
// sensor cannot be torn down mid-probe.
func (p *Pool) Submit(sensor *monitor.Sensor) {
	sensor.AddRef()
	p.jobs <- sensor
}

// Stop closes the job channel and waits for every in-flight pass to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case sensor, ok := <-p.jobs:
			if !ok {
				return
			}
			p.runPass(ctx, sensor)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) runPass(ctx context.Context, sensor *monitor.Sensor) {
	defer sensor.Release()

	records, err := p.engine.Pass(ctx, sensor, nil)
	if err != nil {
		p.logger.Error("engine: pass setup failed", "sensor", sensor.Name, "error", err.Error())
		return
	}
	for _, rec := range records {
		data, ferr := p.formatter.Format(rec)
		if ferr != nil {
			p.logger.Error("engine: format failed", "sensor", sensor.Name, "monitor", rec.Monitor, "error", ferr.Error())
			continue
		}
		if serr := p.sink.Send(data); serr != nil {
			p.logger.Error("engine: sink rejected record", "sensor", sensor.Name, "monitor", rec.Monitor, "error", serr.Error())
			if p.metrics != nil {
				p.metrics.RecordsRejected.Inc()
			}
			continue
		}
		if p.metrics != nil {
			p.metrics.RecordsEmitted.Inc()
		}
	}
}
