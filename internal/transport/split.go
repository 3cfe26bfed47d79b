package transport

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// SplitConfig controls SplitWriterTransport behaviour.
type SplitConfig struct {
	// MetricWriter receives poll-derived records. nil defaults to os.Stdout.
	MetricWriter io.Writer

	// TrapWriter receives trap-derived records. nil defaults to os.Stderr.
	TrapWriter io.Writer

	// Newline appended after each message. Default "\n".
	Newline string
}

// SplitWriterTransport implements BatchTransport by routing each JSON
// message to one of two io.Writers based on its content: a fast
// bytes.Contains check for the "if_index" key sends a record to the trap
// writer rather than full JSON unmarshalling, keeping the hot path
// allocation-free. The trap listener sets that key only when a trap carries
// an ifIndex varbind, so trap records without one go to the metric writer,
// as does any record whose enrichment lacks the key.
type SplitWriterTransport struct {
	metricMu sync.Mutex
	trapMu   sync.Mutex
	metricW  io.Writer
	trapW    io.Writer
	nl       []byte
	closers  []io.Closer
	logger   *slog.Logger
}

var trapMarker = []byte(`"if_index"`)

// NewSplit constructs a SplitWriterTransport.
func NewSplit(cfg SplitConfig, logger *slog.Logger) *SplitWriterTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	mw := cfg.MetricWriter
	if mw == nil {
		mw = os.Stdout
	}
	tw := cfg.TrapWriter
	if tw == nil {
		tw = os.Stderr
	}
	nl := cfg.Newline
	if nl == "" {
		nl = "\n"
	}

	st := &SplitWriterTransport{metricW: mw, trapW: tw, nl: []byte(nl), logger: logger}

	if c, ok := mw.(io.Closer); ok && mw != os.Stdout && mw != os.Stderr {
		st.closers = append(st.closers, c)
	}
	if c, ok := tw.(io.Closer); ok && tw != os.Stdout && tw != os.Stderr {
		st.closers = append(st.closers, c)
	}
	return st
}

// Send inspects data for the trap marker and routes to the appropriate
// writer; everything else is treated as a poll-derived metric.
func (st *SplitWriterTransport) Send(data []byte) error {
	if bytes.Contains(data, trapMarker) {
		return st.writeTo(&st.trapMu, st.trapW, data, "trap")
	}
	return st.writeTo(&st.metricMu, st.metricW, data, "metric")
}

// SendBatch sends every record in order, stopping at the first failure.
func (st *SplitWriterTransport) SendBatch(records [][]byte) (int, error) {
	for i, rec := range records {
		if err := st.Send(rec); err != nil {
			return i, err
		}
	}
	return len(records), nil
}

// Close flushes and closes any io.Closer writers (e.g. RotatingFile).
func (st *SplitWriterTransport) Close() error {
	var firstErr error
	for _, c := range st.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (st *SplitWriterTransport) writeTo(mu *sync.Mutex, w io.Writer, data []byte, kind string) error {
	mu.Lock()
	defer mu.Unlock()

	if _, err := w.Write(data); err != nil {
		st.logger.Error("transport: write failed", "kind", kind, "error", err.Error(), "bytes", len(data))
		return fmt.Errorf("transport: %s write: %w", kind, err)
	}
	if _, err := w.Write(st.nl); err != nil {
		st.logger.Error("transport: newline write failed", "kind", kind, "error", err.Error())
		return fmt.Errorf("transport: %s write newline: %w", kind, err)
	}
	st.logger.Debug("transport: sent message", "kind", kind, "bytes", len(data))
	return nil
}
