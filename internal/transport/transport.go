// Package transport implements the downstream sink the emitter publishes
// formatted records to: publish_batch(records[]) returning the count
// accepted, with per-record rejection reported individually.
package transport

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Transport is the pipeline contract every sink implements. Send delivers
// one pre-formatted message (JSON bytes from internal/emit).
type Transport interface {
	Send(data []byte) error
	Close() error
}

// BatchTransport additionally exposes the sink's batch contract: given a
// slice of pre-formatted records, it returns how many were accepted.
// Records beyond the returned count may have been partially accepted or
// rejected per record; a rejected record's error is logged and the payload
// is the caller's to discard.
type BatchTransport interface {
	Transport
	SendBatch(records [][]byte) (accepted int, err error)
}

// Config controls WriterTransport behaviour.
type Config struct {
	// Writer is the destination. nil defaults to os.Stdout.
	Writer io.Writer

	// Newline appended after each message. Default "\n".
	Newline string
}

// WriterTransport implements BatchTransport by writing each message to an
// io.Writer followed by a configurable newline. Safe for concurrent use.
type WriterTransport struct {
	mu     sync.Mutex
	w      io.Writer
	nl     []byte
	logger *slog.Logger
}

// New constructs a WriterTransport.
//
//   - cfg.Writer defaults to os.Stdout when nil.
//   - cfg.Newline defaults to "\n" when empty.
//   - logger defaults to a no-op writer when nil.
func New(cfg Config, logger *slog.Logger) *WriterTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	nl := cfg.Newline
	if nl == "" {
		nl = "\n"
	}
	return &WriterTransport{w: w, nl: []byte(nl), logger: logger}
}

// Send writes data followed by the configured newline.
func (t *WriterTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.w.Write(data); err != nil {
		t.logger.Error("transport: write failed", "error", err.Error(), "bytes", len(data))
		return fmt.Errorf("transport: write: %w", err)
	}
	if _, err := t.w.Write(t.nl); err != nil {
		t.logger.Error("transport: newline write failed", "error", err.Error())
		return fmt.Errorf("transport: write newline: %w", err)
	}
	t.logger.Debug("transport: sent message", "bytes", len(data))
	return nil
}

// SendBatch sends every record in order, stopping at the first failure and
// returning how many were accepted.
func (t *WriterTransport) SendBatch(records [][]byte) (int, error) {
	for i, rec := range records {
		if err := t.Send(rec); err != nil {
			return i, err
		}
	}
	return len(records), nil
}

// Close closes the underlying writer when it implements io.Closer (e.g. a
// RotatingFile), except for os.Stdout/os.Stderr which the caller does not
// own. Otherwise it is a no-op.
func (t *WriterTransport) Close() error {
	if t.w == os.Stdout || t.w == os.Stderr {
		return nil
	}
	if c, ok := t.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
