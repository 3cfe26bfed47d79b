// rotate.go bounds the size of transport output files.
//
// When writing a record would push the active file past MaxBytes, the file
// is renamed aside with a unix-timestamp suffix (metrics.json ->
// metrics.json.1700000000) and a fresh file is opened under the original
// name. When MaxBackups is set, the oldest rotations beyond that count are
// removed after each rotation.
package transport

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RotateConfig controls output file rotation.
type RotateConfig struct {
	// FilePath is the active file name (required).
	FilePath string

	// MaxBytes triggers rotation when a write would push the active file
	// past this size. Zero disables rotation.
	MaxBytes int64

	// MaxBackups is the number of rotated files to keep. Zero keeps all.
	MaxBackups int
}

// RotatingFile is an io.WriteCloser enforcing RotateConfig. Safe for
// concurrent use.
type RotatingFile struct {
	mu      sync.Mutex
	cfg     RotateConfig
	file    *os.File
	written int64
	logger  *slog.Logger
	now     func() time.Time
}

// NewRotatingFile opens (or appends to) the file at cfg.FilePath. The
// caller must call Close when finished.
func NewRotatingFile(cfg RotateConfig, logger *slog.Logger) (*RotatingFile, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("transport: rotate: FilePath is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("transport: rotate: mkdir for %s: %w", cfg.FilePath, err)
	}

	rf := &RotatingFile{cfg: cfg, logger: logger, now: time.Now}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Write implements io.Writer, rotating first when p would not fit.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.cfg.MaxBytes > 0 && rf.written > 0 && rf.written+int64(len(p)) > rf.cfg.MaxBytes {
		if err := rf.rotate(); err != nil {
			// Keep writing to the oversized file rather than dropping records.
			rf.logger.Error("transport: rotation failed", "file", rf.cfg.FilePath, "error", err.Error())
		}
	}

	n, err := rf.file.Write(p)
	rf.written += int64(n)
	return n, err
}

// Close closes the active file.
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}

func (rf *RotatingFile) open() error {
	f, err := os.OpenFile(rf.cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("transport: rotate: open %s: %w", rf.cfg.FilePath, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("transport: rotate: stat %s: %w", rf.cfg.FilePath, err)
	}
	rf.file = f
	rf.written = info.Size()
	return nil
}

// rotate renames the active file aside and reopens a fresh one. Multiple
// rotations within the same second get a disambiguating counter suffix
// (metrics.json.1700000000-1).
func (rf *RotatingFile) rotate() error {
	if err := rf.file.Close(); err != nil {
		rf.logger.Warn("transport: rotate: close error", "file", rf.cfg.FilePath, "error", err.Error())
	}
	rf.file = nil

	aside := rf.asideName()
	if err := os.Rename(rf.cfg.FilePath, aside); err != nil {
		// Reopen the original so writes can continue either way.
		openErr := rf.open()
		if openErr != nil {
			return openErr
		}
		return fmt.Errorf("transport: rotate: rename %s: %w", rf.cfg.FilePath, err)
	}
	rf.logger.Info("transport: rotated", "file", rf.cfg.FilePath, "rotated_to", aside)

	if rf.cfg.MaxBackups > 0 {
		rf.prune()
	}
	return rf.open()
}

func (rf *RotatingFile) asideName() string {
	stamp := rf.now().Unix()
	name := fmt.Sprintf("%s.%d", rf.cfg.FilePath, stamp)
	for i := 1; ; i++ {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s.%d-%d", rf.cfg.FilePath, stamp, i)
	}
}

// prune removes the oldest rotations beyond MaxBackups, ordered by their
// timestamp suffix.
func (rf *RotatingFile) prune() {
	rotations, err := filepath.Glob(rf.cfg.FilePath + ".*")
	if err != nil {
		return
	}

	type rotation struct {
		path    string
		stamp   int64
		counter int64
	}
	var found []rotation
	for _, path := range rotations {
		suffix := strings.TrimPrefix(path, rf.cfg.FilePath+".")
		stampPart, counterPart, _ := strings.Cut(suffix, "-")
		stamp, err := strconv.ParseInt(stampPart, 10, 64)
		if err != nil {
			continue // not one of ours
		}
		counter, _ := strconv.ParseInt(counterPart, 10, 64)
		found = append(found, rotation{path: path, stamp: stamp, counter: counter})
	}
	if len(found) <= rf.cfg.MaxBackups {
		return
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].stamp != found[j].stamp {
			return found[i].stamp < found[j].stamp
		}
		return found[i].counter < found[j].counter
	})
	for _, old := range found[:len(found)-rf.cfg.MaxBackups] {
		if err := os.Remove(old.path); err != nil {
			rf.logger.Warn("transport: rotate: prune error", "file", old.path, "error", err.Error())
			continue
		}
		rf.logger.Debug("transport: pruned old rotation", "file", old.path)
	}
}
