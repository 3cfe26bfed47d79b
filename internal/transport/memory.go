package transport

import "sync"

// Memory is an in-process BatchTransport used by tests: it simply
// accumulates every sent record.
type Memory struct {
	mu      sync.Mutex
	Records [][]byte
}

// NewMemory constructs an empty Memory sink.
func NewMemory() *Memory { return &Memory{} }

// Send appends data to Records.
func (m *Memory) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), data...)
	m.Records = append(m.Records, cp)
	return nil
}

// SendBatch appends every record and reports them all accepted.
func (m *Memory) SendBatch(records [][]byte) (int, error) {
	for _, r := range records {
		_ = m.Send(r)
	}
	return len(records), nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// Snapshot returns a copy of the accumulated records.
func (m *Memory) Snapshot() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.Records))
	copy(out, m.Records)
	return out
}
