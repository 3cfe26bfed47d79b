// Package trapd implements the SNMP trap listener: a long-running worker
// that converts inbound SNMP TRAP/TRAP2/INFORM PDUs into emitter inputs
// sharing the same Value/Monitor/enrichment model as the sensor engine.
package trapd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/nkazuki-labs/monitor-agent/internal/emit"
	"github.com/nkazuki-labs/monitor-agent/internal/metrics"
	"github.com/nkazuki-labs/monitor-agent/internal/monitor"
	"github.com/nkazuki-labs/monitor-agent/internal/transport"
	"github.com/nkazuki-labs/monitor-agent/internal/value"
)

const (
	oidSysUpTime   = ".1.3.6.1.2.1.1.3.0"
	oidSnmpTrapOID = ".1.3.6.1.6.3.1.1.4.1.0"
	oidIfIndexBase = ".1.3.6.1.2.1.2.2.1.1"
	v1StdTrapRoot  = ".1.3.6.1.6.3.1.1.5"
)

// Config controls Listener behaviour.
type Config struct {
	// ListenAddr is the UDP address to bind to (default "0.0.0.0:162").
	ListenAddr string

	// Community is the SNMP community string for v1/v2c source validation.
	// Empty accepts all communities.
	Community string

	// SNMPVersion controls which SNMP version the listener accepts.
	// Defaults to gosnmp.Version2c.
	SNMPVersion gosnmp.SnmpVersion

	// CloseTimeout bounds how long Stop waits for the socket to close
	// (default 3s, matching gosnmp's default).
	CloseTimeout time.Duration

	// ReadinessPollInterval is the timed readiness-multiplex interval the
	// background worker uses to observe cancellation promptly, per the
	// concurrency model (default 5s).
	ReadinessPollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = "0.0.0.0:162"
	}
	if c.SNMPVersion == 0 {
		c.SNMPVersion = gosnmp.Version2c
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = 3 * time.Second
	}
	if c.ReadinessPollInterval == 0 {
		c.ReadinessPollInterval = 5 * time.Second
	}
	return c
}

// Listener is the background SNMP trap worker. Gosnmp's TrapListener
// acknowledges INFORM PDUs with a RESPONSE internally as part of its PDU
// dispatch, satisfying the "respond to INFORM" step without this package
// re-implementing raw socket/PDU-cloning logic.
type Listener struct {
	cfg     Config
	sink    transport.Transport
	fmt     emit.Formatter
	logger  *slog.Logger
	metrics *metrics.Collectors

	listener *gosnmp.TrapListener

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Listener. sink receives one formatted record per accepted
// trap, its varbinds carried as enrichment; a nil logger defaults to a no-op logger. A
// nil collectors disables trap-count reporting.
func New(cfg Config, sink transport.Transport, formatter emit.Formatter, logger *slog.Logger, collectors *metrics.Collectors) *Listener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Listener{
		cfg:     cfg.withDefaults(),
		sink:    sink,
		fmt:     formatter,
		logger:  logger,
		metrics: collectors,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Run starts the listener and blocks until ctx is cancelled or Stop is
// called, honoring cooperative cancellation checked around a timed
// readiness wait rather than an interruptible syscall.
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("trapd: already running")
	}
	l.running = true
	l.mu.Unlock()

	tl := gosnmp.NewTrapListener()
	tl.Params = &gosnmp.GoSNMP{
		Version:   l.cfg.SNMPVersion,
		Community: l.cfg.Community,
	}
	tl.CloseTimeout = l.cfg.CloseTimeout
	tl.OnNewTrap = l.handleTrap
	l.listener = tl

	errCh := make(chan error, 1)
	go func() {
		defer close(l.doneCh)
		errCh <- tl.Listen(l.cfg.ListenAddr)
	}()

	select {
	case <-tl.Listening():
		l.logger.Info("trapd: listening", "addr", l.cfg.ListenAddr)
	case err := <-errCh:
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		return fmt.Errorf("trapd: listen %s: %w", l.cfg.ListenAddr, err)
	case <-ctx.Done():
		tl.Close()
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		return ctx.Err()
	}

	ticker := time.NewTicker(l.cfg.ReadinessPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.stopCh:
			return nil
		case <-ticker.C:
			// Wake periodically purely to re-check ctx/stopCh promptly.
		}
	}
}

// Stop shuts down the UDP listener. Safe to call multiple times.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.running = false
	if l.listener != nil {
		l.listener.Close()
	}
	close(l.stopCh)
	<-l.doneCh
	l.logger.Info("trapd: stopped")
}

// handleTrap is the gosnmp TrapHandlerFunc callback; it runs on gosnmp's
// internal listener goroutine and must not block for long.
func (l *Listener) handleTrap(pkt *gosnmp.SnmpPacket, addr *net.UDPAddr) {
	if pkt == nil {
		return
	}
	switch pkt.PDUType {
	case gosnmp.Trap, gosnmp.SNMPv2Trap, gosnmp.InformRequest:
	default:
		if l.metrics != nil {
			l.metrics.TrapsUnsupported.Inc()
		}
		return
	}
	if l.metrics != nil {
		l.metrics.TrapsReceived.Inc()
	}

	trapOID, varbinds := l.resolveTrapOID(pkt)
	enrichment := l.buildEnrichment(addr, varbinds)

	m := &monitor.Monitor{
		Name:       trapOID,
		Kind:       monitor.KindOID,
		Send:       true,
		Enrichment: enrichment,
	}
	enrichment.Set("type", m.TypeString())

	now := time.Now().Unix()
	records := emit.Emit(value.Number(1), m, now, nil)

	batch := make([][]byte, 0, len(records))
	for _, rec := range records {
		data, err := l.fmt.Format(rec)
		if err != nil {
			l.logger.Error("trapd: format failed", "trap_oid", trapOID, "error", err.Error())
			continue
		}
		batch = append(batch, data)
	}
	if len(batch) == 0 {
		return
	}

	if bt, ok := l.sink.(transport.BatchTransport); ok {
		accepted, err := bt.SendBatch(batch)
		for i := accepted; i < len(batch); i++ {
			l.logger.Error("trapd: sink rejected record", "trap_oid", trapOID, "index", i, "error", errString(err))
		}
		return
	}
	for _, data := range batch {
		if err := l.sink.Send(data); err != nil {
			l.logger.Error("trapd: sink rejected record", "trap_oid", trapOID, "error", err.Error())
		}
	}
}

func errString(err error) string {
	if err == nil {
		return "rejected"
	}
	return err.Error()
}

// resolveTrapOID determines the trap OID per PDU version and returns the
// varbinds still requiring enrichment processing (for v2c/v3 the trap-OID
// varbind itself is excluded; sysUpTime stays in and is skipped later by
// buildEnrichment).
func (l *Listener) resolveTrapOID(pkt *gosnmp.SnmpPacket) (string, []gosnmp.SnmpPDU) {
	if pkt.Version == gosnmp.Version1 {
		return resolveV1TrapOID(pkt), pkt.Variables
	}

	vars := pkt.Variables
	idx := -1
	if len(vars) > 1 && normalizeOID(vars[1].Name) == oidSnmpTrapOID {
		idx = 1
	} else {
		for i, v := range vars {
			if normalizeOID(v.Name) == oidSnmpTrapOID {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		l.logger.Error("trapd: could not find snmpTrapOID in TRAP2/INFORM PDU")
		return "", vars
	}

	oid := normalizeOID(fmt.Sprintf("%v", vars[idx].Value))
	remaining := make([]gosnmp.SnmpPDU, 0, len(vars)-1)
	remaining = append(remaining, vars[:idx]...)
	remaining = append(remaining, vars[idx+1:]...)
	return oid, remaining
}

// resolveV1TrapOID implements the RFC 3584 §3.1 v1→v2 trap-OID synthesis.
func resolveV1TrapOID(pkt *gosnmp.SnmpPacket) string {
	if pkt.GenericTrap == 6 {
		ent := strings.TrimSuffix(normalizeOID(pkt.Enterprise), ".")
		if !strings.HasSuffix(ent, ".0") {
			ent += ".0"
		}
		return fmt.Sprintf("%s.%d", ent, pkt.SpecificTrap)
	}
	return fmt.Sprintf("%s.%d", v1StdTrapRoot, pkt.GenericTrap+1)
}

// buildEnrichment builds the enrichment object for a trap measurement: the
// peer address as sensor_name, then one entry per remaining varbind keyed by
// OID-derived name, skipping sysUpTime and special-casing ifIndex.
func (l *Listener) buildEnrichment(addr *net.UDPAddr, varbinds []gosnmp.SnmpPDU) *monitor.Enrichment {
	var keys []string
	values := map[string]any{}

	if addr != nil {
		keys = append(keys, "sensor_name")
		values["sensor_name"] = addr.IP.String()
	}

	for _, pdu := range varbinds {
		oid := normalizeOID(pdu.Name)
		if oid == oidSysUpTime || oid == oidSnmpTrapOID {
			continue
		}
		if strings.HasPrefix(oid, oidIfIndexBase+".") {
			suffix := strings.TrimPrefix(oid, oidIfIndexBase+".")
			keys = append(keys, "if_index")
			values["if_index"] = suffix
			continue
		}

		key := oidKeyName(oid)
		val, ok := varbindJSONValue(pdu, l.logger)
		if !ok {
			continue
		}
		keys = append(keys, key)
		values[key] = val
	}

	return monitor.NewEnrichment(keys, values)
}

func varbindJSONValue(pdu gosnmp.SnmpPDU, logger *slog.Logger) (any, bool) {
	switch pdu.Type {
	case gosnmp.Integer, gosnmp.Gauge32, gosnmp.Counter32, gosnmp.TimeTicks, gosnmp.Uinteger32:
		return int64(gosnmp.ToBigInt(pdu.Value).Int64()), true
	case gosnmp.Counter64:
		return int64(gosnmp.ToBigInt(pdu.Value).Int64()), true
	case gosnmp.OctetString:
		switch b := pdu.Value.(type) {
		case []byte:
			return string(b), true
		case string:
			return b, true
		default:
			return fmt.Sprintf("%v", b), true
		}
	default:
		logger.Warn("trapd: unsupported varbind type, dropping", "oid", pdu.Name, "type", pdu.Type)
		return nil, false
	}
}

func oidKeyName(oid string) string {
	return strings.TrimPrefix(oid, ".")
}

func normalizeOID(oid string) string {
	oid = strings.TrimSpace(oid)
	if oid == "" {
		return ""
	}
	if !strings.HasPrefix(oid, ".") {
		oid = "." + oid
	}
	return strings.TrimSuffix(oid, ".")
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
