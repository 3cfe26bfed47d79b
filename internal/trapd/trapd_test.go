package trapd

import (
	"log/slog"
	"net"
	"testing"

	"github.com/gosnmp/gosnmp"
)

func TestResolveV1TrapOIDEnterpriseSpecific(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Version: gosnmp.Version1,
		SnmpTrap: gosnmp.SnmpTrap{
			GenericTrap:  6,
			SpecificTrap: 2,
			Enterprise:   ".1.3.6.1.4.1.9",
		},
	}
	got := resolveV1TrapOID(pkt)
	if got != ".1.3.6.1.4.1.9.0.2" {
		t.Fatalf("resolveV1TrapOID = %q, want .1.3.6.1.4.1.9.0.2", got)
	}
}

func TestResolveV1TrapOIDEnterpriseAlreadyZero(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Version: gosnmp.Version1,
		SnmpTrap: gosnmp.SnmpTrap{
			GenericTrap:  6,
			SpecificTrap: 1,
			Enterprise:   ".1.3.6.1.4.1.9.0",
		},
	}
	got := resolveV1TrapOID(pkt)
	if got != ".1.3.6.1.4.1.9.0.1" {
		t.Fatalf("resolveV1TrapOID = %q, want .1.3.6.1.4.1.9.0.1 (no extra zero appended)", got)
	}
}

func TestResolveV1TrapOIDGeneric(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{Version: gosnmp.Version1, SnmpTrap: gosnmp.SnmpTrap{GenericTrap: 0}}
	got := resolveV1TrapOID(pkt)
	if got != ".1.3.6.1.6.3.1.1.5.1" {
		t.Fatalf("resolveV1TrapOID = %q, want .1.3.6.1.6.3.1.1.5.1", got)
	}
}

func TestResolveTrapOIDv2FastPath(t *testing.T) {
	l := &Listener{logger: slog.New(slog.NewTextHandler(noopWriter{}, nil))}
	pkt := &gosnmp.SnmpPacket{
		Version: gosnmp.Version2c,
		Variables: []gosnmp.SnmpPDU{
			{Name: oidSysUpTime, Type: gosnmp.TimeTicks, Value: uint32(100)},
			{Name: oidSnmpTrapOID, Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.4.1.9.99.1"},
			{Name: ".1.3.6.1.2.1.2.2.1.1.3", Type: gosnmp.Integer, Value: 3},
		},
	}
	oid, remaining := l.resolveTrapOID(pkt)
	if oid != ".1.3.6.1.4.1.9.99.1" {
		t.Fatalf("trap OID = %q", oid)
	}
	if len(remaining) != 2 {
		t.Fatalf("remaining = %v, want len 2", remaining)
	}
}

func TestBuildEnrichmentIfIndexAndSkips(t *testing.T) {
	l := &Listener{logger: slog.New(slog.NewTextHandler(noopWriter{}, nil))}
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.5")}
	varbinds := []gosnmp.SnmpPDU{
		{Name: oidSysUpTime, Type: gosnmp.TimeTicks, Value: uint32(100)},
		{Name: oidIfIndexBase + ".3", Type: gosnmp.Integer, Value: 3},
		{Name: ".1.3.6.1.2.1.1.1.0", Type: gosnmp.OctetString, Value: []byte("a widget")},
	}
	enr := l.buildEnrichment(addr, varbinds)

	sn, ok := enr.Get("sensor_name")
	if !ok || sn != "10.0.0.5" {
		t.Fatalf("sensor_name = %v,%v, want 10.0.0.5,true", sn, ok)
	}
	ifIdx, ok := enr.Get("if_index")
	if !ok || ifIdx != "3" {
		t.Fatalf("if_index = %v,%v, want 3,true", ifIdx, ok)
	}
	if _, ok := enr.Get("1.3.6.1.2.1.1.3.0"); ok {
		t.Fatalf("sysUpTime should be skipped from enrichment")
	}
	desc, ok := enr.Get("1.3.6.1.2.1.1.1.0")
	if !ok || desc != "a widget" {
		t.Fatalf("sysDescr = %v,%v, want 'a widget',true", desc, ok)
	}
}

func TestNormalizeOID(t *testing.T) {
	cases := map[string]string{
		"1.3.6.1.2.1.1.3.0":  ".1.3.6.1.2.1.1.3.0",
		".1.3.6.1.2.1.1.3.0": ".1.3.6.1.2.1.1.3.0",
		"":                   "",
	}
	for in, want := range cases {
		if got := normalizeOID(in); got != want {
			t.Errorf("normalizeOID(%q) = %q, want %q", in, got, want)
		}
	}
}
