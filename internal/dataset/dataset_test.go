package dataset

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"netshield/internal/models"
)

func TestBuiltin(t *testing.T) {
	src := Builtin()
	if src.Len() != 10 {
		t.Fatalf("Len = %d, want 10", src.Len())
	}
	seen := map[string]bool{}
	for i := 0; i < src.Len(); i++ {
		r, err := src.RecordAt(i)
		if err != nil {
			t.Fatalf("RecordAt(%d): %v", i, err)
		}
		if seen[r.ID] {
			t.Fatalf("duplicate id %s", r.ID)
		}
		seen[r.ID] = true
		if r.Length < 0 || r.Timestamp.IsZero() {
			t.Fatalf("%s: length=%d timestamp=%v", r.ID, r.Length, r.Timestamp)
		}
	}
	first, _ := src.RecordAt(0)
	if first.ID != "pkt1" || first.Protocol != "DNS" {
		t.Fatalf("first record = %s %s", first.ID, first.Protocol)
	}
	if _, err := src.RecordAt(10); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("RecordAt(10) = %v, want ErrOutOfRange", err)
	}
}

func TestStaticCopiesInput(t *testing.T) {
	in := []models.Record{{ID: "a"}, {ID: "b"}}
	src := NewStatic(in)
	in[0].ID = "changed"
	if r, _ := src.RecordAt(0); r.ID != "a" {
		t.Fatalf("source shares caller slice: %s", r.ID)
	}
	if _, err := src.RecordAt(-1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("RecordAt(-1) = %v", err)
	}
}

func TestLiveAppendDedupes(t *testing.T) {
	l := NewLive()
	if !l.Append(models.Record{ID: "x"}) {
		t.Fatal("first append rejected")
	}
	if l.Append(models.Record{ID: "x", Info: "again"}) {
		t.Fatal("duplicate append accepted")
	}
	l.Append(models.Record{ID: "y"})
	if l.Len() != 2 {
		t.Fatalf("Len = %d, want 2", l.Len())
	}
	r, err := l.RecordAt(0)
	if err != nil || r.Info != "" {
		t.Fatalf("RecordAt(0) = %+v, %v", r, err)
	}
	if _, err := l.RecordAt(2); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("RecordAt(2) = %v", err)
	}
}

type frame struct {
	ts   time.Time
	data []byte
}

func frames(t *testing.T) []frame {
	t.Helper()
	src := net.HardwareAddr{0x00, 0x0c, 0x29, 0x1a, 0x2b, 0x3c}
	dst := net.HardwareAddr{0x00, 0x50, 0x56, 0xc0, 0x00, 0x08}
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	base := time.Date(2025, 5, 26, 10, 0, 1, 0, time.UTC)

	build := func(ls ...gopacket.SerializableLayer) []byte {
		buf := gopacket.NewSerializeBuffer()
		if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
			t.Fatalf("serialize: %v", err)
		}
		return append([]byte(nil), buf.Bytes()...)
	}

	eth := &layers.Ethernet{SrcMAC: src, DstMAC: dst, EthernetType: layers.EthernetTypeIPv4}
	ipUDP := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IPv4(192, 168, 1, 100), DstIP: net.IPv4(192, 168, 1, 1)}
	udp := &layers.UDP{SrcPort: 53000, DstPort: 53}
	_ = udp.SetNetworkLayerForChecksum(ipUDP)
	dns := &layers.DNS{ID: 0x1234, RD: true, Questions: []layers.DNSQuestion{
		{Name: []byte("example.com"), Type: layers.DNSTypeA, Class: layers.DNSClassIN},
	}}

	ipTCP := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IPv4(10, 0, 0, 5), DstIP: net.IPv4(172, 16, 0, 20)}
	tcp := &layers.TCP{SrcPort: 51234, DstPort: 443, SYN: true, Seq: 100, Window: 64240}
	_ = tcp.SetNetworkLayerForChecksum(ipTCP)

	return []frame{
		{ts: base, data: build(eth, ipUDP, udp, dns)},
		{ts: base.Add(250 * time.Millisecond), data: build(eth, ipTCP, tcp)},
	}
}

func checkLoaded(t *testing.T, src *Static, fs []frame) {
	t.Helper()
	if src.Len() != 2 {
		t.Fatalf("Len = %d, want 2", src.Len())
	}
	dnsRec, _ := src.RecordAt(0)
	tcpRec, _ := src.RecordAt(1)

	if dnsRec.ID != "pkt1" || dnsRec.Protocol != "DNS" || dnsRec.Source != "192.168.1.100" {
		t.Fatalf("first record = %s %s %s", dnsRec.ID, dnsRec.Protocol, dnsRec.Source)
	}
	if dnsRec.Length != len(fs[0].data) {
		t.Fatalf("length = %d, want %d", dnsRec.Length, len(fs[0].data))
	}
	if !dnsRec.Timestamp.Equal(fs[0].ts) {
		t.Fatalf("timestamp = %v, want %v", dnsRec.Timestamp, fs[0].ts)
	}
	if tcpRec.ID != "pkt2" || tcpRec.Protocol != "TCP" || tcpRec.Destination != "172.16.0.20" {
		t.Fatalf("second record = %s %s %s", tcpRec.ID, tcpRec.Protocol, tcpRec.Destination)
	}
	if got := tcpRec.TimestampText(); got != "2025-05-26 10:00:01.25" {
		t.Fatalf("timestamp text = %q", got)
	}
	if got := tcpRec.Details.LookupText("tcp_stream", "client"); got != "10.0.0.5:51234" {
		t.Fatalf("tcp_stream client = %q", got)
	}
	if _, ok := dnsRec.Details.Get("tcp_stream"); ok {
		t.Fatal("UDP record tagged with a TCP stream")
	}
}

func pcapFile(t *testing.T, fs []frame) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		t.Fatal(err)
	}
	for _, f := range fs {
		ci := gopacket.CaptureInfo{Timestamp: f.ts, CaptureLength: len(f.data), Length: len(f.data)}
		if err := w.WritePacket(ci, f.data); err != nil {
			t.Fatal(err)
		}
	}
	return &buf
}

func TestLoadPcap(t *testing.T) {
	fs := frames(t)
	src, err := LoadPcap(pcapFile(t, fs))
	if err != nil {
		t.Fatalf("LoadPcap: %v", err)
	}
	checkLoaded(t, src, fs)
	if src.Truncated() {
		t.Fatal("complete capture reported as truncated")
	}
}

func TestLoadPcapLimit(t *testing.T) {
	fs := frames(t)
	tests := []struct {
		limit     int
		len       int
		truncated bool
	}{
		{1, 1, true},
		{2, 2, false},
		{5, 2, false},
	}
	for _, tt := range tests {
		src, err := LoadPcapLimit(pcapFile(t, fs), tt.limit)
		if err != nil {
			t.Fatalf("limit %d: %v", tt.limit, err)
		}
		if src.Len() != tt.len || src.Truncated() != tt.truncated {
			t.Errorf("limit %d: Len=%d Truncated=%v, want %d %v",
				tt.limit, src.Len(), src.Truncated(), tt.len, tt.truncated)
		}
	}
}

func TestLoadPcapNg(t *testing.T) {
	fs := frames(t)
	var buf bytes.Buffer
	w, err := pcapgo.NewNgWriter(&buf, layers.LinkTypeEthernet)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range fs {
		ci := gopacket.CaptureInfo{Timestamp: f.ts, CaptureLength: len(f.data), Length: len(f.data)}
		if err := w.WritePacket(ci, f.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	src, err := LoadPcap(&buf)
	if err != nil {
		t.Fatalf("LoadPcap: %v", err)
	}
	checkLoaded(t, src, fs)
}

func TestLoadPcapRejectsGarbage(t *testing.T) {
	tests := map[string]string{
		"empty":   "",
		"garbage": "this is not a capture file",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadPcap(strings.NewReader(input)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
