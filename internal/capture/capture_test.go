package capture

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

type segment struct {
	src, dst uint16
	seq      uint32
	payload  []byte
	rst      bool
}

func buildSegment(t *testing.T, s segment) []byte {
	t.Helper()
	srcIP, dstIP := net.IP{10, 0, 0, 1}, net.IP{10, 0, 0, 2}
	if s.src == 7 {
		srcIP, dstIP = dstIP, srcIP
	}
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.src),
		DstPort: layers.TCPPort(s.dst),
		Seq:     s.seq,
		ACK:     !s.rst,
		PSH:     len(s.payload) > 0,
		RST:     s.rst,
		Window:  65535,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("checksum layer: %v", err)
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(s.payload)); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return buf.Bytes()
}

func testSegments() []segment {
	data := []byte("ABCDEFGHIJ")
	return []segment{
		{src: 40000, dst: 7, seq: 1000, payload: data},
		{src: 7, dst: 40000, seq: 5000, payload: data},
		{src: 40000, dst: 7, seq: 1000, payload: data}, // retransmission
		{src: 40000, dst: 7, seq: 1010, payload: data},
		{src: 7, dst: 40000, seq: 5010},
		{src: 7, dst: 40000, seq: 5010, rst: true},
		{src: 40000, dst: 8080, seq: 1, payload: data}, // other port
	}
}

const wantSnapshot = "packets=6 payload=4 bytes=40 retrans=1 resets=1"

func checkSnapshot(t *testing.T, got Snapshot) {
	t.Helper()
	want := Snapshot{Packets: 6, PayloadSegments: 4, PayloadBytes: 40, Retransmits: 1, Resets: 1}
	if got != want {
		t.Fatalf("snapshot = %+v, want %s", got, wantSnapshot)
	}
}

func TestStatsObserve(t *testing.T) {
	stats := NewStats(7)
	for _, s := range testSegments() {
		packet := gopacket.NewPacket(buildSegment(t, s), layers.LayerTypeEthernet, gopacket.Default)
		stats.Observe(packet)
	}
	checkSnapshot(t, stats.Snapshot())
}

func TestStatsIgnoresNonTCP(t *testing.T) {
	stats := NewStats(7)
	packet := gopacket.NewPacket([]byte{0x01, 0x02}, layers.LayerTypeEthernet, gopacket.Default)
	stats.Observe(packet)
	if got := stats.Snapshot(); got != (Snapshot{}) {
		t.Fatalf("snapshot = %+v, want zero", got)
	}
}

func TestAnalyzeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("header: %v", err)
	}
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, s := range testSegments() {
		data := buildSegment(t, s)
		ci := gopacket.CaptureInfo{Timestamp: ts.Add(time.Duration(i) * time.Millisecond), CaptureLength: len(data), Length: len(data)}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatalf("write packet: %v", err)
		}
	}
	f.Close()

	got, err := AnalyzeFile(path, 7)
	if err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}
	checkSnapshot(t, got)
}

func TestAnalyzeFileMissing(t *testing.T) {
	if _, err := AnalyzeFile(filepath.Join(t.TempDir(), "missing.pcap"), 7); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFilter(t *testing.T) {
	if got := Filter(7); got != "tcp port 7" {
		t.Fatalf("Filter(7) = %q", got)
	}
}

func TestSeqLEQWraparound(t *testing.T) {
	tests := []struct {
		a, b uint32
		want bool
	}{
		{10, 20, true},
		{20, 20, true},
		{21, 20, false},
		{5, 0xFFFFFFF0, false},
		{0xFFFFFFF0, 5, true},
	}
	for _, tt := range tests {
		if got := seqLEQ(tt.a, tt.b); got != tt.want {
			t.Errorf("seqLEQ(%d, %d) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIsGUIDName(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{`\Device\NPF_{12345678-1234-1234-1234-123456789ABC}`, true},
		{"eth0", false},
		{"lo0", false},
		{`\Device\NPF_Eth`, false},
		{`\Device\NPF_EthernetAdapter`, true},
		{"", false},
	}
	for _, tt := range tests {
		if got := isGUIDName(tt.input); got != tt.expected {
			t.Errorf("isGUIDName(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestPickLoopbackAndMatchAddress(t *testing.T) {
	interfaces := []InterfaceInfo{
		{Name: "eth0", Addresses: []string{"192.168.1.10"}},
		{Name: "lo", Addresses: []string{"127.0.0.1"}, IsLoopback: true},
	}
	name, err := pickLoopback(interfaces)
	if err != nil || name != "lo" {
		t.Fatalf("pickLoopback = %q, %v", name, err)
	}
	if got := matchAddress(interfaces, "192.168.1.10"); got != "eth0" {
		t.Fatalf("matchAddress = %q, want eth0", got)
	}
	if got := matchAddress(interfaces, "10.9.9.9"); got != "" {
		t.Fatalf("matchAddress = %q, want empty", got)
	}

	byName := []InterfaceInfo{{Name: "lo0"}}
	if name, err := pickLoopback(byName); err != nil || name != "lo0" {
		t.Fatalf("pickLoopback by name = %q, %v", name, err)
	}
	if _, err := pickLoopback([]InterfaceInfo{{Name: "eth0"}}); err == nil {
		t.Fatal("expected error without loopback")
	}
}
