package capture

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Snapshot is a point-in-time copy of the capture counters.
type Snapshot struct {
	Packets         int // TCP segments on the echo port
	PayloadSegments int // segments carrying data
	PayloadBytes    int
	Retransmits     int // data segments whose range was already seen
	Resets          int
}

// Stats accumulates TCP counters for one echo port.
type Stats struct {
	mu      sync.Mutex
	port    layers.TCPPort
	snap    Snapshot
	highSeq map[string]uint32
}

// NewStats creates counters for traffic to or from port.
func NewStats(port int) *Stats {
	return &Stats{
		port:    layers.TCPPort(port),
		highSeq: make(map[string]uint32),
	}
}

// Observe inspects one packet. Non-TCP packets and other ports are ignored.
func (s *Stats) Observe(packet gopacket.Packet) {
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return
	}
	tcp, _ := tcpLayer.(*layers.TCP)
	if tcp == nil || (tcp.SrcPort != s.port && tcp.DstPort != s.port) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Packets++
	if tcp.RST {
		s.snap.Resets++
	}
	if len(tcp.Payload) == 0 {
		return
	}
	s.snap.PayloadSegments++
	s.snap.PayloadBytes += len(tcp.Payload)

	key := flowKey(packet.NetworkLayer(), tcp)
	end := tcp.Seq + uint32(len(tcp.Payload))
	if high, ok := s.highSeq[key]; ok && seqLEQ(end, high) {
		s.snap.Retransmits++
		return
	}
	s.highSeq[key] = end
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// AnalyzeFile replays a pcap file through a fresh Stats.
func AnalyzeFile(path string, port int) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open pcap: %w", err)
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read pcap header: %w", err)
	}

	stats := NewStats(port)
	for {
		data, ci, err := reader.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats.Snapshot(), fmt.Errorf("read packet: %w", err)
		}
		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.Default)
		packet.Metadata().CaptureInfo = ci
		stats.Observe(packet)
	}
	return stats.Snapshot(), nil
}

func flowKey(netLayer gopacket.NetworkLayer, tcp *layers.TCP) string {
	if netLayer == nil {
		return fmt.Sprintf("%d->%d", tcp.SrcPort, tcp.DstPort)
	}
	flow := netLayer.NetworkFlow()
	return fmt.Sprintf("%s:%d->%s:%d", flow.Src(), tcp.SrcPort, flow.Dst(), tcp.DstPort)
}

// seqLEQ compares sequence numbers with wraparound.
func seqLEQ(a, b uint32) bool {
	return int32(a-b) <= 0
}
