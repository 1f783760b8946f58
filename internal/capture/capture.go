package capture

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"
)

const snapLen = 65535

// Capture records the echo session's TCP traffic to a pcap file.
type Capture struct {
	handle    *pcap.Handle
	writer    *pcapgo.Writer
	file      *os.File
	stats     *Stats
	startTime time.Time
	stopChan  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once

	mu       sync.Mutex
	writeErr error
}

// Filter returns the BPF expression for the echo session traffic.
func Filter(port int) string {
	return fmt.Sprintf("tcp port %d", port)
}

// StartCapture starts capturing packets for the given TCP port on iface.
func StartCapture(iface string, port int, outputFile string) (*Capture, error) {
	handle, err := pcap.OpenLive(iface, snapLen, false, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("open live capture on %s: %w", iface, err)
	}

	if err := handle.SetBPFFilter(Filter(port)); err != nil {
		handle.Close()
		return nil, fmt.Errorf("set BPF filter: %w", err)
	}

	file, err := os.Create(outputFile)
	if err != nil {
		handle.Close()
		return nil, fmt.Errorf("create pcap file: %w", err)
	}

	writer := pcapgo.NewWriter(file)
	if err := writer.WriteFileHeader(snapLen, handle.LinkType()); err != nil {
		file.Close()
		handle.Close()
		return nil, fmt.Errorf("write pcap header: %w", err)
	}

	c := &Capture{
		handle:    handle,
		writer:    writer,
		file:      file,
		stats:     NewStats(port),
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}

	go c.captureLoop()

	return c, nil
}

// StartCaptureForTarget picks the interface that routes to host and starts
// capturing there.
func StartCaptureForTarget(host string, port int, outputFile string) (*Capture, string, error) {
	iface, err := DetectInterfaceForTarget(host)
	if err != nil {
		return nil, "", err
	}
	c, err := StartCapture(iface, port, outputFile)
	if err != nil {
		return nil, "", err
	}
	return c, iface, nil
}

func (c *Capture) captureLoop() {
	defer close(c.done)
	packetSource := gopacket.NewPacketSource(c.handle, c.handle.LinkType())
	packets := packetSource.Packets()

	for {
		select {
		case <-c.stopChan:
			return
		case packet, ok := <-packets:
			if !ok {
				return
			}
			if packet == nil {
				continue
			}
			c.stats.Observe(packet)

			ci := packet.Metadata().CaptureInfo
			if err := c.writer.WritePacket(ci, packet.Data()); err != nil {
				c.mu.Lock()
				if c.writeErr == nil {
					c.writeErr = err
				}
				c.mu.Unlock()
			}
		}
	}
}

// Stop stops the capture and closes resources (idempotent). It returns the
// first write error seen, if any.
func (c *Capture) Stop() error {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		select {
		case <-c.done:
		case <-time.After(time.Second):
		}

		if c.handle != nil {
			c.handle.Close()
		}
		if c.file != nil {
			if err := c.file.Close(); err != nil {
				c.mu.Lock()
				if c.writeErr == nil {
					c.writeErr = err
				}
				c.mu.Unlock()
			}
		}
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeErr
}

// Stats returns a snapshot of the capture counters.
func (c *Capture) Stats() Snapshot {
	return c.stats.Snapshot()
}

// Duration returns how long the capture has been running.
func (c *Capture) Duration() time.Duration {
	return time.Since(c.startTime)
}
