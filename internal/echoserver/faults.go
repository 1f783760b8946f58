package echoserver

import (
	"io"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/tturner/echoclient/internal/config"
)

type faultPolicy struct {
	mu sync.Mutex

	enabled         bool
	latencyBase     time.Duration
	latencyJitter   time.Duration
	spikeEveryN     int
	spikeDelay      time.Duration
	dropEveryN      int
	closeEveryN     int
	closeAfterN     int
	stallEveryN     int
	stallDelay      time.Duration
	chunkWrites     bool
	chunkMin        int
	chunkMax        int
	interChunkDelay time.Duration
	rng             *rand.Rand
}

type responseFaultAction struct {
	drop    bool
	delay   time.Duration
	close   bool
	chunked bool
}

func resolveFaultPolicy(cfg *config.ServerConfig) *faultPolicy {
	seed := cfg.RNGSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	chunkMin := cfg.Faults.TCP.ChunkMin
	chunkMax := cfg.Faults.TCP.ChunkMax
	if chunkMin == 0 {
		chunkMin = 1
	}
	if chunkMax == 0 {
		chunkMax = 4
	}
	if chunkMax < chunkMin {
		chunkMax = chunkMin
	}
	stall := time.Duration(cfg.Faults.Reliability.StallMs) * time.Millisecond
	if stall == 0 {
		stall = time.Duration(cfg.Faults.Latency.SpikeDelayMs) * time.Millisecond
	}
	if stall == 0 {
		stall = time.Second
	}

	return &faultPolicy{
		enabled:         cfg.Faults.Enable,
		latencyBase:     time.Duration(cfg.Faults.Latency.BaseDelayMs) * time.Millisecond,
		latencyJitter:   time.Duration(cfg.Faults.Latency.JitterMs) * time.Millisecond,
		spikeEveryN:     cfg.Faults.Latency.SpikeEveryN,
		spikeDelay:      time.Duration(cfg.Faults.Latency.SpikeDelayMs) * time.Millisecond,
		dropEveryN:      cfg.Faults.Reliability.DropResponseEveryN,
		closeEveryN:     cfg.Faults.Reliability.CloseConnectionEveryN,
		closeAfterN:     cfg.Faults.Reliability.CloseAfterN,
		stallEveryN:     cfg.Faults.Reliability.StallResponseEveryN,
		stallDelay:      stall,
		chunkWrites:     cfg.Faults.TCP.ChunkWrites,
		chunkMin:        chunkMin,
		chunkMax:        chunkMax,
		interChunkDelay: time.Duration(cfg.Faults.TCP.InterChunkDelayMs) * time.Millisecond,
		rng:             rand.New(rand.NewSource(seed)),
	}
}

// next decides what happens to the count-th echo on a connection (1-based).
func (p *faultPolicy) next(count int) responseFaultAction {
	if !p.enabled {
		return responseFaultAction{chunked: p.chunkWrites}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	delay := p.latencyBase
	if p.latencyJitter > 0 {
		delay += time.Duration(p.rng.Int63n(int64(p.latencyJitter) + 1))
	}
	if p.spikeEveryN > 0 && count%p.spikeEveryN == 0 {
		delay += p.spikeDelay
	}
	if p.stallEveryN > 0 && count%p.stallEveryN == 0 {
		delay += p.stallDelay
	}

	return responseFaultAction{
		drop:    p.dropEveryN > 0 && count%p.dropEveryN == 0,
		delay:   delay,
		close:   (p.closeEveryN > 0 && count%p.closeEveryN == 0) || (p.closeAfterN > 0 && count >= p.closeAfterN),
		chunked: p.chunkWrites,
	}
}

func (s *Server) writeResponse(conn *net.TCPConn, remoteAddr string, count int, data []byte) error {
	action := s.faults.next(count)
	if action.delay > 0 {
		select {
		case <-time.After(action.delay):
		case <-s.ctx.Done():
			return io.EOF
		}
	}

	if action.drop {
		s.logger.Verbose("Dropping echo #%d to %s", count, remoteAddr)
	} else {
		write := conn.Write
		if action.chunked {
			write = func(b []byte) (int, error) { return len(b), s.writeChunks(conn, b) }
		}
		if _, err := write(data); err != nil {
			s.logger.Error("Write echo error to %s: %v", remoteAddr, err)
			return err
		}
	}

	if action.close {
		s.logger.Info("Closing connection from %s after echo #%d", remoteAddr, count)
		_ = conn.Close()
		return io.EOF
	}
	return nil
}

func (s *Server) writeChunks(conn *net.TCPConn, resp []byte) error {
	if len(resp) == 0 {
		return nil
	}
	s.faults.mu.Lock()
	chunks := s.faults.chunkMin
	if s.faults.chunkMax > s.faults.chunkMin {
		chunks = s.faults.chunkMin + s.faults.rng.Intn(s.faults.chunkMax-s.faults.chunkMin+1)
	}
	delay := s.faults.interChunkDelay
	s.faults.mu.Unlock()

	if chunks <= 1 {
		_, err := conn.Write(resp)
		return err
	}
	size := (len(resp) + chunks - 1) / chunks
	offset := 0
	for offset < len(resp) {
		end := offset + size
		if end > len(resp) {
			end = len(resp)
		}
		if _, err := conn.Write(resp[offset:end]); err != nil {
			return err
		}
		offset = end
		if delay > 0 && offset < len(resp) {
			time.Sleep(delay)
		}
	}
	return nil
}
