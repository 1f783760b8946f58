package tui

import (
	"sync/atomic"

	"github.com/tturner/echoclient/internal/metrics"
)

const recordBuffer = 1024

// Sink forwards session output to the dashboard. Record never blocks the
// measurement loop; records that do not fit the buffer are counted and
// skipped by the display only.
type Sink struct {
	records chan metrics.PacketRecord
	done    chan metrics.SessionSummary
	skipped atomic.Int64
}

// NewSink creates a dashboard sink.
func NewSink() *Sink {
	return &Sink{
		records: make(chan metrics.PacketRecord, recordBuffer),
		done:    make(chan metrics.SessionSummary, 1),
	}
}

// Record implements metrics.Sink.
func (s *Sink) Record(rec metrics.PacketRecord) error {
	select {
	case s.records <- rec:
	default:
		s.skipped.Add(1)
	}
	return nil
}

// Finalize implements metrics.Sink.
func (s *Sink) Finalize(summary metrics.SessionSummary) error {
	select {
	case s.done <- summary:
	default:
	}
	return nil
}

// Skipped returns how many records the display dropped.
func (s *Sink) Skipped() int64 {
	return s.skipped.Load()
}
