package metrics

// Per-packet round-trip records and the end-of-session summary

import (
	"math"
	"sort"
	"sync"
	"time"
)

// PacketRecord is one successful round trip.
type PacketRecord struct {
	Seq           int       `json:"packet_num"`
	Timestamp     time.Time `json:"timestamp"`
	SendTimeNs    int64     `json:"send_time_ns"`
	ReceiveTimeNs int64     `json:"receive_time_ns"`
	RTTUs         float64   `json:"rtt_us"`
}

// NewPacketRecord derives the RTT from the send and receive times.
func NewPacketRecord(seq int, sentAt time.Time, sendNs, recvNs int64) PacketRecord {
	return PacketRecord{
		Seq:           seq,
		Timestamp:     sentAt,
		SendTimeNs:    sendNs,
		ReceiveTimeNs: recvNs,
		RTTUs:         float64(recvNs-sendNs) / 1000,
	}
}

// Sink consumes session output. Finalize is called exactly once per session.
type Sink interface {
	Record(rec PacketRecord) error
	Finalize(summary SessionSummary) error
}

// SessionSummary contains aggregated statistics for one session.
// RTT values are in microseconds.
type SessionSummary struct {
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	Sent        int            `json:"sent"`
	Received    int            `json:"received"`
	Lost        int            `json:"lost"`
	LossPercent float64        `json:"loss_percent"`
	Mismatched  int            `json:"mismatched,omitempty"`
	HasRTT      bool           `json:"has_rtt"`
	MinRTT      float64        `json:"min_rtt_us,omitempty"`
	MaxRTT      float64        `json:"max_rtt_us,omitempty"`
	MeanRTT     float64        `json:"mean_rtt_us,omitempty"`
	HasStdDev   bool           `json:"has_stddev"`
	StdDevRTT   float64        `json:"stddev_rtt_us,omitempty"`
	P50RTT      float64        `json:"p50_rtt_us,omitempty"`
	P90RTT      float64        `json:"p90_rtt_us,omitempty"`
	P95RTT      float64        `json:"p95_rtt_us,omitempty"`
	P99RTT      float64        `json:"p99_rtt_us,omitempty"`
	RTTBuckets  map[string]int `json:"rtt_buckets,omitempty"`
	Reason      string         `json:"reason"`
}

// Summarize computes a SessionSummary from the complete record list.
// Min/max/mean are only set when at least one record exists and the
// standard deviation only with two or more.
func Summarize(records []PacketRecord, sent, mismatched int) SessionSummary {
	s := SessionSummary{
		Sent:       sent,
		Received:   len(records),
		Mismatched: mismatched,
	}
	s.Lost = s.Sent - s.Received
	if s.Sent > 0 {
		s.LossPercent = float64(s.Lost) / float64(s.Sent) * 100
	}
	if len(records) == 0 {
		return s
	}

	rtts := make([]float64, len(records))
	sum := 0.0
	s.MinRTT = records[0].RTTUs
	s.MaxRTT = records[0].RTTUs
	s.RTTBuckets = make(map[string]int)
	for i, r := range records {
		rtts[i] = r.RTTUs
		sum += r.RTTUs
		if r.RTTUs < s.MinRTT {
			s.MinRTT = r.RTTUs
		}
		if r.RTTUs > s.MaxRTT {
			s.MaxRTT = r.RTTUs
		}
		incrementBucket(s.RTTBuckets, r.RTTUs)
	}
	s.HasRTT = true
	s.MeanRTT = sum / float64(len(rtts))

	if len(rtts) >= 2 {
		var sq float64
		for _, v := range rtts {
			d := v - s.MeanRTT
			sq += d * d
		}
		s.StdDevRTT = math.Sqrt(sq / float64(len(rtts)-1))
		s.HasStdDev = true
	}

	p := computePercentiles(rtts)
	s.P50RTT, s.P90RTT, s.P95RTT, s.P99RTT = p[0], p[1], p[2], p[3]
	return s
}

// Collector keeps every record of a session in memory.
type Collector struct {
	mu      sync.RWMutex
	records []PacketRecord
	summary *SessionSummary
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{records: make([]PacketRecord, 0)}
}

// Record appends a record
func (c *Collector) Record(rec PacketRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

// Finalize stores the session summary
func (c *Collector) Finalize(summary SessionSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary = &summary
	return nil
}

// Records returns a copy of all recorded packets
func (c *Collector) Records() []PacketRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]PacketRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Summary returns the finalized summary, or nil before Finalize.
func (c *Collector) Summary() *SessionSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.summary == nil {
		return nil
	}
	s := *c.summary
	return &s
}

// MultiSink fans records and the summary out to several sinks. Every sink
// sees every call; the first error is returned.
type MultiSink []Sink

func (m MultiSink) Record(rec PacketRecord) error {
	var first error
	for _, s := range m {
		if err := s.Record(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiSink) Finalize(summary SessionSummary) error {
	var first error
	for _, s := range m {
		if err := s.Finalize(summary); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Bucket labels in ascending order.
var BucketOrder = []string{
	"lt_100us", "100_500us", "500us_1ms", "1_5ms", "5_10ms", "10_50ms", "50_100ms", "100_500ms", "gt_500ms",
}

func incrementBucket(buckets map[string]int, us float64) {
	switch {
	case us < 100:
		buckets["lt_100us"]++
	case us < 500:
		buckets["100_500us"]++
	case us < 1000:
		buckets["500us_1ms"]++
	case us < 5000:
		buckets["1_5ms"]++
	case us < 10000:
		buckets["5_10ms"]++
	case us < 50000:
		buckets["10_50ms"]++
	case us < 100000:
		buckets["50_100ms"]++
	case us < 500000:
		buckets["100_500ms"]++
	default:
		buckets["gt_500ms"]++
	}
}

func computePercentiles(values []float64) [4]float64 {
	var result [4]float64
	if len(values) == 0 {
		return result
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	result[0] = percentile(sorted, 0.50)
	result[1] = percentile(sorted, 0.90)
	result[2] = percentile(sorted, 0.95)
	result[3] = percentile(sorted, 0.99)
	return result
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
