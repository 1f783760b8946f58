package metrics

// Timings output (CSV/JSON lines) and summary formatting

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// TimestampLayout is the wall-clock format of the CSV timestamp column.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// CSVHeader is the header row of every timings file.
var CSVHeader = []string{"packet_num", "timestamp", "send_time_ns", "receive_time_ns", "rtt_us"}

// Writer persists packet records. Every row is flushed as soon as it is
// written so an abrupt exit loses nothing already measured.
type Writer struct {
	csvFile   *os.File
	csvWriter *csv.Writer
	jsonFile  *os.File
	jsonEnc   *json.Encoder
	rows      int
}

var _ Sink = (*Writer)(nil)

// NewWriter creates a new timings writer. Either path may be empty.
func NewWriter(csvPath, jsonPath string) (*Writer, error) {
	w := &Writer{}

	if csvPath != "" {
		file, err := os.Create(csvPath)
		if err != nil {
			return nil, fmt.Errorf("create CSV file: %w", err)
		}
		w.csvFile = file
		w.csvWriter = csv.NewWriter(file)

		if err := w.csvWriter.Write(CSVHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("write CSV header: %w", err)
		}
		w.csvWriter.Flush()
		if err := w.csvWriter.Error(); err != nil {
			file.Close()
			return nil, fmt.Errorf("flush CSV header: %w", err)
		}
	}

	if jsonPath != "" {
		file, err := os.Create(jsonPath)
		if err != nil {
			if w.csvFile != nil {
				w.csvFile.Close()
			}
			return nil, fmt.Errorf("create JSON file: %w", err)
		}
		w.jsonFile = file
		w.jsonEnc = json.NewEncoder(file)
	}

	return w, nil
}

// Record writes a single packet record
func (w *Writer) Record(rec PacketRecord) error {
	if w.csvWriter != nil {
		if err := w.csvWriter.Write(FormatRecord(rec)); err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
		w.csvWriter.Flush()
		if err := w.csvWriter.Error(); err != nil {
			return fmt.Errorf("flush CSV record: %w", err)
		}
	}

	if w.jsonEnc != nil {
		if err := w.jsonEnc.Encode(rec); err != nil {
			return fmt.Errorf("write JSON record: %w", err)
		}
	}

	w.rows++
	return nil
}

// Finalize appends the summary as the last JSON line. The CSV only ever
// holds round-trip rows.
func (w *Writer) Finalize(summary SessionSummary) error {
	if w.jsonEnc != nil {
		if err := w.jsonEnc.Encode(struct {
			Summary SessionSummary `json:"summary"`
		}{summary}); err != nil {
			return fmt.Errorf("write JSON summary: %w", err)
		}
	}
	return nil
}

// Rows returns how many records were written.
func (w *Writer) Rows() int {
	return w.rows
}

// Close closes the writer and flushes all data
func (w *Writer) Close() error {
	var errs []error

	if w.csvWriter != nil {
		w.csvWriter.Flush()
	}
	if w.csvFile != nil {
		if err := w.csvFile.Close(); err != nil {
			errs = append(errs, err)
		}
		w.csvFile = nil
	}
	if w.jsonFile != nil {
		if err := w.jsonFile.Close(); err != nil {
			errs = append(errs, err)
		}
		w.jsonFile = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close writer: %v", errs)
	}
	return nil
}

// FormatRecord renders a record as a CSV row.
func FormatRecord(rec PacketRecord) []string {
	return []string{
		strconv.Itoa(rec.Seq),
		rec.Timestamp.Format(TimestampLayout),
		strconv.FormatInt(rec.SendTimeNs, 10),
		strconv.FormatInt(rec.ReceiveTimeNs, 10),
		strconv.FormatFloat(rec.RTTUs, 'f', 3, 64),
	}
}

// SummaryLines renders the summary as log lines.
func SummaryLines(s SessionSummary) []string {
	lines := []string{
		"--- Echo Client Statistics ---",
		fmt.Sprintf("Packets: Sent = %d, Received = %d, Lost = %d (%.1f%% loss)",
			s.Sent, s.Received, s.Lost, s.LossPercent),
	}
	if !s.HasRTT {
		lines = append(lines, "RTT: no round trips completed")
		return lines
	}
	lines = append(lines, fmt.Sprintf("RTT: Min = %.3fμs, Max = %.3fμs, Avg = %.3fμs",
		s.MinRTT, s.MaxRTT, s.MeanRTT))
	if s.HasStdDev {
		lines = append(lines, fmt.Sprintf("     StdDev = %.3fμs", s.StdDevRTT))
	}
	lines = append(lines, fmt.Sprintf("     P50 = %.3fμs, P90 = %.3fμs, P95 = %.3fμs, P99 = %.3fμs",
		s.P50RTT, s.P90RTT, s.P95RTT, s.P99RTT))
	if s.Mismatched > 0 {
		lines = append(lines, fmt.Sprintf("Echo mismatches: %d", s.Mismatched))
	}
	return lines
}

// FormatSummary formats a summary for human-readable output
func FormatSummary(s SessionSummary) string {
	var buf strings.Builder
	for _, line := range SummaryLines(s) {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if len(s.RTTBuckets) > 0 {
		buf.WriteString("Buckets:")
		for _, k := range BucketOrder {
			fmt.Fprintf(&buf, " %s=%d", k, s.RTTBuckets[k])
		}
		buf.WriteByte('\n')
	}
	if s.Reason != "" {
		fmt.Fprintf(&buf, "Stopped: %s\n", s.Reason)
	}
	return buf.String()
}
