package metrics

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriterCSV(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "timings.csv")
	w, err := NewWriter(csvPath, "")
	if err != nil {
		t.Fatalf("NewWriter error: %v", err)
	}

	sentAt := time.Date(2024, 3, 1, 12, 0, 0, 123456000, time.Local)
	r := NewPacketRecord(1, sentAt, 1_000_000_000, 1_000_250_500)
	if err := w.Record(r); err != nil {
		t.Fatalf("Record error: %v", err)
	}

	// Row must be on disk before Close.
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2: %q", len(lines), data)
	}
	if lines[0] != "packet_num,timestamp,send_time_ns,receive_time_ns,rtt_us" {
		t.Errorf("header = %q", lines[0])
	}
	want := "1,2024-03-01 12:00:00.123456,1000000000,1000250500,250.500"
	if lines[1] != want {
		t.Errorf("row = %q, want %q", lines[1], want)
	}

	if err := w.Finalize(Summarize([]PacketRecord{r}, 1, 0)); err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if w.Rows() != 1 {
		t.Errorf("Rows() = %d, want 1", w.Rows())
	}

	back, err := ReadTimingsCSV(csvPath)
	if err != nil {
		t.Fatalf("ReadTimingsCSV error: %v", err)
	}
	if len(back) != 1 || back[0].SendTimeNs != r.SendTimeNs || back[0].RTTUs != 250.5 {
		t.Errorf("read back %+v", back)
	}
	if !back[0].Timestamp.Equal(sentAt) {
		t.Errorf("timestamp = %v, want %v", back[0].Timestamp, sentAt)
	}
}

func TestWriterJSONLines(t *testing.T) {
	jsonPath := filepath.Join(t.TempDir(), "timings.jsonl")
	w, err := NewWriter("", jsonPath)
	if err != nil {
		t.Fatalf("NewWriter error: %v", err)
	}
	records := []PacketRecord{rec(1, 10), rec(2, 20)}
	for _, r := range records {
		if err := w.Record(r); err != nil {
			t.Fatalf("Record error: %v", err)
		}
	}
	if err := w.Finalize(Summarize(records, 2, 0)); err != nil {
		t.Fatal(err)
	}
	w.Close()

	f, err := os.Open(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	var first PacketRecord
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil || first.Seq != 1 {
		t.Fatalf("first line = %q (%v)", lines[0], err)
	}
	if !strings.Contains(lines[2], `"summary"`) {
		t.Errorf("last line should carry the summary: %q", lines[2])
	}
}

func TestNewWriterInvalidPath(t *testing.T) {
	if _, err := NewWriter("/nonexistent/dir/t.csv", ""); err == nil {
		t.Error("expected error for invalid CSV path")
	}
}

func TestParseTimingsCSVErrors(t *testing.T) {
	tests := map[string]string{
		"missing column": "packet_num,timestamp\n1,2024-01-01 00:00:00.000000\n",
		"no rows":        "packet_num,timestamp,send_time_ns,receive_time_ns,rtt_us\n",
		"bad number":     "packet_num,timestamp,send_time_ns,receive_time_ns,rtt_us\nx,2024-01-01 00:00:00.000000,1,2,0.001\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseTimingsCSV(strings.NewReader(input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSummaryLines(t *testing.T) {
	none := SummaryLines(Summarize(nil, 2, 0))
	if len(none) != 3 || !strings.Contains(none[1], "Sent = 2, Received = 0, Lost = 2 (100.0% loss)") {
		t.Errorf("unexpected lines without RTT: %q", none)
	}

	one := strings.Join(SummaryLines(Summarize([]PacketRecord{rec(1, 10)}, 1, 0)), "\n")
	if strings.Contains(one, "StdDev") {
		t.Error("StdDev should be omitted for a single record")
	}

	two := FormatSummary(Summarize([]PacketRecord{rec(1, 10), rec(2, 30)}, 2, 1))
	for _, want := range []string{"Min = 10.000μs", "Max = 30.000μs", "Avg = 20.000μs", "StdDev", "Echo mismatches: 1", "lt_100us=2"} {
		if !strings.Contains(two, want) {
			t.Errorf("summary missing %q:\n%s", want, two)
		}
	}
}
