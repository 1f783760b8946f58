package app

import (
	"encoding/json"
	"fmt"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/tturner/echoclient/internal/artifact"
	"github.com/tturner/echoclient/internal/capture"
	"github.com/tturner/echoclient/internal/metrics"
)

type ReportOptions struct {
	TimingsPath string
	// Sent overrides the number of packets sent. When 0 it is read from the
	// session's run.json, or taken as the highest packet number in the file
	// if there is no run.json.
	Sent int
	JSON bool

	// Optional capture to summarize alongside the timings.
	PCAPFile string
	Port     int

	Stdout io.Writer
}

// Report is the recomputed view of a finished session.
type Report struct {
	Summary metrics.SessionSummary `json:"summary"`
	Capture *capture.Snapshot      `json:"capture,omitempty"`
}

// BuildReport recomputes the session summary from a timings CSV.
func BuildReport(opts ReportOptions) (*Report, error) {
	records, err := metrics.ReadTimingsCSV(opts.TimingsPath)
	if err != nil {
		return nil, err
	}

	sent := opts.Sent
	if sent == 0 {
		if sent, err = sentFromRunJSON(opts.TimingsPath); err != nil {
			return nil, err
		}
	}
	if sent == 0 {
		for _, rec := range records {
			if rec.Seq > sent {
				sent = rec.Seq
			}
		}
	}
	if sent < len(records) {
		return nil, fmt.Errorf("sent (%d) is less than the %d recorded round trips", sent, len(records))
	}

	summary := metrics.Summarize(records, sent, 0)
	summary.StartTime = records[0].Timestamp
	summary.EndTime = records[len(records)-1].Timestamp
	report := &Report{Summary: summary}

	if opts.PCAPFile != "" {
		if opts.Port < 1 || opts.Port > 65535 {
			return nil, fmt.Errorf("--port is required with --pcap")
		}
		snap, err := capture.AnalyzeFile(opts.PCAPFile, opts.Port)
		if err != nil {
			return nil, err
		}
		report.Capture = &snap
	}
	return report, nil
}

// sentFromRunJSON returns the sent count recorded at finalization, or 0 when
// the timings file has no readable run.json beside it.
func sentFromRunJSON(timingsPath string) (int, error) {
	path := artifact.RunJSONPathForTimings(timingsPath)
	if path == "" {
		return 0, nil
	}
	meta, err := artifact.ReadRunMetadata(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if meta.Stats == nil {
		return 0, nil
	}
	return meta.Stats.Sent, nil
}

// RunReport prints the recomputed summary.
func RunReport(opts ReportOptions) error {
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}

	report, err := BuildReport(opts)
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "Report for %s\n", opts.TimingsPath)
	fmt.Fprint(out, metrics.FormatSummary(report.Summary))
	if c := report.Capture; c != nil {
		fmt.Fprintf(out, "Capture: %d segments, %d with payload (%d bytes), %d retransmits, %d resets\n",
			c.Packets, c.PayloadSegments, c.PayloadBytes, c.Retransmits, c.Resets)
	}
	return nil
}
