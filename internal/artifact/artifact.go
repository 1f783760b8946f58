// Package artifact lays out the per-session files under the log directory
// and writes the end-of-run summary and run.json.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tturner/echoclient/internal/metrics"
)

// RunIDLayout names every file of one session.
const RunIDLayout = "20060102_150405"

const filePrefix = "echo_client_"

// RunMetadata contains metadata about an echo session.
type RunMetadata struct {
	// Run identification
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  string    `json:"duration"`

	// Target information
	TargetHost string `json:"target_host"`
	TargetPort int    `json:"target_port"`

	// Configuration
	Config RunConfig `json:"config"`

	// Results
	Stats    *metrics.SessionSummary `json:"stats,omitempty"`
	Capture  *CaptureStats           `json:"capture,omitempty"`
	ExitCode int                     `json:"exit_code"`
	Error    string                  `json:"error,omitempty"`

	// Artifact paths (relative to output directory)
	Artifacts ArtifactPaths `json:"artifacts"`
}

// RunConfig records the measurement parameters.
type RunConfig struct {
	Size         int     `json:"size"`
	FrequencySec float64 `json:"frequency_sec"`
	Count        int     `json:"count"`
	TimeoutSec   float64 `json:"timeout_sec"`
}

// CaptureStats summarizes the optional packet capture.
type CaptureStats struct {
	Packets         int `json:"packets"`
	PayloadSegments int `json:"payload_segments"`
	Retransmits     int `json:"retransmits"`
}

// ArtifactPaths contains relative paths to generated artifacts.
type ArtifactPaths struct {
	Log        string `json:"log"`
	TimingsCSV string `json:"timings_csv"`
	RunJSON    string `json:"run_json"`
	SummaryTxt string `json:"summary_txt,omitempty"`
	JSONFile   string `json:"json_file,omitempty"`
	PCAPFile   string `json:"pcap_file,omitempty"`
}

// OutputManager manages artifact output for a session.
type OutputManager struct {
	outputDir string
	runID     string
	metadata  *RunMetadata
}

// NewOutputManager creates the output directory and names the session files
// after start.
func NewOutputManager(outputDir string, start time.Time) (*OutputManager, error) {
	runID := start.Format(RunIDLayout)

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	m := &OutputManager{
		outputDir: outputDir,
		runID:     runID,
		metadata: &RunMetadata{
			RunID:     runID,
			StartTime: start,
		},
	}
	m.metadata.Artifacts.Log = filepath.Base(m.LogPath())
	m.metadata.Artifacts.TimingsCSV = filepath.Base(m.TimingsPath())
	m.metadata.Artifacts.RunJSON = filepath.Base(m.RunJSONPath())
	return m, nil
}

// OutputDir returns the output directory path.
func (m *OutputManager) OutputDir() string {
	return m.outputDir
}

// RunID returns the run identifier.
func (m *OutputManager) RunID() string {
	return m.runID
}

// Metadata returns the metadata collected so far.
func (m *OutputManager) Metadata() RunMetadata {
	return *m.metadata
}

// SetTarget sets target information in metadata.
func (m *OutputManager) SetTarget(host string, port int) {
	m.metadata.TargetHost = host
	m.metadata.TargetPort = port
}

// SetConfig sets the measurement parameters in metadata.
func (m *OutputManager) SetConfig(size int, frequencySec float64, count int, timeoutSec float64) {
	m.metadata.Config = RunConfig{
		Size:         size,
		FrequencySec: frequencySec,
		Count:        count,
		TimeoutSec:   timeoutSec,
	}
}

// SetPCAPFile records the capture file name.
func (m *OutputManager) SetPCAPFile(path string) {
	m.metadata.Artifacts.PCAPFile = m.relative(path)
}

// SetJSONFile records the JSON record stream file name.
func (m *OutputManager) SetJSONFile(path string) {
	m.metadata.Artifacts.JSONFile = m.relative(path)
}

// SetCaptureStats stores capture counters for the summary.
func (m *OutputManager) SetCaptureStats(stats CaptureStats) {
	m.metadata.Capture = &stats
}

// LogPath returns the full path for the session log.
func (m *OutputManager) LogPath() string {
	return filepath.Join(m.outputDir, fmt.Sprintf("%s%s.log", filePrefix, m.runID))
}

// TimingsPath returns the full path for the timings CSV.
func (m *OutputManager) TimingsPath() string {
	return filepath.Join(m.outputDir, fmt.Sprintf("%s%s_timings.csv", filePrefix, m.runID))
}

// PCAPPath returns the default path for the capture file.
func (m *OutputManager) PCAPPath() string {
	return filepath.Join(m.outputDir, fmt.Sprintf("%s%s.pcap", filePrefix, m.runID))
}

// SummaryPath returns the full path for the summary file.
func (m *OutputManager) SummaryPath() string {
	return filepath.Join(m.outputDir, fmt.Sprintf("%s%s_summary.txt", filePrefix, m.runID))
}

// RunJSONPath returns the full path for the run.json file.
func (m *OutputManager) RunJSONPath() string {
	return filepath.Join(m.outputDir, fmt.Sprintf("%s%s_run.json", filePrefix, m.runID))
}

func (m *OutputManager) relative(path string) string {
	if rel, err := filepath.Rel(m.outputDir, path); err == nil && !filepath.IsAbs(rel) && rel != "" && rel[0] != '.' {
		return rel
	}
	return path
}

// Finalize completes the run and writes the summary and run.json.
func (m *OutputManager) Finalize(summary *metrics.SessionSummary, exitCode int, runErr error) error {
	m.metadata.EndTime = time.Now()
	if summary != nil && !summary.EndTime.IsZero() {
		m.metadata.EndTime = summary.EndTime
	}
	m.metadata.Duration = m.metadata.EndTime.Sub(m.metadata.StartTime).String()
	m.metadata.ExitCode = exitCode
	m.metadata.Stats = summary

	if runErr != nil {
		m.metadata.Error = runErr.Error()
	}

	if err := m.writeSummary(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	m.metadata.Artifacts.SummaryTxt = filepath.Base(m.SummaryPath())

	if err := m.writeRunJSON(); err != nil {
		return fmt.Errorf("write run.json: %w", err)
	}

	return nil
}

// writeSummary writes a human-readable summary file.
func (m *OutputManager) writeSummary(summary *metrics.SessionSummary) error {
	f, err := os.Create(m.SummaryPath())
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "Echo Client Run Summary\n")
	fmt.Fprintf(f, "=======================\n\n")

	fmt.Fprintf(f, "Run ID:     %s\n", m.metadata.RunID)
	fmt.Fprintf(f, "Start Time: %s\n", m.metadata.StartTime.Format(time.RFC3339))
	fmt.Fprintf(f, "End Time:   %s\n", m.metadata.EndTime.Format(time.RFC3339))
	fmt.Fprintf(f, "Duration:   %s\n\n", m.metadata.Duration)

	fmt.Fprintf(f, "Target: %s:%d\n", m.metadata.TargetHost, m.metadata.TargetPort)
	cfg := m.metadata.Config
	fmt.Fprintf(f, "Size: %d bytes, Frequency: %.3fs, Count: %d, Timeout: %.3fs\n\n",
		cfg.Size, cfg.FrequencySec, cfg.Count, cfg.TimeoutSec)

	if summary != nil {
		fmt.Fprintf(f, "Results\n")
		fmt.Fprintf(f, "-------\n")
		fmt.Fprintf(f, "%s\n", metrics.FormatSummary(*summary))
	}

	if c := m.metadata.Capture; c != nil {
		fmt.Fprintf(f, "Capture\n")
		fmt.Fprintf(f, "-------\n")
		fmt.Fprintf(f, "Packets: %d, Payload segments: %d, Retransmits: %d\n\n", c.Packets, c.PayloadSegments, c.Retransmits)
	}

	if m.metadata.Error != "" {
		fmt.Fprintf(f, "Error: %s\n\n", m.metadata.Error)
	}
	fmt.Fprintf(f, "Exit code: %d\n\n", m.metadata.ExitCode)

	fmt.Fprintf(f, "Artifacts\n")
	fmt.Fprintf(f, "---------\n")
	fmt.Fprintf(f, "Log:      %s\n", m.metadata.Artifacts.Log)
	fmt.Fprintf(f, "Timings:  %s\n", m.metadata.Artifacts.TimingsCSV)
	if m.metadata.Artifacts.JSONFile != "" {
		fmt.Fprintf(f, "JSON:     %s\n", m.metadata.Artifacts.JSONFile)
	}
	if m.metadata.Artifacts.PCAPFile != "" {
		fmt.Fprintf(f, "PCAP:     %s\n", m.metadata.Artifacts.PCAPFile)
	}
	fmt.Fprintf(f, "Summary:  %s\n", filepath.Base(m.SummaryPath()))
	fmt.Fprintf(f, "Run JSON: %s\n", m.metadata.Artifacts.RunJSON)

	return nil
}

// RunJSONPathForTimings returns the run.json written next to a timings CSV,
// or "" when the file name does not follow the session layout.
func RunJSONPathForTimings(timingsPath string) string {
	base := filepath.Base(timingsPath)
	if !strings.HasPrefix(base, filePrefix) || !strings.HasSuffix(base, "_timings.csv") {
		return ""
	}
	return filepath.Join(filepath.Dir(timingsPath), strings.TrimSuffix(base, "_timings.csv")+"_run.json")
}

// ReadRunMetadata loads a run.json file.
func ReadRunMetadata(path string) (*RunMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &meta, nil
}

// writeRunJSON writes the run metadata as JSON.
func (m *OutputManager) writeRunJSON() error {
	data, err := json.MarshalIndent(m.metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.RunJSONPath(), data, 0644)
}
