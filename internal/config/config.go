package config

// Configuration loading and validation for the echo client and server

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tturner/echoclient/internal/errors"
)

// Defaults mirrored by the CLI flags.
const (
	DefaultSize         = 64
	DefaultFrequencySec = 1.0
	DefaultCount        = 0
	DefaultTimeoutSec   = 5.0
	DefaultLogDir       = "logs"
	DefaultServerListen = "0.0.0.0:7"

	// MaxDurationSec bounds frequency and timeout.
	MaxDurationSec = 7 * 24 * 3600.0
)

// ClientConfig holds the measurement parameters of one session.
type ClientConfig struct {
	Host             string  `yaml:"host,omitempty"`
	Port             int     `yaml:"port,omitempty"`
	Size             int     `yaml:"size"`
	FrequencySec     float64 `yaml:"frequency_sec"`
	Count            int     `yaml:"count"`
	TimeoutSec       float64 `yaml:"timeout_sec"`
	LogDir           string  `yaml:"log_dir"`
	LogFormat        string  `yaml:"log_format,omitempty"` // "text" or "json"
	JSONFile         string  `yaml:"json_file,omitempty"`
	PCAPFile         string  `yaml:"pcap,omitempty"`
	CaptureInterface string  `yaml:"capture_interface,omitempty"`
}

// Interval returns the pause between round trips.
func (c *ClientConfig) Interval() time.Duration {
	return time.Duration(c.FrequencySec * float64(time.Second))
}

// Timeout returns the per-operation socket timeout.
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec * float64(time.Second))
}

// ServerFaultLatencyConfig controls echo latency injection.
type ServerFaultLatencyConfig struct {
	BaseDelayMs  int `yaml:"base_delay_ms,omitempty"`
	JitterMs     int `yaml:"jitter_ms,omitempty"`
	SpikeEveryN  int `yaml:"spike_every_n,omitempty"`
	SpikeDelayMs int `yaml:"spike_delay_ms,omitempty"`
}

// ServerFaultReliabilityConfig controls drop/close/stall behavior.
type ServerFaultReliabilityConfig struct {
	DropResponseEveryN    int `yaml:"drop_response_every_n,omitempty"`
	CloseConnectionEveryN int `yaml:"close_connection_every_n,omitempty"`
	CloseAfterN           int `yaml:"close_after_n,omitempty"` // close once N echoes were written
	StallResponseEveryN   int `yaml:"stall_response_every_n,omitempty"`
	StallMs               int `yaml:"stall_ms,omitempty"`
}

// ServerFaultTCPConfig controls TCP-level behavior.
type ServerFaultTCPConfig struct {
	ChunkWrites       bool `yaml:"chunk_writes,omitempty"`
	ChunkMin          int  `yaml:"chunk_min,omitempty"`
	ChunkMax          int  `yaml:"chunk_max,omitempty"`
	InterChunkDelayMs int  `yaml:"inter_chunk_delay_ms,omitempty"`
}

// ServerFaultConfig controls fault injection for the echo server.
type ServerFaultConfig struct {
	Enable      bool                         `yaml:"enable,omitempty"`
	Latency     ServerFaultLatencyConfig     `yaml:"latency,omitempty"`
	Reliability ServerFaultReliabilityConfig `yaml:"reliability,omitempty"`
	TCP         ServerFaultTCPConfig         `yaml:"tcp,omitempty"`
}

// ServerConfig configures the companion echo server.
type ServerConfig struct {
	Listen    string            `yaml:"listen"`
	RNGSeed   int64             `yaml:"rng_seed,omitempty"`
	ReadBytes int               `yaml:"read_bytes,omitempty"`
	LogFile   string            `yaml:"log_file,omitempty"`
	Faults    ServerFaultConfig `yaml:"faults,omitempty"`
}

// CreateDefaultClientConfig returns the client defaults
func CreateDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Size:         DefaultSize,
		FrequencySec: DefaultFrequencySec,
		Count:        DefaultCount,
		TimeoutSec:   DefaultTimeoutSec,
		LogDir:       DefaultLogDir,
		LogFormat:    "text",
	}
}

// CreateDefaultServerConfig returns the server defaults
func CreateDefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Listen:    DefaultServerListen,
		ReadBytes: 4096,
	}
}

// LoadClientConfig loads client defaults from a YAML file. An empty path
// yields the built-in defaults. Keys missing from the file keep their
// defaults.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := CreateDefaultClientConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
		}
		return nil, errors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("parse YAML: %w", err), path)
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogDir == "" {
		cfg.LogDir = DefaultLogDir
	}

	// Host/port usually come from the command line, so only the
	// measurement parameters are checked here.
	if err := validateMeasurement(cfg); err != nil {
		return nil, errors.WrapConfigError(err, path)
	}
	return cfg, nil
}

// ValidateClientConfig validates a complete client configuration
func ValidateClientConfig(cfg *ClientConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("host is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	return validateMeasurement(cfg)
}

func validateMeasurement(cfg *ClientConfig) error {
	if cfg.Size < 1 {
		return fmt.Errorf("size must be >= 1, got %d", cfg.Size)
	}
	if math.IsNaN(cfg.FrequencySec) || cfg.FrequencySec < 0 || cfg.FrequencySec > MaxDurationSec {
		return fmt.Errorf("frequency must be between 0 and %g seconds, got %g", MaxDurationSec, cfg.FrequencySec)
	}
	if cfg.FrequencySec > 0 && cfg.Interval() <= 0 {
		return fmt.Errorf("frequency %g is below 1ns", cfg.FrequencySec)
	}
	if cfg.Count < 0 {
		return fmt.Errorf("count must be >= 0 (0 = unbounded), got %d", cfg.Count)
	}
	if math.IsNaN(cfg.TimeoutSec) || cfg.TimeoutSec <= 0 || cfg.TimeoutSec > MaxDurationSec {
		return fmt.Errorf("timeout must be > 0 and <= %g seconds, got %g", MaxDurationSec, cfg.TimeoutSec)
	}
	if cfg.Timeout() <= 0 {
		return fmt.Errorf("timeout %g is below 1ns", cfg.TimeoutSec)
	}
	if cfg.LogFormat != "" && cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("log_format must be 'text' or 'json', got %q", cfg.LogFormat)
	}
	return nil
}

// LoadServerConfig loads the echo server configuration. An empty path
// yields the defaults.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := CreateDefaultServerConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultServerListen
	}
	if cfg.ReadBytes == 0 {
		cfg.ReadBytes = 4096
	}

	if err := ValidateServerConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ValidateServerConfig validates a server configuration
func ValidateServerConfig(cfg *ServerConfig) error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if cfg.ReadBytes < 1 {
		return fmt.Errorf("read_bytes must be >= 1")
	}
	f := cfg.Faults
	if f.Latency.BaseDelayMs < 0 || f.Latency.JitterMs < 0 || f.Latency.SpikeDelayMs < 0 || f.Latency.SpikeEveryN < 0 {
		return fmt.Errorf("faults.latency values must be >= 0")
	}
	if f.Reliability.DropResponseEveryN < 0 || f.Reliability.CloseConnectionEveryN < 0 ||
		f.Reliability.CloseAfterN < 0 || f.Reliability.StallResponseEveryN < 0 || f.Reliability.StallMs < 0 {
		return fmt.Errorf("faults.reliability values must be >= 0")
	}
	if f.TCP.ChunkMin < 0 || f.TCP.ChunkMax < 0 || f.TCP.InterChunkDelayMs < 0 {
		return fmt.Errorf("faults.tcp values must be >= 0")
	}
	if f.TCP.ChunkMax > 0 && f.TCP.ChunkMin > f.TCP.ChunkMax {
		return fmt.Errorf("faults.tcp.chunk_min must be <= chunk_max")
	}
	return nil
}

// WriteDefaultClientConfig writes the client defaults to a file
func WriteDefaultClientConfig(path string) error {
	data, err := yaml.Marshal(CreateDefaultClientConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
