package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tturner/echoclient/internal/config"
)

func TestRequiredArgsErrors(t *testing.T) {
	tests := []struct {
		name    string
		cmd     func() *cobra.Command
		args    []string
		wantErr string
	}{
		{
			name:    "client missing host",
			cmd:     newClientCmd,
			args:    nil,
			wantErr: "required flag <host> not set",
		},
		{
			name:    "client missing port",
			cmd:     newClientCmd,
			args:    []string{"127.0.0.1"},
			wantErr: "required flag <port> not set",
		},
		{
			name:    "client port not a number",
			cmd:     newClientCmd,
			args:    []string{"127.0.0.1", "echo"},
			wantErr: "invalid port \"echo\"",
		},
		{
			name:    "client port out of range",
			cmd:     newClientCmd,
			args:    []string{"127.0.0.1", "70000"},
			wantErr: "must be between 1 and 65535",
		},
		{
			name:    "client too many args",
			cmd:     newClientCmd,
			args:    []string{"127.0.0.1", "7", "extra"},
			wantErr: "accepts at most 2 arg(s)",
		},
		{
			name:    "client invalid size",
			cmd:     newClientCmd,
			args:    []string{"127.0.0.1", "7", "--size", "0"},
			wantErr: "size must be >= 1",
		},
		{
			name:    "client invalid timeout",
			cmd:     newClientCmd,
			args:    []string{"127.0.0.1", "7", "--timeout", "0"},
			wantErr: "timeout must be > 0",
		},
		{
			name:    "client overflowing timeout",
			cmd:     newClientCmd,
			args:    []string{"127.0.0.1", "7", "--timeout", "1e10"},
			wantErr: "timeout must be > 0 and <=",
		},
		{
			name:    "report missing csv",
			cmd:     newReportCmd,
			args:    nil,
			wantErr: "required flag <timings.csv> not set",
		},
		{
			name:    "server validate missing config",
			cmd:     newServerValidateCmd,
			args:    nil,
			wantErr: "required flag --config not set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := tt.cmd()
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(tt.args)
			err := cmd.Execute()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error: got %q want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestClientHelpDoesNotRun(t *testing.T) {
	cmd := newClientCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"help"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("help failed: %v", err)
	}
	if !strings.Contains(out.String(), "Connect to a TCP echo server") {
		t.Fatalf("expected help output, got: %s", out.String())
	}
}

func TestBuildClientConfigFlagPrecedence(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "client.yaml")
	fileCfg := config.CreateDefaultClientConfig()
	fileCfg.Size = 256
	fileCfg.FrequencySec = 0.5
	fileCfg.Count = 10
	fileCfg.LogDir = "from-file"
	data, err := yaml.Marshal(fileCfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	tests := []struct {
		name string
		args []string
		want func(*config.ClientConfig) bool
	}{
		{
			name: "file values without flags",
			args: []string{"--config", cfgPath},
			want: func(c *config.ClientConfig) bool {
				return c.Size == 256 && c.FrequencySec == 0.5 && c.Count == 10 && c.LogDir == "from-file"
			},
		},
		{
			name: "explicit flags win",
			args: []string{"--config", cfgPath, "--size", "32", "--count", "0", "--log-dir", "elsewhere"},
			want: func(c *config.ClientConfig) bool {
				return c.Size == 32 && c.FrequencySec == 0.5 && c.Count == 0 && c.LogDir == "elsewhere"
			},
		},
		{
			name: "defaults without config",
			args: nil,
			want: func(c *config.ClientConfig) bool {
				return c.Size == config.DefaultSize && c.Count == config.DefaultCount &&
					c.TimeoutSec == config.DefaultTimeoutSec && c.LogDir == config.DefaultLogDir
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "client"}
			flags := &clientFlags{}
			registerClientFlags(cmd, flags)
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("parse flags: %v", err)
			}
			cfg, err := buildClientConfig(cmd, flags, []string{"echo.example", "7007"})
			if err != nil {
				t.Fatalf("buildClientConfig: %v", err)
			}
			if cfg.Host != "echo.example" || cfg.Port != 7007 {
				t.Fatalf("target = %s:%d", cfg.Host, cfg.Port)
			}
			if !tt.want(cfg) {
				t.Fatalf("unexpected config: %+v", cfg)
			}
		})
	}
}

func TestReportCommand(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "timings.csv")
	content := strings.Join([]string{
		"packet_num,timestamp,send_time_ns,receive_time_ns,rtt_us",
		"1,2026-01-01 12:00:00.000000,1000000,1250000,250.000",
		"3,2026-01-01 12:00:02.000000,3000000,3750000,750.000",
	}, "\n") + "\n"
	if err := os.WriteFile(csvPath, []byte(content), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	cmd := newReportCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{csvPath})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("report failed: %v", err)
	}
	for _, want := range []string{
		"Report for " + csvPath,
		"Packets: Sent = 3, Received = 2, Lost = 1",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("report output missing %q:\n%s", want, out.String())
		}
	}
}

func TestServerPrintDefaultConfigRoundTrips(t *testing.T) {
	cmd := newServerCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"print-default-config"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("print-default-config failed: %v", err)
	}

	cfgPath := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(cfgPath, out.Bytes(), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	validate := newServerCmd()
	var vout bytes.Buffer
	validate.SetOut(&vout)
	validate.SetArgs([]string{"validate-config", "--config", cfgPath})
	if err := validate.Execute(); err != nil {
		t.Fatalf("validate-config failed: %v", err)
	}
	if !strings.Contains(vout.String(), "Config OK") {
		t.Fatalf("unexpected output: %s", vout.String())
	}
}

func TestInitConfigWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	cmd := newInitConfigCmd()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("init-config failed: %v", err)
	}
	cfg, err := config.LoadClientConfig(path)
	if err != nil {
		t.Fatalf("LoadClientConfig: %v", err)
	}
	if cfg.Size != config.DefaultSize || cfg.LogDir != config.DefaultLogDir {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "echoclient version dev") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}
