package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tturner/echoclient/internal/app"
	"github.com/tturner/echoclient/internal/config"
)

type clientFlags struct {
	size             int
	frequency        float64
	count            int
	timeout          float64
	logDir           string
	logFormat        string
	config           string
	pcapFile         string
	captureInterface string
	jsonFile         string
	tui              bool
	verbose          bool
	debug            bool
}

func newClientCmd() *cobra.Command {
	flags := &clientFlags{}

	cmd := &cobra.Command{
		Use:   "client <host> <port>",
		Short: "Measure echo round-trip times against a server",
		Long: `Connect to a TCP echo server and send a fixed payload every --frequency
seconds, timing each echo.

Every run writes, under --log-dir, a log file and a timings CSV named after the
session start time (echo_client_<YYYYMMDD_HHMMSS>.log / _timings.csv), plus a
summary text file and run.json when the session ends.

The session stops after --count packets (0 = until interrupted), when the
server closes the connection, or when an echo does not arrive within
--timeout seconds. Press Ctrl+C to stop early; statistics are still written.

Values from --config are used as defaults; flags given on the command line
take precedence.`,
		Args: cobra.MaximumNArgs(2),
		Example: `  # Ping a local echo server once per second until interrupted
  echoclient client 127.0.0.1 7

  # 1000 packets of 512 bytes, 10ms apart
  echoclient client 10.0.0.5 7 --size 512 --frequency 0.01 --count 1000

  # Capture the session to a pcap next to the log files
  echoclient client 10.0.0.5 7 --pcap auto

  # Live dashboard
  echoclient client 10.0.0.5 7 --tui`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) < 1 {
				return missingFlagError(cmd, "<host>")
			}
			if len(args) < 2 {
				return missingFlagError(cmd, "<port>")
			}
			cfg, err := buildClientConfig(cmd, flags, args)
			if err != nil {
				return err
			}
			_, err = app.RunClient(context.Background(), app.ClientOptions{
				Config:     cfg,
				ConfigPath: flags.config,
				Verbose:    flags.verbose,
				Debug:      flags.debug,
				TUI:        flags.tui,
			})
			return err
		},
	}

	registerClientFlags(cmd, flags)
	return cmd
}

func registerClientFlags(cmd *cobra.Command, flags *clientFlags) {
	cmd.Flags().IntVar(&flags.size, "size", config.DefaultSize, "Payload size in bytes")
	cmd.Flags().Float64Var(&flags.frequency, "frequency", config.DefaultFrequencySec, "Seconds between packets")
	cmd.Flags().IntVar(&flags.count, "count", config.DefaultCount, "Packets to send (0 = until interrupted)")
	cmd.Flags().Float64Var(&flags.timeout, "timeout", config.DefaultTimeoutSec, "Socket timeout in seconds")
	cmd.Flags().StringVar(&flags.logDir, "log-dir", config.DefaultLogDir, "Directory for log and timings files")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "text", "Log file format: text|json")
	cmd.Flags().StringVar(&flags.config, "config", "", "YAML file with client defaults")
	cmd.Flags().StringVar(&flags.pcapFile, "pcap", "", "Capture the session to a PCAP file (\"auto\" = next to the logs)")
	cmd.Flags().StringVar(&flags.captureInterface, "capture-interface", "", "Network interface for PCAP capture (auto-detected if not specified)")
	cmd.Flags().StringVar(&flags.jsonFile, "json-file", "", "Also write packet records as JSON lines")
	cmd.Flags().BoolVar(&flags.tui, "tui", false, "Show a live dashboard instead of console logging")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "Enable verbose output")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug output (hex dumps)")
}

// buildClientConfig layers explicitly set flags over the config file.
func buildClientConfig(cmd *cobra.Command, flags *clientFlags, args []string) (*config.ClientConfig, error) {
	port, err := parsePort(args[1])
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadClientConfig(flags.config)
	if err != nil {
		return nil, err
	}
	cfg.Host = args[0]
	cfg.Port = port

	changed := cmd.Flags().Changed
	if changed("size") {
		cfg.Size = flags.size
	}
	if changed("frequency") {
		cfg.FrequencySec = flags.frequency
	}
	if changed("count") {
		cfg.Count = flags.count
	}
	if changed("timeout") {
		cfg.TimeoutSec = flags.timeout
	}
	if changed("log-dir") {
		cfg.LogDir = flags.logDir
	}
	if changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}
	if changed("pcap") {
		cfg.PCAPFile = flags.pcapFile
	}
	if changed("capture-interface") {
		cfg.CaptureInterface = flags.captureInterface
	}
	if changed("json-file") {
		cfg.JSONFile = flags.jsonFile
	}

	if err := config.ValidateClientConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
