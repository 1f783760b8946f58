package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tturner/echoclient/internal/app"
	"github.com/tturner/echoclient/internal/config"
)

type serverFlags struct {
	listen      string
	config      string
	logFile     string
	verbose     bool
	debug       bool
	delayMs     int
	jitterMs    int
	dropEveryN  int
	closeAfterN int
	stallEveryN int
	stallMs     int
	chunkWrites bool
}

func newServerCmd() *cobra.Command {
	flags := &serverFlags{}

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run a TCP echo server with optional fault injection",
		Long: `Run a TCP echo server that returns every byte it receives.

Fault injection makes the server misbehave in repeatable ways so client
behavior can be exercised: fixed latency with jitter, dropped or stalled
responses every Nth echo, closing the connection after N echoes, and
splitting echoes into several small writes.

Configuration is loaded from --config when given; fault flags override it.
Press Ctrl+C to stop the server.`,
		Example: `  # Plain echo server on the standard port
  echoclient server --listen 0.0.0.0:7

  # Close every connection after its first echo
  echoclient server --listen 127.0.0.1:9007 --close-after 1

  # Stall every 5th echo for 10 seconds
  echoclient server --stall-every 5 --stall-ms 10000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return app.RunServer(context.Background(), app.ServerOptions{
				ConfigPath:  flags.config,
				Listen:      flags.listen,
				LogFile:     flags.logFile,
				Verbose:     flags.verbose,
				Debug:       flags.debug,
				DelayMs:     flags.delayMs,
				JitterMs:    flags.jitterMs,
				DropEveryN:  flags.dropEveryN,
				CloseAfterN: flags.closeAfterN,
				StallEveryN: flags.stallEveryN,
				StallMs:     flags.stallMs,
				ChunkWrites: flags.chunkWrites,
				Ready: func(addr string) {
					fmt.Fprintf(cmd.OutOrStdout(), "Echo server listening on %s\n", addr)
				},
			})
		},
	}

	cmd.Flags().StringVar(&flags.listen, "listen", "", "Listen address (default \""+config.DefaultServerListen+"\")")
	cmd.Flags().StringVar(&flags.config, "config", "", "Server config file path")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "Log file path (default: console only)")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "Enable verbose output")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug output")
	cmd.Flags().IntVar(&flags.delayMs, "delay-ms", 0, "Base delay before every echo")
	cmd.Flags().IntVar(&flags.jitterMs, "jitter-ms", 0, "Random extra delay up to this many milliseconds")
	cmd.Flags().IntVar(&flags.dropEveryN, "drop-every", 0, "Swallow every Nth echo")
	cmd.Flags().IntVar(&flags.closeAfterN, "close-after", 0, "Close each connection after N echoes")
	cmd.Flags().IntVar(&flags.stallEveryN, "stall-every", 0, "Stall every Nth echo")
	cmd.Flags().IntVar(&flags.stallMs, "stall-ms", 0, "Stall duration in milliseconds")
	cmd.Flags().BoolVar(&flags.chunkWrites, "chunk-writes", false, "Split each echo into several small writes")

	cmd.AddCommand(newServerValidateCmd())
	cmd.AddCommand(newServerPrintDefaultCmd())
	return cmd
}

func newServerValidateCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Validate a server config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				return missingFlagError(cmd, "--config")
			}
			if _, err := config.LoadServerConfig(cfgPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config OK: %s\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "Server config file path")
	return cmd
}

func newServerPrintDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print-default-config",
		Short: "Print a default server config",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(config.CreateDefaultServerConfig())
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
