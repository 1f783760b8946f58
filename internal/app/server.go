package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tturner/echoclient/internal/config"
	"github.com/tturner/echoclient/internal/echoserver"
	"github.com/tturner/echoclient/internal/logging"
)

type ServerOptions struct {
	ConfigPath string
	Listen     string
	LogFile    string
	Verbose    bool
	Debug      bool

	// Fault overrides; any non-zero value enables fault injection.
	DelayMs     int
	JitterMs    int
	DropEveryN  int
	CloseAfterN int
	StallEveryN int
	StallMs     int
	ChunkWrites bool

	// Ready, when set, receives the bound address once listening.
	Ready  func(addr string)
	Stdout io.Writer
	Stderr io.Writer
}

// RunServer runs the echo server until ctx is cancelled or the process is
// interrupted.
func RunServer(ctx context.Context, opts ServerOptions) error {
	cfg, err := config.LoadServerConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load server config: %w", err)
	}
	applyServerOverrides(cfg, opts)
	if err := config.ValidateServerConfig(cfg); err != nil {
		return fmt.Errorf("invalid server options: %w", err)
	}

	logLevel := logging.LogLevelInfo
	if opts.Debug {
		logLevel = logging.LogLevelDebug
	} else if opts.Verbose {
		logLevel = logging.LogLevelVerbose
	}
	logFile := opts.LogFile
	if logFile == "" {
		logFile = cfg.LogFile
	}
	logger, err := logging.NewLogger(logLevel, logFile)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()
	if opts.Stdout != nil || opts.Stderr != nil {
		logger.SetConsole(opts.Stdout, opts.Stderr)
	}

	srv, err := echoserver.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if opts.Ready != nil {
		opts.Ready(srv.Addr().String())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		logger.Info("Received interrupt signal, shutting down...")
	case <-ctx.Done():
	}
	return srv.Stop()
}

func applyServerOverrides(cfg *config.ServerConfig, opts ServerOptions) {
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}

	faults := &cfg.Faults
	set := func(dst *int, v int) {
		if v != 0 {
			*dst = v
			faults.Enable = true
		}
	}
	set(&faults.Latency.BaseDelayMs, opts.DelayMs)
	set(&faults.Latency.JitterMs, opts.JitterMs)
	set(&faults.Reliability.DropResponseEveryN, opts.DropEveryN)
	set(&faults.Reliability.CloseAfterN, opts.CloseAfterN)
	set(&faults.Reliability.StallResponseEveryN, opts.StallEveryN)
	set(&faults.Reliability.StallMs, opts.StallMs)
	if opts.ChunkWrites {
		faults.TCP.ChunkWrites = true
	}
}
