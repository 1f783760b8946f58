package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tturner/echoclient/internal/artifact"
	"github.com/tturner/echoclient/internal/capture"
	"github.com/tturner/echoclient/internal/config"
	echoerrors "github.com/tturner/echoclient/internal/errors"
	"github.com/tturner/echoclient/internal/logging"
	"github.com/tturner/echoclient/internal/metrics"
	"github.com/tturner/echoclient/internal/session"
	"github.com/tturner/echoclient/internal/tui"
)

type ClientOptions struct {
	Config     *config.ClientConfig
	ConfigPath string
	Verbose    bool
	Debug      bool
	TUI        bool

	// Console streams; nil means os.Stdout / os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
}

// ClientResult describes a finished client run.
type ClientResult struct {
	RunID       string
	LogPath     string
	TimingsPath string
	Summary     metrics.SessionSummary
	Stop        *echoerrors.SessionError
	Capture     *capture.Snapshot
}

// RunClient runs one echo session with all of its outputs. The returned
// error is non-nil only when the session could not start or the initial
// connection failed; mid-session failures and interrupts are reported in
// the result.
func RunClient(ctx context.Context, opts ClientOptions) (*ClientResult, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.CreateDefaultClientConfig()
	}
	if err := config.ValidateClientConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid client options: %w", err)
	}
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	start := time.Now()
	outputMgr, err := artifact.NewOutputManager(cfg.LogDir, start)
	if err != nil {
		return nil, err
	}
	outputMgr.SetTarget(cfg.Host, cfg.Port)
	outputMgr.SetConfig(cfg.Size, cfg.FrequencySec, cfg.Count, cfg.TimeoutSec)

	logLevel := logging.LogLevelInfo
	if opts.Debug {
		logLevel = logging.LogLevelDebug
	} else if opts.Verbose {
		logLevel = logging.LogLevelVerbose
	}
	logger, err := logging.NewLoggerWithOptions(logLevel, outputMgr.LogPath(), cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()
	if opts.TUI {
		// The dashboard owns the terminal; the log file still gets every line.
		logger.SetConsole(nil, nil)
	} else {
		logger.SetConsole(stdout, stderr)
	}

	logger.Info("Starting Echo Client - logging to %s", outputMgr.LogPath())
	logger.Info("Precise timing data will be saved to %s", outputMgr.TimingsPath())
	if opts.ConfigPath != "" {
		logger.Verbose("  Config: %s", opts.ConfigPath)
	}
	logger.LogStartup(cfg.Host, cfg.Port, cfg.Size, cfg.Interval(), cfg.Count, cfg.Timeout())

	writer, err := metrics.NewWriter(outputMgr.TimingsPath(), cfg.JSONFile)
	if err != nil {
		return nil, fmt.Errorf("create timings writer: %w", err)
	}
	defer writer.Close()
	if cfg.JSONFile != "" {
		outputMgr.SetJSONFile(cfg.JSONFile)
	}

	pcapCapture := startClientCapture(cfg, outputMgr, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Verbose("Received interrupt signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	collector := metrics.NewCollector()
	sinks := metrics.MultiSink{writer, collector}
	var dashboardSink *tui.Sink
	if opts.TUI {
		dashboardSink = tui.NewSink()
		sinks = append(sinks, dashboardSink)
	}

	sess, err := session.New(session.Options{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Size:     cfg.Size,
		Interval: cfg.Interval(),
		Count:    cfg.Count,
		Timeout:  cfg.Timeout(),
		Logger:   logger,
		Sink:     sinks,
	})
	if err != nil {
		stopClientCapture(pcapCapture, outputMgr, logger)
		return nil, fmt.Errorf("invalid client options: %w", err)
	}

	var res *session.Result
	var runErr error
	if opts.TUI {
		res, runErr = runWithDashboard(ctx, cancel, sess, dashboardSink, cfg.Count)
	} else {
		res, runErr = sess.Run(ctx)
	}

	result := &ClientResult{
		RunID:       outputMgr.RunID(),
		LogPath:     outputMgr.LogPath(),
		TimingsPath: outputMgr.TimingsPath(),
		Summary:     res.Summary,
		Stop:        res.Stop,
		Capture:     stopClientCapture(pcapCapture, outputMgr, logger),
	}

	exitCode := 0
	if runErr != nil {
		exitCode = 1
		runErr = echoerrors.WrapConnectError(runErr, cfg.Host, cfg.Port)
	}
	if err := outputMgr.Finalize(&res.Summary, exitCode, runErr); err != nil {
		logger.Error("Failed to write run artifacts: %v", err)
	}
	logger.Verbose("Artifacts written to: %s", cfg.LogDir)

	if opts.TUI && runErr != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", runErr)
	}
	return result, runErr
}

// runWithDashboard drives the session in the background while the
// dashboard owns the terminal. Quitting the dashboard interrupts the session.
func runWithDashboard(ctx context.Context, cancel context.CancelFunc, sess *session.Session, sink *tui.Sink, count int) (*session.Result, error) {
	type outcome struct {
		res *session.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := sess.Run(ctx)
		done <- outcome{res, err}
	}()

	model := tui.NewModel(sess.Addr(), count, sink, cancel)
	if err := tui.Run(ctx, model, tui.Options{}); err != nil {
		cancel()
	}
	out := <-done
	return out.res, out.err
}

func startClientCapture(cfg *config.ClientConfig, outputMgr *artifact.OutputManager, logger *logging.Logger) *capture.Capture {
	if cfg.PCAPFile == "" {
		return nil
	}
	path := cfg.PCAPFile
	if path == "auto" {
		path = outputMgr.PCAPPath()
	}

	var (
		c     *capture.Capture
		iface = cfg.CaptureInterface
		err   error
	)
	if iface != "" {
		c, err = capture.StartCapture(iface, cfg.Port, path)
	} else {
		c, iface, err = capture.StartCaptureForTarget(cfg.Host, cfg.Port, path)
	}
	if err != nil {
		logger.Error("Packet capture disabled: %v", err)
		return nil
	}
	logger.Info("Capturing %s on %s to %s", capture.Filter(cfg.Port), iface, path)
	outputMgr.SetPCAPFile(path)
	return c
}

func stopClientCapture(c *capture.Capture, outputMgr *artifact.OutputManager, logger *logging.Logger) *capture.Snapshot {
	if c == nil {
		return nil
	}
	if err := c.Stop(); err != nil {
		logger.Error("Packet capture: %v", err)
	}
	snap := c.Stats()
	outputMgr.SetCaptureStats(artifact.CaptureStats{
		Packets:         snap.Packets,
		PayloadSegments: snap.PayloadSegments,
		Retransmits:     snap.Retransmits,
	})
	logger.Verbose("Captured %d TCP segments in %s (%d with payload, %d retransmits)",
		snap.Packets, c.Duration().Truncate(time.Millisecond), snap.PayloadSegments, snap.Retransmits)
	return &snap
}
