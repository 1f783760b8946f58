package session

// EchoSession: one TCP connection, a bounded or unbounded series of blocking
// echo round trips, and a summary emitted exactly once at the end.

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	echoerrors "github.com/tturner/echoclient/internal/errors"
	"github.com/tturner/echoclient/internal/metrics"
	"github.com/tturner/echoclient/internal/payload"
)

// Logger receives human-readable status lines.
type Logger interface {
	Info(format string, v ...interface{})
	Error(format string, v ...interface{})
	Verbose(format string, v ...interface{})
	LogHex(label string, data []byte)
}

// DialFunc opens the session connection.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Options configures an EchoSession.
type Options struct {
	Host     string
	Port     int
	Size     int
	Interval time.Duration
	Count    int // 0 = unbounded
	Timeout  time.Duration

	Logger Logger
	Sink   metrics.Sink

	// Optional hooks, defaulted by New.
	Dial DialFunc
	Now  func() time.Time
}

// Result is what a finished session reports back.
type Result struct {
	Summary metrics.SessionSummary
	// Stop is the terminal condition, nil when the configured count completed.
	Stop *echoerrors.SessionError
}

// Session runs the echo measurement loop.
type Session struct {
	opts    Options
	payload []byte
	recvBuf []byte

	conn       net.Conn
	sent       int
	mismatched int
	records    []metrics.PacketRecord
	finalized  bool
	summary    metrics.SessionSummary
}

// New validates the options and builds the payload.
func New(opts Options) (*Session, error) {
	p, err := payload.Build(opts.Size)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0, got %s", opts.Timeout)
	}
	if opts.Interval < 0 {
		return nil, fmt.Errorf("interval must be >= 0, got %s", opts.Interval)
	}
	if opts.Count < 0 {
		return nil, fmt.Errorf("count must be >= 0, got %d", opts.Count)
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("metrics sink is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Dial == nil {
		dialer := &net.Dialer{Timeout: opts.Timeout}
		opts.Dial = dialer.DialContext
	}

	return &Session{
		opts:    opts,
		payload: p,
		recvBuf: make([]byte, opts.Size),
	}, nil
}

// Addr returns the target address.
func (s *Session) Addr() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Run connects and drives round trips until the count is reached, the
// context is cancelled, or the connection fails. The returned error is
// non-nil only when the initial connection could not be established;
// mid-session failures are reported through Result.Stop.
func (s *Session) Run(ctx context.Context) (res *Result, err error) {
	if s.finalized {
		return nil, fmt.Errorf("session already ran")
	}
	start := s.opts.Now()
	res = &Result{}

	// Every exit path goes through finalize exactly once.
	defer func() {
		res.Summary = s.finalize(start, res.Stop)
	}()

	s.opts.Logger.Info("Connecting to %s...", s.Addr())
	conn, dialErr := s.connect(ctx)
	if dialErr != nil {
		if ctx.Err() != nil {
			res.Stop = &echoerrors.SessionError{Kind: echoerrors.KindInterrupted, Op: "connect", Err: ctx.Err()}
			s.opts.Logger.Info("User interrupted - shutting down")
			return res, nil
		}
		res.Stop = &echoerrors.SessionError{Kind: echoerrors.KindConnect, Op: "connect", Err: dialErr}
		s.opts.Logger.Error("Socket error during connection: %v", dialErr)
		return res, res.Stop
	}
	s.conn = conn
	s.opts.Logger.Info("Connected to %s", s.Addr())

	// Interrupt unblocks any pending read or write by expiring the deadline.
	stopWatch := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stopWatch()

	res.Stop = s.loop(ctx)
	if res.Stop != nil {
		s.logStop(res.Stop)
	}
	return res, nil
}

func (s *Session) connect(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return s.opts.Dial(dialCtx, "tcp", s.Addr())
}

func (s *Session) loop(ctx context.Context) *echoerrors.SessionError {
	for seq := 1; s.opts.Count == 0 || seq <= s.opts.Count; seq++ {
		if ctx.Err() != nil {
			return interrupted("send", seq, ctx.Err())
		}

		rec, stop := s.roundTrip(ctx, seq)
		if stop != nil {
			return stop
		}

		s.records = append(s.records, rec)
		s.opts.Logger.Info("Received response for packet #%d in %.3f μs", seq, rec.RTTUs)
		if err := s.opts.Sink.Record(rec); err != nil {
			s.opts.Logger.Error("Failed to record packet #%d: %v", seq, err)
		}

		if s.opts.Count != 0 && seq >= s.opts.Count {
			break
		}
		if stop := s.pause(ctx, seq); stop != nil {
			return stop
		}
	}
	return nil
}

// roundTrip sends the payload once and reassembles the full echo. The
// timestamps bracket the whole write plus every partial read.
func (s *Session) roundTrip(ctx context.Context, seq int) (metrics.PacketRecord, *echoerrors.SessionError) {
	s.opts.Logger.Info("Sending packet #%d (%d bytes)...", seq, s.opts.Size)

	sentAt := s.opts.Now()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.Timeout)); err != nil {
		return metrics.PacketRecord{}, s.classify(ctx, "write", seq, err)
	}
	if ctx.Err() != nil {
		return metrics.PacketRecord{}, interrupted("write", seq, ctx.Err())
	}
	if _, err := s.conn.Write(s.payload); err != nil {
		return metrics.PacketRecord{}, s.classify(ctx, "write", seq, err)
	}
	s.sent++

	if err := s.readFull(ctx, seq); err != nil {
		return metrics.PacketRecord{}, err
	}

	recvAt := s.opts.Now()
	sendNs := sentAt.UnixNano()
	// Monotonic delta keeps receive >= send even if the wall clock steps.
	recvNs := sendNs + recvAt.Sub(sentAt).Nanoseconds()

	if off := payload.Verify(s.payload, s.recvBuf); off >= 0 {
		s.mismatched++
		s.opts.Logger.Error("Echo mismatch on packet #%d at byte %d", seq, off)
		s.opts.Logger.LogHex(fmt.Sprintf("packet #%d echo", seq), s.recvBuf)
	}

	return metrics.NewPacketRecord(seq, sentAt, sendNs, recvNs), nil
}

// readFull accumulates exactly Size bytes. Each read may block up to the
// session timeout.
func (s *Session) readFull(ctx context.Context, seq int) *echoerrors.SessionError {
	got := 0
	for got < len(s.recvBuf) {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.Timeout)); err != nil {
			return s.classify(ctx, "read", seq, err)
		}
		if ctx.Err() != nil {
			return interrupted("read", seq, ctx.Err())
		}

		n, err := s.conn.Read(s.recvBuf[got:])
		got += n
		if got == len(s.recvBuf) {
			return nil
		}
		if err == nil && n == 0 {
			err = io.EOF
		}
		if err != nil {
			if got > 0 {
				s.opts.Logger.Verbose("Packet #%d: %d of %d bytes received before failure", seq, got, len(s.recvBuf))
			}
			return s.classify(ctx, "read", seq, err)
		}
	}
	return nil
}

func (s *Session) pause(ctx context.Context, seq int) *echoerrors.SessionError {
	if s.opts.Interval <= 0 {
		return nil
	}
	timer := time.NewTimer(s.opts.Interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return interrupted("sleep", seq+1, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// classify treats any failure after cancellation as the interrupt it caused.
func (s *Session) classify(ctx context.Context, op string, seq int, err error) *echoerrors.SessionError {
	if ctx.Err() != nil {
		return interrupted(op, seq, ctx.Err())
	}
	return echoerrors.Classify(op, seq, err)
}

func interrupted(op string, seq int, cause error) *echoerrors.SessionError {
	return &echoerrors.SessionError{Kind: echoerrors.KindInterrupted, Op: op, Iteration: seq, Err: cause}
}

func (s *Session) logStop(stop *echoerrors.SessionError) {
	switch stop.Kind {
	case echoerrors.KindInterrupted:
		s.opts.Logger.Info("User interrupted - shutting down")
	case echoerrors.KindTimeout:
		s.opts.Logger.Error("TCP CONNECTION DROP: Socket timeout - server not responding (packet #%d, %s)", stop.Iteration, stop.Op)
	case echoerrors.KindConnectionClosed:
		s.opts.Logger.Error("TCP CONNECTION DROP: Connection closed by server (packet #%d, %s)", stop.Iteration, stop.Op)
	default:
		s.opts.Logger.Error("TCP CONNECTION DROP: Socket error: %v", stop.Err)
	}
}

// finalize computes and emits the summary and releases the connection.
func (s *Session) finalize(start time.Time, stop *echoerrors.SessionError) metrics.SessionSummary {
	if s.finalized {
		return s.summary
	}
	s.finalized = true

	summary := metrics.Summarize(s.records, s.sent, s.mismatched)
	summary.StartTime = start
	summary.EndTime = s.opts.Now()
	summary.Reason = "completed"
	if stop != nil {
		summary.Reason = stop.Kind.String()
	}

	// A session that never connected has no packets to report.
	if s.conn != nil {
		for _, line := range metrics.SummaryLines(summary) {
			s.opts.Logger.Info("%s", line)
		}
	}

	if err := s.opts.Sink.Finalize(summary); err != nil {
		s.opts.Logger.Error("Failed to finalize metrics: %v", err)
	}

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.opts.Logger.Error("Close connection: %v", err)
		} else {
			s.opts.Logger.Info("Connection closed")
		}
	}
	s.opts.Logger.Info("Echo client terminated")
	s.summary = summary
	return summary
}
