package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// Kind classifies why an echo session stopped.
type Kind int

const (
	KindConnect Kind = iota + 1
	KindConnectionClosed
	KindTimeout
	KindSocket
	KindInterrupted
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect_error"
	case KindConnectionClosed:
		return "connection_closed"
	case KindTimeout:
		return "timeout"
	case KindSocket:
		return "socket_error"
	case KindInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// SessionError is a terminal session condition with the context needed to log it.
type SessionError struct {
	Kind      Kind
	Op        string // "connect", "write", "read"
	Iteration int    // packet sequence number being processed, 0 before the first send
	Err       error
}

func (e *SessionError) Error() string {
	switch e.Kind {
	case KindConnectionClosed:
		return fmt.Sprintf("connection closed by server during %s of packet #%d", e.Op, e.Iteration)
	case KindTimeout:
		return fmt.Sprintf("socket timeout during %s of packet #%d - server not responding", e.Op, e.Iteration)
	case KindInterrupted:
		return fmt.Sprintf("interrupted during %s of packet #%d", e.Op, e.Iteration)
	case KindConnect:
		return fmt.Sprintf("connect: %v", e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("socket error during %s of packet #%d: %v", e.Op, e.Iteration, e.Err)
	}
	return fmt.Sprintf("socket error during %s of packet #%d", e.Op, e.Iteration)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Graceful reports whether the condition is a user stop rather than a failure.
func (e *SessionError) Graceful() bool {
	return e.Kind == KindInterrupted
}

// Classify maps a transport error from op on the given packet into the session taxonomy.
func Classify(op string, iteration int, err error) *SessionError {
	if err == nil {
		return nil
	}
	var se *SessionError
	if stderrors.As(err, &se) {
		return se
	}

	kind := KindSocket
	var netErr net.Error
	switch {
	case stderrors.Is(err, io.EOF), stderrors.Is(err, io.ErrUnexpectedEOF):
		kind = KindConnectionClosed
	case stderrors.Is(err, syscall.ECONNRESET), stderrors.Is(err, syscall.EPIPE):
		kind = KindConnectionClosed
	case stderrors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}

	return &SessionError{Kind: kind, Op: op, Iteration: iteration, Err: err}
}

// KindOf returns the Kind carried by err, or 0 if err is not a SessionError.
func KindOf(err error) Kind {
	var se *SessionError
	if stderrors.As(err, &se) {
		return se.Kind
	}
	return 0
}
