package echoserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/tturner/echoclient/internal/config"
	"github.com/tturner/echoclient/internal/logging"
)

// Server mirrors every byte it reads back to the sender, subject to the
// configured fault policy.
type Server struct {
	config   *config.ServerConfig
	logger   *logging.Logger
	faults   *faultPolicy
	listener *net.TCPListener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connsMu sync.Mutex
	conns   map[*net.TCPConn]struct{}
}

// NewServer creates a new echo server.
func NewServer(cfg *config.ServerConfig, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server config is required")
	}
	if cfg.ReadBytes == 0 {
		cfg.ReadBytes = 4096
	}
	if err := config.ValidateServerConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		var err error
		if logger, err = logging.NewLogger(logging.LogLevelSilent, ""); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config: cfg,
		logger: logger,
		faults: resolveFaultPolicy(cfg),
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*net.TCPConn]struct{}),
	}, nil
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("resolve TCP address: %w", err)
	}

	s.listener, err = net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("listen TCP: %w", err)
	}

	s.logger.Info("Echo server listening on %s", s.listener.Addr())
	if s.config.Faults.Enable {
		s.logger.Info("Fault injection enabled")
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound TCP address after Start.
func (s *Server) Addr() *net.TCPAddr {
	if s.listener == nil {
		return nil
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr
	}
	return nil
}

// Stop closes the listener and every open connection, then waits for the
// handlers to exit.
func (s *Server) Stop() error {
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()

	s.logger.Info("Echo server stopped")
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.listener.SetDeadline(time.Now().Add(1 * time.Second))
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("Accept error: %v", err)
			continue
		}

		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn *net.TCPConn) {
	defer s.wg.Done()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		conn.Close()
	}()

	remoteAddr := conn.RemoteAddr().String()
	s.logger.Info("New connection from %s", remoteAddr)

	readBuf := make([]byte, s.config.ReadBytes)
	count := 0

	for {
		if s.ctx.Err() != nil {
			return
		}

		n, err := conn.Read(readBuf)
		if n > 0 {
			count++
			s.logger.Verbose("Echoing %d bytes to %s (#%d)", n, remoteAddr, count)
			if werr := s.writeResponse(conn, remoteAddr, count, readBuf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				s.logger.Info("Connection closed by client: %s", remoteAddr)
				return
			}
			if s.ctx.Err() == nil {
				s.logger.Error("Read error from %s: %v", remoteAddr, err)
			}
			return
		}
	}
}
