// Package server accepts client connections and runs one session per
// connection. Sessions are independent: each owns its own pipeline
// instance assembled from the configured chain, and a failure in one never
// affects another.
package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/casemr/gadgetron/config"
	"github.com/casemr/gadgetron/errors"
	"github.com/casemr/gadgetron/session"
)

// Server owns the protocol listeners and the session lifecycle.
type Server struct {
	cfg   config.ServerConfig
	chain config.ChainConfig
	deps  session.Dependencies

	logger *slog.Logger

	mu      sync.Mutex
	ln      net.Listener
	wsSrv   *http.Server
	cancel  context.CancelFunc
	started bool

	wg sync.WaitGroup
}

// New creates a server. Codec and stage registration in deps must be
// complete before Start.
func New(cfg config.ServerConfig, chain config.ChainConfig, deps session.Dependencies) *Server {
	return &Server{
		cfg:    cfg,
		chain:  chain,
		deps:   deps,
		logger: deps.Logger,
	}
}

// Start opens the listeners and begins accepting sessions. The context
// bounds the lifetime of every session; cancelling it winds them down.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.WrapProcessing(errors.ErrAlreadyStarted, "Server", "Start", "lifecycle")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		cancel()
		return errors.WrapIO(err, "Server", "Start", "listen")
	}
	s.ln = ln
	s.started = true
	s.logger.Info("listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(ctx, ln)

	if s.cfg.WebSocketListen != "" {
		s.startWebSocket(ctx)
	}

	return nil
}

// Addr returns the bound TCP address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop closes the listeners, cancels every running session and waits up
// to timeout for them to finish.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.WrapProcessing(errors.ErrNotStarted, "Server", "Stop", "lifecycle")
	}
	ln := s.ln
	wsSrv := s.wsSrv
	cancel := s.cancel
	s.mu.Unlock()

	if err := ln.Close(); err != nil {
		s.logger.Debug("listener close failed", "error", err)
	}
	if wsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if err := wsSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Debug("websocket server shutdown failed", "error", err)
		}
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("server stopped")
		return nil
	case <-time.After(timeout):
		return errors.WrapProcessing(
			errors.New("sessions did not finish within shutdown timeout"),
			"Server", "Stop", "session join")
	}
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed during Stop, or a fatal accept error.
			s.logger.Debug("accept loop exiting", "error", err)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runSession(ctx, conn, conn.RemoteAddr().String())
		}()
	}
}

// runSession assembles and runs one session. Assembly failures close the
// connection immediately; the session never starts.
func (s *Server) runSession(ctx context.Context, conn io.ReadWriteCloser, remote string) {
	sess, err := session.New(conn, remote, s.chain, s.deps)
	if err != nil {
		s.logger.Error("session assembly failed", "remote", remote, "error", err)
		if cerr := conn.Close(); cerr != nil {
			s.logger.Debug("connection close failed", "error", cerr)
		}
		return
	}

	// Run logs and records its own outcome; the error is surfaced there.
	_ = sess.Run(ctx)
}
