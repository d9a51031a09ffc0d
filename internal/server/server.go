// Package server exposes the agent's control plane: a REST command
// endpoint and two WebSocket streaming endpoints, served over a local unix
// socket and an optional TCP listener.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/chimera-project/chimerad/internal/engine"
	"github.com/chimera-project/chimerad/internal/model"
	"github.com/chimera-project/chimerad/internal/provider"
	"github.com/chimera-project/chimerad/internal/store"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	hclog "github.com/hashicorp/go-hclog"
)

// socketDirMode is applied to the socket's parent directory so any peer can
// reach the socket; authorization happens per request via peer credentials,
// not filesystem permissions.
const socketDirMode = 0o666

// Server serves the agent's control plane: one REST command endpoint, two
// WebSocket streaming endpoints, peer-uid gated privileged commands on the
// local socket.
type Server struct {
	logger   hclog.Logger
	engine   *engine.Engine
	store    *store.Store
	registry *provider.Registry
	cfg      model.AgentConfig

	httpServer *http.Server
	upgrader   websocket.Upgrader

	unixListener net.Listener
	tcpListener  net.Listener
}

// New constructs a Server. Call Start to begin accepting connections.
func New(logger hclog.Logger, eng *engine.Engine, st *store.Store, registry *provider.Registry, cfg model.AgentConfig) *Server {
	s := &Server{
		logger:   logger.Named("server"),
		engine:   eng,
		store:    st,
		registry: registry,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			// Streaming sessions are local-operator tooling, not
			// browser clients; origin checking doesn't apply here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	router := mux.NewRouter()
	router.HandleFunc("/command", s.handleCommand).Methods(http.MethodPost)
	router.HandleFunc("/stream/exec", s.handleStreamExec).Methods(http.MethodGet)
	router.HandleFunc("/stream/shell", s.handleStreamShell).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Handler:     router,
		ConnContext: withConn,
	}
	return s
}

// Start opens the local unix socket and, if configured, a TCP listener,
// then begins serving both in the background. The socket's parent directory
// is created with mode 0o666 so unprivileged peers can connect; privilege is
// enforced per request via peer credentials, not filesystem permissions.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), socketDirMode); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	unixListener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on unix socket %q: %w", s.cfg.SocketPath, err)
	}
	s.unixListener = unixListener
	s.logger.Info("listening on local socket", "path", s.cfg.SocketPath)

	go func() {
		if err := s.httpServer.Serve(unixListener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("unix listener stopped", "error", err)
		}
	}()

	if s.cfg.TCPAddr != "" {
		tcpListener, err := net.Listen("tcp", s.cfg.TCPAddr)
		if err != nil {
			return fmt.Errorf("listen on tcp %q: %w", s.cfg.TCPAddr, err)
		}
		s.tcpListener = tcpListener
		s.logger.Warn("TCP listener enabled: all requests over it are treated as unprivileged, per spec; add a network-level gate if that isn't acceptable", "addr", s.cfg.TCPAddr)

		go func() {
			if err := s.httpServer.Serve(tcpListener); err != nil && err != http.ErrServerClosed {
				s.logger.Error("tcp listener stopped", "error", err)
			}
		}()
	}

	return nil
}

// Stop shuts the HTTP server down and unlinks the local socket.
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if removeErr := os.Remove(s.cfg.SocketPath); removeErr != nil && !os.IsNotExist(removeErr) {
		s.logger.Warn("failed to unlink local socket", "path", s.cfg.SocketPath, "error", removeErr)
	}
	return err
}
