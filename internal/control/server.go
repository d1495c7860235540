// Package control serves the HTTP control API of a playback session:
// transport commands, a status snapshot, health, version and metrics.
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NekoSaan/h264Player/internal/config"
	"github.com/NekoSaan/h264Player/internal/logger"
	"github.com/NekoSaan/h264Player/internal/player"
	"github.com/NekoSaan/h264Player/internal/transport"
)

// EventSink receives commands. *input.Queue is one.
type EventSink interface {
	Push(ev transport.Event, origin string) error
}

// Options configures a Server.
type Options struct {
	Control config.ControlConfig
	Metrics config.MetricsConfig
	Logger  logger.Logger
}

// Server is the control API. It observes the player for its status
// endpoint and pushes commands into the player's input queue.
type Server struct {
	opts      Options
	router    *mux.Router
	sink      EventSink
	health    *HealthManager
	logger    logger.Logger
	startTime time.Time

	mu     sync.RWMutex
	status player.Status

	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
}

var _ player.Observer = (*Server)(nil)

// New creates a server pushing commands to sink.
func New(sink EventSink, opts Options) *Server {
	log := logger.WithComponent(logger.OrNull(opts.Logger), "control")
	s := &Server{
		opts:      opts,
		router:    mux.NewRouter(),
		sink:      sink,
		health:    NewHealthManager(log),
		logger:    log,
		startTime: time.Now(),
		status:    player.Status{State: transport.Playing.String()},
	}
	s.setupRoutes()
	return s
}

// RegisterChecker adds a dependency to the health endpoint.
func (s *Server) RegisterChecker(c Checker) {
	s.health.Register(c)
}

// ObserveStatus implements player.Observer.
func (s *Server) ObserveStatus(st player.Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Status returns the last observed status.
func (s *Server) Status() player.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(logger.RequestLoggerMiddleware(s.logger))
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.metricsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	if s.opts.Metrics.Enabled {
		path := s.opts.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.Handle(path, promhttp.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/control/{command}", s.handleControl).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Control.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Control.ListenAddr, err)
	}

	s.listener = ln
	s.done = make(chan struct{})
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.opts.Control.ReadTimeout,
		WriteTimeout: s.opts.Control.WriteTimeout,
	}

	s.logger.WithField("addr", ln.Addr().String()).Info("Starting control server")
	go func() {
		defer close(s.done)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Control server error")
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests until ctx is
// done.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down control server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown control server: %w", err)
	}
	<-s.done
	return nil
}
