package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/zeusync/xihe/internal/core/observability/log"
	"github.com/zeusync/xihe/internal/core/session"
	"github.com/zeusync/xihe/internal/inference"
)

// APIPrefix is the route prefix of every endpoint except the health check.
const APIPrefix = "/api/v2"

// Server is the lighting estimation service: session negotiation, point
// cloud dumps, and one-shot or streamed estimation.
type Server struct {
	registry *session.Registry
	pipeline inference.Pipeline

	httpServer *http.Server
	listener   net.Listener
	handler    http.Handler

	// Server state
	running int32 // atomic bool
	closed  int32 // atomic bool

	// Stats
	startedAt   time.Time
	requests    atomic.Int64
	failures    atomic.Int64
	estimations atomic.Int64
	streams     atomic.Int64

	// Configuration and logging
	config Config
	logger log.Log

	workerDone chan struct{}
}

// Config holds server configuration
type Config struct {
	// Network settings
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Payload settings
	MaxPayloadBytes int64
	DumpDir         string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		ListenAddr:      "127.0.0.1:8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		MaxPayloadBytes: 8 * 1024 * 1024, // 8MB
		DumpDir:         "./dist/xihe_service",
	}
}

// NewServer creates a new lighting estimation server
func NewServer(config Config, registry *session.Registry, pipeline inference.Pipeline, logger log.Log) (*Server, error) {
	if registry == nil || pipeline.Estimator == nil {
		return nil, fmt.Errorf("%w: registry and estimator are required", ErrInvalidConfig)
	}
	if config.MaxPayloadBytes <= 0 {
		return nil, fmt.Errorf("%w: max payload bytes %d", ErrInvalidConfig, config.MaxPayloadBytes)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		registry:  registry,
		pipeline:  pipeline,
		config:    config,
		logger:    logger.With(log.String("component", "server")),
		startedAt: time.Now(),
	}
	s.handler = s.routes()

	s.logger.Info("Server created",
		log.String("listen_addr", config.ListenAddr),
		log.Bool("normalized_output", !pipeline.Normalizer.Identity()))

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+APIPrefix+"/session/{$}", s.handle(s.handleSession))
	mux.HandleFunc("POST "+APIPrefix+"/dump/{$}", s.handle(s.handleDump))
	mux.HandleFunc("POST "+APIPrefix+"/lighting-estimation/{$}", s.handle(s.handleLightingEstimation))
	mux.HandleFunc("GET "+APIPrefix+"/lighting-estimation/ws", s.handleLightingStream)
	mux.HandleFunc("POST "+APIPrefix+"/network-testing/log/{$}", s.handle(s.handleNetworkLog))
	mux.HandleFunc("POST "+APIPrefix+"/network-testing/client-log/{$}", s.handle(s.handleNetworkClientLog))
	mux.HandleFunc("POST "+APIPrefix+"/recording/{$}", s.handle(s.handleRecording))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start listens on the configured address and serves in the background
func (s *Server) Start(_ context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}

	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	s.logger.Info("Starting server")

	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		s.logger.Error("Failed to create listener", log.Error(err))
		return err
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.workerDone = make(chan struct{})

	go func() {
		defer close(s.workerDone)
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server stopped unexpectedly", log.Error(err))
		}
	}()

	s.logger.Info("Server listening",
		log.String("addr", listener.Addr().String()))

	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}

	s.logger.Info("Stopping server")

	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	err := s.httpServer.Shutdown(ctx)
	<-s.workerDone

	s.logger.Info("Server stopped",
		log.Int64("requests", s.requests.Load()),
		log.Int64("estimations", s.estimations.Load()))

	return err
}

// Close closes the server and releases all resources
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil // Already closed
	}

	s.logger.Info("Closing server")

	// Stop if running
	if atomic.LoadInt32(&s.running) == 1 {
		_ = s.Stop(context.Background())
	}

	s.logger.Info("Server closed")

	return nil
}

// IsRunning reports whether the server is serving
func (s *Server) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// Stats is the health check payload
type Stats struct {
	OK          bool   `json:"ok"`
	Sessions    int    `json:"sessions"`
	AnchorSizes []int  `json:"anchor_sizes"`
	Requests    int64  `json:"requests"`
	Failures    int64  `json:"failures"`
	Estimations int64  `json:"estimations"`
	Streams     int64  `json:"streams"`
	Uptime      string `json:"uptime"`
}

// GetStats returns a snapshot of the server counters
func (s *Server) GetStats() Stats {
	return Stats{
		OK:          true,
		Sessions:    s.registry.Len(),
		AnchorSizes: s.registry.Anchors().Sizes(),
		Requests:    s.requests.Load(),
		Failures:    s.failures.Load(),
		Estimations: s.estimations.Load(),
		Streams:     s.streams.Load(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}
}
