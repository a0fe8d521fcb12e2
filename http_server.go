package spcline

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server exposes the store and the analysis engine over HTTP. Streaming and
// snapshot facilities are attached according to the configuration.
type Server struct {
	store     MetricStore
	config    Config
	limiter   *rateLimiter
	auth      *authenticator
	hub       *StreamHub
	snapshots *SnapshotManager
	srv       *http.Server
}

// NewServer wires a server over the store.
func NewServer(store MetricStore, config Config) (*Server, error) {
	// Rate limiter from config or default
	rateLimit := config.RateLimitPerSecond
	if rateLimit <= 0 {
		rateLimit = 1000
	}

	s := &Server{
		store:   store,
		config:  config,
		limiter: newRateLimiter(rateLimit, time.Second),
		auth:    newAuthenticator(config.Auth),
	}
	if config.HTTP.StreamEnabled {
		s.hub = NewStreamHub(DefaultStreamConfig())
	}
	if config.Snapshot.Enabled {
		mgr, err := NewSnapshotManager(store, config.Snapshot)
		if err != nil {
			return nil, err
		}
		s.snapshots = mgr
	}
	return s, nil
}

// Hub returns the stream hub, nil when streaming is disabled.
func (s *Server) Hub() *StreamHub {
	return s.hub
}

// Snapshots returns the snapshot manager, nil when snapshots are disabled.
func (s *Server) Snapshots() *SnapshotManager {
	return s.snapshots
}

// Handler assembles the route table with authentication and rate limiting
// applied. It is exported so tests can drive the API without a listener.
func (s *Server) Handler() http.Handler {
	// Helper to wrap handlers with middleware
	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		h = authMiddleware(s.auth, h)
		h = rateLimitMiddleware(s.limiter, h)
		return h
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	// Setup route groups
	setupMetricRoutes(mux, s, wrap)
	setupAnalysisRoutes(mux, s, wrap)
	setupRemoteWriteRoutes(mux, s, wrap)
	if s.snapshots != nil {
		setupSnapshotRoutes(mux, s, wrap)
	}
	if s.hub != nil {
		mux.HandleFunc("/stream", s.hub.WebSocketHandler())
	}

	return mux
}

// Start binds the configured port on localhost and serves in the background.
func (s *Server) Start() error {
	port := s.config.HTTP.Port
	if port <= 0 || port > 65535 {
		port = 8090
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.srv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	slog.Info("HTTP server listening", "addr", addr)
	go func() {
		_ = s.srv.Serve(listener)
	}()

	return nil
}

// Close shuts the server down gracefully.
func (s *Server) Close() error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// StartServer creates and starts a server in one call.
func StartServer(store MetricStore, config Config) (*Server, error) {
	s, err := NewServer(store, config)
	if err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// publishUpdate re-analyzes a metric after ingestion and pushes the result to
// stream subscribers. Skipped when nobody is subscribed to the metric.
func (s *Server) publishUpdate(ctx context.Context, name string, added []Observation) {
	if s.hub == nil || !s.hub.Interested(name) {
		return
	}

	ev := StreamEvent{Metric: name, Added: added}
	metric, err := s.store.Metric(ctx, name)
	if err == nil {
		result, aerr := Analyze(metric.Series, AnalysisOptions{
			Mode:     metric.Mode,
			Overlay:  metric.Overlay,
			Dividers: metric.Dividers,
		})
		if aerr != nil {
			slog.Warn("stream re-analysis failed", "metric", name, "err", aerr)
		} else {
			ev.Result = result
		}
	}
	s.hub.Publish(ev)
}
