// Package api provides HTTP handlers and the main API server logic for voiceform.
//
// It exposes RESTful endpoints for managing form definitions and for
// driving conversation sessions through the flow engine.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hutchutchutch/voiceform/internal/flow"
	"github.com/hutchutchutch/voiceform/internal/models"
	"github.com/hutchutchutch/voiceform/internal/store"
)

// Server timeout configuration constants.
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleConnTimeout = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Server wires the HTTP surface to the store and the flow engine.
type Server struct {
	st     store.Store
	engine *flow.Engine
	addr   string
	httpd  *http.Server
}

// Opts holds the options for creating an API server.
type Opts struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
}

// Option configures an API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// NewServer creates an API server based on provided options.
func NewServer(st store.Store, engine *flow.Engine, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	slog.Debug("Server.NewServer: creating API server", "addr", addr)
	return &Server{st: st, engine: engine, addr: addr}
}

// Handler builds the route table. Exposed separately so tests can drive
// the mux without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /forms", s.createFormHandler)
	mux.HandleFunc("GET /forms", s.listFormsHandler)
	mux.HandleFunc("GET /forms/{id}", s.getFormHandler)
	mux.HandleFunc("DELETE /forms/{id}", s.deleteFormHandler)

	mux.HandleFunc("POST /sessions", s.startSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/advance", s.advanceSessionHandler)
	mux.HandleFunc("GET /sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("GET /sessions/{id}/transcript", s.getTranscriptHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSessionHandler)

	mux.HandleFunc("GET /stats", s.statsHandler)
	mux.HandleFunc("GET /health", s.healthHandler)

	return mux
}

// Run starts the HTTP server and blocks until the context is canceled,
// then drains connections and stops the engine's timers.
func (s *Server) Run(ctx context.Context) error {
	s.httpd = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleConnTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", s.addr)
		if err := s.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	err := s.httpd.Shutdown(shutdownCtx)
	s.engine.Stop()
	return err
}

// healthHandler handles GET /health
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Service is healthy", nil))
}

// statsHandler handles GET /stats: form and session counts.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	forms, err := s.st.ListForms()
	if err != nil {
		slog.Error("statsHandler list forms failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to collect stats"))
		return
	}
	sessions, err := s.st.ListSessions()
	if err != nil {
		slog.Error("statsHandler list sessions failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to collect stats"))
		return
	}

	active, complete, followUp := 0, 0, 0
	for _, sess := range sessions {
		if sess.IsComplete {
			complete++
		} else {
			active++
		}
		if sess.RequiresFollowUp {
			followUp++
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]int{
		"forms":              len(forms),
		"sessions_active":    active,
		"sessions_complete":  complete,
		"sessions_follow_up": followUp,
	}))
}
