// Package api provides the HTTP surface of the support bot.
//
// It exposes a health endpoint and, when the Twilio transport is in use, the
// inbound message webhook. The WhatsApp (whatsmeow) transport needs no HTTP
// surface, so the server is optional.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultAddr is the default listen address for the HTTP server.
const DefaultAddr = ":8080"

// shutdownTimeout bounds how long Shutdown waits for in-flight requests.
const shutdownTimeout = 10 * time.Second

// Opts holds configuration options for the HTTP server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the HTTP server.
type Option func(*Opts)

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wraps the bot's HTTP listener.
type Server struct {
	srv *http.Server
}

// NewServer creates the HTTP server. webhook is mounted at /webhook/twilio
// when non-nil; pass nil for the whatsmeow transport.
func NewServer(webhook http.HandlerFunc, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	if webhook != nil {
		mux.HandleFunc("/webhook/twilio", webhook)
		slog.Debug("API Twilio webhook mounted", "path", "/webhook/twilio")
	}

	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start begins serving in a background goroutine. Listener failures other
// than a clean shutdown are reported on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Handler returns the server's handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
