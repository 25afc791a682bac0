package infra

import (
	"context"
	"net/http"
	"time"
)

// HTTPServer wraps http.Server with the lifecycle shape main expects:
// a blocking Start and a context-bounded Shutdown.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer builds the server from config. No global write timeout is
// set because the events endpoint holds its response stream open for the
// lifetime of the subscription.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	return &HTTPServer{server: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}}
}

// Start listens and serves until the server is shut down.
func (s *HTTPServer) Start() error {
	if s.server == nil {
		return nil
	}
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
