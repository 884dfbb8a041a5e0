// Package server implements the Loker HTTP server and the X-Amz-Target
// action dispatcher for the Secrets Manager wire protocol.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loker/loker/internal/auth"
	"github.com/loker/loker/internal/clock"
	"github.com/loker/loker/internal/config"
	"github.com/loker/loker/internal/secrets"
)

// maxBodyBytes caps request bodies. Secret payloads top out at 64 KiB on
// AWS; this leaves generous headroom for envelope overhead.
const maxBodyBytes = 1 << 20

// Server is the Loker HTTP server. It verifies request signatures and
// routes actions to the secret model.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	verifier   *auth.Verifier
	svc        *secrets.Service
	httpServer *http.Server
}

// New creates a Server wired to the given secret model service. The clock
// drives signature clock-skew checks; nil selects the system clock.
func New(cfg *config.Config, svc *secrets.Service, clk clock.Clock) *Server {
	s := &Server{
		cfg:      cfg,
		router:   chi.NewMux(),
		verifier: auth.NewVerifier(cfg.Auth.AccessKeyID, cfg.Auth.AccessKeySecret, clk),
		svc:      svc,
	}
	s.registerRoutes()
	return s
}

// registerRoutes configures all routes on the Chi router. Health and
// metrics endpoints are unauthenticated; everything else is the signed
// wire API on POST.
func (s *Server) registerRoutes() {
	if s.cfg.Observability.HealthCheck {
		healthHandler := func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		}
		s.router.Get("/health", healthHandler)
		s.router.Get("/healthz", healthHandler)
		s.router.Get("/readyz", healthHandler)
	}

	if s.cfg.Observability.Metrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	// The Secrets Manager protocol posts every action to the service root;
	// the action itself travels in X-Amz-Target.
	s.router.Post("/*", s.handleAction)
}

// Handler returns the complete middleware-wrapped handler. Exposed so tests
// can mount the server on httptest listeners.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router
	handler = commonHeaders(handler)
	handler = requestLogger(handler)
	handler = metricsMiddleware(handler)
	return handler
}

// ListenAndServe starts the HTTP server on the configured address, with TLS
// when configured.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Server.Address,
		Handler: s.Handler(),
	}
	if s.cfg.Server.UseHTTPS {
		return s.httpServer.ListenAndServeTLS(s.cfg.Server.CertPath, s.cfg.Server.KeyPath)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
