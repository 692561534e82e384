package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/gas-leak-monitor/internal/aggregate"
	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Monitor is the leak monitor surface exposed over HTTP.
type Monitor interface {
	CheckForLeaks(ctx context.Context) (bool, error)
	GetActiveAlerts() []domain.Alert
	GetAllAlerts() []domain.Alert
	GetAlert(id string) (domain.Alert, error)
	ResolveAlert(ctx context.Context, id string) (bool, error)
	GetAllCurrentUsage() []domain.Reading
	GetCurrentUsage(zoneID string) (domain.Reading, error)
	Ingest(ctx context.Context, readings []domain.Reading) error
	Summary() aggregate.Summary
}

// Server exposes the monitor API alongside health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	monitor    Monitor
	logger     *slog.Logger
}

// NewServer creates an HTTP server. live, when non-nil, serves the alert feed
// at /ws/alerts.
func NewServer(addr string, mon Monitor, ready ReadinessChecker, live http.Handler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		monitor: mon,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/readings", s.handleListReadings)
	mux.HandleFunc("GET /api/v1/readings/{zone}", s.handleGetReading)
	mux.HandleFunc("POST /api/v1/readings", s.handleIngest)
	mux.HandleFunc("GET /api/v1/alerts", s.handleListAlerts)
	mux.HandleFunc("GET /api/v1/alerts/{id}", s.handleGetAlert)
	mux.HandleFunc("POST /api/v1/alerts/{id}/resolve", s.handleResolve)
	mux.HandleFunc("POST /api/v1/scan", s.handleScan)
	mux.HandleFunc("GET /api/v1/summary", s.handleSummary)
	if live != nil {
		mux.Handle("GET /ws/alerts", live)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
