// Package api exposes the dashboard read surface and the small command
// surface over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mfreeman451/clientradar/pkg/db"
	"github.com/mfreeman451/clientradar/pkg/health"
	httpx "github.com/mfreeman451/clientradar/pkg/http"
	"github.com/mfreeman451/clientradar/pkg/notifications"
	"github.com/mfreeman451/clientradar/pkg/perf"
	"github.com/mfreeman451/clientradar/pkg/usage"
)

var errBadRequest = errors.New("bad request")

type APIServer struct {
	dashboard Dashboard
	checker   Checker
	notifier  Notifier
	reporter  Reporter
	logger    *slog.Logger
	router    *mux.Router
}

func NewAPIServer(dashboard Dashboard, checker Checker, notifier Notifier, reporter Reporter, logger *slog.Logger) *APIServer {
	if logger == nil {
		logger = slog.Default()
	}

	s := &APIServer{
		dashboard: dashboard,
		checker:   checker,
		notifier:  notifier,
		reporter:  reporter,
		logger:    logger.With("component", "api"),
		router:    mux.NewRouter(),
	}
	s.setupRoutes()

	return s
}

func (s *APIServer) setupRoutes() {
	s.router.Use(httpx.CommonMiddleware)
	s.router.Use(httpx.LoggingMiddleware(s.logger))

	s.router.HandleFunc("/api/clients", s.getClients).Methods(http.MethodGet)
	s.router.HandleFunc("/api/clients/{id}", s.getClient).Methods(http.MethodGet)
	s.router.HandleFunc("/api/clients/{id}/check", s.checkClient).Methods(http.MethodPost)
	s.router.HandleFunc("/api/clients/{id}/usage", s.getUsage).Methods(http.MethodGet)

	s.router.HandleFunc("/api/dashboard/stats", s.getStats).Methods(http.MethodGet)
	s.router.HandleFunc("/api/dashboard/overview", s.getOverview).Methods(http.MethodGet)

	s.router.HandleFunc("/api/notifications", s.getNotifications).Methods(http.MethodGet)
	s.router.HandleFunc("/api/notifications/stream", s.streamNotifications).Methods(http.MethodGet)
	s.router.HandleFunc("/api/notifications/{id:[0-9]+}/acknowledge", s.acknowledge).Methods(http.MethodPost)

	s.router.HandleFunc("/api/performance", s.getPerformance).Methods(http.MethodGet)

	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// ServeHTTP makes the server usable as a handler.
func (s *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *APIServer) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}

	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, db.ErrClientNotFound),
		errors.Is(err, db.ErrNotificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, usage.ErrInvalidDate),
		errors.Is(err, usage.ErrInvalidRange),
		errors.Is(err, perf.ErrUnknownSection),
		errors.Is(err, notifications.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, health.ErrNotDue),
		errors.Is(err, health.ErrNoProbeURL):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
