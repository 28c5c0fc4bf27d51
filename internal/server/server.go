package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/analyticsai/insight-service/internal/analytics"
	"github.com/analyticsai/insight-service/internal/chat"
	"github.com/analyticsai/insight-service/internal/config"
	"github.com/analyticsai/insight-service/internal/metrics"
	"github.com/analyticsai/insight-service/internal/middleware"
	"github.com/analyticsai/insight-service/internal/models"
)

// Server exposes the analytics and chat services over REST and WebSocket.
type Server struct {
	cfg       *config.Config
	analytics *analytics.Service
	chat      *chat.Service
	logger    *zap.Logger
	limiter   *middleware.RateLimiter

	router  *mux.Router
	httpSrv *http.Server
}

// New wires the router, middleware, and handlers.
func New(cfg *config.Config, analyticsSvc *analytics.Service, chatSvc *chat.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:       cfg,
		analytics: analyticsSvc,
		chat:      chatSvc,
		logger:    logger,
		limiter:   middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	}

	s.router = s.buildRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      corsHandler.Handler(s.limiter.Middleware(s.router)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.observeRequests)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/analytics/metrics", s.handleCreateMetric).Methods(http.MethodPost)
	api.HandleFunc("/analytics/metrics", s.handleGetMetrics).Methods(http.MethodGet)
	api.HandleFunc("/analytics/metrics/{type}", s.handleMetricDetails).Methods(http.MethodGet)
	api.HandleFunc("/analytics/metrics/{type}", s.handleDeleteMetrics).Methods(http.MethodDelete)
	api.HandleFunc("/analytics/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/analytics/insights", s.handleInsights).Methods(http.MethodGet)
	api.HandleFunc("/analytics/trends/{type}", s.handleTrends).Methods(http.MethodGet)

	api.HandleFunc("/chat/message", s.handleChatMessage).Methods(http.MethodPost)
	api.HandleFunc("/chat/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/chat/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/chat/history", s.handleChatHistory).Methods(http.MethodGet)

	r.HandleFunc("/ws/chat", s.handleWebSocket)

	return r
}

// Start begins serving and blocks until the listener fails or closes.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// observeRequests records request counts and latency per route template.
func (s *Server) observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, fmt.Sprintf("%d", rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}

	s.writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}
