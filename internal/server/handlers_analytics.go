package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/analyticsai/insight-service/internal/models"
)

func (s *Server) handleCreateMetric(w http.ResponseWriter, r *http.Request) {
	var obs models.MetricObservation
	if err := json.NewDecoder(r.Body).Decode(&obs); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid request body", models.ErrInvalidInput))
		return
	}

	if err := s.analytics.CreateMetric(r.Context(), &obs); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status": "created",
		"id":     obs.ID,
	})
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	types, err := parseMetricTypes(r.URL.Query().Get("metric_types"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	observations, err := s.analytics.GetMetrics(r.Context(), userID, types, r.URL.Query().Get("time_range"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics": observations,
		"count":   len(observations),
	})
}

func (s *Server) handleMetricDetails(w http.ResponseWriter, r *http.Request) {
	metric, err := pathMetricType(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	details, err := s.analytics.GetMetricDetails(r.Context(), r.URL.Query().Get("user_id"), metric, r.URL.Query().Get("time_range"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleDeleteMetrics(w http.ResponseWriter, r *http.Request) {
	metric, err := pathMetricType(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	deleted, err := s.analytics.DeleteMetrics(r.Context(), r.URL.Query().Get("user_id"), []models.MetricType{metric}, r.URL.Query().Get("time_range"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "deleted",
		"deleted": deleted,
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.analytics.GetDashboard(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, dashboard)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	timeRange := r.URL.Query().Get("time_range")
	insights, err := s.analytics.GenerateInsights(r.Context(), r.URL.Query().Get("user_id"), timeRange)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"insights":     insights,
		"generated_at": nowRFC3339(),
	})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	metric, err := pathMetricType(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	trend, err := s.analytics.AnalyzeTrends(r.Context(), r.URL.Query().Get("user_id"), metric, r.URL.Query().Get("time_range"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, trend)
}

// pathMetricType extracts and validates the {type} path variable.
func pathMetricType(r *http.Request) (models.MetricType, error) {
	metric := models.MetricType(mux.Vars(r)["type"])
	if !metric.IsValid() {
		return "", fmt.Errorf("%w: unknown metric type %q", models.ErrInvalidInput, string(metric))
	}
	return metric, nil
}

// parseMetricTypes parses a comma-separated metric_types query parameter.
// Empty input means all types.
func parseMetricTypes(raw string) ([]models.MetricType, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var types []models.MetricType
	for _, part := range strings.Split(raw, ",") {
		mt := models.MetricType(strings.TrimSpace(part))
		if !mt.IsValid() {
			return nil, fmt.Errorf("%w: unknown metric type %q", models.ErrInvalidInput, string(mt))
		}
		types = append(types, mt)
	}
	return types, nil
}
