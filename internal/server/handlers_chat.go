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

type chatMessageRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid request body", models.ErrInvalidInput))
		return
	}

	resp, err := s.chat.ProcessMessage(r.Context(), req.Message, req.UserID, req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		s.writeError(w, r, fmt.Errorf("%w: user_id required", models.ErrInvalidInput))
		return
	}

	sessions, err := s.chat.Sessions().List(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		s.writeError(w, r, fmt.Errorf("%w: user_id required", models.ErrInvalidInput))
		return
	}

	if err := s.chat.Sessions().Delete(r.Context(), sessionID, userID); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "deleted",
		"session_id": sessionID,
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("user_id"))
	sessionID := strings.TrimSpace(q.Get("session_id"))
	if userID == "" || sessionID == "" {
		s.writeError(w, r, fmt.Errorf("%w: user_id and session_id required", models.ErrInvalidInput))
		return
	}

	limit := 50
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	history, err := s.chat.History(r.Context(), userID, sessionID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"messages":   history,
		"count":      len(history),
	})
}
