package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/analyticsai/insight-service/internal/memory"
	"github.com/analyticsai/insight-service/internal/models"
	"github.com/analyticsai/insight-service/internal/store"
)

// SessionManager owns chat session lifecycle. Every read and delete is
// ownership-checked: a session belonging to another user behaves exactly
// like a missing one.
type SessionManager struct {
	store  store.Store
	memory memory.Store
	logger *zap.Logger
}

// NewSessionManager creates a session manager.
func NewSessionManager(st store.Store, mem memory.Store, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{store: st, memory: mem, logger: logger}
}

// Create starts a new session for a user.
func (m *SessionManager) Create(ctx context.Context, userID string) (*models.ChatSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id required", models.ErrInvalidInput)
	}
	now := time.Now().UTC()
	sess := &models.ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     "New Conversation",
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	m.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("user_id", userID))
	return sess, nil
}

// Get returns a session if it exists and belongs to userID.
func (m *SessionManager) Get(ctx context.Context, sessionID, userID string) (*models.ChatSession, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, fmt.Errorf("session %s: %w", sessionID, models.ErrNotFound)
	}
	return sess, nil
}

// List returns a user's sessions, most recently updated first.
func (m *SessionManager) List(ctx context.Context, userID string) ([]*models.ChatSession, error) {
	return m.store.ListSessions(ctx, userID)
}

// Touch bumps a session's updated_at and message count.
func (m *SessionManager) Touch(ctx context.Context, sessionID string, delta int) error {
	return m.store.TouchSession(ctx, sessionID, time.Now().UTC(), delta)
}

// Delete removes a session, its messages, and its conversation memory. The
// message and session rows go in one transaction; the memory clear follows.
// A session deleted mid-append leaves at worst an unreachable memory entry
// that the cache TTL evicts.
func (m *SessionManager) Delete(ctx context.Context, sessionID, userID string) error {
	if _, err := m.Get(ctx, sessionID, userID); err != nil {
		return err
	}
	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	if err := m.memory.Clear(ctx, sessionID); err != nil {
		m.logger.Warn("memory clear failed after session delete",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	m.logger.Info("session deleted",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID))
	return nil
}
