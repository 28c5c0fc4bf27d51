package store

import (
	"context"
	"time"

	"github.com/analyticsai/insight-service/internal/models"
)

// Package store provides durable persistence for metric observations and
// chat history. Observations and messages are append-only; sessions carry
// mutable bookkeeping (title, updated_at, message_count).

// ObservationQuery filters metric observation reads and deletes.
type ObservationQuery struct {
	// UserID scopes the query to one user's data. Required.
	UserID string

	// MetricTypes filters to the given types. Empty means all types.
	MetricTypes []models.MetricType

	// Since keeps observations with timestamp >= Since. Zero means no bound.
	Since time.Time

	// Limit caps the number of rows returned, newest first. <=0 uses the
	// store default.
	Limit int
}

// Store is the persistence contract for the insight service.
type Store interface {
	// InsertObservation appends one metric observation. The observation's
	// ID is assigned if empty.
	InsertObservation(ctx context.Context, obs *models.MetricObservation) error

	// QueryObservations returns observations matching q, newest first.
	QueryObservations(ctx context.Context, q ObservationQuery) ([]models.MetricObservation, error)

	// DeleteObservations removes observations matching q and reports the
	// number of rows removed. The Limit field is ignored.
	DeleteObservations(ctx context.Context, q ObservationQuery) (int64, error)

	// CreateSession persists a new chat session.
	CreateSession(ctx context.Context, sess *models.ChatSession) error

	// GetSession returns the session by id, or ErrNotFound.
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)

	// ListSessions returns a user's active sessions, most recently
	// updated first.
	ListSessions(ctx context.Context, userID string) ([]*models.ChatSession, error)

	// TouchSession bumps updated_at and adds delta to message_count.
	TouchSession(ctx context.Context, id string, at time.Time, delta int) error

	// DeleteSession removes the session and its messages in one
	// transaction. Returns ErrNotFound if no such session exists.
	DeleteSession(ctx context.Context, id string) error

	// AppendMessage appends one chat message to a session's history.
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error

	// GetHistory returns up to limit most recent messages of a session in
	// chronological order.
	GetHistory(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying database handle.
	Close() error
}
