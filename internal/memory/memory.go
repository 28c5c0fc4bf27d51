package memory

import (
	"context"

	"github.com/analyticsai/insight-service/internal/models"
)

// Package memory provides per-session conversation memory: a capped window
// of the most recent user/assistant exchange pairs. The window backs prompt
// construction for follow-up questions; full history lives in the store.

// Store is the conversation memory contract.
type Store interface {
	// Append records one completed exchange for a session, evicting the
	// oldest pair once the window is full. Appends for the same session
	// are serialized.
	Append(ctx context.Context, sessionID, userTurn, aiTurn string) error

	// Load returns the session's exchange pairs, oldest first. A session
	// with no memory yields an empty slice.
	Load(ctx context.Context, sessionID string) ([]models.ExchangePair, error)

	// Clear discards all memory for a session.
	Clear(ctx context.Context, sessionID string) error
}
