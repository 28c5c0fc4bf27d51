package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/analyticsai/insight-service/internal/cache"
	"github.com/analyticsai/insight-service/internal/models"
)

// envelopeVersion tags the persisted memory format. Unknown versions are
// discarded on load so a format change cannot poison prompts.
const envelopeVersion = 1

// DefaultWindow is the number of exchange pairs retained per session.
const DefaultWindow = 10

type envelope struct {
	Version int                   `json:"version"`
	Pairs   []models.ExchangePair `json:"pairs"`
}

// sessionBuf holds one session's window plus its serialization lock.
type sessionBuf struct {
	mu    sync.Mutex
	pairs []models.ExchangePair
}

// storeImpl keeps windows in memory and mirrors each change into the KV
// cache so memory survives process restarts for the cache's TTL.
type storeImpl struct {
	mu       sync.Mutex
	sessions map[string]*sessionBuf

	window int
	kv     cache.Cache
	logger *zap.Logger
}

// NewStore creates a conversation memory store retaining the last window
// exchange pairs per session. window <= 0 uses DefaultWindow. kv may be nil
// for a purely in-process store.
func NewStore(window int, kv cache.Cache, logger *zap.Logger) Store {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &storeImpl{
		sessions: make(map[string]*sessionBuf),
		window:   window,
		kv:       kv,
		logger:   logger,
	}
}

func cacheKey(sessionID string) string { return "memory:" + sessionID }

// buf returns the session's buffer, hydrating from the cache on first use.
func (s *storeImpl) buf(ctx context.Context, sessionID string) *sessionBuf {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.sessions[sessionID]; ok {
		return b
	}
	b := &sessionBuf{}
	if s.kv != nil {
		if raw, ok, err := s.kv.Get(ctx, cacheKey(sessionID)); err == nil && ok {
			var env envelope
			if err := json.Unmarshal(raw, &env); err == nil && env.Version == envelopeVersion {
				b.pairs = env.Pairs
			} else {
				s.logger.Warn("discarding unreadable memory envelope",
					zap.String("session_id", sessionID))
			}
		}
	}
	s.sessions[sessionID] = b
	return b
}

func (s *storeImpl) Append(ctx context.Context, sessionID, userTurn, aiTurn string) error {
	b := s.buf(ctx, sessionID)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.pairs = append(b.pairs, models.ExchangePair{UserTurn: userTurn, AITurn: aiTurn})
	if len(b.pairs) > s.window {
		b.pairs = b.pairs[len(b.pairs)-s.window:]
	}

	if s.kv == nil {
		return nil
	}
	raw, err := json.Marshal(envelope{Version: envelopeVersion, Pairs: b.pairs})
	if err != nil {
		return fmt.Errorf("marshal memory envelope: %w", err)
	}
	if err := s.kv.Set(ctx, cacheKey(sessionID), raw); err != nil {
		return fmt.Errorf("persist memory: %w", err)
	}
	return nil
}

func (s *storeImpl) Load(ctx context.Context, sessionID string) ([]models.ExchangePair, error) {
	b := s.buf(ctx, sessionID)

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.ExchangePair, len(b.pairs))
	copy(out, b.pairs)
	return out, nil
}

func (s *storeImpl) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if s.kv != nil {
		if err := s.kv.Delete(ctx, cacheKey(sessionID)); err != nil {
			return fmt.Errorf("clear memory: %w", err)
		}
	}
	return nil
}
