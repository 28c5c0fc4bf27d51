package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/analyticsai/insight-service/internal/analytics"
	"github.com/analyticsai/insight-service/internal/insight"
	"github.com/analyticsai/insight-service/internal/llm"
	"github.com/analyticsai/insight-service/internal/memory"
	"github.com/analyticsai/insight-service/internal/metrics"
	"github.com/analyticsai/insight-service/internal/models"
	"github.com/analyticsai/insight-service/internal/store"
)

// Service runs the full chat turn: session resolution, memory, query
// classification, optional data grounding, generation, and persistence.
type Service struct {
	store     store.Store
	memory    memory.Store
	sessions  *SessionManager
	classify  *QueryClassifier
	analytics *analytics.Service
	composer  *insight.Composer
	gen       llm.TextGenerator
	logger    *zap.Logger
	timeout   time.Duration
}

// NewService wires the chat service. timeout bounds the reply generation
// call (default 30s).
func NewService(
	st store.Store,
	mem memory.Store,
	sessions *SessionManager,
	classifier *QueryClassifier,
	analyticsSvc *analytics.Service,
	composer *insight.Composer,
	gen llm.TextGenerator,
	logger *zap.Logger,
	timeout time.Duration,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		store:     st,
		memory:    mem,
		sessions:  sessions,
		classify:  classifier,
		analytics: analyticsSvc,
		composer:  composer,
		gen:       gen,
		logger:    logger,
		timeout:   timeout,
	}
}

// Sessions exposes the underlying session manager.
func (s *Service) Sessions() *SessionManager { return s.sessions }

// ProcessMessage handles one user message end to end. It never returns an
// error for model failures; those produce a well-formed reply with
// Role set to "error". Only invalid input surfaces as an error.
func (s *Service) ProcessMessage(ctx context.Context, text, userID, sessionID string) (*models.ChatResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty message", models.ErrInvalidInput)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id required", models.ErrInvalidInput)
	}

	start := time.Now()
	defer func() {
		metrics.ChatProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	sess, err := s.resolveSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	pairs, err := s.memory.Load(ctx, sess.ID)
	if err != nil {
		s.logger.Warn("memory load failed", zap.String("session_id", sess.ID), zap.Error(err))
		pairs = nil
	}

	analysis := s.classify.Classify(ctx, text)

	dataContext := ""
	if analysis.NeedsData {
		var types []models.MetricType
		for _, m := range analysis.QueryParams.Metrics {
			types = append(types, models.MetricType(m))
		}
		summary, err := s.analytics.DataSummary(ctx, userID, types, analysis.QueryParams.TimeRange)
		if err != nil {
			s.logger.Warn("data summary failed", zap.Error(err))
			summary = "Metric data is temporarily unavailable."
		}
		dataContext = summary
	}

	reply, degraded := s.generateReply(ctx, text, pairs, dataContext)

	role := models.RoleAI
	status := "ok"
	if degraded {
		role = models.RoleError
		status = "degraded"
	}
	metrics.ChatMessagesTotal.WithLabelValues(status).Inc()

	now := time.Now().UTC()
	s.persistTurn(ctx, sess, userID, text, reply, role, now)

	if !degraded {
		if err := s.memory.Append(ctx, sess.ID, text, reply); err != nil {
			s.logger.Warn("memory append failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}

	resp := &models.ChatResponse{
		Message:     reply,
		Role:        role,
		SessionID:   sess.ID,
		Timestamp:   now,
		Suggestions: s.composer.Suggestions(analysis.QueryType),
		Metadata:    map[string]string{"query_type": analysis.QueryType},
	}
	return resp, nil
}

// History returns a session's messages in chronological order, ownership
// checked.
func (s *Service) History(ctx context.Context, userID, sessionID string, limit int) ([]models.ChatMessage, error) {
	if _, err := s.sessions.Get(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	return s.store.GetHistory(ctx, sessionID, limit)
}

// resolveSession returns the owned session, or creates a fresh one when the
// id is empty or unknown.
func (s *Service) resolveSession(ctx context.Context, sessionID, userID string) (*models.ChatSession, error) {
	if sessionID != "" {
		sess, err := s.sessions.Get(ctx, sessionID, userID)
		if err == nil {
			return sess, nil
		}
		s.logger.Debug("session not found, starting new one",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	return s.sessions.Create(ctx, userID)
}

// generateReply builds the grounded prompt and calls the model. Failures
// yield a friendly degraded reply instead of an error.
func (s *Service) generateReply(ctx context.Context, text string, pairs []models.ExchangePair, dataContext string) (string, bool) {
	var b strings.Builder
	b.WriteString("You are a helpful business analytics assistant. Answer concisely using the provided data when relevant.\n\n")

	if len(pairs) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, p := range pairs {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", p.UserTurn, p.AITurn)
		}
		b.WriteString("\n")
	}
	if dataContext != "" {
		fmt.Fprintf(&b, "Data context:\n%s\n\n", dataContext)
	}
	fmt.Fprintf(&b, "User: %s\nAssistant:", text)

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.gen.Generate(gctx, b.String())
	if err != nil {
		metrics.FallbacksTotal.WithLabelValues("chat").Inc()
		s.logger.Warn("reply generation failed", zap.Error(err))
		return "I'm having trouble answering right now. Your message was saved; please try again in a moment.", true
	}
	return strings.TrimSpace(reply), false
}

// persistTurn appends both messages and bumps the session. Persistence
// failures are logged, not surfaced; the user still gets the reply.
func (s *Service) persistTurn(ctx context.Context, sess *models.ChatSession, userID, text, reply string, role models.MessageRole, at time.Time) {
	userMsg := &models.ChatMessage{
		SessionID: sess.ID,
		UserID:    userID,
		Role:      models.RoleUser,
		Text:      text,
		Timestamp: at,
	}
	aiMsg := &models.ChatMessage{
		SessionID: sess.ID,
		UserID:    userID,
		Role:      role,
		Text:      reply,
		Timestamp: at.Add(time.Millisecond),
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		s.logger.Error("persist user message failed", zap.Error(err))
		return
	}
	if err := s.store.AppendMessage(ctx, aiMsg); err != nil {
		s.logger.Error("persist reply failed", zap.Error(err))
		return
	}
	if err := s.sessions.Touch(ctx, sess.ID, 2); err != nil {
		s.logger.Warn("session touch failed", zap.Error(err))
	}
}
