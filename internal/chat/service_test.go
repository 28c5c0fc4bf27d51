package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/analyticsai/insight-service/internal/analytics"
	"github.com/analyticsai/insight-service/internal/cache"
	"github.com/analyticsai/insight-service/internal/insight"
	"github.com/analyticsai/insight-service/internal/memory"
	"github.com/analyticsai/insight-service/internal/models"
	"github.com/analyticsai/insight-service/internal/store"
)

// chatGen answers classifier prompts and reply prompts separately.
type chatGen struct {
	classifyResponse string
	classifyErr      error
	replyResponse    string
	replyErr         error
	replyPrompts     []string
}

func (g *chatGen) Generate(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "Classify this analytics question") {
		if g.classifyResponse == "" && g.classifyErr == nil {
			return "", errors.New("no classification scripted")
		}
		return g.classifyResponse, g.classifyErr
	}
	g.replyPrompts = append(g.replyPrompts, prompt)
	return g.replyResponse, g.replyErr
}

func newTestChatService(t *testing.T, gen *chatGen) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mem := memory.NewStore(10, cache.NewLRU(64, time.Minute), nil)
	composer := insight.NewComposer(gen, nil, time.Second, 7)
	analyticsSvc := analytics.NewService(st, composer, nil, 100)
	sessions := NewSessionManager(st, mem, nil)
	classifier := NewQueryClassifier(gen, nil, time.Second)

	return NewService(st, mem, sessions, classifier, analyticsSvc, composer, gen, nil, time.Second), st
}

func TestProcessMessageNewSession(t *testing.T) {
	ctx := context.Background()
	gen := &chatGen{replyResponse: "Hello! How can I help?"}
	svc, st := newTestChatService(t, gen)

	resp, err := svc.ProcessMessage(ctx, "hi there", "u1", "")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if resp.Role != models.RoleAI {
		t.Errorf("role = %s", resp.Role)
	}
	if resp.SessionID == "" {
		t.Fatal("no session id assigned")
	}
	if resp.Message != "Hello! How can I help?" {
		t.Errorf("message = %q", resp.Message)
	}
	if len(resp.Suggestions) == 0 {
		t.Error("no suggestions")
	}

	// Both turns persisted, session bookkeeping updated.
	hist, _ := st.GetHistory(ctx, resp.SessionID, 10)
	if len(hist) != 2 {
		t.Fatalf("history len = %d, want 2", len(hist))
	}
	if hist[0].Role != models.RoleUser || hist[1].Role != models.RoleAI {
		t.Errorf("roles = %s,%s", hist[0].Role, hist[1].Role)
	}
	sess, err := st.GetSession(ctx, resp.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.MessageCount != 2 {
		t.Errorf("message_count = %d, want 2", sess.MessageCount)
	}
}

func TestProcessMessageReusesSession(t *testing.T) {
	ctx := context.Background()
	gen := &chatGen{replyResponse: "reply"}
	svc, _ := newTestChatService(t, gen)

	first, _ := svc.ProcessMessage(ctx, "first", "u1", "")
	second, err := svc.ProcessMessage(ctx, "second", "u1", first.SessionID)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session changed: %s vs %s", second.SessionID, first.SessionID)
	}

	// The second prompt must carry the remembered first exchange.
	last := gen.replyPrompts[len(gen.replyPrompts)-1]
	if !strings.Contains(last, "User: first") || !strings.Contains(last, "Assistant: reply") {
		t.Errorf("prompt missing memory:\n%s", last)
	}
}

func TestProcessMessageUnknownSessionStartsFresh(t *testing.T) {
	gen := &chatGen{replyResponse: "reply"}
	svc, _ := newTestChatService(t, gen)

	resp, err := svc.ProcessMessage(context.Background(), "hi", "u1", "no-such-session")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if resp.SessionID == "no-such-session" || resp.SessionID == "" {
		t.Errorf("session id = %q, want fresh id", resp.SessionID)
	}
}

func TestProcessMessageDegradedOnModelFailure(t *testing.T) {
	ctx := context.Background()
	gen := &chatGen{replyErr: errors.New("connection refused")}
	svc, _ := newTestChatService(t, gen)

	resp, err := svc.ProcessMessage(ctx, "hi", "u1", "")
	if err != nil {
		t.Fatalf("ProcessMessage must not error on model failure: %v", err)
	}
	if resp.Role != models.RoleError {
		t.Errorf("role = %s, want error", resp.Role)
	}
	if resp.Message == "" {
		t.Error("degraded reply must carry explanatory text")
	}

	// Failed exchanges are not remembered.
	gen.replyErr = nil
	gen.replyResponse = "ok now"
	svc.ProcessMessage(ctx, "again", "u1", resp.SessionID)
	last := gen.replyPrompts[len(gen.replyPrompts)-1]
	if strings.Contains(last, "Conversation so far") {
		t.Errorf("degraded exchange leaked into memory:\n%s", last)
	}
}

func TestProcessMessageDataGrounding(t *testing.T) {
	ctx := context.Background()
	gen := &chatGen{
		classifyResponse: `{"needs_data": true, "query_params": {"metrics": ["revenue"], "time_range": "7d", "filters": {}}, "needs_visualization": false, "query_type": "metric_query"}`,
		replyResponse:    "Revenue is up.",
	}
	svc, st := newTestChatService(t, gen)

	now := time.Now().UTC()
	for i, v := range []float64{100, 110, 120} {
		st.InsertObservation(ctx, &models.MetricObservation{
			MetricType: models.MetricRevenue, Value: v, UserID: "u1",
			Timestamp: now.Add(time.Duration(i-3) * time.Hour),
		})
	}

	resp, err := svc.ProcessMessage(ctx, "how is revenue?", "u1", "")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if resp.Metadata["query_type"] != "metric_query" {
		t.Errorf("metadata = %v", resp.Metadata)
	}

	last := gen.replyPrompts[len(gen.replyPrompts)-1]
	if !strings.Contains(last, "Data context:") || !strings.Contains(last, "revenue") {
		t.Errorf("prompt missing data context:\n%s", last)
	}
}

func TestProcessMessageValidation(t *testing.T) {
	svc, _ := newTestChatService(t, &chatGen{replyResponse: "r"})

	if _, err := svc.ProcessMessage(context.Background(), "   ", "u1", ""); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("empty message err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.ProcessMessage(context.Background(), "hi", "", ""); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("missing user err = %v, want ErrInvalidInput", err)
	}
}

func TestMemoryWindowInPrompt(t *testing.T) {
	ctx := context.Background()
	gen := &chatGen{replyResponse: "r"}
	svc, _ := newTestChatService(t, gen)

	first, _ := svc.ProcessMessage(ctx, "m1", "u1", "")
	for i := 2; i <= 12; i++ {
		svc.ProcessMessage(ctx, fmt.Sprintf("m%d", i), "u1", first.SessionID)
	}

	// The 12th turn sees only the last 10 exchanges: m2..m11, not m1.
	last := gen.replyPrompts[len(gen.replyPrompts)-1]
	if strings.Contains(last, "User: m1\n") {
		t.Error("evicted exchange m1 still in prompt")
	}
	if !strings.Contains(last, "User: m2\n") || !strings.Contains(last, "User: m11\n") {
		t.Errorf("window exchanges missing:\n%s", last)
	}
}

func TestHistoryOwnership(t *testing.T) {
	ctx := context.Background()
	gen := &chatGen{replyResponse: "r"}
	svc, _ := newTestChatService(t, gen)

	resp, _ := svc.ProcessMessage(ctx, "hi", "u1", "")

	if _, err := svc.History(ctx, "u2", resp.SessionID, 10); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("cross-user History = %v, want ErrNotFound", err)
	}
	hist, err := svc.History(ctx, "u1", resp.SessionID, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Errorf("history len = %d", len(hist))
	}
}
