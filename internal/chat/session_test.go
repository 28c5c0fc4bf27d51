package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/analyticsai/insight-service/internal/cache"
	"github.com/analyticsai/insight-service/internal/memory"
	"github.com/analyticsai/insight-service/internal/models"
	"github.com/analyticsai/insight-service/internal/store"
)

func newTestSessionManager(t *testing.T) (*SessionManager, store.Store, memory.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	mem := memory.NewStore(10, cache.NewLRU(64, time.Minute), nil)
	return NewSessionManager(st, mem, nil), st, mem
}

func TestSessionCreateAndGet(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestSessionManager(t)

	sess, err := m.Create(ctx, "u1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == "" || sess.Title != "New Conversation" || !sess.IsActive {
		t.Errorf("session = %+v", sess)
	}

	got, err := m.Get(ctx, sess.ID, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("got %q, want %q", got.ID, sess.ID)
	}
}

func TestSessionOwnership(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestSessionManager(t)

	sess, _ := m.Create(ctx, "u1")

	// Another user's lookup behaves like a missing session.
	if _, err := m.Get(ctx, sess.ID, "u2"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("cross-user Get = %v, want ErrNotFound", err)
	}
	if err := m.Delete(ctx, sess.ID, "u2"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("cross-user Delete = %v, want ErrNotFound", err)
	}
	// Owner still sees it.
	if _, err := m.Get(ctx, sess.ID, "u1"); err != nil {
		t.Errorf("owner Get = %v", err)
	}
}

func TestSessionCreateRequiresUser(t *testing.T) {
	m, _, _ := newTestSessionManager(t)
	if _, err := m.Create(context.Background(), ""); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSessionDeleteCascades(t *testing.T) {
	ctx := context.Background()
	m, st, mem := newTestSessionManager(t)

	sess, _ := m.Create(ctx, "u1")
	st.AppendMessage(ctx, &models.ChatMessage{
		SessionID: sess.ID, UserID: "u1", Role: models.RoleUser, Text: "hi", Timestamp: time.Now().UTC(),
	})
	mem.Append(ctx, sess.ID, "hi", "hello")

	if err := m.Delete(ctx, sess.ID, "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := m.Get(ctx, sess.ID, "u1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	hist, _ := st.GetHistory(ctx, sess.ID, 10)
	if len(hist) != 0 {
		t.Errorf("history after delete = %d messages", len(hist))
	}
	pairs, _ := mem.Load(ctx, sess.ID)
	if len(pairs) != 0 {
		t.Errorf("memory after delete = %d pairs", len(pairs))
	}
}

func TestSessionListOrdering(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestSessionManager(t)

	a, _ := m.Create(ctx, "u1")
	time.Sleep(5 * time.Millisecond)
	b, _ := m.Create(ctx, "u1")
	time.Sleep(5 * time.Millisecond)

	// Touching the first session promotes it.
	if err := m.Touch(ctx, a.ID, 2); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	list, err := m.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != a.ID || list[1].ID != b.ID {
		t.Errorf("order = %s,%s want touched first", list[0].ID, list[1].ID)
	}
}
