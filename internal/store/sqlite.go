package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/analyticsai/insight-service/internal/metrics"
	"github.com/analyticsai/insight-service/internal/models"
)

// schema defines the tables for the analytics persistence layer.
// Version is tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metric_observations (
    id          TEXT PRIMARY KEY,
    metric_type TEXT NOT NULL,
    value       REAL NOT NULL,
    user_id     TEXT NOT NULL,
    timestamp   DATETIME NOT NULL,
    tags        TEXT NOT NULL DEFAULT '[]',
    metadata    TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_observations_user_type_ts ON metric_observations(user_id, metric_type, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_observations_timestamp ON metric_observations(timestamp DESC);

CREATE TABLE IF NOT EXISTS chat_sessions (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    title         TEXT NOT NULL DEFAULT 'New Conversation',
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL,
    message_count INTEGER NOT NULL DEFAULT 0,
    is_active     BOOLEAN NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_updated ON chat_sessions(user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS chat_messages (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
    user_id     TEXT NOT NULL,
    role        TEXT NOT NULL,
    content     TEXT NOT NULL,
    timestamp   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session_ts ON chat_messages(session_id, timestamp DESC);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// Enable foreign-key constraints.
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// timeOp records operation duration for the store histogram.
func timeOp(op string) func() {
	start := time.Now()
	return func() {
		metrics.StoreQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// ─── Metric observations ─────────────────────────────────────────────────────

func (s *sqliteStore) InsertObservation(ctx context.Context, obs *models.MetricObservation) error {
	defer timeOp("insert_observation")()

	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now().UTC()
	}

	tags, err := json.Marshal(obs.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	meta, err := json.Marshal(obs.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO metric_observations(id, metric_type, value, user_id, timestamp, tags, metadata)
        VALUES(?,?,?,?,?,?,?)
    `,
		obs.ID, string(obs.MetricType), obs.Value, obs.UserID, obs.Timestamp.UTC(), string(tags), string(meta),
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

func (s *sqliteStore) QueryObservations(ctx context.Context, q ObservationQuery) ([]models.MetricObservation, error) {
	defer timeOp("query_observations")()

	query := `SELECT id,metric_type,value,user_id,timestamp,tags,metadata FROM metric_observations WHERE user_id = ?`
	args := []any{q.UserID}

	if len(q.MetricTypes) > 0 {
		query += ` AND metric_type IN (?` + strings.Repeat(",?", len(q.MetricTypes)-1) + `)`
		for _, mt := range q.MetricTypes {
			args = append(args, string(mt))
		}
	}
	if !q.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, q.Since.UTC())
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.MetricObservation
	for rows.Next() {
		var obs models.MetricObservation
		var mt, ts, tags, meta string
		if err := rows.Scan(&obs.ID, &mt, &obs.Value, &obs.UserID, &ts, &tags, &meta); err != nil {
			return nil, err
		}
		obs.MetricType = models.MetricType(mt)
		obs.Timestamp, _ = parseTime(ts)
		_ = json.Unmarshal([]byte(tags), &obs.Tags)
		_ = json.Unmarshal([]byte(meta), &obs.Metadata)
		result = append(result, obs)
	}
	return result, rows.Err()
}

func (s *sqliteStore) DeleteObservations(ctx context.Context, q ObservationQuery) (int64, error) {
	defer timeOp("delete_observations")()

	query := `DELETE FROM metric_observations WHERE user_id = ?`
	args := []any{q.UserID}

	if len(q.MetricTypes) > 0 {
		query += ` AND metric_type IN (?` + strings.Repeat(",?", len(q.MetricTypes)-1) + `)`
		for _, mt := range q.MetricTypes {
			args = append(args, string(mt))
		}
	}
	if !q.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, q.Since.UTC())
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ─── Chat sessions ───────────────────────────────────────────────────────────

func (s *sqliteStore) CreateSession(ctx context.Context, sess *models.ChatSession) error {
	defer timeOp("create_session")()

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO chat_sessions(id, user_id, title, created_at, updated_at, message_count, is_active)
        VALUES(?,?,?,?,?,?,?)
    `,
		sess.ID, sess.UserID, sess.Title,
		sess.CreatedAt.UTC(), sess.UpdatedAt.UTC(), sess.MessageCount, sess.IsActive,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	defer timeOp("get_session")()

	row := s.db.QueryRowContext(ctx,
		`SELECT id,user_id,title,created_at,updated_at,message_count,is_active FROM chat_sessions WHERE id=?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	return sess, err
}

func (s *sqliteStore) ListSessions(ctx context.Context, userID string) ([]*models.ChatSession, error) {
	defer timeOp("list_sessions")()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id,user_id,title,created_at,updated_at,message_count,is_active
         FROM chat_sessions WHERE user_id=? AND is_active=1 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.ChatSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	return result, rows.Err()
}

func (s *sqliteStore) TouchSession(ctx context.Context, id string, at time.Time, delta int) error {
	defer timeOp("touch_session")()

	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at=?, message_count=message_count+? WHERE id=?`,
		at.UTC(), delta, id)
	return err
}

func (s *sqliteStore) DeleteSession(ctx context.Context, id string) error {
	defer timeOp("delete_session")()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id=?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	return tx.Commit()
}

func (s *sqliteStore) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	defer timeOp("append_message")()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO chat_messages(session_id, user_id, role, content, timestamp)
        VALUES(?,?,?,?,?)
    `,
		msg.SessionID, msg.UserID, string(msg.Role), msg.Text, msg.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, _ := res.LastInsertId()
	msg.ID = id
	return nil
}

// GetHistory queries the newest rows first to honor the limit, then reverses
// into chronological order for the caller.
func (s *sqliteStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	defer timeOp("get_history")()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,session_id,user_id,role,content,timestamp
         FROM chat_messages WHERE session_id=? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var newest []models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		var role, ts string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.UserID, &role, &msg.Text, &ts); err != nil {
			return nil, err
		}
		msg.Role = models.MessageRole(role)
		msg.Timestamp, _ = parseTime(ts)
		newest = append(newest, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]models.ChatMessage, len(newest))
	for i, msg := range newest {
		result[len(newest)-1-i] = msg
	}
	return result, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.ChatSession, error) {
	sess := &models.ChatSession{}
	var ca, ua string
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Title, &ca, &ua, &sess.MessageCount, &sess.IsActive)
	if err != nil {
		return nil, err
	}
	sess.CreatedAt, _ = parseTime(ca)
	sess.UpdatedAt, _ = parseTime(ua)
	return sess, nil
}

// parseTime handles multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
