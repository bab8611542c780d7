package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/carebridgehq/assistant-sync-go/store"
	"github.com/carebridgehq/assistant-sync-go/types"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultBusyTimeout = 5 * time.Second
	defaultLimit       = 50
)

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool
	maxOpenConn int
}

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func WithWAL(enabled bool) Option {
	return func(s *Store) {
		s.enableWAL = enabled
	}
}

func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConn = n
		}
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
		maxOpenConn: 1,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConn)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s.db = db
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.busyTimeout > 0 {
		ms := int(s.busyTimeout / time.Millisecond)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}
	if s.enableWAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable wal: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) SaveThread(ctx context.Context, thread types.Thread) error {
	if thread.ID == "" {
		return fmt.Errorf("thread id is required")
	}
	if thread.Status == "" {
		thread.Status = types.ThreadStatusActive
	}
	payload, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}

	const q = `
INSERT INTO threads (thread_id, user_id, status, payload, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(thread_id) DO UPDATE SET
  user_id=excluded.user_id,
  status=excluded.status,
  payload=excluded.payload,
  updated_at=excluded.updated_at;
`
	_, err = s.db.ExecContext(
		ctx,
		q,
		thread.ID,
		thread.UserID,
		string(thread.Status),
		string(payload),
		toNullableTime(thread.CreatedAt),
		toNullableTime(thread.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}
	return nil
}

func (s *Store) LoadThread(ctx context.Context, threadID string) (types.Thread, error) {
	if strings.TrimSpace(threadID) == "" {
		return types.Thread{}, fmt.Errorf("thread id is required")
	}

	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM threads WHERE thread_id = ?;`, threadID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Thread{}, store.ErrNotFound
		}
		return types.Thread{}, fmt.Errorf("failed to load thread: %w", err)
	}

	var thread types.Thread
	if err := json.Unmarshal([]byte(payload), &thread); err != nil {
		return types.Thread{}, fmt.Errorf("failed to decode thread payload: %w", err)
	}
	return thread, nil
}

func (s *Store) ListThreads(ctx context.Context, query store.ListThreadsQuery) ([]types.Thread, error) {
	limit, offset := clampPage(query.Limit, query.Offset)

	var (
		where []string
		args  []any
	)
	if query.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, query.UserID)
	}
	if query.Status != "" {
		where = append(where, "status = ?")
		args = append(args, query.Status)
	}

	sqlText := `SELECT payload FROM threads`
	if len(where) > 0 {
		sqlText += " WHERE " + strings.Join(where, " AND ")
	}
	sqlText += " ORDER BY updated_at DESC LIMIT ? OFFSET ?;"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	threads := make([]types.Thread, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan thread row: %w", err)
		}
		var thread types.Thread
		if err := json.Unmarshal([]byte(payload), &thread); err != nil {
			return nil, fmt.Errorf("failed to decode thread payload: %w", err)
		}
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threads: %w", err)
	}
	return threads, nil
}

func (s *Store) SaveRun(ctx context.Context, run types.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.ThreadID == "" {
		return fmt.Errorf("thread id is required")
	}
	if run.RunID == "" {
		run.RunID = run.ID
	}
	if run.Status == "" {
		run.Status = types.RunStatusUnknown
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	const q = `
INSERT INTO runs (run_id, thread_id, user_id, status, payload, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  thread_id=excluded.thread_id,
  user_id=excluded.user_id,
  status=excluded.status,
  payload=excluded.payload,
  updated_at=excluded.updated_at;
`
	_, err = s.db.ExecContext(
		ctx,
		q,
		run.ID,
		run.ThreadID,
		run.UserID,
		string(run.Status),
		string(payload),
		toNullableTime(run.CreatedAt),
		toNullableTime(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *Store) LoadRun(ctx context.Context, runID string) (types.Run, error) {
	if strings.TrimSpace(runID) == "" {
		return types.Run{}, fmt.Errorf("run id is required")
	}

	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE run_id = ?;`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Run{}, store.ErrNotFound
		}
		return types.Run{}, fmt.Errorf("failed to load run: %w", err)
	}

	var run types.Run
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return types.Run{}, fmt.Errorf("failed to decode run payload: %w", err)
	}
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, query store.ListRunsQuery) ([]types.Run, error) {
	limit, offset := clampPage(query.Limit, query.Offset)

	var (
		where []string
		args  []any
	)
	if query.ThreadID != "" {
		where = append(where, "thread_id = ?")
		args = append(args, query.ThreadID)
	}
	if query.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, query.UserID)
	}
	if query.Status != "" {
		where = append(where, "status = ?")
		args = append(args, query.Status)
	}

	sqlText := `SELECT payload FROM runs`
	if len(where) > 0 {
		sqlText += " WHERE " + strings.Join(where, " AND ")
	}
	sqlText += " ORDER BY created_at DESC LIMIT ? OFFSET ?;"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]types.Run, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		var run types.Run
		if err := json.Unmarshal([]byte(payload), &run); err != nil {
			return nil, fmt.Errorf("failed to decode run payload: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func toNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
