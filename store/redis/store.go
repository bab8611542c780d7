package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/carebridgehq/assistant-sync-go/store"
	"github.com/carebridgehq/assistant-sync-go/types"
)

const (
	defaultTTL    = 72 * time.Hour
	defaultLimit  = 50
	defaultPrefix = "asyn"
)

// Store keeps threads and runs as JSON values with ZSET indexes so the
// most recently updated records list first. Everything expires after the
// configured TTL; redis is a cache tier, not the system of record.
type Store struct {
	client   *goredis.Client
	ttl      time.Duration
	prefix   string
	addr     string
	db       int
	password string
}

type Option func(*Store)

func WithPassword(password string) Option {
	return func(s *Store) {
		s.password = password
	}
}

func WithDB(db int) Option {
	return func(s *Store) {
		s.db = db
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

func New(addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	s := &Store{
		ttl:    defaultTTL,
		prefix: defaultPrefix,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}

	if err := s.client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return s, nil
}

func (s *Store) SaveThread(ctx context.Context, thread types.Thread) error {
	if thread.ID == "" {
		return fmt.Errorf("thread id is required")
	}
	if thread.UpdatedAt == nil {
		now := time.Now().UTC()
		thread.UpdatedAt = &now
	}
	if thread.CreatedAt == nil {
		thread.CreatedAt = thread.UpdatedAt
	}

	raw, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.threadKey(thread.ID), string(raw), s.ttl)
	if thread.UserID != "" {
		userIdx := s.threadUserIndexKey(thread.UserID)
		pipe.ZAdd(ctx, userIdx, goredis.Z{
			Score:  float64(thread.UpdatedAt.Unix()),
			Member: thread.ID,
		})
		pipe.Expire(ctx, userIdx, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save thread in redis: %w", err)
	}
	return nil
}

func (s *Store) LoadThread(ctx context.Context, threadID string) (types.Thread, error) {
	if threadID == "" {
		return types.Thread{}, fmt.Errorf("thread id is required")
	}

	raw, err := s.client.Get(ctx, s.threadKey(threadID)).Result()
	if err != nil {
		if err == goredis.Nil {
			return types.Thread{}, store.ErrNotFound
		}
		return types.Thread{}, fmt.Errorf("failed to load thread from redis: %w", err)
	}

	var thread types.Thread
	if err := json.Unmarshal([]byte(raw), &thread); err != nil {
		return types.Thread{}, fmt.Errorf("failed to decode thread from redis: %w", err)
	}
	return thread, nil
}

func (s *Store) ListThreads(ctx context.Context, query store.ListThreadsQuery) ([]types.Thread, error) {
	limit, offset := clampPage(query.Limit, query.Offset)

	ids, err := s.indexedIDs(ctx, s.threadIndexFor(query), s.threadPattern(), s.threadIDFromKey, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread ids: %w", err)
	}
	if len(ids) == 0 {
		return []types.Thread{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.threadKey(id)
	}
	loaded, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget threads from redis: %w", err)
	}

	out := make([]types.Thread, 0, len(loaded))
	staleIDs := make([]string, 0)
	for i, raw := range loaded {
		if raw == nil {
			staleIDs = append(staleIDs, ids[i])
			continue
		}
		var thread types.Thread
		if err := json.Unmarshal([]byte(fmt.Sprintf("%v", raw)), &thread); err != nil {
			continue
		}
		if query.Status != "" && string(thread.Status) != query.Status {
			continue
		}
		out = append(out, thread)
	}

	if idx := s.threadIndexFor(query); idx != "" && len(staleIDs) > 0 {
		s.pruneIndex(ctx, idx, staleIDs)
	}

	sort.Slice(out, func(i, j int) bool {
		return timeOrZero(out[i].UpdatedAt).After(timeOrZero(out[j].UpdatedAt))
	})
	return out, nil
}

func (s *Store) SaveRun(ctx context.Context, run types.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.ThreadID == "" {
		return fmt.Errorf("thread id is required")
	}
	if run.UpdatedAt == nil {
		now := time.Now().UTC()
		run.UpdatedAt = &now
	}
	if run.CreatedAt == nil {
		run.CreatedAt = run.UpdatedAt
	}
	if run.Metadata == nil {
		run.Metadata = map[string]any{}
	}

	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	score := float64(run.UpdatedAt.Unix())
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.runKey(run.ID), string(raw), s.ttl)
	threadIdx := s.runThreadIndexKey(run.ThreadID)
	pipe.ZAdd(ctx, threadIdx, goredis.Z{Score: score, Member: run.ID})
	pipe.Expire(ctx, threadIdx, s.ttl)
	if run.UserID != "" {
		userIdx := s.runUserIndexKey(run.UserID)
		pipe.ZAdd(ctx, userIdx, goredis.Z{Score: score, Member: run.ID})
		pipe.Expire(ctx, userIdx, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run in redis: %w", err)
	}
	return nil
}

func (s *Store) LoadRun(ctx context.Context, runID string) (types.Run, error) {
	if runID == "" {
		return types.Run{}, fmt.Errorf("run id is required")
	}

	raw, err := s.client.Get(ctx, s.runKey(runID)).Result()
	if err != nil {
		if err == goredis.Nil {
			return types.Run{}, store.ErrNotFound
		}
		return types.Run{}, fmt.Errorf("failed to load run from redis: %w", err)
	}

	var run types.Run
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		return types.Run{}, fmt.Errorf("failed to decode run from redis: %w", err)
	}
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, query store.ListRunsQuery) ([]types.Run, error) {
	limit, offset := clampPage(query.Limit, query.Offset)

	ids, err := s.indexedIDs(ctx, s.runIndexFor(query), s.runPattern(), s.runIDFromKey, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list run ids: %w", err)
	}
	if len(ids) == 0 {
		return []types.Run{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.runKey(id)
	}
	loaded, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget runs from redis: %w", err)
	}

	out := make([]types.Run, 0, len(loaded))
	staleIDs := make([]string, 0)
	for i, raw := range loaded {
		if raw == nil {
			staleIDs = append(staleIDs, ids[i])
			continue
		}
		var run types.Run
		if err := json.Unmarshal([]byte(fmt.Sprintf("%v", raw)), &run); err != nil {
			continue
		}
		if query.Status != "" && string(run.Status) != query.Status {
			continue
		}
		out = append(out, run)
	}

	if idx := s.runIndexFor(query); idx != "" && len(staleIDs) > 0 {
		s.pruneIndex(ctx, idx, staleIDs)
	}

	sort.Slice(out, func(i, j int) bool {
		return timeOrZero(out[i].UpdatedAt).After(timeOrZero(out[j].UpdatedAt))
	})
	return out, nil
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// indexedIDs reads ids from a ZSET index when one applies to the query,
// otherwise falls back to a key scan.
func (s *Store) indexedIDs(ctx context.Context, indexKey, pattern string, idFromKey func(string) string, limit, offset int) ([]string, error) {
	if indexKey != "" {
		return s.client.ZRevRange(ctx, indexKey, int64(offset), int64(offset+limit-1)).Result()
	}

	ids := make([]string, 0, limit)
	var cursor uint64
	for len(ids) < limit {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, int64(limit)).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			if id := idFromKey(key); id != "" {
				ids = append(ids, id)
			}
			if len(ids) >= limit {
				break
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}

func (s *Store) pruneIndex(ctx context.Context, indexKey string, staleIDs []string) {
	members := make([]any, 0, len(staleIDs))
	for _, id := range staleIDs {
		members = append(members, id)
	}
	_ = s.client.ZRem(ctx, indexKey, members...).Err()
}

func (s *Store) threadIndexFor(query store.ListThreadsQuery) string {
	if query.UserID != "" {
		return s.threadUserIndexKey(query.UserID)
	}
	return ""
}

func (s *Store) runIndexFor(query store.ListRunsQuery) string {
	if query.ThreadID != "" {
		return s.runThreadIndexKey(query.ThreadID)
	}
	if query.UserID != "" {
		return s.runUserIndexKey(query.UserID)
	}
	return ""
}

func (s *Store) threadKey(threadID string) string {
	return fmt.Sprintf("%s:thread:%s", s.prefix, threadID)
}

func (s *Store) threadPattern() string {
	return fmt.Sprintf("%s:thread:*", s.prefix)
}

func (s *Store) threadIDFromKey(key string) string {
	prefix := fmt.Sprintf("%s:thread:", s.prefix)
	if !strings.HasPrefix(key, prefix) {
		return ""
	}
	return strings.TrimPrefix(key, prefix)
}

func (s *Store) threadUserIndexKey(userID string) string {
	return fmt.Sprintf("%s:thridx:user:%s", s.prefix, userID)
}

func (s *Store) runKey(runID string) string {
	return fmt.Sprintf("%s:run:%s", s.prefix, runID)
}

func (s *Store) runPattern() string {
	return fmt.Sprintf("%s:run:*", s.prefix)
}

func (s *Store) runIDFromKey(key string) string {
	prefix := fmt.Sprintf("%s:run:", s.prefix)
	if !strings.HasPrefix(key, prefix) {
		return ""
	}
	return strings.TrimPrefix(key, prefix)
}

func (s *Store) runThreadIndexKey(threadID string) string {
	return fmt.Sprintf("%s:runidx:thread:%s", s.prefix, threadID)
}

func (s *Store) runUserIndexKey(userID string) string {
	return fmt.Sprintf("%s:runidx:user:%s", s.prefix, userID)
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

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
