// Package factory builds a store.Store from the SYNC_* environment.
package factory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/carebridgehq/assistant-sync-go/config"
	"github.com/carebridgehq/assistant-sync-go/store"
	"github.com/carebridgehq/assistant-sync-go/store/hybrid"
	redisstore "github.com/carebridgehq/assistant-sync-go/store/redis"
	sqlitestore "github.com/carebridgehq/assistant-sync-go/store/sqlite"
)

func FromEnv(ctx context.Context) (store.Store, error) {
	_ = ctx

	backend := strings.ToLower(config.Getenv("SYNC_STATE_BACKEND", "sqlite"))
	switch backend {
	case "sqlite":
		path := config.Getenv("SYNC_SQLITE_PATH", "./.assistant-sync/state.db")
		return sqlitestore.New(path)

	case "redis":
		return newRedisStoreFromEnv()

	case "hybrid":
		path := config.Getenv("SYNC_SQLITE_PATH", "./.assistant-sync/state.db")
		durable, err := sqlitestore.New(path)
		if err != nil {
			return nil, err
		}
		cache, err := newRedisStoreFromEnv()
		if err != nil {
			return hybrid.New(durable, nil)
		}
		return hybrid.New(durable, cache)

	default:
		return nil, fmt.Errorf("unsupported SYNC_STATE_BACKEND %q (use sqlite, redis, or hybrid)", backend)
	}
}

func newRedisStoreFromEnv() (store.Store, error) {
	addr := config.Getenv("SYNC_REDIS_ADDR", "127.0.0.1:6379")
	password := config.Getenv("SYNC_REDIS_PASSWORD", "")
	db := config.GetenvInt("SYNC_REDIS_DB", 0)
	ttl := config.GetenvDuration("SYNC_REDIS_TTL", 72*time.Hour)

	opts := []redisstore.Option{
		redisstore.WithPassword(password),
		redisstore.WithDB(db),
		redisstore.WithTTL(ttl),
	}
	return redisstore.New(addr, opts...)
}
