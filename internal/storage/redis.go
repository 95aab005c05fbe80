package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"trading-journal/internal/config"
	"trading-journal/internal/filter"
)

const savedFiltersKey = "saved_filters"

// RedisFilterStore keeps saved filters in a single Redis hash keyed by name.
type RedisFilterStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisClient builds and pings a client from runtime settings.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis.addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewRedisFilterStore wraps client; keys are namespaced with prefix.
func NewRedisFilterStore(client redis.UniversalClient, prefix string) *RedisFilterStore {
	if prefix == "" {
		prefix = "tjournal"
	}
	return &RedisFilterStore{client: client, prefix: prefix}
}

func (r *RedisFilterStore) key() string {
	return r.prefix + ":" + savedFiltersKey
}

// CreateSavedFilter stores sf unless the name is already taken.
func (r *RedisFilterStore) CreateSavedFilter(ctx context.Context, sf filter.SavedFilter) error {
	data, err := json.Marshal(sf)
	if err != nil {
		return fmt.Errorf("encode saved filter: %w", err)
	}
	created, err := r.client.HSetNX(ctx, r.key(), sf.Name, string(data)).Result()
	if err != nil {
		return fmt.Errorf("redis hsetnx: %w", err)
	}
	if !created {
		return fmt.Errorf("saved filter %q: %w", sf.Name, ErrExists)
	}
	return nil
}

// GetSavedFilter loads a saved filter by name.
func (r *RedisFilterStore) GetSavedFilter(ctx context.Context, name string) (filter.SavedFilter, error) {
	return r.load(ctx, r.client, name)
}

type hashGetter interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func (r *RedisFilterStore) load(ctx context.Context, c hashGetter, name string) (filter.SavedFilter, error) {
	raw, err := c.HGet(ctx, r.key(), name).Result()
	if errors.Is(err, redis.Nil) {
		return filter.SavedFilter{}, fmt.Errorf("saved filter %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return filter.SavedFilter{}, fmt.Errorf("redis hget: %w", err)
	}
	var sf filter.SavedFilter
	if err := json.Unmarshal([]byte(raw), &sf); err != nil {
		return filter.SavedFilter{}, fmt.Errorf("decode saved filter: %w", err)
	}
	return sf, nil
}

// ListSavedFilters returns every saved filter, most recently used first.
// Entries that fail to decode are skipped.
func (r *RedisFilterStore) ListSavedFilters(ctx context.Context) ([]filter.SavedFilter, error) {
	all, err := r.client.HGetAll(ctx, r.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	out := make([]filter.SavedFilter, 0, len(all))
	for _, raw := range all {
		var sf filter.SavedFilter
		if err := json.Unmarshal([]byte(raw), &sf); err != nil {
			continue
		}
		out = append(out, sf)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUsedAt.Equal(out[j].LastUsedAt) {
			return out[i].LastUsedAt.After(out[j].LastUsedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// touchAttempts bounds the optimistic retries of TouchSavedFilter.
const touchAttempts = 3

// TouchSavedFilter rewrites the stored snapshot with a new last-used time.
// The read and write run under WATCH, so a filter deleted in between is not
// written back.
func (r *RedisFilterStore) TouchSavedFilter(ctx context.Context, name string, at time.Time) error {
	key := r.key()
	touch := func(tx *redis.Tx) error {
		sf, err := r.load(ctx, tx, name)
		if err != nil {
			return err
		}
		data, err := json.Marshal(sf.Touch(at))
		if err != nil {
			return fmt.Errorf("encode saved filter: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, name, string(data))
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis hset: %w", err)
		}
		return nil
	}

	var err error
	for i := 0; i < touchAttempts; i++ {
		err = r.client.Watch(ctx, touch, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("touch saved filter %q: %w", name, err)
}

// DeleteSavedFilter removes a saved filter by name.
func (r *RedisFilterStore) DeleteSavedFilter(ctx context.Context, name string) error {
	n, err := r.client.HDel(ctx, r.key(), name).Result()
	if err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("saved filter %q: %w", name, ErrNotFound)
	}
	return nil
}

var _ SavedFilterStore = (*RedisFilterStore)(nil)
