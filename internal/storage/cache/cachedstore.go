package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-notification-bridge/internal/eventlog"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or a specific error if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedStore is a Decorator that adds Read-Aside caching of namespace scans
// to any eventlog.Store.
type CachedStore struct {
	realStore eventlog.Store
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedStore(realStore eventlog.Store, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedStore {
	return &CachedStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "cached_store"),
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedStore) Scan(ctx context.Context, namespace string) ([]eventlog.Record, error) {
	key := s.cacheKey(namespace)

	var cached []eventlog.Record
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := s.realStore.Scan(ctx, namespace)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization; if Redis is down we serve from the store.
	_ = s.cache.Set(ctx, key, fresh, s.ttl)
	return fresh, nil
}

func (s *CachedStore) Get(ctx context.Context, namespace, key string) (string, error) {
	return s.realStore.Get(ctx, namespace, key)
}

// --- WRITE PATHS (Invalidate-on-Write) ---
// The store is the source of truth: once it accepts a write the call succeeds,
// even if the cached scan could not be dropped.

func (s *CachedStore) Put(ctx context.Context, namespace, key, text string) error {
	if err := s.realStore.Put(ctx, namespace, key, text); err != nil {
		return err
	}
	s.invalidate(ctx, namespace)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, namespace, key string) error {
	if err := s.realStore.Delete(ctx, namespace, key); err != nil {
		return err
	}
	s.invalidate(ctx, namespace)
	return nil
}

// Clear must drop the cached scan too, or a replay would see cleared records.
func (s *CachedStore) Clear(ctx context.Context, namespace string) error {
	if err := s.realStore.Clear(ctx, namespace); err != nil {
		return err
	}
	s.invalidate(ctx, namespace)
	return nil
}

// --- Helpers ---

func (s *CachedStore) invalidate(ctx context.Context, namespace string) {
	if err := s.cache.Del(ctx, s.cacheKey(namespace)); err != nil {
		s.logger.Warn("Cache invalidation failed, scan may be stale until TTL", "namespace", namespace, "err", err)
	}
}

func (s *CachedStore) cacheKey(namespace string) string {
	return fmt.Sprintf("bridge:scan:%s", namespace)
}
