package cache_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-notification-bridge/internal/eventlog"
	"github.com/tinywideclouds/go-notification-bridge/internal/storage/cache"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}
func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}
func (m *MockCache) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type MockRealStore struct {
	mock.Mock
}

func (m *MockRealStore) Put(ctx context.Context, namespace, key, text string) error {
	return m.Called(ctx, namespace, key, text).Error(0)
}
func (m *MockRealStore) Get(ctx context.Context, namespace, key string) (string, error) {
	args := m.Called(ctx, namespace, key)
	return args.String(0), args.Error(1)
}
func (m *MockRealStore) Scan(ctx context.Context, namespace string) ([]eventlog.Record, error) {
	args := m.Called(ctx, namespace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]eventlog.Record), args.Error(1)
}
func (m *MockRealStore) Delete(ctx context.Context, namespace, key string) error {
	return m.Called(ctx, namespace, key).Error(0)
}
func (m *MockRealStore) Clear(ctx context.Context, namespace string) error {
	return m.Called(ctx, namespace).Error(0)
}

func TestCachedStore_ReadAside(t *testing.T) {
	ctx := context.Background()
	cacheKey := "bridge:scan:notifications"
	records := []eventlog.Record{{Key: "k1", Text: `{"a":1}`}}

	t.Run("Cache Miss falls back to store and populates", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, time.Hour, newTestLogger())

		mockCache.On("Get", ctx, cacheKey, mock.Anything).Return(cache.ErrMiss)
		mockDB.On("Scan", ctx, eventlog.NamespaceNotifications).Return(records, nil)
		mockCache.On("Set", ctx, cacheKey, records, time.Hour).Return(nil)

		got, err := store.Scan(ctx, eventlog.NamespaceNotifications)
		require.NoError(t, err)
		assert.Equal(t, records, got)
		mockCache.AssertExpectations(t)
		mockDB.AssertExpectations(t)
	})

	t.Run("Cache Hit skips the store", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, time.Hour, newTestLogger())

		mockCache.On("Get", ctx, cacheKey, mock.Anything).Return(nil)

		_, err := store.Scan(ctx, eventlog.NamespaceNotifications)
		require.NoError(t, err)
		mockDB.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything)
	})

	t.Run("Store failure is returned", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, time.Hour, newTestLogger())

		mockCache.On("Get", ctx, cacheKey, mock.Anything).Return(cache.ErrMiss)
		mockDB.On("Scan", ctx, eventlog.NamespaceNotifications).Return(nil, errors.New("db down"))

		_, err := store.Scan(ctx, eventlog.NamespaceNotifications)
		assert.Error(t, err)
		mockCache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCachedStore_ImmediateInvalidation(t *testing.T) {
	ctx := context.Background()
	ns := eventlog.NamespaceEvents
	cacheKey := "bridge:scan:events"

	t.Run("Put invalidates", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, time.Hour, newTestLogger())

		mockDB.On("Put", ctx, ns, "k", "v").Return(nil)
		mockCache.On("Del", ctx, cacheKey).Return(nil)

		require.NoError(t, store.Put(ctx, ns, "k", "v"))
		mockCache.AssertExpectations(t)
	})

	t.Run("Clear invalidates", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, time.Hour, newTestLogger())

		mockDB.On("Clear", ctx, ns).Return(nil)
		mockCache.On("Del", ctx, cacheKey).Return(nil)

		require.NoError(t, store.Clear(ctx, ns))
		mockCache.AssertExpectations(t)
	})

	t.Run("Invalidation failure does not fail a stored write", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, time.Hour, newTestLogger())

		mockDB.On("Put", ctx, ns, "k", "v").Return(nil)
		mockDB.On("Delete", ctx, ns, "k").Return(nil)
		mockCache.On("Del", ctx, cacheKey).Return(errors.New("redis down"))

		require.NoError(t, store.Put(ctx, ns, "k", "v"))
		require.NoError(t, store.Delete(ctx, ns, "k"))
		mockDB.AssertExpectations(t)
		mockCache.AssertNumberOfCalls(t, "Del", 2)
	})

	t.Run("Failed delete leaves cache alone", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, time.Hour, newTestLogger())

		mockDB.On("Delete", ctx, ns, "k").Return(errors.New("write failed"))

		assert.Error(t, store.Delete(ctx, ns, "k"))
		mockCache.AssertNotCalled(t, "Del", mock.Anything, mock.Anything)
	})
}
