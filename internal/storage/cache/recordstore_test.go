package cache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-notification-bridge/internal/eventlog"
	"github.com/tinywideclouds/go-notification-bridge/internal/storage/cache"
)

type MockHash struct {
	mock.Mock
}

func (m *MockHash) HSet(ctx context.Context, key, field, value string) error {
	return m.Called(ctx, key, field, value).Error(0)
}
func (m *MockHash) HGet(ctx context.Context, key, field string) (string, error) {
	args := m.Called(ctx, key, field)
	return args.String(0), args.Error(1)
}
func (m *MockHash) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(map[string]string), args.Error(1)
}
func (m *MockHash) HDel(ctx context.Context, key, field string) error {
	return m.Called(ctx, key, field).Error(0)
}
func (m *MockHash) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func TestRecordStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Scan sorts hash fields by key", func(t *testing.T) {
		client := new(MockHash)
		store := cache.NewRecordStore(client, "app")

		client.On("HGetAll", ctx, "app:log:notifications").Return(map[string]string{
			"0002": "b",
			"0001": "a",
			"0003": "c",
		}, nil)

		got, err := store.Scan(ctx, eventlog.NamespaceNotifications)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "0001", got[0].Key)
		assert.Equal(t, "0003", got[2].Key)
	})

	t.Run("Missing field maps to ErrNotFound", func(t *testing.T) {
		client := new(MockHash)
		store := cache.NewRecordStore(client, "app")

		client.On("HGet", ctx, "app:log:settings", "registrationToken").Return("", cache.ErrMiss)

		_, err := store.Get(ctx, eventlog.NamespaceSettings, "registrationToken")
		assert.ErrorIs(t, err, eventlog.ErrNotFound)
	})

	t.Run("Clear drops the namespace hash", func(t *testing.T) {
		client := new(MockHash)
		store := cache.NewRecordStore(client, "")

		client.On("Del", ctx, "bridge:log:events").Return(nil)

		require.NoError(t, store.Clear(ctx, eventlog.NamespaceEvents))
		client.AssertExpectations(t)
	})
}
