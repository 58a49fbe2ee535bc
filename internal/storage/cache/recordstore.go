package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tinywideclouds/go-notification-bridge/internal/eventlog"
)

// HashClient defines the subset of Redis hash commands the record store uses.
type HashClient interface {
	HSet(ctx context.Context, key, field, value string) error
	// HGet returns ErrMiss for a missing field.
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key, field string) error
	Del(ctx context.Context, key string) error
}

// RecordStore implements eventlog.Store with one Redis hash per namespace.
// HSET of a single field is atomic, so a record is never half written.
type RecordStore struct {
	client HashClient
	prefix string
}

func NewRecordStore(client HashClient, prefix string) *RecordStore {
	if prefix == "" {
		prefix = "bridge"
	}
	return &RecordStore{client: client, prefix: prefix}
}

func (s *RecordStore) Put(ctx context.Context, namespace, key, text string) error {
	if err := s.client.HSet(ctx, s.hashKey(namespace), key, text); err != nil {
		return fmt.Errorf("redis write %s/%s failed: %w", namespace, key, err)
	}
	return nil
}

func (s *RecordStore) Get(ctx context.Context, namespace, key string) (string, error) {
	text, err := s.client.HGet(ctx, s.hashKey(namespace), key)
	if errors.Is(err, ErrMiss) {
		return "", fmt.Errorf("%s/%s: %w", namespace, key, eventlog.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("redis read %s/%s failed: %w", namespace, key, err)
	}
	return text, nil
}

func (s *RecordStore) Scan(ctx context.Context, namespace string) ([]eventlog.Record, error) {
	all, err := s.client.HGetAll(ctx, s.hashKey(namespace))
	if err != nil {
		return nil, fmt.Errorf("redis scan %s failed: %w", namespace, err)
	}
	out := make([]eventlog.Record, 0, len(all))
	for k, v := range all {
		out = append(out, eventlog.Record{Key: k, Text: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *RecordStore) Delete(ctx context.Context, namespace, key string) error {
	if err := s.client.HDel(ctx, s.hashKey(namespace), key); err != nil {
		return fmt.Errorf("redis delete %s/%s failed: %w", namespace, key, err)
	}
	return nil
}

func (s *RecordStore) Clear(ctx context.Context, namespace string) error {
	if err := s.client.Del(ctx, s.hashKey(namespace)); err != nil {
		return fmt.Errorf("redis clear %s failed: %w", namespace, err)
	}
	return nil
}

func (s *RecordStore) hashKey(namespace string) string {
	return fmt.Sprintf("%s:log:%s", s.prefix, namespace)
}
