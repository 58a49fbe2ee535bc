// Package eventlog is the durable, key-ordered record log behind the bridge.
// It keeps independent namespaces (pending events, delivered notifications,
// settings) on top of any Store backend.
package eventlog

import (
	"context"
	"errors"
)

// Namespaces used by the bridge.
const (
	NamespaceEvents        = "events"
	NamespaceNotifications = "notifications"
	NamespaceSettings      = "settings"
)

// ErrNotFound is returned by Store.Get for a missing key.
var ErrNotFound = errors.New("record not found")

// Record is one raw stored entry.
type Record struct {
	Key  string
	Text string
}

// Store is the persistence contract every backend implements. Each Put is a
// single atomic write, so readers never observe a partial record.
type Store interface {
	Put(ctx context.Context, namespace, key, text string) error
	Get(ctx context.Context, namespace, key string) (string, error)
	// Scan returns every record in the namespace sorted by key ascending.
	Scan(ctx context.Context, namespace string) ([]Record, error)
	Delete(ctx context.Context, namespace, key string) error
	Clear(ctx context.Context, namespace string) error
}
