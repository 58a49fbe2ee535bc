package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

// Entry is a decoded log record.
type Entry struct {
	Key    Key
	Record value.Value
}

// Log is one namespace of a Store. Writes are serialized; reads may run
// concurrently with each other but never with a write.
type Log struct {
	store     Store
	namespace string
	now       func() time.Time
	mu        sync.RWMutex
	logger    *slog.Logger
}

// NewLog opens namespace on store.
func NewLog(store Store, namespace string, logger *slog.Logger) *Log {
	return &Log{
		store:     store,
		namespace: namespace,
		now:       time.Now,
		logger:    logger.With("component", "EventLog", "namespace", namespace),
	}
}

func (l *Log) Namespace() string { return l.namespace }

// Append stores record under a key for logical time at. A zero at means now.
func (l *Log) Append(ctx context.Context, at time.Time, record value.Value) (Key, error) {
	if at.IsZero() {
		at = l.now()
	}
	text, err := value.ToText(record)
	if err != nil {
		return Key{}, fmt.Errorf("failed to serialize %s record: %w", l.namespace, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := NewKey(at)
	if err := l.store.Put(ctx, l.namespace, key.String(), text); err != nil {
		return Key{}, fmt.Errorf("failed to append %s record: %w", l.namespace, err)
	}
	return key, nil
}

// ListAll returns every record in key order. Records that cannot be decoded
// are skipped with a warning.
func (l *Log) ListAll(ctx context.Context) ([]Entry, error) {
	l.mu.RLock()
	raw, err := l.store.Scan(ctx, l.namespace)
	l.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", l.namespace, err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		key, err := ParseKey(r.Key)
		if err != nil {
			l.logger.Warn("Skipping record with malformed key", "key", r.Key, "err", err)
			continue
		}
		record, err := value.FromText(r.Text)
		if err != nil {
			l.logger.Warn("Skipping corrupt record", "key", r.Key, "err", err)
			continue
		}
		entries = append(entries, Entry{Key: key, Record: record})
	}
	// Backends sort already; this keeps the guarantee independent of them.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Key.Less(entries[j].Key) })
	return entries, nil
}

// Remove deletes the record stored under key.
func (l *Log) Remove(ctx context.Context, key Key) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Delete(ctx, l.namespace, key.String()); err != nil {
		return fmt.Errorf("failed to remove %s record %s: %w", l.namespace, key, err)
	}
	return nil
}

// RemoveFirst deletes the first record, in key order, matching pred and
// returns it. ok is false when nothing matched.
func (l *Log) RemoveFirst(ctx context.Context, pred func(value.Value) bool) (removed Entry, ok bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := l.store.Scan(ctx, l.namespace)
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to scan %s records: %w", l.namespace, err)
	}
	for _, r := range raw {
		record, err := value.FromText(r.Text)
		if err != nil {
			continue
		}
		if !pred(record) {
			continue
		}
		key, err := ParseKey(r.Key)
		if err != nil {
			continue
		}
		if err := l.store.Delete(ctx, l.namespace, r.Key); err != nil {
			return Entry{}, false, fmt.Errorf("failed to remove %s record %s: %w", l.namespace, r.Key, err)
		}
		return Entry{Key: key, Record: record}, true, nil
	}
	return Entry{}, false, nil
}

// Clear removes every record in the namespace.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Clear(ctx, l.namespace); err != nil {
		return fmt.Errorf("failed to clear %s records: %w", l.namespace, err)
	}
	return nil
}

// SettingRegistrationToken is the settings key holding the device
// registration token.
const SettingRegistrationToken = "registrationToken"

// Settings is a small key/value namespace for bridge state that is not a log,
// such as the device registration token.
type Settings struct {
	store Store
	mu    sync.RWMutex
}

func NewSettings(store Store) *Settings {
	return &Settings{store: store}
}

// Get returns the stored value, or "" with ok false when unset.
func (s *Settings) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.store.Get(ctx, NamespaceSettings, key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Settings) Set(ctx context.Context, key, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Put(ctx, NamespaceSettings, key, v); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// RegistrationToken returns the stored device registration token.
func (s *Settings) RegistrationToken(ctx context.Context) (string, bool, error) {
	return s.Get(ctx, SettingRegistrationToken)
}
