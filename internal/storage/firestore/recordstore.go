// Package firestore stores bridge log records in Google Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-notification-bridge/internal/eventlog"
)

// RecordStore implements eventlog.Store using Firestore.
type RecordStore struct {
	client *firestore.Client
	root   string
}

// NewRecordStore keeps records under {root}/{namespace}/records/{key}.
func NewRecordStore(client *firestore.Client, root string) *RecordStore {
	if root == "" {
		root = "notification-bridge"
	}
	return &RecordStore{client: client, root: root}
}

// recordDoc is the stored document. Key is duplicated into the body so scans
// can order on it.
type recordDoc struct {
	Key       string    `firestore:"key"`
	Record    string    `firestore:"record"`
	CreatedAt time.Time `firestore:"created_at"`
}

func (s *RecordStore) Put(ctx context.Context, namespace, key, text string) error {
	doc := recordDoc{Key: key, Record: text, CreatedAt: time.Now()}
	if _, err := s.records(namespace).Doc(key).Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore write %s/%s failed: %w", namespace, key, err)
	}
	return nil
}

func (s *RecordStore) Get(ctx context.Context, namespace, key string) (string, error) {
	snap, err := s.records(namespace).Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return "", fmt.Errorf("%s/%s: %w", namespace, key, eventlog.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("firestore read %s/%s failed: %w", namespace, key, err)
	}

	var doc recordDoc
	if err := snap.DataTo(&doc); err != nil {
		return "", fmt.Errorf("firestore decode %s/%s failed: %w", namespace, key, err)
	}
	return doc.Record, nil
}

func (s *RecordStore) Scan(ctx context.Context, namespace string) ([]eventlog.Record, error) {
	iter := s.records(namespace).OrderBy("key", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []eventlog.Record
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var doc recordDoc
		if err := snap.DataTo(&doc); err != nil {
			// Corrupt rows are skipped; the log reports what it could read.
			continue
		}
		out = append(out, eventlog.Record{Key: doc.Key, Text: doc.Record})
	}
	return out, nil
}

func (s *RecordStore) Delete(ctx context.Context, namespace, key string) error {
	if _, err := s.records(namespace).Doc(key).Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete %s/%s failed: %w", namespace, key, err)
	}
	return nil
}

func (s *RecordStore) Clear(ctx context.Context, namespace string) error {
	iter := s.records(namespace).DocumentRefs(ctx)
	for {
		ref, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("firestore iteration failed: %w", err)
		}
		if _, err := ref.Delete(ctx); err != nil {
			return fmt.Errorf("firestore delete %s/%s failed: %w", namespace, ref.ID, err)
		}
	}
}

// records: {root}/{namespace}/records
func (s *RecordStore) records(namespace string) *firestore.CollectionRef {
	return s.client.Collection(s.root).Doc(namespace).Collection("records")
}
