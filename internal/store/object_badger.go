package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// objectMeta sits next to each blob under a meta: key.
type objectMeta struct {
	ContentType string    `json:"content_type"`
	ByteSize    int64     `json:"byte_size"`
	StoredAt    time.Time `json:"stored_at"`
}

// BadgerObjectStore keeps mirrored binaries in BadgerDB, the blob under the
// object path and its metadata under meta:{path}.
type BadgerObjectStore struct {
	db *badger.DB
}

// NewBadgerObjectStore opens the database at path. An empty path opens an
// in-memory store, used by tests and the one-shot CLI commands.
func NewBadgerObjectStore(path string) (*BadgerObjectStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = nil // Silence default logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerObjectStore{db: db}, nil
}

// Close releases the database.
func (s *BadgerObjectStore) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// RunGC reclaims value-log space periodically until the context is cancelled.
func (s *BadgerObjectStore) RunGC(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.db.RunValueLogGC(0.7); err != nil && err != badger.ErrNoRewrite {
				logger.Warn("Badger value log GC failed", zap.Error(err))
			}
		}
	}
}

func metaKey(path string) []byte {
	return []byte("meta:" + path)
}

// Put writes the blob and its metadata in one transaction.
func (s *BadgerObjectStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	meta, err := json.Marshal(objectMeta{
		ContentType: contentType,
		ByteSize:    int64(len(data)),
		StoredAt:    time.Now(),
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(path), data); err != nil {
			return err
		}
		return txn.Set(metaKey(path), meta)
	})
}

// Get returns the blob and its content type.
func (s *BadgerObjectStore) Get(ctx context.Context, path string) ([]byte, string, error) {
	var data []byte
	var meta objectMeta

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(path))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err = txn.Get(metaKey(path))
		if err == badger.ErrKeyNotFound {
			return nil // blob without metadata is still servable
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return data, meta.ContentType, nil
}

// Exists reports whether an object is already stored at path.
func (s *BadgerObjectStore) Exists(ctx context.Context, path string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(path))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the blob and its metadata. Deleting a missing object is a
// no-op.
func (s *BadgerObjectStore) Delete(ctx context.Context, path string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(path)); err != nil {
			return err
		}
		return txn.Delete(metaKey(path))
	})
}
