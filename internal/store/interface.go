package store

import (
	"context"
	"errors"
	"time"

	"newscache/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
)

// RecordStore persists cache entries and asset records. Implementations must
// make every write atomic per entry so readers never observe a partial record.
type RecordStore interface {
	GetEntry(ctx context.Context, id string) (*model.CacheEntry, error)
	PutEntry(ctx context.Context, entry *model.CacheEntry) error
	DeleteEntry(ctx context.Context, id string) error
	ListExpiredBefore(ctx context.Context, t time.Time) ([]string, error)

	PutAsset(ctx context.Context, rec *model.AssetRecord) error
	ListAssets(ctx context.Context, articleUID string) ([]model.AssetRecord, error)
	DeleteAssets(ctx context.Context, articleUID string) error
}

// ObjectStore holds mirrored binaries under deterministic paths.
type ObjectStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, string, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}
