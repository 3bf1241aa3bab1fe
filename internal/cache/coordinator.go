package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"newscache/internal/model"
	"newscache/internal/store"
	"newscache/internal/upstream"

	"go.uber.org/zap"
)

var (
	// ErrArticleNotFound means the upstream CMS has no article for the
	// identifier. Nothing is cached for it.
	ErrArticleNotFound = errors.New("article not found")

	// ErrUpstreamUnavailable means the upstream fetch failed on a miss and no
	// fresh entry could be produced.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Freshness tags a resolve result as served from cache or freshly fetched.
type Freshness string

const (
	Hit  Freshness = "HIT"
	Miss Freshness = "MISS"
)

const (
	// timeSensitivePrefix marks weekly-update articles whose content is
	// corrected shortly after publish, so they get the short TTL.
	timeSensitivePrefix = "twid_"

	shortTTL = time.Hour
	longTTL  = 24 * time.Hour
)

// TTL returns the freshness window for an identifier.
func TTL(id string) time.Duration {
	if strings.HasPrefix(strings.TrimPrefix(id, "/"), timeSensitivePrefix) {
		return shortTTL
	}
	return longTTL
}

// Fetcher is the upstream read surface the coordinator depends on.
type Fetcher interface {
	FetchByID(ctx context.Context, id string) (*model.Article, error)
	FetchRecent(ctx context.Context, limit int) ([]*model.Article, error)
}

// AssetMirror copies article images into durable storage. MirrorArticle
// contains its own failures and only reports how many roles failed.
type AssetMirror interface {
	MirrorArticle(ctx context.Context, article *model.Article) int
	Delete(ctx context.Context, articleUID string) error
}

// Coordinator is the request-facing cache API. It serves fresh entries from
// the record store and fills misses from upstream.
type Coordinator struct {
	store   store.RecordStore
	fetcher Fetcher
	mirror  AssetMirror
	logger  *zap.Logger
	now     func() time.Time
}

func NewCoordinator(st store.RecordStore, fetcher Fetcher, mirror AssetMirror, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:   st,
		fetcher: fetcher,
		mirror:  mirror,
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve returns the article for the identifier and whether it came from
// cache. On a miss it fetches upstream, writes the entry with the TTL policy,
// and mirrors the article's images; mirror failures never block the result.
//
// A store write failure on the miss path still returns the freshly fetched
// article alongside the error, since the in-memory result is valid even when
// not persisted.
func (c *Coordinator) Resolve(ctx context.Context, id string) (*model.Article, Freshness, error) {
	entry, err := c.store.GetEntry(ctx, id)
	if err != nil && err != store.ErrNotFound {
		return nil, "", fmt.Errorf("reading cache entry: %w", err)
	}

	now := c.now()
	if entry != nil && entry.Fresh(now) {
		article, err := entry.Article()
		if err == nil {
			return article, Hit, nil
		}
		// An undecodable payload is treated as a miss and overwritten below.
		c.logger.Warn("Discarding corrupt cache entry",
			zap.String("id", id),
			zap.Error(err))
	}

	article, err := c.fetcher.FetchByID(ctx, id)
	if errors.Is(err, upstream.ErrNotFound) {
		return nil, "", fmt.Errorf("%w: %s", ErrArticleNotFound, id)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	newEntry, storeErr := model.NewCacheEntry(article, now.Add(TTL(id)))
	if storeErr == nil {
		storeErr = c.store.PutEntry(ctx, newEntry)
	}
	if storeErr != nil {
		c.logger.Error("Failed to cache article",
			zap.String("id", id),
			zap.Error(storeErr))
	}

	c.mirror.MirrorArticle(ctx, article)

	if storeErr != nil {
		return article, Miss, fmt.Errorf("caching article: %w", storeErr)
	}
	return article, Miss, nil
}
