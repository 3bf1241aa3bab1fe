package worker

import (
	"context"
	"time"

	"newscache/internal/cache"
	"newscache/internal/model"
	"newscache/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultRecent is how many of the newest articles each run refreshes.
const DefaultRecent = 50

// ArticleFailure is one article that could not be refreshed during a run.
type ArticleFailure struct {
	Identifier string
	Err        error
}

// Summary reports what a reconciliation run did.
type Summary struct {
	Refreshed      int
	Failed         int
	ExpiredRemoved int
	Failures       []ArticleFailure
}

// Reconciler periodically bulk-refreshes the newest articles and sweeps
// expired entries, with their mirrored assets, out of both stores.
type Reconciler struct {
	store   store.RecordStore
	fetcher cache.Fetcher
	mirror  cache.AssetMirror
	logger  *zap.Logger
	recent  int
	now     func() time.Time
}

func NewReconciler(st store.RecordStore, fetcher cache.Fetcher, mirror cache.AssetMirror, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:   st,
		fetcher: fetcher,
		mirror:  mirror,
		logger:  logger,
		recent:  DefaultRecent,
		now:     time.Now,
	}
}

// Run executes one reconciliation pass: refresh the most recent articles,
// then sweep expired entries. One article's failure never aborts the batch.
// If upstream is unreachable the run stops and the sweep is skipped.
func (r *Reconciler) Run(ctx context.Context) (Summary, error) {
	logger := r.logger.With(zap.String("run_id", uuid.NewString()))
	logger.Info("Reconciliation started")

	articles, err := r.fetcher.FetchRecent(ctx, r.recent)
	if err != nil {
		logger.Error("Upstream unreachable, run aborted", zap.Error(err))
		return Summary{}, err
	}

	var sum Summary
	for _, article := range articles {
		if err := r.refresh(ctx, article); err != nil {
			logger.Warn("Failed to refresh article",
				zap.String("id", article.HostedURL),
				zap.Error(err))
			sum.Failed++
			sum.Failures = append(sum.Failures, ArticleFailure{
				Identifier: article.HostedURL,
				Err:        err,
			})
			continue
		}
		sum.Refreshed++
	}

	removed, err := r.sweep(ctx, logger)
	if err != nil {
		logger.Error("Sweep failed", zap.Error(err))
		return sum, err
	}
	sum.ExpiredRemoved = removed

	logger.Info("Reconciliation complete",
		zap.Int("refreshed", sum.Refreshed),
		zap.Int("failed", sum.Failed),
		zap.Int("expired_removed", sum.ExpiredRemoved))
	return sum, nil
}

func (r *Reconciler) refresh(ctx context.Context, article *model.Article) error {
	entry, err := model.NewCacheEntry(article, r.now().Add(cache.TTL(article.HostedURL)))
	if err != nil {
		return err
	}
	if err := r.store.PutEntry(ctx, entry); err != nil {
		return err
	}

	// Mirror failures are contained and logged inside MirrorArticle; they
	// never undo the entry write above.
	r.mirror.MirrorArticle(ctx, article)
	return nil
}

func (r *Reconciler) sweep(ctx context.Context, logger *zap.Logger) (int, error) {
	ids, err := r.store.ListExpiredBefore(ctx, r.now())
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		entry, err := r.store.GetEntry(ctx, id)
		if err == store.ErrNotFound {
			// Index member without a row; drop it and move on.
			if err := r.store.DeleteEntry(ctx, id); err != nil {
				logger.Warn("Failed to drop orphan index member", zap.String("id", id), zap.Error(err))
			}
			continue
		}
		if err != nil {
			logger.Warn("Failed to read expired entry", zap.String("id", id), zap.Error(err))
			continue
		}

		if article, err := entry.Article(); err == nil && article.UID != "" {
			if err := r.mirror.Delete(ctx, article.UID); err != nil {
				logger.Warn("Failed to delete mirrored assets",
					zap.String("article_uid", article.UID),
					zap.Error(err))
			}
		}

		if err := r.store.DeleteEntry(ctx, id); err != nil {
			logger.Warn("Failed to delete expired entry", zap.String("id", id), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// Start triggers a run on every tick until the context is cancelled. Each run
// goes onto its own goroutine so a slow batch never blocks the ticker;
// overlapping runs are safe because every step is an idempotent upsert or
// delete.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	r.logger.Info("Reconciler started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciler shutting down")
			return
		case <-ticker.C:
			go func() {
				if _, err := r.Run(ctx); err != nil {
					r.logger.Error("Reconciliation run failed", zap.Error(err))
				}
			}()
		}
	}
}
