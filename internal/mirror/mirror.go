package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"newscache/internal/model"
	"newscache/internal/store"

	"go.uber.org/zap"
)

const defaultFetchTimeout = 30 * time.Second

// FetchError means the source image could not be downloaded. Mirror failures
// are logged and skipped by callers, never escalated to the article write.
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s returned status %d", e.URL, e.StatusCode)
}

// Path derives the object-store path for a mirrored image. It is a pure
// function of its inputs: images/{articleUID}/{role}/{filename}, where
// filename is the last path segment of the source URL, or "image" when the
// URL has no path segment.
func Path(articleUID string, role model.ImageRole, sourceURL string) string {
	filename := "image"
	if u, err := url.Parse(sourceURL); err == nil {
		if seg := path.Base(u.Path); seg != "" && seg != "." && seg != "/" {
			filename = seg
		}
	}
	return fmt.Sprintf("images/%s/%s/%s", articleUID, role, filename)
}

// Mirror copies article images into the object store exactly once each and
// tracks them as asset records.
type Mirror struct {
	objects store.ObjectStore
	records store.RecordStore
	httpc   *http.Client
	logger  *zap.Logger
}

func NewMirror(objects store.ObjectStore, records store.RecordStore, logger *zap.Logger) *Mirror {
	return &Mirror{
		objects: objects,
		records: records,
		httpc:   &http.Client{Timeout: defaultFetchTimeout},
		logger:  logger,
	}
}

// EnsureMirrored copies the image to its deterministic path unless an object
// already exists there, in which case it returns immediately without touching
// the source. The reconciliation job calls this for every tracked article on
// every run, so the existence check is what keeps mirroring cheap.
func (m *Mirror) EnsureMirrored(ctx context.Context, articleUID string, role model.ImageRole, img model.Image) (string, error) {
	p := Path(articleUID, role, img.URL)

	exists, err := m.objects.Exists(ctx, p)
	if err != nil {
		return "", err
	}
	if exists {
		return p, nil
	}

	data, contentType, err := m.fetch(ctx, img)
	if err != nil {
		return "", err
	}

	if err := m.objects.Put(ctx, p, data, contentType); err != nil {
		return "", err
	}

	rec := &model.AssetRecord{
		ArticleUID:  articleUID,
		Role:        role,
		SourceURL:   img.URL,
		MirrorPath:  p,
		MirroredAt:  time.Now(),
		ByteSize:    int64(len(data)),
		ContentType: contentType,
	}
	if err := m.records.PutAsset(ctx, rec); err != nil {
		return "", err
	}

	return p, nil
}

// MirrorArticle mirrors every present image role. A failure on one role never
// blocks the others; failures are logged and counted, nothing more.
func (m *Mirror) MirrorArticle(ctx context.Context, article *model.Article) int {
	failed := 0
	for _, role := range model.ImageRoles() {
		img, ok := article.Images[role]
		if !ok {
			continue
		}
		if _, err := m.EnsureMirrored(ctx, article.UID, role, img); err != nil {
			m.logger.Warn("Failed to mirror image",
				zap.String("article_uid", article.UID),
				zap.String("role", string(role)),
				zap.String("url", img.URL),
				zap.Error(err))
			failed++
		}
	}
	return failed
}

// Delete removes every asset record for the article and best-effort deletes
// each mirrored object. One object-delete failure does not stop the rest, nor
// the removal of the records.
func (m *Mirror) Delete(ctx context.Context, articleUID string) error {
	records, err := m.records.ListAssets(ctx, articleUID)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if err := m.objects.Delete(ctx, rec.MirrorPath); err != nil {
			m.logger.Warn("Failed to delete mirrored object",
				zap.String("article_uid", articleUID),
				zap.String("path", rec.MirrorPath),
				zap.Error(err))
		}
	}

	return m.records.DeleteAssets(ctx, articleUID)
}

func (m *Mirror) fetch(ctx context.Context, img model.Image) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := m.httpc.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &FetchError{URL: img.URL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = img.ContentType
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}
