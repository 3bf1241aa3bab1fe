package mirror

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"newscache/internal/model"
	"newscache/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStores(t *testing.T) (*store.RedisRecordStore, *store.BadgerObjectStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	records, err := store.NewRedisRecordStore(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(records.Close)

	objects, err := store.NewBadgerObjectStore("")
	require.NoError(t, err)
	t.Cleanup(objects.Close)

	return records, objects
}

func TestPath(t *testing.T) {
	assert.Equal(t, "images/abc123/banner/pic.jpg",
		Path("abc123", model.RoleBanner, "https://host/path/pic.jpg"))

	// Deterministic: same inputs, same path
	assert.Equal(t,
		Path("abc123", model.RoleBanner, "https://host/path/pic.jpg"),
		Path("abc123", model.RoleBanner, "https://host/path/pic.jpg"))

	// A URL with no path segment falls back to "image"
	assert.Equal(t, "images/abc123/banner/image",
		Path("abc123", model.RoleBanner, "https://host"))
	assert.Equal(t, "images/abc123/banner/image",
		Path("abc123", model.RoleBanner, "https://host/"))
}

func TestEnsureMirrored_Idempotent(t *testing.T) {
	records, objects := newTestStores(t)

	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "image/png")
		fmt.Fprint(w, "png bytes")
	}))
	defer srv.Close()

	m := NewMirror(objects, records, zap.NewNop())
	ctx := context.Background()
	img := model.Image{URL: srv.URL + "/assets/pic.png"}

	path1, err := m.EnsureMirrored(ctx, "blt1", model.RoleBanner, img)
	require.NoError(t, err)
	assert.Equal(t, "images/blt1/banner/pic.png", path1)

	// Second call must not touch the source again
	path2, err := m.EnsureMirrored(ctx, "blt1", model.RoleBanner, img)
	require.NoError(t, err)
	assert.Equal(t, path1, path2)
	assert.Equal(t, int64(1), fetches.Load(), "source should be fetched at most once")

	data, contentType, err := objects.Get(ctx, path1)
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))
	assert.Equal(t, "image/png", contentType)

	recs, err := records.ListAssets(ctx, "blt1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, path1, recs[0].MirrorPath)
	assert.Equal(t, img.URL, recs[0].SourceURL)
	assert.Equal(t, int64(len("png bytes")), recs[0].ByteSize)
}

func TestEnsureMirrored_FetchFailure(t *testing.T) {
	records, objects := newTestStores(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	m := NewMirror(objects, records, zap.NewNop())
	ctx := context.Background()

	_, err := m.EnsureMirrored(ctx, "blt1", model.RoleBanner, model.Image{URL: srv.URL + "/pic.jpg"})

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)

	// Nothing was stored
	exists, err := objects.Exists(ctx, "images/blt1/banner/pic.jpg")
	require.NoError(t, err)
	assert.False(t, exists)
	recs, err := records.ListAssets(ctx, "blt1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMirrorArticle_PartialFailureIsolation(t *testing.T) {
	records, objects := newTestStores(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.jpg" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	m := NewMirror(objects, records, zap.NewNop())
	article := &model.Article{
		UID: "blt1",
		Images: map[model.ImageRole]model.Image{
			model.RoleBanner: {URL: srv.URL + "/banner.jpg"},
			model.RoleMobile: {URL: srv.URL + "/broken.jpg"},
		},
	}

	failed := m.MirrorArticle(context.Background(), article)
	assert.Equal(t, 1, failed)

	// The failing mobile role did not block the banner
	exists, err := objects.Exists(context.Background(), "images/blt1/banner/banner.jpg")
	require.NoError(t, err)
	assert.True(t, exists)
}

// failingObjects wraps an object store and fails deletes on one path.
type failingObjects struct {
	store.ObjectStore
	failPath string
}

func (f *failingObjects) Delete(ctx context.Context, path string) error {
	if path == f.failPath {
		return fmt.Errorf("simulated delete failure")
	}
	return f.ObjectStore.Delete(ctx, path)
}

func TestDelete_BestEffort(t *testing.T) {
	records, objects := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, objects.Put(ctx, "images/blt1/banner/a.jpg", []byte("a"), "image/jpeg"))
	require.NoError(t, objects.Put(ctx, "images/blt1/mobile/b.jpg", []byte("b"), "image/jpeg"))
	require.NoError(t, records.PutAsset(ctx, &model.AssetRecord{
		ArticleUID: "blt1", Role: model.RoleBanner, MirrorPath: "images/blt1/banner/a.jpg",
	}))
	require.NoError(t, records.PutAsset(ctx, &model.AssetRecord{
		ArticleUID: "blt1", Role: model.RoleMobile, MirrorPath: "images/blt1/mobile/b.jpg",
	}))

	m := NewMirror(&failingObjects{ObjectStore: objects, failPath: "images/blt1/banner/a.jpg"}, records, zap.NewNop())

	// One object-delete failure must not stop the rest, nor the record cleanup
	require.NoError(t, m.Delete(ctx, "blt1"))

	exists, err := objects.Exists(ctx, "images/blt1/mobile/b.jpg")
	require.NoError(t, err)
	assert.False(t, exists, "the deletable object should be gone")

	recs, err := records.ListAssets(ctx, "blt1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
