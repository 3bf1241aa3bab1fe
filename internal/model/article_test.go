package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheEntry_Roundtrip(t *testing.T) {
	article := &Article{
		UID:       "blt1",
		Title:     "Launch Day",
		HostedURL: "/news-1",
		Images: map[ImageRole]Image{
			RoleBanner: {URL: "https://img.example.com/pic.jpg", ByteSize: 1234},
		},
	}

	expires := time.Now().Add(time.Hour)
	entry, err := NewCacheEntry(article, expires)
	require.NoError(t, err)

	assert.Equal(t, "/news-1", entry.Identifier, "entries are keyed by the hosted URL")

	got, err := entry.Article()
	require.NoError(t, err)
	assert.Equal(t, article, got)
}

func TestCacheEntry_Fresh(t *testing.T) {
	expires := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	entry := &CacheEntry{Identifier: "/news-1", ExpiresAt: expires}

	assert.True(t, entry.Fresh(expires.Add(-time.Second)))
	assert.False(t, entry.Fresh(expires), "an entry expiring now is already stale")
	assert.False(t, entry.Fresh(expires.Add(time.Second)))
}
