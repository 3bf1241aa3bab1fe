package model

import (
	"encoding/json"
	"time"
)

type ImageRole string

const (
	RoleBanner  ImageRole = "banner"
	RolePrimary ImageRole = "primary"
	RoleMobile  ImageRole = "mobile"
)

// ImageRoles returns every role in a stable order, for deterministic iteration.
func ImageRoles() []ImageRole {
	return []ImageRole{RoleBanner, RolePrimary, RoleMobile}
}

// Image is a single image reference embedded in an article.
// Size and content type are hints from the CMS and may be absent.
type Image struct {
	URL         string `json:"url"`
	ByteSize    int64  `json:"byte_size,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// Article is the normalized form of an upstream CMS entry.
// HostedURL is the content identifier (a URL-path-shaped string) and is the
// cache key; UID is the opaque identifier assigned by the CMS.
type Article struct {
	UID         string              `json:"uid"`
	Title       string              `json:"title"`
	Subtitle    string              `json:"subtitle,omitempty"`
	Author      string              `json:"author,omitempty"`
	HTMLContent string              `json:"html_content,omitempty"`
	Date        time.Time           `json:"date"`
	HostedURL   string              `json:"hosted_url"`
	Images      map[ImageRole]Image `json:"images,omitempty"`
	Version     int                 `json:"version,omitempty"`
	CreatedAt   string              `json:"created_at,omitempty"`
	UpdatedAt   string              `json:"updated_at,omitempty"`
}

// CacheEntry wraps an Article for storage. RawPayload holds the serialized
// Article verbatim so any downstream view can be re-derived without another
// upstream query. Writes are full replacements, never partial merges.
type CacheEntry struct {
	Identifier string          `json:"identifier"`
	ExpiresAt  time.Time       `json:"expires_at"`
	RawPayload json.RawMessage `json:"raw_payload"`
}

// NewCacheEntry builds an entry for the article, keyed by its hosted URL.
func NewCacheEntry(article *Article, expiresAt time.Time) (*CacheEntry, error) {
	payload, err := json.Marshal(article)
	if err != nil {
		return nil, err
	}
	return &CacheEntry{
		Identifier: article.HostedURL,
		ExpiresAt:  expiresAt,
		RawPayload: payload,
	}, nil
}

// Article decodes the stored payload back into an Article.
func (e *CacheEntry) Article() (*Article, error) {
	var a Article
	if err := json.Unmarshal(e.RawPayload, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Fresh reports whether the entry is still usable at the given instant.
func (e *CacheEntry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// AssetRecord tracks one mirrored image, keyed by (ArticleUID, Role).
type AssetRecord struct {
	ArticleUID  string    `json:"article_uid"`
	Role        ImageRole `json:"role"`
	SourceURL   string    `json:"source_url"`
	MirrorPath  string    `json:"mirror_path"`
	MirroredAt  time.Time `json:"mirrored_at"`
	ByteSize    int64     `json:"byte_size,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
}
