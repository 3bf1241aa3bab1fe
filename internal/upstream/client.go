package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"newscache/internal/model"

	"go.uber.org/zap"
)

var (
	// ErrMissingCredentials means the client was built without the API key or
	// access token. It is a configuration problem and is never retried.
	ErrMissingCredentials = errors.New("upstream: missing api key or access token")

	// ErrNotFound means the CMS has no entry for the requested identifier.
	// Callers must treat this as terminal, not as a transient failure.
	ErrNotFound = errors.New("upstream: article not found")
)

// StatusError is returned when the CMS answers outside the 2xx range.
// Body carries diagnostic text for logs only and is never parsed further.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

const (
	// DefaultBaseURL is the CMS entries endpoint for the news article type.
	DefaultBaseURL = "https://cdn.contentstack.io/v3/content_types/news_article/entries/"

	defaultEnvironment = "live"
	defaultLocale      = "en-us"
	defaultTimeout     = 15 * time.Second
	userAgent          = "contentstack-web/3.15.0"

	// maxDiagnosticBody caps how much of an error response we keep for logs.
	maxDiagnosticBody = 2048
)

// entryFields is the field-selection list sent with listing queries.
var entryFields = []string{
	"uid", "title", "subtitle", "author", "date", "url", "html_content",
	"image", "mobile_image", "banner_image", "_version", "created_at", "updated_at",
}

// Config holds the connection settings for the CMS read API.
type Config struct {
	APIKey      string
	AccessToken string
	BaseURL     string
	Environment string
	Locale      string
	Timeout     time.Duration
}

// Client issues read queries against the CMS and normalizes the responses.
type Client struct {
	cfg    Config
	httpc  *http.Client
	logger *zap.Logger
}

// NewClient validates the credentials and builds a client. A missing key or
// token fails here, before any network call is made.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" || cfg.AccessToken == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Environment == "" {
		cfg.Environment = defaultEnvironment
	}
	if cfg.Locale == "" {
		cfg.Locale = defaultLocale
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// FetchByID looks up the single entry whose hosted URL matches exactly.
// Returns ErrNotFound when the CMS has no matching entry.
func (c *Client) FetchByID(ctx context.Context, hostedURL string) (*model.Article, error) {
	filter, err := json.Marshal(map[string]string{"url.hosted_url": hostedURL})
	if err != nil {
		return nil, err
	}

	q := c.baseQuery()
	q.Set("query", string(filter))

	entries, err := c.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}

	return normalizeEntry(entries[0])
}

// FetchRecent lists up to limit entries ordered by publish date, newest first.
// Entries that fail to normalize are logged and skipped rather than failing
// the whole listing.
func (c *Client) FetchRecent(ctx context.Context, limit int) ([]*model.Article, error) {
	q := c.baseQuery()
	q.Set("desc", "date")
	q.Set("include_count", "true")
	q.Set("limit", strconv.Itoa(limit))
	for _, f := range entryFields {
		q.Add("only[BASE][]", f)
	}

	entries, err := c.query(ctx, q)
	if err != nil {
		return nil, err
	}

	articles := make([]*model.Article, 0, len(entries))
	for _, e := range entries {
		a, err := normalizeEntry(e)
		if err != nil {
			c.logger.Warn("Skipping malformed entry",
				zap.String("uid", e.UID),
				zap.Error(err))
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}

func (c *Client) baseQuery() url.Values {
	q := url.Values{}
	q.Set("environment", c.cfg.Environment)
	q.Set("locale", c.cfg.Locale)
	return q
}

func (c *Client) query(ctx context.Context, q url.Values) ([]wireEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("api_key", c.cfg.APIKey)
	req.Header.Set("access_token", c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-user-agent", userAgent)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDiagnosticBody))
		c.logger.Error("Upstream request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Entries []wireEntry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding upstream response: %w", err)
	}
	return payload.Entries, nil
}

// wireImage mirrors the nested image object on the wire. All fields besides
// the URL are optional; file_size arrives as a string.
type wireImage struct {
	UID         string `json:"uid"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	FileSize    string `json:"file_size"`
	ContentType string `json:"content_type"`
}

type wireEntry struct {
	UID         string     `json:"uid"`
	Title       string     `json:"title"`
	Subtitle    string     `json:"subtitle"`
	Author      string     `json:"author"`
	BannerImage *wireImage `json:"banner_image"`
	Image       *wireImage `json:"image"`
	MobileImage *wireImage `json:"mobile_image"`
	HTMLContent string     `json:"html_content"`
	Date        string     `json:"date"`
	URL         struct {
		HostedURL string `json:"hosted_url"`
	} `json:"url"`
	Version   int    `json:"_version"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// normalizeEntry converts the wire shape into the internal Article. Absent
// image objects normalize to "no image for that role", never to an error.
func normalizeEntry(e wireEntry) (*model.Article, error) {
	var date time.Time
	if strings.TrimSpace(e.Date) != "" {
		var err error
		date, err = time.Parse(time.RFC3339, e.Date)
		if err != nil {
			return nil, fmt.Errorf("parsing publish date %q: %w", e.Date, err)
		}
	}

	a := &model.Article{
		UID:         e.UID,
		Title:       e.Title,
		Subtitle:    e.Subtitle,
		Author:      e.Author,
		HTMLContent: e.HTMLContent,
		Date:        date,
		HostedURL:   e.URL.HostedURL,
		Version:     e.Version,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}

	addImage(a, model.RoleBanner, e.BannerImage)
	addImage(a, model.RolePrimary, e.Image)
	addImage(a, model.RoleMobile, e.MobileImage)

	return a, nil
}

func addImage(a *model.Article, role model.ImageRole, wi *wireImage) {
	if wi == nil || wi.URL == "" {
		return
	}
	img := model.Image{URL: wi.URL, ContentType: wi.ContentType}
	if wi.FileSize != "" {
		if n, err := strconv.ParseInt(wi.FileSize, 10, 64); err == nil {
			img.ByteSize = n
		}
	}
	if a.Images == nil {
		a.Images = make(map[model.ImageRole]model.Image)
	}
	a.Images[role] = img
}
