// Package backend is the HTTP client for the content backend that scrapes,
// summarizes, fact-checks and scores articles.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ehrlich-b/newsroom/internal/article"
	"github.com/ehrlich-b/newsroom/internal/logger"
)

// TokenHeader carries the processing token on admin-only backend endpoints.
const TokenHeader = "X-Processing-Token"

const maxBody = 8 << 20

var (
	ErrNotConfigured = errors.New("backend API URL is not configured")
	ErrNotFound      = errors.New("not found")
)

// StatusError is returned for non-2xx backend responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("backend HTTP %d: %s", e.Code, body)
}

// Client talks to the content backend.
type Client struct {
	base    string
	client  *http.Client
	retries int
	backoff time.Duration
}

// New creates a client for base (no trailing slash). An empty base yields a
// client whose calls fail with ErrNotConfigured.
func New(base string, timeout time.Duration, retries int) *Client {
	return &Client{
		base:    strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: timeout},
		retries: retries,
		backoff: 500 * time.Millisecond,
	}
}

func (c *Client) BaseURL() string  { return c.base }
func (c *Client) Configured() bool { return c.base != "" }

// Page selects a window of the article list. Zero values are omitted from
// the request so the backend applies its own defaults; HasOffset sends the
// offset even when it is zero.
type Page struct {
	Limit     int
	Offset    int
	HasOffset bool
}

func (p Page) query() string {
	v := url.Values{}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 || p.HasOffset {
		v.Set("offset", strconv.Itoa(p.Offset))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// Articles returns the newest articles, newest first.
func (c *Client) Articles(ctx context.Context, p Page) ([]article.Article, error) {
	body, err := c.get(ctx, "/api/articles"+p.query())
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return article.DecodeList(body, article.KindList)
}

// ArticleBySlug finds an article by slug in the full list, falling back to
// the backend details endpoint.
func (c *Client) ArticleBySlug(ctx context.Context, slug string) (article.Article, error) {
	list, err := c.Articles(ctx, Page{})
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return article.Article{}, err
		}
		logger.Warn("article list lookup failed, trying details", "slug", slug, "err", err)
	}
	for _, a := range list {
		if a.Slug == slug {
			return a, nil
		}
	}

	body, err := c.get(ctx, "/api/articles/"+url.PathEscape(slug)+"/details")
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return article.Article{}, ErrNotFound
		}
		return article.Article{}, fmt.Errorf("article details: %w", err)
	}
	a, err := article.Decode(body, article.DecodeOptions{Kind: article.KindDetail, Slug: slug})
	if err != nil {
		return article.Article{}, err
	}
	return a, nil
}

// Search runs a full-text search. Queries shorter than two characters return
// no results without contacting the backend.
func (c *Client) Search(ctx context.Context, q string) ([]article.Article, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < 2 {
		return nil, nil
	}
	body, err := c.get(ctx, "/api/articles/search?q="+url.QueryEscape(q))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return article.DecodeList(body, article.KindList)
}

// Similar returns the backend's similarity recommendations for an article.
func (c *Client) Similar(ctx context.Context, articleID string) ([]article.Article, error) {
	body, err := c.get(ctx, "/api/articles/"+url.PathEscape(articleID)+"/similar")
	if err != nil {
		return nil, fmt.Errorf("similar articles: %w", err)
	}
	return article.DecodeList(body, article.KindSimilar)
}

// URLOrientations scores the political orientation of each source URL.
func (c *Client) URLOrientations(ctx context.Context, urls []string) (map[string]article.Orientation, error) {
	out := make(map[string]article.Orientation)
	if len(urls) == 0 {
		return out, nil
	}
	payload, err := json.Marshal(map[string][]string{"urls": urls})
	if err != nil {
		return nil, err
	}
	status, body, err := c.do(ctx, http.MethodPost, "/api/url-orientations", payload, nil)
	if err != nil {
		return nil, fmt.Errorf("url orientations: %w", err)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("url orientations: %w", &StatusError{Code: status, Body: string(body)})
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("url orientations: %w", err)
	}
	for u, v := range raw {
		var o article.Orientation
		if err := json.Unmarshal(v, &o); err != nil || o.Orientation == "" {
			continue
		}
		out[u] = o
	}
	return out, nil
}

// Trigger starts a processing job. The raw status and body are returned so
// callers can relay them.
func (c *Client) Trigger(ctx context.Context, job Job, token string) (int, []byte, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode job: %w", err)
	}
	return c.do(ctx, http.MethodPost, job.Path, payload, http.Header{TokenHeader: {token}})
}

// Ping checks that the backend answers the article list.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "/api/articles?limit=1")
	return err
}

// get performs a GET, retrying transient failures: the backend sleeps when
// idle and answers 502-504 or refuses connections while it starts.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
		status, body, err := c.do(ctx, http.MethodGet, path, nil, nil)
		switch {
		case err != nil:
			lastErr = err
			if !transient(err) || ctx.Err() != nil {
				return nil, err
			}
		case status >= 200 && status <= 299:
			return body, nil
		default:
			lastErr = &StatusError{Code: status, Body: string(body)}
			if status != http.StatusBadGateway && status != http.StatusServiceUnavailable && status != http.StatusGatewayTimeout {
				return nil, lastErr
			}
		}
		logger.Debug("backend request failed, retrying", "path", path, "attempt", attempt+1, "err", lastErr)
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, header http.Header) (int, []byte, error) {
	if c.base == "" {
		return 0, nil, ErrNotConfigured
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
