package snsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"socialpulse/internal/metrics"

	"golang.org/x/time/rate"
)

// Typed failures surfaced by the remote API.
var (
	ErrNotFound      = errors.New("sns api: resource not found")
	ErrQuotaExceeded = errors.New("sns api: quota exceeded")
)

// AccountStatistics is the remote metric snapshot for an account.
type AccountStatistics struct {
	Followers int64
	Views     int64
}

// PostStatistics is the remote metric snapshot for a post.
type PostStatistics struct {
	Views        int64
	Likes        int64
	CommentCount int64
}

// CommentItem is one comment as returned by the remote feed.
type CommentItem struct {
	ExternalID  string
	AuthorRef   string
	Text        string
	LikeCount   int
	PublishedAt time.Time
}

// CommentPage is one page of the comment feed. An empty NextCursor means
// the feed is exhausted.
type CommentPage struct {
	Items      []CommentItem
	NextCursor string
}

// Client defines the remote SNS API operations the collector consumes.
type Client interface {
	GetAccountStatistics(ctx context.Context, accountRef string) (AccountStatistics, error)
	GetPostStatistics(ctx context.Context, postRef string) (PostStatistics, error)
	ListComments(ctx context.Context, postRef, cursor string, pageSize int) (CommentPage, error)
}

// HTTPClient is a bearer-token client for the SNS open API.
type HTTPClient struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

func NewHTTPClient(token string) *HTTPClient {
	return &HTTPClient{
		baseURL:     "https://openapi.snsplatform.example/v1",
		token:       token,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("SNS_API_MAX_ATTEMPTS", 3),
		baseBackoff: time.Duration(getEnvInt("SNS_API_BASE_BACKOFF_MS", 500)) * time.Millisecond,
	}
}

func (c *HTTPClient) auth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *HTTPClient) GetAccountStatistics(ctx context.Context, accountRef string) (AccountStatistics, error) {
	var out AccountStatistics
	if accountRef == "" {
		return out, errors.New("empty account ref")
	}
	u := fmt.Sprintf("%s/accounts/%s/statistics", c.baseURL, url.PathEscape(accountRef))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil { return out, err }
	resp, err := c.doWithRetry(ctx, req, "/accounts/statistics")
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if err := statusError(resp.StatusCode); err != nil {
		return out, err
	}
	var raw struct {
		Data struct {
			Followers int64 `json:"followers"`
			Views     int64 `json:"views"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return out, err
	}
	out = AccountStatistics{Followers: raw.Data.Followers, Views: raw.Data.Views}
	return out, nil
}

func (c *HTTPClient) GetPostStatistics(ctx context.Context, postRef string) (PostStatistics, error) {
	var out PostStatistics
	if postRef == "" {
		return out, errors.New("empty post ref")
	}
	u := fmt.Sprintf("%s/posts/%s/statistics", c.baseURL, url.PathEscape(postRef))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil { return out, err }
	resp, err := c.doWithRetry(ctx, req, "/posts/statistics")
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if err := statusError(resp.StatusCode); err != nil {
		return out, err
	}
	var raw struct {
		Data struct {
			Views        int64 `json:"views"`
			Likes        int64 `json:"likes"`
			CommentCount int64 `json:"comment_count"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return out, err
	}
	out = PostStatistics{Views: raw.Data.Views, Likes: raw.Data.Likes, CommentCount: raw.Data.CommentCount}
	return out, nil
}

// ListComments fetches one page of the comment feed. Pass an empty cursor
// for the first page; the returned NextCursor is opaque.
func (c *HTTPClient) ListComments(ctx context.Context, postRef, cursor string, pageSize int) (CommentPage, error) {
	var out CommentPage
	if postRef == "" {
		return out, errors.New("empty post ref")
	}
	u := fmt.Sprintf("%s/posts/%s/comments?page_size=%d", c.baseURL, url.PathEscape(postRef), clamp(pageSize, 10, 100))
	if cursor != "" {
		u += "&cursor=" + url.QueryEscape(cursor)
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil { return out, err }
	resp, err := c.doWithRetry(ctx, req, "/posts/comments")
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if err := statusError(resp.StatusCode); err != nil {
		return out, err
	}
	var raw struct {
		Data []struct {
			ExternalID  string    `json:"external_id"`
			AuthorRef   string    `json:"author_ref"`
			Text        string    `json:"text"`
			LikeCount   int       `json:"like_count"`
			PublishedAt time.Time `json:"published_at"`
		} `json:"data"`
		NextCursor string `json:"next_cursor"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return out, err
	}
	items := make([]CommentItem, 0, len(raw.Data))
	for _, d := range raw.Data {
		items = append(items, CommentItem{
			ExternalID:  d.ExternalID,
			AuthorRef:   d.AuthorRef,
			Text:        d.Text,
			LikeCount:   d.LikeCount,
			PublishedAt: d.PublishedAt,
		})
	}
	out = CommentPage{Items: items, NextCursor: raw.NextCursor}
	return out, nil
}

// statusError maps remote status codes to the typed error taxonomy.
// 429 is the API-side daily quota signal and is not retried within a run.
func statusError(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrQuotaExceeded
	case code >= 400:
		return fmt.Errorf("sns api status %d", code)
	}
	return nil
}

func clamp(v, min, max int) int { if v < min { return min }; if v > max { return max }; return v }

// doWithRetry retries transient 5xx responses and transport errors with
// exponential backoff. Client errors (4xx) are returned to the caller for
// typed mapping.
func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request, endpoint string) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err == nil {
			if resp.StatusCode >= 500 && resp.StatusCode <= 599 {
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				lastErr = fmt.Errorf("sns api status %d", resp.StatusCode)
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 { wait = d }
					}
				}
				// jitter +/-20%
				jitter := time.Duration(float64(wait) * 0.2)
				if jitter > 0 {
					wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
				}
				metrics.IncAPIRetry(endpoint)
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		metrics.IncAPIRetry(endpoint)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %v", c.maxAttempts, lastErr)
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" { return def }
	if i, err := strconv.Atoi(v); err == nil && i > 0 { return i }
	return def
}
