package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"socialpulse/internal/metrics"
)

// Wire shapes for the external sentiment analyzer. The field names
// (id, sentiment, keywords.positive, keywords.negative) are part of the
// analyzer contract and must not change.

type RequestComment struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type KeywordSet struct {
	Positive []string `json:"positive"`
	Negative []string `json:"negative"`
}

type Request struct {
	Comments []RequestComment `json:"comments"`
	Keywords KeywordSet       `json:"keywords"`
}

type Result struct {
	ID        int64  `json:"id"`
	Sentiment string `json:"sentiment"`
}

type Response struct {
	Results  []Result   `json:"results"`
	Keywords KeywordSet `json:"keywords"`
}

// Analyzer labels comment batches with sentiment and refreshed keywords.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Response, error)
}

// HTTPAnalyzer posts analysis requests to an external HTTP endpoint.
type HTTPAnalyzer struct {
	endpoint    string
	apiKey      string
	httpClient  *http.Client
	maxAttempts int
	baseBackoff time.Duration
}

func NewHTTPAnalyzer(endpoint, apiKey string) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		endpoint:    endpoint,
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxAttempts: envInt("ANALYZER_MAX_ATTEMPTS", 3),
		baseBackoff: time.Duration(envInt("ANALYZER_BASE_BACKOFF_MS", 500)) * time.Millisecond,
	}
}

// Analyze posts the batch, retrying transport errors and 5xx responses
// with exponential backoff up to the attempt cap. 4xx responses are
// returned to the caller unretried.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, req Request) (Response, error) {
	var out Response
	body, err := json.Marshal(req)
	if err != nil {
		return out, err
	}
	backoff := a.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncAPIRetry("/analyze")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return out, ctx.Err()
			}
			backoff *= 2
		}
		resp, err := a.post(ctx, body)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 && resp.StatusCode <= 599 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("analyzer status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			_ = resp.Body.Close()
			return out, fmt.Errorf("analyzer status %d", resp.StatusCode)
		}
		err = json.NewDecoder(resp.Body).Decode(&out)
		_ = resp.Body.Close()
		if err != nil {
			return out, err
		}
		return out, nil
	}
	return out, fmt.Errorf("analyze failed after %d attempts: %v", a.maxAttempts, lastErr)
}

func (a *HTTPAnalyzer) post(ctx context.Context, body []byte) (*http.Response, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		hreq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	return a.httpClient.Do(hreq)
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}
