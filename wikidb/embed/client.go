// Package embed implements a minimal client for the external
// text-embedding service. The model itself is explicitly out of scope;
// this package only drives the HTTP contract: a 60s default timeout,
// capped exponential backoff retries on retryable errors (network, 429,
// 502/503/504, abort), and honoring any Retry-After hint on a 429
// before it counts against the retry budget.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	wikidb "github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/config"
)

// DefaultTimeout is the per-attempt request timeout.
const DefaultTimeout = 60 * time.Second

// DefaultMaxAttempts bounds the total number of HTTP attempts (the
// initial try plus retries) for one embedding request.
const DefaultMaxAttempts = 5

// DefaultBaseBackoff and DefaultMaxBackoff bound the exponential
// backoff applied between retryable failures.
const (
	DefaultBaseBackoff = 250 * time.Millisecond
	DefaultMaxBackoff  = 10 * time.Second
)

// directEndpoint and gatewayEndpoint are the two embedding-service
// entry points: a direct account/token call when credentials are
// configured, otherwise a public gateway.
const (
	directEndpoint  = "https://embed.wikipedia.org.ai/v1/direct/embeddings"
	gatewayEndpoint = "https://embed.wikipedia.org.ai/v1/gateway/embeddings"
)

// Client calls the external embedding service.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	account     string
	token       string
	model       string
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	rng         *rand.Rand
}

// New builds a Client from the resolved process configuration, per
// Config.DirectEmbedCall's direct-vs-gateway selection.
func New(cfg config.Config) *Client {
	endpoint := gatewayEndpoint
	if cfg.DirectEmbedCall() {
		endpoint = directEndpoint
	}
	return &Client{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		endpoint:    endpoint,
		account:     cfg.EmbedAccount,
		token:       cfg.EmbedToken,
		model:       cfg.EmbedModel,
		maxAttempts: DefaultMaxAttempts,
		baseBackoff: DefaultBaseBackoff,
		maxBackoff:  DefaultMaxBackoff,
		rng:         rand.New(rand.NewSource(1)),
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding vector for text, retrying retryable
// failures with capped exponential backoff.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, wikidb.NewError(wikidb.KindInternal, "encode embedding request", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleepBackoff(ctx, attempt, 0); err != nil {
				return nil, err
			}
		}

		vec, retryAfter, retryable, err := c.doRequest(ctx, body)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		if retryAfter > 0 {
			if err := c.sleepFor(ctx, retryAfter); err != nil {
				return nil, err
			}
		}
	}
	return nil, wikidb.NewError(wikidb.KindTransport, "embedding request exhausted retries", lastErr)
}

// doRequest performs one HTTP attempt, classifying the outcome into a
// result, an optional Retry-After duration, and whether the failure is
// retryable.
func (c *Client) doRequest(ctx context.Context, body []byte) ([]float32, time.Duration, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, false, wikidb.NewError(wikidb.KindInternal, "build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.account != "" {
		req.Header.Set("X-Embed-Account", c.account)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, false, wikidb.NewError(wikidb.KindCanceled, "embedding request canceled", ctx.Err())
		}
		// network errors (including client-side timeouts) are retryable.
		return nil, 0, true, wikidb.NewError(wikidb.KindTransport, "embedding request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, 0, true, wikidb.NewError(wikidb.KindTransport, "read embedding response", err)
		}
		var out embedResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, 0, false, wikidb.NewError(wikidb.KindCorrupt, "decode embedding response", err)
		}
		return out.Embedding, 0, false, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		ra := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, ra, true, wikidb.NewError(wikidb.KindRateLimited, "embedding service rate limited", nil)

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, 0, false, wikidb.NewError(wikidb.KindUnauthorized, "embedding service rejected credentials", nil)

	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return nil, 0, true, wikidb.NewError(wikidb.KindTransport, fmt.Sprintf("embedding service returned %d", resp.StatusCode), nil)

	default:
		return nil, 0, false, wikidb.NewError(wikidb.KindTransport, fmt.Sprintf("embedding service returned %d", resp.StatusCode), nil)
	}
}

// parseRetryAfter interprets a Retry-After header as a duration,
// supporting only the delta-seconds form (the embedding service never
// sends an HTTP-date form).
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// sleepBackoff waits the capped exponential backoff for the given
// attempt number (1-indexed retry count), with full jitter: the actual
// wait is drawn uniformly from [0, backoff).
func (c *Client) sleepBackoff(ctx context.Context, attempt int, _ time.Duration) error {
	backoff := c.baseBackoff << uint(attempt-1)
	if backoff > c.maxBackoff || backoff <= 0 {
		backoff = c.maxBackoff
	}
	jittered := time.Duration(c.rng.Int63n(int64(backoff)))
	return c.sleepFor(ctx, jittered)
}

func (c *Client) sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return wikidb.NewError(wikidb.KindCanceled, "embedding request canceled during backoff", ctx.Err())
	}
}
