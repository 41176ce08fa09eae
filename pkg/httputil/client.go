package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/wonny/rollup/pkg/config"
	"github.com/wonny/rollup/pkg/logger"
	"github.com/wonny/rollup/pkg/redis"
)

// DefaultMaxBodySize caps Fetch responses (32 MiB)
const DefaultMaxBodySize = 32 << 20

// UserAgent is sent with every request
const UserAgent = "rollup/1 (+daily series refresh)"

var (
	// ErrBodyTooLarge is returned when a response exceeds the body limit
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrNotModified is returned when the server answers a conditional GET with 304
	ErrNotModified = errors.New("not modified since last fetch")
)

// StatusError is returned by Fetch for non-2xx responses
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Backoff controls retries of transport errors, 5xx and 429 responses
type Backoff struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
}

// delay returns the wait before retry n (0-based), doubling up to Max
func (b Backoff) delay(n int) time.Duration {
	d := b.Initial
	for i := 0; i < n && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	return d
}

// validator remembers what the server told us about the last good response
type validator struct {
	etag         string
	lastModified string
}

// Client downloads remote documents for the source refresh.
// It retries with backoff, honours Retry-After, waits on the shared redis
// rate limit and sends conditional requests once a URL has been fetched.
// ⭐ SSOT: 모든 HTTP 요청은 이 클라이언트를 통해서만 수행
type Client struct {
	httpClient  *http.Client
	logger      *logger.Logger
	backoff     Backoff
	limiter     *redis.Limiter
	limit       redis.Limit
	maxBodySize int64

	mu         sync.Mutex
	validators map[string]validator
}

// New creates a client; SOURCE_TIMEOUT bounds each attempt
// ⭐ SSOT: http.Client 인스턴스는 여기서만 생성
func New(cfg *config.Config, log *logger.Logger) *Client {
	timeout := cfg.Source.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		logger:      log,
		backoff:     Backoff{MaxRetries: 3, Initial: time.Second, Max: 10 * time.Second},
		maxBodySize: DefaultMaxBodySize,
		validators:  make(map[string]validator),
	}
}

// WithRetry sets the retry count and first delay
func (c *Client) WithRetry(maxRetries int, initialDelay time.Duration) *Client {
	c.backoff.MaxRetries = maxRetries
	c.backoff.Initial = initialDelay
	if c.backoff.Max < initialDelay {
		c.backoff.Max = initialDelay
	}
	return c
}

// DisableRetry makes every Fetch a single attempt
func (c *Client) DisableRetry() *Client {
	c.backoff.MaxRetries = 0
	return c
}

// WithRateLimiter makes Fetch wait on limiter before the first attempt
func (c *Client) WithRateLimiter(limiter *redis.Limiter, cfg redis.Limit) *Client {
	c.limiter = limiter
	c.limit = cfg
	return c
}

// WithMaxBodySize sets the Fetch body limit
func (c *Client) WithMaxBodySize(n int64) *Client {
	if n > 0 {
		c.maxBodySize = n
	}
	return c
}

// Forget drops the cached validators so the next Fetch of url is unconditional
func (c *Client) Forget(url string) {
	c.mu.Lock()
	delete(c.validators, url)
	c.mu.Unlock()
}

// Fetch GETs url and returns the body and content type.
// Non-2xx responses return *StatusError; a 304 returns ErrNotModified.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.limit); err != nil {
			return nil, "", fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	start := time.Now()
	log := c.logger.WithField("url", url)

	for attempt := 0; ; attempt++ {
		body, contentType, wait, err := c.attempt(ctx, url)
		if wait == 0 || attempt >= c.backoff.MaxRetries {
			if err != nil && !errors.Is(err, ErrNotModified) {
				log.WithError(err).WithField("attempts", attempt+1).Error("HTTP fetch failed")
			} else {
				log.WithFields(logger.Fields{
					"bytes":    len(body),
					"duration": time.Since(start),
					"attempts": attempt + 1,
				}).Debug("HTTP fetch completed")
			}
			return body, contentType, err
		}

		if wait < 0 {
			wait = c.backoff.delay(attempt)
		}
		log.WithFields(logger.Fields{
			"attempt": attempt + 1,
			"delay":   wait,
			"error":   err.Error(),
		}).Warn("Retrying HTTP fetch")

		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(wait):
		}
	}
}

// attempt performs one request. wait is 0 when the outcome is final,
// negative for "retry with backoff" and positive for a server-given delay.
func (c *Client) attempt(ctx context.Context, url string) ([]byte, string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", 0, fmt.Errorf("failed to create GET request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	c.mu.Lock()
	v, known := c.validators[url]
	c.mu.Unlock()
	if known {
		if v.etag != "" {
			req.Header.Set("If-None-Match", v.etag)
		}
		if v.lastModified != "" {
			req.Header.Set("If-Modified-Since", v.lastModified)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", 0, ctx.Err()
		}
		return nil, "", -1, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return nil, "", 0, ErrNotModified
	case IsRetryableError(resp.StatusCode):
		drain(resp.Body)
		wait := retryAfter(resp.Header.Get("Retry-After"), time.Now())
		if wait > c.backoff.Max {
			wait = c.backoff.Max
		}
		if wait <= 0 {
			wait = -1
		}
		return nil, "", wait, &StatusError{URL: url, StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		drain(resp.Body)
		return nil, "", 0, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, "", -1, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, "", 0, fmt.Errorf("%w (limit %d bytes)", ErrBodyTooLarge, c.maxBodySize)
	}

	etag, lastModified := resp.Header.Get("ETag"), resp.Header.Get("Last-Modified")
	c.mu.Lock()
	if etag != "" || lastModified != "" {
		c.validators[url] = validator{etag: etag, lastModified: lastModified}
	} else {
		delete(c.validators, url)
	}
	c.mu.Unlock()

	return body, resp.Header.Get("Content-Type"), 0, nil
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 4096))
}

// retryAfter parses a Retry-After header (seconds or HTTP date); 0 when absent
func retryAfter(h string, now time.Time) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// IsRetryableError reports whether a status is worth retrying (5xx and 429)
func IsRetryableError(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
