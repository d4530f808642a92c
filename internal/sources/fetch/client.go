package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"congreso/internal/config"
)

// Response is the raw body of a successful request plus its final URL.
type Response struct {
	Status   int
	Body     []byte
	FinalURL string
}

type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	userAgent   string
	log         zerolog.Logger
	sleep       func(time.Duration)
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	rps := cfg.FetchRateLimitRPS
	if rps <= 0 {
		rps = 1
	}
	attempts := cfg.FetchMaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	return &Client{
		httpClient:  &http.Client{Timeout: time.Duration(cfg.FetchTimeoutMs) * time.Millisecond},
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		maxAttempts: attempts,
		userAgent:   "congreso/1.0 (+https://github.com/congreso)",
		log:         log,
		sleep:       time.Sleep,
	}
}

func (c *Client) Get(ctx context.Context, rawURL string, params map[string]string) (Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Response{}, err
	}
	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return c.do(ctx, http.MethodGet, u.String(), "", nil)
}

// Post sends body with the given content type, e.g. a SOAP envelope.
func (c *Client) Post(ctx context.Context, rawURL, contentType string, body []byte, headers map[string]string) (Response, error) {
	h := map[string]string{"Content-Type": contentType}
	for k, v := range headers {
		h[k] = v
	}
	return c.do(ctx, http.MethodPost, rawURL, string(body), h)
}

func (c *Client) do(ctx context.Context, method, target, body string, headers map[string]string) (Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, err
		}

		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return Response{}, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}
			lastErr = err
			c.log.Debug().Err(err).Str("url", target).Int("attempt", attempt).Msg("fetch failed")
			continue
		}

		blob, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < c.maxAttempts {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				c.log.Debug().Int("status", resp.StatusCode).Str("url", target).Dur("backoff", backoff).Msg("retrying")
				c.sleep(backoff)
				lastErr = fmt.Errorf("status %d", resp.StatusCode)
				continue
			}
			return Response{Status: resp.StatusCode, Body: blob}, fmt.Errorf("fetch %s: status=%d body=%s", target, resp.StatusCode, truncate(string(blob), 200))
		}

		final := target
		if resp.Request != nil && resp.Request.URL != nil {
			final = resp.Request.URL.String()
		}
		return Response{Status: resp.StatusCode, Body: blob, FinalURL: final}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("request failed")
	}
	return Response{}, fmt.Errorf("fetch %s: %w", target, lastErr)
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
