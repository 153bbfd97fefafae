package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/david/launchpad/internal/logger"
	"golang.org/x/time/rate"
)

const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.9,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.5"

	defaultTimeout    = 15 * time.Second
	defaultMaxRetries = 2
)

// HTTPFetcher provides per-domain rate limiting, retries and a bounded timeout.
// It serves feeds and JSON APIs.
type HTTPFetcher struct {
	client   *http.Client
	cfg      FetchConfig
	log      logger.Logger
	mu       sync.Mutex
	limiters map[string]*rate.Limiter // per host

	// backoff returns the wait before retry attempt n (n >= 1).
	backoff func(attempt int) time.Duration
}

// NewHTTPFetcher builds a fetcher from a source's fetch settings.
func NewHTTPFetcher(cfg FetchConfig, log logger.Logger) *HTTPFetcher {
	if log == nil {
		log = logger.NewNop()
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = defaultMaxRetries
	case cfg.MaxRetries < 0: // retries disabled
		cfg.MaxRetries = 0
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = acceptLanguage
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:       timeout,
			Transport:     transport,
			CheckRedirect: checkRedirect,
		},
		cfg:      cfg,
		log:      log,
		limiters: make(map[string]*rate.Limiter),
		backoff:  exponentialBackoff,
	}
}

// exponentialBackoff: 0.5s, 1s, 2s + jitter
func exponentialBackoff(attempt int) time.Duration {
	base := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
	return base + time.Duration(rand.Intn(100))*time.Millisecond
}

// limiter returns the limiter for a host, or nil when the source sets no
// request delay.
func (f *HTTPFetcher) limiter(host string) *rate.Limiter {
	interval := f.cfg.interval()
	if interval <= 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(interval), 1)
		f.limiters[host] = l
	}
	return l
}

// checkRedirect limits redirects and keeps them on http(s).
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if req.URL == nil {
		return fmt.Errorf("invalid redirect URL")
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect scheme blocked")
	}
	return nil
}

// shouldRetry determines if an error or status code should trigger a retry
func shouldRetry(err error, statusCode int) bool {
	if err != nil {
		var netErr interface{ Timeout() bool }
		return errors.As(err, &netErr) && netErr.Timeout()
	}

	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Fetch implements the Fetcher interface with rate limiting and retries.
// The caller closes the returned body.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*FetchedDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q", rawURL)
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := f.backoff(attempt)
			f.log.Debug("retrying request",
				logger.String("url", rawURL),
				logger.Int("attempt", attempt),
				logger.Duration("wait", wait),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		if l := f.limiter(u.Host); l != nil {
			if err := l.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", acceptHeader)
		req.Header.Set("Accept-Language", f.cfg.AcceptLanguage)

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if shouldRetry(err, 0) {
				continue
			}
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return &FetchedDocument{
				URL:         rawURL,
				StatusCode:  resp.StatusCode,
				ContentType: resp.Header.Get("Content-Type"),
				Body:        resp.Body,
				FetchedAt:   time.Now(),
				Headers:     resp.Header,
			}, nil
		}

		resp.Body.Close()
		if shouldRetry(nil, resp.StatusCode) {
			lastErr = fmt.Errorf("status code %d", resp.StatusCode)
			continue
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

