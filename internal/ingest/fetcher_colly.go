package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/david/launchpad/internal/logger"
	"github.com/gocolly/colly/v2"
)

// CollyFetcher implements Fetcher for HTML listing pages using Colly.
// Each Fetch runs a synchronous collector bound to the caller's context.
type CollyFetcher struct {
	UserAgent      string
	AcceptLanguage string
	MaxRetries     int
	RequestTimeout time.Duration
	DomainDelay    time.Duration
	MaxBodySize    int // bytes, 0 = unlimited
	RetryWait      time.Duration

	log logger.Logger
}

// NewCollyFetcher creates a CollyFetcher from a source's fetch settings.
func NewCollyFetcher(cfg FetchConfig, log logger.Logger) *CollyFetcher {
	if log == nil {
		log = logger.NewNop()
	}
	f := &CollyFetcher{
		UserAgent:      userAgent,
		AcceptLanguage: acceptLanguage,
		MaxRetries:     defaultMaxRetries,
		RequestTimeout: defaultTimeout,
		DomainDelay:    cfg.interval(),
		MaxBodySize:    10 * 1024 * 1024, // 10MB
		RetryWait:      time.Second,
		log:            log,
	}
	if cfg.AcceptLanguage != "" {
		f.AcceptLanguage = cfg.AcceptLanguage
	}
	if cfg.TimeoutSeconds > 0 {
		f.RequestTimeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	switch {
	case cfg.MaxRetries > 0:
		f.MaxRetries = cfg.MaxRetries
	case cfg.MaxRetries < 0:
		f.MaxRetries = 0
	}
	return f
}

// buildCollector creates a configured Colly collector.
func (f *CollyFetcher) buildCollector(ctx context.Context, host string) *colly.Collector {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.AllowedDomains(host),
		colly.DetectCharset(),
		colly.Headers(map[string]string{
			"Accept":          acceptHeader,
			"Accept-Language": f.AcceptLanguage,
		}),
	)

	if f.DomainDelay > 0 {
		// Limit only errors on an empty glob.
		_ = c.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Parallelism: 1,
			Delay:       f.DomainDelay,
		})
	}
	c.SetRequestTimeout(f.RequestTimeout)

	return c
}

// Fetch implements the Fetcher interface, returning the page body in memory.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	parsedURL, err := url.Parse(targetURL)
	if err != nil || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL %q", targetURL)
	}

	c := f.buildCollector(ctx, parsedURL.Hostname())

	var result *FetchedDocument
	var status int
	c.OnResponse(func(r *colly.Response) {
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(r.Body)),
			FetchedAt:   time.Now(),
			Headers:     map[string][]string(r.Headers.Clone()),
		}
	})
	c.OnError(func(r *colly.Response, _ error) {
		status = r.StatusCode
	})

	var lastErr error
	for attempt := 0; attempt <= f.MaxRetries; attempt++ {
		if attempt > 0 {
			f.log.Debug("retrying page",
				logger.String("url", targetURL),
				logger.Int("attempt", attempt),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * f.RetryWait):
			}
		}

		result, status = nil, 0
		err := c.Visit(targetURL)
		if err == nil && result != nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil {
			err = fmt.Errorf("no response received for %s", targetURL)
		}
		lastErr = err
		if status != 0 && !shouldRetry(nil, status) {
			return nil, fmt.Errorf("unexpected status code: %d", status)
		}
	}

	return nil, fmt.Errorf("fetch failed after %d retries: %w", f.MaxRetries, lastErr)
}
