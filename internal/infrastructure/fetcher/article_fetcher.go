package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"articlepipe/internal/config"
	"articlepipe/internal/extractor"
	"articlepipe/internal/metrics"
	"articlepipe/internal/ports"
)

// StatusError reports a non-2xx response from the article host.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %s", e.URL, e.Status)
}

// ArticleFetcher downloads a page and extracts its article text.
type ArticleFetcher struct {
	client       *http.Client
	registry     *extractor.Registry
	timeout      time.Duration
	userAgent    string
	maxBodyBytes int64
}

var _ ports.Fetcher = (*ArticleFetcher)(nil)

// NewArticleFetcher wires an HTTP client; a nil client gets one without a
// global timeout since every fetch is bounded by cfg.Timeout.
func NewArticleFetcher(client *http.Client, registry *extractor.Registry, cfg config.FetchConfig) *ArticleFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if registry == nil {
		registry = extractor.NewRegistry(cfg.DefaultSelector)
	}
	return &ArticleFetcher{
		client:       client,
		registry:     registry,
		timeout:      cfg.Timeout,
		userAgent:    cfg.UserAgent,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
}

// Fetch returns the extracted text of pageURL. An empty string means the
// page had no matching elements.
func (f *ArticleFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	start := time.Now()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	doc, err := f.fetchDocument(ctx, pageURL)
	if err != nil {
		metrics.RecordFetch("error", time.Since(start).Seconds())
		return "", err
	}

	metrics.RecordFetch("ok", time.Since(start).Seconds())
	return extractor.Extract(doc, f.registry.Resolve(pageURL)), nil
}

func (f *ArticleFetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{URL: pageURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var body io.Reader = resp.Body
	if f.maxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBodyBytes)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}
