package storage

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"
)

// PageFetcher downloads a rasterized page image
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (image.Image, error)
}

// maxPageBytes bounds a single downloaded page
const maxPageBytes = 32 << 20

// DefaultBackoff is the linear backoff step between attempts
const DefaultBackoff = time.Second

// HTTPPageFetcher implements PageFetcher with retries on transient failures
type HTTPPageFetcher struct {
	client   *http.Client
	attempts int
	backoff  time.Duration
}

// HTTPOption customizes an HTTPPageFetcher
type HTTPOption func(*HTTPPageFetcher)

// WithRetry sets the attempt count and the linear backoff step
func WithRetry(attempts int, backoff time.Duration) HTTPOption {
	return func(h *HTTPPageFetcher) {
		if attempts > 0 {
			h.attempts = attempts
		}
		if backoff >= 0 {
			h.backoff = backoff
		}
	}
}

// WithTimeout bounds each attempt, body download included
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPPageFetcher) {
		if d > 0 {
			h.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the default client
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTPPageFetcher) {
		if client != nil {
			h.client = client
		}
	}
}

// NewHTTPPageFetcher creates a fetcher tuned for a handful of large scans
// per host: 3 attempts, 1s then 2s backoff.
func NewHTTPPageFetcher(opts ...HTTPOption) *HTTPPageFetcher {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	h := &HTTPPageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		attempts: 3,
		backoff:  DefaultBackoff,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPPageFetcher) FetchPage(ctx context.Context, pageURL string) (image.Image, error) {
	var lastErr error

	for attempt := 0; attempt < h.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * h.backoff):
			}
		}

		img, retry, err := h.fetchOnce(ctx, pageURL)
		if err == nil {
			return img, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("failed to fetch page after %d attempts: %w", h.attempts, lastErr)
}

// fetchOnce reports whether a failure is worth retrying: transport errors
// and 5xx are, 4xx and undecodable bodies are not.
func (h *HTTPPageFetcher) fetchOnce(ctx context.Context, pageURL string) (image.Image, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/png, image/jpeg, */*")
	req.Header.Set("User-Agent", "Go-Scantron-Grader/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	img, err := decodePage(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, false, err
	}
	return img, false, nil
}

func decodePage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode page image: %w", err)
	}
	return img, nil
}
