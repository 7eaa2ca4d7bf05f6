// Package download fetches agency documents over HTTP, caches the shared
// ones, extracts report text from PDFs and optionally archives every
// document to S3.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
	"github.com/couchcryptid/rainfall-import-service/internal/observability"
)

// maxDocumentSize bounds a single download.
const maxDocumentSize = 64 << 20

// Fetcher retrieves a document by URL. Errors are *domain.DownloadError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Client downloads documents from the agency's web server.
type Client struct {
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a download client with a per-request timeout.
func NewClient(timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch downloads url and returns its body.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	body, err := c.doRequest(ctx, url)
	c.metrics.DownloadDuration.Observe(time.Since(start).Seconds())

	outcome := "success"
	var de *domain.DownloadError
	if errors.As(err, &de) {
		outcome = string(de.Kind)
	}
	c.metrics.Downloads.WithLabelValues(outcome).Inc()

	if err != nil {
		c.logger.Debug("download failed", "url", url, "error", err)
		return nil, err
	}
	c.logger.Debug("downloaded document", "url", url, "bytes", len(body), "duration", time.Since(start))
	return body, nil
}

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.DownloadError{Kind: domain.DownloadNetwork, URL: url, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.DownloadError{Kind: classify(err), URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, &domain.DownloadError{Kind: domain.DownloadNotFound, URL: url, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.DownloadError{Kind: domain.DownloadNetwork, URL: url, Err: fmt.Errorf("status %d: %s", resp.StatusCode, snippet)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, &domain.DownloadError{Kind: classify(err), URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > maxDocumentSize {
		return nil, &domain.DownloadError{Kind: domain.DownloadNetwork, URL: url, Err: fmt.Errorf("document exceeds %d bytes", maxDocumentSize)}
	}
	return body, nil
}

func classify(err error) domain.DownloadErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.DownloadTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.DownloadTimeout
	}
	return domain.DownloadNetwork
}
