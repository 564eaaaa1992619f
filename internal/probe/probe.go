// Package probe performs lightweight metadata lookups against a remote URL
// before a full transfer is committed.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mwaiseghegift/tg-utils-bot/internal/logctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SizeUnknown marks a missing Content-Length header.
const SizeUnknown int64 = -1

// Result holds the metadata learned about a remote resource.
// It is immutable once produced.
type Result struct {
	ResolvedURL string // final URL after redirects
	Size        int64  // SizeUnknown when the server omits Content-Length
	ContentType string
}

// SizeKnown reports whether the server declared a content length.
func (r *Result) SizeKnown() bool {
	return r.Size >= 0
}

type Client struct {
	httpClient *http.Client
}

// NewClient creates a probe client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Probe issues a HEAD request and falls back to a minimal ranged GET when the
// server rejects HEAD. It reads Content-Length, Content-Type and the final
// redirect target.
func (c *Client) Probe(ctx context.Context, url string) (*Result, error) {
	logger := logctx.LoggerFromContext(ctx)

	resp, err := c.attempt(ctx, http.MethodHead, url, "")
	if err != nil {
		logger.Debug("head probe failed, retrying with ranged get", "url", url, "err", err)

		resp, err = c.attempt(ctx, http.MethodGet, url, "bytes=0-1")
		if err != nil {
			logger.Error("failed to probe url", "url", url, "err", err)

			return nil, fmt.Errorf("failed to probe url: %w", err)
		}
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	result := &Result{
		ResolvedURL: resp.Request.URL.String(),
		Size:        contentLength(resp),
		ContentType: resp.Header.Get("Content-Type"),
	}

	logger.Debug("probed url",
		"resolved_url", result.ResolvedURL,
		"size", result.Size,
		"content_type", result.ContentType,
	)

	return result, nil
}

// attempt performs a single request and treats non-2xx statuses as errors so
// the caller can fall back or give up.
func (c *Client) attempt(ctx context.Context, method, url, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}

	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		return nil, fmt.Errorf("%s request returned status %d", method, resp.StatusCode)
	}

	return resp, nil
}

// contentLength prefers the parsed ContentLength but falls back to the header
// for ranged responses where the body length differs from the full size.
func contentLength(resp *http.Response) int64 {
	if resp.StatusCode == http.StatusPartialContent {
		// A 206 body is two bytes; the real size is in Content-Range.
		if size := parseContentRangeSize(resp.Header.Get("Content-Range")); size >= 0 {
			return size
		}

		return SizeUnknown
	}

	if resp.ContentLength >= 0 {
		return resp.ContentLength
	}

	return SizeUnknown
}

// parseContentRangeSize extracts the total size from a "bytes 0-1/12345"
// style header. Returns SizeUnknown for missing or wildcard totals.
func parseContentRangeSize(header string) int64 {
	var start, end, total int64
	if _, err := fmt.Sscanf(header, "bytes %d-%d/%d", &start, &end, &total); err != nil {
		return SizeUnknown
	}

	return total
}
