// Package fetch loads raw HTML pages for the rate crawlers.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d %s for %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// HTTP fetches pages with a single GET, no retries.
type HTTP struct {
	client *resty.Client
	logger *zap.Logger
}

func NewHTTP(timeout time.Duration, userAgent string, logger *zap.Logger) *HTTP {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")
	return &HTTP{client: client, logger: logger}
}

func (h *HTTP) Fetch(ctx context.Context, url string) ([]byte, error) {
	res, err := h.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to GET %s: %w", url, err)
	}
	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		return nil, &StatusError{URL: url, StatusCode: res.StatusCode()}
	}

	h.logger.Debug("fetched page",
		zap.String("url", url),
		zap.Int("status", res.StatusCode()),
		zap.Int("bytes", len(res.Body())),
		zap.Duration("took", res.Time()),
	)
	return res.Body(), nil
}
