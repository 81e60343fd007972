package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Browser renders pages in headless Chrome. The KfW page fills its rate
// spans client-side, so a plain GET only sees "-,--" placeholders.
// Requires Chrome/Chromium on the host.
type Browser struct {
	timeout   time.Duration
	userAgent string
	// waitFor is a CSS selector that must be visible before the HTML is taken.
	waitFor string
	logger  *zap.Logger
}

func NewBrowser(timeout time.Duration, userAgent, waitFor string, logger *zap.Logger) *Browser {
	return &Browser{timeout: timeout, userAgent: userAgent, waitFor: waitFor, logger: logger}
}

func (b *Browser) Fetch(ctx context.Context, url string) ([]byte, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(1920, 1080),
			chromedp.UserAgent(b.userAgent),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, b.timeout)
	defer cancel()

	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	}
	if b.waitFor != "" {
		actions = append(actions, chromedp.WaitVisible(b.waitFor, chromedp.ByQuery))
	}
	var out string
	actions = append(actions, chromedp.OuterHTML("html", &out))

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", url, err)
	}

	b.logger.Debug("rendered page", zap.String("url", url), zap.Int("bytes", len(out)))
	return []byte(out), nil
}
