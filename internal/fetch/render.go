package fetch

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/icp-qualifier/pkg/browser"
)

// Renderer extracts content with the headless browser: rendered body text
// when the reader proxy fails (bot blocks, JS-only pages) and viewport
// screenshots for visual style classification. Every call opens a fresh
// page so navigation state never leaks between companies.
type Renderer struct {
	browser   *browser.Browser
	minLength int
	textLimit int
}

// NewRenderer wraps a launched browser. minLength and textLimit mirror the
// reader-proxy thresholds so both text sources obey the same contract.
func NewRenderer(b *browser.Browser, minLength, textLimit int) *Renderer {
	return &Renderer{browser: b, minLength: minLength, textLimit: textLimit}
}

// RenderText returns the rendered body text of url, or "" on any failure or
// when the text is below the minimum length.
func (r *Renderer) RenderText(ctx context.Context, url string) string {
	page := r.browser.NewPage()
	defer page.Close()

	text, err := page.Text(ctx, url)
	if err != nil {
		zap.L().Warn("fetch: render fallback failed",
			zap.String("url", url),
			zap.Error(err),
		)
		return ""
	}
	if len(strings.TrimSpace(text)) < r.minLength {
		zap.L().Warn("fetch: rendered text too short",
			zap.String("url", url),
			zap.Int("length", len(strings.TrimSpace(text))),
		)
		return ""
	}
	return Truncate(text, r.textLimit)
}

// Screenshot returns a base64 JPEG of url's viewport, or "" on any failure.
func (r *Renderer) Screenshot(ctx context.Context, url string) string {
	page := r.browser.NewPage()
	defer page.Close()

	shot, err := page.Screenshot(ctx, url)
	if err != nil {
		zap.L().Warn("fetch: screenshot failed",
			zap.String("url", url),
			zap.Error(err),
		)
		return ""
	}
	return shot
}
