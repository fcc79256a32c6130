// Package fetch obtains a company's landing-page text: first through the
// reader proxy, optionally falling back to a rendered-page extraction when
// the proxy comes back empty. Inability to get content is a soft failure
// (empty result), never an error.
package fetch

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/icp-qualifier/internal/config"
	"github.com/sells-group/icp-qualifier/internal/resilience"
	"github.com/sells-group/icp-qualifier/pkg/jina"
)

// NormalizeURL prefixes bare domains with https.
func NormalizeURL(website string) string {
	w := strings.TrimSpace(website)
	if w == "" {
		return ""
	}
	if !strings.HasPrefix(w, "http") {
		return "https://" + w
	}
	return w
}

// Truncate caps text at limit bytes, backing off to the nearest rune
// boundary so a multibyte character is never split. Truncating
// already-truncated text is a no-op.
func Truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// Fetcher pulls page text through the reader proxy. A circuit breaker skips
// the proxy entirely after repeated proxy-level failures (exhausted network
// retries, proxy 5xx) so an outage degrades to the render fallback instead
// of stalling every worker. Per-site answers like a 404 or a thin page never
// count toward the breaker: one dead domain must not affect other rows.
type Fetcher struct {
	client    jina.Client
	breaker   *circuitBreaker
	retries   int
	retryWait time.Duration
	minLength int
	textLimit int
}

// NewFetcher builds a Fetcher from the reader config and the page-text cap.
func NewFetcher(client jina.Client, cfg config.JinaConfig, textLimit int) *Fetcher {
	return &Fetcher{
		client:    client,
		breaker:   newCircuitBreaker(3, 30*time.Second, 60*time.Second),
		retries:   cfg.Retries,
		retryWait: time.Duration(cfg.RetryWaitSecs) * time.Second,
		minLength: cfg.MinLength,
		textLimit: textLimit,
	}
}

// Fetch returns the page text for a website, or "" when the page yields no
// usable content (error status, too-short body, exhausted retries, open
// breaker). Transport errors and transient proxy statuses are retried; a
// 4xx or a short body is a terminal answer for this site.
func (f *Fetcher) Fetch(ctx context.Context, website string) (string, error) {
	if strings.TrimSpace(website) == "" {
		return "", nil
	}
	if f.breaker.isOpen() {
		zap.L().Debug("fetch: reader breaker open, skipping proxy",
			zap.String("website", website),
		)
		return "", nil
	}

	target := NormalizeURL(website)

	content, err := resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts: f.retries,
		Delay:       f.retryWait,
		ShouldRetry: resilience.IsTransient,
		OnRetry:     resilience.RetryLogger("jina", "read"),
	}, func(ctx context.Context) (string, error) {
		resp, err := f.client.Read(ctx, target)
		if err != nil {
			return "", resilience.NewTransientError(err, 0)
		}
		// Proxy-side trouble (5xx, 429, 408) is retryable and, if it
		// persists, a breaker signal.
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(
				eris.Errorf("fetch: reader status %d", resp.StatusCode),
				resp.StatusCode,
			)
		}
		// An error status or a thin page is the proxy's answer for this
		// site, not a proxy failure.
		if resp.StatusCode >= 400 {
			zap.L().Warn("fetch: reader error status",
				zap.String("website", website),
				zap.Int("status", resp.StatusCode),
			)
			return "", nil
		}
		if len(resp.Content) < f.minLength {
			zap.L().Warn("fetch: reader text too short",
				zap.String("website", website),
				zap.Int("length", len(resp.Content)),
			)
			return "", nil
		}
		return Truncate(resp.Content, f.textLimit), nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		f.breaker.recordFailure()
		zap.L().Warn("fetch: reader request failed",
			zap.String("website", website),
			zap.Int("retries", f.retries),
			zap.Error(err),
		)
		return "", nil
	}

	if content != "" {
		f.breaker.recordSuccess()
		zap.L().Debug("fetch: reader ok",
			zap.String("website", website),
			zap.Int("length", len(content)),
		)
	}
	return content, nil
}
