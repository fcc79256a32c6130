package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/icp-qualifier/internal/fetch"
	"github.com/sells-group/icp-qualifier/internal/pipeline"
	"github.com/sells-group/icp-qualifier/internal/qualify"
	"github.com/sells-group/icp-qualifier/pkg/anthropic"
	"github.com/sells-group/icp-qualifier/pkg/browser"
	"github.com/sells-group/icp-qualifier/pkg/jina"
)

// runEnv bundles the pipeline collaborators for one process.
type runEnv struct {
	Fetcher    pipeline.TextFetcher
	Renderer   pipeline.Renderer
	Classifier pipeline.Classifier
	browser    *browser.Browser
}

// initEnv wires the reader client, the classifier, and (when needed) the
// shared headless browser from the loaded config.
func initEnv(ctx context.Context, needBrowser bool) (*runEnv, error) {
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, err
	}

	reader := jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithTimeout(time.Duration(cfg.Jina.TimeoutSecs)*time.Second),
		jina.WithRateLimit(cfg.Jina.RequestsPerSecond),
	)

	env := &runEnv{
		Fetcher:    fetch.NewFetcher(reader, cfg.Jina, cfg.Pipeline.PageTextLimit),
		Classifier: qualify.NewClassifier(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic),
	}

	if needBrowser {
		b, err := browser.Launch(ctx, browser.Options{
			Headless:         cfg.Browser.Headless,
			ViewportWidth:    cfg.Browser.ViewportWidth,
			ViewportHeight:   cfg.Browser.ViewportHeight,
			NavTimeout:       time.Duration(cfg.Browser.NavTimeoutSecs) * time.Second,
			RenderSettle:     time.Duration(cfg.Browser.RenderSettleMillis) * time.Millisecond,
			ScreenshotSettle: time.Duration(cfg.Browser.ScreenshotSettleMillis) * time.Millisecond,
			JPEGQuality:      cfg.Browser.JPEGQuality,
		})
		if err != nil {
			return nil, eris.Wrap(err, "launch browser")
		}
		env.browser = b
		env.Renderer = fetch.NewRenderer(b, cfg.Jina.MinLength, cfg.Pipeline.PageTextLimit)
	}

	return env, nil
}

// Close releases the browser process if one was launched.
func (e *runEnv) Close() {
	if e.browser != nil {
		e.browser.Close()
		zap.L().Debug("browser closed")
	}
}
