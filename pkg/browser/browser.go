// Package browser drives a shared headless Chrome process for rendered-page
// text extraction and viewport screenshots.
package browser

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Options configures the shared browser process and per-page behavior.
type Options struct {
	Headless         bool
	ViewportWidth    int
	ViewportHeight   int
	NavTimeout       time.Duration
	RenderSettle     time.Duration // wait after navigation before text extraction
	ScreenshotSettle time.Duration // longer wait so layout and images load
	JPEGQuality      int
}

// DefaultOptions returns the production browser settings.
func DefaultOptions() Options {
	return Options{
		Headless:         true,
		ViewportWidth:    1440,
		ViewportHeight:   900,
		NavTimeout:       20 * time.Second,
		RenderSettle:     1500 * time.Millisecond,
		ScreenshotSettle: 2 * time.Second,
		JPEGQuality:      65,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ViewportWidth <= 0 {
		o.ViewportWidth = d.ViewportWidth
	}
	if o.ViewportHeight <= 0 {
		o.ViewportHeight = d.ViewportHeight
	}
	if o.NavTimeout <= 0 {
		o.NavTimeout = d.NavTimeout
	}
	if o.RenderSettle <= 0 {
		o.RenderSettle = d.RenderSettle
	}
	if o.ScreenshotSettle <= 0 {
		o.ScreenshotSettle = d.ScreenshotSettle
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = d.JPEGQuality
	}
	return o
}

// Browser owns one headless Chrome process, shared by all in-flight tasks
// for the duration of a run. Each task opens its own Page.
type Browser struct {
	opts          Options
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// Launch starts the shared Chrome process.
func Launch(ctx context.Context, opts Options) (*Browser, error) {
	opts = opts.withDefaults()

	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-sync", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the process now so launch failures surface here, not on the
	// first page.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, eris.Wrap(err, "browser: launch chrome")
	}

	zap.L().Info("browser: launched headless chrome",
		zap.Int("viewport_width", opts.ViewportWidth),
		zap.Int("viewport_height", opts.ViewportHeight),
	)

	return &Browser{
		opts:          opts,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close shuts down the Chrome process.
func (b *Browser) Close() {
	b.browserCancel()
	b.allocCancel()
}

// NewPage opens a fresh tab. Pages are never reused across items so one
// company's navigation state cannot leak into another's.
func (b *Browser) NewPage() *Page {
	ctx, cancel := chromedp.NewContext(b.browserCtx)
	return &Page{
		ctx:    ctx,
		cancel: cancel,
		opts:   b.opts,
	}
}

// Page is one browser tab, owned by a single task.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options
}

// Close closes the tab.
func (p *Page) Close() {
	p.cancel()
}

// Text navigates to url, waits a fixed settle delay, and returns the visible
// body text. The settle delay trades completeness for speed: DOM content is
// loaded but late network activity may be missed.
func (p *Page) Text(ctx context.Context, url string) (string, error) {
	runCtx, cancel := context.WithTimeout(p.ctx, p.opts.NavTimeout+p.opts.RenderSettle)
	defer cancel()
	runCtx = withParentDone(runCtx, ctx, cancel)

	var text string
	err := chromedp.Run(runCtx,
		chromedp.EmulateViewport(int64(p.opts.ViewportWidth), int64(p.opts.ViewportHeight)),
		chromedp.Navigate(url),
		chromedp.Sleep(p.opts.RenderSettle),
		chromedp.Text("body", &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", eris.Wrapf(err, "browser: render %s", url)
	}
	return text, nil
}

// Screenshot navigates to url, waits the longer screenshot settle delay, and
// captures a viewport-only JPEG, returned base64-encoded.
func (p *Page) Screenshot(ctx context.Context, url string) (string, error) {
	runCtx, cancel := context.WithTimeout(p.ctx, p.opts.NavTimeout+p.opts.ScreenshotSettle)
	defer cancel()
	runCtx = withParentDone(runCtx, ctx, cancel)

	var buf []byte
	err := chromedp.Run(runCtx,
		chromedp.EmulateViewport(int64(p.opts.ViewportWidth), int64(p.opts.ViewportHeight)),
		chromedp.Navigate(url),
		chromedp.Sleep(p.opts.ScreenshotSettle),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatJpeg).
				WithQuality(int64(p.opts.JPEGQuality)).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return "", eris.Wrapf(err, "browser: screenshot %s", url)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// withParentDone cancels the chromedp run when the caller's context is done.
// chromedp actions must run on the page's context, so the caller's context
// cannot be passed to Run directly.
func withParentDone(runCtx, parent context.Context, cancel context.CancelFunc) context.Context {
	if parent == nil {
		return runCtx
	}
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()
	return runCtx
}
