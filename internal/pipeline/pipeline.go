// Package pipeline orchestrates a qualification run: bounded-concurrency
// fan-out over input rows, a per-row fetch/render/classify/map state machine,
// resume-by-identity-key, and a full table checkpoint after every row.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/icp-qualifier/internal/fetch"
	"github.com/sells-group/icp-qualifier/internal/model"
	"github.com/sells-group/icp-qualifier/internal/profile"
	"github.com/sells-group/icp-qualifier/internal/qualify"
	"github.com/sells-group/icp-qualifier/internal/table"
)

// TextFetcher obtains page text for a website. Empty text is a soft failure.
type TextFetcher interface {
	Fetch(ctx context.Context, website string) (string, error)
}

// Renderer is the headless-browser collaborator: rendered text for the
// fallback path, screenshots for visual classification. Both fail soft.
type Renderer interface {
	RenderText(ctx context.Context, url string) string
	Screenshot(ctx context.Context, url string) string
}

// Classifier produces the parsed model verdict for one company.
type Classifier interface {
	Classify(ctx context.Context, companyName, prompt, screenshotB64 string) (map[string]any, error)
}

// Options configures one run.
type Options struct {
	Profile        *profile.Profile
	Workers        int
	UseScreenshots bool
	RenderFallback bool
	OutputFile     string
	GCEvery        int
	Progress       model.ProgressFunc
}

// Pipeline executes qualification runs. The renderer may be nil, in which
// case both the screenshot mode and the render fallback are skipped.
type Pipeline struct {
	runID      string
	fetcher    TextFetcher
	renderer   Renderer
	classifier Classifier
	opts       Options
	now        func() time.Time
}

// New builds a Pipeline. Zero-valued worker and GC knobs get production
// defaults.
func New(fetcher TextFetcher, renderer Renderer, classifier Classifier, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.GCEvery <= 0 {
		opts.GCEvery = 15
	}
	return &Pipeline{
		runID:      uuid.NewString(),
		fetcher:    fetcher,
		renderer:   renderer,
		classifier: classifier,
		opts:       opts,
		now:        time.Now,
	}
}

// task is one row scheduled for processing.
type task struct {
	row     model.Record
	company string
	website string
}

// Run processes every not-yet-completed row of tbl, checkpointing the whole
// table to the output file after each one. existing (a prior run's output,
// may be nil) contributes the resume set: rows whose identity key already has
// a non-empty status are never reprocessed.
func (p *Pipeline) Run(ctx context.Context, tbl *table.Table, existing *table.Table) (model.StatsSnapshot, error) {
	stats := model.NewStats()
	resultCols := p.opts.Profile.ResultColumns(p.opts.UseScreenshots)
	tbl.EnsureColumns(resultCols)

	done := resumeSet(existing)
	tasks := p.schedule(tbl, done)

	mode := "text only"
	if p.opts.UseScreenshots {
		mode = "text + screenshot"
	}
	zap.L().Info("pipeline: run starting",
		zap.String("run_id", p.runID),
		zap.String("profile", p.opts.Profile.Name),
		zap.String("mode", mode),
		zap.Int("workers", p.opts.Workers),
		zap.Int("tasks", len(tasks)),
	)

	total := len(tasks)
	if p.opts.Progress != nil {
		p.opts.Progress(0, total, "starting analysis")
	}
	if total == 0 {
		return stats.Snapshot(), nil
	}

	var (
		mu        sync.Mutex // guards tbl writes and checkpoints
		completed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for _, tk := range tasks {
		g.Go(func() error {
			rec, err := p.processOne(gctx, tk.company, tk.website)
			if err != nil {
				return err
			}

			mu.Lock()
			for k, v := range rec {
				tk.row[k] = v
			}
			saveErr := tbl.Save(p.opts.OutputFile)
			completed++
			n := completed
			mu.Unlock()

			if saveErr != nil {
				return eris.Wrap(saveErr, "pipeline: checkpoint")
			}

			status := model.Status(rec[model.ColStatus])
			style := rec["website_style"]
			stats.Add(status, qualify.Qualified(rec, p.opts.Profile), style)
			p.logOutcome(tk.company, rec, status)

			if p.opts.Progress != nil {
				p.opts.Progress(n, total, fmt.Sprintf("%s: %s", tk.company, status))
			}
			// Screenshots are large blobs; nudge memory back to the OS at a
			// fixed cadence.
			if n%p.opts.GCEvery == 0 {
				debug.FreeOSMemory()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats.Snapshot(), err
	}

	snap := stats.Snapshot()
	zap.L().Info("pipeline: run finished",
		zap.String("run_id", p.runID),
		zap.String("qualify_label", p.opts.Profile.QualifyLabel),
		zap.Int("qualified", snap.Qualified),
		zap.Int("not_qualified", snap.NotQualified),
		zap.Int("unreachable", snap.Unreachable),
		zap.Int("errors", snap.Errors),
	)
	return snap, nil
}

// resumeSet collects identity keys that already have a non-empty status in a
// prior run's output.
func resumeSet(existing *table.Table) map[string]bool {
	done := map[string]bool{}
	if existing == nil {
		return done
	}
	for _, row := range existing.Rows {
		if strings.TrimSpace(row[model.ColStatus]) == "" {
			continue
		}
		if key := table.KeyOf(row); key != "" {
			done[key] = true
		}
	}
	if len(done) > 0 {
		zap.L().Info("pipeline: resuming", zap.Int("already_done", len(done)))
	}
	return done
}

// schedule selects the rows to process: non-empty website, not in the resume
// set, no in-memory status from a merge.
func (p *Pipeline) schedule(tbl *table.Table, done map[string]bool) []task {
	var tasks []task
	skipped := 0
	for _, row := range tbl.Rows {
		website := strings.TrimSpace(row[model.ColWebsite])
		if website == "" {
			continue
		}
		key := table.KeyOf(row)
		if done[key] || strings.TrimSpace(row[model.ColStatus]) != "" {
			skipped++
			continue
		}
		tasks = append(tasks, task{
			row:     row,
			company: strings.TrimSpace(row[model.ColCompanyName]),
			website: website,
		})
	}
	if skipped > 0 {
		zap.L().Info("pipeline: skipping already processed rows", zap.Int("skipped", skipped))
	}
	return tasks
}

// processOne runs the per-row state machine. The returned record is the
// row's result cells; an error is returned only on cancellation or a broken
// checkpoint.
func (p *Pipeline) processOne(ctx context.Context, company, website string) (model.Record, error) {
	url := fetch.NormalizeURL(website)

	var text, screenshot string
	if p.opts.UseScreenshots && p.renderer != nil && url != "" {
		// Text and screenshot come from independent collaborators; overlap
		// them.
		var wg sync.WaitGroup
		var fetchErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			text, fetchErr = p.fetcher.Fetch(ctx, website)
		}()
		go func() {
			defer wg.Done()
			screenshot = p.renderer.Screenshot(ctx, url)
		}()
		wg.Wait()
		if fetchErr != nil {
			return nil, fetchErr
		}
	} else {
		var err error
		text, err = p.fetcher.Fetch(ctx, website)
		if err != nil {
			return nil, err
		}
		if text == "" && p.renderer != nil && p.opts.RenderFallback && url != "" {
			text = p.renderer.RenderText(ctx, url)
			if text != "" {
				zap.L().Info("pipeline: render fallback recovered text",
					zap.String("website", website),
				)
			}
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// Nothing to show the model: unreachable, no model call.
	if text == "" && screenshot == "" {
		return qualify.UnreachableRecord(p.now()), nil
	}

	prompt := profile.BuildPrompt(p.opts.Profile, company, text, screenshot != "")
	result, err := p.classifier.Classify(ctx, company, prompt, screenshot)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		zap.L().Warn("pipeline: classification failed",
			zap.String("company", company),
			zap.Error(err),
		)
		return qualify.ErrorRecord(p.now()), nil
	}

	return qualify.MapResult(result, p.opts.Profile, p.opts.UseScreenshots, p.now()), nil
}

func (p *Pipeline) logOutcome(company string, rec model.Record, status model.Status) {
	switch status {
	case model.StatusUnreachable, model.StatusError:
		zap.L().Warn("pipeline: row done",
			zap.String("company", company),
			zap.String("status", string(status)),
		)
	default:
		fields := []zap.Field{
			zap.String("company", company),
			zap.String(p.opts.Profile.QualifyKey, rec[p.opts.Profile.QualifyKey]),
			zap.String("confidence", rec["confidence"]),
		}
		if style, ok := rec["website_style"]; ok {
			fields = append(fields, zap.String("website_style", style))
		}
		zap.L().Info("pipeline: row done", fields...)
	}
}
