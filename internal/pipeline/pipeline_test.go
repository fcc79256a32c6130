package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/icp-qualifier/internal/model"
	"github.com/sells-group/icp-qualifier/internal/profile"
	"github.com/sells-group/icp-qualifier/internal/table"
)

func fintechProfile(t *testing.T) *profile.Profile {
	t.Helper()
	p, err := profile.Get("fintech")
	require.NoError(t, err)
	return p
}

func inputTable(rows ...model.Record) *table.Table {
	return &table.Table{
		Columns: []string{model.ColCompanyName, model.ColWebsite},
		Rows:    rows,
	}
}

func testOptions(t *testing.T, p *profile.Profile) Options {
	t.Helper()
	return Options{
		Profile:    p,
		Workers:    2,
		OutputFile: filepath.Join(t.TempDir(), "out.csv"),
	}
}

func TestRunHappyPath(t *testing.T) {
	t.Parallel()

	p := fintechProfile(t)
	tbl := inputTable(
		model.Record{model.ColCompanyName: "Acme", model.ColWebsite: "acme.com"},
		model.Record{model.ColCompanyName: "Beta", model.ColWebsite: "beta.io"},
	)

	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, "acme.com").Return("acme makes payment software", nil).Once()
	fetcher.On("Fetch", mock.Anything, "beta.io").Return("beta sells shoes", nil).Once()

	classifier := new(mockClassifier)
	classifier.On("Classify", mock.Anything, "Acme", mock.Anything, "").
		Return(map[string]any{
			"is_fintech":    true,
			"confidence":    "high",
			"fintech_niche": "payments",
			"company_name":  "Acme Payments Inc",
		}, nil).Once()
	classifier.On("Classify", mock.Anything, "Beta", mock.Anything, "").
		Return(map[string]any{"is_fintech": false, "confidence": "medium"}, nil).Once()

	opts := testOptions(t, p)
	pl := New(fetcher, nil, classifier, opts)

	snap, err := pl.Run(context.Background(), tbl, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Qualified)
	assert.Equal(t, 1, snap.NotQualified)
	assert.Zero(t, snap.Unreachable)
	assert.Zero(t, snap.Errors)

	byName := map[string]model.Record{}
	for _, row := range tbl.Rows {
		byName[row[model.ColWebsite]] = row
	}
	acme := byName["acme.com"]
	assert.Equal(t, "analyzed", acme[model.ColStatus])
	assert.Equal(t, "true", acme["is_fintech"])
	assert.Equal(t, "payments", acme["fintech_niche"])
	assert.NotEmpty(t, acme[model.ColAnalyzedAt])
	// The model's company_name overrides the input cell.
	assert.Equal(t, "Acme Payments Inc", acme[model.ColCompanyName])

	// Checkpoint landed on disk.
	saved := table.LoadExisting(opts.OutputFile)
	require.NotNil(t, saved)
	assert.Len(t, saved.Rows, 2)

	fetcher.AssertExpectations(t)
	classifier.AssertExpectations(t)
}

func TestRunUnreachableSkipsModel(t *testing.T) {
	t.Parallel()

	p := fintechProfile(t)
	tbl := inputTable(model.Record{model.ColCompanyName: "Gone", model.ColWebsite: "gone.example"})

	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, "gone.example").Return("", nil).Once()
	classifier := new(mockClassifier)

	pl := New(fetcher, nil, classifier, testOptions(t, p))
	snap, err := pl.Run(context.Background(), tbl, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.Unreachable)
	assert.Equal(t, "unreachable", tbl.Rows[0][model.ColStatus])
	assert.NotEmpty(t, tbl.Rows[0][model.ColAnalyzedAt])
	// No qualification fields on unreachable rows.
	assert.Empty(t, tbl.Rows[0]["is_fintech"])
	classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunClassifierErrorMarksRow(t *testing.T) {
	t.Parallel()

	p := fintechProfile(t)
	tbl := inputTable(model.Record{model.ColCompanyName: "Flaky", model.ColWebsite: "flaky.example"})

	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, "flaky.example").Return("some long page text", nil).Once()
	classifier := new(mockClassifier)
	classifier.On("Classify", mock.Anything, "Flaky", mock.Anything, "").
		Return(nil, assert.AnError).Once()

	pl := New(fetcher, nil, classifier, testOptions(t, p))
	snap, err := pl.Run(context.Background(), tbl, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.Errors)
	assert.Equal(t, "error", tbl.Rows[0][model.ColStatus])
	assert.Empty(t, tbl.Rows[0]["is_fintech"])
}

func TestRunResumeSkipsCompletedRows(t *testing.T) {
	t.Parallel()

	p := fintechProfile(t)
	doneRow := model.Record{
		model.ColCompanyName: "Done",
		model.ColWebsite:     "done.example",
		model.ColStatus:      "analyzed",
		"is_fintech":         "true",
		"confidence":         "high",
		model.ColAnalyzedAt:  "2025-01-01T00:00:00Z",
	}
	tbl := inputTable(
		doneRow,
		model.Record{model.ColCompanyName: "Fresh", model.ColWebsite: "fresh.example"},
	)
	existing := &table.Table{
		Columns: []string{model.ColWebsite, model.ColStatus},
		Rows: []model.Record{
			{model.ColWebsite: "Done.Example ", model.ColStatus: "analyzed"},
		},
	}

	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, "fresh.example").Return("fresh page text", nil).Once()
	classifier := new(mockClassifier)
	classifier.On("Classify", mock.Anything, "Fresh", mock.Anything, "").
		Return(map[string]any{"is_fintech": false}, nil).Once()

	pl := New(fetcher, nil, classifier, testOptions(t, p))
	_, err := pl.Run(context.Background(), tbl, existing)
	require.NoError(t, err)

	// The completed row was not touched: no calls for it, cells unchanged.
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
	classifier.AssertNumberOfCalls(t, "Classify", 1)
	assert.Equal(t, model.Record{
		model.ColCompanyName: "Done",
		model.ColWebsite:     "done.example",
		model.ColStatus:      "analyzed",
		"is_fintech":         "true",
		"confidence":         "high",
		model.ColAnalyzedAt:  "2025-01-01T00:00:00Z",
	}, doneRow)
}

func TestRunInMemoryStatusSkips(t *testing.T) {
	t.Parallel()

	p := fintechProfile(t)
	tbl := inputTable(model.Record{
		model.ColCompanyName: "Merged",
		model.ColWebsite:     "merged.example",
		model.ColStatus:      "unreachable",
	})

	fetcher := new(mockFetcher)
	classifier := new(mockClassifier)

	pl := New(fetcher, nil, classifier, testOptions(t, p))
	snap, err := pl.Run(context.Background(), tbl, nil)
	require.NoError(t, err)

	assert.Zero(t, snap.Unreachable) // nothing processed this run
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestRunScreenshotMode(t *testing.T) {
	t.Parallel()

	p := fintechProfile(t)
	tbl := inputTable(model.Record{model.ColCompanyName: "Acme", model.ColWebsite: "acme.com"})

	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, "acme.com").Return("page text about payments", nil).Once()
	renderer := new(mockRenderer)
	renderer.On("Screenshot", mock.Anything, "https://acme.com").Return("c2hvdA==").Once()

	classifier := new(mockClassifier)
	classifier.On("Classify", mock.Anything, "Acme", mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "website_style")
	}), "c2hvdA==").
		Return(map[string]any{
			"is_fintech":    true,
			"confidence":    "high",
			"website_style": "Retro", // out-of-enum, coerced
		}, nil).Once()

	opts := testOptions(t, p)
	opts.UseScreenshots = true
	pl := New(fetcher, renderer, classifier, opts)

	snap, err := pl.Run(context.Background(), tbl, nil)
	require.NoError(t, err)

	assert.Equal(t, "Mixed", tbl.Rows[0]["website_style"])
	assert.Equal(t, map[string]int{"Mixed": 1}, snap.Styles)
	renderer.AssertNotCalled(t, "RenderText", mock.Anything, mock.Anything)
	renderer.AssertExpectations(t)
}

func TestRunScreenshotOnlyUsesPlaceholder(t *testing.T) {
	t.Parallel()

	p := fintechProfile(t)
	tbl := inputTable(model.Record{model.ColCompanyName: "Blocked", model.ColWebsite: "blocked.example"})

	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, "blocked.example").Return("", nil).Once()
	renderer := new(mockRenderer)
	renderer.On("Screenshot", mock.Anything, "https://blocked.example").Return("c2hvdA==").Once()

	classifier := new(mockClassifier)
	classifier.On("Classify", mock.Anything, "Blocked", mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "(text not available")
	}), "c2hvdA==").
		Return(map[string]any{"is_fintech": false}, nil).Once()

	opts := testOptions(t, p)
	opts.UseScreenshots = true
	pl := New(fetcher, renderer, classifier, opts)

	_, err := pl.Run(context.Background(), tbl, nil)
	require.NoError(t, err)
	classifier.AssertExpectations(t)
}

func TestRunFallbackFlagMatrix(t *testing.T) {
	t.Parallel()

	// The screenshot and render-fallback flags interact; enumerate all four
	// combinations for a site whose proxy fetch yields nothing.
	cases := []struct {
		name           string
		useScreenshots bool
		renderFallback bool
		wantRenderText bool
		wantScreenshot bool
		wantStatus     string
	}{
		{"both off", false, false, false, false, "unreachable"},
		{"fallback only", false, true, true, false, "analyzed"},
		{"screenshots only", true, false, false, true, "analyzed"},
		{"both on", true, true, false, true, "analyzed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := fintechProfile(t)
			tbl := inputTable(model.Record{model.ColCompanyName: "Acme", model.ColWebsite: "acme.com"})

			fetcher := new(mockFetcher)
			fetcher.On("Fetch", mock.Anything, "acme.com").Return("", nil).Once()

			renderer := new(mockRenderer)
			if tc.wantRenderText {
				renderer.On("RenderText", mock.Anything, "https://acme.com").
					Return("rendered body text").Once()
			}
			if tc.wantScreenshot {
				renderer.On("Screenshot", mock.Anything, "https://acme.com").
					Return("c2hvdA==").Once()
			}

			classifier := new(mockClassifier)
			if tc.wantStatus == "analyzed" {
				classifier.On("Classify", mock.Anything, "Acme", mock.Anything, mock.Anything).
					Return(map[string]any{"is_fintech": true, "confidence": "low"}, nil).Once()
			}

			opts := testOptions(t, p)
			opts.UseScreenshots = tc.useScreenshots
			opts.RenderFallback = tc.renderFallback
			pl := New(fetcher, renderer, classifier, opts)

			_, err := pl.Run(context.Background(), tbl, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, tbl.Rows[0][model.ColStatus])

			renderer.AssertExpectations(t)
			classifier.AssertExpectations(t)
			if !tc.wantRenderText {
				renderer.AssertNotCalled(t, "RenderText", mock.Anything, mock.Anything)
			}
			if !tc.wantScreenshot {
				renderer.AssertNotCalled(t, "Screenshot", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestRunSkipsRowsWithoutWebsite(t *testing.T) {
	t.Parallel()

	p := fintechProfile(t)
	tbl := inputTable(model.Record{model.ColCompanyName: "NoSite", model.ColWebsite: "  "})

	fetcher := new(mockFetcher)
	classifier := new(mockClassifier)

	pl := New(fetcher, nil, classifier, testOptions(t, p))
	_, err := pl.Run(context.Background(), tbl, nil)
	require.NoError(t, err)

	assert.Empty(t, tbl.Rows[0][model.ColStatus])
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestRunReportsProgress(t *testing.T) {
	t.Parallel()

	p := fintechProfile(t)
	tbl := inputTable(
		model.Record{model.ColCompanyName: "A", model.ColWebsite: "a.example"},
		model.Record{model.ColCompanyName: "B", model.ColWebsite: "b.example"},
	)

	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything).Return("", nil)
	classifier := new(mockClassifier)

	var (
		mu       sync.Mutex
		messages []string
	)
	progress := func(done, total int, message string) {
		mu.Lock()
		messages = append(messages, message)
		mu.Unlock()
	}

	opts := testOptions(t, p)
	opts.Workers = 1
	opts.Progress = progress
	pl := New(fetcher, nil, classifier, opts)

	_, err := pl.Run(context.Background(), tbl, nil)
	require.NoError(t, err)
	// One initial event plus one per completed row.
	assert.Len(t, messages, 3)
}
