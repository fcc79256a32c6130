package table

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/icp-qualifier/internal/model"
)

// LoadExisting reads a prior run's output file for resuming. Any problem
// reading it (absent, near-empty, malformed, too few columns) is not an
// error: the run simply starts fresh.
func LoadExisting(path string) *Table {
	info, err := os.Stat(path)
	if err != nil || info.Size() < 10 {
		return nil
	}

	t, err := loadCSV(path)
	if err != nil {
		zap.L().Warn("table: could not read existing output, starting fresh",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil
	}
	if len(t.Rows) == 0 || len(t.Columns) < 2 {
		return nil
	}

	zap.L().Info("table: resuming from existing output",
		zap.String("path", path),
		zap.Int("rows", len(t.Rows)),
	)
	return t
}

// Merge copies prior result columns from existing into the input table,
// joining rows by identity key (normalized Website, falling back to Company
// Name when the existing output has no Website column). The last duplicate
// of a key wins. All result columns are guaranteed to exist afterwards.
func Merge(in, existing *Table, resultCols []string) {
	defer in.EnsureColumns(resultCols)
	if existing == nil {
		return
	}

	mergeCol := model.ColWebsite
	if !existing.hasColumn(model.ColWebsite) {
		mergeCol = model.ColCompanyName
	}

	carried := make([]string, 0, len(resultCols))
	for _, col := range resultCols {
		if existing.hasColumn(col) {
			carried = append(carried, col)
		}
	}
	if len(carried) == 0 {
		return
	}

	prior := make(map[string]model.Record, len(existing.Rows))
	for _, row := range existing.Rows {
		key := strings.ToLower(strings.TrimSpace(row[mergeCol]))
		if key == "" {
			continue
		}
		prior[key] = row
	}

	merged := 0
	for _, row := range in.Rows {
		// Stale result cells from the input file do not survive a merge.
		for _, col := range resultCols {
			delete(row, col)
		}
		key := strings.ToLower(strings.TrimSpace(row[mergeCol]))
		src, ok := prior[key]
		if !ok {
			continue
		}
		for _, col := range carried {
			row[col] = src[col]
		}
		merged++
	}

	zap.L().Info("table: merged existing progress",
		zap.Int("matched_rows", merged),
		zap.String("merge_column", mergeCol),
	)
}

// Save rewrites the whole table as CSV. It writes to a temp file in the
// same directory and renames it into place so a crash mid-write can never
// truncate the previous checkpoint.
func (t *Table) Save(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "table: create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	w := csv.NewWriter(tmp)
	if err := w.Write(t.Columns); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "table: write header")
	}
	cells := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			cells[i] = row[col]
		}
		if err := w.Write(cells); err != nil {
			tmp.Close() //nolint:errcheck
			return eris.Wrap(err, "table: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "table: flush")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "table: close temp file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "table: replace %s", path)
	}
	return nil
}
