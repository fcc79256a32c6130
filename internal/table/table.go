// Package table loads, normalizes, merges, and persists the tabular working
// set: company input rows plus the qualification result columns.
package table

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/icp-qualifier/internal/model"
)

// Table is an ordered-column table of string cells. Rows hold only the cells
// that have values; Save fills the gaps with empty strings.
type Table struct {
	Columns []string
	Rows    []model.Record
}

// standardColumns are header names that mark an input file as already
// normalized, skipping the column-role heuristics.
var standardColumns = map[string]bool{
	model.ColCompanyName: true,
	model.ColWebsite:     true,
	model.ColDescription: true,
	"Short Description":  true,
	"Industry":           true,
	"Keywords":           true,
}

// Load reads an input table from a CSV/TSV or XLSX file and normalizes it to
// carry at least the Company Name and Website columns. Rows with no company
// name after normalization are dropped.
func Load(path string) (*Table, error) {
	var (
		t   *Table
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		t, err = loadXLSX(path)
	} else {
		t, err = loadCSV(path)
	}
	if err != nil {
		return nil, err
	}

	t.normalize()

	kept := t.Rows[:0]
	for _, row := range t.Rows {
		if strings.TrimSpace(row[model.ColCompanyName]) != "" {
			kept = append(kept, row)
		}
	}
	t.Rows = kept

	zap.L().Info("table: loaded input",
		zap.String("path", path),
		zap.Int("rows", len(t.Rows)),
		zap.Strings("columns", t.Columns),
	)
	return t, nil
}

func loadCSV(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: read %s", path)
	}

	sep := detectDelimiter(data)
	r := csv.NewReader(strings.NewReader(string(data)))
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "table: parse %s", path)
	}
	if len(records) == 0 {
		return nil, eris.Errorf("table: %s is empty", path)
	}

	return fromRecords(records), nil
}

// detectDelimiter picks tab when the first line contains one, else comma.
func detectDelimiter(data []byte) rune {
	line, _, _ := strings.Cut(string(data), "\n")
	if strings.Contains(line, "\t") {
		return '\t'
	}
	return ','
}

// fromRecords builds a Table from raw rows, deciding whether the first row
// is a header. A file is treated as headerless when the would-be header is
// all numeric, or when it is narrow and names none of the standard columns.
func fromRecords(records [][]string) *Table {
	header := records[0]
	headerless := allNumeric(header) ||
		(len(header) <= 5 && !hasStandardColumn(header))

	var t Table
	if headerless {
		width := 0
		for _, rec := range records {
			if len(rec) > width {
				width = len(rec)
			}
		}
		t.Columns = make([]string, width)
		for i := range t.Columns {
			t.Columns[i] = "col" + strconv.Itoa(i)
		}
	} else {
		t.Columns = make([]string, len(header))
		for i, h := range header {
			t.Columns[i] = strings.TrimSpace(h)
		}
		records = records[1:]
	}

	for _, rec := range records {
		row := model.Record{}
		for i, cell := range rec {
			if i < len(t.Columns) {
				row[t.Columns[i]] = cell
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return &t
}

func allNumeric(cells []string) bool {
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" {
			return false
		}
		for _, r := range c {
			if !unicode.IsDigit(r) {
				return false
			}
		}
	}
	return true
}

func hasStandardColumn(cells []string) bool {
	for _, c := range cells {
		if standardColumns[strings.TrimSpace(c)] {
			return true
		}
	}
	return false
}

// normalize maps whatever columns the input carries onto the standard ones.
// Inputs that already use a standard header are left alone apart from
// guaranteeing the two mandatory columns exist.
func (t *Table) normalize() {
	if hasStandardColumn(t.Columns) {
		t.EnsureColumns([]string{model.ColCompanyName, model.ColWebsite})
		return
	}

	var urlCols, linkedinCols, siteCols, nonURLCols []string
	for _, col := range t.Columns {
		urls, linkedins, total := 0, 0, 0
		for _, row := range t.Rows {
			val := row[col]
			total++
			if looksLikeURL(val) {
				urls++
			}
			if looksLikeLinkedIn(val) {
				linkedins++
			}
		}
		if total > 0 && float64(urls)/float64(total) > 0.5 {
			urlCols = append(urlCols, col)
			if float64(linkedins)/float64(total) > 0.3 {
				linkedinCols = append(linkedinCols, col)
			} else {
				siteCols = append(siteCols, col)
			}
		} else {
			nonURLCols = append(nonURLCols, col)
		}
	}

	rename := map[string]string{}
	if len(siteCols) > 0 {
		rename[siteCols[0]] = model.ColWebsite
	} else if len(urlCols) > 0 {
		rename[urlCols[0]] = model.ColWebsite
	}
	if len(linkedinCols) > 0 {
		rename[linkedinCols[0]] = model.ColLinkedIn
	}
	if len(nonURLCols) > 0 {
		rename[nonURLCols[0]] = model.ColCompanyName
		if len(nonURLCols) > 1 {
			rename[nonURLCols[1]] = model.ColDescription
		}
	}

	t.renameColumns(rename)

	// A site list with no name column still needs names; fall back to the
	// bare domain.
	if t.hasColumn(model.ColWebsite) && !t.hasColumn(model.ColCompanyName) {
		t.Columns = append(t.Columns, model.ColCompanyName)
		for _, row := range t.Rows {
			row[model.ColCompanyName] = domainOf(row[model.ColWebsite])
		}
	}
	t.EnsureColumns([]string{model.ColCompanyName, model.ColWebsite})
}

func (t *Table) renameColumns(rename map[string]string) {
	if len(rename) == 0 {
		return
	}
	for i, col := range t.Columns {
		if to, ok := rename[col]; ok {
			t.Columns[i] = to
		}
	}
	for _, row := range t.Rows {
		for from, to := range rename {
			if val, ok := row[from]; ok {
				delete(row, from)
				row[to] = val
			}
		}
	}
}

func (t *Table) hasColumn(name string) bool {
	for _, col := range t.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// EnsureColumns appends any missing columns, preserving existing order.
func (t *Table) EnsureColumns(cols []string) {
	for _, col := range cols {
		if !t.hasColumn(col) {
			t.Columns = append(t.Columns, col)
		}
	}
}

func looksLikeURL(val string) bool {
	v := strings.ToLower(strings.TrimSpace(val))
	if v == "" {
		return false
	}
	if strings.HasPrefix(v, "http") || strings.HasPrefix(v, "www.") {
		return true
	}
	if strings.Contains(v, ".") && strings.Contains(v, "/") {
		return true
	}
	parts := strings.Split(v, ".")
	if len(parts) >= 2 && len(parts[len(parts)-1]) >= 2 && !strings.Contains(v, " ") {
		return true
	}
	return false
}

func looksLikeLinkedIn(val string) bool {
	return strings.Contains(strings.ToLower(val), "linkedin.com")
}

// domainOf reduces a website value to its bare domain.
func domainOf(site string) string {
	v := strings.ToLower(strings.TrimSpace(site))
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	v = strings.TrimPrefix(v, "www.")
	v = strings.TrimRight(v, "/")
	domain, _, _ := strings.Cut(v, "/")
	return domain
}

// FromWebsites builds a table from a bare list of websites, deriving each
// company name from the domain.
func FromWebsites(websites []string) *Table {
	t := &Table{Columns: []string{model.ColCompanyName, model.ColWebsite}}
	for _, site := range websites {
		site = strings.TrimSpace(site)
		if site == "" {
			continue
		}
		t.Rows = append(t.Rows, model.Record{
			model.ColCompanyName: domainOf(site),
			model.ColWebsite:     site,
		})
	}
	return t
}

// Company is one explicit input row for table construction.
type Company struct {
	Name    string
	Website string
}

// FromCompanies builds a table from explicit name/website pairs, deriving
// the name from the domain when absent. Rows with neither are dropped.
func FromCompanies(companies []Company) *Table {
	t := &Table{Columns: []string{model.ColCompanyName, model.ColWebsite}}
	for _, c := range companies {
		name := strings.TrimSpace(c.Name)
		site := strings.TrimSpace(c.Website)
		if name == "" && site == "" {
			continue
		}
		if name == "" {
			name = domainOf(site)
		}
		t.Rows = append(t.Rows, model.Record{
			model.ColCompanyName: name,
			model.ColWebsite:     site,
		})
	}
	return t
}

// Key returns the identity key for resume and merge: the lower-cased trimmed
// website, falling back to the company name when the website is absent.
func Key(website, name string) string {
	if k := strings.ToLower(strings.TrimSpace(website)); k != "" {
		return k
	}
	return strings.ToLower(strings.TrimSpace(name))
}

// KeyOf returns the identity key of a row.
func KeyOf(row model.Record) string {
	return Key(row[model.ColWebsite], row[model.ColCompanyName])
}
