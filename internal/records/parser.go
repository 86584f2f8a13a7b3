// Package records turns a raw CSV stream into typed unenroll rows.
//
// The header row maps columns by name, so column order in the file does not
// matter. The columns username, email and course_id are required in the
// header; every other column is carried through untouched as an audit field.
package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Recognized column names.
const (
	ColUsername = "username"
	ColEmail    = "email"
	ColCourseID = "course_id"
)

// RequiredColumns must all be present in the header row.
var RequiredColumns = []string{ColUsername, ColEmail, ColCourseID}

var (
	// ErrNoHeader is returned for a source without any header row.
	ErrNoHeader = errors.New("no header row")

	// ErrMissingColumn is returned when the header lacks a required column.
	ErrMissingColumn = errors.New("missing required column")
)

// Field is a passthrough column value.
type Field struct {
	Name  string
	Value string
}

// Row is one candidate unenroll request.
type Row struct {
	// Line is the 1-based line in the source where the record starts.
	Line     int
	Username string
	Email    string
	CourseID string

	// Extra holds every non-recognized column in header order.
	// Cells missing from a short record are present with an empty value.
	Extra []Field

	// Short is set when the record had fewer cells than the header.
	Short bool
}

// Field returns the named passthrough value, if present.
func (r Row) Field(name string) (string, bool) {
	for _, f := range r.Extra {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Batch is the parsed content of one source.
type Batch struct {
	// Header is the cleaned header row in file order.
	Header []string
	Rows   []Row
}

// ExtraColumns returns the passthrough column names in header order.
func (b *Batch) ExtraColumns() []string {
	var cols []string
	seen := make(map[string]bool, len(b.Header))
	for _, h := range b.Header {
		if isRecognized(h) || seen[h] {
			continue
		}
		seen[h] = true
		cols = append(cols, h)
	}
	return cols
}

// HeaderIndex maps cleaned column names to their position in a record.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a HeaderIndex from a header record.
// When a name repeats, the first occurrence wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := CleanHeader(h)
		if _, exists := idx[key]; !exists {
			idx[key] = i
		}
	}
	return idx
}

// CleanHeader normalizes a header cell: trims whitespace, lowercases and
// strips the ="..." wrapper spreadsheets add to force text cells.
func CleanHeader(h string) string {
	h = strings.TrimSpace(h)
	if strings.HasPrefix(h, `="`) && strings.HasSuffix(h, `"`) && len(h) >= 3 {
		h = h[2 : len(h)-1]
	}
	return strings.ToLower(strings.TrimSpace(h))
}

// CleanCell trims surrounding whitespace from a data cell.
func CleanCell(v string) string {
	return strings.TrimSpace(v)
}

// Options controls parsing.
type Options struct {
	// MaxBytes caps the raw input size. Zero or negative means unlimited.
	MaxBytes int64
}

// Parse reads the whole source and returns its rows in input order.
//
// Only I/O failures, an oversized source, or an unusable header fail the
// parse. Individual short records are kept with empty values so that they
// surface later as skipped rows instead of disappearing.
func Parse(r io.Reader, opts Options) (*Batch, error) {
	reader := csv.NewReader(wrapInput(r, opts.MaxBytes))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cleaned := make([]string, len(header))
	for i, h := range header {
		cleaned[i] = CleanHeader(h)
	}

	headerIdx := MakeHeaderIndex(header)
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := headerIdx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	batch := &Batch{Header: cleaned}
	lastLine, _ := reader.FieldPos(0)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, fmt.Errorf("read record at line %d: %w", perr.StartLine, err)
			}
			return nil, fmt.Errorf("read record after line %d: %w", lastLine, err)
		}

		line, _ := reader.FieldPos(0)
		lastLine = line
		if isBlank(record) {
			continue
		}

		batch.Rows = append(batch.Rows, buildRow(line, record, cleaned, headerIdx))
	}

	return batch, nil
}

func buildRow(line int, record, header []string, idx HeaderIndex) Row {
	cell := func(col string) string {
		pos := idx[col]
		if pos >= len(record) {
			return ""
		}
		return CleanCell(record[pos])
	}

	row := Row{
		Line:     line,
		Username: cell(ColUsername),
		Email:    cell(ColEmail),
		CourseID: cell(ColCourseID),
		Short:    len(record) < len(header),
	}

	for i, name := range header {
		if isRecognized(name) || idx[name] != i {
			continue
		}
		value := ""
		if i < len(record) {
			value = CleanCell(record[i])
		}
		row.Extra = append(row.Extra, Field{Name: name, Value: value})
	}

	return row
}

func isRecognized(col string) bool {
	return col == ColUsername || col == ColEmail || col == ColCourseID
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
