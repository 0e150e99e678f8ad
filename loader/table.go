package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// MissingColumnError reports a required column absent from a dataset header.
type MissingColumnError struct {
	Path   string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: missing required column %q", e.Path, e.Column)
}

// errMalformed marks a row that could not be parsed and should be skipped.
var errMalformed = errors.New("malformed row")

// table reads a CSV file with a header row, addressing fields by column name.
type table struct {
	path   string
	f      *os.File
	r      *csv.Reader
	index  map[string]int
	fields int
}

func openTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false

	header, err := r.Read()
	if err != nil {
		f.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("%s: empty file", path)
		}
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		index[strings.TrimSpace(h)] = i
	}
	return &table{path: path, f: f, r: r, index: index, fields: len(header)}, nil
}

func (t *table) Close() error { return t.f.Close() }

// require fails with a MissingColumnError for the first absent column.
// Empty names are ignored so optional columns can be passed unconditionally.
func (t *table) require(cols ...string) error {
	for _, c := range cols {
		if c == "" {
			continue
		}
		if _, ok := t.index[c]; !ok {
			return &MissingColumnError{Path: t.path, Column: c}
		}
	}
	return nil
}

// next returns the next record, errMalformed for a row that failed to parse
// or whose field count differs from the header, or io.EOF at the end of the
// file.
func (t *table) next() (record, error) {
	rec, err := t.r.Read()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return record{}, errMalformed
		}
		return record{}, err
	}
	if len(rec) != t.fields {
		return record{}, errMalformed
	}
	return record{t: t, fields: rec}, nil
}

type record struct {
	t      *table
	fields []string
}

// get returns the trimmed value of col, or "" when the column is unknown or
// the row is short.
func (r record) get(col string) string {
	if col == "" {
		return ""
	}
	i, ok := r.t.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}
