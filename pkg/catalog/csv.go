package catalog

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
)

// table is a CSV response addressed by column name.
type table struct {
	columns map[string]int
	rows    [][]string
}

func parseTable(data []byte) (*table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return &table{columns: map[string]int{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrCatalogParse, err)
	}

	t := &table{columns: make(map[string]int, len(header))}
	for i, name := range header {
		t.columns[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", pkgerrors.ErrCatalogParse, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

func (t *table) require(names ...string) error {
	for _, n := range names {
		if _, ok := t.columns[n]; !ok {
			return fmt.Errorf("%w: missing column %q", pkgerrors.ErrCatalogParse, n)
		}
	}
	return nil
}

// get returns the named cell of row, or "" when the row is short or the column unknown.
func (t *table) get(row []string, name string) string {
	i, ok := t.columns[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
