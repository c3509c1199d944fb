// Package input reads the subject ID list and the scan type selection list.
// Both are single-column CSV files without a header row.
package input

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
)

// SubjectSource names where the subject IDs of a run come from. Exactly one of
// ListPath and SingleID must be set.
type SubjectSource struct {
	ListPath string
	SingleID string
}

// Validate checks that exactly one source is given.
func (s SubjectSource) Validate() error {
	switch {
	case s.ListPath == "" && s.SingleID == "":
		return pkgerrors.ErrNoSubjectSource
	case s.ListPath != "" && s.SingleID != "":
		return pkgerrors.ErrBothSubjectSources
	}
	return nil
}

// Load returns the ordered subject IDs. Duplicates are kept.
func (s SubjectSource) Load() ([]string, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.SingleID != "" {
		return []string{strings.TrimSpace(s.SingleID)}, nil
	}
	ids, err := ReadColumnFile(s.ListPath)
	if err != nil {
		return nil, err
	}
	return TrimIDs(ids), nil
}

// ReadColumnFile reads the first column of every non-blank row of the CSV at path.
func ReadColumnFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	values, err := ReadColumn(f)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read %s", path)
	}
	return values, nil
}

// ReadColumn reads the first column of every row. Rows whose first cell is blank are skipped.
func ReadColumn(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var out []string
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		if len(rec) == 0 {
			continue
		}
		v := strings.TrimPrefix(rec[0], "\ufeff")
		if strings.TrimSpace(v) == "" {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// ReadSelection reads scan type names. Type names are compared verbatim, so inner and
// trailing spaces are preserved; only the line terminator is dropped.
func ReadSelection(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	return ReadColumnFile(path)
}

// TrimIDs trims surrounding whitespace from each ID.
func TrimIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
