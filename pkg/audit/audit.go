// Package audit keeps the manifest of a run: one CSV line per attempted unit.
package audit

import (
	"encoding/csv"
	"io"
	"os"
	"sync"

	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/benzinger-icl/karidf-scripts/pkg/fsutil"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
)

// Recorder receives manifest records.
type Recorder interface {
	Record(rec model.LogRecord) error
}

// Manifest writes records as CSV. It is safe for concurrent use.
type Manifest struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	counts map[model.Status]int
	closed bool
}

// NewManifest writes the header to w and returns a manifest appending to it.
func NewManifest(w io.Writer) (*Manifest, error) {
	m := &Manifest{
		w:      csv.NewWriter(w),
		counts: make(map[model.Status]int),
	}
	if c, ok := w.(io.Closer); ok {
		m.closer = c
	}
	if err := m.writeRow(model.ManifestHeader); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateManifest creates the manifest file at path, truncating an existing one.
func CreateManifest(path string) (*Manifest, error) {
	if err := fsutil.EnsureFileDir(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fsutil.FileModeDefault)
	if err != nil {
		return nil, &pkgerrors.FilesystemError{Op: "create", Path: path, Err: err}
	}
	m, err := NewManifest(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return m, nil
}

// Record appends rec and flushes it, so a killed run keeps every line written so far.
func (m *Manifest) Record(rec model.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return pkgerrors.Wrap(os.ErrClosed, "manifest")
	}
	if err := m.writeRow(rec.Row()); err != nil {
		return err
	}
	m.counts[rec.Status]++
	return nil
}

func (m *Manifest) writeRow(row []string) error {
	if err := m.w.Write(row); err != nil {
		return pkgerrors.Wrap(err, "failed to write manifest record")
	}
	m.w.Flush()
	if err := m.w.Error(); err != nil {
		return pkgerrors.Wrap(err, "failed to flush manifest")
	}
	return nil
}

// Counts returns the number of records written per status.
func (m *Manifest) Counts() map[model.Status]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[model.Status]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

// Finalize flushes and closes the manifest. Calling it twice is a no-op.
func (m *Manifest) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.w.Flush()
	err := m.w.Error()
	if m.closer != nil {
		if cerr := m.closer.Close(); err == nil {
			err = cerr
		}
	}
	return pkgerrors.Wrap(err, "failed to finalize manifest")
}

// Tally counts records without writing them. It stands in for the manifest when
// no log files are requested.
type Tally struct {
	mu     sync.Mutex
	counts map[model.Status]int
}

// Record counts rec.
func (t *Tally) Record(rec model.LogRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts == nil {
		t.counts = make(map[model.Status]int)
	}
	t.counts[rec.Status]++
	return nil
}

// Counts returns the number of records seen per status.
func (t *Tally) Counts() map[model.Status]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[model.Status]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}
