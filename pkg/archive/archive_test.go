package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeZip writes a stored (uncompressed) zip with the given members.
func writeZip(t *testing.T, path string, files map[string]string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for name, content := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return buf.Bytes()
}

var scanZip = map[string]string{
	"SUBJ001/scans/4-T1w/resources/DICOM/files/1.dcm":      "dicom one",
	"SUBJ001/scans/4-T1w/resources/DICOM/files/2.dcm":      "dicom two",
	"SUBJ001/scans/4-T1w/resources/NIFTI/files/t1w.nii.gz": "nifti",
}

func TestVerify(t *testing.T) {
	t.Run("valid zip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "CNDA_E1_4.zip")
		writeZip(t, path, scanZip)

		err := NewManager().Verify(context.Background(), &model.RetrievedArtifact{Path: path})
		require.NoError(t, err)
		assert.FileExists(t, path)
	})

	corruptions := []struct {
		name   string
		mangle func(data []byte) []byte
	}{
		{
			name: "checksum mismatch",
			mangle: func(data []byte) []byte {
				i := bytes.Index(data, []byte("dicom one"))
				out := append([]byte(nil), data...)
				out[i] = 'D'
				return out
			},
		},
		{
			name: "truncated",
			mangle: func(data []byte) []byte {
				return data[:len(data)-40]
			},
		},
		{
			name: "html error page",
			mangle: func([]byte) []byte {
				return []byte("<html><body>Session expired</body></html>")
			},
		},
	}

	for _, tt := range corruptions {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "CNDA_E1_4.zip")
			data := writeZip(t, path, scanZip)
			require.NoError(t, os.WriteFile(path, tt.mangle(data), 0o644))

			err := NewManager().Verify(context.Background(), &model.RetrievedArtifact{Path: path})
			require.Error(t, err)

			var unpackErr *pkgerrors.UnpackError
			assert.ErrorAs(t, err, &unpackErr)
			assert.ErrorIs(t, err, pkgerrors.ErrCorruptArchive)
			assert.NoFileExists(t, path, "corrupt artifact must be removed")
		})
	}
}

func TestUnpack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "CNDA_E1_4.zip")
	writeZip(t, path, scanZip)

	dest := filepath.Join(dir, "SUBJ001", "T1w")
	n, err := NewManager().Unpack(context.Background(), &model.RetrievedArtifact{Path: path}, dest, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for name, content := range scanZip {
		data, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		assert.Equal(t, content, string(data))
	}
	assert.NoFileExists(t, path, "artifact is removed after expansion")
}

func TestUnpack_Filter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "E1_freesurfer_1_DATA.zip")
	writeZip(t, path, map[string]string{
		"E1_freesurfer_1/out/resources/DATA/files/mri/aseg.mgz":       "mgz",
		"E1_freesurfer_1/out/resources/DATA/files/scripts/recon.log":  "log",
		"E1_freesurfer_1/out/resources/DATA/files/surf/lh.white":      "white",
		"E1_freesurfer_1/out/resources/DATA/files/stats/aseg.stats":   "stats",
		"E1_freesurfer_1/out/resources/DATA/files/label/lh.cortex.la": "label",
	})

	dest := filepath.Join(dir, "DATA")
	onlyMGZ := func(name string) bool { return strings.HasSuffix(name, ".mgz") }

	n, err := NewManager().Unpack(context.Background(), &model.RetrievedArtifact{Path: path}, dest, onlyMGZ)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.FileExists(t, filepath.Join(dest, "E1_freesurfer_1", "out", "resources", "DATA", "files", "mri", "aseg.mgz"))
	assert.NoDirExists(t, filepath.Join(dest, "E1_freesurfer_1", "out", "resources", "DATA", "files", "surf"))
}

func TestUnpack_NotAnArchiveKeepsArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.bin")
	require.NoError(t, os.WriteFile(path, []byte("just bytes"), 0o644))

	_, err := NewManager().Unpack(context.Background(), &model.RetrievedArtifact{Path: path}, filepath.Join(dir, "out"), nil)
	require.Error(t, err)
	var unpackErr *pkgerrors.UnpackError
	assert.ErrorAs(t, err, &unpackErr)
	assert.FileExists(t, path, "artifact is left for inspection")
}

func TestExtractEntry_RejectsEscapingPaths(t *testing.T) {
	dest := t.TempDir()
	_, err := NewManager().extractEntry(nil, "../evil.txt", dest, nil, nil)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidFilePath)
}

func TestUnpack_ReplacesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out")
	existing := filepath.Join(dest, "a", "b.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("old content that is longer"), 0o644))

	path := filepath.Join(dir, "x.zip")
	writeZip(t, path, map[string]string{"a/b.txt": "new"})

	_, err := NewManager().Unpack(context.Background(), &model.RetrievedArtifact{Path: path}, dest, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
