package input

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "list.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSubjectSource_Validate(t *testing.T) {
	tests := []struct {
		name    string
		source  SubjectSource
		wantErr error
	}{
		{name: "list only", source: SubjectSource{ListPath: "ids.csv"}},
		{name: "single only", source: SubjectSource{SingleID: "CNDA_E1"}},
		{name: "neither", source: SubjectSource{}, wantErr: pkgerrors.ErrNoSubjectSource},
		{name: "both", source: SubjectSource{ListPath: "ids.csv", SingleID: "CNDA_E1"}, wantErr: pkgerrors.ErrBothSubjectSources},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.source.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSubjectSource_Load(t *testing.T) {
	t.Run("list keeps order and duplicates", func(t *testing.T) {
		path := writeFile(t, "CNDA_E1\nCNDA_E2, extra\n\n CNDA_E1 \n")
		ids, err := SubjectSource{ListPath: path}.Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"CNDA_E1", "CNDA_E2", "CNDA_E1"}, ids)
	})

	t.Run("single id", func(t *testing.T) {
		ids, err := SubjectSource{SingleID: " CNDA_E7 "}.Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"CNDA_E7"}, ids)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := SubjectSource{ListPath: filepath.Join(t.TempDir(), "nope.csv")}.Load()
		assert.Error(t, err)
	})
}

func TestReadColumn(t *testing.T) {
	values, err := ReadColumn(strings.NewReader("\ufeffT1w\nT1w MPRAGE\n\"DTI, 64\"\nFLAIR \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"T1w", "T1w MPRAGE", "DTI, 64", "FLAIR "}, values)
}

func TestReadSelection(t *testing.T) {
	values, err := ReadSelection("")
	require.NoError(t, err)
	assert.Nil(t, values)

	path := writeFile(t, "FLAIR\nDTI\n")
	values, err = ReadSelection(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"FLAIR", "DTI"}, values)
}
