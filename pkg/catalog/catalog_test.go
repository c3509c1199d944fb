package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benzinger-icl/karidf-scripts/pkg/auth"
	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	archivehttp "github.com/benzinger-icl/karidf-scripts/pkg/http"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scanListCSV = `xnat_imagescandata_id,ID,type,quality,xsiType,note,series_description,URI
101,1,localizer,usable,xnat:mrScanData,,localizer,/data/experiments/CNDA_E1/scans/1
104,4,T1w,usable,xnat:mrScanData,,MPRAGE,/data/experiments/CNDA_E1/scans/4
107,7,BOLD,usable,xnat:mrScanData,,"rest, run 1",/data/experiments/CNDA_E1/scans/7
`

func newFakeArchive(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) *archivehttp.HTTPClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := archivehttp.NewHTTPClient(server.URL, 5*time.Second)
	require.NoError(t, err)
	return client
}

func labelRoute(labels map[string]string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("ID")
		_, _ = w.Write([]byte("ID,label,URI\n"))
		if label, ok := labels[id]; ok {
			_, _ = w.Write([]byte(id + "," + label + ",/data/experiments/" + id + "\n"))
		}
	}
}

func TestResolveLabel(t *testing.T) {
	client := newFakeArchive(t, map[string]func(http.ResponseWriter, *http.Request){
		archivehttp.ExperimentsPath: labelRoute(map[string]string{"CNDA_E1": "SUBJ001"}),
	})

	label, err := ResolveLabel(context.Background(), client, nil, "CNDA_E1")
	require.NoError(t, err)
	assert.Equal(t, "SUBJ001", label)

	_, err = ResolveLabel(context.Background(), client, nil, "CNDA_E404")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.ErrorIs(t, err, pkgerrors.ErrSubjectNotFound)
}

func TestResolveLabel_MissingColumn(t *testing.T) {
	client := newFakeArchive(t, map[string]func(http.ResponseWriter, *http.Request){
		archivehttp.ExperimentsPath: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ID,URI\nCNDA_E1,/x\n"))
		},
	})

	_, err := ResolveLabel(context.Background(), client, nil, "CNDA_E1")
	assert.ErrorIs(t, err, pkgerrors.ErrCatalogParse)
}

func TestScanCatalog_ListResources(t *testing.T) {
	client := newFakeArchive(t, map[string]func(http.ResponseWriter, *http.Request){
		archivehttp.ExperimentsPath: labelRoute(map[string]string{"CNDA_E1": "SUBJ001"}),
		"/data/experiments/CNDA_E1/scans": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "csv", r.URL.Query().Get("format"))
			_, _ = w.Write([]byte(scanListCSV))
		},
	})

	subject, err := NewScanCatalog(client).ListResources(context.Background(), nil, "CNDA_E1")
	require.NoError(t, err)

	assert.Equal(t, "CNDA_E1", subject.ID)
	assert.Equal(t, "SUBJ001", subject.Label)
	require.Len(t, subject.Entries, 3)

	assert.Equal(t, model.ResourceEntry{
		ResourceID:  "4",
		TypeName:    "T1w",
		Description: "MPRAGE",
		DownloadURI: "/data/experiments/CNDA_E1/scans/4/files",
		Owner:       "CNDA_E1",
	}, subject.Entries[1])
	assert.Equal(t, "rest, run 1", subject.Entries[2].Description)
	assert.Equal(t, []string{"1", "4", "7"}, []string{
		subject.Entries[0].ResourceID, subject.Entries[1].ResourceID, subject.Entries[2].ResourceID,
	})
}

func TestScanCatalog_UnknownSubject(t *testing.T) {
	client := newFakeArchive(t, map[string]func(http.ResponseWriter, *http.Request){
		archivehttp.ExperimentsPath: labelRoute(nil),
	})

	_, err := NewScanCatalog(client).ListResources(context.Background(), nil, "CNDA_E9")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestScanCatalog_ScanListMissing(t *testing.T) {
	client := newFakeArchive(t, map[string]func(http.ResponseWriter, *http.Request){
		archivehttp.ExperimentsPath: labelRoute(map[string]string{"CNDA_E1": "SUBJ001"}),
	})

	_, err := NewScanCatalog(client).ListResources(context.Background(), nil, "CNDA_E1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.ErrorIs(t, err, pkgerrors.ErrResourceNotFound)
}

func TestScanCatalog_Unauthorized(t *testing.T) {
	client := newFakeArchive(t, map[string]func(http.ResponseWriter, *http.Request){
		archivehttp.ExperimentsPath: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
	})

	s := &model.Session{Token: "expired"}
	_, err := NewScanCatalog(client).ListResources(context.Background(), auth.SessionAuth{Session: s}, "CNDA_E1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsAuth(err))
}

func TestExperimentID(t *testing.T) {
	tests := []struct {
		name        string
		kind        model.Kind
		assessor    string
		want        string
		expectError bool
	}{
		{name: "freesurfer", kind: model.KindFreeSurfer, assessor: "CNDA_E1_freesurfer_20200101120000", want: "CNDA_E1"},
		{name: "pup", kind: model.KindPUP, assessor: "CNDA_E2_PUPTIMECOURSE_20200101", want: "CNDA_E2"},
		{name: "wrong separator", kind: model.KindPUP, assessor: "CNDA_E1_freesurfer_1", expectError: true},
		{name: "no prefix", kind: model.KindFreeSurfer, assessor: "_freesurfer_1", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExperimentID(tt.kind, tt.assessor)
			if tt.expectError {
				assert.ErrorIs(t, err, pkgerrors.ErrInvalidAssessor)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDerivativeCatalog(t *testing.T) {
	client := newFakeArchive(t, map[string]func(http.ResponseWriter, *http.Request){
		archivehttp.ExperimentsPath: labelRoute(map[string]string{"CNDA_E2": "SUBJ002_PET"}),
	})

	t.Run("freesurfer uses assessor as label", func(t *testing.T) {
		id := "CNDA_E1_freesurfer_20200101"
		subject, err := NewFreeSurferCatalog(client, []string{ResourceSnapshots, ResourceData}).
			ListResources(context.Background(), nil, id)
		require.NoError(t, err)
		assert.Equal(t, id, subject.Label)
		require.Len(t, subject.Entries, 2)
		assert.Equal(t, "/data/experiments/CNDA_E1/assessors/"+id+"/resources/DATA/files", subject.Entries[1].DownloadURI)
		assert.Equal(t, id, subject.Entries[1].Owner)
	})

	t.Run("pup resolves session label", func(t *testing.T) {
		id := "CNDA_E2_PUPTIMECOURSE_20200101"
		subject, err := NewPUPCatalog(client, []string{ResourceLog}).ListResources(context.Background(), nil, id)
		require.NoError(t, err)
		assert.Equal(t, "SUBJ002_PET", subject.Label)
		assert.Equal(t, model.KindPUP, NewPUPCatalog(client, nil).Kind())
	})

	t.Run("pup with unknown session", func(t *testing.T) {
		_, err := NewPUPCatalog(client, []string{ResourceLog}).
			ListResources(context.Background(), nil, "CNDA_E3_PUPTIMECOURSE_1")
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("malformed assessor", func(t *testing.T) {
		_, err := NewFreeSurferCatalog(client, nil).ListResources(context.Background(), nil, "CNDA_E1")
		assert.True(t, pkgerrors.IsNotFound(err))
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidAssessor)
	})
}
