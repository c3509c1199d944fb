//go:build integration

package main

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionToken = "0123456789ABCDEF"

// fakeArchive serves the session, catalog and download endpoints for one session
// CNDA_E1 (label SUBJ001) and one PUP assessor.
type fakeArchive struct {
	server  *httptest.Server
	deletes atomic.Int32
	zips    map[string][]byte
	// failing maps a download path to the status it answers with.
	failing map[string]int
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newFakeArchive(t *testing.T) *fakeArchive {
	t.Helper()
	fa := &fakeArchive{failing: map[string]int{}, zips: map[string][]byte{
		"/data/experiments/CNDA_E1/scans/4/files": zipOf(t, map[string]string{
			"SUBJ001/scans/4-T1w/resources/DICOM/files/1.dcm": "t1-1",
			"SUBJ001/scans/4-T1w/resources/DICOM/files/2.dcm": "t1-2",
		}),
		"/data/experiments/CNDA_E1/scans/7/files": zipOf(t, map[string]string{
			"SUBJ001/scans/7-BOLD/resources/NIFTI/files/bold.nii": "bold",
		}),
		"/data/experiments/CNDA_E1/assessors/CNDA_E1_PUPTIMECOURSE_1/resources/DATA/files": zipOf(t, map[string]string{
			"CNDA_E1_PUPTIMECOURSE_1/out/resources/DATA/files/pet.suvr.nii": "suvr",
			"CNDA_E1_PUPTIMECOURSE_1/out/resources/DATA/files/pet.tac":      "tac",
		}),
	}}

	fa.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/data/JSESSION" {
			switch r.Method {
			case http.MethodDelete:
				fa.deletes.Add(1)
			default:
				if _, pass, ok := r.BasicAuth(); !ok || pass != "secret" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				_, _ = w.Write([]byte(sessionToken))
			}
			return
		}
		if c, err := r.Cookie("JSESSIONID"); err != nil || c.Value != sessionToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch r.URL.Path {
		case "/data/version":
			_, _ = w.Write([]byte("1.8.10"))
		case "/data/experiments":
			_, _ = w.Write([]byte("ID,label,URI\n"))
			if r.URL.Query().Get("ID") == "CNDA_E1" {
				_, _ = w.Write([]byte("CNDA_E1,SUBJ001,/data/experiments/CNDA_E1\n"))
			}
		case "/data/experiments/CNDA_E1/scans":
			_, _ = w.Write([]byte("xnat_imagescandata_id,ID,type,series_description\n" +
				"101,1,localizer,localizer\n104,4,T1w,MPRAGE\n107,7,BOLD,rest\n"))
		default:
			if status, ok := fa.failing[r.URL.Path]; ok {
				w.WriteHeader(status)
				return
			}
			data, ok := fa.zips[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Length", fmt.Sprint(len(data)))
			_, _ = w.Write(data)
		}
	}))
	t.Cleanup(fa.server.Close)
	return fa
}

func readManifest(t *testing.T, logDir, kind string) [][]string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(logDir, "download_"+kind+"_catalog_*.csv"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	f, err := os.Open(matches[0])
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestScansEndToEnd(t *testing.T) {
	fa := newFakeArchive(t)
	root := t.TempDir()
	dest := filepath.Join(root, "out")
	logDir := filepath.Join(root, "logs")
	cfgPath := writeConfig(t, root, logDir)

	ids := filepath.Join(root, "ids.csv")
	require.NoError(t, os.WriteFile(ids, []byte("CNDA_E1\nCNDA_E404\n"), 0o600))
	types := filepath.Join(root, "types.csv")
	require.NoError(t, os.WriteFile(types, []byte("T1w\nBOLD\n"), 0o600))

	args := []string{"--config", cfgPath, "scans", fa.server.URL, dest,
		"-c", ids, "-t", types, "-u", "alice", "-p", "secret", "--create-logs"}
	require.NoError(t, execute(args...))

	for path, content := range map[string]string{
		"SUBJ001/T1w/DICOM/1.dcm":     "t1-1",
		"SUBJ001/T1w/DICOM/2.dcm":     "t1-2",
		"SUBJ001/BOLD/NIFTI/bold.nii": "bold",
	} {
		data, err := os.ReadFile(filepath.Join(dest, path))
		require.NoError(t, err, path)
		assert.Equal(t, content, string(data))
	}
	_, err := os.Stat(filepath.Join(dest, "SUBJ001", "localizer"))
	assert.True(t, os.IsNotExist(err), "unselected scans are not downloaded")

	zips, err := filepath.Glob(filepath.Join(dest, "SUBJ001", "*.zip"))
	require.NoError(t, err)
	assert.Empty(t, zips, "artifacts are removed after expansion")

	rows := readManifest(t, logDir, "scans")
	assert.Equal(t, [][]string{
		{"subject_id", "subject_label", "resource_id", "type_name", "status", "detail"},
		{"CNDA_E1", "SUBJ001", "4", "T1w", "downloaded", "2 files"},
		{"CNDA_E1", "SUBJ001", "7", "BOLD", "downloaded", "1 file"},
		{"CNDA_E404", "", "", "", "not_found", rows[3][5]},
	}, rows)
	assert.Equal(t, int32(1), fa.deletes.Load(), "the session is closed once")

	// A second run leaves the tree as it is.
	require.NoError(t, execute(args...))
	data, err := os.ReadFile(filepath.Join(dest, "SUBJ001/T1w/DICOM/1.dcm"))
	require.NoError(t, err)
	assert.Equal(t, "t1-1", string(data))
	entries, err := os.ReadDir(filepath.Join(dest, "SUBJ001", "T1w"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestScansFailedDownloadStillClosesSession(t *testing.T) {
	fa := newFakeArchive(t)
	fa.failing["/data/experiments/CNDA_E1/scans/4/files"] = http.StatusBadGateway
	root := t.TempDir()
	dest := filepath.Join(root, "out")
	logDir := filepath.Join(root, "logs")
	cfgPath := writeConfig(t, root, logDir)

	require.NoError(t, execute("--config", cfgPath, "scans", fa.server.URL, dest,
		"-i", "CNDA_E1", "-u", "alice", "-p", "secret", "--create-logs"))

	rows := readManifest(t, logDir, "scans")
	require.Len(t, rows, 4)
	byScan := map[string][]string{}
	for _, row := range rows[1:] {
		byScan[row[2]] = row
	}
	assert.Equal(t, "download_failed", byScan["4"][4])
	assert.Contains(t, byScan["4"][5], "502")
	assert.Equal(t, "downloaded", byScan["7"][4], "later scans are still fetched")

	_, err := os.Stat(filepath.Join(dest, "SUBJ001", "T1w"))
	assert.True(t, os.IsNotExist(err))
	assert.FileExists(t, filepath.Join(dest, "SUBJ001", "BOLD", "NIFTI", "bold.nii"))

	stores, err := filepath.Glob(filepath.Join(root, "state", "*.session"))
	require.NoError(t, err)
	assert.Empty(t, stores, "the token store is removed on close")
	assert.Equal(t, int32(1), fa.deletes.Load())
}

func TestPUPEndToEnd(t *testing.T) {
	fa := newFakeArchive(t)
	root := t.TempDir()
	dest := filepath.Join(root, "out")
	cfgPath := writeConfig(t, root, filepath.Join(root, "logs"))
	metricsFile := filepath.Join(root, "karidf.prom")

	require.NoError(t, execute("--config", cfgPath, "pup", fa.server.URL, dest,
		"-i", "CNDA_E1_PUPTIMECOURSE_1", "-u", "alice", "-p", "secret",
		"--download-suvr", "--metrics-file", metricsFile))

	resourceDir := filepath.Join(dest, "SUBJ001", "CNDA_E1_PUPTIMECOURSE_1", "DATA")
	data, err := os.ReadFile(filepath.Join(resourceDir, "pet.suvr.nii"))
	require.NoError(t, err)
	assert.Equal(t, "suvr", string(data))
	_, err = os.Stat(filepath.Join(resourceDir, "pet.tac"))
	assert.True(t, os.IsNotExist(err), "files outside the selection are not expanded")

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `karidf_resources_total{kind="pup",status="downloaded"} 1`)
}

func TestScansWrongPassword(t *testing.T) {
	fa := newFakeArchive(t)
	root := t.TempDir()
	cfgPath := writeConfig(t, root, "")

	err := execute("--config", cfgPath, "scans", fa.server.URL, filepath.Join(root, "out"),
		"-i", "CNDA_E1", "-u", "alice", "-p", "nope")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid credentials"), err.Error())
}

func TestCheckCommand(t *testing.T) {
	fa := newFakeArchive(t)
	cfgPath := writeConfig(t, t.TempDir(), "")

	output, err := captureStdout(t, func() error {
		return execute("--config", cfgPath, "check", fa.server.URL, "-u", "alice", "-p", "secret")
	})
	require.NoError(t, err)
	assert.Contains(t, output, "authenticated as alice, archive version 1.8.10")
	assert.Equal(t, int32(1), fa.deletes.Load())
}
