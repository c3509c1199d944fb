package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeConfig writes a config file below dir keeping state and logs inside dir.
func writeConfig(t *testing.T, dir, logDir string) string {
	t.Helper()
	if logDir == "" {
		logDir = filepath.Join(dir, "logs")
	}
	path := filepath.Join(dir, "config.yaml")
	quote := func(p string) string { return strings.ReplaceAll(p, "\\", "\\\\") }

	yamlContent := "archive:\n" +
		"  http_timeout: 5s\n" +
		"  open_attempts: 1\n" +
		"settings:\n" +
		"  log_dir: " + quote(logDir) + "\n" +
		"  state_dir: " + quote(filepath.Join(dir, "state")) + "\n" +
		"  concurrency: 1\n" +
		"  log_level: info\n" +
		"  log_format: text\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))
	return path
}
