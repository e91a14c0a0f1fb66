package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sofatutor/imagegen-proxy/internal/config"
	"github.com/sofatutor/imagegen-proxy/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedFileHistory(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.json")
	store, err := history.NewFileStore(path, 10)
	require.NoError(t, err)
	for _, p := range []string{"a lighthouse", "a red fox"} {
		_, err := store.Append(context.Background(), history.Record{
			Prompt:    p,
			Model:     "flux-schnell",
			ImageURLs: []string{"https://cdn.example.com/1.png"},
			Success:   true,
		})
		require.NoError(t, err)
	}
	t.Setenv("HISTORY_BACKEND", "file")
	t.Setenv("HISTORY_PATH", path)
	return path
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestHistoryExport_JSON(t *testing.T) {
	seedFileHistory(t)

	out, err := runRoot(t, "history", "export")
	require.NoError(t, err)

	var records []history.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "a red fox", records[0].Prompt)
}

func TestHistoryExport_CSVToFile(t *testing.T) {
	seedFileHistory(t)
	dest := filepath.Join(t.TempDir(), "export.csv")

	_, err := runRoot(t, "history", "export", "--format", "csv", "-o", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "id,date,prompt"))
}

func TestHistoryExport_UnknownFormat(t *testing.T) {
	seedFileHistory(t)

	_, err := runRoot(t, "history", "export", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export format")
}

func TestHistoryStatsAndDelete(t *testing.T) {
	path := seedFileHistory(t)

	out, err := runRoot(t, "history", "stats")
	require.NoError(t, err)
	var stats history.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.Total)

	store, err := history.NewFileStore(path, 10)
	require.NoError(t, err)
	records, err := store.Records(context.Background())
	require.NoError(t, err)

	out, err = runRoot(t, "history", "delete", records[0].ID, "unknown-id")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 2 record(s)")

	records, err = store.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a lighthouse", records[0].Prompt)
}

func TestHistory_InvalidBackend(t *testing.T) {
	t.Setenv("HISTORY_BACKEND", "s3")

	_, err := runRoot(t, "history", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HISTORY_BACKEND")
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("IMAGEPROXY_TEST_VALUE=from-file\n"), 0o644))
	t.Setenv("IMAGEPROXY_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("IMAGEPROXY_TEST_VALUE"))

	loadEnvFile(path)
	assert.Equal(t, "from-file", os.Getenv("IMAGEPROXY_TEST_VALUE"))

	// Missing files are skipped silently.
	loadEnvFile(filepath.Join(t.TempDir(), "nope.env"))
}

func TestApplyServerFlags(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":8080")
	t.Setenv("LOG_LEVEL", "info")
	defer func() {
		serverListenAddr, serverLogLevel, debugMode = "", "", false
	}()

	serverListenAddr = ":9999"
	debugMode = true
	require.NoError(t, applyServerFlags())
	assert.Equal(t, ":9999", os.Getenv("LISTEN_ADDR"))
	assert.Equal(t, "debug", os.Getenv("LOG_LEVEL"))
}

func TestBuildServer(t *testing.T) {
	catalogPath := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(`
default_model: sdxl
models:
  - id: sdxl
styles:
  - id: noir
    name: Noir
    suffix: black and white, high contrast
`), 0o644))

	cfg := config.DefaultConfig()
	cfg.LogLevel = "error"
	cfg.Upstream.BaseURL = "http://upstream.invalid"
	cfg.Upstream.APIKey = "operator-key"
	cfg.CatalogFile = catalogPath
	cfg.History.Path = filepath.Join(t.TempDir(), "history.json")

	srv, store, err := buildServer(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"sdxl"`)

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, rr.Body.String(), "file:")
}

func TestBuildServer_BadCatalog(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Upstream.BaseURL = "http://upstream.invalid"
	cfg.Upstream.APIKey = "operator-key"
	cfg.CatalogFile = filepath.Join(t.TempDir(), "missing.toml")

	_, _, err := buildServer(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}
