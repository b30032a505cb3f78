package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geuebt/internal/config"
	"geuebt/testutil"
)

func memoryConfig() config.Config {
	return config.Config{
		Server:  config.Server{Host: "127.0.0.1", Port: 8000, ReadHeaderTimeout: time.Second, ShutdownTimeout: time.Second, MaxBodySize: "1MiB"},
		Storage: config.Storage{Driver: config.StorageMemory},
		Blob:    config.Blob{Driver: "memory"},
		Log:     config.Log{Level: "debug", Format: "text"},
		Metrics: config.Metrics{Enabled: true, Path: "/metrics"},
	}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec // test server
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServeLifecycle(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "spans.jsonl")
	app, err := newApp(context.Background(), memoryConfig(), testutil.NewTestLogger(t), &ServeOptions{TraceFile: tracePath})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	status, body := get(t, base+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body)

	raw, err := json.Marshal(sheet("2025-0001-01"))
	require.NoError(t, err)
	resp, err := http.Post(base+"/isolates/", "application/json", bytes.NewReader(raw)) //nolint:gosec // test server
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, body = get(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `geuebt_operations_total{operation="create_isolate",status="success"} 1`)
	assert.Contains(t, body, "go_goroutines")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	require.NoError(t, app.Close())

	spans, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	assert.Contains(t, string(spans), `"operation":"create_isolate"`)
}

func TestServeWithoutMetrics(t *testing.T) {
	cfg := memoryConfig()
	cfg.Metrics.Enabled = false
	app, err := newApp(context.Background(), cfg, testutil.NewTestLogger(t), &ServeOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	status, _ := get(t, "http://"+ln.Addr().String()+"/metrics")
	assert.Equal(t, http.StatusNotFound, status)

	cancel()
	require.NoError(t, <-done)
}

func TestNewAppRejectsInvalidBodyLimit(t *testing.T) {
	cfg := memoryConfig()
	cfg.Server.MaxBodySize = "huge"
	_, err := newApp(context.Background(), cfg, testutil.NewTestLogger(t), &ServeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.max_body_size")
}

func TestNewAppRejectsUnknownBlobDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.Blob.Driver = "tape"
	_, err := newApp(context.Background(), cfg, testutil.NewTestLogger(t), &ServeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open tape blob store")
}
