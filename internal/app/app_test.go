package app

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/oeisdb/internal/config"
	"github.com/heartmarshall/oeisdb/internal/domain"
	"github.com/heartmarshall/oeisdb/internal/seeder/dataset"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadDataset_Missing(t *testing.T) {
	t.Parallel()

	items, err := loadDataset(filepath.Join(t.TempDir(), "nope.mjs"), discardLogger())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestLoadDataset_ReadsModule(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "entries.mjs")
	f, err := os.Create(path)
	require.NoError(t, err)
	want := []domain.DatasetItem{{Number: 45, Name: "Fibonacci numbers", Seq: []int64{0, 1, 1, 2}}}
	require.NoError(t, dataset.WriteModule(f, want))
	require.NoError(t, f.Close())

	items, err := loadDataset(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, want, items)
}

func TestLoadDataset_Corrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "entries.mjs")
	require.NoError(t, os.WriteFile(path, []byte("not a module"), 0o644))

	_, err := loadDataset(path, discardLogger())
	assert.Error(t, err)
}

func TestOpenStore_SQLite(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Storage: config.StorageConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "oeis.db"),
	}}

	store, closeFn, err := OpenStore(context.Background(), cfg, true, discardLogger())
	require.NoError(t, err)
	defer closeFn()

	require.NoError(t, store.Ping(context.Background()))
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Storage: config.StorageConfig{Driver: "mongo"}}
	_, _, err := OpenStore(context.Background(), cfg, false, discardLogger())
	assert.Error(t, err)
}

func TestSetupMetrics_None(t *testing.T) {
	t.Parallel()

	stop, err := SetupMetrics(context.Background(), config.MetricsConfig{Backend: config.MetricsNone}, discardLogger())
	require.NoError(t, err)
	stop()
}

func TestServe_GracefulShutdown(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := &http.Server{
		Addr: addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, srv, config.ServerConfig{ShutdownTimeout: time.Second}, discardLogger())
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
