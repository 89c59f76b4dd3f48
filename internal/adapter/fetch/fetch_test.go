package fetch

import (
	"archive/zip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(attempts int) *Client {
	return testClientWithStall(attempts, 5*time.Second)
}

func testClientWithStall(attempts int, stall time.Duration) *Client {
	c := NewClient(stall, attempts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.delay = time.Millisecond
	return c
}

func TestClient_Download_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/outgoing/whse_fish/species_cd.csv.zip", r.URL.Path)
		_, _ = w.Write([]byte("zip-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "species_cd.csv.zip")
	n, err := testClient(3).Download(context.Background(), srv.URL+"/outgoing/whse_fish/species_cd.csv.zip", dest)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(got))
}

func TestClient_Download_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "file.zip")
	_, err := testClient(3).Download(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Download_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "file.zip")
	_, err := testClient(3).Download(context.Background(), srv.URL, dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.Temporary())

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "no file should be left behind")
}

func TestClient_Download_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(2).Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "f"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Download_SlowTransferOutlastsStallTimeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		// Six chunks 40ms apart: longer in total than the stall timeout,
		// but never idle for that long.
		for i := 0; i < 6; i++ {
			_, _ = w.Write([]byte("chunk"))
			flusher.Flush()
			time.Sleep(40 * time.Millisecond)
		}
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "fiss_fish_obsrvtn_pnt_sp.zip")
	n, err := testClientWithStall(3, 150*time.Millisecond).Download(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(30), n)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Download_StalledTransferFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "file.zip")
	_, err := testClientWithStall(2, 50*time.Millisecond).Download(context.Background(), srv.URL, dest)
	require.ErrorIs(t, err, errStalled)
	assert.Equal(t, int32(2), calls.Load(), "a stall is retried")

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "no file should be left behind")
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "species_cd.csv.zip")
	writeZip(t, archive, map[string]string{
		"species_cd.csv": "code,name\nCO,Coho\n",
	})

	paths, err := Extract(archive, dir)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "species_cd.csv", filepath.Base(paths[0]))

	got, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "code,name\nCO,Coho\n", string(got))
}

func TestExtract_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	writeZip(t, archive, map[string]string{"../outside.csv": "x"})

	_, err := Extract(archive, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes destination")
}

func TestExtract_NotAZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "broken.zip")
	require.NoError(t, os.WriteFile(archive, []byte("not a zip"), 0o600))

	_, err := Extract(archive, dir)
	require.Error(t, err)
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}
