package engine_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/rangedl/internal/engine"
	"github.com/NamanBalaji/rangedl/internal/metrics"
	"github.com/NamanBalaji/rangedl/internal/repository"
	"github.com/NamanBalaji/rangedl/internal/sink"
	"github.com/NamanBalaji/rangedl/internal/status"
	"github.com/NamanBalaji/rangedl/pkg/download"
)

type fileServer struct {
	*httptest.Server
	files    map[string][]byte
	requests atomic.Int32

	mu     sync.Mutex
	ranges map[string][]string
}

func newFileServer(t *testing.T, files map[string][]byte) *fileServer {
	t.Helper()

	fs := &fileServer{files: files, ranges: make(map[string][]string)}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.requests.Add(1)

		data, ok := fs.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}

		fs.mu.Lock()
		fs.ranges[r.URL.Path] = append(fs.ranges[r.URL.Path], r.Header.Get("Range"))
		fs.mu.Unlock()

		http.ServeContent(w, r, r.URL.Path, time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(fs.Close)

	return fs
}

func (fs *fileServer) rangesFor(p string) []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.ranges[p]...)
}

func testConfig(t *testing.T) *engine.Config {
	t.Helper()

	cfg := engine.DefaultConfig()
	cfg.DownloadDir = t.TempDir()
	cfg.MaxConcurrentDownloads = 2
	cfg.RangeLength = 1024
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.InactivityTimeout = 2 * time.Second
	cfg.CheckpointEvery = 2048

	return cfg
}

func openRepo(t *testing.T) *repository.BboltRepository {
	t.Helper()

	repo, err := repository.NewBboltRepository(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return repo
}

func blob(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7) ^ seed
	}
	return b
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestRun_DownloadsEveryJob(t *testing.T) {
	files := map[string][]byte{
		"/a.bin": blob(5000, 1),
		"/b.bin": blob(12000, 2),
		"/c.bin": blob(1, 3),
	}
	server := newFileServer(t, files)
	cfg := testConfig(t)
	repo := openRepo(t)

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	e, err := engine.New(cfg, repo, engine.WithMetrics(collector))
	require.NoError(t, err)

	jobs := []engine.Job{
		{URL: server.URL + "/a.bin", SHA256: digest(files["/a.bin"])},
		{URL: server.URL + "/b.bin"},
		{URL: server.URL + "/c.bin", FileSize: 1},
	}

	results, err := e.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		name := filepath.Base(r.Output)
		want := files["/"+name]

		assert.Equal(t, jobs[i], r.Job)
		assert.False(t, r.Skipped)
		assert.Equal(t, int64(len(want)), r.Size)
		assert.Equal(t, digest(want), r.SHA256)

		got, err := os.ReadFile(filepath.Join(cfg.DownloadDir, name))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	all, err := repo.FindAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, cp := range all {
		assert.Equal(t, status.Completed, cp.Status)
	}

	assert.Equal(t, float64(3), counterSum(t, reg, "rangedl_downloads_total"))
}

// counterSum adds up every series of the named counter.
func counterSum(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()

	families, err := g.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}

	return total
}

func TestRun_SkipsCompletedDownloads(t *testing.T) {
	files := map[string][]byte{"/a.bin": blob(3000, 9)}
	server := newFileServer(t, files)
	cfg := testConfig(t)
	repo := openRepo(t)

	e, err := engine.New(cfg, repo)
	require.NoError(t, err)

	jobs := []engine.Job{{URL: server.URL + "/a.bin"}}

	_, err = e.Run(context.Background(), jobs)
	require.NoError(t, err)
	before := server.requests.Load()

	results, err := e.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.True(t, results[0].Skipped)
	assert.Equal(t, before, server.requests.Load(), "a complete file must not be fetched again")

	// A missing file is fetched again even though its checkpoint is complete.
	require.NoError(t, os.Remove(results[0].Output))
	results, err = e.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.False(t, results[0].Skipped)

	got, err := os.ReadFile(results[0].Output)
	require.NoError(t, err)
	assert.Equal(t, files["/a.bin"], got)
}

func TestRun_ResumesFromCheckpoint(t *testing.T) {
	data := blob(8000, 4)
	server := newFileServer(t, map[string][]byte{"/fw.bin": data})
	cfg := testConfig(t)
	repo := openRepo(t)

	output := filepath.Join(cfg.DownloadDir, "fw.bin")
	require.NoError(t, os.WriteFile(output, data[:3000], 0o644))

	cp := repository.NewCheckpoint(server.URL+"/fw.bin", output)
	cp.FileSize = int64(len(data))
	cp.Received = 3000
	cp.Status = status.Failed
	require.NoError(t, repo.Save(cp))

	e, err := engine.New(cfg, repo)
	require.NoError(t, err)

	results, err := e.Run(context.Background(), []engine.Job{{URL: cp.URL}})
	require.NoError(t, err)
	assert.Equal(t, cp.ID.String(), results[0].ID)

	assert.Equal(t, []string{"bytes=3000-7999"}, server.rangesFor("/fw.bin"))

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, digest(data), results[0].SHA256)
}

func TestRun_ChecksumMismatchRefetchesFromStart(t *testing.T) {
	data := blob(8000, 6)
	server := newFileServer(t, map[string][]byte{"/fw.bin": data})
	cfg := testConfig(t)
	repo := openRepo(t)

	output := filepath.Join(cfg.DownloadDir, "fw.bin")
	corrupt := bytes.Repeat([]byte{0xee}, 3000)
	require.NoError(t, os.WriteFile(output, corrupt, 0o644))

	cp := repository.NewCheckpoint(server.URL+"/fw.bin", output)
	cp.FileSize = int64(len(data))
	cp.Received = 3000
	cp.Status = status.Failed
	require.NoError(t, repo.Save(cp))

	e, err := engine.New(cfg, repo)
	require.NoError(t, err)

	job := engine.Job{URL: cp.URL, SHA256: digest(data)}

	_, err = e.Run(context.Background(), []engine.Job{job})
	require.ErrorIs(t, err, sink.ErrChecksumMismatch)

	stored, err := repo.Find(cp.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Failed, stored.Status)
	assert.Equal(t, int64(0), stored.Received)

	results, err := e.Run(context.Background(), []engine.Job{job})
	require.NoError(t, err)
	assert.Equal(t, digest(data), results[0].SHA256)

	assert.Equal(t, []string{"bytes=3000-7999", "bytes=0-7999"}, server.rangesFor("/fw.bin"))

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	stored, err = repo.Find(cp.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Completed, stored.Status)
}

func TestRun_FailuresDoNotStopOtherJobs(t *testing.T) {
	files := map[string][]byte{"/ok.bin": blob(2000, 5)}
	server := newFileServer(t, files)
	cfg := testConfig(t)

	e, err := engine.New(cfg, openRepo(t))
	require.NoError(t, err)

	results, err := e.Run(context.Background(), []engine.Job{
		{URL: "ftp://example.com/x.bin"},
		{URL: server.URL + "/ok.bin"},
		{URL: server.URL + "/ok.bin", Output: filepath.Join(cfg.DownloadDir, "bad.bin"), SHA256: "00"},
	})
	require.Error(t, err)

	assert.True(t, download.IsInvalidArgument(results[0].Err))
	assert.NoError(t, results[1].Err)
	assert.ErrorContains(t, results[2].Err, "sha256 mismatch")
	assert.ErrorContains(t, err, "ftp://example.com/x.bin")
}

func TestRun_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.InactivityTimeout = time.Minute
	repo := openRepo(t)

	e, err := engine.New(cfg, repo)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	results, err := e.Run(ctx, []engine.Job{{URL: server.URL + "/slow.bin"}})
	require.Error(t, err)
	assert.ErrorIs(t, results[0].Err, download.ErrCanceled)

	all, err := repo.FindAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, status.Cancelled, all[0].Status)
}

func TestNew_RequiresRepository(t *testing.T) {
	_, err := engine.New(testConfig(t), nil)
	assert.Error(t, err)
}

func TestForget(t *testing.T) {
	repo := openRepo(t)
	e, err := engine.New(testConfig(t), repo)
	require.NoError(t, err)

	cp := repository.NewCheckpoint("http://example.com/a", "/tmp/a")
	require.NoError(t, repo.Save(cp))

	require.NoError(t, e.Forget(cp.ID))
	_, err = repo.Find(cp.ID)
	assert.ErrorIs(t, err, repository.ErrCheckpointNotFound)
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://example.com/fw/v2/image.bin", "image.bin"},
		{"http://example.com/image.bin?token=x", "image.bin"},
		{"http://example.com/", "download"},
		{"http://example.com", "download"},
		{"::", "download"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.url), func(t *testing.T) {
			assert.Equal(t, tt.want, engine.OutputName(tt.url))
		})
	}
}
