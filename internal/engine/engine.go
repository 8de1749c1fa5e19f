package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/rangedl/internal/filesystem"
	"github.com/NamanBalaji/rangedl/internal/logger"
	"github.com/NamanBalaji/rangedl/internal/metrics"
	"github.com/NamanBalaji/rangedl/internal/progress"
	"github.com/NamanBalaji/rangedl/internal/repository"
	"github.com/NamanBalaji/rangedl/internal/sink"
	"github.com/NamanBalaji/rangedl/internal/status"
	"github.com/NamanBalaji/rangedl/pkg/download"
)

const defaultOutputName = "download"

type Engine struct {
	config     *Config
	repository repository.Repository
	fs         *filesystem.OSFileSystem
	collector  *metrics.Collector
	bars       *progress.Bars

	// outputs in use by running jobs, so two jobs never share a file
	mu      sync.Mutex
	outputs map[string]struct{}
}

type Option func(*Engine)

// WithMetrics records every download in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithProgress draws a bar per download.
func WithProgress(b *progress.Bars) Option {
	return func(e *Engine) { e.bars = b }
}

// New creates a new Engine instance
func New(config *Config, repo repository.Repository, opts ...Option) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if repo == nil {
		return nil, errors.New("engine needs a repository")
	}

	fs := filesystem.NewOSFileSystem()
	if err := fs.EnsureDirectory(config.DownloadDir); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	e := &Engine{
		config:     config,
		repository: repo,
		fs:         fs,
		outputs:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Run downloads every job, at most MaxConcurrentDownloads at a time. One
// failing job does not stop the others. The returned error joins every
// job's error.
func (e *Engine) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	results := make([]Result, len(jobs))

	var g errgroup.Group
	g.SetLimit(max(e.config.MaxConcurrentDownloads, 1))

	for i, job := range jobs {
		g.Go(func() error {
			results[i] = e.runJob(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Job.URL, r.Err))
		}
	}

	return results, errors.Join(errs...)
}

func (e *Engine) runJob(ctx context.Context, job Job) Result {
	res := Result{Job: job, Output: job.Output}
	if res.Output == "" {
		res.Output = filepath.Join(e.config.DownloadDir, OutputName(job.URL))
	}

	if !e.claim(res.Output) {
		res.Err = fmt.Errorf("output %s is used by another download", res.Output)
		return res
	}
	defer e.release(res.Output)

	cp, skip, err := e.checkpointFor(job, res.Output)
	if err != nil {
		res.Err = err
		return res
	}
	res.ID = cp.ID.String()

	if skip {
		logger.Infof("%s already complete, skipping", res.Output)
		res.Skipped = true
		res.Size = cp.FileSize
		res.SHA256 = cp.SHA256
		return res
	}

	res.Err = e.fetch(ctx, cp)
	res.Size = cp.Received
	res.SHA256 = cp.SHA256

	return res
}

// checkpointFor loads the checkpoint for job or creates a fresh one. skip is
// true when the output is already complete on disk.
func (e *Engine) checkpointFor(job Job, output string) (cp *repository.Checkpoint, skip bool, err error) {
	cp, err = e.repository.FindByURL(job.URL, output)
	switch {
	case errors.Is(err, repository.ErrCheckpointNotFound):
		cp = repository.NewCheckpoint(job.URL, output)
	case err != nil:
		return nil, false, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if cp.Status == status.Completed {
		size, err := e.fs.FileSize(output)
		if err != nil {
			return nil, false, err
		}
		if size == cp.FileSize && (job.SHA256 == "" || job.SHA256 == cp.SHA256) {
			return cp, true, nil
		}

		cp.Received = 0
		cp.SHA256 = ""
		cp.Status = status.Pending
	}

	if job.SHA256 != "" {
		cp.SHA256 = job.SHA256
	}
	if cp.FileSize == 0 {
		cp.FileSize = job.FileSize
	}

	if err := e.repository.Save(cp); err != nil {
		return nil, false, fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return cp, false, nil
}

func (e *Engine) fetch(ctx context.Context, cp *repository.Checkpoint) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var tracker progress.Tracker = progress.Nop{}
	if e.bars != nil {
		tracker = e.bars.Add(filepath.Base(cp.Output), cp.Received)
	}

	s, err := sink.Open(e.fs, sink.Options{
		Checkpoint:      cp,
		Repo:            e.repository,
		CheckpointEvery: e.config.CheckpointEvery,
		Cancel:          cancel,
		OnProgress:      tracker.Update,
	})
	if err != nil {
		tracker.Done(err)
		return err
	}
	defer s.Close()

	var handler download.EventHandler = s.Handle
	if e.collector != nil {
		handler = e.collector.Wrap(handler)
	}

	err = download.Download(ctx, download.Config{
		URL:                cp.URL,
		CACert:             e.config.CACert,
		InsecureSkipVerify: e.config.InsecureSkipVerify,
		ConnectTimeout:     e.config.ConnectTimeout,
		RangeLength:        e.config.RangeLength,
		FileSize:           cp.FileSize,
		StartOffset:        s.StartOffset(),
		InactivityTimeout:  e.config.InactivityTimeout,
		ReconnectDelay:     e.config.ReconnectDelay,
		Proxy:              e.config.Proxy,
		UserData:           cp.ID,
		Handler:            handler,
	})
	if serr := s.Err(); serr != nil {
		err = serr
	}

	tracker.Done(err)

	return err
}

func (e *Engine) claim(output string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.outputs[output]; busy {
		return false
	}
	e.outputs[output] = struct{}{}
	return true
}

func (e *Engine) release(output string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.outputs, output)
}

// Forget deletes the checkpoint with the given ID.
func (e *Engine) Forget(id uuid.UUID) error {
	return e.repository.Delete(id)
}

// OutputName derives a local file name from the last path segment of rawURL.
func OutputName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultOutputName
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return defaultOutputName
	}

	return name
}
