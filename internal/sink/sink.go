// Package sink turns download events into a file on disk.
package sink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	dlerrors "github.com/NamanBalaji/rangedl/internal/errors"
	"github.com/NamanBalaji/rangedl/internal/filesystem"
	"github.com/NamanBalaji/rangedl/internal/logger"
	"github.com/NamanBalaji/rangedl/internal/repository"
	"github.com/NamanBalaji/rangedl/internal/status"
	"github.com/NamanBalaji/rangedl/pkg/download"
)

const (
	defaultCheckpointEvery = 1 << 20
	progressStep           = 5
)

var (
	ErrChecksumMismatch = errors.New("sha256 mismatch")
	ErrOutOfOrder       = errors.New("data out of order")
)

// ProgressFunc is called after every write with the bytes on disk and the
// total size, which is 0 while unknown.
type ProgressFunc func(written, total int64)

type Options struct {
	Checkpoint *repository.Checkpoint
	// Repo persists Checkpoint. Nil disables checkpointing.
	Repo repository.Repository
	// CheckpointEvery is how many bytes may be written between saves.
	CheckpointEvery int64
	// Cancel aborts the download when the file cannot be written.
	Cancel     context.CancelFunc
	OnProgress ProgressFunc
}

// FileSink writes every EventData window at its offset in Checkpoint.Output
// and keeps a running SHA-256 of the file. Checkpoint.SHA256, when set, is
// checked on EventFinish.
type FileSink struct {
	file *os.File
	hash hash.Hash
	cp   *repository.Checkpoint
	opts Options
	log  zerolog.Logger

	written     int64
	lastSaved   int64
	lastPercent int
	err         error
}

// Open prepares cp.Output to continue at cp.Received. The bytes already on
// disk are hashed so the final digest covers the whole file.
func Open(fs *filesystem.OSFileSystem, opts Options) (*FileSink, error) {
	cp := opts.Checkpoint
	if cp == nil {
		return nil, errors.New("sink needs a checkpoint")
	}

	f, err := fs.OpenForResume(cp.Output, cp.Received)
	if errors.Is(err, filesystem.ErrShortFile) {
		// The file lost data behind the checkpoint's back; start over.
		cp.Received = 0
		f, err = fs.OpenForResume(cp.Output, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open output: %w", err)
	}

	h := sha256.New()
	if cp.Received > 0 {
		if _, err := io.Copy(h, io.NewSectionReader(f, 0, cp.Received)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to hash existing data: %w", err)
		}
	}

	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = defaultCheckpointEvery
	}

	s := &FileSink{
		file:      f,
		hash:      h,
		cp:        cp,
		opts:      opts,
		log:       logger.With("sink").With().Str("id", cp.ID.String()).Str("output", cp.Output).Logger(),
		written:   cp.Received,
		lastSaved: cp.Received,
	}
	s.lastPercent = s.percent()

	return s, nil
}

// StartOffset is where the download should resume.
func (s *FileSink) StartOffset() int64 {
	return s.written
}

// Handle implements download.EventHandler. It consumes every byte it is
// given, so it never retains.
func (s *FileSink) Handle(id download.EventID, ev *download.Event) int {
	switch id {
	case download.EventConnected:
		s.cp.Status = status.Active
	case download.EventFileSize:
		s.cp.FileSize = ev.FileSize
		s.lastPercent = s.percent()
		s.save()
	case download.EventData:
		s.write(ev)
	case download.EventFinish:
		s.cp.FileSize = ev.FileSize
		s.finish()
	case download.EventFault:
		s.fault(ev.Err)
	}

	return 0
}

func (s *FileSink) write(ev *download.Event) {
	if s.err != nil {
		return
	}

	fresh := ev.Fresh()
	at := ev.Offset + int64(ev.Carried)

	if at != s.written {
		s.abort(dlerrors.NewIOError(fmt.Errorf("%w: write at %d, expected %d", ErrOutOfOrder, at, s.written), s.cp.Output))
		return
	}

	if _, err := s.file.WriteAt(fresh, at); err != nil {
		s.abort(dlerrors.NewIOError(fmt.Errorf("failed to write output: %w", err), s.cp.Output))
		return
	}

	s.hash.Write(fresh)
	s.written += int64(len(fresh))
	s.cp.Received = s.written

	if p := s.percent(); p-s.lastPercent > progressStep {
		s.lastPercent = p
		s.log.Info().Int("percent", p).Int64("written", s.written).Msg("progress")
	}

	if s.opts.OnProgress != nil {
		s.opts.OnProgress(s.written, s.cp.FileSize)
	}

	if s.written-s.lastSaved >= s.opts.CheckpointEvery {
		if err := s.file.Sync(); err != nil {
			s.abort(dlerrors.NewIOError(fmt.Errorf("failed to sync output: %w", err), s.cp.Output))
			return
		}
		s.save()
	}
}

func (s *FileSink) finish() {
	if s.err != nil {
		s.fault(s.err)
		return
	}

	sum := s.Sum()
	if s.cp.SHA256 != "" && !strings.EqualFold(s.cp.SHA256, sum) {
		s.err = fmt.Errorf("%w: want %s, got %s", ErrChecksumMismatch, s.cp.SHA256, sum)
		s.log.Error().Err(s.err).Msg("verification failed")
		s.cp.Status = status.Failed
		s.cp.Error = s.err.Error()
		// Nothing on disk can be trusted; the next run fetches from byte 0.
		s.cp.Received = 0
		s.save()
		return
	}

	s.cp.Status = status.Completed
	s.cp.Error = ""
	s.cp.SHA256 = sum
	s.log.Info().Str("sha256", sum).Int64("size", s.written).Msg("file complete")
	s.save()
}

func (s *FileSink) fault(err error) {
	if s.err != nil {
		err = s.err
	}

	s.cp.Status = status.Failed
	if errors.Is(err, download.ErrCanceled) {
		s.cp.Status = status.Cancelled
	}
	if err != nil {
		s.cp.Error = err.Error()
	}

	s.save()
}

func (s *FileSink) abort(err error) {
	s.err = err
	s.log.Error().Err(err).Msg("aborting download")

	if s.opts.Cancel != nil {
		s.opts.Cancel()
	}
}

func (s *FileSink) save() {
	if s.opts.Repo == nil {
		return
	}

	if err := s.opts.Repo.Save(s.cp); err != nil {
		s.log.Warn().Err(err).Msg("failed to save checkpoint")
		return
	}
	s.lastSaved = s.written
}

func (s *FileSink) percent() int {
	if s.cp.FileSize <= 0 {
		return 0
	}
	return int(s.written * 100 / s.cp.FileSize)
}

// Sum returns the hex SHA-256 of everything written so far.
func (s *FileSink) Sum() string {
	return hex.EncodeToString(s.hash.Sum(nil))
}

// Err reports a write or verification failure. The download itself may
// still have returned nil.
func (s *FileSink) Err() error {
	return s.err
}

func (s *FileSink) Close() error {
	return s.file.Close()
}
