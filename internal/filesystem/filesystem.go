package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrShortFile is returned when a file holds fewer bytes than the offset a
// resume was asked to continue from.
var ErrShortFile = errors.New("file shorter than resume offset")

// OSFileSystem implements output-file handling using OS file operations
type OSFileSystem struct{}

// NewOSFileSystem creates a new OS filesystem
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

// OpenForResume opens path for writing so that its first offset bytes are
// kept and anything after them is discarded. Offset 0 creates or truncates.
func (fs *OSFileSystem) OpenForResume(path string, offset int64) (*os.File, error) {
	if offset < 0 {
		return nil, fmt.Errorf("negative resume offset %d", offset)
	}

	if err := fs.EnsureDirectory(filepath.Dir(path)); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if info.Size() < offset {
		f.Close()
		return nil, fmt.Errorf("%w: %s has %d bytes, need %d", ErrShortFile, path, info.Size(), offset)
	}

	if err := f.Truncate(offset); err != nil {
		f.Close()
		return nil, err
	}

	return f, nil
}

// DeleteFile deletes a file, ignoring one that is already gone
func (fs *OSFileSystem) DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// EnsureDirectory ensures a directory exists
func (fs *OSFileSystem) EnsureDirectory(path string) error {
	return os.MkdirAll(path, 0o755)
}

// FileExists checks if a file exists
func (fs *OSFileSystem) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// FileSize returns the size of path, or 0 when it does not exist
func (fs *OSFileSystem) FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}
