package engine

import (
	"time"

	"github.com/adrg/xdg"
)

// Config contains batch download configuration
type Config struct {
	DownloadDir            string
	MaxConcurrentDownloads int
	RangeLength            int
	ConnectTimeout         time.Duration
	InactivityTimeout      time.Duration
	ReconnectDelay         time.Duration
	CACert                 []byte
	InsecureSkipVerify     bool
	Proxy                  string
	CheckpointEvery        int64 // Bytes written between checkpoint saves
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *Config {
	return &Config{
		DownloadDir:            xdg.UserDirs.Download,
		MaxConcurrentDownloads: 3,
		RangeLength:            8192,
		ConnectTimeout:         30 * time.Second,
		InactivityTimeout:      180 * time.Second,
		ReconnectDelay:         3 * time.Second,
		CheckpointEvery:        1 << 20, // 1MB
	}
}

// Job is one resource to fetch.
type Job struct {
	URL string
	// Output defaults to the last URL path segment inside DownloadDir.
	Output string
	// FileSize skips the size probe when known.
	FileSize int64
	// SHA256 is the expected hex digest of the complete file.
	SHA256 string
}

// Result reports how one Job ended.
type Result struct {
	Job     Job
	ID      string
	Output  string
	Size    int64
	SHA256  string
	Skipped bool
	Err     error
}
