package download

import (
	"fmt"
	"time"

	"github.com/NamanBalaji/rangedl/internal/errors"
	"github.com/NamanBalaji/rangedl/pkg/transport"
)

const (
	DefaultRangeLength       = 8192
	DefaultConnectTimeout    = 30 * time.Second
	DefaultInactivityTimeout = 180 * time.Second
	DefaultReconnectDelay    = 3 * time.Second

	maxReadTimeout = 30 * time.Second
)

// Config describes one download. It is copied on entry and never modified.
type Config struct {
	// URL is the absolute http or https address of the resource.
	URL string
	// CACert is a PEM bundle used to verify the server. Setting it forces TLS
	// even for an http URL.
	CACert             []byte
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
	// RangeLength bounds how many bytes one EventData window holds.
	RangeLength int
	// FileSize skips size discovery when nonzero.
	FileSize int64
	// StartOffset resumes a download whose first StartOffset bytes were
	// delivered by an earlier run.
	StartOffset int64
	// InactivityTimeout is how long the engine keeps retrying without
	// receiving a single byte before it gives up.
	InactivityTimeout time.Duration
	ReconnectDelay    time.Duration
	// Proxy is an optional socks5:// URL.
	Proxy    string
	UserData any
	Handler  EventHandler
	// Transport replaces the default TCP/TLS transport.
	Transport transport.Transport
}

func (c Config) withDefaults() Config {
	if c.RangeLength == 0 {
		c.RangeLength = DefaultRangeLength
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}

	return c
}

func (c Config) validate() error {
	invalid := func(format string, args ...any) error {
		return errors.NewInvalidArgument(fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...), c.URL)
	}

	switch {
	case c.Handler == nil:
		return invalid("event handler is required")
	case c.RangeLength < 2:
		return invalid("range length %d too small", c.RangeLength)
	case c.FileSize < 0:
		return invalid("negative file size %d", c.FileSize)
	case c.StartOffset < 0:
		return invalid("negative start offset %d", c.StartOffset)
	case c.FileSize > 0 && c.StartOffset > c.FileSize:
		return invalid("start offset %d beyond file size %d", c.StartOffset, c.FileSize)
	}

	return nil
}

func (c Config) readTimeout() time.Duration {
	if c.InactivityTimeout < maxReadTimeout {
		return c.InactivityTimeout
	}
	return maxReadTimeout
}
