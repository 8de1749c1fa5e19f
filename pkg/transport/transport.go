package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/NamanBalaji/rangedl/internal/errors"
	"github.com/NamanBalaji/rangedl/internal/logger"
)

const (
	defaultConnectTimeout = 30 * time.Second
	keepAlivePeriod       = 30 * time.Second
)

var (
	ErrNotConnected = errors.New("transport not connected")
	ErrInvalidCA    = errors.New("no certificates found in CA bundle")
)

// Transport is the byte stream the range client speaks HTTP over. A closed
// transport can be connected again, which is how the downloader reconnects.
//
// SetDeadline bounds every later Read and Write, across reconnects, until it
// is called again. The zero time removes the bound. Once the deadline passes
// Read and Write must fail instead of blocking.
type Transport interface {
	Connect(ctx context.Context, host string, port int) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetDeadline(t time.Time) error
	Close() error
}

// TLSConfig selects a TLS session on top of TCP.
type TLSConfig struct {
	CACert             []byte // PEM bundle; system roots when empty
	ServerName         string // defaults to the connect host
	InsecureSkipVerify bool
}

// Options configures a TCP transport.
type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration // per Read deadline, none when zero
	TLS            *TLSConfig
	Proxy          string // socks5://[user:pass@]host:port
}

// TCP is the default Transport: plain TCP, optionally dialed through a SOCKS5
// proxy and wrapped in TLS.
type TCP struct {
	opts   Options
	dialer proxy.ContextDialer
	tlsCfg *tls.Config

	mu       sync.Mutex
	conn     net.Conn
	deadline time.Time
}

// New validates opts and builds a TCP transport. It does not dial.
func New(opts Options) (*TCP, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}

	base := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: keepAlivePeriod,
	}

	t := &TCP{opts: opts, dialer: base}

	if opts.Proxy != "" {
		d, err := socksDialer(opts.Proxy, base)
		if err != nil {
			return nil, errors.NewInvalidArgument(err, opts.Proxy)
		}
		t.dialer = d
	}

	if opts.TLS != nil {
		cfg := &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ServerName:         opts.TLS.ServerName,
			InsecureSkipVerify: opts.TLS.InsecureSkipVerify,
		}

		if len(opts.TLS.CACert) > 0 {
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(opts.TLS.CACert) {
				return nil, errors.NewInvalidArgument(ErrInvalidCA, "cacert")
			}
			cfg.RootCAs = pool
		}

		t.tlsCfg = cfg
	}

	return t, nil
}

func socksDialer(raw string, forward *net.Dialer) (proxy.ContextDialer, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}

	var auth *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{
			User:     u.User.Username(),
			Password: pass,
		}
	}

	d, err := proxy.SOCKS5("tcp", u.Host, auth, forward)
	if err != nil {
		return nil, err
	}

	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("proxy dialer for %s does not support contexts", u.Host)
	}

	return cd, nil
}

// Connect dials host:port, performing the TLS handshake when configured.
// An existing connection is closed first.
func (t *TCP) Connect(ctx context.Context, host string, port int) error {
	t.Close()

	addr := net.JoinHostPort(host, strconv.Itoa(port))

	ctx, cancel := context.WithTimeout(ctx, t.opts.ConnectTimeout)
	defer cancel()

	logger.Debugf("Dialing %s", addr)

	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.NewNetworkError(err, addr, true)
	}

	if t.tlsCfg != nil {
		cfg := t.tlsCfg.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}

		tlsConn := tls.Client(conn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return errors.NewNetworkError(fmt.Errorf("tls handshake: %w", err), addr, true)
		}

		conn = tlsConn
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	logger.Debugf("Connected to %s", addr)

	return nil
}

func (t *TCP) current() (net.Conn, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn, t.deadline
}

// SetDeadline implements Transport. Options.ReadTimeout still applies to each
// Read when it expires first.
func (t *TCP) SetDeadline(deadline time.Time) error {
	t.mu.Lock()
	t.deadline = deadline
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.SetDeadline(deadline)
}

func (t *TCP) Read(p []byte) (int, error) {
	conn, deadline := t.current()
	if conn == nil {
		return 0, ErrNotConnected
	}

	if t.opts.ReadTimeout > 0 {
		if rd := time.Now().Add(t.opts.ReadTimeout); deadline.IsZero() || rd.Before(deadline) {
			deadline = rd
		}
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	return conn.Read(p)
}

func (t *TCP) Write(p []byte) (int, error) {
	conn, deadline := t.current()
	if conn == nil {
		return 0, ErrNotConnected
	}

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return 0, err
	}

	return conn.Write(p)
}

// Close tears the connection down. Safe to call repeatedly.
func (t *TCP) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	return conn.Close()
}
