package http

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/NamanBalaji/rangedl/internal/errors"
)

const (
	defaultHTTPPort  = 80
	defaultHTTPSPort = 443
)

// Endpoint is an absolute URL split into what a raw connection needs.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
	// Path is the request target: path plus query, "/" when empty.
	Path string
}

// ParseURL splits an absolute http or https URL. The port falls back to the
// scheme default when the URL does not carry one.
func ParseURL(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, errors.NewInvalidArgument(fmt.Errorf("%w: %w", errors.ErrInvalidURL, err), raw)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, errors.NewInvalidArgument(fmt.Errorf("%w: unsupported scheme %q", errors.ErrInvalidURL, u.Scheme), raw)
	}

	host := u.Hostname()
	if host == "" {
		return Endpoint{}, errors.NewInvalidArgument(fmt.Errorf("%w: missing host", errors.ErrInvalidURL), raw)
	}

	port := defaultHTTPPort
	if u.Scheme == "https" {
		port = defaultHTTPSPort
	}

	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Endpoint{}, errors.NewInvalidArgument(fmt.Errorf("%w: bad port %q", errors.ErrInvalidURL, p), raw)
		}
	}

	path := u.RequestURI()
	if path == "" {
		path = "/"
	}

	return Endpoint{
		Scheme: u.Scheme,
		Host:   host,
		Port:   port,
		Path:   path,
	}, nil
}

// IsTLS reports whether the endpoint needs a TLS session.
func (e Endpoint) IsTLS() bool {
	return e.Scheme == "https"
}

// Address returns host:port for dialing.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// HostHeader omits the port when it is the scheme default.
func (e Endpoint) HostHeader() string {
	if (e.IsTLS() && e.Port == defaultHTTPSPort) || (!e.IsTLS() && e.Port == defaultHTTPPort) {
		if net.ParseIP(e.Host) != nil && net.ParseIP(e.Host).To4() == nil {
			return "[" + e.Host + "]"
		}
		return e.Host
	}
	return e.Address()
}

// String renders the endpoint back into an absolute URL.
func (e Endpoint) String() string {
	return e.Scheme + "://" + e.HostHeader() + e.Path
}
