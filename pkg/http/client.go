package http

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/NamanBalaji/rangedl/internal/errors"
	"github.com/NamanBalaji/rangedl/internal/logger"
	"github.com/NamanBalaji/rangedl/pkg/transport"
)

const (
	DefaultUserAgent = "rangedl/1.0"

	contentRangeHeader = "Content-Range"
	readBufferSize     = 4096
)

// RangeClient issues byte-range GETs over a single persistent connection
// provided by a Transport. It is not safe for concurrent use.
type RangeClient struct {
	transport transport.Transport
	endpoint  Endpoint
	userAgent string

	reader   *bufio.Reader
	response *http.Response
}

// NewRangeClient creates a client for ep that speaks over t. The caller owns
// connecting and closing t.
func NewRangeClient(t transport.Transport, ep Endpoint) *RangeClient {
	return &RangeClient{
		transport: t,
		endpoint:  ep,
		userAgent: DefaultUserAgent,
	}
}

// Reset forgets buffered bytes and the in-flight response. Call it after the
// transport has been reconnected.
func (c *RangeClient) Reset() {
	c.reader = nil
	c.response = nil
}

// ProbeSize asks for the first byte of the resource and returns the total
// size announced in Content-Range. The one-byte body is discarded.
func (c *RangeClient) ProbeSize(ctx context.Context) (int64, error) {
	logger.Debugf("Getting file object size from %s", c.endpoint)

	resp, err := c.do(ctx, 0, 0)
	if err != nil {
		return 0, err
	}

	defer c.discard()

	value := resp.Header.Get(contentRangeHeader)
	if value == "" {
		return 0, errors.NewProtocolError(fmt.Errorf("%w: header absent", ErrInvalidContentRange), c.endpoint.String(), resp.StatusCode)
	}

	total, err := parseTotal(value)
	if err != nil {
		logger.Errorf("Bad Content-Range %q from %s: %v", value, c.endpoint, err)
		return 0, errors.NewProtocolError(err, c.endpoint.String(), resp.StatusCode)
	}

	logger.Infof("The file is %d bytes long", total)

	return total, nil
}

// RangeGet requests bytes [start, end] (end inclusive) and returns once the
// headers are parsed. The body is left for Read.
func (c *RangeClient) RangeGet(ctx context.Context, start, end int64) (*http.Response, error) {
	logger.Debugf("Downloading bytes %d-%d from %s", start, end, c.endpoint)

	resp, err := c.do(ctx, start, end)
	if err != nil {
		return nil, err
	}

	if value := resp.Header.Get(contentRangeHeader); value != "" {
		gotStart, _, _, err := ParseContentRange(value)
		if err != nil || gotStart != start {
			c.discard()
			return nil, errors.NewProtocolError(
				fmt.Errorf("%w: asked for %d, got %q", ErrInvalidContentRange, start, value),
				c.endpoint.String(), resp.StatusCode)
		}
	}

	return resp, nil
}

// Read streams the body of the response returned by the last RangeGet.
// io.EOF is passed through untouched; other failures become network errors.
func (c *RangeClient) Read(p []byte) (int, error) {
	if c.response == nil {
		return 0, ErrNoResponse
	}

	n, err := c.response.Body.Read(p)
	if err != nil && err != io.EOF {
		return n, errors.NewNetworkError(err, c.endpoint.String(), true)
	}

	return n, err
}

func (c *RangeClient) do(ctx context.Context, start, end int64) (*http.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, c.contextError(err)
	}

	c.discard()

	req, err := c.newRequest(ctx, start, end)
	if err != nil {
		return nil, err
	}

	if err := req.Write(c.transport); err != nil {
		logger.Errorf("Sending range request to %s failed: %v", c.endpoint, err)
		return nil, errors.NewNetworkError(err, c.endpoint.String(), true)
	}

	if c.reader == nil {
		c.reader = bufio.NewReaderSize(c.transport, readBufferSize)
	}

	resp, err := http.ReadResponse(c.reader, req)
	if err != nil {
		logger.Errorf("Reading response from %s failed: %v", c.endpoint, err)
		return nil, errors.NewNetworkError(err, c.endpoint.String(), true)
	}

	logger.Debugf("Range response for %s: status=%d", c.endpoint, resp.StatusCode)

	c.response = resp

	if resp.StatusCode != http.StatusPartialContent {
		se := newStatusError(resp, time.Now())
		c.discard()

		logger.Errorf("Received an invalid response from %s (status code: %d)", c.endpoint, resp.StatusCode)

		return nil, errors.NewProtocolError(se, c.endpoint.String(), resp.StatusCode)
	}

	return resp, nil
}

func (c *RangeClient) newRequest(ctx context.Context, start, end int64) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.String(), http.NoBody)
	if err != nil {
		return nil, errors.NewInvalidArgument(fmt.Errorf("%w: %w", ErrRequestCreation, err), c.endpoint.String())
	}

	// Request.Write takes the request line from URL.RequestURI. Parsing the
	// target in request form keeps a leading "//" in the path instead of
	// reading it as an authority.
	target, err := url.ParseRequestURI(c.endpoint.Path)
	if err != nil {
		return nil, errors.NewInvalidArgument(fmt.Errorf("%w: %w", ErrRequestCreation, err), c.endpoint.String())
	}
	target.Scheme = c.endpoint.Scheme
	target.Host = c.endpoint.HostHeader()

	req.URL = target
	req.Host = c.endpoint.HostHeader()

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	return req, nil
}

// contextError keeps cancellation terminal. A passed step deadline is only a
// failed attempt; the downloader decides whether time has run out.
func (c *RangeClient) contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.NewNetworkError(err, c.endpoint.String(), true)
	}
	return errors.NewContextError(err, c.endpoint.String())
}

// discard drains and closes the current body so the connection can carry the
// next request.
func (c *RangeClient) discard() {
	if c.response == nil {
		return
	}

	if _, err := io.Copy(io.Discard, c.response.Body); err != nil {
		logger.Debugf("Draining response body from %s: %v", c.endpoint, err)
	}

	c.response.Body.Close()
	c.response = nil
}

// parseTotal returns the integer after '/' in a Content-Range value.
func parseTotal(value string) (int64, error) {
	idx := strings.IndexByte(value, '/')
	if idx < 0 {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, value)
	}

	total, err := strconv.ParseInt(strings.TrimSpace(value[idx+1:]), 10, 64)
	if err != nil || total <= 0 {
		return 0, fmt.Errorf("%w: size %q", ErrInvalidContentRange, value[idx+1:])
	}

	return total, nil
}

// ParseContentRange parses "bytes <start>-<end>/<total>". total is -1 when
// the server sent "*".
func ParseContentRange(value string) (start, end, total int64, err error) {
	unit, rest, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || unit != "bytes" {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidContentRange, value)
	}

	span, size, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrNotFound, value)
	}

	first, last, ok := strings.Cut(span, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidContentRange, value)
	}

	if start, err = strconv.ParseInt(first, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidContentRange, value)
	}

	if end, err = strconv.ParseInt(last, 10, 64); err != nil || end < start {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidContentRange, value)
	}

	if size == "*" {
		return start, end, -1, nil
	}

	if total, err = strconv.ParseInt(size, 10, 64); err != nil || total <= end {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidContentRange, value)
	}

	return start, end, total, nil
}
