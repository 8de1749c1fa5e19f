package http_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/rangedl/internal/errors"
	httpmod "github.com/NamanBalaji/rangedl/pkg/http"
	"github.com/NamanBalaji/rangedl/pkg/transport"
)

var payload = bytes.Repeat([]byte("0123456789abcdef"), 64) // 1024 bytes

// newRangeServer serves payload with full range support and counts accepted
// connections.
func newRangeServer(t *testing.T, h http.Handler) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	if h == nil {
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.ServeContent(w, r, "payload.bin", time.Time{}, bytes.NewReader(payload))
		})
	}

	var conns atomic.Int32
	server := httptest.NewUnstartedServer(h)
	server.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			conns.Add(1)
		}
	}
	server.Start()
	t.Cleanup(server.Close)

	return server, &conns
}

func connectClient(t *testing.T, rawURL string) *httpmod.RangeClient {
	t.Helper()

	ep, err := httpmod.ParseURL(rawURL)
	require.NoError(t, err)

	tr, err := transport.New(transport.Options{ConnectTimeout: time.Second, ReadTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })

	require.NoError(t, tr.Connect(context.Background(), ep.Host, ep.Port))

	return httpmod.NewRangeClient(tr, ep)
}

func TestRangeClient_ProbeThenRangeOnOneConnection(t *testing.T) {
	var ranges []string
	server, conns := newRangeServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ranges = append(ranges, r.Header.Get("Range"))
		assert.Equal(t, "/payload.bin?token=x", r.URL.RequestURI())
		http.ServeContent(w, r, "payload.bin", time.Time{}, bytes.NewReader(payload))
	}))

	c := connectClient(t, server.URL+"/payload.bin?token=x")

	size, err := c.ProbeSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), size)

	resp, err := c.RangeGet(context.Background(), 100, size-1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)

	got, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, payload[100:], got)

	assert.Equal(t, []string{"bytes=0-0", fmt.Sprintf("bytes=100-%d", size-1)}, ranges)
	assert.Equal(t, int32(1), conns.Load(), "probe and range must share the keep-alive connection")
}

func TestRangeClient_ProbeRejectsFullContent(t *testing.T) {
	server, _ := newRangeServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))

	c := connectClient(t, server.URL)

	_, err := c.ProbeSize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, httpmod.ErrUnsupported)
	assert.Equal(t, errors.CategoryProtocol, errors.CategoryOf(err))
	assert.True(t, errors.IsRetryable(err))

	code, ok := errors.GetStatusCode(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusOK, code)
}

func TestRangeClient_ProbeContentRangeProblems(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{name: "missing header", header: "", wantErr: httpmod.ErrInvalidContentRange},
		{name: "no slash", header: "bytes 0-0", wantErr: httpmod.ErrNotFound},
		{name: "unknown total", header: "bytes 0-0/*", wantErr: httpmod.ErrInvalidContentRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newRangeServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Content-Range", tt.header)
				}
				w.WriteHeader(http.StatusPartialContent)
				_, _ = w.Write([]byte("0"))
			}))

			c := connectClient(t, server.URL)

			_, err := c.ProbeSize(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, errors.CategoryProtocol, errors.CategoryOf(err))
		})
	}
}

func TestRangeClient_RangeGetStatusError(t *testing.T) {
	server, _ := newRangeServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))

	c := connectClient(t, server.URL)

	_, err := c.RangeGet(context.Background(), 0, 9)
	require.Error(t, err)
	assert.ErrorIs(t, err, httpmod.ErrUnsupported)
	assert.True(t, errors.IsRetryable(err))

	var se *httpmod.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, 3*time.Second, se.RetryAfter)
}

func TestRangeClient_RangeGetPastEnd(t *testing.T) {
	server, _ := newRangeServer(t, nil)
	c := connectClient(t, server.URL)

	_, err := c.RangeGet(context.Background(), int64(len(payload)), int64(len(payload))+99)
	require.Error(t, err)
	assert.ErrorIs(t, err, httpmod.ErrRangeNotSatisfiable)

	var se *httpmod.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int64(len(payload)), se.Total)

	resp, err := c.RangeGet(context.Background(), 0, 9)
	require.NoError(t, err, "connection must survive a 416")
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
}

func TestRangeClient_PathWithLeadingDoubleSlash(t *testing.T) {
	var targets []string
	server, _ := newRangeServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		targets = append(targets, r.RequestURI)
		http.ServeContent(w, r, "payload.bin", time.Time{}, bytes.NewReader(payload))
	}))

	c := connectClient(t, server.URL+"//mirror/a%20b.bin?x=1")

	_, err := c.ProbeSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"//mirror/a%20b.bin?x=1"}, targets)
}

func TestRangeClient_StepDeadlineIsRetryable(t *testing.T) {
	server, _ := newRangeServer(t, nil)
	c := connectClient(t, server.URL)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := c.ProbeSize(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, errors.CategoryNetwork, errors.CategoryOf(err))
}

func TestRangeClient_RangeGetRejectsWrongStart(t *testing.T) {
	server, _ := newRangeServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 0-9/%d", len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload[:10])
	}))

	c := connectClient(t, server.URL)

	_, err := c.RangeGet(context.Background(), 5, 9)
	require.Error(t, err)
	assert.ErrorIs(t, err, httpmod.ErrInvalidContentRange)
}

func TestRangeClient_ReadWithoutResponse(t *testing.T) {
	server, _ := newRangeServer(t, nil)
	c := connectClient(t, server.URL)

	_, err := c.Read(make([]byte, 4))
	assert.ErrorIs(t, err, httpmod.ErrNoResponse)
}

func TestRangeClient_TransportFailureIsNetworkError(t *testing.T) {
	server, _ := newRangeServer(t, nil)

	ep, err := httpmod.ParseURL(server.URL)
	require.NoError(t, err)

	tr, err := transport.New(transport.Options{})
	require.NoError(t, err)

	c := httpmod.NewRangeClient(tr, ep)

	_, err = c.ProbeSize(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CategoryNetwork, errors.CategoryOf(err))
	assert.ErrorIs(t, err, transport.ErrNotConnected)
}

func TestRangeClient_CanceledContext(t *testing.T) {
	server, _ := newRangeServer(t, nil)
	c := connectClient(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.RangeGet(ctx, 0, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.IsRetryable(err))
}

func TestRangeClient_ResetAfterReconnect(t *testing.T) {
	server, conns := newRangeServer(t, nil)

	ep, err := httpmod.ParseURL(server.URL)
	require.NoError(t, err)

	tr, err := transport.New(transport.Options{ReadTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer tr.Close()

	c := httpmod.NewRangeClient(tr, ep)

	require.NoError(t, tr.Connect(context.Background(), ep.Host, ep.Port))
	_, err = c.RangeGet(context.Background(), 0, 99)
	require.NoError(t, err)

	buf := make([]byte, 10)
	_, err = io.ReadFull(c, buf)
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Connect(context.Background(), ep.Host, ep.Port))
	c.Reset()

	_, err = c.RangeGet(context.Background(), 10, 19)
	require.NoError(t, err)

	got, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, payload[10:20], got)
	assert.Equal(t, int32(2), conns.Load())
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		value   string
		start   int64
		end     int64
		total   int64
		wantErr error
	}{
		{value: "bytes 0-0/5000", start: 0, end: 0, total: 5000},
		{value: "bytes 3000-4999/5000", start: 3000, end: 4999, total: 5000},
		{value: " bytes 1-2/*", start: 1, end: 2, total: -1},
		{value: "bytes 0-0", wantErr: httpmod.ErrNotFound},
		{value: "items 0-0/10", wantErr: httpmod.ErrInvalidContentRange},
		{value: "bytes 5-1/10", wantErr: httpmod.ErrInvalidContentRange},
		{value: "bytes 0-9/9", wantErr: httpmod.ErrInvalidContentRange},
		{value: "bytes a-b/10", wantErr: httpmod.ErrInvalidContentRange},
		{value: "bytes 0-1/x", wantErr: httpmod.ErrInvalidContentRange},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			start, end, total, err := httpmod.ParseContentRange(tt.value)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
			assert.Equal(t, tt.total, total)
		})
	}
}
