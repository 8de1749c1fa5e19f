package metrics_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/rangedl/internal/metrics"
	"github.com/NamanBalaji/rangedl/pkg/download"
)

func TestCollector_WrapCountsAndForwards(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	var seen []download.EventID
	h := c.Wrap(func(id download.EventID, ev *download.Event) int {
		seen = append(seen, id)
		if id == download.EventData {
			return 2
		}
		return 0
	})

	h(download.EventStart, &download.Event{})
	h(download.EventConnected, &download.Event{})
	assert.Equal(t, 2, h(download.EventData, &download.Event{Data: []byte("abcdef")}))
	assert.Equal(t, 0, h(download.EventData, &download.Event{Data: []byte("efgh"), Carried: 2}))
	h(download.EventFinish, &download.Event{})

	assert.Equal(t, []download.EventID{
		download.EventStart, download.EventConnected, download.EventData, download.EventData, download.EventFinish,
	}, seen)

	expected := `
# HELP rangedl_bytes_total Fresh bytes delivered to handlers
# TYPE rangedl_bytes_total counter
rangedl_bytes_total 8
# HELP rangedl_downloads_total Finished downloads by result
# TYPE rangedl_downloads_total counter
rangedl_downloads_total{result="finished"} 1
# HELP rangedl_inflight Downloads currently running
# TYPE rangedl_inflight gauge
rangedl_inflight 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"rangedl_bytes_total", "rangedl_downloads_total", "rangedl_inflight"))
}

func TestCollector_FaultResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	noop := func(download.EventID, *download.Event) int { return 0 }

	for _, e := range []error{download.ErrTimeout, fmt.Errorf("%w: stop", download.ErrCanceled), io.ErrUnexpectedEOF} {
		h := c.Wrap(noop)
		h(download.EventStart, &download.Event{})
		h(download.EventFault, &download.Event{Err: e})
	}

	expected := `
# HELP rangedl_downloads_total Finished downloads by result
# TYPE rangedl_downloads_total counter
rangedl_downloads_total{result="canceled"} 1
rangedl_downloads_total{result="failed"} 1
rangedl_downloads_total{result="timeout"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "rangedl_downloads_total"))
}

func TestNewCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	_, err = metrics.NewCollector(reg)
	assert.Error(t, err)
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	reg := prometheus.NewRegistry()
	_, err = metrics.NewCollector(reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- metrics.Serve(ctx, addr, reg) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + addr + "/metrics")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "rangedl_inflight")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
