// Package metrics exports download events as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NamanBalaji/rangedl/internal/logger"
	"github.com/NamanBalaji/rangedl/pkg/download"
)

const namespace = "rangedl"

type Collector struct {
	events    *prometheus.CounterVec
	results   *prometheus.CounterVec
	bytes     prometheus.Counter
	connects  prometheus.Counter
	inflight  prometheus.Gauge
	durations prometheus.Histogram
}

// NewCollector creates the download metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "events_total", Help: "Download events by type"},
			[]string{"event"},
		),
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "downloads_total", Help: "Finished downloads by result"},
			[]string{"result"},
		),
		bytes:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "bytes_total", Help: "Fresh bytes delivered to handlers"}),
		connects:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "connects_total", Help: "Successful connections, reconnects included"}),
		inflight:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "inflight", Help: "Downloads currently running"}),
		durations: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "duration_seconds", Help: "Time from START to FINISH or FAULT", Buckets: prometheus.DefBuckets}),
	}

	for _, m := range []prometheus.Collector{c.events, c.results, c.bytes, c.connects, c.inflight, c.durations} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Wrap returns a handler that records every event and then forwards it to
// next, passing next's retain count back to the engine. Each call of Wrap
// must serve a single download.
func (c *Collector) Wrap(next download.EventHandler) download.EventHandler {
	var started time.Time

	return func(id download.EventID, ev *download.Event) int {
		c.events.WithLabelValues(id.String()).Inc()

		switch id {
		case download.EventStart:
			started = time.Now()
			c.inflight.Inc()
		case download.EventConnected:
			c.connects.Inc()
		case download.EventData:
			c.bytes.Add(float64(len(ev.Fresh())))
		case download.EventFinish:
			c.done("finished", started)
		case download.EventFault:
			result := "failed"
			if errors.Is(ev.Err, download.ErrCanceled) {
				result = "canceled"
			} else if errors.Is(ev.Err, download.ErrTimeout) {
				result = "timeout"
			}
			c.done(result, started)
		}

		return next(id, ev)
	}
}

func (c *Collector) done(result string, started time.Time) {
	c.results.WithLabelValues(result).Inc()
	c.inflight.Dec()
	if !started.IsZero() {
		c.durations.Observe(time.Since(started).Seconds())
	}
}

// Serve exposes g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("Serving metrics on %s/metrics", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
