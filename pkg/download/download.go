package download

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/NamanBalaji/rangedl/internal/chunk"
	"github.com/NamanBalaji/rangedl/internal/errors"
	"github.com/NamanBalaji/rangedl/internal/logger"
	httpPkg "github.com/NamanBalaji/rangedl/pkg/http"
	"github.com/NamanBalaji/rangedl/pkg/transport"
)

// Download fetches cfg.URL with byte-range requests and streams it to
// cfg.Handler. It blocks until the resource is complete, the inactivity
// timeout elapses or ctx is canceled.
//
// Configuration problems are returned before any event is emitted. Network
// and protocol failures are retried from the last delivered byte. Otherwise
// exactly one of EventFinish or EventFault is emitted, always last, and the
// returned error is nil after EventFinish.
func Download(ctx context.Context, cfg Config) error {
	d, err := newDownloader(cfg)
	if err != nil {
		return err
	}
	defer d.close()

	return d.run(ctx)
}

type downloader struct {
	id       uuid.UUID
	cfg      Config
	endpoint httpPkg.Endpoint
	log      zerolog.Logger

	transport transport.Transport
	client    *httpPkg.RangeClient
	buf       *chunk.Buffer

	fileSize      int64
	received      int64
	sizeAnnounced bool
	reconnects    int
	// backoff is a server requested pause for the next reconnect.
	backoff time.Duration

	state        state
	lastProgress time.Time
}

func newDownloader(cfg Config) (*downloader, error) {
	cfg = cfg.withDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ep, err := httpPkg.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	buf, err := chunk.NewBuffer(cfg.RangeLength)
	if err != nil {
		return nil, errors.NewInvalidArgument(fmt.Errorf("%w: %w", ErrInvalidArgument, err), cfg.URL)
	}

	t := cfg.Transport
	if t == nil {
		opts := transport.Options{
			ConnectTimeout: cfg.ConnectTimeout,
			ReadTimeout:    cfg.readTimeout(),
			Proxy:          cfg.Proxy,
		}
		if ep.IsTLS() || len(cfg.CACert) > 0 {
			opts.TLS = &transport.TLSConfig{
				CACert:             cfg.CACert,
				ServerName:         ep.Host,
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			}
		}

		tcp, err := transport.New(opts)
		if err != nil {
			return nil, err
		}
		t = tcp
	}

	id := uuid.New()

	return &downloader{
		id:        id,
		cfg:       cfg,
		endpoint:  ep,
		log:       logger.With("download").With().Str("id", id.String()).Str("url", ep.String()).Logger(),
		transport: t,
		client:    httpPkg.NewRangeClient(t, ep),
		buf:       buf,
		fileSize:  cfg.FileSize,
		received:  cfg.StartOffset,
		state:     stateStart,
	}, nil
}

func (d *downloader) close() {
	if err := d.transport.Close(); err != nil {
		d.log.Debug().Err(err).Msg("closing transport")
	}
}

func (d *downloader) run(ctx context.Context) error {
	// Unblock a Read or Connect stuck inside the transport on cancellation.
	stop := context.AfterFunc(ctx, func() {
		d.transport.Close()
	})
	defer stop()

	d.lastProgress = time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return d.fault(errors.NewContextError(err, d.endpoint.String()))
		}

		if idle := time.Since(d.lastProgress); idle > d.cfg.InactivityTimeout {
			d.log.Error().Dur("idle", idle).Int64("received", d.received).Int("reconnects", d.reconnects).
				Msg("download timed out")
			return d.fault(errors.NewTimeoutError(d.endpoint.String(), idle))
		}

		next, err := d.step(ctx)
		if err != nil {
			return d.fault(err)
		}

		if !d.state.canTransitionTo(next) {
			return d.fault(fmt.Errorf("illegal transition %s -> %s", d.state, next))
		}

		d.log.Trace().Stringer("from", d.state).Stringer("to", next).Msg("transition")
		d.state = next

		if d.state == stateComplete {
			d.log.Info().Int64("size", d.fileSize).Int("reconnects", d.reconnects).Msg("download complete")
			d.emit(EventFinish, d.newEvent())
			return nil
		}
	}
}

// step runs the entry action of the current state and returns the next one.
// A non-nil error is terminal.
func (d *downloader) step(ctx context.Context) (state, error) {
	deadline := d.lastProgress.Add(d.cfg.InactivityTimeout)

	stepCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if err := d.transport.SetDeadline(deadline); err != nil {
		d.log.Debug().Err(err).Msg("setting transport deadline")
	}

	switch d.state {
	case stateStart:
		d.emit(EventStart, d.newEvent())
		return stateNetworkConnect, nil
	case stateNetworkConnect:
		return d.connect(stepCtx), nil
	case stateFilesizeGet:
		return d.filesizeGet(stepCtx)
	case stateRangeRequest:
		return d.rangeRequest(stepCtx)
	case stateDataGet:
		return d.dataGet(), nil
	case stateNetworkReconnect:
		return d.reconnect(ctx, deadline), nil
	default:
		return d.state, fmt.Errorf("no action for state %s", d.state)
	}
}

func (d *downloader) connect(ctx context.Context) state {
	if err := d.transport.Connect(ctx, d.endpoint.Host, d.endpoint.Port); err != nil {
		d.log.Warn().Err(err).Msg("connect failed")
		return stateNetworkReconnect
	}

	d.client.Reset()
	d.emit(EventConnected, d.newEvent())

	return stateFilesizeGet
}

func (d *downloader) filesizeGet(ctx context.Context) (state, error) {
	if d.fileSize == 0 {
		size, err := d.client.ProbeSize(ctx)
		if err != nil {
			return d.retry(err, "file size probe failed, retrying")
		}

		if d.received > size {
			return d.state, errors.NewInvalidArgument(
				fmt.Errorf("%w: start offset %d beyond file size %d", ErrInvalidArgument, d.received, size),
				d.endpoint.String())
		}

		d.fileSize = size
	}

	if !d.sizeAnnounced {
		d.sizeAnnounced = true
		d.emit(EventFileSize, d.newEvent())
	}

	return stateRangeRequest, nil
}

func (d *downloader) rangeRequest(ctx context.Context) (state, error) {
	if d.received >= d.fileSize {
		return stateComplete, nil
	}

	if _, err := d.client.RangeGet(ctx, d.received, d.fileSize-1); err != nil {
		var se *httpPkg.StatusError
		if errors.As(err, &se) && se.Total == d.received {
			// The resource is shorter than the size we were given and
			// everything it holds has been delivered.
			d.log.Warn().Int64("expected", d.fileSize).Int64("actual", se.Total).Msg("server reports end of resource")
			d.fileSize = se.Total
			return stateComplete, nil
		}

		return d.retry(err, "range request failed, retrying")
	}

	return stateDataGet, nil
}

// retry routes a failed request to NetworkReconnect. Errors that another
// attempt cannot fix are returned as terminal.
func (d *downloader) retry(err error, msg string) (state, error) {
	if !errors.IsRetryable(err) {
		return d.state, err
	}

	var se *httpPkg.StatusError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		d.backoff = se.RetryAfter
	}

	ev := d.log.Warn().Err(err).Str("category", string(errors.CategoryOf(err))).Int64("offset", d.received)
	if code, ok := errors.GetStatusCode(err); ok {
		ev = ev.Int("status", code)
	}
	ev.Msg(msg)

	return stateNetworkReconnect, nil
}

func (d *downloader) dataGet() state {
	n, err := d.buf.Fill(d.client)
	if n > 0 {
		d.deliver(n)
	}

	if d.received >= d.fileSize {
		return stateComplete
	}

	if err != nil {
		if err == io.EOF {
			d.log.Warn().Int64("received", d.received).Int64("size", d.fileSize).Msg("range ended early, resuming")
		} else {
			d.log.Warn().Err(err).Int64("received", d.received).Msg("read failed, resuming")
		}
		return stateNetworkReconnect
	}

	if n == 0 {
		return stateNetworkReconnect
	}

	return stateDataGet
}

// deliver hands the window to the handler and keeps the tail it asked for.
func (d *downloader) deliver(n int) {
	carried := d.buf.Carried()

	ev := d.newEvent()
	ev.Data = d.buf.Bytes()
	ev.Carried = carried
	ev.Offset = d.received - int64(carried)

	retain := d.emit(EventData, ev)

	if applied := d.buf.RetainTail(retain); applied != retain {
		d.log.Warn().Int("requested", retain).Int("applied", applied).Msg("retain clamped")
	}

	d.received += int64(n)
	d.lastProgress = time.Now()
}

func (d *downloader) reconnect(ctx context.Context, deadline time.Time) state {
	d.reconnects++

	if err := d.transport.Close(); err != nil {
		d.log.Debug().Err(err).Msg("closing transport")
	}
	d.client.Reset()

	delay := max(d.cfg.ReconnectDelay, d.backoff)
	d.backoff = 0

	if remaining := time.Until(deadline); remaining < delay {
		// Wake up just past the deadline so the loop reports the timeout.
		delay = remaining + time.Millisecond
	}

	d.log.Info().Int("attempt", d.reconnects).Dur("delay", delay).Int64("offset", d.received).Msg("reconnecting")

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}

	return stateNetworkConnect
}

func (d *downloader) fault(err error) error {
	d.close()

	ev := d.newEvent()
	ev.Err = err
	d.emit(EventFault, ev)

	return err
}

func (d *downloader) newEvent() *Event {
	return &Event{
		FileSize: d.fileSize,
		UserData: d.cfg.UserData,
	}
}

func (d *downloader) emit(id EventID, ev *Event) int {
	d.log.Debug().Stringer("event", id).Int64("offset", ev.Offset).Int("len", len(ev.Data)).Msg("event")
	return d.cfg.Handler(id, ev)
}
