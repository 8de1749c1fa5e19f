// Package progress draws terminal progress bars for running downloads.
package progress

import (
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/diode"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

const (
	refreshRate = 120 * time.Millisecond
	logBuffer   = 1000
	logPoll     = 10 * time.Millisecond
)

// Tracker receives progress for one download.
type Tracker interface {
	Update(written, total int64)
	Done(err error)
}

type Bars struct {
	p *mpb.Progress
}

// New returns a bar container rendering to out.
func New(out io.Writer) *Bars {
	return &Bars{
		p: mpb.New(mpb.WithOutput(out), mpb.WithWidth(64), mpb.WithRefreshRate(refreshRate), mpb.WithAutoRefresh()),
	}
}

// Add creates a bar named name that starts at resumed bytes.
func (b *Bars) Add(name string, resumed int64) *Bar {
	barStyle := mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")

	bar := b.p.New(0,
		barStyle,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.OnAbort(
				decor.OnComplete(decor.EwmaETA(decor.ET_STYLE_GO, 30, decor.WC{W: 4}), "done"),
				"failed",
			),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f"),
			decor.Name(" "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .2f", 30),
		),
	)
	bar.SetCurrent(resumed)

	return &Bar{bar: bar, last: time.Now()}
}

// LogWriter returns a writer that prints lines above the bars without
// blocking the caller. Close it before Wait.
func (b *Bars) LogWriter() io.WriteCloser {
	return diode.NewWriter(b.p, logBuffer, logPoll, nil)
}

// Wait blocks until every bar is complete or aborted.
func (b *Bars) Wait() {
	b.p.Wait()
}

// Bar tracks one download.
type Bar struct {
	mu      sync.Mutex
	bar     *mpb.Bar
	last    time.Time
	totaled bool
}

func (b *Bar) Update(written, total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if total > 0 && !b.totaled {
		b.totaled = true
		b.bar.SetTotal(total, false)
	}

	now := time.Now()
	b.bar.EwmaSetCurrent(written, now.Sub(b.last))
	b.last = now
}

// Done completes the bar, or aborts it when err is set.
func (b *Bar) Done(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.bar.Abort(false)
		return
	}
	b.bar.SetTotal(-1, true)
}

// Current returns the bytes shown by the bar.
func (b *Bar) Current() int64 {
	return b.bar.Current()
}

// Nop discards progress.
type Nop struct{}

func (Nop) Update(int64, int64) {}
func (Nop) Done(error)          {}

var (
	_ Tracker = (*Bar)(nil)
	_ Tracker = Nop{}
)
