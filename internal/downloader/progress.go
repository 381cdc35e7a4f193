package downloader

import (
	"sync"
)

// Transfer statuses reported by fetchers.
const (
	SignalDownloading    = "downloading"
	SignalFinished       = "finished"
	SignalPostProcessing = "post_processing"
)

// ProgressSignal is a raw transfer update from a fetcher.
type ProgressSignal struct {
	Status          string
	DownloadedBytes int64
	TotalBytes      int64
	FragmentIndex   int
	FragmentCount   int
}

// Percent converts a signal to a percentage. Byte counts win when the total
// is known, fragment counts are used otherwise, and a finished signal is
// always 100. ok is false when the signal carries no usable measure.
func Percent(s ProgressSignal) (pct float64, ok bool) {
	switch {
	case s.Status == SignalFinished:
		return 100, true
	case s.TotalBytes > 0:
		pct = float64(s.DownloadedBytes) / float64(s.TotalBytes) * 100
	case s.FragmentCount > 0:
		pct = float64(s.FragmentIndex) / float64(s.FragmentCount) * 100
	default:
		return 0, false
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// progressTracker keeps the per-attempt percentage monotonic and forwards
// changes to a pump.
type progressTracker struct {
	mu      sync.Mutex
	current float64
	pump    *progressPump
}

func newProgressTracker(pump *progressPump) *progressTracker {
	return &progressTracker{pump: pump}
}

// observe is safe to call from fetcher goroutines.
func (t *progressTracker) observe(s ProgressSignal) {
	pct, ok := Percent(s)
	if !ok {
		return
	}
	t.set(pct)
}

// set sends under the lock so concurrent observers cannot reorder values.
func (t *progressTracker) set(pct float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pct <= t.current {
		return
	}
	t.current = pct
	t.pump.send(pct)
}

// reset starts a new attempt at 0.
func (t *progressTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = 0
	t.pump.send(0)
}

func (t *progressTracker) finish() {
	t.set(100)
}

func (t *progressTracker) value() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// progressPump delivers values to a callback on its own goroutine. Sends
// never block: an undelivered value is replaced by the newer one.
type progressPump struct {
	mu     sync.Mutex
	ch     chan float64
	done   chan struct{}
	closed bool
}

func newProgressPump(fn func(float64)) *progressPump {
	p := &progressPump{
		ch:   make(chan float64, 1),
		done: make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		for v := range p.ch {
			if fn != nil {
				fn(v)
			}
		}
	}()
	return p
}

func (p *progressPump) send(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- v:
		return
	default:
	}
	select {
	case <-p.ch:
	default:
	}
	p.ch <- v
}

// close flushes the last value and waits for the callback to return.
func (p *progressPump) close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	p.mu.Unlock()
	<-p.done
}
