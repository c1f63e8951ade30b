package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker prints one line per reportInterval items of a run over a
// known number of items, with throughput and an estimate of time left.
type ProgressTracker struct {
	mu sync.Mutex
	w  io.Writer

	unit     string
	total    int
	interval int

	done     int
	reported int
	start    time.Time
}

// NewProgressTracker creates a tracker. unit names the items, e.g. "docs".
// An interval below one reports every item.
func NewProgressTracker(w io.Writer, unit string, total, interval int) *ProgressTracker {
	return &ProgressTracker{
		w:        w,
		unit:     unit,
		total:    total,
		interval: max(interval, 1),
	}
}

// Start resets the counters and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = time.Now()
	p.done = 0
	p.reported = 0
}

func (p *ProgressTracker) started() bool {
	return !p.start.IsZero()
}

// Increment records delta more items, never going past the total.
func (p *ProgressTracker) Increment(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started() {
		return
	}
	p.done = min(p.done+delta, p.total)
	if p.done-p.reported >= p.interval && p.done < p.total {
		p.report(true)
		p.reported = p.done
	}
}

// Grow raises the total by n items.
func (p *ProgressTracker) Grow(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total += max(n, 0)
}

// Finish marks every item done and prints the closing line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started() {
		return
	}
	p.done = p.total
	p.report(false)
}

// Elapsed returns the time since Start, or zero before it.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started() {
		return 0
	}
	return time.Since(p.start)
}

// Rate returns items per second so far.
func (p *ProgressTracker) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate()
}

// ETA estimates the time left from the rate so far. It is zero before any
// item completes.
func (p *ProgressTracker) ETA() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eta()
}

func (p *ProgressTracker) rate() float64 {
	if !p.started() {
		return 0
	}
	secs := time.Since(p.start).Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(p.done) / secs
}

func (p *ProgressTracker) eta() time.Duration {
	r := p.rate()
	if r == 0 {
		return 0
	}
	return time.Duration(float64(p.total-p.done) / r * float64(time.Second))
}

func (p *ProgressTracker) report(withETA bool) {
	pct := 100.0
	if p.total > 0 {
		pct = float64(p.done) / float64(p.total) * 100
	}
	line := fmt.Sprintf("  %d/%d %s (%.1f%%) %.1f %s/s", p.done, p.total, p.unit, pct, p.rate(), p.unit)
	if withETA {
		line += fmt.Sprintf(", eta %s", p.eta().Round(time.Second))
	}
	fmt.Fprintln(p.w, line)
}
