// Package behavior records pointer, click, scroll and key telemetry during
// the observation window and reduces it to a summary once the window ends.
package behavior

import (
	"math"
	"sync"
	"time"
)

// Config tunes sampling and summarization. The defaults are heuristics with
// no calibration data behind them.
type Config struct {
	PointerCapacity       int
	ClickCapacity         int
	SummaryPoints         int
	SampleThrottle        time.Duration
	Window                time.Duration
	ExpectedEventInterval time.Duration
	IdleGapThreshold      time.Duration
}

func DefaultConfig() Config {
	return Config{
		PointerCapacity:       600,
		ClickCapacity:         60,
		SummaryPoints:         60,
		SampleThrottle:        90 * time.Millisecond,
		Window:                15 * time.Second,
		ExpectedEventInterval: 120 * time.Millisecond,
		IdleGapThreshold:      500 * time.Millisecond,
	}
}

// Sample is a pointer or click position. T is ms since navigation start.
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	T int64   `json:"t"`
}

// Tracker owns the telemetry buffers of one session. All methods are safe
// for concurrent use. Events later than Window after navigation start are
// dropped, and once Summarize has run every further event is ignored.
type Tracker struct {
	mu  sync.Mutex
	cfg Config

	start   time.Time
	pointer *Ring[Sample]
	clicks  *Ring[Sample]

	clickCount  int
	scrollCount int
	keyCount    int

	lastSample time.Time
	started    bool
	firstAt    time.Time

	result *Result
}

func NewTracker(navigationStart time.Time, cfg Config) *Tracker {
	return &Tracker{
		cfg:     cfg,
		start:   navigationStart,
		pointer: NewRing[Sample](cfg.PointerCapacity),
		clicks:  NewRing[Sample](cfg.ClickCapacity),
	}
}

// PointerMove records a throttled pointer sample. Interaction is marked only
// when the sample is kept.
func (t *Tracker) PointerMove(x, y float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed(at) || !t.throttleOpen(at) {
		return
	}
	t.push(t.pointer, x, y, at)
	t.lastSample = at
	t.mark(at)
}

// TouchMove shares the pointer throttle but always marks interaction.
func (t *Tracker) TouchMove(x, y float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed(at) {
		return
	}
	if t.throttleOpen(at) {
		t.push(t.pointer, x, y, at)
		t.lastSample = at
	}
	t.mark(at)
}

func (t *Tracker) Click(x, y float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed(at) {
		return
	}
	t.clickCount++
	t.push(t.clicks, x, y, at)
	t.mark(at)
}

func (t *Tracker) Scroll(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed(at) {
		return
	}
	t.scrollCount++
	t.mark(at)
}

func (t *Tracker) KeyDown(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed(at) {
		return
	}
	t.keyCount++
	t.mark(at)
}

func (t *Tracker) TouchStart(at time.Time)  { t.markOnly(at) }
func (t *Tracker) PointerDown(at time.Time) { t.markOnly(at) }

// FirstInteraction returns when interaction started, if it has.
func (t *Tracker) FirstInteraction() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.firstAt, t.started
}

func (t *Tracker) markOnly(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed(at) {
		return
	}
	t.mark(at)
}

// mark records the first interaction; later calls are no-ops.
func (t *Tracker) mark(at time.Time) {
	if t.started {
		return
	}
	t.started = true
	t.firstAt = at
}

// closed reports whether an event at the given time falls outside the
// observation: after Summarize, or past the window.
func (t *Tracker) closed(at time.Time) bool {
	return t.result != nil || (t.cfg.Window > 0 && at.Sub(t.start) > t.cfg.Window)
}

func (t *Tracker) throttleOpen(at time.Time) bool {
	return t.lastSample.IsZero() || at.Sub(t.lastSample) > t.cfg.SampleThrottle
}

// push appends a sample relative to navigation start. Timestamps are clamped
// to zero and never go backwards within a buffer.
func (t *Tracker) push(r *Ring[Sample], x, y float64, at time.Time) {
	rel := int64(math.Round(float64(at.Sub(t.start)) / float64(time.Millisecond)))
	if rel < 0 {
		rel = 0
	}
	if last, ok := r.Last(); ok && rel < last.T {
		rel = last.T
	}
	r.Push(Sample{X: x, Y: y, T: rel})
}
