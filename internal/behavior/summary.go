package behavior

import (
	"math"
	"time"
)

// Summary is the reduced form of the pointer and click buffers.
type Summary struct {
	MousePathDistance   float64           `json:"mouse_path_distance"`
	MouseAvgSpeed       float64           `json:"mouse_avg_speed"`
	MicroMouseMovements int               `json:"micro_mouse_movements"`
	InteractionDuration int64             `json:"interaction_duration"`
	InteractionRate     float64           `json:"interaction_rate"`
	IdleGapMS           *int64            `json:"idle_gap_ms"`
	MouseSamples        []Sample          `json:"mouse_samples"`
	ClickSamplesCount   int               `json:"click_samples_count"`
	FirstClickTS        *int64            `json:"first_click_ts"`
	LastClickTS         *int64            `json:"last_click_ts"`
	MouseSpeedUnits     string            `json:"mouse_speed_units"`
	BehaviorUnits       map[string]string `json:"behavior_units"`
}

// Result is everything the aggregator reads from a finished tracker.
type Result struct {
	Summary      Summary
	RecentClicks []Sample
	// PointerSamples is the number of retained raw pointer samples.
	PointerSamples int
	Clicks         int
	Scrolls        int
	KeyEvents      int
	Started        bool
	FirstAt        time.Time
}

// Summarize freezes the tracker and reduces its buffers. Repeated calls
// return the same result.
func (t *Tracker) Summarize() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.result != nil {
		return *t.result
	}

	movements := t.pointer.Snapshot()
	clicks := t.clicks.Snapshot()
	res := Result{
		RecentClicks:   clicks,
		PointerSamples: len(movements),
		Clicks:         t.clickCount,
		Scrolls:        t.scrollCount,
		KeyEvents:      t.keyCount,
		Started:        t.started,
		FirstAt:        t.firstAt,
	}
	res.Summary = t.summarize(movements, clicks)
	t.result = &res
	return res
}

func (t *Tracker) summarize(movements, clicks []Sample) Summary {
	s := Summary{
		MouseSamples:      []Sample{},
		ClickSamplesCount: t.clicks.Total(),
		MouseSpeedUnits:   "px/ms",
		BehaviorUnits: map[string]string{
			"mouse_path_distance":  "px",
			"mouse_avg_speed":      "px/ms",
			"interaction_duration": "ms",
		},
	}
	if len(clicks) > 0 {
		first, last := clicks[0].T, clicks[len(clicks)-1].T
		s.FirstClickTS, s.LastClickTS = &first, &last
	}

	events := len(movements) + t.clickCount + t.keyCount + t.scrollCount
	rate := round(InteractionRate(events, t.cfg.Window, t.cfg.ExpectedEventInterval), 3)

	if len(movements) == 0 {
		if t.started {
			s.InteractionRate = rate
		}
		return s
	}

	s.InteractionRate = rate
	points := Downsample(movements, t.cfg.SummaryPoints)
	s.MouseSamples = points
	if len(points) == 1 {
		return s
	}

	var distance float64
	for i := 1; i < len(points); i++ {
		seg := math.Hypot(points[i].X-points[i-1].X, points[i].Y-points[i-1].Y)
		distance += seg
		if seg < 2 {
			s.MicroMouseMovements++
		}
	}

	minT, maxT := points[0].T, points[0].T
	var idle int64
	for i, p := range points {
		minT = min(minT, p.T)
		maxT = max(maxT, p.T)
		if i > 0 {
			idle = max(idle, p.T-points[i-1].T)
		}
	}
	duration := max(0, maxT-minT)

	s.MousePathDistance = round(distance, 2)
	s.InteractionDuration = duration
	if duration > 0 {
		s.MouseAvgSpeed = round(distance/float64(duration), 4)
	}
	if idle >= t.cfg.IdleGapThreshold.Milliseconds() {
		s.IdleGapMS = &idle
	}
	return s
}

// InteractionRate is events over the expected event density of the window,
// capped at 1.
func InteractionRate(events int, window, interval time.Duration) float64 {
	expected := 1.0
	if interval > 0 {
		expected = max(1, float64(window)/float64(interval))
	}
	return math.Min(1, float64(events)/expected)
}

// Downsample picks at most limit points by even stride over the whole
// slice, so the selection always spans the full recording.
func Downsample(points []Sample, limit int) []Sample {
	if limit <= 0 || len(points) <= limit {
		out := make([]Sample, len(points))
		copy(out, points)
		return out
	}
	out := make([]Sample, 0, limit)
	step := float64(len(points)) / float64(limit)
	for i := 0; i < limit; i++ {
		idx := min(len(points)-1, int(math.Floor(float64(i)*step)))
		out = append(out, points[idx])
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
