package fingerprint

import (
	"github.com/shortontech/botprint/internal/behavior"
	"github.com/shortontech/botprint/internal/collector"
	"github.com/shortontech/botprint/internal/score"
)

// Record is the flat fingerprint of one page visit. Each embedded result
// owns its own JSON keys; a key is declared exactly once across the tree.
type Record struct {
	FingerprintID  string `json:"fingerprint_id"`
	SessionID      string `json:"session_id"`
	PageLoadTime   int64  `json:"page_load_time"`
	TimeToInteract int64  `json:"time_to_interact"`

	collector.PageContext
	collector.CanvasResult
	collector.WebGLResult
	collector.AudioResult
	collector.FontsResult
	collector.PluginsResult
	collector.AutomationResult
	collector.TikTokResult
	collector.UserAgentResult
	collector.PerformanceResult
	collector.NetworkResult
	collector.MediaDevicesResult
	collector.BatteryResult
	collector.WebRTCResult
	Behavior

	// CollectorStatus maps each collector to its outcome status.
	CollectorStatus map[string]collector.Status `json:"collector_status"`

	score.Result
}

// Behavior is the telemetry part of the record.
type Behavior struct {
	MouseMovementsCount int               `json:"mouse_movements_count"`
	MouseSegmentsCount  int               `json:"mouse_segments_count"`
	MouseMovementsTotal int               `json:"mouse_movements_total"`
	MouseClicksCount    int               `json:"mouse_clicks_count"`
	MouseScrollCount    int               `json:"mouse_scroll_count"`
	KeyboardEventsCount int               `json:"keyboard_events_count"`
	BehaviorSummary     behavior.Summary  `json:"behavior_summary"`
	ClickSamples        []behavior.Sample `json:"click_samples"`
	ClickSamplesCount   int               `json:"click_samples_count"`
}

func newBehavior(res behavior.Result) Behavior {
	n := len(res.Summary.MouseSamples)
	clicks := res.RecentClicks
	if clicks == nil {
		clicks = []behavior.Sample{}
	}
	return Behavior{
		MouseMovementsCount: n,
		MouseSegmentsCount:  max(n-1, 0),
		MouseMovementsTotal: res.PointerSamples,
		MouseClicksCount:    res.Clicks,
		MouseScrollCount:    res.Scrolls,
		KeyboardEventsCount: res.KeyEvents,
		BehaviorSummary:     res.Summary,
		ClickSamples:        clicks,
		ClickSamplesCount:   res.Summary.ClickSamplesCount,
	}
}

// ScoreInput extracts the normalized fields the score engine reads.
func (r *Record) ScoreInput() score.Input {
	return score.Input{
		WebdriverDetected:     r.WebdriverDetected,
		HeadlessDetected:      r.HeadlessDetected,
		AutomationDetected:    r.AutomationDetected,
		NoPerformanceSample:   r.PerformanceFlags.NoPerformanceSample,
		UnrealisticLoad:       r.PerformanceFlags.UnrealisticLoad,
		InteractionRate:       r.BehaviorSummary.InteractionRate,
		TimeToInteract:        r.TimeToInteract,
		MouseMovementsCount:   r.MouseMovementsCount,
		TouchPoints:           r.TouchPoints,
		DeviceType:            r.DeviceType,
		PluginsCount:          r.PluginsCount,
		TikTokWebviewDetected: r.TikTokWebviewDetected,
	}
}
