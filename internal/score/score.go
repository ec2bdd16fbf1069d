// Package score fuses fingerprint signals into a bot probability with a
// noisy-OR: every fired signal multiplies the probability of "human" by
// (1 - weight), and the bot score is one minus what is left.
package score

import (
	"math"
)

// Reasons, in evaluation order.
const (
	ReasonWebdriver                   = "webdriver"
	ReasonHeadlessRuntime             = "headless_runtime"
	ReasonAutomationIndicators        = "automation_indicators"
	ReasonMissingPerformanceAPI       = "missing_performance_api"
	ReasonTimingAnomaly               = "timing_anomaly"
	ReasonLowInteraction              = "low_interaction"
	ReasonNoPointerActivity           = "no_pointer_activity"
	ReasonDesktopNoPlugins            = "desktop_no_plugins"
	ReasonTikTokWebviewLowInteraction = "tiktok_webview_low_interaction"
)

const (
	DefaultThreshold = 0.65

	lowInteractionRate = 0.2
	lowInteractionTTI  = 3000
)

// Input is the normalized slice of a fingerprint record the engine reads.
// Zero values never fire a signal on their own except where noted.
type Input struct {
	WebdriverDetected  bool
	HeadlessDetected   bool
	AutomationDetected bool

	NoPerformanceSample bool
	UnrealisticLoad     bool

	InteractionRate float64
	// TimeToInteract is in ms.
	TimeToInteract      int64
	MouseMovementsCount int
	TouchPoints         int

	// DeviceType is mobile, tablet, desktop, or empty when unknown.
	DeviceType string
	// PluginsCount is nil when plugin enumeration was unavailable.
	PluginsCount *int

	TikTokWebviewDetected bool
}

type Result struct {
	BotScore         float64  `json:"bot_score"`
	IsBot            bool     `json:"is_bot"`
	SuspicionReasons []string `json:"suspicion_reasons"`
}

// Engine evaluates inputs against a weight table. The zero Engine is not
// useful; use New or NewDefault.
type Engine struct {
	weights   Weights
	threshold float64
}

func New(w Weights, threshold float64) *Engine {
	return &Engine{weights: w, threshold: threshold}
}

func NewDefault() *Engine { return New(DefaultWeights(), DefaultThreshold) }

func (e *Engine) Weights() Weights   { return e.weights }
func (e *Engine) Threshold() float64 { return e.threshold }

// Evaluate computes the verdict for in. It cannot fail.
func (e *Engine) Evaluate(in Input) Result {
	w := e.weights
	lowInteraction := in.InteractionRate < lowInteractionRate && in.TimeToInteract > lowInteractionTTI
	pointerless := in.MouseMovementsCount <= 1 && in.TouchPoints == 0
	desktop := in.DeviceType == "desktop" || ((in.DeviceType == "" || in.DeviceType == "unknown") && in.TouchPoints == 0)
	noPlugins := in.PluginsCount != nil && *in.PluginsCount == 0

	complement := 1.0
	reasons := []string{}
	add := func(fired bool, weight float64, reason string) {
		if !fired {
			return
		}
		complement *= 1 - clamp(weight)
		reasons = append(reasons, reason)
	}

	add(in.WebdriverDetected, w.Webdriver, ReasonWebdriver)
	add(in.HeadlessDetected, w.HeadlessRuntime, ReasonHeadlessRuntime)
	add(in.AutomationDetected && !in.HeadlessDetected && !in.WebdriverDetected, w.AutomationIndicators, ReasonAutomationIndicators)
	add(in.NoPerformanceSample, w.MissingPerformanceAPI, ReasonMissingPerformanceAPI)
	add(in.UnrealisticLoad, w.TimingAnomaly, ReasonTimingAnomaly)
	add(lowInteraction, w.LowInteraction, ReasonLowInteraction)
	add(pointerless, w.NoPointerActivity, ReasonNoPointerActivity)
	add(desktop && noPlugins, w.DesktopNoPlugins, ReasonDesktopNoPlugins)
	add(in.TikTokWebviewDetected && lowInteraction, w.TikTokWebviewLowInteraction, ReasonTikTokWebviewLowInteraction)

	score := clamp(1 - complement)
	return Result{
		BotScore:         math.Round(score*1000) / 1000,
		IsBot:            score >= e.threshold,
		SuspicionReasons: reasons,
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
