package score

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Weights holds one weight in [0,1] per signal.
type Weights struct {
	Webdriver                   float64 `toml:"webdriver"`
	HeadlessRuntime             float64 `toml:"headless_runtime"`
	AutomationIndicators        float64 `toml:"automation_indicators"`
	MissingPerformanceAPI       float64 `toml:"missing_performance_api"`
	TimingAnomaly               float64 `toml:"timing_anomaly"`
	LowInteraction              float64 `toml:"low_interaction"`
	NoPointerActivity           float64 `toml:"no_pointer_activity"`
	DesktopNoPlugins            float64 `toml:"desktop_no_plugins"`
	TikTokWebviewLowInteraction float64 `toml:"tiktok_webview_low_interaction"`
}

func DefaultWeights() Weights {
	return Weights{
		Webdriver:                   0.35,
		HeadlessRuntime:             0.40,
		AutomationIndicators:        0.25,
		MissingPerformanceAPI:       0.08,
		TimingAnomaly:               0.12,
		LowInteraction:              0.18,
		NoPointerActivity:           0.15,
		DesktopNoPlugins:            0.10,
		TikTokWebviewLowInteraction: 0.20,
	}
}

func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		ReasonWebdriver:                   w.Webdriver,
		ReasonHeadlessRuntime:             w.HeadlessRuntime,
		ReasonAutomationIndicators:        w.AutomationIndicators,
		ReasonMissingPerformanceAPI:       w.MissingPerformanceAPI,
		ReasonTimingAnomaly:               w.TimingAnomaly,
		ReasonLowInteraction:              w.LowInteraction,
		ReasonNoPointerActivity:           w.NoPointerActivity,
		ReasonDesktopNoPlugins:            w.DesktopNoPlugins,
		ReasonTikTokWebviewLowInteraction: w.TikTokWebviewLowInteraction,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("weight %s = %v: must be within [0,1]", name, v)
		}
	}
	return nil
}

type file struct {
	Threshold float64 `toml:"threshold"`
	Weights   Weights `toml:"weights"`
}

// Load reads a TOML weights file of the form
//
//	threshold = 0.65
//	[weights]
//	webdriver = 0.35
//
// Entries missing from the file keep their defaults. An empty path or a
// missing file yields the default engine.
func Load(path string) (*Engine, error) {
	if path == "" {
		return NewDefault(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefault(), nil
		}
		return nil, fmt.Errorf("read weights: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes a TOML weights document over the defaults.
func Parse(doc string) (*Engine, error) {
	f := file{Threshold: DefaultThreshold, Weights: DefaultWeights()}
	if _, err := toml.Decode(doc, &f); err != nil {
		return nil, fmt.Errorf("decode weights TOML: %w", err)
	}
	if err := f.Weights.Validate(); err != nil {
		return nil, err
	}
	if f.Threshold <= 0 || f.Threshold > 1 {
		return nil, fmt.Errorf("threshold %v: must be within (0,1]", f.Threshold)
	}
	return New(f.Weights, f.Threshold), nil
}
