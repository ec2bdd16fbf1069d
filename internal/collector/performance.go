package collector

import (
	"errors"
	"math"
	"slices"
	"strings"

	"github.com/shortontech/botprint/internal/platform"
)

// PerformanceTiming holds rounded sub-phase durations in ms. A nil field is
// a phase the browser gave no usable sample for.
type PerformanceTiming struct {
	DNSLookup     *int64 `json:"dns_lookup"`
	TCPConnection *int64 `json:"tcp_connection"`
	RequestTime   *int64 `json:"request_time"`
	ResponseTime  *int64 `json:"response_time"`
	DOMProcessing *int64 `json:"dom_processing"`
	PageLoad      *int64 `json:"page_load"`
}

type PerformanceFlags struct {
	UnrealisticLoad     bool `json:"unrealistic_load"`
	NoPerformanceSample bool `json:"no_performance_sample"`
}

type PerformanceResult struct {
	PerformanceNavigationType string `json:"performance_navigation_type"`
	// PerformanceTiming is nil when the API is unavailable.
	PerformanceTiming *PerformanceTiming `json:"performance_timing"`
	TimeToFirstByte   *int64             `json:"time_to_first_byte"`
	DOMCompleteTime   int64              `json:"dom_complete_time"`
	PerformanceFlags  PerformanceFlags   `json:"performance_flags"`
	PerformanceNotes  string             `json:"performance_notes,omitempty"`

	// PageLoad feeds the record's page_load_time.
	PageLoad int64 `json:"-"`
}

// Performance notes.
const (
	NoteAPIUnavailable        = "performance_api_unavailable"
	NoteSubtimingsUnavailable = "navigation_subtimings_unavailable"
	NoteNetworkUnavailable    = "network_subtimings_unavailable"
	NoteTTFBUnavailable       = "ttfb_unavailable"
)

// unrealisticLoadMS is the page load below which a load is treated as
// scripted.
const unrealisticLoadMS = 80

// Performance reads the navigation timing entry, falling back to the legacy
// performance.timing object.
func Performance(caps platform.Capabilities) Outcome[PerformanceResult] {
	perf, err := caps.Performance()
	if err != nil || perf == nil {
		res := PerformanceResult{
			PerformanceNavigationType: Unknown,
			TimeToFirstByte:           new(int64),
			PerformanceFlags:          PerformanceFlags{NoPerformanceSample: true},
			PerformanceNotes:          NoteAPIUnavailable,
		}
		if err != nil && !errors.Is(err, platform.ErrUnavailable) {
			return Failed(res, errorKind(err))
		}
		return Degraded(res, NoteAPIUnavailable)
	}

	if nav, ok := perf.NavigationEntry(); ok {
		pageLoad := nav.LoadEventEnd
		if pageLoad == 0 {
			pageLoad = nav.Duration
		}
		if pageLoad == 0 {
			pageLoad = nav.DomComplete
		}
		timing := PerformanceTiming{
			DNSLookup:     diffMS(nav.DomainLookupEnd, nav.DomainLookupStart),
			TCPConnection: diffMS(nav.ConnectEnd, nav.ConnectStart),
			RequestTime:   diffMS(nav.ResponseStart, nav.RequestStart),
			ResponseTime:  diffMS(nav.ResponseEnd, nav.ResponseStart),
			DOMProcessing: diffMS(nav.DomComplete, nav.DomInteractive),
			PageLoad:      ptr(duration(pageLoad)),
		}
		navType := nav.Type
		if navType == "" {
			navType = "navigate"
		}
		return Ok(finishTiming(navType, timing, nav.ResponseStart, nav.DomComplete))
	}

	if legacy, ok := perf.LegacyTiming(); ok {
		start := legacy.NavigationStart
		timing := PerformanceTiming{
			DNSLookup:     diffMS(legacy.DomainLookupEnd, legacy.DomainLookupStart),
			TCPConnection: diffMS(legacy.ConnectEnd, legacy.ConnectStart),
			RequestTime:   diffMS(legacy.ResponseStart, legacy.RequestStart),
			ResponseTime:  diffMS(legacy.ResponseEnd, legacy.ResponseStart),
			DOMProcessing: diffMS(legacy.DomComplete, legacy.DomLoading),
			PageLoad:      ptr(duration(legacy.LoadEventEnd - start)),
		}
		navType := perf.LegacyNavigationType()
		if navType == "" {
			navType = "navigate"
		}
		return Ok(finishTiming(navType, timing, legacy.ResponseStart-start, legacy.DomComplete-start))
	}

	return Degraded(PerformanceResult{
		PerformanceNavigationType: Unknown,
		TimeToFirstByte:           new(int64),
		PerformanceFlags:          PerformanceFlags{NoPerformanceSample: true},
		PerformanceNotes:          NoteAPIUnavailable,
	}, NoteAPIUnavailable)
}

func finishTiming(navType string, timing PerformanceTiming, ttfb, domComplete float64) PerformanceResult {
	pageLoad := *timing.PageLoad
	var notes string
	if !anyPositive(timing.DNSLookup, timing.TCPConnection, timing.RequestTime,
		timing.ResponseTime, timing.DOMProcessing, timing.PageLoad) {
		timing = PerformanceTiming{}
		notes = MergeNotes(notes, NoteSubtimingsUnavailable)
	} else if !anyPositive(timing.DNSLookup, timing.TCPConnection, timing.RequestTime, timing.ResponseTime) {
		timing.DNSLookup, timing.TCPConnection, timing.RequestTime, timing.ResponseTime = nil, nil, nil, nil
		notes = MergeNotes(notes, NoteNetworkUnavailable)
	}

	res := PerformanceResult{
		PerformanceNavigationType: navType,
		PerformanceTiming:         &timing,
		DOMCompleteTime:           duration(domComplete),
		PerformanceFlags: PerformanceFlags{
			UnrealisticLoad: pageLoad > 0 && pageLoad < unrealisticLoadMS,
		},
		PageLoad: pageLoad,
	}
	if v := math.Round(ttfb); v > 0 && !math.IsInf(v, 0) {
		res.TimeToFirstByte = ptr(int64(v))
	} else {
		notes = MergeNotes(notes, NoteTTFBUnavailable)
	}
	res.PerformanceNotes = notes
	return res
}

// MergeNotes appends note to a "; "-joined list unless already present.
func MergeNotes(current, note string) string {
	if note == "" {
		return current
	}
	if current == "" {
		return note
	}
	for _, part := range strings.Split(current, ";") {
		if strings.TrimSpace(part) == note {
			return current
		}
	}
	return current + "; " + note
}

// duration rounds v to whole ms; negative and non-finite values become 0.
func duration(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	return int64(r)
}

func diffMS(end, start float64) *int64 {
	return ptr(duration(end - start))
}

func anyPositive(vals ...*int64) bool {
	return slices.ContainsFunc(vals, func(v *int64) bool { return v != nil && *v > 0 })
}
