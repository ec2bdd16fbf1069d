// Package snapshot implements platform.Capabilities over a probe report: the
// raw capability answers gathered by the in-page script and posted to the
// collector service. Collectors then run server side exactly as they would
// against a live browser.
package snapshot

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed report.schema.json
var schemaJSON []byte

const schemaURL = "https://botprint.shortontech.com/schema/report-v1.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add report schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Report is one probe report. Times are unix milliseconds; event times are
// ms since navigation start.
type Report struct {
	Version         int    `json:"version"`
	SessionScope    string `json:"session_scope,omitempty"`
	NavigationStart int64  `json:"navigation_start"`
	ScriptBoot      int64  `json:"script_boot"`
	// DigestAvailable is false when the page had no crypto.subtle, in which
	// case hashes take the legacy path.
	DigestAvailable *bool `json:"digest_available,omitempty"`

	Environment  Environment       `json:"environment"`
	Canvas       *CanvasProbe      `json:"canvas,omitempty"`
	WebGL        *WebGLProbe       `json:"webgl,omitempty"`
	Audio        *AudioProbe       `json:"audio,omitempty"`
	CanPlayType  map[string]string `json:"can_play_type,omitempty"`
	Plugins      []string          `json:"plugins"`
	MediaDevices *DevicesProbe     `json:"media_devices,omitempty"`
	Battery      *BatteryProbe     `json:"battery,omitempty"`
	Connection   *ConnectionProbe  `json:"connection,omitempty"`
	WebRTC       *WebRTCProbe      `json:"webrtc,omitempty"`
	Performance  *PerformanceProbe `json:"performance,omitempty"`
	Storage      map[string]bool   `json:"storage,omitempty"`
	Events       []Event           `json:"events,omitempty"`
}

type Environment struct {
	Navigator       Navigator `json:"navigator"`
	Screen          Screen    `json:"screen"`
	Viewport        Viewport  `json:"viewport"`
	Document        Document  `json:"document"`
	Timezone        string    `json:"timezone"`
	TimezoneOffset  int       `json:"timezone_offset"`
	TouchEvents     bool      `json:"touch_events"`
	IndexedDB       bool      `json:"indexed_db"`
	Globals         []string  `json:"globals,omitempty"`
	MessageHandlers []string  `json:"message_handlers,omitempty"`
}

type Navigator struct {
	UserAgent           string   `json:"user_agent"`
	Brands              []string `json:"brands,omitempty"`
	UAMobile            *bool    `json:"ua_mobile,omitempty"`
	Platform            string   `json:"platform"`
	Language            string   `json:"language"`
	Languages           []string `json:"languages"`
	Webdriver           bool     `json:"webdriver"`
	HardwareConcurrency int      `json:"hardware_concurrency"`
	DeviceMemory        *float64 `json:"device_memory,omitempty"`
	MaxTouchPoints      int      `json:"max_touch_points"`
	CookieEnabled       bool     `json:"cookie_enabled"`
	DoNotTrack          string   `json:"do_not_track,omitempty"`
}

type Screen struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	AvailWidth  int    `json:"avail_width"`
	AvailHeight int    `json:"avail_height"`
	ColorDepth  int    `json:"color_depth"`
	Orientation string `json:"orientation,omitempty"`
}

type Viewport struct {
	InnerWidth       int     `json:"inner_width"`
	InnerHeight      int     `json:"inner_height"`
	OuterWidth       int     `json:"outer_width"`
	OuterHeight      int     `json:"outer_height"`
	DevicePixelRatio float64 `json:"device_pixel_ratio"`
}

type Document struct {
	URL                string `json:"url"`
	Referrer           string `json:"referrer"`
	Cookie             string `json:"cookie"`
	WebdriverAttribute bool   `json:"webdriver_attribute"`
	SeleniumCDC        bool   `json:"selenium_cdc"`
}

// CanvasProbe carries each scene's toDataURL output and measured text
// widths keyed by CSS font shorthand.
type CanvasProbe struct {
	Error      string             `json:"error,omitempty"`
	Scenes     map[string]string  `json:"scenes,omitempty"`
	FontWidths map[string]float64 `json:"font_widths,omitempty"`
}

type WebGLProbe struct {
	Error         string       `json:"error,omitempty"`
	WebGL2        bool         `json:"webgl2"`
	Parameters    GLParameters `json:"parameters"`
	DebugVendor   string       `json:"debug_vendor,omitempty"`
	DebugRenderer string       `json:"debug_renderer,omitempty"`
	Extensions    []string     `json:"extensions,omitempty"`
}

type GLParameters struct {
	Vendor                       string `json:"vendor"`
	Renderer                     string `json:"renderer"`
	Version                      string `json:"version"`
	ShadingLanguageVersion       string `json:"shading_language_version"`
	MaxTextureSize               int    `json:"max_texture_size"`
	MaxVertexAttribs             int    `json:"max_vertex_attribs"`
	MaxViewportDims              [2]int `json:"max_viewport_dims"`
	AlphaBits                    int    `json:"alpha_bits"`
	BlueBits                     int    `json:"blue_bits"`
	DepthBits                    int    `json:"depth_bits"`
	GreenBits                    int    `json:"green_bits"`
	MaxCombinedTextureImageUnits int    `json:"max_combined_texture_image_units"`
	MaxCubeMapTextureSize        int    `json:"max_cube_map_texture_size"`
	MaxFragmentUniformVectors    int    `json:"max_fragment_uniform_vectors"`
	MaxRenderbufferSize          int    `json:"max_renderbuffer_size"`
	MaxVaryingVectors            int    `json:"max_varying_vectors"`
	MaxVertexTextureImageUnits   int    `json:"max_vertex_texture_image_units"`
	MaxVertexUniformVectors      int    `json:"max_vertex_uniform_vectors"`
	RedBits                      int    `json:"red_bits"`
	StencilBits                  int    `json:"stencil_bits"`
}

// AudioFrames is the length of the offline audio render a report may cover.
const AudioFrames = 44100

// AudioProbe carries the rendered channel 0 starting at SamplesOffset.
type AudioProbe struct {
	Error         string    `json:"error,omitempty"`
	SamplesOffset int       `json:"samples_offset"`
	Samples       []float32 `json:"samples"`
}

type DevicesProbe struct {
	Error   string   `json:"error,omitempty"`
	Devices []Device `json:"devices"`
}

type Device struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
}

type BatteryProbe struct {
	Error    string  `json:"error,omitempty"`
	Charging bool    `json:"charging"`
	Level    float64 `json:"level"`
}

type ConnectionProbe struct {
	EffectiveType string   `json:"effective_type,omitempty"`
	Downlink      *float64 `json:"downlink,omitempty"`
	RTT           *float64 `json:"rtt,omitempty"`
	SaveData      *bool    `json:"save_data,omitempty"`
	Type          string   `json:"type,omitempty"`
}

// WebRTCProbe is the recorded ICE gathering. Errors are DOM exception names.
type WebRTCProbe struct {
	ChannelError   string   `json:"channel_error,omitempty"`
	OfferError     string   `json:"offer_error,omitempty"`
	Candidates     []string `json:"candidates"`
	CandidateError string   `json:"candidate_error,omitempty"`
}

type PerformanceProbe struct {
	Navigation           *NavigationTiming `json:"navigation,omitempty"`
	Legacy               *LegacyTiming     `json:"legacy,omitempty"`
	LegacyNavigationType string            `json:"legacy_navigation_type,omitempty"`
}

type NavigationTiming struct {
	Type              string  `json:"type"`
	DomainLookupStart float64 `json:"domain_lookup_start"`
	DomainLookupEnd   float64 `json:"domain_lookup_end"`
	ConnectStart      float64 `json:"connect_start"`
	ConnectEnd        float64 `json:"connect_end"`
	RequestStart      float64 `json:"request_start"`
	ResponseStart     float64 `json:"response_start"`
	ResponseEnd       float64 `json:"response_end"`
	DomInteractive    float64 `json:"dom_interactive"`
	DomComplete       float64 `json:"dom_complete"`
	LoadEventEnd      float64 `json:"load_event_end"`
	Duration          float64 `json:"duration"`
}

type LegacyTiming struct {
	NavigationStart   float64 `json:"navigation_start"`
	DomainLookupStart float64 `json:"domain_lookup_start"`
	DomainLookupEnd   float64 `json:"domain_lookup_end"`
	ConnectStart      float64 `json:"connect_start"`
	ConnectEnd        float64 `json:"connect_end"`
	RequestStart      float64 `json:"request_start"`
	ResponseStart     float64 `json:"response_start"`
	ResponseEnd       float64 `json:"response_end"`
	DomLoading        float64 `json:"dom_loading"`
	DomComplete       float64 `json:"dom_complete"`
	LoadEventEnd      float64 `json:"load_event_end"`
}

// Event types.
const (
	EventPointerMove = "pointermove"
	EventTouchMove   = "touchmove"
	EventClick       = "click"
	EventScroll      = "scroll"
	EventKeyDown     = "keydown"
	EventTouchStart  = "touchstart"
	EventPointerDown = "pointerdown"
)

// Event is one recorded DOM event; T is ms since navigation start.
type Event struct {
	Type string  `json:"type"`
	X    float64 `json:"x,omitempty"`
	Y    float64 `json:"y,omitempty"`
	T    float64 `json:"t"`
}

// Decode validates data against the report schema and decodes it.
func Decode(data []byte) (*Report, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, &ValidationError{err: err}
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if a := r.Audio; a != nil && a.SamplesOffset+len(a.Samples) > AudioFrames {
		return nil, &ValidationError{err: fmt.Errorf("audio: samples_offset %d with %d samples exceeds %d frames",
			a.SamplesOffset, len(a.Samples), AudioFrames)}
	}
	return &r, nil
}

// ValidationError is returned by Decode for a report that does not match
// the schema.
type ValidationError struct{ err error }

func (e *ValidationError) Error() string { return "invalid report: " + e.err.Error() }
func (e *ValidationError) Unwrap() error { return e.err }

func (r *Report) NavigationStartTime() time.Time { return time.UnixMilli(r.NavigationStart) }
func (r *Report) ScriptBootTime() time.Time      { return time.UnixMilli(r.ScriptBoot) }
