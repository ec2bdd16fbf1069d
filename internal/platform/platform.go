// Package platform declares the browser capabilities the fingerprint
// collectors probe. Every probe is reached through Capabilities so that the
// collectors can run against a replayed client report in production and
// against deterministic fakes in tests.
package platform

import (
	"context"
	"slices"

	"github.com/shortontech/botprint/internal/hashing"
)

// Capabilities bundles every probe a fingerprinting pass needs. Methods that
// return an error report ErrUnavailable when the capability is absent from
// the environment; any other error means the capability exists but failed.
type Capabilities interface {
	Environment() Environment
	Canvas() (Canvas, error)
	WebGL() (WebGL, error)
	OfflineAudio() (AudioRenderer, error)
	MediaElement() (MediaElement, error)
	Plugins() ([]string, error)
	MediaDevices() (MediaDevices, error)
	Battery() (Battery, error)
	Connection() (ConnectionInfo, error)
	PeerConnector() (PeerConnector, error)
	Performance() (Performance, error)
	Storage() Storage
	// Digester returns the runtime digest primitive, or nil when the
	// runtime has none.
	Digester() hashing.Digester
}

// Environment is the synchronous identity and window introspection surface.
type Environment struct {
	Navigator Navigator
	Screen    Screen
	Viewport  Viewport
	Document  Document

	Timezone       string
	TimezoneOffset int
	TouchEvents    bool
	IndexedDB      bool

	// Globals lists the names of notable window globals present, such as
	// callPhantom, __nightmare, tiktok or ttCollector.
	Globals []string
	// MessageHandlers lists webkit.messageHandlers entries.
	MessageHandlers []string
}

func (e Environment) HasGlobal(name string) bool { return slices.Contains(e.Globals, name) }

func (e Environment) HasMessageHandler(name string) bool {
	return slices.Contains(e.MessageHandlers, name)
}

type Navigator struct {
	UserAgent           string
	Brands              []string
	UAMobile            *bool
	Platform            string
	Language            string
	Languages           []string
	Webdriver           bool
	HardwareConcurrency int
	DeviceMemory        *float64
	MaxTouchPoints      int
	CookieEnabled       bool
	DoNotTrack          string
}

type Screen struct {
	Width       int
	Height      int
	AvailWidth  int
	AvailHeight int
	ColorDepth  int
	Orientation string
}

type Viewport struct {
	InnerWidth       int
	InnerHeight      int
	OuterWidth       int
	OuterHeight      int
	DevicePixelRatio float64
}

type Document struct {
	URL      string
	Referrer string
	Cookie   string
	// WebdriverAttribute is set when the root element carries a webdriver
	// attribute.
	WebdriverAttribute bool
	// SeleniumCDC is set when the ChromeDriver cdc_ marker is on the document.
	SeleniumCDC bool
}

// Canvas is a 2D drawing surface.
type Canvas interface {
	// Render draws scene on a fresh surface and returns the encoded pixel
	// buffer.
	Render(ctx context.Context, scene Scene) ([]byte, error)
	// MeasureText returns the rendered width of text under the CSS font
	// shorthand font.
	MeasureText(font, text string) (float64, error)
}

// WebGL is a WebGL rendering context.
type WebGL interface {
	Version2() bool
	Parameters() (GLParameters, error)
	// DebugRendererInfo returns the unmasked vendor and renderer when the
	// WEBGL_debug_renderer_info extension is exposed.
	DebugRendererInfo() (vendor, renderer string, ok bool)
	SupportedExtensions() []string
}

type GLParameters struct {
	Vendor                 string
	Renderer               string
	Version                string
	ShadingLanguageVersion string
	MaxTextureSize         int
	MaxVertexAttribs       int
	MaxViewportDims        [2]int

	AlphaBits                    int
	BlueBits                     int
	DepthBits                    int
	GreenBits                    int
	MaxCombinedTextureImageUnits int
	MaxCubeMapTextureSize        int
	MaxFragmentUniformVectors    int
	MaxRenderbufferSize          int
	MaxVaryingVectors            int
	MaxVertexTextureImageUnits   int
	MaxVertexUniformVectors      int
	RedBits                      int
	StencilBits                  int
}

// AudioRenderer is an offline audio rendering context.
type AudioRenderer interface {
	// Render runs graph to completion and returns channel 0.
	Render(ctx context.Context, graph AudioGraph) ([]float32, error)
}

type AudioGraph struct {
	Channels   int
	Frames     int
	SampleRate int
	Oscillator Oscillator
	Compressor Compressor
}

type Oscillator struct {
	Type      string
	Frequency float64
}

type Compressor struct {
	Threshold float64
	Knee      float64
	Ratio     float64
	Attack    float64
	Release   float64
}

// MediaElement answers HTMLMediaElement.canPlayType.
type MediaElement interface {
	CanPlayType(mime string) string
}

type MediaDevices interface {
	EnumerateDevices(ctx context.Context) ([]MediaDeviceInfo, error)
}

type MediaDeviceInfo struct {
	Kind  string
	Label string
}

type Battery interface {
	Status(ctx context.Context) (BatteryStatus, error)
}

type BatteryStatus struct {
	Charging bool
	Level    float64
}

// ConnectionInfo mirrors the Network Information API. Nil pointers and
// empty strings mean the attribute was not exposed.
type ConnectionInfo struct {
	EffectiveType string
	Downlink      *float64
	RTT           *float64
	SaveData      *bool
	Type          string
}

// Storage exposes the page's web storage areas.
type Storage interface {
	// Probe reports whether the named storage area ("localStorage",
	// "sessionStorage") accepts a write.
	Probe(area string) bool
	SessionGet(ctx context.Context, key string) (string, bool)
	SessionSet(ctx context.Context, key, value string)
}

type Performance interface {
	NavigationEntry() (NavigationTiming, bool)
	LegacyTiming() (LegacyTiming, bool)
	// LegacyNavigationType is performance.navigation.type, empty when absent.
	LegacyNavigationType() string
}

// NavigationTiming holds a PerformanceNavigationTiming entry, in ms relative
// to the time origin.
type NavigationTiming struct {
	Type              string
	DomainLookupStart float64
	DomainLookupEnd   float64
	ConnectStart      float64
	ConnectEnd        float64
	RequestStart      float64
	ResponseStart     float64
	ResponseEnd       float64
	DomInteractive    float64
	DomComplete       float64
	LoadEventEnd      float64
	Duration          float64
}

// LegacyTiming holds the deprecated performance.timing object in epoch ms.
type LegacyTiming struct {
	NavigationStart   float64
	DomainLookupStart float64
	DomainLookupEnd   float64
	ConnectStart      float64
	ConnectEnd        float64
	RequestStart      float64
	ResponseStart     float64
	ResponseEnd       float64
	DomLoading        float64
	DomComplete       float64
	LoadEventEnd      float64
}
