package collector

import (
	"context"
	"errors"

	"github.com/shortontech/botprint/internal/hashing"
	"github.com/shortontech/botprint/internal/platform"
)

// fakeCaps is a Capabilities whose probes are all unavailable unless a test
// sets them.
type fakeCaps struct {
	env platform.Environment

	canvas    platform.Canvas
	canvasErr error
	webgl     platform.WebGL
	webglErr  error
	audio     platform.AudioRenderer
	audioErr  error
	media     platform.MediaElement
	plugins   []string
	pluginErr error
	devices   platform.MediaDevices
	devErr    error
	battery   platform.Battery
	batErr    error
	conn      *platform.ConnectionInfo
	peer      platform.PeerConnector
	perf      platform.Performance
	storage   platform.Storage
	digester  hashing.Digester
}

func orUnavailable[T any](v T, present bool, err error) (T, error) {
	if err != nil {
		return v, err
	}
	if !present {
		var zero T
		return zero, platform.ErrUnavailable
	}
	return v, nil
}

func (f *fakeCaps) Environment() platform.Environment { return f.env }
func (f *fakeCaps) Canvas() (platform.Canvas, error) {
	return orUnavailable(f.canvas, f.canvas != nil, f.canvasErr)
}
func (f *fakeCaps) WebGL() (platform.WebGL, error) {
	return orUnavailable(f.webgl, f.webgl != nil, f.webglErr)
}
func (f *fakeCaps) OfflineAudio() (platform.AudioRenderer, error) {
	return orUnavailable(f.audio, f.audio != nil, f.audioErr)
}
func (f *fakeCaps) MediaElement() (platform.MediaElement, error) {
	return orUnavailable(f.media, f.media != nil, nil)
}
func (f *fakeCaps) Plugins() ([]string, error) {
	return orUnavailable(f.plugins, f.plugins != nil, f.pluginErr)
}
func (f *fakeCaps) MediaDevices() (platform.MediaDevices, error) {
	return orUnavailable(f.devices, f.devices != nil, nil)
}
func (f *fakeCaps) Battery() (platform.Battery, error) {
	return orUnavailable(f.battery, f.battery != nil, nil)
}
func (f *fakeCaps) Connection() (platform.ConnectionInfo, error) {
	if f.conn == nil {
		return platform.ConnectionInfo{}, platform.ErrUnavailable
	}
	return *f.conn, nil
}
func (f *fakeCaps) PeerConnector() (platform.PeerConnector, error) {
	return orUnavailable(f.peer, f.peer != nil, nil)
}
func (f *fakeCaps) Performance() (platform.Performance, error) {
	return orUnavailable(f.perf, f.perf != nil, nil)
}
func (f *fakeCaps) Storage() platform.Storage  { return f.storage }
func (f *fakeCaps) Digester() hashing.Digester { return f.digester }

// fakeCanvas renders every scene to its name and measures fonts from a
// table keyed by CSS font shorthand.
type fakeCanvas struct {
	widths    map[string]float64
	renderErr error
}

func (c *fakeCanvas) Render(_ context.Context, s platform.Scene) ([]byte, error) {
	if c.renderErr != nil {
		return nil, c.renderErr
	}
	return []byte("png:" + s.Name), nil
}

func (c *fakeCanvas) MeasureText(font, _ string) (float64, error) {
	if w, ok := c.widths[font]; ok {
		return w, nil
	}
	return 0, errors.New("no width for " + font)
}

type fakeWebGL struct {
	params        platform.GLParameters
	debugVendor   string
	debugRenderer string
	debug         bool
	extensions    []string
}

func (g *fakeWebGL) Version2() bool                             { return true }
func (g *fakeWebGL) Parameters() (platform.GLParameters, error) { return g.params, nil }
func (g *fakeWebGL) DebugRendererInfo() (string, string, bool) {
	return g.debugVendor, g.debugRenderer, g.debug
}
func (g *fakeWebGL) SupportedExtensions() []string { return g.extensions }

type fakeAudio struct {
	samples []float32
	err     error
	graph   platform.AudioGraph
}

func (a *fakeAudio) Render(_ context.Context, g platform.AudioGraph) ([]float32, error) {
	a.graph = g
	return a.samples, a.err
}

type fakeMedia map[string]string

func (m fakeMedia) CanPlayType(mime string) string { return m[mime] }

type fakeDevices struct {
	devices []platform.MediaDeviceInfo
	err     error
}

func (d *fakeDevices) EnumerateDevices(context.Context) ([]platform.MediaDeviceInfo, error) {
	return d.devices, d.err
}

type fakeBattery struct {
	status platform.BatteryStatus
	err    error
}

func (b *fakeBattery) Status(context.Context) (platform.BatteryStatus, error) { return b.status, b.err }

type fakePerf struct {
	nav        *platform.NavigationTiming
	legacy     *platform.LegacyTiming
	legacyType string
}

func (p *fakePerf) NavigationEntry() (platform.NavigationTiming, bool) {
	if p.nav == nil {
		return platform.NavigationTiming{}, false
	}
	return *p.nav, true
}

func (p *fakePerf) LegacyTiming() (platform.LegacyTiming, bool) {
	if p.legacy == nil {
		return platform.LegacyTiming{}, false
	}
	return *p.legacy, true
}

func (p *fakePerf) LegacyNavigationType() string { return p.legacyType }

type fakeStorage map[string]bool

func (s fakeStorage) Probe(area string) bool                            { return s[area] }
func (s fakeStorage) SessionGet(context.Context, string) (string, bool) { return "", false }
func (s fakeStorage) SessionSet(context.Context, string, string)        {}

// fakePeer scripts one peer connection.
type fakePeer struct {
	channelErr error
	offerErr   error
	events     []platform.ICEEvent
	// hold keeps the event channel open after the scripted events.
	hold   bool
	closed bool
}

func (p *fakePeer) NewPeerConnection(platform.PeerConfig) (platform.PeerConnection, error) {
	return p, nil
}

func (p *fakePeer) CreateDataChannel(string) error    { return p.channelErr }
func (p *fakePeer) CreateOffer(context.Context) error { return p.offerErr }
func (p *fakePeer) Close() error                      { p.closed = true; return nil }

func (p *fakePeer) ICEEvents() <-chan platform.ICEEvent {
	ch := make(chan platform.ICEEvent, len(p.events))
	for _, ev := range p.events {
		ch <- ev
	}
	if !p.hold {
		close(ch)
	}
	return ch
}
