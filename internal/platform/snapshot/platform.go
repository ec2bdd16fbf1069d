package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shortontech/botprint/internal/behavior"
	"github.com/shortontech/botprint/internal/hashing"
	"github.com/shortontech/botprint/internal/platform"
)

// SessionStore persists session storage values across reports of the same
// session scope.
type SessionStore interface {
	Get(ctx context.Context, scope, key string) (string, bool)
	Set(ctx context.Context, scope, key, value string)
}

// Platform answers every capability probe from a Report.
type Platform struct {
	report *Report
	scope  string
	store  SessionStore
}

// New returns the platform for r. Session storage reads and writes go to
// store under scope; a nil store makes session storage empty.
func New(r *Report, scope string, store SessionStore) *Platform {
	return &Platform{report: r, scope: scope, store: store}
}

func (p *Platform) Report() *Report { return p.report }

// probeErr maps a reported error name to a collaborator error.
func probeErr(name string) error {
	switch name {
	case "":
		return nil
	case platform.KindUnavailable:
		return platform.ErrUnavailable
	}
	return &platform.DOMError{Name: name}
}

func (p *Platform) Environment() platform.Environment {
	e := p.report.Environment
	n := e.Navigator
	return platform.Environment{
		Navigator: platform.Navigator{
			UserAgent:           n.UserAgent,
			Brands:              n.Brands,
			UAMobile:            n.UAMobile,
			Platform:            n.Platform,
			Language:            n.Language,
			Languages:           n.Languages,
			Webdriver:           n.Webdriver,
			HardwareConcurrency: n.HardwareConcurrency,
			DeviceMemory:        n.DeviceMemory,
			MaxTouchPoints:      n.MaxTouchPoints,
			CookieEnabled:       n.CookieEnabled,
			DoNotTrack:          n.DoNotTrack,
		},
		Screen:          platform.Screen(e.Screen),
		Viewport:        platform.Viewport(e.Viewport),
		Document:        platform.Document(e.Document),
		Timezone:        e.Timezone,
		TimezoneOffset:  e.TimezoneOffset,
		TouchEvents:     e.TouchEvents,
		IndexedDB:       e.IndexedDB,
		Globals:         e.Globals,
		MessageHandlers: e.MessageHandlers,
	}
}

func (p *Platform) Canvas() (platform.Canvas, error) {
	c := p.report.Canvas
	if c == nil {
		return nil, platform.ErrUnavailable
	}
	if err := probeErr(c.Error); err != nil {
		return nil, err
	}
	return canvas{c}, nil
}

type canvas struct{ probe *CanvasProbe }

func (c canvas) Render(_ context.Context, scene platform.Scene) ([]byte, error) {
	data, ok := c.probe.Scenes[scene.Name]
	if !ok {
		return nil, fmt.Errorf("scene %q not in report", scene.Name)
	}
	return []byte(data), nil
}

func (c canvas) MeasureText(font, _ string) (float64, error) {
	w, ok := c.probe.FontWidths[font]
	if !ok {
		return 0, fmt.Errorf("no width reported for %q", font)
	}
	return w, nil
}

func (p *Platform) WebGL() (platform.WebGL, error) {
	g := p.report.WebGL
	if g == nil {
		return nil, platform.ErrUnavailable
	}
	if err := probeErr(g.Error); err != nil {
		return nil, err
	}
	return webgl{g}, nil
}

type webgl struct{ probe *WebGLProbe }

func (g webgl) Version2() bool { return g.probe.WebGL2 }

func (g webgl) Parameters() (platform.GLParameters, error) {
	return platform.GLParameters(g.probe.Parameters), nil
}

func (g webgl) DebugRendererInfo() (string, string, bool) {
	if g.probe.DebugVendor == "" && g.probe.DebugRenderer == "" {
		return "", "", false
	}
	return g.probe.DebugVendor, g.probe.DebugRenderer, true
}

func (g webgl) SupportedExtensions() []string { return g.probe.Extensions }

func (p *Platform) OfflineAudio() (platform.AudioRenderer, error) {
	a := p.report.Audio
	if a == nil {
		return nil, platform.ErrUnavailable
	}
	if err := probeErr(a.Error); err != nil {
		return nil, err
	}
	return audio{a}, nil
}

type audio struct{ probe *AudioProbe }

// Render rebuilds channel 0 with the reported samples at their offset.
func (a audio) Render(ctx context.Context, graph platform.AudioGraph) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	off := a.probe.SamplesOffset
	if off < 0 || off > graph.Frames || len(a.probe.Samples) > graph.Frames-off {
		return nil, fmt.Errorf("audio samples out of range: offset %d, %d samples, %d frames",
			off, len(a.probe.Samples), graph.Frames)
	}
	buf := make([]float32, graph.Frames)
	copy(buf[off:], a.probe.Samples)
	return buf, nil
}

func (p *Platform) MediaElement() (platform.MediaElement, error) {
	if p.report.CanPlayType == nil {
		return nil, platform.ErrUnavailable
	}
	return mediaElement(p.report.CanPlayType), nil
}

type mediaElement map[string]string

func (m mediaElement) CanPlayType(mime string) string { return m[mime] }

func (p *Platform) Plugins() ([]string, error) {
	if p.report.Plugins == nil {
		return nil, platform.ErrUnavailable
	}
	return p.report.Plugins, nil
}

func (p *Platform) MediaDevices() (platform.MediaDevices, error) {
	if p.report.MediaDevices == nil {
		return nil, platform.ErrUnavailable
	}
	return mediaDevices{p.report.MediaDevices}, nil
}

type mediaDevices struct{ probe *DevicesProbe }

func (m mediaDevices) EnumerateDevices(context.Context) ([]platform.MediaDeviceInfo, error) {
	if err := probeErr(m.probe.Error); err != nil {
		if errors.Is(err, platform.ErrUnavailable) {
			err = &platform.DOMError{Name: platform.KindUnknown}
		}
		return nil, err
	}
	out := make([]platform.MediaDeviceInfo, len(m.probe.Devices))
	for i, d := range m.probe.Devices {
		out[i] = platform.MediaDeviceInfo(d)
	}
	return out, nil
}

func (p *Platform) Battery() (platform.Battery, error) {
	if p.report.Battery == nil {
		return nil, platform.ErrUnavailable
	}
	return battery{p.report.Battery}, nil
}

type battery struct{ probe *BatteryProbe }

func (b battery) Status(context.Context) (platform.BatteryStatus, error) {
	if b.probe.Error != "" {
		return platform.BatteryStatus{}, &platform.DOMError{Name: b.probe.Error}
	}
	return platform.BatteryStatus{Charging: b.probe.Charging, Level: b.probe.Level}, nil
}

func (p *Platform) Connection() (platform.ConnectionInfo, error) {
	c := p.report.Connection
	if c == nil {
		return platform.ConnectionInfo{}, platform.ErrUnavailable
	}
	return platform.ConnectionInfo(*c), nil
}

func (p *Platform) PeerConnector() (platform.PeerConnector, error) {
	if p.report.WebRTC == nil {
		return nil, platform.ErrUnavailable
	}
	return peerConnector{p.report.WebRTC}, nil
}

type peerConnector struct{ probe *WebRTCProbe }

func (c peerConnector) NewPeerConnection(platform.PeerConfig) (platform.PeerConnection, error) {
	return &peerConnection{probe: c.probe}, nil
}

// peerConnection replays recorded gathering. The client already enforced
// its own deadline, so the event stream always ends after the recorded
// candidates.
type peerConnection struct {
	probe  *WebRTCProbe
	closed bool
}

func (pc *peerConnection) CreateDataChannel(string) error {
	return probeErr(pc.probe.ChannelError)
}

func (pc *peerConnection) CreateOffer(context.Context) error {
	return probeErr(pc.probe.OfferError)
}

func (pc *peerConnection) ICEEvents() <-chan platform.ICEEvent {
	ch := make(chan platform.ICEEvent, len(pc.probe.Candidates)+1)
	for _, c := range pc.probe.Candidates {
		ch <- platform.ICEEvent{Candidate: c}
	}
	if pc.probe.CandidateError != "" {
		ch <- platform.ICEEvent{Err: &platform.DOMError{Name: pc.probe.CandidateError}}
	} else {
		ch <- platform.ICEEvent{End: true}
	}
	close(ch)
	return ch
}

func (pc *peerConnection) Close() error {
	pc.closed = true
	return nil
}

func (p *Platform) Performance() (platform.Performance, error) {
	if p.report.Performance == nil {
		return nil, platform.ErrUnavailable
	}
	return performance{p.report.Performance}, nil
}

type performance struct{ probe *PerformanceProbe }

func (pf performance) NavigationEntry() (platform.NavigationTiming, bool) {
	if pf.probe.Navigation == nil {
		return platform.NavigationTiming{}, false
	}
	return platform.NavigationTiming(*pf.probe.Navigation), true
}

func (pf performance) LegacyTiming() (platform.LegacyTiming, bool) {
	if pf.probe.Legacy == nil {
		return platform.LegacyTiming{}, false
	}
	return platform.LegacyTiming(*pf.probe.Legacy), true
}

func (pf performance) LegacyNavigationType() string { return pf.probe.LegacyNavigationType }

func (p *Platform) Storage() platform.Storage { return storage{p} }

type storage struct{ p *Platform }

func (s storage) Probe(area string) bool { return s.p.report.Storage[area] }

func (s storage) SessionGet(ctx context.Context, key string) (string, bool) {
	if s.p.store == nil || s.p.scope == "" {
		return "", false
	}
	return s.p.store.Get(ctx, s.p.scope, key)
}

func (s storage) SessionSet(ctx context.Context, key, value string) {
	if s.p.store == nil || s.p.scope == "" {
		return
	}
	s.p.store.Set(ctx, s.p.scope, key, value)
}

func (p *Platform) Digester() hashing.Digester {
	if d := p.report.DigestAvailable; d != nil && !*d {
		return nil
	}
	return hashing.SHA256{}
}

// Replay feeds the recorded events into t in order.
func (p *Platform) Replay(t *behavior.Tracker) {
	start := p.report.NavigationStartTime()
	for _, ev := range p.report.Events {
		at := start.Add(time.Duration(ev.T * float64(time.Millisecond)))
		switch ev.Type {
		case EventPointerMove:
			t.PointerMove(ev.X, ev.Y, at)
		case EventTouchMove:
			t.TouchMove(ev.X, ev.Y, at)
		case EventClick:
			t.Click(ev.X, ev.Y, at)
		case EventScroll:
			t.Scroll(at)
		case EventKeyDown:
			t.KeyDown(at)
		case EventTouchStart:
			t.TouchStart(at)
		case EventPointerDown:
			t.PointerDown(at)
		}
	}
}

var _ platform.Capabilities = (*Platform)(nil)
