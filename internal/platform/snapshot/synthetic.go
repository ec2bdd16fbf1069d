package snapshot

import (
	"fmt"
	"math"
	"time"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Human returns a report shaped like an ordinary desktop Chrome visit with
// about ten seconds of pointer, click, scroll and key activity.
func Human(navStart time.Time) *Report {
	r := base(navStart, chromeUA)
	r.Environment.Navigator.Brands = []string{"Chromium", "Google Chrome"}
	r.Environment.Viewport = Viewport{InnerWidth: 1536, InnerHeight: 730, OuterWidth: 1536, OuterHeight: 824, DevicePixelRatio: 1.25}
	r.Environment.Document.URL = "https://shop.example.com/landing?utm_source=newsletter&gclid=abc123"
	r.Environment.Document.Referrer = "https://mail.example.com/"
	r.Environment.Document.Cookie = "_ga=GA1.1.1; consent=yes"

	r.Plugins = []string{"PDF Viewer", "Chrome PDF Viewer", "Chromium PDF Viewer", "Microsoft Edge PDF Viewer", "WebKit built-in PDF"}
	r.MediaDevices = &DevicesProbe{Devices: []Device{{Kind: "audioinput"}, {Kind: "videoinput"}, {Kind: "audiooutput"}}}
	r.Battery = &BatteryProbe{Charging: true, Level: 0.83}
	downlink, rtt, save := 10.0, 50.0, false
	r.Connection = &ConnectionProbe{EffectiveType: "4g", Downlink: &downlink, RTT: &rtt, SaveData: &save}
	r.WebRTC = &WebRTCProbe{Candidates: []string{
		"candidate:1 1 udp 2122260223 192.168.1.5 54321 typ host generation 0",
		"candidate:2 1 udp 1686052607 203.0.113.7 54321 typ srflx raddr 192.168.1.5 rport 54321",
	}}
	r.Performance = &PerformanceProbe{Navigation: &NavigationTiming{
		Type:              "navigate",
		DomainLookupStart: 5,
		DomainLookupEnd:   25,
		ConnectStart:      25,
		ConnectEnd:        70,
		RequestStart:      72,
		ResponseStart:     180,
		ResponseEnd:       240,
		DomInteractive:    650,
		DomComplete:       1150,
		LoadEventEnd:      1210,
		Duration:          1210,
	}}

	var events []Event
	for i := 0; i < 80; i++ {
		t := 1500 + float64(i)*110
		events = append(events, Event{
			Type: EventPointerMove,
			X:    200 + 4*float64(i) + 3*math.Sin(float64(i)/3),
			Y:    300 + 2*float64(i) + 5*math.Cos(float64(i)/4),
			T:    t,
		})
	}
	events = append(events,
		Event{Type: EventClick, X: 520, Y: 460, T: 10300},
		Event{Type: EventScroll, T: 10800},
		Event{Type: EventScroll, T: 11100},
		Event{Type: EventClick, X: 610, Y: 505, T: 11900},
	)
	for i := 0; i < 12; i++ {
		events = append(events, Event{Type: EventKeyDown, T: 12300 + float64(i)*140})
	}
	r.Events = events
	return r
}

// Bot returns a report shaped like headless Chrome driven by WebDriver: no
// plugins, no window chrome, no navigation timing and no interaction.
func Bot(navStart time.Time) *Report {
	r := base(navStart, "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/124.0.0.0 Safari/537.36")
	r.Environment.Navigator.Webdriver = true
	r.Environment.Navigator.Brands = []string{"HeadlessChrome"}
	r.Environment.Navigator.Platform = "Linux x86_64"
	r.Environment.Viewport = Viewport{InnerWidth: 800, InnerHeight: 600, OuterWidth: 800, OuterHeight: 600, DevicePixelRatio: 1}
	r.Environment.Screen = Screen{Width: 800, Height: 600, AvailWidth: 800, AvailHeight: 600, ColorDepth: 24}
	r.Plugins = []string{}
	r.MediaDevices = &DevicesProbe{Devices: []Device{}}
	r.WebRTC = &WebRTCProbe{Candidates: []string{}}
	r.Performance = &PerformanceProbe{}
	return r
}

func base(navStart time.Time, ua string) *Report {
	return &Report{
		Version:         1,
		NavigationStart: navStart.UnixMilli(),
		ScriptBoot:      navStart.Add(420 * time.Millisecond).UnixMilli(),
		Environment: Environment{
			Navigator: Navigator{
				UserAgent:           ua,
				Platform:            "Win32",
				Language:            "en-US",
				Languages:           []string{"en-US", "en"},
				HardwareConcurrency: 8,
				CookieEnabled:       true,
			},
			Screen:         Screen{Width: 1920, Height: 1080, AvailWidth: 1920, AvailHeight: 1040, ColorDepth: 24, Orientation: "landscape-primary"},
			Document:       Document{URL: "https://shop.example.com/"},
			Timezone:       "America/New_York",
			TimezoneOffset: 240,
			IndexedDB:      true,
		},
		Canvas: &CanvasProbe{
			Scenes: map[string]string{
				"text":     "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAUAAAACg-text",
				"emoji":    "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAUAAAACg-emoji",
				"geometry": "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAUAAAACg-geometry",
			},
			FontWidths: fontWidths("Arial", "Verdana", "Times New Roman", "Courier New", "Georgia", "Tahoma", "Segoe UI", "Calibri"),
		},
		WebGL: &WebGLProbe{
			Parameters: GLParameters{
				Vendor:                       "WebKit",
				Renderer:                     "WebKit WebGL",
				Version:                      "WebGL 1.0 (OpenGL ES 2.0 Chromium)",
				ShadingLanguageVersion:       "WebGL GLSL ES 1.0 (OpenGL ES GLSL ES 1.0 Chromium)",
				MaxTextureSize:               16384,
				MaxVertexAttribs:             16,
				MaxViewportDims:              [2]int{32767, 32767},
				AlphaBits:                    8,
				BlueBits:                     8,
				DepthBits:                    24,
				GreenBits:                    8,
				MaxCombinedTextureImageUnits: 32,
				MaxCubeMapTextureSize:        16384,
				MaxFragmentUniformVectors:    1024,
				MaxRenderbufferSize:          16384,
				MaxVaryingVectors:            30,
				MaxVertexTextureImageUnits:   16,
				MaxVertexUniformVectors:      4095,
				RedBits:                      8,
			},
			WebGL2:        true,
			DebugVendor:   "Google Inc. (NVIDIA)",
			DebugRenderer: "ANGLE (NVIDIA, NVIDIA GeForce RTX 3060 Direct3D11 vs_5_0 ps_5_0, D3D11)",
			Extensions:    []string{"ANGLE_instanced_arrays", "EXT_blend_minmax", "OES_texture_float", "WEBGL_debug_renderer_info"},
		},
		Audio: &AudioProbe{SamplesOffset: 4500, Samples: audioSamples()},
		CanPlayType: map[string]string{
			`audio/ogg; codecs="vorbis"`: "probably",
			"audio/mpeg":                 "probably",
			`audio/wav; codecs="1"`:      "probably",
			"audio/x-m4a":                "maybe",
			"audio/aac":                  "probably",
			`audio/webm; codecs="opus"`:  "probably",
		},
		Storage: map[string]bool{"localStorage": true, "sessionStorage": true},
	}
}

// fontWidths reports the three generic baselines and a distinct width for
// each installed font under every generic fallback.
func fontWidths(installed ...string) map[string]float64 {
	generics := map[string]float64{"monospace": 561.6, "sans-serif": 498.1, "serif": 476.4}
	w := make(map[string]float64)
	for g, base := range generics {
		w["72px "+g] = base
		for i, font := range installed {
			w[fmt.Sprintf(`72px "%s", %s`, font, g)] = base + float64(i+1)*3.5
		}
	}
	return w
}

func audioSamples() []float32 {
	s := make([]float32, 500)
	for i := range s {
		s[i] = float32(0.0001 * math.Sin(float64(4500+i)/7))
	}
	return s
}
