package collector

import (
	"math"
	"net/url"
	"strings"

	"golang.org/x/text/language"

	"github.com/shortontech/botprint/internal/platform"
)

// PageContext is the screen, navigator, storage and URL context of the page.
type PageContext struct {
	ScreenWidth           int      `json:"screen_width"`
	ScreenHeight          int      `json:"screen_height"`
	ScreenColorDepth      int      `json:"screen_color_depth"`
	ScreenPixelRatio      float64  `json:"screen_pixel_ratio"`
	AvailableScreenWidth  int      `json:"available_screen_width"`
	AvailableScreenHeight int      `json:"available_screen_height"`
	InnerWidth            int      `json:"inner_width"`
	InnerHeight           int      `json:"inner_height"`
	OuterWidth            int      `json:"outer_width"`
	OuterHeight           int      `json:"outer_height"`
	ScreenOrientation     string   `json:"screen_orientation"`
	ViewportHeightRatio   float64  `json:"viewport_height_ratio"`
	ViewportNotes         *string  `json:"viewport_notes"`
	UserAgent             string   `json:"user_agent"`
	Platform              string   `json:"platform"`
	Language              string   `json:"language"`
	Languages             []string `json:"languages"`
	Timezone              string   `json:"timezone"`
	TimezoneOffset        int      `json:"timezone_offset"`
	HardwareConcurrency   int      `json:"hardware_concurrency"`
	DeviceMemory          *float64 `json:"device_memory"`
	DeviceMemorySupported bool     `json:"device_memory_supported"`
	MaxTouchPoints        int      `json:"max_touch_points"`
	JavaScriptEnabled     bool     `json:"javascript_enabled"`
	CookiesEnabled        bool     `json:"cookies_enabled"`
	DoNotTrack            bool     `json:"do_not_track"`
	LocalStorageEnabled   bool     `json:"local_storage_enabled"`
	SessionStorageEnabled bool     `json:"session_storage_enabled"`
	IndexedDBEnabled      bool     `json:"indexed_db_enabled"`
	TouchSupport          bool     `json:"touch_support"`
	TouchPoints           int      `json:"touch_points"`
	KeyboardLayout        string   `json:"keyboard_layout"`

	URLParameters map[string]string `json:"url_parameters"`
	ClickID       string            `json:"click_id"`
	FBCLID        string            `json:"fbclid"`
	TTCLID        string            `json:"ttclid"`
	GCLID         string            `json:"gclid"`
	Referer       string            `json:"referer"`
	Cookies       []string          `json:"cookies"`
	CookieCount   int               `json:"cookie_count"`
}

const (
	viewportAlertRatio = 0.7
	noteSmallViewport  = "Viewport height significantly smaller than screen height; common when the window is not maximized or browser UI bars are showing."
)

// Context reads the page context straight from the environment.
func Context(env platform.Environment, storage platform.Storage) PageContext {
	nav, scr, vp := env.Navigator, env.Screen, env.Viewport

	pc := PageContext{
		ScreenWidth:           scr.Width,
		ScreenHeight:          scr.Height,
		ScreenColorDepth:      scr.ColorDepth,
		ScreenPixelRatio:      vp.DevicePixelRatio,
		AvailableScreenWidth:  scr.AvailWidth,
		AvailableScreenHeight: scr.AvailHeight,
		InnerWidth:            vp.InnerWidth,
		InnerHeight:           vp.InnerHeight,
		OuterWidth:            vp.OuterWidth,
		OuterHeight:           vp.OuterHeight,
		ScreenOrientation:     scr.Orientation,
		ViewportHeightRatio:   1,
		UserAgent:             nav.UserAgent,
		Platform:              nav.Platform,
		Language:              nav.Language,
		Languages:             nav.Languages,
		Timezone:              env.Timezone,
		TimezoneOffset:        env.TimezoneOffset,
		HardwareConcurrency:   nav.HardwareConcurrency,
		MaxTouchPoints:        nav.MaxTouchPoints,
		JavaScriptEnabled:     true,
		CookiesEnabled:        nav.CookieEnabled,
		DoNotTrack:            nav.DoNotTrack == "1",
		IndexedDBEnabled:      env.IndexedDB,
		TouchSupport:          env.TouchEvents,
		TouchPoints:           nav.MaxTouchPoints,
		KeyboardLayout:        KeyboardLayout(nav.Language),
		Referer:               env.Document.Referrer,
	}
	if pc.ScreenPixelRatio == 0 {
		pc.ScreenPixelRatio = 1
	}
	if len(pc.Languages) == 0 && nav.Language != "" {
		pc.Languages = []string{nav.Language}
	}
	if scr.Height != 0 {
		pc.ViewportHeightRatio = math.Round(float64(vp.InnerHeight)/float64(scr.Height)*1000) / 1000
	}
	if pc.ViewportHeightRatio < viewportAlertRatio {
		pc.ViewportNotes = ptr(noteSmallViewport)
	}
	if m := nav.DeviceMemory; m != nil && !math.IsNaN(*m) && !math.IsInf(*m, 0) {
		pc.DeviceMemorySupported = true
		if *m > 0 {
			pc.DeviceMemory = m
		}
	}
	if storage != nil {
		pc.LocalStorageEnabled = storage.Probe("localStorage")
		pc.SessionStorageEnabled = storage.Probe("sessionStorage")
	}

	pc.URLParameters = URLParameters(env.Document.URL)
	pc.ClickID = pc.URLParameters["click_id"]
	pc.FBCLID = pc.URLParameters["fbclid"]
	pc.TTCLID = pc.URLParameters["ttclid"]
	pc.GCLID = pc.URLParameters["gclid"]

	pc.Cookies = CookieNames(env.Document.Cookie)
	pc.CookieCount = len(pc.Cookies)
	return pc
}

var layouts = map[string]string{
	"en": "QWERTY",
	"pt": "QWERTY",
	"fr": "AZERTY",
	"de": "QWERTZ",
	"ru": "ЙЦУКЕН",
}

// KeyboardLayout guesses the keyboard layout from the base language of a
// BCP 47 tag.
func KeyboardLayout(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return "QWERTY"
	}
	base, _ := t.Base()
	if l, ok := layouts[base.String()]; ok {
		return l
	}
	return "QWERTY"
}

// URLParameters flattens the query string of raw. A repeated key keeps its
// last value.
func URLParameters(raw string) map[string]string {
	out := map[string]string{}
	u, err := url.Parse(raw)
	if err != nil {
		return out
	}
	for k, v := range u.Query() {
		if len(v) > 0 {
			out[k] = v[len(v)-1]
		}
	}
	return out
}

// CookieNames lists cookie names from a document.cookie string.
func CookieNames(cookie string) []string {
	names := []string{}
	for _, c := range strings.Split(cookie, ";") {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		name, _, _ := strings.Cut(c, "=")
		names = append(names, name)
	}
	return names
}
