package collector

import (
	"regexp"
	"slices"

	"github.com/shortontech/botprint/internal/platform"
)

type AutomationResult struct {
	HeadlessDetected   bool     `json:"headless_detected"`
	AutomationDetected bool     `json:"automation_detected"`
	WebdriverDetected  bool     `json:"webdriver_detected"`
	PhantomDetected    bool     `json:"phantom_detected"`
	SeleniumDetected   bool     `json:"selenium_detected"`
	PuppeteerDetected  bool     `json:"puppeteer_detected"`
	AutomationReasons  []string `json:"automation_reasons"`
}

// Automation reasons.
const (
	ReasonNavigatorWebdriver = "navigator.webdriver"
	ReasonPhantom            = "phantom"
	ReasonNightmare          = "nightmare"
	ReasonWebdriverAttribute = "webdriver_attribute"
	ReasonSeleniumCDC        = "selenium_cdc"
	ReasonDesktopNoPlugins   = "desktop_no_plugins"
	ReasonHeadlessUserAgent  = "headless_user_agent"
	ReasonNoWindowChrome     = "no_window_chrome"
	ReasonMissingLanguages   = "missing_languages"
)

var (
	mobileUARe      = regexp.MustCompile(`(?i)Android|iPhone|iPad|Mobile`)
	desktopBrandRe  = regexp.MustCompile(`Chrome|Firefox|Safari|Edge`)
	headlessUARe    = regexp.MustCompile(`(?i)HeadlessChrome`)
	headlessBrandRe = regexp.MustCompile(`(?i)headless`)
)

// IsMobile prefers the UA client hint and falls back to the UA string.
func IsMobile(nav platform.Navigator) bool {
	if nav.UAMobile != nil && *nav.UAMobile {
		return true
	}
	return mobileUARe.MatchString(nav.UserAgent)
}

// Automation evaluates the automation and headless rules. pluginCount is
// the raw navigator.plugins length, zero when the list is unavailable.
func Automation(env platform.Environment, pluginCount int) AutomationResult {
	nav, vp := env.Navigator, env.Viewport
	mobile := IsMobile(nav)
	var reasons []string
	add := func(cond bool, reason string) {
		if cond && !slices.Contains(reasons, reason) {
			reasons = append(reasons, reason)
		}
	}

	add(nav.Webdriver, ReasonNavigatorWebdriver)
	add(env.HasGlobal("callPhantom") || env.HasGlobal("_phantom"), ReasonPhantom)
	add(env.HasGlobal("__nightmare"), ReasonNightmare)
	add(env.Document.WebdriverAttribute, ReasonWebdriverAttribute)
	add(env.Document.SeleniumCDC, ReasonSeleniumCDC)
	add(!mobile && pluginCount == 0 && desktopBrandRe.MatchString(nav.UserAgent), ReasonDesktopNoPlugins)
	add(headlessUARe.MatchString(nav.UserAgent) || slices.ContainsFunc(nav.Brands, headlessBrandRe.MatchString), ReasonHeadlessUserAgent)
	add(!mobile && vp.OuterWidth != 0 && vp.InnerWidth != 0 &&
		abs(vp.OuterWidth-vp.InnerWidth) < 2 && abs(vp.OuterHeight-vp.InnerHeight) < 2, ReasonNoWindowChrome)
	add(len(nav.Languages) == 0, ReasonMissingLanguages)

	has := func(r string) bool { return slices.Contains(reasons, r) }
	if reasons == nil {
		reasons = []string{}
	}
	return AutomationResult{
		HeadlessDetected:   has(ReasonHeadlessUserAgent) || has(ReasonNoWindowChrome),
		AutomationDetected: len(reasons) > 0,
		WebdriverDetected:  has(ReasonNavigatorWebdriver) || has(ReasonWebdriverAttribute),
		PhantomDetected:    has(ReasonPhantom),
		SeleniumDetected:   has(ReasonSeleniumCDC) || has(ReasonWebdriverAttribute),
		PuppeteerDetected:  has(ReasonHeadlessUserAgent) || has(ReasonDesktopNoPlugins),
		AutomationReasons:  reasons,
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
