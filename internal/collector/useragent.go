package collector

import (
	"regexp"
	"strconv"
	"strings"
)

type UserAgentResult struct {
	BrowserName         string `json:"browser_name"`
	BrowserVersion      string `json:"browser_version"`
	BrowserMajorVersion int    `json:"browser_major_version"`
	EngineName          string `json:"engine_name"`
	EngineVersion       string `json:"engine_version"`
	OSName              string `json:"os_name"`
	OSVersion           string `json:"os_version"`
	DeviceType          string `json:"device_type"`
	DeviceVendor        string `json:"device_vendor"`
	DeviceModel         string `json:"device_model"`
}

const (
	BrowserChrome  = "Chrome"
	BrowserSafari  = "Safari"
	BrowserFirefox = "Firefox"
	BrowserEdge    = "Edge"
	Unknown        = "unknown"

	EngineBlink  = "Blink"
	EngineWebKit = "WebKit"
	EngineGecko  = "Gecko"

	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

var (
	chromeVersionRe  = regexp.MustCompile(`Chrome/([\d.]+)`)
	safariVersionRe  = regexp.MustCompile(`Version/([\d.]+)`)
	firefoxVersionRe = regexp.MustCompile(`Firefox/([\d.]+)`)
	edgeVersionRe    = regexp.MustCompile(`Edg/([\d.]+)`)
	webkitVersionRe  = regexp.MustCompile(`AppleWebKit/([\d.]+)`)
	geckoVersionRe   = regexp.MustCompile(`rv:([\d.]+)`)
	windowsRe        = regexp.MustCompile(`Windows NT ([\d.]+)`)
	macRe            = regexp.MustCompile(`Mac OS X ([\d_.]+)`)
	androidRe        = regexp.MustCompile(`Android ([\d.]+)`)
	iosRe            = regexp.MustCompile(`OS ([\d_]+)`)
	iosDeviceRe      = regexp.MustCompile(`iOS|iPhone|iPad`)
	mobileRe         = regexp.MustCompile(`Mobile|Android|iPhone`)
	tabletRe         = regexp.MustCompile(`Tablet|iPad`)
)

// ParseUserAgent extracts browser, engine, OS and device class from ua.
// iPhone and iPad agents carry "like Mac OS X", so iOS is matched before
// macOS.
func ParseUserAgent(ua string) UserAgentResult {
	res := UserAgentResult{BrowserName: Unknown, OSName: Unknown}

	switch {
	case strings.Contains(ua, "Chrome") && !strings.Contains(ua, "Chromium") && !strings.Contains(ua, "Edg"):
		res.BrowserName, res.BrowserVersion = BrowserChrome, submatch(chromeVersionRe, ua)
	case strings.Contains(ua, "Safari") && !strings.Contains(ua, "Chrome"):
		res.BrowserName, res.BrowserVersion = BrowserSafari, submatch(safariVersionRe, ua)
	case strings.Contains(ua, "Firefox"):
		res.BrowserName, res.BrowserVersion = BrowserFirefox, submatch(firefoxVersionRe, ua)
	case strings.Contains(ua, "Edg"):
		res.BrowserName, res.BrowserVersion = BrowserEdge, submatch(edgeVersionRe, ua)
	}
	major, _, _ := strings.Cut(res.BrowserVersion, ".")
	res.BrowserMajorVersion, _ = strconv.Atoi(major)

	switch {
	case strings.Contains(ua, "AppleWebKit"):
		res.EngineName = EngineWebKit
		if strings.Contains(ua, "Blink") {
			res.EngineName = EngineBlink
		}
		res.EngineVersion = submatch(webkitVersionRe, ua)
	case strings.Contains(ua, "Gecko"):
		res.EngineName, res.EngineVersion = EngineGecko, submatch(geckoVersionRe, ua)
	}

	switch {
	case strings.Contains(ua, "Windows"):
		res.OSName, res.OSVersion = "Windows", submatch(windowsRe, ua)
	case iosDeviceRe.MatchString(ua):
		res.OSName = "iOS"
		res.OSVersion = strings.ReplaceAll(submatch(iosRe, ua), "_", ".")
	case strings.Contains(ua, "Mac OS"):
		res.OSName = "macOS"
		res.OSVersion = strings.ReplaceAll(submatch(macRe, ua), "_", ".")
	case strings.Contains(ua, "Android"):
		res.OSName, res.OSVersion = "Android", submatch(androidRe, ua)
	case strings.Contains(ua, "Linux"):
		res.OSName = "Linux"
	}

	switch {
	case mobileRe.MatchString(ua):
		res.DeviceType = DeviceMobile
	case tabletRe.MatchString(ua):
		res.DeviceType = DeviceTablet
	default:
		res.DeviceType = DeviceDesktop
	}
	return res
}

func submatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}
