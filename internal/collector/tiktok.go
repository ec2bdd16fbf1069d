package collector

import (
	"regexp"
	"slices"
	"strings"

	"github.com/shortontech/botprint/internal/platform"
)

type TikTokResult struct {
	TikTokWebviewDetected  bool     `json:"tiktok_webview_detected"`
	TikTokAppVersion       string   `json:"tiktok_app_version"`
	TikTokUserAgentMarkers []string `json:"tiktok_user_agent_markers"`
	TikTokSDKHooks         bool     `json:"tiktok_sdk_hooks"`
}

var (
	tiktokRe        = regexp.MustCompile(`(?i)tiktok`)
	musicallyRe     = regexp.MustCompile(`(?i)musical\.ly`)
	bytedanceRe     = regexp.MustCompile(`(?i)bytedance`)
	tiktokBrandRe   = regexp.MustCompile(`(?i)tiktok|bytedance`)
	webviewTokenRe  = regexp.MustCompile(`\bwv\b|; wv\)`)
	tiktokVersionRe = regexp.MustCompile(`(?i)tiktok[/\s]+([\d.]+)`)
)

// TikTok detects the TikTok in-app browser from UA markers, brand hints,
// the native bridge and the referrer.
func TikTok(env platform.Environment) TikTokResult {
	ua := env.Navigator.UserAgent
	markers := []string{}
	if tiktokRe.MatchString(ua) {
		markers = append(markers, "tiktok_string")
	}
	if musicallyRe.MatchString(ua) {
		markers = append(markers, "musically")
	}
	if bytedanceRe.MatchString(ua) {
		markers = append(markers, "bytedance")
	}
	if slices.ContainsFunc(env.Navigator.Brands, tiktokBrandRe.MatchString) {
		markers = append(markers, "ua_data_brand")
	}

	bridge := env.HasMessageHandler("bytedanceWebview") || env.HasGlobal("tiktok") || env.HasGlobal("ttCollector")
	webview := webviewTokenRe.MatchString(strings.ToLower(ua)) || bridge
	referrer := tiktokRe.MatchString(env.Document.Referrer)

	return TikTokResult{
		TikTokWebviewDetected:  (webview && len(markers) > 0) || bridge || referrer,
		TikTokAppVersion:       submatch(tiktokVersionRe, ua),
		TikTokUserAgentMarkers: markers,
		TikTokSDKHooks:         bridge,
	}
}
