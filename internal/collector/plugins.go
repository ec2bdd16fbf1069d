package collector

import (
	"context"
	"errors"
	"strings"

	"github.com/shortontech/botprint/internal/hashing"
	"github.com/shortontech/botprint/internal/platform"
)

type PluginsResult struct {
	PluginsSupported bool     `json:"plugins_supported"`
	Plugins          []string `json:"plugins"`
	PluginsCount     *int     `json:"plugins_count"`
	PluginsHash      string   `json:"plugins_hash"`
}

// geckoHidden are PDF viewer names Chromium-family engines always report.
// Dropping them on Gecko keeps a spoofed plugin list from reading as a
// cross-engine mismatch.
var geckoHidden = map[string]bool{
	"Chrome PDF Viewer":         true,
	"Chromium PDF Viewer":       true,
	"Microsoft Edge PDF Viewer": true,
	"WebKit built-in PDF":       true,
}

// Plugins enumerates plugin names, filtered for the Gecko family using the
// already parsed browser identity.
func Plugins(ctx context.Context, caps platform.Capabilities, h *hashing.Hasher, ua UserAgentResult) Outcome[PluginsResult] {
	names, err := caps.Plugins()
	if err != nil {
		if errors.Is(err, platform.ErrUnavailable) {
			return Degraded(PluginsResult{}, "navigator.plugins unavailable")
		}
		return Failed(PluginsResult{}, errorKind(err))
	}

	filtered := make([]string, 0, len(names))
	gecko := ua.BrowserName == BrowserFirefox || ua.EngineName == EngineGecko
	for _, name := range names {
		if gecko && geckoHidden[name] {
			continue
		}
		filtered = append(filtered, name)
	}

	count := len(filtered)
	res := PluginsResult{
		PluginsSupported: true,
		Plugins:          filtered,
		PluginsCount:     &count,
	}
	if count > 0 {
		res.PluginsHash = h.Hash(ctx, strings.Join(filtered, ","))
	}
	return Ok(res)
}
