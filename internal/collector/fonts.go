package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shortontech/botprint/internal/hashing"
	"github.com/shortontech/botprint/internal/platform"
)

type FontsResult struct {
	FontsAvailable []string `json:"fonts_available"`
	FontsHash      string   `json:"fonts_hash"`
	FontsError     string   `json:"fonts_error,omitempty"`
}

const fontProbe = "mmmmmmmmmmlli"

var (
	GenericFonts = []string{"monospace", "sans-serif", "serif"}

	CandidateFonts = []string{
		"Arial", "Verdana", "Times New Roman", "Courier New", "Georgia",
		"Palatino", "Garamond", "Bookman", "Comic Sans MS", "Trebuchet MS",
		"Impact", "Lucida Console", "Tahoma", "Helvetica", "Century Gothic",
		"Calibri", "Segoe UI", "Roboto", "Ubuntu", "Monaco",
	}
)

// Fonts detects installed fonts by comparing the probe string's width under
// each candidate against the generic family it falls back to.
func Fonts(ctx context.Context, caps platform.Capabilities, h *hashing.Hasher) Outcome[FontsResult] {
	res := FontsResult{FontsAvailable: []string{}}

	canvas, err := caps.Canvas()
	if err != nil {
		res.FontsHash = h.Hash(ctx, "")
		if errors.Is(err, platform.ErrUnavailable) {
			res.FontsError = platform.KindUnavailable
			return Degraded(res, "canvas unavailable")
		}
		res.FontsError = errorKind(err)
		return Failed(res, res.FontsError)
	}

	baseline := make(map[string]float64, len(GenericFonts))
	for _, generic := range GenericFonts {
		w, err := canvas.MeasureText("72px "+generic, fontProbe)
		if err != nil {
			res.FontsHash = h.Hash(ctx, "")
			res.FontsError = errorKind(err)
			return Failed(res, res.FontsError)
		}
		baseline[generic] = w
	}

	for _, font := range CandidateFonts {
		for _, generic := range GenericFonts {
			w, err := canvas.MeasureText(fmt.Sprintf(`72px "%s", %s`, font, generic), fontProbe)
			if err != nil {
				continue
			}
			if w != baseline[generic] {
				res.FontsAvailable = append(res.FontsAvailable, font)
				break
			}
		}
	}

	res.FontsHash = h.Hash(ctx, strings.Join(res.FontsAvailable, ","))
	return Ok(res)
}
