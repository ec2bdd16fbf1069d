package collector

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shortontech/botprint/internal/hashing"
	"github.com/shortontech/botprint/internal/platform"
)

type CanvasResult struct {
	CanvasSupported    bool   `json:"canvas_supported"`
	CanvasHash         string `json:"canvas_hash"`
	CanvasTextHash     string `json:"canvas_text_hash"`
	CanvasEmojiHash    string `json:"canvas_emoji_hash"`
	CanvasGeometryHash string `json:"canvas_geometry_hash"`
	CanvasError        string `json:"canvas_error,omitempty"`
}

const canvasWidth, canvasHeight = 320, 160

// Canvas scene names, also used as keys in client probe reports.
const (
	SceneText     = "text"
	SceneEmoji    = "emoji"
	SceneGeometry = "geometry"
)

// CanvasScenes returns the three fingerprint drawings in hashing order.
func CanvasScenes() []platform.Scene {
	return []platform.Scene{
		{
			Name: SceneText, Width: canvasWidth, Height: canvasHeight,
			Ops: []platform.DrawOp{
				{Op: platform.OpTextBaseline, Style: "alphabetic"},
				{Op: platform.OpFont, Style: `16px "Arial"`},
				{Op: platform.OpLinearGradient, Args: []float64{0, 0, canvasWidth, 0}, Stops: []platform.ColorStop{
					{Offset: 0, Color: "#f60"}, {Offset: 0.5, Color: "#069"}, {Offset: 1, Color: "#0ff"},
				}},
				{Op: platform.OpFillText, Text: "BrowserFP \U0001F916\U0001F3AF", Args: []float64{10, 40}},
				{Op: platform.OpFillText, Text: "browserFp \U0001F916\U0001F3AF", Args: []float64{12, 70}},
			},
		},
		{
			Name: SceneEmoji, Width: canvasWidth, Height: canvasHeight,
			Ops: []platform.DrawOp{
				{Op: platform.OpFont, Style: `48px "Segoe UI Emoji"`},
				{Op: platform.OpShadow, Style: "rgba(0,0,0,0.2)", Args: []float64{4}},
				{Op: platform.OpFillText, Text: "\U0001F600\U0001F603\U0001F604\U0001F601\U0001F916\U0001F3AF", Args: []float64{10, 64}},
			},
		},
		{
			Name: SceneGeometry, Width: canvasWidth, Height: canvasHeight,
			Ops: []platform.DrawOp{
				{Op: platform.OpComposite, Style: "screen"},
				{Op: platform.OpFillStyle, Style: "rgb(255,0,255)"},
				{Op: platform.OpArc, Args: []float64{90, 90, 70, 0, 2 * math.Pi}},
				{Op: platform.OpFill},
				{Op: platform.OpFillStyle, Style: "rgb(0,255,255)"},
				{Op: platform.OpArc, Args: []float64{150, 90, 70, 0, 2 * math.Pi}},
				{Op: platform.OpFill},
				{Op: platform.OpFillStyle, Style: "#222"},
				{Op: platform.OpRect, Args: []float64{0, 120, canvasWidth, 40}},
				{Op: platform.OpFill},
			},
		},
	}
}

// Canvas renders the three scenes, hashes each buffer and hashes the joined
// sub-hashes.
func Canvas(ctx context.Context, caps platform.Capabilities, h *hashing.Hasher) Outcome[CanvasResult] {
	canvas, err := caps.Canvas()
	if err != nil {
		if errors.Is(err, platform.ErrUnavailable) {
			return Degraded(CanvasResult{}, "canvas unavailable")
		}
		return Failed(CanvasResult{CanvasError: errorKind(err)}, errorKind(err))
	}

	sub := make([]string, 0, 3)
	for _, scene := range CanvasScenes() {
		buf, err := canvas.Render(ctx, scene)
		if err != nil {
			kind := errorKind(err)
			return Failed(CanvasResult{CanvasSupported: true, CanvasError: kind}, kind)
		}
		sub = append(sub, h.Hash(ctx, string(buf)))
	}

	return Ok(CanvasResult{
		CanvasSupported:    true,
		CanvasHash:         h.Hash(ctx, fmt.Sprintf("%s:%s:%s", sub[0], sub[1], sub[2])),
		CanvasTextHash:     sub[0],
		CanvasEmojiHash:    sub[1],
		CanvasGeometryHash: sub[2],
	})
}
