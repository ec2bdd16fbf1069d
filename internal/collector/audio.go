package collector

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/shortontech/botprint/internal/hashing"
	"github.com/shortontech/botprint/internal/platform"
)

type AudioResult struct {
	AudioHash   string   `json:"audio_hash"`
	AudioCodecs []string `json:"audio_codecs"`
	AudioError  string   `json:"audio_error,omitempty"`
}

// AudioCodecs are the MIME types offered to canPlayType, in report order.
var AudioCodecs = []string{
	`audio/ogg; codecs="vorbis"`,
	"audio/mpeg",
	`audio/wav; codecs="1"`,
	"audio/x-m4a",
	"audio/aac",
	`audio/webm; codecs="opus"`,
}

// AudioGraph is the oscillator and compressor chain rendered offline.
func AudioGraph() platform.AudioGraph {
	return platform.AudioGraph{
		Channels:   1,
		Frames:     44100,
		SampleRate: 44100,
		Oscillator: platform.Oscillator{Type: "triangle", Frequency: 10000},
		Compressor: platform.Compressor{Threshold: -50, Knee: 40, Ratio: 12, Attack: 0, Release: 0.25},
	}
}

const audioSliceStart, audioSliceEnd = 4500, 5000

// Audio renders AudioGraph and hashes a fixed slice of the waveform. The
// codec list is reported whatever happens to the rendering.
func Audio(ctx context.Context, caps platform.Capabilities, h *hashing.Hasher) Outcome[AudioResult] {
	res := AudioResult{AudioCodecs: supportedCodecs(caps)}

	renderer, err := caps.OfflineAudio()
	if err != nil {
		if errors.Is(err, platform.ErrUnavailable) {
			return Degraded(res, "offline audio unavailable")
		}
		res.AudioError = errorKind(err)
		return Failed(res, res.AudioError)
	}

	samples, err := renderer.Render(ctx, AudioGraph())
	if err != nil {
		res.AudioError = errorKind(err)
		return Failed(res, res.AudioError)
	}

	res.AudioHash = h.Hash(ctx, AudioSlice(samples))
	return Ok(res)
}

// AudioSlice formats samples [4500,5000) with five decimals, comma-joined.
// A short buffer contributes whatever part of the slice it has.
func AudioSlice(samples []float32) string {
	start := min(audioSliceStart, len(samples))
	end := min(audioSliceEnd, len(samples))
	parts := make([]string, 0, end-start)
	for _, s := range samples[start:end] {
		parts = append(parts, strconv.FormatFloat(float64(s), 'f', 5, 64))
	}
	return strings.Join(parts, ",")
}

func supportedCodecs(caps platform.Capabilities) []string {
	out := []string{}
	media, err := caps.MediaElement()
	if err != nil || media == nil {
		return out
	}
	for _, codec := range AudioCodecs {
		if media.CanPlayType(codec) != "" {
			out = append(out, codec)
		}
	}
	return out
}
