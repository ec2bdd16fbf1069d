package collector

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shortontech/botprint/internal/hashing"
	"github.com/shortontech/botprint/internal/platform"
)

type WebGLResult struct {
	WebGLSupported              bool     `json:"webgl_supported"`
	WebGL2Supported             bool     `json:"webgl2_supported"`
	WebGLVendor                 string   `json:"webgl_vendor,omitempty"`
	WebGLRenderer               string   `json:"webgl_renderer,omitempty"`
	WebGLRendererRaw            string   `json:"webgl_renderer_raw,omitempty"`
	WebGLRendererGroup          string   `json:"webgl_renderer_group,omitempty"`
	WebGLVersion                string   `json:"webgl_version,omitempty"`
	WebGLVersionMajor           *int     `json:"webgl_version_major,omitempty"`
	WebGLVersionMinor           *int     `json:"webgl_version_minor,omitempty"`
	WebGLShadingLanguageVersion string   `json:"webgl_shading_language_version,omitempty"`
	WebGLMaxTextureSize         int      `json:"webgl_max_texture_size,omitempty"`
	WebGLMaxVertexAttribs       int      `json:"webgl_max_vertex_attribs,omitempty"`
	WebGLMaxViewportDims        string   `json:"webgl_max_viewport_dims,omitempty"`
	WebGLExtensions             []string `json:"webgl_extensions,omitempty"`
	WebGLParamsHash             string   `json:"webgl_params_hash,omitempty"`
	WebGLExtensionsHash         string   `json:"webgl_extensions_hash,omitempty"`
	WebGLHash                   string   `json:"webgl_hash,omitempty"`
	WebGLError                  string   `json:"webgl_error,omitempty"`
}

// WebGL reads vendor, renderer and capability parameters from a WebGL
// context and hashes them.
func WebGL(ctx context.Context, caps platform.Capabilities, h *hashing.Hasher) Outcome[WebGLResult] {
	gl, err := caps.WebGL()
	if err != nil {
		if errors.Is(err, platform.ErrUnavailable) {
			return Degraded(WebGLResult{}, "webgl unavailable")
		}
		kind := errorKind(err)
		return Failed(WebGLResult{WebGLError: kind}, kind)
	}

	p, err := gl.Parameters()
	if err != nil {
		kind := errorKind(err)
		return Failed(WebGLResult{WebGLError: kind}, kind)
	}

	res := WebGLResult{
		WebGLSupported:              true,
		WebGL2Supported:             gl.Version2(),
		WebGLVendor:                 p.Vendor,
		WebGLRenderer:               p.Renderer,
		WebGLRendererRaw:            p.Renderer,
		WebGLVersion:                p.Version,
		WebGLShadingLanguageVersion: p.ShadingLanguageVersion,
		WebGLMaxTextureSize:         p.MaxTextureSize,
		WebGLMaxVertexAttribs:       p.MaxVertexAttribs,
		WebGLMaxViewportDims:        fmt.Sprintf("%dx%d", p.MaxViewportDims[0], p.MaxViewportDims[1]),
		WebGLExtensions:             gl.SupportedExtensions(),
	}
	if vendor, renderer, ok := gl.DebugRendererInfo(); ok {
		res.WebGLVendor = vendor
		if renderer != "" {
			res.WebGLRendererRaw = renderer
		}
	}
	if res.WebGLExtensions == nil {
		res.WebGLExtensions = []string{}
	}
	res.WebGLRendererGroup = RendererGroup(res.WebGLRendererRaw)
	res.WebGLVersionMajor, res.WebGLVersionMinor = ParseGLVersion(p.Version)

	params := []int{
		p.AlphaBits, p.BlueBits, p.DepthBits, p.GreenBits,
		p.MaxCombinedTextureImageUnits, p.MaxCubeMapTextureSize, p.MaxFragmentUniformVectors,
		p.MaxRenderbufferSize, p.MaxVaryingVectors, p.MaxVertexTextureImageUnits,
		p.MaxVertexUniformVectors, p.RedBits, p.StencilBits,
	}
	parts := make([]string, len(params))
	for i, v := range params {
		parts[i] = strconv.Itoa(v)
	}
	res.WebGLParamsHash = h.Hash(ctx, strings.Join(parts, ","))
	res.WebGLExtensionsHash = h.Hash(ctx, strings.Join(res.WebGLExtensions, ","))
	// Hashed before webgl_hash is set, so the digest covers everything else.
	res.WebGLHash = h.Hash(ctx, res)

	return Ok(res)
}

// RendererGroup buckets a renderer string into a coarse GPU vendor.
func RendererGroup(renderer string) string {
	if renderer == "" {
		return ""
	}
	r := strings.ToLower(renderer)
	switch {
	case strings.Contains(r, "nvidia"):
		return "nvidia"
	case strings.Contains(r, "radeon"), strings.Contains(r, "amd"):
		return "amd"
	case strings.Contains(r, "intel"):
		return "intel"
	case strings.Contains(r, "apple"):
		return "apple"
	case strings.Contains(r, "qualcomm"), strings.Contains(r, "adreno"):
		return "qualcomm"
	}
	return "other"
}

var glVersionRe = regexp.MustCompile(`(\d+)\.(\d+)`)

// ParseGLVersion extracts major and minor from the first "N.N" in v. A
// missing match or a zero component yields nil.
func ParseGLVersion(v string) (major, minor *int) {
	m := glVersionRe.FindStringSubmatch(v)
	if m == nil {
		return nil, nil
	}
	return positiveInt(m[1]), positiveInt(m[2])
}

func positiveInt(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil || n == 0 {
		return nil
	}
	return &n
}
