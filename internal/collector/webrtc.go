package collector

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/shortontech/botprint/internal/platform"
)

type WebRTCResult struct {
	WebRTCSupport    bool     `json:"webrtc_support"`
	WebRTCPermission *bool    `json:"webrtc_permission"`
	WebRTCPublicIP   string   `json:"webrtc_public_ip"`
	WebRTCLocalIPs   []string `json:"webrtc_local_ips"`
	WebRTCIPVersions []string `json:"webrtc_ip_versions"`
	WebRTCError      *string  `json:"webrtc_error"`
}

const (
	STUNServer            = "stun:stun.l.google.com:19302"
	DefaultWebRTCDeadline = 2 * time.Second
)

// WebRTC gathers ICE candidates for a throwaway data channel offer and
// classifies the addresses they leak. Gathering ends at end-of-candidates,
// on a candidate error, or when ctx is done, whichever comes first. The
// caller sets the deadline on ctx. The connection is always closed.
func WebRTC(ctx context.Context, caps platform.Capabilities) Outcome[WebRTCResult] {
	empty := func() WebRTCResult {
		return WebRTCResult{WebRTCSupport: true, WebRTCLocalIPs: []string{}, WebRTCIPVersions: []string{}}
	}

	connector, err := caps.PeerConnector()
	if err != nil {
		res := empty()
		res.WebRTCSupport = false
		res.WebRTCError = ptr(platform.KindNotSupported)
		if errors.Is(err, platform.ErrUnavailable) {
			return Degraded(res, "RTCPeerConnection unavailable")
		}
		return Failed(res, platform.KindNotSupported)
	}

	pc, err := connector.NewPeerConnection(platform.PeerConfig{ICEServers: []string{STUNServer}})
	if err != nil {
		res := empty()
		res.WebRTCPermission = ptr(false)
		res.WebRTCError = ptr(platform.KindBlocked)
		return Failed(res, platform.KindBlocked)
	}
	defer pc.Close()

	if err := pc.CreateDataChannel(""); err != nil {
		res := empty()
		res.WebRTCPermission = ptr(false)
		res.WebRTCError = ptr(platform.KindBlocked)
		return Failed(res, platform.KindBlocked)
	}
	if err := pc.CreateOffer(ctx); err != nil {
		res := empty()
		kind := platform.KindUnknown
		if platform.ErrorName(err) == "NotAllowedError" {
			kind = platform.KindPermissionDenied
			res.WebRTCPermission = ptr(false)
		}
		res.WebRTCError = ptr(kind)
		return Failed(res, kind)
	}

	g := newGatherer()
	events := pc.ICEEvents()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev, ok := <-events:
			if !ok || ev.End {
				break loop
			}
			if ev.Err != nil {
				g.err = platform.KindBlocked
				g.permission = ptr(false)
				break loop
			}
			g.add(ev.Candidate)
		}
	}
	return g.finish()
}

type gatherer struct {
	local      []string
	public     []string
	versions   []string
	permission *bool
	err        string
}

func newGatherer() *gatherer {
	return &gatherer{local: []string{}, public: []string{}, versions: []string{}}
}

func (g *gatherer) add(candidate string) {
	ip, ok := ParseCandidateAddress(candidate)
	if !ok {
		return
	}
	g.permission = ptr(true)
	version := "ipv4"
	if strings.Contains(ip, ":") {
		version = "ipv6"
	}
	g.versions = appendUnique(g.versions, version)
	if IsPrivateIP(ip) {
		g.local = appendUnique(g.local, ip)
	} else {
		g.public = appendUnique(g.public, ip)
	}
}

func (g *gatherer) finish() Outcome[WebRTCResult] {
	if len(g.local) == 0 && len(g.public) == 0 && g.err == "" {
		g.err = platform.KindTimeout
	}
	res := WebRTCResult{
		WebRTCSupport:    true,
		WebRTCPermission: g.permission,
		WebRTCLocalIPs:   g.local,
		WebRTCIPVersions: g.versions,
	}
	if len(g.public) > 0 {
		res.WebRTCPublicIP = g.public[0]
	}
	if g.err != "" {
		res.WebRTCError = ptr(g.err)
		return Failed(res, g.err)
	}
	return Ok(res)
}

var (
	dottedQuadRe = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)
	hexColonRe   = regexp.MustCompile(`^[0-9a-fA-F:]+$`)
	rfc1918Re    = regexp.MustCompile(`^(10\.|192\.168\.|172\.(1[6-9]|2\d|3[01])\.|127\.)`)
)

// ParseCandidateAddress returns the connection address of an ICE candidate
// line, its fifth whitespace-separated field. mDNS hostnames are rejected.
func ParseCandidateAddress(candidate string) (string, bool) {
	fields := strings.Fields(candidate)
	if len(fields) < 5 {
		return "", false
	}
	addr := fields[4]
	if dottedQuadRe.MatchString(addr) || hexColonRe.MatchString(addr) {
		return addr, true
	}
	return "", false
}

// IsPrivateIP reports loopback, RFC 1918, IPv6 ULA and link-local addresses.
func IsPrivateIP(ip string) bool {
	if ip == "" {
		return false
	}
	if strings.Contains(ip, ":") {
		v := strings.ToLower(ip)
		return strings.HasPrefix(v, "fd") || strings.HasPrefix(v, "fe80") || v == "::1"
	}
	return rfc1918Re.MatchString(ip)
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}
