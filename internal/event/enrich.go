package event

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shortontech/botprint/pkg/config"
)

// Normalize fields that the server can set/augment safely.
func EnrichServerFields(r *http.Request, e *Event, cfg config.Config) {
	now := time.Now().UTC()
	if e.TS == "" {
		e.TS = now.Format(time.RFC3339Nano)
	}
	if e.Type == "" {
		e.Type = TypeFingerprint
	}
	e.Server.ReceivedAt = now.Format(time.RFC3339Nano)
	if e.Server.UA == "" {
		e.Server.UA = r.UserAgent()
	}
	if e.Server.Origin == "" {
		e.Server.Origin = r.Header.Get("Origin")
	}
	if e.Server.Referrer == "" {
		e.Server.Referrer = r.Referer()
	}

	// IP hashing (coarse privacy); without a secret the IP is not recorded.
	if cfg.IPHashSecret != "" {
		e.Server.IP = HashIP(cfg.IPHashSecret, ClientIP(r, cfg.TrustProxy), now)
	}
}

// HashIP returns a keyed SHA-256 of ip. The key rotates daily so hashes
// cannot be joined across days.
func HashIP(secret, ip string, day time.Time) string {
	if ip == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret+"|"+day.UTC().Format("2006-01-02")))
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))
}

var clickIDKeys = []string{
	"gclid", "gbraid", "wbraid", "fbclid", "ttclid", "msclkid",
	"li_fat_id", "twclid", "epik", "dclid",
}

// attributionFrom pulls UTM values and known click ids out of the page's URL
// parameters.
func attributionFrom(params map[string]string) Attribution {
	a := Attribution{
		UTM: UTMInfo{
			Source:   params["utm_source"],
			Medium:   params["utm_medium"],
			Campaign: params["utm_campaign"],
			Term:     params["utm_term"],
			Content:  params["utm_content"],
			ID:       params["utm_id"],
		},
	}
	for _, k := range clickIDKeys {
		if v := strings.TrimSpace(params[k]); v != "" {
			if a.ClickIDs == nil {
				a.ClickIDs = map[string]string{}
			}
			a.ClickIDs[k] = v
		}
	}
	return a
}

// ClientIP returns the caller's address, honoring X-Forwarded-For and
// X-Real-IP only when the proxy is trusted.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
		if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
			return strings.TrimSpace(xrip)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
