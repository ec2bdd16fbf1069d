package httpx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/shortontech/botprint/internal/event"
)

// HMACHeader carries the hex HMAC-SHA256 of the request body.
const HMACHeader = "X-Botprint-HMAC"

// HMACAuth signs and verifies probe reports. Each client signs with a key
// derived from the server secret and its own IP, unless a static public key
// is configured, in which case every client shares that key.
type HMACAuth struct {
	secret      []byte
	publicKey   []byte
	requireHMAC bool
	trustProxy  bool
}

func NewHMACAuth(secret, publicKey string, requireHMAC, trustProxy bool) *HMACAuth {
	auth := &HMACAuth{
		secret:      []byte(secret),
		requireHMAC: requireHMAC,
		trustProxy:  trustProxy,
	}
	if publicKey != "" {
		if decoded, err := base64.StdEncoding.DecodeString(publicKey); err == nil {
			auth.publicKey = decoded
		} else {
			log.Printf("hmac: invalid HMAC_PUBLIC_KEY, using per-client keys")
		}
	}
	return auth
}

// ClientKey is the signing key handed to the client at ip.
func (h *HMACAuth) ClientKey(ip string) []byte {
	if len(h.publicKey) > 0 {
		return h.publicKey
	}
	if len(h.secret) == 0 {
		return nil
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte("botprint-client-key:" + normalizeIP(ip)))
	return mac.Sum(nil)
}

func (h *HMACAuth) clientKeyBase64(ip string) string {
	key := h.ClientKey(ip)
	if len(key) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(key)
}

// Sign returns the hex HMAC of payload under the client key for ip.
func (h *HMACAuth) Sign(payload []byte, ip string) string {
	key := h.ClientKey(ip)
	if len(key) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// normalizeIP strips a port and IPv6 brackets.
func normalizeIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

// VerifyHMAC validates the signature header against payload.
func (h *HMACAuth) VerifyHMAC(r *http.Request, payload []byte) bool {
	if !h.requireHMAC {
		return true
	}
	ip := event.ClientIP(r, h.trustProxy)
	expected := h.Sign(payload, ip)
	if expected == "" {
		log.Printf("hmac: verification failed: no key configured")
		return false
	}
	provided := strings.ToLower(strings.TrimSpace(r.Header.Get(HMACHeader)))
	if provided == "" {
		log.Printf("hmac: verification failed: missing %s header from %s", HMACHeader, ip)
		return false
	}
	if !hmac.Equal([]byte(provided), []byte(expected)) {
		log.Printf("hmac: verification failed for %s", ip)
		return false
	}
	return true
}

// GenerateClientScript returns a script that signs every POST to /collect
// with the key of the client at ip.
func (h *HMACAuth) GenerateClientScript(ip string) string {
	key := h.clientKeyBase64(ip)
	if key == "" {
		return ""
	}
	return fmt.Sprintf(`(function() {
  var KEY = '%s';
  var HEADER = '%s';
  var keyBytes = Uint8Array.from(atob(KEY), function(c) { return c.charCodeAt(0); });

  async function sign(body) {
    var k = await crypto.subtle.importKey('raw', keyBytes, { name: 'HMAC', hash: 'SHA-256' }, false, ['sign']);
    var sig = await crypto.subtle.sign('HMAC', k, new TextEncoder().encode(body));
    return Array.from(new Uint8Array(sig)).map(function(b) { return b.toString(16).padStart(2, '0'); }).join('');
  }

  var originalFetch = window.fetch;
  window.fetch = async function(url, options) {
    options = options || {};
    if (String(url).indexOf('/collect') !== -1 && options.method === 'POST' && typeof options.body === 'string') {
      try {
        options.headers = Object.assign({}, options.headers);
        options.headers[HEADER] = await sign(options.body);
      } catch (e) {
        console.warn('botprint: signing failed', e);
      }
    }
    return originalFetch.call(this, url, options);
  };
})();
`, key, HMACHeader)
}
