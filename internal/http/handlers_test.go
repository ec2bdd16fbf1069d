package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shortontech/botprint/internal/event"
	"github.com/shortontech/botprint/internal/metrics"
	"github.com/shortontech/botprint/internal/platform/snapshot"
	"github.com/shortontech/botprint/internal/session"
	"github.com/shortontech/botprint/pkg/config"
)

var navStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type captured struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *captured) emit(e event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func testEnv(c *captured) Env {
	return Env{
		Cfg:      config.Config{MaxBodyBytes: 1 << 20, DNTRespect: true, IPHashSecret: "pepper"},
		Emit:     c.emit,
		Sessions: session.NewMemoryStore(time.Minute),
		Metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
	}
}

func reportBody(t *testing.T, r *snapshot.Report) []byte {
	t.Helper()
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	return b
}

func postCollect(env Env, body []byte, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/collect", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 Test")
	req.RemoteAddr = "198.51.100.4:5555"
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	env.Collect(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) CollectResponse {
	t.Helper()
	var resp CollectResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, w.Body.String())
	}
	return resp
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	Env{}.Healthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("Healthz = %d %q, want 200 ok", w.Code, w.Body.String())
	}
}

type pingStore struct {
	session.Store
	err error
}

func (p pingStore) Ping(context.Context) error { return p.err }

func TestReadyz(t *testing.T) {
	tests := []struct {
		name  string
		store session.Store
		want  int
	}{
		{"no store", nil, http.StatusOK},
		{"healthy store", session.NewMemoryStore(time.Minute), http.StatusOK},
		{"failing store", pingStore{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Env{Sessions: tt.store}.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestCollectHuman(t *testing.T) {
	c := &captured{}
	env := testEnv(c)
	w := postCollect(env, reportBody(t, snapshot.Human(navStart)), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeResponse(t, w)
	if resp.IsBot {
		t.Errorf("human report scored as bot: %+v", resp)
	}
	if !strings.HasPrefix(resp.FingerprintID, "fp_") || !strings.HasPrefix(resp.SessionID, "fp_") {
		t.Errorf("ids = %q / %q", resp.FingerprintID, resp.SessionID)
	}
	if resp.SuspicionReasons == nil {
		t.Error("suspicion_reasons should be an empty list, not null")
	}

	if len(c.events) != 1 {
		t.Fatalf("emitted %d events, want 1", len(c.events))
	}
	e := c.events[0]
	if e.Type != event.TypeFingerprint || e.FingerprintID != resp.FingerprintID {
		t.Errorf("event = %s/%s", e.Type, e.FingerprintID)
	}
	if e.Fingerprint == nil || e.Fingerprint.WebGLRendererGroup != "nvidia" {
		t.Error("event should carry the fingerprint record")
	}
	if e.Server.IP == "" || e.Server.IP == "198.51.100.4" {
		t.Errorf("server.ip_hash = %q, want a hash", e.Server.IP)
	}
	if e.Attribution.UTM.Source != "newsletter" {
		t.Errorf("attribution = %+v", e.Attribution)
	}
}

func TestCollectBot(t *testing.T) {
	c := &captured{}
	w := postCollect(testEnv(c), reportBody(t, snapshot.Bot(navStart)), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeResponse(t, w)
	if !resp.IsBot || resp.BotScore < 0.5 {
		t.Errorf("bot report = %+v, want is_bot", resp)
	}
	found := false
	for _, r := range resp.SuspicionReasons {
		if r == "webdriver" {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons = %v, want webdriver", resp.SuspicionReasons)
	}
}

func TestCollectSessionScope(t *testing.T) {
	env := testEnv(&captured{})

	t.Run("explicit scope survives reports", func(t *testing.T) {
		rep := snapshot.Human(navStart)
		rep.SessionScope = "tab-42"
		first := decodeResponse(t, postCollect(env, reportBody(t, rep), nil))
		second := decodeResponse(t, postCollect(env, reportBody(t, rep), nil))
		if first.SessionID != second.SessionID {
			t.Errorf("session ids differ: %s vs %s", first.SessionID, second.SessionID)
		}
	})

	t.Run("falls back to client address and agent", func(t *testing.T) {
		body := reportBody(t, snapshot.Human(navStart))
		a := decodeResponse(t, postCollect(env, body, nil))
		b := decodeResponse(t, postCollect(env, body, nil))
		other := decodeResponse(t, postCollect(env, body, func(r *http.Request) { r.RemoteAddr = "203.0.113.99:1" }))
		if a.SessionID != b.SessionID {
			t.Errorf("same client got %s and %s", a.SessionID, b.SessionID)
		}
		if other.SessionID == a.SessionID {
			t.Error("different client should get a new session")
		}
	})
}

func TestCollectRejects(t *testing.T) {
	human := reportBody(t, snapshot.Human(navStart))
	hugeAudio := snapshot.Human(navStart)
	hugeAudio.Audio.SamplesOffset = 1 << 30

	tests := []struct {
		name   string
		env    func(Env) Env
		body   []byte
		mutate func(*http.Request)
		want   int
	}{
		{
			name:   "wrong content type",
			body:   human,
			mutate: func(r *http.Request) { r.Header.Set("Content-Type", "text/plain") },
			want:   http.StatusUnsupportedMediaType,
		},
		{
			name:   "do not track",
			body:   human,
			mutate: func(r *http.Request) { r.Header.Set("DNT", "1") },
			want:   http.StatusAccepted,
		},
		{
			name: "body too large",
			env:  func(e Env) Env { e.Cfg.MaxBodyBytes = 64; return e },
			body: human,
			want: http.StatusRequestEntityTooLarge,
		},
		{
			name: "invalid json",
			body: []byte(`{"version":`),
			want: http.StatusBadRequest,
		},
		{
			name: "schema violation",
			body: []byte(`{"version":1,"navigation_start":1,"script_boot":2}`),
			want: http.StatusBadRequest,
		},
		{
			name: "audio offset past the render",
			body: reportBody(t, hugeAudio),
			want: http.StatusBadRequest,
		},
		{
			name: "missing HMAC",
			env:  func(e Env) Env { e.HMACAuth = NewHMACAuth("secret", "", true, false); return e },
			body: human,
			want: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &captured{}
			env := testEnv(c)
			if tt.env != nil {
				env = tt.env(env)
			}
			w := postCollect(env, tt.body, tt.mutate)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if len(c.events) != 0 {
				t.Errorf("emitted %d events, want 0", len(c.events))
			}
		})
	}
}

func TestCollectWithHMAC(t *testing.T) {
	c := &captured{}
	env := testEnv(c)
	env.HMACAuth = NewHMACAuth("secret", "", true, false)
	body := reportBody(t, snapshot.Human(navStart))

	w := postCollect(env, body, func(r *http.Request) {
		r.Header.Set(HMACHeader, env.HMACAuth.Sign(body, "198.51.100.4"))
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	w = postCollect(env, body, func(r *http.Request) {
		r.Header.Set(HMACHeader, env.HMACAuth.Sign(body, "198.51.100.5"))
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("signature for another client: status = %d, want 401", w.Code)
	}
}

func TestHMACEndpoints(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		for _, h := range []http.HandlerFunc{Env{}.HMACScript, Env{}.HMACPublicKey} {
			w := httptest.NewRecorder()
			h(w, httptest.NewRequest(http.MethodGet, "/", nil))
			if w.Code != http.StatusNotFound {
				t.Errorf("status = %d, want 404", w.Code)
			}
		}
	})

	env := Env{HMACAuth: NewHMACAuth("secret", "", true, false)}

	t.Run("public key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/hmac/public-key", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		w := httptest.NewRecorder()
		env.HMACPublicKey(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body["header"] != HMACHeader || body["algorithm"] != "HMAC-SHA256" {
			t.Errorf("body = %v", body)
		}
		if body["public_key"] != env.HMACAuth.clientKeyBase64("192.0.2.10") {
			t.Error("public key should be the caller's client key")
		}
	})

	t.Run("script", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.HMACScript(w, httptest.NewRequest(http.MethodGet, "/hmac.js", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/javascript" {
			t.Errorf("Content-Type = %q", ct)
		}
		if !strings.Contains(w.Body.String(), HMACHeader) {
			t.Error("script should set the signature header")
		}
	})
}
