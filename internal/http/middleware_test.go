package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shortontech/botprint/internal/metrics"
	"github.com/shortontech/botprint/internal/platform/snapshot"
	"github.com/shortontech/botprint/internal/session"
	"github.com/shortontech/botprint/pkg/config"
)

func requestCount(t *testing.T, reg *prometheus.Registry, endpoint, status string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "botprint_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["endpoint"] == endpoint && labels["status"] == status {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestNewRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	env := Env{
		Cfg:      config.Config{MaxBodyBytes: 1 << 20, CORSOrigins: []string{"https://shop.example"}},
		Sessions: session.NewMemoryStore(time.Minute),
		Metrics:  metrics.NewMetrics(reg),
		HMACAuth: NewHMACAuth("secret", "", false, false),
	}
	srv := httptest.NewServer(NewRouter(env))
	defer srv.Close()

	t.Run("routes", func(t *testing.T) {
		tests := []struct {
			method string
			path   string
			want   int
		}{
			{http.MethodGet, "/healthz", http.StatusOK},
			{http.MethodGet, "/readyz", http.StatusOK},
			{http.MethodGet, "/hmac.js", http.StatusOK},
			{http.MethodGet, "/hmac/public-key", http.StatusOK},
			{http.MethodGet, "/collect", http.StatusMethodNotAllowed},
			{http.MethodGet, "/px.gif", http.StatusNotFound},
		}
		for _, tt := range tests {
			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("%s %s: %v", tt.method, tt.path, err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, resp.StatusCode, tt.want)
			}
		}
	})

	t.Run("collect", func(t *testing.T) {
		body, _ := json.Marshal(snapshot.Human(navStart))
		resp, err := http.Post(srv.URL+"/collect", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var out CollectResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out.FingerprintID == "" {
			t.Error("fingerprint_id should be set")
		}
	})

	t.Run("cors preflight", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/collect", nil)
		req.Header.Set("Origin", "https://shop.example")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "Content-Type, "+HMACHeader)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://shop.example" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
	})

	t.Run("metrics by route pattern", func(t *testing.T) {
		if got := requestCount(t, reg, "/healthz", "200"); got < 1 {
			t.Errorf("/healthz 200 count = %v", got)
		}
		if got := requestCount(t, reg, "/collect", "200"); got < 1 {
			t.Errorf("/collect 200 count = %v", got)
		}
	})
}

func TestMetricsMiddlewareNil(t *testing.T) {
	called := false
	h := MetricsMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if !called || w.Code != http.StatusTeapot {
		t.Errorf("handler not passed through: called=%v code=%d", called, w.Code)
	}
}
