package httpx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shortontech/botprint/internal/event"
	"github.com/shortontech/botprint/internal/fingerprint"
	"github.com/shortontech/botprint/internal/metrics"
	"github.com/shortontech/botprint/internal/platform/snapshot"
	"github.com/shortontech/botprint/internal/session"
	cfg "github.com/shortontech/botprint/pkg/config"
)

type Env struct {
	Cfg        cfg.Config
	Emit       func(event.Event) // injected sink fan-out
	HMACAuth   *HMACAuth
	Aggregator *fingerprint.Aggregator
	Sessions   session.Store // nil disables session id persistence
	Metrics    *metrics.Metrics
}

// CollectResponse is the body returned for an accepted report.
type CollectResponse struct {
	FingerprintID    string   `json:"fingerprint_id"`
	SessionID        string   `json:"session_id"`
	BotScore         float64  `json:"bot_score"`
	IsBot            bool     `json:"is_bot"`
	SuspicionReasons []string `json:"suspicion_reasons"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (e Env) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz reports ready once the session store answers.
func (e Env) Readyz(w http.ResponseWriter, r *http.Request) {
	if e.Sessions != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := e.Sessions.Ping(ctx); err != nil {
			log.Printf("readyz: session store: %v", err)
			http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (e Env) HMACScript(w http.ResponseWriter, r *http.Request) {
	if e.HMACAuth == nil {
		http.Error(w, "HMAC authentication not configured", http.StatusNotFound)
		return
	}
	script := e.HMACAuth.GenerateClientScript(event.ClientIP(r, e.Cfg.TrustProxy))
	if script == "" {
		http.Error(w, "HMAC client script not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	// The key is bound to the client IP, so the script must not be shared.
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(script))
}

func (e Env) HMACPublicKey(w http.ResponseWriter, r *http.Request) {
	if e.HMACAuth == nil {
		http.Error(w, "HMAC authentication not configured", http.StatusNotFound)
		return
	}
	key := e.HMACAuth.clientKeyBase64(event.ClientIP(r, e.Cfg.TrustProxy))
	if key == "" {
		http.Error(w, "HMAC public key not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	writeJSON(w, http.StatusOK, map[string]string{
		"public_key": key,
		"algorithm":  "HMAC-SHA256",
		"header":     HMACHeader,
	})
}

// POST /collect: accepts one probe report, runs the collectors over it and
// returns the score.
func (e Env) Collect(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
		http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
		return
	}
	if e.Cfg.DNTRespect && r.Header.Get("DNT") == "1" {
		writeJSON(w, http.StatusAccepted, map[string]any{"accepted": 0, "status": "dnt"})
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.Cfg.MaxBodyBytes))
	if err != nil {
		e.reject("too_large")
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	if e.HMACAuth != nil && !e.HMACAuth.VerifyHMAC(r, body) {
		e.reject("hmac")
		http.Error(w, "invalid or missing HMAC signature", http.StatusUnauthorized)
		return
	}

	rep, err := snapshot.Decode(body)
	if err != nil {
		var verr *snapshot.ValidationError
		if errors.As(err, &verr) {
			e.reject("schema")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
			return
		}
		e.reject("json")
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	rec := e.fingerprint(r, rep)
	evt := event.New(rec, time.Now())
	event.EnrichServerFields(r, &evt, e.Cfg)
	if e.Emit != nil {
		e.Emit(evt)
	}

	reasons := rec.SuspicionReasons
	if reasons == nil {
		reasons = []string{}
	}
	writeJSON(w, http.StatusOK, CollectResponse{
		FingerprintID:    rec.FingerprintID,
		SessionID:        rec.SessionID,
		BotScore:         rec.BotScore,
		IsBot:            rec.IsBot,
		SuspicionReasons: reasons,
	})
}

// fingerprint replays rep through the snapshot platform and collects it.
func (e Env) fingerprint(r *http.Request, rep *snapshot.Report) *fingerprint.Record {
	agg := e.Aggregator
	if agg == nil {
		agg = fingerprint.NewAggregator(fingerprint.DefaultConfig(), nil)
	}

	var store snapshot.SessionStore
	if e.Sessions != nil {
		store = e.Sessions
	}
	caps := snapshot.New(rep, e.sessionScope(r, rep), store)

	start := time.Now()
	sess := fingerprint.NewSession(r.Context(), caps, rep.NavigationStartTime(), rep.ScriptBootTime(), agg.Config().Behavior)
	caps.Replay(sess.Tracker)
	rec := agg.Collect(r.Context(), sess)

	if e.Metrics != nil {
		e.Metrics.ObserveCollectDuration(time.Since(start))
		e.Metrics.ObserveVerdict(rec.BotScore, rec.IsBot, rec.SuspicionReasons)
	}
	return rec
}

// sessionScope is the report's own scope, or a digest of client IP and UA
// when the page did not send one.
func (e Env) sessionScope(r *http.Request, rep *snapshot.Report) string {
	if rep.SessionScope != "" {
		return rep.SessionScope
	}
	sum := sha256.Sum256([]byte(event.ClientIP(r, e.Cfg.TrustProxy) + "|" + r.UserAgent()))
	return hex.EncodeToString(sum[:16])
}

func (e Env) reject(reason string) {
	if e.Metrics != nil {
		e.Metrics.IncrementRejectedReports(reason)
	}
}
