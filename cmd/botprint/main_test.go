package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shortontech/botprint/internal/event"
	httpx "github.com/shortontech/botprint/internal/http"
	"github.com/shortontech/botprint/internal/metrics"
	"github.com/shortontech/botprint/internal/session"
	"github.com/shortontech/botprint/internal/sink"
	"github.com/shortontech/botprint/pkg/config"
)

// Mock sink for testing
type mockSink struct {
	name     string
	events   []event.Event
	enqErr   error
	closeErr error
	closed   bool
}

func (m *mockSink) Start(ctx context.Context) error { return nil }

func (m *mockSink) Enqueue(e event.Event) error {
	if m.enqErr != nil {
		return m.enqErr
	}
	m.events = append(m.events, e)
	return nil
}

func (m *mockSink) Close() error {
	m.closed = true
	return m.closeErr
}

func (m *mockSink) Name() string { return m.name }

func counter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue series
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestInitializeSinks(t *testing.T) {
	ctx := context.Background()
	t.Setenv("LOG_PATH", filepath.Join(t.TempDir(), "events.ndjson"))

	t.Run("log sink", func(t *testing.T) {
		sinks := initializeSinks(ctx, []string{"log"}, nil)
		defer closeAll(sinks)
		if len(sinks) != 1 {
			t.Fatalf("expected 1 sink, got %d", len(sinks))
		}
		if sinks[0].Name() != "log" {
			t.Errorf("expected log sink, got %s", sinks[0].Name())
		}
	})

	t.Run("unknown output type", func(t *testing.T) {
		sinks := initializeSinks(ctx, []string{"unknown"}, nil)
		if len(sinks) != 0 {
			t.Errorf("expected 0 sinks for unknown type, got %d", len(sinks))
		}
	})

	t.Run("names are trimmed and case-insensitive", func(t *testing.T) {
		sinks := initializeSinks(ctx, []string{" LOG ", "unknown"}, nil)
		defer closeAll(sinks)
		if len(sinks) != 1 {
			t.Errorf("expected 1 sink, got %d", len(sinks))
		}
	})

	t.Run("failed start is skipped", func(t *testing.T) {
		t.Setenv("LOG_PATH", filepath.Join(t.TempDir(), "missing", "dir", "events.ndjson"))
		sinks := initializeSinks(ctx, []string{"log"}, nil)
		defer closeAll(sinks)
		if len(sinks) != 0 {
			t.Errorf("expected unstartable sink to be skipped, got %d", len(sinks))
		}
	})
}

func closeAll(sinks []sink.Sink) {
	for _, s := range sinks {
		_ = s.Close()
	}
}

func TestInitializeHMACAuth(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantNil bool
	}{
		{"disabled", config.Config{}, true},
		{"secret", config.Config{HMACSecret: "s3cret"}, false},
		{"public key only", config.Config{HMACPublicKey: "cHVibGlj"}, false},
		{"required without secret", config.Config{RequireHMAC: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := initializeHMACAuth(tt.cfg)
			if (auth == nil) != tt.wantNil {
				t.Errorf("initializeHMACAuth() nil = %v, want %v", auth == nil, tt.wantNil)
			}
		})
	}
}

func TestCreateEmitFunc(t *testing.T) {
	good := &mockSink{name: "good"}
	bad := &mockSink{name: "bad", enqErr: errors.New("queue full")}
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	emit := createEmitFunc([]sink.Sink{bad, good}, m)
	emit(event.Event{EventID: "e1"})
	emit(event.Event{EventID: "e2"})

	if len(good.events) != 2 {
		t.Fatalf("expected 2 events in good sink, got %d", len(good.events))
	}
	if good.events[1].EventID != "e2" {
		t.Errorf("expected e2, got %s", good.events[1].EventID)
	}
	if got := counter(t, reg, "botprint_events_ingested_total", map[string]string{"sink": "good"}); got != 2 {
		t.Errorf("ingested(good) = %v, want 2", got)
	}
	if got := counter(t, reg, "botprint_sink_errors_total", map[string]string{"sink": "bad", "error_type": "enqueue"}); got != 2 {
		t.Errorf("sink errors(bad) = %v, want 2", got)
	}

	t.Run("nil metrics", func(t *testing.T) {
		s := &mockSink{name: "s"}
		createEmitFunc([]sink.Sink{s}, nil)(event.Event{EventID: "e3"})
		if len(s.events) != 1 {
			t.Errorf("expected 1 event, got %d", len(s.events))
		}
	})
}

func hostPortOf(t *testing.T, rawURL string) (string, string) {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %q: %v", rawURL, err)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split %q: %v", u.Host, err)
	}
	return host, port
}

func TestPerformHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"healthy", http.StatusOK, "ok", ""},
		{"healthy with newline", http.StatusOK, "ok\n", ""},
		{"bad status", http.StatusServiceUnavailable, "ok", "status"},
		{"bad body", http.StatusOK, "nope", "unexpected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/healthz" {
					http.NotFound(w, r)
					return
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			host, port := hostPortOf(t, srv.URL)
			err := performHealthCheck(host, port)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("performHealthCheck() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("performHealthCheck() error = %v, want %q", err, tt.wantErr)
			}
		})
	}

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		host, port := hostPortOf(t, srv.URL)
		srv.Close()
		err := performHealthCheck(host, port)
		if err == nil || !strings.Contains(err.Error(), "failed to connect") {
			t.Errorf("performHealthCheck() error = %v, want connection failure", err)
		}
	})
}

func TestHostPort(t *testing.T) {
	tests := []struct {
		addr, host, port string
	}{
		{":19890", "127.0.0.1", "19890"},
		{"0.0.0.0:8080", "127.0.0.1", "8080"},
		{"10.0.0.2:8080", "10.0.0.2", "8080"},
		{"[::]:9000", "127.0.0.1", "9000"},
		{"19890", "127.0.0.1", "19890"},
	}
	for _, tt := range tests {
		host, port := hostPort(tt.addr)
		if host != tt.host || port != tt.port {
			t.Errorf("hostPort(%q) = %s, %s; want %s, %s", tt.addr, host, port, tt.host, tt.port)
		}
	}
}

func TestBehaviorConfig(t *testing.T) {
	cfg := config.Config{
		ObservationWindow:     5 * time.Second,
		SampleThrottle:        50 * time.Millisecond,
		ExpectedEventInterval: 100 * time.Millisecond,
		IdleGapThreshold:      time.Second,
	}
	bc := behaviorConfig(cfg)
	if bc.Window != 5*time.Second || bc.SampleThrottle != 50*time.Millisecond {
		t.Errorf("window/throttle not applied: %+v", bc)
	}
	if bc.ExpectedEventInterval != 100*time.Millisecond || bc.IdleGapThreshold != time.Second {
		t.Errorf("interval/idle gap not applied: %+v", bc)
	}
	if bc.PointerCapacity != 600 || bc.ClickCapacity != 60 {
		t.Errorf("buffer capacities changed: %+v", bc)
	}
}

func TestNewAggregatorObservesOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	cfg := config.Load()
	agg := newAggregator(cfg, nil, m)

	if agg.Config().WebRTCDeadline != cfg.WebRTCDeadline {
		t.Errorf("WebRTCDeadline = %v, want %v", agg.Config().WebRTCDeadline, cfg.WebRTCDeadline)
	}

	events := generateTestEvents(context.Background(), agg, nil)
	if len(events) == 0 {
		t.Fatal("expected test events")
	}
	got := counter(t, reg, "botprint_collector_outcomes_total", map[string]string{"collector": "canvas"})
	if got != float64(len(events)) {
		t.Errorf("canvas outcomes = %v, want %d", got, len(events))
	}
}

func TestInitializeSessionStore(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		store, err := initializeSessionStore(context.Background(), config.Config{SessionTTL: time.Minute})
		if err != nil {
			t.Fatalf("initializeSessionStore() error = %v", err)
		}
		if _, ok := store.(*session.MemoryStore); !ok {
			t.Errorf("expected *session.MemoryStore, got %T", store)
		}
	})

	t.Run("bad redis url", func(t *testing.T) {
		_, err := initializeSessionStore(context.Background(), config.Config{RedisURL: "http://not-redis"})
		if err == nil {
			t.Error("expected error for non-redis URL")
		}
	})
}

func TestShutdown(t *testing.T) {
	a := &mockSink{name: "a"}
	b := &mockSink{name: "b", closeErr: errors.New("boom")}
	srv := &http.Server{Addr: "127.0.0.1:0"}
	metricsSrv := metrics.NewServer(metrics.Config{Enabled: false}, prometheus.NewRegistry())

	shutdown(srv, metricsSrv, []sink.Sink{a, b}, session.NewMemoryStore(time.Minute))

	if !a.closed || !b.closed {
		t.Errorf("expected every sink closed, got a=%v b=%v", a.closed, b.closed)
	}
}

func TestStartHTTPServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := config.Load()
	cfg.ServerAddr = addr
	env := httpx.Env{Cfg: cfg, Emit: func(event.Event) {}}
	srv := startHTTPServer(cfg, env)
	defer shutdown(srv, nil, nil, nil)

	host, port, _ := net.SplitHostPort(addr)
	deadline := time.Now().Add(2 * time.Second)
	for {
		err = performHealthCheck(host, port)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server did not become healthy: %v", err)
	}
}
