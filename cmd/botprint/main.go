package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shortontech/botprint/internal/behavior"
	"github.com/shortontech/botprint/internal/collector"
	"github.com/shortontech/botprint/internal/event"
	"github.com/shortontech/botprint/internal/fingerprint"
	httpx "github.com/shortontech/botprint/internal/http"
	"github.com/shortontech/botprint/internal/metrics"
	"github.com/shortontech/botprint/internal/score"
	"github.com/shortontech/botprint/internal/session"
	"github.com/shortontech/botprint/internal/sink"
	"github.com/shortontech/botprint/pkg/config"
)

func main() {
	healthCheck := flag.Bool("healthcheck", false, "probe /healthz on SERVER_ADDR and exit")
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	flag.Parse()

	config.LoadDotEnv(*envFile)
	cfg := config.Load()

	if *healthCheck {
		host, port := hostPort(cfg.ServerAddr)
		if err := performHealthCheck(host, port); err != nil {
			log.Fatalf("healthcheck: %v", err)
		}
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.InitMetrics()
	metricsSrv := metrics.NewServer(metrics.LoadConfig(), prometheus.DefaultGatherer)
	if err := metricsSrv.Start(ctx); err != nil {
		log.Printf("metrics: %v", err)
	}

	engine, err := score.Load(cfg.ScoreWeightsFile)
	if err != nil {
		log.Fatalf("score weights: %v", err)
	}
	store, err := initializeSessionStore(ctx, cfg)
	if err != nil {
		log.Fatalf("session store: %v", err)
	}
	agg := newAggregator(cfg, engine, m)

	sinks := initializeSinks(ctx, cfg.Outputs, m)
	emit := createEmitFunc(sinks, m)

	env := httpx.Env{
		Cfg:        cfg,
		Emit:       emit,
		HMACAuth:   initializeHMACAuth(cfg),
		Aggregator: agg,
		Sessions:   store,
		Metrics:    m,
	}

	if cfg.TestMode {
		go runTestMode(ctx, agg, store, emit)
	}

	srv := startHTTPServer(cfg, env)
	waitForShutdown(srv, metricsSrv, sinks, store)
}

// hostPort splits a listen address into a dialable host and port.
func hostPort(addr string) (string, string) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "127.0.0.1", strings.TrimPrefix(addr, ":")
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return host, port
}

func performHealthCheck(host, port string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://" + net.JoinHostPort(host, port) + "/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if strings.TrimSpace(string(body)) != "ok" {
		return fmt.Errorf("unexpected health check response: %q", body)
	}
	return nil
}

func behaviorConfig(cfg config.Config) behavior.Config {
	bc := behavior.DefaultConfig()
	bc.Window = cfg.ObservationWindow
	bc.SampleThrottle = cfg.SampleThrottle
	bc.ExpectedEventInterval = cfg.ExpectedEventInterval
	bc.IdleGapThreshold = cfg.IdleGapThreshold
	return bc
}

func newAggregator(cfg config.Config, engine *score.Engine, m *metrics.Metrics) *fingerprint.Aggregator {
	var opts []fingerprint.Option
	if m != nil {
		opts = append(opts, fingerprint.WithOutcomeObserver(func(name string, status collector.Status, reason string) {
			m.ObserveOutcome(name, string(status), reason)
		}))
	}
	return fingerprint.NewAggregator(fingerprint.Config{
		Behavior:       behaviorConfig(cfg),
		WebRTCDeadline: cfg.WebRTCDeadline,
	}, engine, opts...)
}

// initializeSessionStore connects to Redis when REDIS_URL is set and keeps
// sessions in memory otherwise.
func initializeSessionStore(ctx context.Context, cfg config.Config) (session.Store, error) {
	if cfg.RedisURL == "" {
		log.Printf("session: in-memory store, ttl %s", cfg.SessionTTL)
		return session.NewMemoryStore(cfg.SessionTTL).WithMaxEntries(cfg.SessionMaxEntries), nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	store, err := session.NewRedisStore(connectCtx, cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	log.Printf("session: redis store, ttl %s", cfg.SessionTTL)
	return store, nil
}

func initializeSinks(ctx context.Context, outputs []string, m *metrics.Metrics) []sink.Sink {
	var sinks []sink.Sink
	for _, out := range outputs {
		var s sink.Sink
		switch strings.ToLower(strings.TrimSpace(out)) {
		case "log":
			s = sink.NewLogSink()
		case "kafka":
			s = sink.NewKafkaSinkFromEnv()
		case "postgres", "pg":
			s = sink.NewPGSinkFromEnv().WithMetrics(m)
		default:
			log.Printf("sink: unknown output %q, skipping", out)
			continue
		}
		if err := s.Start(ctx); err != nil {
			log.Printf("sink: failed to start %s: %v", s.Name(), err)
			continue
		}
		log.Printf("sink: %s started", s.Name())
		sinks = append(sinks, s)
	}
	return sinks
}

func initializeHMACAuth(cfg config.Config) *httpx.HMACAuth {
	if cfg.HMACSecret == "" && cfg.HMACPublicKey == "" {
		if cfg.RequireHMAC {
			log.Printf("hmac: REQUIRE_HMAC is set without HMAC_SECRET; signatures cannot be verified")
			return httpx.NewHMACAuth("", "", true, cfg.TrustProxy)
		}
		return nil
	}
	return httpx.NewHMACAuth(cfg.HMACSecret, cfg.HMACPublicKey, cfg.RequireHMAC, cfg.TrustProxy)
}

// createEmitFunc fans an event out to every sink. A failing sink is counted
// and logged and never blocks the others.
func createEmitFunc(sinks []sink.Sink, m *metrics.Metrics) func(event.Event) {
	return func(e event.Event) {
		for _, s := range sinks {
			if err := s.Enqueue(e); err != nil {
				log.Printf("sink: %s enqueue %s: %v", s.Name(), e.EventID, err)
				if m != nil {
					m.IncrementSinkErrors(s.Name(), "enqueue")
				}
				continue
			}
			if m != nil {
				m.IncrementEventsIngested(s.Name())
			}
		}
	}
}

func startHTTPServer(cfg config.Config, env httpx.Env) *http.Server {
	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           httpx.NewRouter(env),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		var err error
		if cfg.EnableHTTPS && cfg.SSLCertFile != "" && cfg.SSLKeyFile != "" {
			log.Printf("botprint listening on %s (https)", cfg.ServerAddr)
			err = srv.ListenAndServeTLS(cfg.SSLCertFile, cfg.SSLKeyFile)
		} else {
			log.Printf("botprint listening on %s", cfg.ServerAddr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()
	return srv
}

func waitForShutdown(srv *http.Server, metricsSrv *metrics.Server, sinks []sink.Sink, store session.Store) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	shutdown(srv, metricsSrv, sinks, store)
}

func shutdown(srv *http.Server, metricsSrv *metrics.Server, sinks []sink.Sink, store session.Store) {
	log.Printf("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			log.Printf("metrics shutdown: %v", err)
		}
	}
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			log.Printf("sink: %s close: %v", s.Name(), err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			log.Printf("session: close: %v", err)
		}
	}
}
