// Package metrics exposes Prometheus metrics for ingestion, sinks and the
// fingerprint pipeline.
package metrics

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	// Counters
	EventsIngested    *prometheus.CounterVec
	SinkErrors        *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	CollectorOutcomes *prometheus.CounterVec
	Verdicts          *prometheus.CounterVec
	SuspicionReasons  *prometheus.CounterVec
	RejectedReports   *prometheus.CounterVec

	// Histograms
	BotScore     prometheus.Histogram
	CollectTime  prometheus.Histogram
	HTTPDuration *prometheus.HistogramVec
}

// Config holds configuration for the metrics server
type Config struct {
	Enabled     bool
	Addr        string
	TLSCert     string
	TLSKey      string
	ClientCA    string
	RequireTLS  bool
	RequireAuth bool
}

// LoadConfig loads metrics configuration from environment variables
func LoadConfig() Config {
	return Config{
		Enabled:     getBool("METRICS_ENABLED", false),
		Addr:        getOr("METRICS_ADDR", "127.0.0.1:9090"),
		TLSCert:     getOr("METRICS_TLS_CERT", ""),
		TLSKey:      getOr("METRICS_TLS_KEY", ""),
		ClientCA:    getOr("METRICS_CLIENT_CA", ""),
		RequireTLS:  getBool("METRICS_REQUIRE_TLS", false),
		RequireAuth: getBool("METRICS_REQUIRE_AUTH", false),
	}
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botprint_events_ingested_total",
				Help: "Total events delivered by sink type",
			},
			[]string{"sink"},
		),
		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botprint_sink_errors_total",
				Help: "Total errors writing to a sink",
			},
			[]string{"sink", "error_type"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botprint_http_requests_total",
				Help: "Total HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "method", "status"},
		),
		CollectorOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botprint_collector_outcomes_total",
				Help: "Collector runs by collector and outcome status",
			},
			[]string{"collector", "status"},
		),
		Verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botprint_verdicts_total",
				Help: "Scored fingerprints by verdict",
			},
			[]string{"verdict"},
		),
		SuspicionReasons: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botprint_suspicion_reasons_total",
				Help: "Fired suspicion reasons",
			},
			[]string{"reason"},
		),
		RejectedReports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botprint_rejected_reports_total",
				Help: "Probe reports rejected before collection",
			},
			[]string{"reason"},
		),
		BotScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "botprint_bot_score",
				Help:    "Distribution of bot scores",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),
		CollectTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "botprint_collect_duration_seconds",
				Help:    "Time spent running the collectors for one report",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "botprint_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.EventsIngested,
			m.SinkErrors,
			m.HTTPRequests,
			m.CollectorOutcomes,
			m.Verdicts,
			m.SuspicionReasons,
			m.RejectedReports,
			m.BotScore,
			m.CollectTime,
			m.HTTPDuration,
		)
	}
	return m
}

// Server represents the metrics HTTP server
type Server struct {
	server *http.Server
	config Config
}

// NewServer creates a metrics server exposing g on /metrics.
func NewServer(config Config, g prometheus.Gatherer) *Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if config.RequireTLS && config.TLSCert != "" && config.TLSKey != "" {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

		// mTLS when a client CA is provided
		if config.ClientCA != "" {
			clientCAs, err := loadCertPool(config.ClientCA)
			if err != nil {
				log.Printf("metrics: failed to load client CA: %v", err)
			} else {
				tlsConfig.ClientCAs = clientCAs
				tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
				log.Printf("metrics: mTLS enabled with client CA: %s", config.ClientCA)
			}
		}

		srv.TLSConfig = tlsConfig
	}

	return &Server{
		server: srv,
		config: config,
	}
}

// Start starts the metrics server in a separate goroutine
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		log.Printf("metrics: disabled (METRICS_ENABLED=false)")
		return nil
	}

	go func() {
		var err error
		if s.config.RequireTLS && s.config.TLSCert != "" && s.config.TLSKey != "" {
			log.Printf("metrics: HTTPS server listening on %s", s.config.Addr)
			err = s.server.ListenAndServeTLS(s.config.TLSCert, s.config.TLSKey)
		} else {
			log.Printf("metrics: HTTP server listening on %s", s.config.Addr)
			err = s.server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			log.Printf("metrics: server error: %v", err)
		}
	}()

	// Give the listener a moment to come up.
	time.Sleep(100 * time.Millisecond)
	return nil
}

// Shutdown gracefully shuts down the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}

	log.Printf("metrics: shutting down server...")
	return s.server.Shutdown(ctx)
}

// Helper functions
func getOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// loadCertPool reads PEM certificates from certFile.
func loadCertPool(certFile string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", certFile, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", certFile)
	}
	return pool, nil
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// InitMetrics returns the process-wide metrics, registered with the default
// Prometheus registry on first use.
func InitMetrics() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics { return InitMetrics() }

// Convenience methods for common operations
func (m *Metrics) IncrementEventsIngested(sink string) {
	m.EventsIngested.WithLabelValues(sink).Inc()
}

func (m *Metrics) IncrementSinkErrors(sink, errorType string) {
	m.SinkErrors.WithLabelValues(sink, errorType).Inc()
}

func (m *Metrics) IncrementHTTPRequests(endpoint, method, status string) {
	m.HTTPRequests.WithLabelValues(endpoint, method, status).Inc()
}

func (m *Metrics) IncrementRejectedReports(reason string) {
	m.RejectedReports.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveHTTPDuration(endpoint, method string, duration time.Duration) {
	m.HTTPDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (m *Metrics) ObserveCollectDuration(d time.Duration) {
	m.CollectTime.Observe(d.Seconds())
}

// ObserveOutcome counts one collector run. reason is accepted for parity
// with the outcome observer and is not used as a label.
func (m *Metrics) ObserveOutcome(collector, status, reason string) {
	m.CollectorOutcomes.WithLabelValues(collector, status).Inc()
}

// ObserveVerdict records the score, the verdict and every fired reason.
func (m *Metrics) ObserveVerdict(botScore float64, isBot bool, reasons []string) {
	m.BotScore.Observe(botScore)
	verdict := "human"
	if isBot {
		verdict = "bot"
	}
	m.Verdicts.WithLabelValues(verdict).Inc()
	for _, r := range reasons {
		m.SuspicionReasons.WithLabelValues(r).Inc()
	}
}
