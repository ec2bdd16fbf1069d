package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr   string
	TrustProxy   bool
	DNTRespect   bool
	MaxBodyBytes int64    // bytes for a /collect report
	IPHashSecret string   // daily salt seed; when empty the client IP is not recorded
	Outputs      []string // enabled sinks: log, kafka, postgres
	CORSOrigins  []string

	EnableHTTPS bool
	SSLCertFile string
	SSLKeyFile  string

	RequireHMAC   bool
	HMACSecret    string
	HMACPublicKey string

	TestMode bool

	// Fingerprinting
	ObservationWindow     time.Duration
	SampleThrottle        time.Duration
	ExpectedEventInterval time.Duration
	IdleGapThreshold      time.Duration
	WebRTCDeadline        time.Duration
	ScoreWeightsFile      string

	// Session scope persistence; an empty RedisURL keeps sessions in memory.
	RedisURL          string
	SessionTTL        time.Duration
	SessionMaxEntries int // in-memory store cap
}

func getOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func getBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}
func getInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

// getDuration accepts Go duration strings ("15s") or bare milliseconds.
func getDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	log.Printf("config: ignoring invalid duration %s=%q", k, v)
	return def
}

func getStringSlice(k, def string) []string {
	v := os.Getenv(k)
	if v == "" {
		v = def
	}
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// LoadDotEnv reads KEY=VALUE pairs from the given files (".env" when none
// are given) into the environment. Variables already set win, and missing
// files are skipped.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Printf("config: %s: %v", f, err)
		}
	}
}

func Load() Config {
	return Config{
		ServerAddr:   getOr("SERVER_ADDR", ":19890"),
		TrustProxy:   getBool("TRUST_PROXY", false),
		DNTRespect:   getBool("DNT_RESPECT", true),
		MaxBodyBytes: getInt64("MAX_BODY_BYTES", 1<<20), // 1 MiB default
		IPHashSecret: getOr("IP_HASH_SECRET", ""),
		Outputs:      getStringSlice("OUTPUTS", "log"),
		CORSOrigins:  getStringSlice("CORS_ORIGINS", "*"),

		EnableHTTPS: getBool("ENABLE_HTTPS", false),
		SSLCertFile: getOr("SSL_CERT_FILE", ""),
		SSLKeyFile:  getOr("SSL_KEY_FILE", ""),

		RequireHMAC:   getBool("REQUIRE_HMAC", false),
		HMACSecret:    getOr("HMAC_SECRET", ""),
		HMACPublicKey: getOr("HMAC_PUBLIC_KEY", ""),

		TestMode: getBool("TEST_MODE", false),

		ObservationWindow:     getDuration("OBSERVATION_WINDOW", 15*time.Second),
		SampleThrottle:        getDuration("SAMPLE_THROTTLE", 90*time.Millisecond),
		ExpectedEventInterval: getDuration("EXPECTED_EVENT_INTERVAL", 120*time.Millisecond),
		IdleGapThreshold:      getDuration("IDLE_GAP_THRESHOLD", 500*time.Millisecond),
		WebRTCDeadline:        getDuration("WEBRTC_DEADLINE", 2*time.Second),
		ScoreWeightsFile:      getOr("SCORE_WEIGHTS_FILE", ""),

		RedisURL:          getOr("REDIS_URL", ""),
		SessionTTL:        getDuration("SESSION_TTL", 30*time.Minute),
		SessionMaxEntries: int(getInt64("SESSION_MAX_ENTRIES", 100_000)),
	}
}
