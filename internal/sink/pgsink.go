package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/shortontech/botprint/internal/event"
	"github.com/shortontech/botprint/internal/metrics"
)

// PGConfig holds configuration for the Postgres sink.
type PGConfig struct {
	DSN       string
	Table     string
	BatchSize int
	FlushMS   int
	UseCopy   bool // COPY FROM STDIN instead of multi-row INSERT

	// MaxPending bounds the events kept while the database is failing; the
	// oldest are dropped first. Zero means ten batches.
	MaxPending int
}

// PGSink batches events into a JSONB table. A batch is flushed when it
// reaches BatchSize, every FlushMS, and on Close.
type PGSink struct {
	config  PGConfig
	db      *sql.DB
	metrics *metrics.Metrics

	mu      sync.Mutex
	batch   []event.Event
	failing bool // last flush failed; Enqueue leaves retries to the ticker

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

var pgColumns = []string{"event_id", "ts", "fingerprint_id", "session_id", "bot_score", "is_bot", "payload"}

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateTableName guards the identifier interpolated into DDL and INSERTs.
func validateTableName(name string) error {
	if name == "" || len(name) > 63 || !tableNameRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

func NewPGSinkFromEnv() *PGSink {
	s := NewPGSink(os.Getenv("PG_DSN"))
	s.config.Table = getEnvOr("PG_TABLE", s.config.Table)
	s.config.BatchSize = getIntEnv("PG_BATCH_SIZE", s.config.BatchSize)
	s.config.FlushMS = getIntEnv("PG_FLUSH_MS", s.config.FlushMS)
	s.config.UseCopy = getBoolEnv("PG_COPY", s.config.UseCopy)
	s.config.MaxPending = getIntEnv("PG_MAX_PENDING", s.config.MaxPending)
	return s
}

func NewPGSink(dsn string) *PGSink {
	return &PGSink{config: PGConfig{
		DSN:       dsn,
		Table:     "fingerprint_events",
		BatchSize: 500,
		FlushMS:   500,
		UseCopy:   true,
	}}
}

// WithMetrics counts dropped events on m.
func (s *PGSink) WithMetrics(m *metrics.Metrics) *PGSink {
	s.metrics = m
	return s
}

func (s *PGSink) Start(ctx context.Context) error {
	if err := validateTableName(s.config.Table); err != nil {
		return err
	}
	db, err := sql.Open("postgres", s.config.DSN)
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s.db = db
	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.ensureSchema(); err != nil {
		s.cancel()
		db.Close()
		s.db = nil
		return err
	}
	if s.config.BatchSize <= 0 {
		s.config.BatchSize = 500
	}
	s.batch = make([]event.Event, 0, s.config.BatchSize)
	s.done = make(chan struct{})
	go s.flushRoutine()
	return nil
}

func (s *PGSink) ensureSchema() error {
	t := s.config.Table
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	event_id TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL DEFAULT now(),
	fingerprint_id TEXT,
	session_id TEXT,
	bot_score DOUBLE PRECISION,
	is_bot BOOLEAN,
	payload JSONB NOT NULL
)`, t)
	if _, err := s.db.ExecContext(s.ctx, create); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_ts ON %s (ts)", t, t),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_session ON %s (session_id)", t, t),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_gin ON %s USING GIN (payload)", t, t),
	}
	for _, q := range indexes {
		if _, err := s.db.ExecContext(s.ctx, q); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// row flattens e into pgColumns order.
func row(e event.Event) ([]any, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event %s: %w", e.EventID, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, e.TS)
	if err != nil {
		ts = time.Now().UTC()
	}
	return []any{e.EventID, ts, e.FingerprintID, e.SessionID, e.Score.BotScore, e.Score.IsBot, string(payload)}, nil
}

func (s *PGSink) flushWithInsert() error {
	if len(s.batch) == 0 {
		return nil
	}
	n := len(pgColumns)
	values := make([]string, 0, len(s.batch))
	args := make([]any, 0, len(s.batch)*n)
	for i, e := range s.batch {
		r, err := row(e)
		if err != nil {
			return err
		}
		ph := make([]string, n)
		for j := range ph {
			ph[j] = "$" + strconv.Itoa(i*n+j+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args, r...)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		s.config.Table, strings.Join(pgColumns, ", "), strings.Join(values, ", "))
	if _, err := s.db.ExecContext(s.ctx, q, args...); err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

func (s *PGSink) flushWithCopy() error {
	if len(s.batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(s.ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(s.config.Table, pgColumns...))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}
	for _, e := range s.batch {
		r, err := row(e)
		if err != nil {
			stmt.Close()
			return err
		}
		if _, err := stmt.Exec(r...); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy event %s: %w", e.EventID, err)
		}
	}
	if _, err := stmt.Exec(); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to finish copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit copy: %w", err)
	}
	return nil
}

// flushBatch writes the pending batch. On error the batch is kept, trimmed
// to MaxPending, so the next flush retries it. Callers hold s.mu.
func (s *PGSink) flushBatch() error {
	if len(s.batch) == 0 {
		return nil
	}
	if s.db == nil {
		return fmt.Errorf("postgres sink not started")
	}
	var err error
	if s.config.UseCopy {
		err = s.flushWithCopy()
	} else {
		err = s.flushWithInsert()
	}
	if err != nil {
		s.failing = true
		s.trim()
		return err
	}
	s.failing = false
	s.batch = s.batch[:0]
	return nil
}

func (s *PGSink) maxPending() int {
	if s.config.MaxPending > 0 {
		return s.config.MaxPending
	}
	if s.config.BatchSize > 0 {
		return 10 * s.config.BatchSize
	}
	return 5000
}

// trim drops the oldest pending events beyond maxPending. Callers hold s.mu.
func (s *PGSink) trim() {
	drop := len(s.batch) - s.maxPending()
	if drop <= 0 {
		return
	}
	s.batch = append(s.batch[:0], s.batch[drop:]...)
	log.Printf("sink: postgres dropped %d events while the database is failing", drop)
	if s.metrics != nil {
		s.metrics.SinkErrors.WithLabelValues(s.Name(), "dropped").Add(float64(drop))
	}
}

func (s *PGSink) flushRoutine() {
	defer close(s.done)
	interval := time.Duration(s.config.FlushMS) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if err := s.flushBatch(); err != nil {
				log.Printf("sink: postgres flush: %v", err)
			}
			s.mu.Unlock()
		}
	}
}

func (s *PGSink) Enqueue(e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = append(s.batch, e)
	if len(s.batch) < s.config.BatchSize {
		return nil
	}
	if s.failing {
		s.trim()
		return nil
	}
	return s.flushBatch()
}

func (s *PGSink) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
	if s.db == nil {
		return nil
	}
	s.mu.Lock()
	// The routine context is gone; the final flush gets its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.ctx = ctx
	err := s.flushBatch()
	s.mu.Unlock()

	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	s.db = nil
	return err
}

func (s *PGSink) Name() string { return "postgres" }

func getIntEnv(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
