// Package audit persists a record of every search request (query, routed
// domain, result counts, A2A activity, elapsed time) to PostgreSQL via pgx,
// for later review (SPEC_FULL.md supplement: request audit trail).
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/superagent/legalengine/internal/models"
)

// Store persists search-request audit records.
type Store interface {
	Record(ctx context.Context, rec Record) error
	HealthCheck(ctx context.Context) error
	Close()
}

// Record is one audited search request.
type Record struct {
	CorrelationID  string
	Query          string
	PrimaryDomain  string
	DomainsQueried int
	ResultCount    int
	A2ATriggered   bool
	LLMCalls       int
	ElapsedMs      int64
	Synthesized    bool
	ErrorKind      string
	CreatedAt      time.Time
}

// PostgresStore implements Store on top of an OptimizedPool.
type PostgresStore struct {
	pool *OptimizedPool
	log  *logrus.Entry
}

// Config holds the PostgreSQL connection parameters.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (c Config) connString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode)
}

// NewPostgresStore dials PostgreSQL with an optimized pool and ensures the
// audit table exists.
func NewPostgresStore(ctx context.Context, cfg Config, log *logrus.Logger) (*PostgresStore, error) {
	if log == nil {
		log = logrus.New()
	}
	entry := log.WithField("component", "audit")

	pool, err := NewOptimizedPool(ctx, cfg.connString(), DefaultPoolOptions())
	if err != nil {
		return nil, models.NewError(models.KindTransientBackend, "failed to connect to audit database", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, models.NewError(models.KindTransientBackend, "failed to apply audit schema", err)
	}

	entry.WithField("database", cfg.Database).Info("audit store connected")
	return &PostgresStore{pool: pool, log: entry}, nil
}

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

CREATE TABLE IF NOT EXISTS search_audit (
	id               UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
	correlation_id   VARCHAR(255) NOT NULL,
	query            TEXT NOT NULL,
	primary_domain   VARCHAR(255) NOT NULL,
	domains_queried  INTEGER NOT NULL DEFAULT 0,
	result_count     INTEGER NOT NULL DEFAULT 0,
	a2a_triggered    BOOLEAN NOT NULL DEFAULT FALSE,
	llm_calls        INTEGER NOT NULL DEFAULT 0,
	elapsed_ms       BIGINT NOT NULL DEFAULT 0,
	synthesized      BOOLEAN NOT NULL DEFAULT FALSE,
	error_kind       VARCHAR(100) DEFAULT '',
	created_at       TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_search_audit_correlation_id ON search_audit(correlation_id);
CREATE INDEX IF NOT EXISTS idx_search_audit_created_at ON search_audit(created_at);
CREATE INDEX IF NOT EXISTS idx_search_audit_primary_domain ON search_audit(primary_domain);
`

// Record inserts one audit row. Failures are the caller's to log-and-ignore:
// an audit write must never fail a search request.
func (s *PostgresStore) Record(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO search_audit
			(correlation_id, query, primary_domain, domains_queried, result_count,
			 a2a_triggered, llm_calls, elapsed_ms, synthesized, error_kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.CorrelationID, rec.Query, rec.PrimaryDomain, rec.DomainsQueried, rec.ResultCount,
		rec.A2ATriggered, rec.LLMCalls, rec.ElapsedMs, rec.Synthesized, rec.ErrorKind,
	)
	return err
}

// HealthCheck verifies the pool can still reach PostgreSQL.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Pool().Ping(ctx)
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// FromResponse builds a Record from a completed search, for the caller
// (transport or orchestrator wiring) to persist.
func FromResponse(correlationID, query string, resp *models.SearchResponse, elapsed time.Duration, errKind models.ErrorKind) Record {
	rec := Record{
		CorrelationID: correlationID,
		Query:         query,
		ElapsedMs:     elapsed.Milliseconds(),
		ErrorKind:     string(errKind),
	}
	if resp != nil {
		rec.PrimaryDomain = resp.PrimaryDomain
		rec.ResultCount = len(resp.Results)
		rec.DomainsQueried = resp.Stats.DomainsQueried
		rec.A2ATriggered = resp.Stats.A2ATriggered
		rec.LLMCalls = resp.Stats.LLMCalls
		rec.Synthesized = resp.SynthesizedAnswer != nil
	}
	return rec
}
