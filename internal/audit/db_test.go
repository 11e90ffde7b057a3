package audit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superagent/legalengine/internal/models"
)

func TestConfigConnStringDefaultsSSLModeToDisable(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d"}
	assert.Equal(t, "postgres://u:p@db:5432/d?sslmode=disable", cfg.connString())
}

func TestConfigConnStringHonorsExplicitSSLMode(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "require"}
	assert.Equal(t, "postgres://u:p@db:5432/d?sslmode=require", cfg.connString())
}

func TestFromResponseWithNilResponseRecordsErrorOnly(t *testing.T) {
	rec := FromResponse("corr-1", "termination notice", nil, 120*time.Millisecond, models.KindSearchUnavailable)

	assert.Equal(t, "corr-1", rec.CorrelationID)
	assert.Equal(t, "termination notice", rec.Query)
	assert.Equal(t, int64(120), rec.ElapsedMs)
	assert.Equal(t, string(models.KindSearchUnavailable), rec.ErrorKind)
	assert.Equal(t, "", rec.PrimaryDomain)
	assert.Equal(t, 0, rec.ResultCount)
}

func TestFromResponseProjectsStatsFromCompletedSearch(t *testing.T) {
	resp := &models.SearchResponse{
		PrimaryDomain: "Labor",
		Results:       []models.ResultDTO{{ProvisionID: "p1"}, {ProvisionID: "p2"}},
		Stats: models.SearchStats{
			DomainsQueried: 2,
			A2ATriggered:   true,
			LLMCalls:       3,
		},
		SynthesizedAnswer: &models.SynthesizedAnswer{Summary: "ok"},
	}

	rec := FromResponse("corr-2", "q", resp, 50*time.Millisecond, "")

	assert.Equal(t, "Labor", rec.PrimaryDomain)
	assert.Equal(t, 2, rec.ResultCount)
	assert.Equal(t, 2, rec.DomainsQueried)
	assert.True(t, rec.A2ATriggered)
	assert.Equal(t, 3, rec.LLMCalls)
	assert.True(t, rec.Synthesized)
	assert.Equal(t, "", rec.ErrorKind)
}

// TestPostgresStoreAgainstRealDatabase exercises NewPostgresStore and Record
// end to end against the PostgreSQL instance at localhost:5432 (user
// legalengine, database legalengine_test). It only runs when
// AUDIT_TEST_DATABASE_URL is set; the variable's value is not used for the
// connection. This matches how this codebase skips integration tests that
// need a live backing service.
func TestPostgresStoreAgainstRealDatabase(t *testing.T) {
	dsn := os.Getenv("AUDIT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AUDIT_TEST_DATABASE_URL not set, skipping live audit database test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := NewPostgresStore(ctx, Config{Host: "localhost", Port: 5432, User: "legalengine", Database: "legalengine_test"}, nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.HealthCheck(ctx))
	require.NoError(t, store.Record(ctx, Record{
		CorrelationID: "it-1",
		Query:         "integration test query",
		PrimaryDomain: "Labor",
		ResultCount:   1,
	}))
}
