package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		original, had := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				os.Setenv(key, original)
			} else {
				os.Unsetenv(key)
			}
		})
	}
}

func TestLoadDefaultsWithNoFileOrEnv(t *testing.T) {
	clearEnv(t, "SERVER_PORT", "NEO4J_HOST", "NEO4J_PORT", "REDIS_ENABLED", "TUNING_MIN_RESULTS")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Services.Neo4j.Host)
	assert.Equal(t, 7687, cfg.Services.Neo4j.Port)
	assert.True(t, cfg.Services.Neo4j.Required)
	assert.True(t, cfg.Services.Redis.Enabled)
	assert.False(t, cfg.Services.Redis.Required)
	assert.Equal(t, "neo4j", cfg.Services.Neo4jDatabase)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	clearEnv(t, "SERVER_PORT", "NEO4J_HOST", "NEO4J_PORT", "TUNING_MIN_RESULTS", "TUNING_QUALITY_FLOOR")
	os.Setenv("SERVER_PORT", "9090")
	os.Setenv("NEO4J_HOST", "neo4j.internal")
	os.Setenv("NEO4J_PORT", "7688")
	os.Setenv("TUNING_MIN_RESULTS", "5")
	os.Setenv("TUNING_QUALITY_FLOOR", "0.42")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "neo4j.internal", cfg.Services.Neo4j.Host)
	assert.Equal(t, 7688, cfg.Services.Neo4j.Port)
	assert.Equal(t, 5, cfg.Tuning.Orchestrator.MinResults)
	assert.InDelta(t, 0.42, cfg.Tuning.Orchestrator.QualityFloor, 1e-9)
}

func TestLoadYAMLFileOverlaysDefaultsAndEnvWins(t *testing.T) {
	clearEnv(t, "NEO4J_HOST", "REDIS_HOST")
	os.Setenv("REDIS_HOST", "redis-from-env")

	dir := t.TempDir()
	path := dir + "/legalengine.yaml"
	yamlBody := []byte("server:\n  port: \"7070\"\nservices:\n  neo4j:\n    host: neo4j-from-file\n  redis:\n    host: redis-from-file\n")
	require.NoError(t, os.WriteFile(path, yamlBody, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "neo4j-from-file", cfg.Services.Neo4j.Host)
	assert.Equal(t, "redis-from-env", cfg.Services.Redis.Host, "env must win over the YAML file")
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/path/legalengine.yaml")
	assert.Error(t, err)
}

func TestResolvedURLPrefersExplicitURL(t *testing.T) {
	ep := ServiceEndpoint{Host: "localhost", Port: 7687, URL: "bolt://override:7687"}
	assert.Equal(t, "bolt://override:7687", ep.ResolvedURL())
}

func TestResolvedURLBuildsFromHostAndPort(t *testing.T) {
	ep := ServiceEndpoint{Host: "neo4j", Port: 7687}
	assert.Equal(t, "neo4j:7687", ep.ResolvedURL())
}

func TestResolvedURLHostOnlyWhenPortZero(t *testing.T) {
	ep := ServiceEndpoint{Host: "neo4j"}
	assert.Equal(t, "neo4j", ep.ResolvedURL())
}

func TestResolvedURLEmptyWhenUnset(t *testing.T) {
	assert.Equal(t, "", ServiceEndpoint{}.ResolvedURL())
}

func TestAllEndpointsCoversEveryDependency(t *testing.T) {
	cfg := defaultConfig()
	endpoints := cfg.Services.AllEndpoints()
	for _, name := range []string{"neo4j", "qdrant", "redis", "postgres", "node_embedding", "relation_embedding", "llm", "tracing"} {
		_, ok := endpoints[name]
		assert.True(t, ok, "missing endpoint %s", name)
	}
}

func TestDefaultServerTimeouts(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
}
