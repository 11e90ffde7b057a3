// Package config builds the engine's runtime configuration from environment
// variables, with an optional YAML file providing defaults that the
// environment then overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/superagent/legalengine/internal/domainregistry"
	"github.com/superagent/legalengine/internal/expansion"
	"github.com/superagent/legalengine/internal/orchestrator"
	"github.com/superagent/legalengine/internal/retrieval"
)

// Config is the engine's full runtime configuration: where its backing
// services live, and how its retrieval/orchestration stages are tuned.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Services ServicesConfig `yaml:"services"`
	Tuning   TuningConfig   `yaml:"tuning"`
	Audit    AuditConfig    `yaml:"audit"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the gin HTTP server's own listen address and
// timeouts, independent of the backing services it calls out to.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	Mode         string        `yaml:"mode"` // "debug" or "release"
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig controls the shared logrus logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// AuditConfig controls whether and how search requests are persisted.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ServiceEndpoint describes one backing dependency: where it lives, whether
// the engine can run without it, and how to health-check it.
type ServiceEndpoint struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	URL        string        `yaml:"url"` // full URL override, takes precedence over host:port
	Enabled    bool          `yaml:"enabled"`
	Required   bool          `yaml:"required"` // boot fails if unavailable and required
	HealthPath string        `yaml:"health_path"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
}

// ResolvedURL builds the full URL from host:port, or returns URL if set.
func (e ServiceEndpoint) ResolvedURL() string {
	if e.URL != "" {
		return e.URL
	}
	if e.Host == "" {
		return ""
	}
	if e.Port == 0 {
		return e.Host
	}
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// ServicesConfig holds every infrastructure dependency the engine dials out
// to: the graph store, the vector index, the response cache, the audit
// database, and the embedding/LLM backends (spec section 5, 6.4).
type ServicesConfig struct {
	Neo4j             ServiceEndpoint `yaml:"neo4j"`
	Qdrant            ServiceEndpoint `yaml:"qdrant"`
	Redis             ServiceEndpoint `yaml:"redis"`
	Postgres          ServiceEndpoint `yaml:"postgres"`
	NodeEmbedding     ServiceEndpoint `yaml:"node_embedding"`
	RelationEmbedding ServiceEndpoint `yaml:"relation_embedding"`
	LLM               ServiceEndpoint `yaml:"llm"`
	Tracing           ServiceEndpoint `yaml:"tracing"`

	Neo4jUser     string `yaml:"neo4j_user"`
	Neo4jPassword string `yaml:"neo4j_password"`
	Neo4jDatabase string `yaml:"neo4j_database"`

	QdrantAPIKey string `yaml:"qdrant_api_key"`
	QdrantTLS    bool   `yaml:"qdrant_tls"`

	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"postgres_password"`
	PostgresDatabase string `yaml:"postgres_database"`
	PostgresSSLMode  string `yaml:"postgres_sslmode"`

	LLMAPIKey string `yaml:"llm_api_key"`
}

// AllEndpoints returns every service endpoint as a name->endpoint map, for
// health checking and startup logging.
func (s ServicesConfig) AllEndpoints() map[string]ServiceEndpoint {
	return map[string]ServiceEndpoint{
		"neo4j":              s.Neo4j,
		"qdrant":             s.Qdrant,
		"redis":              s.Redis,
		"postgres":           s.Postgres,
		"node_embedding":     s.NodeEmbedding,
		"relation_embedding": s.RelationEmbedding,
		"llm":                s.LLM,
		"tracing":            s.Tracing,
	}
}

// TuningConfig collects the §6.4 tunables for every stage of the pipeline,
// translated into each package's own Tunables struct at wiring time.
type TuningConfig struct {
	DomainRegistry domainregistry.Tunables `yaml:"domain_registry"`
	Retrieval      retrieval.Tunables      `yaml:"retrieval"`
	Expansion      expansion.Tunables      `yaml:"expansion"`
	Orchestrator   orchestrator.Tunables   `yaml:"orchestrator"`
}

// Load builds a Config from an optional YAML file (path from configPath, if
// non-empty) overlaid with environment variables, which always win. This
// mirrors how the engine's predecessor layered service defaults before
// reading env overrides, minus the services this engine does not use.
func Load(configPath string) (*Config, error) {
	cfg := defaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         "8080",
			Mode:         "release",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Services: ServicesConfig{
			Neo4j: ServiceEndpoint{
				Host: "localhost", Port: 7687, Enabled: true, Required: true,
				Timeout: 10 * time.Second, RetryCount: 6,
			},
			Qdrant: ServiceEndpoint{
				Host: "localhost", Port: 6334, Enabled: true, Required: true,
				Timeout: 10 * time.Second, RetryCount: 6,
			},
			Redis: ServiceEndpoint{
				Host: "localhost", Port: 6379, Enabled: true, Required: false,
				Timeout: 5 * time.Second, RetryCount: 3,
			},
			Postgres: ServiceEndpoint{
				Host: "localhost", Port: 5432, Enabled: true, Required: false,
				Timeout: 10 * time.Second, RetryCount: 6,
			},
			NodeEmbedding: ServiceEndpoint{
				Host: "localhost", Port: 8081, Enabled: true, Required: true,
				HealthPath: "/health", Timeout: 15 * time.Second, RetryCount: 3,
			},
			RelationEmbedding: ServiceEndpoint{
				Host: "localhost", Port: 8082, Enabled: true, Required: true,
				HealthPath: "/health", Timeout: 15 * time.Second, RetryCount: 3,
			},
			LLM: ServiceEndpoint{
				Host: "localhost", Port: 8083, Enabled: true, Required: false,
				HealthPath: "/health", Timeout: 30 * time.Second, RetryCount: 2,
			},
			// Disabled by default: while disabled (or with no URL),
			// tracing falls back to structured logrus spans, so no
			// collector has to be running at this endpoint to boot.
			Tracing: ServiceEndpoint{
				Host: "localhost", Port: 4318, Enabled: false, Required: false,
				Timeout: 10 * time.Second, RetryCount: 3,
			},
			Neo4jDatabase:    "neo4j",
			PostgresUser:     "legalengine",
			PostgresDatabase: "legalengine",
			PostgresSSLMode:  "disable",
		},
		Audit: AuditConfig{Enabled: true},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyEnvOverrides mutates cfg in place, following the env-var-helper idiom
// used throughout this codebase's services: a present, non-empty variable
// always wins over both the YAML file and the built-in default.
func applyEnvOverrides(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Mode = getEnv("GIN_MODE", cfg.Server.Mode)
	cfg.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	applyEndpointEnv(&cfg.Services.Neo4j, "NEO4J")
	applyEndpointEnv(&cfg.Services.Qdrant, "QDRANT")
	applyEndpointEnv(&cfg.Services.Redis, "REDIS")
	applyEndpointEnv(&cfg.Services.Postgres, "POSTGRES")
	applyEndpointEnv(&cfg.Services.NodeEmbedding, "NODE_EMBEDDING")
	applyEndpointEnv(&cfg.Services.RelationEmbedding, "RELATION_EMBEDDING")
	applyEndpointEnv(&cfg.Services.LLM, "LLM")
	applyEndpointEnv(&cfg.Services.Tracing, "TRACING")

	cfg.Services.Neo4jUser = getEnv("NEO4J_USER", cfg.Services.Neo4jUser)
	cfg.Services.Neo4jPassword = getEnv("NEO4J_PASSWORD", cfg.Services.Neo4jPassword)
	cfg.Services.Neo4jDatabase = getEnv("NEO4J_DATABASE", cfg.Services.Neo4jDatabase)

	cfg.Services.QdrantAPIKey = getEnv("QDRANT_API_KEY", cfg.Services.QdrantAPIKey)
	cfg.Services.QdrantTLS = getBoolEnv("QDRANT_TLS", cfg.Services.QdrantTLS)

	cfg.Services.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Services.RedisPassword)
	cfg.Services.RedisDB = getIntEnv("REDIS_DB", cfg.Services.RedisDB)

	cfg.Services.PostgresUser = getEnv("POSTGRES_USER", cfg.Services.PostgresUser)
	cfg.Services.PostgresPassword = getEnv("POSTGRES_PASSWORD", cfg.Services.PostgresPassword)
	cfg.Services.PostgresDatabase = getEnv("POSTGRES_DATABASE", cfg.Services.PostgresDatabase)
	cfg.Services.PostgresSSLMode = getEnv("POSTGRES_SSLMODE", cfg.Services.PostgresSSLMode)

	cfg.Services.LLMAPIKey = getEnv("LLM_API_KEY", cfg.Services.LLMAPIKey)

	cfg.Audit.Enabled = getBoolEnv("AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	applyTuningEnv(&cfg.Tuning)
}

func applyEndpointEnv(ep *ServiceEndpoint, prefix string) {
	ep.Host = getEnv(prefix+"_HOST", ep.Host)
	ep.Port = getIntEnv(prefix+"_PORT", ep.Port)
	ep.URL = getEnv(prefix+"_URL", ep.URL)
	ep.Enabled = getBoolEnv(prefix+"_ENABLED", ep.Enabled)
	ep.Required = getBoolEnv(prefix+"_REQUIRED", ep.Required)
	ep.HealthPath = getEnv(prefix+"_HEALTH_PATH", ep.HealthPath)
	ep.Timeout = getDurationEnv(prefix+"_TIMEOUT", ep.Timeout)
	ep.RetryCount = getIntEnv(prefix+"_RETRY_COUNT", ep.RetryCount)
}

// applyTuningEnv overrides only the tunables an operator is likely to reach
// for at runtime; the rest come from each package's own withDefaults() and
// the optional YAML file.
func applyTuningEnv(t *TuningConfig) {
	dr := &t.DomainRegistry
	dr.MinDomainSize = getIntEnv("TUNING_MIN_DOMAIN_SIZE", dr.MinDomainSize)
	dr.MaxDomainSize = getIntEnv("TUNING_MAX_DOMAIN_SIZE", dr.MaxDomainSize)
	dr.SimilarityJoinThreshold = getFloatEnv("TUNING_SIMILARITY_JOIN_THRESHOLD", dr.SimilarityJoinThreshold)
	dr.KMin = getIntEnv("TUNING_KMIN", dr.KMin)
	dr.KMax = getIntEnv("TUNING_KMAX", dr.KMax)

	rt := &t.Retrieval
	rt.ExpansionFactor = getIntEnv("TUNING_EXPANSION_FACTOR", rt.ExpansionFactor)
	rt.NodeSimFloor = getFloatEnv("TUNING_NODE_SIM_FLOOR", rt.NodeSimFloor)
	rt.RRFK = getFloatEnv("TUNING_RRF_K", rt.RRFK)
	rt.ExactMatchBonus = getFloatEnv("TUNING_EXACT_MATCH_BONUS", rt.ExactMatchBonus)
	rt.ExcludedSectionTokens = getEnvSlice("TUNING_EXCLUDED_SECTION_TOKENS", rt.ExcludedSectionTokens)
	rt.ChannelWorkers = getIntEnv("TUNING_CHANNEL_WORKERS", rt.ChannelWorkers)

	ex := &t.Expansion
	ex.SimilarityThreshold = getFloatEnv("TUNING_EXPANSION_SIMILARITY_THRESHOLD", ex.SimilarityThreshold)
	ex.MaxExpanded = getIntEnv("TUNING_MAX_EXPANDED", ex.MaxExpanded)

	or := &t.Orchestrator
	or.RouteCandidates = getIntEnv("TUNING_ROUTE_CANDIDATES", or.RouteCandidates)
	or.PeerCandidates = getIntEnv("TUNING_PEER_CANDIDATES", or.PeerCandidates)
	or.MaxPeers = getIntEnv("TUNING_MAX_PEERS", or.MaxPeers)
	or.LLMWeight = getFloatEnv("TUNING_LLM_WEIGHT", or.LLMWeight)
	or.QualityFloor = getFloatEnv("TUNING_QUALITY_FLOOR", or.QualityFloor)
	or.MinResults = getIntEnv("TUNING_MIN_RESULTS", or.MinResults)
	or.RAESeeds = getIntEnv("TUNING_RAE_SEEDS", or.RAESeeds)
	or.SynthTopN = getIntEnv("TUNING_SYNTH_TOP_N", or.SynthTopN)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		return strings.Split(v, ",")
	}
	return defaultValue
}
