package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/superagent/legalengine/internal/audit"
	"github.com/superagent/legalengine/internal/cache"
	"github.com/superagent/legalengine/internal/config"
	"github.com/superagent/legalengine/internal/domainregistry"
	"github.com/superagent/legalengine/internal/embedding"
	"github.com/superagent/legalengine/internal/embeddingclient"
	"github.com/superagent/legalengine/internal/expansion"
	"github.com/superagent/legalengine/internal/graphstore"
	"github.com/superagent/legalengine/internal/models"
	"github.com/superagent/legalengine/internal/observability"
	"github.com/superagent/legalengine/internal/orchestrator"
	"github.com/superagent/legalengine/internal/retrieval"
	"github.com/superagent/legalengine/internal/transport"
)

var (
	configFile = flag.String("config", "", "Path to configuration file (YAML)")
	version    = flag.Bool("version", false, "Show version information")
	help       = flag.Bool("help", false, "Show this help message")
)

func main() {
	flag.Parse()

	if *help {
		showHelp()
		return
	}
	if *version {
		showVersion()
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("legal engine failed")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := observability.InitTracing(ctx, "legalengine", observability.TracingEndpoint{
		URL:     httpBaseURL(cfg.Services.Tracing),
		Enabled: cfg.Services.Tracing.Enabled,
	}, false, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer tracerProvider.Shutdown(context.Background())

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	// Neo4j and Qdrant back every other component below (registry, retrieval,
	// expansion all hold a graphstore.GraphStore); unlike Redis/Postgres/LLM
	// there is no degraded mode that makes sense without them, regardless of
	// how their Required flag is configured.
	neo4jStore, err := graphstore.NewNeo4jStore(ctx, graphstore.Config{
		Neo4jURI:         neo4jURI(cfg.Services.Neo4j),
		Neo4jUser:        cfg.Services.Neo4jUser,
		Neo4jPassword:    cfg.Services.Neo4jPassword,
		Neo4jDatabase:    cfg.Services.Neo4jDatabase,
		RetryMaxAttempts: cfg.Services.Neo4j.RetryCount,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect to neo4j: %w", err)
	}
	defer neo4jStore.Close(context.Background())

	vectorIndex, err := graphstore.NewVectorIndex(graphstore.VectorIndexConfig{
		Host:   cfg.Services.Qdrant.Host,
		Port:   cfg.Services.Qdrant.Port,
		APIKey: cfg.Services.QdrantAPIKey,
		UseTLS: cfg.Services.QdrantTLS,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect to qdrant: %w", err)
	}
	defer vectorIndex.Close()

	store := graphstore.NewCompositeStore(neo4jStore, vectorIndex)

	redisClient := cache.NewRedisClient(cache.Config{
		Addr:     cfg.Services.Redis.ResolvedURL(),
		Password: cfg.Services.RedisPassword,
		DB:       cfg.Services.RedisDB,
	})
	defer redisClient.Close()

	nodeEmbedder := embeddingclient.NewNodeEmbeddingClient(
		httpBaseURL(cfg.Services.NodeEmbedding), "", cfg.Services.NodeEmbedding.Timeout)
	relationEmbedder := embeddingclient.NewRelationEmbeddingClient(
		httpBaseURL(cfg.Services.RelationEmbedding), "", cfg.Services.RelationEmbedding.Timeout)
	llmClient := embeddingclient.NewLLMHTTPClient(
		httpBaseURL(cfg.Services.LLM), cfg.Services.LLMAPIKey, cfg.Services.LLM.Timeout)

	gateway := embedding.NewGateway(nodeEmbedder, relationEmbedder, llmClient, redisClient, embedding.Config{}, logger)

	registry := domainregistry.New(store, gateway, cfg.Tuning.DomainRegistry, logger)
	existingDomains, err := neo4jStore.ListDomains(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to list existing domains, starting with an empty registry")
	}
	existingAssignments, err := neo4jStore.ListAssignments(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to list existing domain assignments")
	}
	// candidateProvisions is nil: cold-start k-means clustering needs a pool
	// of embedded-but-unassigned provisions, which would have to come from
	// the (out-of-scope) ingestion pipeline staging them somewhere
	// queryable. A warm restart rehydrates from existingDomains and
	// existingAssignments instead; a genuinely empty graph starts with zero
	// domains until AssignIncremental is driven externally.
	if err := registry.Bootstrap(ctx, existingDomains, existingAssignments, nil); err != nil {
		logger.WithError(err).Warn("domain registry bootstrap failed, starting empty")
	}

	retriever := retrieval.New(store, cfg.Tuning.Retrieval, logger)
	expander := expansion.New(store, cfg.Tuning.Expansion, logger)
	orch := orchestrator.New(registry, store, retriever, expander, gateway, cfg.Tuning.Orchestrator, logger)

	var auditStore *audit.PostgresStore
	if cfg.Audit.Enabled {
		auditStore, err = audit.NewPostgresStore(ctx, audit.Config{
			Host:     cfg.Services.Postgres.Host,
			Port:     cfg.Services.Postgres.Port,
			User:     cfg.Services.PostgresUser,
			Password: cfg.Services.PostgresPassword,
			Database: cfg.Services.PostgresDatabase,
			SSLMode:  cfg.Services.PostgresSSLMode,
		}, logger)
		if err != nil {
			if cfg.Services.Postgres.Required {
				return fmt.Errorf("connect to audit database: %w", err)
			}
			logger.WithError(err).Warn("audit database unavailable at startup, continuing without an audit trail")
		} else {
			defer auditStore.Close()
		}
	}

	runner := &auditingOrchestrator{inner: orch, audit: auditStore, metrics: metrics, log: logger.WithField("component", "main")}

	checkers := []transport.HealthChecker{
		namedChecker{"neo4j", neo4jStore.Ping},
		namedChecker{"qdrant", vectorIndex.Ping},
		namedChecker{"redis", redisClient.Ping},
	}
	if auditStore != nil {
		checkers = append(checkers, namedChecker{"postgres", auditStore.HealthCheck})
	}

	server := transport.New(runner, checkers, logger)
	server.Engine().GET("/metrics", gin.WrapH(promhttp.Handler()))

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"host": cfg.Server.Host, "port": cfg.Server.Port}).Info("starting legal engine server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server shutdown complete")
	return nil
}

// auditingOrchestrator wraps the orchestrator with metrics and the audit
// trail, so transport's SearchRunner dependency carries no knowledge of
// either concern.
type auditingOrchestrator struct {
	inner   *orchestrator.Orchestrator
	audit   *audit.PostgresStore
	metrics *observability.Metrics
	log     *logrus.Entry
}

func (a *auditingOrchestrator) Search(ctx context.Context, req models.SearchRequest, emit models.Emitter) (*models.SearchResponse, error) {
	correlationID := uuid.NewString()
	start := time.Now()

	resp, err := a.inner.Search(ctx, req, emit)
	elapsed := time.Since(start)

	status := "complete"
	errKind := models.ErrorKind("")
	if err != nil {
		errKind = models.KindOf(err)
		status = "error"
		if errKind == models.KindNoResults {
			status = "no_results"
		}
	}
	a.metrics.RequestsTotal.WithLabelValues(status).Inc()
	if resp != nil {
		a.metrics.ResultsReturned.Observe(float64(len(resp.Results)))
		if resp.Stats.A2ATriggered {
			a.metrics.A2ATriggeredTotal.Inc()
		}
	}

	if a.audit != nil {
		rec := audit.FromResponse(correlationID, req.Query, resp, elapsed, errKind)
		if recErr := a.audit.Record(context.Background(), rec); recErr != nil {
			a.log.WithError(recErr).Warn("failed to persist search audit record")
		}
	}

	return resp, err
}

// namedChecker adapts a bare health-check function to transport.HealthChecker.
type namedChecker struct {
	name string
	fn   func(ctx context.Context) error
}

func (c namedChecker) Name() string                   { return c.name }
func (c namedChecker) Check(ctx context.Context) error { return c.fn(ctx) }

// httpBaseURL turns an endpoint into a dialable base URL. An explicit URL
// override is trusted as-is (it may already carry its own scheme); a
// host:port pair built by ResolvedURL never does, so it gets a plain http://
// prefix.
func httpBaseURL(ep config.ServiceEndpoint) string {
	resolved := ep.ResolvedURL()
	if ep.URL != "" || strings.Contains(resolved, "://") {
		return resolved
	}
	return "http://" + resolved
}

// neo4jURI applies the same explicit-override-wins rule as httpBaseURL, for
// the bolt/neo4j scheme the driver expects instead of http.
func neo4jURI(ep config.ServiceEndpoint) string {
	resolved := ep.ResolvedURL()
	if ep.URL != "" || strings.Contains(resolved, "://") {
		return resolved
	}
	return "neo4j://" + resolved
}

func showHelp() {
	fmt.Printf(`legalengine - self-organizing legal corpus retrieval engine

Usage:
  legalengine [options]

Options:
  -config string
        Path to configuration file (YAML)
  -version
        Show version information
  -help
        Show this help message
`)
}

func showVersion() {
	fmt.Printf("legalengine v%s\n", "0.1.0")
}
