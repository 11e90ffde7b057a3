// Package embedding provides the deterministic request/response interface to
// the node-embedding model, the relation-embedding model and the LLM used
// for structured assessments (spec 4.2).
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/superagent/legalengine/internal/cache"
	"github.com/superagent/legalengine/internal/models"
)

// NodeEmbedder calls the external node-embedding model.
type NodeEmbedder interface {
	EmbedNode(ctx context.Context, text string) ([]float32, error)
}

// RelationEmbedder calls the external relation-embedding model.
type RelationEmbedder interface {
	EmbedRelation(ctx context.Context, text string) ([]float32, error)
}

// LLMClient calls the external chat/completion endpoint.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Gateway is the embedding/LLM facade the rest of the engine depends on.
// It is safe for concurrent use.
type Gateway struct {
	nodeModel     NodeEmbedder
	relationModel RelationEmbedder
	llm           LLMClient

	cache *cache.RedisClient
	ttl   time.Duration

	nodeBreaker     *gobreaker.CircuitBreaker
	relationBreaker *gobreaker.CircuitBreaker
	llmBreaker      *gobreaker.CircuitBreaker

	group singleflight.Group

	llmRetryMax int
	log         *logrus.Entry
}

// Config tunes breaker thresholds, cache TTL and LLM retry bound.
type Config struct {
	CacheTTL          time.Duration
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
	LLMRetryMax        int
}

func (c Config) withDefaults() Config {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 24 * time.Hour
	}
	if c.BreakerMaxRequests == 0 {
		c.BreakerMaxRequests = 3
	}
	if c.BreakerInterval == 0 {
		c.BreakerInterval = 10 * time.Second
	}
	if c.BreakerTimeout == 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	if c.LLMRetryMax <= 0 {
		c.LLMRetryMax = 2
	}
	return c
}

func newBreaker(name string, cfg Config, log *logrus.Entry) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 3 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(n string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": n, "from": from, "to": to}).Warn("embedding gateway breaker state change")
		},
	})
}

// NewGateway wires a Gateway from its upstream clients and a cache backend.
func NewGateway(node NodeEmbedder, relation RelationEmbedder, llm LLMClient, redisCache *cache.RedisClient, cfg Config, log *logrus.Logger) *Gateway {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logrus.New()
	}
	entry := log.WithField("component", "embedding.gateway")
	return &Gateway{
		nodeModel:       node,
		relationModel:   relation,
		llm:             llm,
		cache:           redisCache,
		ttl:             cfg.CacheTTL,
		nodeBreaker:     newBreaker("embed_node", cfg, entry),
		relationBreaker: newBreaker("embed_relation", cfg, entry),
		llmBreaker:      newBreaker("llm", cfg, entry),
		llmRetryMax:     cfg.LLMRetryMax,
		log:             entry,
	}
}

// EmbedOptions lets a caller bypass the cache for debugging, per spec 4.2.
type EmbedOptions struct {
	BypassCache bool
}

func cacheKey(namespace, text string) string {
	sum := sha256.Sum256([]byte(text))
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// EmbedNode returns the L2-normalized node-space embedding of text.
func (g *Gateway) EmbedNode(ctx context.Context, text string, opts EmbedOptions) ([]float32, error) {
	return g.embed(ctx, "embed:node", text, opts, g.nodeBreaker, g.nodeModel.EmbedNode)
}

// EmbedRelation returns the L2-normalized relation-space embedding of text.
func (g *Gateway) EmbedRelation(ctx context.Context, text string, opts EmbedOptions) ([]float32, error) {
	return g.embed(ctx, "embed:rel", text, opts, g.relationBreaker, g.relationModel.EmbedRelation)
}

func (g *Gateway) embed(ctx context.Context, namespace, text string, opts EmbedOptions, breaker *gobreaker.CircuitBreaker, call func(context.Context, string) ([]float32, error)) ([]float32, error) {
	key := cacheKey(namespace, text)

	if !opts.BypassCache && g.cache != nil {
		var cached []float32
		if err := g.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !cache.IsMiss(err) {
			g.log.WithError(err).Warn("embedding cache read failed, falling through to upstream")
		}
	}

	result, err, _ := g.group.Do(key, func() (any, error) {
		out, err := breaker.Execute(func() (any, error) {
			return call(ctx, text)
		})
		if err != nil {
			return nil, err
		}
		return normalize(out.([]float32)), nil
	})
	if err != nil {
		return nil, models.NewError(models.KindEmbeddingUnavailable, "embedding upstream call failed", err)
	}

	vector := result.([]float32)
	if !opts.BypassCache && g.cache != nil {
		if err := g.cache.Set(ctx, key, vector, g.ttl); err != nil {
			g.log.WithError(err).Warn("embedding cache write failed")
		}
	}
	return vector, nil
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}

// StructuredOptions bounds the LLM retry policy for llm_structured.
type StructuredOptions struct {
	MaxRetries int
}

// LLMStructured calls the LLM, parses the response against schema by
// attempting json.Unmarshal into a generic map and validating the presence
// of schema's keys, retrying on parse failure up to MaxRetries (or the
// gateway default).
func (g *Gateway) LLMStructured(ctx context.Context, prompt string, schema []string, opts StructuredOptions) (map[string]any, string, error) {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = g.llmRetryMax
	}

	var lastRaw string
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		raw, err := g.llmBreaker.Execute(func() (any, error) {
			return g.llm.Complete(ctx, prompt)
		})
		if err != nil {
			return nil, "", models.NewError(models.KindLLMUnavailable, "llm call failed", err)
		}
		text := raw.(string)
		lastRaw = text

		parsed, perr := parseJSONObject(text, schema)
		if perr == nil {
			return parsed, text, nil
		}
		lastErr = perr
	}
	return nil, lastRaw, models.NewError(models.KindLLMUnavailable, "llm response never matched schema", lastErr)
}

func parseJSONObject(text string, requiredKeys []string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, err
	}
	for _, key := range requiredKeys {
		if _, ok := obj[key]; !ok {
			return nil, models.NewError(models.KindBadRequest, "llm response missing required key "+key, nil)
		}
	}
	return obj, nil
}
