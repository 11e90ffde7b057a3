// Package transport exposes the engine's HTTP surface (spec section 6):
// POST /search, POST /search/stream and GET /healthz, served by gin.
package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/superagent/legalengine/internal/models"
)

// SearchRunner is the subset of *orchestrator.Orchestrator the transport
// layer depends on, kept as an interface so handlers are testable without a
// real graph store or embedding gateway behind them.
type SearchRunner interface {
	Search(ctx context.Context, req models.SearchRequest, emit models.Emitter) (*models.SearchResponse, error)
}

// HealthChecker reports whether a backing dependency is reachable, in the
// style of the teacher's HTTPHealthChecker.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// Server wraps a gin engine around a SearchRunner and a set of health checks.
type Server struct {
	engine   *gin.Engine
	runner   SearchRunner
	checkers []HealthChecker
	log      *logrus.Entry
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	}
}

func New(runner SearchRunner, checkers []HealthChecker, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	s := &Server{
		runner:   runner,
		checkers: checkers,
		log:      log.WithField("component", "transport"),
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.correlationID(), s.accessLog())
	s.routes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.POST("/search", s.handleSearch)
	s.engine.POST("/search/stream", s.handleSearchStream)
}

// correlationID assigns a request id, or keeps a caller-supplied
// X-Correlation-Id, stores it on the gin context for the access log and
// echoes it in the response header. It is not attached to the request's
// context.Context.
func (s *Server) correlationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Correlation-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(correlationIDKey, id)
		c.Header("X-Correlation-Id", id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"correlation_id": correlationID(c),
			"path":           c.Request.URL.Path,
			"status":         c.Writer.Status(),
			"elapsed_ms":     time.Since(start).Milliseconds(),
		}).Info("request handled")
	}
}

const correlationIDKey = "correlation_id"

func correlationID(c *gin.Context) string {
	if v, ok := c.Get(correlationIDKey); ok {
		return v.(string)
	}
	return ""
}

// handleHealth reports graph store, vector index, cache and embedding
// gateway reachability (SPEC_FULL.md supplement 2).
func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	body := gin.H{}
	for _, chk := range s.checkers {
		if err := chk.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body[chk.Name()] = err.Error()
		} else {
			body[chk.Name()] = "ok"
		}
	}
	c.JSON(status, body)
}
