package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/superagent/legalengine/internal/models"
)

// withRequestDeadline applies the request's optional timeout_ms (spec 6.1)
// on top of gin's request context, which is already cancelled when the
// client disconnects.
func withRequestDeadline(c *gin.Context, timeoutMs int) (context.Context, context.CancelFunc) {
	if timeoutMs <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), time.Duration(timeoutMs)*time.Millisecond)
}

func writeBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"kind": string(models.KindBadRequest), "message": err.Error()})
}

// writeEngineError converts an EngineError to the user-visible frame (spec
// 7): {kind, message}, with an HTTP status chosen per kind.
func writeEngineError(c *gin.Context, err error) {
	kind := models.KindOf(err)
	c.JSON(statusForKind(kind), gin.H{"kind": string(kind), "message": err.Error()})
}

func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindBadRequest:
		return http.StatusBadRequest
	case models.KindNotFound, models.KindNoResults:
		return http.StatusNotFound
	case models.KindNotInitialized:
		return http.StatusServiceUnavailable
	case models.KindEmbeddingUnavailable, models.KindLLMUnavailable, models.KindSearchUnavailable, models.KindTransientBackend, models.KindPeerTimeout:
		return http.StatusBadGateway
	case models.KindDeadline, models.KindCancelled:
		return http.StatusGatewayTimeout
	case models.KindConstraintViolation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
