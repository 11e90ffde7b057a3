package transport

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/superagent/legalengine/internal/models"
)

// searchRequestBody is the validated wire shape of both /search and
// /search/stream bodies (spec 6.1: limit default 10, max 50).
type searchRequestBody struct {
	Query      string `json:"query" binding:"required,notblank"`
	Limit      int    `json:"limit" binding:"omitempty,min=1,max=50"`
	Synthesize bool   `json:"synthesize"`
	TimeoutMs  int    `json:"timeout_ms" binding:"omitempty,min=0"`
}

func (b searchRequestBody) toRequest() models.SearchRequest {
	limit := b.Limit
	if limit == 0 {
		limit = 10
	}
	return models.SearchRequest{
		Query:      b.Query,
		Limit:      limit,
		Synthesize: b.Synthesize,
		TimeoutMs:  b.TimeoutMs,
	}
}

// handleSearch implements POST /search (spec 6.1).
func (s *Server) handleSearch(c *gin.Context) {
	var body searchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBadRequest(c, err)
		return
	}

	ctx, cancel := withRequestDeadline(c, body.TimeoutMs)
	defer cancel()

	resp, err := s.runner.Search(ctx, body.toRequest(), nil)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleSearchStream implements POST /search/stream (spec 6.2/6.3): an SSE
// stream of progress frames, each `data: <json>\n\n`, terminated by a
// complete or error frame.
func (s *Server) handleSearchStream(c *gin.Context) {
	var body searchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBadRequest(c, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeEngineError(c, models.NewError(models.KindSearchUnavailable, "streaming not supported by this transport", nil))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx, cancel := withRequestDeadline(c, body.TimeoutMs)
	defer cancel()

	emit := models.Emitter(func(ev models.ProgressEvent) {
		writeFrame(c.Writer, ev)
		flusher.Flush()
	})

	// Search emits its own terminal complete/error frame on every path
	// (spec 4.6.6): the returned error is already reflected on the wire,
	// so there is nothing left to write here.
	_, _ = s.runner.Search(ctx, body.toRequest(), emit)
}

func writeFrame(w http.ResponseWriter, ev models.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
}
