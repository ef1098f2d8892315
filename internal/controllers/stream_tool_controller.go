package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/osvaldoandrade/comfyq/internal/middleware"
	"github.com/osvaldoandrade/comfyq/internal/services"
	"github.com/osvaldoandrade/comfyq/pkg/domain"

	"github.com/gin-gonic/gin"
)

type streamToolController struct {
	svc  services.InvocationService
	tool string
}

// NewStreamToolController serves POST /v1/tools/:name/stream.
func NewStreamToolController(svc services.InvocationService) *streamToolController {
	return &streamToolController{svc: svc}
}

// NewLegacyStreamController serves POST /<tool>_stream.
func NewLegacyStreamController(svc services.InvocationService, tool string) *streamToolController {
	return &streamToolController{svc: svc, tool: tool}
}

func (h *streamToolController) Handle(c *gin.Context) {
	name := toolName(c, h.tool)
	params, err := bindParams(c)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Status(http.StatusOK)

	logger := middleware.Logger(c)
	send := func(v any) {
		b, err := json.Marshal(v)
		if err != nil {
			logger.Error("sse encode failed", "tool", name, "err", err)
			return
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", b); err != nil {
			logger.Debug("sse write failed", "tool", name, "err", err)
			return
		}
		c.Writer.Flush()
	}

	// Progress callbacks run on this goroutine, so writes never interleave.
	res, err := h.svc.Run(c.Request.Context(), name, params, services.ModeStream,
		services.WithProgress(func(ev domain.ProgressEvent) { send(ev) }))
	if err != nil {
		ev := domain.ErrorPayload(err)
		ev["status"] = "error"
		send(ev)
		return
	}
	send(gin.H{"status": "complete", "result": resultBody(res)})
}
