package controllers

import (
	"net/http"

	"github.com/osvaldoandrade/comfyq/internal/services"
	"github.com/osvaldoandrade/comfyq/pkg/domain"

	"github.com/gin-gonic/gin"
)

type invokeToolController struct {
	svc    services.InvocationService
	tool   string
	stable bool
}

// NewInvokeToolController serves POST /v1/tools/:name.
func NewInvokeToolController(svc services.InvocationService) *invokeToolController {
	return &invokeToolController{svc: svc}
}

// NewLegacyInvokeController serves POST /<tool>. It always answers 200 with
// either the result or {"error": ...}.
func NewLegacyInvokeController(svc services.InvocationService, tool string) *invokeToolController {
	return &invokeToolController{svc: svc, tool: tool, stable: true}
}

func (h *invokeToolController) Handle(c *gin.Context) {
	params, err := bindParams(c)
	if err == nil {
		var res domain.ToolResult
		res, err = h.svc.Run(c.Request.Context(), toolName(c, h.tool), params, services.ModeSync)
		if err == nil {
			c.JSON(http.StatusOK, resultBody(res))
			return
		}
	}
	if h.stable {
		c.JSON(http.StatusOK, domain.ErrorPayload(err))
		return
	}
	respondError(c, err)
}
