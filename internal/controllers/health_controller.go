package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthChecker interface {
	Health(ctx context.Context) error
}

type healthController struct{ ledger HealthChecker }

func NewHealthController(ledger HealthChecker) *healthController {
	return &healthController{ledger: ledger}
}

func (h *healthController) Handle(c *gin.Context) {
	body := gin.H{"status": "healthy", "service": "comfyq"}
	if h.ledger != nil {
		if err := h.ledger.Health(c.Request.Context()); err != nil {
			body["status"] = "degraded"
			body["ledger"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(http.StatusOK, body)
}
