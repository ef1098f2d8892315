package controllers

import (
	"net/http"

	"github.com/osvaldoandrade/comfyq/internal/services"

	"github.com/gin-gonic/gin"
)

type listToolsController struct{ svc services.ToolService }

func NewListToolsController(svc services.ToolService) *listToolsController {
	return &listToolsController{svc: svc}
}

func (h *listToolsController) Handle(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": h.svc.Tools()})
}

type getToolController struct{ svc services.ToolService }

func NewGetToolController(svc services.ToolService) *getToolController {
	return &getToolController{svc: svc}
}

func (h *getToolController) Handle(c *gin.Context) {
	tool, err := h.svc.Tool(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool)
}
