package controllers

import (
	"net/http"

	"github.com/osvaldoandrade/comfyq/internal/services"
	"github.com/osvaldoandrade/comfyq/pkg/domain"

	"github.com/gin-gonic/gin"
)

type listModelsController struct{ catalog services.ModelCatalog }

func NewListModelsController(catalog services.ModelCatalog) *listModelsController {
	return &listModelsController{catalog: catalog}
}

func (h *listModelsController) Handle(c *gin.Context) {
	models := h.catalog.Models()
	if models == nil {
		models = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

type refreshModelsController struct{ catalog services.ModelCatalog }

func NewRefreshModelsController(catalog services.ModelCatalog) *refreshModelsController {
	return &refreshModelsController{catalog: catalog}
}

func (h *refreshModelsController) Handle(c *gin.Context) {
	models, err := h.catalog.Refresh(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, domain.ErrorPayload(err))
		return
	}
	if models == nil {
		models = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}
