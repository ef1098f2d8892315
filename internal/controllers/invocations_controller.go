package controllers

import (
	"net/http"
	"strconv"

	"github.com/osvaldoandrade/comfyq/internal/services"
	"github.com/osvaldoandrade/comfyq/pkg/domain"

	"github.com/gin-gonic/gin"
)

const defaultListLimit = 100

type startInvocationController struct{ svc services.InvocationService }

func NewStartInvocationController(svc services.InvocationService) *startInvocationController {
	return &startInvocationController{svc: svc}
}

type startReq struct {
	Params  domain.Params `json:"params"`
	Webhook string        `json:"webhook,omitempty"`
}

func (h *startInvocationController) Handle(c *gin.Context) {
	var req startReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if req.Params == nil {
		req.Params = domain.Params{}
	}
	inv, err := h.svc.Start(c.Request.Context(), c.Param("name"), req.Params, req.Webhook)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Location", "/v1/invocations/"+inv.ID)
	c.JSON(http.StatusAccepted, inv)
}

type getInvocationController struct{ svc services.InvocationService }

func NewGetInvocationController(svc services.InvocationService) *getInvocationController {
	return &getInvocationController{svc: svc}
}

func (h *getInvocationController) Handle(c *gin.Context) {
	inv, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invocation": inv, "result": inv.Payload()})
}

type listInvocationsController struct{ svc services.InvocationService }

func NewListInvocationsController(svc services.InvocationService) *listInvocationsController {
	return &listInvocationsController{svc: svc}
}

func (h *listInvocationsController) Handle(c *gin.Context) {
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' (must be > 0)"})
			return
		}
		limit = n
	}
	items, err := h.svc.ListActive(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []*domain.Invocation{}
	}
	c.JSON(http.StatusOK, gin.H{"invocations": items})
}
