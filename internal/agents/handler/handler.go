package handler

import (
	"net/http"

	"visa_broker_backend/internal/agents/service"
	"visa_broker_backend/internal/agents/transport"
	"visa_broker_backend/platform/httpkit"
	"visa_broker_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for agents
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new agents handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the agent routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.GetByID)
	rg.GET("/:id/earnings", h.GetEarnings)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	agent, err := h.svc.Create(c.Request.Context(), service.CreateAgentInput{
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		ProfitShareBps: req.ProfitShareBps,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, transport.FromAgent(agent))
}

func (h *Handler) List(c *gin.Context) {
	agents, err := h.svc.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	resp := make([]transport.AgentResponse, 0, len(agents))
	for i := range agents {
		resp = append(resp, transport.FromAgent(&agents[i]))
	}
	httpkit.OK(c, resp)
}

func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	agent, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromAgent(agent))
}

func (h *Handler) GetEarnings(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	earnings, err := h.svc.GetEarnings(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromEarnings(earnings))
}
