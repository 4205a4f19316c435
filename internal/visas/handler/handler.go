package handler

import (
	"net/http"

	"visa_broker_backend/internal/visas/domain"
	"visa_broker_backend/internal/visas/service"
	"visa_broker_backend/internal/visas/transport"
	"visa_broker_backend/platform/httpkit"
	"visa_broker_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for visas
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new visas handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the visa routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.GetByID)
	rg.POST("/:id/expenses", h.RecordExpense)
	rg.GET("/:id/expenses", h.ListExpenses)
	rg.PUT("/:id/stage/complete", h.CompleteStage)
	rg.PUT("/:id/stage/skip", h.SkipStage)
	rg.POST("/:id/arrival-verification", h.VerifyArrival)
	rg.GET("/:id/arrival-status", h.GetArrivalStatus)
	rg.GET("/:id/replacement-eligibility", h.GetReplacementEligibility)
	rg.PUT("/:id/sell", h.Sell)
	rg.PUT("/:id/cancel", h.Cancel)
	rg.POST("/:id/replace", h.Replace)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateVisaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	detail, err := h.svc.Create(c.Request.Context(), service.CreateVisaInput{
		HolderName:        req.HolderName,
		HolderNationality: req.HolderNationality,
		PassportNumber:    req.PassportNumber,
		VisaNumber:        req.VisaNumber,
		HolderContact:     req.HolderContact,
		AgentID:           req.AgentID,
		HardDeadline:      req.HardDeadline,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, transport.FromVisaDetail(detail))
}

func (h *Handler) List(c *gin.Context) {
	var req transport.ListVisasRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	result, err := h.svc.List(c.Request.Context(), req.ToListParams())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromListResult(result))
}

func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	detail, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromVisaDetail(detail))
}

func (h *Handler) RecordExpense(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.RecordExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	detail, err := h.svc.RecordExpense(c.Request.Context(), id, service.RecordExpenseInput{
		Bucket:      req.Bucket,
		AmountFils:  req.AmountFils,
		Description: req.Description,
		IncurredOn:  req.IncurredOn,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, transport.FromVisaDetail(detail))
}

func (h *Handler) ListExpenses(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	detail, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromExpenses(detail))
}

func (h *Handler) CompleteStage(c *gin.Context) {
	h.advanceStage(c, domain.ModeComplete)
}

func (h *Handler) SkipStage(c *gin.Context) {
	h.advanceStage(c, domain.ModeSkip)
}

func (h *Handler) advanceStage(c *gin.Context, mode domain.AdvanceMode) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.AdvanceStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	detail, err := h.svc.AdvanceStage(c.Request.Context(), id, req.Stage, mode)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromVisaDetail(detail))
}

func (h *Handler) VerifyArrival(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.VerifyArrivalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	detail, err := h.svc.VerifyArrival(c.Request.Context(), id, service.VerifyArrivalInput{
		ArrivalDate: req.ArrivalDate,
		VerifiedBy:  identity.UserID(),
		Notes:       req.Notes,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromVisaDetail(detail))
}

func (h *Handler) GetArrivalStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	status, err := h.svc.GetArrivalStatus(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromArrivalStatus(status))
}

func (h *Handler) GetReplacementEligibility(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	eligibility, err := h.svc.GetReplacementEligibility(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromEligibility(eligibility))
}

func (h *Handler) Sell(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.SellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	detail, err := h.svc.Sell(c.Request.Context(), id, service.SellInput{
		PriceFils:      req.PriceFils,
		BuyerName:      req.BuyerName,
		BuyerContact:   req.BuyerContact,
		SellingAgentID: req.SellingAgentID,
		CommissionFils: req.CommissionFils,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromVisaDetail(detail))
}

func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	detail, err := h.svc.Cancel(c.Request.Context(), id, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromVisaDetail(detail))
}

func (h *Handler) Replace(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.ReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	successor, err := h.svc.Replace(c.Request.Context(), id, service.ReplaceInput{
		HolderName:        req.HolderName,
		HolderNationality: req.HolderNationality,
		PassportNumber:    req.PassportNumber,
		VisaNumber:        req.VisaNumber,
		HolderContact:     req.HolderContact,
		ReplacementCost:   req.ReplacementCost,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, transport.FromVisaDetail(successor))
}
