package transport

import (
	"time"

	"visa_broker_backend/internal/visas/domain"
	"visa_broker_backend/internal/visas/repository"
	"visa_broker_backend/internal/visas/service"

	"github.com/google/uuid"
)

// ── Requests ──────────────────────────────────────────────────────────────────

// CreateVisaRequest is the request body for opening a new visa
type CreateVisaRequest struct {
	HolderName        string    `json:"holderName" validate:"required,min=1,max=200"`
	HolderNationality string    `json:"holderNationality" validate:"required,min=2,max=100"`
	PassportNumber    string    `json:"passportNumber" validate:"required,min=1,max=50"`
	VisaNumber        string    `json:"visaNumber" validate:"omitempty,max=50"`
	HolderContact     string    `json:"holderContact" validate:"omitempty,max=30"`
	AgentID           uuid.UUID `json:"agentId" validate:"required"`
	HardDeadline      time.Time `json:"hardDeadline" validate:"required"`
}

// RecordExpenseRequest is the request body for one ledger entry
type RecordExpenseRequest struct {
	Bucket      string    `json:"bucket" validate:"required,oneof=Stage1 Stage2 Stage3 Stage4"`
	AmountFils  int64     `json:"amountFils" validate:"required,gt=0"`
	Description string    `json:"description" validate:"omitempty,max=500"`
	IncurredOn  time.Time `json:"incurredOn" validate:"required"`
}

// AdvanceStageRequest names the stage being completed or skipped
type AdvanceStageRequest struct {
	Stage string `json:"stage" validate:"required,oneof=Stage1 Stage2 Stage3 Stage4"`
}

// VerifyArrivalRequest is the request body for arrival verification
type VerifyArrivalRequest struct {
	ArrivalDate time.Time `json:"arrivalDate" validate:"required"`
	Notes       string    `json:"notes" validate:"omitempty,max=1000"`
}

// SellRequest is the request body for settling a listed visa
type SellRequest struct {
	PriceFils      int64      `json:"priceFils" validate:"required,gt=0"`
	BuyerName      string     `json:"buyerName" validate:"required,min=1,max=200"`
	BuyerContact   string     `json:"buyerContact" validate:"required,min=1,max=100"`
	SellingAgentID *uuid.UUID `json:"sellingAgentId"`
	CommissionFils *int64     `json:"commissionFils"`
}

// CancelRequest is the request body for manual cancellation
type CancelRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

// ReplaceRequest is the request body for spawning a replacement visa.
// Holder fields left empty are inherited from the visa being replaced.
type ReplaceRequest struct {
	HolderName        string `json:"holderName" validate:"omitempty,max=200"`
	HolderNationality string `json:"holderNationality" validate:"omitempty,max=100"`
	PassportNumber    string `json:"passportNumber" validate:"omitempty,max=50"`
	VisaNumber        string `json:"visaNumber" validate:"omitempty,max=50"`
	HolderContact     string `json:"holderContact" validate:"omitempty,max=30"`
	ReplacementCost   *int64 `json:"replacementCostFils" validate:"omitempty,gt=0"`
}

// ListVisasRequest contains the query parameters for listing visas
type ListVisasRequest struct {
	Status    *string    `form:"status"`
	Stage     *string    `form:"stage"`
	AgentID   *uuid.UUID `form:"agentId"`
	Search    string     `form:"search"`
	SortBy    string     `form:"sortBy"`
	SortOrder string     `form:"sortOrder"`
	Page      int        `form:"page"`
	PageSize  int        `form:"pageSize"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

// ExpenseResponse is one ledger entry
type ExpenseResponse struct {
	ID          uuid.UUID `json:"id"`
	Bucket      string    `json:"bucket"`
	AmountFils  int64     `json:"amountFils"`
	Description string    `json:"description,omitempty"`
	IncurredOn  time.Time `json:"incurredOn"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ArrivalResponse is the arrival verification record
type ArrivalResponse struct {
	ArrivalDate time.Time `json:"arrivalDate"`
	VerifiedBy  uuid.UUID `json:"verifiedBy"`
	Notes       *string   `json:"notes,omitempty"`
	DeadlineAt  time.Time `json:"deadlineAt"`
}

// SaleResponse is the settlement-of-record
type SaleResponse struct {
	PriceFils         int64      `json:"priceFils"`
	BuyerName         string     `json:"buyerName"`
	BuyerContact      string     `json:"buyerContact"`
	SellingAgentID    *uuid.UUID `json:"sellingAgentId,omitempty"`
	CommissionFils    *int64     `json:"commissionFils,omitempty"`
	ProfitFils        int64      `json:"profitFils"`
	AgentEarningsFils int64      `json:"agentEarningsFils"`
	SoldAt            time.Time  `json:"soldAt"`
}

// VisaResponse is the list-item view of a visa
type VisaResponse struct {
	ID                uuid.UUID  `json:"id"`
	Reference         string     `json:"reference"`
	HolderName        string     `json:"holderName"`
	HolderNationality string     `json:"holderNationality"`
	PassportNumber    string     `json:"passportNumber"`
	VisaNumber        string     `json:"visaNumber,omitempty"`
	HolderContact     *string    `json:"holderContact,omitempty"`
	AgentID           uuid.UUID  `json:"agentId"`
	ProfitShareBps    int64      `json:"profitShareBps"`
	Stage             string     `json:"stage"`
	Status            string     `json:"status"`
	TotalExpensesFils int64      `json:"totalExpensesFils"`
	IsReplaced        bool       `json:"isReplaced"`
	ReplacedByID      *uuid.UUID `json:"replacedById,omitempty"`
	HardDeadline      time.Time  `json:"hardDeadline"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	CancelledAt       *time.Time `json:"cancelledAt,omitempty"`
	CancelReason      *string    `json:"cancelReason,omitempty"`
	CancelledBySystem bool       `json:"cancelledBySystem"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// VisaDetailResponse is the full per-visa view with ledger, arrival and sale
type VisaDetailResponse struct {
	VisaResponse
	Expenses []ExpenseResponse `json:"expenses"`
	Arrival  *ArrivalResponse  `json:"arrival,omitempty"`
	Sale     *SaleResponse     `json:"sale,omitempty"`
}

// ExpenseListResponse is the visa's ledger with its cached total
type ExpenseListResponse struct {
	Items     []ExpenseResponse `json:"items"`
	TotalFils int64             `json:"totalFils"`
}

// ListVisasResponse is the paginated list response
type ListVisasResponse struct {
	Items      []VisaResponse `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

// ReplacementEligibilityResponse is the read-only eligibility evaluation
type ReplacementEligibilityResponse struct {
	Eligible          bool     `json:"eligible"`
	DaysSinceCreation int      `json:"daysSinceCreation"`
	RemainingDays     int      `json:"remainingDays"`
	Reasons           []string `json:"reasons,omitempty"`
}

// ArrivalStatusResponse reports the visa's standing against its
// cancellation countdown
type ArrivalStatusResponse struct {
	Verified    bool       `json:"verified"`
	ArrivalDate *time.Time `json:"arrivalDate,omitempty"`
	DeadlineAt  *time.Time `json:"deadlineAt,omitempty"`
	State       string     `json:"state"`
}

// ── Mappers ───────────────────────────────────────────────────────────────────

// FromVisa maps a repository visa to its response shape
func FromVisa(v repository.Visa) VisaResponse {
	return VisaResponse{
		ID:                v.ID,
		Reference:         v.Reference,
		HolderName:        v.HolderName,
		HolderNationality: v.HolderNationality,
		PassportNumber:    v.PassportNumber,
		VisaNumber:        v.VisaNumber,
		HolderContact:     v.HolderContact,
		AgentID:           v.AgentID,
		ProfitShareBps:    v.ProfitShareBps,
		Stage:             v.Stage,
		Status:            v.Status,
		TotalExpensesFils: v.TotalExpensesFils,
		IsReplaced:        v.IsReplaced,
		ReplacedByID:      v.ReplacedByID,
		HardDeadline:      v.HardDeadline,
		CompletedAt:       v.CompletedAt,
		CancelledAt:       v.CancelledAt,
		CancelReason:      v.CancelReason,
		CancelledBySystem: v.CancelledBySystem,
		CreatedAt:         v.CreatedAt,
		UpdatedAt:         v.UpdatedAt,
	}
}

// FromVisaDetail maps a full visa snapshot to its response shape
func FromVisaDetail(d *repository.VisaDetail) VisaDetailResponse {
	resp := VisaDetailResponse{
		VisaResponse: FromVisa(d.Visa),
		Expenses:     make([]ExpenseResponse, 0, len(d.Expenses)),
	}
	for _, e := range d.Expenses {
		resp.Expenses = append(resp.Expenses, ExpenseResponse{
			ID:          e.ID,
			Bucket:      e.Bucket,
			AmountFils:  e.AmountFils,
			Description: e.Description,
			IncurredOn:  e.IncurredOn,
			CreatedAt:   e.CreatedAt,
		})
	}
	if d.Arrival != nil {
		resp.Arrival = &ArrivalResponse{
			ArrivalDate: d.Arrival.ArrivalDate,
			VerifiedBy:  d.Arrival.VerifiedBy,
			Notes:       d.Arrival.Notes,
			DeadlineAt:  d.Arrival.DeadlineAt,
		}
	}
	if d.Sale != nil {
		resp.Sale = &SaleResponse{
			PriceFils:         d.Sale.PriceFils,
			BuyerName:         d.Sale.BuyerName,
			BuyerContact:      d.Sale.BuyerContact,
			SellingAgentID:    d.Sale.SellingAgentID,
			CommissionFils:    d.Sale.CommissionFils,
			ProfitFils:        d.Sale.ProfitFils,
			AgentEarningsFils: d.Sale.AgentEarningsFils,
			SoldAt:            d.Sale.SoldAt,
		}
	}
	return resp
}

// FromExpenses maps a visa's ledger to its response shape
func FromExpenses(d *repository.VisaDetail) ExpenseListResponse {
	return ExpenseListResponse{
		Items:     FromVisaDetail(d).Expenses,
		TotalFils: d.TotalExpensesFils,
	}
}

// FromListResult maps a paginated repository result to its response shape
func FromListResult(r *repository.ListResult) ListVisasResponse {
	items := make([]VisaResponse, 0, len(r.Items))
	for _, v := range r.Items {
		items = append(items, FromVisa(v))
	}
	return ListVisasResponse{
		Items:      items,
		Total:      r.Total,
		Page:       r.Page,
		PageSize:   r.PageSize,
		TotalPages: r.TotalPages,
	}
}

// FromEligibility maps the domain evaluation to its response shape
func FromEligibility(e *domain.ReplacementEligibility) ReplacementEligibilityResponse {
	return ReplacementEligibilityResponse{
		Eligible:          e.Eligible,
		DaysSinceCreation: e.DaysSinceCreation,
		RemainingDays:     e.RemainingDays,
		Reasons:           e.Reasons,
	}
}

// FromArrivalStatus maps the deadline evaluation to its response shape
func FromArrivalStatus(s *service.ArrivalStatus) ArrivalStatusResponse {
	return ArrivalStatusResponse{
		Verified:    s.Verified,
		ArrivalDate: s.ArrivalDate,
		DeadlineAt:  s.DeadlineAt,
		State:       string(s.State),
	}
}

// ToListParams converts the query parameters to repository list params,
// applying the pagination defaults.
func (r ListVisasRequest) ToListParams() repository.ListParams {
	params := repository.ListParams{
		Status:    r.Status,
		Stage:     r.Stage,
		AgentID:   r.AgentID,
		Search:    r.Search,
		SortBy:    r.SortBy,
		SortOrder: r.SortOrder,
		Page:      r.Page,
		PageSize:  r.PageSize,
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}
	return params
}
