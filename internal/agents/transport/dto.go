package transport

import (
	"time"

	"visa_broker_backend/internal/agents/repository"

	"github.com/google/uuid"
)

// CreateAgentRequest is the request body for registering a new agent
type CreateAgentRequest struct {
	Name           string `json:"name" validate:"required,min=1,max=200"`
	Email          string `json:"email" validate:"omitempty,email,max=254"`
	Phone          string `json:"phone" validate:"omitempty,max=30"`
	ProfitShareBps int64  `json:"profitShareBps" validate:"min=0,max=10000"`
}

// AgentResponse is the directory view of an agent
type AgentResponse struct {
	ID             uuid.UUID `json:"id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Email          *string   `json:"email,omitempty"`
	Phone          *string   `json:"phone,omitempty"`
	ProfitShareBps int64     `json:"profitShareBps"`
	CreatedAt      time.Time `json:"createdAt"`
}

// EarningResponse is one entry of an agent's earnings ledger
type EarningResponse struct {
	ID         uuid.UUID `json:"id"`
	VisaID     uuid.UUID `json:"visaId"`
	AmountFils int64     `json:"amountFils"`
	Kind       string    `json:"kind"`
	CreatedAt  time.Time `json:"createdAt"`
}

// EarningsResponse is an agent's full earnings ledger
type EarningsResponse struct {
	Items     []EarningResponse `json:"items"`
	TotalFils int64             `json:"totalFils"`
}

// FromAgent maps a repository agent to its response shape
func FromAgent(a *repository.Agent) AgentResponse {
	return AgentResponse{
		ID:             a.ID,
		Code:           a.Code,
		Name:           a.Name,
		Email:          a.Email,
		Phone:          a.Phone,
		ProfitShareBps: a.ProfitShareBps,
		CreatedAt:      a.CreatedAt,
	}
}

// FromEarnings maps an earnings summary to its response shape
func FromEarnings(s *repository.EarningsSummary) EarningsResponse {
	resp := EarningsResponse{
		Items:     make([]EarningResponse, 0, len(s.Items)),
		TotalFils: s.TotalFils,
	}
	for _, e := range s.Items {
		resp.Items = append(resp.Items, EarningResponse{
			ID:         e.ID,
			VisaID:     e.VisaID,
			AmountFils: e.AmountFils,
			Kind:       e.Kind,
			CreatedAt:  e.CreatedAt,
		})
	}
	return resp
}
