package service

import (
	"context"
	"fmt"
	"time"

	"visa_broker_backend/internal/agents/repository"
	"visa_broker_backend/platform/apperr"
	"visa_broker_backend/platform/phone"

	"github.com/google/uuid"
)

// Service manages the agents directory
type Service struct {
	repo repository.AgentsRepository
}

// NewService creates a new agents service
func NewService(repo repository.AgentsRepository) *Service {
	return &Service{repo: repo}
}

// CreateAgentInput carries the intake data for a new agent.
type CreateAgentInput struct {
	Name           string
	Email          string
	Phone          string
	ProfitShareBps int64
}

// Create registers a new agent with a generated code.
func (s *Service) Create(ctx context.Context, input CreateAgentInput) (*repository.Agent, error) {
	if input.ProfitShareBps < 0 || input.ProfitShareBps > 10000 {
		return nil, apperr.Validation("profit share must be between 0 and 10000 basis points")
	}

	code, err := s.repo.NextCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate agent code: %w", err)
	}

	now := time.Now()
	agent := &repository.Agent{
		ID:             uuid.New(),
		Code:           code,
		Name:           input.Name,
		ProfitShareBps: input.ProfitShareBps,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if input.Email != "" {
		agent.Email = &input.Email
	}
	if input.Phone != "" {
		normalized := phone.NormalizeE164(input.Phone)
		agent.Phone = &normalized
	}

	if err := s.repo.Create(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

// Get retrieves an agent by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*repository.Agent, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves all agents
func (s *Service) List(ctx context.Context) ([]repository.Agent, error) {
	return s.repo.List(ctx)
}

// CreditEarnings appends one earnings entry for an agent. Negative amounts
// record an agent's share of a loss-making sale.
func (s *Service) CreditEarnings(ctx context.Context, agentID, visaID uuid.UUID, amountFils int64, kind string) error {
	return s.repo.CreditEarnings(ctx, repository.Earning{
		ID:         uuid.New(),
		AgentID:    agentID,
		VisaID:     visaID,
		AmountFils: amountFils,
		Kind:       kind,
		CreatedAt:  time.Now(),
	})
}

// GetEarnings retrieves an agent's earnings ledger. The agent must exist.
func (s *Service) GetEarnings(ctx context.Context, agentID uuid.UUID) (*repository.EarningsSummary, error) {
	if _, err := s.repo.GetByID(ctx, agentID); err != nil {
		return nil, err
	}
	return s.repo.GetEarnings(ctx, agentID)
}
