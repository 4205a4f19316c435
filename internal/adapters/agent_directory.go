package adapters

import (
	"context"

	agentsvc "visa_broker_backend/internal/agents/service"
	visasvc "visa_broker_backend/internal/visas/service"

	"github.com/google/uuid"
)

// AgentDirectoryAdapter exposes the agents directory to the visa lifecycle.
type AgentDirectoryAdapter struct {
	svc *agentsvc.Service
}

func NewAgentDirectoryAdapter(svc *agentsvc.Service) *AgentDirectoryAdapter {
	return &AgentDirectoryAdapter{svc: svc}
}

func (a *AgentDirectoryAdapter) ResolveAgent(ctx context.Context, id uuid.UUID) (*visasvc.AgentInfo, error) {
	agent, err := a.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &visasvc.AgentInfo{
		ID:             agent.ID,
		Name:           agent.Name,
		ProfitShareBps: agent.ProfitShareBps,
	}, nil
}

func (a *AgentDirectoryAdapter) CreditEarnings(ctx context.Context, agentID, visaID uuid.UUID, amountFils int64, kind string) error {
	return a.svc.CreditEarnings(ctx, agentID, visaID, amountFils, kind)
}

// Compile-time check against the visas port.
var _ visasvc.AgentDirectory = (*AgentDirectoryAdapter)(nil)
