// Package agents provides the agents directory domain module.
package agents

import (
	"visa_broker_backend/internal/agents/handler"
	"visa_broker_backend/internal/agents/repository"
	"visa_broker_backend/internal/agents/service"
	apphttp "visa_broker_backend/internal/http"
	"visa_broker_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the agents domain module
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates a new agents module with all dependencies wired
func NewModule(pool *pgxpool.Pool, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.NewService(repo)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "agents"
}

// Service returns the service layer for external use
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes registers the module's routes
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	agentsGroup := ctx.Protected.Group("/agents")
	m.handler.RegisterRoutes(agentsGroup)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
