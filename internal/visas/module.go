// Package visas provides the visa procurement pipeline domain module.
package visas

import (
	"visa_broker_backend/internal/events"
	apphttp "visa_broker_backend/internal/http"
	"visa_broker_backend/internal/visas/handler"
	"visa_broker_backend/internal/visas/repository"
	"visa_broker_backend/internal/visas/service"
	"visa_broker_backend/platform/config"
	"visa_broker_backend/platform/logger"
	"visa_broker_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the visas domain module
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates a new visas module with all dependencies wired
func NewModule(pool *pgxpool.Pool, agents service.AgentDirectory, bus events.Bus, cfg config.BusinessConfig, log *logger.Logger, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.NewService(repo, agents, bus, cfg, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "visas"
}

// Service returns the service layer for external use
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes registers the module's routes
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	visas := ctx.Protected.Group("/visas")
	m.handler.RegisterRoutes(visas)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
