package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"visa_broker_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Agent is the database model for an agent.
type Agent struct {
	ID             uuid.UUID `db:"id"`
	Code           string    `db:"code"`
	Name           string    `db:"name"`
	Email          *string   `db:"email"`
	Phone          *string   `db:"phone"`
	ProfitShareBps int64     `db:"profit_share_bps"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Earning is one credit (or debit, for loss shares) against an agent.
type Earning struct {
	ID         uuid.UUID `db:"id"`
	AgentID    uuid.UUID `db:"agent_id"`
	VisaID     uuid.UUID `db:"visa_id"`
	AmountFils int64     `db:"amount_fils"`
	Kind       string    `db:"kind"`
	CreatedAt  time.Time `db:"created_at"`
}

// EarningsSummary is an agent's earnings ledger with its running total.
type EarningsSummary struct {
	Items     []Earning
	TotalFils int64
}

// AgentsRepository is the persistence contract for the agents directory.
type AgentsRepository interface {
	NextCode(ctx context.Context) (string, error)
	Create(ctx context.Context, agent *Agent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Agent, error)
	List(ctx context.Context) ([]Agent, error)
	CreditEarnings(ctx context.Context, earning Earning) error
	GetEarnings(ctx context.Context, agentID uuid.UUID) (*EarningsSummary, error)
}

// Repository provides database operations for agents
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new agents repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ AgentsRepository = (*Repository)(nil)

// NextCode atomically generates the next agent code
func (r *Repository) NextCode(ctx context.Context) (string, error) {
	var nextNum int
	query := `
		INSERT INTO agent_counters (id, last_number)
		VALUES (1, 1)
		ON CONFLICT (id) DO UPDATE SET last_number = agent_counters.last_number + 1
		RETURNING last_number`

	if err := r.pool.QueryRow(ctx, query).Scan(&nextNum); err != nil {
		return "", fmt.Errorf("failed to generate agent code: %w", err)
	}
	return fmt.Sprintf("AGT-%04d", nextNum), nil
}

// Create inserts a new agent
func (r *Repository) Create(ctx context.Context, agent *Agent) error {
	query := `
		INSERT INTO agents (id, code, name, email, phone, profit_share_bps, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := r.pool.Exec(ctx, query,
		agent.ID, agent.Code, agent.Name, agent.Email, agent.Phone,
		agent.ProfitShareBps, agent.CreatedAt, agent.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert agent: %w", err)
	}
	return nil
}

// GetByID retrieves an agent by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Agent, error) {
	var a Agent
	query := `
		SELECT id, code, name, email, phone, profit_share_bps, created_at, updated_at
		FROM agents WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Code, &a.Name, &a.Email, &a.Phone, &a.ProfitShareBps, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("agent not found")
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return &a, nil
}

// List retrieves all agents ordered by code
func (r *Repository) List(ctx context.Context) ([]Agent, error) {
	query := `
		SELECT id, code, name, email, phone, profit_share_bps, created_at, updated_at
		FROM agents ORDER BY code ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Email, &a.Phone, &a.ProfitShareBps, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agents: %w", err)
	}
	return agents, nil
}

// CreditEarnings appends one earnings entry
func (r *Repository) CreditEarnings(ctx context.Context, earning Earning) error {
	query := `
		INSERT INTO agent_earnings (id, agent_id, visa_id, amount_fils, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.pool.Exec(ctx, query,
		earning.ID, earning.AgentID, earning.VisaID, earning.AmountFils, earning.Kind, earning.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert agent earning: %w", err)
	}
	return nil
}

// GetEarnings retrieves an agent's earnings ledger with its running total
func (r *Repository) GetEarnings(ctx context.Context, agentID uuid.UUID) (*EarningsSummary, error) {
	query := `
		SELECT id, agent_id, visa_id, amount_fils, kind, created_at
		FROM agent_earnings WHERE agent_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent earnings: %w", err)
	}
	defer rows.Close()

	summary := &EarningsSummary{}
	for rows.Next() {
		var e Earning
		if err := rows.Scan(&e.ID, &e.AgentID, &e.VisaID, &e.AmountFils, &e.Kind, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent earning: %w", err)
		}
		summary.Items = append(summary.Items, e)
		summary.TotalFils += e.AmountFils
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agent earnings: %w", err)
	}
	return summary, nil
}
