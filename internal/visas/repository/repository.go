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

const (
	visaNotFoundMsg = "visa not found"
	visaConflictMsg = "visa was modified concurrently; reload and retry"
)

const visaColumns = `id, reference, holder_name, holder_nationality, passport_number, visa_number,
	holder_contact, agent_id, profit_share_bps, stage, status, total_expenses_fils,
	is_replaced, replaced_by_id, hard_deadline, completed_at, cancelled_at, cancel_reason,
	cancelled_by_system, version, created_at, updated_at`

// Repository provides database operations for visas
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new visas repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Compile-time check that Repository implements VisasRepository.
var _ VisasRepository = (*Repository)(nil)

// NextReference atomically generates the next visa reference number
func (r *Repository) NextReference(ctx context.Context) (string, error) {
	var nextNum int
	query := `
		INSERT INTO visa_counters (year, last_number)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_number = visa_counters.last_number + 1
		RETURNING last_number`

	year := time.Now().Year()
	if err := r.pool.QueryRow(ctx, query, year).Scan(&nextNum); err != nil {
		return "", fmt.Errorf("failed to generate visa reference: %w", err)
	}

	return fmt.Sprintf("VSA-%d-%04d", year, nextNum), nil
}

// Create inserts a new visa
func (r *Repository) Create(ctx context.Context, visa *Visa) error {
	query := `
		INSERT INTO visas (
			id, reference, holder_name, holder_nationality, passport_number, visa_number,
			holder_contact, agent_id, profit_share_bps, stage, status, total_expenses_fils,
			is_replaced, replaced_by_id, hard_deadline, completed_at, cancelled_at, cancel_reason,
			cancelled_by_system, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	if _, err := r.pool.Exec(ctx, query,
		visa.ID, visa.Reference, visa.HolderName, visa.HolderNationality, visa.PassportNumber, visa.VisaNumber,
		visa.HolderContact, visa.AgentID, visa.ProfitShareBps, visa.Stage, visa.Status, visa.TotalExpensesFils,
		visa.IsReplaced, visa.ReplacedByID, visa.HardDeadline, visa.CompletedAt, visa.CancelledAt, visa.CancelReason,
		visa.CancelledBySystem, visa.Version, visa.CreatedAt, visa.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert visa: %w", err)
	}
	return nil
}

// GetByID retrieves a visa with its expenses, arrival record and sale record
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*VisaDetail, error) {
	visa, err := r.getVisa(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &VisaDetail{Visa: *visa}

	if detail.Expenses, err = r.getExpenses(ctx, id); err != nil {
		return nil, err
	}
	if detail.Arrival, err = r.getArrival(ctx, id); err != nil {
		return nil, err
	}
	if detail.Sale, err = r.getSale(ctx, id); err != nil {
		return nil, err
	}

	return detail, nil
}

func (r *Repository) getVisa(ctx context.Context, id uuid.UUID) (*Visa, error) {
	var v Visa
	query := `SELECT ` + visaColumns + ` FROM visas WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.Reference, &v.HolderName, &v.HolderNationality, &v.PassportNumber, &v.VisaNumber,
		&v.HolderContact, &v.AgentID, &v.ProfitShareBps, &v.Stage, &v.Status, &v.TotalExpensesFils,
		&v.IsReplaced, &v.ReplacedByID, &v.HardDeadline, &v.CompletedAt, &v.CancelledAt, &v.CancelReason,
		&v.CancelledBySystem, &v.Version, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(visaNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to get visa: %w", err)
	}
	return &v, nil
}

func (r *Repository) getExpenses(ctx context.Context, visaID uuid.UUID) ([]Expense, error) {
	query := `
		SELECT id, visa_id, bucket, amount_fils, description, incurred_on, created_at
		FROM visa_expenses WHERE visa_id = $1
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, visaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query visa expenses: %w", err)
	}
	defer rows.Close()

	var expenses []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.VisaID, &e.Bucket, &e.AmountFils, &e.Description, &e.IncurredOn, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan visa expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate visa expenses: %w", err)
	}
	return expenses, nil
}

func (r *Repository) getArrival(ctx context.Context, visaID uuid.UUID) (*Arrival, error) {
	var a Arrival
	query := `
		SELECT visa_id, arrival_date, verified_by, notes, deadline_at, created_at
		FROM visa_arrivals WHERE visa_id = $1`

	err := r.pool.QueryRow(ctx, query, visaID).Scan(
		&a.VisaID, &a.ArrivalDate, &a.VerifiedBy, &a.Notes, &a.DeadlineAt, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get arrival record: %w", err)
	}
	return &a, nil
}

func (r *Repository) getSale(ctx context.Context, visaID uuid.UUID) (*Sale, error) {
	var s Sale
	query := `
		SELECT visa_id, price_fils, buyer_name, buyer_contact, selling_agent_id,
			commission_fils, profit_fils, agent_earnings_fils, sold_at
		FROM visa_sales WHERE visa_id = $1`

	err := r.pool.QueryRow(ctx, query, visaID).Scan(
		&s.VisaID, &s.PriceFils, &s.BuyerName, &s.BuyerContact, &s.SellingAgentID,
		&s.CommissionFils, &s.ProfitFils, &s.AgentEarningsFils, &s.SoldAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sale record: %w", err)
	}
	return &s, nil
}

// AppendExpense inserts a ledger entry and moves the cached total forward,
// guarded by the snapshot version.
func (r *Repository) AppendExpense(ctx context.Context, expectedVersion int64, expense Expense) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE visas
		SET total_expenses_fils = total_expenses_fils + $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $2`,
		expense.VisaID, expectedVersion, expense.AmountFils, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update expense total: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, expense.VisaID)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO visa_expenses (id, visa_id, bucket, amount_fils, description, incurred_on, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		expense.ID, expense.VisaID, expense.Bucket, expense.AmountFils, expense.Description, expense.IncurredOn, expense.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert visa expense: %w", err)
	}

	return tx.Commit(ctx)
}

// UpdateState applies a versioned lifecycle transition
func (r *Repository) UpdateState(ctx context.Context, update StateUpdate) error {
	query := `
		UPDATE visas SET
			stage = COALESCE($3, stage),
			status = COALESCE($4, status),
			completed_at = COALESCE($5, completed_at),
			cancelled_at = COALESCE($6, cancelled_at),
			cancel_reason = COALESCE($7, cancel_reason),
			cancelled_by_system = COALESCE($8, cancelled_by_system),
			version = version + 1,
			updated_at = $9
		WHERE id = $1 AND version = $2`

	result, err := r.pool.Exec(ctx, query,
		update.ID, update.ExpectedVersion,
		update.Stage, update.Status, update.CompletedAt,
		update.CancelledAt, update.CancelReason, update.CancelledBySystem,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update visa state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, update.ID)
	}
	return nil
}

// SetArrival stores the arrival verification record
func (r *Repository) SetArrival(ctx context.Context, expectedVersion int64, arrival Arrival) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx,
		`UPDATE visas SET version = version + 1, updated_at = $3 WHERE id = $1 AND version = $2`,
		arrival.VisaID, expectedVersion, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to bump visa version: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, arrival.VisaID)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO visa_arrivals (visa_id, arrival_date, verified_by, notes, deadline_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		arrival.VisaID, arrival.ArrivalDate, arrival.VerifiedBy, arrival.Notes, arrival.DeadlineAt, arrival.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert arrival record: %w", err)
	}

	return tx.Commit(ctx)
}

// RecordSale marks the visa Sold and stores the settlement-of-record. When a
// cross-agent commission applies it lands as one more ledger entry in the
// same transaction.
func (r *Repository) RecordSale(ctx context.Context, expectedVersion int64, sale Sale, commission *Expense) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	commissionFils := int64(0)
	if commission != nil {
		commissionFils = commission.AmountFils
	}

	result, err := tx.Exec(ctx, `
		UPDATE visas
		SET status = 'Sold', total_expenses_fils = total_expenses_fils + $3,
			version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $2`,
		sale.VisaID, expectedVersion, commissionFils, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark visa sold: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, sale.VisaID)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO visa_sales (visa_id, price_fils, buyer_name, buyer_contact, selling_agent_id,
			commission_fils, profit_fils, agent_earnings_fils, sold_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sale.VisaID, sale.PriceFils, sale.BuyerName, sale.BuyerContact, sale.SellingAgentID,
		sale.CommissionFils, sale.ProfitFils, sale.AgentEarningsFils, sale.SoldAt,
	); err != nil {
		return fmt.Errorf("failed to insert sale record: %w", err)
	}

	if commission != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO visa_expenses (id, visa_id, bucket, amount_fils, description, incurred_on, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			commission.ID, commission.VisaID, commission.Bucket, commission.AmountFils,
			commission.Description, commission.IncurredOn, commission.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert commission expense: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ReplaceVisa closes the old visa as Replaced and inserts its successor in
// one transaction.
func (r *Repository) ReplaceVisa(ctx context.Context, oldID uuid.UUID, expectedVersion int64, successor *Visa, replacementCost *Expense) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE visas
		SET status = 'Replaced', replaced_by_id = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $2`,
		oldID, expectedVersion, successor.ID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark visa replaced: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, oldID)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO visas (
			id, reference, holder_name, holder_nationality, passport_number, visa_number,
			holder_contact, agent_id, profit_share_bps, stage, status, total_expenses_fils,
			is_replaced, replaced_by_id, hard_deadline, completed_at, cancelled_at, cancel_reason,
			cancelled_by_system, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		successor.ID, successor.Reference, successor.HolderName, successor.HolderNationality, successor.PassportNumber, successor.VisaNumber,
		successor.HolderContact, successor.AgentID, successor.ProfitShareBps, successor.Stage, successor.Status, successor.TotalExpensesFils,
		successor.IsReplaced, successor.ReplacedByID, successor.HardDeadline, successor.CompletedAt, successor.CancelledAt, successor.CancelReason,
		successor.CancelledBySystem, successor.Version, successor.CreatedAt, successor.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert replacement visa: %w", err)
	}

	if replacementCost != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO visa_expenses (id, visa_id, bucket, amount_fils, description, incurred_on, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			replacementCost.ID, replacementCost.VisaID, replacementCost.Bucket, replacementCost.AmountFils,
			replacementCost.Description, replacementCost.IncurredOn, replacementCost.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert replacement expense: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListDeadlineCandidates returns unresolved visas whose cancellation
// deadline has passed.
func (r *Repository) ListDeadlineCandidates(ctx context.Context, now time.Time, limit int) ([]DeadlineCandidate, error) {
	query := `
		SELECT v.id, a.deadline_at
		FROM visas v
		JOIN visa_arrivals a ON a.visa_id = v.id
		WHERE a.deadline_at <= $1
			AND v.status NOT IN ('Sold', 'Cancelled', 'Replaced')
		ORDER BY a.deadline_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deadline candidates: %w", err)
	}
	defer rows.Close()

	var candidates []DeadlineCandidate
	for rows.Next() {
		var c DeadlineCandidate
		if err := rows.Scan(&c.VisaID, &c.DeadlineAt); err != nil {
			return nil, fmt.Errorf("failed to scan deadline candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deadline candidates: %w", err)
	}
	return candidates, nil
}

// List retrieves visas with filtering and pagination
func (r *Repository) List(ctx context.Context, params ListParams) (*ListResult, error) {
	sortBy, err := resolveSortBy(params.SortBy)
	if err != nil {
		return nil, err
	}
	sortOrder, err := resolveSortOrder(params.SortOrder)
	if err != nil {
		return nil, err
	}

	var searchParam interface{}
	if params.Search != "" {
		searchParam = "%" + params.Search + "%"
	}

	var statusParam interface{}
	if params.Status != nil {
		statusParam = *params.Status
	}

	var stageParam interface{}
	if params.Stage != nil {
		stageParam = *params.Stage
	}

	var agentParam interface{}
	if params.AgentID != nil {
		agentParam = *params.AgentID
	}

	baseQuery := `
		FROM visas
		WHERE ($1::text IS NULL OR status = $1)
			AND ($2::text IS NULL OR stage = $2)
			AND ($3::uuid IS NULL OR agent_id = $3)
			AND ($4::text IS NULL OR holder_name ILIKE $4 OR passport_number ILIKE $4 OR reference ILIKE $4 OR visa_number ILIKE $4)
	`
	args := []interface{}{statusParam, stageParam, agentParam, searchParam}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count visas: %w", err)
	}

	totalPages := (total + params.PageSize - 1) / params.PageSize
	offset := (params.Page - 1) * params.PageSize

	selectQuery := `
		SELECT ` + visaColumns + `
		` + baseQuery + `
		ORDER BY
			CASE WHEN $5 = 'reference' AND $6 = 'asc' THEN reference END ASC,
			CASE WHEN $5 = 'reference' AND $6 = 'desc' THEN reference END DESC,
			CASE WHEN $5 = 'status' AND $6 = 'asc' THEN status END ASC,
			CASE WHEN $5 = 'status' AND $6 = 'desc' THEN status END DESC,
			CASE WHEN $5 = 'hardDeadline' AND $6 = 'asc' THEN hard_deadline END ASC,
			CASE WHEN $5 = 'hardDeadline' AND $6 = 'desc' THEN hard_deadline END DESC,
			CASE WHEN $5 = 'createdAt' AND $6 = 'asc' THEN created_at END ASC,
			CASE WHEN $5 = 'createdAt' AND $6 = 'desc' THEN created_at END DESC,
			created_at DESC
		LIMIT $7 OFFSET $8`

	args = append(args, sortBy, sortOrder, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list visas: %w", err)
	}
	defer rows.Close()

	var items []Visa
	for rows.Next() {
		var v Visa
		if err := rows.Scan(
			&v.ID, &v.Reference, &v.HolderName, &v.HolderNationality, &v.PassportNumber, &v.VisaNumber,
			&v.HolderContact, &v.AgentID, &v.ProfitShareBps, &v.Stage, &v.Status, &v.TotalExpensesFils,
			&v.IsReplaced, &v.ReplacedByID, &v.HardDeadline, &v.CompletedAt, &v.CancelledAt, &v.CancelReason,
			&v.CancelledBySystem, &v.Version, &v.CreatedAt, &v.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan visa: %w", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate visas: %w", err)
	}

	return &ListResult{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	}, nil
}

// staleOrMissing distinguishes a lost version race from a missing row.
func (r *Repository) staleOrMissing(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM visas WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check visa existence: %w", err)
	}
	if !exists {
		return apperr.NotFound(visaNotFoundMsg)
	}
	return apperr.Conflict(visaConflictMsg)
}

func resolveSortBy(sortBy string) (string, error) {
	if sortBy == "" {
		return "createdAt", nil
	}
	switch sortBy {
	case "reference", "status", "hardDeadline", "createdAt":
		return sortBy, nil
	default:
		return "", apperr.BadRequest("invalid sort field")
	}
}

func resolveSortOrder(sortOrder string) (string, error) {
	if sortOrder == "" {
		return "desc", nil
	}
	switch sortOrder {
	case "asc", "desc":
		return sortOrder, nil
	}
	return "", apperr.BadRequest("invalid sort order")
}
