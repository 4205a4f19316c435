package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Visa is the database model for a visa. Money columns are int64 fils; the
// version column backs the per-visa optimistic concurrency check.
type Visa struct {
	ID                uuid.UUID  `db:"id"`
	Reference         string     `db:"reference"`
	HolderName        string     `db:"holder_name"`
	HolderNationality string     `db:"holder_nationality"`
	PassportNumber    string     `db:"passport_number"`
	VisaNumber        string     `db:"visa_number"`
	HolderContact     *string    `db:"holder_contact"`
	AgentID           uuid.UUID  `db:"agent_id"`
	ProfitShareBps    int64      `db:"profit_share_bps"`
	Stage             string     `db:"stage"`
	Status            string     `db:"status"`
	TotalExpensesFils int64      `db:"total_expenses_fils"`
	IsReplaced        bool       `db:"is_replaced"`
	ReplacedByID      *uuid.UUID `db:"replaced_by_id"`
	HardDeadline      time.Time  `db:"hard_deadline"`
	CompletedAt       *time.Time `db:"completed_at"`
	CancelledAt       *time.Time `db:"cancelled_at"`
	CancelReason      *string    `db:"cancel_reason"`
	CancelledBySystem bool       `db:"cancelled_by_system"`
	Version           int64      `db:"version"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// Expense is the database model for one ledger entry. Entries are immutable
// once recorded.
type Expense struct {
	ID          uuid.UUID `db:"id"`
	VisaID      uuid.UUID `db:"visa_id"`
	Bucket      string    `db:"bucket"`
	AmountFils  int64     `db:"amount_fils"`
	Description string    `db:"description"`
	IncurredOn  time.Time `db:"incurred_on"`
	CreatedAt   time.Time `db:"created_at"`
}

// Arrival is the database model for the arrival verification record.
// A row exists only once arrival has been verified.
type Arrival struct {
	VisaID      uuid.UUID `db:"visa_id"`
	ArrivalDate time.Time `db:"arrival_date"`
	VerifiedBy  uuid.UUID `db:"verified_by"`
	Notes       *string   `db:"notes"`
	DeadlineAt  time.Time `db:"deadline_at"`
	CreatedAt   time.Time `db:"created_at"`
}

// Sale is the database model for the settlement-of-record, created once on
// the transition to Sold.
type Sale struct {
	VisaID            uuid.UUID  `db:"visa_id"`
	PriceFils         int64      `db:"price_fils"`
	BuyerName         string     `db:"buyer_name"`
	BuyerContact      string     `db:"buyer_contact"`
	SellingAgentID    *uuid.UUID `db:"selling_agent_id"`
	CommissionFils    *int64     `db:"commission_fils"`
	ProfitFils        int64      `db:"profit_fils"`
	AgentEarningsFils int64      `db:"agent_earnings_fils"`
	SoldAt            time.Time  `db:"sold_at"`
}

// VisaDetail is the full per-visa snapshot the orchestrator operates on.
type VisaDetail struct {
	Visa
	Expenses []Expense
	Arrival  *Arrival
	Sale     *Sale
}

// StageExpenseCount counts this snapshot's ledger entries in the given bucket.
func (d *VisaDetail) StageExpenseCount(bucket string) int {
	count := 0
	for _, e := range d.Expenses {
		if e.Bucket == bucket {
			count++
		}
	}
	return count
}

// StateUpdate describes a versioned lifecycle transition. Only non-nil
// fields are written; ExpectedVersion guards the write.
type StateUpdate struct {
	ID                uuid.UUID
	ExpectedVersion   int64
	Stage             *string
	Status            *string
	CompletedAt       *time.Time
	CancelledAt       *time.Time
	CancelReason      *string
	CancelledBySystem *bool
}

// ListParams contains parameters for listing visas.
type ListParams struct {
	Status    *string
	Stage     *string
	AgentID   *uuid.UUID
	Search    string
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
}

// ListResult contains the paginated result of listing visas.
type ListResult struct {
	Items      []Visa
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// DeadlineCandidate is a visa whose cancellation deadline has passed and
// which is still unresolved.
type DeadlineCandidate struct {
	VisaID     uuid.UUID
	DeadlineAt time.Time
}

// VisasRepository is the persistence contract the orchestrator depends on.
// Every mutating call takes the snapshot version it was computed from; a
// stale version yields an apperr Conflict and writes nothing.
type VisasRepository interface {
	NextReference(ctx context.Context) (string, error)
	Create(ctx context.Context, visa *Visa) error
	GetByID(ctx context.Context, id uuid.UUID) (*VisaDetail, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)

	AppendExpense(ctx context.Context, expectedVersion int64, expense Expense) error
	UpdateState(ctx context.Context, update StateUpdate) error
	SetArrival(ctx context.Context, expectedVersion int64, arrival Arrival) error
	RecordSale(ctx context.Context, expectedVersion int64, sale Sale, commission *Expense) error
	ReplaceVisa(ctx context.Context, oldID uuid.UUID, expectedVersion int64, successor *Visa, replacementCost *Expense) error

	ListDeadlineCandidates(ctx context.Context, now time.Time, limit int) ([]DeadlineCandidate, error)
}
