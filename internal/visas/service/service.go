package service

import (
	"context"
	"fmt"
	"time"

	"visa_broker_backend/internal/events"
	"visa_broker_backend/internal/visas/domain"
	"visa_broker_backend/internal/visas/repository"
	"visa_broker_backend/platform/apperr"
	"visa_broker_backend/platform/config"
	"visa_broker_backend/platform/logger"
	"visa_broker_backend/platform/phone"

	"github.com/google/uuid"
)

// AgentInfo is the slice of an agent the visa lifecycle needs.
type AgentInfo struct {
	ID             uuid.UUID
	Name           string
	ProfitShareBps int64
}

// AgentDirectory is implemented by the agents module. ResolveAgent must
// return an apperr NotFound for an unknown agent.
type AgentDirectory interface {
	ResolveAgent(ctx context.Context, id uuid.UUID) (*AgentInfo, error)
	CreditEarnings(ctx context.Context, agentID, visaID uuid.UUID, amountFils int64, kind string) error
}

// Service orchestrates the visa lifecycle
type Service struct {
	repo   repository.VisasRepository
	agents AgentDirectory
	bus    events.Bus
	cfg    config.BusinessConfig
	logger *logger.Logger

	// now is swappable in tests
	now func() time.Time
}

// NewService creates a new visa lifecycle service
func NewService(repo repository.VisasRepository, agents AgentDirectory, bus events.Bus, cfg config.BusinessConfig, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		agents: agents,
		bus:    bus,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}
}

// CreateVisaInput carries the intake data for a new visa.
type CreateVisaInput struct {
	HolderName        string
	HolderNationality string
	PassportNumber    string
	VisaNumber        string
	HolderContact     string
	AgentID           uuid.UUID
	HardDeadline      time.Time
}

// Create opens a new visa at Stage1 / InProcurement with an empty ledger.
func (s *Service) Create(ctx context.Context, input CreateVisaInput) (*repository.VisaDetail, error) {
	agent, err := s.agents.ResolveAgent(ctx, input.AgentID)
	if err != nil {
		return nil, err
	}

	reference, err := s.repo.NextReference(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate visa reference: %w", err)
	}

	now := s.now()
	visa := &repository.Visa{
		ID:                uuid.New(),
		Reference:         reference,
		HolderName:        input.HolderName,
		HolderNationality: input.HolderNationality,
		PassportNumber:    input.PassportNumber,
		VisaNumber:        input.VisaNumber,
		AgentID:           agent.ID,
		ProfitShareBps:    agent.ProfitShareBps,
		Stage:             string(domain.Stage1),
		Status:            string(domain.StatusInProcurement),
		HardDeadline:      input.HardDeadline,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if input.HolderContact != "" {
		contact := phone.NormalizeE164(input.HolderContact)
		visa.HolderContact = &contact
	}

	if err := s.repo.Create(ctx, visa); err != nil {
		return nil, err
	}

	return &repository.VisaDetail{Visa: *visa}, nil
}

// Get retrieves full visa detail by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*repository.VisaDetail, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves visas with filtering and pagination
func (s *Service) List(ctx context.Context, params repository.ListParams) (*repository.ListResult, error) {
	if params.Status != nil {
		if _, ok := domain.ParseStatus(*params.Status); !ok {
			return nil, apperr.Validation("invalid status filter")
		}
	}
	if params.Stage != nil {
		if _, ok := domain.ParseStage(*params.Stage); !ok {
			return nil, apperr.Validation("invalid stage filter")
		}
	}
	return s.repo.List(ctx, params)
}

// RecordExpenseInput carries one ledger entry to append.
type RecordExpenseInput struct {
	Bucket      string
	AmountFils  int64
	Description string
	IncurredOn  time.Time
}

// RecordExpense appends an immutable expense to the visa's ledger. Stage
// buckets only accept entries while the visa is still in procurement.
func (s *Service) RecordExpense(ctx context.Context, id uuid.UUID, input RecordExpenseInput) (*repository.VisaDetail, error) {
	bucket, ok := domain.ParseStageBucket(input.Bucket)
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("unknown expense bucket %q", input.Bucket))
	}
	if input.AmountFils <= 0 {
		return nil, apperr.Validation("expense amount must be positive")
	}

	detail, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.Status != string(domain.StatusInProcurement) {
		return nil, apperr.Guard(fmt.Sprintf("visa status is %s; stage expenses can only be recorded while in procurement", detail.Status))
	}

	expense := repository.Expense{
		ID:          uuid.New(),
		VisaID:      id,
		Bucket:      string(bucket),
		AmountFils:  input.AmountFils,
		Description: input.Description,
		IncurredOn:  input.IncurredOn,
		CreatedAt:   s.now(),
	}
	if err := s.repo.AppendExpense(ctx, detail.Version, expense); err != nil {
		return nil, err
	}

	return s.repo.GetByID(ctx, id)
}

// AdvanceStage completes or skips the visa's current stage. The final
// advance lists the visa for sale and stamps its completion time.
func (s *Service) AdvanceStage(ctx context.Context, id uuid.UUID, target string, mode domain.AdvanceMode) (*repository.VisaDetail, error) {
	targetStage, ok := domain.ParseStage(target)
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("unknown stage %q", target))
	}

	detail, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	current := domain.Stage(detail.Stage)
	status := domain.Status(detail.Status)
	stage1Expenses := detail.StageExpenseCount(string(domain.BucketStage1))

	if reason := domain.CanAdvance(current, status, targetStage, mode, stage1Expenses); reason != "" {
		return nil, apperr.Guard(reason)
	}

	result := domain.Advance(current)
	newStage := string(result.Stage)
	update := repository.StateUpdate{
		ID:              id,
		ExpectedVersion: detail.Version,
		Stage:           &newStage,
	}
	if result.Listed {
		listed := string(domain.StatusListedForSale)
		completedAt := s.now()
		update.Status = &listed
		update.CompletedAt = &completedAt
	}

	if err := s.repo.UpdateState(ctx, update); err != nil {
		return nil, err
	}

	toStatus := detail.Status
	if result.Listed {
		toStatus = string(domain.StatusListedForSale)
	}
	s.logger.VisaTransition(id.String(), string(mode), detail.Status, toStatus)

	return s.repo.GetByID(ctx, id)
}

// VerifyArrivalInput carries the arrival verification data.
type VerifyArrivalInput struct {
	ArrivalDate time.Time
	VerifiedBy  uuid.UUID
	Notes       string
}

// VerifyArrival records beneficiary arrival and starts the cancellation
// countdown. Verification is a one-shot operation per visa.
func (s *Service) VerifyArrival(ctx context.Context, id uuid.UUID, input VerifyArrivalInput) (*repository.VisaDetail, error) {
	detail, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.Arrival != nil {
		return nil, apperr.Guard("arrival has already been verified for this visa")
	}

	now := s.now()
	reasons := domain.ValidateArrival(
		domain.Stage(detail.Stage), domain.Status(detail.Status),
		detail.CreatedAt, input.ArrivalDate, now,
	)
	if len(reasons) > 0 {
		return nil, apperr.GuardReasons("arrival cannot be verified", reasons)
	}

	arrival := repository.Arrival{
		VisaID:      id,
		ArrivalDate: input.ArrivalDate,
		VerifiedBy:  input.VerifiedBy,
		DeadlineAt:  domain.CancellationDeadline(input.ArrivalDate, s.cfg.GetArrivalGraceDays()),
		CreatedAt:   now,
	}
	if input.Notes != "" {
		arrival.Notes = &input.Notes
	}

	if err := s.repo.SetArrival(ctx, detail.Version, arrival); err != nil {
		return nil, err
	}

	s.publish(ctx, events.VisaArrivalVerified{
		BaseEvent:  events.NewBaseEvent(),
		VisaID:     id,
		VerifiedBy: input.VerifiedBy,
		DeadlineAt: arrival.DeadlineAt,
	})

	return s.repo.GetByID(ctx, id)
}

// ArrivalStatus reports where the visa stands against its cancellation
// countdown.
type ArrivalStatus struct {
	Verified    bool
	ArrivalDate *time.Time
	DeadlineAt  *time.Time
	State       domain.DeadlineState
}

// GetArrivalStatus evaluates the deadline state at the current instant.
func (s *Service) GetArrivalStatus(ctx context.Context, id uuid.UUID) (*ArrivalStatus, error) {
	detail, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	status := &ArrivalStatus{State: domain.DeadlineInactive}
	if detail.Arrival != nil {
		status.Verified = true
		status.ArrivalDate = &detail.Arrival.ArrivalDate
		status.DeadlineAt = &detail.Arrival.DeadlineAt
		status.State = domain.EvaluateDeadline(true, detail.Arrival.DeadlineAt, s.now())
	}
	return status, nil
}

// GetReplacementEligibility evaluates whether the visa may be replaced at
// the current instant, without mutating anything.
func (s *Service) GetReplacementEligibility(ctx context.Context, id uuid.UUID) (*domain.ReplacementEligibility, error) {
	detail, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	eligibility := domain.EvaluateReplacement(
		domain.Status(detail.Status), detail.CreatedAt, detail.IsReplaced,
		s.cfg.GetReplacementWindowDays(), s.now(),
	)
	return &eligibility, nil
}

// SellInput carries the sale terms.
type SellInput struct {
	PriceFils      int64
	BuyerName      string
	BuyerContact   string
	SellingAgentID *uuid.UUID
	CommissionFils *int64
}

// Sell settles a listed visa. Profit and the owning agent's earnings are
// fixed from the ledger total at this moment; a cross-agent commission is
// recorded afterwards and never feeds back into the settlement.
func (s *Service) Sell(ctx context.Context, id uuid.UUID, input SellInput) (*repository.VisaDetail, error) {
	detail, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.SellingAgentID != nil && *input.SellingAgentID != detail.AgentID {
		if _, err := s.agents.ResolveAgent(ctx, *input.SellingAgentID); err != nil {
			return nil, err
		}
	}

	settlementInput := domain.SettlementInput{
		Status:            domain.Status(detail.Status),
		SellingPriceFils:  input.PriceFils,
		TotalExpensesFils: detail.TotalExpensesFils,
		OwningAgentID:     detail.AgentID,
		ProfitShareBps:    detail.ProfitShareBps,
		SellingAgentID:    input.SellingAgentID,
		CommissionFils:    input.CommissionFils,
	}
	if reasons := domain.ValidateSettlement(settlementInput); len(reasons) > 0 {
		return nil, apperr.GuardReasons("visa cannot be sold", reasons)
	}

	settlement := domain.Settle(settlementInput)
	now := s.now()

	sale := repository.Sale{
		VisaID:            id,
		PriceFils:         input.PriceFils,
		BuyerName:         input.BuyerName,
		BuyerContact:      phone.NormalizeE164(input.BuyerContact),
		SellingAgentID:    input.SellingAgentID,
		ProfitFils:        settlement.ProfitFils,
		AgentEarningsFils: settlement.AgentEarningsFils,
		SoldAt:            now,
	}

	var commission *repository.Expense
	if settlement.CrossAgentSale {
		sale.CommissionFils = &settlement.CommissionFils
		commission = &repository.Expense{
			ID:          uuid.New(),
			VisaID:      id,
			Bucket:      string(domain.BucketCommission),
			AmountFils:  settlement.CommissionFils,
			Description: "selling agent commission",
			IncurredOn:  now,
			CreatedAt:   now,
		}
	}

	if err := s.repo.RecordSale(ctx, detail.Version, sale, commission); err != nil {
		return nil, err
	}

	if err := s.agents.CreditEarnings(ctx, detail.AgentID, id, settlement.AgentEarningsFils, "profit_share"); err != nil {
		s.logger.Error("failed to credit owning agent earnings", "visa_id", id.String(), "error", err.Error())
	}
	if settlement.CrossAgentSale {
		if err := s.agents.CreditEarnings(ctx, *input.SellingAgentID, id, settlement.CommissionFils, "commission"); err != nil {
			s.logger.Error("failed to credit selling agent commission", "visa_id", id.String(), "error", err.Error())
		}
	}

	s.logger.VisaTransition(id.String(), "sell", detail.Status, string(domain.StatusSold))
	s.publish(ctx, events.VisaSold{
		BaseEvent:      events.NewBaseEvent(),
		VisaID:         id,
		AgentID:        detail.AgentID,
		SellingAgentID: input.SellingAgentID,
		PriceFils:      input.PriceFils,
		ProfitFils:     settlement.ProfitFils,
		EarningsFils:   settlement.AgentEarningsFils,
		SoldAt:         now,
	})

	return s.repo.GetByID(ctx, id)
}

// Cancel terminates the visa manually. Cancelling an already-terminal visa
// is rejected.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*repository.VisaDetail, error) {
	detail, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if domain.IsTerminalStatus(domain.Status(detail.Status)) {
		return nil, apperr.Guard(fmt.Sprintf("visa status is %s; terminal visas cannot be cancelled", detail.Status))
	}

	if err := s.cancel(ctx, detail, reason, false); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// CancelBySweep terminates the visa on behalf of the deadline sweep. Unlike
// manual cancellation a terminal visa is a no-op, not an error; the sweep
// may race a sale or a manual cancel and losing that race is fine.
func (s *Service) CancelBySweep(ctx context.Context, id uuid.UUID) error {
	detail, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if domain.IsTerminalStatus(domain.Status(detail.Status)) {
		return nil
	}
	if detail.Arrival == nil {
		return nil
	}
	if domain.EvaluateDeadline(true, detail.Arrival.DeadlineAt, s.now()) != domain.DeadlineExpired {
		return nil
	}

	err = s.cancel(ctx, detail, "cancellation deadline expired", true)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			// lost the race to a concurrent transition; the next sweep pass
			// re-evaluates
			return nil
		}
		return err
	}

	s.publish(ctx, events.VisaDeadlineExpired{
		BaseEvent:  events.NewBaseEvent(),
		VisaID:     detail.ID,
		DeadlineAt: detail.Arrival.DeadlineAt,
	})
	return nil
}

func (s *Service) cancel(ctx context.Context, detail *repository.VisaDetail, reason string, bySystem bool) error {
	cancelled := string(domain.StatusCancelled)
	cancelledAt := s.now()
	update := repository.StateUpdate{
		ID:                detail.ID,
		ExpectedVersion:   detail.Version,
		Status:            &cancelled,
		CancelledAt:       &cancelledAt,
		CancelReason:      &reason,
		CancelledBySystem: &bySystem,
	}
	if err := s.repo.UpdateState(ctx, update); err != nil {
		return err
	}

	s.logger.VisaTransition(detail.ID.String(), "cancel", detail.Status, cancelled)
	s.publish(ctx, events.VisaCancelled{
		BaseEvent: events.NewBaseEvent(),
		VisaID:    detail.ID,
		Reason:    reason,
		BySystem:  bySystem,
	})
	return nil
}

// ReplaceInput carries the successor's holder profile. Empty fields fall
// back to the predecessor's values.
type ReplaceInput struct {
	HolderName        string
	HolderNationality string
	PassportNumber    string
	VisaNumber        string
	HolderContact     string
	ReplacementCost   *int64
}

// Replace closes the visa as Replaced and spawns a fresh successor at
// Stage1 with an empty ledger. The successor inherits the owning agent and
// profit share and can never itself be replaced.
func (s *Service) Replace(ctx context.Context, id uuid.UUID, input ReplaceInput) (*repository.VisaDetail, error) {
	detail, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	eligibility := domain.EvaluateReplacement(
		domain.Status(detail.Status), detail.CreatedAt, detail.IsReplaced,
		s.cfg.GetReplacementWindowDays(), s.now(),
	)
	if !eligibility.Eligible {
		return nil, apperr.GuardReasons("visa cannot be replaced", eligibility.Reasons)
	}
	if input.ReplacementCost != nil && *input.ReplacementCost <= 0 {
		return nil, apperr.Validation("replacement cost must be positive")
	}

	reference, err := s.repo.NextReference(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate replacement reference: %w", err)
	}

	now := s.now()
	successor := &repository.Visa{
		ID:                uuid.New(),
		Reference:         reference,
		HolderName:        coalesce(input.HolderName, detail.HolderName),
		HolderNationality: coalesce(input.HolderNationality, detail.HolderNationality),
		PassportNumber:    coalesce(input.PassportNumber, detail.PassportNumber),
		VisaNumber:        coalesce(input.VisaNumber, detail.VisaNumber),
		HolderContact:     detail.HolderContact,
		AgentID:           detail.AgentID,
		ProfitShareBps:    detail.ProfitShareBps,
		Stage:             string(domain.Stage1),
		Status:            string(domain.StatusInProcurement),
		IsReplaced:        true,
		HardDeadline:      detail.HardDeadline,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if input.HolderContact != "" {
		contact := phone.NormalizeE164(input.HolderContact)
		successor.HolderContact = &contact
	}

	var cost *repository.Expense
	if input.ReplacementCost != nil {
		cost = &repository.Expense{
			ID:          uuid.New(),
			VisaID:      successor.ID,
			Bucket:      string(domain.BucketReplacement),
			AmountFils:  *input.ReplacementCost,
			Description: fmt.Sprintf("replacement of %s", detail.Reference),
			IncurredOn:  now,
			CreatedAt:   now,
		}
		successor.TotalExpensesFils = *input.ReplacementCost
	}

	if err := s.repo.ReplaceVisa(ctx, id, detail.Version, successor, cost); err != nil {
		return nil, err
	}

	s.logger.VisaTransition(id.String(), "replace", detail.Status, string(domain.StatusReplaced))
	s.publish(ctx, events.VisaReplaced{
		BaseEvent:   events.NewBaseEvent(),
		VisaID:      id,
		SuccessorID: successor.ID,
	})

	return s.repo.GetByID(ctx, successor.ID)
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, event)
	}
}

func coalesce(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
