package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"visa_broker_backend/internal/events"
	"visa_broker_backend/internal/visas/domain"
	"visa_broker_backend/internal/visas/repository"
	"visa_broker_backend/platform/apperr"
	"visa_broker_backend/platform/logger"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory VisasRepository with the same versioned-write
// semantics as the database implementation.
type fakeRepo struct {
	mu       sync.Mutex
	visas    map[uuid.UUID]*repository.Visa
	expenses map[uuid.UUID][]repository.Expense
	arrivals map[uuid.UUID]*repository.Arrival
	sales    map[uuid.UUID]*repository.Sale
	seq      int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		visas:    make(map[uuid.UUID]*repository.Visa),
		expenses: make(map[uuid.UUID][]repository.Expense),
		arrivals: make(map[uuid.UUID]*repository.Arrival),
		sales:    make(map[uuid.UUID]*repository.Sale),
	}
}

func (f *fakeRepo) NextReference(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("VSA-2026-%04d", f.seq), nil
}

func (f *fakeRepo) Create(ctx context.Context, visa *repository.Visa) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *visa
	f.visas[visa.ID] = &copied
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.VisaDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	visa, ok := f.visas[id]
	if !ok {
		return nil, apperr.NotFound("visa not found")
	}
	detail := &repository.VisaDetail{Visa: *visa}
	detail.Expenses = append(detail.Expenses, f.expenses[id]...)
	if a, ok := f.arrivals[id]; ok {
		copied := *a
		detail.Arrival = &copied
	}
	if s, ok := f.sales[id]; ok {
		copied := *s
		detail.Sale = &copied
	}
	return detail, nil
}

func (f *fakeRepo) List(ctx context.Context, params repository.ListParams) (*repository.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := &repository.ListResult{Page: params.Page, PageSize: params.PageSize}
	for _, v := range f.visas {
		result.Items = append(result.Items, *v)
	}
	result.Total = len(result.Items)
	return result, nil
}

// checkVersion enforces the optimistic guard. Callers hold the lock.
func (f *fakeRepo) checkVersion(id uuid.UUID, expected int64) (*repository.Visa, error) {
	visa, ok := f.visas[id]
	if !ok {
		return nil, apperr.NotFound("visa not found")
	}
	if visa.Version != expected {
		return nil, apperr.Conflict("visa was modified concurrently; reload and retry")
	}
	return visa, nil
}

func (f *fakeRepo) AppendExpense(ctx context.Context, expectedVersion int64, expense repository.Expense) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	visa, err := f.checkVersion(expense.VisaID, expectedVersion)
	if err != nil {
		return err
	}
	visa.TotalExpensesFils += expense.AmountFils
	visa.Version++
	f.expenses[expense.VisaID] = append(f.expenses[expense.VisaID], expense)
	return nil
}

func (f *fakeRepo) UpdateState(ctx context.Context, update repository.StateUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	visa, err := f.checkVersion(update.ID, update.ExpectedVersion)
	if err != nil {
		return err
	}
	if update.Stage != nil {
		visa.Stage = *update.Stage
	}
	if update.Status != nil {
		visa.Status = *update.Status
	}
	if update.CompletedAt != nil {
		visa.CompletedAt = update.CompletedAt
	}
	if update.CancelledAt != nil {
		visa.CancelledAt = update.CancelledAt
	}
	if update.CancelReason != nil {
		visa.CancelReason = update.CancelReason
	}
	if update.CancelledBySystem != nil {
		visa.CancelledBySystem = *update.CancelledBySystem
	}
	visa.Version++
	return nil
}

func (f *fakeRepo) SetArrival(ctx context.Context, expectedVersion int64, arrival repository.Arrival) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	visa, err := f.checkVersion(arrival.VisaID, expectedVersion)
	if err != nil {
		return err
	}
	visa.Version++
	copied := arrival
	f.arrivals[arrival.VisaID] = &copied
	return nil
}

func (f *fakeRepo) RecordSale(ctx context.Context, expectedVersion int64, sale repository.Sale, commission *repository.Expense) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	visa, err := f.checkVersion(sale.VisaID, expectedVersion)
	if err != nil {
		return err
	}
	visa.Status = string(domain.StatusSold)
	visa.Version++
	copied := sale
	f.sales[sale.VisaID] = &copied
	if commission != nil {
		visa.TotalExpensesFils += commission.AmountFils
		f.expenses[sale.VisaID] = append(f.expenses[sale.VisaID], *commission)
	}
	return nil
}

func (f *fakeRepo) ReplaceVisa(ctx context.Context, oldID uuid.UUID, expectedVersion int64, successor *repository.Visa, replacementCost *repository.Expense) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	visa, err := f.checkVersion(oldID, expectedVersion)
	if err != nil {
		return err
	}
	visa.Status = string(domain.StatusReplaced)
	visa.ReplacedByID = &successor.ID
	visa.Version++
	copied := *successor
	f.visas[successor.ID] = &copied
	if replacementCost != nil {
		f.expenses[successor.ID] = append(f.expenses[successor.ID], *replacementCost)
	}
	return nil
}

func (f *fakeRepo) ListDeadlineCandidates(ctx context.Context, now time.Time, limit int) ([]repository.DeadlineCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var candidates []repository.DeadlineCandidate
	for id, a := range f.arrivals {
		visa := f.visas[id]
		if domain.IsTerminalStatus(domain.Status(visa.Status)) {
			continue
		}
		if !a.DeadlineAt.After(now) {
			candidates = append(candidates, repository.DeadlineCandidate{VisaID: id, DeadlineAt: a.DeadlineAt})
		}
	}
	return candidates, nil
}

// fakeBus records published events for assertion.
type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *fakeBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
}

func (b *fakeBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *fakeBus) Subscribe(string, events.Handler) {}

func (b *fakeBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.published))
	for _, e := range b.published {
		out = append(out, e.EventName())
	}
	return out
}

type fakeDirectory struct {
	mu      sync.Mutex
	agents  map[uuid.UUID]AgentInfo
	credits []credit
}

type credit struct {
	AgentID    uuid.UUID
	VisaID     uuid.UUID
	AmountFils int64
	Kind       string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{agents: make(map[uuid.UUID]AgentInfo)}
}

func (d *fakeDirectory) addAgent(shareBps int64) uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := uuid.New()
	d.agents[id] = AgentInfo{ID: id, Name: "Agent", ProfitShareBps: shareBps}
	return id
}

func (d *fakeDirectory) ResolveAgent(ctx context.Context, id uuid.UUID) (*AgentInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.agents[id]
	if !ok {
		return nil, apperr.NotFound("agent not found")
	}
	return &info, nil
}

func (d *fakeDirectory) CreditEarnings(ctx context.Context, agentID, visaID uuid.UUID, amountFils int64, kind string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.credits = append(d.credits, credit{AgentID: agentID, VisaID: visaID, AmountFils: amountFils, Kind: kind})
	return nil
}

type fakeBusinessConfig struct {
	windowDays int
	graceDays  int
}

func (c fakeBusinessConfig) GetReplacementWindowDays() int { return c.windowDays }
func (c fakeBusinessConfig) GetArrivalGraceDays() int      { return c.graceDays }

type fixture struct {
	svc  *Service
	repo *fakeRepo
	dir  *fakeDirectory
	bus  *fakeBus
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newFakeRepo()
	dir := newFakeDirectory()
	cfg := fakeBusinessConfig{windowDays: 14, graceDays: 30}
	bus := &fakeBus{}
	svc := NewService(repo, dir, bus, cfg, logger.New("development"))

	f := &fixture{svc: svc, repo: repo, dir: dir, bus: bus, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) createVisa(t *testing.T, shareBps int64) *repository.VisaDetail {
	t.Helper()
	agentID := f.dir.addAgent(shareBps)
	detail, err := f.svc.Create(context.Background(), CreateVisaInput{
		HolderName:        "Arjun Mehta",
		HolderNationality: "IN",
		PassportNumber:    "Z1234567",
		VisaNumber:        "784-2026-001",
		AgentID:           agentID,
		HardDeadline:      f.now.AddDate(0, 6, 0),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return detail
}

// advanceTo drives the visa from Stage1 up to (but not past) the target.
func (f *fixture) advanceTo(t *testing.T, id uuid.UUID, target domain.Stage) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.RecordExpense(ctx, id, RecordExpenseInput{
		Bucket: "Stage1", AmountFils: 10000, Description: "entry permit", IncurredOn: f.now,
	}); err != nil {
		t.Fatalf("RecordExpense() error = %v", err)
	}
	for _, stage := range []domain.Stage{domain.Stage1, domain.Stage2, domain.Stage3} {
		if stage.Rank() >= target.Rank() {
			return
		}
		if _, err := f.svc.AdvanceStage(ctx, id, string(stage), domain.ModeComplete); err != nil {
			t.Fatalf("AdvanceStage(%s) error = %v", stage, err)
		}
	}
}

// listForSale drives the visa through all four stages.
func (f *fixture) listForSale(t *testing.T, id uuid.UUID) {
	t.Helper()
	f.advanceTo(t, id, domain.Stage4)
	if _, err := f.svc.AdvanceStage(context.Background(), id, "Stage4", domain.ModeComplete); err != nil {
		t.Fatalf("AdvanceStage(Stage4) error = %v", err)
	}
}

func TestCreateStartsAtStageOne(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)

	if detail.Stage != "Stage1" {
		t.Errorf("Stage = %s, want Stage1", detail.Stage)
	}
	if detail.Status != "InProcurement" {
		t.Errorf("Status = %s, want InProcurement", detail.Status)
	}
	if detail.ProfitShareBps != 2000 {
		t.Errorf("ProfitShareBps = %d, want 2000", detail.ProfitShareBps)
	}
	if detail.TotalExpensesFils != 0 {
		t.Errorf("TotalExpensesFils = %d, want 0", detail.TotalExpensesFils)
	}
	if detail.Reference == "" {
		t.Error("expected a generated reference")
	}
}

func TestCreateUnknownAgent(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateVisaInput{
		HolderName: "X", HolderNationality: "IN", PassportNumber: "P1",
		AgentID: uuid.New(), HardDeadline: f.now.AddDate(0, 6, 0),
	})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestRecordExpenseValidation(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)
	ctx := context.Background()

	tests := []struct {
		name  string
		input RecordExpenseInput
		kind  apperr.Kind
	}{
		{
			name:  "unknown bucket",
			input: RecordExpenseInput{Bucket: "Stage9", AmountFils: 100, IncurredOn: f.now},
			kind:  apperr.KindValidation,
		},
		{
			name:  "replacement bucket not recordable directly",
			input: RecordExpenseInput{Bucket: "Replacement", AmountFils: 100, IncurredOn: f.now},
			kind:  apperr.KindValidation,
		},
		{
			name:  "zero amount",
			input: RecordExpenseInput{Bucket: "Stage1", AmountFils: 0, IncurredOn: f.now},
			kind:  apperr.KindValidation,
		},
		{
			name:  "negative amount",
			input: RecordExpenseInput{Bucket: "Stage1", AmountFils: -50, IncurredOn: f.now},
			kind:  apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordExpense(ctx, detail.ID, tt.input)
			if !apperr.Is(err, tt.kind) {
				t.Errorf("expected kind %v, got %v", tt.kind, err)
			}
		})
	}

	// nothing made it to the ledger
	after, err := f.svc.Get(ctx, detail.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(after.Expenses) != 0 || after.TotalExpensesFils != 0 {
		t.Errorf("ledger changed after rejected expenses: %d entries, total %d", len(after.Expenses), after.TotalExpensesFils)
	}
}

func TestRecordExpenseAfterListingRejected(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)
	f.listForSale(t, detail.ID)

	_, err := f.svc.RecordExpense(context.Background(), detail.ID, RecordExpenseInput{
		Bucket: "Stage2", AmountFils: 500, IncurredOn: f.now,
	})
	if !apperr.Is(err, apperr.KindGuard) {
		t.Errorf("expected Guard, got %v", err)
	}
}

func TestStageOneRequiresExpense(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)
	ctx := context.Background()

	_, err := f.svc.AdvanceStage(ctx, detail.ID, "Stage1", domain.ModeComplete)
	if !apperr.Is(err, apperr.KindGuard) {
		t.Fatalf("expected Guard before any Stage1 expense, got %v", err)
	}

	_, err = f.svc.AdvanceStage(ctx, detail.ID, "Stage1", domain.ModeSkip)
	if !apperr.Is(err, apperr.KindGuard) {
		t.Fatalf("expected Guard on Stage1 skip, got %v", err)
	}

	if _, err := f.svc.RecordExpense(ctx, detail.ID, RecordExpenseInput{
		Bucket: "Stage1", AmountFils: 10000, IncurredOn: f.now,
	}); err != nil {
		t.Fatalf("RecordExpense() error = %v", err)
	}

	after, err := f.svc.AdvanceStage(ctx, detail.ID, "Stage1", domain.ModeComplete)
	if err != nil {
		t.Fatalf("AdvanceStage() error = %v", err)
	}
	if after.Stage != "Stage2" {
		t.Errorf("Stage = %s, want Stage2", after.Stage)
	}
}

func TestAdvanceWrongStageRejected(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)

	_, err := f.svc.AdvanceStage(context.Background(), detail.ID, "Stage3", domain.ModeSkip)
	if !apperr.Is(err, apperr.KindGuard) {
		t.Errorf("expected Guard acting on a non-current stage, got %v", err)
	}
}

func TestFinalAdvanceListsForSale(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)
	f.advanceTo(t, detail.ID, domain.Stage4)

	after, err := f.svc.AdvanceStage(context.Background(), detail.ID, "Stage4", domain.ModeSkip)
	if err != nil {
		t.Fatalf("AdvanceStage(Stage4) error = %v", err)
	}
	if after.Stage != "StageComplete" {
		t.Errorf("Stage = %s, want StageComplete", after.Stage)
	}
	if after.Status != "ListedForSale" {
		t.Errorf("Status = %s, want ListedForSale", after.Status)
	}
	if after.CompletedAt == nil || !after.CompletedAt.Equal(f.now) {
		t.Errorf("CompletedAt = %v, want %v", after.CompletedAt, f.now)
	}
}

func TestVerifyArrival(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)
	ctx := context.Background()
	verifier := uuid.New()

	// too early: still at Stage1
	_, err := f.svc.VerifyArrival(ctx, detail.ID, VerifyArrivalInput{ArrivalDate: f.now, VerifiedBy: verifier})
	if !apperr.Is(err, apperr.KindGuard) {
		t.Fatalf("expected Guard at Stage1, got %v", err)
	}

	f.advanceTo(t, detail.ID, domain.Stage2)

	// an arrival predating the visa itself is rejected
	_, err = f.svc.VerifyArrival(ctx, detail.ID, VerifyArrivalInput{
		ArrivalDate: f.now.AddDate(0, 0, -1), VerifiedBy: verifier,
	})
	if !apperr.Is(err, apperr.KindGuard) {
		t.Fatalf("expected Guard for arrival before creation, got %v", err)
	}

	// beneficiary landed yesterday, verified today
	f.now = f.now.AddDate(0, 0, 5)
	arrivalDate := f.now.AddDate(0, 0, -1)
	after, err := f.svc.VerifyArrival(ctx, detail.ID, VerifyArrivalInput{
		ArrivalDate: arrivalDate, VerifiedBy: verifier, Notes: "landed DXB",
	})
	if err != nil {
		t.Fatalf("VerifyArrival() error = %v", err)
	}
	if after.Arrival == nil {
		t.Fatal("expected arrival record")
	}
	wantDeadline := arrivalDate.AddDate(0, 0, 30)
	if !after.Arrival.DeadlineAt.Equal(wantDeadline) {
		t.Errorf("DeadlineAt = %v, want %v", after.Arrival.DeadlineAt, wantDeadline)
	}

	// one-shot
	_, err = f.svc.VerifyArrival(ctx, detail.ID, VerifyArrivalInput{ArrivalDate: arrivalDate, VerifiedBy: verifier})
	if !apperr.Is(err, apperr.KindGuard) {
		t.Errorf("expected Guard on double verification, got %v", err)
	}
}

func TestArrivalStatusProgression(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)
	ctx := context.Background()

	status, err := f.svc.GetArrivalStatus(ctx, detail.ID)
	if err != nil {
		t.Fatalf("GetArrivalStatus() error = %v", err)
	}
	if status.State != domain.DeadlineInactive {
		t.Errorf("State = %s, want inactive before verification", status.State)
	}

	f.advanceTo(t, detail.ID, domain.Stage2)
	if _, err := f.svc.VerifyArrival(ctx, detail.ID, VerifyArrivalInput{ArrivalDate: f.now, VerifiedBy: uuid.New()}); err != nil {
		t.Fatalf("VerifyArrival() error = %v", err)
	}

	status, _ = f.svc.GetArrivalStatus(ctx, detail.ID)
	if status.State != domain.DeadlineActive {
		t.Errorf("State = %s, want active inside grace period", status.State)
	}

	f.now = f.now.AddDate(0, 0, 30)
	status, _ = f.svc.GetArrivalStatus(ctx, detail.ID)
	if status.State != domain.DeadlineExpired {
		t.Errorf("State = %s, want expired at the deadline instant", status.State)
	}
}

func TestSellSettlement(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)
	ctx := context.Background()

	// 10,000 recorded by advanceTo's Stage1 expense; add 20,000 more
	f.advanceTo(t, detail.ID, domain.Stage2)
	if _, err := f.svc.RecordExpense(ctx, detail.ID, RecordExpenseInput{
		Bucket: "Stage2", AmountFils: 20000, IncurredOn: f.now,
	}); err != nil {
		t.Fatalf("RecordExpense() error = %v", err)
	}
	for _, stage := range []string{"Stage2", "Stage3", "Stage4"} {
		if _, err := f.svc.AdvanceStage(ctx, detail.ID, stage, domain.ModeComplete); err != nil {
			t.Fatalf("AdvanceStage(%s) error = %v", stage, err)
		}
	}

	after, err := f.svc.Sell(ctx, detail.ID, SellInput{
		PriceFils: 100000, BuyerName: "Buyer", BuyerContact: "0501234567",
	})
	if err != nil {
		t.Fatalf("Sell() error = %v", err)
	}

	if after.Status != "Sold" {
		t.Errorf("Status = %s, want Sold", after.Status)
	}
	if after.Sale == nil {
		t.Fatal("expected sale record")
	}
	if after.Sale.ProfitFils != 70000 {
		t.Errorf("ProfitFils = %d, want 70000", after.Sale.ProfitFils)
	}
	if after.Sale.AgentEarningsFils != 14000 {
		t.Errorf("AgentEarningsFils = %d, want 14000", after.Sale.AgentEarningsFils)
	}

	if len(f.dir.credits) != 1 {
		t.Fatalf("credits = %d, want 1", len(f.dir.credits))
	}
	if f.dir.credits[0].AmountFils != 14000 || f.dir.credits[0].Kind != "profit_share" {
		t.Errorf("credit = %+v", f.dir.credits[0])
	}
}

func TestSellLossMakingSale(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)
	ctx := context.Background()

	f.advanceTo(t, detail.ID, domain.Stage2)
	if _, err := f.svc.RecordExpense(ctx, detail.ID, RecordExpenseInput{
		Bucket: "Stage2", AmountFils: 70000, IncurredOn: f.now,
	}); err != nil {
		t.Fatalf("RecordExpense() error = %v", err)
	}
	for _, stage := range []string{"Stage2", "Stage3", "Stage4"} {
		if _, err := f.svc.AdvanceStage(ctx, detail.ID, stage, domain.ModeSkip); err != nil {
			t.Fatalf("AdvanceStage(%s) error = %v", stage, err)
		}
	}

	// 80,000 spent, sold for 50,000: agent carries the loss share
	after, err := f.svc.Sell(ctx, detail.ID, SellInput{
		PriceFils: 50000, BuyerName: "Buyer", BuyerContact: "0501234567",
	})
	if err != nil {
		t.Fatalf("Sell() error = %v", err)
	}
	if after.Sale.ProfitFils != -30000 {
		t.Errorf("ProfitFils = %d, want -30000", after.Sale.ProfitFils)
	}
	if after.Sale.AgentEarningsFils != -6000 {
		t.Errorf("AgentEarningsFils = %d, want -6000", after.Sale.AgentEarningsFils)
	}
}

func TestSellCrossAgentCommission(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)
	f.listForSale(t, detail.ID)
	ctx := context.Background()

	seller := f.dir.addAgent(1500)
	commission := int64(5000)

	after, err := f.svc.Sell(ctx, detail.ID, SellInput{
		PriceFils: 100000, BuyerName: "Buyer", BuyerContact: "0501234567",
		SellingAgentID: &seller, CommissionFils: &commission,
	})
	if err != nil {
		t.Fatalf("Sell() error = %v", err)
	}

	// settlement fixed before the commission hits the ledger
	if after.Sale.ProfitFils != 90000 {
		t.Errorf("ProfitFils = %d, want 90000", after.Sale.ProfitFils)
	}
	if after.TotalExpensesFils != 15000 {
		t.Errorf("TotalExpensesFils = %d, want 15000 (stage expense plus commission)", after.TotalExpensesFils)
	}
	if got := after.StageExpenseCount("Commission"); got != 1 {
		t.Errorf("commission ledger entries = %d, want 1", got)
	}

	if len(f.dir.credits) != 2 {
		t.Fatalf("credits = %d, want 2", len(f.dir.credits))
	}
	if f.dir.credits[1].AgentID != seller || f.dir.credits[1].AmountFils != 5000 || f.dir.credits[1].Kind != "commission" {
		t.Errorf("selling agent credit = %+v", f.dir.credits[1])
	}
}

func TestSellGuards(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)
	ctx := context.Background()

	// not listed yet
	_, err := f.svc.Sell(ctx, detail.ID, SellInput{PriceFils: 100000, BuyerName: "B", BuyerContact: "x"})
	if !apperr.Is(err, apperr.KindGuard) {
		t.Errorf("expected Guard selling an in-procurement visa, got %v", err)
	}

	f.listForSale(t, detail.ID)

	// commission without a distinct selling agent
	commission := int64(5000)
	_, err = f.svc.Sell(ctx, detail.ID, SellInput{
		PriceFils: 100000, BuyerName: "B", BuyerContact: "x", CommissionFils: &commission,
	})
	if !apperr.Is(err, apperr.KindGuard) {
		t.Errorf("expected Guard on orphan commission, got %v", err)
	}

	// owning agent as selling agent with commission
	owner := detail.AgentID
	_, err = f.svc.Sell(ctx, detail.ID, SellInput{
		PriceFils: 100000, BuyerName: "B", BuyerContact: "x",
		SellingAgentID: &owner, CommissionFils: &commission,
	})
	if !apperr.Is(err, apperr.KindGuard) {
		t.Errorf("expected Guard on commission for the owning agent, got %v", err)
	}
}

func TestCancelManual(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)
	ctx := context.Background()

	after, err := f.svc.Cancel(ctx, detail.ID, "applicant withdrew")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if after.Status != "Cancelled" {
		t.Errorf("Status = %s, want Cancelled", after.Status)
	}
	if after.CancelledBySystem {
		t.Error("manual cancel must not be flagged as system")
	}
	if after.CancelReason == nil || *after.CancelReason != "applicant withdrew" {
		t.Errorf("CancelReason = %v", after.CancelReason)
	}

	// cancelling again is a guard failure
	_, err = f.svc.Cancel(ctx, detail.ID, "again")
	if !apperr.Is(err, apperr.KindGuard) {
		t.Errorf("expected Guard on double cancel, got %v", err)
	}
}

func TestCancelBySweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("expired deadline cancels with system flag", func(t *testing.T) {
		detail := f.createVisa(t, 2000)
		f.advanceTo(t, detail.ID, domain.Stage2)
		if _, err := f.svc.VerifyArrival(ctx, detail.ID, VerifyArrivalInput{ArrivalDate: f.now, VerifiedBy: uuid.New()}); err != nil {
			t.Fatalf("VerifyArrival() error = %v", err)
		}

		f.now = f.now.AddDate(0, 0, 31)
		if err := f.svc.CancelBySweep(ctx, detail.ID); err != nil {
			t.Fatalf("CancelBySweep() error = %v", err)
		}

		after, _ := f.svc.Get(ctx, detail.ID)
		if after.Status != "Cancelled" || !after.CancelledBySystem {
			t.Errorf("Status = %s, BySystem = %v", after.Status, after.CancelledBySystem)
		}

		var expired *events.VisaDeadlineExpired
		f.bus.mu.Lock()
		for _, e := range f.bus.published {
			if ev, ok := e.(events.VisaDeadlineExpired); ok && ev.VisaID == detail.ID {
				expired = &ev
			}
		}
		f.bus.mu.Unlock()
		if expired == nil {
			t.Fatalf("expected %s event, published: %v", events.EventVisaDeadlineExpired, f.bus.names())
		}
		if !expired.DeadlineAt.Equal(f.now.AddDate(0, 0, -1)) {
			t.Errorf("DeadlineAt = %v, want the expired deadline", expired.DeadlineAt)
		}
		f.now = f.now.AddDate(0, 0, -31)
	})

	t.Run("no-op before deadline", func(t *testing.T) {
		detail := f.createVisa(t, 2000)
		f.advanceTo(t, detail.ID, domain.Stage2)
		if _, err := f.svc.VerifyArrival(ctx, detail.ID, VerifyArrivalInput{ArrivalDate: f.now, VerifiedBy: uuid.New()}); err != nil {
			t.Fatalf("VerifyArrival() error = %v", err)
		}

		if err := f.svc.CancelBySweep(ctx, detail.ID); err != nil {
			t.Fatalf("CancelBySweep() error = %v", err)
		}
		after, _ := f.svc.Get(ctx, detail.ID)
		if after.Status != "InProcurement" {
			t.Errorf("Status = %s, want untouched InProcurement", after.Status)
		}
	})

	t.Run("no-op on sold visa", func(t *testing.T) {
		detail := f.createVisa(t, 2000)
		f.listForSale(t, detail.ID)
		if _, err := f.svc.Sell(ctx, detail.ID, SellInput{PriceFils: 50000, BuyerName: "B", BuyerContact: "x"}); err != nil {
			t.Fatalf("Sell() error = %v", err)
		}

		if err := f.svc.CancelBySweep(ctx, detail.ID); err != nil {
			t.Fatalf("CancelBySweep() error = %v", err)
		}
		after, _ := f.svc.Get(ctx, detail.ID)
		if after.Status != "Sold" {
			t.Errorf("Status = %s, want Sold left alone", after.Status)
		}
	})

	t.Run("no-op when arrival never verified", func(t *testing.T) {
		detail := f.createVisa(t, 2000)
		if err := f.svc.CancelBySweep(ctx, detail.ID); err != nil {
			t.Fatalf("CancelBySweep() error = %v", err)
		}
		after, _ := f.svc.Get(ctx, detail.ID)
		if after.Status != "InProcurement" {
			t.Errorf("Status = %s, want InProcurement", after.Status)
		}
	})
}

func TestReplaceSpawnsSuccessor(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)
	f.advanceTo(t, detail.ID, domain.Stage3)
	ctx := context.Background()

	cost := int64(7500)
	successor, err := f.svc.Replace(ctx, detail.ID, ReplaceInput{
		VisaNumber: "784-2026-002", ReplacementCost: &cost,
	})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if successor.ID == detail.ID {
		t.Fatal("successor must be a new visa")
	}
	if successor.Stage != "Stage1" || successor.Status != "InProcurement" {
		t.Errorf("successor Stage/Status = %s/%s", successor.Stage, successor.Status)
	}
	if !successor.IsReplaced {
		t.Error("successor must carry the isReplaced flag")
	}
	if successor.HolderName != detail.HolderName {
		t.Errorf("HolderName = %s, want inherited %s", successor.HolderName, detail.HolderName)
	}
	if successor.VisaNumber != "784-2026-002" {
		t.Errorf("VisaNumber = %s", successor.VisaNumber)
	}
	if successor.TotalExpensesFils != 7500 || successor.StageExpenseCount("Replacement") != 1 {
		t.Errorf("replacement cost not on successor ledger: total %d", successor.TotalExpensesFils)
	}
	if successor.AgentID != detail.AgentID || successor.ProfitShareBps != detail.ProfitShareBps {
		t.Error("successor must inherit the owning agent and profit share")
	}

	old, _ := f.svc.Get(ctx, detail.ID)
	if old.Status != "Replaced" {
		t.Errorf("old Status = %s, want Replaced", old.Status)
	}
	if old.ReplacedByID == nil || *old.ReplacedByID != successor.ID {
		t.Errorf("old ReplacedByID = %v, want %s", old.ReplacedByID, successor.ID)
	}

	// chains are prohibited
	_, err = f.svc.Replace(ctx, successor.ID, ReplaceInput{})
	if !apperr.Is(err, apperr.KindGuard) {
		t.Errorf("expected Guard replacing a replacement, got %v", err)
	}
}

func TestReplaceOutsideWindow(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)

	f.now = f.now.AddDate(0, 0, 20)
	_, err := f.svc.Replace(context.Background(), detail.ID, ReplaceInput{})
	if !apperr.Is(err, apperr.KindGuard) {
		t.Fatalf("expected Guard past the window, got %v", err)
	}

	eligibility, err := f.svc.GetReplacementEligibility(context.Background(), detail.ID)
	if err != nil {
		t.Fatalf("GetReplacementEligibility() error = %v", err)
	}
	if eligibility.Eligible {
		t.Error("expected ineligible past the window")
	}
	if eligibility.DaysSinceCreation != 20 || eligibility.RemainingDays != 0 {
		t.Errorf("days = %d, remaining = %d", eligibility.DaysSinceCreation, eligibility.RemainingDays)
	}
}

// TestConcurrentSellAndSweep races a sale against a sweep cancellation on
// the same snapshot. Exactly one transition may win; the visa must end in a
// single terminal state.
func TestConcurrentSellAndSweep(t *testing.T) {
	f := newFixture(t)
	detail := f.createVisa(t, 2000)
	f.advanceTo(t, detail.ID, domain.Stage2)
	ctx := context.Background()

	if _, err := f.svc.VerifyArrival(ctx, detail.ID, VerifyArrivalInput{ArrivalDate: f.now, VerifiedBy: uuid.New()}); err != nil {
		t.Fatalf("VerifyArrival() error = %v", err)
	}
	for _, stage := range []string{"Stage2", "Stage3", "Stage4"} {
		if _, err := f.svc.AdvanceStage(ctx, detail.ID, stage, domain.ModeSkip); err != nil {
			t.Fatalf("AdvanceStage(%s) error = %v", stage, err)
		}
	}
	f.now = f.now.AddDate(0, 0, 31)

	var wg sync.WaitGroup
	var sellErr, sweepErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, sellErr = f.svc.Sell(ctx, detail.ID, SellInput{PriceFils: 80000, BuyerName: "B", BuyerContact: "x"})
	}()
	go func() {
		defer wg.Done()
		sweepErr = f.svc.CancelBySweep(ctx, detail.ID)
	}()
	wg.Wait()

	if sweepErr != nil {
		t.Errorf("CancelBySweep() must absorb lost races, got %v", sweepErr)
	}

	after, err := f.svc.Get(ctx, detail.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	switch after.Status {
	case "Sold":
		if sellErr != nil {
			t.Errorf("visa is Sold but Sell() returned %v", sellErr)
		}
		if after.Sale == nil {
			t.Error("Sold visa missing sale record")
		}
	case "Cancelled":
		if sellErr == nil {
			t.Error("visa is Cancelled but Sell() reported success")
		}
		if !apperr.Is(sellErr, apperr.KindConflict) && !apperr.Is(sellErr, apperr.KindGuard) {
			t.Errorf("losing Sell() error = %v", sellErr)
		}
	default:
		t.Errorf("Status = %s, want a single terminal state", after.Status)
	}
}
