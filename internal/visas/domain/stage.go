// Package domain provides the core business rules for the visas bounded
// context: stage progression, replacement eligibility, arrival deadlines,
// and settlement arithmetic. Everything here is pure; persistence and
// transport live elsewhere.
package domain

// Stage is one of the ordered procurement phases a visa moves through
// before it can be listed for sale.
type Stage string

const (
	Stage1        Stage = "Stage1"
	Stage2        Stage = "Stage2"
	Stage3        Stage = "Stage3"
	Stage4        Stage = "Stage4"
	StageComplete Stage = "StageComplete"
)

// stageOrder gives every stage a monotonic rank. currentStage only ever
// moves to a higher rank.
var stageOrder = map[Stage]int{
	Stage1:        1,
	Stage2:        2,
	Stage3:        3,
	Stage4:        4,
	StageComplete: 5,
}

// ParseStage validates a stage token. The boolean is false for unknown input.
func ParseStage(raw string) (Stage, bool) {
	s := Stage(raw)
	_, ok := stageOrder[s]
	return s, ok
}

// Rank returns the stage's position in the pipeline (Stage1 = 1).
// Unknown stages rank 0.
func (s Stage) Rank() int {
	return stageOrder[s]
}

// Next returns the stage that follows s. The boolean is false when s is
// StageComplete or unknown.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case Stage1:
		return Stage2, true
	case Stage2:
		return Stage3, true
	case Stage3:
		return Stage4, true
	case Stage4:
		return StageComplete, true
	default:
		return "", false
	}
}

// IsWorkStage reports whether s is one of the four actionable stages
// (StageComplete is a resting state, not an actionable one).
func (s Stage) IsWorkStage() bool {
	return s == Stage1 || s == Stage2 || s == Stage3 || s == Stage4
}

// Status is the lifecycle status of a visa.
type Status string

const (
	StatusInProcurement Status = "InProcurement"
	StatusListedForSale Status = "ListedForSale"
	StatusSold          Status = "Sold"
	StatusCancelled     Status = "Cancelled"
	StatusReplaced      Status = "Replaced"
)

// terminalStatuses are statuses after which no command may mutate the visa.
var terminalStatuses = map[Status]bool{
	StatusSold:      true,
	StatusCancelled: true,
	StatusReplaced:  true,
}

// IsTerminalStatus returns true once the visa is Sold, Cancelled or Replaced.
func IsTerminalStatus(status Status) bool {
	return terminalStatuses[status]
}

// ParseStatus validates a status token. The boolean is false for unknown input.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusInProcurement, StatusListedForSale, StatusSold, StatusCancelled, StatusReplaced:
		return s, true
	default:
		return "", false
	}
}

// ExpenseBucket partitions the expense ledger: one bucket per work stage
// plus a separate bucket for the cost of creating a visa via replacement.
type ExpenseBucket string

const (
	BucketStage1      ExpenseBucket = "Stage1"
	BucketStage2      ExpenseBucket = "Stage2"
	BucketStage3      ExpenseBucket = "Stage3"
	BucketStage4      ExpenseBucket = "Stage4"
	BucketReplacement ExpenseBucket = "Replacement"
	BucketCommission  ExpenseBucket = "Commission"
)

// ParseStageBucket accepts only the four stage buckets callers may record
// expenses into directly. Replacement and Commission entries are written by
// the replace and sell commands, never by recordExpense.
func ParseStageBucket(raw string) (ExpenseBucket, bool) {
	switch b := ExpenseBucket(raw); b {
	case BucketStage1, BucketStage2, BucketStage3, BucketStage4:
		return b, true
	default:
		return "", false
	}
}
