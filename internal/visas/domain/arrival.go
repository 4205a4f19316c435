package domain

import (
	"fmt"
	"time"
)

// DeadlineState describes where a visa stands against its cancellation
// countdown.
type DeadlineState string

const (
	// DeadlineInactive: arrival not verified yet. The visa is protected
	// and can never be auto-cancelled before verification.
	DeadlineInactive DeadlineState = "inactive"
	// DeadlineActive: arrival verified, countdown running.
	DeadlineActive DeadlineState = "active"
	// DeadlineExpired: the grace period has elapsed; the visa is eligible
	// for automatic cancellation.
	DeadlineExpired DeadlineState = "expired"
)

// ValidateArrival checks whether arrival may be verified for the visa.
// Returns every violated condition; an empty slice means verification is
// permitted. Arrival refers to the physical beneficiary, so a visa becomes
// verifiable once procurement has reached Stage2, and stays verifiable
// until a terminal status.
func ValidateArrival(current Stage, status Status, createdAt, arrivalDate, now time.Time) []string {
	var reasons []string

	if current.Rank() < Stage2.Rank() {
		reasons = append(reasons,
			fmt.Sprintf("arrival cannot be verified before procurement reaches %s (current stage is %s)", Stage2, current))
	}
	if IsTerminalStatus(status) {
		reasons = append(reasons,
			fmt.Sprintf("visa status is %s; arrival cannot be verified on a terminal visa", status))
	}
	if arrivalDate.Before(createdAt) {
		reasons = append(reasons, "arrival date is before the visa was created")
	}
	if arrivalDate.After(now) {
		reasons = append(reasons, "arrival date is in the future")
	}

	return reasons
}

// CancellationDeadline derives the auto-cancellation deadline from a
// verified arrival date.
func CancellationDeadline(arrivalDate time.Time, graceDays int) time.Time {
	return arrivalDate.AddDate(0, 0, graceDays)
}

// EvaluateDeadline reports the deadline state. deadline is ignored when
// verified is false. The boundary is inclusive: the deadline instant itself
// counts as expired.
func EvaluateDeadline(verified bool, deadline time.Time, now time.Time) DeadlineState {
	if !verified {
		return DeadlineInactive
	}
	if now.Before(deadline) {
		return DeadlineActive
	}
	return DeadlineExpired
}
