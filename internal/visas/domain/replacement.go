package domain

import (
	"fmt"
	"time"
)

// ReplacementEligibility is the full evaluation of whether a visa may be
// swapped for a fresh one. When ineligible, Reasons lists every violated
// condition so the caller can present a complete explanation.
type ReplacementEligibility struct {
	Eligible          bool
	DaysSinceCreation int
	RemainingDays     int
	Reasons           []string
}

// EvaluateReplacement decides replacement eligibility at the given instant.
// The window is counted in whole days from the creation timestamp. A visa
// that is itself the product of a replacement can never be replaced again.
func EvaluateReplacement(status Status, createdAt time.Time, isReplaced bool, windowDays int, now time.Time) ReplacementEligibility {
	days := int(now.Sub(createdAt).Hours() / 24)
	if days < 0 {
		days = 0
	}

	result := ReplacementEligibility{
		DaysSinceCreation: days,
		RemainingDays:     windowDays - days,
	}
	if result.RemainingDays < 0 {
		result.RemainingDays = 0
	}

	if IsTerminalStatus(status) {
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("visa status is %s; terminal visas cannot be replaced", status))
	}
	if days > windowDays {
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("replacement window of %d days expired %d days ago", windowDays, days-windowDays))
	}
	if isReplaced {
		result.Reasons = append(result.Reasons,
			"visa is itself the product of a replacement and cannot be replaced again")
	}

	result.Eligible = len(result.Reasons) == 0
	return result
}
