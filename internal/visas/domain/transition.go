package domain

import "fmt"

// AdvanceMode distinguishes completing a stage (work done) from skipping it.
// Both move the pipeline forward through the same code path so the
// monotonic-stage invariant is enforced in exactly one place.
type AdvanceMode string

const (
	ModeComplete AdvanceMode = "Complete"
	ModeSkip     AdvanceMode = "Skip"
)

// ParseAdvanceMode validates a mode token.
func ParseAdvanceMode(raw string) (AdvanceMode, bool) {
	switch m := AdvanceMode(raw); m {
	case ModeComplete, ModeSkip:
		return m, true
	default:
		return "", false
	}
}

// CanAdvance checks whether the given stage may be completed or skipped.
// Returns a non-empty blocking reason when the transition must be denied;
// an empty string means the advance is permitted.
//
// Rules:
//   - only the currently active stage may be acted on;
//   - the visa must still be in procurement;
//   - Stage1 requires at least one Stage1 expense to complete;
//   - Stage1 can never be skipped.
func CanAdvance(current Stage, status Status, target Stage, mode AdvanceMode, stage1Expenses int) string {
	if !target.IsWorkStage() {
		return fmt.Sprintf("%s is not an actionable stage", target)
	}
	if status != StatusInProcurement {
		return fmt.Sprintf("visa status is %s; stages can only advance while in procurement", status)
	}
	if current != target {
		return fmt.Sprintf("stage %s is not the current stage (current is %s)", target, current)
	}
	if target == Stage1 {
		if mode == ModeSkip {
			return "Stage1 can never be skipped"
		}
		if stage1Expenses < 1 {
			return "Stage1 cannot be completed without at least one Stage1 expense"
		}
	}
	return ""
}

// AdvanceResult is the state a permitted advance produces.
type AdvanceResult struct {
	Stage Stage
	// Listed is true when the advance left the final stage: the visa
	// simultaneously reaches StageComplete and ListedForSale.
	Listed bool
}

// Advance computes the successor state for a permitted advance. Callers must
// have checked CanAdvance first; Advance panics on an impossible stage to
// keep the invariant violation loud.
func Advance(current Stage) AdvanceResult {
	next, ok := current.Next()
	if !ok {
		panic(fmt.Sprintf("advance from non-advanceable stage %s", current))
	}
	return AdvanceResult{
		Stage:  next,
		Listed: next == StageComplete,
	}
}
