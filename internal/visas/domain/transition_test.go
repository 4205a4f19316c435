package domain

import "testing"

func TestCanAdvance(t *testing.T) {
	tests := []struct {
		name           string
		current        Stage
		status         Status
		target         Stage
		mode           AdvanceMode
		stage1Expenses int
		wantBlocked    bool
	}{
		{"stage1 complete without expenses", Stage1, StatusInProcurement, Stage1, ModeComplete, 0, true},
		{"stage1 complete with one expense", Stage1, StatusInProcurement, Stage1, ModeComplete, 1, false},
		{"stage1 skip with expenses", Stage1, StatusInProcurement, Stage1, ModeSkip, 3, true},
		{"stage1 skip without expenses", Stage1, StatusInProcurement, Stage1, ModeSkip, 0, true},
		{"stage2 complete without expenses", Stage2, StatusInProcurement, Stage2, ModeComplete, 0, false},
		{"stage2 skip", Stage2, StatusInProcurement, Stage2, ModeSkip, 0, false},
		{"stage4 skip", Stage4, StatusInProcurement, Stage4, ModeSkip, 0, false},
		{"not the current stage", Stage2, StatusInProcurement, Stage3, ModeComplete, 0, true},
		{"behind the current stage", Stage3, StatusInProcurement, Stage2, ModeComplete, 0, true},
		{"listed for sale", StageComplete, StatusListedForSale, Stage4, ModeComplete, 0, true},
		{"cancelled visa", Stage2, StatusCancelled, Stage2, ModeComplete, 0, true},
		{"stage complete is not actionable", StageComplete, StatusInProcurement, StageComplete, ModeComplete, 0, true},
	}

	for _, tc := range tests {
		reason := CanAdvance(tc.current, tc.status, tc.target, tc.mode, tc.stage1Expenses)
		if tc.wantBlocked && reason == "" {
			t.Errorf("%s: expected a blocking reason, got none", tc.name)
		}
		if !tc.wantBlocked && reason != "" {
			t.Errorf("%s: unexpected blocking reason: %s", tc.name, reason)
		}
	}
}

func TestAdvanceSequence(t *testing.T) {
	want := []Stage{Stage2, Stage3, Stage4, StageComplete}

	current := Stage1
	for i, expected := range want {
		result := Advance(current)
		if result.Stage != expected {
			t.Fatalf("advance %d: got %s, want %s", i, result.Stage, expected)
		}
		if result.Stage.Rank() <= current.Rank() {
			t.Fatalf("advance %d: rank did not increase (%s -> %s)", i, current, result.Stage)
		}
		wantListed := expected == StageComplete
		if result.Listed != wantListed {
			t.Fatalf("advance %d: Listed = %v, want %v", i, result.Listed, wantListed)
		}
		current = result.Stage
	}
}

func TestParseStageRejectsUnknown(t *testing.T) {
	if _, ok := ParseStage("Stage5"); ok {
		t.Error("Stage5 should not parse")
	}
	if _, ok := ParseStage(""); ok {
		t.Error("empty stage should not parse")
	}
	if s, ok := ParseStage("Stage3"); !ok || s != Stage3 {
		t.Errorf("Stage3 should parse, got %q ok=%v", s, ok)
	}
}

func TestParseAdvanceMode(t *testing.T) {
	if m, ok := ParseAdvanceMode("Complete"); !ok || m != ModeComplete {
		t.Errorf("Complete should parse, got %q ok=%v", m, ok)
	}
	if m, ok := ParseAdvanceMode("Skip"); !ok || m != ModeSkip {
		t.Errorf("Skip should parse, got %q ok=%v", m, ok)
	}
	if _, ok := ParseAdvanceMode("Rewind"); ok {
		t.Error("Rewind should not parse")
	}
}

func TestParseStageBucket(t *testing.T) {
	if _, ok := ParseStageBucket(string(BucketReplacement)); ok {
		t.Error("replacement bucket must not be writable via recordExpense")
	}
	if _, ok := ParseStageBucket(string(BucketCommission)); ok {
		t.Error("commission bucket must not be writable via recordExpense")
	}
	for _, raw := range []string{"Stage1", "Stage2", "Stage3", "Stage4"} {
		if _, ok := ParseStageBucket(raw); !ok {
			t.Errorf("%s should be a valid expense bucket", raw)
		}
	}
}

func TestIsTerminalStatus(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusInProcurement, false},
		{StatusListedForSale, false},
		{StatusSold, true},
		{StatusCancelled, true},
		{StatusReplaced, true},
	}

	for _, tc := range tests {
		if got := IsTerminalStatus(tc.status); got != tc.want {
			t.Errorf("IsTerminalStatus(%s) = %v, want %v", tc.status, got, tc.want)
		}
	}
}
