package domain

import (
	"testing"
	"time"
)

func TestValidateArrival(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	createdAt := now.AddDate(0, 0, -40)

	tests := []struct {
		name        string
		stage       Stage
		status      Status
		arrivalDate time.Time
		wantReasons int
	}{
		{"stage2 valid arrival", Stage2, StatusInProcurement, now.AddDate(0, 0, -2), 0},
		{"stage4 valid arrival", Stage4, StatusInProcurement, now.AddDate(0, 0, -1), 0},
		{"listed visa still verifiable", StageComplete, StatusListedForSale, now.AddDate(0, 0, -1), 0},
		{"stage1 too early", Stage1, StatusInProcurement, now.AddDate(0, 0, -2), 1},
		{"sold visa", StageComplete, StatusSold, now.AddDate(0, 0, -2), 1},
		{"arrival before creation", Stage3, StatusInProcurement, createdAt.AddDate(0, 0, -5), 1},
		{"arrival in the future", Stage3, StatusInProcurement, now.AddDate(0, 0, 1), 1},
		{"everything wrong at once", Stage1, StatusCancelled, now.AddDate(0, 0, 1), 3},
	}

	for _, tc := range tests {
		reasons := ValidateArrival(tc.stage, tc.status, createdAt, tc.arrivalDate, now)
		if len(reasons) != tc.wantReasons {
			t.Errorf("%s: got %d reasons %v, want %d", tc.name, len(reasons), reasons, tc.wantReasons)
		}
	}
}

func TestEvaluateDeadline(t *testing.T) {
	arrival := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	deadline := CancellationDeadline(arrival, 30)

	if want := arrival.AddDate(0, 0, 30); !deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", deadline, want)
	}

	tests := []struct {
		name     string
		verified bool
		now      time.Time
		want     DeadlineState
	}{
		{"unverified is protected", false, deadline.AddDate(0, 0, 365), DeadlineInactive},
		{"immediately after verification", true, arrival.Add(time.Hour), DeadlineActive},
		{"one second before deadline", true, deadline.Add(-time.Second), DeadlineActive},
		{"exactly at deadline", true, deadline, DeadlineExpired},
		{"past deadline", true, deadline.AddDate(0, 0, 3), DeadlineExpired},
	}

	for _, tc := range tests {
		if got := EvaluateDeadline(tc.verified, deadline, tc.now); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}
