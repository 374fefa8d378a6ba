package account

import (
	"testing"
	"time"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestFreeTimeStatusAt(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(7 * 24 * time.Hour)

	tests := []struct {
		name    string
		account Account
		now     time.Time
		want    FreeTimeStatus
	}{
		{
			name:    "no dates set",
			account: Account{},
			now:     start,
			want:    FreeTimeNone,
		},
		{
			name:    "only start set",
			account: Account{FreetimeStartDate: timePtr(start)},
			now:     start,
			want:    FreeTimeNone,
		},
		{
			name:    "before window",
			account: Account{FreetimeStartDate: timePtr(start), FreetimeEndDate: timePtr(end)},
			now:     start.Add(-time.Hour),
			want:    FreeTimePending,
		},
		{
			name:    "at start boundary",
			account: Account{FreetimeStartDate: timePtr(start), FreetimeEndDate: timePtr(end)},
			now:     start,
			want:    FreeTimeActive,
		},
		{
			name:    "one day in",
			account: Account{FreetimeStartDate: timePtr(start), FreetimeEndDate: timePtr(end)},
			now:     start.Add(24 * time.Hour),
			want:    FreeTimeActive,
		},
		{
			name:    "at end boundary",
			account: Account{FreetimeStartDate: timePtr(start), FreetimeEndDate: timePtr(end)},
			now:     end,
			want:    FreeTimeActive,
		},
		{
			name:    "one day past end",
			account: Account{FreetimeStartDate: timePtr(start), FreetimeEndDate: timePtr(end)},
			now:     end.Add(24 * time.Hour),
			want:    FreeTimeExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.account.FreeTimeStatusAt(tt.now); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsAdmin(t *testing.T) {
	a := Account{Roles: []string{"member", "admin"}}
	if !a.IsAdmin() {
		t.Error("expected admin")
	}

	b := Account{Roles: []string{"member"}}
	if b.IsAdmin() {
		t.Error("expected non-admin")
	}

	c := Account{}
	if c.IsAdmin() {
		t.Error("expected non-admin for empty roles")
	}
}

func TestMembershipStatusValid(t *testing.T) {
	for _, s := range []MembershipStatus{StatusNone, StatusPending, StatusApproved, StatusRejected} {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if MembershipStatus("cancelled").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestDecisionValid(t *testing.T) {
	if !DecisionApprove.Valid() || !DecisionReject.Valid() {
		t.Error("expected approve and reject to be valid")
	}
	if Decision("defer").Valid() {
		t.Error("expected unknown decision to be invalid")
	}
}

func TestInsufficientPointsError(t *testing.T) {
	err := &InsufficientPointsError{Current: 10, Required: 50}
	want := "insufficient points: have 10, need 50"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
