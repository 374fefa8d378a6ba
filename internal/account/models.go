package account

import "time"

// MembershipStatus is the closed set of membership request states.
type MembershipStatus string

const (
	StatusNone     MembershipStatus = "none"
	StatusPending  MembershipStatus = "pending"
	StatusApproved MembershipStatus = "approved"
	StatusRejected MembershipStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s MembershipStatus) Valid() bool {
	switch s {
	case StatusNone, StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// FreeTimeStatus classifies an account's free-time window relative to a
// point in time.
type FreeTimeStatus string

const (
	FreeTimeNone    FreeTimeStatus = "no_free_time"
	FreeTimePending FreeTimeStatus = "pending"
	FreeTimeActive  FreeTimeStatus = "active"
	FreeTimeExpired FreeTimeStatus = "expired"
)

// Decision is an administrator's resolution of a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Key identifies an account within a tenant.
type Key struct {
	UserID    string
	CompanyID string
}

// Profile carries the identity provider's view of a user, used to fill in
// new accounts and to recover existing ones across provider ID churn.
type Profile struct {
	Username  string
	Name      string
	AvatarURL string
	Roles     []string
}

// Account is a user's per-tenant point balance and membership state.
type Account struct {
	ID                    string           `json:"id"`
	UserID                string           `json:"userId"`
	CompanyID             string           `json:"companyId"`
	Username              string           `json:"username"`
	Name                  string           `json:"name"`
	AvatarURL             string           `json:"avatarUrl"`
	Points                int64            `json:"points"`
	FreetimeStartDate     *time.Time       `json:"freetimeStartDate"`
	FreetimeEndDate       *time.Time       `json:"freetimeEndDate"`
	Roles                 []string         `json:"roles"`
	MembershipStatus      MembershipStatus `json:"membershipStatus"`
	MembershipRequestDate *time.Time       `json:"membershipRequestDate"`
	RequestedMembershipID *string          `json:"requestedMembershipId"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`

	// RequestedMembership is the resolved plan behind
	// RequestedMembershipID. Populated by List; nil when the reference
	// dangles (the plan was deleted after the request was made).
	RequestedMembership *RequestedPlan `json:"requestedMembership,omitempty"`
}

// RequestedPlan is the subset of a membership plan attached to admin
// account listings.
type RequestedPlan struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DurationDays int    `json:"duration"`
	Cost         int64  `json:"cost"`
}

// IsAdmin reports whether the account holds the admin role.
func (a *Account) IsAdmin() bool {
	for _, r := range a.Roles {
		if r == "admin" {
			return true
		}
	}
	return false
}

// FreeTimeStatusAt classifies the free-time window relative to now. Both
// boundaries are inclusive: the window is active from its start date
// through its end date.
func (a *Account) FreeTimeStatusAt(now time.Time) FreeTimeStatus {
	if a.FreetimeStartDate == nil || a.FreetimeEndDate == nil {
		return FreeTimeNone
	}
	if now.After(*a.FreetimeEndDate) {
		return FreeTimeExpired
	}
	if now.Before(*a.FreetimeStartDate) {
		return FreeTimePending
	}
	return FreeTimeActive
}
