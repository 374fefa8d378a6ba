// Package purchase coordinates the membership request lifecycle: spending
// points on a plan, administrator approval or rejection, and the free-time
// windows those decisions grant.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alecgard/tally/internal/account"
	"github.com/alecgard/tally/internal/catalog"
	"github.com/alecgard/tally/internal/history"
)

var (
	// ErrPlanNotFound is returned when a referenced plan does not exist.
	ErrPlanNotFound = errors.New("membership plan not found")
	// ErrPlanInactive is returned when a purchase targets a deactivated plan.
	ErrPlanInactive = errors.New("membership plan is not active")
	// ErrInvalidDecision is returned for a decision other than approve or reject.
	ErrInvalidDecision = errors.New("decision must be approve or reject")
)

// defaultWindowDays is the free-time window used when an approved request
// references a plan that has since been deleted.
const defaultWindowDays = 7

// Ledger is the subset of the account store the workflow mutates.
type Ledger interface {
	GetByKey(ctx context.Context, key account.Key) (*account.Account, error)
	Debit(ctx context.Context, key account.Key, amount int64) (*account.Account, error)
	SubmitRequest(ctx context.Context, key account.Key, planID string, cost int64, at time.Time) (*account.Account, error)
	ApproveRequest(ctx context.Context, key account.Key, start, end time.Time) (*account.Account, error)
	RejectRequest(ctx context.Context, key account.Key) (*account.Account, error)
	SetPoints(ctx context.Context, key account.Key, value int64) (*account.Account, error)
	GrantFreeTime(ctx context.Context, key account.Key, start, end time.Time) (*account.Account, error)
}

// PlanSource resolves membership plans.
type PlanSource interface {
	GetByID(ctx context.Context, id, companyID string) (*catalog.Plan, error)
}

// Recorder appends audit entries for balance changes.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Options tune workflow behaviour.
type Options struct {
	// RequireApproval holds purchases in the pending state until an
	// administrator decides them. When false a purchase debits and grants
	// its window immediately.
	RequireApproval bool
	// WindowDays is the fallback free-time window, in days, applied when
	// an approved request no longer resolves to a plan. Zero means the
	// built-in default.
	WindowDays int
}

// Workflow runs the membership purchase and approval process.
type Workflow struct {
	ledger Ledger
	plans  PlanSource
	rec    Recorder
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewWorkflow creates a workflow over the given stores.
func NewWorkflow(ledger Ledger, plans PlanSource, rec Recorder, opts Options, logger *slog.Logger) *Workflow {
	if opts.WindowDays <= 0 {
		opts.WindowDays = defaultWindowDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		ledger: ledger,
		plans:  plans,
		rec:    rec,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Purchase spends points on a plan. With approval required the account
// moves to pending; otherwise the points are debited and the free-time
// window is granted immediately, without touching the request state. The
// debit is a single conditional update either way, so an insufficient
// balance leaves the account untouched. The second return value reports
// whether the window was granted in this call.
func (w *Workflow) Purchase(ctx context.Context, key account.Key, planID string) (*account.Account, bool, error) {
	plan, err := w.plans.GetByID(ctx, planID, key.CompanyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrPlanNotFound
		}
		return nil, false, fmt.Errorf("looking up plan: %w", err)
	}
	if !plan.IsActive {
		return nil, false, ErrPlanInactive
	}

	now := w.now()
	var a *account.Account
	reason := history.ReasonMembershipRequest
	granted := false
	if w.opts.RequireApproval {
		a, err = w.ledger.SubmitRequest(ctx, key, plan.ID, plan.Cost, now)
	} else {
		a, err = w.ledger.Debit(ctx, key, plan.Cost)
		if err == nil {
			a, err = w.ledger.GrantFreeTime(ctx, key, now, now.AddDate(0, 0, plan.DurationDays))
		}
		reason = history.ReasonDirectPurchase
		granted = true
	}
	if err != nil {
		return nil, false, err
	}

	w.record(ctx, history.Entry{
		UserID:       key.UserID,
		CompanyID:    key.CompanyID,
		Amount:       -plan.Cost,
		BalanceAfter: a.Points,
		Reason:       reason,
		MembershipID: &plan.ID,
		ActorUserID:  key.UserID,
	})
	return a, granted, nil
}

// Resolve applies an administrator's decision to a pending request. An
// approval grants the requested plan's window starting now; if the plan was
// deleted or deactivated since the request, a short fallback window is
// granted instead. A rejection keeps the points spent at submission.
func (w *Workflow) Resolve(ctx context.Context, key account.Key, decision account.Decision, actor string) (*account.Account, error) {
	switch decision {
	case account.DecisionApprove:
		return w.approve(ctx, key, actor)
	case account.DecisionReject:
		return w.reject(ctx, key, actor)
	default:
		return nil, ErrInvalidDecision
	}
}

func (w *Workflow) approve(ctx context.Context, key account.Key, actor string) (*account.Account, error) {
	cur, err := w.ledger.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if cur.MembershipStatus != account.StatusPending {
		return nil, account.ErrNoPendingRequest
	}

	days := w.opts.WindowDays
	var membershipID *string
	if cur.RequestedMembershipID != nil {
		membershipID = cur.RequestedMembershipID
		plan, err := w.plans.GetByID(ctx, *cur.RequestedMembershipID, key.CompanyID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			w.logger.WarnContext(ctx, "requested plan deleted, granting fallback window",
				"userId", key.UserID, "planId", *cur.RequestedMembershipID, "days", days)
		case err != nil:
			return nil, fmt.Errorf("looking up requested plan: %w", err)
		case !plan.IsActive:
			// A deactivated plan is as unavailable as a deleted one.
			w.logger.WarnContext(ctx, "requested plan deactivated, granting fallback window",
				"userId", key.UserID, "planId", *cur.RequestedMembershipID, "days", days)
		default:
			days = plan.DurationDays
		}
	}

	now := w.now()
	a, err := w.ledger.ApproveRequest(ctx, key, now, now.AddDate(0, 0, days))
	if err != nil {
		return nil, err
	}

	w.record(ctx, history.Entry{
		UserID:       key.UserID,
		CompanyID:    key.CompanyID,
		BalanceAfter: a.Points,
		Reason:       history.ReasonMembershipApproved,
		MembershipID: membershipID,
		ActorUserID:  actor,
	})
	return a, nil
}

func (w *Workflow) reject(ctx context.Context, key account.Key, actor string) (*account.Account, error) {
	a, err := w.ledger.RejectRequest(ctx, key)
	if err != nil {
		return nil, err
	}

	w.record(ctx, history.Entry{
		UserID:       key.UserID,
		CompanyID:    key.CompanyID,
		BalanceAfter: a.Points,
		Reason:       history.ReasonMembershipRejected,
		MembershipID: a.RequestedMembershipID,
		ActorUserID:  actor,
	})
	return a, nil
}

// Grant gives an account a free-time window without spending points. The
// window length comes from the named plan, or from days when no plan is
// given; zero days falls back to the configured window. A new grant
// replaces any existing window.
func (w *Workflow) Grant(ctx context.Context, key account.Key, planID string, days int, actor string) (*account.Account, error) {
	var membershipID *string
	if planID != "" {
		plan, err := w.plans.GetByID(ctx, planID, key.CompanyID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrPlanNotFound
			}
			return nil, fmt.Errorf("looking up plan: %w", err)
		}
		days = plan.DurationDays
		membershipID = &plan.ID
	}
	if days <= 0 {
		days = w.opts.WindowDays
	}

	now := w.now()
	a, err := w.ledger.GrantFreeTime(ctx, key, now, now.AddDate(0, 0, days))
	if err != nil {
		return nil, err
	}

	w.record(ctx, history.Entry{
		UserID:       key.UserID,
		CompanyID:    key.CompanyID,
		BalanceAfter: a.Points,
		Reason:       history.ReasonAdminGrant,
		MembershipID: membershipID,
		ActorUserID:  actor,
	})
	return a, nil
}

// AdjustPoints sets an account's balance to an absolute value and records
// the delta.
func (w *Workflow) AdjustPoints(ctx context.Context, key account.Key, value int64, actor string) (*account.Account, error) {
	before, err := w.ledger.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	a, err := w.ledger.SetPoints(ctx, key, value)
	if err != nil {
		return nil, err
	}

	w.record(ctx, history.Entry{
		UserID:       key.UserID,
		CompanyID:    key.CompanyID,
		Amount:       a.Points - before.Points,
		BalanceAfter: a.Points,
		Reason:       history.ReasonAdminAdjustment,
		ActorUserID:  actor,
	})
	return a, nil
}

// record appends an audit entry. A failed write is logged rather than
// failing the request whose balance change already committed.
func (w *Workflow) record(ctx context.Context, e history.Entry) {
	if w.rec == nil {
		return
	}
	if err := w.rec.Record(ctx, e); err != nil {
		w.logger.ErrorContext(ctx, "failed to record point transaction",
			"userId", e.UserID, "reason", e.Reason, "error", err)
	}
}
