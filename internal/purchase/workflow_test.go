package purchase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alecgard/tally/internal/account"
	"github.com/alecgard/tally/internal/catalog"
	"github.com/alecgard/tally/internal/history"
)

type fakeLedger struct {
	accounts map[account.Key]*account.Account
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{accounts: make(map[account.Key]*account.Account)}
}

func (f *fakeLedger) add(a *account.Account) {
	f.accounts[account.Key{UserID: a.UserID, CompanyID: a.CompanyID}] = a
}

func (f *fakeLedger) GetByKey(_ context.Context, key account.Key) (*account.Account, error) {
	a, ok := f.accounts[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *a
	return &copied, nil
}

func (f *fakeLedger) Debit(_ context.Context, key account.Key, amount int64) (*account.Account, error) {
	a, ok := f.accounts[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if a.Points < amount {
		return nil, &account.InsufficientPointsError{Current: a.Points, Required: amount}
	}
	a.Points -= amount
	copied := *a
	return &copied, nil
}

func (f *fakeLedger) SubmitRequest(_ context.Context, key account.Key, planID string, cost int64, at time.Time) (*account.Account, error) {
	a, ok := f.accounts[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if a.Points < cost {
		return nil, &account.InsufficientPointsError{Current: a.Points, Required: cost}
	}
	a.Points -= cost
	a.MembershipStatus = account.StatusPending
	a.MembershipRequestDate = &at
	a.RequestedMembershipID = &planID
	copied := *a
	return &copied, nil
}

func (f *fakeLedger) ApproveRequest(_ context.Context, key account.Key, start, end time.Time) (*account.Account, error) {
	a, ok := f.accounts[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if a.MembershipStatus != account.StatusPending {
		return nil, account.ErrNoPendingRequest
	}
	a.MembershipStatus = account.StatusApproved
	a.FreetimeStartDate = &start
	a.FreetimeEndDate = &end
	copied := *a
	return &copied, nil
}

func (f *fakeLedger) RejectRequest(_ context.Context, key account.Key) (*account.Account, error) {
	a, ok := f.accounts[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if a.MembershipStatus != account.StatusPending {
		return nil, account.ErrNoPendingRequest
	}
	a.MembershipStatus = account.StatusRejected
	copied := *a
	return &copied, nil
}

func (f *fakeLedger) SetPoints(_ context.Context, key account.Key, value int64) (*account.Account, error) {
	a, ok := f.accounts[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if value < 0 {
		return nil, account.ErrInvalidPoints
	}
	a.Points = value
	copied := *a
	return &copied, nil
}

func (f *fakeLedger) GrantFreeTime(_ context.Context, key account.Key, start, end time.Time) (*account.Account, error) {
	a, ok := f.accounts[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	a.FreetimeStartDate = &start
	a.FreetimeEndDate = &end
	copied := *a
	return &copied, nil
}

type fakePlans struct {
	plans map[string]*catalog.Plan
}

func (f *fakePlans) GetByID(_ context.Context, id, companyID string) (*catalog.Plan, error) {
	p, ok := f.plans[id]
	if !ok || p.CompanyID != companyID {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

type fakeRecorder struct {
	entries []history.Entry
}

func (f *fakeRecorder) Record(_ context.Context, e history.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestWorkflow(ledger *fakeLedger, plans *fakePlans, rec *fakeRecorder, opts Options) *Workflow {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWorkflow(ledger, plans, rec, opts, logger)
	w.now = func() time.Time { return testNow }
	return w
}

func goldPlan() *catalog.Plan {
	return &catalog.Plan{
		ID:           "plan-gold",
		CompanyID:    "acme",
		Name:         "Gold",
		DurationDays: 30,
		Cost:         150,
		IsActive:     true,
	}
}

func memberAccount(points int64) *account.Account {
	return &account.Account{
		ID:               "acc-1",
		UserID:           "u1",
		CompanyID:        "acme",
		Username:         "jdoe",
		Points:           points,
		MembershipStatus: account.StatusNone,
	}
}

func TestPurchaseEntersPending(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add(memberAccount(200))
	plans := &fakePlans{plans: map[string]*catalog.Plan{"plan-gold": goldPlan()}}
	rec := &fakeRecorder{}
	w := newTestWorkflow(ledger, plans, rec, Options{RequireApproval: true})

	a, granted, err := w.Purchase(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, "plan-gold")
	if err != nil {
		t.Fatalf("Purchase() error = %v", err)
	}
	if granted {
		t.Error("pending purchase reported as granted")
	}
	if a.Points != 50 {
		t.Errorf("points = %d, want 50", a.Points)
	}
	if a.MembershipStatus != account.StatusPending {
		t.Errorf("status = %q, want pending", a.MembershipStatus)
	}
	if a.RequestedMembershipID == nil || *a.RequestedMembershipID != "plan-gold" {
		t.Errorf("requested plan = %v, want plan-gold", a.RequestedMembershipID)
	}
	if a.FreetimeStartDate != nil {
		t.Error("pending purchase should not grant a free-time window")
	}

	if len(rec.entries) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(rec.entries))
	}
	e := rec.entries[0]
	if e.Amount != -150 || e.BalanceAfter != 50 || e.Reason != history.ReasonMembershipRequest {
		t.Errorf("entry = %+v, want amount -150, balance 50, reason %q", e, history.ReasonMembershipRequest)
	}
}

func TestPurchaseInsufficientPoints(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add(memberAccount(0))
	plan := goldPlan()
	plan.Cost = 50
	plans := &fakePlans{plans: map[string]*catalog.Plan{"plan-gold": plan}}
	rec := &fakeRecorder{}
	w := newTestWorkflow(ledger, plans, rec, Options{RequireApproval: true})

	_, _, err := w.Purchase(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, "plan-gold")
	var insufficient *account.InsufficientPointsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Purchase() error = %v, want InsufficientPointsError", err)
	}
	if insufficient.Current != 0 || insufficient.Required != 50 {
		t.Errorf("error = %+v, want current 0 required 50", insufficient)
	}
	if len(rec.entries) != 0 {
		t.Errorf("recorded %d entries for a failed purchase, want 0", len(rec.entries))
	}
}

func TestPurchaseUnknownPlan(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add(memberAccount(200))
	plans := &fakePlans{plans: map[string]*catalog.Plan{}}
	w := newTestWorkflow(ledger, plans, &fakeRecorder{}, Options{RequireApproval: true})

	_, _, err := w.Purchase(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, "missing")
	if !errors.Is(err, ErrPlanNotFound) {
		t.Errorf("Purchase() error = %v, want ErrPlanNotFound", err)
	}
}

func TestPurchaseInactivePlan(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add(memberAccount(200))
	plan := goldPlan()
	plan.IsActive = false
	plans := &fakePlans{plans: map[string]*catalog.Plan{"plan-gold": plan}}
	w := newTestWorkflow(ledger, plans, &fakeRecorder{}, Options{RequireApproval: true})

	_, _, err := w.Purchase(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, "plan-gold")
	if !errors.Is(err, ErrPlanInactive) {
		t.Errorf("Purchase() error = %v, want ErrPlanInactive", err)
	}
}

func TestPurchaseWithoutApprovalGrantsImmediately(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add(memberAccount(200))
	plans := &fakePlans{plans: map[string]*catalog.Plan{"plan-gold": goldPlan()}}
	rec := &fakeRecorder{}
	w := newTestWorkflow(ledger, plans, rec, Options{RequireApproval: false})

	a, granted, err := w.Purchase(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, "plan-gold")
	if err != nil {
		t.Fatalf("Purchase() error = %v", err)
	}
	if !granted {
		t.Error("direct purchase not reported as granted")
	}
	if a.MembershipStatus != account.StatusNone {
		t.Errorf("status = %q, direct purchase should not enter the request lifecycle", a.MembershipStatus)
	}
	if a.Points != 50 {
		t.Errorf("points = %d, want 50", a.Points)
	}
	wantEnd := testNow.AddDate(0, 0, 30)
	if a.FreetimeStartDate == nil || !a.FreetimeStartDate.Equal(testNow) {
		t.Errorf("window start = %v, want %v", a.FreetimeStartDate, testNow)
	}
	if a.FreetimeEndDate == nil || !a.FreetimeEndDate.Equal(wantEnd) {
		t.Errorf("window end = %v, want %v", a.FreetimeEndDate, wantEnd)
	}
	if len(rec.entries) != 1 || rec.entries[0].Reason != history.ReasonDirectPurchase {
		t.Errorf("entries = %+v, want one %q entry", rec.entries, history.ReasonDirectPurchase)
	}
}

func TestPurchaseWithoutApprovalInsufficientPoints(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add(memberAccount(100))
	plans := &fakePlans{plans: map[string]*catalog.Plan{"plan-gold": goldPlan()}}
	rec := &fakeRecorder{}
	w := newTestWorkflow(ledger, plans, rec, Options{RequireApproval: false})

	_, _, err := w.Purchase(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, "plan-gold")
	var insufficient *account.InsufficientPointsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Purchase() error = %v, want InsufficientPointsError", err)
	}
	if insufficient.Current != 100 || insufficient.Required != 150 {
		t.Errorf("error = %+v, want current 100 required 150", insufficient)
	}
	got, _ := ledger.GetByKey(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"})
	if got.Points != 100 || got.FreetimeEndDate != nil {
		t.Errorf("account = %+v, failed debit must leave it untouched", got)
	}
	if len(rec.entries) != 0 {
		t.Errorf("recorded %d entries for a failed purchase, want 0", len(rec.entries))
	}
}

func TestResolveApproveGrantsPlanWindow(t *testing.T) {
	ledger := newFakeLedger()
	a := memberAccount(50)
	a.MembershipStatus = account.StatusPending
	planID := "plan-gold"
	a.RequestedMembershipID = &planID
	ledger.add(a)
	plans := &fakePlans{plans: map[string]*catalog.Plan{"plan-gold": goldPlan()}}
	rec := &fakeRecorder{}
	w := newTestWorkflow(ledger, plans, rec, Options{RequireApproval: true})

	got, err := w.Resolve(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, account.DecisionApprove, "admin-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.MembershipStatus != account.StatusApproved {
		t.Errorf("status = %q, want approved", got.MembershipStatus)
	}
	wantEnd := testNow.AddDate(0, 0, 30)
	if got.FreetimeEndDate == nil || !got.FreetimeEndDate.Equal(wantEnd) {
		t.Errorf("window end = %v, want %v", got.FreetimeEndDate, wantEnd)
	}

	if len(rec.entries) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(rec.entries))
	}
	e := rec.entries[0]
	if e.Reason != history.ReasonMembershipApproved || e.ActorUserID != "admin-1" || e.Amount != 0 {
		t.Errorf("entry = %+v, want approval by admin-1 with zero amount", e)
	}
}

func TestResolveApproveDeletedPlanFallsBack(t *testing.T) {
	ledger := newFakeLedger()
	a := memberAccount(50)
	a.MembershipStatus = account.StatusPending
	planID := "plan-deleted"
	a.RequestedMembershipID = &planID
	ledger.add(a)
	plans := &fakePlans{plans: map[string]*catalog.Plan{}}
	w := newTestWorkflow(ledger, plans, &fakeRecorder{}, Options{RequireApproval: true})

	got, err := w.Resolve(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, account.DecisionApprove, "admin-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	wantEnd := testNow.AddDate(0, 0, defaultWindowDays)
	if got.FreetimeEndDate == nil || !got.FreetimeEndDate.Equal(wantEnd) {
		t.Errorf("window end = %v, want fallback %v", got.FreetimeEndDate, wantEnd)
	}
}

func TestResolveApproveDeactivatedPlanFallsBack(t *testing.T) {
	ledger := newFakeLedger()
	a := memberAccount(50)
	a.MembershipStatus = account.StatusPending
	planID := "plan-gold"
	a.RequestedMembershipID = &planID
	ledger.add(a)
	plan := goldPlan()
	plan.IsActive = false
	plans := &fakePlans{plans: map[string]*catalog.Plan{"plan-gold": plan}}
	w := newTestWorkflow(ledger, plans, &fakeRecorder{}, Options{RequireApproval: true})

	got, err := w.Resolve(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, account.DecisionApprove, "admin-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.MembershipStatus != account.StatusApproved {
		t.Errorf("status = %q, want approved", got.MembershipStatus)
	}
	wantEnd := testNow.AddDate(0, 0, defaultWindowDays)
	if got.FreetimeEndDate == nil || !got.FreetimeEndDate.Equal(wantEnd) {
		t.Errorf("window end = %v, want fallback %v not the plan duration", got.FreetimeEndDate, wantEnd)
	}
}

func TestResolveRejectKeepsPoints(t *testing.T) {
	ledger := newFakeLedger()
	a := memberAccount(50)
	a.MembershipStatus = account.StatusPending
	ledger.add(a)
	rec := &fakeRecorder{}
	w := newTestWorkflow(ledger, &fakePlans{}, rec, Options{RequireApproval: true})

	got, err := w.Resolve(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, account.DecisionReject, "admin-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.MembershipStatus != account.StatusRejected {
		t.Errorf("status = %q, want rejected", got.MembershipStatus)
	}
	if got.Points != 50 {
		t.Errorf("points = %d, want 50 (no refund)", got.Points)
	}
	if len(rec.entries) != 1 || rec.entries[0].Reason != history.ReasonMembershipRejected {
		t.Errorf("entries = %+v, want one rejection entry", rec.entries)
	}
}

func TestResolveWithoutPendingRequest(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add(memberAccount(100))
	w := newTestWorkflow(ledger, &fakePlans{}, &fakeRecorder{}, Options{RequireApproval: true})

	for _, d := range []account.Decision{account.DecisionApprove, account.DecisionReject} {
		_, err := w.Resolve(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, d, "admin-1")
		if !errors.Is(err, account.ErrNoPendingRequest) {
			t.Errorf("Resolve(%q) error = %v, want ErrNoPendingRequest", d, err)
		}
	}
}

func TestResolveInvalidDecision(t *testing.T) {
	w := newTestWorkflow(newFakeLedger(), &fakePlans{}, &fakeRecorder{}, Options{})

	_, err := w.Resolve(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, account.Decision("maybe"), "admin-1")
	if !errors.Is(err, ErrInvalidDecision) {
		t.Errorf("Resolve() error = %v, want ErrInvalidDecision", err)
	}
}

func TestGrantUsesPlanDuration(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add(memberAccount(10))
	plans := &fakePlans{plans: map[string]*catalog.Plan{"plan-gold": goldPlan()}}
	rec := &fakeRecorder{}
	w := newTestWorkflow(ledger, plans, rec, Options{})

	a, err := w.Grant(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, "plan-gold", 0, "admin-1")
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	if a.Points != 10 {
		t.Errorf("points = %d, want untouched balance 10", a.Points)
	}
	wantEnd := testNow.AddDate(0, 0, 30)
	if a.FreetimeEndDate == nil || !a.FreetimeEndDate.Equal(wantEnd) {
		t.Errorf("window end = %v, want %v", a.FreetimeEndDate, wantEnd)
	}
	if len(rec.entries) != 1 || rec.entries[0].Reason != history.ReasonAdminGrant {
		t.Errorf("entries = %+v, want one grant entry", rec.entries)
	}
}

func TestGrantWithExplicitDays(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add(memberAccount(0))
	w := newTestWorkflow(ledger, &fakePlans{}, &fakeRecorder{}, Options{})

	a, err := w.Grant(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, "", 14, "admin-1")
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	wantEnd := testNow.AddDate(0, 0, 14)
	if a.FreetimeEndDate == nil || !a.FreetimeEndDate.Equal(wantEnd) {
		t.Errorf("window end = %v, want %v", a.FreetimeEndDate, wantEnd)
	}
}

func TestGrantReplacesExistingWindow(t *testing.T) {
	ledger := newFakeLedger()
	a := memberAccount(0)
	oldStart := testNow.AddDate(0, 0, -30)
	oldEnd := testNow.AddDate(0, 0, 60)
	a.FreetimeStartDate = &oldStart
	a.FreetimeEndDate = &oldEnd
	ledger.add(a)
	w := newTestWorkflow(ledger, &fakePlans{}, &fakeRecorder{}, Options{})

	got, err := w.Grant(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, "", 7, "admin-1")
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	wantEnd := testNow.AddDate(0, 0, 7)
	if !got.FreetimeEndDate.Equal(wantEnd) {
		t.Errorf("window end = %v, want %v (replacement, not extension)", got.FreetimeEndDate, wantEnd)
	}
}

func TestAdjustPointsRecordsDelta(t *testing.T) {
	ledger := newFakeLedger()
	ledger.add(memberAccount(30))
	rec := &fakeRecorder{}
	w := newTestWorkflow(ledger, &fakePlans{}, rec, Options{})

	a, err := w.AdjustPoints(context.Background(), account.Key{UserID: "u1", CompanyID: "acme"}, 100, "admin-1")
	if err != nil {
		t.Fatalf("AdjustPoints() error = %v", err)
	}
	if a.Points != 100 {
		t.Errorf("points = %d, want 100", a.Points)
	}
	if len(rec.entries) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(rec.entries))
	}
	e := rec.entries[0]
	if e.Amount != 70 || e.BalanceAfter != 100 || e.Reason != history.ReasonAdminAdjustment {
		t.Errorf("entry = %+v, want amount 70 balance 100", e)
	}
}
