package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alecgard/tally/internal/account"
	"github.com/alecgard/tally/internal/identity"
	"github.com/alecgard/tally/internal/metrics"
	"github.com/alecgard/tally/internal/purchase"
)

// userHandler groups the verified-user endpoints.
type userHandler struct {
	accounts  AccountStore
	workflow  Workflow
	companyID string
	metrics   *metrics.Metrics
}

func newUserHandler(accounts AccountStore, workflow Workflow, companyID string, m *metrics.Metrics) *userHandler {
	return &userHandler{accounts: accounts, workflow: workflow, companyID: companyID, metrics: m}
}

// accountResponse is an account snapshot with the lazily derived free-time
// status attached.
type accountResponse struct {
	*account.Account
	FreeTimeStatus account.FreeTimeStatus `json:"freeTimeStatus"`
}

func snapshot(a *account.Account) accountResponse {
	return accountResponse{Account: a, FreeTimeStatus: a.FreeTimeStatusAt(time.Now())}
}

// callerKey resolves the caller's account key from the verified identity.
func (h *userHandler) callerKey(r *http.Request) (account.Key, account.Profile, bool) {
	id := identity.FromContext(r.Context())
	if id == nil {
		return account.Key{}, account.Profile{}, false
	}
	key := account.Key{UserID: id.UserID, CompanyID: h.companyID}
	profile := account.Profile{
		Username:  id.Username,
		Name:      id.Name,
		AvatarURL: id.AvatarURL,
		Roles:     id.Roles,
	}
	return key, profile, true
}

// GetSelf handles GET /api/v1/user. First sight of a user creates their
// zero-balance account.
func (h *userHandler) GetSelf(w http.ResponseWriter, r *http.Request) {
	key, profile, ok := h.callerKey(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	a, created, err := h.accounts.GetOrCreate(r.Context(), key, profile)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to resolve account", "user_id", key.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	countAccountCreated(h.metrics, created)

	writeJSON(w, http.StatusOK, snapshot(a))
}

// Purchase handles POST /api/v1/membership/purchase.
func (h *userHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	key, profile, ok := h.callerKey(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req struct {
		MembershipType string `json:"membershipType"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.MembershipType == "" {
		writeError(w, http.StatusBadRequest, "membershipType is required")
		return
	}

	// Make sure the account exists before debiting it.
	_, created, err := h.accounts.GetOrCreate(r.Context(), key, profile)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to resolve account", "user_id", key.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	countAccountCreated(h.metrics, created)

	a, granted, err := h.workflow.Purchase(r.Context(), key, req.MembershipType)
	if err != nil {
		h.writePurchaseError(w, r, err)
		return
	}

	outcome := metrics.OutcomePending
	message := "Membership request submitted for approval"
	if granted {
		outcome = metrics.OutcomeGranted
		message = "Membership granted"
	}
	h.countPurchase(outcome)

	writeJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
		accountResponse
	}{Message: message, accountResponse: snapshot(a)})
}

func (h *userHandler) writePurchaseError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *account.InsufficientPointsError
	switch {
	case errors.As(err, &insufficient):
		h.countPurchase(metrics.OutcomeInsufficient)
		writeInsufficientPoints(w, insufficient.Current, insufficient.Required)
	case errors.Is(err, purchase.ErrPlanNotFound):
		h.countPurchase(metrics.OutcomeRejectedPlan)
		writeError(w, http.StatusNotFound, "Membership plan not found")
	case errors.Is(err, purchase.ErrPlanInactive):
		h.countPurchase(metrics.OutcomeRejectedPlan)
		writeError(w, http.StatusBadRequest, "Membership plan is not active")
	case errors.Is(err, pgx.ErrNoRows):
		writeError(w, http.StatusNotFound, "User not found")
	default:
		h.countPurchase(metrics.OutcomeError)
		slog.ErrorContext(r.Context(), "purchase failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *userHandler) countPurchase(outcome string) {
	if h.metrics != nil {
		h.metrics.IncPurchase(outcome)
	}
}
