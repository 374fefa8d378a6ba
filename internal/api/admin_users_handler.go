package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/alecgard/tally/internal/account"
	"github.com/alecgard/tally/internal/identity"
	"github.com/alecgard/tally/internal/metrics"
	"github.com/alecgard/tally/internal/purchase"
)

// adminHandler groups the administrator endpoints for account management.
type adminHandler struct {
	accounts  AccountStore
	workflow  Workflow
	history   HistoryStore
	companyID string
	metrics   *metrics.Metrics
}

func newAdminHandler(accounts AccountStore, workflow Workflow, hist HistoryStore, companyID string, m *metrics.Metrics) *adminHandler {
	return &adminHandler{accounts: accounts, workflow: workflow, history: hist, companyID: companyID, metrics: m}
}

func (h *adminHandler) actor(r *http.Request) string {
	if id := identity.FromContext(r.Context()); id != nil {
		return id.UserID
	}
	return ""
}

// ListUsers handles GET /api/v1/admin/users. Every account carries its
// requested plan resolved, so the dashboard can render pending requests
// without extra lookups.
func (h *adminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context(), h.companyID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list accounts", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if accounts == nil {
		accounts = []*account.Account{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"users": accounts})
}

// SetPoints handles PUT /api/v1/admin/users, an absolute balance override.
func (h *adminHandler) SetPoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		Points *int64 `json:"points"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if req.Points == nil {
		writeError(w, http.StatusBadRequest, "points is required")
		return
	}

	key := account.Key{UserID: req.UserID, CompanyID: h.companyID}
	a, err := h.workflow.AdjustPoints(r.Context(), key, *req.Points, h.actor(r))
	if err != nil {
		switch {
		case errors.Is(err, account.ErrInvalidPoints):
			writeError(w, http.StatusBadRequest, "Points must not be negative")
		case errors.Is(err, pgx.ErrNoRows):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			slog.ErrorContext(r.Context(), "failed to set points", "user_id", req.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.PointAdjustmentsTotal.Inc()
	}
	auditLog(r, "points.set", "account", req.UserID, "points", *req.Points)
	writeJSON(w, http.StatusOK, snapshot(a))
}

// ResolveRequest handles POST /api/v1/admin/users/approve.
func (h *adminHandler) ResolveRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		Action string `json:"action"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	decision := account.Decision(req.Action)
	if !decision.Valid() {
		writeError(w, http.StatusBadRequest, "action must be approve or reject")
		return
	}

	key := account.Key{UserID: req.UserID, CompanyID: h.companyID}
	a, err := h.workflow.Resolve(r.Context(), key, decision, h.actor(r))
	if err != nil {
		switch {
		case errors.Is(err, account.ErrNoPendingRequest):
			writeError(w, http.StatusBadRequest, "User has no pending membership request")
		case errors.Is(err, pgx.ErrNoRows):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			slog.ErrorContext(r.Context(), "failed to resolve request", "user_id", req.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.IncDecision(string(decision))
	}
	auditLog(r, "request."+string(decision), "account", req.UserID)
	writeJSON(w, http.StatusOK, snapshot(a))
}

// GrantFreeTime handles POST /api/v1/admin/memberships/grant, giving an
// account a free-time window without spending its points.
func (h *adminHandler) GrantFreeTime(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       string `json:"userId"`
		MembershipID string `json:"membershipId"`
		Days         int    `json:"days"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if req.Days < 0 {
		writeError(w, http.StatusBadRequest, "days must not be negative")
		return
	}

	key := account.Key{UserID: req.UserID, CompanyID: h.companyID}
	a, err := h.workflow.Grant(r.Context(), key, req.MembershipID, req.Days, h.actor(r))
	if err != nil {
		switch {
		case errors.Is(err, purchase.ErrPlanNotFound):
			writeError(w, http.StatusNotFound, "Membership plan not found")
		case errors.Is(err, pgx.ErrNoRows):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			slog.ErrorContext(r.Context(), "failed to grant free time", "user_id", req.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.FreeTimeGrantsTotal.Inc()
	}
	auditLog(r, "freetime.grant", "account", req.UserID, "membership_id", req.MembershipID, "days", req.Days)
	writeJSON(w, http.StatusOK, snapshot(a))
}

// UserHistory handles GET /api/v1/admin/users/{userId}/history.
func (h *adminHandler) UserHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "User id is required")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.history.ListByUser(r.Context(), userID, h.companyID, limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list history", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": entries})
}
