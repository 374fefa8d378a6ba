package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/alecgard/tally/internal/catalog"
)

// membershipsHandler groups the plan catalog endpoints.
type membershipsHandler struct {
	plans     PlanStore
	companyID string
}

func newMembershipsHandler(plans PlanStore, companyID string) *membershipsHandler {
	return &membershipsHandler{plans: plans, companyID: companyID}
}

// ListActivePlans handles GET /api/v1/memberships, the public storefront
// listing, cheapest first.
func (h *membershipsHandler) ListActivePlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.ListActive(r.Context(), h.companyID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list active plans", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"memberships": plans})
}

// ListPlans handles GET /api/v1/admin/memberships, all plans including
// inactive ones.
func (h *membershipsHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List(r.Context(), h.companyID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list plans", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"memberships": plans})
}

// CreatePlan handles POST /api/v1/admin/memberships.
func (h *membershipsHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var in catalog.CreatePlanInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := catalog.ValidateCreate(in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.plans.Create(r.Context(), h.companyID, in)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create plan", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	auditLog(r, "plan.create", "membership", p.ID, "name", p.Name, "cost", p.Cost)
	writeJSON(w, http.StatusCreated, p)
}

// UpdatePlan handles PUT /api/v1/admin/memberships/{id}.
func (h *membershipsHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Plan id is required")
		return
	}

	var in catalog.UpdatePlanInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := catalog.ValidateUpdate(in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.plans.Update(r.Context(), id, h.companyID, in)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Membership plan not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to update plan", "plan_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	auditLog(r, "plan.update", "membership", id)
	writeJSON(w, http.StatusOK, p)
}

// DeletePlan handles DELETE /api/v1/admin/memberships/{id}. Deletion is
// hard; pending requests that reference the plan fall back to the default
// window at approval time.
func (h *membershipsHandler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Plan id is required")
		return
	}

	if err := h.plans.Delete(r.Context(), id, h.companyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Membership plan not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to delete plan", "plan_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	auditLog(r, "plan.delete", "membership", id)
	w.WriteHeader(http.StatusNoContent)
}
