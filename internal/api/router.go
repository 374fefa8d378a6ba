package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alecgard/tally/internal/account"
	"github.com/alecgard/tally/internal/catalog"
	"github.com/alecgard/tally/internal/history"
	"github.com/alecgard/tally/internal/identity"
	"github.com/alecgard/tally/internal/metrics"
	"github.com/alecgard/tally/internal/ratelimit"
)

// AccountStore is the account access the handlers need. GetOrCreate's
// second return value reports whether a new account was created.
type AccountStore interface {
	GetOrCreate(ctx context.Context, key account.Key, p account.Profile) (*account.Account, bool, error)
	List(ctx context.Context, companyID string) ([]*account.Account, error)
}

// PlanStore is the catalog access the handlers need.
type PlanStore interface {
	Create(ctx context.Context, companyID string, in catalog.CreatePlanInput) (*catalog.Plan, error)
	GetByID(ctx context.Context, id, companyID string) (*catalog.Plan, error)
	List(ctx context.Context, companyID string) ([]*catalog.Plan, error)
	ListActive(ctx context.Context, companyID string) ([]*catalog.Plan, error)
	Update(ctx context.Context, id, companyID string, in catalog.UpdatePlanInput) (*catalog.Plan, error)
	Delete(ctx context.Context, id, companyID string) error
}

// Workflow is the purchase/approval surface the handlers need.
type Workflow interface {
	Purchase(ctx context.Context, key account.Key, planID string) (*account.Account, bool, error)
	Resolve(ctx context.Context, key account.Key, decision account.Decision, actor string) (*account.Account, error)
	Grant(ctx context.Context, key account.Key, planID string, days int, actor string) (*account.Account, error)
	AdjustPoints(ctx context.Context, key account.Key, value int64, actor string) (*account.Account, error)
}

// HistoryStore is the audit trail access the handlers need.
type HistoryStore interface {
	ListByUser(ctx context.Context, userID, companyID string, limit int) ([]history.Entry, error)
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Accounts       AccountStore
	Plans          PlanStore
	Workflow       Workflow
	History        HistoryStore
	Verifier       identity.Verifier
	Limiter        *ratelimit.Limiter
	Metrics        *metrics.Metrics
	CompanyID      string
	AllowedOrigins []string

	// DBPing reports storage reachability for the health endpoint.
	// May be nil.
	DBPing func(ctx context.Context) error
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger)
	r.Use(metricsMiddleware(deps.Metrics))

	// Handlers.
	user := newUserHandler(deps.Accounts, deps.Workflow, deps.CompanyID, deps.Metrics)
	plans := newMembershipsHandler(deps.Plans, deps.CompanyID)
	admin := newAdminHandler(deps.Accounts, deps.Workflow, deps.History, deps.CompanyID, deps.Metrics)

	// Health check.
	r.Get("/health", healthHandler(deps.DBPing))

	// Prometheus exposition.
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(ar chi.Router) {
		// Public (unauthenticated) routes.
		ar.Get("/memberships", plans.ListActivePlans)

		// Verified-user routes.
		ar.Group(func(g chi.Router) {
			g.Use(identity.Middleware(deps.Verifier, authObserver(deps.Metrics)))
			if deps.Limiter != nil {
				g.Use(ratelimit.Middleware(deps.Limiter, rejectObserver(deps.Metrics)))
			}

			g.Get("/user", user.GetSelf)
			g.Post("/membership/purchase", user.Purchase)

			// Admin routes (require the admin role on the caller's account).
			g.Route("/admin", func(adm chi.Router) {
				adm.Use(requireAdmin(deps.Accounts, deps.CompanyID, deps.Metrics))

				adm.Get("/users", admin.ListUsers)
				adm.Put("/users", admin.SetPoints)
				adm.Post("/users/approve", admin.ResolveRequest)
				adm.Get("/users/{userId}/history", admin.UserHistory)

				adm.Get("/memberships", plans.ListPlans)
				adm.Post("/memberships", plans.CreatePlan)
				adm.Put("/memberships/{id}", plans.UpdatePlan)
				adm.Delete("/memberships/{id}", plans.DeletePlan)
				adm.Post("/memberships/grant", admin.GrantFreeTime)

				if deps.Metrics != nil {
					adm.Get("/metrics", deps.Metrics.Handler())
				}
			})
		})
	})

	return r
}

// healthHandler reports process liveness and storage reachability.
func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db := "connected"
		status := http.StatusOK
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				db = "unreachable"
				status = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, status, map[string]string{"status": statusLabel(status), "database": db})
	}
}

func statusLabel(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}

// authObserver feeds identity verification outcomes into the metrics.
func authObserver(m *metrics.Metrics) func(ok bool) {
	return func(ok bool) {
		if m == nil {
			return
		}
		if ok {
			m.IncAuthSuccess("bearer")
		} else {
			m.IncAuthFailure("bearer")
		}
	}
}

// countAccountCreated bumps the account-creation counter when a lazy
// lookup actually created the record.
func countAccountCreated(m *metrics.Metrics, created bool) {
	if created && m != nil {
		m.AccountsCreatedTotal.Inc()
	}
}

// rejectObserver counts rate-limit rejections.
func rejectObserver(m *metrics.Metrics) func() {
	return func() {
		if m != nil {
			m.IncRateLimitRejection()
		}
	}
}

// requireAdmin loads the caller's account and rejects non-admins. The
// account is resolved the same way as on the user endpoint, so an admin's
// first request can both create their account and pass the guard.
func requireAdmin(accounts AccountStore, companyID string, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identity.FromContext(r.Context())
			if id == nil {
				writeError(w, http.StatusUnauthorized, "User not authenticated")
				return
			}

			acct, created, err := accounts.GetOrCreate(r.Context(), account.Key{UserID: id.UserID, CompanyID: companyID}, account.Profile{
				Username:  id.Username,
				Name:      id.Name,
				AvatarURL: id.AvatarURL,
				Roles:     id.Roles,
			})
			if err != nil {
				slog.ErrorContext(r.Context(), "failed to resolve caller account", "error", err)
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			countAccountCreated(m, created)

			if !acct.IsAdmin() {
				writeError(w, http.StatusForbidden, "Admin access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
		)
	})
}
