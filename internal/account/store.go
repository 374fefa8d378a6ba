package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for accounts. All balance mutations
// are single conditional UPDATEs so concurrent requests for the same
// account cannot overspend.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new account store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// accountColumns is the full list of columns used in SELECT statements.
const accountColumns = `id, user_id, company_id, username, name, avatar_url,
	points, freetime_start_date, freetime_end_date, roles,
	membership_status, membership_request_date, requested_membership_id,
	created_at, updated_at`

// scanAccount scans an account row.
func scanAccount(scan func(dest ...any) error) (*Account, error) {
	a := &Account{}
	var status string
	err := scan(
		&a.ID, &a.UserID, &a.CompanyID, &a.Username, &a.Name, &a.AvatarURL,
		&a.Points, &a.FreetimeStartDate, &a.FreetimeEndDate, &a.Roles,
		&status, &a.MembershipRequestDate, &a.RequestedMembershipID,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.MembershipStatus = MembershipStatus(status)
	if a.Roles == nil {
		a.Roles = []string{}
	}
	return a, nil
}

// GetByKey retrieves an account by its (userID, companyID) pair.
func (s *Store) GetByKey(ctx context.Context, key Key) (*Account, error) {
	a, err := scanAccount(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM users
			 WHERE user_id = $1 AND company_id = $2`,
			key.UserID, key.CompanyID,
		).Scan(dest...)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("getting account: %w", err)
	}
	return a, nil
}

// GetOrCreate resolves the account for the given key, recovering existing
// records across identity-provider ID churn before falling back to
// creating a fresh zero-balance account. See resolve.go for the strategy
// order. The second return value reports whether a new account was created.
func (s *Store) GetOrCreate(ctx context.Context, key Key, p Profile) (*Account, bool, error) {
	for _, r := range resolvers {
		a, err := r.fn(ctx, s, key, p)
		if err != nil {
			return nil, false, fmt.Errorf("resolving account (%s): %w", r.name, err)
		}
		if a != nil {
			return a, false, nil
		}
	}
	return s.create(ctx, key, p)
}

// create inserts a fresh zero-balance account from the identity profile.
// Two concurrent first-sight requests for the same key race the unique
// (user_id, company_id) index; the loser re-reads the winner's row.
func (s *Store) create(ctx context.Context, key Key, p Profile) (*Account, bool, error) {
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	a, err := scanAccount(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO users (user_id, company_id, username, name, avatar_url, roles)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (user_id, company_id) DO NOTHING
			 RETURNING `+accountColumns,
			key.UserID, key.CompanyID, p.Username, p.Name, p.AvatarURL, roles,
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		a, err = s.GetByKey(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("reloading account after insert conflict: %w", err)
		}
		return a, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("creating account: %w", err)
	}
	return a, true, nil
}

// findByKey returns the account for the key, or nil when absent.
func (s *Store) findByKey(ctx context.Context, key Key) (*Account, error) {
	a, err := s.GetByKey(ctx, key)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// findByUsername returns the oldest account with the username in the
// tenant, or nil when absent.
func (s *Store) findByUsername(ctx context.Context, username, companyID string) (*Account, error) {
	a, err := scanAccount(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM users
			 WHERE username = $1 AND company_id = $2
			 ORDER BY created_at ASC LIMIT 1`,
			username, companyID,
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding account by username: %w", err)
	}
	return a, nil
}

// findByUsernameAny returns the oldest account with the username in any
// tenant, or nil when absent.
func (s *Store) findByUsernameAny(ctx context.Context, username string) (*Account, error) {
	a, err := scanAccount(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM users
			 WHERE username = $1
			 ORDER BY created_at ASC LIMIT 1`,
			username,
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding account by username: %w", err)
	}
	return a, nil
}

// rebind points a recovered account at the caller's current provider key.
func (s *Store) rebind(ctx context.Context, id string, key Key) (*Account, error) {
	a, err := scanAccount(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`UPDATE users SET user_id = $2, company_id = $3, updated_at = now()
			 WHERE id = $1
			 RETURNING `+accountColumns,
			id, key.UserID, key.CompanyID,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("rebinding account: %w", err)
	}
	return a, nil
}

// List returns all accounts for the tenant, newest first, with each
// requested membership plan resolved. A dangling plan reference resolves
// to nil rather than an error.
func (s *Store) List(ctx context.Context, companyID string) ([]*Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.user_id, u.company_id, u.username, u.name, u.avatar_url,
		        u.points, u.freetime_start_date, u.freetime_end_date, u.roles,
		        u.membership_status, u.membership_request_date, u.requested_membership_id,
		        u.created_at, u.updated_at,
		        m.id, m.name, m.duration_days, m.cost
		 FROM users u
		 LEFT JOIN memberships m ON m.id = u.requested_membership_id
		 WHERE u.company_id = $1
		 ORDER BY u.created_at DESC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a := &Account{}
		var status string
		var planID, planName *string
		var planDuration *int
		var planCost *int64
		err := rows.Scan(
			&a.ID, &a.UserID, &a.CompanyID, &a.Username, &a.Name, &a.AvatarURL,
			&a.Points, &a.FreetimeStartDate, &a.FreetimeEndDate, &a.Roles,
			&status, &a.MembershipRequestDate, &a.RequestedMembershipID,
			&a.CreatedAt, &a.UpdatedAt,
			&planID, &planName, &planDuration, &planCost,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning account row: %w", err)
		}
		a.MembershipStatus = MembershipStatus(status)
		if a.Roles == nil {
			a.Roles = []string{}
		}
		if planID != nil {
			a.RequestedMembership = &RequestedPlan{
				ID:           *planID,
				Name:         *planName,
				DurationDays: *planDuration,
				Cost:         *planCost,
			}
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account rows: %w", err)
	}
	return accounts, nil
}

// Debit atomically decrements the balance. The decrement only happens when
// the balance covers the amount; otherwise InsufficientPointsError is
// returned with the current balance.
func (s *Store) Debit(ctx context.Context, key Key, amount int64) (*Account, error) {
	if amount < 0 {
		return nil, ErrInvalidPoints
	}

	a, err := scanAccount(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`UPDATE users SET points = points - $3, updated_at = now()
			 WHERE user_id = $1 AND company_id = $2 AND points >= $3
			 RETURNING `+accountColumns,
			key.UserID, key.CompanyID, amount,
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := s.GetByKey(ctx, key)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &InsufficientPointsError{Current: current.Points, Required: amount}
	}
	if err != nil {
		return nil, fmt.Errorf("debiting account: %w", err)
	}
	return a, nil
}

// SetPoints applies an administrative absolute override of the balance.
func (s *Store) SetPoints(ctx context.Context, key Key, value int64) (*Account, error) {
	if value < 0 {
		return nil, ErrInvalidPoints
	}

	a, err := scanAccount(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`UPDATE users SET points = $3, updated_at = now()
			 WHERE user_id = $1 AND company_id = $2
			 RETURNING `+accountColumns,
			key.UserID, key.CompanyID, value,
		).Scan(dest...)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("setting points: %w", err)
	}
	return a, nil
}

// GrantFreeTime sets the free-time window. A new grant replaces any prior
// window; remaining time does not accumulate.
func (s *Store) GrantFreeTime(ctx context.Context, key Key, start, end time.Time) (*Account, error) {
	a, err := scanAccount(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`UPDATE users SET freetime_start_date = $3, freetime_end_date = $4, updated_at = now()
			 WHERE user_id = $1 AND company_id = $2
			 RETURNING `+accountColumns,
			key.UserID, key.CompanyID, start, end,
		).Scan(dest...)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("granting free time: %w", err)
	}
	return a, nil
}

// SubmitRequest debits the plan cost and marks the account pending in a
// single conditional UPDATE, so two concurrent submissions cannot both
// succeed against one balance.
func (s *Store) SubmitRequest(ctx context.Context, key Key, planID string, cost int64, at time.Time) (*Account, error) {
	if cost < 0 {
		return nil, ErrInvalidPoints
	}

	a, err := scanAccount(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`UPDATE users SET points = points - $3,
			        membership_status = 'pending',
			        membership_request_date = $4,
			        requested_membership_id = $5,
			        updated_at = now()
			 WHERE user_id = $1 AND company_id = $2 AND points >= $3
			 RETURNING `+accountColumns,
			key.UserID, key.CompanyID, cost, at, planID,
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := s.GetByKey(ctx, key)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &InsufficientPointsError{Current: current.Points, Required: cost}
	}
	if err != nil {
		return nil, fmt.Errorf("submitting membership request: %w", err)
	}
	return a, nil
}

// ApproveRequest moves a pending account to approved and sets the
// free-time window. Returns ErrNoPendingRequest when the account exists
// but is not pending.
func (s *Store) ApproveRequest(ctx context.Context, key Key, start, end time.Time) (*Account, error) {
	a, err := scanAccount(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`UPDATE users SET membership_status = 'approved',
			        freetime_start_date = $3,
			        freetime_end_date = $4,
			        updated_at = now()
			 WHERE user_id = $1 AND company_id = $2 AND membership_status = 'pending'
			 RETURNING `+accountColumns,
			key.UserID, key.CompanyID, start, end,
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetByKey(ctx, key); getErr != nil {
			return nil, getErr
		}
		return nil, ErrNoPendingRequest
	}
	if err != nil {
		return nil, fmt.Errorf("approving membership request: %w", err)
	}
	return a, nil
}

// RejectRequest moves a pending account to rejected. Points debited at
// submission are not refunded. Returns ErrNoPendingRequest when the
// account exists but is not pending.
func (s *Store) RejectRequest(ctx context.Context, key Key) (*Account, error) {
	a, err := scanAccount(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`UPDATE users SET membership_status = 'rejected', updated_at = now()
			 WHERE user_id = $1 AND company_id = $2 AND membership_status = 'pending'
			 RETURNING `+accountColumns,
			key.UserID, key.CompanyID,
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetByKey(ctx, key); getErr != nil {
			return nil, getErr
		}
		return nil, ErrNoPendingRequest
	}
	if err != nil {
		return nil, fmt.Errorf("rejecting membership request: %w", err)
	}
	return a, nil
}
