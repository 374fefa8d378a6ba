// Package history records point balance changes as an append-only audit
// trail. Every debit, adjustment and membership decision writes one entry
// in the same request that performed the change.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Reasons attached to recorded entries.
const (
	ReasonMembershipRequest  = "membership_request"
	ReasonMembershipApproved = "membership_approved"
	ReasonMembershipRejected = "membership_rejected"
	ReasonDirectPurchase     = "membership_purchase"
	ReasonAdminAdjustment    = "admin_adjustment"
	ReasonAdminGrant         = "admin_grant"
)

// Entry is a single recorded balance change. Amount is the delta applied
// (negative for debits, zero for decisions that move no points).
type Entry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	CompanyID    string    `json:"companyId"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balanceAfter"`
	Reason       string    `json:"reason"`
	MembershipID *string   `json:"membershipId,omitempty"`
	ActorUserID  string    `json:"actorUserId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store persists history entries.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a history store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Record appends an entry. ID and CreatedAt are assigned by the database.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO point_transactions
		   (user_id, company_id, amount, balance_after, reason, membership_id, actor_user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.UserID, e.CompanyID, e.Amount, e.BalanceAfter, e.Reason, e.MembershipID, e.ActorUserID,
	)
	if err != nil {
		return fmt.Errorf("recording point transaction: %w", err)
	}
	return nil
}

// ListByUser returns a user's entries within a tenant, newest first,
// capped at limit. A limit of zero or less uses a default of 100.
func (s *Store) ListByUser(ctx context.Context, userID, companyID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, company_id, amount, balance_after, reason, membership_id, actor_user_id, created_at
		 FROM point_transactions
		 WHERE user_id = $1 AND company_id = $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		userID, companyID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing point transactions: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.ID, &e.UserID, &e.CompanyID, &e.Amount, &e.BalanceAfter,
			&e.Reason, &e.MembershipID, &e.ActorUserID, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning point transaction: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating point transactions: %w", err)
	}
	return entries, nil
}
