package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database access for membership plans.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a plan store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const planColumns = `id, company_id, name, description, duration_days, cost, is_active, created_at, updated_at`

func scanPlan(scan func(dest ...any) error) (*Plan, error) {
	var p Plan
	err := scan(
		&p.ID,
		&p.CompanyID,
		&p.Name,
		&p.Description,
		&p.DurationDays,
		&p.Cost,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new plan and returns it with generated fields populated.
func (s *Store) Create(ctx context.Context, companyID string, in CreatePlanInput) (*Plan, error) {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO memberships (company_id, name, description, duration_days, cost, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+planColumns,
		companyID, in.Name, in.Description, in.DurationDays, in.Cost, active,
	)

	p, err := scanPlan(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("creating plan: %w", err)
	}
	return p, nil
}

// GetByID returns the plan with the given id within a company.
// Returns pgx.ErrNoRows if no such plan exists.
func (s *Store) GetByID(ctx context.Context, id, companyID string) (*Plan, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+planColumns+`
		FROM memberships
		WHERE id = $1 AND company_id = $2`,
		id, companyID,
	)
	return scanPlan(row.Scan)
}

// List returns every plan for a company, newest first.
func (s *Store) List(ctx context.Context, companyID string) ([]*Plan, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+planColumns+`
		FROM memberships
		WHERE company_id = $1
		ORDER BY created_at DESC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	defer rows.Close()

	return collectPlans(rows)
}

// ListActive returns only active plans for a company, cheapest first.
func (s *Store) ListActive(ctx context.Context, companyID string) ([]*Plan, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+planColumns+`
		FROM memberships
		WHERE company_id = $1 AND is_active = TRUE
		ORDER BY cost ASC, created_at DESC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing active plans: %w", err)
	}
	defer rows.Close()

	return collectPlans(rows)
}

func collectPlans(rows pgx.Rows) ([]*Plan, error) {
	plans := make([]*Plan, 0)
	for rows.Next() {
		p, err := scanPlan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plans: %w", err)
	}
	return plans, nil
}

// Update applies the non-nil fields of in to the plan with the given id.
// Returns pgx.ErrNoRows if no such plan exists.
func (s *Store) Update(ctx context.Context, id, companyID string, in UpdatePlanInput) (*Plan, error) {
	setClauses := []string{"updated_at = NOW()"}
	args := []any{id, companyID}
	argIdx := 3

	addClause := func(col string, val any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, val)
		argIdx++
	}

	if in.Name != nil {
		addClause("name", *in.Name)
	}
	if in.Description != nil {
		addClause("description", *in.Description)
	}
	if in.DurationDays != nil {
		addClause("duration_days", *in.DurationDays)
	}
	if in.Cost != nil {
		addClause("cost", *in.Cost)
	}
	if in.IsActive != nil {
		addClause("is_active", *in.IsActive)
	}

	query := "UPDATE memberships SET "
	for i, c := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += c
	}
	query += " WHERE id = $1 AND company_id = $2 RETURNING " + planColumns

	row := s.pool.QueryRow(ctx, query, args...)
	return scanPlan(row.Scan)
}

// Delete removes a plan. Returns pgx.ErrNoRows if no such plan exists.
func (s *Store) Delete(ctx context.Context, id, companyID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM memberships
		WHERE id = $1 AND company_id = $2`,
		id, companyID,
	)
	if err != nil {
		return fmt.Errorf("deleting plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
