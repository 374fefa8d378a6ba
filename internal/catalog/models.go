package catalog

import "time"

// Plan is an administrator-defined purchasable membership offering.
type Plan struct {
	ID           string    `json:"id"`
	CompanyID    string    `json:"companyId"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	DurationDays int       `json:"duration"`
	Cost         int64     `json:"cost"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreatePlanInput holds the fields required to create a new plan.
type CreatePlanInput struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	DurationDays int    `json:"duration"`
	Cost         int64  `json:"cost"`
	IsActive     *bool  `json:"isActive"`
}

// UpdatePlanInput holds the fields that can be updated on a plan.
// All fields are optional; only non-nil fields are applied.
type UpdatePlanInput struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	DurationDays *int    `json:"duration"`
	Cost         *int64  `json:"cost"`
	IsActive     *bool   `json:"isActive"`
}
