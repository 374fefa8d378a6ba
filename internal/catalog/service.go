package catalog

import "errors"

var (
	// ErrNameRequired is returned when a plan is created without a name.
	ErrNameRequired = errors.New("plan name is required")
	// ErrDescriptionRequired is returned when a plan is created without a description.
	ErrDescriptionRequired = errors.New("plan description is required")
	// ErrDurationInvalid is returned when a plan duration is not a positive number of days.
	ErrDurationInvalid = errors.New("plan duration must be at least 1 day")
	// ErrCostInvalid is returned when a plan cost is negative.
	ErrCostInvalid = errors.New("plan cost must not be negative")
)

// ValidateCreate checks that the input contains everything needed to
// create a plan.
func ValidateCreate(in CreatePlanInput) error {
	if in.Name == "" {
		return ErrNameRequired
	}
	if in.Description == "" {
		return ErrDescriptionRequired
	}
	if in.DurationDays < 1 {
		return ErrDurationInvalid
	}
	if in.Cost < 0 {
		return ErrCostInvalid
	}
	return nil
}

// ValidateUpdate checks the non-nil fields of a partial update.
func ValidateUpdate(in UpdatePlanInput) error {
	if in.Name != nil && *in.Name == "" {
		return ErrNameRequired
	}
	if in.Description != nil && *in.Description == "" {
		return ErrDescriptionRequired
	}
	if in.DurationDays != nil && *in.DurationDays < 1 {
		return ErrDurationInvalid
	}
	if in.Cost != nil && *in.Cost < 0 {
		return ErrCostInvalid
	}
	return nil
}
