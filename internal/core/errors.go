package core

import "errors"

var (
	// ErrInvalidAmount is returned when a zero or negative amount is given
	// where a positive value is required.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidCategory is returned for an empty or unknown category name.
	ErrInvalidCategory = errors.New("invalid category")

	// ErrEmptyName is returned when a sub-division name is blank.
	ErrEmptyName = errors.New("empty sub-division name")

	// ErrDuplicateName is returned in strict-names mode when a sub-division
	// with the same name already exists in the category.
	ErrDuplicateName = errors.New("duplicate sub-division name")

	// ErrExceedsCategoryBudget is returned when a sub-division allocation
	// exceeds its parent category's allocation.
	ErrExceedsCategoryBudget = errors.New("allocation exceeds category budget")

	// ErrInsufficientFunds is returned when a spend exceeds the remaining
	// balance of the targeted sub-division, category, or overall budget.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDailyLimitExceeded is returned when a spend would breach the daily
	// cap while strict mode is enabled.
	ErrDailyLimitExceeded = errors.New("daily limit exceeded")

	// ErrZeroAllocation is returned when a percentage would be computed
	// against a category with zero allocation.
	ErrZeroAllocation = errors.New("category has zero allocation")

	// ErrBudgetExists is returned in strict-reinit mode when a budget is
	// initialized for an identity that already has one.
	ErrBudgetExists = errors.New("budget already initialized")

	// ErrBudgetNotFound is returned when no budget exists for an identity.
	ErrBudgetNotFound = errors.New("budget not found")

	// ErrSubDivisionNotFound is returned when the targeted sub-division
	// does not exist in the category.
	ErrSubDivisionNotFound = errors.New("sub-division not found")
)
