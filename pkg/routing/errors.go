package routing

import (
	"errors"
	"fmt"
)

// Common routing errors that can be checked with errors.Is().
var (
	// ErrNoRouteConfigured is returned when no route matches and no
	// default route is configured.
	ErrNoRouteConfigured = errors.New("no route configured")

	// ErrCatalogEmpty reports that the pricing catalog holds no models
	// at all. The cascade's last-resort warning carries it.
	ErrCatalogEmpty = errors.New("pricing catalog is empty")

	// ErrBudgetExceeded marks a budget rejection. It is internal to the
	// cascade: a routing decision never carries it, only the budget
	// inspection surface does.
	ErrBudgetExceeded = errors.New("budget exceeded")
)

// BudgetExceededError reports the cap a request ran into.
type BudgetExceededError struct {
	// Period is the accounting interval whose cap was hit.
	Period string

	// Provider is the scope of the violated setting.
	Provider string

	// Limit and Usage describe the cap at rejection time.
	Limit float64
	Usage float64
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s budget exceeded for %s: usage %.4f of limit %.4f",
		e.Period, e.Provider, e.Usage, e.Limit)
}

// Is implements error matching for errors.Is().
func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}
