package tally

import (
	"errors"
	"fmt"

	"github.com/xraph/tally/types"
)

// ErrOverflow is returned when token or counter arithmetic would exceed
// the uint64 range. It aliases the types package sentinel so callers can
// match it without importing types.
var ErrOverflow = types.ErrOverflow

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("tally: not found")
	ErrAlreadyExists = errors.New("tally: already exists")
	ErrPaused        = errors.New("tally: ledger is paused")

	// Registry errors
	ErrUnknownTier      = errors.New("tally: unknown tier")
	ErrUnknownNode      = errors.New("tally: unknown node")
	ErrUnknownInspector = errors.New("tally: unknown inspector")

	// Authorization errors
	ErrUnauthorizedReporter = errors.New("tally: reporter is not a registered inspector")
	ErrUnauthorizedOperator = errors.New("tally: caller is not the operator")

	// Billing errors
	ErrNoSubscription      = errors.New("tally: no subscription for app")
	ErrInsufficientBalance = errors.New("tally: insufficient balance")
	ErrInsufficientPool    = errors.New("tally: insufficient revenue pool")

	// Metering errors
	ErrRetentionExpired    = errors.New("tally: report day outside retention window")
	ErrUnexpectedTimestamp = errors.New("tally: report day is in the future")

	// Store errors
	ErrNoSettings      = errors.New("tally: settings not initialized")
	ErrNoRevenuePool   = errors.New("tally: revenue pool not initialized")
	ErrStoreClosed     = errors.New("tally: store is closed")
	ErrMigrationFailed = errors.New("tally: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tally: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "tally: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tally: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error reports a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnknownTier) ||
		errors.Is(err, ErrUnknownNode) ||
		errors.Is(err, ErrUnknownInspector) ||
		errors.Is(err, ErrNoSubscription) ||
		errors.Is(err, ErrNoSettings) ||
		errors.Is(err, ErrNoRevenuePool)
}

// IsAuthorization returns true if the error reports a caller lacking the
// role an operation requires.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrUnauthorizedReporter) ||
		errors.Is(err, ErrUnauthorizedOperator)
}

// IsTimestamp returns true if the error reports a report dated outside the
// window the ledger accepts.
func IsTimestamp(err error) bool {
	return errors.Is(err, ErrRetentionExpired) ||
		errors.Is(err, ErrUnexpectedTimestamp)
}
