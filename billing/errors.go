/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every operation returns one of these as a typed result; nothing is
  thrown as a generic failure and nothing is silently swallowed.

ERROR CATEGORIES:
  1. Validation errors - Missing or malformed input
  2. State errors      - Operation illegal for the current workflow status
  3. Money errors      - Payments that don't fit the balance
  4. Integrity errors  - Duplicate or ambiguous fee configuration
  5. Store errors      - Underlying transaction failures

USAGE:
  Callers classify with errors.Is / errors.As:

    if errors.Is(err, billing.ErrOverpayment) {
        // tell the parent the payment exceeds the outstanding balance
    }

SEE ALSO:
  - feerule.go: Returns DuplicateRuleError / ConfigurationError
  - installment.go: Returns InvalidPlanError
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for missing or malformed input, e.g.
	// submitting an invoice before an installment plan is chosen.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced invoice, rule, plan,
	// service, student, or term does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateRule is returned when creating or updating a fee rule
	// would leave two active rules on the same (fee_item, class, term).
	ErrDuplicateRule = errors.New("duplicate fee rule")

	// ErrStateTransition is returned when an operation is illegal for the
	// invoice's current workflow status.
	ErrStateTransition = errors.New("illegal state transition")

	// ErrOverpayment is returned when a payment exceeds the outstanding
	// balance. Payments are never partially accepted.
	ErrOverpayment = errors.New("payment exceeds outstanding balance")

	// ErrInvalidPlan is returned when an installment plan's percentages
	// do not sum to exactly 100.
	ErrInvalidPlan = errors.New("invalid installment plan")

	// ErrConfiguration is returned when fee data is in a state that rule
	// writes should have prevented, e.g. two equally specific active rules.
	ErrConfiguration = errors.New("ambiguous fee configuration")

	// ErrPersistence is returned when the underlying transaction fails.
	// The unit of work has been fully rolled back.
	ErrPersistence = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports which field failed and why.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string // "invoice", "student", "plan", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicateRuleError identifies the conflicting rule triple.
type DuplicateRuleError struct {
	FeeItemID FeeItemID
	ClassID   ClassID
	TermID    *TermID
}

func (e *DuplicateRuleError) Error() string {
	scope := "all terms"
	if e.TermID != nil {
		scope = "term " + string(*e.TermID)
	}
	return fmt.Sprintf("an active rule already exists for fee item %s, class %s, %s",
		e.FeeItemID, e.ClassID, scope)
}

func (e *DuplicateRuleError) Unwrap() error { return ErrDuplicateRule }

// StateTransitionError reports the operation and the status that forbade it.
type StateTransitionError struct {
	InvoiceID InvoiceID
	Operation string
	Status    WorkflowStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s invoice %s while %s", e.Operation, e.InvoiceID, e.Status)
}

func (e *StateTransitionError) Unwrap() error { return ErrStateTransition }

// OverpaymentError carries the amounts so the caller can show an
// actionable message.
type OverpaymentError struct {
	InvoiceID InvoiceID
	Balance   Money
	Requested Money
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds outstanding balance of %s on invoice %s",
		e.Requested, e.Balance, e.InvoiceID)
}

func (e *OverpaymentError) Unwrap() error { return ErrOverpayment }

// InvalidPlanError reports what the schedule actually summed to.
type InvalidPlanError struct {
	PlanID PlanID
	Sum    string
}

func (e *InvalidPlanError) Error() string {
	return fmt.Sprintf("installment plan %s percentages sum to %s, want 100", e.PlanID, e.Sum)
}

func (e *InvalidPlanError) Unwrap() error { return ErrInvalidPlan }

// ConfigurationError describes a data-integrity condition the resolver
// refuses to guess around.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// rather than an engine or store failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidPlan) ||
		errors.Is(err, ErrOverpayment) ||
		errors.Is(err, ErrStateTransition) ||
		errors.Is(err, ErrDuplicateRule)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for errors a UI should render as a conflict
// with current state (409) rather than bad input.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateRule) || errors.Is(err, ErrStateTransition)
}
