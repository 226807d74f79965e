/*
errors.go - Centralized error types for the reconciliation core

All sentinel errors in one place. Upper layers classify them with
errors.Is via the helpers at the bottom; the HTTP layer maps the classes to
status codes. Transaction failures from the store are wrapped, never
swallowed: a failed reconciliation applies nothing.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrStudentNotFound is returned when a referenced student does not exist.
	ErrStudentNotFound = errors.New("student not found")

	// ErrSessionNotFound is returned when a referenced class session does not exist.
	ErrSessionNotFound = errors.New("class session not found")

	// ErrTeacherNotFound is returned when a referenced teacher does not exist.
	ErrTeacherNotFound = errors.New("teacher not found")

	// ErrRateNotFound is returned when a referenced hour rate does not exist.
	ErrRateNotFound = errors.New("teacher hour rate not found")

	// ErrDebtNotFound is returned when a referenced debt row does not exist.
	ErrDebtNotFound = errors.New("debt not found")

	// ErrDebtPaid is returned when an operation would delete or resize a debt
	// with money already collected. Paid debts are immutable except for the
	// restored flag.
	ErrDebtPaid = errors.New("debt already paid")

	// ErrNegativeBalance is returned when an applied plan would drive a stored
	// hour balance below zero. The engine never plans this; seeing it means
	// the plan is stale or hand-made, and the whole transaction aborts.
	ErrNegativeBalance = errors.New("hour balance would go negative")

	// ErrCalculationMismatch is returned when client-submitted debt actions
	// disagree with the server-side recomputation from canonical state.
	ErrCalculationMismatch = errors.New("submitted debt calculation does not match current state")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NegativeBalanceError reports which student's balance a plan would break.
type NegativeBalanceError struct {
	StudentID StudentID
	Balance   Hours
	Result    Hours
	Action    BalanceAction
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("hour balance would go negative: student %s, balance %s, action %s, result %s",
		e.StudentID, e.Balance, e.Action, e.Result)
}

func (e *NegativeBalanceError) Unwrap() error { return ErrNegativeBalance }

// PaidDebtError reports an attempt to delete or resize a paid debt.
type PaidDebtError struct {
	DebtID    DebtID
	PaymentID PaymentID
	Op        string // "delete", "update", or "pay"
}

func (e *PaidDebtError) Error() string {
	return fmt.Sprintf("cannot %s debt %s: payment %s already collected", e.Op, e.DebtID, e.PaymentID)
}

func (e *PaidDebtError) Unwrap() error { return ErrDebtPaid }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrTeacherNotFound) ||
		errors.Is(err, ErrRateNotFound) ||
		errors.Is(err, ErrDebtNotFound)
}

// IsClientError reports whether the error is due to invalid client input
// rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrCalculationMismatch) ||
		errors.Is(err, ErrDebtPaid) ||
		errors.Is(err, ErrNegativeBalance)
}
