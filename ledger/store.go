/*
store.go - Persistence contract for the reconciliation core

The engine itself is pure; these interfaces are what the orchestrator and
applier need from a relational store: per-entity reads and writes plus one
multi-statement atomic transaction primitive. Implementations live in
store/sqlite; the contract works the same over PostgreSQL.
*/
package ledger

import (
	"context"
	"time"
)

// SessionUpdate carries the scalar fields of a class session an edit may
// change. Duration changes are what drive balance recomputation.
type SessionUpdate struct {
	Date              time.Time
	TeacherID         TeacherID
	TeacherHourRateID RateID
	Hours             Hours
}

// Store is the data access surface of one reconciliation. Inside WithTx the
// same interface is backed by the open transaction, so every method here is
// safe to call from the applier.
type Store interface {
	// Students
	GetStudent(ctx context.Context, id StudentID) (*Student, error)
	GetStudentsByIDs(ctx context.Context, ids []StudentID) ([]Student, error)
	SetStudentBalance(ctx context.Context, id StudentID, balance Hours) error

	// Class sessions (GetClassSession loads roster and debts nested)
	GetClassSession(ctx context.Context, id ClassSessionID) (*ClassSession, error)
	InsertClassSession(ctx context.Context, session ClassSession) error
	UpdateClassSessionFields(ctx context.Context, id ClassSessionID, update SessionUpdate) error
	DeleteClassSession(ctx context.Context, id ClassSessionID) error
	DeactivateClassSession(ctx context.Context, id ClassSessionID) error

	// Roster
	AddSessionStudent(ctx context.Context, sessionID ClassSessionID, studentID StudentID) error
	RemoveSessionStudent(ctx context.Context, sessionID ClassSessionID, studentID StudentID) error
	ClearSessionRoster(ctx context.Context, sessionID ClassSessionID) error

	// Debts
	GetDebt(ctx context.Context, id DebtID) (*Debt, error)
	ListStudentDebts(ctx context.Context, studentID StudentID) ([]Debt, error)
	InsertDebt(ctx context.Context, debt Debt) error
	UpdateDebtHours(ctx context.Context, id DebtID, hours Hours) error
	DeleteDebt(ctx context.Context, id DebtID) error
	MarkDebtRestored(ctx context.Context, id DebtID) error

	// Payments
	InsertPayment(ctx context.Context, payment Payment) error
	SetDebtPayment(ctx context.Context, debtID DebtID, paymentID PaymentID) error

	// Rates
	GetTeacherHourRate(ctx context.Context, id RateID) (*TeacherHourRate, error)
}

// TxStore adds the atomic transaction primitive. If fn returns an error the
// transaction is rolled back and none of its writes are observable.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
