/*
Package ledger provides the hour-balance and debt reconciliation core.

PURPOSE:
  This package contains the value types and pure algorithms behind the
  tutoring back office: exact hour quantities, students and class sessions,
  debt records, and the calculation engine that decides how a roster or
  duration change must adjust each affected student's prepaid-hour balance
  and outstanding debts.

KEY CONCEPTS IN THIS FILE (types.go):
  - Hours: An exact decimal quantity of class hours
  - Student: Holder of a prepaid hour balance (never stored negative)
  - ClassSession: A dated class with a duration, a teacher, and a roster
  - Debt: A recorded shortfall for a (student, session) pair

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so repeated increments and decrements
     reconcile exactly. Hour and currency quantities never touch float64.
  2. Externalized deficits: A student's balance is clamped at zero; any
     shortfall becomes a Debt row instead of a negative balance.
  3. Paid history is immutable: A debt with a payment attached is never
     deleted, only flagged restored when its attendance is reversed.

SEE ALSO:
  - actions.go: DebtAction/BalanceAction planned-mutation variants
  - calculate.go: The debt calculation engine
  - classify.go: Debt bucket classification
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOURS - Exact decimal hour quantity
// =============================================================================

// Hours is a quantity of class hours backed by an arbitrary-precision
// decimal. All balance and debt arithmetic goes through this type.
type Hours struct {
	Value decimal.Decimal
}

func NewHours(value float64) Hours             { return Hours{Value: decimal.NewFromFloat(value)} }
func HoursFromDecimal(d decimal.Decimal) Hours { return Hours{Value: d} }
func ZeroHours() Hours                         { return Hours{Value: decimal.Zero} }

// MustParseHours parses a decimal string, returning zero hours on failure.
// Used when scanning values the store itself wrote.
func MustParseHours(s string) Hours {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroHours()
	}
	return Hours{Value: d}
}

func (h Hours) Add(o Hours) Hours               { return Hours{Value: h.Value.Add(o.Value)} }
func (h Hours) Sub(o Hours) Hours               { return Hours{Value: h.Value.Sub(o.Value)} }
func (h Hours) Mul(s decimal.Decimal) Hours     { return Hours{Value: h.Value.Mul(s)} }
func (h Hours) Neg() Hours                      { return Hours{Value: h.Value.Neg()} }
func (h Hours) Abs() Hours                      { return Hours{Value: h.Value.Abs()} }
func (h Hours) IsZero() bool                    { return h.Value.IsZero() }
func (h Hours) IsNegative() bool                { return h.Value.IsNegative() }
func (h Hours) IsPositive() bool                { return h.Value.IsPositive() }
func (h Hours) Equal(o Hours) bool              { return h.Value.Equal(o.Value) }
func (h Hours) GreaterThan(o Hours) bool        { return h.Value.GreaterThan(o.Value) }
func (h Hours) LessThan(o Hours) bool           { return h.Value.LessThan(o.Value) }
func (h Hours) GreaterThanOrEqual(o Hours) bool { return h.Value.GreaterThanOrEqual(o.Value) }
func (h Hours) String() string                  { return h.Value.String() }

func (h Hours) MarshalJSON() ([]byte, error) { return h.Value.MarshalJSON() }

func (h *Hours) UnmarshalJSON(data []byte) error { return h.Value.UnmarshalJSON(data) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID string
type TeacherID string
type RateID string
type ClassSessionID string
type DebtID string
type PaymentID string

// =============================================================================
// STUDENT - Aggregate root holding the prepaid hour balance
// =============================================================================

// Student is an aggregate root. HourBalance is the single stored scalar the
// reconciliation engine guards: it is >= 0 after every committed
// reconciliation, with deficits externalized as Debt rows.
type Student struct {
	ID          StudentID
	Name        string
	Email       string
	Phone       string
	HourBalance Hours
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// TEACHER AND HOUR RATE - Supporting entities
// =============================================================================

type Teacher struct {
	ID        TeacherID
	Name      string
	CreatedAt time.Time
}

// TeacherHourRate is a priced rate a class session references. The applier
// stamps the rate in effect onto every debt it records, so a later price
// change never rewrites collected history.
type TeacherHourRate struct {
	ID        RateID
	TeacherID TeacherID
	Name      string
	Rate      decimal.Decimal
	CreatedAt time.Time
}

// =============================================================================
// CLASS SESSION - Aggregate root owning a roster and its debts
// =============================================================================

// ClassSession owns its roster (Students) and the Debt rows recorded against
// it. Debts outlive roster membership: a student removed from the roster may
// still appear in Debts if money was collected for a past shortfall.
type ClassSession struct {
	ID                ClassSessionID
	Date              time.Time
	Hours             Hours
	TeacherID         TeacherID // empty once the teacher is unlinked on soft delete
	TeacherHourRateID RateID
	IsActive          bool
	TeacherPaymentID  *PaymentID
	Students          []StudentID
	Debts             []Debt
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Enrolled reports whether the student is currently on the roster.
func (cs *ClassSession) Enrolled(id StudentID) bool {
	for _, s := range cs.Students {
		if s == id {
			return true
		}
	}
	return false
}

// =============================================================================
// DEBT - A recorded shortfall for a (student, session) pair
// =============================================================================

// Debt records that a student consumed more hours than their balance covered
// for a specific class session.
//
// Lifecycle:
//   - created when a reconciliation would otherwise drive the balance negative
//   - paid once PaymentID is set (money collected)
//   - restored once a paid debt's attendance is reversed; the row is kept
//   - deleted only while unpaid
type Debt struct {
	ID             DebtID
	StudentID      StudentID
	ClassSessionID ClassSessionID
	Hours          Hours
	Rate           decimal.Decimal
	PaymentID      *PaymentID
	Restored       bool
	CreatedAt      time.Time
}

// IsPaid reports whether money has been collected for this debt. A paid debt
// must never be deleted, regardless of the restored flag.
func (d Debt) IsPaid() bool { return d.PaymentID != nil }

// Amount returns the money value of the debt (hours times rate).
func (d Debt) Amount() decimal.Decimal { return d.Hours.Value.Mul(d.Rate) }

// =============================================================================
// PAYMENT - Money collected against one or more debts
// =============================================================================

type Payment struct {
	ID        PaymentID
	StudentID StudentID
	Method    string
	Amount    decimal.Decimal
	CreatedAt time.Time
}
