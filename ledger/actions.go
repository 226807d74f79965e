/*
actions.go - Planned-mutation variant types

PURPOSE:
  DebtAction and BalanceAction describe what a reconciliation must do to a
  single student's debt rows and hour balance. The calculation engine
  produces them; the applier executes them inside one transaction. Keeping
  the plan explicit is what makes the engine pure and replayable.

CLOSED SUM TYPES:
  Both types have unexported fields and constructor functions, so an action
  can only be built in a valid shape: an update always carries a debt id, a
  create always carries a magnitude. Illegal states are unrepresentable.

JSON:
  Actions cross the HTTP boundary (the preview endpoint returns them, and
  clients may echo them back for verification), so both types round-trip
  through a small exported JSON view.

SEE ALSO:
  - calculate.go: Produces CalculatedDebt lists
  - sessions/apply.go: Executes them
*/
package ledger

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// DEBT ACTION
// =============================================================================

type DebtActionKind string

const (
	DebtActionNone   DebtActionKind = "none"
	DebtActionCreate DebtActionKind = "create"
	DebtActionUpdate DebtActionKind = "update"
	DebtActionRemove DebtActionKind = "remove"
	DebtActionKeep   DebtActionKind = "keep"
)

// DebtAction is one planned mutation of a student's debt rows.
type DebtAction struct {
	kind   DebtActionKind
	debtID DebtID
	hours  Hours
}

func NoDebtAction() DebtAction { return DebtAction{kind: DebtActionNone} }

// CreateDebt plans a new debt of the given magnitude.
func CreateDebt(hours Hours) DebtAction {
	return DebtAction{kind: DebtActionCreate, hours: hours}
}

// UpdateDebt plans changing an existing unpaid debt's magnitude.
func UpdateDebt(id DebtID, hours Hours) DebtAction {
	return DebtAction{kind: DebtActionUpdate, debtID: id, hours: hours}
}

// RemoveDebt plans deleting an existing unpaid debt.
func RemoveDebt(id DebtID) DebtAction {
	return DebtAction{kind: DebtActionRemove, debtID: id}
}

// KeepDebt plans preserving an existing paid debt, flagging it restored.
func KeepDebt(id DebtID) DebtAction {
	return DebtAction{kind: DebtActionKeep, debtID: id}
}

func (a DebtAction) Kind() DebtActionKind { return a.kind }
func (a DebtAction) DebtID() DebtID       { return a.debtID }
func (a DebtAction) Hours() Hours         { return a.hours }

func (a DebtAction) Equal(b DebtAction) bool {
	return a.kind == b.kind && a.debtID == b.debtID && a.hours.Equal(b.hours)
}

func (a DebtAction) String() string {
	switch a.kind {
	case DebtActionCreate:
		return fmt.Sprintf("create(%s)", a.hours)
	case DebtActionUpdate:
		return fmt.Sprintf("update(%s, %s)", a.debtID, a.hours)
	case DebtActionRemove:
		return fmt.Sprintf("remove(%s)", a.debtID)
	case DebtActionKeep:
		return fmt.Sprintf("keep(%s)", a.debtID)
	default:
		return "none"
	}
}

type debtActionJSON struct {
	Kind   DebtActionKind `json:"kind"`
	DebtID DebtID         `json:"debtId,omitempty"`
	Hours  *Hours         `json:"hours,omitempty"`
}

func (a DebtAction) MarshalJSON() ([]byte, error) {
	v := debtActionJSON{Kind: a.kind, DebtID: a.debtID}
	if a.kind == DebtActionCreate || a.kind == DebtActionUpdate {
		h := a.hours
		v.Hours = &h
	}
	return json.Marshal(v)
}

func (a *DebtAction) UnmarshalJSON(data []byte) error {
	var v debtActionJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.Kind {
	case DebtActionNone, "":
		*a = NoDebtAction()
	case DebtActionCreate:
		if v.Hours == nil {
			return fmt.Errorf("debt action %q requires hours", v.Kind)
		}
		*a = CreateDebt(*v.Hours)
	case DebtActionUpdate:
		if v.DebtID == "" || v.Hours == nil {
			return fmt.Errorf("debt action %q requires debtId and hours", v.Kind)
		}
		*a = UpdateDebt(v.DebtID, *v.Hours)
	case DebtActionRemove:
		if v.DebtID == "" {
			return fmt.Errorf("debt action %q requires debtId", v.Kind)
		}
		*a = RemoveDebt(v.DebtID)
	case DebtActionKeep:
		if v.DebtID == "" {
			return fmt.Errorf("debt action %q requires debtId", v.Kind)
		}
		*a = KeepDebt(v.DebtID)
	default:
		return fmt.Errorf("unknown debt action kind %q", v.Kind)
	}
	return nil
}

// =============================================================================
// BALANCE ACTION
// =============================================================================

type BalanceActionKind string

const (
	BalanceActionNone      BalanceActionKind = "none"
	BalanceActionIncrement BalanceActionKind = "increment"
	BalanceActionDecrement BalanceActionKind = "decrement"
	BalanceActionSet       BalanceActionKind = "set"
)

// BalanceAction is one planned mutation of a student's hour balance.
// Increment amounts may be negative: "return old minus new hours" is an
// increment even when the duration grew.
type BalanceAction struct {
	kind   BalanceActionKind
	amount Hours
}

func NoBalanceAction() BalanceAction { return BalanceAction{kind: BalanceActionNone} }

func IncrementBalance(amount Hours) BalanceAction {
	return BalanceAction{kind: BalanceActionIncrement, amount: amount}
}

func DecrementBalance(amount Hours) BalanceAction {
	return BalanceAction{kind: BalanceActionDecrement, amount: amount}
}

func SetBalance(amount Hours) BalanceAction {
	return BalanceAction{kind: BalanceActionSet, amount: amount}
}

func (a BalanceAction) Kind() BalanceActionKind { return a.kind }
func (a BalanceAction) Amount() Hours           { return a.amount }

func (a BalanceAction) Equal(b BalanceAction) bool {
	return a.kind == b.kind && a.amount.Equal(b.amount)
}

func (a BalanceAction) String() string {
	if a.kind == BalanceActionNone {
		return "none"
	}
	return fmt.Sprintf("%s(%s)", a.kind, a.amount)
}

// Apply returns the balance after this action. It does not clamp: the engine
// only emits actions that keep the result non-negative, and the applier
// treats a negative result as a transaction-aborting violation.
func (a BalanceAction) Apply(balance Hours) Hours {
	switch a.kind {
	case BalanceActionIncrement:
		return balance.Add(a.amount)
	case BalanceActionDecrement:
		return balance.Sub(a.amount)
	case BalanceActionSet:
		return a.amount
	default:
		return balance
	}
}

type balanceActionJSON struct {
	Kind   BalanceActionKind `json:"kind"`
	Amount *Hours            `json:"amount,omitempty"`
}

func (a BalanceAction) MarshalJSON() ([]byte, error) {
	v := balanceActionJSON{Kind: a.kind}
	if a.kind != BalanceActionNone {
		amt := a.amount
		v.Amount = &amt
	}
	return json.Marshal(v)
}

func (a *BalanceAction) UnmarshalJSON(data []byte) error {
	var v balanceActionJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.Kind {
	case BalanceActionNone, "":
		*a = NoBalanceAction()
	case BalanceActionIncrement, BalanceActionDecrement, BalanceActionSet:
		if v.Amount == nil {
			return fmt.Errorf("balance action %q requires amount", v.Kind)
		}
		*a = BalanceAction{kind: v.Kind, amount: *v.Amount}
	default:
		return fmt.Errorf("unknown balance action kind %q", v.Kind)
	}
	return nil
}

// =============================================================================
// CALCULATED DEBT - One planned entry per affected student
// =============================================================================

// CalculatedDebt pairs the debt and balance mutation planned for one
// student. A reconciliation may emit more than one entry for the same
// student (a kept paid debt plus a fresh shortfall).
type CalculatedDebt struct {
	StudentID StudentID     `json:"studentId"`
	Debt      DebtAction    `json:"debt"`
	Balance   BalanceAction `json:"balanceAction"`
}

func (c CalculatedDebt) Equal(o CalculatedDebt) bool {
	return c.StudentID == o.StudentID && c.Debt.Equal(o.Debt) && c.Balance.Equal(o.Balance)
}

// EqualPlans compares two plans entry-by-entry, order-sensitively.
func EqualPlans(a, b []CalculatedDebt) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
