/*
apply.go - The reconciliation applier

Executes a calculated plan against the store. The caller opens the
transaction (every entry point wraps applyPlan in WithTx), so a failed write
here rolls back all balance and debt mutations, never leaving a partial
reconciliation observable.

Order per entry: balance action first, then debt action. The applier also
re-checks the two hard invariants the engine guarantees - a balance write
that would go negative and any destructive touch of a paid debt abort the
transaction - because plans may have travelled over the wire.
*/
package sessions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chalkline/tutoring-office/ledger"
)

// applyPlan writes one reconciliation plan inside an open transaction.
// rate is the hour price stamped onto any debts the plan creates.
func applyPlan(ctx context.Context, store ledger.Store, sessionID ledger.ClassSessionID, rate decimal.Decimal, plan []ledger.CalculatedDebt) error {
	for _, entry := range plan {
		if err := applyBalance(ctx, store, entry); err != nil {
			return err
		}
		if err := applyDebt(ctx, store, sessionID, rate, entry); err != nil {
			return err
		}
	}
	return nil
}

func applyBalance(ctx context.Context, store ledger.Store, entry ledger.CalculatedDebt) error {
	if entry.Balance.Kind() == ledger.BalanceActionNone {
		return nil
	}

	student, err := store.GetStudent(ctx, entry.StudentID)
	if err != nil {
		return err
	}
	result := entry.Balance.Apply(student.HourBalance)
	if result.IsNegative() {
		return &ledger.NegativeBalanceError{
			StudentID: entry.StudentID,
			Balance:   student.HourBalance,
			Result:    result,
			Action:    entry.Balance,
		}
	}
	return store.SetStudentBalance(ctx, entry.StudentID, result)
}

func applyDebt(ctx context.Context, store ledger.Store, sessionID ledger.ClassSessionID, rate decimal.Decimal, entry ledger.CalculatedDebt) error {
	switch entry.Debt.Kind() {
	case ledger.DebtActionNone:
		return nil

	case ledger.DebtActionCreate:
		return store.InsertDebt(ctx, ledger.Debt{
			ID:             ledger.DebtID(uuid.NewString()),
			StudentID:      entry.StudentID,
			ClassSessionID: sessionID,
			Hours:          entry.Debt.Hours(),
			Rate:           rate,
		})

	case ledger.DebtActionUpdate:
		return store.UpdateDebtHours(ctx, entry.Debt.DebtID(), entry.Debt.Hours())

	case ledger.DebtActionRemove:
		return store.DeleteDebt(ctx, entry.Debt.DebtID())

	case ledger.DebtActionKeep:
		return store.MarkDebtRestored(ctx, entry.Debt.DebtID())

	default:
		return fmt.Errorf("unknown debt action kind %q", entry.Debt.Kind())
	}
}
