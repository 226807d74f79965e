package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chalkline/tutoring-office/ledger"
)

// PayDebts settles a set of a student's debts with one payment. The amount
// is the sum of each debt's hours times its stored rate; already-paid debts
// and debts belonging to another student reject the whole batch. All marks
// land in one transaction, so a payment never covers half its debts.
func (s *Service) PayDebts(ctx context.Context, studentID ledger.StudentID, debtIDs []ledger.DebtID, method string) (*ledger.Payment, error) {
	if len(debtIDs) == 0 {
		return nil, fmt.Errorf("%w: payment covers no debts", ledger.ErrDebtNotFound)
	}

	payment := &ledger.Payment{
		ID:        ledger.PaymentID(uuid.NewString()),
		StudentID: studentID,
		Method:    method,
		CreatedAt: time.Now().UTC(),
	}

	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		if _, err := tx.GetStudent(ctx, studentID); err != nil {
			return err
		}

		amount := decimal.Zero
		for _, id := range debtIDs {
			debt, err := tx.GetDebt(ctx, id)
			if err != nil {
				return err
			}
			if debt.StudentID != studentID {
				return fmt.Errorf("%w: debt %s belongs to another student", ledger.ErrDebtNotFound, id)
			}
			if debt.IsPaid() {
				return &ledger.PaidDebtError{DebtID: id, PaymentID: *debt.PaymentID, Op: "pay"}
			}
			amount = amount.Add(debt.Amount())
		}
		payment.Amount = amount

		if err := tx.InsertPayment(ctx, *payment); err != nil {
			return err
		}
		for _, id := range debtIDs {
			if err := tx.SetDebtPayment(ctx, id, payment.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "debts paid",
		"student_id", studentID,
		"payment_id", payment.ID,
		"debts", len(debtIDs),
		"amount", payment.Amount)

	return payment, nil
}
