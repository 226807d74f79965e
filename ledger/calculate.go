/*
calculate.go - The debt calculation engine

PURPOSE:
  Given a class session's desired roster and duration (or a brand-new
  session), produce per affected student the exact DebtAction and
  BalanceAction pair describing what must happen. This is the one
  failure-sensitive algorithm in the back office; everything around it is
  plumbing.

PURITY:
  CalculateDebt performs no I/O. It takes a snapshot of current state
  (balances plus, for an existing session, the old duration, roster, and
  debt rows) and returns a plan. Identical inputs yield identical plans, so
  a reconciliation can be recomputed, verified against a client-submitted
  plan, or replayed after a transaction retry.

THE TWO CASES:
  Case A - new session: every desired student is a fresh enrollment. Hours
  come out of the balance; any shortfall becomes a new debt and the balance
  is clamped to zero.

  Case B - existing session: the desired roster is diffed against the
  current one into added / removed / untouched. Added students follow the
  Case A rule. Removed students get their consumed hours back, except that
  an unpaid shortfall is simply erased (nothing was ever collected) and a
  paid one is kept as history. Untouched students are re-settled only when
  the duration changed, carrying the same shortfall across the edit as an
  update rather than a delete-and-recreate so the original debt keeps its
  identity and rate.

INVARIANTS:
  - No plan ever drives a stored balance negative; deficits become debts.
  - No plan ever deletes a paid debt; it is kept (and flagged restored).
  - A shortfall surviving an edit is an update of the same row, not a new one.
*/
package ledger

import "fmt"

// =============================================================================
// INPUT SNAPSHOT
// =============================================================================

// SessionState is the engine's snapshot of an existing class session: the
// old duration, the currently enrolled students, and every debt row tied to
// the session (including debts of students no longer enrolled).
type SessionState struct {
	ID        ClassSessionID
	Hours     Hours
	RosterIDs []StudentID
	Debts     []Debt
}

func (s *SessionState) debtsByStudent() map[StudentID][]Debt {
	m := make(map[StudentID][]Debt, len(s.Debts))
	for _, d := range s.Debts {
		m[d.StudentID] = append(m[d.StudentID], d)
	}
	return m
}

// CalcInput is everything CalculateDebt needs. Balances must cover every
// student in StudentIDs; Session is nil for a brand-new session (Case A).
type CalcInput struct {
	StudentIDs []StudentID
	Hours      Hours
	Balances   map[StudentID]Hours
	Session    *SessionState
}

// =============================================================================
// THE ENGINE
// =============================================================================

// CalculateDebt computes the reconciliation plan for a roster/duration
// change. Pure and idempotent; the returned order is deterministic (desired
// roster order, then removed students in current-roster order).
func CalculateDebt(in CalcInput) ([]CalculatedDebt, error) {
	if in.Session == nil {
		return calculateNewSession(in)
	}
	return calculateExistingSession(in)
}

// calculateNewSession handles Case A: every desired student enrolls fresh.
func calculateNewSession(in CalcInput) ([]CalculatedDebt, error) {
	plan := make([]CalculatedDebt, 0, len(in.StudentIDs))
	for _, id := range in.StudentIDs {
		balance, err := balanceFor(in, id)
		if err != nil {
			return nil, err
		}
		plan = append(plan, enroll(id, balance, in.Hours))
	}
	return plan, nil
}

// calculateExistingSession handles Case B: diff desired vs. current roster.
func calculateExistingSession(in CalcInput) ([]CalculatedDebt, error) {
	session := in.Session
	current := make(map[StudentID]bool, len(session.RosterIDs))
	for _, id := range session.RosterIDs {
		current[id] = true
	}
	desired := make(map[StudentID]bool, len(in.StudentIDs))
	for _, id := range in.StudentIDs {
		desired[id] = true
	}
	debts := session.debtsByStudent()

	var plan []CalculatedDebt

	// Added and untouched students, in desired-roster order.
	for _, id := range in.StudentIDs {
		balance, err := balanceFor(in, id)
		if err != nil {
			return nil, err
		}
		if !current[id] {
			plan = append(plan, enroll(id, balance, in.Hours))
			continue
		}
		plan = append(plan, settleUntouched(id, balance, in.Hours, session, debts[id])...)
	}

	// Removed students, in current-roster order.
	for _, id := range session.RosterIDs {
		if desired[id] {
			continue
		}
		plan = append(plan, releaseRemoved(id, session, debts[id])...)
	}

	return plan, nil
}

// enroll settles one student joining a session: hours come out of the
// balance when it covers them, otherwise the balance is drained to zero and
// the remainder becomes a new debt.
func enroll(id StudentID, balance, hours Hours) CalculatedDebt {
	if hours.GreaterThan(balance) {
		return CalculatedDebt{
			StudentID: id,
			Debt:      CreateDebt(hours.Sub(balance)),
			Balance:   SetBalance(ZeroHours()),
		}
	}
	return CalculatedDebt{
		StudentID: id,
		Debt:      NoDebtAction(),
		Balance:   DecrementBalance(hours),
	}
}

// releaseRemoved settles one student leaving the session. Consumed hours
// are returned to the balance; a paid debt is kept as collected history
// (hours return anyway, the money bought them), an unpaid one is erased
// without restoring anything beyond what the balance actually covered.
func releaseRemoved(id StudentID, session *SessionState, studentDebts []Debt) []CalculatedDebt {
	groups := ClassifySessionDebts(studentDebts, session.ID)
	if !groups.HasActive() {
		return []CalculatedDebt{{
			StudentID: id,
			Debt:      NoDebtAction(),
			Balance:   IncrementBalance(session.Hours),
		}}
	}

	var out []CalculatedDebt
	for _, d := range groups.Paid {
		out = append(out, CalculatedDebt{
			StudentID: id,
			Debt:      KeepDebt(d.ID),
			Balance:   IncrementBalance(session.Hours),
		})
	}
	for _, d := range groups.Unpaid {
		out = append(out, CalculatedDebt{
			StudentID: id,
			Debt:      RemoveDebt(d.ID),
			Balance:   NoBalanceAction(),
		})
	}
	return out
}

// settleUntouched re-settles a student enrolled both before and after the
// edit. Only a duration change requires action; equal hours produce no
// entries at all, avoiding no-op writes.
func settleUntouched(id StudentID, balance, newHours Hours, session *SessionState, studentDebts []Debt) []CalculatedDebt {
	oldHours := session.Hours
	if newHours.Equal(oldHours) {
		return nil
	}

	groups := ClassifySessionDebts(studentDebts, session.ID)
	switch {
	case len(groups.Paid) > 0:
		// The paid debt is untouched history. Settle only the duration
		// delta against the balance; if the extra hours exceed it, the
		// overflow becomes a brand-new debt next to the kept one.
		kept := groups.Paid[0]
		newBalance := balance.Add(oldHours).Sub(newHours)
		if newBalance.IsNegative() {
			return []CalculatedDebt{
				{StudentID: id, Debt: KeepDebt(kept.ID), Balance: NoBalanceAction()},
				{StudentID: id, Debt: CreateDebt(newBalance.Abs()), Balance: SetBalance(ZeroHours())},
			}
		}
		return []CalculatedDebt{{
			StudentID: id,
			Debt:      KeepDebt(kept.ID),
			Balance:   IncrementBalance(oldHours.Sub(newHours)),
		}}

	case len(groups.Unpaid) > 0:
		// Carry the same shortfall across the edit. hoursSurplus is the
		// part of the old attendance the balance actually covered.
		carried := groups.Unpaid[0]
		hoursSurplus := oldHours.Sub(carried.Hours)
		newBalance := balance.Add(hoursSurplus).Sub(newHours)
		if newBalance.IsNegative() {
			return []CalculatedDebt{{
				StudentID: id,
				Debt:      UpdateDebt(carried.ID, newBalance.Abs()),
				Balance:   SetBalance(ZeroHours()),
			}}
		}
		return []CalculatedDebt{{
			StudentID: id,
			Debt:      RemoveDebt(carried.ID),
			Balance:   SetBalance(newBalance),
		}}

	default:
		return []CalculatedDebt{enroll(id, balance, newHours)}
	}
}

func balanceFor(in CalcInput, id StudentID) (Hours, error) {
	balance, ok := in.Balances[id]
	if !ok {
		return Hours{}, fmt.Errorf("no balance for student %s: %w", id, ErrStudentNotFound)
	}
	return balance, nil
}

// =============================================================================
// SESSION DELETION PLAN
// =============================================================================

// PlanSessionDeletion computes the per-student settlement for deleting a
// session. Every enrolled student gets the session hours back; unpaid debts
// are purged (enrolled or not) and paid debts are kept as restored history.
func PlanSessionDeletion(session *SessionState) []CalculatedDebt {
	debts := session.debtsByStudent()
	enrolled := make(map[StudentID]bool, len(session.RosterIDs))

	var plan []CalculatedDebt
	for _, id := range session.RosterIDs {
		enrolled[id] = true
		groups := ClassifySessionDebts(debts[id], session.ID)
		for _, d := range groups.Paid {
			plan = append(plan, CalculatedDebt{
				StudentID: id,
				Debt:      KeepDebt(d.ID),
				Balance:   IncrementBalance(session.Hours),
			})
		}
		for _, d := range groups.Unpaid {
			plan = append(plan, CalculatedDebt{
				StudentID: id,
				Debt:      RemoveDebt(d.ID),
				Balance:   NoBalanceAction(),
			})
		}
		if len(groups.Paid) == 0 {
			plan = append(plan, CalculatedDebt{
				StudentID: id,
				Debt:      NoDebtAction(),
				Balance:   IncrementBalance(session.Hours),
			})
		}
	}

	// Unpaid leftovers of students no longer enrolled are purged too; their
	// hours were settled when they left the roster.
	for _, d := range session.Debts {
		if !enrolled[d.StudentID] && !d.IsPaid() {
			plan = append(plan, CalculatedDebt{
				StudentID: d.StudentID,
				Debt:      RemoveDebt(d.ID),
				Balance:   NoBalanceAction(),
			})
		}
	}
	return plan
}

// HasPaidHistory reports whether any debt row for the session has money
// collected against it (restored or not). A session with paid history is
// soft-deleted so the payment trail stays addressable.
func HasPaidHistory(debts []Debt) bool {
	for _, d := range debts {
		if d.IsPaid() {
			return true
		}
	}
	return false
}
