/*
classify.go - Debt bucket classification

Splits a student's debt history for one class session into the three buckets
the calculation engine reasons about. Pure, no side effects.
*/
package ledger

// DebtGroups buckets a student's session-scoped debts by lifecycle state.
//
//	Restored: money collected and the attendance already reversed
//	Paid:     money collected, attendance still stands
//	Unpaid:   no money collected; safe to delete or resize
type DebtGroups struct {
	Restored []Debt
	Paid     []Debt
	Unpaid   []Debt
}

// HasActive reports whether any debt still requires handling on a roster
// change: restored debts are settled history and impose no further action.
func (g DebtGroups) HasActive() bool {
	return len(g.Paid) > 0 || len(g.Unpaid) > 0
}

// ClassifySessionDebts filters debts to the given class session and buckets
// them. Only an Unpaid debt may ever be deleted; Paid debts must be
// preserved (flagged restored at most) because they represent money already
// collected.
func ClassifySessionDebts(debts []Debt, sessionID ClassSessionID) DebtGroups {
	var g DebtGroups
	for _, d := range debts {
		if d.ClassSessionID != sessionID {
			continue
		}
		switch {
		case d.IsPaid() && d.Restored:
			g.Restored = append(g.Restored, d)
		case d.IsPaid():
			g.Paid = append(g.Paid, d)
		default:
			g.Unpaid = append(g.Unpaid, d)
		}
	}
	return g
}
