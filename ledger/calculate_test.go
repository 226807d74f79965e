package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chalkline/tutoring-office/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func hours(s string) ledger.Hours { return ledger.MustParseHours(s) }

func unpaidDebt(id, student, session, h string) ledger.Debt {
	return ledger.Debt{
		ID:             ledger.DebtID(id),
		StudentID:      ledger.StudentID(student),
		ClassSessionID: ledger.ClassSessionID(session),
		Hours:          hours(h),
	}
}

func paidDebt(id, student, session, h string) ledger.Debt {
	payment := ledger.PaymentID("pay-" + id)
	d := unpaidDebt(id, student, session, h)
	d.PaymentID = &payment
	return d
}

// =============================================================================
// CASE A - NEW SESSION
// =============================================================================

func TestCalculateDebt_NewSession_SufficientBalance(t *testing.T) {
	// GIVEN: A student with 5 prepaid hours
	// WHEN: Booking a 2-hour session
	// THEN: Hours come straight out of the balance, no debt
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{"alice"},
		Hours:      hours("2"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": hours("5")},
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.Equal(t, ledger.StudentID("alice"), plan[0].StudentID)
	assert.True(t, plan[0].Debt.Equal(ledger.NoDebtAction()))
	assert.True(t, plan[0].Balance.Equal(ledger.DecrementBalance(hours("2"))))
}

func TestCalculateDebt_NewSession_Shortfall(t *testing.T) {
	// GIVEN: A student with 1 prepaid hour
	// WHEN: Booking a 2.5-hour session
	// THEN: Balance is drained to zero and the missing 1.5 hours become debt
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{"alice"},
		Hours:      hours("2.5"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": hours("1")},
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.True(t, plan[0].Debt.Equal(ledger.CreateDebt(hours("1.5"))))
	assert.True(t, plan[0].Balance.Equal(ledger.SetBalance(ledger.ZeroHours())))
}

func TestCalculateDebt_NewSession_ExactBalance(t *testing.T) {
	// GIVEN: A student whose balance exactly covers the session
	// WHEN: Booking
	// THEN: Plain decrement, no zero-magnitude debt row
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{"alice"},
		Hours:      hours("2"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": hours("2")},
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.True(t, plan[0].Debt.Equal(ledger.NoDebtAction()))
	assert.True(t, plan[0].Balance.Equal(ledger.DecrementBalance(hours("2"))))
}

func TestCalculateDebt_NewSession_ZeroBalance(t *testing.T) {
	// GIVEN: A student with no prepaid hours at all
	// WHEN: Booking a 2-hour session
	// THEN: The full duration becomes debt
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{"alice"},
		Hours:      hours("2"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": ledger.ZeroHours()},
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.True(t, plan[0].Debt.Equal(ledger.CreateDebt(hours("2"))))
	assert.True(t, plan[0].Balance.Equal(ledger.SetBalance(ledger.ZeroHours())))
}

func TestCalculateDebt_NewSession_MixedRoster_PreservesOrder(t *testing.T) {
	// GIVEN: Three students with different balances
	// WHEN: Booking a shared 2-hour session
	// THEN: One plan entry per student, in roster order
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{"alice", "bob", "carol"},
		Hours:      hours("2"),
		Balances: map[ledger.StudentID]ledger.Hours{
			"alice": hours("10"),
			"bob":   hours("0.5"),
			"carol": ledger.ZeroHours(),
		},
	})
	require.NoError(t, err)
	require.Len(t, plan, 3)

	assert.Equal(t, ledger.StudentID("alice"), plan[0].StudentID)
	assert.True(t, plan[0].Balance.Equal(ledger.DecrementBalance(hours("2"))))

	assert.Equal(t, ledger.StudentID("bob"), plan[1].StudentID)
	assert.True(t, plan[1].Debt.Equal(ledger.CreateDebt(hours("1.5"))))

	assert.Equal(t, ledger.StudentID("carol"), plan[2].StudentID)
	assert.True(t, plan[2].Debt.Equal(ledger.CreateDebt(hours("2"))))
}

func TestCalculateDebt_MissingBalance_Errors(t *testing.T) {
	// GIVEN: A roster referencing a student with no balance snapshot
	// WHEN: Calculating
	// THEN: The plan is rejected, not silently partial
	_, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{"ghost"},
		Hours:      hours("1"),
		Balances:   map[ledger.StudentID]ledger.Hours{},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrStudentNotFound)
}

// =============================================================================
// CASE B - ADDED STUDENTS
// =============================================================================

func TestCalculateDebt_Edit_AddedStudentEnrollsFresh(t *testing.T) {
	// GIVEN: An existing 2-hour session with alice enrolled
	// WHEN: Adding bob, who has only 1 hour prepaid
	// THEN: Bob follows the new-enrollment rule; alice is untouched
	session := &ledger.SessionState{
		ID:        "s1",
		Hours:     hours("2"),
		RosterIDs: []ledger.StudentID{"alice"},
	}
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{"alice", "bob"},
		Hours:      hours("2"),
		Balances: map[ledger.StudentID]ledger.Hours{
			"alice": hours("3"),
			"bob":   hours("1"),
		},
		Session: session,
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.Equal(t, ledger.StudentID("bob"), plan[0].StudentID)
	assert.True(t, plan[0].Debt.Equal(ledger.CreateDebt(hours("1"))))
	assert.True(t, plan[0].Balance.Equal(ledger.SetBalance(ledger.ZeroHours())))
}

// =============================================================================
// CASE B - REMOVED STUDENTS
// =============================================================================

func TestCalculateDebt_Edit_RemovedStudent_NoDebt_RefundsHours(t *testing.T) {
	// GIVEN: Alice attended a 2-hour session her balance fully covered
	// WHEN: Removing her from the roster
	// THEN: She gets the 2 hours back
	session := &ledger.SessionState{
		ID:        "s1",
		Hours:     hours("2"),
		RosterIDs: []ledger.StudentID{"alice"},
	}
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{},
		Hours:      hours("2"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": hours("1")},
		Session:    session,
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.Equal(t, ledger.StudentID("alice"), plan[0].StudentID)
	assert.True(t, plan[0].Debt.Equal(ledger.NoDebtAction()))
	assert.True(t, plan[0].Balance.Equal(ledger.IncrementBalance(hours("2"))))
}

func TestCalculateDebt_Edit_RemovedStudent_UnpaidDebt_Erased(t *testing.T) {
	// GIVEN: Alice owes 1.5 unpaid hours for the session
	// WHEN: Removing her
	// THEN: The unpaid debt is deleted and the balance is left alone
	session := &ledger.SessionState{
		ID:        "s1",
		Hours:     hours("2"),
		RosterIDs: []ledger.StudentID{"alice"},
		Debts:     []ledger.Debt{unpaidDebt("d1", "alice", "s1", "1.5")},
	}
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{},
		Hours:      hours("2"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": ledger.ZeroHours()},
		Session:    session,
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.True(t, plan[0].Debt.Equal(ledger.RemoveDebt("d1")))
	assert.True(t, plan[0].Balance.Equal(ledger.NoBalanceAction()))
}

func TestCalculateDebt_Edit_RemovedStudent_PaidDebt_KeptAndRefunded(t *testing.T) {
	// GIVEN: Alice paid for her 2-hour shortfall on the session
	// WHEN: Removing her
	// THEN: The paid debt is kept as history and the purchased hours return
	session := &ledger.SessionState{
		ID:        "s1",
		Hours:     hours("2"),
		RosterIDs: []ledger.StudentID{"alice"},
		Debts:     []ledger.Debt{paidDebt("d1", "alice", "s1", "2")},
	}
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{},
		Hours:      hours("2"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": ledger.ZeroHours()},
		Session:    session,
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.True(t, plan[0].Debt.Equal(ledger.KeepDebt("d1")))
	assert.True(t, plan[0].Balance.Equal(ledger.IncrementBalance(hours("2"))))
}

func TestCalculateDebt_Edit_RemovedStudent_RestoredDebtOnly_PlainRefund(t *testing.T) {
	// GIVEN: Alice's only session debt is paid history already restored
	// WHEN: Removing her
	// THEN: She is treated as debt-free; hours come back, the row stays
	restored := paidDebt("d1", "alice", "s1", "1")
	restored.Restored = true
	session := &ledger.SessionState{
		ID:        "s1",
		Hours:     hours("2"),
		RosterIDs: []ledger.StudentID{"alice"},
		Debts:     []ledger.Debt{restored},
	}
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{},
		Hours:      hours("2"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": ledger.ZeroHours()},
		Session:    session,
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.True(t, plan[0].Debt.Equal(ledger.NoDebtAction()))
	assert.True(t, plan[0].Balance.Equal(ledger.IncrementBalance(hours("2"))))
}

// =============================================================================
// CASE B - UNTOUCHED STUDENTS
// =============================================================================

func TestCalculateDebt_Edit_UntouchedStudent_SameHours_NoEntries(t *testing.T) {
	// GIVEN: A session edit that does not change the duration
	// WHEN: Calculating for a student on both rosters
	// THEN: No plan entries at all, so nothing is rewritten
	session := &ledger.SessionState{
		ID:        "s1",
		Hours:     hours("2"),
		RosterIDs: []ledger.StudentID{"alice"},
		Debts:     []ledger.Debt{unpaidDebt("d1", "alice", "s1", "1")},
	}
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{"alice"},
		Hours:      hours("2"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": ledger.ZeroHours()},
		Session:    session,
	})
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestCalculateDebt_Edit_UntouchedStudent_UnpaidDebt_GrowsInPlace(t *testing.T) {
	// GIVEN: A 2-hour session where alice owes 1.5 unpaid hours
	// WHEN: The session grows to 3 hours
	// THEN: The same debt row is updated to 2.5 hours, not recreated
	session := &ledger.SessionState{
		ID:        "s1",
		Hours:     hours("2"),
		RosterIDs: []ledger.StudentID{"alice"},
		Debts:     []ledger.Debt{unpaidDebt("d1", "alice", "s1", "1.5")},
	}
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{"alice"},
		Hours:      hours("3"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": ledger.ZeroHours()},
		Session:    session,
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.True(t, plan[0].Debt.Equal(ledger.UpdateDebt("d1", hours("2.5"))))
	assert.True(t, plan[0].Balance.Equal(ledger.SetBalance(ledger.ZeroHours())))
}

func TestCalculateDebt_Edit_UntouchedStudent_UnpaidDebt_ShrinkClearsDebt(t *testing.T) {
	// GIVEN: A 3-hour session where alice owes 2 unpaid hours (1 was covered)
	// WHEN: The session shrinks to 0.5 hours
	// THEN: The debt disappears and the balance lands on the covered surplus
	session := &ledger.SessionState{
		ID:        "s1",
		Hours:     hours("3"),
		RosterIDs: []ledger.StudentID{"alice"},
		Debts:     []ledger.Debt{unpaidDebt("d1", "alice", "s1", "2")},
	}
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{"alice"},
		Hours:      hours("0.5"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": ledger.ZeroHours()},
		Session:    session,
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	// old covered surplus = 3 - 2 = 1; new balance = 0 + 1 - 0.5 = 0.5
	assert.True(t, plan[0].Debt.Equal(ledger.RemoveDebt("d1")))
	assert.True(t, plan[0].Balance.Equal(ledger.SetBalance(hours("0.5"))))
}

func TestCalculateDebt_Edit_UntouchedStudent_PaidDebt_ShrinkRefundsDelta(t *testing.T) {
	// GIVEN: Alice paid her 2-hour shortfall on a 2-hour session
	// WHEN: The session shrinks to 1 hour
	// THEN: The paid debt stays and the 1-hour delta returns to the balance
	session := &ledger.SessionState{
		ID:        "s1",
		Hours:     hours("2"),
		RosterIDs: []ledger.StudentID{"alice"},
		Debts:     []ledger.Debt{paidDebt("d1", "alice", "s1", "2")},
	}
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{"alice"},
		Hours:      hours("1"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": ledger.ZeroHours()},
		Session:    session,
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.True(t, plan[0].Debt.Equal(ledger.KeepDebt("d1")))
	assert.True(t, plan[0].Balance.Equal(ledger.IncrementBalance(hours("1"))))
}

func TestCalculateDebt_Edit_UntouchedStudent_PaidDebt_GrowCreatesNewDebt(t *testing.T) {
	// GIVEN: Alice paid her shortfall on a 2-hour session, balance empty
	// WHEN: The session grows to 3 hours
	// THEN: The paid debt is untouched and the extra hour becomes a new debt
	session := &ledger.SessionState{
		ID:        "s1",
		Hours:     hours("2"),
		RosterIDs: []ledger.StudentID{"alice"},
		Debts:     []ledger.Debt{paidDebt("d1", "alice", "s1", "2")},
	}
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{"alice"},
		Hours:      hours("3"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": ledger.ZeroHours()},
		Session:    session,
	})
	require.NoError(t, err)
	require.Len(t, plan, 2)

	assert.True(t, plan[0].Debt.Equal(ledger.KeepDebt("d1")))
	assert.True(t, plan[0].Balance.Equal(ledger.NoBalanceAction()))
	assert.True(t, plan[1].Debt.Equal(ledger.CreateDebt(hours("1"))))
	assert.True(t, plan[1].Balance.Equal(ledger.SetBalance(ledger.ZeroHours())))
}

func TestCalculateDebt_Edit_UntouchedStudent_NoDebt_ChargedFullNewDuration(t *testing.T) {
	// GIVEN: Alice covered a 1-hour session from her balance, 2 hours left
	// WHEN: The session grows to 4 hours
	// THEN: The full new duration is settled against the remaining balance
	session := &ledger.SessionState{
		ID:        "s1",
		Hours:     hours("1"),
		RosterIDs: []ledger.StudentID{"alice"},
	}
	plan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{"alice"},
		Hours:      hours("4"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": hours("2")},
		Session:    session,
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.True(t, plan[0].Debt.Equal(ledger.CreateDebt(hours("2"))))
	assert.True(t, plan[0].Balance.Equal(ledger.SetBalance(ledger.ZeroHours())))
}

// =============================================================================
// DETERMINISM AND ORDERING
// =============================================================================

func TestCalculateDebt_Deterministic(t *testing.T) {
	// GIVEN: A mixed edit touching added, removed, and untouched students
	// WHEN: Calculating the plan twice from the same snapshot
	// THEN: The plans are identical element for element
	session := &ledger.SessionState{
		ID:        "s1",
		Hours:     hours("2"),
		RosterIDs: []ledger.StudentID{"alice", "bob"},
		Debts:     []ledger.Debt{unpaidDebt("d1", "bob", "s1", "1")},
	}
	in := ledger.CalcInput{
		StudentIDs: []ledger.StudentID{"alice", "carol"},
		Hours:      hours("3"),
		Balances: map[ledger.StudentID]ledger.Hours{
			"alice": hours("5"),
			"bob":   ledger.ZeroHours(),
			"carol": hours("1"),
		},
		Session: session,
	}

	first, err := ledger.CalculateDebt(in)
	require.NoError(t, err)
	second, err := ledger.CalculateDebt(in)
	require.NoError(t, err)

	assert.True(t, ledger.EqualPlans(first, second))

	// Desired-roster order first, removed students after.
	require.Len(t, first, 3)
	assert.Equal(t, ledger.StudentID("alice"), first[0].StudentID)
	assert.Equal(t, ledger.StudentID("carol"), first[1].StudentID)
	assert.Equal(t, ledger.StudentID("bob"), first[2].StudentID)
}

func TestCalculateDebt_RoundTrip_SufficientBalance(t *testing.T) {
	// GIVEN: A student whose balance covers the session
	// WHEN: Enrolling and then removing them
	// THEN: The two balance actions cancel exactly
	balance := hours("5")

	enrollPlan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{"alice"},
		Hours:      hours("2"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": balance},
	})
	require.NoError(t, err)
	afterEnroll := enrollPlan[0].Balance.Apply(balance)
	assert.True(t, afterEnroll.Equal(hours("3")))

	removePlan, err := ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: []ledger.StudentID{},
		Hours:      hours("2"),
		Balances:   map[ledger.StudentID]ledger.Hours{"alice": afterEnroll},
		Session: &ledger.SessionState{
			ID:        "s1",
			Hours:     hours("2"),
			RosterIDs: []ledger.StudentID{"alice"},
		},
	})
	require.NoError(t, err)
	afterRemove := removePlan[0].Balance.Apply(afterEnroll)
	assert.True(t, afterRemove.Equal(balance))
}

// =============================================================================
// SESSION DELETION PLAN
// =============================================================================

func TestPlanSessionDeletion_RefundsAndPurges(t *testing.T) {
	// GIVEN: A 2-hour session with a debt-free student, an unpaid debtor,
	//        a paid debtor, and an unpaid leftover of a departed student
	// WHEN: Planning deletion
	// THEN: Enrolled students get hours back, unpaid debts are purged,
	//       paid debts are kept, purges restore nothing extra
	session := &ledger.SessionState{
		ID:        "s1",
		Hours:     hours("2"),
		RosterIDs: []ledger.StudentID{"alice", "bob", "carol"},
		Debts: []ledger.Debt{
			unpaidDebt("d-bob", "bob", "s1", "1"),
			paidDebt("d-carol", "carol", "s1", "2"),
			unpaidDebt("d-dave", "dave", "s1", "0.5"),
		},
	}

	plan := ledger.PlanSessionDeletion(session)
	require.Len(t, plan, 5)

	// alice: debt-free refund
	assert.Equal(t, ledger.StudentID("alice"), plan[0].StudentID)
	assert.True(t, plan[0].Debt.Equal(ledger.NoDebtAction()))
	assert.True(t, plan[0].Balance.Equal(ledger.IncrementBalance(hours("2"))))

	// bob: unpaid debt purged, then the debt-free refund
	assert.True(t, plan[1].Debt.Equal(ledger.RemoveDebt("d-bob")))
	assert.True(t, plan[1].Balance.Equal(ledger.NoBalanceAction()))
	assert.True(t, plan[2].Debt.Equal(ledger.NoDebtAction()))
	assert.True(t, plan[2].Balance.Equal(ledger.IncrementBalance(hours("2"))))

	// carol: paid debt kept, hours returned once
	assert.True(t, plan[3].Debt.Equal(ledger.KeepDebt("d-carol")))
	assert.True(t, plan[3].Balance.Equal(ledger.IncrementBalance(hours("2"))))

	// dave: leftover unpaid debt purged without touching the balance
	assert.Equal(t, ledger.StudentID("dave"), plan[4].StudentID)
	assert.True(t, plan[4].Debt.Equal(ledger.RemoveDebt("d-dave")))
	assert.True(t, plan[4].Balance.Equal(ledger.NoBalanceAction()))
}

func TestHasPaidHistory(t *testing.T) {
	assert.False(t, ledger.HasPaidHistory(nil))
	assert.False(t, ledger.HasPaidHistory([]ledger.Debt{unpaidDebt("d1", "a", "s", "1")}))
	assert.True(t, ledger.HasPaidHistory([]ledger.Debt{
		unpaidDebt("d1", "a", "s", "1"),
		paidDebt("d2", "b", "s", "2"),
	}))
}
