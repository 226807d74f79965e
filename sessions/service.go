/*
service.go - Class session orchestration

The Service is the single write path for class sessions. Every mutation
follows the same shape:

  1. load current state,
  2. ask the ledger engine for a reconciliation plan (pure, no I/O),
  3. apply the plan and the session mutation inside one transaction.

Clients may submit the plan they previewed so the user confirms the exact
hour movements they were shown. The server never trusts it: the plan is
always recomputed here and a submitted plan that disagrees is rejected with
ErrCalculationMismatch.
*/
package sessions

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chalkline/tutoring-office/ledger"
)

// Service orchestrates session mutations over a transactional store.
type Service struct {
	store  ledger.TxStore
	logger *slog.Logger
}

func NewService(store ledger.TxStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// CreateSessionInput carries everything needed to book a new session.
// ClientPlan is optional; when present it must match the server's own
// calculation.
type CreateSessionInput struct {
	Date              time.Time
	TeacherID         ledger.TeacherID
	TeacherHourRateID ledger.RateID
	Hours             ledger.Hours
	StudentIDs        []ledger.StudentID
	ClientPlan        []ledger.CalculatedDebt
	HasClientPlan     bool
}

// UpdateSessionInput carries the desired new state of an existing session.
type UpdateSessionInput struct {
	Date              time.Time
	TeacherID         ledger.TeacherID
	TeacherHourRateID ledger.RateID
	Hours             ledger.Hours
	StudentIDs        []ledger.StudentID
	ClientPlan        []ledger.CalculatedDebt
	HasClientPlan     bool
}

// CalculateDebt previews the reconciliation plan for a roster and hour
// count without writing anything. A nil sessionID means a new booking;
// otherwise the plan is the diff against that session's current state.
func (s *Service) CalculateDebt(ctx context.Context, studentIDs []ledger.StudentID, hours ledger.Hours, sessionID *ledger.ClassSessionID) ([]ledger.CalculatedDebt, error) {
	var session *ledger.SessionState
	participants := studentIDs

	if sessionID != nil {
		current, err := s.store.GetClassSession(ctx, *sessionID)
		if err != nil {
			return nil, err
		}
		session = sessionState(current)
		participants = unionStudents(studentIDs, current.Students)
	}

	balances, err := s.loadBalances(ctx, s.store, participants)
	if err != nil {
		return nil, err
	}

	return ledger.CalculateDebt(ledger.CalcInput{
		StudentIDs: studentIDs,
		Hours:      hours,
		Balances:   balances,
		Session:    session,
	})
}

// CreateClassSession books a session and charges its roster in one
// transaction.
func (s *Service) CreateClassSession(ctx context.Context, in CreateSessionInput) (*ledger.ClassSession, error) {
	session := &ledger.ClassSession{
		ID:                ledger.ClassSessionID(uuid.NewString()),
		Date:              in.Date,
		Hours:             in.Hours,
		TeacherID:         in.TeacherID,
		TeacherHourRateID: in.TeacherHourRateID,
		IsActive:          true,
		Students:          in.StudentIDs,
	}

	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		rate, err := tx.GetTeacherHourRate(ctx, in.TeacherHourRateID)
		if err != nil {
			return err
		}

		balances, err := s.loadBalances(ctx, tx, in.StudentIDs)
		if err != nil {
			return err
		}
		plan, err := ledger.CalculateDebt(ledger.CalcInput{
			StudentIDs: in.StudentIDs,
			Hours:      in.Hours,
			Balances:   balances,
		})
		if err != nil {
			return err
		}
		if in.HasClientPlan && !ledger.EqualPlans(in.ClientPlan, plan) {
			return ledger.ErrCalculationMismatch
		}

		if err := tx.InsertClassSession(ctx, *session); err != nil {
			return err
		}
		for _, id := range in.StudentIDs {
			if err := tx.AddSessionStudent(ctx, session.ID, id); err != nil {
				return err
			}
		}
		return applyPlan(ctx, tx, session.ID, rate.Rate, plan)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "class session created",
		"session_id", session.ID,
		"teacher_id", in.TeacherID,
		"hours", in.Hours,
		"students", len(in.StudentIDs))

	return s.store.GetClassSession(ctx, session.ID)
}

// UpdateClassSession edits a session's fields and roster, settling every
// affected student's balance and debts against the new state.
func (s *Service) UpdateClassSession(ctx context.Context, sessionID ledger.ClassSessionID, in UpdateSessionInput) (*ledger.ClassSession, error) {
	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		current, err := tx.GetClassSession(ctx, sessionID)
		if err != nil {
			return err
		}
		rate, err := tx.GetTeacherHourRate(ctx, in.TeacherHourRateID)
		if err != nil {
			return err
		}

		participants := unionStudents(in.StudentIDs, current.Students)
		balances, err := s.loadBalances(ctx, tx, participants)
		if err != nil {
			return err
		}
		plan, err := ledger.CalculateDebt(ledger.CalcInput{
			StudentIDs: in.StudentIDs,
			Hours:      in.Hours,
			Balances:   balances,
			Session:    sessionState(current),
		})
		if err != nil {
			return err
		}
		if in.HasClientPlan && !ledger.EqualPlans(in.ClientPlan, plan) {
			return ledger.ErrCalculationMismatch
		}

		if err := tx.UpdateClassSessionFields(ctx, sessionID, ledger.SessionUpdate{
			Date:              in.Date,
			TeacherID:         in.TeacherID,
			TeacherHourRateID: in.TeacherHourRateID,
			Hours:             in.Hours,
		}); err != nil {
			return err
		}
		if err := reconcileRoster(ctx, tx, sessionID, current.Students, in.StudentIDs); err != nil {
			return err
		}
		return applyPlan(ctx, tx, sessionID, rate.Rate, plan)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "class session updated",
		"session_id", sessionID,
		"hours", in.Hours,
		"students", len(in.StudentIDs))

	return s.store.GetClassSession(ctx, sessionID)
}

// DeleteClassSession cancels a session. Hours are handed back to the
// roster and unpaid debts are purged. A session that has ever produced a
// paid debt is only deactivated, so the payment trail survives.
func (s *Service) DeleteClassSession(ctx context.Context, sessionID ledger.ClassSessionID) error {
	var softDeleted bool

	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		session, err := tx.GetClassSession(ctx, sessionID)
		if err != nil {
			return err
		}

		rate, err := tx.GetTeacherHourRate(ctx, session.TeacherHourRateID)
		if err != nil {
			return err
		}

		plan := ledger.PlanSessionDeletion(sessionState(session))
		if err := applyPlan(ctx, tx, sessionID, rate.Rate, plan); err != nil {
			return err
		}

		if ledger.HasPaidHistory(session.Debts) {
			softDeleted = true
			if err := tx.ClearSessionRoster(ctx, sessionID); err != nil {
				return err
			}
			return tx.DeactivateClassSession(ctx, sessionID)
		}
		return tx.DeleteClassSession(ctx, sessionID)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "class session deleted",
		"session_id", sessionID,
		"soft", softDeleted)
	return nil
}

// ===== HELPERS =====

func (s *Service) loadBalances(ctx context.Context, store ledger.Store, ids []ledger.StudentID) (map[ledger.StudentID]ledger.Hours, error) {
	students, err := store.GetStudentsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	balances := make(map[ledger.StudentID]ledger.Hours, len(students))
	for _, st := range students {
		balances[st.ID] = st.HourBalance
	}
	return balances, nil
}

func sessionState(session *ledger.ClassSession) *ledger.SessionState {
	return &ledger.SessionState{
		ID:        session.ID,
		Hours:     session.Hours,
		RosterIDs: session.Students,
		Debts:     session.Debts,
	}
}

// unionStudents keeps desired-roster order and appends current members
// missing from it.
func unionStudents(desired, current []ledger.StudentID) []ledger.StudentID {
	seen := make(map[ledger.StudentID]struct{}, len(desired))
	out := make([]ledger.StudentID, 0, len(desired)+len(current))
	for _, id := range desired {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range current {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func reconcileRoster(ctx context.Context, tx ledger.Store, sessionID ledger.ClassSessionID, current, desired []ledger.StudentID) error {
	currentSet := make(map[ledger.StudentID]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}
	desiredSet := make(map[ledger.StudentID]struct{}, len(desired))
	for _, id := range desired {
		desiredSet[id] = struct{}{}
	}

	for _, id := range desired {
		if _, ok := currentSet[id]; !ok {
			if err := tx.AddSessionStudent(ctx, sessionID, id); err != nil {
				return err
			}
		}
	}
	for _, id := range current {
		if _, ok := desiredSet[id]; !ok {
			if err := tx.RemoveSessionStudent(ctx, sessionID, id); err != nil {
				return err
			}
		}
	}
	return nil
}
