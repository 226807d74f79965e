/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.Store and ledger.TxStore using SQLite, plus the plain
  back-office CRUD (students, teachers, hour rates, payments, session
  listing) the HTTP layer needs. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  students:               Hour balance holders (balance stored as decimal TEXT)
  teachers:               Session owners
  teacher_hour_rates:     Priced rates referenced by sessions and debts
  class_sessions:         Dated classes; is_active=FALSE marks a soft delete
  class_session_students: Roster join rows
  debts:                  Shortfall records (payment_id NULL until collected)
  payments:               Money collected against debts

DECIMAL STORAGE:
  Hour and money quantities are stored as TEXT and parsed back through
  shopspring/decimal. Never REAL: binary floating point drifts across
  repeated increment/decrement cycles.

TRANSACTIONS:
  WithTx runs a function against a Store view backed by one sql.Tx. All
  writes of a reconciliation go through it; if the function errors, the
  transaction rolls back and nothing is observable.

GUARDS:
  The debt mutators enforce the paid-history invariant at the SQL level too:
  UPDATE/DELETE on debts carry "payment_id IS NULL", so even a buggy caller
  cannot destroy a record of money already collected.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. With PostgreSQL, database-level
  concurrency control handles this instead.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - sessions/: The orchestrator and applier driving this store
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/chalkline/tutoring-office/ledger"
)

// Store implements ledger.TxStore plus the back-office CRUD.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		hour_balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS teachers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS teacher_hour_rates (
		id TEXT PRIMARY KEY,
		teacher_id TEXT NOT NULL REFERENCES teachers(id),
		name TEXT NOT NULL,
		rate TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rates_teacher
		ON teacher_hour_rates(teacher_id);

	CREATE TABLE IF NOT EXISTS class_sessions (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		hours TEXT NOT NULL,
		teacher_id TEXT REFERENCES teachers(id),
		teacher_hour_rate_id TEXT REFERENCES teacher_hour_rates(id),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		teacher_payment_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_teacher
		ON class_sessions(teacher_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_date
		ON class_sessions(date);

	CREATE TABLE IF NOT EXISTS class_session_students (
		class_session_id TEXT NOT NULL REFERENCES class_sessions(id) ON DELETE CASCADE,
		student_id TEXT NOT NULL REFERENCES students(id),
		created_at TEXT NOT NULL,
		PRIMARY KEY (class_session_id, student_id)
	);

	CREATE INDEX IF NOT EXISTS idx_roster_student
		ON class_session_students(student_id);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		method TEXT,
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_student
		ON payments(student_id);

	-- Debts outlive roster membership: no cascade from the roster table.
	-- The session foreign key blocks a hard session delete while any debt
	-- row remains, which backs up the paid-history invariant.
	CREATE TABLE IF NOT EXISTS debts (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		class_session_id TEXT NOT NULL REFERENCES class_sessions(id),
		hours TEXT NOT NULL,
		rate TEXT NOT NULL,
		payment_id TEXT REFERENCES payments(id),
		restored BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_debts_student
		ON debts(student_id);
	CREATE INDEX IF NOT EXISTS idx_debts_session
		ON debts(class_session_id);
	CREATE INDEX IF NOT EXISTS idx_debts_payment
		ON debts(payment_id) WHERE payment_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements ledger.Store over either the database or an open
// transaction. Locking happens in *Store, never here.
type conn struct {
	q querier
}

func (s *Store) reader() *conn { return &conn{q: s.db} }

// =============================================================================
// TRANSACTIONS (ledger.TxStore)
// =============================================================================

// WithTx executes fn within one database transaction. If fn returns an
// error, every write it made is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&conn{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// STUDENTS
// =============================================================================

const studentCols = "id, name, email, phone, hour_balance, created_at, updated_at"

func scanStudent(row interface{ Scan(...any) error }) (ledger.Student, error) {
	var (
		st                   ledger.Student
		email, phone         sql.NullString
		balance              string
		createdAt, updatedAt string
	)
	if err := row.Scan(&st.ID, &st.Name, &email, &phone, &balance, &createdAt, &updatedAt); err != nil {
		return st, err
	}
	st.Email = email.String
	st.Phone = phone.String
	st.HourBalance = ledger.MustParseHours(balance)
	st.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	st.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return st, nil
}

func (c *conn) GetStudent(ctx context.Context, id ledger.StudentID) (*ledger.Student, error) {
	row := c.q.QueryRowContext(ctx,
		"SELECT "+studentCols+" FROM students WHERE id = ?", id)
	st, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("student %s: %w", id, ledger.ErrStudentNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *conn) GetStudentsByIDs(ctx context.Context, ids []ledger.StudentID) ([]ledger.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := "SELECT " + studentCols + " FROM students WHERE id IN (?" +
		repeat(",?", len(ids)-1) + ")"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []ledger.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func (c *conn) SetStudentBalance(ctx context.Context, id ledger.StudentID, balance ledger.Hours) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE students SET hour_balance = ?, updated_at = ? WHERE id = ?",
		balance.String(), now(), id)
	if err != nil {
		return err
	}
	return oneRow(res, fmt.Errorf("student %s: %w", id, ledger.ErrStudentNotFound))
}

// CreateStudent inserts a new student record.
func (s *Store) CreateStudent(ctx context.Context, st ledger.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO students (id, name, email, phone, hour_balance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Name, nullString(st.Email), nullString(st.Phone),
		st.HourBalance.String(), now(), now())
	return err
}

// ListStudents returns all students ordered by name.
func (s *Store) ListStudents(ctx context.Context) ([]ledger.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+studentCols+" FROM students ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []ledger.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// =============================================================================
// TEACHERS AND HOUR RATES
// =============================================================================

// CreateTeacher inserts a teacher record.
func (s *Store) CreateTeacher(ctx context.Context, t ledger.Teacher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO teachers (id, name, created_at) VALUES (?, ?, ?)",
		t.ID, t.Name, now())
	return err
}

// GetTeacher retrieves a teacher by ID.
func (s *Store) GetTeacher(ctx context.Context, id ledger.TeacherID) (*ledger.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		t         ledger.Teacher
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM teachers WHERE id = ?", id,
	).Scan(&t.ID, &t.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("teacher %s: %w", id, ledger.ErrTeacherNotFound)
	}
	if err != nil {
		return nil, err
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &t, nil
}

// ListTeachers returns all teachers ordered by name.
func (s *Store) ListTeachers(ctx context.Context) ([]ledger.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM teachers ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teachers []ledger.Teacher
	for rows.Next() {
		var (
			t         ledger.Teacher
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.Name, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		teachers = append(teachers, t)
	}
	return teachers, rows.Err()
}

// CreateTeacherHourRate inserts a priced rate for a teacher.
func (s *Store) CreateTeacherHourRate(ctx context.Context, r ledger.TeacherHourRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO teacher_hour_rates (id, teacher_id, name, rate, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.TeacherID, r.Name, r.Rate.String(), now())
	return err
}

// ListTeacherHourRates returns a teacher's rates ordered by name.
func (s *Store) ListTeacherHourRates(ctx context.Context, teacherID ledger.TeacherID) ([]ledger.TeacherHourRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, teacher_id, name, rate, created_at
		 FROM teacher_hour_rates WHERE teacher_id = ? ORDER BY name`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []ledger.TeacherHourRate
	for rows.Next() {
		r, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

func scanRate(row interface{ Scan(...any) error }) (ledger.TeacherHourRate, error) {
	var (
		r               ledger.TeacherHourRate
		rate, createdAt string
	)
	if err := row.Scan(&r.ID, &r.TeacherID, &r.Name, &rate, &createdAt); err != nil {
		return r, err
	}
	r.Rate = mustDecimal(rate)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return r, nil
}

func (c *conn) GetTeacherHourRate(ctx context.Context, id ledger.RateID) (*ledger.TeacherHourRate, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT id, teacher_id, name, rate, created_at
		 FROM teacher_hour_rates WHERE id = ?`, id)
	r, err := scanRate(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rate %s: %w", id, ledger.ErrRateNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// =============================================================================
// CLASS SESSIONS
// =============================================================================

func (c *conn) GetClassSession(ctx context.Context, id ledger.ClassSessionID) (*ledger.ClassSession, error) {
	var (
		cs                   ledger.ClassSession
		date                 string
		hours                string
		teacherID            sql.NullString
		rateID               sql.NullString
		teacherPaymentID     sql.NullString
		createdAt, updatedAt string
	)
	err := c.q.QueryRowContext(ctx,
		`SELECT id, date, hours, teacher_id, teacher_hour_rate_id, is_active,
		        teacher_payment_id, created_at, updated_at
		 FROM class_sessions WHERE id = ?`, id,
	).Scan(&cs.ID, &date, &hours, &teacherID, &rateID, &cs.IsActive,
		&teacherPaymentID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("class session %s: %w", id, ledger.ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}

	cs.Date, _ = time.Parse(time.RFC3339, date)
	cs.Hours = ledger.MustParseHours(hours)
	cs.TeacherID = ledger.TeacherID(teacherID.String)
	cs.TeacherHourRateID = ledger.RateID(rateID.String)
	if teacherPaymentID.Valid {
		pid := ledger.PaymentID(teacherPaymentID.String)
		cs.TeacherPaymentID = &pid
	}
	cs.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	cs.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if cs.Students, err = c.sessionRoster(ctx, id); err != nil {
		return nil, err
	}
	if cs.Debts, err = c.sessionDebts(ctx, id); err != nil {
		return nil, err
	}
	return &cs, nil
}

func (c *conn) sessionRoster(ctx context.Context, id ledger.ClassSessionID) ([]ledger.StudentID, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT student_id FROM class_session_students
		 WHERE class_session_id = ? ORDER BY created_at, student_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []ledger.StudentID
	for rows.Next() {
		var sid ledger.StudentID
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		roster = append(roster, sid)
	}
	return roster, rows.Err()
}

func (c *conn) sessionDebts(ctx context.Context, id ledger.ClassSessionID) ([]ledger.Debt, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT "+debtCols+" FROM debts WHERE class_session_id = ? ORDER BY created_at, id", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var debts []ledger.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		debts = append(debts, d)
	}
	return debts, rows.Err()
}

func (c *conn) InsertClassSession(ctx context.Context, session ledger.ClassSession) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO class_sessions
		 (id, date, hours, teacher_id, teacher_hour_rate_id, is_active, teacher_payment_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.Date.Format(time.RFC3339),
		session.Hours.String(),
		nullString(string(session.TeacherID)),
		nullString(string(session.TeacherHourRateID)),
		session.IsActive,
		paymentIDValue(session.TeacherPaymentID),
		now(), now())
	return err
}

func (c *conn) UpdateClassSessionFields(ctx context.Context, id ledger.ClassSessionID, update ledger.SessionUpdate) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE class_sessions
		 SET date = ?, teacher_id = ?, teacher_hour_rate_id = ?, hours = ?, updated_at = ?
		 WHERE id = ?`,
		update.Date.Format(time.RFC3339),
		nullString(string(update.TeacherID)),
		nullString(string(update.TeacherHourRateID)),
		update.Hours.String(),
		now(), id)
	if err != nil {
		return err
	}
	return oneRow(res, fmt.Errorf("class session %s: %w", id, ledger.ErrSessionNotFound))
}

func (c *conn) DeleteClassSession(ctx context.Context, id ledger.ClassSessionID) error {
	res, err := c.q.ExecContext(ctx,
		"DELETE FROM class_sessions WHERE id = ?", id)
	if err != nil {
		return err
	}
	return oneRow(res, fmt.Errorf("class session %s: %w", id, ledger.ErrSessionNotFound))
}

func (c *conn) DeactivateClassSession(ctx context.Context, id ledger.ClassSessionID) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE class_sessions
		 SET is_active = FALSE, teacher_id = NULL, updated_at = ?
		 WHERE id = ?`,
		now(), id)
	if err != nil {
		return err
	}
	return oneRow(res, fmt.Errorf("class session %s: %w", id, ledger.ErrSessionNotFound))
}

// ListClassSessions returns session headers (no nested roster/debts),
// newest first. Soft-deleted sessions are included when activeOnly is false.
func (s *Store) ListClassSessions(ctx context.Context, activeOnly bool) ([]ledger.ClassSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, date, hours, teacher_id, teacher_hour_rate_id, is_active,
	                 teacher_payment_id, created_at, updated_at
	          FROM class_sessions`
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY date DESC, created_at DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []ledger.ClassSession
	for rows.Next() {
		var (
			cs                   ledger.ClassSession
			date, hours          string
			teacherID, rateID    sql.NullString
			teacherPaymentID     sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&cs.ID, &date, &hours, &teacherID, &rateID, &cs.IsActive,
			&teacherPaymentID, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		cs.Date, _ = time.Parse(time.RFC3339, date)
		cs.Hours = ledger.MustParseHours(hours)
		cs.TeacherID = ledger.TeacherID(teacherID.String)
		cs.TeacherHourRateID = ledger.RateID(rateID.String)
		if teacherPaymentID.Valid {
			pid := ledger.PaymentID(teacherPaymentID.String)
			cs.TeacherPaymentID = &pid
		}
		cs.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		cs.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		sessions = append(sessions, cs)
	}
	return sessions, rows.Err()
}

// =============================================================================
// ROSTER
// =============================================================================

func (c *conn) AddSessionStudent(ctx context.Context, sessionID ledger.ClassSessionID, studentID ledger.StudentID) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO class_session_students (class_session_id, student_id, created_at)
		 VALUES (?, ?, ?)`,
		sessionID, studentID, now())
	return err
}

func (c *conn) RemoveSessionStudent(ctx context.Context, sessionID ledger.ClassSessionID, studentID ledger.StudentID) error {
	_, err := c.q.ExecContext(ctx,
		"DELETE FROM class_session_students WHERE class_session_id = ? AND student_id = ?",
		sessionID, studentID)
	return err
}

func (c *conn) ClearSessionRoster(ctx context.Context, sessionID ledger.ClassSessionID) error {
	_, err := c.q.ExecContext(ctx,
		"DELETE FROM class_session_students WHERE class_session_id = ?", sessionID)
	return err
}

// =============================================================================
// DEBTS
// =============================================================================

const debtCols = "id, student_id, class_session_id, hours, rate, payment_id, restored, created_at"

func scanDebt(row interface{ Scan(...any) error }) (ledger.Debt, error) {
	var (
		d                      ledger.Debt
		hours, rate, createdAt string
		paymentID              sql.NullString
	)
	if err := row.Scan(&d.ID, &d.StudentID, &d.ClassSessionID, &hours, &rate,
		&paymentID, &d.Restored, &createdAt); err != nil {
		return d, err
	}
	d.Hours = ledger.MustParseHours(hours)
	d.Rate = mustDecimal(rate)
	if paymentID.Valid {
		pid := ledger.PaymentID(paymentID.String)
		d.PaymentID = &pid
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return d, nil
}

func (c *conn) GetDebt(ctx context.Context, id ledger.DebtID) (*ledger.Debt, error) {
	row := c.q.QueryRowContext(ctx,
		"SELECT "+debtCols+" FROM debts WHERE id = ?", id)
	d, err := scanDebt(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("debt %s: %w", id, ledger.ErrDebtNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *conn) ListStudentDebts(ctx context.Context, studentID ledger.StudentID) ([]ledger.Debt, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT "+debtCols+" FROM debts WHERE student_id = ? ORDER BY created_at, id", studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var debts []ledger.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		debts = append(debts, d)
	}
	return debts, rows.Err()
}

func (c *conn) InsertDebt(ctx context.Context, debt ledger.Debt) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO debts (id, student_id, class_session_id, hours, rate, payment_id, restored, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		debt.ID, debt.StudentID, debt.ClassSessionID,
		debt.Hours.String(), debt.Rate.String(),
		paymentIDValue(debt.PaymentID), debt.Restored, now())
	return err
}

// UpdateDebtHours resizes an unpaid debt. The payment_id guard makes paid
// debts immutable at the SQL level.
func (c *conn) UpdateDebtHours(ctx context.Context, id ledger.DebtID, hours ledger.Hours) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE debts SET hours = ? WHERE id = ? AND payment_id IS NULL",
		hours.String(), id)
	if err != nil {
		return err
	}
	return c.debtMutationResult(ctx, res, id, "update")
}

// DeleteDebt removes an unpaid debt. Paid debts are never deleted.
func (c *conn) DeleteDebt(ctx context.Context, id ledger.DebtID) error {
	res, err := c.q.ExecContext(ctx,
		"DELETE FROM debts WHERE id = ? AND payment_id IS NULL", id)
	if err != nil {
		return err
	}
	return c.debtMutationResult(ctx, res, id, "delete")
}

func (c *conn) MarkDebtRestored(ctx context.Context, id ledger.DebtID) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE debts SET restored = TRUE WHERE id = ?", id)
	if err != nil {
		return err
	}
	return oneRow(res, fmt.Errorf("debt %s: %w", id, ledger.ErrDebtNotFound))
}

// debtMutationResult distinguishes "row is paid" from "row is gone" when a
// guarded debt write touched nothing.
func (c *conn) debtMutationResult(ctx context.Context, res sql.Result, id ledger.DebtID, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	d, err := c.GetDebt(ctx, id)
	if err != nil {
		return err
	}
	return &ledger.PaidDebtError{DebtID: id, PaymentID: *d.PaymentID, Op: op}
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (c *conn) InsertPayment(ctx context.Context, p ledger.Payment) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO payments (id, student_id, method, amount, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.StudentID, nullString(p.Method), p.Amount.String(), now())
	return err
}

// SetDebtPayment stamps a payment onto an unpaid debt.
func (c *conn) SetDebtPayment(ctx context.Context, debtID ledger.DebtID, paymentID ledger.PaymentID) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE debts SET payment_id = ? WHERE id = ? AND payment_id IS NULL",
		paymentID, debtID)
	if err != nil {
		return err
	}
	return c.debtMutationResult(ctx, res, debtID, "pay")
}

// ListStudentPayments returns a student's payments, newest first.
func (s *Store) ListStudentPayments(ctx context.Context, studentID ledger.StudentID) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, method, amount, created_at
		 FROM payments WHERE student_id = ? ORDER BY created_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []ledger.Payment
	for rows.Next() {
		var (
			p                 ledger.Payment
			method            sql.NullString
			amount, createdAt string
		)
		if err := rows.Scan(&p.ID, &p.StudentID, &method, &amount, &createdAt); err != nil {
			return nil, err
		}
		p.Method = method.String
		p.Amount = mustDecimal(amount)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// NON-TRANSACTIONAL DELEGATES (ledger.Store on *Store)
// =============================================================================

func (s *Store) GetStudent(ctx context.Context, id ledger.StudentID) (*ledger.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().GetStudent(ctx, id)
}

func (s *Store) GetStudentsByIDs(ctx context.Context, ids []ledger.StudentID) ([]ledger.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().GetStudentsByIDs(ctx, ids)
}

func (s *Store) SetStudentBalance(ctx context.Context, id ledger.StudentID, balance ledger.Hours) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().SetStudentBalance(ctx, id, balance)
}

func (s *Store) GetClassSession(ctx context.Context, id ledger.ClassSessionID) (*ledger.ClassSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().GetClassSession(ctx, id)
}

func (s *Store) InsertClassSession(ctx context.Context, session ledger.ClassSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().InsertClassSession(ctx, session)
}

func (s *Store) UpdateClassSessionFields(ctx context.Context, id ledger.ClassSessionID, update ledger.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().UpdateClassSessionFields(ctx, id, update)
}

func (s *Store) DeleteClassSession(ctx context.Context, id ledger.ClassSessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().DeleteClassSession(ctx, id)
}

func (s *Store) DeactivateClassSession(ctx context.Context, id ledger.ClassSessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().DeactivateClassSession(ctx, id)
}

func (s *Store) AddSessionStudent(ctx context.Context, sessionID ledger.ClassSessionID, studentID ledger.StudentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().AddSessionStudent(ctx, sessionID, studentID)
}

func (s *Store) RemoveSessionStudent(ctx context.Context, sessionID ledger.ClassSessionID, studentID ledger.StudentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().RemoveSessionStudent(ctx, sessionID, studentID)
}

func (s *Store) ClearSessionRoster(ctx context.Context, sessionID ledger.ClassSessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().ClearSessionRoster(ctx, sessionID)
}

func (s *Store) GetDebt(ctx context.Context, id ledger.DebtID) (*ledger.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().GetDebt(ctx, id)
}

func (s *Store) ListStudentDebts(ctx context.Context, studentID ledger.StudentID) ([]ledger.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().ListStudentDebts(ctx, studentID)
}

func (s *Store) InsertDebt(ctx context.Context, debt ledger.Debt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().InsertDebt(ctx, debt)
}

func (s *Store) UpdateDebtHours(ctx context.Context, id ledger.DebtID, hours ledger.Hours) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().UpdateDebtHours(ctx, id, hours)
}

func (s *Store) DeleteDebt(ctx context.Context, id ledger.DebtID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().DeleteDebt(ctx, id)
}

func (s *Store) MarkDebtRestored(ctx context.Context, id ledger.DebtID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().MarkDebtRestored(ctx, id)
}

func (s *Store) InsertPayment(ctx context.Context, payment ledger.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().InsertPayment(ctx, payment)
}

func (s *Store) SetDebtPayment(ctx context.Context, debtID ledger.DebtID, paymentID ledger.PaymentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().SetDebtPayment(ctx, debtID, paymentID)
}

func (s *Store) GetTeacherHourRate(ctx context.Context, id ledger.RateID) (*ledger.TeacherHourRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().GetTeacherHourRate(ctx, id)
}

// =============================================================================
// HELPERS
// =============================================================================

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func paymentIDValue(id *ledger.PaymentID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func oneRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
