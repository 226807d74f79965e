/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry validator struct tags; handlers run them through a
  shared validator instance before touching domain logic.

DECIMALS:
  Hour quantities and money travel as JSON strings ("1.5", not 1.5) so no
  precision is lost on the wire.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/actions.go: CalculatedDebt wire format
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chalkline/tutoring-office/ledger"
)

// =============================================================================
// STUDENTS
// =============================================================================

// StudentDTO represents a student in API responses.
type StudentDTO struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Email       string       `json:"email,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	HourBalance ledger.Hours `json:"hourBalance"`
	CreatedAt   string       `json:"createdAt,omitempty"`
}

// CreateStudentRequest is the request to register a student.
type CreateStudentRequest struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone"`
	HourBalance string `json:"hourBalance" validate:"omitempty,decimal"`
}

// =============================================================================
// TEACHERS AND RATES
// =============================================================================

type TeacherDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type CreateTeacherRequest struct {
	Name string `json:"name" validate:"required"`
}

type TeacherHourRateDTO struct {
	ID        string `json:"id"`
	TeacherID string `json:"teacherId"`
	Name      string `json:"name"`
	Rate      string `json:"rate"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type CreateTeacherHourRateRequest struct {
	Name string `json:"name" validate:"required"`
	Rate string `json:"rate" validate:"required,decimal"`
}

// =============================================================================
// CLASS SESSIONS
// =============================================================================

// ClassSessionDTO represents a session in API responses. Debts lists every
// debt row recorded against the session, including rows for students no
// longer on the roster.
type ClassSessionDTO struct {
	ID                string       `json:"id"`
	Date              time.Time    `json:"date"`
	Hours             ledger.Hours `json:"hours"`
	TeacherID         string       `json:"teacherId,omitempty"`
	TeacherHourRateID string       `json:"teacherHourRateId,omitempty"`
	IsActive          bool         `json:"isActive"`
	StudentIDs        []string     `json:"studentIds"`
	Debts             []DebtDTO    `json:"debts"`
	CreatedAt         string       `json:"createdAt,omitempty"`
}

// CreateClassSessionRequest books a new session. CalculatedDebts is the
// plan the client previewed; it is optional and, when present, verified
// against the server's own calculation.
type CreateClassSessionRequest struct {
	Date              time.Time               `json:"date" validate:"required"`
	TeacherID         string                  `json:"teacherId" validate:"required"`
	TeacherHourRateID string                  `json:"teacherHourRateId" validate:"required"`
	Hours             string                  `json:"hours" validate:"required,decimal"`
	StudentIDs        []string                `json:"studentIds" validate:"required,min=1"`
	CalculatedDebts   []ledger.CalculatedDebt `json:"calculatedDebts,omitempty"`
}

// UpdateClassSessionRequest carries the full desired state of a session.
type UpdateClassSessionRequest struct {
	Date              time.Time               `json:"date" validate:"required"`
	TeacherID         string                  `json:"teacherId" validate:"required"`
	TeacherHourRateID string                  `json:"teacherHourRateId" validate:"required"`
	Hours             string                  `json:"hours" validate:"required,decimal"`
	StudentIDs        []string                `json:"studentIds" validate:"required,min=1"`
	CalculatedDebts   []ledger.CalculatedDebt `json:"calculatedDebts,omitempty"`
}

// PreviewDebtRequest asks for the reconciliation plan without writing.
// SessionID is empty for a new booking.
type PreviewDebtRequest struct {
	SessionID  string   `json:"sessionId"`
	Hours      string   `json:"hours" validate:"required,decimal"`
	StudentIDs []string `json:"studentIds" validate:"required,min=1"`
}

type PreviewDebtResponse struct {
	CalculatedDebts []ledger.CalculatedDebt `json:"calculatedDebts"`
}

// =============================================================================
// DEBTS AND PAYMENTS
// =============================================================================

type DebtDTO struct {
	ID             string       `json:"id"`
	StudentID      string       `json:"studentId"`
	ClassSessionID string       `json:"classSessionId"`
	Hours          ledger.Hours `json:"hours"`
	Rate           string       `json:"rate"`
	Amount         string       `json:"amount"`
	PaymentID      *string      `json:"paymentId,omitempty"`
	Restored       bool         `json:"restored"`
	CreatedAt      string       `json:"createdAt,omitempty"`
}

type PaymentDTO struct {
	ID        string `json:"id"`
	StudentID string `json:"studentId"`
	Method    string `json:"method"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// PayDebtsRequest settles a batch of a student's debts with one payment.
type PayDebtsRequest struct {
	DebtIDs []string `json:"debtIds" validate:"required,min=1"`
	Method  string   `json:"method" validate:"required"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toStudentDTO(s ledger.Student) StudentDTO {
	return StudentDTO{
		ID:          string(s.ID),
		Name:        s.Name,
		Email:       s.Email,
		Phone:       s.Phone,
		HourBalance: s.HourBalance,
		CreatedAt:   timestamp(s.CreatedAt),
	}
}

func toTeacherDTO(t ledger.Teacher) TeacherDTO {
	return TeacherDTO{ID: string(t.ID), Name: t.Name, CreatedAt: timestamp(t.CreatedAt)}
}

func toRateDTO(r ledger.TeacherHourRate) TeacherHourRateDTO {
	return TeacherHourRateDTO{
		ID:        string(r.ID),
		TeacherID: string(r.TeacherID),
		Name:      r.Name,
		Rate:      r.Rate.String(),
		CreatedAt: timestamp(r.CreatedAt),
	}
}

func toDebtDTO(d ledger.Debt) DebtDTO {
	dto := DebtDTO{
		ID:             string(d.ID),
		StudentID:      string(d.StudentID),
		ClassSessionID: string(d.ClassSessionID),
		Hours:          d.Hours,
		Rate:           d.Rate.String(),
		Amount:         d.Amount().String(),
		Restored:       d.Restored,
		CreatedAt:      timestamp(d.CreatedAt),
	}
	if d.PaymentID != nil {
		id := string(*d.PaymentID)
		dto.PaymentID = &id
	}
	return dto
}

func toSessionDTO(s *ledger.ClassSession) ClassSessionDTO {
	students := make([]string, len(s.Students))
	for i, id := range s.Students {
		students[i] = string(id)
	}
	debts := make([]DebtDTO, len(s.Debts))
	for i, d := range s.Debts {
		debts[i] = toDebtDTO(d)
	}
	return ClassSessionDTO{
		ID:                string(s.ID),
		Date:              s.Date,
		Hours:             s.Hours,
		TeacherID:         string(s.TeacherID),
		TeacherHourRateID: string(s.TeacherHourRateID),
		IsActive:          s.IsActive,
		StudentIDs:        students,
		Debts:             debts,
		CreatedAt:         timestamp(s.CreatedAt),
	}
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	return PaymentDTO{
		ID:        string(p.ID),
		StudentID: string(p.StudentID),
		Method:    p.Method,
		Amount:    p.Amount.String(),
		CreatedAt: timestamp(p.CreatedAt),
	}
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func studentIDs(ids []string) []ledger.StudentID {
	out := make([]ledger.StudentID, len(ids))
	for i, id := range ids {
		out[i] = ledger.StudentID(id)
	}
	return out
}

func parseHours(s string) (ledger.Hours, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ledger.Hours{}, err
	}
	return ledger.HoursFromDecimal(d), nil
}
