/*
handlers.go - HTTP API handlers for the tutoring back office

PURPOSE:
  Exposes the hour-balance and debt reconciliation engine via REST API.
  Handles HTTP request/response, JSON serialization, and delegates every
  session mutation to the sessions service.

ENDPOINTS:
  Students:
    GET    /api/students                      List students
    POST   /api/students                      Register student
    GET    /api/students/{id}                 Student details
    GET    /api/students/{id}/debts           Student's debts
    GET    /api/students/{id}/payments        Student's payments
    POST   /api/students/{id}/payments        Pay a batch of debts

  Teachers:
    GET    /api/teachers                      List teachers
    POST   /api/teachers                      Create teacher
    GET    /api/teachers/{id}/rates           Teacher's hour rates
    POST   /api/teachers/{id}/rates           Create hour rate

  Class sessions:
    GET    /api/class-sessions                List sessions (?active=true)
    POST   /api/class-sessions                Book session (reconciles roster)
    GET    /api/class-sessions/{id}           Session with roster and debts
    PUT    /api/class-sessions/{id}           Edit session (settles roster diff)
    DELETE /api/class-sessions/{id}           Cancel session (restores hours)
    POST   /api/class-sessions/preview-debt   Dry-run reconciliation plan

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Student/session/debt/rate not found
  - 409: Paid-debt violation, stale client calculation
  - 422: Reconciliation would drive a balance negative
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - sessions/service.go: The write path behind these handlers
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chalkline/tutoring-office/ledger"
	"github.com/chalkline/tutoring-office/sessions"
	"github.com/chalkline/tutoring-office/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Sessions *sessions.Service

	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new handler over the store and session service.
func NewHandler(store *sqlite.Store, svc *sessions.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		_, err := decimal.NewFromString(fl.Field().String())
		return err == nil
	})
	return &Handler{Store: store, Sessions: svc, validate: v, logger: logger}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns all students.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.ListStudents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list students", err)
		return
	}
	dtos := make([]StudentDTO, len(students))
	for i, s := range students {
		dtos[i] = toStudentDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStudent registers a student, optionally with an opening balance.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if !h.decode(w, r, &req) {
		return
	}

	balance := ledger.ZeroHours()
	if req.HourBalance != "" {
		var err error
		if balance, err = parseHours(req.HourBalance); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid hour balance", err)
			return
		}
		if balance.IsNegative() {
			writeError(w, http.StatusBadRequest, "Hour balance cannot be negative", nil)
			return
		}
	}

	student := ledger.Student{
		ID:          ledger.StudentID(uuid.NewString()),
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		HourBalance: balance,
	}
	if err := h.Store.CreateStudent(r.Context(), student); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create student", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStudentDTO(student))
}

// GetStudent returns one student with their current balance.
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	id := ledger.StudentID(chi.URLParam(r, "id"))
	student, err := h.Store.GetStudent(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get student", err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(*student))
}

// GetStudentDebts returns every debt recorded for a student.
func (h *Handler) GetStudentDebts(w http.ResponseWriter, r *http.Request) {
	id := ledger.StudentID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetStudent(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get student", err)
		return
	}
	debts, err := h.Store.ListStudentDebts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list debts", err)
		return
	}
	dtos := make([]DebtDTO, len(debts))
	for i, d := range debts {
		dtos[i] = toDebtDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStudentPayments returns a student's payment history.
func (h *Handler) GetStudentPayments(w http.ResponseWriter, r *http.Request) {
	id := ledger.StudentID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetStudent(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get student", err)
		return
	}
	payments, err := h.Store.ListStudentPayments(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PayDebts settles a batch of the student's debts with one payment.
func (h *Handler) PayDebts(w http.ResponseWriter, r *http.Request) {
	id := ledger.StudentID(chi.URLParam(r, "id"))
	var req PayDebtsRequest
	if !h.decode(w, r, &req) {
		return
	}

	debtIDs := make([]ledger.DebtID, len(req.DebtIDs))
	for i, d := range req.DebtIDs {
		debtIDs[i] = ledger.DebtID(d)
	}
	payment, err := h.Sessions.PayDebts(r.Context(), id, debtIDs, req.Method)
	if err != nil {
		writeDomainError(w, "Failed to pay debts", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(*payment))
}

// =============================================================================
// TEACHER HANDLERS
// =============================================================================

// ListTeachers returns all teachers.
func (h *Handler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.Store.ListTeachers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list teachers", err)
		return
	}
	dtos := make([]TeacherDTO, len(teachers))
	for i, t := range teachers {
		dtos[i] = toTeacherDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTeacher creates a teacher.
func (h *Handler) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	var req CreateTeacherRequest
	if !h.decode(w, r, &req) {
		return
	}
	teacher := ledger.Teacher{ID: ledger.TeacherID(uuid.NewString()), Name: req.Name}
	if err := h.Store.CreateTeacher(r.Context(), teacher); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create teacher", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTeacherDTO(teacher))
}

// ListTeacherHourRates returns a teacher's rates.
func (h *Handler) ListTeacherHourRates(w http.ResponseWriter, r *http.Request) {
	id := ledger.TeacherID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetTeacher(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get teacher", err)
		return
	}
	rates, err := h.Store.ListTeacherHourRates(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rates", err)
		return
	}
	dtos := make([]TeacherHourRateDTO, len(rates))
	for i, rt := range rates {
		dtos[i] = toRateDTO(rt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTeacherHourRate creates a priced rate for a teacher.
func (h *Handler) CreateTeacherHourRate(w http.ResponseWriter, r *http.Request) {
	id := ledger.TeacherID(chi.URLParam(r, "id"))
	var req CreateTeacherHourRateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := h.Store.GetTeacher(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get teacher", err)
		return
	}

	price, err := decimal.NewFromString(req.Rate)
	if err != nil || price.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid rate", err)
		return
	}
	rate := ledger.TeacherHourRate{
		ID:        ledger.RateID(uuid.NewString()),
		TeacherID: id,
		Name:      req.Name,
		Rate:      price,
	}
	if err := h.Store.CreateTeacherHourRate(r.Context(), rate); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create rate", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRateDTO(rate))
}

// =============================================================================
// CLASS SESSION HANDLERS
// =============================================================================

// ListClassSessions returns session headers. ?active=true filters out
// soft-deleted sessions.
func (h *Handler) ListClassSessions(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	list, err := h.Store.ListClassSessions(r.Context(), activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}
	dtos := make([]ClassSessionDTO, len(list))
	for i := range list {
		dtos[i] = toSessionDTO(&list[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClassSession returns one session with its roster and debts.
func (h *Handler) GetClassSession(w http.ResponseWriter, r *http.Request) {
	id := ledger.ClassSessionID(chi.URLParam(r, "id"))
	session, err := h.Store.GetClassSession(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(session))
}

// CreateClassSession books a session and reconciles its roster.
func (h *Handler) CreateClassSession(w http.ResponseWriter, r *http.Request) {
	var req CreateClassSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	hours, err := parseHours(req.Hours)
	if err != nil || !hours.IsPositive() {
		writeError(w, http.StatusBadRequest, "Hours must be a positive decimal", err)
		return
	}

	session, err := h.Sessions.CreateClassSession(r.Context(), sessions.CreateSessionInput{
		Date:              req.Date,
		TeacherID:         ledger.TeacherID(req.TeacherID),
		TeacherHourRateID: ledger.RateID(req.TeacherHourRateID),
		Hours:             hours,
		StudentIDs:        studentIDs(req.StudentIDs),
		ClientPlan:        req.CalculatedDebts,
		HasClientPlan:     req.CalculatedDebts != nil,
	})
	if err != nil {
		writeDomainError(w, "Failed to create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(session))
}

// UpdateClassSession edits a session and settles the roster diff.
func (h *Handler) UpdateClassSession(w http.ResponseWriter, r *http.Request) {
	id := ledger.ClassSessionID(chi.URLParam(r, "id"))
	var req UpdateClassSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	hours, err := parseHours(req.Hours)
	if err != nil || !hours.IsPositive() {
		writeError(w, http.StatusBadRequest, "Hours must be a positive decimal", err)
		return
	}

	session, err := h.Sessions.UpdateClassSession(r.Context(), id, sessions.UpdateSessionInput{
		Date:              req.Date,
		TeacherID:         ledger.TeacherID(req.TeacherID),
		TeacherHourRateID: ledger.RateID(req.TeacherHourRateID),
		Hours:             hours,
		StudentIDs:        studentIDs(req.StudentIDs),
		ClientPlan:        req.CalculatedDebts,
		HasClientPlan:     req.CalculatedDebts != nil,
	})
	if err != nil {
		writeDomainError(w, "Failed to update session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(session))
}

// DeleteClassSession cancels a session.
func (h *Handler) DeleteClassSession(w http.ResponseWriter, r *http.Request) {
	id := ledger.ClassSessionID(chi.URLParam(r, "id"))
	if err := h.Sessions.DeleteClassSession(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PreviewDebt returns the reconciliation plan for a roster and hour count
// without writing anything.
func (h *Handler) PreviewDebt(w http.ResponseWriter, r *http.Request) {
	var req PreviewDebtRequest
	if !h.decode(w, r, &req) {
		return
	}
	hours, err := parseHours(req.Hours)
	if err != nil || !hours.IsPositive() {
		writeError(w, http.StatusBadRequest, "Hours must be a positive decimal", err)
		return
	}

	var sessionID *ledger.ClassSessionID
	if req.SessionID != "" {
		id := ledger.ClassSessionID(req.SessionID)
		sessionID = &id
	}
	plan, err := h.Sessions.CalculateDebt(r.Context(), studentIDs(req.StudentIDs), hours, sessionID)
	if err != nil {
		writeDomainError(w, "Failed to calculate debt", err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewDebtResponse{CalculatedDebts: plan})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps ledger errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	var status int
	switch {
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrDebtPaid), errors.Is(err, ledger.ErrCalculationMismatch):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrNegativeBalance):
		status = http.StatusUnprocessableEntity
	case ledger.IsClientError(err):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}
	writeError(w, status, message, err)
}
