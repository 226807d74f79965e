/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the office frontend

ROUTE GROUPS:
  /api/students/*         Students, their debts and payments
  /api/teachers/*         Teachers and hour rates
  /api/class-sessions/*   Session booking, editing, cancellation, preview

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
// allowedOrigins feeds the CORS middleware; empty means same-origin only.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Post("/", h.CreateStudent)
			r.Get("/{id}", h.GetStudent)
			r.Get("/{id}/debts", h.GetStudentDebts)
			r.Get("/{id}/payments", h.GetStudentPayments)
			r.Post("/{id}/payments", h.PayDebts)
		})

		r.Route("/teachers", func(r chi.Router) {
			r.Get("/", h.ListTeachers)
			r.Post("/", h.CreateTeacher)
			r.Get("/{id}/rates", h.ListTeacherHourRates)
			r.Post("/{id}/rates", h.CreateTeacherHourRate)
		})

		r.Route("/class-sessions", func(r chi.Router) {
			r.Get("/", h.ListClassSessions)
			r.Post("/", h.CreateClassSession)
			r.Post("/preview-debt", h.PreviewDebt)
			r.Get("/{id}", h.GetClassSession)
			r.Put("/{id}", h.UpdateClassSession)
			r.Delete("/{id}", h.DeleteClassSession)
		})
	})

	return r
}
