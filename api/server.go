/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:      Unique ID per request for tracing
  2. RequestLogger:  httplog structured request logging (ECS schema)
  3. Recoverer:      Panic recovery (500 instead of crash)
  4. CORS:           Cross-origin requests for the attendance terminal UI
  5. Heartbeat:      GET /healthz for load balancers

ROUTE GROUPS:
  /api/policy       Policy document
  /api/staff/*      Staff, punches and per-staff payroll
  /api/payroll/*    Month-wide payroll batches
  /api/periods/*    Period resolution
  /api/anomalies    Shift anomaly report
  /api/scenarios/*  Demo data (development only)

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"io"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
)

// LoggerOptions configure NewLogger.
type LoggerOptions struct {
	Level   slog.Level
	Env     string
	Version string
	Output  io.Writer
}

// NewLogger builds the JSON slog logger used by the server, the service
// and the scheduler. Attributes follow the ECS schema.
func NewLogger(opts LoggerOptions) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	logFormat := httplog.SchemaECS.Concise(opts.Env != "production")
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       opts.Level,
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "payroll-engine"),
		slog.String("version", opts.Version),
		slog.String("env", opts.Env),
	)
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(httplog.RequestLogger(h.Logger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", IdempotencyHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Heartbeat("/healthz"))

	r.Route("/api", func(r chi.Router) {
		r.Get("/policy", h.GetPolicy)
		r.Put("/policy", h.PutPolicy)

		r.Route("/staff", func(r chi.Router) {
			r.Get("/", h.ListStaff)
			r.Post("/", h.CreateStaff)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetStaff)
				r.Post("/retire", h.RetireStaff)
				r.Post("/rehire", h.RehireStaff)

				r.Route("/punches", func(r chi.Router) {
					r.Get("/", h.ListPunches)
					r.Post("/", h.RecordPunch)
					r.Post("/cancel", h.CancelPunch)
					r.Get("/cancellations", h.ListCancellations)
				})

				r.Route("/payroll/{ym}", func(r chi.Router) {
					r.Get("/", h.GetRecord)
					r.Get("/preview", h.PreviewPayroll)
					r.Post("/recompute", h.RecomputeStaff)
				})
			})
		})

		r.Route("/payroll/{ym}", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Post("/recompute", h.RecomputeAll)
		})

		r.Get("/periods/{ym}", h.GetPeriod)
		r.Get("/anomalies", h.ListAnomalies)

		// Demo scenarios (development only)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
