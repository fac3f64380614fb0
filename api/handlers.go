/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes punches, staff, policy and payroll records via REST API. Handles
  HTTP request/response and JSON serialization, and delegates to the
  payroll service, the attendance recorder and the stores.

ENDPOINTS:
  Policy:
    GET    /api/policy                              Active policy document
    PUT    /api/policy                              Replace the policy

  Staff:
    GET    /api/staff                               List staff
    POST   /api/staff                               Create or replace staff
    GET    /api/staff/{id}                          Staff details
    POST   /api/staff/{id}/retire                   Mark retired
    POST   /api/staff/{id}/rehire                   Clear retirement

  Punches:
    POST   /api/staff/{id}/punches                  Check in / out (X-Idempotency-Key)
    GET    /api/staff/{id}/punches?from=&to=        Punch history (dates inclusive)
    POST   /api/staff/{id}/punches/cancel           Remove the newest punch
    GET    /api/staff/{id}/punches/cancellations    Cancel audit trail

  Payroll:
    GET    /api/staff/{id}/payroll/{ym}             Stored record
    GET    /api/staff/{id}/payroll/{ym}/preview     Compute without saving
    POST   /api/staff/{id}/payroll/{ym}/recompute   Recompute and upsert
    POST   /api/payroll/{ym}/recompute              Batch (?lenient=true, ?staff=a,b)
    GET    /api/payroll/{ym}                        Records for a month
    GET    /api/periods/{ym}                        Resolved period
    GET    /api/anomalies?date=                     Suspicious shifts for a day

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid period identifier, invalid policy or body
  - 404: Staff, record or punch not found
  - 409: Duplicate idempotency key, punch too soon, retired staff
  - 422: Staff data cannot produce a payroll (missing wage, bad method)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-sql/civil"

	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

// IdempotencyHeader carries the client's punch idempotency key.
const IdempotencyHeader = "X-Idempotency-Key"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         payroll.TxStore
	Service       *payroll.Service
	Recorder      *attendance.Recorder
	Checker       *attendance.Checker
	PolicyFactory *factory.PolicyFactory
	Logger        *slog.Logger

	// Track currently loaded demo scenario
	currentScenario string
	mu              sync.Mutex
}

// NewHandler creates a new handler with the given store.
func NewHandler(store payroll.TxStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:         store,
		Service:       payroll.NewService(store, logger),
		Recorder:      attendance.NewRecorder(store, store),
		Checker:       attendance.NewChecker(store),
		PolicyFactory: factory.NewPolicyFactory(),
		Logger:        logger,
	}
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// GetPolicy returns the active policy document.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.CurrentPolicy(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.PolicyFactory.ToDocument(p))
}

// PutPolicy validates and replaces the active policy.
func (h *Handler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	p, err := h.PolicyFactory.ParseJSON(body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.Store.SavePolicy(r.Context(), p); err != nil {
		writeServiceError(w, err)
		return
	}
	h.Logger.InfoContext(r.Context(), "policy updated",
		slog.Int("closing_day", p.ClosingDay),
		slog.Int("special_ranges", len(p.SpecialRanges)))
	writeJSON(w, http.StatusOK, h.PolicyFactory.ToDocument(p))
}

// =============================================================================
// STAFF HANDLERS
// =============================================================================

// ListStaff returns all staff.
func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.Store.ListStaff(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list staff", err)
		return
	}
	f := h.staffFactory(r)
	docs := make([]factory.StaffDocument, len(staff))
	for i, s := range staff {
		docs[i] = f.ToDocument(s)
	}
	writeJSON(w, http.StatusOK, docs)
}

// CreateStaff creates or replaces a staff profile.
func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	f := h.staffFactory(r)
	s, err := f.ParseJSON(body)
	if err != nil {
		if payroll.IsDataIntegrity(err) {
			writeServiceError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid staff", err)
		return
	}
	if err := h.Store.SaveStaff(r.Context(), s); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f.ToDocument(s))
}

// GetStaff returns a single staff profile.
func (h *Handler) GetStaff(w http.ResponseWriter, r *http.Request) {
	s, err := h.Store.GetStaff(r.Context(), staffParam(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.staffFactory(r).ToDocument(s))
}

// RetireStaff marks a staff member retired. Punches are refused afterwards;
// records stay computable.
func (h *Handler) RetireStaff(w http.ResponseWriter, r *http.Request) {
	var req RetireRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
	}

	loc := h.location(r)
	on := time.Now().In(loc)
	if req.RetiredOn != "" {
		d, err := civil.ParseDate(req.RetiredOn)
		if err != nil {
			writeError(w, http.StatusBadRequest, "retired_on must be YYYY-MM-DD", err)
			return
		}
		on = d.In(loc)
	}

	h.updateStaff(w, r, func(s *payroll.StaffProfile) { s.Retire(on) })
}

// RehireStaff clears retirement.
func (h *Handler) RehireStaff(w http.ResponseWriter, r *http.Request) {
	h.updateStaff(w, r, func(s *payroll.StaffProfile) { s.Rehire() })
}

func (h *Handler) updateStaff(w http.ResponseWriter, r *http.Request, fn func(*payroll.StaffProfile)) {
	ctx := r.Context()
	var updated payroll.StaffProfile
	err := h.Store.WithTx(ctx, func(tx payroll.Store) error {
		s, err := tx.GetStaff(ctx, staffParam(r))
		if err != nil {
			return err
		}
		fn(&s)
		updated = s
		return tx.SaveStaff(ctx, s)
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.staffFactory(r).ToDocument(updated))
}

// =============================================================================
// PUNCH HANDLERS
// =============================================================================

// RecordPunch records a check-in or check-out. A repeated idempotency key
// returns the original punch with 200 instead of 201.
func (h *Handler) RecordPunch(w http.ResponseWriter, r *http.Request) {
	var body PunchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	req := attendance.PunchRequest{
		StaffID:        staffParam(r),
		Direction:      payroll.Direction(strings.ToLower(body.Direction)),
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
		Force:          body.Force,
	}
	if body.DeviceTimestamp != "" {
		ts, err := time.Parse(time.RFC3339, body.DeviceTimestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "device_timestamp must be RFC3339", err)
			return
		}
		req.DeviceTimestamp = &ts
	}

	res, err := h.Recorder.Punch(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, PunchResponse{Punch: toPunchDTO(res.Event), Duplicate: res.Duplicate})
}

// ListPunches returns punches between from and to (inclusive civil dates).
// Without parameters it returns the period containing today.
func (h *Handler) ListPunches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policy, err := h.Store.CurrentPolicy(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	loc := policy.Loc()

	period := payroll.ResolvePeriod(payroll.PeriodContaining(civil.DateOf(time.Now().In(loc)), policy), policy)
	from, to := period.Start, period.End

	if s := r.URL.Query().Get("from"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD", err)
			return
		}
		from = d.In(loc)
	}
	if s := r.URL.Query().Get("to"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD", err)
			return
		}
		to = d.AddDays(1).In(loc)
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must not be after to", nil)
		return
	}

	events, err := h.Recorder.History(ctx, staffParam(r), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	dtos := make([]PunchDTO, len(events))
	for i, ev := range events {
		dtos[i] = toPunchDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CancelPunch removes the staff member's newest punch.
func (h *Handler) CancelPunch(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
	}

	entry, err := h.Recorder.CancelLast(r.Context(), staffParam(r), req.CanceledBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.Logger.InfoContext(r.Context(), "punch canceled",
		slog.String("staff_id", string(entry.StaffID)),
		slog.String("punch_id", entry.PunchID),
		slog.String("canceled_by", entry.CanceledBy))
	writeJSON(w, http.StatusOK, toCancelDTO(entry))
}

// ListCancellations returns the cancel audit trail.
func (h *Handler) ListCancellations(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Recorder.Cancellations(r.Context(), staffParam(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	dtos := make([]CancelDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toCancelDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// GetRecord returns the stored record for a staff member and month.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	ym, ok := yearMonthParam(w, r)
	if !ok {
		return
	}
	rec, err := h.Store.GetRecord(r.Context(), staffParam(r), ym)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// PreviewPayroll computes a breakdown without saving it.
func (h *Handler) PreviewPayroll(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.Compute(r.Context(), staffParam(r), chi.URLParam(r, "ym"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownDTO(b))
}

// RecomputeStaff recomputes and upserts one record.
func (h *Handler) RecomputeStaff(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.Recompute(r.Context(), staffParam(r), chi.URLParam(r, "ym"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// RecomputeAll recomputes a month for all staff, or those in ?staff=a,b.
// By default the batch is all-or-nothing; ?lenient=true commits each staff
// member separately and reports failures.
func (h *Handler) RecomputeAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ym := chi.URLParam(r, "ym")
	ids := staffListParam(r)

	if r.URL.Query().Get("lenient") == "true" {
		rep, err := h.Service.RecomputeLenient(ctx, ym, ids)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBatchDTO(rep))
		return
	}

	records, err := h.Service.RecomputeBatch(ctx, ym, ids)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	period, err := h.Service.Period(ctx, ym)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(payroll.BatchReport{YearMonth: ym, Period: period, Records: records}))
}

// ListRecords returns all stored records for a month.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	ym, ok := yearMonthParam(w, r)
	if !ok {
		return
	}
	records, err := h.Store.ListRecords(r.Context(), ym)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// GetPeriod resolves a year-month under the active policy.
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Period(r.Context(), chi.URLParam(r, "ym"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(p))
}

// ListAnomalies returns missing check-outs and over-long shifts that
// started on ?date= (default today).
func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	loc := h.location(r)
	day := civil.DateOf(time.Now().In(loc))
	if s := r.URL.Query().Get("date"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", err)
			return
		}
		day = d
	}

	anomalies, err := h.Checker.CheckDay(r.Context(), day, loc)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	dtos := make([]AnomalyDTO, len(anomalies))
	for i, a := range anomalies {
		dtos[i] = toAnomalyDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func staffParam(r *http.Request) payroll.StaffID {
	return payroll.StaffID(chi.URLParam(r, "id"))
}

func staffListParam(r *http.Request) []payroll.StaffID {
	raw := r.URL.Query().Get("staff")
	if raw == "" {
		return nil
	}
	var ids []payroll.StaffID
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			ids = append(ids, payroll.StaffID(s))
		}
	}
	return ids
}

// yearMonthParam validates {ym}, writing 400 when it is malformed.
func yearMonthParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	ym := chi.URLParam(r, "ym")
	if _, err := payroll.ParseYearMonth(ym); err != nil {
		writeServiceError(w, err)
		return "", false
	}
	return ym, true
}

// location returns the active policy's timezone.
func (h *Handler) location(r *http.Request) *time.Location {
	p, err := h.Store.CurrentPolicy(r.Context())
	if err != nil {
		return payroll.DefaultLocation()
	}
	return p.Loc()
}

func (h *Handler) staffFactory(r *http.Request) *factory.StaffFactory {
	return factory.NewStaffFactory(h.location(r))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message, Kind: kindForStatus(status)}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps engine errors to a status and kind. A *StaffError
// contributes staff_id and year_month.
func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{
		Error:   http.StatusText(status),
		Details: err.Error(),
		Kind:    errorKind(err),
	}
	var se *payroll.StaffError
	if errors.As(err, &se) {
		resp.StaffID = string(se.StaffID)
		resp.YearMonth = se.YearMonth
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case payroll.IsClientError(err), errors.Is(err, attendance.ErrInvalidDirection):
		return http.StatusBadRequest
	case payroll.IsNotFound(err), errors.Is(err, attendance.ErrNothingToCancel):
		return http.StatusNotFound
	case errors.Is(err, payroll.ErrDuplicateIdempotencyKey),
		errors.Is(err, attendance.ErrRecentPunch),
		errors.Is(err, attendance.ErrStaffRetired):
		return http.StatusConflict
	case payroll.IsDataIntegrity(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// errorKind is the machine-readable error class.
func errorKind(err error) string {
	switch {
	case errors.Is(err, payroll.ErrInvalidPeriodIdentifier):
		return "invalid_period"
	case errors.Is(err, payroll.ErrInvalidPolicy):
		return "invalid_policy"
	case errors.Is(err, attendance.ErrInvalidDirection):
		return "invalid_direction"
	case errors.Is(err, payroll.ErrStaffNotFound):
		return "staff_not_found"
	case errors.Is(err, payroll.ErrRecordNotFound):
		return "record_not_found"
	case errors.Is(err, attendance.ErrNothingToCancel):
		return "nothing_to_cancel"
	case errors.Is(err, payroll.ErrDuplicateIdempotencyKey):
		return "duplicate_punch"
	case errors.Is(err, attendance.ErrRecentPunch):
		return "recent_punch"
	case errors.Is(err, attendance.ErrStaffRetired):
		return "staff_retired"
	case errors.Is(err, payroll.ErrMissingWageConfiguration):
		return "missing_wage_configuration"
	case errors.Is(err, payroll.ErrUnsupportedDeductionMethod):
		return "unsupported_deduction_method"
	default:
		return "internal"
	}
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("http_%d", status)
	}
}
