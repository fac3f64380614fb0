/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario installs a policy, a staff roster and a
	month of punches for payroll month 202503, then recomputes it.

AVAILABLE SCENARIOS:

	hourly-month:         Part-timers, closing day 25, one overnight shift
	salaried-deductions:  One salaried employee per deduction method
	holidays-and-ranges:  Weekend holidays and a special range at 1.35x

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Apply the scenario's policy YAML via the factory
 3. Import the staff roster YAML via the factory
 4. Append punches
 5. Recompute the month in lenient mode

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "hourly-month"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - factory/: Policy and roster documents
  - payroll/service.go: RecomputeLenient
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-sql/civil"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

// ScenarioMonth is the payroll month every scenario fills.
const ScenarioMonth = "202503"

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// Resetter is implemented by stores that can be wiped.
type Resetter interface {
	Reset(ctx context.Context) error
}

// ErrResetUnsupported is returned when the store cannot be reset.
var ErrResetUnsupported = errors.New("store does not support reset")

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	policy string
	roster string
	shifts func(loc *time.Location) []shiftSpec
}

type shiftSpec struct {
	staff   payroll.StaffID
	in, out time.Time
}

var scenarioList = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "hourly-month",
			Name:        "Hourly Month",
			Description: "Two part-timers on a 25th closing day, including an overnight shift",
		},
		policy: `
closing_day: 25
employment_insurance_rate: "0.006"
`,
		roster: `
staff:
  - id: sato
    name: Sato
    wage_type: hourly
    hourly_rate: "1200"
    commute_allowance: "6000"
    insured: true
  - id: tanaka
    name: Tanaka
    wage_type: hourly
    hourly_rate: "1100"
`,
		shifts: func(loc *time.Location) []shiftSpec {
			var out []shiftSpec
			for _, d := range weekdaysBetween(civil.Date{Year: 2025, Month: 3, Day: 3}, civil.Date{Year: 2025, Month: 3, Day: 14}) {
				out = append(out, shiftAt("sato", d, 9, 0, 18, 0, loc))
			}
			out = append(out,
				shiftAt("tanaka", civil.Date{Year: 2025, Month: 3, Day: 7}, 13, 0, 17, 30, loc),
				shiftSpec{
					staff: "tanaka",
					in:    civil.DateTime{Date: civil.Date{Year: 2025, Month: 3, Day: 8}, Time: civil.Time{Hour: 22}}.In(loc),
					out:   civil.DateTime{Date: civil.Date{Year: 2025, Month: 3, Day: 9}, Time: civil.Time{Hour: 5}}.In(loc),
				},
			)
			return out
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "salaried-deductions",
			Name:        "Salaried Deductions",
			Description: "One salaried employee per deduction method, same attendance",
		},
		policy: `
closing_day: 31
`,
		roster: salariedRoster(),
		shifts: func(loc *time.Location) []shiftSpec {
			var out []shiftSpec
			days := weekdaysBetween(civil.Date{Year: 2025, Month: 3, Day: 3}, civil.Date{Year: 2025, Month: 3, Day: 21})
			for _, m := range payroll.DeductMethods {
				for _, d := range days {
					out = append(out, shiftAt(payroll.StaffID("salary-"+string(m)), d, 9, 0, 18, 0, loc))
				}
			}
			return out
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "holidays-and-ranges",
			Name:        "Holidays and Ranges",
			Description: "Saturday/Sunday holidays and a special range paid at 1.35x",
		},
		policy: `
closing_day: 31
special_rate: "1.35"
weekly_holidays: [5, 6]
special_ranges:
  - name: new_year
    start: 2025-03-20
    end: 2025-03-21
`,
		roster: `
staff:
  - id: suzuki
    name: Suzuki
    wage_type: hourly
    hourly_rate: "1000"
`,
		shifts: func(loc *time.Location) []shiftSpec {
			return []shiftSpec{
				shiftAt("suzuki", civil.Date{Year: 2025, Month: 3, Day: 19}, 9, 0, 18, 0, loc),
				shiftAt("suzuki", civil.Date{Year: 2025, Month: 3, Day: 20}, 9, 0, 18, 0, loc),
				shiftAt("suzuki", civil.Date{Year: 2025, Month: 3, Day: 22}, 10, 0, 15, 0, loc),
			}
		},
	},
}

func salariedRoster() string {
	roster := "staff:\n"
	for _, m := range payroll.DeductMethods {
		roster += fmt.Sprintf(`  - id: salary-%[1]s
    name: Salaried (%[1]s)
    wage_type: salary
    monthly_salary: "300000"
    deduct_method: %[1]s
    health_insurance: "15000"
    pension: "27450"
    resident_tax: "12000"
    withholding_tax: "6000"
`, m)
	}
	return roster
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarioList {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarioList))
	for i, s := range scenarioList {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if s, ok := findScenario(current); ok {
		writeJSON(w, http.StatusOK, s.ScenarioDTO)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	rep, err := h.loadScenario(r.Context(), s)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(rep))
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// LOADING
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, s scenario) (payroll.BatchReport, error) {
	if err := h.reset(ctx); err != nil {
		return payroll.BatchReport{}, err
	}

	policy, err := h.PolicyFactory.ParseYAML([]byte(s.policy))
	if err != nil {
		return payroll.BatchReport{}, fmt.Errorf("scenario policy: %w", err)
	}
	if err := h.Store.SavePolicy(ctx, policy); err != nil {
		return payroll.BatchReport{}, err
	}

	staff, err := factory.NewStaffFactory(policy.Loc()).ParseRosterYAML([]byte(s.roster))
	if err != nil {
		return payroll.BatchReport{}, fmt.Errorf("scenario roster: %w", err)
	}
	for _, st := range staff {
		if err := h.Store.SaveStaff(ctx, st); err != nil {
			return payroll.BatchReport{}, err
		}
	}

	for i, sh := range s.shifts(policy.Loc()) {
		for _, ev := range []payroll.PunchEvent{
			{ID: fmt.Sprintf("%s-%s-%03d-in", s.ID, sh.staff, i), StaffID: sh.staff, Direction: payroll.DirectionIn, Timestamp: sh.in},
			{ID: fmt.Sprintf("%s-%s-%03d-out", s.ID, sh.staff, i), StaffID: sh.staff, Direction: payroll.DirectionOut, Timestamp: sh.out},
		} {
			if err := h.Store.AppendPunch(ctx, ev); err != nil {
				return payroll.BatchReport{}, err
			}
		}
	}

	rep, err := h.Service.RecomputeLenient(ctx, ScenarioMonth, nil)
	if err != nil {
		return payroll.BatchReport{}, err
	}

	h.mu.Lock()
	h.currentScenario = s.ID
	h.mu.Unlock()
	return rep, nil
}

func (h *Handler) reset(ctx context.Context) error {
	r, ok := h.Store.(Resetter)
	if !ok {
		return ErrResetUnsupported
	}
	if err := r.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

func shiftAt(staff payroll.StaffID, d civil.Date, inH, inM, outH, outM int, loc *time.Location) shiftSpec {
	return shiftSpec{
		staff: staff,
		in:    civil.DateTime{Date: d, Time: civil.Time{Hour: inH, Minute: inM}}.In(loc),
		out:   civil.DateTime{Date: d, Time: civil.Time{Hour: outH, Minute: outM}}.In(loc),
	}
}

// weekdaysBetween returns Monday-Friday dates in [from, to].
func weekdaysBetween(from, to civil.Date) []civil.Date {
	var out []civil.Date
	for d := from; !d.After(to); d = d.AddDays(1) {
		if payroll.WeekdayIndex(d) < 5 {
			out = append(out, d)
		}
	}
	return out
}
