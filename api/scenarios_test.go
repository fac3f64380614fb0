/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario installs its policy and roster and that the
	recomputed 202503 records match hand-computed amounts. These double as
	end-to-end checks of the factory, store and service wiring.
*/
package api

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

func loadScenario(t *testing.T, ts *testServer, id string) payroll.BatchReport {
	t.Helper()
	s, ok := findScenario(id)
	require.True(t, ok, id)
	rep, err := ts.handler.loadScenario(context.Background(), s)
	require.NoError(t, err)
	require.True(t, rep.OK(), "failures: %v", rep.Failures)
	return rep
}

func recordsByStaff(t *testing.T, ts *testServer) map[payroll.StaffID]payroll.Record {
	t.Helper()
	recs, err := ts.store.ListRecords(context.Background(), ScenarioMonth)
	require.NoError(t, err)
	out := make(map[payroll.StaffID]payroll.Record, len(recs))
	for _, r := range recs {
		out[r.StaffID] = r
	}
	return out
}

func TestScenario_HourlyMonth(t *testing.T) {
	// GIVEN: Two part-timers, closing day 25
	// WHEN: Loading the scenario
	// THEN: sato is paid 77.5h plus commute, tanaka 11h across an overnight shift

	ts := newTestServer(t)
	loadScenario(t, ts, "hourly-month")
	recs := recordsByStaff(t, ts)
	require.Len(t, recs, 2)

	sato := recs["sato"]
	assert.Equal(t, int64(93000), sato.BasePay)
	assert.Equal(t, int64(6000), sato.CommuteAllowance)
	assert.Equal(t, int64(99000), sato.GrossPay)
	assert.Equal(t, int64(594), sato.EmploymentInsurance)
	assert.Equal(t, int64(98406), sato.NetPay)

	tanaka := recs["tanaka"]
	assert.Equal(t, int64(12100), tanaka.BasePay)
	assert.Equal(t, int64(12100), tanaka.NetPay)
}

func TestScenario_SalariedDeductions(t *testing.T) {
	// GIVEN: One salaried employee per deduction method
	// WHEN: Loading the scenario
	// THEN: Every method produces a record; no_deduct pays the full salary

	ts := newTestServer(t)
	rep := loadScenario(t, ts, "salaried-deductions")
	assert.Len(t, rep.Records, len(payroll.DeductMethods))

	recs := recordsByStaff(t, ts)
	full := recs[payroll.StaffID("salary-"+string(payroll.DeductNone))]
	assert.Equal(t, int64(300000), full.BasePay)
	assert.Equal(t, int64(239550), full.NetPay)

	for id, r := range recs {
		assert.LessOrEqual(t, r.BasePay, int64(300000), id)
		assert.Positive(t, r.BasePay, id)
	}
}

func TestScenario_HolidaysAndRanges(t *testing.T) {
	// GIVEN: Weekend holidays and a special range on 03-20..03-21
	// WHEN: Loading the scenario
	// THEN: Each category is priced separately at 1.35x for the premium ones

	ts := newTestServer(t)
	loadScenario(t, ts, "holidays-and-ranges")
	recs := recordsByStaff(t, ts)

	r := recs["suzuki"]
	assert.Equal(t, int64(7750), r.BasePay)
	assert.Equal(t, int64(10462), r.SpecialPay)
	assert.Equal(t, int64(5062), r.HolidayPay)
	assert.Equal(t, int64(23274), r.GrossPay)
}

func TestScenario_ReloadReplacesData(t *testing.T) {
	// GIVEN: A loaded scenario
	// WHEN: Another scenario is loaded on top
	// THEN: Only the second scenario's staff remain

	ts := newTestServer(t)
	loadScenario(t, ts, "hourly-month")
	loadScenario(t, ts, "holidays-and-ranges")

	staff, err := ts.store.ListStaff(context.Background())
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, payroll.StaffID("suzuki"), staff[0].ID)
}

func TestScenarioEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, data := ts.do(t, http.MethodGet, "/api/scenarios", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]ScenarioDTO](t, data), len(scenarioList))

	resp, _ = ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, data = ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "hourly-month"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Len(t, decode[BatchDTO](t, data).Records, 2)

	resp, data = ts.do(t, http.MethodGet, "/api/scenarios/current", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hourly-month", decode[ScenarioDTO](t, data).ID)

	resp, _ = ts.do(t, http.MethodPost, "/api/scenarios/reset", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, data = ts.do(t, http.MethodGet, "/api/scenarios/current", nil, nil)
	assert.Equal(t, "null", string(bytes.TrimSpace(data)))
}
