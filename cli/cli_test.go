package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

const testPolicy = `
closing_day: 25
employment_insurance_rate: "0.006"
`

const testRoster = `
staff:
  - id: alice
    name: Alice
    wage_type: hourly
    hourly_rate: "1200"
    insured: true
  - id: bob
    name: Bob
    wage_type: hourly
    hourly_rate: "1000"
`

type cliEnv struct {
	dir string
	db  string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("DB_DRIVER", "sqlite")
	return &cliEnv{dir: dir, db: filepath.Join(dir, "payroll.db")}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--db", e.db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// seed applies the test policy and roster through the CLI and appends
// punches straight into the database.
func (e *cliEnv) seed(t *testing.T, punches ...payroll.PunchEvent) {
	t.Helper()
	_, err := e.run(t, "policy", "apply", "-f", e.writeFile(t, "policy.yaml", testPolicy))
	require.NoError(t, err)
	_, err = e.run(t, "staff", "import", "-f", e.writeFile(t, "roster.yaml", testRoster))
	require.NoError(t, err)

	st, err := sqlite.New(e.db)
	require.NoError(t, err)
	defer st.Close()
	for _, p := range punches {
		require.NoError(t, st.AppendPunch(context.Background(), p))
	}
}

func (e *cliEnv) store(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(e.db)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

var tokyo = payroll.DefaultLocation()

func at(day, hour, minute int) time.Time {
	return time.Date(2025, 3, day, hour, minute, 0, 0, tokyo)
}

func punchAt(id string, staff payroll.StaffID, dir payroll.Direction, ts time.Time) payroll.PunchEvent {
	return payroll.PunchEvent{ID: id, StaffID: staff, Direction: dir, Timestamp: ts}
}

// aliceShift is 9:00-18:15 on 2025-03-10: 8h after lunch and the daily break.
var aliceShift = []payroll.PunchEvent{
	punchAt("a1", "alice", payroll.DirectionIn, at(10, 9, 0)),
	punchAt("a2", "alice", payroll.DirectionOut, at(10, 18, 15)),
}

// =============================================================================
// COMMAND TREE
// =============================================================================

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "payrollctl", cmd.Use)

	for _, path := range [][]string{
		{"recompute"}, {"show"}, {"policy", "show"}, {"policy", "apply"},
		{"staff", "list"}, {"staff", "import"}, {"check-punches"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestRootCommand_RejectsUnknownFormat(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run(t, "--format", "xml", "show", "202503")
	assert.ErrorContains(t, err, "invalid format")
}

// =============================================================================
// RECOMPUTE / SHOW
// =============================================================================

func TestRecompute_StoresRecords(t *testing.T) {
	// GIVEN: A policy, two staff and one completed shift for alice
	// WHEN: payrollctl recompute 202503
	// THEN: Both records are stored and show prints alice's net pay

	e := newCLIEnv(t)
	e.seed(t, aliceShift...)

	out, err := e.run(t, "recompute", "202503")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "¥9,600")

	rec, err := e.store(t).GetRecord(context.Background(), "alice", "202503")
	require.NoError(t, err)
	assert.Equal(t, int64(9600), rec.GrossPay)
	assert.Equal(t, int64(57), rec.EmploymentInsurance)

	bob, err := e.store(t).GetRecord(context.Background(), "bob", "202503")
	require.NoError(t, err)
	assert.Zero(t, bob.EmploymentInsurance)

	out, err = e.run(t, "--format", "json", "show", "202503", "--staff", "alice")
	require.NoError(t, err)
	var dtos []api.RecordDTO
	require.NoError(t, json.Unmarshal([]byte(out), &dtos), out)
	require.Len(t, dtos, 1)
	assert.Equal(t, "8", dtos[0].TotalHours)
	assert.Equal(t, int64(9543), dtos[0].NetPay)
}

func TestRecompute_StrictAbortsLenientReports(t *testing.T) {
	// GIVEN: An hourly staff member saved without a rate
	// WHEN: Recomputing strictly, then leniently
	// THEN: Strict stores nothing; lenient stores alice and reports the failure

	e := newCLIEnv(t)
	e.seed(t, aliceShift...)
	require.NoError(t, e.store(t).SaveStaff(context.Background(), payroll.StaffProfile{
		ID: "broken", Name: "Broken", WageType: payroll.WageHourly,
	}))

	_, err := e.run(t, "recompute", "202503")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err := e.run(t, "show", "202503")
	require.NoError(t, err)
	assert.Contains(t, out, "no records")

	out, err = e.run(t, "--format", "json", "recompute", "202503", "--lenient")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var batch api.BatchDTO
	require.NoError(t, json.Unmarshal([]byte(out), &batch), out)
	assert.Len(t, batch.Records, 2)
	require.Len(t, batch.Failures, 1)
	assert.Equal(t, "broken", batch.Failures[0].StaffID)
}

func TestRecompute_InvalidMonth(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run(t, "recompute", "2025-03")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// =============================================================================
// POLICY / STAFF
// =============================================================================

func TestPolicy_ApplyAndShow(t *testing.T) {
	e := newCLIEnv(t)
	e.seed(t)

	out, err := e.run(t, "policy", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "closing_day: 25")

	out, err = e.run(t, "--format", "json", "policy", "show")
	require.NoError(t, err)
	var doc factory.PolicyDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "0.006", doc.EmploymentInsuranceRate)

	_, err = e.run(t, "policy", "apply", "-f", e.writeFile(t, "bad.json", `{"special_rate": "0.5"}`))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStaff_ImportAndList(t *testing.T) {
	e := newCLIEnv(t)
	e.seed(t)

	out, err := e.run(t, "--format", "json", "staff", "list")
	require.NoError(t, err)
	var docs []factory.StaffDocument
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 2)
	assert.Equal(t, "alice", docs[0].ID)

	_, err = e.run(t, "staff", "import", "-f", e.writeFile(t, "bad.yaml", "staff:\n  - id: x\n    wage_type: hourly\n"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	staff, err := e.store(t).ListStaff(context.Background())
	require.NoError(t, err)
	assert.Len(t, staff, 2)
}

// =============================================================================
// CHECK-PUNCHES
// =============================================================================

func TestCheckPunches(t *testing.T) {
	// GIVEN: bob checked in on 2025-03-10 and never checked out
	// WHEN: payrollctl check-punches --date 2025-03-10
	// THEN: One missing_checkout anomaly and exit code 1

	e := newCLIEnv(t)
	e.seed(t, append(aliceShift, punchAt("b1", "bob", payroll.DirectionIn, at(10, 9, 0)))...)

	out, err := e.run(t, "--format", "json", "check-punches", "--date", "2025-03-10")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var anomalies []api.AnomalyDTO
	require.NoError(t, json.Unmarshal([]byte(out), &anomalies), out)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "bob", anomalies[0].StaffID)
	assert.Equal(t, "missing_checkout", anomalies[0].Kind)

	out, err = e.run(t, "check-punches", "--date", "2025-03-09")
	require.NoError(t, err)
	assert.Contains(t, out, "no anomalies")
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
