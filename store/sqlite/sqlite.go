/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements payroll.TxStore (punches, cancel audit, staff, policy,
  payroll records) on SQLite. store/postgres implements the same
  contract on PostgreSQL; the SQL differs only in dialect.

KEY TABLES:
  staff:           Staff profiles (wage, deductions, retirement)
  punches:         Check-in / check-out events
  cancel_logs:     Append-only audit of removed punches
  payroll_policy:  Single-row active policy
  special_ranges:  Named special-rate date ranges of the policy
  payroll_records: One row per (staff_id, year_month)

CONSTRAINTS:
  - idx_punches_staff_key: one punch per (staff_id, idempotency_key)
  - payroll_records UNIQUE(staff_id, year_month): upsert target
  - payroll_policy CHECK(id = 1): at most one policy row

TIME STORAGE:
  Punch and audit instants are stored as UTC unix nanoseconds so range
  scans and ordering are exact. Period bounds are RFC3339 text.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for
  the whole transaction and every call inside it runs on the *sql.Tx.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := payroll.NewService(store, logger)

SEE ALSO:
  - payroll/store.go: Interface definitions
  - store/postgres/postgres.go: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Store implements payroll.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS staff (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		wage_type TEXT NOT NULL,
		hourly_rate TEXT,
		monthly_salary TEXT,
		deduct_method TEXT NOT NULL DEFAULT 'no_deduct',
		insured INTEGER NOT NULL DEFAULT 0,
		resident_tax TEXT NOT NULL DEFAULT '0',
		withholding_tax TEXT NOT NULL DEFAULT '0',
		health_insurance TEXT NOT NULL DEFAULT '0',
		pension TEXT NOT NULL DEFAULT '0',
		commute_allowance TEXT NOT NULL DEFAULT '0',
		retired INTEGER NOT NULL DEFAULT 0,
		retired_on TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS punches (
		id TEXT PRIMARY KEY,
		staff_id TEXT NOT NULL,
		direction TEXT NOT NULL CHECK (direction IN ('in', 'out')),
		punched_at INTEGER NOT NULL,
		device_at INTEGER,
		idempotency_key TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_punches_staff_time
		ON punches(staff_id, punched_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_punches_staff_key
		ON punches(staff_id, idempotency_key) WHERE idempotency_key IS NOT NULL;

	CREATE TABLE IF NOT EXISTS cancel_logs (
		id TEXT PRIMARY KEY,
		staff_id TEXT NOT NULL,
		punch_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		punched_at INTEGER NOT NULL,
		canceled_by TEXT NOT NULL DEFAULT '',
		canceled_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cancel_logs_staff
		ON cancel_logs(staff_id, canceled_at);

	CREATE TABLE IF NOT EXISTS payroll_policy (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		closing_day INTEGER NOT NULL,
		special_rate TEXT NOT NULL,
		employment_insurance_rate TEXT NOT NULL,
		lunch_start TEXT NOT NULL,
		lunch_end TEXT NOT NULL,
		weekly_holidays TEXT NOT NULL DEFAULT '[]',
		worktime_rule TEXT NOT NULL,
		include_commute INTEGER NOT NULL DEFAULT 1,
		daily_hours TEXT NOT NULL,
		timezone TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS special_ranges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payroll_records (
		id TEXT PRIMARY KEY,
		staff_id TEXT NOT NULL,
		year_month TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		normal_ns INTEGER NOT NULL,
		special_ns INTEGER NOT NULL,
		holiday_ns INTEGER NOT NULL,
		total_ns INTEGER NOT NULL,
		normal_hours TEXT NOT NULL,
		special_hours TEXT NOT NULL,
		holiday_hours TEXT NOT NULL,
		total_hours TEXT NOT NULL,
		days_worked INTEGER NOT NULL,
		base_pay INTEGER NOT NULL,
		special_pay INTEGER NOT NULL,
		holiday_pay INTEGER NOT NULL,
		commute_allowance INTEGER NOT NULL,
		gross_pay INTEGER NOT NULL,
		employment_insurance INTEGER NOT NULL,
		health_insurance INTEGER NOT NULL,
		pension INTEGER NOT NULL,
		resident_tax INTEGER NOT NULL,
		withholding_tax INTEGER NOT NULL,
		net_pay INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (staff_id, year_month)
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_records_month
		ON payroll_records(year_month);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PUNCHES (payroll.PunchStore)
// =============================================================================

const punchColumns = `id, staff_id, direction, punched_at, device_at, idempotency_key`

func (s *Store) FetchPunches(ctx context.Context, staffID payroll.StaffID, from, to time.Time) ([]payroll.PunchEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fetchPunches(ctx, s.db, staffID, from, to)
}

func fetchPunches(ctx context.Context, q querier, staffID payroll.StaffID, from, to time.Time) ([]payroll.PunchEvent, error) {
	return queryPunches(ctx, q, `
		SELECT `+punchColumns+`
		FROM punches
		WHERE staff_id = ? AND punched_at >= ? AND punched_at < ?
		ORDER BY punched_at ASC, created_at ASC
	`, string(staffID), from.UnixNano(), to.UnixNano())
}

func (s *Store) AppendPunch(ctx context.Context, ev payroll.PunchEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendPunch(ctx, s.db, ev)
}

func appendPunch(ctx context.Context, q querier, ev payroll.PunchEvent) error {
	var device sql.NullInt64
	if ev.DeviceTimestamp != nil {
		device = sql.NullInt64{Int64: ev.DeviceTimestamp.UnixNano(), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO punches (id, staff_id, direction, punched_at, device_at, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID,
		string(ev.StaffID),
		string(ev.Direction),
		ev.Timestamp.UnixNano(),
		device,
		nullString(ev.IdempotencyKey),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return payroll.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append punch: %w", err)
	}
	return nil
}

func (s *Store) FindPunchByKey(ctx context.Context, staffID payroll.StaffID, key string) (payroll.PunchEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findPunchByKey(ctx, s.db, staffID, key)
}

func findPunchByKey(ctx context.Context, q querier, staffID payroll.StaffID, key string) (payroll.PunchEvent, bool, error) {
	evs, err := queryPunches(ctx, q, `
		SELECT `+punchColumns+` FROM punches WHERE staff_id = ? AND idempotency_key = ?
	`, string(staffID), key)
	if err != nil || len(evs) == 0 {
		return payroll.PunchEvent{}, false, err
	}
	return evs[0], true, nil
}

func (s *Store) LastPunch(ctx context.Context, staffID payroll.StaffID) (payroll.PunchEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastPunch(ctx, s.db, staffID)
}

func lastPunch(ctx context.Context, q querier, staffID payroll.StaffID) (payroll.PunchEvent, bool, error) {
	evs, err := queryPunches(ctx, q, `
		SELECT `+punchColumns+` FROM punches WHERE staff_id = ?
		ORDER BY punched_at DESC, created_at DESC LIMIT 1
	`, string(staffID))
	if err != nil || len(evs) == 0 {
		return payroll.PunchEvent{}, false, err
	}
	return evs[0], true, nil
}

func (s *Store) FetchAllPunches(ctx context.Context, from, to time.Time) ([]payroll.PunchEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fetchAllPunches(ctx, s.db, from, to)
}

func fetchAllPunches(ctx context.Context, q querier, from, to time.Time) ([]payroll.PunchEvent, error) {
	return queryPunches(ctx, q, `
		SELECT `+punchColumns+`
		FROM punches
		WHERE punched_at >= ? AND punched_at < ?
		ORDER BY staff_id ASC, punched_at ASC, created_at ASC
	`, from.UnixNano(), to.UnixNano())
}

// CancelPunch deletes the punch and writes the audit row in one transaction.
func (s *Store) CancelPunch(ctx context.Context, entry payroll.CancelEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := cancelPunch(ctx, sqlTx, entry); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func cancelPunch(ctx context.Context, q querier, entry payroll.CancelEntry) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM punches WHERE id = ? AND staff_id = ?`,
		entry.PunchID, string(entry.StaffID)); err != nil {
		return fmt.Errorf("failed to delete punch: %w", err)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO cancel_logs (id, staff_id, punch_id, direction, punched_at, canceled_by, canceled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		string(entry.StaffID),
		entry.PunchID,
		string(entry.Direction),
		entry.PunchedAt.UnixNano(),
		entry.CanceledBy,
		entry.CanceledAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cancel log: %w", err)
	}
	return nil
}

func (s *Store) ListCancels(ctx context.Context, staffID payroll.StaffID) ([]payroll.CancelEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCancels(ctx, s.db, staffID)
}

func listCancels(ctx context.Context, q querier, staffID payroll.StaffID) ([]payroll.CancelEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, staff_id, punch_id, direction, punched_at, canceled_by, canceled_at
		FROM cancel_logs WHERE staff_id = ?
		ORDER BY canceled_at ASC
	`, string(staffID))
	if err != nil {
		return nil, fmt.Errorf("failed to query cancel logs: %w", err)
	}
	defer rows.Close()

	var entries []payroll.CancelEntry
	for rows.Next() {
		var (
			e                   payroll.CancelEntry
			punchedAt, canceled int64
		)
		if err := rows.Scan(&e.ID, &e.StaffID, &e.PunchID, &e.Direction, &punchedAt, &e.CanceledBy, &canceled); err != nil {
			return nil, fmt.Errorf("failed to scan cancel log: %w", err)
		}
		e.PunchedAt = fromNanos(punchedAt)
		e.CanceledAt = fromNanos(canceled)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func queryPunches(ctx context.Context, q querier, query string, args ...any) ([]payroll.PunchEvent, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query punches: %w", err)
	}
	defer rows.Close()

	var events []payroll.PunchEvent
	for rows.Next() {
		var (
			ev        payroll.PunchEvent
			punchedAt int64
			deviceAt  sql.NullInt64
			key       sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.StaffID, &ev.Direction, &punchedAt, &deviceAt, &key); err != nil {
			return nil, fmt.Errorf("failed to scan punch: %w", err)
		}
		ev.Timestamp = fromNanos(punchedAt)
		if deviceAt.Valid {
			t := fromNanos(deviceAt.Int64)
			ev.DeviceTimestamp = &t
		}
		ev.IdempotencyKey = key.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// =============================================================================
// STAFF (payroll.StaffStore)
// =============================================================================

const staffColumns = `id, name, wage_type, hourly_rate, monthly_salary, deduct_method, insured,
	resident_tax, withholding_tax, health_insurance, pension, commute_allowance, retired, retired_on`

func (s *Store) GetStaff(ctx context.Context, id payroll.StaffID) (payroll.StaffProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getStaff(ctx, s.db, id)
}

func getStaff(ctx context.Context, q querier, id payroll.StaffID) (payroll.StaffProfile, error) {
	staff, err := queryStaff(ctx, q, `SELECT `+staffColumns+` FROM staff WHERE id = ?`, string(id))
	if err != nil {
		return payroll.StaffProfile{}, err
	}
	if len(staff) == 0 {
		return payroll.StaffProfile{}, fmt.Errorf("%w: %s", payroll.ErrStaffNotFound, id)
	}
	return staff[0], nil
}

func (s *Store) ListStaff(ctx context.Context) ([]payroll.StaffProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryStaff(ctx, s.db, `SELECT `+staffColumns+` FROM staff ORDER BY id`)
}

func (s *Store) SaveStaff(ctx context.Context, st payroll.StaffProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveStaff(ctx, s.db, st)
}

func saveStaff(ctx context.Context, q querier, st payroll.StaffProfile) error {
	var retiredOn sql.NullString
	if st.RetiredOn != nil {
		retiredOn = sql.NullString{String: st.RetiredOn.UTC().Format(time.RFC3339), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO staff (`+staffColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			wage_type = excluded.wage_type,
			hourly_rate = excluded.hourly_rate,
			monthly_salary = excluded.monthly_salary,
			deduct_method = excluded.deduct_method,
			insured = excluded.insured,
			resident_tax = excluded.resident_tax,
			withholding_tax = excluded.withholding_tax,
			health_insurance = excluded.health_insurance,
			pension = excluded.pension,
			commute_allowance = excluded.commute_allowance,
			retired = excluded.retired,
			retired_on = excluded.retired_on,
			updated_at = excluded.updated_at
	`,
		string(st.ID), st.Name, string(st.WageType),
		st.HourlyRate, st.MonthlySalary, string(st.DeductMethod), st.Insured,
		st.ResidentTax.String(), st.WithholdingTax.String(), st.HealthInsurance.String(),
		st.Pension.String(), st.CommuteAllowance.String(),
		st.Retired, retiredOn,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save staff: %w", err)
	}
	return nil
}

func queryStaff(ctx context.Context, q querier, query string, args ...any) ([]payroll.StaffProfile, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query staff: %w", err)
	}
	defer rows.Close()

	var result []payroll.StaffProfile
	for rows.Next() {
		var (
			st        payroll.StaffProfile
			retiredOn sql.NullString
		)
		err := rows.Scan(
			&st.ID, &st.Name, &st.WageType, &st.HourlyRate, &st.MonthlySalary, &st.DeductMethod, &st.Insured,
			&st.ResidentTax, &st.WithholdingTax, &st.HealthInsurance, &st.Pension, &st.CommuteAllowance,
			&st.Retired, &retiredOn,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}
		if retiredOn.Valid {
			t, _ := time.Parse(time.RFC3339, retiredOn.String)
			st.RetiredOn = &t
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

// =============================================================================
// POLICY (payroll.PolicyStore)
// =============================================================================

func (s *Store) CurrentPolicy(ctx context.Context) (payroll.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return currentPolicy(ctx, s.db)
}

func currentPolicy(ctx context.Context, q querier) (payroll.Policy, error) {
	var (
		p                                        payroll.Policy
		specialRate, eiRate, dailyHours          string
		lunchStart, lunchEnd, holidays, tz, rule string
	)
	err := q.QueryRowContext(ctx, `
		SELECT closing_day, special_rate, employment_insurance_rate, lunch_start, lunch_end,
		       weekly_holidays, worktime_rule, include_commute, daily_hours, timezone
		FROM payroll_policy WHERE id = 1
	`).Scan(&p.ClosingDay, &specialRate, &eiRate, &lunchStart, &lunchEnd,
		&holidays, &rule, &p.IncludeCommuteInGross, &dailyHours, &tz)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.DefaultPolicy(), nil
	}
	if err != nil {
		return payroll.Policy{}, fmt.Errorf("failed to load policy: %w", err)
	}

	p.WorktimeRule = payroll.WorktimeRule(rule)
	p.SpecialRate, _ = decimal.NewFromString(specialRate)
	p.EmploymentInsuranceRate, _ = decimal.NewFromString(eiRate)
	p.DailyHours, _ = decimal.NewFromString(dailyHours)
	p.LunchStart, _ = civil.ParseTime(lunchStart)
	p.LunchEnd, _ = civil.ParseTime(lunchEnd)
	if err := json.Unmarshal([]byte(holidays), &p.WeeklyHolidays); err != nil {
		return payroll.Policy{}, fmt.Errorf("failed to decode weekly holidays: %w", err)
	}
	p.Location = loadLocation(tz)

	rows, err := q.QueryContext(ctx, `SELECT name, start_date, end_date FROM special_ranges ORDER BY start_date, id`)
	if err != nil {
		return payroll.Policy{}, fmt.Errorf("failed to load special ranges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, start, end string
		if err := rows.Scan(&name, &start, &end); err != nil {
			return payroll.Policy{}, fmt.Errorf("failed to scan special range: %w", err)
		}
		r := payroll.SpecialRange{Name: name}
		r.Start, _ = civil.ParseDate(start)
		r.End, _ = civil.ParseDate(end)
		p.SpecialRanges = append(p.SpecialRanges, r)
	}
	return p, rows.Err()
}

// SavePolicy replaces the active policy and its special ranges atomically.
func (s *Store) SavePolicy(ctx context.Context, p payroll.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := savePolicy(ctx, sqlTx, p); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func savePolicy(ctx context.Context, q querier, p payroll.Policy) error {
	holidays, _ := json.Marshal(append([]int{}, p.WeeklyHolidays...))

	_, err := q.ExecContext(ctx, `
		INSERT INTO payroll_policy
		(id, closing_day, special_rate, employment_insurance_rate, lunch_start, lunch_end,
		 weekly_holidays, worktime_rule, include_commute, daily_hours, timezone, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			closing_day = excluded.closing_day,
			special_rate = excluded.special_rate,
			employment_insurance_rate = excluded.employment_insurance_rate,
			lunch_start = excluded.lunch_start,
			lunch_end = excluded.lunch_end,
			weekly_holidays = excluded.weekly_holidays,
			worktime_rule = excluded.worktime_rule,
			include_commute = excluded.include_commute,
			daily_hours = excluded.daily_hours,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at
	`,
		p.ClosingDay,
		p.SpecialRate.String(),
		p.EmploymentInsuranceRate.String(),
		p.LunchStart.String(),
		p.LunchEnd.String(),
		string(holidays),
		string(p.WorktimeRule),
		p.IncludeCommuteInGross,
		p.DailyHours.String(),
		p.Loc().String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM special_ranges`); err != nil {
		return fmt.Errorf("failed to clear special ranges: %w", err)
	}
	for _, r := range p.SpecialRanges {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO special_ranges (name, start_date, end_date) VALUES (?, ?, ?)`,
			r.Name, r.Start.String(), r.End.String(),
		); err != nil {
			return fmt.Errorf("failed to save special range %q: %w", r.Name, err)
		}
	}
	return nil
}

// =============================================================================
// PAYROLL RECORDS (payroll.RecordStore)
// =============================================================================

const recordColumns = `id, staff_id, year_month, period_start, period_end,
	normal_ns, special_ns, holiday_ns, total_ns,
	normal_hours, special_hours, holiday_hours, total_hours, days_worked,
	base_pay, special_pay, holiday_pay, commute_allowance, gross_pay,
	employment_insurance, health_insurance, pension, resident_tax, withholding_tax, net_pay`

func (s *Store) UpsertRecord(ctx context.Context, r payroll.Record) (payroll.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertRecord(ctx, s.db, r)
}

// upsertRecord inserts or overwrites the (staff_id, year_month) row. The
// row's id survives updates and is returned.
func upsertRecord(ctx context.Context, q querier, r payroll.Record) (payroll.Record, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339)

	err := q.QueryRowContext(ctx, `
		INSERT INTO payroll_records (`+recordColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(staff_id, year_month) DO UPDATE SET
			period_start = excluded.period_start,
			period_end = excluded.period_end,
			normal_ns = excluded.normal_ns,
			special_ns = excluded.special_ns,
			holiday_ns = excluded.holiday_ns,
			total_ns = excluded.total_ns,
			normal_hours = excluded.normal_hours,
			special_hours = excluded.special_hours,
			holiday_hours = excluded.holiday_hours,
			total_hours = excluded.total_hours,
			days_worked = excluded.days_worked,
			base_pay = excluded.base_pay,
			special_pay = excluded.special_pay,
			holiday_pay = excluded.holiday_pay,
			commute_allowance = excluded.commute_allowance,
			gross_pay = excluded.gross_pay,
			employment_insurance = excluded.employment_insurance,
			health_insurance = excluded.health_insurance,
			pension = excluded.pension,
			resident_tax = excluded.resident_tax,
			withholding_tax = excluded.withholding_tax,
			net_pay = excluded.net_pay,
			updated_at = excluded.updated_at
		RETURNING id
	`,
		r.ID, string(r.StaffID), r.YearMonth,
		r.PeriodStart.Format(time.RFC3339), r.PeriodEnd.Format(time.RFC3339),
		int64(r.NormalDuration), int64(r.SpecialDuration), int64(r.HolidayDuration), int64(r.TotalDuration),
		r.NormalHours.String(), r.SpecialHours.String(), r.HolidayHours.String(), r.TotalHours.String(),
		r.DaysWorked,
		r.BasePay, r.SpecialPay, r.HolidayPay, r.CommuteAllowance, r.GrossPay,
		r.EmploymentInsurance, r.HealthInsurance, r.Pension, r.ResidentTax, r.WithholdingTax, r.NetPay,
		now, now,
	).Scan(&r.ID)
	if err != nil {
		return payroll.Record{}, fmt.Errorf("failed to upsert payroll record: %w", err)
	}
	return r, nil
}

func (s *Store) GetRecord(ctx context.Context, staffID payroll.StaffID, yearMonth string) (payroll.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRecord(ctx, s.db, staffID, yearMonth)
}

func getRecord(ctx context.Context, q querier, staffID payroll.StaffID, yearMonth string) (payroll.Record, error) {
	recs, err := queryRecords(ctx, q,
		`SELECT `+recordColumns+` FROM payroll_records WHERE staff_id = ? AND year_month = ?`,
		string(staffID), yearMonth)
	if err != nil {
		return payroll.Record{}, err
	}
	if len(recs) == 0 {
		return payroll.Record{}, fmt.Errorf("%w: %s %s", payroll.ErrRecordNotFound, staffID, yearMonth)
	}
	return recs[0], nil
}

func (s *Store) ListRecords(ctx context.Context, yearMonth string) ([]payroll.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRecords(ctx, s.db,
		`SELECT `+recordColumns+` FROM payroll_records WHERE year_month = ? ORDER BY staff_id`,
		yearMonth)
}

func queryRecords(ctx context.Context, q querier, query string, args ...any) ([]payroll.Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payroll records: %w", err)
	}
	defer rows.Close()

	var result []payroll.Record
	for rows.Next() {
		var (
			r                                  payroll.Record
			start, end                         string
			normalNs, specialNs, holidayNs     int64
			totalNs                            int64
			normalH, specialH, holidayH, total string
		)
		err := rows.Scan(
			&r.ID, &r.StaffID, &r.YearMonth, &start, &end,
			&normalNs, &specialNs, &holidayNs, &totalNs,
			&normalH, &specialH, &holidayH, &total, &r.DaysWorked,
			&r.BasePay, &r.SpecialPay, &r.HolidayPay, &r.CommuteAllowance, &r.GrossPay,
			&r.EmploymentInsurance, &r.HealthInsurance, &r.Pension, &r.ResidentTax, &r.WithholdingTax, &r.NetPay,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payroll record: %w", err)
		}
		r.PeriodStart, _ = time.Parse(time.RFC3339, start)
		r.PeriodEnd, _ = time.Parse(time.RFC3339, end)
		r.NormalDuration = time.Duration(normalNs)
		r.SpecialDuration = time.Duration(specialNs)
		r.HolidayDuration = time.Duration(holidayNs)
		r.TotalDuration = time.Duration(totalNs)
		r.NormalHours, _ = decimal.NewFromString(normalH)
		r.SpecialHours, _ = decimal.NewFromString(specialH)
		r.HolidayHours, _ = decimal.NewFromString(holidayH)
		r.TotalHours, _ = decimal.NewFromString(total)
		result = append(result, r)
	}
	return result, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (payroll.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store payroll.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) FetchPunches(ctx context.Context, staffID payroll.StaffID, from, to time.Time) ([]payroll.PunchEvent, error) {
	return fetchPunches(ctx, ts.tx, staffID, from, to)
}

func (ts *txStore) AppendPunch(ctx context.Context, ev payroll.PunchEvent) error {
	return appendPunch(ctx, ts.tx, ev)
}

func (ts *txStore) FindPunchByKey(ctx context.Context, staffID payroll.StaffID, key string) (payroll.PunchEvent, bool, error) {
	return findPunchByKey(ctx, ts.tx, staffID, key)
}

func (ts *txStore) LastPunch(ctx context.Context, staffID payroll.StaffID) (payroll.PunchEvent, bool, error) {
	return lastPunch(ctx, ts.tx, staffID)
}

func (ts *txStore) FetchAllPunches(ctx context.Context, from, to time.Time) ([]payroll.PunchEvent, error) {
	return fetchAllPunches(ctx, ts.tx, from, to)
}

func (ts *txStore) CancelPunch(ctx context.Context, entry payroll.CancelEntry) error {
	return cancelPunch(ctx, ts.tx, entry)
}

func (ts *txStore) ListCancels(ctx context.Context, staffID payroll.StaffID) ([]payroll.CancelEntry, error) {
	return listCancels(ctx, ts.tx, staffID)
}

func (ts *txStore) GetStaff(ctx context.Context, id payroll.StaffID) (payroll.StaffProfile, error) {
	return getStaff(ctx, ts.tx, id)
}

func (ts *txStore) ListStaff(ctx context.Context) ([]payroll.StaffProfile, error) {
	return queryStaff(ctx, ts.tx, `SELECT `+staffColumns+` FROM staff ORDER BY id`)
}

func (ts *txStore) SaveStaff(ctx context.Context, st payroll.StaffProfile) error {
	return saveStaff(ctx, ts.tx, st)
}

func (ts *txStore) CurrentPolicy(ctx context.Context) (payroll.Policy, error) {
	return currentPolicy(ctx, ts.tx)
}

func (ts *txStore) SavePolicy(ctx context.Context, p payroll.Policy) error {
	return savePolicy(ctx, ts.tx, p)
}

func (ts *txStore) UpsertRecord(ctx context.Context, r payroll.Record) (payroll.Record, error) {
	return upsertRecord(ctx, ts.tx, r)
}

func (ts *txStore) GetRecord(ctx context.Context, staffID payroll.StaffID, yearMonth string) (payroll.Record, error) {
	return getRecord(ctx, ts.tx, staffID, yearMonth)
}

func (ts *txStore) ListRecords(ctx context.Context, yearMonth string) ([]payroll.Record, error) {
	return queryRecords(ctx, ts.tx,
		`SELECT `+recordColumns+` FROM payroll_records WHERE year_month = ? ORDER BY staff_id`,
		yearMonth)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"payroll_records", "cancel_logs", "punches", "special_ranges", "payroll_policy", "staff"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return payroll.DefaultLocation()
	}
	return loc
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
