/*
store.go - Persistence interfaces for punches, staff, policy and records

PURPOSE:
  Defines the boundary between the engine and the database. The engine
  only needs reads (punches, staff, policy) and one write (record
  upsert); the attendance package adds the punch write path.

KEY INTERFACES:
  PunchReader: Ordered punch fetch for one staff, half-open range
  PunchStore:  Punch writes, idempotency lookup, cancel audit
  StaffStore:  Staff profiles
  PolicyStore: The single active policy snapshot
  RecordStore: Payroll record upsert keyed by (staff, year-month)
  TxStore:     All of the above plus WithTx for atomic writes

PUNCH IDEMPOTENCY:
  A punch may carry an idempotency key. Stores reject a second punch
  with the same key for the same staff with ErrDuplicateIdempotencyKey.

CANCEL AUDIT:
  Removing a punch always goes with an appended CancelEntry inside the
  same transaction. Cancel entries are never updated or deleted.

RECORD UPSERT:
  UpsertRecord inserts or overwrites the row for (StaffID, YearMonth)
  and returns it with its stable ID.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL via pgx
  - payroll/store/memory.go: In-memory for tests and dev

SEE ALSO:
  - service.go: Uses TxStore
  - attendance/recorder.go: Uses PunchStore
*/
package payroll

import (
	"context"
	"time"
)

// =============================================================================
// PUNCHES
// =============================================================================

// PunchReader is what the aggregator needs.
type PunchReader interface {
	// FetchPunches returns punches for staff with from <= Timestamp < to,
	// ordered by Timestamp ascending.
	FetchPunches(ctx context.Context, staffID StaffID, from, to time.Time) ([]PunchEvent, error)
}

// PunchStore adds the write path used by attendance.
type PunchStore interface {
	PunchReader

	// AppendPunch persists a punch. Returns ErrDuplicateIdempotencyKey when
	// the staff already has a punch with the same non-empty key.
	AppendPunch(ctx context.Context, ev PunchEvent) error

	// FindPunchByKey looks up a punch by idempotency key.
	FindPunchByKey(ctx context.Context, staffID StaffID, key string) (PunchEvent, bool, error)

	// LastPunch returns the most recent punch for staff.
	LastPunch(ctx context.Context, staffID StaffID) (PunchEvent, bool, error)

	// FetchAllPunches returns punches of every staff in [from, to), ordered
	// by staff then timestamp.
	FetchAllPunches(ctx context.Context, from, to time.Time) ([]PunchEvent, error)

	// CancelPunch removes the punch and records entry, atomically.
	CancelPunch(ctx context.Context, entry CancelEntry) error

	// ListCancels returns the audit trail for staff, oldest first.
	ListCancels(ctx context.Context, staffID StaffID) ([]CancelEntry, error)
}

// CancelEntry is the append-only audit row written when a punch is removed.
type CancelEntry struct {
	ID         string
	StaffID    StaffID
	PunchID    string
	Direction  Direction
	PunchedAt  time.Time
	CanceledBy string
	CanceledAt time.Time
}

// =============================================================================
// STAFF, POLICY, RECORDS
// =============================================================================

// StaffStore reads and writes staff profiles.
type StaffStore interface {
	GetStaff(ctx context.Context, id StaffID) (StaffProfile, error)
	ListStaff(ctx context.Context) ([]StaffProfile, error)
	SaveStaff(ctx context.Context, s StaffProfile) error
}

// PolicyStore holds the single active policy.
type PolicyStore interface {
	// CurrentPolicy returns the stored policy, or DefaultPolicy() when none
	// has been saved.
	CurrentPolicy(ctx context.Context) (Policy, error)
	SavePolicy(ctx context.Context, p Policy) error
}

// RecordStore persists payroll records.
type RecordStore interface {
	UpsertRecord(ctx context.Context, r Record) (Record, error)
	GetRecord(ctx context.Context, staffID StaffID, yearMonth string) (Record, error)
	ListRecords(ctx context.Context, yearMonth string) ([]Record, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

// Store is every capability together.
type Store interface {
	PunchStore
	StaffStore
	PolicyStore
	RecordStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
