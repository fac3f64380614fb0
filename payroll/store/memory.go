// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements payroll.Store in process memory.
type Memory struct {
	mu sync.RWMutex
	state
}

type punchKey struct {
	StaffID payroll.StaffID
	Key     string
}

type recordKey struct {
	StaffID   payroll.StaffID
	YearMonth string
}

type state struct {
	staff   map[payroll.StaffID]payroll.StaffProfile
	punches map[payroll.StaffID][]payroll.PunchEvent
	keys    map[punchKey]string
	cancels []payroll.CancelEntry
	policy  *payroll.Policy
	records map[recordKey]payroll.Record
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{state: newState()}
}

// Reset clears all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = newState()
	return nil
}

func newState() state {
	return state{
		staff:   make(map[payroll.StaffID]payroll.StaffProfile),
		punches: make(map[payroll.StaffID][]payroll.PunchEvent),
		keys:    make(map[punchKey]string),
		records: make(map[recordKey]payroll.Record),
	}
}

func (m *Memory) FetchPunches(_ context.Context, staffID payroll.StaffID, from, to time.Time) ([]payroll.PunchEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetchPunches(staffID, from, to), nil
}

func (m *Memory) AppendPunch(_ context.Context, ev payroll.PunchEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendPunch(ev)
}

func (m *Memory) FindPunchByKey(_ context.Context, staffID payroll.StaffID, key string) (payroll.PunchEvent, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.findPunchByKey(staffID, key)
	return ev, ok, nil
}

func (m *Memory) LastPunch(_ context.Context, staffID payroll.StaffID) (payroll.PunchEvent, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.lastPunch(staffID)
	return ev, ok, nil
}

func (m *Memory) FetchAllPunches(_ context.Context, from, to time.Time) ([]payroll.PunchEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetchAllPunches(from, to), nil
}

func (m *Memory) CancelPunch(_ context.Context, entry payroll.CancelEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelPunch(entry)
	return nil
}

func (m *Memory) ListCancels(_ context.Context, staffID payroll.StaffID) ([]payroll.CancelEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCancels(staffID), nil
}

func (m *Memory) GetStaff(_ context.Context, id payroll.StaffID) (payroll.StaffProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getStaff(id)
}

func (m *Memory) ListStaff(_ context.Context) ([]payroll.StaffProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listStaff(), nil
}

func (m *Memory) SaveStaff(_ context.Context, s payroll.StaffProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[s.ID] = s
	return nil
}

func (m *Memory) CurrentPolicy(_ context.Context) (payroll.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentPolicy(), nil
}

func (m *Memory) SavePolicy(_ context.Context, p payroll.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := p.Clone()
	m.policy = &c
	return nil
}

func (m *Memory) UpsertRecord(_ context.Context, r payroll.Record) (payroll.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertRecord(r), nil
}

func (m *Memory) GetRecord(_ context.Context, staffID payroll.StaffID, yearMonth string) (payroll.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRecord(staffID, yearMonth)
}

func (m *Memory) ListRecords(_ context.Context, yearMonth string) ([]payroll.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRecords(yearMonth), nil
}

// =============================================================================
// STATE - Unlocked operations shared by Memory and the tx view
// =============================================================================

func (s *state) fetchPunches(staffID payroll.StaffID, from, to time.Time) []payroll.PunchEvent {
	var result []payroll.PunchEvent
	for _, ev := range s.punches[staffID] {
		if !ev.Timestamp.Before(from) && ev.Timestamp.Before(to) {
			result = append(result, ev)
		}
	}
	return result
}

func (s *state) appendPunch(ev payroll.PunchEvent) error {
	if ev.IdempotencyKey != "" {
		if _, exists := s.keys[punchKey{ev.StaffID, ev.IdempotencyKey}]; exists {
			return payroll.ErrDuplicateIdempotencyKey
		}
	}
	evs := s.punches[ev.StaffID]

	i := sort.Search(len(evs), func(i int) bool {
		return evs[i].Timestamp.After(ev.Timestamp)
	})
	evs = append(evs, payroll.PunchEvent{})
	copy(evs[i+1:], evs[i:])
	evs[i] = ev
	s.punches[ev.StaffID] = evs

	if ev.IdempotencyKey != "" {
		s.keys[punchKey{ev.StaffID, ev.IdempotencyKey}] = ev.ID
	}
	return nil
}

func (s *state) findPunchByKey(staffID payroll.StaffID, key string) (payroll.PunchEvent, bool) {
	id, ok := s.keys[punchKey{staffID, key}]
	if !ok {
		return payroll.PunchEvent{}, false
	}
	for _, ev := range s.punches[staffID] {
		if ev.ID == id {
			return ev, true
		}
	}
	return payroll.PunchEvent{}, false
}

func (s *state) lastPunch(staffID payroll.StaffID) (payroll.PunchEvent, bool) {
	evs := s.punches[staffID]
	if len(evs) == 0 {
		return payroll.PunchEvent{}, false
	}
	return evs[len(evs)-1], true
}

func (s *state) fetchAllPunches(from, to time.Time) []payroll.PunchEvent {
	ids := make([]payroll.StaffID, 0, len(s.punches))
	for id := range s.punches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var result []payroll.PunchEvent
	for _, id := range ids {
		result = append(result, s.fetchPunches(id, from, to)...)
	}
	return result
}

func (s *state) cancelPunch(entry payroll.CancelEntry) {
	evs := s.punches[entry.StaffID]
	for i, ev := range evs {
		if ev.ID != entry.PunchID {
			continue
		}
		s.punches[entry.StaffID] = append(evs[:i:i], evs[i+1:]...)
		if ev.IdempotencyKey != "" {
			delete(s.keys, punchKey{ev.StaffID, ev.IdempotencyKey})
		}
		break
	}
	s.cancels = append(s.cancels, entry)
}

func (s *state) listCancels(staffID payroll.StaffID) []payroll.CancelEntry {
	var result []payroll.CancelEntry
	for _, c := range s.cancels {
		if c.StaffID == staffID {
			result = append(result, c)
		}
	}
	return result
}

func (s *state) getStaff(id payroll.StaffID) (payroll.StaffProfile, error) {
	st, ok := s.staff[id]
	if !ok {
		return payroll.StaffProfile{}, payroll.ErrStaffNotFound
	}
	return st, nil
}

func (s *state) listStaff() []payroll.StaffProfile {
	result := make([]payroll.StaffProfile, 0, len(s.staff))
	for _, st := range s.staff {
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *state) currentPolicy() payroll.Policy {
	if s.policy == nil {
		return payroll.DefaultPolicy()
	}
	return s.policy.Clone()
}

func (s *state) upsertRecord(r payroll.Record) payroll.Record {
	k := recordKey{r.StaffID, r.YearMonth}
	if existing, ok := s.records[k]; ok {
		r.ID = existing.ID
	} else if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.records[k] = r
	return r
}

func (s *state) getRecord(staffID payroll.StaffID, yearMonth string) (payroll.Record, error) {
	r, ok := s.records[recordKey{staffID, yearMonth}]
	if !ok {
		return payroll.Record{}, payroll.ErrRecordNotFound
	}
	return r, nil
}

func (s *state) listRecords(yearMonth string) []payroll.Record {
	var result []payroll.Record
	for k, r := range s.records {
		if k.YearMonth == yearMonth {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StaffID < result[j].StaffID })
	return result
}

func (s *state) clone() state {
	c := newState()
	for k, v := range s.staff {
		c.staff[k] = v
	}
	for k, v := range s.punches {
		c.punches[k] = append([]payroll.PunchEvent(nil), v...)
	}
	for k, v := range s.keys {
		c.keys[k] = v
	}
	c.cancels = append([]payroll.CancelEntry(nil), s.cancels...)
	if s.policy != nil {
		p := s.policy.Clone()
		c.policy = &p
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	return c
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

// NewTxMemory returns an empty transactional store.
func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(payroll.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.state.clone()
	if err := fn(&txMemoryView{s: &tm.state}); err != nil {
		tm.state = snapshot
		return err
	}
	return nil
}

// txMemoryView runs against the parent's state while the parent lock is held.
type txMemoryView struct {
	s *state
}

func (tv *txMemoryView) FetchPunches(_ context.Context, staffID payroll.StaffID, from, to time.Time) ([]payroll.PunchEvent, error) {
	return tv.s.fetchPunches(staffID, from, to), nil
}

func (tv *txMemoryView) AppendPunch(_ context.Context, ev payroll.PunchEvent) error {
	return tv.s.appendPunch(ev)
}

func (tv *txMemoryView) FindPunchByKey(_ context.Context, staffID payroll.StaffID, key string) (payroll.PunchEvent, bool, error) {
	ev, ok := tv.s.findPunchByKey(staffID, key)
	return ev, ok, nil
}

func (tv *txMemoryView) LastPunch(_ context.Context, staffID payroll.StaffID) (payroll.PunchEvent, bool, error) {
	ev, ok := tv.s.lastPunch(staffID)
	return ev, ok, nil
}

func (tv *txMemoryView) FetchAllPunches(_ context.Context, from, to time.Time) ([]payroll.PunchEvent, error) {
	return tv.s.fetchAllPunches(from, to), nil
}

func (tv *txMemoryView) CancelPunch(_ context.Context, entry payroll.CancelEntry) error {
	tv.s.cancelPunch(entry)
	return nil
}

func (tv *txMemoryView) ListCancels(_ context.Context, staffID payroll.StaffID) ([]payroll.CancelEntry, error) {
	return tv.s.listCancels(staffID), nil
}

func (tv *txMemoryView) GetStaff(_ context.Context, id payroll.StaffID) (payroll.StaffProfile, error) {
	return tv.s.getStaff(id)
}

func (tv *txMemoryView) ListStaff(_ context.Context) ([]payroll.StaffProfile, error) {
	return tv.s.listStaff(), nil
}

func (tv *txMemoryView) SaveStaff(_ context.Context, s payroll.StaffProfile) error {
	tv.s.staff[s.ID] = s
	return nil
}

func (tv *txMemoryView) CurrentPolicy(_ context.Context) (payroll.Policy, error) {
	return tv.s.currentPolicy(), nil
}

func (tv *txMemoryView) SavePolicy(_ context.Context, p payroll.Policy) error {
	c := p.Clone()
	tv.s.policy = &c
	return nil
}

func (tv *txMemoryView) UpsertRecord(_ context.Context, r payroll.Record) (payroll.Record, error) {
	return tv.s.upsertRecord(r), nil
}

func (tv *txMemoryView) GetRecord(_ context.Context, staffID payroll.StaffID, yearMonth string) (payroll.Record, error) {
	return tv.s.getRecord(staffID, yearMonth)
}

func (tv *txMemoryView) ListRecords(_ context.Context, yearMonth string) ([]payroll.Record, error) {
	return tv.s.listRecords(yearMonth), nil
}
