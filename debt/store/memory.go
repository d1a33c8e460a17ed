// Package store provides an in-memory debt.TxStore.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kaza-tracker/obligation-engine/debt"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

type statusKey struct {
	Date     string
	Category debt.Category
}

// state holds the data. Its methods assume the caller holds the lock.
type state struct {
	profile  *debt.Profile
	counts   map[debt.Category]debt.DebtCount
	statuses map[statusKey]debt.DailyStatus
	logs     []debt.LogEntry
	now      func() time.Time
}

func NewMemory() *Memory {
	m := &Memory{now: time.Now}
	m.st = newState(m.now)
	return m
}

func newState(now func() time.Time) *state {
	return &state{
		counts:   make(map[debt.Category]debt.DebtCount),
		statuses: make(map[statusKey]debt.DailyStatus),
		now:      now,
	}
}

func (m *Memory) Initialize(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.seed()
	return nil
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// A panic inside fn also restores the snapshot before propagating.
func (m *Memory) WithTx(_ context.Context, fn func(debt.Store) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	defer func() {
		if p := recover(); p != nil {
			m.st = snapshot
			panic(p)
		}
	}()

	if err = fn(&view{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// =============================================================================
// LOCKED ACCESSORS
// =============================================================================

func (m *Memory) GetProfile(ctx context.Context) (*debt.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetProfile(ctx)
}

func (m *Memory) UpsertProfile(ctx context.Context, patch debt.ProfilePatch) (*debt.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpsertProfile(ctx, patch)
}

func (m *Memory) ReplaceProfile(ctx context.Context, p debt.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ReplaceProfile(ctx, p)
}

func (m *Memory) GetDebtCounts(ctx context.Context) ([]debt.DebtCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetDebtCounts(ctx)
}

func (m *Memory) IncrementDebt(ctx context.Context, category debt.Category, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.IncrementDebt(ctx, category, delta)
}

func (m *Memory) SetDebtCount(ctx context.Context, c debt.DebtCount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SetDebtCount(ctx, c)
}

func (m *Memory) GetDailyStatus(ctx context.Context, date debt.Date, category debt.Category) (*debt.DailyStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetDailyStatus(ctx, date, category)
}

func (m *Memory) GetDailyStatusRange(ctx context.Context, start, end debt.Date) ([]debt.DailyStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetDailyStatusRange(ctx, start, end)
}

func (m *Memory) ListDailyStatus(ctx context.Context) ([]debt.DailyStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListDailyStatus(ctx)
}

func (m *Memory) PutDailyStatus(ctx context.Context, s debt.DailyStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.PutDailyStatus(ctx, s)
}

func (m *Memory) DeleteDailyStatus(ctx context.Context, date debt.Date, category debt.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteDailyStatus(ctx, date, category)
}

func (m *Memory) AppendLog(ctx context.Context, entry debt.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendLog(ctx, entry)
}

func (m *Memory) ListLogs(ctx context.Context, filter debt.LogFilter) ([]debt.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListLogs(ctx, filter)
}

func (m *Memory) LogTotals(ctx context.Context) (map[debt.Category]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.LogTotals(ctx)
}

func (m *Memory) ResetAll(ctx context.Context, includeProfile bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ResetAll(ctx, includeProfile)
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// view is handed to WithTx callbacks. The parent lock is already held.
type view struct {
	st *state
}

func (v *view) GetProfile(ctx context.Context) (*debt.Profile, error) {
	return v.st.GetProfile(ctx)
}

func (v *view) UpsertProfile(ctx context.Context, patch debt.ProfilePatch) (*debt.Profile, error) {
	return v.st.UpsertProfile(ctx, patch)
}

func (v *view) ReplaceProfile(ctx context.Context, p debt.Profile) error {
	return v.st.ReplaceProfile(ctx, p)
}

func (v *view) GetDebtCounts(ctx context.Context) ([]debt.DebtCount, error) {
	return v.st.GetDebtCounts(ctx)
}

func (v *view) IncrementDebt(ctx context.Context, category debt.Category, delta int) error {
	return v.st.IncrementDebt(ctx, category, delta)
}

func (v *view) SetDebtCount(ctx context.Context, c debt.DebtCount) error {
	return v.st.SetDebtCount(ctx, c)
}

func (v *view) GetDailyStatus(ctx context.Context, date debt.Date, category debt.Category) (*debt.DailyStatus, error) {
	return v.st.GetDailyStatus(ctx, date, category)
}

func (v *view) GetDailyStatusRange(ctx context.Context, start, end debt.Date) ([]debt.DailyStatus, error) {
	return v.st.GetDailyStatusRange(ctx, start, end)
}

func (v *view) ListDailyStatus(ctx context.Context) ([]debt.DailyStatus, error) {
	return v.st.ListDailyStatus(ctx)
}

func (v *view) PutDailyStatus(ctx context.Context, s debt.DailyStatus) error {
	return v.st.PutDailyStatus(ctx, s)
}

func (v *view) DeleteDailyStatus(ctx context.Context, date debt.Date, category debt.Category) error {
	return v.st.DeleteDailyStatus(ctx, date, category)
}

func (v *view) AppendLog(ctx context.Context, entry debt.LogEntry) error {
	return v.st.AppendLog(ctx, entry)
}

func (v *view) ListLogs(ctx context.Context, filter debt.LogFilter) ([]debt.LogEntry, error) {
	return v.st.ListLogs(ctx, filter)
}

func (v *view) LogTotals(ctx context.Context) (map[debt.Category]int, error) {
	return v.st.LogTotals(ctx)
}

func (v *view) ResetAll(ctx context.Context, includeProfile bool) error {
	return v.st.ResetAll(ctx, includeProfile)
}

// =============================================================================
// STATE
// =============================================================================

func (s *state) clone() *state {
	c := newState(s.now)
	if s.profile != nil {
		p := *s.profile
		c.profile = &p
	}
	for k, v := range s.counts {
		c.counts[k] = v
	}
	for k, v := range s.statuses {
		c.statuses[k] = v
	}
	c.logs = append([]debt.LogEntry(nil), s.logs...)
	return c
}

func (s *state) seed() {
	now := s.now().UTC()
	for _, c := range debt.AllCategories {
		if _, ok := s.counts[c]; !ok {
			s.counts[c] = debt.DebtCount{Category: c, UpdatedAt: now}
		}
	}
}

func (s *state) GetProfile(_ context.Context) (*debt.Profile, error) {
	if s.profile == nil {
		return nil, nil
	}
	p := *s.profile
	return &p, nil
}

func (s *state) UpsertProfile(_ context.Context, patch debt.ProfilePatch) (*debt.Profile, error) {
	now := s.now().UTC()
	if s.profile == nil {
		s.profile = &debt.Profile{CreatedAt: now}
	}
	patch.Apply(s.profile)
	s.profile.UpdatedAt = now
	p := *s.profile
	return &p, nil
}

func (s *state) ReplaceProfile(_ context.Context, p debt.Profile) error {
	s.profile = &p
	return nil
}

func (s *state) GetDebtCounts(_ context.Context) ([]debt.DebtCount, error) {
	out := make([]debt.DebtCount, 0, len(s.counts))
	for _, c := range debt.AllCategories {
		if row, ok := s.counts[c]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *state) IncrementDebt(_ context.Context, category debt.Category, delta int) error {
	row, ok := s.counts[category]
	if !ok {
		return debt.ErrNotInitialized
	}
	row.Count += delta
	row.UpdatedAt = s.now().UTC()
	s.counts[category] = row
	return nil
}

func (s *state) SetDebtCount(_ context.Context, c debt.DebtCount) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.now().UTC()
	}
	s.counts[c.Category] = c
	return nil
}

func (s *state) GetDailyStatus(_ context.Context, date debt.Date, category debt.Category) (*debt.DailyStatus, error) {
	row, ok := s.statuses[statusKey{Date: date.String(), Category: category}]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *state) GetDailyStatusRange(_ context.Context, start, end debt.Date) ([]debt.DailyStatus, error) {
	var out []debt.DailyStatus
	for _, row := range s.statuses {
		if start.BeforeOrEqual(row.Date) && row.Date.BeforeOrEqual(end) {
			out = append(out, row)
		}
	}
	sortStatuses(out)
	return out, nil
}

func (s *state) ListDailyStatus(_ context.Context) ([]debt.DailyStatus, error) {
	out := make([]debt.DailyStatus, 0, len(s.statuses))
	for _, row := range s.statuses {
		out = append(out, row)
	}
	sortStatuses(out)
	return out, nil
}

func (s *state) PutDailyStatus(_ context.Context, row debt.DailyStatus) error {
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = s.now().UTC()
	}
	s.statuses[statusKey{Date: row.Date.String(), Category: row.Category}] = row
	return nil
}

func (s *state) DeleteDailyStatus(_ context.Context, date debt.Date, category debt.Category) error {
	delete(s.statuses, statusKey{Date: date.String(), Category: category})
	return nil
}

func (s *state) AppendLog(_ context.Context, entry debt.LogEntry) error {
	s.logs = append(s.logs, entry)
	return nil
}

func (s *state) ListLogs(_ context.Context, filter debt.LogFilter) ([]debt.LogEntry, error) {
	var out []debt.LogEntry
	for i := len(s.logs) - 1; i >= 0; i-- {
		e := s.logs[i]
		if filter.Category != nil && e.Category != *filter.Category {
			continue
		}
		out = append(out, e)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *state) LogTotals(_ context.Context) (map[debt.Category]int, error) {
	out := make(map[debt.Category]int)
	for _, e := range s.logs {
		out[e.Category] += e.Amount
	}
	return out, nil
}

func (s *state) ResetAll(_ context.Context, includeProfile bool) error {
	s.counts = make(map[debt.Category]debt.DebtCount)
	s.statuses = make(map[statusKey]debt.DailyStatus)
	s.logs = nil
	if includeProfile {
		s.profile = nil
	}
	s.seed()
	return nil
}

func sortStatuses(rows []debt.DailyStatus) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].Category < rows[j].Category
	})
}
