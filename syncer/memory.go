package syncer

import (
	"context"
	"sort"
	"sync"

	"github.com/kaza-tracker/obligation-engine/debt"
)

// =============================================================================
// MEMORY REMOTE - In-memory Remote (for testing/dev)
// =============================================================================

type MemoryRemote struct {
	mu    sync.RWMutex
	users map[string]*remoteUser
}

type remoteUser struct {
	profile  *debt.Profile
	counts   map[debt.Category]debt.DebtCount
	statuses map[string]debt.DailyStatus // date/category
}

func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{users: make(map[string]*remoteUser)}
}

func (m *MemoryRemote) user(id string) *remoteUser {
	u, ok := m.users[id]
	if !ok {
		u = &remoteUser{
			counts:   make(map[debt.Category]debt.DebtCount),
			statuses: make(map[string]debt.DailyStatus),
		}
		m.users[id] = u
	}
	return u
}

func statusKey(s debt.DailyStatus) string {
	return s.Date.String() + "/" + string(s.Category)
}

func (m *MemoryRemote) UpsertProfile(_ context.Context, userID string, p debt.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user(userID).profile = &p
	return nil
}

func (m *MemoryRemote) UpsertDebtCounts(_ context.Context, userID string, counts []debt.DebtCount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.user(userID)
	for _, c := range counts {
		u.counts[c.Category] = c
	}
	return nil
}

func (m *MemoryRemote) UpsertDailyStatuses(_ context.Context, userID string, rows []debt.DailyStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.user(userID)
	for _, r := range rows {
		u.statuses[statusKey(r)] = r
	}
	return nil
}

func (m *MemoryRemote) FetchProfile(_ context.Context, userID string) (*debt.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok || u.profile == nil {
		return nil, nil
	}
	p := *u.profile
	return &p, nil
}

func (m *MemoryRemote) FetchDebtCounts(_ context.Context, userID string) ([]debt.DebtCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	var out []debt.DebtCount
	for _, c := range debt.AllCategories {
		if row, ok := u.counts[c]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *MemoryRemote) FetchDailyStatuses(_ context.Context, userID string) ([]debt.DailyStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	out := make([]debt.DailyStatus, 0, len(u.statuses))
	for _, r := range u.statuses {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return statusKey(out[i]) < statusKey(out[j]) })
	return out, nil
}
