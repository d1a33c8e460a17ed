package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaza-tracker/obligation-engine/debt"
)

func TestMemory_WithTxRollsBackOnError(t *testing.T) {
	// GIVEN: A seeded store
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Initialize(ctx))

	// WHEN: A transaction writes then fails
	boom := errors.New("boom")
	err := m.WithTx(ctx, func(s debt.Store) error {
		require.NoError(t, s.IncrementDebt(ctx, debt.CategoryFajr, 5))
		require.NoError(t, s.AppendLog(ctx, debt.LogEntry{ID: "l1", Category: debt.CategoryFajr, Amount: 5}))
		require.NoError(t, s.PutDailyStatus(ctx, debt.DailyStatus{
			Date: debt.MustParseDate("2024-01-01"), Category: debt.CategoryFajr, Status: debt.StatusMissed,
		}))
		return boom
	})

	// THEN: Nothing is visible afterwards
	require.ErrorIs(t, err, boom)
	rows, err := m.GetDebtCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, debt.CountMap(rows)[debt.CategoryFajr])

	logs, err := m.ListLogs(ctx, debt.LogFilter{})
	require.NoError(t, err)
	assert.Empty(t, logs)

	statuses, err := m.ListDailyStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestMemory_WithTxRollsBackOnPanic(t *testing.T) {
	// GIVEN: A seeded store
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Initialize(ctx))

	// WHEN: A transaction writes then panics
	assert.PanicsWithValue(t, "boom", func() {
		_ = m.WithTx(ctx, func(s debt.Store) error {
			require.NoError(t, s.IncrementDebt(ctx, debt.CategoryFajr, 5))
			require.NoError(t, s.AppendLog(ctx, debt.LogEntry{ID: "l1", Category: debt.CategoryFajr, Amount: 5}))
			panic("boom")
		})
	})

	// THEN: The write is gone and the lock was released
	rows, err := m.GetDebtCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, debt.CountMap(rows)[debt.CategoryFajr])

	logs, err := m.ListLogs(ctx, debt.LogFilter{})
	require.NoError(t, err)
	assert.Empty(t, logs)

	require.NoError(t, m.WithTx(ctx, func(s debt.Store) error {
		return s.IncrementDebt(ctx, debt.CategoryFajr, 1)
	}))
	rows, err = m.GetDebtCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, debt.CountMap(rows)[debt.CategoryFajr])
}

func TestMemory_IncrementWithoutSeed(t *testing.T) {
	m := NewMemory()
	err := m.IncrementDebt(context.Background(), debt.CategoryAsr, 1)
	assert.ErrorIs(t, err, debt.ErrNotInitialized)
}

func TestMemory_ListLogsNewestFirstWithPaging(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i, id := range []string{"a", "b", "c", "d"} {
		cat := debt.CategoryFajr
		if i%2 == 1 {
			cat = debt.CategoryAsr
		}
		require.NoError(t, m.AppendLog(ctx, debt.LogEntry{ID: id, Category: cat, Amount: 1}))
	}

	logs, err := m.ListLogs(ctx, debt.LogFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "c", logs[0].ID)
	assert.Equal(t, "b", logs[1].ID)

	asr := debt.CategoryAsr
	logs, err = m.ListLogs(ctx, debt.LogFilter{Category: &asr})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "d", logs[0].ID)

	logs, err = m.ListLogs(ctx, debt.LogFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	g := debt.GenderMale
	_, err := m.UpsertProfile(ctx, debt.ProfilePatch{Gender: &g})
	require.NoError(t, err)

	p, err := m.GetProfile(ctx)
	require.NoError(t, err)
	p.Gender = debt.GenderFemale

	again, err := m.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, debt.GenderMale, again.Gender)
	assert.False(t, again.CreatedAt.IsZero())
}

func TestMemory_DailyStatusRange(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"} {
		require.NoError(t, m.PutDailyStatus(ctx, debt.DailyStatus{
			Date: debt.MustParseDate(d), Category: debt.CategoryDhuhr, Status: debt.StatusCompleted,
		}))
	}

	rows, err := m.GetDailyStatusRange(ctx, debt.MustParseDate("2024-01-02"), debt.MustParseDate("2024-01-03"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01-02", rows[0].Date.String())
	assert.Equal(t, "2024-01-03", rows[1].Date.String())
}
