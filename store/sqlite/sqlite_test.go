package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaza-tracker/obligation-engine/debt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func TestMigrate_AddsColumnsToLegacySchema(t *testing.T) {
	// GIVEN: A database created before the optional columns existed
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`
		CREATE TABLE profile (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			gender TEXT NOT NULL,
			birth_date TEXT NOT NULL,
			majority_date TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE daily_status (
			date TEXT NOT NULL,
			category TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (date, category)
		);
		INSERT INTO profile VALUES (1, 'female', '1995-03-01', '2007-03-01', '2020-01-01T00:00:00Z', '2020-01-01T00:00:00Z');
		INSERT INTO daily_status VALUES ('2020-01-01', 'asr', 'completed', '2020-01-01T00:00:00Z');
	`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	// WHEN: Opening with the current code
	s, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Initialize(ctx))

	// THEN: Old rows survive and new columns read as unset
	p, err := s.GetProfile(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, debt.GenderFemale, p.Gender)
	assert.Equal(t, "2007-03-01", p.MajorityDate.String())
	assert.True(t, p.PrayerTrackingStartDate.IsZero())
	assert.True(t, p.LastProcessedDate.IsZero())

	row, err := s.GetDailyStatus(ctx, debt.MustParseDate("2020-01-01"), debt.CategoryAsr)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "", row.Note)

	counts, err := s.GetDebtCounts(ctx)
	require.NoError(t, err)
	assert.Len(t, counts, 7)

	// Re-running the migration is a no-op
	require.NoError(t, s.Initialize(ctx))
}

func TestStore_IncrementRequiresSeed(t *testing.T) {
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	err = s.IncrementDebt(context.Background(), debt.CategoryFajr, 1)
	assert.ErrorIs(t, err, debt.ErrNotInitialized)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx debt.Store) error {
		require.NoError(t, tx.IncrementDebt(ctx, debt.CategoryIsha, 3))
		require.NoError(t, tx.AppendLog(ctx, debt.LogEntry{ID: "x", Category: debt.CategoryIsha, Amount: 3}))

		// Reads inside the transaction see its own writes
		rows, err := tx.GetDebtCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, debt.CountMap(rows)[debt.CategoryIsha])
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := s.GetDebtCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, debt.CountMap(rows)[debt.CategoryIsha])

	totals, err := s.LogTotals(ctx)
	require.NoError(t, err)
	assert.Empty(t, totals)
}

func TestStore_ProfileRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.GetProfile(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)

	g := debt.GenderMale
	birth := debt.MustParseDate("2000-01-01")
	created, err := s.UpsertProfile(ctx, debt.ProfilePatch{Gender: &g, BirthDate: &birth})
	require.NoError(t, err)

	sync := debt.MustParseDate("2026-10-01")
	updated, err := s.UpsertProfile(ctx, debt.ProfilePatch{LastSyncDate: &sync})
	require.NoError(t, err)
	assert.Equal(t, birth, updated.BirthDate)
	assert.Equal(t, sync, updated.LastSyncDate)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	got, err := s.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestStore_DailyStatusUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	day := debt.MustParseDate("2025-06-01")

	require.NoError(t, s.PutDailyStatus(ctx, debt.DailyStatus{Date: day, Category: debt.CategoryFajr, Status: debt.StatusMissed}))
	require.NoError(t, s.PutDailyStatus(ctx, debt.DailyStatus{Date: day, Category: debt.CategoryFajr, Status: debt.StatusCompleted, Note: "late"}))

	all, err := s.ListDailyStatus(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "conflict replaces on (date, category)")
	assert.Equal(t, debt.StatusCompleted, all[0].Status)
	assert.Equal(t, "late", all[0].Note)

	require.NoError(t, s.DeleteDailyStatus(ctx, day, debt.CategoryFajr))
	row, err := s.GetDailyStatus(ctx, day, debt.CategoryFajr)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestStore_ListLogsOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	entries := []debt.LogEntry{
		{ID: "1", Category: debt.CategoryFajr, Amount: 2, Reason: debt.ReasonOnboarding, Timestamp: ts},
		{ID: "2", Category: debt.CategoryAsr, Amount: -1, Reason: debt.ReasonToggle, EffectiveDate: debt.MustParseDate("2025-12-30"), Timestamp: ts},
		{ID: "3", Category: debt.CategoryFajr, Amount: 1, Reason: debt.ReasonSweep, Timestamp: ts},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendLog(ctx, e))
	}

	all, err := s.ListLogs(ctx, debt.LogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"3", "2", "1"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, "2025-12-30", all[1].EffectiveDate.String())
	assert.Equal(t, ts, all[1].Timestamp)

	fajr := debt.CategoryFajr
	page, err := s.ListLogs(ctx, debt.LogFilter{Category: &fajr, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "1", page[0].ID)

	totals, err := s.LogTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[debt.Category]int{debt.CategoryFajr: 3, debt.CategoryAsr: -1}, totals)
}

func TestStore_ResetAllReseeds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetDebtCount(ctx, debt.DebtCount{Category: debt.CategoryWitr, Count: 9}))
	g := debt.GenderFemale
	_, err := s.UpsertProfile(ctx, debt.ProfilePatch{Gender: &g})
	require.NoError(t, err)

	require.NoError(t, s.ResetAll(ctx, false))
	counts, err := s.GetDebtCounts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 7)
	assert.Zero(t, debt.CountMap(counts)[debt.CategoryWitr])
	p, err := s.GetProfile(ctx)
	require.NoError(t, err)
	assert.NotNil(t, p)

	require.NoError(t, s.ResetAll(ctx, true))
	p, err = s.GetProfile(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)
}
