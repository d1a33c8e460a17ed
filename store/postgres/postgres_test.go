package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaza-tracker/obligation-engine/debt"
)

// newTestRemote connects to OBLIGATION_TEST_POSTGRES_DSN or skips.
func newTestRemote(t *testing.T) *Remote {
	t.Helper()
	dsn := os.Getenv("OBLIGATION_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("OBLIGATION_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRemote_ProfileRoundTrip(t *testing.T) {
	r := newTestRemote(t)
	ctx := context.Background()
	userID := "test-" + uuid.NewString()

	missing, err := r.FetchProfile(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := debt.Profile{
		Gender:                  debt.GenderMale,
		BirthDate:               debt.MustParseDate("2000-01-01"),
		MajorityDate:            debt.MustParseDate("2014-01-01"),
		PrayerTrackingStartDate: debt.MustParseDate("2014-01-11"),
		CreatedAt:               created,
		UpdatedAt:               created,
	}
	require.NoError(t, r.UpsertProfile(ctx, userID, in))

	got, err := r.FetchProfile(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, in.BirthDate, got.BirthDate)
	assert.Equal(t, in.PrayerTrackingStartDate, got.PrayerTrackingStartDate)
	assert.True(t, got.FastingTrackingStartDate.IsZero(), "NULL reads back as unset")
	assert.True(t, created.Equal(got.CreatedAt))
}

func TestRemote_UpsertsReplaceByKey(t *testing.T) {
	r := newTestRemote(t)
	ctx := context.Background()
	userID := "test-" + uuid.NewString()
	day := debt.MustParseDate("2026-03-01")

	require.NoError(t, r.UpsertDebtCounts(ctx, userID, []debt.DebtCount{
		{Category: debt.CategoryFajr, Count: 4},
		{Category: debt.CategoryFasting, Count: 2},
	}))
	require.NoError(t, r.UpsertDebtCounts(ctx, userID, []debt.DebtCount{
		{Category: debt.CategoryFajr, Count: 3},
	}))

	counts, err := r.FetchDebtCounts(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, map[debt.Category]int{debt.CategoryFajr: 3, debt.CategoryFasting: 2}, debt.CountMap(counts))

	require.NoError(t, r.UpsertDailyStatuses(ctx, userID, []debt.DailyStatus{
		{Date: day, Category: debt.CategoryAsr, Status: debt.StatusMissed},
	}))
	require.NoError(t, r.UpsertDailyStatuses(ctx, userID, []debt.DailyStatus{
		{Date: day, Category: debt.CategoryAsr, Status: debt.StatusCompleted, Note: "made up"},
	}))

	statuses, err := r.FetchDailyStatuses(ctx, userID)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, debt.StatusCompleted, statuses[0].Status)
	assert.Equal(t, "made up", statuses[0].Note)
	assert.Equal(t, day, statuses[0].Date)
}
