package debt_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaza-tracker/obligation-engine/debt"
	"github.com/kaza-tracker/obligation-engine/debt/store"
)

func TestAdjustmentSession_CommitNetsAndInvertsSign(t *testing.T) {
	forEachStore(t, func(t *testing.T, open func(t *testing.T) debt.TxStore) {
		ctx := context.Background()
		l, _ := newTestLedger(t, open(t))

		// GIVEN: A session with several taps per category
		s := l.NewAdjustmentSession()
		require.NoError(t, s.Apply(debt.CategoryFajr, 1))
		require.NoError(t, s.Apply(debt.CategoryFajr, 1))
		require.NoError(t, s.Apply(debt.CategoryFajr, -1))
		for i := 0; i < 3; i++ {
			require.NoError(t, s.Apply(debt.CategoryFasting, -1))
		}
		require.NoError(t, s.Apply(debt.CategoryIsha, 1))
		require.NoError(t, s.Apply(debt.CategoryIsha, -1))

		assert.Equal(t, map[debt.Category]int{debt.CategoryFajr: 1, debt.CategoryFasting: -3}, s.Pending())
		assert.Zero(t, counts(t, l)[debt.CategoryFajr], "nothing is written before commit")

		// WHEN: Committing
		applied, err := s.Commit(ctx)
		require.NoError(t, err)

		// THEN: UI +1 pays down debt, UI -1 adds debt, one log per category
		assert.Equal(t, map[debt.Category]int{debt.CategoryFajr: -1, debt.CategoryFasting: 3}, applied)
		c := counts(t, l)
		assert.Equal(t, -1, c[debt.CategoryFajr])
		assert.Equal(t, 3, c[debt.CategoryFasting])
		assert.Zero(t, c[debt.CategoryIsha])

		logs, err := l.Store().ListLogs(ctx, debt.LogFilter{})
		require.NoError(t, err)
		require.Len(t, logs, 2)
		for _, e := range logs {
			assert.Equal(t, debt.ReasonAdjustment, e.Reason)
			assert.True(t, e.EffectiveDate.IsZero())
		}

		assert.Empty(t, s.Pending())
		assert.True(t, s.Closed())
		require.NoError(t, l.Audit(ctx))
	})
}

func TestAdjustmentSession_ClosedSessionRejectsUse(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, store.NewMemory())

	s := l.NewAdjustmentSession()
	require.NoError(t, s.Apply(debt.CategoryAsr, 1))
	require.NoError(t, s.Apply(debt.CategoryAsr, 1))
	_, err := s.Commit(ctx)
	require.NoError(t, err)

	_, err = s.Commit(ctx)
	assert.ErrorIs(t, err, debt.ErrSessionCommitted)
	assert.ErrorIs(t, s.Apply(debt.CategoryAsr, 1), debt.ErrSessionCommitted)
	assert.Equal(t, -2, counts(t, l)[debt.CategoryAsr], "second commit must not re-apply")

	discarded := l.NewAdjustmentSession()
	require.NoError(t, discarded.Apply(debt.CategoryWitr, -1))
	discarded.Discard()
	assert.Empty(t, discarded.Pending())
	_, err = discarded.Commit(ctx)
	assert.ErrorIs(t, err, debt.ErrSessionCommitted)
	assert.Zero(t, counts(t, l)[debt.CategoryWitr])
}

func TestAdjustmentSession_FailedCommitKeepsBuffer(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, &failingStore{TxStore: store.NewMemory(), failOn: debt.ReasonAdjustment})

	s := l.NewAdjustmentSession()
	require.NoError(t, s.Apply(debt.CategoryDhuhr, 1))
	require.NoError(t, s.Apply(debt.CategoryMaghrib, -1))

	_, err := s.Commit(ctx)
	require.Error(t, err)

	assert.False(t, s.Closed())
	assert.Equal(t, map[debt.Category]int{debt.CategoryDhuhr: 1, debt.CategoryMaghrib: -1}, s.Pending())
	c := counts(t, l)
	assert.Zero(t, c[debt.CategoryDhuhr], "partial batch rolled back")
	assert.Zero(t, c[debt.CategoryMaghrib])
}

func TestAdjustmentSession_UnknownCategory(t *testing.T) {
	l, _ := newTestLedger(t, store.NewMemory())
	s := l.NewAdjustmentSession()

	err := s.Apply("duha", 1)
	assert.ErrorIs(t, err, debt.ErrUnknownCategory)
	assert.True(t, debt.IsClientError(err))
	assert.Empty(t, s.Pending())
}

func TestAdjustmentSession_OnlySingleTaps(t *testing.T) {
	l, _ := newTestLedger(t, store.NewMemory())
	s := l.NewAdjustmentSession()

	for _, delta := range []int{0, 2, -5} {
		err := s.Apply(debt.CategoryAsr, delta)
		assert.ErrorIs(t, err, debt.ErrInvalidDelta, "delta %d", delta)
		assert.True(t, debt.IsClientError(err))
	}
	assert.Empty(t, s.Pending())

	require.NoError(t, s.Apply(debt.CategoryAsr, -1))
	assert.Equal(t, map[debt.Category]int{debt.CategoryAsr: -1}, s.Pending())
}
