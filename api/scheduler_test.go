package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaza-tracker/obligation-engine/debt"
)

func TestSweepScheduler_SweepsOnStart(t *testing.T) {
	ts := newTestServer(t)
	ts.onboard()
	ts.now = ts.now.AddDate(0, 0, 3)

	// GIVEN: A scheduler with a long interval
	swept := make(chan debt.SweepResult, 1)
	s := NewSweepScheduler(ts.ledger, time.Hour)
	s.OnSwept = func(res debt.SweepResult) { swept <- res }

	// WHEN: Starting it
	s.Start()
	defer s.Stop()

	// THEN: The first sweep runs immediately
	select {
	case res := <-swept:
		assert.Equal(t, 2, res.Days)
		assert.Equal(t, 2, res.Added[debt.CategoryFajr])
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not sweep on start")
	}
}

func TestSweepScheduler_StopIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	s := NewSweepScheduler(ts.ledger, time.Hour)

	s.Stop()
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}

func TestSweepScheduler_DisabledWithZeroInterval(t *testing.T) {
	ts := newTestServer(t)
	ts.onboard()
	ts.now = ts.now.AddDate(0, 0, 2)

	called := false
	s := NewSweepScheduler(ts.ledger, 0)
	s.OnSwept = func(debt.SweepResult) { called = true }
	s.Start()
	s.Stop()
	assert.False(t, called)

	// RunNow still works for manual triggers
	res, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Days)
	assert.True(t, called)
}
