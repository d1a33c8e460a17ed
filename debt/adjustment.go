package debt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ADJUSTMENT SESSION - Quick kaza entry buffer
// =============================================================================

// AdjustmentSession buffers UI deltas per category until Commit.
// Nothing touches storage before Commit. A committed or discarded session
// rejects further use with ErrSessionCommitted.
type AdjustmentSession struct {
	ID        string
	CreatedAt time.Time

	ledger *Ledger
	mu     sync.Mutex
	deltas map[Category]int
	closed bool
}

// NewAdjustmentSession opens an empty session bound to the ledger.
func (l *Ledger) NewAdjustmentSession() *AdjustmentSession {
	return &AdjustmentSession{
		ID:        uuid.NewString(),
		CreatedAt: l.clock.Now().UTC(),
		ledger:    l,
		deltas:    make(map[Category]int),
	}
}

// Apply adds one tap to the buffered net for category.
// +1 records one extra performed instance, -1 adds one owed instance.
// Any other value is rejected.
func (s *AdjustmentSession) Apply(category Category, uiDelta int) error {
	if !category.Valid() {
		return &ValidationError{Field: "category", Reason: "unknown category " + string(category), Err: ErrUnknownCategory}
	}
	if uiDelta != 1 && uiDelta != -1 {
		return &ValidationError{Field: "delta", Reason: fmt.Sprintf("must be 1 or -1, got %d", uiDelta), Err: ErrInvalidDelta}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionCommitted
	}
	s.deltas[category] += uiDelta
	if s.deltas[category] == 0 {
		delete(s.deltas, category)
	}
	return nil
}

// Pending returns a copy of the non-zero UI nets.
func (s *AdjustmentSession) Pending() map[Category]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Category]int, len(s.deltas))
	for c, d := range s.deltas {
		out[c] = d
	}
	return out
}

// Discard drops the buffer and closes the session.
func (s *AdjustmentSession) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = make(map[Category]int)
	s.closed = true
}

// Closed reports whether the session was committed or discarded.
func (s *AdjustmentSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Commit applies the buffered nets in one ledger transaction. On failure the
// buffer is kept so the caller can retry. Returns the stored deltas.
func (s *AdjustmentSession) Commit(ctx context.Context) (map[Category]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionCommitted
	}

	applied, err := s.ledger.ApplyAdjustments(ctx, s.deltas)
	if err != nil {
		return nil, err
	}
	s.deltas = make(map[Category]int)
	s.closed = true
	return applied, nil
}
