/*
ledger.go - Debt ledger engine

PURPOSE:
  The only writer of debt_counts and logs. Every counter mutation goes
  through apply(), which increments the counter and appends the matching
  LogEntry inside the caller's transaction.

ENTRY POINTS:
  ToggleDailyStatus: Mark a (date, category) completed / pending / missed
  ApplyAdjustments:  Commit a quick kaza entry batch
  RunCatchUpSweep:   Charge elapsed prayer days since the watermark
  Onboard:           Seed initial debt from profile dates (onboarding.go)

TOGGLE DELTA:
  The delta is diffed against the stored previous status, not derived from
  the target alone:

    delta = w(target) - w(previous),  w(completed) = -1, w(other) = 0

  Only past days (date < today) move counters. Today's obligation is not
  owed until the day ends. A toggle first runs the catch-up sweep in the
  same transaction, so every past day it diffs against has already been
  charged. The final counter depends only on the final statuses, not on
  whether the sweep or the toggle came first.

    Mar 1 pending -> completed   -1
    Mar 1 completed -> completed  0   (double tap)
    Mar 1 completed -> pending   +1

SWEEP:
  For each day in (watermark, today) and each prayer category without a
  recorded completion that day: +1 and one LogEntry. Fasting is not swept.
  The watermark moves to today in the same transaction, so a second call on
  the same day finds nothing to do.

CONCURRENCY:
  All mutations take l.mu and run inside TxStore.WithTx. The read of the
  previous state and the counter write cannot interleave with another
  mutation.

SEE ALSO:
  - store.go: Persistence contract
  - adjustment.go: Session buffer for quick entries
  - onboarding.go: Initial debt seeding
*/
package debt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaza-tracker/obligation-engine/logger"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store TxStore
	clock Clock
	mu    sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

func NewLedger(store TxStore, opts ...Option) *Ledger {
	l := &Ledger{store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the underlying store for read-only accessors.
func (l *Ledger) Store() TxStore { return l.store }

// Today is the current calendar day per the ledger clock.
func (l *Ledger) Today() Date { return l.clock.Today() }

// Now is the ledger's wall clock reading.
func (l *Ledger) Now() time.Time { return l.clock.Now() }

// Initialize prepares the store. Idempotent.
func (l *Ledger) Initialize(ctx context.Context) error {
	return l.store.Initialize(ctx)
}

// apply increments a counter and appends the matching log entry.
// Zero deltas write nothing.
func (l *Ledger) apply(ctx context.Context, s Store, category Category, delta int, reason LogReason, effective Date) error {
	if delta == 0 {
		return nil
	}
	if err := s.IncrementDebt(ctx, category, delta); err != nil {
		return err
	}
	return s.AppendLog(ctx, LogEntry{
		ID:            uuid.NewString(),
		Category:      category,
		Amount:        delta,
		Reason:        reason,
		EffectiveDate: effective,
		Timestamp:     l.clock.Now().UTC(),
	})
}

// =============================================================================
// TOGGLE
// =============================================================================

// ToggleResult describes what a toggle changed.
type ToggleResult struct {
	Date     Date
	Category Category
	Status   Status
	Previous Status
	Removed  bool // the row was deleted (pending without note)
	Delta    int
	Count    int // counter value after the toggle
	Swept    int // days charged by the catch-up run that preceded the toggle
}

// ToggleDailyStatus records target for (date, category) and applies the
// debt effect of the change.
func (l *Ledger) ToggleDailyStatus(ctx context.Context, date Date, category Category, target Status, note string) (ToggleResult, error) {
	today := l.clock.Today()
	if date.IsZero() {
		return ToggleResult{}, &ValidationError{Field: "date", Reason: "required", Err: ErrInvalidDate}
	}
	if date.After(today) {
		return ToggleResult{}, &ValidationError{Field: "date", Reason: "cannot be in the future", Err: ErrInvalidDate}
	}
	if !category.Valid() {
		return ToggleResult{}, &ValidationError{Field: "category", Reason: "unknown category " + string(category), Err: ErrUnknownCategory}
	}
	if !target.Valid() {
		return ToggleResult{}, &ValidationError{Field: "status", Reason: "unknown status " + string(target), Err: ErrInvalidStatus}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	res := ToggleResult{Date: date, Category: category, Status: target, Previous: StatusPending}
	err := l.store.WithTx(ctx, func(s Store) error {
		// Every past day must be charged before its status can be diffed.
		swept, err := l.sweep(ctx, s, today)
		if err != nil {
			return err
		}
		res.Swept = swept.Days

		prev, err := s.GetDailyStatus(ctx, date, category)
		if err != nil {
			return err
		}
		if prev != nil {
			res.Previous = prev.Status
		}

		if target == StatusPending && note == "" {
			if prev != nil {
				if err := s.DeleteDailyStatus(ctx, date, category); err != nil {
					return err
				}
			}
			res.Removed = true
		} else {
			if err := s.PutDailyStatus(ctx, DailyStatus{
				Date:      date,
				Category:  category,
				Status:    target,
				Note:      note,
				UpdatedAt: l.clock.Now().UTC(),
			}); err != nil {
				return err
			}
		}

		if date.Before(today) {
			res.Delta = target.weight() - res.Previous.weight()
		}
		if err := l.apply(ctx, s, category, res.Delta, ReasonToggle, date); err != nil {
			return err
		}

		counts, err := s.GetDebtCounts(ctx)
		if err != nil {
			return err
		}
		res.Count = CountMap(counts)[category]
		return nil
	})
	if err != nil {
		return ToggleResult{}, fmt.Errorf("toggle %s %s: %w", date, category, err)
	}

	logger.Debug("daily status toggled",
		"date", date.String(), "category", category, "status", target,
		"previous", res.Previous, "delta", res.Delta)
	return res, nil
}

// =============================================================================
// QUICK ADJUSTMENTS
// =============================================================================

// ApplyAdjustments commits a batch of UI deltas. UI +1 means one extra
// performed instance (stored -1); UI -1 adds one instance of debt (stored +1).
// Returns the stored deltas actually applied.
func (l *Ledger) ApplyAdjustments(ctx context.Context, uiDeltas map[Category]int) (map[Category]int, error) {
	for c := range uiDeltas {
		if !c.Valid() {
			return nil, &ValidationError{Field: "category", Reason: "unknown category " + string(c), Err: ErrUnknownCategory}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	applied := make(map[Category]int)
	err := l.store.WithTx(ctx, func(s Store) error {
		// Fixed order keeps log rows deterministic.
		for _, c := range AllCategories {
			stored := -uiDeltas[c]
			if stored == 0 {
				continue
			}
			if err := l.apply(ctx, s, c, stored, ReasonAdjustment, Date{}); err != nil {
				return err
			}
			applied[c] = stored
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply adjustments: %w", err)
	}

	if len(applied) > 0 {
		logger.Info("quick adjustments committed", "categories", len(applied))
	}
	return applied, nil
}

// =============================================================================
// CATCH-UP SWEEP
// =============================================================================

// SweepResult summarizes one catch-up sweep.
type SweepResult struct {
	Skipped   bool // no profile yet
	From      Date // first swept day, zero when nothing was swept
	To        Date // last swept day
	Days      int
	Added     map[Category]int
	Watermark Date // lastProcessedDate after the sweep
}

// sweepWatermark picks the last day already accounted for.
func sweepWatermark(p *Profile, today Date) Date {
	switch {
	case !p.LastProcessedDate.IsZero():
		return p.LastProcessedDate
	case !p.LastSyncDate.IsZero():
		return p.LastSyncDate
	case !p.CreatedAt.IsZero():
		return DateOf(p.CreatedAt.UTC())
	default:
		return today
	}
}

// RunCatchUpSweep charges every elapsed day between the watermark and today
// (exclusive on both ends) and moves the watermark to today. Safe to call on
// every foreground event.
func (l *Ledger) RunCatchUpSweep(ctx context.Context) (SweepResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var res SweepResult
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		res, err = l.sweep(ctx, s, l.clock.Today())
		return err
	})
	if err != nil {
		logger.Error("catch-up sweep failed", "error", err)
		return SweepResult{}, fmt.Errorf("catch-up sweep: %w", err)
	}

	if res.Days > 0 {
		logger.Info("catch-up sweep applied", "from", res.From.String(), "to", res.To.String(), "days", res.Days)
	}
	return res, nil
}

// sweep is the body of RunCatchUpSweep. Caller holds l.mu and runs it inside
// a transaction.
func (l *Ledger) sweep(ctx context.Context, s Store, today Date) (SweepResult, error) {
	res := SweepResult{Added: make(map[Category]int)}

	profile, err := s.GetProfile(ctx)
	if err != nil {
		return res, err
	}
	if profile == nil {
		res.Skipped = true
		return res, nil
	}

	watermark := sweepWatermark(profile, today)
	cursor := watermark.AddDays(1)
	if cursor.Before(today) {
		yesterday := today.AddDays(-1)
		recorded, err := s.GetDailyStatusRange(ctx, cursor, yesterday)
		if err != nil {
			return res, err
		}
		done := make(map[string]bool, len(recorded))
		for _, r := range recorded {
			if r.Status == StatusCompleted {
				done[r.Date.String()+"/"+string(r.Category)] = true
			}
		}

		res.From = cursor
		for d := cursor; d.Before(today); d = d.AddDays(1) {
			for _, c := range PrayerCategories {
				if done[d.String()+"/"+string(c)] {
					continue
				}
				if err := l.apply(ctx, s, c, 1, ReasonSweep, d); err != nil {
					return res, fmt.Errorf("sweep %s: %w", d, err)
				}
				res.Added[c]++
			}
			res.To = d
			res.Days++
		}
	}

	res.Watermark = MaxDate(watermark, today)
	if profile.LastProcessedDate.Equal(res.Watermark) {
		return res, nil
	}
	_, err = s.UpsertProfile(ctx, ProfilePatch{LastProcessedDate: &res.Watermark})
	return res, err
}

// =============================================================================
// READS
// =============================================================================

// GetDebtTotals aggregates the raw counters. No side effects.
func (l *Ledger) GetDebtTotals(ctx context.Context) (Totals, error) {
	counts, err := l.store.GetDebtCounts(ctx)
	if err != nil {
		return Totals{}, err
	}
	return TotalsFromCounts(counts), nil
}

// Audit verifies that every counter equals the sum of its log entries.
// Returns a *ConsistencyError describing any mismatch.
func (l *Ledger) Audit(ctx context.Context) error {
	counts, err := l.store.GetDebtCounts(ctx)
	if err != nil {
		return err
	}
	sums, err := l.store.LogTotals(ctx)
	if err != nil {
		return err
	}

	mismatches := make(map[Category]Mismatch)
	for _, c := range counts {
		if c.Count != sums[c.Category] {
			mismatches[c.Category] = Mismatch{Count: c.Count, LogSum: sums[c.Category]}
		}
	}
	if len(mismatches) > 0 {
		return &ConsistencyError{Mismatches: mismatches}
	}
	return nil
}

// =============================================================================
// PROFILE & RESET
// =============================================================================

// UpdateProfile applies a profile edit. Counters are not touched.
func (l *Ledger) UpdateProfile(ctx context.Context, patch ProfilePatch) (*Profile, error) {
	if err := l.validatePatch(patch); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var updated *Profile
	err := l.store.WithTx(ctx, func(s Store) error {
		existing, err := s.GetProfile(ctx)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrProfileNotFound
		}
		updated, err = s.UpsertProfile(ctx, patch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (l *Ledger) validatePatch(patch ProfilePatch) error {
	today := l.clock.Today()
	if patch.Gender != nil && !patch.Gender.Valid() {
		return &ValidationError{Field: "gender", Reason: "must be male or female", Err: ErrInvalidGender}
	}
	dates := map[string]*Date{
		"birth_date":                  patch.BirthDate,
		"majority_date":               patch.MajorityDate,
		"prayer_tracking_start_date":  patch.PrayerTrackingStartDate,
		"fasting_tracking_start_date": patch.FastingTrackingStartDate,
	}
	for field, d := range dates {
		if d != nil && d.After(today) {
			return &ValidationError{Field: field, Reason: "cannot be in the future", Err: ErrInvalidDate}
		}
	}
	return nil
}

// Reset wipes counters, statuses and logs (and the profile when asked),
// then re-seeds the 7 counters at 0. Remote backups are not touched.
func (l *Ledger) Reset(ctx context.Context, includeProfile bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.ResetAll(ctx, includeProfile); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	logger.Warn("local data reset", "include_profile", includeProfile)
	return nil
}
