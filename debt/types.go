/*
Package debt provides the obligation debt accounting engine.

PURPOSE:
  Tracks how many acts of worship (the five daily prayers, witr, and
  fasting days) a user still owes since their majority date, and keeps
  that "debt" consistent as days are marked done, missed days roll over,
  and bulk kaza entries are made.

KEY CONCEPTS IN THIS FILE (types.go):
  - Category: One of the 7 obligation categories (6 prayers + fasting)
  - Status: Recorded state of a (date, category) pair
  - Profile: Dates the debt is derived from, plus sweep watermarks
  - DebtCount: Running signed counter per category
  - DailyStatus: Explicit per-day record (absence = pending)
  - LogEntry: Append-only audit row for every counter change

CRITICAL INVARIANT:
  For every category c, DebtCount[c] == sum(LogEntry.Amount where category=c).
  The ledger is the only writer of counters and logs, and it always writes
  both in the same transaction. Restore is the single documented exception
  (it replaces counters with remote snapshots).

SEE ALSO:
  - calc.go: Initial debt formulas
  - ledger.go: Mutation entry points
  - store.go: Persistence contract
*/
package debt

import "time"

// =============================================================================
// CATEGORY
// =============================================================================

type Category string

const (
	CategoryFajr    Category = "fajr"
	CategoryDhuhr   Category = "dhuhr"
	CategoryAsr     Category = "asr"
	CategoryMaghrib Category = "maghrib"
	CategoryIsha    Category = "isha"
	CategoryWitr    Category = "witr"
	CategoryFasting Category = "fasting"
)

// PrayerCategories are swept daily. Fasting is not.
var PrayerCategories = []Category{
	CategoryFajr, CategoryDhuhr, CategoryAsr, CategoryMaghrib, CategoryIsha, CategoryWitr,
}

// AllCategories lists every seeded category in display order.
var AllCategories = append(append([]Category{}, PrayerCategories...), CategoryFasting)

func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) IsPrayer() bool { return c.Valid() && c != CategoryFasting }

// ParseCategory validates a raw category name.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", &ValidationError{Field: "category", Reason: "unknown category " + s, Err: ErrUnknownCategory}
	}
	return c, nil
}

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusCompleted Status = "completed"
	StatusMissed    Status = "missed"
	// StatusPending is normally represented by the absence of a row. It is
	// only persisted when the row carries a note.
	StatusPending Status = "pending"
)

func (s Status) Valid() bool {
	return s == StatusCompleted || s == StatusMissed || s == StatusPending
}

// weight is the debt contribution of a recorded status on a past day.
func (s Status) weight() int {
	if s == StatusCompleted {
		return -1
	}
	return 0
}

// =============================================================================
// GENDER
// =============================================================================

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

func (g Gender) Valid() bool { return g == GenderMale || g == GenderFemale }

// =============================================================================
// ENTITIES
// =============================================================================

// Profile is the single per-installation record.
type Profile struct {
	Gender                   Gender
	BirthDate                Date
	MajorityDate             Date
	PrayerTrackingStartDate  Date
	FastingTrackingStartDate Date
	LastSyncDate             Date
	LastProcessedDate        Date
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// ProfilePatch is a partial profile update. Nil fields are left untouched.
type ProfilePatch struct {
	Gender                   *Gender
	BirthDate                *Date
	MajorityDate             *Date
	PrayerTrackingStartDate  *Date
	FastingTrackingStartDate *Date
	LastSyncDate             *Date
	LastProcessedDate        *Date
}

// Apply merges the patch into p.
func (pp ProfilePatch) Apply(p *Profile) {
	if pp.Gender != nil {
		p.Gender = *pp.Gender
	}
	if pp.BirthDate != nil {
		p.BirthDate = *pp.BirthDate
	}
	if pp.MajorityDate != nil {
		p.MajorityDate = *pp.MajorityDate
	}
	if pp.PrayerTrackingStartDate != nil {
		p.PrayerTrackingStartDate = *pp.PrayerTrackingStartDate
	}
	if pp.FastingTrackingStartDate != nil {
		p.FastingTrackingStartDate = *pp.FastingTrackingStartDate
	}
	if pp.LastSyncDate != nil {
		p.LastSyncDate = *pp.LastSyncDate
	}
	if pp.LastProcessedDate != nil {
		p.LastProcessedDate = *pp.LastProcessedDate
	}
}

// DebtCount is the outstanding number of unperformed instances.
// Count may go negative after manual over-correction.
type DebtCount struct {
	Category  Category
	Count     int
	UpdatedAt time.Time
}

// DailyStatus is an explicit record for one (date, category) pair.
type DailyStatus struct {
	Date      Date
	Category  Category
	Status    Status
	Note      string
	UpdatedAt time.Time
}

// LogReason says which ledger path produced a log entry.
type LogReason string

const (
	ReasonToggle     LogReason = "toggle"
	ReasonSweep      LogReason = "sweep"
	ReasonAdjustment LogReason = "adjustment"
	ReasonOnboarding LogReason = "onboarding"
)

// LogEntry records one signed counter delta.
// Negative = debt paid down, positive = debt added.
type LogEntry struct {
	ID            string
	Category      Category
	Amount        int
	Reason        LogReason
	EffectiveDate Date // day the delta refers to, when there is one
	Timestamp     time.Time
}

// LogFilter narrows ListLogs. Zero Limit means no limit.
type LogFilter struct {
	Category *Category
	Limit    int
	Offset   int
}

// =============================================================================
// TOTALS
// =============================================================================

// Totals aggregates the raw counters.
type Totals struct {
	PrayerDebt  int
	FastingDebt int
}

// Display clamps negative values to zero. Raw values stay in storage.
func (t Totals) Display() Totals {
	return Totals{PrayerDebt: max(t.PrayerDebt, 0), FastingDebt: max(t.FastingDebt, 0)}
}

// TotalsFromCounts sums prayer categories and picks out fasting.
func TotalsFromCounts(counts []DebtCount) Totals {
	var t Totals
	for _, c := range counts {
		switch {
		case c.Category == CategoryFasting:
			t.FastingDebt += c.Count
		case c.Category.IsPrayer():
			t.PrayerDebt += c.Count
		}
	}
	return t
}

// CountMap indexes counts by category.
func CountMap(counts []DebtCount) map[Category]int {
	m := make(map[Category]int, len(counts))
	for _, c := range counts {
		m[c.Category] = c.Count
	}
	return m
}
