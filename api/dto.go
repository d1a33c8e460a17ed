/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the debt domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES:
  Calendar dates travel as "YYYY-MM-DD" strings (debt.Date implements
  TextMarshaler). An unset date renders as "". Timestamps are RFC3339.

VALIDATION:
  Validation is done by the ledger, not in DTOs. A malformed date fails
  JSON decoding and is reported as 400.

SEE ALSO:
  - handlers.go: Uses these types
  - syncer/reconciler.go: Result is returned as is
*/
package api

import (
	"time"

	"github.com/kaza-tracker/obligation-engine/debt"
)

// =============================================================================
// PROFILE
// =============================================================================

// ProfileDTO represents the profile in API responses.
type ProfileDTO struct {
	Gender                   debt.Gender `json:"gender"`
	BirthDate                debt.Date   `json:"birth_date"`
	MajorityDate             debt.Date   `json:"majority_date"`
	PrayerTrackingStartDate  debt.Date   `json:"prayer_tracking_start_date"`
	FastingTrackingStartDate debt.Date   `json:"fasting_tracking_start_date"`
	LastSyncDate             debt.Date   `json:"last_sync_date"`
	LastProcessedDate        debt.Date   `json:"last_processed_date"`
	CreatedAt                time.Time   `json:"created_at"`
	UpdatedAt                time.Time   `json:"updated_at"`
}

func toProfileDTO(p *debt.Profile) ProfileDTO {
	return ProfileDTO{
		Gender:                   p.Gender,
		BirthDate:                p.BirthDate,
		MajorityDate:             p.MajorityDate,
		PrayerTrackingStartDate:  p.PrayerTrackingStartDate,
		FastingTrackingStartDate: p.FastingTrackingStartDate,
		LastSyncDate:             p.LastSyncDate,
		LastProcessedDate:        p.LastProcessedDate,
		CreatedAt:                p.CreatedAt,
		UpdatedAt:                p.UpdatedAt,
	}
}

// OnboardingRequest is the onboarding wizard's payload.
type OnboardingRequest struct {
	Gender                   debt.Gender `json:"gender"`
	BirthDate                debt.Date   `json:"birth_date"`
	MajorityDate             *debt.Date  `json:"majority_date,omitempty"`
	PrayerTrackingStartDate  debt.Date   `json:"prayer_tracking_start_date"`
	FastingTrackingStartDate debt.Date   `json:"fasting_tracking_start_date,omitempty"`
}

// UpdateProfileRequest is a partial profile edit. Omitted fields are kept.
type UpdateProfileRequest struct {
	Gender                   *debt.Gender `json:"gender,omitempty"`
	BirthDate                *debt.Date   `json:"birth_date,omitempty"`
	MajorityDate             *debt.Date   `json:"majority_date,omitempty"`
	PrayerTrackingStartDate  *debt.Date   `json:"prayer_tracking_start_date,omitempty"`
	FastingTrackingStartDate *debt.Date   `json:"fasting_tracking_start_date,omitempty"`
}

func (r UpdateProfileRequest) patch() debt.ProfilePatch {
	return debt.ProfilePatch{
		Gender:                   r.Gender,
		BirthDate:                r.BirthDate,
		MajorityDate:             r.MajorityDate,
		PrayerTrackingStartDate:  r.PrayerTrackingStartDate,
		FastingTrackingStartDate: r.FastingTrackingStartDate,
	}
}

// =============================================================================
// DEBT
// =============================================================================

// TotalsDTO carries raw and display totals.
type TotalsDTO struct {
	PrayerDebt  int `json:"prayer_debt"`
	FastingDebt int `json:"fasting_debt"`
}

// DebtSummaryDTO is returned by GET /api/debt.
type DebtSummaryDTO struct {
	Raw     TotalsDTO `json:"raw"`
	Display TotalsDTO `json:"display"`
}

// DebtCountDTO represents one category counter.
type DebtCountDTO struct {
	Category  debt.Category `json:"category"`
	Count     int           `json:"count"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// =============================================================================
// CALENDAR
// =============================================================================

// DailyStatusDTO represents one recorded (date, category) pair.
type DailyStatusDTO struct {
	Date      debt.Date     `json:"date"`
	Category  debt.Category `json:"category"`
	Status    debt.Status   `json:"status"`
	Note      string        `json:"note,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func toDailyStatusDTO(s debt.DailyStatus) DailyStatusDTO {
	return DailyStatusDTO{Date: s.Date, Category: s.Category, Status: s.Status, Note: s.Note, UpdatedAt: s.UpdatedAt}
}

// ToggleRequest sets the status of one (date, category) pair.
type ToggleRequest struct {
	Status debt.Status `json:"status"`
	Note   string      `json:"note,omitempty"`
}

// ToggleDTO reports the effect of a toggle.
type ToggleDTO struct {
	Date     debt.Date     `json:"date"`
	Category debt.Category `json:"category"`
	Status   debt.Status   `json:"status"`
	Previous debt.Status   `json:"previous"`
	Removed  bool          `json:"removed"`
	Delta    int           `json:"delta"`
	Count    int           `json:"count"`
	Swept    int           `json:"swept"`
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// AdjustmentSessionDTO shows a quick-entry buffer.
type AdjustmentSessionDTO struct {
	ID        string                `json:"id"`
	CreatedAt time.Time             `json:"created_at"`
	Pending   map[debt.Category]int `json:"pending"`
}

// AdjustmentEntryRequest is one +/- tap. Delta is in UI terms:
// +1 = one extra performed, -1 = one more owed.
type AdjustmentEntryRequest struct {
	Category debt.Category `json:"category"`
	Delta    int           `json:"delta"`
}

// CommitDTO lists the stored deltas applied by a commit.
type CommitDTO struct {
	Applied map[debt.Category]int `json:"applied"`
}

// =============================================================================
// SWEEP, LOGS, AUDIT
// =============================================================================

// SweepDTO reports one catch-up sweep.
type SweepDTO struct {
	Skipped   bool                  `json:"skipped"`
	From      debt.Date             `json:"from"`
	To        debt.Date             `json:"to"`
	Days      int                   `json:"days"`
	Added     map[debt.Category]int `json:"added"`
	Watermark debt.Date             `json:"watermark"`
}

func toSweepDTO(r debt.SweepResult) SweepDTO {
	return SweepDTO{Skipped: r.Skipped, From: r.From, To: r.To, Days: r.Days, Added: r.Added, Watermark: r.Watermark}
}

// LogEntryDTO represents one audit row.
type LogEntryDTO struct {
	ID            string         `json:"id"`
	Category      debt.Category  `json:"category"`
	Amount        int            `json:"amount"`
	Reason        debt.LogReason `json:"reason"`
	EffectiveDate debt.Date      `json:"effective_date"`
	Timestamp     time.Time      `json:"timestamp"`
}

// MismatchDTO is one category whose counter disagrees with its logs.
type MismatchDTO struct {
	Count  int `json:"count"`
	LogSum int `json:"log_sum"`
}

// AuditDTO is returned by GET /api/audit.
type AuditDTO struct {
	Consistent bool                          `json:"consistent"`
	Mismatches map[debt.Category]MismatchDTO `json:"mismatches,omitempty"`
}

// ResetRequest controls what a reset wipes.
type ResetRequest struct {
	IncludeProfile bool `json:"include_profile"`
}

// HealthDTO is the liveness response.
type HealthDTO struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
