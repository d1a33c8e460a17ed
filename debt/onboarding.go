package debt

import (
	"context"
	"fmt"

	"github.com/kaza-tracker/obligation-engine/logger"
)

// =============================================================================
// ONBOARDING
// =============================================================================

// OnboardingInput is what the onboarding wizard collects.
type OnboardingInput struct {
	Gender                  Gender
	BirthDate               Date
	PrayerTrackingStartDate Date

	// MajorityDate overrides the gender-derived date when set.
	MajorityDate *Date

	// FastingTrackingStartDate defaults to PrayerTrackingStartDate when zero.
	FastingTrackingStartDate Date
}

func (l *Ledger) validateOnboarding(in *OnboardingInput) error {
	today := l.clock.Today()

	if !in.Gender.Valid() {
		return &ValidationError{Field: "gender", Reason: "must be male or female", Err: ErrInvalidGender}
	}
	if in.BirthDate.IsZero() {
		return &ValidationError{Field: "birth_date", Reason: "required", Err: ErrInvalidDate}
	}
	if in.PrayerTrackingStartDate.IsZero() {
		return &ValidationError{Field: "prayer_tracking_start_date", Reason: "required", Err: ErrInvalidDate}
	}
	if in.FastingTrackingStartDate.IsZero() {
		in.FastingTrackingStartDate = in.PrayerTrackingStartDate
	}

	checks := []struct {
		field string
		date  Date
	}{
		{"birth_date", in.BirthDate},
		{"prayer_tracking_start_date", in.PrayerTrackingStartDate},
		{"fasting_tracking_start_date", in.FastingTrackingStartDate},
	}
	if in.MajorityDate != nil {
		checks = append(checks, struct {
			field string
			date  Date
		}{"majority_date", *in.MajorityDate})
	}
	for _, c := range checks {
		if c.date.After(today) {
			return &ValidationError{Field: c.field, Reason: "cannot be in the future", Err: ErrInvalidDate}
		}
		if c.date.Before(in.BirthDate) {
			return &ValidationError{Field: c.field, Reason: "cannot be before birth date", Err: ErrInvalidDate}
		}
	}
	return nil
}

// Onboard creates the profile and seeds the initial debt. Every prayer
// category (witr included) gets the prayer debt, fasting gets the fasting
// debt. Seeding goes through the increment+log path.
func (l *Ledger) Onboard(ctx context.Context, in OnboardingInput) (*Profile, error) {
	if err := l.validateOnboarding(&in); err != nil {
		return nil, err
	}

	majority := DeriveMajorityDate(in.BirthDate, in.Gender)
	if in.MajorityDate != nil && !in.MajorityDate.IsZero() {
		majority = *in.MajorityDate
	}
	prayerDebt := ComputeInitialPrayerDebt(majority, in.PrayerTrackingStartDate)
	fastingDebt := ComputeInitialFastingDebt(majority, in.FastingTrackingStartDate)
	today := l.clock.Today()

	l.mu.Lock()
	defer l.mu.Unlock()

	var profile *Profile
	err := l.store.WithTx(ctx, func(s Store) error {
		existing, err := s.GetProfile(ctx)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyOnboarded
		}

		profile, err = s.UpsertProfile(ctx, ProfilePatch{
			Gender:                   &in.Gender,
			BirthDate:                &in.BirthDate,
			MajorityDate:             &majority,
			PrayerTrackingStartDate:  &in.PrayerTrackingStartDate,
			FastingTrackingStartDate: &in.FastingTrackingStartDate,
			LastProcessedDate:        &today,
		})
		if err != nil {
			return err
		}

		for _, c := range PrayerCategories {
			if err := l.apply(ctx, s, c, prayerDebt, ReasonOnboarding, in.PrayerTrackingStartDate); err != nil {
				return err
			}
		}
		return l.apply(ctx, s, CategoryFasting, fastingDebt, ReasonOnboarding, in.FastingTrackingStartDate)
	})
	if err != nil {
		return nil, fmt.Errorf("onboard: %w", err)
	}

	logger.Info("profile onboarded",
		"majority_date", majority.String(), "prayer_debt", prayerDebt, "fasting_debt", fastingDebt)
	return profile, nil
}
