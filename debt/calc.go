package debt

import "github.com/shopspring/decimal"

// =============================================================================
// CALCULATION - Pure initial-debt formulas
// =============================================================================

const (
	MajorityAgeMale   = 14
	MajorityAgeFemale = 12

	// FastingDaysPerYear approximates one Ramadan per year.
	FastingDaysPerYear = 30
)

// daysPerYear is the 365.25-day year used by the fasting approximation.
var daysPerYear = decimal.RequireFromString("365.25")

// MajorityAge returns the default age of accountability for a gender.
func MajorityAge(g Gender) int {
	if g == GenderFemale {
		return MajorityAgeFemale
	}
	return MajorityAgeMale
}

// DeriveMajorityDate adds the gender's majority age to the birth date.
func DeriveMajorityDate(birth Date, g Gender) Date {
	return birth.AddYears(MajorityAge(g))
}

// ComputeInitialPrayerDebt counts the days from majority through the tracking
// start date, inclusive of the start date itself.
func ComputeInitialPrayerDebt(majority, start Date) int {
	if start.BeforeOrEqual(majority) {
		return 0
	}
	return DaysBetween(majority, start) + 1
}

// ComputeInitialFastingDebt approximates owed fasting days as
// floor(years * 30), with years measured in 365.25-day years.
func ComputeInitialFastingDebt(majority, start Date) int {
	if start.BeforeOrEqual(majority) {
		return 0
	}
	days := decimal.NewFromInt(int64(DaysBetween(majority, start)))
	// days*30/365.25 is a multiple of 1/1461, so the 16-digit division
	// never rounds across an integer boundary.
	owed := days.Mul(decimal.NewFromInt(FastingDaysPerYear)).Div(daysPerYear)
	return int(owed.Floor().IntPart())
}
