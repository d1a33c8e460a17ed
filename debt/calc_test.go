package debt

import (
	"testing"
	"time"
)

func TestDeriveMajorityDate(t *testing.T) {
	tests := []struct {
		name   string
		birth  Date
		gender Gender
		want   Date
	}{
		{"male adds 14 years", MustParseDate("2000-01-01"), GenderMale, MustParseDate("2014-01-01")},
		{"female adds 12 years", MustParseDate("2000-01-01"), GenderFemale, MustParseDate("2012-01-01")},
		{"leap day onto leap year", MustParseDate("2004-02-29"), GenderFemale, MustParseDate("2016-02-29")},
		{"leap day onto common year rolls forward", MustParseDate("2004-02-29"), GenderMale, MustParseDate("2018-03-01")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveMajorityDate(tt.birth, tt.gender)
			if !got.Equal(tt.want) {
				t.Errorf("DeriveMajorityDate(%s, %s) = %s, want %s", tt.birth, tt.gender, got, tt.want)
			}
		})
	}
}

func TestComputeInitialPrayerDebt(t *testing.T) {
	majority := MustParseDate("2010-01-01")

	tests := []struct {
		name  string
		start string
		want  int
	}{
		{"nine days after majority counts both ends", "2010-01-10", 10},
		{"start before majority", "2009-12-01", 0},
		{"start on majority", "2010-01-01", 0},
		{"one day after majority", "2010-01-02", 2},
		{"across a leap year", "2012-12-31", 1096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeInitialPrayerDebt(majority, MustParseDate(tt.start))
			if got != tt.want {
				t.Errorf("ComputeInitialPrayerDebt(%s, %s) = %d, want %d", majority, tt.start, got, tt.want)
			}
		})
	}
}

func TestComputeInitialFastingDebt(t *testing.T) {
	majority := MustParseDate("2010-01-01")

	tests := []struct {
		name  string
		start string
		want  int
	}{
		{"start before majority", "2009-06-01", 0},
		{"start on majority", "2010-01-01", 0},
		{"ten days rounds down to zero", "2010-01-11", 0},
		{"365 days is just under 30", "2011-01-01", 29},
		{"366 days crosses 30", "2011-01-02", 30},
		// 1461 days is exactly four 365.25-day years.
		{"four years is exact", "2014-01-01", 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeInitialFastingDebt(majority, MustParseDate(tt.start))
			if got != tt.want {
				t.Errorf("ComputeInitialFastingDebt(%s, %s) = %d, want %d", majority, tt.start, got, tt.want)
			}
		})
	}
}

func TestDate_ParseAndFormat(t *testing.T) {
	d, err := ParseDate("2024-03-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2024-03-10" {
		t.Errorf("String() = %q", d.String())
	}
	if !d.Equal(NewDate(2024, time.March, 10)) {
		t.Errorf("parsed %v, want 2024-03-10", d)
	}

	zero, err := ParseDate("")
	if err != nil || !zero.IsZero() || zero.String() != "" {
		t.Errorf("empty string should parse to the zero date, got %v (%v)", zero, err)
	}

	if _, err := ParseDate("10/03/2024"); !IsClientError(err) {
		t.Errorf("malformed date should be a client error, got %v", err)
	}
}

func TestDate_OfDropsTimeOfDay(t *testing.T) {
	d := DateOf(time.Date(2024, time.March, 10, 23, 59, 0, 0, time.UTC))
	if !d.Equal(NewDate(2024, time.March, 10)) {
		t.Errorf("DateOf kept time of day: %v", d.Time)
	}
	if got := DaysBetween(d, d.AddDays(3)); got != 3 {
		t.Errorf("DaysBetween = %d, want 3", got)
	}
	if got := MaxDate(d, d.AddDays(-1)); !got.Equal(d) {
		t.Errorf("MaxDate = %v, want %v", got, d)
	}
}

func TestTotals_DisplayClampsNegatives(t *testing.T) {
	raw := TotalsFromCounts([]DebtCount{
		{Category: CategoryFajr, Count: -3},
		{Category: CategoryAsr, Count: 1},
		{Category: CategoryFasting, Count: -2},
	})
	if raw.PrayerDebt != -2 || raw.FastingDebt != -2 {
		t.Fatalf("raw totals = %+v", raw)
	}
	shown := raw.Display()
	if shown.PrayerDebt != 0 || shown.FastingDebt != 0 {
		t.Errorf("display totals = %+v, want zeros", shown)
	}
}
