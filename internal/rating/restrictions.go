package rating

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// periodFacts is what restrictions are evaluated against. Energy facts are
// nil when the metering series does not cover the period.
type periodFacts struct {
	localStart  time.Time
	elapsed     time.Duration
	consumedKWh *Decimal
	powerKW     *Decimal
}

// matches reports whether every set restriction holds for the period.
func (r *TariffRestrictions) matches(f periodFacts) (bool, error) {
	if r == nil {
		return true, nil
	}

	ok, err := r.matchesTimeOfDay(f.localStart)
	if err != nil || !ok {
		return false, err
	}
	ok, err = r.matchesDate(f.localStart)
	if err != nil || !ok {
		return false, err
	}
	if !r.matchesDayOfWeek(f.localStart) {
		return false, nil
	}
	if r.MinDuration != nil && f.elapsed < time.Duration(*r.MinDuration)*time.Second {
		return false, nil
	}
	if r.MaxDuration != nil && f.elapsed >= time.Duration(*r.MaxDuration)*time.Second {
		return false, nil
	}
	if !withinBounds(f.consumedKWh, r.MinKWh, r.MaxKWh) {
		return false, nil
	}
	if !withinBounds(f.powerKW, r.MinPower, r.MaxPower) {
		return false, nil
	}
	return true, nil
}

func (r *TariffRestrictions) matchesTimeOfDay(local time.Time) (bool, error) {
	if r.StartTime == "" && r.EndTime == "" {
		return true, nil
	}
	tod := local.Hour()*3600 + local.Minute()*60 + local.Second()

	var start, end int
	var err error
	if r.StartTime != "" {
		if start, err = parseTimeOfDay(r.StartTime); err != nil {
			return false, err
		}
	}
	if r.EndTime != "" {
		if end, err = parseTimeOfDay(r.EndTime); err != nil {
			return false, err
		}
	}

	switch {
	case r.EndTime == "":
		return tod >= start, nil
	case r.StartTime == "":
		return tod < end, nil
	case start == end:
		// equal bounds cover the whole day
		return true, nil
	case start < end:
		return tod >= start && tod < end, nil
	default:
		// window wraps past midnight, e.g. 22:00-06:00
		return tod >= start || tod < end, nil
	}
}

func (r *TariffRestrictions) matchesDate(local time.Time) (bool, error) {
	if r.StartDate == "" && r.EndDate == "" {
		return true, nil
	}
	day := local.Format(dateLayout)
	if r.StartDate != "" {
		if _, err := time.Parse(dateLayout, r.StartDate); err != nil {
			return false, fmt.Errorf("%w: start_date %q", ErrInvalidRestriction, r.StartDate)
		}
		if day < r.StartDate {
			return false, nil
		}
	}
	if r.EndDate != "" {
		if _, err := time.Parse(dateLayout, r.EndDate); err != nil {
			return false, fmt.Errorf("%w: end_date %q", ErrInvalidRestriction, r.EndDate)
		}
		if day >= r.EndDate {
			return false, nil
		}
	}
	return true, nil
}

func (r *TariffRestrictions) matchesDayOfWeek(local time.Time) bool {
	if len(r.DayOfWeek) == 0 {
		return true
	}
	today := dayOfWeek(local.Weekday())
	for _, d := range r.DayOfWeek {
		if d == today {
			return true
		}
	}
	return false
}

// withinBounds checks lo <= v < hi for the bounds that are set.
func withinBounds(v, lo, hi *Decimal) bool {
	if lo == nil && hi == nil {
		return true
	}
	if v == nil {
		return false
	}
	if lo != nil && v.Cmp(*lo) < 0 {
		return false
	}
	if hi != nil && v.Cmp(*hi) >= 0 {
		return false
	}
	return true
}

func parseTimeOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: time of day %q", ErrInvalidRestriction, s)
	}
	return t.Hour()*3600 + t.Minute()*60, nil
}
