// Package rating computes the cost breakdown of a completed charging session.
//
// A rating run slices the session into charging periods at every meter
// reading and every duration restriction boundary, prices each period with
// the first matching tariff element, interpolates missing readings and
// aggregates billed energy, time and flat fees with step rounding. Rate is
// a pure function of its inputs and safe for concurrent use.
package rating

import (
	"fmt"
	"time"
)

// Rate rates a completed session. readings is the explicit metering series
// and may be nil; tariffs are the candidate tariffs and default to those on
// the CDR. The input CDR is never modified. Every returned error matches
// ErrRatingFailed and one of the kind errors of this package.
func Rate(cdr CDR, readings []Reading, tariffs []Tariff) (*RatedCDR, error) {
	rated, err := rate(cdr, readings, tariffs)
	if err != nil {
		return nil, failed(cdr.ID, err)
	}
	return rated, nil
}

func rate(cdr CDR, readings []Reading, candidates []Tariff) (*RatedCDR, error) {
	if !cdr.Stop.After(cdr.Start) {
		return nil, fmt.Errorf("%w: stop %s is not after start %s",
			ErrInvalidSession, cdr.Stop.Format(timeLayout), cdr.Start.Format(timeLayout))
	}
	loc, err := location(cdr.Location.TimeZone)
	if err != nil {
		return nil, err
	}

	series, err := resolveMeteringSeries(cdr, readings)
	if err != nil {
		return nil, err
	}
	tariffs, err := resolveTariffs(cdr, candidates)
	if err != nil {
		return nil, err
	}

	// The first candidate alone governs where periods are cut.
	markers := buildMarkers(cdr.Start, cdr.Stop, series, tariffs[0])

	periods, err := assemblePeriods(cdr.Start, cdr.Stop, markers, series, tariffs, loc)
	if err != nil {
		return nil, err
	}
	if err := imputeBoundaries(periods); err != nil {
		return nil, err
	}
	details := billPeriods(periods)
	return buildResult(cdr, tariffs, periods, details), nil
}

func location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: time zone %q: %v", ErrInvalidSession, name, err)
	}
	return loc, nil
}
