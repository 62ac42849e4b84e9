package rating

import (
	"fmt"
	"time"
)

// imputeBoundaries fills missing start values by linear interpolation in a
// single left-to-right pass, then closes every period with its successor's
// start value. It never extrapolates.
func imputeBoundaries(periods []*periodBuilder) error {
	if len(periods) == 0 {
		return nil
	}
	if periods[0].startValue == nil {
		return fmt.Errorf("%w: period 1 at %s has no start reading to anchor on",
			ErrImputationFailed, periods[0].start.Format(timeLayout))
	}

	for i := 1; i < len(periods); i++ {
		p := periods[i]
		if p.startValue != nil {
			continue
		}
		lower := periods[i-1].startValue

		upper := upperAnchor(periods, i)
		if upper == nil {
			return fmt.Errorf("%w: period %d at %s has no later reading to interpolate towards",
				ErrImputationFailed, p.sequenceID, p.start.Format(timeLayout))
		}

		p.startValue = &MeteringValue{
			Timestamp:  p.start,
			EnergyWh:   interpolate(lower.Timestamp, lower.EnergyWh, upper.Timestamp, upper.EnergyWh, p.start),
			Provenance: Imputed,
		}
	}

	for i := 0; i+1 < len(periods); i++ {
		if periods[i].stopValue == nil {
			periods[i].stopValue = periods[i+1].startValue
		}
	}
	last := periods[len(periods)-1]
	if last.stopValue == nil {
		return fmt.Errorf("%w: period %d has no reading at session stop %s, extrapolation is not supported",
			ErrImputationFailed, last.sequenceID, last.stop.Format(timeLayout))
	}
	return nil
}

// upperAnchor walks forward from period i to the first later period with a
// known start value, falling back to the stop value of the last period walked.
func upperAnchor(periods []*periodBuilder, i int) *MeteringValue {
	j := i
	for ; j+1 < len(periods); j++ {
		if next := periods[j+1]; next.startValue != nil {
			return next.startValue
		}
	}
	return periods[j].stopValue
}

// interpolate returns e0 + (e1-e0) * (t-t0) / (t1-t0) in exact decimal arithmetic.
func interpolate(t0 time.Time, e0 Decimal, t1 time.Time, e1 Decimal, t time.Time) Decimal {
	span := t1.Sub(t0)
	if span <= 0 {
		return e0
	}
	elapsed := NewDecimalFromInt64(int64(t.Sub(t0)))
	return e0.Add(e1.Sub(e0).Mul(elapsed).Div(NewDecimalFromInt64(int64(span))))
}
