package rating

import (
	"fmt"
	"time"
)

var (
	whPerKWh       = NewDecimalFromInt64(1000)
	secondsPerHour = NewDecimalFromInt64(3600)
	nanosPerSecond = NewDecimalFromInt64(int64(time.Second))
)

// assemblePeriods turns markers into linked staging periods, attaches measured
// boundary values and the price components of the first matching element.
func assemblePeriods(
	start, stop time.Time,
	markers []time.Time,
	series []Reading,
	tariffs []Tariff,
	loc *time.Location,
) ([]*periodBuilder, error) {
	byInstant := make(map[int64]Reading, len(series))
	for _, r := range series {
		byInstant[r.Timestamp.UnixNano()] = r
	}
	measuredAt := func(t time.Time) *MeteringValue {
		r, ok := byInstant[t.UnixNano()]
		if !ok {
			return nil
		}
		return &MeteringValue{Timestamp: r.Timestamp, EnergyWh: r.EnergyWh, Provenance: Measured}
	}

	periods := make([]*periodBuilder, len(markers))
	for i, marker := range markers {
		p := &periodBuilder{sequenceID: i + 1, start: marker, stop: stop}
		if i+1 < len(markers) {
			p.stop = markers[i+1]
		}
		p.startValue = measuredAt(p.start)
		p.stopValue = measuredAt(p.stop)

		tariff, element, err := matchElement(tariffs, factsFor(p, start, series, loc))
		if err != nil {
			return nil, fmt.Errorf("period %d starting %s: %w", p.sequenceID, p.start.Format(timeLayout), err)
		}
		if element != nil {
			p.tariff = tariff
			p.components = componentsByDimension(element.PriceComponents)
		}
		periods[i] = p
	}
	return periods, nil
}

// matchElement returns the first element, in tariff order then element order,
// whose restrictions hold. A later element never wins over an earlier match,
// whatever its price.
func matchElement(tariffs []Tariff, facts periodFacts) (*Tariff, *TariffElement, error) {
	for ti := range tariffs {
		for ei := range tariffs[ti].Elements {
			element := &tariffs[ti].Elements[ei]
			ok, err := element.Restrictions.matches(facts)
			if err != nil {
				return nil, nil, fmt.Errorf("tariff %s element %d: %w", tariffs[ti].ID, ei, err)
			}
			if ok {
				return &tariffs[ti], element, nil
			}
		}
	}
	return nil, nil, nil
}

// componentsByDimension keeps the first component of each dimension.
func componentsByDimension(components []PriceComponent) map[DimensionType]PriceComponent {
	byDimension := make(map[DimensionType]PriceComponent, len(components))
	for _, c := range components {
		if _, seen := byDimension[c.Type]; !seen {
			byDimension[c.Type] = c
		}
	}
	return byDimension
}

func factsFor(p *periodBuilder, sessionStart time.Time, series []Reading, loc *time.Location) periodFacts {
	facts := periodFacts{
		localStart: p.start.In(loc),
		elapsed:    p.start.Sub(sessionStart),
	}
	atStart, okStart := energyAt(series, p.start)
	if okStart {
		consumed := atStart.Sub(series[0].EnergyWh).Div(whPerKWh)
		facts.consumedKWh = &consumed
	}
	atStop, okStop := energyAt(series, p.stop)
	if okStart && okStop {
		power := averagePowerKW(atStop.Sub(atStart), p.duration())
		facts.powerKW = &power
	}
	return facts
}

// energyAt interpolates the register at t from the series, if t is covered.
func energyAt(series []Reading, t time.Time) (Decimal, bool) {
	for i := 0; i+1 < len(series); i++ {
		lower, upper := series[i], series[i+1]
		if t.Before(lower.Timestamp) || t.After(upper.Timestamp) {
			continue
		}
		return interpolate(lower.Timestamp, lower.EnergyWh, upper.Timestamp, upper.EnergyWh, t), true
	}
	return Decimal{}, false
}

func hours(d time.Duration) Decimal {
	return seconds(d).Div(secondsPerHour)
}

func seconds(d time.Duration) Decimal {
	return NewDecimalFromInt64(int64(d)).Div(nanosPerSecond)
}

func averagePowerKW(energyWh Decimal, d time.Duration) Decimal {
	if d <= 0 {
		return Decimal{}
	}
	return energyWh.Div(whPerKWh).Div(hours(d))
}
