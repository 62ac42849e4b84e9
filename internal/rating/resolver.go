package rating

import (
	"fmt"
)

// resolveTariffs returns the candidate tariffs, falling back to the ones on the CDR.
func resolveTariffs(cdr CDR, candidates []Tariff) ([]Tariff, error) {
	if len(candidates) > 0 {
		return candidates, nil
	}
	if len(cdr.Tariffs) > 0 {
		return cdr.Tariffs, nil
	}
	return nil, fmt.Errorf("%w: none supplied and none attached", ErrNoTariffAvailable)
}

// resolveMeteringSeries picks the ground-truth readings for a session, in order:
// explicit readings, the first two signed values, or the energy of the last
// charging period already on the CDR spread over the whole session.
func resolveMeteringSeries(cdr CDR, explicit []Reading) ([]Reading, error) {
	var series []Reading
	switch {
	case explicit != nil:
		series = explicit
	case cdr.SignedData != nil && len(cdr.SignedData.SignedValues) >= 2:
		first, err := cdr.SignedData.SignedValues[0].EnergyWh()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInsufficientMeteringData, err)
		}
		second, err := cdr.SignedData.SignedValues[1].EnergyWh()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInsufficientMeteringData, err)
		}
		series = []Reading{
			{Timestamp: cdr.Start, EnergyWh: first},
			{Timestamp: cdr.Stop, EnergyWh: second},
		}
	default:
		if energy, ok := lastPeriodEnergy(cdr.ChargingPeriods); ok {
			series = []Reading{
				{Timestamp: cdr.Start, EnergyWh: Decimal{}},
				{Timestamp: cdr.Stop, EnergyWh: energy},
			}
		}
	}

	if err := validateSeries(series, cdr); err != nil {
		return nil, err
	}
	return series, nil
}

func lastPeriodEnergy(periods []ChargingPeriod) (Decimal, bool) {
	if len(periods) == 0 {
		return Decimal{}, false
	}
	for _, dim := range periods[len(periods)-1].Dimensions {
		if dim.Type == DimensionEnergy {
			return dim.Volume, true
		}
	}
	return Decimal{}, false
}

func validateSeries(series []Reading, cdr CDR) error {
	if len(series) < 2 {
		return fmt.Errorf("%w: %d usable readings, need at least 2", ErrInsufficientMeteringData, len(series))
	}
	first, last := series[0], series[len(series)-1]
	if first.Timestamp.Before(cdr.Start) {
		return fmt.Errorf("%w: first reading at %s precedes session start %s",
			ErrInsufficientMeteringData, first.Timestamp.Format(timeLayout), cdr.Start.Format(timeLayout))
	}
	if last.Timestamp.After(cdr.Stop) {
		return fmt.Errorf("%w: last reading at %s exceeds session stop %s",
			ErrInsufficientMeteringData, last.Timestamp.Format(timeLayout), cdr.Stop.Format(timeLayout))
	}
	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1], series[i]
		if !cur.Timestamp.After(prev.Timestamp) {
			return fmt.Errorf("%w: reading %d at %s is not after reading %d at %s",
				ErrInsufficientMeteringData, i, cur.Timestamp.Format(timeLayout), i-1, prev.Timestamp.Format(timeLayout))
		}
		if cur.EnergyWh.Cmp(prev.EnergyWh) < 0 {
			return fmt.Errorf("%w: reading %d at %s decreases energy from %s to %s Wh",
				ErrInsufficientMeteringData, i, cur.Timestamp.Format(timeLayout), prev.EnergyWh, cur.EnergyWh)
		}
	}
	return nil
}
