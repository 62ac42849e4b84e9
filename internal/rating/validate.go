package rating

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTariff is returned by Validate for tariffs that can never be rated with.
var ErrInvalidTariff = errors.New("rating: invalid tariff")

var weekdays = map[DayOfWeek]bool{
	Monday: true, Tuesday: true, Wednesday: true, Thursday: true,
	Friday: true, Saturday: true, Sunday: true,
}

// Validate checks a tariff before it is stored in a catalog. Rate itself
// accepts any tariff and reports malformed restrictions only when they are
// evaluated.
func (t Tariff) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTariff)
	}
	if len(t.Currency) != 3 {
		return fmt.Errorf("%w: %s: currency %q is not an ISO 4217 code", ErrInvalidTariff, t.ID, t.Currency)
	}
	if len(t.Elements) == 0 {
		return fmt.Errorf("%w: %s: no elements", ErrInvalidTariff, t.ID)
	}
	for i, e := range t.Elements {
		if len(e.PriceComponents) == 0 {
			return fmt.Errorf("%w: %s: element %d has no price components", ErrInvalidTariff, t.ID, i)
		}
		for _, pc := range e.PriceComponents {
			switch pc.Type {
			case DimensionEnergy, DimensionTime, DimensionFlat, DimensionParkingTime:
			default:
				return fmt.Errorf("%w: %s: element %d: unknown dimension %q", ErrInvalidTariff, t.ID, i, pc.Type)
			}
			if pc.Price.Sign() < 0 {
				return fmt.Errorf("%w: %s: element %d: negative %s price", ErrInvalidTariff, t.ID, i, pc.Type)
			}
		}
		if err := e.Restrictions.validate(); err != nil {
			return fmt.Errorf("%s: element %d: %w", t.ID, i, err)
		}
	}
	return nil
}

func (r *TariffRestrictions) validate() error {
	if r == nil {
		return nil
	}
	for _, s := range []string{r.StartTime, r.EndTime} {
		if s == "" {
			continue
		}
		if _, err := parseTimeOfDay(s); err != nil {
			return err
		}
	}
	for _, s := range []string{r.StartDate, r.EndDate} {
		if s == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, s); err != nil {
			return fmt.Errorf("%w: date %q", ErrInvalidRestriction, s)
		}
	}
	for _, d := range r.DayOfWeek {
		if !weekdays[d] {
			return fmt.Errorf("%w: day of week %q", ErrInvalidRestriction, d)
		}
	}
	return nil
}
