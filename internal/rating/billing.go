package rating

import (
	"sort"
	"time"
)

// BillingKey identifies an accumulation bucket. Price is the canonical decimal
// string so that numerically equal prices share a bucket.
type BillingKey struct {
	StepSize int
	Price    string
}

// BilledBucket accumulates raw consumption billed at one (step size, price).
// Quantities are in Wh for energy buckets and in seconds for time buckets.
type BilledBucket struct {
	StepSize int
	Price    Decimal
	Raw      Decimal
	Billed   Decimal
	Cost     Decimal
}

// FlatCharge is one flat fee triggered by a charging period.
type FlatCharge struct {
	SequenceID int
	Price      Decimal
}

// CostDetails is the audit trail of a rating run.
type CostDetails struct {
	TotalEnergyWh    Decimal
	TotalTime        time.Duration
	TotalParkingTime time.Duration

	BilledEnergyElements map[BillingKey]*BilledBucket
	BilledTimeElements   map[BillingKey]*BilledBucket
	BilledFlatElements   []FlatCharge

	BilledEnergyWh  Decimal
	BilledTimeSecs  Decimal
	TotalEnergyCost Decimal
	TotalTimeCost   Decimal
	TotalFlatCost   Decimal
	TotalCost       Decimal
}

func newCostDetails() *CostDetails {
	return &CostDetails{
		BilledEnergyElements: make(map[BillingKey]*BilledBucket),
		BilledTimeElements:   make(map[BillingKey]*BilledBucket),
	}
}

// billPeriods computes per-period energy and billed dimensions, fills the
// buckets, then applies step rounding and prices them.
func billPeriods(periods []*periodBuilder) *CostDetails {
	details := newCostDetails()

	for _, p := range periods {
		duration := p.duration()
		p.energy = p.stopValue.EnergyWh.Sub(p.startValue.EnergyWh)
		p.power = averagePowerKW(p.energy, duration)

		details.TotalEnergyWh = details.TotalEnergyWh.Add(p.energy)
		details.TotalTime += duration
		if p.energy.IsZero() {
			details.TotalParkingTime += duration
		}

		if c, ok := p.components[DimensionEnergy]; ok && c.Price.Sign() > 0 {
			c := c
			p.energyPrice = &c
			p.dimensions = append(p.dimensions, CdrDimension{Type: DimensionEnergy, Volume: p.energy})
			accumulate(details.BilledEnergyElements, c, p.energy)
		}
		if c, ok := p.components[DimensionTime]; ok && c.Price.Sign() > 0 {
			c := c
			p.timePrice = &c
			secs := seconds(duration)
			p.dimensions = append(p.dimensions, CdrDimension{Type: DimensionTime, Volume: secs})
			accumulate(details.BilledTimeElements, c, secs)
		}
		if c, ok := p.components[DimensionFlat]; ok && c.Price.Sign() > 0 {
			c := c
			p.flatPrice = &c
			details.BilledFlatElements = append(details.BilledFlatElements, FlatCharge{SequenceID: p.sequenceID, Price: c.Price})
		}
		// PARKING_TIME components are carried but not priced.
	}

	for _, b := range sortedBuckets(details.BilledEnergyElements) {
		b.Billed = b.Raw.CeilToStep(int64(b.StepSize))
		b.Cost = b.Billed.Div(whPerKWh).Mul(b.Price)
		details.BilledEnergyWh = details.BilledEnergyWh.Add(b.Billed)
		details.TotalEnergyCost = details.TotalEnergyCost.Add(b.Cost)
	}
	for _, b := range sortedBuckets(details.BilledTimeElements) {
		b.Billed = b.Raw.CeilToStep(int64(b.StepSize))
		b.Cost = b.Billed.Div(secondsPerHour).Mul(b.Price)
		details.BilledTimeSecs = details.BilledTimeSecs.Add(b.Billed)
		details.TotalTimeCost = details.TotalTimeCost.Add(b.Cost)
	}
	for _, f := range details.BilledFlatElements {
		details.TotalFlatCost = details.TotalFlatCost.Add(f.Price)
	}

	details.TotalCost = details.TotalEnergyCost.Add(details.TotalTimeCost).Add(details.TotalFlatCost)
	return details
}

func accumulate(buckets map[BillingKey]*BilledBucket, c PriceComponent, quantity Decimal) {
	key := BillingKey{StepSize: int(c.step()), Price: c.Price.Key()}
	b, ok := buckets[key]
	if !ok {
		b = &BilledBucket{StepSize: key.StepSize, Price: c.Price}
		buckets[key] = b
	}
	b.Raw = b.Raw.Add(quantity)
}

// sortedBuckets orders buckets by step size, then price, for reproducible sums.
func sortedBuckets(buckets map[BillingKey]*BilledBucket) []*BilledBucket {
	sorted := make([]*BilledBucket, 0, len(buckets))
	for _, b := range buckets {
		sorted = append(sorted, b)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StepSize != sorted[j].StepSize {
			return sorted[i].StepSize < sorted[j].StepSize
		}
		return sorted[i].Price.Cmp(sorted[j].Price) < 0
	})
	return sorted
}
