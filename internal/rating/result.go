package rating

// buildResult copies the pass-through fields of cdr into a new record and
// replaces periods, totals and currency with the computed ones.
func buildResult(cdr CDR, tariffs []Tariff, periods []*periodBuilder, details *CostDetails) *RatedCDR {
	rated := &RatedCDR{CDR: cdr, CostDetails: details}

	rated.Currency = tariffs[0].Currency
	for _, p := range periods {
		if p.tariff != nil {
			rated.Currency = p.tariff.Currency
			break
		}
	}

	rated.Tariffs = cloneTariffs(tariffs)
	rated.SignedData = cloneSignedData(cdr.SignedData)
	rated.ChargingPeriods = make([]ChargingPeriod, len(periods))
	for i, p := range periods {
		rated.ChargingPeriods[i] = p.freeze(i, len(periods))
	}

	rated.TotalCost = details.TotalCost
	rated.TotalEnergy = details.TotalEnergyWh.Div(whPerKWh)
	rated.TotalTime = hours(details.TotalTime)
	rated.TotalParkingTime = hours(details.TotalParkingTime)
	return rated
}

func cloneTariffs(tariffs []Tariff) []Tariff {
	cloned := make([]Tariff, len(tariffs))
	for i, t := range tariffs {
		cloned[i] = t
		cloned[i].Elements = make([]TariffElement, len(t.Elements))
		for j, e := range t.Elements {
			cloned[i].Elements[j] = TariffElement{
				PriceComponents: append([]PriceComponent{}, e.PriceComponents...),
				Restrictions:    cloneRestrictions(e.Restrictions),
			}
		}
	}
	return cloned
}

func cloneRestrictions(r *TariffRestrictions) *TariffRestrictions {
	if r == nil {
		return nil
	}
	c := *r
	c.DayOfWeek = append([]DayOfWeek(nil), r.DayOfWeek...)
	c.MinKWh = cloneDecimal(r.MinKWh)
	c.MaxKWh = cloneDecimal(r.MaxKWh)
	c.MinPower = cloneDecimal(r.MinPower)
	c.MaxPower = cloneDecimal(r.MaxPower)
	c.MinDuration = cloneInt(r.MinDuration)
	c.MaxDuration = cloneInt(r.MaxDuration)
	return &c
}

func cloneSignedData(s *SignedData) *SignedData {
	if s == nil {
		return nil
	}
	c := *s
	c.SignedValues = append([]SignedValue(nil), s.SignedValues...)
	return &c
}

func cloneDecimal(d *Decimal) *Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
