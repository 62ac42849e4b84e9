package rating

import (
	"time"
)

// ChargingPeriod is a contiguous slice of a session priced by one tariff element.
// Previous and Next index into the period slice of the same CDR, -1 when absent.
type ChargingPeriod struct {
	SequenceID         int                              `json:"sequence_id"`
	StartTimestamp     time.Time                        `json:"start_date_time"`
	StopTimestamp      time.Time                        `json:"end_date_time"`
	Previous           int                              `json:"-"`
	Next               int                              `json:"-"`
	StartMeteringValue *MeteringValue                   `json:"start_metering_value,omitempty"`
	StopMeteringValue  *MeteringValue                   `json:"stop_metering_value,omitempty"`
	EnergyWh           Decimal                          `json:"energy_wh"`
	AveragePowerKW     Decimal                          `json:"average_power_kw"`
	TariffID           string                           `json:"tariff_id,omitempty"`
	PriceComponents    map[DimensionType]PriceComponent `json:"price_components,omitempty"`
	Dimensions         []CdrDimension                   `json:"dimensions"`
	EnergyPrice        *Decimal                         `json:"energy_price,omitempty"`
	EnergyStepSize     int                              `json:"energy_step_size,omitempty"`
	TimePrice          *Decimal                         `json:"time_price,omitempty"`
	TimeStepSize       int                              `json:"time_step_size,omitempty"`
	FlatPrice          *Decimal                         `json:"flat_price,omitempty"`
}

// Duration returns the length of the period.
func (p ChargingPeriod) Duration() time.Duration {
	return p.StopTimestamp.Sub(p.StartTimestamp)
}

// periodBuilder is the mutable staging form of a ChargingPeriod. It is filled
// in by assembly, imputation and billing, then frozen.
type periodBuilder struct {
	sequenceID int
	start      time.Time
	stop       time.Time
	startValue *MeteringValue
	stopValue  *MeteringValue

	tariff     *Tariff
	components map[DimensionType]PriceComponent

	energy      Decimal
	power       Decimal
	dimensions  []CdrDimension
	energyPrice *PriceComponent
	timePrice   *PriceComponent
	flatPrice   *PriceComponent
}

func (b *periodBuilder) duration() time.Duration {
	return b.stop.Sub(b.start)
}

func (b *periodBuilder) freeze(index, count int) ChargingPeriod {
	p := ChargingPeriod{
		SequenceID:         b.sequenceID,
		StartTimestamp:     b.start,
		StopTimestamp:      b.stop,
		Previous:           index - 1,
		Next:               index + 1,
		StartMeteringValue: copyValue(b.startValue),
		StopMeteringValue:  copyValue(b.stopValue),
		EnergyWh:           b.energy,
		AveragePowerKW:     b.power,
		Dimensions:         append([]CdrDimension{}, b.dimensions...),
	}
	if index == count-1 {
		p.Next = -1
	}
	if b.tariff != nil {
		p.TariffID = b.tariff.ID
	}
	if len(b.components) > 0 {
		p.PriceComponents = make(map[DimensionType]PriceComponent, len(b.components))
		for k, v := range b.components {
			p.PriceComponents[k] = v
		}
	}
	if b.energyPrice != nil {
		price := b.energyPrice.Price
		p.EnergyPrice = &price
		p.EnergyStepSize = int(b.energyPrice.step())
	}
	if b.timePrice != nil {
		price := b.timePrice.Price
		p.TimePrice = &price
		p.TimeStepSize = int(b.timePrice.step())
	}
	if b.flatPrice != nil {
		price := b.flatPrice.Price
		p.FlatPrice = &price
	}
	return p
}

func copyValue(v *MeteringValue) *MeteringValue {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
