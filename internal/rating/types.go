package rating

import (
	"fmt"
	"strings"
	"time"
)

// DimensionType identifies what a price component or a billed volume refers to.
type DimensionType string

const (
	DimensionEnergy      DimensionType = "ENERGY"
	DimensionTime        DimensionType = "TIME"
	DimensionFlat        DimensionType = "FLAT"
	DimensionParkingTime DimensionType = "PARKING_TIME"
)

// DayOfWeek is an upper-case English weekday name, as used by tariff restrictions.
type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

func dayOfWeek(w time.Weekday) DayOfWeek {
	return DayOfWeek(strings.ToUpper(w.String()))
}

// Provenance tells whether a metering value was read from a meter or interpolated.
type Provenance string

const (
	Measured Provenance = "Measured"
	Imputed  Provenance = "Imputed"
)

// Reading is one timestamped cumulative energy register value.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	EnergyWh  Decimal   `json:"energy_wh"`
}

// MeteringValue is a reading attached to a charging period boundary.
type MeteringValue struct {
	Timestamp  time.Time  `json:"timestamp"`
	EnergyWh   Decimal    `json:"energy_wh"`
	Provenance Provenance `json:"provenance"`
}

// PriceComponent prices one dimension. StepSize is the billing granularity
// in Wh for ENERGY and in seconds for TIME and PARKING_TIME.
type PriceComponent struct {
	Type     DimensionType `json:"type"`
	Price    Decimal       `json:"price"`
	StepSize int           `json:"step_size"`
}

func (p PriceComponent) step() int64 {
	if p.StepSize < 1 {
		return 1
	}
	return int64(p.StepSize)
}

// TariffRestrictions gate when a tariff element applies. All set fields must hold.
type TariffRestrictions struct {
	StartTime   string      `json:"start_time,omitempty"`
	EndTime     string      `json:"end_time,omitempty"`
	StartDate   string      `json:"start_date,omitempty"`
	EndDate     string      `json:"end_date,omitempty"`
	MinKWh      *Decimal    `json:"min_kwh,omitempty"`
	MaxKWh      *Decimal    `json:"max_kwh,omitempty"`
	MinPower    *Decimal    `json:"min_power,omitempty"`
	MaxPower    *Decimal    `json:"max_power,omitempty"`
	MinDuration *int        `json:"min_duration,omitempty"`
	MaxDuration *int        `json:"max_duration,omitempty"`
	DayOfWeek   []DayOfWeek `json:"day_of_week,omitempty"`
}

// TariffElement is a conditional set of price components.
type TariffElement struct {
	PriceComponents []PriceComponent    `json:"price_components"`
	Restrictions    *TariffRestrictions `json:"restrictions,omitempty"`
}

// Tariff is an ordered list of elements billed in one currency.
type Tariff struct {
	ID       string          `json:"id"`
	Currency string          `json:"currency"`
	Elements []TariffElement `json:"elements"`
}

// SignedValue is one signed meter value; PlainData holds the register in Wh.
type SignedValue struct {
	Nature     string `json:"nature"`
	PlainData  string `json:"plain_data"`
	SignedData string `json:"signed_data"`
}

// EnergyWh returns the register value carried in the plain data.
func (v SignedValue) EnergyWh() (Decimal, error) {
	energy, err := NewDecimal(strings.TrimSpace(v.PlainData))
	if err != nil {
		return Decimal{}, fmt.Errorf("signed value %q: %w", v.Nature, err)
	}
	return energy, nil
}

// SignedData references the signed meter values of a session.
type SignedData struct {
	EncodingMethod string        `json:"encoding_method"`
	PublicKey      string        `json:"public_key,omitempty"`
	SignedValues   []SignedValue `json:"signed_values"`
	URL            string        `json:"url,omitempty"`
}

// CdrDimension is a billed volume. ENERGY volumes are in Wh, TIME volumes in seconds.
type CdrDimension struct {
	Type   DimensionType `json:"type"`
	Volume Decimal       `json:"volume"`
}

// CdrLocation is the charging location a session took place at.
type CdrLocation struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	Country     string `json:"country,omitempty"`
	EvseUID     string `json:"evse_uid,omitempty"`
	ConnectorID string `json:"connector_id,omitempty"`
	TimeZone    string `json:"time_zone,omitempty"`
}

// CDR is the charge detail record of one completed session.
type CDR struct {
	ID               string           `json:"id"`
	CountryCode      string           `json:"country_code,omitempty"`
	PartyID          string           `json:"party_id,omitempty"`
	SessionID        string           `json:"session_id,omitempty"`
	AuthID           string           `json:"auth_id,omitempty"`
	AuthMethod       string           `json:"auth_method,omitempty"`
	Location         CdrLocation      `json:"location"`
	Currency         string           `json:"currency,omitempty"`
	Start            time.Time        `json:"start_date_time"`
	Stop             time.Time        `json:"end_date_time"`
	Tariffs          []Tariff         `json:"tariffs,omitempty"`
	ChargingPeriods  []ChargingPeriod `json:"charging_periods,omitempty"`
	SignedData       *SignedData      `json:"signed_data,omitempty"`
	TotalCost        Decimal          `json:"total_cost"`
	TotalEnergy      Decimal          `json:"total_energy"`
	TotalTime        Decimal          `json:"total_time"`
	TotalParkingTime Decimal          `json:"total_parking_time"`
	Remark           string           `json:"remark,omitempty"`
	LastUpdated      time.Time        `json:"last_updated"`
}

// RatedCDR is the output of Rate: a new CDR with computed periods and totals.
type RatedCDR struct {
	CDR

	// CostDetails is kept for auditing and never serialized.
	CostDetails *CostDetails `json:"-"`
}
