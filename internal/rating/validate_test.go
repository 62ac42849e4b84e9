package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTariffValidate(t *testing.T) {
	valid := tariffOf("T1", element(&TariffRestrictions{StartTime: "22:00", EndTime: "06:00", DayOfWeek: []DayOfWeek{Saturday}},
		component(DimensionEnergy, "0.25", 1)))

	tests := []struct {
		name   string
		mutate func(t *Tariff)
		want   error
	}{
		{"valid tariff", func(t *Tariff) {}, nil},
		{"missing id", func(t *Tariff) { t.ID = "" }, ErrInvalidTariff},
		{"bad currency", func(t *Tariff) { t.Currency = "EURO" }, ErrInvalidTariff},
		{"no elements", func(t *Tariff) { t.Elements = nil }, ErrInvalidTariff},
		{"unknown dimension", func(t *Tariff) {
			t.Elements = []TariffElement{element(nil, component("VOLUME", "1", 1))}
		}, ErrInvalidTariff},
		{"negative price", func(t *Tariff) {
			t.Elements = []TariffElement{element(nil, component(DimensionTime, "-1", 1))}
		}, ErrInvalidTariff},
		{"malformed time of day", func(t *Tariff) {
			t.Elements = []TariffElement{element(&TariffRestrictions{StartTime: "25:99"}, component(DimensionTime, "1", 1))}
		}, ErrInvalidRestriction},
		{"malformed date", func(t *Tariff) {
			t.Elements = []TariffElement{element(&TariffRestrictions{EndDate: "2024/01/01"}, component(DimensionTime, "1", 1))}
		}, ErrInvalidRestriction},
		{"unknown weekday", func(t *Tariff) {
			t.Elements = []TariffElement{element(&TariffRestrictions{DayOfWeek: []DayOfWeek{"FUNDAY"}}, component(DimensionTime, "1", 1))}
		}, ErrInvalidRestriction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tariff := cloneTariffs([]Tariff{valid})[0]
			tt.mutate(&tariff)

			err := tariff.Validate()

			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
