package rating

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTariffRestrictionsMatches(t *testing.T) {
	monday := func(h, m int) periodFacts {
		return periodFacts{localStart: time.Date(2024, 3, 4, h, m, 0, 0, time.UTC)}
	}

	tests := []struct {
		name  string
		r     *TariffRestrictions
		facts periodFacts
		want  bool
	}{
		{"nil restrictions always match", nil, monday(3, 0), true},
		{"inside time window", &TariffRestrictions{StartTime: "08:00", EndTime: "18:00"}, monday(8, 0), true},
		{"end of time window is exclusive", &TariffRestrictions{StartTime: "08:00", EndTime: "18:00"}, monday(18, 0), false},
		{"window wrapping midnight before midnight", &TariffRestrictions{StartTime: "22:00", EndTime: "06:00"}, monday(23, 30), true},
		{"window wrapping midnight after midnight", &TariffRestrictions{StartTime: "22:00", EndTime: "06:00"}, monday(5, 59), true},
		{"window wrapping midnight during the day", &TariffRestrictions{StartTime: "22:00", EndTime: "06:00"}, monday(12, 0), false},
		{"equal start and end cover the whole day", &TariffRestrictions{StartTime: "00:00", EndTime: "00:00"}, monday(13, 15), true},
		{"equal start and end include the bound itself", &TariffRestrictions{StartTime: "08:00", EndTime: "08:00"}, monday(8, 0), true},
		{"only start time", &TariffRestrictions{StartTime: "12:00"}, monday(11, 59), false},
		{"only end time", &TariffRestrictions{EndTime: "12:00"}, monday(11, 59), true},
		{"start date is inclusive", &TariffRestrictions{StartDate: "2024-03-04"}, monday(0, 0), true},
		{"end date is exclusive", &TariffRestrictions{EndDate: "2024-03-04"}, monday(10, 0), false},
		{"weekday listed", &TariffRestrictions{DayOfWeek: []DayOfWeek{Friday, Monday}}, monday(10, 0), true},
		{"weekday not listed", &TariffRestrictions{DayOfWeek: []DayOfWeek{Saturday, Sunday}}, monday(10, 0), false},
		{"min duration reached", &TariffRestrictions{MinDuration: intPtr(600)}, periodFacts{elapsed: 10 * time.Minute}, true},
		{"max duration reached", &TariffRestrictions{MaxDuration: intPtr(600)}, periodFacts{elapsed: 10 * time.Minute}, false},
		{"energy bound without energy facts", &TariffRestrictions{MaxKWh: decPtr("10")}, periodFacts{}, false},
		{"energy below max", &TariffRestrictions{MaxKWh: decPtr("10")}, periodFacts{consumedKWh: decPtr("9.99")}, true},
		{"power below min", &TariffRestrictions{MinPower: decPtr("11")}, periodFacts{powerKW: decPtr("7.4")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.r.matches(tt.facts)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("malformed date is an invalid restriction", func(t *testing.T) {
		_, err := (&TariffRestrictions{StartDate: "04/03/2024"}).matches(monday(0, 0))

		assert.ErrorIs(t, err, ErrInvalidRestriction)
	})
}

func TestMatchElement(t *testing.T) {
	t.Run("returns nothing when no element matches", func(t *testing.T) {
		tariffs := []Tariff{tariffOf("T1", element(&TariffRestrictions{MinDuration: intPtr(60)}))}

		tariff, matched, err := matchElement(tariffs, periodFacts{})

		require.NoError(t, err)
		assert.Nil(t, tariff)
		assert.Nil(t, matched)
	})

	t.Run("searches later tariffs after earlier ones", func(t *testing.T) {
		tariffs := []Tariff{
			tariffOf("T1", element(&TariffRestrictions{MinDuration: intPtr(60)})),
			tariffOf("T2", element(nil, component(DimensionTime, "1", 1))),
		}

		tariff, matched, err := matchElement(tariffs, periodFacts{})

		require.NoError(t, err)
		assert.Equal(t, "T2", tariff.ID)
		assert.Equal(t, DimensionTime, matched.PriceComponents[0].Type)
	})
}

func TestComponentsByDimension(t *testing.T) {
	byDimension := componentsByDimension([]PriceComponent{
		component(DimensionEnergy, "0.30", 1),
		component(DimensionEnergy, "0.10", 1),
		component(DimensionFlat, "1", 1),
	})

	assert.Len(t, byDimension, 2)
	assertDecimal(t, "0.30", byDimension[DimensionEnergy].Price)
}
