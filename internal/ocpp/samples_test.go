package ocpp

import (
	"testing"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleTime = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func TestEnergySamples(t *testing.T) {
	t.Run("keeps energy register samples with defaults", func(t *testing.T) {
		values := []types.MeterValue{{
			Timestamp: types.NewDateTime(sampleTime),
			SampledValue: []types.SampledValue{
				{Value: "1234"},
				{Value: "1.5", Unit: types.UnitOfMeasureKWh, Measurand: types.MeasurandEnergyActiveImportRegister, Context: types.ReadingContextSamplePeriodic},
			},
		}}

		samples := EnergySamples("CP-1", 2, 7, values)

		require.Len(t, samples, 2)
		assert.Equal(t, "1234", samples[0].Value)
		assert.Equal(t, "Wh", samples[0].Unit)
		assert.Equal(t, "Energy.Active.Import.Register", samples[0].Measurand)
		assert.Equal(t, 7, samples[0].TransactionID)
		assert.Equal(t, 2, samples[0].ConnectorID)
		assert.True(t, sampleTime.Equal(samples[0].Timestamp))
		assert.Equal(t, "kWh", samples[1].Unit)
		assert.Equal(t, "Sample.Periodic", samples[1].Context)
	})

	t.Run("drops other measurands, empty values and untimed meter values", func(t *testing.T) {
		values := []types.MeterValue{
			{
				Timestamp: types.NewDateTime(sampleTime),
				SampledValue: []types.SampledValue{
					{Value: "7400", Measurand: types.MeasurandPowerActiveImport, Unit: types.UnitOfMeasureW},
					{Value: "  "},
				},
			},
			{SampledValue: []types.SampledValue{{Value: "10"}}},
		}

		assert.Empty(t, EnergySamples("CP-1", 1, 7, values))
	})

	t.Run("uses the phase-less total when phases are reported too", func(t *testing.T) {
		values := []types.MeterValue{{
			Timestamp: types.NewDateTime(sampleTime),
			SampledValue: []types.SampledValue{
				{Value: "1000", Phase: types.PhaseL1},
				{Value: "1000", Phase: types.PhaseL2},
				{Value: "1000", Phase: types.PhaseL3},
				{Value: "3000"},
			},
		}}

		samples := EnergySamples("CP-1", 1, 7, values)

		require.Len(t, samples, 1)
		assert.Equal(t, "3000", samples[0].Value)
	})

	t.Run("drops per-phase registers without a total", func(t *testing.T) {
		values := []types.MeterValue{{
			Timestamp:    types.NewDateTime(sampleTime),
			SampledValue: []types.SampledValue{{Value: "1000", Phase: types.PhaseL1}},
		}}

		assert.Empty(t, EnergySamples("CP-1", 1, 7, values))
	})
}
