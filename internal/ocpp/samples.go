package ocpp

import (
	"strings"

	"github.com/balu-dk/go-cdr-rating/internal/db/models"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
)

// EnergySamples extracts the energy register samples of a transaction from
// OCPP meter values. A sample without measurand is an energy register sample
// and one without unit is in Wh. Other measurands and per-phase registers are
// dropped; only the phase-less total is the session register.
func EnergySamples(chargePointID string, connectorID, transactionID int, meterValues []types.MeterValue) []*models.MeterValue {
	var samples []*models.MeterValue
	for _, meterValue := range meterValues {
		if meterValue.Timestamp == nil {
			continue
		}
		for _, sampledValue := range meterValue.SampledValue {
			measurand := types.MeasurandEnergyActiveImportRegister
			if sampledValue.Measurand != "" {
				measurand = sampledValue.Measurand
			}
			if measurand != types.MeasurandEnergyActiveImportRegister || sampledValue.Phase != "" {
				continue
			}

			value := strings.TrimSpace(sampledValue.Value)
			if value == "" {
				continue
			}

			unit := types.UnitOfMeasureWh
			if sampledValue.Unit != "" {
				unit = sampledValue.Unit
			}

			samples = append(samples, &models.MeterValue{
				TransactionID: transactionID,
				ChargePointID: chargePointID,
				ConnectorID:   connectorID,
				Timestamp:     meterValue.Timestamp.Time,
				Value:         value,
				Unit:          string(unit),
				Measurand:     string(measurand),
				Context:       string(sampledValue.Context),
			})
		}
	}
	return samples
}
