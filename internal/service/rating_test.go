package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/balu-dk/go-cdr-rating/config"
	"github.com/balu-dk/go-cdr-rating/internal/db"
	"github.com/balu-dk/go-cdr-rating/internal/db/models"
	"github.com/balu-dk/go-cdr-rating/internal/metrics"
	"github.com/balu-dk/go-cdr-rating/internal/rating"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionStart = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return sessionStart.Add(time.Duration(minutes) * time.Minute)
}

type fakeStore struct {
	mu           sync.Mutex
	transactions map[int]*models.Transaction
	meterValues  map[int][]*models.MeterValue
	tariffs      map[string]*models.Tariff
	cdrs         map[string]*models.CDR
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		transactions: map[int]*models.Transaction{},
		meterValues:  map[int][]*models.MeterValue{},
		tariffs:      map[string]*models.Tariff{},
		cdrs:         map[string]*models.CDR{},
	}
}

func (f *fakeStore) GetTransaction(_ context.Context, id int) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.transactions[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return tx, nil
}

func (f *fakeStore) ListMeterValues(_ context.Context, id int) ([]*models.MeterValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meterValues[id], nil
}

func (f *fakeStore) ListUnratedTransactionIDs(_ context.Context, limit int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int
	for id, tx := range f.transactions {
		if _, rated := f.cdrs[cdrID(id)]; tx.IsCompleted() && !rated {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeStore) SaveTariff(_ context.Context, t *models.Tariff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tariffs[t.ID] = t
	return nil
}

func (f *fakeStore) GetTariff(_ context.Context, id string) (*models.Tariff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tariffs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) ListTariffs(_ context.Context) ([]*models.Tariff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Tariff
	for _, t := range f.tariffs {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) ListTariffsForChargePoint(_ context.Context, chargePointID string) ([]*models.Tariff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Tariff
	for _, t := range f.tariffs {
		if t.ChargePointID == chargePointID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (f *fakeStore) SaveCDR(_ context.Context, cdr *models.CDR) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cdrs[cdr.ID] = cdr
	return nil
}

func (f *fakeStore) GetCDR(_ context.Context, id string) (*models.CDR, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cdr, ok := f.cdrs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return cdr, nil
}

func cdrID(txID int) string {
	return fmt.Sprintf("CDR-%d", txID)
}

func completedTx(id int, meterStart, meterStop int) *models.Transaction {
	return &models.Transaction{
		ID:            id,
		ChargePointID: "CP-1",
		ConnectorID:   1,
		IdTag:         "TAG-1",
		StartTime:     at(0),
		EndTime:       at(60),
		MeterStart:    meterStart,
		MeterStop:     meterStop,
		Status:        models.TransactionStatusCompleted,
	}
}

func energySample(txID, minutes int, value, unit string) *models.MeterValue {
	return &models.MeterValue{
		TransactionID: txID,
		ChargePointID: "CP-1",
		Timestamp:     at(minutes),
		Value:         value,
		Unit:          unit,
		Measurand:     EnergyRegisterMeasurand,
	}
}

func energyTariff(id, chargePointID, price string) *models.Tariff {
	return &models.Tariff{
		Tariff: rating.Tariff{
			ID:       id,
			Currency: "DKK",
			Elements: []rating.TariffElement{{
				PriceComponents: []rating.PriceComponent{
					{Type: rating.DimensionEnergy, Price: rating.MustDecimal(price), StepSize: 1},
				},
			}},
		},
		ChargePointID: chargePointID,
	}
}

func newTestService(t *testing.T, store Store) (*RatingService, *metrics.Metrics) {
	t.Helper()
	cfg := &config.Config{RatingWorkers: 2, RatingTimeZone: "UTC", CDRCountryCode: "DK", CDRPartyID: "CPO"}
	m := metrics.New(nil)
	svc, err := NewRatingService(cfg, store, m)
	require.NoError(t, err)
	return svc, m
}

func TestNewRatingService(t *testing.T) {
	_, err := NewRatingService(nil, newFakeStore(), nil)
	assert.Error(t, err)

	_, err = NewRatingService(&config.Config{}, nil, nil)
	assert.Error(t, err)
}

func TestRatingServiceRateTransaction(t *testing.T) {
	t.Run("rates and stores a completed transaction", func(t *testing.T) {
		store := newFakeStore()
		store.transactions[1] = completedTx(1, 1000, 11000)
		store.meterValues[1] = []*models.MeterValue{energySample(1, 30, "6", "kWh")}
		store.tariffs["T1"] = energyTariff("T1", "CP-1", "2.00")
		svc, m := newTestService(t, store)

		cdr, err := svc.RateTransaction(context.Background(), 1)

		require.NoError(t, err)
		assert.Equal(t, "CDR-1", cdr.ID)
		assert.Equal(t, "DKK", cdr.Currency)
		assert.Equal(t, "20", cdr.TotalCost)
		assert.Len(t, cdr.Record.ChargingPeriods, 2)
		assert.Equal(t, "DK", cdr.Record.CountryCode)
		assert.Equal(t, "TAG-1", cdr.Record.AuthID)
		assert.Contains(t, store.cdrs, "CDR-1")
		assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(metrics.ResultOK, "")))
	})

	t.Run("falls back to the default tariff", func(t *testing.T) {
		store := newFakeStore()
		store.transactions[1] = completedTx(1, 0, 10000)
		store.tariffs["DEFAULT"] = energyTariff("DEFAULT", "", "0.50")
		svc, _ := newTestService(t, store)
		svc.config.DefaultTariffID = "DEFAULT"

		cdr, err := svc.RateTransaction(context.Background(), 1)

		require.NoError(t, err)
		assert.Equal(t, "5", rating.MustDecimal(cdr.TotalCost).Key())
	})

	t.Run("fails without any tariff", func(t *testing.T) {
		store := newFakeStore()
		store.transactions[1] = completedTx(1, 0, 10000)
		svc, m := newTestService(t, store)

		_, err := svc.RateTransaction(context.Background(), 1)

		assert.ErrorIs(t, err, rating.ErrNoTariffAvailable)
		assert.Empty(t, store.cdrs)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(metrics.ResultError, "no_tariff_available")))
	})

	t.Run("refuses a transaction in progress", func(t *testing.T) {
		store := newFakeStore()
		tx := completedTx(1, 0, 0)
		tx.Status = models.TransactionStatusInProgress
		tx.EndTime = time.Time{}
		store.transactions[1] = tx
		svc, _ := newTestService(t, store)

		_, err := svc.RateTransaction(context.Background(), 1)

		assert.ErrorIs(t, err, ErrTransactionInProgress)
	})

	t.Run("reports an unknown transaction", func(t *testing.T) {
		svc, _ := newTestService(t, newFakeStore())

		_, err := svc.RateTransaction(context.Background(), 42)

		assert.ErrorIs(t, err, db.ErrNotFound)
	})
}

func TestRatingServiceRateTransactions(t *testing.T) {
	store := newFakeStore()
	store.transactions[1] = completedTx(1, 0, 1000)
	store.transactions[2] = completedTx(2, 0, 2000)
	broken := completedTx(3, 5000, 1000)
	store.transactions[3] = broken
	store.tariffs["T1"] = energyTariff("T1", "CP-1", "1")
	svc, _ := newTestService(t, store)

	results, err := svc.RateTransactions(context.Background(), nil)

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "CDR-1", results[0].CDRID)
	assert.Equal(t, "1", rating.MustDecimal(results[0].TotalCost).Key())
	assert.Equal(t, "CDR-2", results[1].CDRID)
	assert.Equal(t, 3, results[2].TransactionID)
	assert.NotEmpty(t, results[2].Error)
	assert.Len(t, store.cdrs, 2)
}

func TestRatingServiceRate(t *testing.T) {
	svc, _ := newTestService(t, newFakeStore())
	req := RateRequest{
		CDR: rating.CDR{ID: "ADHOC", Start: at(0), Stop: at(60)},
		MeteringValues: []rating.Reading{
			{Timestamp: at(0), EnergyWh: rating.MustDecimal("0")},
			{Timestamp: at(60), EnergyWh: rating.MustDecimal("4000")},
		},
		Tariffs: []rating.Tariff{energyTariff("T1", "", "0.25").Tariff},
	}

	rated, err := svc.Rate(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "1", rated.TotalCost.Key())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Rate(ctx, req)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRatingServiceSaveTariff(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)

	err := svc.SaveTariff(context.Background(), &models.Tariff{Tariff: rating.Tariff{ID: "EMPTY", Currency: "DKK"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, rating.ErrInvalidTariff)

	require.NoError(t, svc.SaveTariff(context.Background(), energyTariff("T1", "CP-1", "1")))
	got, err := svc.GetTariff(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, "CP-1", got.ChargePointID)
}

func TestReadings(t *testing.T) {
	tx := completedTx(1, 100, 900)

	t.Run("adds meter start and stop at the bounds", func(t *testing.T) {
		readings := Readings(tx, []*models.MeterValue{energySample(1, 30, "500", "Wh")})

		require.Len(t, readings, 3)
		assert.Equal(t, at(0), readings[0].Timestamp)
		assert.Equal(t, "100", readings[0].EnergyWh.Key())
		assert.Equal(t, "500", readings[1].EnergyWh.Key())
		assert.Equal(t, at(60), readings[2].Timestamp)
		assert.Equal(t, "900", readings[2].EnergyWh.Key())
	})

	t.Run("keeps samples taken at the bounds", func(t *testing.T) {
		readings := Readings(tx, []*models.MeterValue{
			energySample(1, 0, "0.11", "kWh"),
			energySample(1, 60, "0.89", "kWh"),
		})

		require.Len(t, readings, 2)
		assert.Equal(t, "110", readings[0].EnergyWh.Key())
		assert.Equal(t, "890", readings[1].EnergyWh.Key())
	})

	t.Run("drops foreign measurands, duplicates, bad values and out of session samples", func(t *testing.T) {
		power := energySample(1, 20, "7000", "W")
		power.Measurand = "Power.Active.Import"

		readings := Readings(tx, []*models.MeterValue{
			energySample(1, -5, "50", "Wh"),
			power,
			energySample(1, 40, "600", "Wh"),
			energySample(1, 40, "601", "Wh"),
			energySample(1, 50, "abc", "Wh"),
			energySample(1, 55, "1", "MWh"),
			energySample(1, 65, "950", "Wh"),
		})

		require.Len(t, readings, 3)
		assert.Equal(t, at(40), readings[1].Timestamp)
		assert.Equal(t, "600", readings[1].EnergyWh.Key())
	})
}

func TestEnergyWh(t *testing.T) {
	wh, err := EnergyWh(" 1.5 ", "kWh")
	require.NoError(t, err)
	assert.Equal(t, "1500", wh.Key())

	wh, err = EnergyWh("42", "")
	require.NoError(t, err)
	assert.Equal(t, "42", wh.Key())

	_, err = EnergyWh("1", "varh")
	assert.Error(t, err)
}
