package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/balu-dk/go-cdr-rating/config"
	"github.com/balu-dk/go-cdr-rating/internal/db"
	"github.com/balu-dk/go-cdr-rating/internal/db/models"
	"github.com/balu-dk/go-cdr-rating/internal/metrics"
	"github.com/balu-dk/go-cdr-rating/internal/rating"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// EnergyRegisterMeasurand is the only measurand a session is rated on
const EnergyRegisterMeasurand = "Energy.Active.Import.Register"

// maxUnratedBatch caps how many unrated transactions one batch run picks up
const maxUnratedBatch = 100

var (
	// ErrTransactionInProgress is returned when rating a transaction that has not stopped
	ErrTransactionInProgress = errors.New("service: transaction still in progress")
	// ErrInvalidRequest is returned for requests that cannot be rated as given
	ErrInvalidRequest = errors.New("service: invalid request")
)

// TransactionStore reads charging transactions and their meter values
type TransactionStore interface {
	GetTransaction(ctx context.Context, id int) (*models.Transaction, error)
	ListMeterValues(ctx context.Context, transactionID int) ([]*models.MeterValue, error)
	ListUnratedTransactionIDs(ctx context.Context, limit int) ([]int, error)
}

// TariffStore is the tariff catalog
type TariffStore interface {
	SaveTariff(ctx context.Context, t *models.Tariff) error
	GetTariff(ctx context.Context, id string) (*models.Tariff, error)
	ListTariffs(ctx context.Context) ([]*models.Tariff, error)
	ListTariffsForChargePoint(ctx context.Context, chargePointID string) ([]*models.Tariff, error)
}

// CDRStore persists rated CDRs
type CDRStore interface {
	SaveCDR(ctx context.Context, cdr *models.CDR) error
	GetCDR(ctx context.Context, id string) (*models.CDR, error)
}

// Store is everything the rating service needs from persistence
type Store interface {
	TransactionStore
	TariffStore
	CDRStore
}

// RateRequest is an ad-hoc rating request
type RateRequest struct {
	CDR            rating.CDR       `json:"cdr"`
	MeteringValues []rating.Reading `json:"meteringValues,omitempty"`
	Tariffs        []rating.Tariff  `json:"tariffs,omitempty"`
}

// BatchResult is the outcome of rating one transaction in a batch
type BatchResult struct {
	TransactionID int    `json:"transactionId"`
	CDRID         string `json:"cdrId,omitempty"`
	Currency      string `json:"currency,omitempty"`
	TotalCost     string `json:"totalCost,omitempty"`
	Error         string `json:"error,omitempty"`
}

// RatingService rates completed charging sessions and keeps the resulting CDRs
type RatingService struct {
	config  *config.Config
	store   Store
	metrics *metrics.Metrics
}

// NewRatingService creates a new rating service. m may be nil.
func NewRatingService(cfg *config.Config, store Store, m *metrics.Metrics) (*RatingService, error) {
	if cfg == nil {
		return nil, errors.New("rating service: nil config")
	}
	if store == nil {
		return nil, errors.New("rating service: nil store")
	}
	return &RatingService{config: cfg, store: store, metrics: m}, nil
}

// Rate rates a supplied CDR without persisting anything
func (s *RatingService) Rate(ctx context.Context, req RateRequest) (*rating.RatedCDR, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.rate(req.CDR, req.MeteringValues, req.Tariffs)
}

// RateTransaction rates a completed transaction from its stored meter values
// and the tariffs of its charge point, and stores the CDR
func (s *RatingService) RateTransaction(ctx context.Context, transactionID int) (*models.CDR, error) {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %d: %w", transactionID, err)
	}
	if !tx.IsCompleted() {
		return nil, fmt.Errorf("%w: %d", ErrTransactionInProgress, transactionID)
	}

	meterValues, err := s.store.ListMeterValues(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meter values of transaction %d: %w", transactionID, err)
	}
	readings := Readings(tx, meterValues)

	tariffs, err := s.tariffsFor(ctx, tx.ChargePointID)
	if err != nil {
		return nil, err
	}

	rated, err := s.rate(s.cdrFor(tx), readings, tariffs)
	if err != nil {
		return nil, err
	}

	record := &models.CDR{
		ID:            rated.ID,
		TransactionID: tx.ID,
		Currency:      rated.Currency,
		TotalCost:     rated.TotalCost.String(),
		Record:        *rated,
	}
	if err := s.store.SaveCDR(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save cdr %s: %w", record.ID, err)
	}

	logrus.WithFields(logrus.Fields{
		"transactionId": tx.ID,
		"cdrId":         record.ID,
		"periods":       len(rated.ChargingPeriods),
		"totalCost":     record.TotalCost,
		"currency":      record.Currency,
	}).Info("Transaction rated")

	return record, nil
}

// RateTransactions rates transactions concurrently. An empty ids rates the
// completed transactions that have no CDR yet. A failing transaction does
// not stop the others; its error is reported in its result.
func (s *RatingService) RateTransactions(ctx context.Context, ids []int) ([]BatchResult, error) {
	if len(ids) == 0 {
		var err error
		ids, err = s.store.ListUnratedTransactionIDs(ctx, maxUnratedBatch)
		if err != nil {
			return nil, fmt.Errorf("failed to list unrated transactions: %w", err)
		}
	}

	results := make([]BatchResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.RatingWorkers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			results[i] = BatchResult{TransactionID: id}
			cdr, err := s.RateTransaction(gctx, id)
			if err != nil {
				logrus.WithError(err).WithField("transactionId", id).Warn("Failed to rate transaction")
				results[i].Error = err.Error()
				return nil
			}
			results[i].CDRID = cdr.ID
			results[i].Currency = cdr.Currency
			results[i].TotalCost = cdr.TotalCost
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// OnTransactionStopped rates a transaction as soon as its charge point stops it
func (s *RatingService) OnTransactionStopped(transactionID int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.RateTransaction(ctx, transactionID); err != nil {
		logrus.WithError(err).WithField("transactionId", transactionID).Error("Failed to rate stopped transaction")
	}
}

// GetTransaction returns a stored transaction
func (s *RatingService) GetTransaction(ctx context.Context, id int) (*models.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// GetCDR returns a stored CDR
func (s *RatingService) GetCDR(ctx context.Context, id string) (*models.CDR, error) {
	return s.store.GetCDR(ctx, id)
}

// SaveTariff validates and stores a tariff
func (s *RatingService) SaveTariff(ctx context.Context, t *models.Tariff) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return s.store.SaveTariff(ctx, t)
}

// GetTariff returns a tariff
func (s *RatingService) GetTariff(ctx context.Context, id string) (*models.Tariff, error) {
	return s.store.GetTariff(ctx, id)
}

// ListTariffs returns the tariff catalog
func (s *RatingService) ListTariffs(ctx context.Context) ([]*models.Tariff, error) {
	return s.store.ListTariffs(ctx)
}

func (s *RatingService) rate(cdr rating.CDR, readings []rating.Reading, tariffs []rating.Tariff) (*rating.RatedCDR, error) {
	start := time.Now()
	rated, err := rating.Rate(cdr, readings, tariffs)
	s.metrics.ObserveRun(rating.Kind(err), time.Since(start))
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"cdrId": cdr.ID,
			"kind":  rating.Kind(err),
		}).Warn("Rating failed")
		return nil, err
	}

	s.metrics.AddBilledCost(rated.Currency, rated.TotalCost.Float64())
	logrus.WithFields(logrus.Fields{
		"cdrId":     rated.ID,
		"periods":   len(rated.ChargingPeriods),
		"totalCost": rated.TotalCost.String(),
	}).Debug("CDR rated")
	return rated, nil
}

// tariffsFor returns the charge point's tariffs, or the default tariff when it has none
func (s *RatingService) tariffsFor(ctx context.Context, chargePointID string) ([]rating.Tariff, error) {
	assigned, err := s.store.ListTariffsForChargePoint(ctx, chargePointID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tariffs of charge point %s: %w", chargePointID, err)
	}

	if len(assigned) == 0 && s.config.DefaultTariffID != "" {
		t, err := s.store.GetTariff(ctx, s.config.DefaultTariffID)
		switch {
		case errors.Is(err, db.ErrNotFound):
			logrus.WithField("tariffId", s.config.DefaultTariffID).Warn("Default tariff not found")
		case err != nil:
			return nil, fmt.Errorf("failed to get default tariff: %w", err)
		default:
			assigned = append(assigned, t)
		}
	}

	tariffs := make([]rating.Tariff, 0, len(assigned))
	for _, t := range assigned {
		tariffs = append(tariffs, t.Tariff)
	}
	return tariffs, nil
}

func (s *RatingService) cdrFor(tx *models.Transaction) rating.CDR {
	return rating.CDR{
		ID:          fmt.Sprintf("CDR-%d", tx.ID),
		CountryCode: s.config.CDRCountryCode,
		PartyID:     s.config.CDRPartyID,
		SessionID:   strconv.Itoa(tx.ID),
		AuthID:      tx.IdTag,
		AuthMethod:  "AUTH_REQUEST",
		Location: rating.CdrLocation{
			ID:          tx.ChargePointID,
			EvseUID:     tx.ChargePointID,
			ConnectorID: strconv.Itoa(tx.ConnectorID),
			TimeZone:    s.config.RatingTimeZone,
		},
		Start:       tx.StartTime,
		Stop:        tx.EndTime,
		LastUpdated: tx.UpdatedAt,
	}
}

// Readings turns stored meter values into the energy series of a transaction.
// Only energy register samples inside the session are used, in Wh, one per
// timestamp. MeterStart and MeterStop fill the session bounds when no sample
// was taken there.
func Readings(tx *models.Transaction, meterValues []*models.MeterValue) []rating.Reading {
	samples := make([]rating.Reading, 0, len(meterValues)+2)
	for _, mv := range meterValues {
		if mv.Measurand != "" && mv.Measurand != EnergyRegisterMeasurand {
			continue
		}
		if mv.Timestamp.Before(tx.StartTime) || mv.Timestamp.After(tx.EndTime) {
			continue
		}
		energy, err := EnergyWh(mv.Value, mv.Unit)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"transactionId": tx.ID,
				"meterValueId":  mv.ID,
			}).Warn("Skipping unreadable meter value")
			continue
		}
		samples = append(samples, rating.Reading{Timestamp: mv.Timestamp, EnergyWh: energy})
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	readings := make([]rating.Reading, 0, len(samples)+2)
	for _, r := range samples {
		if n := len(readings); n > 0 && readings[n-1].Timestamp.Equal(r.Timestamp) {
			continue
		}
		readings = append(readings, r)
	}

	if len(readings) == 0 || !readings[0].Timestamp.Equal(tx.StartTime) {
		start := rating.Reading{Timestamp: tx.StartTime, EnergyWh: rating.NewDecimalFromInt64(int64(tx.MeterStart))}
		readings = append([]rating.Reading{start}, readings...)
	}
	if !readings[len(readings)-1].Timestamp.Equal(tx.EndTime) {
		readings = append(readings, rating.Reading{Timestamp: tx.EndTime, EnergyWh: rating.NewDecimalFromInt64(int64(tx.MeterStop))})
	}

	return readings
}

// EnergyWh converts an energy register value to Wh
func EnergyWh(value, unit string) (rating.Decimal, error) {
	d, err := rating.NewDecimal(strings.TrimSpace(value))
	if err != nil {
		return rating.Decimal{}, err
	}
	switch unit {
	case "", "Wh":
		return d, nil
	case "kWh":
		return d.Mul(rating.NewDecimalFromInt64(1000)), nil
	default:
		return rating.Decimal{}, fmt.Errorf("unsupported energy unit %q", unit)
	}
}
