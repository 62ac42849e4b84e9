package ocpp

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/balu-dk/go-cdr-rating/config"
	"github.com/balu-dk/go-cdr-rating/internal/db/models"
	ocpp16 "github.com/lorenzodonini/ocpp-go/ocpp1.6"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/sirupsen/logrus"
)

// TransactionStore persists what charge points report about their sessions
type TransactionStore interface {
	StartTransaction(ctx context.Context, tx *models.Transaction) error
	StopTransaction(ctx context.Context, id int, endTime time.Time, meterStop int) error
	SaveMeterValue(ctx context.Context, mv *models.MeterValue) error
	MaxTransactionID(ctx context.Context) (int, error)
}

// TransactionStoppedHandler is called after a stopped transaction has been persisted
type TransactionStoppedHandler func(transactionID int)

// CentralSystem manages the OCPP central system
type CentralSystem struct {
	OcppServer ocpp16.CentralSystem
	store      TransactionStore
	journal    *MessageJournal
	config     *config.Config

	lastTransactionID atomic.Int64
	onStopped         TransactionStoppedHandler
}

// NewCentralSystem creates a new OCPP central system. Transaction ids continue
// from the highest id already stored.
func NewCentralSystem(cfg *config.Config, store TransactionStore, journal *MessageJournal) (*CentralSystem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lastID, err := store.MaxTransactionID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load last transaction id: %v", err)
	}

	cs := &CentralSystem{
		OcppServer: ocpp16.NewCentralSystem(nil, nil),
		store:      store,
		journal:    journal,
		config:     cfg,
	}
	cs.lastTransactionID.Store(int64(lastID))

	cs.OcppServer.SetCoreHandler(&CentralSystemHandler{cs: cs})
	cs.OcppServer.SetNewChargePointHandler(cs.handleNewChargePoint)
	cs.OcppServer.SetChargePointDisconnectedHandler(cs.handleChargePointDisconnected)

	return cs, nil
}

// SetTransactionStoppedHandler registers the callback run after StopTransaction
func (cs *CentralSystem) SetTransactionStoppedHandler(handler TransactionStoppedHandler) {
	cs.onStopped = handler
}

// Start starts the OCPP central system. It blocks until the server stops.
func (cs *CentralSystem) Start() error {
	logrus.Infof("Starting OCPP central system on port %d with path %s", cs.config.ServerPort, cs.config.OCPPPath)
	cs.OcppServer.Start(cs.config.ServerPort, cs.config.OCPPPath)
	return nil
}

func (cs *CentralSystem) nextTransactionID() int {
	return int(cs.lastTransactionID.Add(1))
}

func (cs *CentralSystem) handleNewChargePoint(cp ocpp16.ChargePointConnection) {
	logrus.WithField("chargePointID", cp.ID()).Info("New charge point connected")
}

func (cs *CentralSystem) handleChargePointDisconnected(cp ocpp16.ChargePointConnection) {
	logrus.WithField("chargePointID", cp.ID()).Info("Charge point disconnected")
}

// CentralSystemHandler implements the OCPP core profile
type CentralSystemHandler struct {
	cs *CentralSystem
}

// OnBootNotification handles BootNotification requests
func (h *CentralSystemHandler) OnBootNotification(chargePointID string, request *core.BootNotificationRequest) (confirmation *core.BootNotificationConfirmation, err error) {
	logrus.WithFields(logrus.Fields{
		"chargePointID": chargePointID,
		"vendor":        request.ChargePointVendor,
		"model":         request.ChargePointModel,
	}).Info("Boot notification received")
	h.cs.journal.LogRequest(chargePointID, core.BootNotificationFeatureName, request)

	conf := core.NewBootNotificationConfirmation(
		types.NewDateTime(time.Now()),
		h.cs.config.HeartbeatInterval,
		core.RegistrationStatusAccepted,
	)

	h.cs.journal.LogResponse(chargePointID, core.BootNotificationFeatureName, conf)
	return conf, nil
}

// OnHeartbeat handles Heartbeat requests
func (h *CentralSystemHandler) OnHeartbeat(chargePointID string, request *core.HeartbeatRequest) (confirmation *core.HeartbeatConfirmation, err error) {
	logrus.WithField("chargePointID", chargePointID).Debug("Heartbeat received")
	h.cs.journal.LogRequest(chargePointID, core.HeartbeatFeatureName, request)

	conf := core.NewHeartbeatConfirmation(types.NewDateTime(time.Now()))

	h.cs.journal.LogResponse(chargePointID, core.HeartbeatFeatureName, conf)
	return conf, nil
}

// OnStatusNotification handles StatusNotification requests
func (h *CentralSystemHandler) OnStatusNotification(chargePointID string, request *core.StatusNotificationRequest) (confirmation *core.StatusNotificationConfirmation, err error) {
	logrus.WithFields(logrus.Fields{
		"chargePointID": chargePointID,
		"connectorId":   request.ConnectorId,
		"status":        request.Status,
		"errorCode":     request.ErrorCode,
	}).Info("Status notification received")
	h.cs.journal.LogRequest(chargePointID, core.StatusNotificationFeatureName, request)

	conf := core.NewStatusNotificationConfirmation()

	h.cs.journal.LogResponse(chargePointID, core.StatusNotificationFeatureName, conf)
	return conf, nil
}

// OnMeterValues stores the energy register samples of a transaction
func (h *CentralSystemHandler) OnMeterValues(chargePointID string, request *core.MeterValuesRequest) (confirmation *core.MeterValuesConfirmation, err error) {
	logrus.WithFields(logrus.Fields{
		"chargePointID": chargePointID,
		"connectorId":   request.ConnectorId,
	}).Debug("Meter values received")
	h.cs.journal.LogRequest(chargePointID, core.MeterValuesFeatureName, request)

	if request.TransactionId != nil {
		h.saveSamples(chargePointID, EnergySamples(chargePointID, request.ConnectorId, *request.TransactionId, request.MeterValue))
	}

	conf := core.NewMeterValuesConfirmation()

	h.cs.journal.LogResponse(chargePointID, core.MeterValuesFeatureName, conf)
	return conf, nil
}

// OnStartTransaction handles StartTransaction requests
func (h *CentralSystemHandler) OnStartTransaction(chargePointID string, request *core.StartTransactionRequest) (confirmation *core.StartTransactionConfirmation, err error) {
	logrus.WithFields(logrus.Fields{
		"chargePointID": chargePointID,
		"connectorId":   request.ConnectorId,
		"idTag":         request.IdTag,
	}).Info("Start transaction request received")
	h.cs.journal.LogRequest(chargePointID, core.StartTransactionFeatureName, request)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transaction := &models.Transaction{
		ID:            h.cs.nextTransactionID(),
		ChargePointID: chargePointID,
		ConnectorID:   request.ConnectorId,
		IdTag:         request.IdTag,
		StartTime:     timestampOf(request.Timestamp),
		MeterStart:    request.MeterStart,
		Status:        models.TransactionStatusInProgress,
	}

	if err := h.cs.store.StartTransaction(ctx, transaction); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"chargePointID": chargePointID,
			"connectorId":   request.ConnectorId,
		}).Error("Failed to save transaction")
	}

	idTagInfo := types.NewIdTagInfo(types.AuthorizationStatusAccepted)
	conf := core.NewStartTransactionConfirmation(idTagInfo, transaction.ID)

	h.cs.journal.LogResponse(chargePointID, core.StartTransactionFeatureName, conf)
	return conf, nil
}

// OnStopTransaction completes a transaction and hands it over for rating
func (h *CentralSystemHandler) OnStopTransaction(chargePointID string, request *core.StopTransactionRequest) (confirmation *core.StopTransactionConfirmation, err error) {
	logrus.WithFields(logrus.Fields{
		"chargePointID": chargePointID,
		"transactionId": request.TransactionId,
	}).Info("Stop transaction request received")
	h.cs.journal.LogRequest(chargePointID, core.StopTransactionFeatureName, request)

	// Samples first, so that the stopped handler sees the whole series.
	h.saveSamples(chargePointID, EnergySamples(chargePointID, 0, request.TransactionId, request.TransactionData))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stopped := true
	if err := h.cs.store.StopTransaction(ctx, request.TransactionId, timestampOf(request.Timestamp), request.MeterStop); err != nil {
		stopped = false
		logrus.WithError(err).WithFields(logrus.Fields{
			"chargePointID": chargePointID,
			"transactionId": request.TransactionId,
		}).Error("Failed to update transaction")
	}

	// Rated in the background; the confirmation does not wait for it.
	if stopped && h.cs.onStopped != nil {
		go h.cs.onStopped(request.TransactionId)
	}

	conf := core.NewStopTransactionConfirmation()

	h.cs.journal.LogResponse(chargePointID, core.StopTransactionFeatureName, conf)
	return conf, nil
}

// OnAuthorize accepts every id tag; authorization is not this system's concern
func (h *CentralSystemHandler) OnAuthorize(chargePointID string, request *core.AuthorizeRequest) (confirmation *core.AuthorizeConfirmation, err error) {
	logrus.WithFields(logrus.Fields{
		"chargePointID": chargePointID,
		"idTag":         request.IdTag,
	}).Info("Authorize request received")
	h.cs.journal.LogRequest(chargePointID, core.AuthorizeFeatureName, request)

	idTagInfo := types.NewIdTagInfo(types.AuthorizationStatusAccepted)
	conf := core.NewAuthorizationConfirmation(idTagInfo)

	h.cs.journal.LogResponse(chargePointID, core.AuthorizeFeatureName, conf)
	return conf, nil
}

// OnDataTransfer handles DataTransfer requests
func (h *CentralSystemHandler) OnDataTransfer(chargePointID string, request *core.DataTransferRequest) (confirmation *core.DataTransferConfirmation, err error) {
	logrus.WithFields(logrus.Fields{
		"chargePointID": chargePointID,
		"vendorId":      request.VendorId,
		"messageId":     request.MessageId,
	}).Info("Data transfer request received")
	h.cs.journal.LogRequest(chargePointID, core.DataTransferFeatureName, request)

	conf := core.NewDataTransferConfirmation(core.DataTransferStatusAccepted)

	h.cs.journal.LogResponse(chargePointID, core.DataTransferFeatureName, conf)
	return conf, nil
}

func (h *CentralSystemHandler) saveSamples(chargePointID string, samples []*models.MeterValue) {
	if len(samples) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, mv := range samples {
		if err := h.cs.store.SaveMeterValue(ctx, mv); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"chargePointID": chargePointID,
				"transactionId": mv.TransactionID,
			}).Error("Failed to save meter value")
		}
	}
}

func timestampOf(dt *types.DateTime) time.Time {
	if dt == nil {
		return time.Now()
	}
	return dt.Time
}
