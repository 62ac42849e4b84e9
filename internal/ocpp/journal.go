package ocpp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/balu-dk/go-cdr-rating/internal/db/models"
	"github.com/sirupsen/logrus"
)

// Message directions
const (
	DirectionInbound  = "Inbound"
	DirectionOutbound = "Outbound"
)

// MessageStore persists journaled OCPP messages
type MessageStore interface {
	LogOCPPMessage(ctx context.Context, msg *models.OCPPMessage) error
}

// MessageJournal records every OCPP request and response exchanged with charge points
type MessageJournal struct {
	store MessageStore
	now   func() time.Time
}

// NewMessageJournal creates a new journal writing to store
func NewMessageJournal(store MessageStore) *MessageJournal {
	return &MessageJournal{
		store: store,
		now:   time.Now,
	}
}

// LogRequest journals an inbound request
func (j *MessageJournal) LogRequest(chargePointID, action string, payload interface{}) {
	j.logMessage(chargePointID, "Request", action, payload, DirectionInbound)
}

// LogResponse journals an outbound response
func (j *MessageJournal) LogResponse(chargePointID, action string, payload interface{}) {
	j.logMessage(chargePointID, "Response", action, payload, DirectionOutbound)
}

func (j *MessageJournal) logMessage(chargePointID, messageType, action string, payload interface{}, direction string) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("action", action).Error("Failed to marshal OCPP message payload")
		payloadJSON = []byte("{}")
	}

	msg := &models.OCPPMessage{
		ChargePointID: chargePointID,
		MessageType:   messageType,
		Action:        action,
		Payload:       string(payloadJSON),
		Direction:     direction,
		Timestamp:     j.now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := j.store.LogOCPPMessage(ctx, msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"chargePointID": chargePointID,
			"action":        action,
			"error":         err,
		}).Error("Failed to journal OCPP message")
	}
}
