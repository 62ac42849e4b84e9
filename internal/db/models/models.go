package models

import (
	"time"

	"github.com/balu-dk/go-cdr-rating/internal/rating"
)

// Transaction statuses
const (
	TransactionStatusInProgress = "InProgress"
	TransactionStatusCompleted  = "Completed"
)

// Transaction represents a charging transaction
type Transaction struct {
	ID            int       `json:"id"`
	ChargePointID string    `json:"chargePointId"`
	ConnectorID   int       `json:"connectorId"`
	IdTag         string    `json:"idTag"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime,omitempty"`
	MeterStart    int       `json:"meterStart"`
	MeterStop     int       `json:"meterStop,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IsCompleted reports whether the transaction has been stopped
func (t *Transaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted && !t.EndTime.IsZero()
}

// OCPPMessage represents a journaled OCPP message
type OCPPMessage struct {
	ID            int       `json:"id"`
	ChargePointID string    `json:"chargePointId"`
	MessageType   string    `json:"messageType"` // Request or Response
	Action        string    `json:"action"`
	RequestID     string    `json:"requestId"`
	Payload       string    `json:"payload"`
	Direction     string    `json:"direction"` // Inbound or Outbound
	Timestamp     time.Time `json:"timestamp"`
}

// MeterValue represents one sampled value reported by a charge point.
// Value is kept as the decimal string the charge point sent.
type MeterValue struct {
	ID            int       `json:"id"`
	TransactionID int       `json:"transactionId"`
	ChargePointID string    `json:"chargePointId"`
	ConnectorID   int       `json:"connectorId"`
	Timestamp     time.Time `json:"timestamp"`
	Value         string    `json:"value"`
	Unit          string    `json:"unit"`
	Measurand     string    `json:"measurand"`
	Context       string    `json:"context,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Tariff is a catalog entry. Tariffs without a charge point apply nowhere
// unless referenced as the default tariff.
type Tariff struct {
	rating.Tariff
	ChargePointID string    `json:"chargePointId,omitempty"`
	Priority      int       `json:"priority"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// CDR is a persisted rated charge detail record
type CDR struct {
	ID            string          `json:"id"`
	TransactionID int             `json:"transactionId"`
	Currency      string          `json:"currency"`
	TotalCost     string          `json:"totalCost"`
	Record        rating.RatedCDR `json:"record"`
	CreatedAt     time.Time       `json:"createdAt"`
}
