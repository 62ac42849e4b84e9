package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/balu-dk/go-cdr-rating/internal/db"
	"github.com/balu-dk/go-cdr-rating/internal/db/models"
	"github.com/balu-dk/go-cdr-rating/internal/rating"
	"github.com/balu-dk/go-cdr-rating/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// RatingService is what the API exposes
type RatingService interface {
	Rate(ctx context.Context, req service.RateRequest) (*rating.RatedCDR, error)
	RateTransaction(ctx context.Context, transactionID int) (*models.CDR, error)
	RateTransactions(ctx context.Context, ids []int) ([]service.BatchResult, error)
	GetTransaction(ctx context.Context, id int) (*models.Transaction, error)
	GetCDR(ctx context.Context, id string) (*models.CDR, error)
	SaveTariff(ctx context.Context, t *models.Tariff) error
	GetTariff(ctx context.Context, id string) (*models.Tariff, error)
	ListTariffs(ctx context.Context) ([]*models.Tariff, error)
}

// Handler handles API requests
type Handler struct {
	rating RatingService
}

// NewHandler creates a new API handler
func NewHandler(svc RatingService) *Handler {
	return &Handler{
		rating: svc,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// RateCDR rates the CDR in the request body without storing it
func (h *Handler) RateCDR(w http.ResponseWriter, r *http.Request) {
	var req service.RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rated, err := h.rating.Rate(r.Context(), req)
	if err != nil {
		h.sendRatingError(w, err, logrus.Fields{"cdrId": req.CDR.ID})
		return
	}

	sendResponse(w, Response{
		Success: true,
		Data:    rated,
	})
}

// GetCDR returns a stored CDR
func (h *Handler) GetCDR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		sendErrorResponse(w, "CDR ID is required", http.StatusBadRequest)
		return
	}

	cdr, err := h.rating.GetCDR(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		sendErrorResponse(w, "CDR not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("id", id).Error("Failed to get CDR")
		sendErrorResponse(w, "Failed to get CDR", http.StatusInternalServerError)
		return
	}

	sendResponse(w, Response{
		Success: true,
		Data:    cdr,
	})
}

// GetTransaction gets a transaction
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := transactionID(w, r)
	if !ok {
		return
	}

	transaction, err := h.rating.GetTransaction(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		sendErrorResponse(w, "Transaction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("id", id).Error("Failed to get transaction")
		sendErrorResponse(w, "Failed to get transaction", http.StatusInternalServerError)
		return
	}

	sendResponse(w, Response{
		Success: true,
		Data:    transaction,
	})
}

// RateTransaction rates a completed transaction and stores its CDR
func (h *Handler) RateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := transactionID(w, r)
	if !ok {
		return
	}

	cdr, err := h.rating.RateTransaction(r.Context(), id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		sendErrorResponse(w, "Transaction not found", http.StatusNotFound)
		return
	case errors.Is(err, service.ErrTransactionInProgress):
		sendErrorResponse(w, "Transaction is still in progress", http.StatusConflict)
		return
	case err != nil:
		h.sendRatingError(w, err, logrus.Fields{"transactionId": id})
		return
	}

	sendResponse(w, Response{
		Success: true,
		Message: "Transaction rated",
		Data:    cdr,
	})
}

// RateTransactions rates the listed transactions, or every unrated one when none are listed
func (h *Handler) RateTransactions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int `json:"ids"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	results, err := h.rating.RateTransactions(r.Context(), req.IDs)
	if err != nil {
		logrus.WithError(err).Error("Failed to rate transactions")
		sendErrorResponse(w, "Failed to rate transactions", http.StatusInternalServerError)
		return
	}

	sendResponse(w, Response{
		Success: true,
		Data:    results,
	})
}

// ListTariffs returns the tariff catalog
func (h *Handler) ListTariffs(w http.ResponseWriter, r *http.Request) {
	tariffs, err := h.rating.ListTariffs(r.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to list tariffs")
		sendErrorResponse(w, "Failed to list tariffs", http.StatusInternalServerError)
		return
	}

	sendResponse(w, Response{
		Success: true,
		Data:    tariffs,
	})
}

// GetTariff returns a tariff
func (h *Handler) GetTariff(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		sendErrorResponse(w, "Tariff ID is required", http.StatusBadRequest)
		return
	}

	tariff, err := h.rating.GetTariff(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		sendErrorResponse(w, "Tariff not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("id", id).Error("Failed to get tariff")
		sendErrorResponse(w, "Failed to get tariff", http.StatusInternalServerError)
		return
	}

	sendResponse(w, Response{
		Success: true,
		Data:    tariff,
	})
}

// PutTariff creates or replaces a tariff. The path id wins over the body id.
func (h *Handler) PutTariff(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		sendErrorResponse(w, "Tariff ID is required", http.StatusBadRequest)
		return
	}

	var tariff models.Tariff
	if err := json.NewDecoder(r.Body).Decode(&tariff); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	tariff.ID = id

	if err := h.rating.SaveTariff(r.Context(), &tariff); err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			sendErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		logrus.WithError(err).WithField("id", id).Error("Failed to save tariff")
		sendErrorResponse(w, "Failed to save tariff", http.StatusInternalServerError)
		return
	}

	sendResponse(w, Response{
		Success: true,
		Message: "Tariff saved",
		Data:    tariff,
	})
}

// sendRatingError answers 422 for sessions that cannot be rated and 500 otherwise
func (h *Handler) sendRatingError(w http.ResponseWriter, err error, fields logrus.Fields) {
	if errors.Is(err, rating.ErrRatingFailed) {
		sendErrorResponse(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	logrus.WithError(err).WithFields(fields).Error("Failed to rate")
	sendErrorResponse(w, "Failed to rate", http.StatusInternalServerError)
}

func transactionID(w http.ResponseWriter, r *http.Request) (int, bool) {
	idStr := chi.URLParam(r, "id")
	if idStr == "" {
		sendErrorResponse(w, "Transaction ID is required", http.StatusBadRequest)
		return 0, false
	}

	id, err := strconv.Atoi(idStr)
	if err != nil {
		sendErrorResponse(w, "Invalid transaction ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// Helper functions to send responses
func sendResponse(w http.ResponseWriter, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logrus.WithError(err).Error("Failed to encode response")
	}
}

func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Success: false,
		Error:   message,
	}); err != nil {
		logrus.WithError(err).Error("Failed to encode error response")
	}
}
