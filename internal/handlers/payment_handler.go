package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/vpnvault/backend/internal/middleware"
	"github.com/vpnvault/backend/internal/services"
)

type PaymentHandler struct {
	payments  *services.PaymentService
	ledger    *services.LedgerService
	validator *services.ValidationHelper
}

// DepositRequest starts a top-up of the prepaid balance.
// Amount is in minor currency units (kopecks).
type DepositRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Memo   string `json:"memo" validate:"max=128"`
}

// ReconcileRequest resolves a pending deposit by its provider reference.
type ReconcileRequest struct {
	ProviderRef string `json:"providerRef" validate:"required,max=128"`
}

func NewPaymentHandler(payments *services.PaymentService, ledger *services.LedgerService) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		ledger:    ledger,
		validator: services.NewValidationHelper(),
	}
}

// CreateDeposit initiates a balance top-up with the payment provider
// @Summary Initiate a deposit
// @Description Creates a provider payment and returns the confirmation URL
// @Tags deposits
// @Accept json
// @Produce json
// @Param deposit body DepositRequest true "Deposit amount in minor units"
// @Success 201 {object} services.InitiateResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /deposits [post]
func (h *PaymentHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	account, err := h.ledger.GetOrCreateAccount(r.Context(), middleware.UserRef(r.Context()))
	if err != nil {
		services.SendErrorResponse(w, "Failed to resolve account", http.StatusInternalServerError, nil)
		return
	}

	result, err := h.payments.Initiate(r.Context(), account.ID, req.Amount, req.Memo)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// ReconcileDeposit polls the provider and settles a pending deposit
// @Summary Reconcile a deposit
// @Description Polls provider status and credits the balance exactly once on success
// @Tags deposits
// @Accept json
// @Produce json
// @Param reconcile body ReconcileRequest true "Provider payment reference"
// @Success 200 {object} services.ReconcileResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /deposits/reconcile [post]
func (h *PaymentHandler) ReconcileDeposit(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.payments.Reconcile(r.Context(), req.ProviderRef)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// decodeJSON reads a single JSON object, rejecting unknown fields and
// trailing content.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	return true
}
