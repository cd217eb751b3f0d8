package handlers

import (
	"errors"
	"net/http"

	"github.com/vpnvault/backend/internal/services"
)

// errUnauthenticated signals that the response has already been written.
var errUnauthenticated = errors.New("unauthenticated")

// writeServiceError maps service-layer errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var insufficient *services.InsufficientFundsError
	if errors.As(err, &insufficient) {
		services.SendErrorResponse(w, err.Error(), http.StatusPaymentRequired, nil)
		return
	}

	var providerErr *services.PaymentProviderError
	if errors.As(err, &providerErr) {
		services.SendErrorResponse(w, "Payment provider unavailable", http.StatusBadGateway, nil)
		return
	}

	switch {
	case errors.Is(err, services.ErrTariffNotFound),
		errors.Is(err, services.ErrAccountNotFound),
		errors.Is(err, services.ErrPaymentNotFound):
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, services.ErrTrialAlreadyUsed),
		errors.Is(err, services.ErrReconcileInProgress):
		services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	default:
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}
