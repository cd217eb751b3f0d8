package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/vpnvault/backend/internal/config"
	"github.com/vpnvault/backend/internal/middleware"
	"github.com/vpnvault/backend/internal/models"
	"github.com/vpnvault/backend/internal/services"
)

type EntitlementHandler struct {
	entitlements *services.EntitlementService
	ledger       *services.LedgerService
	payments     *services.PaymentService
	keyQR        *services.KeyQRService
	catalog      *config.TariffCatalog
	validator    *services.ValidationHelper
}

// PurchaseRequest selects the tariff to buy for the authenticated user.
type PurchaseRequest struct {
	TariffID string `json:"tariffId" validate:"required,tariffid"`
}

func NewEntitlementHandler(entitlements *services.EntitlementService, ledger *services.LedgerService, payments *services.PaymentService, keyQR *services.KeyQRService, catalog *config.TariffCatalog) *EntitlementHandler {
	return &EntitlementHandler{
		entitlements: entitlements,
		ledger:       ledger,
		payments:     payments,
		keyQR:        keyQR,
		catalog:      catalog,
		validator:    services.NewValidationHelper(),
	}
}

// Purchase buys a tariff from the prepaid balance
// @Summary Purchase a tariff
// @Description Buy a VPN tariff; debits the balance and provisions an access key
// @Tags purchases
// @Accept json
// @Produce json
// @Param purchase body PurchaseRequest true "Tariff selection"
// @Success 201 {object} services.PurchaseResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 402 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /purchases [post]
func (h *EntitlementHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	account, err := h.resolveAccount(w, r)
	if err != nil {
		return
	}

	result, err := h.entitlements.Purchase(r.Context(), account.ID, req.TariffID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// ListKeys returns the caller's active access keys
// @Summary List active access keys
// @Tags keys
// @Produce json
// @Success 200 {object} object{keys=[]models.AccessKey,count=int}
// @Router /keys [get]
func (h *EntitlementHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	account, err := h.resolveAccount(w, r)
	if err != nil {
		return
	}

	keys, err := h.entitlements.ListActiveKeys(r.Context(), account.ID)
	if err != nil {
		services.SendErrorResponse(w, "Failed to fetch keys", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"keys":  keys,
		"count": len(keys),
	})
}

// KeyQR renders one access key as a QR code
// @Summary Access key QR code
// @Description Base64 PNG of the key's connection string for client import
// @Tags keys
// @Produce json
// @Param keyId path int true "Access key ID"
// @Success 200 {object} object{qrImage=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /keys/{keyId}/qr [get]
func (h *EntitlementHandler) KeyQR(w http.ResponseWriter, r *http.Request) {
	keyID, err := strconv.ParseInt(chi.URLParam(r, "keyId"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid key id", http.StatusBadRequest, nil)
		return
	}

	account, err := h.resolveAccount(w, r)
	if err != nil {
		return
	}

	qrImage, err := h.keyQR.GenerateKeyQR(r.Context(), account.ID, keyID)
	if err != nil {
		services.SendErrorResponse(w, "Access key not found", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"qrImage": qrImage})
}

// GetAccount returns the caller's balance and subscriptions
// @Summary Account overview
// @Description Settles any pending deposits before reporting the balance
// @Tags account
// @Produce json
// @Success 200 {object} object{account=models.Account,subscriptions=[]models.Subscription}
// @Router /account [get]
func (h *EntitlementHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.resolveAccount(w, r)
	if err != nil {
		return
	}

	// Pending deposits settle when the user checks their account.
	if results, err := h.payments.ReconcilePending(r.Context(), account.ID); err == nil && len(results) > 0 {
		account, err = h.ledger.GetAccount(r.Context(), account.ID)
		if err != nil {
			services.SendErrorResponse(w, "Failed to resolve account", http.StatusInternalServerError, nil)
			return
		}
	}

	subs, err := h.entitlements.ListSubscriptions(r.Context(), account.ID, true)
	if err != nil {
		services.SendErrorResponse(w, "Failed to fetch subscriptions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"account":       account,
		"subscriptions": subs,
	})
}

// ListTariffs returns the tariff catalog
// @Summary Tariff catalog
// @Tags tariffs
// @Produce json
// @Success 200 {object} object{tariffs=[]models.Tariff}
// @Router /tariffs [get]
func (h *EntitlementHandler) ListTariffs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"tariffs": h.catalog.List()})
}

func (h *EntitlementHandler) resolveAccount(w http.ResponseWriter, r *http.Request) (*models.Account, error) {
	userRef := middleware.UserRef(r.Context())
	if userRef == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return nil, errUnauthenticated
	}

	account, err := h.ledger.GetOrCreateAccount(r.Context(), userRef)
	if err != nil {
		services.SendErrorResponse(w, "Failed to resolve account", http.StatusInternalServerError, nil)
		return nil, err
	}

	return account, nil
}
