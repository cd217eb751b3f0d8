package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vpnvault/backend/internal/services"
)

type AdminHandler struct {
	sweeper     *services.SweeperService
	ledger      *services.LedgerService
	provisioner *services.ProvisionerService
	validator   *services.ValidationHelper
}

// CreditRequest is a manual balance adjustment applied by an operator.
type CreditRequest struct {
	AccountID int64  `json:"accountId" validate:"required,gt=0"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reference string `json:"reference" validate:"required,max=128"`
}

func NewAdminHandler(sweeper *services.SweeperService, ledger *services.LedgerService, provisioner *services.ProvisionerService) *AdminHandler {
	return &AdminHandler{
		sweeper:     sweeper,
		ledger:      ledger,
		provisioner: provisioner,
		validator:   services.NewValidationHelper(),
	}
}

// RunSweep triggers an expiry sweep outside the schedule
// @Summary Run expiry sweep
// @Description Deactivates expired subscriptions and revokes their keys
// @Tags admin
// @Produce json
// @Success 200 {object} object{swept=int}
// @Failure 500 {object} services.ErrorResponse
// @Router /admin/sweep [post]
func (h *AdminHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	swept, err := h.sweeper.RunSweep(r.Context())
	if err != nil {
		services.SendErrorResponse(w, "Sweep failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"swept": swept})
}

// Credit applies a manual adjustment to an account balance
// @Summary Credit an account
// @Tags admin
// @Accept json
// @Produce json
// @Param credit body CreditRequest true "Adjustment details"
// @Success 200 {object} object{newBalance=int}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/credit [post]
func (h *AdminHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	newBalance, err := h.ledger.Credit(r.Context(), req.AccountID, req.Amount, services.EntryAdjustment, req.Reference)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"newBalance": newBalance})
}

// SyncKeys re-provisions placeholder keys against the remote server
// @Summary Sync placeholder keys
// @Tags admin
// @Produce json
// @Success 200 {object} object{repaired=int}
// @Failure 500 {object} services.ErrorResponse
// @Router /admin/keys/sync [post]
func (h *AdminHandler) SyncKeys(w http.ResponseWriter, r *http.Request) {
	repaired, err := h.provisioner.SyncProvisioned(r.Context())
	if err != nil {
		services.SendErrorResponse(w, "Key sync failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"repaired": repaired})
}
