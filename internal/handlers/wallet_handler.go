package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/raspadita/backend/internal/middleware"
	"github.com/raspadita/backend/internal/models"
	"github.com/raspadita/backend/internal/services"
)

// WalletHandler exposes the transfer engine and the wallet store over HTTP.
type WalletHandler struct {
	transfers *services.TransferService
	wallets   *services.WalletService
	registry  *services.RegistryService
	validator *services.ValidationHelper
}

func NewWalletHandler(transfers *services.TransferService, wallets *services.WalletService, registry *services.RegistryService) *WalletHandler {
	return &WalletHandler{
		transfers: transfers,
		wallets:   wallets,
		registry:  registry,
		validator: services.NewValidationHelper(),
	}
}

// Mint credits freshly created coins to an account
// @Summary Mint coins
// @Description Mint coins to a target account; admin only, audited in the ledger
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{target_id=string,amount=int64,note=string} true "Mint request"
// @Success 200 {object} object{balance=int64}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/mint [post]
func (h *WalletHandler) Mint(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		TargetID      string `json:"target_id" validate:"required"`
		Amount        int64  `json:"amount" validate:"required,gt=0"`
		Note          string `json:"note"`
		CorrelationID string `json:"correlation_id" validate:"omitempty,uuid"`
	}
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	balance, err := h.transfers.Mint(r.Context(), actorFrom(principal), services.MintRequest{
		TargetID:      req.TargetID,
		Amount:        req.Amount,
		Note:          req.Note,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"balance": balance})
}

// Transfer moves the caller's own balance to a player
// @Summary Transfer to a player
// @Description Transfer from the caller's wallet to a player found by email
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{to_email=string,amount=int64} true "Transfer request"
// @Success 200 {object} object{source_balance=int64}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /transfer [post]
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		ToEmail       string `json:"to_email" validate:"required,email"`
		Amount        int64  `json:"amount" validate:"required,gt=0"`
		Note          string `json:"note"`
		CorrelationID string `json:"correlation_id" validate:"omitempty,uuid"`
	}
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	dest, err := h.registry.FindByEmail(req.ToEmail)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	sourceBalance, err := h.transfers.Transfer(r.Context(), actorFrom(principal), services.TransferRequest{
		FromID:        principal.ID,
		ToID:          dest.ID,
		Amount:        req.Amount,
		Note:          req.Note,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"source_balance": sourceBalance})
}

// Distribute splits a pool equally across all cashiers
// @Summary Distribute a pool to cashiers
// @Description Mint floor(total/N) to each cashier; best effort, no rollback of applied mints
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{total=int64} true "Distribution request"
// @Success 200 {object} object{per_cashier=int64,results=[]services.DistributeOutcome}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/distribute [post]
func (h *WalletHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Total int64 `json:"total" validate:"required,gt=0"`
	}
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	cashiers, err := h.registry.ListByRole(models.RoleCashier)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	if len(cashiers) == 0 {
		services.SendErrorResponse(w, "No cashiers to distribute to", http.StatusBadRequest, nil)
		return
	}

	// Equal split, remainder deliberately discarded.
	each := req.Total / int64(len(cashiers))
	if each <= 0 {
		services.SendErrorResponse(w, "Total too small to split", http.StatusBadRequest, nil)
		return
	}

	amounts := make(map[string]int64, len(cashiers))
	for _, c := range cashiers {
		amounts[c.ID] = each
	}

	results := h.transfers.Distribute(r.Context(), actorFrom(principal), amounts, "pool distribution")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"per_cashier": each,
		"results":     results,
	})
}

// GetWallet returns the caller's balance
// @Summary Get own wallet
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Wallet
// @Failure 401 {object} services.ErrorResponse
// @Router /wallet [get]
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	if !services.Allowed(principal.Role, services.OpReadOwnWallet) {
		services.SendServiceError(w, services.ErrNotAuthorized)
		return
	}

	wallet, err := h.wallets.GetWallet(principal.ID)
	if err != nil {
		log.Printf("[WALLET] Failed to read wallet for %s: %v", principal.ID, err)
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wallet)
}

// SetBaseline stores the caller's display-only P&L reference
// @Summary Set wallet baseline
// @Description Owner-only initial capital used for displayed profit and loss
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{value=int64} true "Baseline value"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} services.ErrorResponse
// @Router /wallet/baseline [put]
func (h *WalletHandler) SetBaseline(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Value int64 `json:"value" validate:"gte=0"`
	}
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	if err := h.wallets.SetBaseline(principal.ID, req.Value); err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func actorFrom(p middleware.Principal) services.Actor {
	return services.Actor{ID: p.ID, Role: p.Role}
}

func decodeBody(w http.ResponseWriter, r *http.Request, vh *services.ValidationHelper, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
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
	if err := vh.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}
