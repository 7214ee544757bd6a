package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/raspadita/backend/internal/middleware"
	"github.com/raspadita/backend/internal/models"
	"github.com/raspadita/backend/internal/services"
)

// AccountHandler exposes account management: promotion, invitations and the
// console listings.
type AccountHandler struct {
	registry  *services.RegistryService
	wallets   *services.WalletService
	transfers *services.TransferService
	validator *services.ValidationHelper
}

func NewAccountHandler(registry *services.RegistryService, wallets *services.WalletService, transfers *services.TransferService) *AccountHandler {
	return &AccountHandler{
		registry:  registry,
		wallets:   wallets,
		transfers: transfers,
		validator: services.NewValidationHelper(),
	}
}

// Promote upserts an account to the cashier role
// @Summary Promote to cashier
// @Description Idempotent upsert to role=cashier; invites the email if no account exists. An optional opening amount is minted to the new cashier.
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{email=string,coins=int64} true "Promotion request"
// @Success 200 {object} services.InviteResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/promote [post]
func (h *AccountHandler) Promote(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	if !services.Allowed(principal.Role, services.OpPromote) {
		services.SendServiceError(w, services.ErrNotAuthorized)
		return
	}

	var req struct {
		Email string `json:"email" validate:"required,email"`
		Coins int64  `json:"coins" validate:"gte=0"`
	}
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	result, err := h.registry.Invite(r.Context(), req.Email, models.RoleCashier)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	// A cashier always gets a wallet row, opening balance or not.
	if err := h.wallets.Ensure(result.AccountID); err != nil {
		log.Printf("[ACCOUNT] Wallet ensure for cashier %s failed: %v", result.AccountID, err)
		services.SendServiceError(w, err)
		return
	}

	if req.Coins > 0 {
		if _, err := h.transfers.Mint(r.Context(), actorFrom(principal), services.MintRequest{
			TargetID: result.AccountID,
			Amount:   req.Coins,
			Note:     "cashier opening balance",
		}); err != nil {
			log.Printf("[ACCOUNT] Opening mint for cashier %s failed: %v", result.AccountID, err)
			services.SendServiceError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// InvitePlayer creates or invites a player account
// @Summary Invite a player
// @Description Admin or cashier invites a player by email; existing accounts are untouched
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{email=string} true "Invitation request"
// @Success 200 {object} services.InviteResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /invite-player [post]
func (h *AccountHandler) InvitePlayer(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	if !services.Allowed(principal.Role, services.OpInvitePlayer) {
		services.SendServiceError(w, services.ErrNotAuthorized)
		return
	}

	var req struct {
		Email string `json:"email" validate:"required,email"`
	}
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	existing, err := h.registry.FindByEmail(req.Email)
	if err == nil {
		// Inviting an existing account never changes its role.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(services.InviteResult{AccountID: existing.ID, Invited: false})
		return
	}
	if err != services.ErrAccountNotFound {
		services.SendServiceError(w, err)
		return
	}

	result, err := h.registry.Invite(r.Context(), req.Email, models.RolePlayer)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// ListAccounts returns accounts with balances for the consoles
// @Summary List accounts
// @Description Admin lists any role (with balances); a cashier sees players only
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param role query string false "Role filter (admin only)"
// @Success 200 {object} object{items=[]services.AccountBalance}
// @Failure 401 {object} services.ErrorResponse
// @Router /accounts [get]
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	role := models.Role(r.URL.Query().Get("role"))
	switch {
	case services.Allowed(principal.Role, services.OpReadCashierBalances):
		if role == "" {
			role = models.RoleCashier
		}
	case services.Allowed(principal.Role, services.OpInvitePlayer):
		// cashier consoles only ever see the players they manage
		role = models.RolePlayer
	default:
		services.SendServiceError(w, services.ErrNotAuthorized)
		return
	}
	if !role.Valid() {
		services.SendErrorResponse(w, "Unknown role", http.StatusBadRequest, nil)
		return
	}

	items, err := h.wallets.ListBalancesByRole(role)
	if err != nil {
		log.Printf("[ACCOUNT] Listing %s accounts failed: %v", role, err)
		services.SendServiceError(w, err)
		return
	}
	if items == nil {
		items = []services.AccountBalance{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"items": items})
}
