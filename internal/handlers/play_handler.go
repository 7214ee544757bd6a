package handlers

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/raspadita/backend/internal/middleware"
	"github.com/raspadita/backend/internal/services"
)

// PlayHandler runs one scratch play: advance the session counter, draw, and
// settle against the player's wallet. Demo plays draw without settlement but
// use the same table and edge as real ones.
type PlayHandler struct {
	draws     *services.DrawService
	transfers *services.TransferService
	validator *services.ValidationHelper

	mu  sync.Mutex
	rng *rand.Rand
}

func NewPlayHandler(draws *services.DrawService, transfers *services.TransferService) *PlayHandler {
	return &PlayHandler{
		draws:     draws,
		transfers: transfers,
		validator: services.NewValidationHelper(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type playRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Demo      bool   `json:"demo"`
}

type playResponse struct {
	Label   string `json:"label"`
	Payout  int64  `json:"payout"`
	Balance int64  `json:"balance,omitempty"`
	Jackpot int64  `json:"jackpot"`
}

// Play buys and reveals one scratch ticket
// @Summary Play a scratch ticket
// @Description Debits the ticket price, draws a prize and credits any payout in one transaction
// @Tags game
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body playRequest true "Play request"
// @Success 200 {object} playResponse
// @Failure 400 {object} services.ErrorResponse "Insufficient funds or bad request"
// @Failure 401 {object} services.ErrorResponse
// @Router /play [post]
func (h *PlayHandler) Play(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	if !services.Allowed(principal.Role, services.OpPlay) {
		services.SendServiceError(w, services.ErrNotAuthorized)
		return
	}

	var req playRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	playIndex, err := h.draws.NextPlayIndex(r.Context(), req.SessionID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	h.mu.Lock()
	prize := services.Draw(playIndex, h.rng)
	h.mu.Unlock()

	resp := playResponse{
		Label:   prize.Label,
		Payout:  prize.Payout,
		Jackpot: services.JackpotBase,
	}

	if !req.Demo {
		balance, err := h.transfers.SettlePlay(r.Context(), principal.ID, services.TicketPrice, prize.Payout, prize.Label)
		if err != nil {
			services.SendServiceError(w, err)
			return
		}
		resp.Balance = balance
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
