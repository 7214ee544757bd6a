package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/raspadita/backend/internal/middleware"
	"github.com/raspadita/backend/internal/models"
	"github.com/raspadita/backend/internal/services"
)

// LedgerHandler exposes the audit trail. Reads degrade to an empty list
// instead of failing so the dashboards never block on them.
type LedgerHandler struct {
	ledger *services.LedgerService
}

func NewLedgerHandler(ledger *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// GetLedger returns the caller's movements, newest first
// @Summary Read own ledger
// @Description Movements where the caller is actor or counterparty. Anonymous callers get an empty list, not an error.
// @Tags ledger
// @Produce json
// @Param limit query int false "Max rows (capped at 200)"
// @Success 200 {object} object{movements=[]models.Movement}
// @Router /ledger [get]
func (h *LedgerHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		json.NewEncoder(w).Encode(map[string]any{"movements": []models.Movement{}})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	movements, err := h.ledger.Query(principal.ID, limit)
	if err != nil {
		log.Printf("[LEDGER] Query for %s failed: %v", principal.ID, err)
		json.NewEncoder(w).Encode(map[string]any{"movements": []models.Movement{}})
		return
	}

	json.NewEncoder(w).Encode(map[string]any{"movements": movements})
}
