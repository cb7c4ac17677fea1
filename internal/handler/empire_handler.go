package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/freeholdgames/stellar-dominion/internal/auth"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/service"
)

// EmpireHandler serves the player's empire overview and profile changes.
type EmpireHandler struct {
	empires *service.EmpireService
	gateway *service.ActionGateway
}

// NewEmpireHandler creates a new EmpireHandler.
func NewEmpireHandler(empires *service.EmpireService, gateway *service.ActionGateway) *EmpireHandler {
	return &EmpireHandler{empires: empires, gateway: gateway}
}

// Overview handles GET /empire. First contact bootstraps the empire with its
// homeworld and starting fleet.
func (h *EmpireHandler) Overview(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}

	overview, err := h.empires.Overview(r.Context(), playerID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// Rename handles PUT /empire/name.
func (h *EmpireHandler) Rename(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}

	var req struct {
		Name      string `json:"name" validate:"required,max=64"`
		Emergency bool   `json:"emergency"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	act := service.Action{Type: service.ActionRenameEmpire, Emergency: req.Emergency, Payload: &req}
	out, res, err := h.gateway.Execute(r.Context(), playerID, act, func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error) {
		if err := h.empires.Rename(ctx, empire.ID, req.Name); err != nil {
			return nil, nil, err
		}
		details, _ := json.Marshal(map[string]string{"name": req.Name})
		return map[string]string{"id": empire.ID, "name": req.Name}, details, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeAction(w, http.StatusOK, out, res)
}
