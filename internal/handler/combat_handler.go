package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/freeholdgames/stellar-dominion/internal/auth"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/service"
)

// CombatHandler serves battle initiation, retreats, and battle reports.
type CombatHandler struct {
	combat  *service.CombatService
	empires *service.EmpireService
	gateway *service.ActionGateway
}

// NewCombatHandler creates a new CombatHandler.
func NewCombatHandler(combat *service.CombatService, empires *service.EmpireService, gateway *service.ActionGateway) *CombatHandler {
	return &CombatHandler{combat: combat, empires: empires, gateway: gateway}
}

// Attack handles POST /combat/battles. With deferred set the battle is
// queued for turn processing; otherwise it resolves in the request.
func (h *CombatHandler) Attack(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}

	var req struct {
		AttackerFleetID string `json:"attacker_fleet_id" validate:"required"`
		DefenderFleetID string `json:"defender_fleet_id" validate:"required"`
		Surprise        bool   `json:"surprise"`
		Deferred        bool   `json:"deferred"`
		Emergency       bool   `json:"emergency"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	act := service.Action{
		Type:      service.ActionInitiateCombat,
		Emergency: req.Emergency,
		Payload:   &req,
		FleetID:   req.AttackerFleetID,
	}
	out, res, err := h.gateway.Execute(r.Context(), playerID, act, func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error) {
		battle, err := h.combat.Attack(ctx, empire.ID, req.AttackerFleetID, req.DefenderFleetID, req.Surprise, req.Deferred)
		if err != nil {
			return nil, nil, err
		}
		details, _ := json.Marshal(map[string]any{
			"battle_id": battle.ID,
			"attacker":  req.AttackerFleetID,
			"defender":  req.DefenderFleetID,
			"deferred":  req.Deferred,
		})
		return battle, details, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeAction(w, http.StatusCreated, out, res)
}

// Retreat handles POST /combat/battles/{id}/retreat.
func (h *CombatHandler) Retreat(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}
	battleID := r.PathValue("id")

	var req struct {
		Emergency bool `json:"emergency"`
	}
	// The retreat body is optional.
	_ = decodeJSON(r, &req)

	act := service.Action{Type: service.ActionRetreat, Emergency: req.Emergency}
	out, res, err := h.gateway.Execute(r.Context(), playerID, act, func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error) {
		battle, err := h.combat.Retreat(ctx, empire.ID, battleID)
		if err != nil {
			return nil, nil, err
		}
		details, _ := json.Marshal(map[string]string{"battle_id": battleID})
		return battle, details, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeAction(w, http.StatusOK, out, res)
}

// List handles GET /combat/battles. Only battles the caller fought in are
// visible.
func (h *CombatHandler) List(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}

	empire, err := h.empires.EnsureEmpire(r.Context(), playerID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	battles, err := h.combat.Battles(r.Context(), empire.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, battles)
}

// Get handles GET /combat/battles/{id}.
func (h *CombatHandler) Get(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}

	empire, err := h.empires.EnsureEmpire(r.Context(), playerID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	battle, err := h.combat.Battle(r.Context(), empire.ID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, battle)
}
