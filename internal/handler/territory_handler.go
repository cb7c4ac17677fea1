package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/freeholdgames/stellar-dominion/internal/auth"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/service"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
	"github.com/freeholdgames/stellar-dominion/pkg/galaxy"
)

// TerritoryHandler serves exploration and colonization.
type TerritoryHandler struct {
	territory *service.TerritoryService
	empires   *service.EmpireService
	gateway   *service.ActionGateway
}

// NewTerritoryHandler creates a new TerritoryHandler.
func NewTerritoryHandler(territory *service.TerritoryService, empires *service.EmpireService, gateway *service.ActionGateway) *TerritoryHandler {
	return &TerritoryHandler{territory: territory, empires: empires, gateway: gateway}
}

// Explore handles POST /sectors/{coord}/explore.
func (h *TerritoryHandler) Explore(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}
	sector := r.PathValue("coord")

	var req struct {
		Type      string `json:"type"`
		Emergency bool   `json:"emergency"`
	}
	// The body is optional; a bare POST is a plain scout pass.
	_ = decodeJSON(r, &req)
	if req.Type == "" {
		req.Type = string(galaxy.ExplorationScout)
	}
	etype := galaxy.ExplorationType(req.Type)

	// Revisits are free, so only bill the balance engine for first contact.
	cost := galaxy.ExplorationCost(etype)
	if known, err := h.territory.BySector(r.Context(), sector); err == nil && len(known) > 0 {
		cost = economy.Resources{}
	}

	act := service.Action{
		Type:      service.ActionExploreSector,
		Emergency: req.Emergency,
		Cost:      cost,
	}
	out, res, err := h.gateway.Execute(r.Context(), playerID, act, func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error) {
		outcome, err := h.territory.Explore(ctx, empire.ID, sector, etype)
		if err != nil {
			return nil, nil, err
		}
		details, _ := json.Marshal(map[string]any{"sector": sector, "type": req.Type, "revisit": outcome.Revisit})
		return outcome, details, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeAction(w, http.StatusOK, out, res)
}

// colonizeResponse reports the claim already underway and when the colony
// goes active.
type colonizeResponse struct {
	Planet      *model.Planet `json:"planet"`
	CompletesAt time.Time     `json:"completes_at"`
}

// Colonize handles POST /colonize. Colonization is asynchronous: the fleet
// is committed immediately, the colony activates at the completion time.
func (h *TerritoryHandler) Colonize(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}

	var req struct {
		PlanetID  string `json:"planet_id" validate:"required"`
		FleetID   string `json:"fleet_id" validate:"required"`
		Emergency bool   `json:"emergency"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	empire, err := h.empires.EnsureEmpire(r.Context(), playerID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	quote, err := h.territory.ColonizationQuote(r.Context(), empire.ID, req.PlanetID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	act := service.Action{
		Type:      service.ActionColonizePlanet,
		Emergency: req.Emergency,
		Payload:   &req,
		Cost:      quote,
	}
	out, res, err := h.gateway.Execute(r.Context(), playerID, act, func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error) {
		planet, completesAt, err := h.territory.Colonize(ctx, empire.ID, req.PlanetID, req.FleetID)
		if err != nil {
			return nil, nil, err
		}
		details, _ := json.Marshal(map[string]string{"planet_id": req.PlanetID, "fleet_id": req.FleetID})
		return colonizeResponse{Planet: planet, CompletesAt: completesAt}, details, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeAction(w, http.StatusAccepted, out, res)
}

// Abandon handles DELETE /colonize/{id}: give up a colony for a partial
// refund.
func (h *TerritoryHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}
	planetID := r.PathValue("id")

	act := service.Action{Type: service.ActionAbandonColony}
	out, res, err := h.gateway.Execute(r.Context(), playerID, act, func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error) {
		refund, err := h.territory.Abandon(ctx, empire.ID, planetID)
		if err != nil {
			return nil, nil, err
		}
		details, _ := json.Marshal(map[string]string{"planet_id": planetID})
		return map[string]any{"planet_id": planetID, "refund": refund}, details, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeAction(w, http.StatusOK, out, res)
}
