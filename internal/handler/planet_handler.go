package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/freeholdgames/stellar-dominion/internal/auth"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/service"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// PlanetHandler serves colony listings and colony management actions.
type PlanetHandler struct {
	territory *service.TerritoryService
	empires   *service.EmpireService
	gateway   *service.ActionGateway
}

// NewPlanetHandler creates a new PlanetHandler.
func NewPlanetHandler(territory *service.TerritoryService, empires *service.EmpireService, gateway *service.ActionGateway) *PlanetHandler {
	return &PlanetHandler{territory: territory, empires: empires, gateway: gateway}
}

// List handles GET /planets. Without a sector filter it returns the caller's
// colonies; with ?sector=x,y it returns everything known in that sector.
func (h *PlanetHandler) List(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}

	if sector := r.URL.Query().Get("sector"); sector != "" {
		planets, err := h.territory.BySector(r.Context(), sector)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, planets)
		return
	}

	empire, err := h.empires.EnsureEmpire(r.Context(), playerID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	planets, err := h.territory.List(r.Context(), empire.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, planets)
}

// Get handles GET /planets/{id}. Uncolonized planets are visible to anyone;
// foreign colonies are not.
func (h *PlanetHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	planet, err := h.territory.Get(r.Context(), empire.ID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, planet)
}

// SetSpecialization handles PUT /planets/{id}/specialization.
func (h *PlanetHandler) SetSpecialization(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}
	planetID := r.PathValue("id")

	var req struct {
		PlanetType string `json:"planet_type" validate:"required"`
		Emergency  bool   `json:"emergency"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	act := service.Action{
		Type:      service.ActionSetSpecialization,
		Emergency: req.Emergency,
		Payload:   &req,
		Cost:      economy.SpecializationCost,
	}
	out, res, err := h.gateway.Execute(r.Context(), playerID, act, func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error) {
		planet, err := h.territory.SetSpecialization(ctx, empire.ID, planetID, economy.PlanetType(req.PlanetType))
		if err != nil {
			return nil, nil, err
		}
		details, _ := json.Marshal(map[string]string{"planet_id": planetID, "planet_type": req.PlanetType})
		return planet, details, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeAction(w, http.StatusOK, out, res)
}

// AddBuildings handles POST /planets/{id}/buildings.
func (h *PlanetHandler) AddBuildings(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}
	planetID := r.PathValue("id")

	var req struct {
		BuildingType string `json:"building_type" validate:"required"`
		Count        int    `json:"count" validate:"required,min=1"`
		Emergency    bool   `json:"emergency"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	btype := economy.BuildingType(req.BuildingType)
	var cost economy.Resources
	if stats, ok := economy.BuildingStatsFor(btype); ok && req.Count > 0 {
		cost = stats.Cost.Mul(req.Count)
	}

	act := service.Action{
		Type:      service.ActionQueueBuildings,
		Emergency: req.Emergency,
		Payload:   &req,
		Cost:      cost,
	}
	out, res, err := h.gateway.Execute(r.Context(), playerID, act, func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error) {
		planet, err := h.territory.AddBuildings(ctx, empire.ID, planetID, btype, req.Count)
		if err != nil {
			return nil, nil, err
		}
		details, _ := json.Marshal(map[string]any{"planet_id": planetID, "building_type": req.BuildingType, "count": req.Count})
		return planet, details, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeAction(w, http.StatusOK, out, res)
}
