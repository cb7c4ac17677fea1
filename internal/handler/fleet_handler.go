package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/freeholdgames/stellar-dominion/internal/auth"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/service"
	"github.com/freeholdgames/stellar-dominion/pkg/combat"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// FleetHandler serves fleet listings, construction, movement, and refits.
type FleetHandler struct {
	fleets  *service.FleetService
	empires *service.EmpireService
	gateway *service.ActionGateway
}

// NewFleetHandler creates a new FleetHandler.
func NewFleetHandler(fleets *service.FleetService, empires *service.EmpireService, gateway *service.ActionGateway) *FleetHandler {
	return &FleetHandler{fleets: fleets, empires: empires, gateway: gateway}
}

// List handles GET /fleets.
func (h *FleetHandler) List(w http.ResponseWriter, r *http.Request) {
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
	fleets, err := h.fleets.List(r.Context(), empire.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fleets)
}

// Get handles GET /fleets/{id}.
func (h *FleetHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	fleet, err := h.fleets.Get(r.Context(), empire.ID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fleet)
}

// Create handles POST /fleets. Ships are built on the spot at a colony, so
// the full composition cost is charged up front.
func (h *FleetHandler) Create(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}

	var req struct {
		Name        string             `json:"name" validate:"required,max=64"`
		PlanetID    string             `json:"planet_id" validate:"required"`
		Composition combat.Composition `json:"composition" validate:"required"`
		Emergency   bool               `json:"emergency"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	act := service.Action{
		Type:      service.ActionCreateFleet,
		Emergency: req.Emergency,
		Payload:   &req,
		Cost:      economy.CompositionCost(req.Composition),
		Quantity:  req.Composition.Total(),
	}
	out, res, err := h.gateway.Execute(r.Context(), playerID, act, func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error) {
		fleet, err := h.fleets.Create(ctx, empire.ID, req.Name, req.PlanetID, req.Composition)
		if err != nil {
			return nil, nil, err
		}
		details, _ := json.Marshal(map[string]any{"fleet_id": fleet.ID, "ships": req.Composition.Total()})
		return fleet, details, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeAction(w, http.StatusCreated, out, res)
}

// moveResponse reports the fleet already flipped to moving plus its arrival
// estimate.
type moveResponse struct {
	Fleet *model.Fleet `json:"fleet"`
	ETA   time.Time    `json:"eta"`
}

// Move handles PUT /fleets/{id}/location. Movement is asynchronous: the
// response is the accepted order, arrival happens at the ETA.
func (h *FleetHandler) Move(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}
	fleetID := r.PathValue("id")

	var req struct {
		Destination string `json:"destination" validate:"required"`
		Emergency   bool   `json:"emergency"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	act := service.Action{
		Type:      service.ActionMoveFleet,
		Emergency: req.Emergency,
		Payload:   &req,
		FleetID:   fleetID,
	}
	out, res, err := h.gateway.Execute(r.Context(), playerID, act, func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error) {
		fleet, eta, err := h.fleets.Move(ctx, empire.ID, fleetID, req.Destination)
		if err != nil {
			return nil, nil, err
		}
		details, _ := json.Marshal(map[string]string{"fleet_id": fleetID, "destination": req.Destination})
		return moveResponse{Fleet: fleet, ETA: eta}, details, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeAction(w, http.StatusAccepted, out, res)
}

// UpdateComposition handles PUT /fleets/{id}/composition. Additions are
// charged, removals refund half; the balance engine only sees the purchase
// side of the refit.
func (h *FleetHandler) UpdateComposition(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}
	fleetID := r.PathValue("id")

	var req struct {
		Composition combat.Composition `json:"composition" validate:"required"`
		Emergency   bool               `json:"emergency"`
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
	current, err := h.fleets.Get(r.Context(), empire.ID, fleetID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	act := service.Action{
		Type:      service.ActionUpdateComposition,
		Emergency: req.Emergency,
		Payload:   &req,
		Cost:      service.RefitCost(current.Composition, req.Composition).Clamp(),
		Quantity:  req.Composition.Total(),
		FleetID:   fleetID,
	}
	out, res, err := h.gateway.Execute(r.Context(), playerID, act, func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error) {
		fleet, charged, err := h.fleets.UpdateComposition(ctx, empire.ID, fleetID, req.Composition)
		if err != nil {
			return nil, nil, err
		}
		details, _ := json.Marshal(map[string]any{"fleet_id": fleetID, "ships": req.Composition.Total(), "charged": charged})
		return fleet, details, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeAction(w, http.StatusOK, out, res)
}
