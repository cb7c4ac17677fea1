package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/freeholdgames/stellar-dominion/internal/auth"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/service"
	"github.com/freeholdgames/stellar-dominion/pkg/diplomacy"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// TradeHandler serves trade route establishment, listing, and cancellation.
type TradeHandler struct {
	trade   *service.TradeService
	empires *service.EmpireService
	gateway *service.ActionGateway
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(trade *service.TradeService, empires *service.EmpireService, gateway *service.ActionGateway) *TradeHandler {
	return &TradeHandler{trade: trade, empires: empires, gateway: gateway}
}

// Establish handles POST /trade-routes. Both sides pay the establishment fee
// when the route opens.
func (h *TradeHandler) Establish(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}

	var req struct {
		PartnerID string            `json:"partner_id" validate:"required"`
		Gives     economy.Resources `json:"gives"`
		Receives  economy.Resources `json:"receives"`
		Emergency bool              `json:"emergency"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	act := service.Action{
		Type:      service.ActionEstablishTradeRoute,
		Emergency: req.Emergency,
		Payload:   &req,
		Cost:      diplomacy.TradeRouteEstablishCost,
	}
	out, res, err := h.gateway.Execute(r.Context(), playerID, act, func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error) {
		route, err := h.trade.Establish(ctx, empire.ID, req.PartnerID, req.Gives, req.Receives)
		if err != nil {
			return nil, nil, err
		}
		details, _ := json.Marshal(map[string]string{"route_id": route.ID, "partner_id": req.PartnerID})
		return route, details, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeAction(w, http.StatusCreated, out, res)
}

// List handles GET /trade-routes.
func (h *TradeHandler) List(w http.ResponseWriter, r *http.Request) {
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
	routes, err := h.trade.Routes(r.Context(), empire.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

// Get handles GET /trade-routes/{id}.
func (h *TradeHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	route, err := h.trade.Route(r.Context(), empire.ID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

// Cancel handles DELETE /trade-routes/{id}. Cancelling is administrative
// upkeep, not a strategic play, so it costs no action points.
func (h *TradeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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
	if err := h.trade.Cancel(r.Context(), empire.ID, r.PathValue("id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
