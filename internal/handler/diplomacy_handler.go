package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/freeholdgames/stellar-dominion/internal/auth"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/service"
	"github.com/freeholdgames/stellar-dominion/pkg/diplomacy"
)

// DiplomacyHandler serves relations, proposals, and direct messages.
type DiplomacyHandler struct {
	diplomacy *service.DiplomacyService
	empires   *service.EmpireService
	gateway   *service.ActionGateway
}

// NewDiplomacyHandler creates a new DiplomacyHandler.
func NewDiplomacyHandler(diplomacySvc *service.DiplomacyService, empires *service.EmpireService, gateway *service.ActionGateway) *DiplomacyHandler {
	return &DiplomacyHandler{diplomacy: diplomacySvc, empires: empires, gateway: gateway}
}

// Relations handles GET /diplomacy/relations.
func (h *DiplomacyHandler) Relations(w http.ResponseWriter, r *http.Request) {
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
	relations, err := h.diplomacy.Relations(r.Context(), empire.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, relations)
}

// Proposals handles GET /diplomacy/proposals: everything pending in either
// direction.
func (h *DiplomacyHandler) Proposals(w http.ResponseWriter, r *http.Request) {
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
	proposals, err := h.diplomacy.Proposals(r.Context(), empire.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proposals)
}

// Propose handles POST /diplomacy/proposals.
func (h *DiplomacyHandler) Propose(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}

	var req struct {
		TargetID  string          `json:"target_id" validate:"required"`
		Type      string          `json:"type" validate:"required"`
		Terms     json.RawMessage `json:"terms"`
		Emergency bool            `json:"emergency"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	act := service.Action{Type: service.ActionCreateProposal, Emergency: req.Emergency, Payload: &req}
	out, res, err := h.gateway.Execute(r.Context(), playerID, act, func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error) {
		proposal, err := h.diplomacy.Propose(ctx, empire.ID, req.TargetID, diplomacy.ProposalType(req.Type), req.Terms)
		if err != nil {
			return nil, nil, err
		}
		details, _ := json.Marshal(map[string]string{"proposal_id": proposal.ID, "type": req.Type, "target_id": req.TargetID})
		return proposal, details, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeAction(w, http.StatusCreated, out, res)
}

// respondResponse pairs the settled proposal with the agreement an accept
// produced, if any.
type respondResponse struct {
	Proposal  *model.DiplomaticProposal `json:"proposal"`
	Agreement *model.Agreement          `json:"agreement,omitempty"`
}

// Respond handles POST /diplomacy/proposals/{id}/respond.
func (h *DiplomacyHandler) Respond(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}
	proposalID := r.PathValue("id")

	var req struct {
		Response     string          `json:"response" validate:"required,oneof=accept reject counter"`
		CounterTerms json.RawMessage `json:"counter_terms"`
		Emergency    bool            `json:"emergency"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	act := service.Action{Type: service.ActionRespondProposal, Emergency: req.Emergency, Payload: &req}
	out, res, err := h.gateway.Execute(r.Context(), playerID, act, func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error) {
		proposal, agreement, err := h.diplomacy.Respond(ctx, empire.ID, proposalID, req.Response, req.CounterTerms)
		if err != nil {
			return nil, nil, err
		}
		details, _ := json.Marshal(map[string]string{"proposal_id": proposalID, "response": req.Response})
		return respondResponse{Proposal: proposal, Agreement: agreement}, details, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeAction(w, http.StatusOK, out, res)
}

// SendMessage handles POST /diplomacy/messages.
func (h *DiplomacyHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}

	var req struct {
		RecipientID string `json:"recipient_id" validate:"required"`
		Body        string `json:"body" validate:"required,max=2000"`
		Emergency   bool   `json:"emergency"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	act := service.Action{Type: service.ActionSendMessage, Emergency: req.Emergency, Payload: &req}
	out, res, err := h.gateway.Execute(r.Context(), playerID, act, func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error) {
		msg, err := h.diplomacy.SendMessage(ctx, empire.ID, req.RecipientID, req.Body)
		if err != nil {
			return nil, nil, err
		}
		details, _ := json.Marshal(map[string]string{"message_id": msg.ID, "recipient_id": req.RecipientID})
		return msg, details, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeAction(w, http.StatusCreated, out, res)
}

// Messages handles GET /diplomacy/messages?with=<empire>: the two-way thread
// between the caller and one other empire.
func (h *DiplomacyHandler) Messages(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}

	otherID := r.URL.Query().Get("with")
	if otherID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "missing 'with' query parameter")
		return
	}

	empire, err := h.empires.EnsureEmpire(r.Context(), playerID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	messages, err := h.diplomacy.MessagesWith(r.Context(), empire.ID, otherID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}
