package handler

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/auth"
	"github.com/freeholdgames/stellar-dominion/internal/gameerr"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
	"github.com/freeholdgames/stellar-dominion/internal/service"
)

// GameHandler serves the shared game clock and the leaderboard.
type GameHandler struct {
	turns       *service.TurnService
	leaderboard *service.LeaderboardService
	players     repository.PlayerRepository
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(turns *service.TurnService, leaderboard *service.LeaderboardService, players repository.PlayerRepository) *GameHandler {
	return &GameHandler{turns: turns, leaderboard: leaderboard, players: players}
}

// Turn handles GET /game/turn.
func (h *GameHandler) Turn(w http.ResponseWriter, r *http.Request) {
	status, err := h.turns.Current(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// AdvanceTurn handles POST /game/advance-turn. Admin only; the scheduler
// normally drives advancement, this exists for operators and tests.
func (h *GameHandler) AdvanceTurn(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerIDFromContext(r.Context())
	if playerID == "" {
		writeError(w, http.StatusUnauthorized, "auth_error", "not authenticated")
		return
	}

	player, err := h.players.FindByID(r.Context(), playerID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if player == nil || !player.IsAdmin {
		writeDomainError(w, r, gameerr.AccessDeniedf("turn advancement requires admin rights"))
		return
	}

	gs, err := h.turns.Advance(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	log.Info().Str("player_id", playerID).Int("turn", gs.TurnNumber).Msg("Turn advanced manually")

	status, err := h.turns.Current(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Leaderboard handles GET /leaderboard.
func (h *GameHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "limit must be an integer")
			return
		}
		limit = n
	}

	entries, err := h.leaderboard.Top(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
