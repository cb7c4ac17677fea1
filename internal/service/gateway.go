package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/model"
)

// OperationFunc is the domain half of a gateway action. It runs once
// validation and reservation succeed and returns the response payload plus
// the detail blob recorded with the committed action.
type OperationFunc func(ctx context.Context, empire *model.Empire) (any, json.RawMessage, error)

// StatusSnapshot carries the per-request game headers.
type StatusSnapshot struct {
	Turn          int
	Phase         string
	TimeRemaining time.Duration
	ActionPoints  int
}

// ActionGateway runs every mutating player action through the same sequence:
// resolve the empire, validate against game balance, reserve action points,
// run the domain operation, then commit the points or release them on
// failure.
type ActionGateway struct {
	empires *EmpireService
	turns   *TurnService
	balance *BalanceEngine
	ledger  *LedgerService
}

// NewActionGateway creates an ActionGateway.
func NewActionGateway(empires *EmpireService, turns *TurnService, balance *BalanceEngine, ledger *LedgerService) *ActionGateway {
	return &ActionGateway{empires: empires, turns: turns, balance: balance, ledger: ledger}
}

// Execute runs one player action end to end. The returned ValidationResult
// carries any warnings even on success; on a failed validation the error is
// already shaped for the client.
func (g *ActionGateway) Execute(ctx context.Context, playerID string, act Action, op OperationFunc) (any, *ValidationResult, error) {
	empire, err := g.empires.EnsureEmpire(ctx, playerID)
	if err != nil {
		return nil, nil, err
	}
	status, err := g.turns.Current(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, err := g.ledger.EnsureAllocated(ctx, playerID, status.TurnNumber); err != nil {
		return nil, nil, err
	}

	res, err := g.balance.Validate(ctx, empire, status.TurnNumber, act)
	if err != nil {
		return nil, nil, err
	}
	if !res.Valid {
		return nil, res, res.Err()
	}

	reservation, err := g.ledger.Reserve(ctx, playerID, status.TurnNumber, res.RequiredPoints, act.Type)
	if err != nil {
		return nil, res, err
	}

	out, details, err := op(ctx, empire)
	if err != nil {
		g.ledger.Release(ctx, reservation.ID)
		return nil, res, err
	}

	if err := g.ledger.Commit(ctx, reservation.ID, details); err != nil {
		// The domain operation already persisted. Losing the point charge is
		// the lesser harm; log it loudly and let the sweeper reclaim the hold.
		log.Error().Err(err).
			Str("reservationId", reservation.ID).
			Str("action", act.Type).
			Str("playerId", playerID).
			Msg("Reservation commit failed after action persisted")
	}
	return out, res, nil
}

// ActionPoints returns the player's ledger row for the current turn plus the
// points still spendable, allocating the row if this is the player's first
// touch this turn.
func (g *ActionGateway) ActionPoints(ctx context.Context, playerID string) (*model.ActionPointLedger, int, error) {
	status, err := g.turns.Current(ctx)
	if err != nil {
		return nil, 0, err
	}
	if _, err := g.ledger.EnsureAllocated(ctx, playerID, status.TurnNumber); err != nil {
		return nil, 0, err
	}
	return g.ledger.Balance(ctx, playerID, status.TurnNumber)
}

// Snapshot resolves the game-header values for one authenticated request.
// Returns false before game initialization so the headers are suppressed.
func (g *ActionGateway) Snapshot(ctx context.Context, playerID string) (StatusSnapshot, bool) {
	status, err := g.turns.Current(ctx)
	if err != nil {
		return StatusSnapshot{}, false
	}
	_, available, err := g.ledger.Balance(ctx, playerID, status.TurnNumber)
	if err != nil {
		return StatusSnapshot{}, false
	}
	return StatusSnapshot{
		Turn:          status.TurnNumber,
		Phase:         status.Phase,
		TimeRemaining: time.Duration(status.TimeRemaining) * time.Second,
		ActionPoints:  available,
	}, true
}
