package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/gameerr"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
)

// Turn phases, derived from how much of the turn window has elapsed.
const (
	PhaseActive  = "active"  // under 80% elapsed
	PhaseWarning = "warning" // 80-95% elapsed
	PhaseFinal   = "final"   // 95% and beyond
)

const (
	warningFraction = 0.80
	finalFraction   = 0.95

	// ledgerRetentionTurns is how many turns of action history survive the
	// per-advance garbage collection.
	ledgerRetentionTurns = 5
)

// TurnStatus is the derived view of the current turn window.
type TurnStatus struct {
	TurnNumber    int       `json:"turn_number"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	TimeRemaining int       `json:"time_remaining_seconds"`
	Phase         string    `json:"phase"`
	IsProcessing  bool      `json:"is_processing"`
}

// TurnService owns the turn singleton and the end-of-turn pipeline: economy,
// queued battles, trade settlement, colonization and movement completion,
// expiry sweeps, and the next turn's action-point allocation.
type TurnService struct {
	state   repository.GameStateRepository
	empires repository.EmpireRepository
	ledger  repository.LedgerRepository
	timer   repository.TurnTimer
	board   repository.LeaderboardCache

	resources *ResourceService
	combat    *CombatService
	trade     *TradeService
	territory *TerritoryService
	fleets    *FleetService
	diplo     *DiplomacyService

	turnDuration  time.Duration
	pointsPerTurn int
	now           func() time.Time
}

// NewTurnService creates a TurnService.
func NewTurnService(
	state repository.GameStateRepository,
	empires repository.EmpireRepository,
	ledger repository.LedgerRepository,
	timer repository.TurnTimer,
	board repository.LeaderboardCache,
	resources *ResourceService,
	combatSvc *CombatService,
	trade *TradeService,
	territory *TerritoryService,
	fleets *FleetService,
	diplo *DiplomacyService,
	turnDuration time.Duration,
	pointsPerTurn int,
) *TurnService {
	return &TurnService{
		state:         state,
		empires:       empires,
		ledger:        ledger,
		timer:         timer,
		board:         board,
		resources:     resources,
		combat:        combatSvc,
		trade:         trade,
		territory:     territory,
		fleets:        fleets,
		diplo:         diplo,
		turnDuration:  turnDuration,
		pointsPerTurn: pointsPerTurn,
		now:           time.Now,
	}
}

// State returns the raw turn singleton.
func (s *TurnService) State(ctx context.Context) (*model.GameState, error) {
	gs, err := s.state.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get game state: %w", err)
	}
	if gs == nil {
		return nil, gameerr.NotFoundf("game has not been initialized")
	}
	return gs, nil
}

// Current returns the turn with its derived phase and remaining time.
func (s *TurnService) Current(ctx context.Context) (*TurnStatus, error) {
	gs, err := s.State(ctx)
	if err != nil {
		return nil, err
	}
	return s.status(gs), nil
}

func (s *TurnService) status(gs *model.GameState) *TurnStatus {
	now := s.now()
	remaining := gs.EndTime.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return &TurnStatus{
		TurnNumber:    gs.TurnNumber,
		StartTime:     gs.StartTime,
		EndTime:       gs.EndTime,
		TimeRemaining: int(remaining.Seconds()),
		Phase:         phaseFor(gs.StartTime, gs.EndTime, now),
		IsProcessing:  gs.IsProcessing,
	}
}

// phaseFor derives the turn phase from how much of the window has elapsed.
func phaseFor(start, end, now time.Time) string {
	total := end.Sub(start)
	if total <= 0 {
		return PhaseFinal
	}
	frac := float64(now.Sub(start)) / float64(total)
	switch {
	case frac < warningFraction:
		return PhaseActive
	case frac < finalFraction:
		return PhaseWarning
	default:
		return PhaseFinal
	}
}

// Initialize creates turn 1 and arms the deadline timer.
func (s *TurnService) Initialize(ctx context.Context) (*model.GameState, error) {
	start := s.now()
	end := start.Add(s.turnDuration)
	gs, err := s.state.Initialize(ctx, 1, start, end)
	if err != nil {
		if isConflict(err) {
			return nil, gameerr.Conflictf("game is already initialized")
		}
		return nil, fmt.Errorf("initialize game: %w", err)
	}
	if err := s.timer.SetTurnDeadline(ctx, end); err != nil {
		log.Warn().Err(err).Msg("Failed to arm turn deadline")
	}
	log.Info().Int("turn", gs.TurnNumber).Time("ends", end).Msg("Game initialized")
	return gs, nil
}

// Advance runs the end-of-turn pipeline and opens the next turn. Exactly one
// advance runs at a time; concurrent calls fail with a conflict. Individual
// pipeline steps log and continue so one bad row cannot stall the turn.
func (s *TurnService) Advance(ctx context.Context) (*model.GameState, error) {
	claimed, err := s.state.BeginProcessing(ctx)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyProcessing):
			return nil, gameerr.Conflictf("a turn advance is already running")
		case isConflict(err):
			return nil, gameerr.Conflictf("game has not been initialized")
		default:
			return nil, fmt.Errorf("claim turn: %w", err)
		}
	}
	endingTurn := claimed.TurnNumber
	started := s.now()
	log.Info().Int("turn", endingTurn).Msg("Turn advance started")

	empireList, err := s.empires.List(ctx)
	if err != nil {
		s.abort(ctx)
		return nil, fmt.Errorf("list empires: %w", err)
	}

	applied := 0
	for _, empire := range empireList {
		ok, err := s.resources.ProcessTurn(ctx, empire.ID, endingTurn)
		if err != nil {
			log.Error().Err(err).Str("empireId", empire.ID).Msg("Economy step failed for empire")
			continue
		}
		if ok {
			applied++
		}
	}
	log.Info().Int("turn", endingTurn).Int("empires", applied).Msg("Economy applied")

	if _, err := s.combat.ResolveAllPending(ctx); err != nil {
		log.Error().Err(err).Msg("Pending combat step failed")
	}
	if _, _, err := s.trade.SettleAll(ctx, endingTurn); err != nil {
		log.Error().Err(err).Msg("Trade settlement step failed")
	}
	if _, err := s.territory.CompleteDue(ctx); err != nil {
		log.Error().Err(err).Msg("Colonization step failed")
	}
	if _, err := s.fleets.ArriveDue(ctx); err != nil {
		log.Error().Err(err).Msg("Fleet arrival step failed")
	}
	if _, err := s.diplo.ExpireDue(ctx); err != nil {
		log.Error().Err(err).Msg("Diplomacy expiry step failed")
	}
	if _, err := s.ledger.SweepExpired(ctx, s.now()); err != nil {
		log.Error().Err(err).Msg("Reservation sweep step failed")
	}

	newTurn := endingTurn + 1
	if before := newTurn - ledgerRetentionTurns; before > 0 {
		if n, err := s.ledger.DeleteOlderThan(ctx, before); err != nil {
			log.Error().Err(err).Msg("Ledger GC failed")
		} else if n > 0 {
			log.Info().Int("count", n).Int("beforeTurn", before).Msg("Old ledger rows collected")
		}
	}

	start := s.now()
	end := start.Add(s.turnDuration)
	gs, err := s.state.CompleteTurn(ctx, newTurn, start, end)
	if err != nil {
		s.abort(ctx)
		return nil, fmt.Errorf("complete turn: %w", err)
	}

	allocated := 0
	for _, empire := range empireList {
		if _, err := s.ledger.Allocate(ctx, empire.PlayerID, newTurn, s.pointsPerTurn); err != nil {
			log.Error().Err(err).Str("playerId", empire.PlayerID).Msg("Point allocation failed for player")
			continue
		}
		allocated++
	}

	if err := s.timer.SetTurnDeadline(ctx, end); err != nil {
		log.Warn().Err(err).Msg("Failed to arm turn deadline")
	}
	if err := s.board.InvalidateLeaderboard(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate leaderboard")
	}

	log.Info().
		Int("turn", newTurn).
		Int("playersAllocated", allocated).
		Dur("took", s.now().Sub(started)).
		Time("ends", end).
		Msg("Turn advanced")
	return gs, nil
}

// abort clears the processing flag after a hard pipeline failure so the next
// attempt is not locked out.
func (s *TurnService) abort(ctx context.Context) {
	if err := s.state.ClearProcessing(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to clear processing flag after aborted advance")
	}
}

// ClearProcessing force-clears a stuck processing flag. Operator recovery
// after a crash mid-advance.
func (s *TurnService) ClearProcessing(ctx context.Context) error {
	if err := s.state.ClearProcessing(ctx); err != nil {
		return fmt.Errorf("clear processing: %w", err)
	}
	log.Warn().Msg("Turn processing flag force-cleared")
	return nil
}
