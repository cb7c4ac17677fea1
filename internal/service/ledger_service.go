package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/gameerr"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
)

// ReservationTTL bounds how long reserved points may sit between reserve and
// commit before the sweeper reclaims them.
const ReservationTTL = 30 * time.Second

// LedgerService fronts the action-point ledger: idempotent per-turn
// allocation and the two-phase reserve/commit/release cycle every gateway
// action runs through.
type LedgerService struct {
	ledger repository.LedgerRepository
	points int
	now    func() time.Time
}

// NewLedgerService creates a LedgerService allocating pointsPerTurn to each
// player every turn.
func NewLedgerService(ledger repository.LedgerRepository, pointsPerTurn int) *LedgerService {
	return &LedgerService{ledger: ledger, points: pointsPerTurn, now: time.Now}
}

// EnsureAllocated inserts the player's ledger row for the turn if absent and
// returns it either way.
func (s *LedgerService) EnsureAllocated(ctx context.Context, playerID string, turn int) (*model.ActionPointLedger, error) {
	row, err := s.ledger.Allocate(ctx, playerID, turn, s.points)
	if err != nil {
		return nil, fmt.Errorf("allocate action points: %w", err)
	}
	return row, nil
}

// Balance returns the player's ledger row plus the points still spendable
// after live reservations.
func (s *LedgerService) Balance(ctx context.Context, playerID string, turn int) (*model.ActionPointLedger, int, error) {
	row, err := s.ledger.Get(ctx, playerID, turn)
	if err != nil {
		return nil, 0, fmt.Errorf("get ledger: %w", err)
	}
	if row == nil {
		return nil, 0, nil
	}
	available, err := s.ledger.Available(ctx, playerID, turn)
	if err != nil {
		return nil, 0, fmt.Errorf("available points: %w", err)
	}
	return row, available, nil
}

// Reserve holds points for one action. The hold expires after ReservationTTL
// unless committed or released.
func (s *LedgerService) Reserve(ctx context.Context, playerID string, turn, points int, actionType string) (*model.ActionPointReservation, error) {
	res, err := s.ledger.Reserve(ctx, playerID, turn, points, actionType, ReservationTTL)
	if err != nil {
		var ipe *repository.InsufficientPointsError
		if errors.As(err, &ipe) {
			return nil, gameerr.InsufficientActionPointsf("action needs %d points, %d available", ipe.Required, ipe.Available).
				WithDetail("required", ipe.Required).
				WithDetail("available", ipe.Available)
		}
		return nil, fmt.Errorf("reserve points: %w", err)
	}
	return res, nil
}

// Commit converts the reservation into spent points plus an immutable action
// log row.
func (s *LedgerService) Commit(ctx context.Context, reservationID string, details json.RawMessage) error {
	if err := s.ledger.Commit(ctx, reservationID, details); err != nil {
		if errors.Is(err, repository.ErrReservationGone) {
			return gameerr.Conflictf("reservation expired before the action completed").Wrap(err)
		}
		return fmt.Errorf("commit reservation: %w", err)
	}
	return nil
}

// Release drops the reservation. Missing rows are not an error; the TTL
// sweep covers anything the caller failed to release.
func (s *LedgerService) Release(ctx context.Context, reservationID string) {
	if err := s.ledger.Release(ctx, reservationID); err != nil {
		log.Warn().Err(err).Str("reservationId", reservationID).Msg("Failed to release reservation")
	}
}

// StartSweeper reclaims expired reservations every interval until ctx ends.
func (s *LedgerService) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Reservation sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reservation sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.ledger.SweepExpired(ctx, s.now())
			if err != nil {
				log.Error().Err(err).Msg("Reservation sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("count", n).Msg("Swept expired reservations")
			}
		}
	}
}
