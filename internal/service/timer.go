package service

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/gameerr"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
	"github.com/freeholdgames/stellar-dominion/internal/repository/redis"
)

// TurnScheduler listens for the Redis turn-deadline key expiring and triggers
// turn advancement. A polling fallback catches deadlines if keyspace
// notifications are unavailable, and boot recovery advances a turn that
// lapsed while the server was down.
type TurnScheduler struct {
	rdb   *goredis.Client
	turns *TurnService
	state repository.GameStateRepository
	timer repository.TurnTimer
}

// NewTurnScheduler creates a TurnScheduler.
func NewTurnScheduler(rdb *goredis.Client, turns *TurnService, state repository.GameStateRepository, timer repository.TurnTimer) *TurnScheduler {
	return &TurnScheduler{rdb: rdb, turns: turns, state: state, timer: timer}
}

// Start recovers any lapsed deadline, then listens for expired key events
// with a polling fallback. Blocks until ctx is done.
func (t *TurnScheduler) Start(ctx context.Context) {
	t.recover(ctx)
	go t.listenKeyspace(ctx)
	t.pollDeadline(ctx)
}

// recover handles the boot cases: no game yet (nothing to do), deadline
// already past (advance now), or deadline still ahead (re-arm the timer key
// lost with the old process).
func (t *TurnScheduler) recover(ctx context.Context) {
	gs, err := t.state.Get(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Scheduler boot recovery failed to read game state")
		return
	}
	if gs == nil {
		log.Info().Msg("Scheduler started before game initialization")
		return
	}
	if !gs.EndTime.After(time.Now()) {
		log.Info().Int("turn", gs.TurnNumber).Time("deadline", gs.EndTime).Msg("Turn deadline lapsed while down, advancing")
		t.advance(ctx)
		return
	}
	if err := t.timer.SetTurnDeadline(ctx, gs.EndTime); err != nil {
		log.Warn().Err(err).Msg("Failed to re-arm turn deadline at boot")
	}
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (t *TurnScheduler) listenKeyspace(ctx context.Context) {
	pubsub := t.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Turn scheduler started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(ctx, msg.Payload)
		}
	}
}

// pollDeadline periodically checks whether the turn deadline has passed and
// advances if so.
func (t *TurnScheduler) pollDeadline(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	log.Info().Msg("Turn deadline poller started (10s interval)")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Turn deadline poller stopped")
			return
		case <-ticker.C:
			t.checkDeadline(ctx)
		}
	}
}

// checkDeadline advances the turn when its window has closed.
func (t *TurnScheduler) checkDeadline(ctx context.Context) {
	gs, err := t.state.Get(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read game state")
		return
	}
	if gs == nil || gs.IsProcessing || gs.EndTime.After(time.Now()) {
		return
	}
	log.Info().Int("turn", gs.TurnNumber).Time("deadline", gs.EndTime).Msg("Poller found lapsed turn deadline")
	t.advance(ctx)
}

// handleExpiry processes an expired key. Only the turn deadline key matters.
func (t *TurnScheduler) handleExpiry(ctx context.Context, key string) {
	if key != redis.TurnDeadlineKey {
		return
	}
	log.Info().Msg("Turn deadline expired, advancing turn")
	t.advance(ctx)
}

// advance runs the turn pipeline. Losing the processing race to another node
// is expected and logged quietly.
func (t *TurnScheduler) advance(ctx context.Context) {
	if _, err := t.turns.Advance(ctx); err != nil {
		if gameerr.KindOf(err) == gameerr.KindConflict {
			log.Debug().Err(err).Msg("Turn advance skipped")
			return
		}
		log.Error().Err(err).Msg("Turn advance failed")
	}
}
