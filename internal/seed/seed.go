// Package seed pre-populates a fresh deployment: generated planets for the
// home-region sectors and the turn-1 game state. Both halves are idempotent,
// so `stellard init` runs safely against a live database.
package seed

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/gameerr"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
	"github.com/freeholdgames/stellar-dominion/pkg/galaxy"
)

// homeRegionTier sets the planet density of seeded home sectors.
const homeRegionTier = galaxy.ExplorationSurvey

// SectorSeeder is the slice of the planet repository the seeder needs.
type SectorSeeder interface {
	CreateSectorPlanets(ctx context.Context, empireID, sector string, cost economy.Resources, planets []model.Planet) ([]model.Planet, bool, error)
}

// GameInitializer creates the turn-1 game state.
type GameInitializer interface {
	Initialize(ctx context.Context) (*model.GameState, error)
}

// HomeRegion generates planets for the 5x5 sectors around the origin so
// first players have homeworlds and colonization targets. Sectors that
// already hold planets are left untouched; generation is free, no empire
// pays for it. Returns the number of planets inserted.
func HomeRegion(ctx context.Context, planets SectorSeeder, galaxySeed int64) (int, error) {
	created := 0
	for _, coord := range galaxy.HomeRegion() {
		rng := galaxy.SectorRng(galaxySeed, coord)
		rolled, err := galaxy.Generate(homeRegionTier, rng)
		if err != nil {
			return created, fmt.Errorf("generate sector %s: %w", coord, err)
		}
		candidates := make([]model.Planet, 0, len(rolled))
		for _, p := range rolled {
			candidates = append(candidates, model.Planet{Name: p.Name, Type: p.Type})
		}
		inserted, fresh, err := planets.CreateSectorPlanets(ctx, "", coord.String(), economy.Resources{}, candidates)
		if err != nil {
			return created, fmt.Errorf("seed sector %s: %w", coord, err)
		}
		if fresh {
			created += len(inserted)
		}
	}
	return created, nil
}

// Run seeds the home region and creates turn 1. A game that is already
// initialized is left alone.
func Run(ctx context.Context, planets SectorSeeder, turns GameInitializer, galaxySeed int64) error {
	created, err := HomeRegion(ctx, planets, galaxySeed)
	if err != nil {
		return err
	}
	log.Info().Int("planets", created).Msg("Home region seeded")

	if _, err := turns.Initialize(ctx); err != nil {
		if gameerr.KindOf(err) == gameerr.KindConflict {
			log.Info().Msg("Game already initialized, keeping current turn")
			return nil
		}
		return err
	}
	return nil
}
