package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/gameerr"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
	"github.com/freeholdgames/stellar-dominion/pkg/combat"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
	"github.com/freeholdgames/stellar-dominion/pkg/galaxy"
)

// Fresh homeworld sectors start on the spiral ring just outside the seeded
// 5x5 home region and the scan gives up after a full extra ring.
const (
	freshSectorOffset = 25
	freshSectorLimit  = 24
)

// startingFleet is granted to every new empire at its homeworld.
var startingFleet = combat.Composition{combat.Scout: 2, combat.Corvette: 1}

// EmpireService owns the empire lifecycle: first-play bootstrap, the
// overview snapshot, and renames.
type EmpireService struct {
	players   repository.PlayerRepository
	empires   repository.EmpireRepository
	planets   repository.PlanetRepository
	fleets    repository.FleetRepository
	resources *ResourceService
	starting  economy.Resources
}

// NewEmpireService creates an EmpireService granting starting resources to
// new empires.
func NewEmpireService(
	players repository.PlayerRepository,
	empires repository.EmpireRepository,
	planets repository.PlanetRepository,
	fleets repository.FleetRepository,
	resources *ResourceService,
	starting economy.Resources,
) *EmpireService {
	return &EmpireService{
		players:   players,
		empires:   empires,
		planets:   planets,
		fleets:    fleets,
		resources: resources,
		starting:  starting,
	}
}

// EnsureEmpire returns the player's empire, creating it on first play: the
// empire row, a claimed homeworld in the seeded home region (or a fresh ring
// sector when the region is full), and the starting fleet.
func (s *EmpireService) EnsureEmpire(ctx context.Context, playerID string) (*model.Empire, error) {
	empire, err := s.empires.FindByPlayerID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("find empire: %w", err)
	}
	if empire != nil {
		return empire, nil
	}

	player, err := s.players.FindByID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("find player: %w", err)
	}
	if player == nil {
		return nil, gameerr.NotFoundf("player not found")
	}

	name := fmt.Sprintf("%s Empire", player.DisplayName)
	empire, err = s.empires.Create(ctx, playerID, name, s.starting)
	if err != nil {
		// A concurrent first request won the insert; use its empire.
		if isConflict(err) {
			return s.empires.FindByPlayerID(ctx, playerID)
		}
		return nil, fmt.Errorf("create empire: %w", err)
	}

	homeworld, err := s.claimHomeworld(ctx, empire)
	if err != nil {
		return nil, err
	}

	fleet := &model.Fleet{
		EmpireID:    empire.ID,
		Name:        "Home Fleet",
		Sector:      homeworld.Sector,
		Composition: startingFleet.Clone(),
	}
	if _, err := s.fleets.CreateWithCost(ctx, fleet, economy.Resources{}); err != nil {
		return nil, fmt.Errorf("create starting fleet: %w", err)
	}

	log.Info().
		Str("empireId", empire.ID).
		Str("playerId", playerID).
		Str("homeworld", homeworld.ID).
		Str("sector", homeworld.Sector).
		Msg("Empire bootstrapped")
	return empire, nil
}

// claimHomeworld takes a free seeded home-region planet, falling back to
// generating a balanced planet on the first empty ring sector.
func (s *EmpireService) claimHomeworld(ctx context.Context, empire *model.Empire) (*model.Planet, error) {
	sectors := make([]string, 0, len(galaxy.HomeRegion()))
	for _, c := range galaxy.HomeRegion() {
		sectors = append(sectors, c.String())
	}
	planet, err := s.planets.ClaimStartingPlanet(ctx, empire.ID, sectors)
	if err != nil {
		return nil, fmt.Errorf("claim home-region planet: %w", err)
	}
	if planet != nil {
		return planet, nil
	}

	// Home region exhausted; walk the spiral outward. Another bootstrap can
	// snatch a freshly generated planet before we claim it, so keep walking.
	prime := fmt.Sprintf("%s Prime", strings.TrimSuffix(empire.Name, " Empire"))
	for i := freshSectorOffset; i < freshSectorOffset+freshSectorLimit; i++ {
		sector := galaxy.SpiralSector(i).String()
		_, _, err := s.planets.CreateSectorPlanets(ctx, empire.ID, sector, economy.Resources{}, []model.Planet{
			{Name: prime, Type: economy.PlanetBalanced},
		})
		if err != nil {
			return nil, fmt.Errorf("seed ring sector %s: %w", sector, err)
		}
		planet, err := s.planets.ClaimStartingPlanet(ctx, empire.ID, []string{sector})
		if err != nil {
			return nil, fmt.Errorf("claim ring planet: %w", err)
		}
		if planet != nil {
			return planet, nil
		}
	}
	return nil, gameerr.Internalf("no free homeworld sector found")
}

// EmpireOverview is the full empire snapshot the API returns.
type EmpireOverview struct {
	Empire  *model.Empire   `json:"empire"`
	Economy *economy.Report `json:"economy"`
	Planets int             `json:"planets"`
	Fleets  int             `json:"fleets"`
}

// Overview assembles the empire snapshot plus its current economy report.
func (s *EmpireService) Overview(ctx context.Context, playerID string) (*EmpireOverview, error) {
	empire, err := s.EnsureEmpire(ctx, playerID)
	if err != nil {
		return nil, err
	}
	report, err := s.resources.Report(ctx, empire.ID)
	if err != nil {
		return nil, err
	}
	planets, err := s.planets.CountByEmpire(ctx, empire.ID)
	if err != nil {
		return nil, fmt.Errorf("count planets: %w", err)
	}
	fleets, err := s.fleets.CountByEmpire(ctx, empire.ID)
	if err != nil {
		return nil, fmt.Errorf("count fleets: %w", err)
	}
	return &EmpireOverview{Empire: empire, Economy: report, Planets: planets, Fleets: fleets}, nil
}

// Rename changes the empire's display name.
func (s *EmpireService) Rename(ctx context.Context, empireID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 64 {
		return gameerr.Validationf("empire name must be 1-64 characters")
	}
	if err := s.empires.Rename(ctx, empireID, name); err != nil {
		return fmt.Errorf("rename empire: %w", err)
	}
	return nil
}
