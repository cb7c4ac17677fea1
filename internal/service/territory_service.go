package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/gameerr"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
	"github.com/freeholdgames/stellar-dominion/pkg/combat"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
	"github.com/freeholdgames/stellar-dominion/pkg/galaxy"
)

// ColonizationDuration is how long a colony ship takes to establish.
const ColonizationDuration = 24 * time.Hour

// TerritoryService runs exploration, the colonization lifecycle, and planet
// development (buildings, specialization).
type TerritoryService struct {
	planets repository.PlanetRepository
	fleets  repository.FleetRepository

	// galaxySeed keys the per-sector generation stream so repeat explorations
	// of a sector roll the same planets.
	galaxySeed int64
	now        func() time.Time
}

// NewTerritoryService creates a TerritoryService. galaxySeed fixes the
// procedural generation stream for the deployment.
func NewTerritoryService(planets repository.PlanetRepository, fleets repository.FleetRepository, galaxySeed int64) *TerritoryService {
	return &TerritoryService{planets: planets, fleets: fleets, galaxySeed: galaxySeed, now: time.Now}
}

// List returns the empire's planets.
func (s *TerritoryService) List(ctx context.Context, empireID string) ([]model.Planet, error) {
	planets, err := s.planets.ListByEmpire(ctx, empireID)
	if err != nil {
		return nil, fmt.Errorf("list planets: %w", err)
	}
	return planets, nil
}

// BySector returns every planet in a sector. Sector contents are public
// knowledge once explored.
func (s *TerritoryService) BySector(ctx context.Context, sector string) ([]model.Planet, error) {
	if _, err := galaxy.ParseCoordinate(sector); err != nil {
		return nil, gameerr.Validationf("invalid sector %q", sector)
	}
	planets, err := s.planets.ListBySector(ctx, sector)
	if err != nil {
		return nil, fmt.Errorf("list sector: %w", err)
	}
	return planets, nil
}

// Get returns one planet when the caller may see it: their own colony, or
// any uncolonized body. Foreign colonies surface as not-found.
func (s *TerritoryService) Get(ctx context.Context, empireID, planetID string) (*model.Planet, error) {
	planet, err := s.planets.FindByID(ctx, planetID)
	if err != nil {
		return nil, fmt.Errorf("find planet: %w", err)
	}
	if planet == nil || (planet.EmpireID != "" && planet.EmpireID != empireID) {
		return nil, gameerr.NotFoundf("planet not found")
	}
	return planet, nil
}

// ExplorationOutcome reports one exploration mission.
type ExplorationOutcome struct {
	Sector   string            `json:"sector"`
	Planets  []model.Planet    `json:"planets"`
	Charged  bool              `json:"charged"`
	Cost     economy.Resources `json:"cost"`
	Revisit  bool              `json:"revisit"`
	Explored string            `json:"exploration_type"`
}

// Explore sends a mission to a sector. The first mission rolls and persists
// the sector's planets and charges the empire; later missions return the
// known set for free.
func (s *TerritoryService) Explore(ctx context.Context, empireID, sector string, etype galaxy.ExplorationType) (*ExplorationOutcome, error) {
	coord, err := galaxy.ParseCoordinate(sector)
	if err != nil {
		return nil, gameerr.Validationf("invalid sector %q", sector)
	}
	if !galaxy.ValidExplorationType(etype) {
		return nil, gameerr.Validationf("unknown exploration type %q", etype)
	}

	rng := galaxy.SectorRng(s.galaxySeed, coord)
	rolled, err := galaxy.Generate(etype, rng)
	if err != nil {
		return nil, fmt.Errorf("generate planets: %w", err)
	}
	candidates := make([]model.Planet, 0, len(rolled))
	for _, p := range rolled {
		candidates = append(candidates, model.Planet{Name: p.Name, Type: p.Type})
	}

	cost := galaxy.ExplorationCost(etype)
	planets, charged, err := s.planets.CreateSectorPlanets(ctx, empireID, coord.String(), cost, candidates)
	if err != nil {
		if isInsufficient(err) {
			return nil, gameerr.InsufficientResourcesf("exploration costs %v", cost)
		}
		return nil, fmt.Errorf("persist sector: %w", err)
	}

	if charged {
		log.Info().
			Str("empireId", empireID).
			Str("sector", coord.String()).
			Str("type", string(etype)).
			Int("planets", len(planets)).
			Msg("Sector explored")
	}
	return &ExplorationOutcome{
		Sector:   coord.String(),
		Planets:  planets,
		Charged:  charged,
		Cost:     cost,
		Revisit:  !charged,
		Explored: string(etype),
	}, nil
}

// ColonizationQuote returns the unscaled cost of settling the planet. The
// balance engine applies the expansion multiplier on top.
func (s *TerritoryService) ColonizationQuote(ctx context.Context, empireID, planetID string) (economy.Resources, error) {
	planet, err := s.Get(ctx, empireID, planetID)
	if err != nil {
		return economy.Resources{}, err
	}
	return economy.ColonizationCost(planet.Type), nil
}

// canColonize reports whether the fleet can found a colony: two scouts or
// one corvette minimum.
func canColonize(c combat.Composition) bool {
	return c[combat.Scout] >= 2 || c[combat.Corvette] >= 1
}

// Colonize starts settling an available planet with the given fleet. The
// fleet is tied up until the completion sweep frees it.
func (s *TerritoryService) Colonize(ctx context.Context, empireID, planetID, fleetID string) (*model.Planet, time.Time, error) {
	planet, err := s.planets.FindByID(ctx, planetID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("find planet: %w", err)
	}
	if planet == nil {
		return nil, time.Time{}, gameerr.NotFoundf("planet not found")
	}
	if planet.Status != model.PlanetAvailable {
		return nil, time.Time{}, gameerr.Conflictf("planet is not available for colonization")
	}

	fleet, err := s.fleets.FindByID(ctx, fleetID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("find fleet: %w", err)
	}
	if fleet == nil || fleet.EmpireID != empireID {
		return nil, time.Time{}, gameerr.NotFoundf("fleet not found")
	}
	if fleet.Status != model.FleetActive {
		return nil, time.Time{}, gameerr.Conflictf("fleet is %s, not active", fleet.Status)
	}
	if fleet.Sector != planet.Sector {
		return nil, time.Time{}, gameerr.Conflictf("fleet is in sector %s, planet in %s", fleet.Sector, planet.Sector)
	}
	if !canColonize(fleet.Composition) {
		return nil, time.Time{}, gameerr.Validationf("colonization needs at least 2 scouts or 1 corvette")
	}

	colonies, err := s.planets.CountByEmpire(ctx, empireID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("count colonies: %w", err)
	}
	if colonies >= MaxColoniesPerEmpire {
		return nil, time.Time{}, gameerr.Conflictf("empire already holds %d of %d colonies", colonies, MaxColoniesPerEmpire)
	}

	cost := economy.ColonizationCost(planet.Type).Scale(ExpansionMultiplier(colonies))
	completion := s.now().Add(ColonizationDuration)
	if err := s.planets.StartColonization(ctx, planetID, empireID, fleetID, cost, completion); err != nil {
		switch {
		case isInsufficient(err):
			return nil, time.Time{}, gameerr.InsufficientResourcesf("colonization costs %v", cost)
		case isConflict(err):
			return nil, time.Time{}, gameerr.Conflictf("planet or fleet state changed").Wrap(err)
		default:
			return nil, time.Time{}, fmt.Errorf("start colonization: %w", err)
		}
	}

	updated, err := s.planets.FindByID(ctx, planetID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reload planet: %w", err)
	}

	log.Info().
		Str("empireId", empireID).
		Str("planetId", planetID).
		Str("fleetId", fleetID).
		Time("completes", completion).
		Msg("Colonization started")
	return updated, completion, nil
}

// CompleteDue establishes colonies past their completion time and frees
// their fleets. Run by the turn pipeline.
func (s *TerritoryService) CompleteDue(ctx context.Context) (int, error) {
	n, err := s.planets.CompleteDueColonizations(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("complete colonizations: %w", err)
	}
	if n > 0 {
		log.Info().Int("count", n).Msg("Colonizations completed")
	}
	return n, nil
}

// Abandon gives up a colony for half its colonization cost. Abandoning a
// planet still colonizing cancels the attempt and frees its fleet.
func (s *TerritoryService) Abandon(ctx context.Context, empireID, planetID string) (economy.Resources, error) {
	planet, err := s.planets.FindByID(ctx, planetID)
	if err != nil {
		return economy.Resources{}, fmt.Errorf("find planet: %w", err)
	}
	if planet == nil || planet.EmpireID != empireID {
		return economy.Resources{}, gameerr.NotFoundf("planet not found")
	}
	if planet.Status != model.PlanetActive && planet.Status != model.PlanetColonizing {
		return economy.Resources{}, gameerr.Conflictf("planet is not a colony")
	}

	refund := economy.AbandonRefund(planet.Type)
	if err := s.planets.Abandon(ctx, planetID, empireID, refund); err != nil {
		if isConflict(err) {
			return economy.Resources{}, gameerr.Conflictf("colony state changed").Wrap(err)
		}
		return economy.Resources{}, fmt.Errorf("abandon colony: %w", err)
	}

	log.Info().
		Str("empireId", empireID).
		Str("planetId", planetID).
		Int("refundMetal", refund.Metal).
		Int("refundEnergy", refund.Energy).
		Int("refundFood", refund.Food).
		Msg("Colony abandoned")
	return refund, nil
}

// SetSpecialization converts an active colony to a new planet type for a
// flat fee.
func (s *TerritoryService) SetSpecialization(ctx context.Context, empireID, planetID string, newType economy.PlanetType) (*model.Planet, error) {
	if !economy.ValidPlanetType(newType) {
		return nil, gameerr.Validationf("unknown planet type %q", newType)
	}

	planet, err := s.planets.FindByID(ctx, planetID)
	if err != nil {
		return nil, fmt.Errorf("find planet: %w", err)
	}
	if planet == nil || planet.EmpireID != empireID {
		return nil, gameerr.NotFoundf("planet not found")
	}
	if planet.Type == newType {
		return nil, gameerr.Conflictf("planet is already %s", newType)
	}

	if err := s.planets.SetSpecialization(ctx, planetID, empireID, newType, economy.SpecializationCost); err != nil {
		switch {
		case isInsufficient(err):
			return nil, gameerr.InsufficientResourcesf("specialization costs %v", economy.SpecializationCost)
		case isConflict(err):
			return nil, gameerr.Conflictf("planet is not an active colony").Wrap(err)
		default:
			return nil, fmt.Errorf("set specialization: %w", err)
		}
	}
	return s.planets.FindByID(ctx, planetID)
}

// AddBuildings constructs count buildings of one type on the colony, bounded
// by the per-type cap.
func (s *TerritoryService) AddBuildings(ctx context.Context, empireID, planetID string, btype economy.BuildingType, count int) (*model.Planet, error) {
	stats, ok := economy.BuildingStatsFor(btype)
	if !ok {
		return nil, gameerr.Validationf("unknown building type %q", btype)
	}
	if count < 1 {
		return nil, gameerr.Validationf("building count must be positive")
	}

	planet, err := s.planets.FindByID(ctx, planetID)
	if err != nil {
		return nil, fmt.Errorf("find planet: %w", err)
	}
	if planet == nil || planet.EmpireID != empireID {
		return nil, gameerr.NotFoundf("planet not found")
	}

	cost := stats.Cost.Mul(count)
	updated, err := s.planets.AddBuildings(ctx, planetID, empireID, btype, count, stats.MaxPerCount, cost)
	if err != nil {
		switch {
		case isInsufficient(err):
			return nil, gameerr.InsufficientResourcesf("%d %s costs %v", count, btype, cost)
		case isConflict(err):
			return nil, gameerr.Conflictf("cannot build on this planet").Wrap(err)
		default:
			return nil, fmt.Errorf("add buildings: %w", err)
		}
	}
	return updated, nil
}

// BuildingQuote prices count buildings of one type for balance validation.
func BuildingQuote(btype economy.BuildingType, count int) economy.Resources {
	stats, ok := economy.BuildingStatsFor(btype)
	if !ok || count < 1 {
		return economy.Resources{}
	}
	return stats.Cost.Mul(count)
}
