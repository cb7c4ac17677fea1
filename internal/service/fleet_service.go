package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/gameerr"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
	"github.com/freeholdgames/stellar-dominion/pkg/combat"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
	"github.com/freeholdgames/stellar-dominion/pkg/galaxy"
)

// ScrapRefundRate is the fraction of build cost returned when ships are
// removed from a fleet.
const ScrapRefundRate = 0.5

// FleetService manages fleet creation, refits, and movement.
type FleetService struct {
	fleets  repository.FleetRepository
	planets repository.PlanetRepository
	now     func() time.Time
}

// NewFleetService creates a FleetService.
func NewFleetService(fleets repository.FleetRepository, planets repository.PlanetRepository) *FleetService {
	return &FleetService{fleets: fleets, planets: planets, now: time.Now}
}

// Create builds a new fleet at one of the empire's active colonies, charging
// the full build cost of the initial composition.
func (s *FleetService) Create(ctx context.Context, empireID, name, planetID string, comp combat.Composition) (*model.Fleet, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 64 {
		return nil, gameerr.Validationf("fleet name must be 1-64 characters")
	}
	if err := validComposition(comp); err != nil {
		return nil, err
	}
	if comp.IsEmpty() {
		return nil, gameerr.Validationf("fleet needs at least one ship")
	}

	planet, err := s.planets.FindByID(ctx, planetID)
	if err != nil {
		return nil, fmt.Errorf("find planet: %w", err)
	}
	if planet == nil || planet.EmpireID != empireID {
		return nil, gameerr.NotFoundf("planet not found")
	}
	if planet.Status != model.PlanetActive {
		return nil, gameerr.Conflictf("fleets can only be built at established colonies")
	}

	cost := economy.CompositionCost(comp)
	fleet, err := s.fleets.CreateWithCost(ctx, &model.Fleet{
		EmpireID:    empireID,
		Name:        name,
		Sector:      planet.Sector,
		Composition: comp.Clone(),
	}, cost)
	if err != nil {
		if isInsufficient(err) {
			return nil, gameerr.InsufficientResourcesf("fleet costs %v", cost)
		}
		return nil, fmt.Errorf("create fleet: %w", err)
	}

	log.Info().
		Str("empireId", empireID).
		Str("fleetId", fleet.ID).
		Str("sector", fleet.Sector).
		Int("ships", comp.Total()).
		Msg("Fleet created")
	return fleet, nil
}

// Get returns one of the empire's fleets. Foreign fleets surface as
// not-found.
func (s *FleetService) Get(ctx context.Context, empireID, fleetID string) (*model.Fleet, error) {
	fleet, err := s.fleets.FindByID(ctx, fleetID)
	if err != nil {
		return nil, fmt.Errorf("find fleet: %w", err)
	}
	if fleet == nil || fleet.EmpireID != empireID {
		return nil, gameerr.NotFoundf("fleet not found")
	}
	return fleet, nil
}

// List returns the empire's fleets.
func (s *FleetService) List(ctx context.Context, empireID string) ([]model.Fleet, error) {
	fleets, err := s.fleets.ListByEmpire(ctx, empireID)
	if err != nil {
		return nil, fmt.Errorf("list fleets: %w", err)
	}
	return fleets, nil
}

// RefitCost returns the signed net resource change of refitting current to
// next: additions at full build cost, removals refunded at ScrapRefundRate.
// Negative components mean the empire comes out ahead.
func RefitCost(current, next combat.Composition) economy.Resources {
	var cost, refund economy.Resources
	seen := map[combat.ShipType]bool{}
	for t, n := range next {
		seen[t] = true
		if delta := n - current[t]; delta > 0 {
			cost = cost.Add(economy.ShipCost(t).Mul(delta))
		} else if delta < 0 {
			refund = refund.Add(economy.ShipCost(t).Mul(-delta).Scale(ScrapRefundRate))
		}
	}
	for t, n := range current {
		if !seen[t] && n > 0 {
			refund = refund.Add(economy.ShipCost(t).Mul(n).Scale(ScrapRefundRate))
		}
	}
	return cost.Sub(refund)
}

// UpdateComposition refits an active fleet to the given composition and
// settles the net cost. Returns the updated fleet and the applied net.
func (s *FleetService) UpdateComposition(ctx context.Context, empireID, fleetID string, next combat.Composition) (*model.Fleet, economy.Resources, error) {
	if err := validComposition(next); err != nil {
		return nil, economy.Resources{}, err
	}
	if next.IsEmpty() {
		return nil, economy.Resources{}, gameerr.Validationf("refit cannot empty the fleet; abandon it instead")
	}

	fleet, err := s.Get(ctx, empireID, fleetID)
	if err != nil {
		return nil, economy.Resources{}, err
	}
	if fleet.Status != model.FleetActive {
		return nil, economy.Resources{}, gameerr.Conflictf("fleet is %s, not active", fleet.Status)
	}

	net := RefitCost(fleet.Composition, next)
	if err := s.fleets.PurchaseComposition(ctx, fleetID, empireID, net, next.Clone()); err != nil {
		switch {
		case isInsufficient(err):
			return nil, economy.Resources{}, gameerr.InsufficientResourcesf("refit costs %v", net)
		case isConflict(err):
			return nil, economy.Resources{}, gameerr.Conflictf("fleet state changed during refit").Wrap(err)
		default:
			return nil, economy.Resources{}, fmt.Errorf("refit fleet: %w", err)
		}
	}

	updated, err := s.fleets.FindByID(ctx, fleetID)
	if err != nil {
		return nil, economy.Resources{}, fmt.Errorf("reload fleet: %w", err)
	}
	log.Info().
		Str("empireId", empireID).
		Str("fleetId", fleetID).
		Int("ships", next.Total()).
		Int("netMetal", net.Metal).
		Int("netEnergy", net.Energy).
		Msg("Fleet refitted")
	return updated, net, nil
}

// Move sends an active fleet toward another sector at the speed of its
// slowest ship. Returns the fleet and its arrival time.
func (s *FleetService) Move(ctx context.Context, empireID, fleetID, destination string) (*model.Fleet, time.Time, error) {
	dest, err := galaxy.ParseCoordinate(destination)
	if err != nil {
		return nil, time.Time{}, gameerr.Validationf("invalid destination sector %q", destination)
	}

	fleet, err := s.Get(ctx, empireID, fleetID)
	if err != nil {
		return nil, time.Time{}, err
	}
	if fleet.Status != model.FleetActive {
		return nil, time.Time{}, gameerr.Conflictf("fleet is %s, not active", fleet.Status)
	}

	origin, err := galaxy.ParseCoordinate(fleet.Sector)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("fleet sector %q: %w", fleet.Sector, err)
	}
	if origin == dest {
		return nil, time.Time{}, gameerr.Validationf("fleet is already in sector %s", dest)
	}

	speed := combat.SlowestSpeed(fleet.Composition)
	if speed <= 0 {
		return nil, time.Time{}, gameerr.Validationf("fleet has no ships able to move")
	}
	hours := galaxy.TravelHours(origin.Distance(dest), speed)
	arrival := s.now().Add(time.Duration(hours) * time.Hour)

	if err := s.fleets.SetMovement(ctx, fleetID, dest.String(), arrival); err != nil {
		if isConflict(err) {
			return nil, time.Time{}, gameerr.Conflictf("fleet state changed").Wrap(err)
		}
		return nil, time.Time{}, fmt.Errorf("set movement: %w", err)
	}

	updated, err := s.fleets.FindByID(ctx, fleetID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reload fleet: %w", err)
	}
	log.Info().
		Str("empireId", empireID).
		Str("fleetId", fleetID).
		Str("from", origin.String()).
		Str("to", dest.String()).
		Int("hours", hours).
		Msg("Fleet underway")
	return updated, arrival, nil
}

// ArriveDue lands moving fleets past their arrival time. Run by the turn
// pipeline.
func (s *FleetService) ArriveDue(ctx context.Context) (int, error) {
	n, err := s.fleets.ArriveDueFleets(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("arrive fleets: %w", err)
	}
	if n > 0 {
		log.Info().Int("count", n).Msg("Fleets arrived")
	}
	return n, nil
}

func validComposition(c combat.Composition) error {
	for t, n := range c {
		if !combat.ValidShipType(t) {
			return gameerr.Validationf("unknown ship type %q", t)
		}
		if n < 0 {
			return gameerr.Validationf("ship count for %s cannot be negative", t)
		}
	}
	return nil
}
