package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// ResourceService applies the per-turn economy to empires. The math lives in
// pkg/economy; this layer only assembles snapshots and persists the result.
type ResourceService struct {
	empires repository.EmpireRepository
	planets repository.PlanetRepository
	fleets  repository.FleetRepository
}

// NewResourceService creates a ResourceService.
func NewResourceService(empires repository.EmpireRepository, planets repository.PlanetRepository, fleets repository.FleetRepository) *ResourceService {
	return &ResourceService{empires: empires, planets: planets, fleets: fleets}
}

// Report computes the empire's current production, consumption, net, and
// storage caps without mutating anything.
func (s *ResourceService) Report(ctx context.Context, empireID string) (*economy.Report, error) {
	planets, fleets, err := s.snapshots(ctx, empireID)
	if err != nil {
		return nil, err
	}
	report := economy.Calculate(planets, fleets)
	return &report, nil
}

// ProcessTurn applies one turn of production and upkeep to the empire,
// stamped with the turn number so re-runs are no-ops. Returns false when the
// empire was already processed for the turn.
func (s *ResourceService) ProcessTurn(ctx context.Context, empireID string, turn int) (bool, error) {
	planets, fleets, err := s.snapshots(ctx, empireID)
	if err != nil {
		return false, err
	}
	report := economy.Calculate(planets, fleets)

	var converted int
	applied, err := s.empires.ApplyTurnResources(ctx, empireID, turn, func(e model.Empire) economy.Resources {
		next, overflow := economy.Apply(e.Resources, report.Net, report.Caps)
		converted = overflow
		return next
	})
	if err != nil {
		return false, fmt.Errorf("apply turn resources: %w", err)
	}
	if !applied {
		return false, nil
	}

	log.Info().
		Str("empireId", empireID).
		Int("turn", turn).
		Int("netMetal", report.Net.Metal).
		Int("netEnergy", report.Net.Energy).
		Int("netFood", report.Net.Food).
		Int("netResearch", report.Net.Research).
		Int("overflowResearch", converted).
		Bool("sustainable", report.Sustainable).
		Msg("Turn economy applied")
	return true, nil
}

// snapshots loads the production-relevant views: active colonies produce,
// every surviving fleet costs upkeep.
func (s *ResourceService) snapshots(ctx context.Context, empireID string) ([]economy.PlanetSnapshot, []economy.FleetSnapshot, error) {
	planets, err := s.planets.ListByEmpire(ctx, empireID)
	if err != nil {
		return nil, nil, fmt.Errorf("list planets: %w", err)
	}
	ps := make([]economy.PlanetSnapshot, 0, len(planets))
	for _, p := range planets {
		if p.Status != model.PlanetActive {
			continue
		}
		ps = append(ps, economy.PlanetSnapshot{Type: p.Type, Buildings: p.Buildings})
	}

	fleets, err := s.fleets.ListByEmpire(ctx, empireID)
	if err != nil {
		return nil, nil, fmt.Errorf("list fleets: %w", err)
	}
	fs := make([]economy.FleetSnapshot, 0, len(fleets))
	for _, f := range fleets {
		fs = append(fs, economy.FleetSnapshot{Composition: f.Composition})
	}
	return ps, fs, nil
}
