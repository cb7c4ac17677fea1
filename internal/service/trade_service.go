package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/gameerr"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
	"github.com/freeholdgames/stellar-dominion/pkg/diplomacy"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// TradeService establishes trade routes and settles them each turn. Route
// yield scales with the pair's trust level.
type TradeService struct {
	routes  repository.TradeRouteRepository
	diplo   repository.DiplomacyRepository
	empires repository.EmpireRepository
	now     func() time.Time
}

// NewTradeService creates a TradeService.
func NewTradeService(routes repository.TradeRouteRepository, diplo repository.DiplomacyRepository, empires repository.EmpireRepository) *TradeService {
	return &TradeService{routes: routes, diplo: diplo, empires: empires, now: time.Now}
}

// Establish opens a trade route with a partner. Requires an active trade
// agreement, a relation warm enough to trade, and the establishment cost
// from both sides.
func (s *TradeService) Establish(ctx context.Context, empireID, partnerID string, gives, receives economy.Resources) (*model.TradeRoute, error) {
	if partnerID == empireID {
		return nil, gameerr.Validationf("cannot trade with your own empire")
	}
	if !gives.NonNegative() || !receives.NonNegative() {
		return nil, gameerr.Validationf("trade flows cannot be negative")
	}
	if gives.IsZero() && receives.IsZero() {
		return nil, gameerr.Validationf("route must exchange at least one resource")
	}
	partner, err := s.empires.FindByID(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("find partner: %w", err)
	}
	if partner == nil {
		return nil, gameerr.NotFoundf("empire not found")
	}

	hasAgreement, err := s.diplo.HasActiveAgreement(ctx, empireID, partnerID, string(diplomacy.TradeAgreement))
	if err != nil {
		return nil, fmt.Errorf("check trade agreement: %w", err)
	}
	if !hasAgreement {
		return nil, gameerr.Conflictf("trade routes require an active trade agreement with this empire")
	}

	rel, err := s.diplo.EnsureRelation(ctx, empireID, partnerID)
	if err != nil {
		return nil, fmt.Errorf("ensure relation: %w", err)
	}
	if cat := diplomacy.CategoryFor(rel.TrustLevel); !diplomacy.CanTrade(cat) {
		return nil, gameerr.Conflictf("relations are too hostile to trade (trust %d)", rel.TrustLevel)
	}

	cfg, _ := diplomacy.ConfigFor(diplomacy.TradeRoute)
	now := s.now()
	route, err := s.routes.Establish(ctx,
		&model.Agreement{
			Kind:        string(diplomacy.TradeRoute),
			EmpireA:     empireID,
			EmpireB:     partnerID,
			Status:      model.AgreementActive,
			EffectiveAt: now,
			ExpiresAt:   now.Add(time.Duration(cfg.DurationDays) * 24 * time.Hour),
		},
		&model.TradeRoute{EmpireA: empireID, EmpireB: partnerID, GivesA: gives, GivesB: receives},
		diplomacy.TradeRouteEstablishCost,
	)
	if err != nil {
		if isInsufficient(err) {
			return nil, gameerr.InsufficientResourcesf("establishing a route costs %v from each side", diplomacy.TradeRouteEstablishCost)
		}
		return nil, fmt.Errorf("establish route: %w", err)
	}

	log.Info().
		Str("routeId", route.ID).
		Str("empireA", route.EmpireA).
		Str("empireB", route.EmpireB).
		Msg("Trade route established")
	return route, nil
}

// Routes returns every route the empire is party to.
func (s *TradeService) Routes(ctx context.Context, empireID string) ([]model.TradeRoute, error) {
	routes, err := s.routes.ListForEmpire(ctx, empireID)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	return routes, nil
}

// Route returns one route when the empire is party to it.
func (s *TradeService) Route(ctx context.Context, empireID, routeID string) (*model.TradeRoute, error) {
	route, err := s.routes.FindByID(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("find route: %w", err)
	}
	if route == nil || (route.EmpireA != empireID && route.EmpireB != empireID) {
		return nil, gameerr.NotFoundf("trade route not found")
	}
	return route, nil
}

// Cancel deactivates one of the empire's routes.
func (s *TradeService) Cancel(ctx context.Context, empireID, routeID string) error {
	if _, err := s.Route(ctx, empireID, routeID); err != nil {
		return err
	}
	if err := s.routes.Cancel(ctx, routeID, empireID); err != nil {
		if isConflict(err) {
			return gameerr.Conflictf("trade route is not active").Wrap(err)
		}
		return fmt.Errorf("cancel route: %w", err)
	}
	log.Info().Str("routeId", routeID).Str("empireId", empireID).Msg("Trade route cancelled")
	return nil
}

// CancelRoutesBetween deactivates every active route between the pair. Used
// when war severs trade.
func (s *TradeService) CancelRoutesBetween(ctx context.Context, a, b string) (int, error) {
	routes, err := s.routes.ListForEmpire(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("list routes: %w", err)
	}
	cancelled := 0
	for _, route := range routes {
		if route.Status != model.TradeRouteActive {
			continue
		}
		if route.EmpireA != b && route.EmpireB != b {
			continue
		}
		if err := s.routes.Cancel(ctx, route.ID, a); err != nil {
			if isConflict(err) {
				continue
			}
			return cancelled, fmt.Errorf("cancel route %s: %w", route.ID, err)
		}
		cancelled++
	}
	return cancelled, nil
}

// SettleAll applies one turn's exchange on every active route. Yield scales
// with the pair's trust; a side that cannot cover its outbound flow breaches
// and the route moves nothing that turn. Returns settled and breached
// counts.
func (s *TradeService) SettleAll(ctx context.Context, turn int) (int, int, error) {
	routes, err := s.routes.ListActive(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list active routes: %w", err)
	}

	settled, breached := 0, 0
	for _, route := range routes {
		rel, err := s.diplo.GetRelation(ctx, route.EmpireA, route.EmpireB)
		if err != nil {
			log.Error().Err(err).Str("routeId", route.ID).Msg("Failed to load relation for settlement")
			continue
		}
		trust := 0
		if rel != nil {
			trust = rel.TrustLevel
		}
		mod := diplomacy.TradeModifier(diplomacy.CategoryFor(trust))
		if mod == 0 {
			log.Warn().Str("routeId", route.ID).Int("trust", trust).Msg("Route dormant under hostile relations")
			continue
		}

		debitA := route.GivesA.Add(diplomacy.TradeRouteMaintenance)
		debitB := route.GivesB.Add(diplomacy.TradeRouteMaintenance)
		creditA := route.GivesB.Scale(mod)
		creditB := route.GivesA.Scale(mod)

		ok, err := s.routes.Settle(ctx, route.ID, turn, debitA, creditA, debitB, creditB)
		if err != nil {
			log.Error().Err(err).Str("routeId", route.ID).Msg("Trade settlement failed")
			continue
		}
		if !ok {
			breached++
			log.Warn().Str("routeId", route.ID).Int("turn", turn).Msg("Trade route breached: side cannot cover its flow")
			continue
		}
		settled++
	}

	if settled+breached > 0 {
		log.Info().Int("settled", settled).Int("breached", breached).Int("turn", turn).Msg("Trade routes settled")
	}
	return settled, breached, nil
}
