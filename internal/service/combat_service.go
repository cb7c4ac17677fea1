package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/gameerr"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
	"github.com/freeholdgames/stellar-dominion/pkg/combat"
	"github.com/freeholdgames/stellar-dominion/pkg/diplomacy"
)

// Morale shifts applied when a pending engagement ends in a retreat instead
// of a fight.
const (
	retreatMoralePenalty = 5
	retreatMoraleReward  = 10
)

// CombatService validates engagements and drives fleet combat resolution.
type CombatService struct {
	battles   repository.BattleRepository
	fleets    repository.FleetRepository
	relations repository.DiplomacyRepository

	// newRng sources the per-battle randomness. Tests pin it with a seed.
	newRng func() *rand.Rand
	now    func() time.Time
}

// NewCombatService creates a CombatService.
func NewCombatService(battles repository.BattleRepository, fleets repository.FleetRepository, relations repository.DiplomacyRepository) *CombatService {
	return &CombatService{
		battles:   battles,
		fleets:    fleets,
		relations: relations,
		newRng:    combat.NewRng,
		now:       time.Now,
	}
}

// Attack engages the defender's fleet with one of the empire's own. With
// deferred set the battle is queued for the turn pipeline instead of
// resolving immediately; both fleets are locked in combat either way.
func (s *CombatService) Attack(ctx context.Context, empireID, attackerFleetID, defenderFleetID string, surprise, deferred bool) (*model.Battle, error) {
	attacker, err := s.fleets.FindByID(ctx, attackerFleetID)
	if err != nil {
		return nil, fmt.Errorf("find attacker: %w", err)
	}
	if attacker == nil || attacker.EmpireID != empireID {
		return nil, gameerr.NotFoundf("fleet not found")
	}
	defender, err := s.fleets.FindByID(ctx, defenderFleetID)
	if err != nil {
		return nil, fmt.Errorf("find defender: %w", err)
	}
	if defender == nil {
		return nil, gameerr.NotFoundf("target fleet not found")
	}
	if defender.EmpireID == empireID {
		return nil, gameerr.Validationf("cannot attack your own fleet")
	}
	if attacker.Sector != defender.Sector {
		return nil, gameerr.Conflictf("fleets are in different sectors")
	}
	if attacker.Status != model.FleetActive {
		return nil, gameerr.Conflictf("attacking fleet is %s, not active", attacker.Status)
	}
	if defender.Status != model.FleetActive {
		return nil, gameerr.Conflictf("target fleet is %s and cannot be engaged", defender.Status)
	}

	agreements, err := s.relations.ListActiveAgreementsBetween(ctx, empireID, defender.EmpireID)
	if err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	kinds := make([]diplomacy.ProposalType, 0, len(agreements))
	for _, a := range agreements {
		kinds = append(kinds, diplomacy.ProposalType(a.Kind))
	}
	if !diplomacy.CanAttack(kinds) {
		return nil, gameerr.Conflictf("an active pact forbids attacking this empire")
	}

	if deferred {
		battle, err := s.battles.CreatePending(ctx, &model.Battle{
			AttackerEmpire:  empireID,
			DefenderEmpire:  defender.EmpireID,
			AttackerFleetID: attackerFleetID,
			DefenderFleetID: defenderFleetID,
			Sector:          attacker.Sector,
			SurpriseAttack:  surprise,
		})
		if err != nil {
			if isConflict(err) {
				return nil, gameerr.Conflictf("a fleet entered another engagement").Wrap(err)
			}
			return nil, fmt.Errorf("queue battle: %w", err)
		}
		log.Info().
			Str("battleId", battle.ID).
			Str("attackerFleet", attackerFleetID).
			Str("defenderFleet", defenderFleetID).
			Msg("Battle queued for turn resolution")
		return battle, nil
	}

	battle, err := s.battles.ExecuteCombat(ctx, attackerFleetID, defenderFleetID, s.fight(surprise))
	if err != nil {
		if isConflict(err) {
			return nil, gameerr.Conflictf("a fleet's state changed before the engagement").Wrap(err)
		}
		return nil, fmt.Errorf("execute combat: %w", err)
	}

	log.Info().
		Str("battleId", battle.ID).
		Str("sector", battle.Sector).
		Str("result", battle.Result).
		Int("rounds", battle.Rounds).
		Msg("Battle resolved")
	return battle, nil
}

// fight builds the locked-row critical section for a synchronous engagement.
// The repository re-reads both fleets under lock; state is re-checked here
// because it may have moved since the service's optimistic validation.
func (s *CombatService) fight(surprise bool) repository.CombatTx {
	return func(attacker, defender model.Fleet) (*model.Battle, *model.Fleet, *model.Fleet, error) {
		if attacker.Status != model.FleetActive || defender.Status != model.FleetActive {
			return nil, nil, nil, repository.ErrStateConflict
		}
		if attacker.Sector != defender.Sector {
			return nil, nil, nil, repository.ErrStateConflict
		}

		result, err := combat.Resolve(
			combat.FleetSnapshot{Composition: attacker.Composition, Experience: attacker.Experience, Morale: attacker.Morale},
			combat.FleetSnapshot{Composition: defender.Composition, Experience: defender.Experience, Morale: defender.Morale},
			combat.Options{SurpriseAttack: surprise},
			s.newRng(),
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("resolve battle: %w", err)
		}

		now := s.now()
		applySide(&attacker, result.Attacker, now)
		applySide(&defender, result.Defender, now)

		report, err := json.Marshal(result)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal report: %w", err)
		}
		battle := &model.Battle{
			AttackerEmpire:  attacker.EmpireID,
			DefenderEmpire:  defender.EmpireID,
			AttackerFleetID: attacker.ID,
			DefenderFleetID: defender.ID,
			Sector:          attacker.Sector,
			Status:          model.BattleResolved,
			SurpriseAttack:  surprise,
			Result:          string(result.ResultType),
			Winner:          string(result.Winner),
			Rounds:          result.Rounds,
			Report:          report,
			ResolvedAt:      &now,
		}
		return battle, &attacker, &defender, nil
	}
}

// applySide writes one side's combat outcome back onto its fleet row.
func applySide(fleet *model.Fleet, report combat.SideReport, now time.Time) {
	fleet.Composition = report.Composition
	fleet.Experience = report.Experience
	fleet.Morale = report.Morale
	fleet.LastCombat = &now
	if report.Destroyed {
		fleet.Status = model.FleetDestroyed
	} else {
		fleet.Status = model.FleetActive
	}
}

// ResolvePendingBattle fights one queued battle. Used by the turn pipeline
// and by tests; players retreat instead.
func (s *CombatService) ResolvePendingBattle(ctx context.Context, battleID string) (*model.Battle, error) {
	battle, err := s.battles.ResolvePending(ctx, battleID, func(b model.Battle, attacker, defender model.Fleet) (*model.Battle, *model.Fleet, *model.Fleet, error) {
		result, err := combat.Resolve(
			combat.FleetSnapshot{Composition: attacker.Composition, Experience: attacker.Experience, Morale: attacker.Morale},
			combat.FleetSnapshot{Composition: defender.Composition, Experience: defender.Experience, Morale: defender.Morale},
			combat.Options{SurpriseAttack: b.SurpriseAttack},
			s.newRng(),
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("resolve battle: %w", err)
		}

		now := s.now()
		applySide(&attacker, result.Attacker, now)
		applySide(&defender, result.Defender, now)

		report, err := json.Marshal(result)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal report: %w", err)
		}
		b.Status = model.BattleResolved
		b.Result = string(result.ResultType)
		b.Winner = string(result.Winner)
		b.Rounds = result.Rounds
		b.Report = report
		b.ResolvedAt = &now
		return &b, &attacker, &defender, nil
	})
	if err != nil {
		if isConflict(err) {
			return nil, gameerr.Conflictf("battle is no longer pending").Wrap(err)
		}
		return nil, fmt.Errorf("resolve pending: %w", err)
	}
	return battle, nil
}

// Retreat withdraws the caller's side from a pending battle. No shots are
// fired: the retreating fleet loses morale, the opponent gains it, and both
// return to active duty.
func (s *CombatService) Retreat(ctx context.Context, empireID, battleID string) (*model.Battle, error) {
	existing, err := s.battles.FindByID(ctx, battleID)
	if err != nil {
		return nil, fmt.Errorf("find battle: %w", err)
	}
	if existing == nil || (existing.AttackerEmpire != empireID && existing.DefenderEmpire != empireID) {
		return nil, gameerr.NotFoundf("battle not found")
	}
	if existing.Status != model.BattlePending {
		return nil, gameerr.Conflictf("battle is already resolved")
	}

	battle, err := s.battles.ResolvePending(ctx, battleID, func(b model.Battle, attacker, defender model.Fleet) (*model.Battle, *model.Fleet, *model.Fleet, error) {
		now := s.now()
		attackerRetreats := b.AttackerEmpire == empireID
		if attackerRetreats {
			b.Result = string(combat.AttackerRetreat)
			b.Winner = string(combat.WinnerDefender)
			attacker.Morale = clampMorale(attacker.Morale - retreatMoralePenalty)
			defender.Morale = clampMorale(defender.Morale + retreatMoraleReward)
		} else {
			b.Result = string(combat.DefenderRetreat)
			b.Winner = string(combat.WinnerAttacker)
			defender.Morale = clampMorale(defender.Morale - retreatMoralePenalty)
			attacker.Morale = clampMorale(attacker.Morale + retreatMoraleReward)
		}
		attacker.Status = model.FleetActive
		defender.Status = model.FleetActive
		attacker.LastCombat = &now
		defender.LastCombat = &now

		b.Status = model.BattleResolved
		b.Rounds = 0
		b.ResolvedAt = &now
		return &b, &attacker, &defender, nil
	})
	if err != nil {
		if isConflict(err) {
			return nil, gameerr.Conflictf("battle is no longer pending").Wrap(err)
		}
		return nil, fmt.Errorf("retreat: %w", err)
	}

	log.Info().
		Str("battleId", battleID).
		Str("empireId", empireID).
		Str("result", battle.Result).
		Msg("Fleet retreated from engagement")
	return battle, nil
}

// Battle returns one battle when the empire fought in it.
func (s *CombatService) Battle(ctx context.Context, empireID, battleID string) (*model.Battle, error) {
	battle, err := s.battles.FindByID(ctx, battleID)
	if err != nil {
		return nil, fmt.Errorf("find battle: %w", err)
	}
	if battle == nil || (battle.AttackerEmpire != empireID && battle.DefenderEmpire != empireID) {
		return nil, gameerr.NotFoundf("battle not found")
	}
	return battle, nil
}

// Battles returns the empire's battle history, pending engagements included.
func (s *CombatService) Battles(ctx context.Context, empireID string) ([]model.Battle, error) {
	battles, err := s.battles.ListByEmpire(ctx, empireID)
	if err != nil {
		return nil, fmt.Errorf("list battles: %w", err)
	}
	return battles, nil
}

// ResolveAllPending fights every queued battle. Run by the turn pipeline;
// failures are logged per battle so one bad row cannot stall the turn.
func (s *CombatService) ResolveAllPending(ctx context.Context) (int, error) {
	pending, err := s.battles.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending battles: %w", err)
	}
	resolved := 0
	for _, b := range pending {
		if _, err := s.ResolvePendingBattle(ctx, b.ID); err != nil {
			log.Error().Err(err).Str("battleId", b.ID).Msg("Failed to resolve pending battle")
			continue
		}
		resolved++
	}
	if resolved > 0 {
		log.Info().Int("count", resolved).Msg("Pending battles resolved")
	}
	return resolved, nil
}

func clampMorale(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
