package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/freeholdgames/stellar-dominion/internal/gameerr"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// Action type names. Every state-changing request must carry one of these;
// anything else is rejected before touching the ledger.
const (
	ActionRenameEmpire        = "rename_empire"
	ActionSetSpecialization   = "set_specialization"
	ActionQueueBuildings      = "queue_buildings"
	ActionCreateFleet         = "create_fleet"
	ActionMoveFleet           = "move_fleet"
	ActionUpdateComposition   = "update_composition"
	ActionInitiateCombat      = "initiate_combat"
	ActionRetreat             = "retreat"
	ActionCreateProposal      = "create_proposal"
	ActionRespondProposal     = "respond_proposal"
	ActionSendMessage         = "send_message"
	ActionExploreSector       = "explore_sector"
	ActionColonizePlanet      = "colonize_planet"
	ActionAbandonColony       = "abandon_colony"
	ActionEstablishTradeRoute = "establish_trade_route"
)

// Action classes group types for cooldown purposes.
const (
	classGeneral   = "general"
	classBuild     = "build"
	classFleet     = "fleet"
	classAttack    = "attack"
	classDiplomacy = "diplomacy"
	classExplore   = "explore"
	classColonize  = "colonize"
)

// Quantity caps and cost bounds.
const (
	MaxFleetsPerEmpire   = 50
	MaxShipsPerFleet     = 1000
	MaxShipsPerEmpire    = 10000
	MaxColoniesPerEmpire = 20
	MaxActionCost        = 1_000_000

	// EmergencyFactor doubles the point price of an action flagged emergency
	// in exchange for waiving its class cooldown.
	EmergencyFactor = 2
)

// Exploit heuristic thresholds. Sustained rates above the warn level produce
// warnings; above the hard level the action is rejected outright.
const (
	warnActionsPerMinute  = 10
	hardActionsPerMinute  = 30
	transferVolumeCeiling = 100_000
	uniformStockFloor     = 4000
)

type actionSpec struct {
	Points int
	Class  string
	// CooldownExempt actions share their class for grouping but never wait
	// out the class floor (retreat, abandon).
	CooldownExempt bool
}

var actionTable = map[string]actionSpec{
	ActionRenameEmpire:        {Points: 1, Class: classGeneral},
	ActionSetSpecialization:   {Points: 2, Class: classGeneral},
	ActionQueueBuildings:      {Points: 1, Class: classBuild},
	ActionCreateFleet:         {Points: 2, Class: classBuild},
	ActionMoveFleet:           {Points: 1, Class: classFleet},
	ActionUpdateComposition:   {Points: 1, Class: classBuild},
	ActionInitiateCombat:      {Points: 3, Class: classAttack},
	ActionRetreat:             {Points: 1, Class: classAttack, CooldownExempt: true},
	ActionCreateProposal:      {Points: 1, Class: classDiplomacy},
	ActionRespondProposal:     {Points: 1, Class: classDiplomacy},
	ActionSendMessage:         {Points: 1, Class: classDiplomacy},
	ActionExploreSector:       {Points: 2, Class: classExplore},
	ActionColonizePlanet:      {Points: 5, Class: classColonize},
	ActionAbandonColony:       {Points: 1, Class: classColonize, CooldownExempt: true},
	ActionEstablishTradeRoute: {Points: 3, Class: classDiplomacy},
}

// classCooldowns are the minimum gaps between consecutive non-exempt actions
// of a class. Classes absent here have no floor.
var classCooldowns = map[string]time.Duration{
	classAttack:    5 * time.Minute,
	classColonize:  30 * time.Minute,
	classDiplomacy: 2 * time.Minute,
}

// ActionPoints returns the base point price for an action type, or 0 for an
// unknown type.
func ActionPoints(actionType string) int {
	return actionTable[actionType].Points
}

// cooldownTypes returns the non-exempt action types of a class, sorted for
// deterministic queries.
func cooldownTypes(class string) []string {
	var out []string
	for t, s := range actionTable {
		if s.Class == class && !s.CooldownExempt {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// ExpansionMultiplier scales colonization cost for sprawling empires: +10%
// per colony beyond the fifth, capped at 2.0.
func ExpansionMultiplier(colonies int) float64 {
	extra := colonies - 5
	if extra < 0 {
		extra = 0
	}
	m := 1 + float64(extra)*0.1
	if m > 2.0 {
		return 2.0
	}
	return m
}

// Violation rule names.
const (
	ruleUnknownAction         = "unknown_action"
	ruleInvalidParameter      = "invalid_parameter"
	ruleCostBounds            = "cost_bounds"
	ruleInsufficientResources = "insufficient_resources"
	ruleFleetCap              = "fleet_cap"
	ruleShipCapFleet          = "ship_cap_fleet"
	ruleShipCapEmpire         = "ship_cap_empire"
	ruleColonyCap             = "colony_cap"
	ruleCooldownActive        = "cooldown_active"
	ruleActionRate            = "action_rate"
)

// Violation severities. High severity marks a tripped hard heuristic.
const (
	SeverityError = "error"
	SeverityHigh  = "high"
)

// Violation is one failed validation rule.
type Violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// ValidationResult is the balance engine's verdict on one action.
type ValidationResult struct {
	Valid          bool              `json:"valid"`
	Violations     []Violation       `json:"violations,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
	AdjustedCost   economy.Resources `json:"adjusted_cost"`
	RequiredPoints int               `json:"required_points"`

	available economy.Resources
}

func (r *ValidationResult) fail(rule, msg string) {
	r.Violations = append(r.Violations, Violation{Rule: rule, Severity: SeverityError, Message: msg})
}

// Err converts a failed result into the tagged error the gateway propagates.
// The first violation decides the error kind. Returns nil for a valid result.
func (r *ValidationResult) Err() error {
	if r.Valid || len(r.Violations) == 0 {
		return nil
	}
	v := r.Violations[0]
	switch v.Rule {
	case ruleInsufficientResources:
		return gameerr.InsufficientResourcesf("%s", v.Message).
			WithDetail("required", r.AdjustedCost).
			WithDetail("available", r.available)
	case ruleCooldownActive, ruleActionRate:
		return gameerr.RateLimitedf("%s", v.Message)
	case ruleColonyCap:
		return gameerr.Conflictf("%s", v.Message)
	default:
		return gameerr.Validationf("%s", v.Message).WithDetail("violations", r.Violations)
	}
}

// Action describes one state-changing request before execution.
type Action struct {
	Type      string
	Emergency bool

	// Payload is the decoded request body; when non-nil its validate tags
	// are checked.
	Payload any

	// Cost is the unscaled resource price of the action. Actions that net a
	// refund pass the clamped non-negative portion.
	Cost economy.Resources

	// Quantity carries the ship count the action puts in a fleet (total for
	// composition updates, initial for creation). Zero for other actions.
	Quantity int

	// FleetID scopes the empire-wide ship cap check for composition updates.
	FleetID string
}

// BalanceEngine validates actions against the allow-list, quantity caps,
// resource bounds, class cooldowns, and exploit heuristics. It keeps
// per-player rate state in memory; validation never mutates game state.
type BalanceEngine struct {
	fleets   repository.FleetRepository
	planets  repository.PlanetRepository
	ledger   repository.LedgerRepository
	validate *validator.Validate
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*apmLimiter
	volumes  map[string]*turnVolume
}

type apmLimiter struct {
	warn *rate.Limiter
	hard *rate.Limiter
}

type turnVolume struct {
	turn  int
	total int
}

// NewBalanceEngine creates a BalanceEngine.
func NewBalanceEngine(fleets repository.FleetRepository, planets repository.PlanetRepository, ledger repository.LedgerRepository) *BalanceEngine {
	return &BalanceEngine{
		fleets:   fleets,
		planets:  planets,
		ledger:   ledger,
		validate: validator.New(),
		now:      time.Now,
		limiters: make(map[string]*apmLimiter),
		volumes:  make(map[string]*turnVolume),
	}
}

// Validate checks one action for the empire on the given turn. A non-nil
// result always comes back unless a repository lookup fails.
func (e *BalanceEngine) Validate(ctx context.Context, empire *model.Empire, turn int, act Action) (*ValidationResult, error) {
	res := &ValidationResult{AdjustedCost: act.Cost, available: empire.Resources}

	spec, known := actionTable[act.Type]
	if !known {
		res.fail(ruleUnknownAction, fmt.Sprintf("unknown action type %q", act.Type))
		return res, nil
	}

	res.RequiredPoints = spec.Points
	if act.Emergency {
		res.RequiredPoints = spec.Points * EmergencyFactor
	}

	if act.Payload != nil {
		e.checkShape(res, act.Payload)
	}
	e.checkCostBounds(res, act.Cost)

	if act.Type == ActionColonizePlanet {
		colonies, err := e.planets.CountByEmpire(ctx, empire.ID)
		if err != nil {
			return nil, fmt.Errorf("count colonies: %w", err)
		}
		if colonies >= MaxColoniesPerEmpire {
			res.fail(ruleColonyCap, fmt.Sprintf("empire already holds %d of %d colonies", colonies, MaxColoniesPerEmpire))
		}
		res.AdjustedCost = act.Cost.Scale(ExpansionMultiplier(colonies))
	}

	if !empire.Resources.CanAfford(res.AdjustedCost) {
		res.fail(ruleInsufficientResources, fmt.Sprintf("action costs %v but empire holds %v", res.AdjustedCost, empire.Resources))
	}

	if err := e.checkQuantities(ctx, res, empire.ID, act); err != nil {
		return nil, err
	}

	if err := e.checkCooldown(ctx, res, empire.PlayerID, spec, act.Emergency); err != nil {
		return nil, err
	}

	e.applyHeuristics(res, empire, turn, res.AdjustedCost)

	res.Valid = len(res.Violations) == 0
	return res, nil
}

func (e *BalanceEngine) checkShape(res *ValidationResult, payload any) {
	err := e.validate.Struct(payload)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			res.fail(ruleInvalidParameter, fmt.Sprintf("field %s failed %s", fe.Field(), fe.Tag()))
		}
		return
	}
	res.fail(ruleInvalidParameter, err.Error())
}

func (e *BalanceEngine) checkCostBounds(res *ValidationResult, cost economy.Resources) {
	components := [...]struct {
		name  string
		value int
	}{
		{"metal", cost.Metal},
		{"energy", cost.Energy},
		{"food", cost.Food},
		{"research", cost.Research},
	}
	for _, c := range components {
		if c.value < 0 || c.value > MaxActionCost {
			res.fail(ruleCostBounds, fmt.Sprintf("%s cost %d outside [0, %d]", c.name, c.value, MaxActionCost))
		}
	}
}

func (e *BalanceEngine) checkQuantities(ctx context.Context, res *ValidationResult, empireID string, act Action) error {
	switch act.Type {
	case ActionCreateFleet:
		count, err := e.fleets.CountByEmpire(ctx, empireID)
		if err != nil {
			return fmt.Errorf("count fleets: %w", err)
		}
		if count >= MaxFleetsPerEmpire {
			res.fail(ruleFleetCap, fmt.Sprintf("empire already operates %d of %d fleets", count, MaxFleetsPerEmpire))
		}
		if act.Quantity > MaxShipsPerFleet {
			res.fail(ruleShipCapFleet, fmt.Sprintf("fleet of %d ships exceeds %d", act.Quantity, MaxShipsPerFleet))
		}
		total, err := e.empireShips(ctx, empireID)
		if err != nil {
			return err
		}
		if total+act.Quantity > MaxShipsPerEmpire {
			res.fail(ruleShipCapEmpire, fmt.Sprintf("empire ships %d + %d exceeds %d", total, act.Quantity, MaxShipsPerEmpire))
		}

	case ActionUpdateComposition:
		if act.Quantity > MaxShipsPerFleet {
			res.fail(ruleShipCapFleet, fmt.Sprintf("fleet of %d ships exceeds %d", act.Quantity, MaxShipsPerFleet))
		}
		fleets, err := e.fleets.ListByEmpire(ctx, empireID)
		if err != nil {
			return fmt.Errorf("list fleets: %w", err)
		}
		total := 0
		current := 0
		for _, f := range fleets {
			n := f.Composition.Total()
			total += n
			if f.ID == act.FleetID {
				current = n
			}
		}
		if total-current+act.Quantity > MaxShipsPerEmpire {
			res.fail(ruleShipCapEmpire, fmt.Sprintf("empire ships would reach %d, cap is %d", total-current+act.Quantity, MaxShipsPerEmpire))
		}
	}
	return nil
}

func (e *BalanceEngine) empireShips(ctx context.Context, empireID string) (int, error) {
	fleets, err := e.fleets.ListByEmpire(ctx, empireID)
	if err != nil {
		return 0, fmt.Errorf("list fleets: %w", err)
	}
	total := 0
	for _, f := range fleets {
		total += f.Composition.Total()
	}
	return total, nil
}

func (e *BalanceEngine) checkCooldown(ctx context.Context, res *ValidationResult, playerID string, spec actionSpec, emergency bool) error {
	floor := classCooldowns[spec.Class]
	if floor == 0 || spec.CooldownExempt || emergency {
		return nil
	}
	last, err := e.ledger.LastActionAt(ctx, playerID, cooldownTypes(spec.Class))
	if err != nil {
		return fmt.Errorf("last %s action: %w", spec.Class, err)
	}
	if last == nil {
		return nil
	}
	if wait := floor - e.now().Sub(*last); wait > 0 {
		res.fail(ruleCooldownActive, fmt.Sprintf("%s actions allowed every %s; retry in %s", spec.Class, floor, wait.Round(time.Second)))
	}
	return nil
}

// applyHeuristics runs the exploit checks. Only the hard action-rate ceiling
// rejects; everything else is a warning.
func (e *BalanceEngine) applyHeuristics(res *ValidationResult, empire *model.Empire, turn int, cost economy.Resources) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	lim := e.limiters[empire.PlayerID]
	if lim == nil {
		lim = &apmLimiter{
			warn: rate.NewLimiter(rate.Limit(warnActionsPerMinute)/60, warnActionsPerMinute),
			hard: rate.NewLimiter(rate.Limit(hardActionsPerMinute)/60, hardActionsPerMinute),
		}
		e.limiters[empire.PlayerID] = lim
	}
	if !lim.hard.AllowN(now, 1) {
		res.Violations = append(res.Violations, Violation{
			Rule:     ruleActionRate,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("sustained action rate above %d per minute", hardActionsPerMinute),
		})
	} else if !lim.warn.AllowN(now, 1) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("action rate above %d per minute", warnActionsPerMinute))
	}

	vol := e.volumes[empire.PlayerID]
	if vol == nil || vol.turn != turn {
		vol = &turnVolume{turn: turn}
		e.volumes[empire.PlayerID] = vol
	}
	vol.total += cost.Total()
	if vol.total > transferVolumeCeiling {
		res.Warnings = append(res.Warnings, fmt.Sprintf("resource volume %d this turn exceeds %d", vol.total, transferVolumeCeiling))
	}

	r := empire.Resources
	if r.Total() >= uniformStockFloor && r.Metal == r.Energy && r.Energy == r.Food && r.Food == r.Research {
		res.Warnings = append(res.Warnings, "resource stocks are perfectly uniform")
	}
}
