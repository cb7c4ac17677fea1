// Package combat resolves fleet engagements. Resolution is deterministic for
// a given RNG: the caller injects a *rand.Rand, so replays and tests pin the
// seed while production draws from a fresh source per battle.
package combat

import (
	"errors"
	"math"
	"math/rand"
)

const (
	// MaxRounds caps engagement length; battles still undecided end in a draw.
	MaxRounds = 10

	// retreatThreshold is the aggregate remaining-health fraction at or below
	// which a side withdraws.
	retreatThreshold = 0.30
)

var (
	ErrEmptyFleet  = errors.New("fleet has no ships")
	ErrUnknownShip = errors.New("unknown ship type in composition")
)

// Winner names the side an engagement resolved in favor of.
type Winner string

const (
	WinnerAttacker Winner = "attacker"
	WinnerDefender Winner = "defender"
	WinnerNone     Winner = ""
)

// ResultType classifies how an engagement ended.
type ResultType string

const (
	DecisiveVictory   ResultType = "decisive_victory"
	DefensiveVictory  ResultType = "defensive_victory"
	AttackerRetreat   ResultType = "attacker_retreat"
	DefenderRetreat   ResultType = "defender_retreat"
	MutualDestruction ResultType = "mutual_destruction"
	Draw              ResultType = "draw"
)

// FleetSnapshot is the combat-relevant view of a fleet.
type FleetSnapshot struct {
	Composition Composition `json:"composition"`
	Experience  int         `json:"experience"`
	Morale      int         `json:"morale"`
}

// Options tune a single engagement.
type Options struct {
	// SurpriseAttack boosts the attacker's first-round damage by 1.5x.
	SurpriseAttack bool `json:"surprise_attack"`
	// TerrainModifier multiplies the defender's damage output. Zero means 1.0.
	TerrainModifier float64 `json:"terrain_modifier"`
}

// RoundEvent records one salvo.
type RoundEvent struct {
	Round      int      `json:"round"`
	Side       Winner   `json:"side"`
	Firer      ShipType `json:"firer"`
	Target     ShipType `json:"target"`
	Damage     int      `json:"damage"`
	Salvo      int      `json:"salvo"`
	Casualties int      `json:"casualties"`
}

// SideReport summarizes one side's outcome.
type SideReport struct {
	Composition    Composition `json:"composition"`
	Casualties     Composition `json:"casualties"`
	ExperienceGain int         `json:"experience_gain"`
	Experience     int         `json:"experience"`
	MoraleDelta    int         `json:"morale_delta"`
	Morale         int         `json:"morale"`
	Destroyed      bool        `json:"destroyed"`
	Retreated      bool        `json:"retreated"`
}

// Result is the full engagement outcome.
type Result struct {
	Winner     Winner       `json:"winner,omitempty"`
	ResultType ResultType   `json:"result_type"`
	Rounds     int          `json:"rounds_fought"`
	Events     []RoundEvent `json:"events"`
	Attacker   SideReport   `json:"attacker"`
	Defender   SideReport   `json:"defender"`
}

type sideState struct {
	comp          Composition
	initial       Composition
	experience    int
	morale        int
	initialHealth int
}

func newSideState(s FleetSnapshot) *sideState {
	comp := s.Composition.Clone()
	return &sideState{
		comp:          comp,
		initial:       s.Composition.Clone(),
		experience:    s.Experience,
		morale:        s.Morale,
		initialHealth: comp.TotalHealth(),
	}
}

func (s *sideState) healthFraction() float64 {
	if s.initialHealth == 0 {
		return 0
	}
	return float64(s.comp.TotalHealth()) / float64(s.initialHealth)
}

func (s *sideState) weightedSpeed() float64 {
	total := s.comp.Total()
	if total == 0 {
		return 0
	}
	sum := 0
	for t, count := range s.comp {
		sum += count * shipStats[t].Speed
	}
	return float64(sum) / float64(total)
}

func (s *sideState) casualties() Composition {
	out := make(Composition)
	for t, count := range s.initial {
		if lost := count - s.comp[t]; lost > 0 {
			out[t] = lost
		}
	}
	return out
}

// Resolve fights attacker against defender and returns the outcome. Neither
// snapshot is mutated. The RNG drives target selection and the +-20% damage
// variance; a fixed seed reproduces the engagement exactly.
func Resolve(attacker, defender FleetSnapshot, opts Options, rng *rand.Rand) (*Result, error) {
	if attacker.Composition.IsEmpty() || defender.Composition.IsEmpty() {
		return nil, ErrEmptyFleet
	}
	for t := range attacker.Composition {
		if !ValidShipType(t) {
			return nil, ErrUnknownShip
		}
	}
	for t := range defender.Composition {
		if !ValidShipType(t) {
			return nil, ErrUnknownShip
		}
	}

	terrain := opts.TerrainModifier
	if terrain == 0 {
		terrain = 1.0
	}

	att := newSideState(attacker)
	def := newSideState(defender)

	res := &Result{ResultType: Draw, Winner: WinnerNone}

	for round := 1; round <= MaxRounds; round++ {
		res.Rounds = round

		// Initiative: count-weighted average speed over survivors, attacker
		// wins ties.
		order := [2]bool{true, false}
		if att.weightedSpeed() < def.weightedSpeed() {
			order = [2]bool{false, true}
		}

		for _, attackerFiring := range order {
			firer, target := att, def
			if !attackerFiring {
				firer, target = def, att
			}
			if firer.comp.IsEmpty() || target.comp.IsEmpty() {
				continue
			}
			fireSalvos(res, firer, target, attackerFiring, round, opts.SurpriseAttack, terrain, rng)
		}

		attEmpty, defEmpty := att.comp.IsEmpty(), def.comp.IsEmpty()
		switch {
		case defEmpty && !attEmpty:
			res.Winner, res.ResultType = WinnerAttacker, DecisiveVictory
		case attEmpty && !defEmpty:
			res.Winner, res.ResultType = WinnerDefender, DefensiveVictory
		case attEmpty && defEmpty:
			res.Winner, res.ResultType = WinnerNone, MutualDestruction
		case att.healthFraction() <= retreatThreshold:
			res.Winner, res.ResultType = WinnerDefender, AttackerRetreat
		case def.healthFraction() <= retreatThreshold:
			res.Winner, res.ResultType = WinnerAttacker, DefenderRetreat
		default:
			continue
		}
		break
	}

	finishReports(res, att, def, attacker, defender)
	return res, nil
}

// fireSalvos has every surviving type on the firing side shoot once.
func fireSalvos(res *Result, firer, target *sideState, attackerFiring bool, round int, surprise bool, terrain float64, rng *rand.Rand) {
	side := WinnerDefender
	if attackerFiring {
		side = WinnerAttacker
	}
	for _, t := range shipTypeOrder {
		count := firer.comp[t]
		if count == 0 {
			continue
		}
		alive := target.comp.aliveTypes()
		if len(alive) == 0 {
			return
		}
		tgt := alive[rng.Intn(len(alive))]

		st := shipStats[t]
		tst := shipStats[tgt]

		raw := float64(st.Attack) * effectiveness[st.Weapon][tst.Armor]
		raw *= 1 - float64(tst.Defense)/float64(tst.Defense+10)
		raw *= 1 + float64(firer.experience)*0.10
		raw *= 1 + (float64(firer.morale)-50)/50*0.20
		if attackerFiring && round == 1 && surprise {
			raw *= 1.5
		}
		if !attackerFiring {
			raw /= 1.2
			raw *= terrain
		}

		u := 0.8 + rng.Float64()*0.4
		dmg := int(math.Round(raw * u))
		if dmg < 1 {
			dmg = 1
		}
		salvo := dmg * count

		cas := salvo / tst.Health
		if cas > target.comp[tgt] {
			cas = target.comp[tgt]
		}
		target.comp[tgt] -= cas

		res.Events = append(res.Events, RoundEvent{
			Round:      round,
			Side:       side,
			Firer:      t,
			Target:     tgt,
			Damage:     dmg,
			Salvo:      salvo,
			Casualties: cas,
		})
	}
}

func finishReports(res *Result, att, def *sideState, attacker, defender FleetSnapshot) {
	attPower := Power(attacker.Composition)
	defPower := Power(defender.Composition)

	attReport := buildReport(att, res.Winner == WinnerAttacker, res.ResultType == AttackerRetreat, defPower > attPower, res.ResultType)
	defReport := buildReport(def, res.Winner == WinnerDefender, res.ResultType == DefenderRetreat, attPower > defPower, res.ResultType)

	res.Attacker = attReport
	res.Defender = defReport
}

func buildReport(s *sideState, won, retreated, enemyStronger bool, rt ResultType) SideReport {
	destroyed := s.comp.IsEmpty()

	gain := experienceGain(won, enemyStronger, s.experience)

	delta := 0
	switch {
	case won:
		delta = 10
	case retreated:
		delta = -5
	case destroyed:
		delta = -15
	}

	morale := clampMorale(s.morale + delta)

	return SideReport{
		Composition:    s.comp.Clone(),
		Casualties:     s.casualties(),
		ExperienceGain: gain,
		Experience:     s.experience + gain,
		MoraleDelta:    delta,
		Morale:         morale,
		Destroyed:      destroyed,
		Retreated:      retreated,
	}
}

// experienceGain awards base 1, +1 to the victor, +1 when the enemy was
// stronger, scaled down as the fleet's current experience grows.
func experienceGain(won, enemyStronger bool, current int) int {
	raw := 1.0
	if won {
		raw++
	}
	if enemyStronger {
		raw++
	}
	mult := 1 - 0.1*float64(current)
	if mult < 0.1 {
		mult = 0.1
	}
	return int(math.Round(raw * mult))
}

func clampMorale(m int) int {
	if m < 0 {
		return 0
	}
	if m > 100 {
		return 100
	}
	return m
}
