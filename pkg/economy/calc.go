package economy

import (
	"math"

	"github.com/freeholdgames/stellar-dominion/pkg/combat"
)

// OverflowConversionRate is the fraction of over-cap production converted
// into research.
const OverflowConversionRate = 0.10

// MinStorageCap is the floor for every storage cap.
const MinStorageCap = 1000

// PlanetSnapshot is the production-relevant view of one planet.
type PlanetSnapshot struct {
	Type      PlanetType
	Buildings map[BuildingType]int
}

// FleetSnapshot is the upkeep-relevant view of one fleet.
type FleetSnapshot struct {
	Composition combat.Composition
}

// Report aggregates one empire's per-turn economics.
type Report struct {
	Production  Resources `json:"production"`
	Consumption Resources `json:"consumption"`
	Net         Resources `json:"net"`
	Caps        Resources `json:"storage_caps"`
	Sustainable bool      `json:"sustainable"`
}

// Production sums planetary output. Each building multiplies its resource by
// factor^count; the per-planet result floors after multiplication.
func Production(planets []PlanetSnapshot) Resources {
	var total Resources
	for _, p := range planets {
		base := baseProduction[p.Type]
		mult := [4]float64{1, 1, 1, 1}
		for bt, count := range p.Buildings {
			if count <= 0 {
				continue
			}
			st, ok := buildingStats[bt]
			if !ok {
				continue
			}
			mult[st.Boosts] *= math.Pow(st.Factor, float64(count))
		}
		total.Metal += int(float64(base.Metal) * mult[BoostMetal])
		total.Energy += int(float64(base.Energy) * mult[BoostEnergy])
		total.Food += int(float64(base.Food) * mult[BoostFood])
		total.Research += int(float64(base.Research) * mult[BoostResearch])
	}
	return total
}

// Consumption sums building maintenance and fleet upkeep.
func Consumption(planets []PlanetSnapshot, fleets []FleetSnapshot) Resources {
	var total Resources
	for _, p := range planets {
		for bt, count := range p.Buildings {
			if count <= 0 {
				continue
			}
			total = total.Add(buildingStats[bt].Maintenance.Mul(count))
		}
	}
	for _, f := range fleets {
		for st, count := range f.Composition {
			if count <= 0 {
				continue
			}
			total = total.Add(shipUpkeep[st].Mul(count))
		}
	}
	return total
}

// StorageCaps derives per-resource caps from production: max(1000, 10x).
func StorageCaps(production Resources) Resources {
	capFor := func(p int) int {
		c := 10 * p
		if c < MinStorageCap {
			return MinStorageCap
		}
		return c
	}
	return Resources{
		Metal:    capFor(production.Metal),
		Energy:   capFor(production.Energy),
		Food:     capFor(production.Food),
		Research: capFor(production.Research),
	}
}

// Calculate produces the full economic report for an empire snapshot.
func Calculate(planets []PlanetSnapshot, fleets []FleetSnapshot) Report {
	prod := Production(planets)
	cons := Consumption(planets, fleets)
	net := prod.Sub(cons)
	return Report{
		Production:  prod,
		Consumption: cons,
		Net:         net,
		Caps:        StorageCaps(prod),
		Sustainable: net.NonNegative(),
	}
}

// Apply adds net to current under the storage caps. Amounts pushed above a
// cap convert to research at OverflowConversionRate; research overflow is
// discarded rather than self-converting. Negative results floor at zero.
// Returns the new vector and the research gained from conversion.
func Apply(current, net, caps Resources) (Resources, int) {
	overflow := 0
	apply := func(cur, delta, limit int) int {
		v := cur + delta
		if v < 0 {
			return 0
		}
		if v > limit {
			overflow += v - limit
			return limit
		}
		return v
	}

	var out Resources
	out.Metal = apply(current.Metal, net.Metal, caps.Metal)
	out.Energy = apply(current.Energy, net.Energy, caps.Energy)
	out.Food = apply(current.Food, net.Food, caps.Food)

	converted := int(float64(overflow) * OverflowConversionRate)

	research := current.Research + net.Research
	if research < 0 {
		research = 0
	}
	research += converted
	if research > caps.Research {
		research = caps.Research
	}
	out.Research = research

	return out, converted
}
