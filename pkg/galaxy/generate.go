package galaxy

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// ExplorationType names a survey mission tier. Deeper missions cost more and
// reveal more planets.
type ExplorationType string

const (
	ExplorationScout    ExplorationType = "scout"
	ExplorationSurvey   ExplorationType = "survey"
	ExplorationDeepScan ExplorationType = "deep_scan"
)

type explorationSpec struct {
	Cost       economy.Resources
	MinPlanets int
	MaxPlanets int
}

var explorationSpecs = map[ExplorationType]explorationSpec{
	ExplorationScout:    {Cost: economy.Resources{Metal: 100, Energy: 50}, MinPlanets: 1, MaxPlanets: 3},
	ExplorationSurvey:   {Cost: economy.Resources{Metal: 250, Energy: 150, Food: 50}, MinPlanets: 2, MaxPlanets: 5},
	ExplorationDeepScan: {Cost: economy.Resources{Metal: 500, Energy: 300, Food: 100}, MinPlanets: 3, MaxPlanets: 7},
}

// ValidExplorationType reports whether t names a known mission tier.
func ValidExplorationType(t ExplorationType) bool {
	_, ok := explorationSpecs[t]
	return ok
}

// ExplorationCost returns the mission price for tier t.
func ExplorationCost(t ExplorationType) economy.Resources {
	return explorationSpecs[t].Cost
}

// typeWeights is the planet-type distribution out of 100.
var typeWeights = []struct {
	t economy.PlanetType
	w int
}{
	{economy.PlanetBalanced, 25},
	{economy.PlanetMining, 20},
	{economy.PlanetEnergy, 15},
	{economy.PlanetAgricultural, 15},
	{economy.PlanetIndustrial, 10},
	{economy.PlanetResearch, 10},
	{economy.PlanetFortress, 5},
}

const totalTypeWeight = 100

func rollType(rng *rand.Rand) economy.PlanetType {
	roll := rng.Intn(totalTypeWeight)
	for _, tw := range typeWeights {
		if roll < tw.w {
			return tw.t
		}
		roll -= tw.w
	}
	return economy.PlanetBalanced
}

// namePrefixes seeds procedural planet names.
var namePrefixes = []string{
	"Kepler", "Gliese", "Vega", "Altair", "Rigel", "Deneb",
	"Castor", "Pollux", "Arcturus", "Antares", "Sirius", "Procyon",
	"Capella", "Lyra", "Cygnus", "Thule",
}

func planetName(rng *rand.Rand, ordinal int) string {
	prefix := namePrefixes[rng.Intn(len(namePrefixes))]
	return fmt.Sprintf("%s-%d%c", prefix, 100+rng.Intn(900), 'a'+byte(ordinal%26))
}

// Planet is one generated, unclaimed world.
type Planet struct {
	Name string             `json:"name"`
	Type economy.PlanetType `json:"planet_type"`
}

// Generate rolls the planets revealed by one exploration mission. The count
// is uniform within the tier's range; types follow the weighted distribution.
func Generate(tier ExplorationType, rng *rand.Rand) ([]Planet, error) {
	spec, ok := explorationSpecs[tier]
	if !ok {
		return nil, fmt.Errorf("unknown exploration type %q", tier)
	}
	n := spec.MinPlanets + rng.Intn(spec.MaxPlanets-spec.MinPlanets+1)
	out := make([]Planet, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Planet{
			Name: planetName(rng, i),
			Type: rollType(rng),
		})
	}
	return out, nil
}

// NewRng returns a non-deterministic source for live exploration.
func NewRng() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// SeedRng returns a deterministic source for reproducible generation.
func SeedRng(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// SectorRng derives a per-sector deterministic source from a base seed so a
// seeded region regenerates planet-for-planet regardless of visit order.
func SectorRng(base int64, sector Coordinate) *rand.Rand {
	h := base
	h = h*31 + int64(sector.X)
	h = h*31 + int64(sector.Y)
	return rand.New(rand.NewSource(h))
}
