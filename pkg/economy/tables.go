package economy

import "github.com/freeholdgames/stellar-dominion/pkg/combat"

// PlanetType names a planet specialization.
type PlanetType string

const (
	PlanetMining       PlanetType = "mining"
	PlanetEnergy       PlanetType = "energy"
	PlanetAgricultural PlanetType = "agricultural"
	PlanetResearch     PlanetType = "research"
	PlanetIndustrial   PlanetType = "industrial"
	PlanetFortress     PlanetType = "fortress"
	PlanetBalanced     PlanetType = "balanced"
)

// PlanetTypes returns all planet types in canonical order.
func PlanetTypes() []PlanetType {
	return []PlanetType{
		PlanetMining, PlanetEnergy, PlanetAgricultural, PlanetResearch,
		PlanetIndustrial, PlanetFortress, PlanetBalanced,
	}
}

// ValidPlanetType reports whether t names a known specialization.
func ValidPlanetType(t PlanetType) bool {
	_, ok := baseProduction[t]
	return ok
}

// baseProduction is indexed by planet type.
var baseProduction = map[PlanetType]Resources{
	PlanetMining:       {Metal: 120, Energy: 40, Food: 30, Research: 10},
	PlanetEnergy:       {Metal: 30, Energy: 120, Food: 30, Research: 20},
	PlanetAgricultural: {Metal: 20, Energy: 30, Food: 140, Research: 10},
	PlanetResearch:     {Metal: 20, Energy: 40, Food: 30, Research: 80},
	PlanetIndustrial:   {Metal: 90, Energy: 90, Food: 40, Research: 20},
	PlanetFortress:     {Metal: 40, Energy: 60, Food: 50, Research: 10},
	PlanetBalanced:     {Metal: 60, Energy: 60, Food: 60, Research: 30},
}

// BaseProduction returns the per-turn base output of a planet type.
func BaseProduction(t PlanetType) Resources {
	return baseProduction[t]
}

// BuildingType names a constructible planetary improvement.
type BuildingType string

const (
	MiningFacility  BuildingType = "mining_facility"
	SolarArray      BuildingType = "solar_array"
	HydroponicsFarm BuildingType = "hydroponics_farm"
	ResearchLab     BuildingType = "research_lab"
)

// Boost identifies which resource a building multiplies.
type Boost int

const (
	BoostMetal Boost = iota
	BoostEnergy
	BoostFood
	BoostResearch
)

// BuildingStats describes a building type's effect, price, and upkeep.
type BuildingStats struct {
	Boosts      Boost
	Factor      float64
	MaxPerCount int
	Cost        Resources
	Maintenance Resources
}

var buildingStats = map[BuildingType]BuildingStats{
	MiningFacility: {
		Boosts: BoostMetal, Factor: 1.25, MaxPerCount: 10,
		Cost:        Resources{Metal: 300, Energy: 150},
		Maintenance: Resources{Energy: 10},
	},
	SolarArray: {
		Boosts: BoostEnergy, Factor: 1.25, MaxPerCount: 10,
		Cost:        Resources{Metal: 250, Energy: 100},
		Maintenance: Resources{Metal: 5},
	},
	HydroponicsFarm: {
		Boosts: BoostFood, Factor: 1.25, MaxPerCount: 10,
		Cost:        Resources{Metal: 200, Energy: 120},
		Maintenance: Resources{Energy: 8},
	},
	ResearchLab: {
		Boosts: BoostResearch, Factor: 1.30, MaxPerCount: 8,
		Cost:        Resources{Metal: 350, Energy: 250},
		Maintenance: Resources{Energy: 15},
	},
}

// BuildingStatsFor returns the stats for a building type.
func BuildingStatsFor(t BuildingType) (BuildingStats, bool) {
	s, ok := buildingStats[t]
	return s, ok
}

// ValidBuildingType reports whether t names a known building.
func ValidBuildingType(t BuildingType) bool {
	_, ok := buildingStats[t]
	return ok
}

// BuildingCap returns the per-planet count limit for a building type.
func BuildingCap(t BuildingType) int {
	return buildingStats[t].MaxPerCount
}

// shipCost is the purchase price per hull.
var shipCost = map[combat.ShipType]Resources{
	combat.Scout:       {Metal: 50, Energy: 30},
	combat.Fighter:     {Metal: 80, Energy: 50},
	combat.Corvette:    {Metal: 150, Energy: 90},
	combat.Destroyer:   {Metal: 350, Energy: 200},
	combat.Cruiser:     {Metal: 700, Energy: 400},
	combat.Battleship:  {Metal: 1400, Energy: 800},
	combat.Dreadnought: {Metal: 2800, Energy: 1600},
}

// shipUpkeep is the per-turn maintenance per hull.
var shipUpkeep = map[combat.ShipType]Resources{
	combat.Scout:       {Metal: 1, Energy: 1, Food: 1},
	combat.Fighter:     {Metal: 2, Energy: 1, Food: 1},
	combat.Corvette:    {Metal: 3, Energy: 2, Food: 2},
	combat.Destroyer:   {Metal: 5, Energy: 3, Food: 3},
	combat.Cruiser:     {Metal: 8, Energy: 5, Food: 5},
	combat.Battleship:  {Metal: 12, Energy: 8, Food: 8},
	combat.Dreadnought: {Metal: 20, Energy: 12, Food: 12},
}

// ShipCost returns the purchase price for one hull of type t.
func ShipCost(t combat.ShipType) Resources {
	return shipCost[t]
}

// CompositionCost prices an entire composition.
func CompositionCost(c combat.Composition) Resources {
	var total Resources
	for t, count := range c {
		total = total.Add(shipCost[t].Mul(count))
	}
	return total
}

// colonizationCost is indexed by the target planet's type.
var colonizationCost = map[PlanetType]Resources{
	PlanetMining:       {Metal: 800, Energy: 400, Food: 200},
	PlanetEnergy:       {Metal: 700, Energy: 500, Food: 200},
	PlanetAgricultural: {Metal: 600, Energy: 300, Food: 400},
	PlanetResearch:     {Metal: 900, Energy: 600, Food: 200},
	PlanetIndustrial:   {Metal: 900, Energy: 500, Food: 250},
	PlanetFortress:     {Metal: 1000, Energy: 600, Food: 300},
	PlanetBalanced:     {Metal: 750, Energy: 450, Food: 250},
}

// ColonizationCost returns the cost of settling a planet of type t.
func ColonizationCost(t PlanetType) Resources {
	return colonizationCost[t]
}

// AbandonRefund returns the resources recovered when a colony is abandoned.
func AbandonRefund(t PlanetType) Resources {
	return colonizationCost[t].Scale(0.5)
}

// SpecializationCost is the flat price of changing a planet's type.
var SpecializationCost = Resources{Metal: 200, Energy: 200}
