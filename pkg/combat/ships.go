package combat

// ShipType identifies a ship class.
type ShipType string

const (
	Scout       ShipType = "scout"
	Fighter     ShipType = "fighter"
	Corvette    ShipType = "corvette"
	Destroyer   ShipType = "destroyer"
	Cruiser     ShipType = "cruiser"
	Battleship  ShipType = "battleship"
	Dreadnought ShipType = "dreadnought"
)

// shipTypeOrder fixes iteration order for deterministic resolution.
var shipTypeOrder = [...]ShipType{Scout, Fighter, Corvette, Destroyer, Cruiser, Battleship, Dreadnought}

// ShipTypes returns all ship types in canonical order.
func ShipTypes() []ShipType {
	out := make([]ShipType, len(shipTypeOrder))
	copy(out, shipTypeOrder[:])
	return out
}

// ValidShipType reports whether t names a known ship class.
func ValidShipType(t ShipType) bool {
	_, ok := shipStats[t]
	return ok
}

// WeaponClass categorizes a ship's armament.
type WeaponClass string

// ArmorClass categorizes a ship's hull.
type ArmorClass string

const (
	ClassLight      = "light"
	ClassMedium     = "medium"
	ClassHeavy      = "heavy"
	ClassSuperHeavy = "super_heavy"
)

// ShipStats holds the combat characteristics of one ship class.
type ShipStats struct {
	Attack  int         `json:"attack"`
	Defense int         `json:"defense"`
	Health  int         `json:"health"`
	Speed   int         `json:"speed"`
	Weapon  WeaponClass `json:"weapon_class"`
	Armor   ArmorClass  `json:"armor_class"`
}

var shipStats = map[ShipType]ShipStats{
	Scout:       {Attack: 5, Defense: 2, Health: 10, Speed: 10, Weapon: ClassLight, Armor: ClassLight},
	Fighter:     {Attack: 12, Defense: 4, Health: 20, Speed: 9, Weapon: ClassLight, Armor: ClassLight},
	Corvette:    {Attack: 20, Defense: 6, Health: 40, Speed: 8, Weapon: ClassMedium, Armor: ClassLight},
	Destroyer:   {Attack: 60, Defense: 20, Health: 80, Speed: 8, Weapon: ClassMedium, Armor: ClassMedium},
	Cruiser:     {Attack: 90, Defense: 30, Health: 150, Speed: 5, Weapon: ClassHeavy, Armor: ClassMedium},
	Battleship:  {Attack: 140, Defense: 45, Health: 300, Speed: 3, Weapon: ClassHeavy, Armor: ClassHeavy},
	Dreadnought: {Attack: 220, Defense: 60, Health: 500, Speed: 2, Weapon: ClassSuperHeavy, Armor: ClassSuperHeavy},
}

// StatsFor returns the stats for a ship type.
func StatsFor(t ShipType) (ShipStats, bool) {
	s, ok := shipStats[t]
	return s, ok
}

// effectiveness maps weapon class x armor class to a damage multiplier.
// All entries stay within [0.4, 1.6].
var effectiveness = map[WeaponClass]map[ArmorClass]float64{
	ClassLight: {
		ClassLight: 1.2, ClassMedium: 1.0, ClassHeavy: 0.7, ClassSuperHeavy: 0.4,
	},
	ClassMedium: {
		ClassLight: 1.4, ClassMedium: 1.2, ClassHeavy: 1.0, ClassSuperHeavy: 0.7,
	},
	ClassHeavy: {
		ClassLight: 0.9, ClassMedium: 1.3, ClassHeavy: 1.2, ClassSuperHeavy: 1.0,
	},
	ClassSuperHeavy: {
		ClassLight: 0.6, ClassMedium: 1.0, ClassHeavy: 1.4, ClassSuperHeavy: 1.6,
	},
}

// Effectiveness returns the weapon-vs-armor damage multiplier.
func Effectiveness(w WeaponClass, a ArmorClass) float64 {
	return effectiveness[w][a]
}

// Composition maps ship types to counts.
type Composition map[ShipType]int

// Total returns the number of ships across all types.
func (c Composition) Total() int {
	n := 0
	for _, count := range c {
		n += count
	}
	return n
}

// TotalHealth returns the aggregate hull points of the composition.
func (c Composition) TotalHealth() int {
	h := 0
	for t, count := range c {
		h += count * shipStats[t].Health
	}
	return h
}

// IsEmpty reports whether no ships remain.
func (c Composition) IsEmpty() bool {
	return c.Total() == 0
}

// Clone returns a copy with zero-count entries dropped.
func (c Composition) Clone() Composition {
	out := make(Composition, len(c))
	for t, count := range c {
		if count > 0 {
			out[t] = count
		}
	}
	return out
}

// Power scores a composition as the sum of count x (attack + defense).
// Used for the stronger-enemy experience bonus and leaderboard ratings.
func Power(c Composition) int {
	p := 0
	for t, count := range c {
		st := shipStats[t]
		p += count * (st.Attack + st.Defense)
	}
	return p
}

// SlowestSpeed returns the speed of the slowest ship present, which bounds
// fleet travel time. Returns 0 for an empty composition.
func SlowestSpeed(c Composition) int {
	slowest := 0
	for t, count := range c {
		if count <= 0 {
			continue
		}
		s := shipStats[t].Speed
		if slowest == 0 || s < slowest {
			slowest = s
		}
	}
	return slowest
}

// aliveTypes returns the types with surviving ships in canonical order.
func (c Composition) aliveTypes() []ShipType {
	out := make([]ShipType, 0, len(c))
	for _, t := range shipTypeOrder {
		if c[t] > 0 {
			out = append(out, t)
		}
	}
	return out
}
