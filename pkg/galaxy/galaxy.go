// Package galaxy models the sector grid and procedural planet generation.
// Sectors are integer coordinates on an unbounded plane; generation is
// deterministic for a given RNG so seeded regions are reproducible.
package galaxy

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coordinate addresses one sector on the galactic grid.
type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ParseCoordinate parses the wire form "x,y".
func ParseCoordinate(s string) (Coordinate, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return Coordinate{}, fmt.Errorf("invalid sector coordinate %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid sector coordinate %q", s)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid sector coordinate %q", s)
	}
	return Coordinate{X: x, Y: y}, nil
}

// String renders the wire form "x,y".
func (c Coordinate) String() string {
	return strconv.Itoa(c.X) + "," + strconv.Itoa(c.Y)
}

// Distance is the Chebyshev distance: diagonal moves cost the same as
// orthogonal ones, so a fleet crosses one sector ring per step.
func (c Coordinate) Distance(o Coordinate) int {
	dx := c.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dy := c.Y - o.Y
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

// TravelHours converts a sector distance into travel time for a fleet whose
// slowest ship moves at speed. Any non-zero move takes at least one hour.
func TravelHours(distance, speed int) int {
	if distance <= 0 {
		return 0
	}
	if speed < 1 {
		speed = 1
	}
	h := int(math.Ceil(float64(distance*10) / float64(speed)))
	if h < 1 {
		h = 1
	}
	return h
}

// HomeRegion returns the 5x5 block of sectors centered on the origin in
// row-major order. New games pre-generate planets here so early players have
// colonization targets.
func HomeRegion() []Coordinate {
	out := make([]Coordinate, 0, 25)
	for y := -2; y <= 2; y++ {
		for x := -2; x <= 2; x++ {
			out = append(out, Coordinate{X: x, Y: y})
		}
	}
	return out
}

// SpiralSector maps an index onto the square spiral around the origin:
// index 0 is the origin, 1..8 the first ring, 9..24 the second, and so on.
// Used to hand out fresh homeworld sectors once the seeded region fills up.
func SpiralSector(i int) Coordinate {
	if i <= 0 {
		return Coordinate{}
	}
	r := 1
	for i > 8*r {
		i -= 8 * r
		r++
	}
	i-- // position on ring r, 0-based
	side := i / (2 * r)
	step := i % (2 * r)
	switch side {
	case 0: // top edge, west to east
		return Coordinate{X: -r + step, Y: -r}
	case 1: // east edge, north to south
		return Coordinate{X: r, Y: -r + step}
	case 2: // bottom edge, east to west
		return Coordinate{X: r - step, Y: r}
	default: // west edge, south to north
		return Coordinate{X: -r, Y: r - step}
	}
}
