// Package economy implements the per-turn resource model: production from
// planets and buildings, consumption from maintenance, storage caps, and
// overflow conversion. Everything here is pure; persistence lives elsewhere.
package economy

import "math"

// Resources is a vector over the four resource kinds. Values are whole units.
type Resources struct {
	Metal    int `json:"metal"`
	Energy   int `json:"energy"`
	Food     int `json:"food"`
	Research int `json:"research"`
}

// Add returns r + o.
func (r Resources) Add(o Resources) Resources {
	return Resources{
		Metal:    r.Metal + o.Metal,
		Energy:   r.Energy + o.Energy,
		Food:     r.Food + o.Food,
		Research: r.Research + o.Research,
	}
}

// Sub returns r - o.
func (r Resources) Sub(o Resources) Resources {
	return Resources{
		Metal:    r.Metal - o.Metal,
		Energy:   r.Energy - o.Energy,
		Food:     r.Food - o.Food,
		Research: r.Research - o.Research,
	}
}

// Mul returns r with each component multiplied by n.
func (r Resources) Mul(n int) Resources {
	return Resources{
		Metal:    r.Metal * n,
		Energy:   r.Energy * n,
		Food:     r.Food * n,
		Research: r.Research * n,
	}
}

// Scale returns r with each component multiplied by f and floored.
func (r Resources) Scale(f float64) Resources {
	return Resources{
		Metal:    int(math.Floor(float64(r.Metal) * f)),
		Energy:   int(math.Floor(float64(r.Energy) * f)),
		Food:     int(math.Floor(float64(r.Food) * f)),
		Research: int(math.Floor(float64(r.Research) * f)),
	}
}

// CanAfford reports whether r covers cost on every component.
func (r Resources) CanAfford(cost Resources) bool {
	return r.Metal >= cost.Metal &&
		r.Energy >= cost.Energy &&
		r.Food >= cost.Food &&
		r.Research >= cost.Research
}

// NonNegative reports whether every component is >= 0.
func (r Resources) NonNegative() bool {
	return r.Metal >= 0 && r.Energy >= 0 && r.Food >= 0 && r.Research >= 0
}

// Clamp returns r with any negative components raised to zero.
func (r Resources) Clamp() Resources {
	c := r
	if c.Metal < 0 {
		c.Metal = 0
	}
	if c.Energy < 0 {
		c.Energy = 0
	}
	if c.Food < 0 {
		c.Food = 0
	}
	if c.Research < 0 {
		c.Research = 0
	}
	return c
}

// IsZero reports whether every component is zero.
func (r Resources) IsZero() bool {
	return r == Resources{}
}

// Total returns the sum of all components.
func (r Resources) Total() int {
	return r.Metal + r.Energy + r.Food + r.Research
}

// Max returns the largest component value.
func (r Resources) Max() int {
	m := r.Metal
	for _, v := range []int{r.Energy, r.Food, r.Research} {
		if v > m {
			m = v
		}
	}
	return m
}

// Min returns the smallest component value.
func (r Resources) Min() int {
	m := r.Metal
	for _, v := range []int{r.Energy, r.Food, r.Research} {
		if v < m {
			m = v
		}
	}
	return m
}
