package combat

import (
	"math/rand"
	"time"
)

// NewRng returns a non-deterministic source for production battles.
func NewRng() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// SeedRng returns a deterministic source for replays and tests.
func SeedRng(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
