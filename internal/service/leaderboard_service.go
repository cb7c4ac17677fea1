package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
	"github.com/freeholdgames/stellar-dominion/pkg/combat"
)

// LeaderboardTTL is how long a rendered leaderboard stays cached. Turn
// advancement invalidates it early.
const LeaderboardTTL = 5 * time.Minute

// DefaultLeaderboardSize is returned when the caller gives no limit.
const DefaultLeaderboardSize = 25

// LeaderboardEntry is one ranked empire.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	EmpireID string `json:"empire_id"`
	Name     string `json:"name"`
	Power    int    `json:"power"`
	Colonies int    `json:"colonies"`
}

// LeaderboardService ranks empires by a composite power score and caches the
// rendered board in Redis.
type LeaderboardService struct {
	empires repository.EmpireRepository
	planets repository.PlanetRepository
	fleets  repository.FleetRepository
	cache   repository.LeaderboardCache
}

// NewLeaderboardService creates a LeaderboardService.
func NewLeaderboardService(empires repository.EmpireRepository, planets repository.PlanetRepository, fleets repository.FleetRepository, cache repository.LeaderboardCache) *LeaderboardService {
	return &LeaderboardService{empires: empires, planets: planets, fleets: fleets, cache: cache}
}

// Top returns the highest-ranked empires, at most limit. Served from cache
// when fresh; otherwise recomputed and re-cached.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = DefaultLeaderboardSize
	}

	if cached, err := s.cache.CachedLeaderboard(ctx); err != nil {
		log.Warn().Err(err).Msg("Leaderboard cache read failed")
	} else if cached != nil {
		var entries []LeaderboardEntry
		if err := json.Unmarshal(cached, &entries); err == nil {
			return truncate(entries, limit), nil
		}
		log.Warn().Msg("Discarding undecodable leaderboard cache")
	}

	entries, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode leaderboard: %w", err)
	}
	if err := s.cache.CacheLeaderboard(ctx, data, LeaderboardTTL); err != nil {
		log.Warn().Err(err).Msg("Leaderboard cache write failed")
	}
	return truncate(entries, limit), nil
}

// compute scores every empire: stockpiles, colony count, fleet strength, and
// research levels all contribute.
func (s *LeaderboardService) compute(ctx context.Context) ([]LeaderboardEntry, error) {
	empires, err := s.empires.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list empires: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(empires))
	for _, empire := range empires {
		colonies, err := s.planets.CountByEmpire(ctx, empire.ID)
		if err != nil {
			return nil, fmt.Errorf("count colonies for %s: %w", empire.ID, err)
		}
		fleets, err := s.fleets.ListByEmpire(ctx, empire.ID)
		if err != nil {
			return nil, fmt.Errorf("list fleets for %s: %w", empire.ID, err)
		}

		fleetPower := 0
		for _, f := range fleets {
			if f.Status == model.FleetDestroyed {
				continue
			}
			fleetPower += combat.Power(f.Composition)
		}
		techTotal := 0
		for _, level := range empire.TechLevels {
			techTotal += level
		}

		power := empire.Resources.Total()/100 +
			colonies*50 +
			fleetPower/10 +
			techTotal*100

		entries = append(entries, LeaderboardEntry{
			EmpireID: empire.ID,
			Name:     empire.Name,
			Power:    power,
			Colonies: colonies,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Power != entries[j].Power {
			return entries[i].Power > entries[j].Power
		}
		return entries[i].Name < entries[j].Name
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

func truncate(entries []LeaderboardEntry, limit int) []LeaderboardEntry {
	if len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
