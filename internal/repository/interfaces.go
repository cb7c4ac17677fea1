package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/pkg/combat"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// Sentinel errors returned by guarded updates. Services translate these into
// tagged gameerr values; repositories stay free of HTTP concerns.
var (
	// ErrInsufficientResources means a guarded resource decrement found the
	// empire short on at least one component. No rows were changed.
	ErrInsufficientResources = errors.New("insufficient resources")

	// ErrStateConflict means a guarded transition found the row in a state
	// that forbids it (planet not available, fleet not active, proposal not
	// pending, duplicate unique value).
	ErrStateConflict = errors.New("conflicting state")

	// ErrAlreadyProcessing means the turn singleton is mid-advance.
	ErrAlreadyProcessing = errors.New("turn already processing")

	// ErrReservationGone means a commit found its reservation missing or past
	// its TTL.
	ErrReservationGone = errors.New("reservation missing or expired")
)

// InsufficientPointsError reports a failed action-point reservation with the
// numbers the caller surfaces to the client.
type InsufficientPointsError struct {
	Required  int
	Available int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient action points: required %d, available %d", e.Required, e.Available)
}

// PlayerRepository defines account storage.
type PlayerRepository interface {
	Create(ctx context.Context, username, passwordHash, displayName string) (*model.Player, error)
	FindByID(ctx context.Context, id string) (*model.Player, error)
	FindByUsername(ctx context.Context, username string) (*model.Player, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Count(ctx context.Context) (int, error)
}

// EmpireRepository defines empire storage and resource arithmetic. Spend and
// credit are single guarded statements; ApplyTurnResources locks the row for
// the turn pipeline's read-modify-write.
type EmpireRepository interface {
	Create(ctx context.Context, playerID, name string, starting economy.Resources) (*model.Empire, error)
	FindByID(ctx context.Context, id string) (*model.Empire, error)
	FindByPlayerID(ctx context.Context, playerID string) (*model.Empire, error)
	List(ctx context.Context) ([]model.Empire, error)
	Rename(ctx context.Context, id, name string) error
	SpendResources(ctx context.Context, id string, cost economy.Resources) error
	CreditResources(ctx context.Context, id string, delta economy.Resources) error
	// ApplyTurnResources locks the empire row, calls apply with the current
	// state, and writes the returned totals stamped with turn. Returns false
	// without calling apply when the row is already stamped for turn.
	ApplyTurnResources(ctx context.Context, id string, turn int, apply func(model.Empire) economy.Resources) (bool, error)
}

// PlanetRepository defines planet storage, exploration persistence, and the
// colonization lifecycle.
type PlanetRepository interface {
	FindByID(ctx context.Context, id string) (*model.Planet, error)
	ListByEmpire(ctx context.Context, empireID string) ([]model.Planet, error)
	ListBySector(ctx context.Context, sector string) ([]model.Planet, error)
	CountByEmpire(ctx context.Context, empireID string) (int, error)
	// ClaimStartingPlanet atomically assigns one available planet in the given
	// sectors to the empire as an active colony. Returns (nil, nil) when none
	// is free.
	ClaimStartingPlanet(ctx context.Context, empireID string, sectors []string) (*model.Planet, error)
	// CreateSectorPlanets charges the empire and inserts the generated planets
	// unless the sector already has planets, in which case the existing set is
	// returned with charged=false and no mutation.
	CreateSectorPlanets(ctx context.Context, empireID, sector string, cost economy.Resources, planets []model.Planet) (result []model.Planet, charged bool, err error)
	StartColonization(ctx context.Context, planetID, empireID, fleetID string, cost economy.Resources, completion time.Time) error
	// CompleteDueColonizations flips colonizing planets past their completion
	// time to active and frees their fleets. Returns the number completed.
	CompleteDueColonizations(ctx context.Context, now time.Time) (int, error)
	Abandon(ctx context.Context, planetID, empireID string, refund economy.Resources) error
	SetSpecialization(ctx context.Context, planetID, empireID string, newType economy.PlanetType, cost economy.Resources) error
	// AddBuildings increments one building type under the per-type cap and
	// charges the empire, all inside one transaction.
	AddBuildings(ctx context.Context, planetID, empireID string, btype economy.BuildingType, count, cap int, cost economy.Resources) (*model.Planet, error)
}

// FleetRepository defines fleet storage and movement.
type FleetRepository interface {
	// CreateWithCost inserts the fleet and charges the empire for its initial
	// composition in one transaction.
	CreateWithCost(ctx context.Context, fleet *model.Fleet, cost economy.Resources) (*model.Fleet, error)
	FindByID(ctx context.Context, id string) (*model.Fleet, error)
	ListByEmpire(ctx context.Context, empireID string) ([]model.Fleet, error)
	CountByEmpire(ctx context.Context, empireID string) (int, error)
	// PurchaseComposition replaces the fleet's composition and settles the net
	// resource cost (negative components credit scrap refunds).
	PurchaseComposition(ctx context.Context, fleetID, empireID string, netCost economy.Resources, comp combat.Composition) error
	// SetMovement marks an active fleet as moving toward destination.
	SetMovement(ctx context.Context, id, destination string, arrival time.Time) error
	// ArriveDueFleets lands moving fleets whose arrival time has passed.
	ArriveDueFleets(ctx context.Context, now time.Time) (int, error)
	SetStatus(ctx context.Context, id, status string) error
}

// CombatTx is the critical section of a synchronous engagement. It runs with
// both fleet rows locked and returns the battle plus both updated fleets to
// persist.
type CombatTx func(attacker, defender model.Fleet) (*model.Battle, *model.Fleet, *model.Fleet, error)

// PendingCombatTx is the critical section when resolving a queued battle.
type PendingCombatTx func(b model.Battle, attacker, defender model.Fleet) (*model.Battle, *model.Fleet, *model.Fleet, error)

// BattleRepository defines battle persistence and the two-fleet transactional
// update combat requires.
type BattleRepository interface {
	ExecuteCombat(ctx context.Context, attackerFleetID, defenderFleetID string, fight CombatTx) (*model.Battle, error)
	// CreatePending inserts a deferred battle and puts both fleets in combat.
	CreatePending(ctx context.Context, b *model.Battle) (*model.Battle, error)
	ResolvePending(ctx context.Context, battleID string, fight PendingCombatTx) (*model.Battle, error)
	FindByID(ctx context.Context, id string) (*model.Battle, error)
	ListByEmpire(ctx context.Context, empireID string) ([]model.Battle, error)
	ListPending(ctx context.Context) ([]model.Battle, error)
}

// DiplomacyRepository defines relations, proposals, and agreements.
type DiplomacyRepository interface {
	// EnsureRelation returns the relation for the pair, creating it at trust 0
	// on first contact. The pair is canonicalized internally.
	EnsureRelation(ctx context.Context, a, b string) (*model.DiplomaticRelation, error)
	GetRelation(ctx context.Context, a, b string) (*model.DiplomaticRelation, error)
	ListRelationsFor(ctx context.Context, empireID string) ([]model.DiplomaticRelation, error)
	// AdjustTrust shifts trust by delta, clamped to [-100, 100], and returns
	// the new value.
	AdjustTrust(ctx context.Context, a, b string, delta int) (int, error)
	// CreateProposal inserts the proposal unless the pair already has a
	// pending proposal of the same type in either direction.
	CreateProposal(ctx context.Context, p *model.DiplomaticProposal) (*model.DiplomaticProposal, error)
	FindProposal(ctx context.Context, id string) (*model.DiplomaticProposal, error)
	ListProposalsFor(ctx context.Context, empireID string) ([]model.DiplomaticProposal, error)
	// AcceptProposal flips a pending proposal to accepted, materializes the
	// agreement, and adjusts trust, all in one transaction.
	AcceptProposal(ctx context.Context, id string, agreement *model.Agreement, trustDelta int) (*model.Agreement, error)
	RejectProposal(ctx context.Context, id string, trustDelta int) error
	CounterProposal(ctx context.Context, id string, counterTerms json.RawMessage) error
	ListActiveAgreementsBetween(ctx context.Context, a, b string) ([]model.Agreement, error)
	HasActiveAgreement(ctx context.Context, a, b, kind string) (bool, error)
	// ExpireDue marks overdue pending proposals expired and overdue active
	// agreements expired (cancelling their trade routes). Returns rows touched.
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// TradeRouteRepository defines trade-route establishment and settlement.
type TradeRouteRepository interface {
	// Establish charges both empires the establishment cost and inserts the
	// agreement plus its route in one transaction.
	Establish(ctx context.Context, agreement *model.Agreement, route *model.TradeRoute, costEach economy.Resources) (*model.TradeRoute, error)
	FindByID(ctx context.Context, id string) (*model.TradeRoute, error)
	ListForEmpire(ctx context.Context, empireID string) ([]model.TradeRoute, error)
	ListActive(ctx context.Context) ([]model.TradeRoute, error)
	// Settle applies one turn's exchange: debit and credit both sides and
	// stamp the route with turn. Returns false with no mutation when either
	// side cannot afford its outbound flow. A route already stamped for turn
	// returns true without re-applying.
	Settle(ctx context.Context, routeID string, turn int, debitA, creditA, debitB, creditB economy.Resources) (bool, error)
	Cancel(ctx context.Context, routeID, empireID string) error
}

// MessageRepository defines diplomatic mail storage.
type MessageRepository interface {
	Create(ctx context.Context, senderID, recipientID, body string) (*model.Message, error)
	ListBetween(ctx context.Context, a, b string) ([]model.Message, error)
}

// LedgerRepository defines the two-phase action-point ledger.
type LedgerRepository interface {
	// Allocate inserts the (player, turn) row with the given budget if absent
	// and returns the row either way.
	Allocate(ctx context.Context, playerID string, turn, points int) (*model.ActionPointLedger, error)
	Get(ctx context.Context, playerID string, turn int) (*model.ActionPointLedger, error)
	// Available returns points_available - points_used - sum of unexpired
	// reservations.
	Available(ctx context.Context, playerID string, turn int) (int, error)
	// Reserve locks the ledger row, checks availability, and inserts a
	// reservation with the given TTL. Fails with *InsufficientPointsError.
	Reserve(ctx context.Context, playerID string, turn, points int, actionType string, ttl time.Duration) (*model.ActionPointReservation, error)
	// Commit converts a live reservation into an immutable action log row and
	// bumps points_used.
	Commit(ctx context.Context, reservationID string, details json.RawMessage) error
	// Release drops a reservation; missing rows are not an error.
	Release(ctx context.Context, reservationID string) error
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	// DeleteOlderThan garbage-collects ledger rows and reservations from turns
	// before the given turn.
	DeleteOlderThan(ctx context.Context, beforeTurn int) (int, error)
	// LastActionAt returns the most recent committed action time among the
	// given action types, or nil when the player has none.
	LastActionAt(ctx context.Context, playerID string, actionTypes []string) (*time.Time, error)
}

// GameStateRepository defines the turn singleton.
type GameStateRepository interface {
	// Get returns the current turn row, or (nil, nil) before initialization.
	Get(ctx context.Context) (*model.GameState, error)
	// Initialize creates turn 1. Fails with ErrStateConflict when a row exists.
	Initialize(ctx context.Context, turn int, start, end time.Time) (*model.GameState, error)
	// BeginProcessing claims the advance: fails with ErrAlreadyProcessing when
	// another advance is running.
	BeginProcessing(ctx context.Context) (*model.GameState, error)
	// CompleteTurn writes the next turn row and clears the processing flag.
	CompleteTurn(ctx context.Context, newTurn int, start, end time.Time) (*model.GameState, error)
	// ClearProcessing force-clears a stuck processing flag (crash recovery).
	ClearProcessing(ctx context.Context) error
}

// SessionStore defines redis-backed session state.
type SessionStore interface {
	CreateSession(ctx context.Context, sessionID, playerID, refreshHash string, ttl time.Duration) error
	SessionPlayer(ctx context.Context, sessionID string) (string, error)
	SessionRefreshHash(ctx context.Context, sessionID string) (string, error)
	RotateRefresh(ctx context.Context, sessionID, refreshHash string, ttl time.Duration) error
	DeleteSession(ctx context.Context, sessionID string) error
	// RevokeAllSessions deletes every session of the player. Returns how many
	// were removed.
	RevokeAllSessions(ctx context.Context, playerID string) (int, error)
}

// TurnTimer defines the redis deadline key driving the turn scheduler.
type TurnTimer interface {
	SetTurnDeadline(ctx context.Context, deadline time.Time) error
	ClearTurnDeadline(ctx context.Context) error
}

// LeaderboardCache defines the cached leaderboard payload.
type LeaderboardCache interface {
	CachedLeaderboard(ctx context.Context) (json.RawMessage, error)
	CacheLeaderboard(ctx context.Context, data json.RawMessage, ttl time.Duration) error
	InvalidateLeaderboard(ctx context.Context) error
}
