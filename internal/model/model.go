package model

import (
	"encoding/json"
	"time"

	"github.com/freeholdgames/stellar-dominion/pkg/combat"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// Player represents a registered account. A player owns at most one empire.
type Player struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	DisplayName  string          `json:"display_name"`
	Bio          string          `json:"bio,omitempty"`
	IsAdmin      bool            `json:"is_admin"`
	IsModerator  bool            `json:"is_moderator"`
	IsActive     bool            `json:"is_active"`
	Settings     json.RawMessage `json:"settings,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Empire is the root game entity for one player.
type Empire struct {
	ID                 string            `json:"id"`
	PlayerID           string            `json:"player_id"`
	Name               string            `json:"name"`
	Resources          economy.Resources `json:"resources"`
	TechLevels         map[string]int    `json:"tech_levels"`
	LastResourceUpdate int               `json:"last_resource_update"` // turn number of the last economy application
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Planet represents a colonizable body in one sector.
type Planet struct {
	ID                string                       `json:"id"`
	EmpireID          string                       `json:"empire_id,omitempty"` // empty = uncolonized
	Name              string                       `json:"name"`
	Type              economy.PlanetType           `json:"planet_type"`
	Sector            string                       `json:"sector"` // "x,y"
	Status            string                       `json:"status"` // available, colonizing, active
	Population        int                          `json:"population"`
	Buildings         map[economy.BuildingType]int `json:"buildings"`
	ColonizingFleetID string                       `json:"colonizing_fleet_id,omitempty"`
	ColonizationStart *time.Time                   `json:"colonization_started,omitempty"`
	ColonizationEnd   *time.Time                   `json:"colonization_completed,omitempty"`
	CreatedAt         time.Time                    `json:"created_at"`
	UpdatedAt         time.Time                    `json:"updated_at"`
}

// Fleet is a set of ships at a single location.
type Fleet struct {
	ID                string             `json:"id"`
	EmpireID          string             `json:"empire_id"`
	Name              string             `json:"name"`
	Sector            string             `json:"sector"`
	Status            string             `json:"status"` // active, moving, in_combat, colonizing, exploring, destroyed
	Composition       combat.Composition `json:"composition"`
	Experience        int                `json:"experience"`
	Morale            int                `json:"morale"`
	DestinationSector string             `json:"destination_sector,omitempty"`
	ArrivalTime       *time.Time         `json:"arrival_time,omitempty"`
	LastCombat        *time.Time         `json:"last_combat,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// DiplomaticRelation is one row per unordered empire pair. EmpireA/EmpireB
// are canonicalized so EmpireA < EmpireB.
type DiplomaticRelation struct {
	ID         string    `json:"id"`
	EmpireA    string    `json:"empire_a"`
	EmpireB    string    `json:"empire_b"`
	TrustLevel int       `json:"trust_level"` // [-100, 100]
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DiplomaticProposal is a pending offer from one empire to another.
type DiplomaticProposal struct {
	ID           string          `json:"id"`
	InitiatorID  string          `json:"initiator_empire_id"`
	TargetID     string          `json:"target_empire_id"`
	Type         string          `json:"proposal_type"`
	Terms        json.RawMessage `json:"terms,omitempty"`
	Status       string          `json:"status"` // pending, accepted, rejected, countered, expired
	CounterTerms json.RawMessage `json:"counter_terms,omitempty"`
	ExpiresAt    time.Time       `json:"expires_at"`
	RespondedAt  *time.Time      `json:"responded_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Agreement is materialized from an accepted proposal.
type Agreement struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	EmpireA     string          `json:"empire_a"`
	EmpireB     string          `json:"empire_b"`
	Terms       json.RawMessage `json:"terms,omitempty"`
	Status      string          `json:"status"` // active, expired, broken
	EffectiveAt time.Time       `json:"effective_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TradeRoute specializes a trade_route agreement with per-settlement flows.
type TradeRoute struct {
	ID              string            `json:"id"`
	AgreementID     string            `json:"agreement_id"`
	EmpireA         string            `json:"empire_a"`
	EmpireB         string            `json:"empire_b"`
	GivesA          economy.Resources `json:"empire_a_gives"`
	GivesB          economy.Resources `json:"empire_b_gives"`
	Status          string            `json:"status"` // active, cancelled
	LastSettledTurn int               `json:"last_settled_turn"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Battle is a persisted combat report. Pending battles are deferred
// engagements awaiting the turn pipeline.
type Battle struct {
	ID              string          `json:"id"`
	AttackerEmpire  string          `json:"attacker_empire_id"`
	DefenderEmpire  string          `json:"defender_empire_id"`
	AttackerFleetID string          `json:"attacker_fleet_id"`
	DefenderFleetID string          `json:"defender_fleet_id"`
	Sector          string          `json:"sector"`
	Status          string          `json:"status"` // pending, resolved
	SurpriseAttack  bool            `json:"surprise_attack"`
	Result          string          `json:"result,omitempty"` // combat.ResultType
	Winner          string          `json:"winner,omitempty"`
	Rounds          int             `json:"rounds"`
	Report          json.RawMessage `json:"report,omitempty"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Message is an immutable diplomatic mail row between two empires.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_empire_id"`
	RecipientID string    `json:"recipient_empire_id"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// GameState is the singleton turn record.
type GameState struct {
	TurnNumber   int       `json:"turn_number"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	IsProcessing bool      `json:"is_processing"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ActionPointLedger tracks spendable points for one (player, turn).
type ActionPointLedger struct {
	PlayerID        string     `json:"player_id"`
	TurnNumber      int        `json:"turn_number"`
	PointsAvailable int        `json:"points_available"`
	PointsUsed      int        `json:"points_used"`
	LastAction      string     `json:"last_action,omitempty"`
	LastActionTime  *time.Time `json:"last_action_time,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ActionPointReservation is a short-lived hold against the ledger.
type ActionPointReservation struct {
	ID             string    `json:"id"`
	PlayerID       string    `json:"player_id"`
	TurnNumber     int       `json:"turn_number"`
	ReservedPoints int       `json:"reserved_points"`
	ActionType     string    `json:"action_type"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// PlayerAction is the immutable log row written when a reservation commits.
type PlayerAction struct {
	ID          string          `json:"id"`
	PlayerID    string          `json:"player_id"`
	TurnNumber  int             `json:"turn_number"`
	ActionType  string          `json:"action_type"`
	PointsSpent int             `json:"points_spent"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
