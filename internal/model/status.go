package model

// Planet statuses.
const (
	PlanetAvailable  = "available"
	PlanetColonizing = "colonizing"
	PlanetActive     = "active"
)

// Fleet statuses.
const (
	FleetActive     = "active"
	FleetMoving     = "moving"
	FleetInCombat   = "in_combat"
	FleetColonizing = "colonizing"
	FleetExploring  = "exploring"
	FleetDestroyed  = "destroyed"
)

// Proposal statuses.
const (
	ProposalPending   = "pending"
	ProposalAccepted  = "accepted"
	ProposalRejected  = "rejected"
	ProposalCountered = "countered"
	ProposalExpired   = "expired"
)

// Agreement statuses.
const (
	AgreementActive  = "active"
	AgreementExpired = "expired"
	AgreementBroken  = "broken"
)

// Trade route statuses.
const (
	TradeRouteActive    = "active"
	TradeRouteCancelled = "cancelled"
)

// Battle statuses.
const (
	BattlePending  = "pending"
	BattleResolved = "resolved"
)
