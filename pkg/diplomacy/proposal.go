package diplomacy

import (
	"time"

	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// ProposalType names a diplomatic offer and the agreement kind it creates.
type ProposalType string

const (
	TradeAgreement      ProposalType = "trade_agreement"
	NonAggressionPact   ProposalType = "non_aggression_pact"
	Alliance            ProposalType = "alliance"
	ResearchSharing     ProposalType = "research_sharing"
	MilitaryCooperation ProposalType = "military_cooperation"
	WarDeclaration      ProposalType = "war_declaration"
	TradeRoute          ProposalType = "trade_route"
)

// ProposalExpiry is how long an unanswered proposal stays pending.
const ProposalExpiry = 7 * 24 * time.Hour

// ProposalConfig fixes the rules for one proposal type.
type ProposalConfig struct {
	RequiredTrust int // minimum relation trust to create
	DurationDays  int // agreement lifetime after acceptance
	AcceptDelta   int // trust change on accept
	RejectDelta   int // trust change on reject
}

var proposalConfigs = map[ProposalType]ProposalConfig{
	TradeAgreement:      {RequiredTrust: -20, DurationDays: 30, AcceptDelta: 10, RejectDelta: -5},
	NonAggressionPact:   {RequiredTrust: -40, DurationDays: 60, AcceptDelta: 15, RejectDelta: -10},
	Alliance:            {RequiredTrust: 40, DurationDays: 90, AcceptDelta: 20, RejectDelta: -15},
	ResearchSharing:     {RequiredTrust: 20, DurationDays: 45, AcceptDelta: 10, RejectDelta: -5},
	MilitaryCooperation: {RequiredTrust: 30, DurationDays: 60, AcceptDelta: 15, RejectDelta: -10},
	WarDeclaration:      {RequiredTrust: -100, DurationDays: 30, AcceptDelta: -30, RejectDelta: 0},
	TradeRoute:          {RequiredTrust: -10, DurationDays: 30, AcceptDelta: 5, RejectDelta: -5},
}

// ConfigFor returns the rules for a proposal type.
func ConfigFor(t ProposalType) (ProposalConfig, bool) {
	c, ok := proposalConfigs[t]
	return c, ok
}

// ValidProposalType reports whether t names a known proposal type.
func ValidProposalType(t ProposalType) bool {
	_, ok := proposalConfigs[t]
	return ok
}

// ProposalTypes returns every proposal type in a fixed order.
func ProposalTypes() []ProposalType {
	return []ProposalType{
		TradeAgreement, NonAggressionPact, Alliance, ResearchSharing,
		MilitaryCooperation, WarDeclaration, TradeRoute,
	}
}

// TradeRouteEstablishCost is charged to each side when a route opens.
var TradeRouteEstablishCost = economy.Resources{Metal: 200}

// TradeRouteMaintenance is charged to each side at every settlement.
var TradeRouteMaintenance = economy.Resources{Energy: 10}
