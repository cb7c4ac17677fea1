// Package diplomacy holds the pure rules for inter-empire relations: trust
// categories and their derived permissions, proposal configurations, and
// trade-route pricing. Persistence and orchestration live in the service
// layer; everything here is table-driven and side-effect free.
package diplomacy

// TrustCategory buckets a trust level into one of five bands.
type TrustCategory string

const (
	Hostile    TrustCategory = "hostile"    // [-100, -60)
	Unfriendly TrustCategory = "unfriendly" // [-60, -20)
	Neutral    TrustCategory = "neutral"    // [-20, 20)
	Friendly   TrustCategory = "friendly"   // [20, 60)
	Allied     TrustCategory = "allied"     // [60, 100]
)

// TrustMin and TrustMax bound every trust level.
const (
	TrustMin = -100
	TrustMax = 100
)

// ClampTrust forces a trust level into [TrustMin, TrustMax].
func ClampTrust(trust int) int {
	if trust < TrustMin {
		return TrustMin
	}
	if trust > TrustMax {
		return TrustMax
	}
	return trust
}

// CategoryFor buckets a trust level. Out-of-range input is clamped first.
func CategoryFor(trust int) TrustCategory {
	trust = ClampTrust(trust)
	switch {
	case trust < -60:
		return Hostile
	case trust < -20:
		return Unfriendly
	case trust < 20:
		return Neutral
	case trust < 60:
		return Friendly
	default:
		return Allied
	}
}

// tradeModifiers scales trade-route settlement volume by category.
var tradeModifiers = map[TrustCategory]float64{
	Hostile:    0,
	Unfriendly: 0.5,
	Neutral:    1.0,
	Friendly:   1.25,
	Allied:     1.5,
}

// TradeModifier returns the settlement multiplier for a category.
func TradeModifier(cat TrustCategory) float64 {
	return tradeModifiers[cat]
}

// CanTrade reports whether any trade flows at this category.
func CanTrade(cat TrustCategory) bool {
	return tradeModifiers[cat] > 0
}

// CanShareResearch reports whether research sharing is permitted: allied
// pairs always may; friendly pairs need an active research_sharing agreement.
func CanShareResearch(cat TrustCategory, activeKinds []ProposalType) bool {
	if cat == Allied {
		return true
	}
	if cat != Friendly {
		return false
	}
	for _, k := range activeKinds {
		if k == ResearchSharing {
			return true
		}
	}
	return false
}

// CanAttack reports whether combat between the pair is permitted. An active
// war declaration always permits it; a non-aggression pact or alliance
// forbids it; otherwise any pair may fight.
func CanAttack(activeKinds []ProposalType) bool {
	for _, k := range activeKinds {
		if k == WarDeclaration {
			return true
		}
	}
	for _, k := range activeKinds {
		if k == NonAggressionPact || k == Alliance {
			return false
		}
	}
	return true
}

// CanonicalPair orders two empire ids so relation rows are keyed uniquely
// per unordered pair.
func CanonicalPair(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}
