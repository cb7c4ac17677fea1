package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/gameerr"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
	"github.com/freeholdgames/stellar-dominion/pkg/diplomacy"
)

// MaxMessageLength bounds diplomatic message bodies.
const MaxMessageLength = 2000

// Proposal responses.
const (
	ResponseAccept  = "accept"
	ResponseReject  = "reject"
	ResponseCounter = "counter"
)

// DiplomacyService runs relations, proposals, agreements, and diplomatic
// mail between empires.
type DiplomacyService struct {
	diplo    repository.DiplomacyRepository
	empires  repository.EmpireRepository
	messages repository.MessageRepository
	trade    *TradeService
	now      func() time.Time
}

// NewDiplomacyService creates a DiplomacyService. trade is consulted when a
// war declaration severs the pair's routes.
func NewDiplomacyService(diplo repository.DiplomacyRepository, empires repository.EmpireRepository, messages repository.MessageRepository, trade *TradeService) *DiplomacyService {
	return &DiplomacyService{diplo: diplo, empires: empires, messages: messages, trade: trade, now: time.Now}
}

// Relations returns every relation the empire participates in.
func (s *DiplomacyService) Relations(ctx context.Context, empireID string) ([]model.DiplomaticRelation, error) {
	relations, err := s.diplo.ListRelationsFor(ctx, empireID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	return relations, nil
}

// AgreementsWith returns the active agreements between the empire and
// another.
func (s *DiplomacyService) AgreementsWith(ctx context.Context, empireID, otherID string) ([]model.Agreement, error) {
	agreements, err := s.diplo.ListActiveAgreementsBetween(ctx, empireID, otherID)
	if err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	return agreements, nil
}

// Propose offers a diplomatic arrangement to another empire. The pair's
// trust must meet the proposal type's floor, and only one pending proposal
// of a type may exist per pair.
func (s *DiplomacyService) Propose(ctx context.Context, initiatorID, targetID string, ptype diplomacy.ProposalType, terms json.RawMessage) (*model.DiplomaticProposal, error) {
	cfg, ok := diplomacy.ConfigFor(ptype)
	if !ok {
		return nil, gameerr.Validationf("unknown proposal type %q", ptype)
	}
	if targetID == initiatorID {
		return nil, gameerr.Validationf("cannot propose to your own empire")
	}
	target, err := s.empires.FindByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("find target: %w", err)
	}
	if target == nil {
		return nil, gameerr.NotFoundf("empire not found")
	}

	rel, err := s.diplo.EnsureRelation(ctx, initiatorID, targetID)
	if err != nil {
		return nil, fmt.Errorf("ensure relation: %w", err)
	}
	if rel.TrustLevel < cfg.RequiredTrust {
		return nil, gameerr.Conflictf("%s requires trust %d with this empire, current %d", ptype, cfg.RequiredTrust, rel.TrustLevel).
			WithDetail("required_trust", cfg.RequiredTrust).
			WithDetail("current_trust", rel.TrustLevel)
	}

	proposal, err := s.diplo.CreateProposal(ctx, &model.DiplomaticProposal{
		InitiatorID: initiatorID,
		TargetID:    targetID,
		Type:        string(ptype),
		Terms:       terms,
		ExpiresAt:   s.now().Add(diplomacy.ProposalExpiry),
	})
	if err != nil {
		if isConflict(err) {
			return nil, gameerr.Conflictf("a pending %s proposal already exists with this empire", ptype)
		}
		return nil, fmt.Errorf("create proposal: %w", err)
	}

	log.Info().
		Str("proposalId", proposal.ID).
		Str("initiator", initiatorID).
		Str("target", targetID).
		Str("type", string(ptype)).
		Msg("Proposal created")
	return proposal, nil
}

// Proposals returns the empire's pending proposals, sent and received.
func (s *DiplomacyService) Proposals(ctx context.Context, empireID string) ([]model.DiplomaticProposal, error) {
	proposals, err := s.diplo.ListProposalsFor(ctx, empireID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return proposals, nil
}

// Respond answers a pending proposal as its target: accept materializes the
// agreement and applies the trust bonus, reject applies the penalty, counter
// records terms for the initiator to re-propose with. Accepting a war
// declaration also severs the pair's trade routes.
func (s *DiplomacyService) Respond(ctx context.Context, empireID, proposalID, response string, counterTerms json.RawMessage) (*model.DiplomaticProposal, *model.Agreement, error) {
	proposal, err := s.diplo.FindProposal(ctx, proposalID)
	if err != nil {
		return nil, nil, fmt.Errorf("find proposal: %w", err)
	}
	if proposal == nil {
		return nil, nil, gameerr.NotFoundf("proposal not found")
	}
	if proposal.TargetID != empireID {
		if proposal.InitiatorID == empireID {
			return nil, nil, gameerr.AccessDeniedf("only the target empire can respond")
		}
		return nil, nil, gameerr.NotFoundf("proposal not found")
	}
	if proposal.Status != model.ProposalPending {
		return nil, nil, gameerr.Conflictf("proposal is %s", proposal.Status)
	}
	if !proposal.ExpiresAt.After(s.now()) {
		return nil, nil, gameerr.Conflictf("proposal has expired")
	}

	ptype := diplomacy.ProposalType(proposal.Type)
	cfg, _ := diplomacy.ConfigFor(ptype)

	var agreement *model.Agreement
	switch response {
	case ResponseAccept:
		now := s.now()
		agreement, err = s.diplo.AcceptProposal(ctx, proposalID, &model.Agreement{
			Kind:        proposal.Type,
			EmpireA:     proposal.InitiatorID,
			EmpireB:     proposal.TargetID,
			Terms:       proposal.Terms,
			Status:      model.AgreementActive,
			EffectiveAt: now,
			ExpiresAt:   now.Add(time.Duration(cfg.DurationDays) * 24 * time.Hour),
		}, cfg.AcceptDelta)
		if err != nil {
			if isConflict(err) {
				return nil, nil, gameerr.Conflictf("proposal is no longer pending").Wrap(err)
			}
			return nil, nil, fmt.Errorf("accept proposal: %w", err)
		}
		if ptype == diplomacy.WarDeclaration {
			if n, err := s.trade.CancelRoutesBetween(ctx, proposal.InitiatorID, proposal.TargetID); err != nil {
				log.Error().Err(err).Str("proposalId", proposalID).Msg("Failed to sever trade routes on war")
			} else if n > 0 {
				log.Info().Int("count", n).Str("proposalId", proposalID).Msg("Trade routes severed by war")
			}
		}
	case ResponseReject:
		if err := s.diplo.RejectProposal(ctx, proposalID, cfg.RejectDelta); err != nil {
			if isConflict(err) {
				return nil, nil, gameerr.Conflictf("proposal is no longer pending").Wrap(err)
			}
			return nil, nil, fmt.Errorf("reject proposal: %w", err)
		}
	case ResponseCounter:
		if len(strings.TrimSpace(string(counterTerms))) == 0 {
			return nil, nil, gameerr.Validationf("counter requires terms")
		}
		if err := s.diplo.CounterProposal(ctx, proposalID, counterTerms); err != nil {
			if isConflict(err) {
				return nil, nil, gameerr.Conflictf("proposal is no longer pending").Wrap(err)
			}
			return nil, nil, fmt.Errorf("counter proposal: %w", err)
		}
	default:
		return nil, nil, gameerr.Validationf("response must be accept, reject, or counter")
	}

	updated, err := s.diplo.FindProposal(ctx, proposalID)
	if err != nil {
		return nil, nil, fmt.Errorf("reload proposal: %w", err)
	}
	log.Info().
		Str("proposalId", proposalID).
		Str("empireId", empireID).
		Str("response", response).
		Msg("Proposal answered")
	return updated, agreement, nil
}

// SendMessage delivers diplomatic mail to another empire, establishing first
// contact if the pair has never interacted.
func (s *DiplomacyService) SendMessage(ctx context.Context, senderID, recipientID, body string) (*model.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" || len(body) > MaxMessageLength {
		return nil, gameerr.Validationf("message body must be 1-%d characters", MaxMessageLength)
	}
	if recipientID == senderID {
		return nil, gameerr.Validationf("cannot message your own empire")
	}
	recipient, err := s.empires.FindByID(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("find recipient: %w", err)
	}
	if recipient == nil {
		return nil, gameerr.NotFoundf("empire not found")
	}
	if _, err := s.diplo.EnsureRelation(ctx, senderID, recipientID); err != nil {
		return nil, fmt.Errorf("ensure relation: %w", err)
	}

	msg, err := s.messages.Create(ctx, senderID, recipientID, body)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// MessagesWith returns the mail thread between the empire and another.
func (s *DiplomacyService) MessagesWith(ctx context.Context, empireID, otherID string) ([]model.Message, error) {
	msgs, err := s.messages.ListBetween(ctx, empireID, otherID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// ExpireDue sweeps overdue proposals and lapsed agreements. Run by the turn
// pipeline.
func (s *DiplomacyService) ExpireDue(ctx context.Context) (int, error) {
	n, err := s.diplo.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire diplomacy: %w", err)
	}
	if n > 0 {
		log.Info().Int("count", n).Msg("Diplomatic records expired")
	}
	return n, nil
}
