package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
	"github.com/freeholdgames/stellar-dominion/pkg/diplomacy"
)

// DiplomacyRepo handles relations, proposals, and agreements. Empire pairs
// are canonicalized (empire_a < empire_b) before touching relation rows.
type DiplomacyRepo struct {
	db *sql.DB
}

// NewDiplomacyRepo creates a DiplomacyRepo.
func NewDiplomacyRepo(db *sql.DB) *DiplomacyRepo {
	return &DiplomacyRepo{db: db}
}

const relationColumns = `id, empire_a, empire_b, trust_level, created_at, updated_at`

func scanRelation(row interface{ Scan(...any) error }) (*model.DiplomaticRelation, error) {
	var rel model.DiplomaticRelation
	err := row.Scan(&rel.ID, &rel.EmpireA, &rel.EmpireB, &rel.TrustLevel, &rel.CreatedAt, &rel.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// EnsureRelation returns the relation for the pair, creating it at trust 0
// on first contact.
func (r *DiplomacyRepo) EnsureRelation(ctx context.Context, a, b string) (*model.DiplomaticRelation, error) {
	ea, eb := diplomacy.CanonicalPair(a, b)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO diplomatic_relations (id, empire_a, empire_b)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (empire_a, empire_b) DO NOTHING`,
		uuid.NewString(), ea, eb)
	if err != nil {
		return nil, fmt.Errorf("ensure relation: %w", err)
	}
	rel, err := scanRelation(r.db.QueryRowContext(ctx,
		`SELECT `+relationColumns+` FROM diplomatic_relations WHERE empire_a = $1 AND empire_b = $2`,
		ea, eb))
	if err != nil {
		return nil, fmt.Errorf("get relation: %w", err)
	}
	return rel, nil
}

// GetRelation returns the relation for the pair, or nil when the empires
// have never interacted.
func (r *DiplomacyRepo) GetRelation(ctx context.Context, a, b string) (*model.DiplomaticRelation, error) {
	ea, eb := diplomacy.CanonicalPair(a, b)
	rel, err := scanRelation(r.db.QueryRowContext(ctx,
		`SELECT `+relationColumns+` FROM diplomatic_relations WHERE empire_a = $1 AND empire_b = $2`,
		ea, eb))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get relation: %w", err)
	}
	return rel, nil
}

// ListRelationsFor returns every relation the empire participates in.
func (r *DiplomacyRepo) ListRelationsFor(ctx context.Context, empireID string) ([]model.DiplomaticRelation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+relationColumns+` FROM diplomatic_relations
		 WHERE empire_a = $1 OR empire_b = $1
		 ORDER BY updated_at DESC`, empireID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()

	var relations []model.DiplomaticRelation
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		relations = append(relations, *rel)
	}
	return relations, rows.Err()
}

// AdjustTrust shifts the pair's trust by delta, clamped to [-100, 100], and
// returns the new level. The relation is created first if absent.
func (r *DiplomacyRepo) AdjustTrust(ctx context.Context, a, b string, delta int) (int, error) {
	if _, err := r.EnsureRelation(ctx, a, b); err != nil {
		return 0, err
	}
	ea, eb := diplomacy.CanonicalPair(a, b)
	var trust int
	err := r.db.QueryRowContext(ctx,
		`UPDATE diplomatic_relations
		 SET trust_level = LEAST(100, GREATEST(-100, trust_level + $3)), updated_at = now()
		 WHERE empire_a = $1 AND empire_b = $2
		 RETURNING trust_level`,
		ea, eb, delta,
	).Scan(&trust)
	if err != nil {
		return 0, fmt.Errorf("adjust trust: %w", err)
	}
	return trust, nil
}

const proposalColumns = `id, initiator_id, target_id, proposal_type, terms, status, counter_terms, expires_at, responded_at, created_at, updated_at`

func scanProposal(row interface{ Scan(...any) error }) (*model.DiplomaticProposal, error) {
	var p model.DiplomaticProposal
	var terms, counter []byte
	err := row.Scan(&p.ID, &p.InitiatorID, &p.TargetID, &p.Type, &terms, &p.Status,
		&counter, &p.ExpiresAt, &p.RespondedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(terms) > 0 {
		p.Terms = json.RawMessage(terms)
	}
	if len(counter) > 0 {
		p.CounterTerms = json.RawMessage(counter)
	}
	return &p, nil
}

// CreateProposal inserts a pending proposal unless the pair already has a
// pending one of the same type in either direction.
func (r *DiplomacyRepo) CreateProposal(ctx context.Context, p *model.DiplomaticProposal) (*model.DiplomaticProposal, error) {
	var terms []byte
	if len(p.Terms) > 0 {
		terms = p.Terms
	}
	created, err := scanProposal(r.db.QueryRowContext(ctx,
		`INSERT INTO diplomatic_proposals (id, initiator_id, target_id, proposal_type, terms, expires_at)
		 SELECT $1, $2, $3, $4, $5, $6
		 WHERE NOT EXISTS (
		     SELECT 1 FROM diplomatic_proposals
		     WHERE proposal_type = $4 AND status = 'pending'
		       AND ((initiator_id = $2 AND target_id = $3) OR (initiator_id = $3 AND target_id = $2))
		 )
		 RETURNING `+proposalColumns,
		uuid.NewString(), p.InitiatorID, p.TargetID, p.Type, terms, p.ExpiresAt))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pending %s proposal already exists for pair: %w", p.Type, repository.ErrStateConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("create proposal: %w", err)
	}
	return created, nil
}

// FindProposal returns a proposal by ID.
func (r *DiplomacyRepo) FindProposal(ctx context.Context, id string) (*model.DiplomaticProposal, error) {
	p, err := scanProposal(r.db.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM diplomatic_proposals WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find proposal: %w", err)
	}
	return p, nil
}

// ListProposalsFor returns pending proposals the empire sent or received.
func (r *DiplomacyRepo) ListProposalsFor(ctx context.Context, empireID string) ([]model.DiplomaticProposal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+proposalColumns+` FROM diplomatic_proposals
		 WHERE status = 'pending' AND (initiator_id = $1 OR target_id = $1)
		 ORDER BY created_at DESC`, empireID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []model.DiplomaticProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

// AcceptProposal transitions a pending proposal to accepted, materializes the
// agreement, and applies the trust bonus, all in one transaction. A proposal
// past its deadline is expired instead and the accept fails with
// ErrStateConflict.
func (r *DiplomacyRepo) AcceptProposal(ctx context.Context, id string, agreement *model.Agreement, trustDelta int) (*model.Agreement, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := r.transitionProposal(ctx, tx, id, model.ProposalAccepted); err != nil {
		return nil, err
	}
	created, err := insertAgreement(ctx, tx, agreement)
	if err != nil {
		return nil, err
	}
	if err := adjustTrustInTx(ctx, tx, agreement.EmpireA, agreement.EmpireB, trustDelta); err != nil {
		return nil, err
	}
	return created, tx.Commit()
}

// RejectProposal transitions a pending proposal to rejected and applies the
// trust penalty.
func (r *DiplomacyRepo) RejectProposal(ctx context.Context, id string, trustDelta int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := r.transitionProposal(ctx, tx, id, model.ProposalRejected); err != nil {
		return err
	}
	var initiator, target string
	err = tx.QueryRowContext(ctx,
		`SELECT initiator_id, target_id FROM diplomatic_proposals WHERE id = $1`, id,
	).Scan(&initiator, &target)
	if err != nil {
		return fmt.Errorf("load proposal parties: %w", err)
	}
	if err := adjustTrustInTx(ctx, tx, initiator, target, trustDelta); err != nil {
		return err
	}
	return tx.Commit()
}

// CounterProposal records counter-terms on a pending proposal and marks it
// countered. The initiator can then submit a fresh proposal with the new
// terms.
func (r *DiplomacyRepo) CounterProposal(ctx context.Context, id string, counterTerms json.RawMessage) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE diplomatic_proposals
		 SET status = 'countered', counter_terms = $2, responded_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'pending' AND expires_at > now()`,
		id, []byte(counterTerms))
	if err != nil {
		return fmt.Errorf("counter proposal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("proposal %s not pending: %w", id, repository.ErrStateConflict)
	}
	return nil
}

// transitionProposal moves id from pending to status inside tx, expiring it
// first when the deadline has passed.
func (r *DiplomacyRepo) transitionProposal(ctx context.Context, tx *sql.Tx, id, status string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE diplomatic_proposals
		 SET status = 'expired', updated_at = now()
		 WHERE id = $1 AND status = 'pending' AND expires_at <= now()`, id)
	if err != nil {
		return fmt.Errorf("expire proposal: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE diplomatic_proposals
		 SET status = $2, responded_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'pending'`,
		id, status)
	if err != nil {
		return fmt.Errorf("transition proposal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("proposal %s not pending: %w", id, repository.ErrStateConflict)
	}
	return nil
}

const agreementColumns = `id, kind, empire_a, empire_b, terms, status, effective_at, expires_at, created_at, updated_at`

func scanAgreement(row interface{ Scan(...any) error }) (*model.Agreement, error) {
	var a model.Agreement
	var terms []byte
	err := row.Scan(&a.ID, &a.Kind, &a.EmpireA, &a.EmpireB, &terms, &a.Status,
		&a.EffectiveAt, &a.ExpiresAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(terms) > 0 {
		a.Terms = json.RawMessage(terms)
	}
	return &a, nil
}

func insertAgreement(ctx context.Context, tx *sql.Tx, a *model.Agreement) (*model.Agreement, error) {
	ea, eb := diplomacy.CanonicalPair(a.EmpireA, a.EmpireB)
	var terms []byte
	if len(a.Terms) > 0 {
		terms = a.Terms
	}
	created, err := scanAgreement(tx.QueryRowContext(ctx,
		`INSERT INTO agreements (id, kind, empire_a, empire_b, terms, effective_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+agreementColumns,
		uuid.NewString(), a.Kind, ea, eb, terms, a.EffectiveAt, a.ExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("create agreement: %w", err)
	}
	return created, nil
}

// ListActiveAgreementsBetween returns the pair's unexpired active agreements.
func (r *DiplomacyRepo) ListActiveAgreementsBetween(ctx context.Context, a, b string) ([]model.Agreement, error) {
	ea, eb := diplomacy.CanonicalPair(a, b)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+agreementColumns+` FROM agreements
		 WHERE empire_a = $1 AND empire_b = $2 AND status = 'active' AND expires_at > now()
		 ORDER BY created_at`, ea, eb)
	if err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	defer rows.Close()

	var agreements []model.Agreement
	for rows.Next() {
		ag, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agreement: %w", err)
		}
		agreements = append(agreements, *ag)
	}
	return agreements, rows.Err()
}

// HasActiveAgreement reports whether the pair holds an unexpired active
// agreement of the given kind.
func (r *DiplomacyRepo) HasActiveAgreement(ctx context.Context, a, b, kind string) (bool, error) {
	ea, eb := diplomacy.CanonicalPair(a, b)
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM agreements
		     WHERE empire_a = $1 AND empire_b = $2 AND kind = $3
		       AND status = 'active' AND expires_at > now()
		 )`, ea, eb, kind,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check agreement: %w", err)
	}
	return exists, nil
}

// ExpireDue sweeps overdue proposals and agreements and cancels trade routes
// whose agreement lapsed. Returns the number of rows it touched.
func (r *DiplomacyRepo) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	total := 0
	res, err := tx.ExecContext(ctx,
		`UPDATE diplomatic_proposals SET status = 'expired', updated_at = now()
		 WHERE status = 'pending' AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire proposals: %w", err)
	}
	n, _ := res.RowsAffected()
	total += int(n)

	res, err = tx.ExecContext(ctx,
		`UPDATE agreements SET status = 'expired', updated_at = now()
		 WHERE status = 'active' AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire agreements: %w", err)
	}
	n, _ = res.RowsAffected()
	total += int(n)

	res, err = tx.ExecContext(ctx,
		`UPDATE trade_routes SET status = 'cancelled', updated_at = now()
		 WHERE status = 'active'
		   AND agreement_id IN (SELECT id FROM agreements WHERE status != 'active')`)
	if err != nil {
		return 0, fmt.Errorf("cancel orphaned routes: %w", err)
	}
	n, _ = res.RowsAffected()
	total += int(n)

	return total, tx.Commit()
}

// adjustTrustInTx clamps and applies a trust delta inside tx, creating the
// relation row on first contact.
func adjustTrustInTx(ctx context.Context, tx *sql.Tx, a, b string, delta int) error {
	ea, eb := diplomacy.CanonicalPair(a, b)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO diplomatic_relations (id, empire_a, empire_b)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (empire_a, empire_b) DO NOTHING`,
		uuid.NewString(), ea, eb)
	if err != nil {
		return fmt.Errorf("ensure relation: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE diplomatic_relations
		 SET trust_level = LEAST(100, GREATEST(-100, trust_level + $3)), updated_at = now()
		 WHERE empire_a = $1 AND empire_b = $2`,
		ea, eb, delta)
	if err != nil {
		return fmt.Errorf("adjust trust: %w", err)
	}
	return nil
}
