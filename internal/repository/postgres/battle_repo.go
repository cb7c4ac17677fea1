package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
)

// BattleRepo handles battle database operations. Combat mutates two fleet
// rows and a battle row together, so resolution runs inside repo
// transactions with the fleet rows locked first.
type BattleRepo struct {
	db *sql.DB
}

// NewBattleRepo creates a BattleRepo.
func NewBattleRepo(db *sql.DB) *BattleRepo {
	return &BattleRepo{db: db}
}

const battleColumns = `id, attacker_empire_id, attacker_fleet_id, defender_empire_id, defender_fleet_id, sector, status, surprise_attack, result, winner, rounds, report, resolved_at, created_at`

func scanBattle(row interface{ Scan(...any) error }) (*model.Battle, error) {
	var b model.Battle
	var result, winner sql.NullString
	var report []byte
	err := row.Scan(&b.ID, &b.AttackerEmpire, &b.AttackerFleetID, &b.DefenderEmpire, &b.DefenderFleetID,
		&b.Sector, &b.Status, &b.SurpriseAttack, &result, &winner, &b.Rounds, &report, &b.ResolvedAt, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.Result = result.String
	b.Winner = winner.String
	if len(report) > 0 {
		b.Report = json.RawMessage(report)
	}
	return &b, nil
}

// ExecuteCombat locks both fleets, runs the fight callback against the locked
// rows, and persists the returned battle and fleet states atomically. Any
// error from the callback rolls the whole engagement back.
func (r *BattleRepo) ExecuteCombat(ctx context.Context, attackerFleetID, defenderFleetID string, fight repository.CombatTx) (*model.Battle, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	attacker, defender, err := lockFleetPair(ctx, tx, attackerFleetID, defenderFleetID)
	if err != nil {
		return nil, err
	}

	battle, updatedAttacker, updatedDefender, err := fight(*attacker, *defender)
	if err != nil {
		return nil, err
	}
	if err := updateCombatFleet(ctx, tx, updatedAttacker); err != nil {
		return nil, err
	}
	if err := updateCombatFleet(ctx, tx, updatedDefender); err != nil {
		return nil, err
	}
	created, err := insertBattle(ctx, tx, battle)
	if err != nil {
		return nil, err
	}
	return created, tx.Commit()
}

// CreatePending records a deferred engagement and moves both fleets to
// in_combat so neither can act until the battle resolves.
func (r *BattleRepo) CreatePending(ctx context.Context, b *model.Battle) (*model.Battle, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, fleetID := range orderedPair(b.AttackerFleetID, b.DefenderFleetID) {
		res, err := tx.ExecContext(ctx,
			`UPDATE fleets SET status = 'in_combat', updated_at = now()
			 WHERE id = $1 AND status = 'active'`, fleetID)
		if err != nil {
			return nil, fmt.Errorf("engage fleet %s: %w", fleetID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("fleet %s not active: %w", fleetID, repository.ErrStateConflict)
		}
	}

	b.Status = model.BattlePending
	created, err := insertBattle(ctx, tx, b)
	if err != nil {
		return nil, err
	}
	return created, tx.Commit()
}

// ResolvePending locks a pending battle and its fleets, runs the fight
// callback, and persists the outcome. A battle that is missing or already
// resolved fails with ErrStateConflict.
func (r *BattleRepo) ResolvePending(ctx context.Context, battleID string, fight repository.PendingCombatTx) (*model.Battle, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	b, err := scanBattle(tx.QueryRowContext(ctx,
		`SELECT `+battleColumns+` FROM battles WHERE id = $1 FOR UPDATE`, battleID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("battle %s not found: %w", battleID, repository.ErrStateConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("lock battle: %w", err)
	}
	if b.Status != model.BattlePending {
		return nil, fmt.Errorf("battle %s already %s: %w", battleID, b.Status, repository.ErrStateConflict)
	}

	attacker, defender, err := lockFleetPair(ctx, tx, b.AttackerFleetID, b.DefenderFleetID)
	if err != nil {
		return nil, err
	}

	resolved, updatedAttacker, updatedDefender, err := fight(*b, *attacker, *defender)
	if err != nil {
		return nil, err
	}
	if err := updateCombatFleet(ctx, tx, updatedAttacker); err != nil {
		return nil, err
	}
	if err := updateCombatFleet(ctx, tx, updatedDefender); err != nil {
		return nil, err
	}

	var report []byte
	if len(resolved.Report) > 0 {
		report = resolved.Report
	}
	updated, err := scanBattle(tx.QueryRowContext(ctx,
		`UPDATE battles
		 SET status = $2, result = $3, winner = $4, rounds = $5, report = $6, resolved_at = now()
		 WHERE id = $1
		 RETURNING `+battleColumns,
		battleID, resolved.Status, nullStr(resolved.Result), nullStr(resolved.Winner), resolved.Rounds, report))
	if err != nil {
		return nil, fmt.Errorf("resolve battle: %w", err)
	}
	return updated, tx.Commit()
}

// FindByID returns a battle by ID.
func (r *BattleRepo) FindByID(ctx context.Context, id string) (*model.Battle, error) {
	b, err := scanBattle(r.db.QueryRowContext(ctx,
		`SELECT `+battleColumns+` FROM battles WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find battle: %w", err)
	}
	return b, nil
}

// ListByEmpire returns battles the empire fought on either side, newest first.
func (r *BattleRepo) ListByEmpire(ctx context.Context, empireID string) ([]model.Battle, error) {
	return r.list(ctx,
		`SELECT `+battleColumns+` FROM battles
		 WHERE attacker_empire_id = $1 OR defender_empire_id = $1
		 ORDER BY created_at DESC`, empireID)
}

// ListPending returns unresolved battles, oldest first.
func (r *BattleRepo) ListPending(ctx context.Context) ([]model.Battle, error) {
	return r.list(ctx,
		`SELECT `+battleColumns+` FROM battles WHERE status = 'pending' ORDER BY created_at`)
}

func (r *BattleRepo) list(ctx context.Context, query string, args ...any) ([]model.Battle, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list battles: %w", err)
	}
	defer rows.Close()

	var battles []model.Battle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan battle: %w", err)
		}
		battles = append(battles, *b)
	}
	return battles, rows.Err()
}

func insertBattle(ctx context.Context, tx *sql.Tx, b *model.Battle) (*model.Battle, error) {
	var report []byte
	if len(b.Report) > 0 {
		report = b.Report
	}
	created, err := scanBattle(tx.QueryRowContext(ctx,
		`INSERT INTO battles (id, attacker_empire_id, attacker_fleet_id, defender_empire_id, defender_fleet_id,
		                      sector, status, surprise_attack, result, winner, rounds, report, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		         CASE WHEN $7 = 'resolved' THEN now() ELSE NULL END)
		 RETURNING `+battleColumns,
		uuid.NewString(), b.AttackerEmpire, b.AttackerFleetID, b.DefenderEmpire, b.DefenderFleetID,
		b.Sector, b.Status, b.SurpriseAttack, nullStr(b.Result), nullStr(b.Winner), b.Rounds, report))
	if err != nil {
		return nil, fmt.Errorf("create battle: %w", err)
	}
	return created, nil
}

func lockFleet(ctx context.Context, tx *sql.Tx, id string) (*model.Fleet, error) {
	f, err := scanFleet(tx.QueryRowContext(ctx,
		`SELECT `+fleetColumns+` FROM fleets WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("fleet %s not found: %w", id, repository.ErrStateConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("lock fleet: %w", err)
	}
	return f, nil
}

// lockFleetPair locks both fleets in id order so concurrent engagements over
// the same pair cannot deadlock.
func lockFleetPair(ctx context.Context, tx *sql.Tx, firstID, secondID string) (first, second *model.Fleet, err error) {
	byID := make(map[string]*model.Fleet, 2)
	for _, id := range orderedPair(firstID, secondID) {
		f, err := lockFleet(ctx, tx, id)
		if err != nil {
			return nil, nil, err
		}
		byID[id] = f
	}
	return byID[firstID], byID[secondID], nil
}

func orderedPair(a, b string) [2]string {
	if a > b {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}

func updateCombatFleet(ctx context.Context, tx *sql.Tx, f *model.Fleet) error {
	comp, err := json.Marshal(f.Composition)
	if err != nil {
		return fmt.Errorf("encode composition: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE fleets
		 SET composition = $2, status = $3, experience = $4, morale = $5,
		     last_combat = now(), updated_at = now()
		 WHERE id = $1`,
		f.ID, comp, f.Status, f.Experience, f.Morale)
	if err != nil {
		return fmt.Errorf("update fleet %s: %w", f.ID, err)
	}
	return nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
