package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// EmpireRepo handles empire database operations. Resource components live in
// dedicated integer columns so spends and credits are single guarded updates.
type EmpireRepo struct {
	db *sql.DB
}

// NewEmpireRepo creates an EmpireRepo.
func NewEmpireRepo(db *sql.DB) *EmpireRepo {
	return &EmpireRepo{db: db}
}

const empireColumns = `id, player_id, name, metal, energy, food, research, tech_levels, last_resource_update, created_at, updated_at`

func scanEmpire(row interface{ Scan(...any) error }) (*model.Empire, error) {
	var e model.Empire
	var tech []byte
	err := row.Scan(&e.ID, &e.PlayerID, &e.Name,
		&e.Resources.Metal, &e.Resources.Energy, &e.Resources.Food, &e.Resources.Research,
		&tech, &e.LastResourceUpdate, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tech, &e.TechLevels); err != nil {
		return nil, fmt.Errorf("decode tech levels: %w", err)
	}
	return &e, nil
}

// Create inserts a new empire with its starting stockpile.
func (r *EmpireRepo) Create(ctx context.Context, playerID, name string, starting economy.Resources) (*model.Empire, error) {
	e, err := scanEmpire(r.db.QueryRowContext(ctx,
		`INSERT INTO empires (id, player_id, name, metal, energy, food, research)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+empireColumns,
		uuid.NewString(), playerID, name, starting.Metal, starting.Energy, starting.Food, starting.Research,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("player %s already has an empire: %w", playerID, repository.ErrStateConflict)
		}
		return nil, fmt.Errorf("create empire: %w", err)
	}
	return e, nil
}

// FindByID returns an empire by ID.
func (r *EmpireRepo) FindByID(ctx context.Context, id string) (*model.Empire, error) {
	e, err := scanEmpire(r.db.QueryRowContext(ctx,
		`SELECT `+empireColumns+` FROM empires WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find empire: %w", err)
	}
	return e, nil
}

// FindByPlayerID returns the empire owned by a player.
func (r *EmpireRepo) FindByPlayerID(ctx context.Context, playerID string) (*model.Empire, error) {
	e, err := scanEmpire(r.db.QueryRowContext(ctx,
		`SELECT `+empireColumns+` FROM empires WHERE player_id = $1`, playerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find empire by player: %w", err)
	}
	return e, nil
}

// List returns all empires, oldest first. Used by the turn pipeline and the
// leaderboard.
func (r *EmpireRepo) List(ctx context.Context) ([]model.Empire, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+empireColumns+` FROM empires ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list empires: %w", err)
	}
	defer rows.Close()

	var empires []model.Empire
	for rows.Next() {
		e, err := scanEmpire(rows)
		if err != nil {
			return nil, fmt.Errorf("scan empire: %w", err)
		}
		empires = append(empires, *e)
	}
	return empires, rows.Err()
}

// Rename updates the empire name.
func (r *EmpireRepo) Rename(ctx context.Context, id, name string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE empires SET name = $1, updated_at = now() WHERE id = $2`,
		name, id,
	)
	if err != nil {
		return fmt.Errorf("rename empire: %w", err)
	}
	return nil
}

// SpendResources atomically deducts cost, failing with
// repository.ErrInsufficientResources when any component falls short.
// Negative components act as credits and never block the guard.
func (r *EmpireRepo) SpendResources(ctx context.Context, id string, cost economy.Resources) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE empires
		 SET metal = metal - $2, energy = energy - $3, food = food - $4, research = research - $5, updated_at = now()
		 WHERE id = $1 AND metal >= $2 AND energy >= $3 AND food >= $4 AND research >= $5`,
		id, cost.Metal, cost.Energy, cost.Food, cost.Research,
	)
	if err != nil {
		return fmt.Errorf("spend resources: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("spend resources: %w", err)
	}
	if n == 0 {
		return repository.ErrInsufficientResources
	}
	return nil
}

// CreditResources atomically adds delta to the empire's stockpile.
func (r *EmpireRepo) CreditResources(ctx context.Context, id string, delta economy.Resources) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE empires
		 SET metal = metal + $2, energy = energy + $3, food = food + $4, research = research + $5, updated_at = now()
		 WHERE id = $1`,
		id, delta.Metal, delta.Energy, delta.Food, delta.Research,
	)
	if err != nil {
		return fmt.Errorf("credit resources: %w", err)
	}
	return nil
}

// ApplyTurnResources locks the empire row, hands the current state to apply,
// and writes the returned totals stamped with turn. A row already stamped for
// turn is left untouched and reported as (false, nil), which makes the turn
// pipeline idempotent per empire.
func (r *EmpireRepo) ApplyTurnResources(ctx context.Context, id string, turn int, apply func(model.Empire) economy.Resources) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	e, err := scanEmpire(tx.QueryRowContext(ctx,
		`SELECT `+empireColumns+` FROM empires WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("empire %s not found", id)
	}
	if err != nil {
		return false, fmt.Errorf("lock empire: %w", err)
	}
	if e.LastResourceUpdate >= turn {
		return false, nil
	}

	next := apply(*e)
	if _, err := tx.ExecContext(ctx,
		`UPDATE empires
		 SET metal = $2, energy = $3, food = $4, research = $5, last_resource_update = $6, updated_at = now()
		 WHERE id = $1`,
		id, next.Metal, next.Energy, next.Food, next.Research, turn,
	); err != nil {
		return false, fmt.Errorf("apply turn resources: %w", err)
	}
	return true, tx.Commit()
}
