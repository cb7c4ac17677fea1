package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
)

// PlayerRepo handles player account database operations.
type PlayerRepo struct {
	db *sql.DB
}

// NewPlayerRepo creates a PlayerRepo.
func NewPlayerRepo(db *sql.DB) *PlayerRepo {
	return &PlayerRepo{db: db}
}

const playerColumns = `id, username, password_hash, display_name, bio, is_admin, is_moderator, is_active, settings, created_at, updated_at`

func scanPlayer(row interface{ Scan(...any) error }) (*model.Player, error) {
	var p model.Player
	err := row.Scan(&p.ID, &p.Username, &p.PasswordHash, &p.DisplayName, &p.Bio,
		&p.IsAdmin, &p.IsModerator, &p.IsActive, &p.Settings, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new player account. A taken username fails with
// repository.ErrStateConflict.
func (r *PlayerRepo) Create(ctx context.Context, username, passwordHash, displayName string) (*model.Player, error) {
	p, err := scanPlayer(r.db.QueryRowContext(ctx,
		`INSERT INTO players (id, username, password_hash, display_name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+playerColumns,
		uuid.NewString(), username, passwordHash, displayName,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("username %q taken: %w", username, repository.ErrStateConflict)
		}
		return nil, fmt.Errorf("create player: %w", err)
	}
	return p, nil
}

// FindByID looks up a player by their UUID.
func (r *PlayerRepo) FindByID(ctx context.Context, id string) (*model.Player, error) {
	p, err := scanPlayer(r.db.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find player by id: %w", err)
	}
	return p, nil
}

// FindByUsername looks up a player by username.
func (r *PlayerRepo) FindByUsername(ctx context.Context, username string) (*model.Player, error) {
	p, err := scanPlayer(r.db.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE username = $1`, username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find player by username: %w", err)
	}
	return p, nil
}

// UpdatePassword replaces the stored password hash.
func (r *PlayerRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE players SET password_hash = $1, updated_at = now() WHERE id = $2`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// Count returns the number of registered players.
func (r *PlayerRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count players: %w", err)
	}
	return count, nil
}
