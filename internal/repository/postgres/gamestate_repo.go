package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
)

// GameStateRepo manages the singleton turn row (id = 1).
type GameStateRepo struct {
	db *sql.DB
}

// NewGameStateRepo creates a GameStateRepo.
func NewGameStateRepo(db *sql.DB) *GameStateRepo {
	return &GameStateRepo{db: db}
}

const gameStateColumns = `turn_number, start_time, end_time, is_processing, updated_at`

func scanGameState(row interface{ Scan(...any) error }) (*model.GameState, error) {
	var gs model.GameState
	err := row.Scan(&gs.TurnNumber, &gs.StartTime, &gs.EndTime, &gs.IsProcessing, &gs.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &gs, nil
}

// Get returns the current game state, or nil before initialization.
func (r *GameStateRepo) Get(ctx context.Context) (*model.GameState, error) {
	gs, err := scanGameState(r.db.QueryRowContext(ctx,
		`SELECT `+gameStateColumns+` FROM game_state WHERE id = 1`))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get game state: %w", err)
	}
	return gs, nil
}

// Initialize creates the singleton row. A second initialization fails with
// ErrStateConflict.
func (r *GameStateRepo) Initialize(ctx context.Context, turn int, start, end time.Time) (*model.GameState, error) {
	gs, err := scanGameState(r.db.QueryRowContext(ctx,
		`INSERT INTO game_state (id, turn_number, start_time, end_time)
		 VALUES (1, $1, $2, $3)
		 RETURNING `+gameStateColumns,
		turn, start, end))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("game already initialized: %w", repository.ErrStateConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize game state: %w", err)
	}
	return gs, nil
}

// BeginProcessing claims the turn for advancement. Exactly one caller wins;
// the rest fail with ErrAlreadyProcessing until the flag clears.
func (r *GameStateRepo) BeginProcessing(ctx context.Context) (*model.GameState, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	gs, err := scanGameState(tx.QueryRowContext(ctx,
		`SELECT `+gameStateColumns+` FROM game_state WHERE id = 1 FOR UPDATE`))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("game not initialized: %w", repository.ErrStateConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("lock game state: %w", err)
	}
	if gs.IsProcessing {
		return nil, repository.ErrAlreadyProcessing
	}

	claimed, err := scanGameState(tx.QueryRowContext(ctx,
		`UPDATE game_state SET is_processing = true, updated_at = now()
		 WHERE id = 1
		 RETURNING `+gameStateColumns))
	if err != nil {
		return nil, fmt.Errorf("claim processing: %w", err)
	}
	return claimed, tx.Commit()
}

// CompleteTurn advances to newTurn with its window and clears the
// processing flag.
func (r *GameStateRepo) CompleteTurn(ctx context.Context, newTurn int, start, end time.Time) (*model.GameState, error) {
	gs, err := scanGameState(r.db.QueryRowContext(ctx,
		`UPDATE game_state
		 SET turn_number = $1, start_time = $2, end_time = $3, is_processing = false, updated_at = now()
		 WHERE id = 1
		 RETURNING `+gameStateColumns,
		newTurn, start, end))
	if err != nil {
		return nil, fmt.Errorf("complete turn: %w", err)
	}
	return gs, nil
}

// ClearProcessing drops a stuck processing flag, for operator recovery after
// a crash mid-advancement.
func (r *GameStateRepo) ClearProcessing(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE game_state SET is_processing = false, updated_at = now() WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("clear processing: %w", err)
	}
	return nil
}
