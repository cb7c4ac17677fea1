package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
)

// LedgerRepo handles action point accounting. Spends are two-phase: Reserve
// holds points against the (player, turn) ledger row, Commit converts the
// hold into a logged action, Release or the expiry sweep returns it.
type LedgerRepo struct {
	db *sql.DB
}

// NewLedgerRepo creates a LedgerRepo.
func NewLedgerRepo(db *sql.DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

const ledgerColumns = `player_id, turn_number, points_available, points_used, last_action, last_action_time, created_at, updated_at`

func scanLedger(row interface{ Scan(...any) error }) (*model.ActionPointLedger, error) {
	var l model.ActionPointLedger
	var lastAction sql.NullString
	err := row.Scan(&l.PlayerID, &l.TurnNumber, &l.PointsAvailable, &l.PointsUsed,
		&lastAction, &l.LastActionTime, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.LastAction = lastAction.String
	return &l, nil
}

// Allocate creates the ledger row for (player, turn) with the turn's point
// grant. Re-allocating an existing row is a no-op, so the turn pipeline can
// call it idempotently.
func (r *LedgerRepo) Allocate(ctx context.Context, playerID string, turn, points int) (*model.ActionPointLedger, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO action_point_ledger (player_id, turn_number, points_available)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (player_id, turn_number) DO NOTHING`,
		playerID, turn, points)
	if err != nil {
		return nil, fmt.Errorf("allocate points: %w", err)
	}
	l, err := scanLedger(r.db.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM action_point_ledger
		 WHERE player_id = $1 AND turn_number = $2`, playerID, turn))
	if err != nil {
		return nil, fmt.Errorf("get ledger: %w", err)
	}
	return l, nil
}

// Get returns the ledger row for (player, turn), or nil when none exists.
func (r *LedgerRepo) Get(ctx context.Context, playerID string, turn int) (*model.ActionPointLedger, error) {
	l, err := scanLedger(r.db.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM action_point_ledger
		 WHERE player_id = $1 AND turn_number = $2`, playerID, turn))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger: %w", err)
	}
	return l, nil
}

// Available returns spendable points for (player, turn): the grant minus
// committed spends minus live reservations.
func (r *LedgerRepo) Available(ctx context.Context, playerID string, turn int) (int, error) {
	var available int
	err := r.db.QueryRowContext(ctx,
		`SELECT l.points_available - l.points_used - COALESCE((
		     SELECT SUM(reserved_points) FROM action_point_reservations
		     WHERE player_id = $1 AND turn_number = $2 AND expires_at > now()
		 ), 0)
		 FROM action_point_ledger l
		 WHERE l.player_id = $1 AND l.turn_number = $2`,
		playerID, turn,
	).Scan(&available)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("available points: %w", err)
	}
	return available, nil
}

// Reserve holds points for one action. The ledger row is locked so two
// concurrent reservations cannot both see the same balance; a short TTL
// bounds how long an abandoned hold can pin points.
func (r *LedgerRepo) Reserve(ctx context.Context, playerID string, turn, points int, actionType string, ttl time.Duration) (*model.ActionPointReservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var granted, used int
	err = tx.QueryRowContext(ctx,
		`SELECT points_available, points_used FROM action_point_ledger
		 WHERE player_id = $1 AND turn_number = $2
		 FOR UPDATE`, playerID, turn,
	).Scan(&granted, &used)
	if err == sql.ErrNoRows {
		return nil, &repository.InsufficientPointsError{Required: points, Available: 0}
	}
	if err != nil {
		return nil, fmt.Errorf("lock ledger: %w", err)
	}

	var reserved int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(reserved_points), 0) FROM action_point_reservations
		 WHERE player_id = $1 AND turn_number = $2 AND expires_at > now()`,
		playerID, turn,
	).Scan(&reserved)
	if err != nil {
		return nil, fmt.Errorf("sum reservations: %w", err)
	}

	available := granted - used - reserved
	if available < points {
		return nil, &repository.InsufficientPointsError{Required: points, Available: available}
	}

	var res model.ActionPointReservation
	err = tx.QueryRowContext(ctx,
		`INSERT INTO action_point_reservations (id, player_id, turn_number, reserved_points, action_type, expires_at)
		 VALUES ($1, $2, $3, $4, $5, now() + $6 * interval '1 second')
		 RETURNING id, player_id, turn_number, reserved_points, action_type, created_at, expires_at`,
		uuid.NewString(), playerID, turn, points, actionType, int(ttl.Seconds()),
	).Scan(&res.ID, &res.PlayerID, &res.TurnNumber, &res.ReservedPoints, &res.ActionType, &res.CreatedAt, &res.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}
	return &res, tx.Commit()
}

// Commit converts a reservation into a committed spend and a player_actions
// log row. A reservation that is gone or past its TTL fails with
// ErrReservationGone.
func (r *LedgerRepo) Commit(ctx context.Context, reservationID string, details json.RawMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var res model.ActionPointReservation
	err = tx.QueryRowContext(ctx,
		`SELECT id, player_id, turn_number, reserved_points, action_type, created_at, expires_at
		 FROM action_point_reservations
		 WHERE id = $1
		 FOR UPDATE`, reservationID,
	).Scan(&res.ID, &res.PlayerID, &res.TurnNumber, &res.ReservedPoints, &res.ActionType, &res.CreatedAt, &res.ExpiresAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("reservation %s: %w", reservationID, repository.ErrReservationGone)
	}
	if err != nil {
		return fmt.Errorf("lock reservation: %w", err)
	}
	if !res.ExpiresAt.After(time.Now()) {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM action_point_reservations WHERE id = $1`, reservationID); err != nil {
			return fmt.Errorf("drop expired reservation: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("drop expired reservation: %w", err)
		}
		return fmt.Errorf("reservation %s expired: %w", reservationID, repository.ErrReservationGone)
	}

	var detailsArg []byte
	if len(details) > 0 {
		detailsArg = details
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO player_actions (id, player_id, turn_number, action_type, points_spent, details)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), res.PlayerID, res.TurnNumber, res.ActionType, res.ReservedPoints, detailsArg)
	if err != nil {
		return fmt.Errorf("log action: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE action_point_ledger
		 SET points_used = points_used + $3, last_action = $4, last_action_time = now(), updated_at = now()
		 WHERE player_id = $1 AND turn_number = $2`,
		res.PlayerID, res.TurnNumber, res.ReservedPoints, res.ActionType)
	if err != nil {
		return fmt.Errorf("commit spend: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM action_point_reservations WHERE id = $1`, reservationID)
	if err != nil {
		return fmt.Errorf("consume reservation: %w", err)
	}
	return tx.Commit()
}

// Release drops a reservation without spending it. Releasing a reservation
// that already expired or committed is a no-op.
func (r *LedgerRepo) Release(ctx context.Context, reservationID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM action_point_reservations WHERE id = $1`, reservationID)
	if err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	return nil
}

// SweepExpired deletes reservations past their TTL, returning held points to
// their ledgers.
func (r *LedgerRepo) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM action_point_reservations WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep reservations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep reservations: %w", err)
	}
	return int(n), nil
}

// DeleteOlderThan garbage-collects ledger and reservation rows from turns
// before beforeTurn. The player_actions log is kept.
func (r *LedgerRepo) DeleteOlderThan(ctx context.Context, beforeTurn int) (int, error) {
	total := 0
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM action_point_reservations WHERE turn_number < $1`, beforeTurn)
	if err != nil {
		return 0, fmt.Errorf("gc reservations: %w", err)
	}
	n, _ := res.RowsAffected()
	total += int(n)

	res, err = r.db.ExecContext(ctx,
		`DELETE FROM action_point_ledger WHERE turn_number < $1`, beforeTurn)
	if err != nil {
		return 0, fmt.Errorf("gc ledger: %w", err)
	}
	n, _ = res.RowsAffected()
	total += int(n)
	return total, nil
}

// LastActionAt returns when the player last committed any of the given
// action types, or nil if they never have.
func (r *LedgerRepo) LastActionAt(ctx context.Context, playerID string, actionTypes []string) (*time.Time, error) {
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM player_actions
		 WHERE player_id = $1 AND action_type = ANY($2)`,
		playerID, pq.Array(actionTypes),
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("last action: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}
