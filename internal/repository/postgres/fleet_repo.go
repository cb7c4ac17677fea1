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
	"github.com/freeholdgames/stellar-dominion/pkg/combat"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// FleetRepo handles fleet database operations.
type FleetRepo struct {
	db *sql.DB
}

// NewFleetRepo creates a FleetRepo.
func NewFleetRepo(db *sql.DB) *FleetRepo {
	return &FleetRepo{db: db}
}

const fleetColumns = `id, empire_id, name, sector, status, composition, experience, morale, destination_sector, arrival_time, last_combat, created_at, updated_at`

func scanFleet(row interface{ Scan(...any) error }) (*model.Fleet, error) {
	var f model.Fleet
	var dest sql.NullString
	var comp []byte
	err := row.Scan(&f.ID, &f.EmpireID, &f.Name, &f.Sector, &f.Status, &comp,
		&f.Experience, &f.Morale, &dest, &f.ArrivalTime, &f.LastCombat, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.DestinationSector = dest.String
	if err := json.Unmarshal(comp, &f.Composition); err != nil {
		return nil, fmt.Errorf("decode composition: %w", err)
	}
	return &f, nil
}

// CreateWithCost inserts the fleet and charges the empire for its initial
// composition in one transaction.
func (r *FleetRepo) CreateWithCost(ctx context.Context, fleet *model.Fleet, cost economy.Resources) (*model.Fleet, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := spendInTx(ctx, tx, fleet.EmpireID, cost); err != nil {
		return nil, err
	}

	comp, err := json.Marshal(fleet.Composition)
	if err != nil {
		return nil, fmt.Errorf("encode composition: %w", err)
	}
	created, err := scanFleet(tx.QueryRowContext(ctx,
		`INSERT INTO fleets (id, empire_id, name, sector, status, composition, morale)
		 VALUES ($1, $2, $3, $4, 'active', $5, 50)
		 RETURNING `+fleetColumns,
		uuid.NewString(), fleet.EmpireID, fleet.Name, fleet.Sector, comp,
	))
	if err != nil {
		return nil, fmt.Errorf("create fleet: %w", err)
	}
	return created, tx.Commit()
}

// FindByID returns a fleet by ID.
func (r *FleetRepo) FindByID(ctx context.Context, id string) (*model.Fleet, error) {
	f, err := scanFleet(r.db.QueryRowContext(ctx,
		`SELECT `+fleetColumns+` FROM fleets WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find fleet: %w", err)
	}
	return f, nil
}

// ListByEmpire returns every non-destroyed fleet of an empire.
func (r *FleetRepo) ListByEmpire(ctx context.Context, empireID string) ([]model.Fleet, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+fleetColumns+` FROM fleets
		 WHERE empire_id = $1 AND status != 'destroyed'
		 ORDER BY created_at`, empireID)
	if err != nil {
		return nil, fmt.Errorf("list fleets: %w", err)
	}
	defer rows.Close()

	var fleets []model.Fleet
	for rows.Next() {
		f, err := scanFleet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fleet: %w", err)
		}
		fleets = append(fleets, *f)
	}
	return fleets, rows.Err()
}

// CountByEmpire counts an empire's non-destroyed fleets.
func (r *FleetRepo) CountByEmpire(ctx context.Context, empireID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fleets WHERE empire_id = $1 AND status != 'destroyed'`,
		empireID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count fleets: %w", err)
	}
	return count, nil
}

// PurchaseComposition replaces the composition of an active fleet and settles
// the net cost. Negative components credit scrap refunds through the same
// guarded update.
func (r *FleetRepo) PurchaseComposition(ctx context.Context, fleetID, empireID string, netCost economy.Resources, comp combat.Composition) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	encoded, err := json.Marshal(comp)
	if err != nil {
		return fmt.Errorf("encode composition: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE fleets SET composition = $3, updated_at = now()
		 WHERE id = $1 AND empire_id = $2 AND status = 'active'`,
		fleetID, empireID, encoded,
	)
	if err != nil {
		return fmt.Errorf("update composition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("fleet %s not active: %w", fleetID, repository.ErrStateConflict)
	}

	if err := spendInTx(ctx, tx, empireID, netCost); err != nil {
		return err
	}
	return tx.Commit()
}

// SetMovement marks an active fleet as moving toward destination.
func (r *FleetRepo) SetMovement(ctx context.Context, id, destination string, arrival time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE fleets
		 SET status = 'moving', destination_sector = $2, arrival_time = $3, updated_at = now()
		 WHERE id = $1 AND status = 'active'`,
		id, destination, arrival,
	)
	if err != nil {
		return fmt.Errorf("set movement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("fleet %s not active: %w", id, repository.ErrStateConflict)
	}
	return nil
}

// ArriveDueFleets lands every moving fleet whose arrival time has passed.
func (r *FleetRepo) ArriveDueFleets(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE fleets
		 SET sector = destination_sector, status = 'active',
		     destination_sector = NULL, arrival_time = NULL, updated_at = now()
		 WHERE status = 'moving' AND arrival_time <= $1`, now,
	)
	if err != nil {
		return 0, fmt.Errorf("arrive fleets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("arrive fleets: %w", err)
	}
	return int(n), nil
}

// SetStatus rewrites a fleet's status.
func (r *FleetRepo) SetStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE fleets SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("set fleet status: %w", err)
	}
	return nil
}
