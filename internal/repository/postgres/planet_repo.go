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
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// Colony population milestones.
const (
	populationColonizing = 1000
	populationActive     = 2000
)

// PlanetRepo handles planet database operations.
type PlanetRepo struct {
	db *sql.DB
}

// NewPlanetRepo creates a PlanetRepo.
func NewPlanetRepo(db *sql.DB) *PlanetRepo {
	return &PlanetRepo{db: db}
}

const planetColumns = `id, empire_id, name, planet_type, sector, status, population, buildings, colonizing_fleet_id, colonization_started, colonization_completed, created_at, updated_at`

func scanPlanet(row interface{ Scan(...any) error }) (*model.Planet, error) {
	var p model.Planet
	var empireID, fleetID sql.NullString
	var buildings []byte
	err := row.Scan(&p.ID, &empireID, &p.Name, &p.Type, &p.Sector, &p.Status, &p.Population,
		&buildings, &fleetID, &p.ColonizationStart, &p.ColonizationEnd, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.EmpireID = empireID.String
	p.ColonizingFleetID = fleetID.String
	if err := json.Unmarshal(buildings, &p.Buildings); err != nil {
		return nil, fmt.Errorf("decode buildings: %w", err)
	}
	return &p, nil
}

// FindByID returns a planet by ID.
func (r *PlanetRepo) FindByID(ctx context.Context, id string) (*model.Planet, error) {
	p, err := scanPlanet(r.db.QueryRowContext(ctx,
		`SELECT `+planetColumns+` FROM planets WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find planet: %w", err)
	}
	return p, nil
}

// ListByEmpire returns all planets owned by an empire.
func (r *PlanetRepo) ListByEmpire(ctx context.Context, empireID string) ([]model.Planet, error) {
	return r.list(ctx, `SELECT `+planetColumns+` FROM planets WHERE empire_id = $1 ORDER BY created_at`, empireID)
}

// ListBySector returns every planet in a sector regardless of owner.
func (r *PlanetRepo) ListBySector(ctx context.Context, sector string) ([]model.Planet, error) {
	return r.list(ctx, `SELECT `+planetColumns+` FROM planets WHERE sector = $1 ORDER BY name`, sector)
}

func (r *PlanetRepo) list(ctx context.Context, query string, args ...any) ([]model.Planet, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list planets: %w", err)
	}
	defer rows.Close()

	var planets []model.Planet
	for rows.Next() {
		p, err := scanPlanet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan planet: %w", err)
		}
		planets = append(planets, *p)
	}
	return planets, rows.Err()
}

// CountByEmpire returns how many colonies an empire holds, including ones
// still colonizing.
func (r *PlanetRepo) CountByEmpire(ctx context.Context, empireID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM planets WHERE empire_id = $1`, empireID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count colonies: %w", err)
	}
	return count, nil
}

// ClaimStartingPlanet assigns one free planet in the given sectors to the
// empire as an established colony. SKIP LOCKED keeps concurrent bootstraps
// from fighting over the same row. Returns (nil, nil) when none is free.
func (r *PlanetRepo) ClaimStartingPlanet(ctx context.Context, empireID string, sectors []string) (*model.Planet, error) {
	p, err := scanPlanet(r.db.QueryRowContext(ctx,
		`UPDATE planets
		 SET empire_id = $1, status = 'active', population = $2, updated_at = now()
		 WHERE id = (
			SELECT id FROM planets
			WHERE status = 'available' AND sector = ANY($3)
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+planetColumns,
		empireID, populationActive, pq.Array(sectors),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim starting planet: %w", err)
	}
	return p, nil
}

// CreateSectorPlanets charges the empire the exploration cost and inserts the
// generated planets, unless the sector has already been explored, in which
// case the existing planets come back with charged=false and nothing changes.
// An advisory lock on the sector string serializes concurrent explorations.
func (r *PlanetRepo) CreateSectorPlanets(ctx context.Context, empireID, sector string, cost economy.Resources, planets []model.Planet) ([]model.Planet, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "sector:"+sector); err != nil {
		return nil, false, fmt.Errorf("lock sector: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+planetColumns+` FROM planets WHERE sector = $1 ORDER BY name`, sector)
	if err != nil {
		return nil, false, fmt.Errorf("check sector: %w", err)
	}
	var existing []model.Planet
	for rows.Next() {
		p, err := scanPlanet(rows)
		if err != nil {
			rows.Close()
			return nil, false, fmt.Errorf("scan planet: %w", err)
		}
		existing = append(existing, *p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, false, err
	}
	rows.Close()
	if len(existing) > 0 {
		return existing, false, nil
	}

	if err := spendInTx(ctx, tx, empireID, cost); err != nil {
		return nil, false, err
	}

	created := make([]model.Planet, 0, len(planets))
	for _, p := range planets {
		row, err := scanPlanet(tx.QueryRowContext(ctx,
			`INSERT INTO planets (id, name, planet_type, sector, status)
			 VALUES ($1, $2, $3, $4, 'available')
			 RETURNING `+planetColumns,
			uuid.NewString(), p.Name, p.Type, sector,
		))
		if err != nil {
			return nil, false, fmt.Errorf("insert planet: %w", err)
		}
		created = append(created, *row)
	}
	return created, true, tx.Commit()
}

// StartColonization charges the empire and flips planet and fleet into their
// colonizing states in one transaction.
func (r *PlanetRepo) StartColonization(ctx context.Context, planetID, empireID, fleetID string, cost economy.Resources, completion time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE planets
		 SET empire_id = $2, status = 'colonizing', population = $3, colonizing_fleet_id = $4,
		     colonization_started = now(), colonization_completed = $5, updated_at = now()
		 WHERE id = $1 AND status = 'available'`,
		planetID, empireID, populationColonizing, fleetID, completion,
	)
	if err != nil {
		return fmt.Errorf("mark planet colonizing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("planet %s not available: %w", planetID, repository.ErrStateConflict)
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE fleets SET status = 'colonizing', updated_at = now()
		 WHERE id = $1 AND empire_id = $2 AND status = 'active'`,
		fleetID, empireID,
	)
	if err != nil {
		return fmt.Errorf("mark fleet colonizing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("fleet %s not active: %w", fleetID, repository.ErrStateConflict)
	}

	if err := spendInTx(ctx, tx, empireID, cost); err != nil {
		return err
	}
	return tx.Commit()
}

// CompleteDueColonizations establishes every colonizing planet whose
// completion time has passed and frees its fleet. Returns how many completed.
func (r *PlanetRepo) CompleteDueColonizations(ctx context.Context, now time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, colonizing_fleet_id FROM planets
		 WHERE status = 'colonizing' AND colonization_completed <= $1
		 FOR UPDATE`, now)
	if err != nil {
		return 0, fmt.Errorf("list due colonizations: %w", err)
	}
	var planetIDs, fleetIDs []string
	for rows.Next() {
		var planetID string
		var fleetID sql.NullString
		if err := rows.Scan(&planetID, &fleetID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan due colonization: %w", err)
		}
		planetIDs = append(planetIDs, planetID)
		if fleetID.Valid {
			fleetIDs = append(fleetIDs, fleetID.String)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()
	if len(planetIDs) == 0 {
		return 0, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE planets
		 SET status = 'active', population = $2, colonizing_fleet_id = NULL, updated_at = now()
		 WHERE id = ANY($1)`,
		pq.Array(planetIDs), populationActive,
	); err != nil {
		return 0, fmt.Errorf("complete colonizations: %w", err)
	}

	if len(fleetIDs) > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE fleets SET status = 'active', updated_at = now()
			 WHERE id = ANY($1) AND status = 'colonizing'`,
			pq.Array(fleetIDs),
		); err != nil {
			return 0, fmt.Errorf("free colonizing fleets: %w", err)
		}
	}
	return len(planetIDs), tx.Commit()
}

// Abandon resets an owned colony to available and credits the refund. A fleet
// still mid-colonization on the planet returns to active.
func (r *PlanetRepo) Abandon(ctx context.Context, planetID, empireID string, refund economy.Resources) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var status string
	var fleetID sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT status, colonizing_fleet_id FROM planets
		 WHERE id = $1 AND empire_id = $2 FOR UPDATE`,
		planetID, empireID,
	).Scan(&status, &fleetID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("planet %s not an owned colony: %w", planetID, repository.ErrStateConflict)
	}
	if err != nil {
		return fmt.Errorf("lock planet: %w", err)
	}
	if status != model.PlanetActive && status != model.PlanetColonizing {
		return fmt.Errorf("planet %s not an owned colony: %w", planetID, repository.ErrStateConflict)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE planets
		 SET empire_id = NULL, status = 'available', population = 0, buildings = '{}',
		     colonizing_fleet_id = NULL, colonization_started = NULL, colonization_completed = NULL,
		     updated_at = now()
		 WHERE id = $1`, planetID,
	); err != nil {
		return fmt.Errorf("abandon colony: %w", err)
	}

	if fleetID.Valid {
		if _, err := tx.ExecContext(ctx,
			`UPDATE fleets SET status = 'active', updated_at = now()
			 WHERE id = $1 AND status = 'colonizing'`, fleetID.String,
		); err != nil {
			return fmt.Errorf("free colonizing fleet: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE empires
		 SET metal = metal + $2, energy = energy + $3, food = food + $4, research = research + $5, updated_at = now()
		 WHERE id = $1`,
		empireID, refund.Metal, refund.Energy, refund.Food, refund.Research,
	); err != nil {
		return fmt.Errorf("credit refund: %w", err)
	}
	return tx.Commit()
}

// SetSpecialization charges the empire and rewrites the planet type.
func (r *PlanetRepo) SetSpecialization(ctx context.Context, planetID, empireID string, newType economy.PlanetType, cost economy.Resources) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE planets SET planet_type = $3, updated_at = now()
		 WHERE id = $1 AND empire_id = $2 AND status = 'active'`,
		planetID, empireID, newType,
	)
	if err != nil {
		return fmt.Errorf("set specialization: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("planet %s not an active colony: %w", planetID, repository.ErrStateConflict)
	}

	if err := spendInTx(ctx, tx, empireID, cost); err != nil {
		return err
	}
	return tx.Commit()
}

// AddBuildings increments one building type on an active colony under the
// per-type cap and charges the empire.
func (r *PlanetRepo) AddBuildings(ctx context.Context, planetID, empireID string, btype economy.BuildingType, count, cap int, cost economy.Resources) (*model.Planet, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := scanPlanet(tx.QueryRowContext(ctx,
		`SELECT `+planetColumns+` FROM planets WHERE id = $1 AND empire_id = $2 FOR UPDATE`,
		planetID, empireID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("planet %s not owned: %w", planetID, repository.ErrStateConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("lock planet: %w", err)
	}
	if p.Status != model.PlanetActive {
		return nil, fmt.Errorf("planet %s not an active colony: %w", planetID, repository.ErrStateConflict)
	}
	if p.Buildings == nil {
		p.Buildings = make(map[economy.BuildingType]int)
	}
	if p.Buildings[btype]+count > cap {
		return nil, fmt.Errorf("building %s cap %d exceeded: %w", btype, cap, repository.ErrStateConflict)
	}
	p.Buildings[btype] += count

	buildings, err := json.Marshal(p.Buildings)
	if err != nil {
		return nil, fmt.Errorf("encode buildings: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE planets SET buildings = $2, updated_at = now() WHERE id = $1`,
		planetID, buildings,
	); err != nil {
		return nil, fmt.Errorf("update buildings: %w", err)
	}

	if err := spendInTx(ctx, tx, empireID, cost); err != nil {
		return nil, err
	}
	return p, tx.Commit()
}

// spendInTx is the guarded resource decrement shared by composite operations.
// A zero cost skips the guard entirely; the seeder generates planets with no
// paying empire.
func spendInTx(ctx context.Context, tx *sql.Tx, empireID string, cost economy.Resources) error {
	if cost.IsZero() {
		return nil
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE empires
		 SET metal = metal - $2, energy = energy - $3, food = food - $4, research = research - $5, updated_at = now()
		 WHERE id = $1 AND metal >= $2 AND energy >= $3 AND food >= $4 AND research >= $5`,
		empireID, cost.Metal, cost.Energy, cost.Food, cost.Research,
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
