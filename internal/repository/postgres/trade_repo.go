package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
	"github.com/freeholdgames/stellar-dominion/pkg/diplomacy"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// TradeRouteRepo handles trade route database operations. Settlement moves
// resources between two empire rows, so it locks both in canonical order.
type TradeRouteRepo struct {
	db *sql.DB
}

// NewTradeRouteRepo creates a TradeRouteRepo.
func NewTradeRouteRepo(db *sql.DB) *TradeRouteRepo {
	return &TradeRouteRepo{db: db}
}

const tradeRouteColumns = `id, agreement_id, empire_a, empire_b, empire_a_gives, empire_b_gives, status, last_settled_turn, created_at, updated_at`

func scanTradeRoute(row interface{ Scan(...any) error }) (*model.TradeRoute, error) {
	var tr model.TradeRoute
	var givesA, givesB []byte
	err := row.Scan(&tr.ID, &tr.AgreementID, &tr.EmpireA, &tr.EmpireB, &givesA, &givesB,
		&tr.Status, &tr.LastSettledTurn, &tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(givesA, &tr.GivesA); err != nil {
		return nil, fmt.Errorf("decode empire_a_gives: %w", err)
	}
	if err := json.Unmarshal(givesB, &tr.GivesB); err != nil {
		return nil, fmt.Errorf("decode empire_b_gives: %w", err)
	}
	return &tr, nil
}

// Establish creates the backing agreement and the route, charging both
// parties the setup cost in one transaction.
func (r *TradeRouteRepo) Establish(ctx context.Context, agreement *model.Agreement, route *model.TradeRoute, costEach economy.Resources) (*model.TradeRoute, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Canonicalizing the pair may swap the sides, so the gives swap with it.
	ea, eb := diplomacy.CanonicalPair(route.EmpireA, route.EmpireB)
	aGives, bGives := route.GivesA, route.GivesB
	if ea != route.EmpireA {
		aGives, bGives = bGives, aGives
	}
	for _, empireID := range []string{ea, eb} {
		if err := spendInTx(ctx, tx, empireID, costEach); err != nil {
			return nil, err
		}
	}

	created, err := insertAgreement(ctx, tx, agreement)
	if err != nil {
		return nil, err
	}

	givesA, err := json.Marshal(aGives)
	if err != nil {
		return nil, fmt.Errorf("encode empire_a_gives: %w", err)
	}
	givesB, err := json.Marshal(bGives)
	if err != nil {
		return nil, fmt.Errorf("encode empire_b_gives: %w", err)
	}
	inserted, err := scanTradeRoute(tx.QueryRowContext(ctx,
		`INSERT INTO trade_routes (id, agreement_id, empire_a, empire_b, empire_a_gives, empire_b_gives)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+tradeRouteColumns,
		uuid.NewString(), created.ID, ea, eb, givesA, givesB))
	if err != nil {
		return nil, fmt.Errorf("create trade route: %w", err)
	}
	return inserted, tx.Commit()
}

// FindByID returns a trade route by ID.
func (r *TradeRouteRepo) FindByID(ctx context.Context, id string) (*model.TradeRoute, error) {
	tr, err := scanTradeRoute(r.db.QueryRowContext(ctx,
		`SELECT `+tradeRouteColumns+` FROM trade_routes WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find trade route: %w", err)
	}
	return tr, nil
}

// ListForEmpire returns every route the empire is party to, newest first.
func (r *TradeRouteRepo) ListForEmpire(ctx context.Context, empireID string) ([]model.TradeRoute, error) {
	return r.list(ctx,
		`SELECT `+tradeRouteColumns+` FROM trade_routes
		 WHERE empire_a = $1 OR empire_b = $1
		 ORDER BY created_at DESC`, empireID)
}

// ListActive returns all active routes for the settlement pass.
func (r *TradeRouteRepo) ListActive(ctx context.Context) ([]model.TradeRoute, error) {
	return r.list(ctx,
		`SELECT `+tradeRouteColumns+` FROM trade_routes WHERE status = 'active' ORDER BY created_at`)
}

func (r *TradeRouteRepo) list(ctx context.Context, query string, args ...any) ([]model.TradeRoute, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trade routes: %w", err)
	}
	defer rows.Close()

	var routes []model.TradeRoute
	for rows.Next() {
		tr, err := scanTradeRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade route: %w", err)
		}
		routes = append(routes, *tr)
	}
	return routes, rows.Err()
}

// Settle applies one turn's flows for the route and stamps the turn. It
// returns (true, nil) when the route is settled for the turn, including the
// idempotent case where an earlier pass already stamped it, and (false, nil)
// when either party cannot cover its outbound leg; a breached settlement
// mutates nothing.
func (r *TradeRouteRepo) Settle(ctx context.Context, routeID string, turn int, debitA, creditA, debitB, creditB economy.Resources) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var empireA, empireB string
	var lastSettled int
	err = tx.QueryRowContext(ctx,
		`SELECT empire_a, empire_b, last_settled_turn FROM trade_routes
		 WHERE id = $1 AND status = 'active'
		 FOR UPDATE`, routeID,
	).Scan(&empireA, &empireB, &lastSettled)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("trade route %s not active: %w", routeID, repository.ErrStateConflict)
	}
	if err != nil {
		return false, fmt.Errorf("lock trade route: %w", err)
	}
	if lastSettled >= turn {
		return true, nil
	}

	// Empire rows lock in canonical order, same as every other pair
	// operation, so settlement cannot deadlock against combat or spends.
	balances := make(map[string]economy.Resources, 2)
	for _, empireID := range []string{empireA, empireB} {
		var bal economy.Resources
		err := tx.QueryRowContext(ctx,
			`SELECT metal, energy, food, research FROM empires WHERE id = $1 FOR UPDATE`,
			empireID,
		).Scan(&bal.Metal, &bal.Energy, &bal.Food, &bal.Research)
		if err != nil {
			return false, fmt.Errorf("lock empire %s: %w", empireID, err)
		}
		balances[empireID] = bal
	}
	if !balances[empireA].CanAfford(debitA) || !balances[empireB].CanAfford(debitB) {
		return false, nil
	}

	nextA := balances[empireA].Sub(debitA).Add(creditA)
	nextB := balances[empireB].Sub(debitB).Add(creditB)
	for empireID, next := range map[string]economy.Resources{empireA: nextA, empireB: nextB} {
		_, err := tx.ExecContext(ctx,
			`UPDATE empires SET metal = $2, energy = $3, food = $4, research = $5, updated_at = now()
			 WHERE id = $1`,
			empireID, next.Metal, next.Energy, next.Food, next.Research)
		if err != nil {
			return false, fmt.Errorf("settle empire %s: %w", empireID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE trade_routes SET last_settled_turn = $2, updated_at = now() WHERE id = $1`,
		routeID, turn)
	if err != nil {
		return false, fmt.Errorf("stamp trade route: %w", err)
	}
	return true, tx.Commit()
}

// Cancel deactivates a route at the request of either party.
func (r *TradeRouteRepo) Cancel(ctx context.Context, routeID, empireID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE trade_routes SET status = 'cancelled', updated_at = now()
		 WHERE id = $1 AND status = 'active' AND (empire_a = $2 OR empire_b = $2)`,
		routeID, empireID)
	if err != nil {
		return fmt.Errorf("cancel trade route: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trade route %s not active for empire: %w", routeID, repository.ErrStateConflict)
	}
	return nil
}
