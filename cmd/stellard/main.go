// stellard is the Stellar Dominion game server and its operations CLI.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/freeholdgames/stellar-dominion/internal/auth"
	"github.com/freeholdgames/stellar-dominion/internal/config"
	"github.com/freeholdgames/stellar-dominion/internal/gameerr"
	"github.com/freeholdgames/stellar-dominion/internal/logger"
	"github.com/freeholdgames/stellar-dominion/internal/repository/postgres"
	redisrepo "github.com/freeholdgames/stellar-dominion/internal/repository/redis"
	"github.com/freeholdgames/stellar-dominion/internal/seed"
	"github.com/freeholdgames/stellar-dominion/internal/service"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// galaxySeed fixes the procedural generation stream for this deployment.
// Changing it reshuffles only sectors that were never generated; existing
// planets stay as rolled.
const galaxySeed int64 = 20260114

func main() {
	logger.Init()

	root := &cobra.Command{
		Use:           "stellard",
		Short:         "Stellar Dominion game server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newInitCmd(), newProcessTurnCmd(), newStatusCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// app bundles the storage handles and the service graph every subcommand
// boots against. HTTP handlers are wired on top by serve.
type app struct {
	cfg   *config.Config
	db    *sql.DB
	redis *redisrepo.Client

	players  *postgres.PlayerRepo
	empires  *postgres.EmpireRepo
	planets  *postgres.PlanetRepo
	fleets   *postgres.FleetRepo
	battles  *postgres.BattleRepo
	diplo    *postgres.DiplomacyRepo
	routes   *postgres.TradeRouteRepo
	messages *postgres.MessageRepo
	ledger   *postgres.LedgerRepo
	state    *postgres.GameStateRepo

	jwt         *auth.JWTManager
	authSvc     *service.AuthService
	empireSvc   *service.EmpireService
	territory   *service.TerritoryService
	fleetSvc    *service.FleetService
	combatSvc   *service.CombatService
	tradeSvc    *service.TradeService
	diploSvc    *service.DiplomacyService
	ledgerSvc   *service.LedgerService
	turnSvc     *service.TurnService
	gateway     *service.ActionGateway
	leaderboard *service.LeaderboardService
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	rdb, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	a := &app{cfg: cfg, db: db, redis: rdb}
	a.players = postgres.NewPlayerRepo(db)
	a.empires = postgres.NewEmpireRepo(db)
	a.planets = postgres.NewPlanetRepo(db)
	a.fleets = postgres.NewFleetRepo(db)
	a.battles = postgres.NewBattleRepo(db)
	a.diplo = postgres.NewDiplomacyRepo(db)
	a.routes = postgres.NewTradeRouteRepo(db)
	a.messages = postgres.NewMessageRepo(db)
	a.ledger = postgres.NewLedgerRepo(db)
	a.state = postgres.NewGameStateRepo(db)

	a.jwt = auth.NewJWTManager(cfg.JWTSecret)
	starting := economy.Resources{
		Metal:    cfg.StartingMetal,
		Energy:   cfg.StartingEnergy,
		Food:     cfg.StartingFood,
		Research: cfg.StartingResearch,
	}

	resources := service.NewResourceService(a.empires, a.planets, a.fleets)
	a.authSvc = service.NewAuthService(a.players, rdb, a.jwt, cfg.SessionSecret, cfg.MaxPlayers)
	a.empireSvc = service.NewEmpireService(a.players, a.empires, a.planets, a.fleets, resources, starting)
	a.territory = service.NewTerritoryService(a.planets, a.fleets, galaxySeed)
	a.fleetSvc = service.NewFleetService(a.fleets, a.planets)
	a.combatSvc = service.NewCombatService(a.battles, a.fleets, a.diplo)
	a.tradeSvc = service.NewTradeService(a.routes, a.diplo, a.empires)
	a.diploSvc = service.NewDiplomacyService(a.diplo, a.empires, a.messages, a.tradeSvc)
	a.ledgerSvc = service.NewLedgerService(a.ledger, cfg.ActionPointsPerTurn)
	balance := service.NewBalanceEngine(a.fleets, a.planets, a.ledger)
	a.turnSvc = service.NewTurnService(a.state, a.empires, a.ledger, rdb, rdb,
		resources, a.combatSvc, a.tradeSvc, a.territory, a.fleetSvc, a.diploSvc,
		time.Duration(cfg.TurnDurationHours)*time.Hour, cfg.ActionPointsPerTurn)
	a.gateway = service.NewActionGateway(a.empireSvc, a.turnSvc, balance, a.ledgerSvc)
	a.leaderboard = service.NewLeaderboardService(a.empires, a.planets, a.fleets, rdb)
	return a, nil
}

func (a *app) Close() {
	a.redis.Close()
	a.db.Close()
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Run migrations, seed the home region, and create turn 1",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			applied, err := postgres.Migrate(ctx, a.db)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if len(applied) > 0 {
				log.Info().Strs("migrations", applied).Msg("Migrations applied")
			}
			return seed.Run(ctx, a.planets, a.turnSvc, galaxySeed)
		},
	}
}

func newProcessTurnCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "process-turn",
		Short: "Advance the turn outside the schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if force {
				if err := a.turnSvc.ClearProcessing(ctx); err != nil {
					return err
				}
			}
			gs, err := a.turnSvc.Advance(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("advanced to turn %d, ends %s\n", gs.TurnNumber, gs.EndTime.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "clear a stuck is_processing flag before advancing")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current turn, phase, time remaining, and processing flag",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.turnSvc.Current(cmd.Context())
			if err != nil {
				if gameerr.KindOf(err) == gameerr.KindNotFound {
					fmt.Println("game not initialized (run `stellard init`)")
					return nil
				}
				return err
			}
			fmt.Printf("turn:       %d\n", st.TurnNumber)
			fmt.Printf("phase:      %s\n", st.Phase)
			fmt.Printf("remaining:  %s\n", (time.Duration(st.TimeRemaining) * time.Second).String())
			fmt.Printf("processing: %t\n", st.IsProcessing)
			return nil
		},
	}
}
