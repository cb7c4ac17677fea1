package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorilla "github.com/gorilla/handlers"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/freeholdgames/stellar-dominion/internal/auth"
	"github.com/freeholdgames/stellar-dominion/internal/handler"
	"github.com/freeholdgames/stellar-dominion/internal/middleware"
	"github.com/freeholdgames/stellar-dominion/internal/repository/postgres"
	"github.com/freeholdgames/stellar-dominion/internal/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(*cobra.Command, []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(a)
		},
	}
}

func serve(a *app) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Migrations run automatically only in development. Everywhere else the
	// server refuses to boot until `stellard init` has applied them.
	if a.cfg.IsDevelopment() {
		applied, err := postgres.Migrate(ctx, a.db)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			log.Info().Strs("migrations", applied).Msg("Migrations applied")
		}
	} else {
		pending, err := postgres.Pending(ctx, a.db)
		if err != nil {
			return fmt.Errorf("check migrations: %w", err)
		}
		if len(pending) > 0 {
			return fmt.Errorf("%d pending migrations, run `stellard init` first: %v", len(pending), pending)
		}
	}

	// Keyspace notifications drive the turn scheduler; failure here only
	// degrades it to the polling fallback.
	if err := a.redis.Underlying().ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to enable Redis keyspace notifications, relying on deadline polling")
	}

	authHandler := handler.NewAuthHandler(a.authSvc)
	empireHandler := handler.NewEmpireHandler(a.empireSvc, a.gateway)
	planetHandler := handler.NewPlanetHandler(a.territory, a.empireSvc, a.gateway)
	fleetHandler := handler.NewFleetHandler(a.fleetSvc, a.empireSvc, a.gateway)
	combatHandler := handler.NewCombatHandler(a.combatSvc, a.empireSvc, a.gateway)
	diplomacyHandler := handler.NewDiplomacyHandler(a.diploSvc, a.empireSvc, a.gateway)
	tradeHandler := handler.NewTradeHandler(a.tradeSvc, a.empireSvc, a.gateway)
	territoryHandler := handler.NewTerritoryHandler(a.territory, a.empireSvc, a.gateway)
	gameHandler := handler.NewGameHandler(a.turnSvc, a.leaderboard, a.players)
	healthHandler := handler.NewHealthHandler(map[string]func(context.Context) error{
		"postgres": a.db.PingContext,
		"redis":    func(ctx context.Context) error { return a.redis.Underlying().Ping(ctx).Err() },
	})

	mux := http.NewServeMux()

	// Public surface: account entry points and liveness.
	mux.HandleFunc("GET /v1/healthz", healthHandler.Health)
	mux.HandleFunc("POST /v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /v1/auth/login", authHandler.Login)
	mux.HandleFunc("POST /v1/auth/refresh", authHandler.Refresh)

	// Everything else requires a live session.
	api := http.NewServeMux()
	api.HandleFunc("POST /auth/logout", authHandler.Logout)
	api.HandleFunc("POST /auth/change-password", authHandler.ChangePassword)

	api.HandleFunc("GET /empire", empireHandler.Overview)
	api.HandleFunc("PUT /empire/name", empireHandler.Rename)

	api.HandleFunc("GET /planets", planetHandler.List)
	api.HandleFunc("GET /planets/{id}", planetHandler.Get)
	api.HandleFunc("PUT /planets/{id}/specialization", planetHandler.SetSpecialization)
	api.HandleFunc("POST /planets/{id}/buildings", planetHandler.AddBuildings)

	api.HandleFunc("GET /fleets", fleetHandler.List)
	api.HandleFunc("POST /fleets", fleetHandler.Create)
	api.HandleFunc("GET /fleets/{id}", fleetHandler.Get)
	api.HandleFunc("PUT /fleets/{id}/location", fleetHandler.Move)
	api.HandleFunc("PUT /fleets/{id}/composition", fleetHandler.UpdateComposition)

	api.HandleFunc("POST /combat/battles", combatHandler.Attack)
	api.HandleFunc("GET /combat/battles", combatHandler.List)
	api.HandleFunc("GET /combat/battles/{id}", combatHandler.Get)
	api.HandleFunc("POST /combat/battles/{id}/retreat", combatHandler.Retreat)

	api.HandleFunc("GET /diplomacy/relations", diplomacyHandler.Relations)
	api.HandleFunc("GET /diplomacy/proposals", diplomacyHandler.Proposals)
	api.HandleFunc("POST /diplomacy/proposals", diplomacyHandler.Propose)
	api.HandleFunc("POST /diplomacy/proposals/{id}/respond", diplomacyHandler.Respond)
	api.HandleFunc("GET /diplomacy/messages", diplomacyHandler.Messages)
	api.HandleFunc("POST /diplomacy/messages", diplomacyHandler.SendMessage)

	api.HandleFunc("POST /trade-routes", tradeHandler.Establish)
	api.HandleFunc("GET /trade-routes", tradeHandler.List)
	api.HandleFunc("GET /trade-routes/{id}", tradeHandler.Get)
	api.HandleFunc("DELETE /trade-routes/{id}", tradeHandler.Cancel)

	api.HandleFunc("POST /sectors/{coord}/explore", territoryHandler.Explore)
	api.HandleFunc("POST /colonize", territoryHandler.Colonize)
	api.HandleFunc("DELETE /colonize/{id}", territoryHandler.Abandon)

	api.HandleFunc("GET /leaderboard", gameHandler.Leaderboard)
	api.HandleFunc("GET /game/turn", gameHandler.Turn)
	api.HandleFunc("POST /game/advance-turn", gameHandler.AdvanceTurn)

	playerFn := func(ctx context.Context) (string, bool) {
		id := auth.PlayerIDFromContext(ctx)
		return id, id != ""
	}
	statusFn := func(ctx context.Context, playerID string) (middleware.GameStatus, bool) {
		snap, ok := a.gateway.Snapshot(ctx, playerID)
		if !ok {
			return middleware.GameStatus{}, false
		}
		return middleware.GameStatus{
			Turn:          snap.Turn,
			Phase:         snap.Phase,
			TimeRemaining: snap.TimeRemaining,
			ActionPoints:  snap.ActionPoints,
		}, true
	}
	protected := middleware.Chain(api,
		auth.Middleware(a.jwt, a.redis),
		middleware.GameHeaders(playerFn, statusFn),
	)
	mux.Handle("/v1/", http.StripPrefix("/v1", protected))

	cors := gorilla.CORS(
		gorilla.AllowedOrigins([]string{a.cfg.CORSOrigin}),
		gorilla.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		gorilla.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorilla.MaxAge(86400),
	)
	root := middleware.Chain(mux,
		gorilla.RecoveryHandler(gorilla.PrintRecoveryStack(true)),
		gorilla.ProxyHeaders,
		middleware.Logger,
		cors,
		middleware.JSON,
	)

	srv := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler := service.NewTurnScheduler(a.redis.Underlying(), a.turnSvc, a.state, a.redis)
	go scheduler.Start(ctx)
	go a.ledgerSvc.StartSweeper(ctx, service.ReservationTTL)

	go func() {
		log.Info().Str("port", a.cfg.Port).Str("environment", a.cfg.Environment).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}
