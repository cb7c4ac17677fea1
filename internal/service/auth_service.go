package service

import (
	"context"
	"crypto/hmac"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/auth"
	"github.com/freeholdgames/stellar-dominion/internal/gameerr"
	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// AuthService handles registration, credential login, token refresh, and
// session revocation. Sessions live in redis; only HMACs of refresh tokens
// are stored.
type AuthService struct {
	players       repository.PlayerRepository
	sessions      repository.SessionStore
	jwt           *auth.JWTManager
	sessionSecret string
	maxPlayers    int
}

// NewAuthService creates an AuthService.
func NewAuthService(players repository.PlayerRepository, sessions repository.SessionStore, jwt *auth.JWTManager, sessionSecret string, maxPlayers int) *AuthService {
	return &AuthService{
		players:       players,
		sessions:      sessions,
		jwt:           jwt,
		sessionSecret: sessionSecret,
		maxPlayers:    maxPlayers,
	}
}

// Register creates a player account.
func (s *AuthService) Register(ctx context.Context, username, password, displayName string) (*model.Player, error) {
	if !usernamePattern.MatchString(username) {
		return nil, gameerr.Validationf("username must be 3-32 characters of letters, digits, or underscore")
	}
	if len(password) < 8 {
		return nil, gameerr.Validationf("password must be at least 8 characters")
	}
	if displayName == "" {
		displayName = username
	}

	count, err := s.players.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count players: %w", err)
	}
	if count >= s.maxPlayers {
		return nil, gameerr.Conflictf("server is at its %d player capacity", s.maxPlayers)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	player, err := s.players.Create(ctx, username, hash, displayName)
	if err != nil {
		if isConflict(err) {
			return nil, gameerr.Conflictf("username %q is taken", username)
		}
		return nil, fmt.Errorf("create player: %w", err)
	}

	log.Info().Str("playerId", player.ID).Str("username", username).Msg("Player registered")
	return player, nil
}

// Login verifies credentials and opens a session, returning the token pair
// plus the session id the refresh flow needs.
func (s *AuthService) Login(ctx context.Context, username, password string) (*auth.TokenPair, string, *model.Player, error) {
	player, err := s.players.FindByUsername(ctx, username)
	if err != nil {
		return nil, "", nil, fmt.Errorf("find player: %w", err)
	}
	if player == nil || !auth.CheckPassword(player.PasswordHash, password) {
		return nil, "", nil, gameerr.Authf("invalid username or password")
	}
	if !player.IsActive {
		return nil, "", nil, gameerr.Authf("account is deactivated")
	}

	sessionID := uuid.NewString()
	pair, err := s.jwt.GenerateTokenPair(player.ID, sessionID)
	if err != nil {
		return nil, "", nil, fmt.Errorf("generate tokens: %w", err)
	}

	refreshHash := auth.HashRefreshToken(s.sessionSecret, pair.RefreshToken)
	if err := s.sessions.CreateSession(ctx, sessionID, player.ID, refreshHash, auth.SessionTTL); err != nil {
		return nil, "", nil, fmt.Errorf("create session: %w", err)
	}

	log.Info().Str("playerId", player.ID).Str("sessionId", sessionID).Msg("Player logged in")
	return pair, sessionID, player, nil
}

// Refresh rotates the token pair when the presented refresh token matches
// the session's stored hash.
func (s *AuthService) Refresh(ctx context.Context, sessionID, refreshToken string) (*auth.TokenPair, error) {
	playerID, err := s.sessions.SessionPlayer(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if playerID == "" {
		return nil, gameerr.Authf("session expired or revoked")
	}

	stored, err := s.sessions.SessionRefreshHash(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session hash lookup: %w", err)
	}
	presented := auth.HashRefreshToken(s.sessionSecret, refreshToken)
	if stored == "" || !hmac.Equal([]byte(stored), []byte(presented)) {
		return nil, gameerr.Authf("refresh token does not match session")
	}

	pair, err := s.jwt.GenerateTokenPair(playerID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}
	newHash := auth.HashRefreshToken(s.sessionSecret, pair.RefreshToken)
	if err := s.sessions.RotateRefresh(ctx, sessionID, newHash, auth.SessionTTL); err != nil {
		if isConflict(err) {
			return nil, gameerr.Authf("session expired or revoked")
		}
		return nil, fmt.Errorf("rotate refresh: %w", err)
	}
	return pair, nil
}

// Logout deletes the session.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ChangePassword re-hashes the password and revokes every session of the
// player, forcing all devices to log in again.
func (s *AuthService) ChangePassword(ctx context.Context, playerID, current, next string) error {
	if len(next) < 8 {
		return gameerr.Validationf("password must be at least 8 characters")
	}

	player, err := s.players.FindByID(ctx, playerID)
	if err != nil {
		return fmt.Errorf("find player: %w", err)
	}
	if player == nil {
		return gameerr.NotFoundf("player not found")
	}
	if !auth.CheckPassword(player.PasswordHash, current) {
		return gameerr.Authf("current password is incorrect")
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.players.UpdatePassword(ctx, playerID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	revoked, err := s.sessions.RevokeAllSessions(ctx, playerID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	log.Info().Str("playerId", playerID).Int("revoked", revoked).Msg("Password changed, sessions revoked")
	return nil
}
