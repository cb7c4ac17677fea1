package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("missing authorization token")
)

const (
	// SessionTTL bounds how long a refresh token (and its redis session) lives.
	SessionTTL = 7 * 24 * time.Hour

	accessTokenTTL = 15 * time.Minute
)

// Claims holds the JWT payload. SessionID ties the short-lived access token
// to a revocable redis session.
type Claims struct {
	PlayerID  string `json:"player_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// JWTManager signs and verifies access tokens.
type JWTManager struct {
	secret       []byte
	accessExpiry time.Duration
}

func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{secret: []byte(secret), accessExpiry: accessTokenTTL}
}

func (m *JWTManager) keyFunc(*jwt.Token) (any, error) {
	return m.secret, nil
}

// GenerateAccessToken mints a short-lived HS256 token bound to a session.
func (m *JWTManager) GenerateAccessToken(playerID, sessionID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		PlayerID:  playerID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessExpiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ValidateToken verifies signature, algorithm, and expiry. Any failure
// collapses to ErrInvalidToken so callers leak nothing to the client.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewRefreshToken mints an opaque refresh token. Only its HMAC is persisted;
// the raw value goes to the client once.
func NewRefreshToken() string {
	return uuid.NewString()
}

// TokenPair is what login, register, and refresh hand back to the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

// GenerateTokenPair couples a fresh access token with a new opaque refresh
// token for the given session.
func (m *JWTManager) GenerateTokenPair(playerID, sessionID string) (*TokenPair, error) {
	access, err := m.GenerateAccessToken(playerID, sessionID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: NewRefreshToken(),
		ExpiresIn:    int(m.accessExpiry.Seconds()),
	}, nil
}
