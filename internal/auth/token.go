package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/mikepodsy/my-finance-app/internal/clock"
	"github.com/mikepodsy/my-finance-app/internal/models"
)

// TokenTTL is the lifetime of an issued session token.
const TokenTTL = 7 * 24 * time.Hour

// Reasons a token fails verification. Both also match ErrUnauthenticated.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims is the payload of a session token. Subject holds the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID returns the id of the user the token was issued to.
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenManager issues and verifies HS256 session tokens.
type TokenManager struct {
	secretKey []byte
	ttl       time.Duration
	clock     clock.Clock
	logger    *slog.Logger
}

// NewTokenManager creates a TokenManager signing with secretKey.
func NewTokenManager(secretKey []byte, clk clock.Clock, logger *slog.Logger) (*TokenManager, error) {
	if len(secretKey) == 0 {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").Errorf("signing secret must not be empty")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	key := make([]byte, len(secretKey))
	copy(key, secretKey)
	return &TokenManager{
		secretKey: key,
		ttl:       TokenTTL,
		clock:     clk,
		logger:    logger,
	}, nil
}

// Issue signs a token for user and returns it with its expiry time.
func (tm *TokenManager) Issue(user *models.User) (string, time.Time, error) {
	if user == nil || user.ID == "" {
		return "", time.Time{}, oops.Code("AUTH_TOKEN_ISSUE").Errorf("user id is required")
	}

	// JWT NumericDate has second precision.
	issuedAt := tm.clock.Now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(tm.ttl)

	claims := Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secretKey)
	if err != nil {
		return "", time.Time{}, oops.Code("AUTH_TOKEN_ISSUE").With("user_id", user.ID).Wrap(err)
	}
	return signed, expiresAt, nil
}

// Verify checks the token signature and time claims against the injected
// clock. A token is valid strictly before its expiry instant. Every failure
// matches ErrUnauthenticated; the cause is only logged.
func (tm *TokenManager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return tm.secretKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tm.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		reason := ErrInvalidToken
		if errors.Is(err, jwt.ErrTokenExpired) {
			reason = ErrExpiredToken
		}
		tm.logger.Debug("token rejected", "reason", reason.Error(), "error", err)
		return nil, oops.Code("AUTH_INVALID_TOKEN").Wrap(fmt.Errorf("%w: %w", ErrUnauthenticated, reason))
	}
	if !token.Valid || claims.Subject == "" {
		tm.logger.Debug("token rejected", "reason", "missing subject")
		return nil, oops.Code("AUTH_INVALID_TOKEN").Wrap(fmt.Errorf("%w: %w", ErrUnauthenticated, ErrInvalidToken))
	}
	return claims, nil
}
