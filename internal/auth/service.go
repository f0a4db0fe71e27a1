// Package auth implements credential registration, login and session token
// handling.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/mikepodsy/my-finance-app/internal/models"
	"github.com/mikepodsy/my-finance-app/internal/store"
)

// dummyPassword is hashed once at startup. Logins for unknown emails verify
// against it so they cost the same as logins with a wrong password.
const dummyPassword = "Dummy-password-0"

// Session is the result of a successful login.
type Session struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

// Service runs the registration and login flows.
type Service struct {
	users     store.UserStore
	hasher    PasswordHasher
	tokens    *TokenManager
	policy    Policy
	logger    *slog.Logger
	dummyHash string
}

// NewService wires the flows to their collaborators. It hashes a dummy
// password eagerly, which takes one full hash computation.
func NewService(ctx context.Context, users store.UserStore, hasher PasswordHasher, tokens *TokenManager, policy Policy, logger *slog.Logger) (*Service, error) {
	if users == nil || hasher == nil || tokens == nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("user store, hasher and token manager are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dummy, err := hasher.Hash(ctx, dummyPassword)
	if err != nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Wrapf(err, "hash dummy password")
	}

	return &Service{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		policy:    policy,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

// Tokens returns the token manager used to issue sessions.
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// Register creates a user record for email. No session is issued; the caller
// logs in separately.
func (s *Service) Register(ctx context.Context, email, password string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, oops.Code("AUTH_BAD_REQUEST").Wrap(ErrBadRequest)
	}

	if err := s.policy.Check(email, password); err != nil {
		var policyErr *PolicyError
		rule := ""
		if errors.As(err, &policyErr) {
			rule = policyErr.Rule
		}
		return nil, oops.Code("AUTH_POLICY_VIOLATION").With("rule", rule).Wrap(err)
	}

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, oops.Code("AUTH_CONFLICT").Wrap(ErrConflict)
	case !errors.Is(err, store.ErrNotFound):
		return nil, s.internal(err, "look up user")
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, s.internal(err, "hash password")
	}

	user, err := s.users.Create(ctx, email, hash)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, oops.Code("AUTH_CONFLICT").With("race", true).Wrap(ErrConflict)
		}
		return nil, s.internal(err, "create user")
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login checks email and password and issues a session token. An unknown
// email and a wrong password return the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, oops.Code("AUTH_BAD_REQUEST").Wrap(ErrBadRequest)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, s.internal(err, "look up user")
	}

	hash := s.dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	ok, err := s.hasher.Verify(ctx, password, hash)
	if err != nil {
		return nil, s.internal(err, "verify password")
	}
	if user == nil || !ok {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrUnauthenticated)
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, s.internal(err, "issue token")
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return &Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Authenticate verifies a session token and returns its claims.
func (s *Service) Authenticate(token string) (*Claims, error) {
	if token == "" {
		return nil, oops.Code("AUTH_INVALID_TOKEN").Wrap(ErrUnauthenticated)
	}
	return s.tokens.Verify(token)
}

func (s *Service) internal(err error, op string) error {
	return oops.Code("AUTH_INTERNAL").With("op", op).Wrap(errors.Join(ErrInternal, err))
}
