// Package store persists user credential records. Every implementation
// enforces email uniqueness itself, so a lost check-then-create race in a
// caller still yields exactly one record.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/mikepodsy/my-finance-app/internal/clock"
	"github.com/mikepodsy/my-finance-app/internal/models"
)

var (
	// ErrNotFound is returned when no user has the requested email.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned by Create when the email is already taken.
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserStore is the user record collaborator consumed by the auth flows.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, email, passwordHash string) (*models.User, error)
}

// Store handles user persistence on a SQL database.
type Store struct {
	db      *sql.DB
	dialect string
	clock   clock.Clock
}

// New creates a store for db. dialect is the database/sql driver name
// ("sqlite3" or "postgres") and selects the placeholder style.
func New(db *sql.DB, dialect string, clk clock.Clock) (*Store, error) {
	switch dialect {
	case "sqlite3", "postgres":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Store{db: db, dialect: dialect, clock: clk}, nil
}

// Create inserts a new user. The UNIQUE constraint on email is the source
// of truth for uniqueness; a violation is reported as ErrDuplicateEmail.
func (s *Store) Create(ctx context.Context, email, passwordHash string) (*models.User, error) {
	now := s.clock.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.db.ExecContext(ctx,
		s.rebind("INSERT INTO users (id, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"),
		user.ID, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

// FindByEmail retrieves a user by exact email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = ?"),
		email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user by email: %w", err)
	}
	return user, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgerrcode.UniqueViolation
	}
	return false
}
