package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mikepodsy/my-finance-app/internal/clock"
	"github.com/mikepodsy/my-finance-app/internal/models"
)

// MemoryStore keeps users in process memory. The check and insert in Create
// happen under one lock.
type MemoryStore struct {
	mu      sync.RWMutex
	byEmail map[string]*models.User
	clock   clock.Clock
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryStore{
		byEmail: make(map[string]*models.User),
		clock:   clk,
	}
}

// Create inserts a user unless the email is already present.
func (m *MemoryStore) Create(ctx context.Context, email, passwordHash string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byEmail[email]; exists {
		return nil, ErrDuplicateEmail
	}

	now := m.clock.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.byEmail[email] = user
	return user.Clone(), nil
}

// FindByEmail returns a copy of the stored user.
func (m *MemoryStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return user.Clone(), nil
}

// Len reports the number of stored users.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byEmail)
}
