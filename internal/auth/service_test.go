package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mikepodsy/my-finance-app/internal/clock"
	"github.com/mikepodsy/my-finance-app/internal/models"
	"github.com/mikepodsy/my-finance-app/internal/store"
)

// countingHasher counts Verify calls on top of a real hasher.
type countingHasher struct {
	PasswordHasher
	verifies atomic.Int32
}

func (c *countingHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	c.verifies.Add(1)
	return c.PasswordHasher.Verify(ctx, password, hash)
}

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *mockUserStore) Create(ctx context.Context, email, passwordHash string) (*models.User, error) {
	args := m.Called(ctx, email, passwordHash)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

type serviceFixture struct {
	svc    *Service
	users  *store.MemoryStore
	hasher *countingHasher
	clock  *clock.Mock
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	bc, err := NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	hasher := &countingHasher{PasswordHasher: bc}
	users := store.NewMemoryStore(clk)

	svc, err := NewService(context.Background(), users, hasher, newTestTokens(t, clk), DefaultPolicy(), discardLogger())
	require.NoError(t, err)
	return &serviceFixture{svc: svc, users: users, hasher: hasher, clock: clk}
}

func oopsCode(t *testing.T, err error) any {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected an oops error, got %T", err)
	return oopsErr.Code()
}

func TestService_RegisterThenLogin(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, "a@x.com", "Abcdef12")
	require.NoError(t, err)
	assert.NotEqual(t, "Abcdef12", user.PasswordHash)

	session, err := f.svc.Login(ctx, "a@x.com", "Abcdef12")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)
	assert.Equal(t, f.clock.Now().Add(TokenTTL), session.ExpiresAt)

	claims, err := f.svc.Authenticate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID())
	assert.Equal(t, "a@x.com", claims.Email)
}

func TestService_RegisterMissingFields(t *testing.T) {
	f := newServiceFixture(t)

	for _, c := range [][2]string{{"", "Abcdef12"}, {"a@x.com", ""}, {"", ""}} {
		_, err := f.svc.Register(context.Background(), c[0], c[1])
		assert.ErrorIs(t, err, ErrBadRequest)
		assert.Equal(t, "AUTH_BAD_REQUEST", oopsCode(t, err))
	}
	assert.Zero(t, f.users.Len())
}

func TestService_RegisterPolicyViolationCreatesNothing(t *testing.T) {
	f := newServiceFixture(t)

	for _, pw := range []string{"Abc1", "abcdefg1", "Abcdefgh"} {
		_, err := f.svc.Register(context.Background(), "a@x.com", pw)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPolicyViolation)

		var policyErr *PolicyError
		require.ErrorAs(t, err, &policyErr)
		assert.NotEmpty(t, policyErr.Message)
	}
	assert.Zero(t, f.users.Len())
}

func TestService_RegisterDuplicate(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "a@x.com", "Abcdef12")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "a@x.com", "Other123")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "AUTH_CONFLICT", oopsCode(t, err))
	assert.Equal(t, 1, f.users.Len())
}

func TestService_ConcurrentDuplicateRegistration(t *testing.T) {
	f := newServiceFixture(t)

	const workers = 8
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Register(context.Background(), "race@x.com", "Abcdef12")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), conflicts.Load())
	assert.Equal(t, 1, f.users.Len())
}

func TestService_RegisterLostRaceIsConflict(t *testing.T) {
	users := &mockUserStore{}
	users.On("FindByEmail", mock.Anything, "a@x.com").Return(nil, store.ErrNotFound)
	users.On("Create", mock.Anything, "a@x.com", mock.AnythingOfType("string")).Return(nil, store.ErrDuplicateEmail)

	bc, err := NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	svc, err := NewService(context.Background(), users, bc, newTestTokens(t, nil), DefaultPolicy(), discardLogger())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "a@x.com", "Abcdef12")
	assert.ErrorIs(t, err, ErrConflict)
	users.AssertExpectations(t)
}

func TestService_StoreFailureIsInternal(t *testing.T) {
	boom := errors.New("disk on fire")
	users := &mockUserStore{}
	users.On("FindByEmail", mock.Anything, mock.Anything).Return(nil, boom)

	bc, err := NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	svc, err := NewService(context.Background(), users, bc, newTestTokens(t, nil), DefaultPolicy(), discardLogger())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "a@x.com", "Abcdef12")
	assert.ErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "AUTH_INTERNAL", oopsCode(t, err))

	_, err = svc.Login(context.Background(), "a@x.com", "Abcdef12")
	assert.ErrorIs(t, err, ErrInternal)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestService_LoginFailuresAreIndistinguishable(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "a@x.com", "Abcdef12")
	require.NoError(t, err)
	before := f.hasher.verifies.Load()

	_, wrongPassword := f.svc.Login(ctx, "a@x.com", "wrong")
	_, unknownUser := f.svc.Login(ctx, "nouser@x.com", "Abcdef12")

	require.Error(t, wrongPassword)
	require.Error(t, unknownUser)
	assert.ErrorIs(t, wrongPassword, ErrUnauthenticated)
	assert.ErrorIs(t, unknownUser, ErrUnauthenticated)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
	assert.Equal(t, oopsCode(t, wrongPassword), oopsCode(t, unknownUser))

	// Both paths run exactly one password verification.
	assert.Equal(t, before+2, f.hasher.verifies.Load())
}

func TestService_LoginMissingFields(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Login(context.Background(), "", "Abcdef12")
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = f.svc.Login(context.Background(), "a@x.com", "")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestService_LoginAfterHasherSwitch(t *testing.T) {
	ctx := context.Background()
	users := store.NewMemoryStore(nil)

	before, err := NewHasher("bcrypt", bcrypt.MinCost, testArgon2Params())
	require.NoError(t, err)
	svc, err := NewService(ctx, users, before, newTestTokens(t, nil), DefaultPolicy(), discardLogger())
	require.NoError(t, err)
	_, err = svc.Register(ctx, "old@x.com", "Abcdef12")
	require.NoError(t, err)

	after, err := NewHasher("argon2id", bcrypt.MinCost, testArgon2Params())
	require.NoError(t, err)
	svc, err = NewService(ctx, users, after, newTestTokens(t, nil), DefaultPolicy(), discardLogger())
	require.NoError(t, err)

	session, err := svc.Login(ctx, "old@x.com", "Abcdef12")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)

	_, err = svc.Login(ctx, "old@x.com", "Wrong-pass1")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.NotErrorIs(t, err, ErrInternal)
}

func TestService_AuthenticateEmptyToken(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Authenticate("")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(context.Background(), nil, nil, nil, DefaultPolicy(), nil)
	assert.Error(t, err)
}
