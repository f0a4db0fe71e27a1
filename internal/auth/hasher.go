package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// PasswordHasher hashes and verifies passwords. The salt is embedded in the
// returned hash, so Verify needs nothing but the hash.
type PasswordHasher interface {
	// Hash returns a salted one-way hash of password.
	Hash(ctx context.Context, password string) (string, error)

	// Verify reports whether password matches hash.
	// Returns (false, nil) on mismatch and an error only for a malformed hash.
	Verify(ctx context.Context, password, hash string) (bool, error)
}

// BcryptHasher hashes with bcrypt at a fixed cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a bcrypt hasher. Cost 12 takes roughly 200ms on
// current server hardware.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, oops.Code("AUTH_HASHER_CONFIG").
			With("cost", cost).
			Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

func (h *BcryptHasher) Hash(_ context.Context, password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").With("algorithm", "bcrypt").Wrap(err)
	}
	return string(hashed), nil
}

func (h *BcryptHasher) Verify(_ context.Context, password, hash string) (bool, error) {
	// Longer inputs are rejected at registration and can never match.
	if len(password) > 72 {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").With("algorithm", "bcrypt").Wrap(err)
	}
}

// Argon2Params are the tunable argon2id parameters.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params returns the OWASP-recommended argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		SaltLen: 16,
		KeyLen:  32,
	}
}

// Argon2idHasher hashes with argon2id and encodes results in PHC format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher returns an argon2id hasher using params.
func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	if params.SaltLen == 0 {
		params.SaltLen = 16
	}
	if params.KeyLen == 0 {
		params.KeyLen = 32
	}
	return &Argon2idHasher{params: params}
}

func (h *Argon2idHasher) Hash(_ context.Context, password string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *Argon2idHasher) Verify(_ context.Context, password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(expected) == 0 || len(expected) > 1<<10 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(expected))
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, uint8(threads), uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NewHasher builds a hasher that hashes with the algorithm named by kind
// ("bcrypt" or "argon2id") and verifies hashes of either algorithm, so
// switching kind does not lock out existing accounts.
func NewHasher(kind string, bcryptCost int, argon Argon2Params) (*MultiHasher, error) {
	argonHasher := NewArgon2idHasher(argon)

	switch kind {
	case "bcrypt", "":
		bc, err := NewBcryptHasher(bcryptCost)
		if err != nil {
			return nil, err
		}
		return &MultiHasher{primary: bc, bcrypt: bc, argon2id: argonHasher}, nil
	case "argon2id":
		// Cost only matters when hashing; verification reads it from the hash.
		bc, err := NewBcryptHasher(bcryptCost)
		if err != nil {
			bc = &BcryptHasher{cost: bcrypt.DefaultCost}
		}
		return &MultiHasher{primary: argonHasher, bcrypt: bc, argon2id: argonHasher}, nil
	default:
		return nil, oops.Code("AUTH_HASHER_CONFIG").With("hasher", kind).Errorf("unknown password hasher")
	}
}

// MultiHasher hashes new passwords with its primary algorithm and verifies a
// stored hash with whichever algorithm produced it.
type MultiHasher struct {
	primary  PasswordHasher
	bcrypt   *BcryptHasher
	argon2id *Argon2idHasher
}

// Primary returns the hasher used for new passwords.
func (m *MultiHasher) Primary() PasswordHasher {
	return m.primary
}

func (m *MultiHasher) Hash(ctx context.Context, password string) (string, error) {
	return m.primary.Hash(ctx, password)
}

func (m *MultiHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	return m.verifierFor(hash).Verify(ctx, password, hash)
}

// verifierFor picks the hasher by the hash's algorithm prefix. Unknown
// prefixes go to the primary, which reports them as malformed.
func (m *MultiHasher) verifierFor(hash string) PasswordHasher {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return m.argon2id
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return m.bcrypt
	default:
		return m.primary
	}
}

// HashObserver receives the duration of each hash operation.
type HashObserver interface {
	ObserveHash(op string, d time.Duration)
}

// PooledHasher bounds the number of concurrent hash computations so CPU-bound
// work cannot starve request handling. Callers waiting for a slot give up
// when their context is done.
type PooledHasher struct {
	inner    PasswordHasher
	sem      *semaphore.Weighted
	observer HashObserver
}

// NewPooledHasher wraps inner with a pool of size slots. observer may be nil.
func NewPooledHasher(inner PasswordHasher, size int, observer HashObserver) *PooledHasher {
	if size < 1 {
		size = 1
	}
	return &PooledHasher{
		inner:    inner,
		sem:      semaphore.NewWeighted(int64(size)),
		observer: observer,
	}
}

func (p *PooledHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", oops.Code("AUTH_HASH_POOL").With("operation", "hash").Wrap(err)
	}
	defer p.sem.Release(1)

	start := time.Now()
	hash, err := p.inner.Hash(ctx, password)
	p.observe("hash", start)
	return hash, err
}

func (p *PooledHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, oops.Code("AUTH_HASH_POOL").With("operation", "verify").Wrap(err)
	}
	defer p.sem.Release(1)

	start := time.Now()
	ok, err := p.inner.Verify(ctx, password, hash)
	p.observe("verify", start)
	return ok, err
}

func (p *PooledHasher) observe(op string, start time.Time) {
	if p.observer != nil {
		p.observer.ObserveHash(op, time.Since(start))
	}
}
