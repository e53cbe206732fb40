package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const (
	// AlgorithmBcrypt selects bcrypt for new hashes.
	AlgorithmBcrypt = "bcrypt"
	// AlgorithmArgon2id selects argon2id for new hashes.
	AlgorithmArgon2id = "argon2id"

	// DefaultBcryptCost matches the cost the service has always used.
	DefaultBcryptCost = 10
)

var (
	// ErrPasswordTooLong is returned when bcrypt cannot hash the input.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrUnsupportedHash is returned when a stored hash has an unknown format.
	ErrUnsupportedHash = errors.New("unsupported password hash format")
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, encodedHash string) (bool, error)
}

// HasherOptions configures Hasher.
type HasherOptions struct {
	Algorithm  string
	BcryptCost int
	Argon2     Argon2Params
	// Workers bounds how many hashes run at once. Zero means runtime.NumCPU().
	Workers int
}

// Hasher runs the configured hash function on a bounded pool of goroutines so
// expensive hashing never piles up on the request goroutines.
type Hasher struct {
	opts HasherOptions
	sem  *semaphore.Weighted
}

// Ensure Hasher implements PasswordHasher
var _ PasswordHasher = (*Hasher)(nil)

// NewHasher creates a hasher with the given options.
func NewHasher(opts HasherOptions) (*Hasher, error) {
	if opts.Algorithm == "" {
		opts.Algorithm = AlgorithmBcrypt
	}
	switch opts.Algorithm {
	case AlgorithmBcrypt:
		if opts.BcryptCost == 0 {
			opts.BcryptCost = DefaultBcryptCost
		}
		if opts.BcryptCost < bcrypt.MinCost || opts.BcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("bcrypt cost %d out of range", opts.BcryptCost)
		}
	case AlgorithmArgon2id:
		if opts.Argon2 == (Argon2Params{}) {
			opts.Argon2 = DefaultArgon2Params()
		}
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", opts.Algorithm)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Hasher{opts: opts, sem: semaphore.NewWeighted(int64(opts.Workers))}, nil
}

// Hash returns a salted hash of password using the configured algorithm.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	var (
		encoded string
		hashErr error
	)
	if err := h.run(ctx, func() { encoded, hashErr = h.hash(password) }); err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if hashErr != nil {
		return "", hashErr
	}
	return encoded, nil
}

// Verify reports whether password matches encodedHash. The algorithm is taken
// from the hash itself, not from the configuration.
func (h *Hasher) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	var (
		ok        bool
		verifyErr error
	)
	if err := h.run(ctx, func() { ok, verifyErr = verify(password, encodedHash) }); err != nil {
		return false, fmt.Errorf("verify password: %w", err)
	}
	return ok, verifyErr
}

func (h *Hasher) hash(password string) (string, error) {
	if h.opts.Algorithm == AlgorithmArgon2id {
		return hashArgon2id(password, h.opts.Argon2)
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), h.opts.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(out), nil
}

func verify(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, argon2idPrefix):
		return verifyArgon2id(password, encodedHash)
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return false, ErrPasswordTooLong
		}
		return false, fmt.Errorf("bcrypt: %w", err)
	default:
		return false, ErrUnsupportedHash
	}
}

// run executes fn on the worker pool. If ctx ends first the caller gets the
// context error while fn finishes in the background and frees its slot.
func (h *Hasher) run(ctx context.Context, fn func()) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		defer h.sem.Release(1)
		defer close(done)
		fn()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
