// Package auth verifies station credentials and issues session tokens.
//
// Password hashing is CPU-bound. Every Hash and Verify call passes through a
// Gate that caps how many run at once; callers block on the gate (or give up
// when their context ends) instead of piling hashing work onto every request
// goroutine.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// ErrMismatch is returned by Verify when the password does not match the hash.
var ErrMismatch = errors.New("credentials do not match")

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, hash, password string) error
}

// TokenIssuer produces opaque session tokens.
type TokenIssuer interface {
	Issue() (string, error)
}

// Gate bounds the number of concurrent hashing operations.
type Gate struct {
	sem *semaphore.Weighted
}

func NewGate(workers int) *Gate {
	if workers < 1 {
		workers = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(workers))}
}

// Do runs fn once a slot is free. It returns ctx.Err() if the context ends
// while waiting.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	return fn()
}

// BcryptHasher is a Hasher using bcrypt at a fixed cost.
type BcryptHasher struct {
	cost int
	gate *Gate
}

func NewBcryptHasher(cost int, gate *Gate) *BcryptHasher {
	if gate == nil {
		gate = NewGate(1)
	}
	return &BcryptHasher{cost: cost, gate: gate}
}

func (h *BcryptHasher) Hash(ctx context.Context, password string) (string, error) {
	var hash []byte
	err := h.gate.Do(ctx, func() error {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(password), h.cost)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify returns nil on a match and ErrMismatch otherwise. A malformed hash
// also reads as a mismatch.
func (h *BcryptHasher) Verify(ctx context.Context, hash, password string) error {
	err := h.gate.Do(ctx, func() error {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return ErrMismatch
	}
}

// RandomTokens issues 32 random bytes rendered as 64 hex characters.
type RandomTokens struct{}

func (RandomTokens) Issue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
