package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_HashAndVerify(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost, NewGate(2))
	ctx := context.Background()

	hash, err := h.Hash(ctx, "secret")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", hash)

	assert.NoError(t, h.Verify(ctx, hash, "secret"))
	assert.ErrorIs(t, h.Verify(ctx, hash, "wrong"), ErrMismatch)
	assert.ErrorIs(t, h.Verify(ctx, "not-a-bcrypt-hash", "secret"), ErrMismatch)
}

func TestBcryptHasher_CancelledWhileWaiting(t *testing.T) {
	gate := NewGate(1)
	h := NewBcryptHasher(bcrypt.MinCost, gate)

	release := make(chan struct{})
	started := make(chan struct{})
	go gate.Do(context.Background(), func() error {
		close(started)
		<-release
		return nil
	})
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := h.Verify(ctx, "$2a$04$abc", "secret")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGate_BoundsConcurrency(t *testing.T) {
	gate := NewGate(3)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = gate.Do(context.Background(), func() error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestNewGate_ClampsWorkers(t *testing.T) {
	gate := NewGate(0)
	assert.NoError(t, gate.Do(context.Background(), func() error { return nil }))
}

func TestRandomTokens_Issue(t *testing.T) {
	var issuer RandomTokens

	a, err := issuer.Issue()
	require.NoError(t, err)
	b, err := issuer.Issue()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", a)
	assert.NotEqual(t, a, b)
}
