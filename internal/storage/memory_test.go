package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelstation/internal/models"
)

func newMemoryTestStorage(t *testing.T) Storage {
	t.Helper()
	s, err := NewMemoryStorage(Config{})
	if err != nil {
		t.Fatalf("Failed to create memory storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemoryStorage(t *testing.T) {
	runStorageSuite(t, newMemoryTestStorage)
}

func TestMemoryStorageReturnsCopies(t *testing.T) {
	s := newMemoryTestStorage(t)
	ctx := context.Background()

	c := models.NewCustomer("alice", "hash", 100)
	require.NoError(t, s.CreateCustomer(ctx, c))

	got, err := s.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	got.Balance = 0

	again, err := s.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), again.Balance)
}

func TestMemoryStorageCanceledContext(t *testing.T) {
	s := newMemoryTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryStorageRejectsInvalidTankWrite(t *testing.T) {
	s := newMemoryTestStorage(t)
	ctx := context.Background()
	_, _, tank := seedSale(t, s)

	err := s.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateTankStored(ctx, tank.ID, tank.Stored, tank.Capacity+1)
	})
	assert.Error(t, err)

	tanks, err := s.Tanks(ctx, tank.FuelID)
	require.NoError(t, err)
	assert.Equal(t, tank.Stored, tanks[0].Stored)
}
