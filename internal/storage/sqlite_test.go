package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelstation/internal/models"
)

func newSQLiteTestStorage(t *testing.T) Storage {
	t.Helper()
	s, err := NewSQLiteStorage(Config{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "station.db"),
	})
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStorage(t *testing.T) {
	runStorageSuite(t, newSQLiteTestStorage)
}

func TestSQLiteStorageRequiresConnectionString(t *testing.T) {
	_, err := NewSQLiteStorage(Config{})
	assert.Error(t, err)
}

func TestSQLiteStorageInMemory(t *testing.T) {
	s, err := NewSQLiteStorage(Config{ConnectionString: ":memory:"})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.CreateFuel(ctx, models.NewFuel("Diesel", 50, models.CategoryDiesel)))
	fuels, err := s.Fuels(ctx)
	require.NoError(t, err)
	assert.Len(t, fuels, 1)
}

func TestSQLiteStoragePersistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "station.db")
	ctx := context.Background()

	s, err := NewSQLiteStorage(Config{ConnectionString: dbPath})
	require.NoError(t, err)
	c := models.NewCustomer("alice", "hash", 500)
	require.NoError(t, s.CreateCustomer(ctx, c))
	require.NoError(t, s.Close())

	// Reopening applies no migrations twice and sees the earlier rows
	s, err = NewSQLiteStorage(Config{ConnectionString: dbPath})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetCustomerByLogin(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, int64(500), got.Balance)
}

func TestSQLiteStorageNullCategory(t *testing.T) {
	s := newSQLiteTestStorage(t).(*SQLiteStorage)
	ctx := context.Background()

	res, err := s.db.ExecContext(ctx, `INSERT INTO fuel (name, price, fuel_type) VALUES ('Legacy', 40, NULL)`)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)

	got, err := s.GetFuel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryPetrol, got.Category)
}

func TestSQLiteStorageBankCheckConstraint(t *testing.T) {
	s := newSQLiteTestStorage(t).(*SQLiteStorage)
	_, err := s.db.ExecContext(context.Background(), `INSERT INTO bank (id, total) VALUES (2, 0)`)
	assert.Error(t, err, "the bank is a singleton")
}
