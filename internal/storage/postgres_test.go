package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelstation/internal/models"
)

func getPostgresDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

// newPostgresTestStorage connects to the test database and empties every
// table so each caller starts from a blank ledger.
func newPostgresTestStorage(t *testing.T) Storage {
	t.Helper()
	dsn := getPostgresDSN(t)
	s, err := NewPostgresStorage(Config{ConnectionString: dsn, MaxOpenConns: 10})
	if err != nil {
		t.Fatalf("failed to create postgres storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	_, err = s.pool.Exec(context.Background(),
		`TRUNCATE bank, tank, fuel, admin, customer RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return s
}

func TestPostgresStorageConnectionError(t *testing.T) {
	_, err := NewPostgresStorage(Config{ConnectionString: ""})
	if err == nil {
		t.Error("expected error for empty connection string")
	}
}

func TestPostgresStorageInvalidDSN(t *testing.T) {
	_, err := NewPostgresStorage(Config{ConnectionString: "postgres://invalid:5432/nonexistent"})
	if err == nil {
		t.Error("expected error for invalid DSN")
	}
}

func TestPostgresStorage(t *testing.T) {
	getPostgresDSN(t)
	runStorageSuite(t, newPostgresTestStorage)
}

func TestPostgresStorageNullCategory(t *testing.T) {
	s := newPostgresTestStorage(t).(*PostgresStorage)
	ctx := context.Background()

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO fuel (name, price, fuel_type) VALUES ('Legacy', 40, NULL) RETURNING id`).Scan(&id)
	require.NoError(t, err)

	got, err := s.GetFuel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryPetrol, got.Category)
}

func TestPostgresStorageMigrationsIdempotent(t *testing.T) {
	dsn := getPostgresDSN(t)
	for range 2 {
		s, err := NewPostgresStorage(Config{ConnectionString: dsn})
		require.NoError(t, err)
		require.NoError(t, s.Ping(context.Background()))
		s.Close()
	}
}
