package storage

import (
	"context"
	"time"

	"fuelstation/internal/models"
)

// Storage defines the ledger store: customers, admins, fuels, tanks and the
// bank singleton. Every backend provides the same transactional guarantees,
// so the station engine never depends on which one is configured.
//
// Reads that return entities return copies; mutating them has no effect on
// the store.
type Storage interface {
	// CreateCustomer inserts a customer and sets its ID. Returns
	// ErrAlreadyExists when the login is taken.
	CreateCustomer(ctx context.Context, customer *models.Customer) error

	// GetCustomer retrieves a customer by ID
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)

	// GetCustomerByLogin retrieves a customer by its unique login
	GetCustomerByLogin(ctx context.Context, login string) (*models.Customer, error)

	// SetCustomerToken replaces the customer's session token
	SetCustomerToken(ctx context.Context, id int64, token string) error

	// CreateAdmin inserts an admin and sets its ID. Returns ErrAlreadyExists
	// when the login is taken.
	CreateAdmin(ctx context.Context, admin *models.Admin) error

	// GetAdminByLogin retrieves an admin by its unique login
	GetAdminByLogin(ctx context.Context, login string) (*models.Admin, error)

	// GetAdminByToken retrieves the admin holding the given live session token
	GetAdminByToken(ctx context.Context, token string) (*models.Admin, error)

	// SetAdminToken replaces the admin's session token
	SetAdminToken(ctx context.Context, id int64, token string) error

	// CreateFuel inserts a fuel and sets its ID
	CreateFuel(ctx context.Context, fuel *models.Fuel) error

	// GetFuel retrieves a fuel by ID
	GetFuel(ctx context.Context, id int64) (*models.Fuel, error)

	// Fuels returns every fuel ordered by ID, with or without tanks
	Fuels(ctx context.Context) ([]*models.Fuel, error)

	// FuelStock returns fuels that have at least one tank, with stored and
	// capacity summed across their tanks, ordered by fuel ID
	FuelStock(ctx context.Context) ([]*models.FuelStock, error)

	// UpdateFuelPrice sets a fuel's unit price
	UpdateFuelPrice(ctx context.Context, id int64, price int64) error

	// CreateTank inserts a tank for an existing fuel and sets its ID
	CreateTank(ctx context.Context, tank *models.Tank) error

	// Tanks returns the tanks backing a fuel ordered by tank ID
	Tanks(ctx context.Context, fuelID int64) ([]models.Tank, error)

	// GetBank returns the bank singleton, or ErrNotFound if no sale has
	// created it yet
	GetBank(ctx context.Context) (*models.Bank, error)

	// WithTx runs fn inside a single store transaction. If fn returns an
	// error every write made through tx is rolled back and the error is
	// returned unchanged.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources
	Close() error
}

// Tx is the view of the store inside a transaction. Reads see the
// transaction's own writes. Every write is conditioned on the value read
// earlier in the same transaction and returns ErrConflict when the row has
// moved on, so a plan built from stale reads can never be applied.
type Tx interface {
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	GetFuel(ctx context.Context, id int64) (*models.Fuel, error)
	Tanks(ctx context.Context, fuelID int64) ([]models.Tank, error)

	// GetBank returns ErrNotFound when the bank does not exist yet
	GetBank(ctx context.Context) (*models.Bank, error)

	// UpdateTankStored sets stored to value if it currently equals expected
	UpdateTankStored(ctx context.Context, tankID, expected, value int64) error

	// UpdateCustomerBalance sets balance to value if it currently equals expected
	UpdateCustomerBalance(ctx context.Context, customerID, expected, value int64) error

	// CreditBank adds amount to the bank total, creating the bank if absent
	CreditBank(ctx context.Context, amount int64) error

	// DebitBank subtracts amount from the bank total. Returns ErrNotFound
	// when the bank is absent and ErrConflict when the total is below amount.
	DebitBank(ctx context.Context, amount int64) error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type
	Type string `json:"type" yaml:"type"`

	// Path is used by the badger backend for its data directory
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	MaxOpenConns    int           `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"`
}

// BankID is the primary key of the bank singleton in every backend.
const BankID int64 = 1
