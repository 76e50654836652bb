package station

import (
	"context"
	"time"

	"fuelstation/internal/models"
)

// ServiceInterface defines the station operations exposed to the API layer
type ServiceInterface interface {
	// Register creates a customer with the configured starting balance
	Register(ctx context.Context, login, password string) (*models.Customer, error)

	// Login verifies customer credentials and issues a new session token
	Login(ctx context.Context, login, password string) (*models.Customer, error)

	// AdminLogin verifies admin credentials and issues a new session token
	AdminLogin(ctx context.Context, login, password string) (*models.Admin, error)

	// Fuels lists the fuels that have tanks, with summed stock
	Fuels(ctx context.Context) ([]*models.FuelStock, error)

	// AdminFuels is Fuels for admins, exempt from the listing limit
	AdminFuels(ctx context.Context, adminToken string) ([]*models.FuelStock, error)

	// Purchase buys quantity units of one fuel and returns the new balance
	Purchase(ctx context.Context, customerID, fuelID, quantity int64, token string) (int64, error)

	// PurchaseBatch buys several fuels atomically and returns the new balance
	PurchaseBatch(ctx context.Context, customerID int64, items []models.LineItem, token string) (int64, error)

	// Refill tops up a fuel's tanks, paid for by the bank
	Refill(ctx context.Context, fuelID, amount int64, adminToken string) error

	// SetPrice changes a fuel's unit price
	SetPrice(ctx context.Context, fuelID, price int64, adminToken string) error

	// BankInfo returns the bank ledger; an absent bank reads as zero
	BankInfo(ctx context.Context, adminToken string) (*models.Bank, error)

	// CheckRateLimit returns a RateLimited error when key is over its limit
	CheckRateLimit(key string, max int, window time.Duration) error
}

// KeyedLimiter is a fixed-window limiter keyed by an arbitrary string.
type KeyedLimiter interface {
	Allow(key string, max int, window time.Duration) bool
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
