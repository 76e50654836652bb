// Package station implements the transactional core of the fuel station:
// customer and admin sessions, purchases, refills and price changes.
//
// Every operation that moves stock or money runs inside one store
// transaction. All authorization and feasibility checks read inside that
// transaction and fail before the first write, so a failed call leaves no
// trace. Writes are conditioned on the values read; a concurrent writer that
// got there first turns into a StoreFailure instead of a lost update.
package station

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"fuelstation/internal/auth"
	"fuelstation/internal/models"
	"fuelstation/internal/storage"
)

// Rate limit keys, matching the keys the station has always used.
const (
	customerLoginKeyPrefix = "login_"
	adminLoginKeyPrefix    = "admin_login_"
	fuelListingKey         = "get_fuels_global"
)

// Config holds the business parameters of the service.
type Config struct {
	StartingBalance int64
	Limits          models.KeyedLimitsConfig
}

// ConfigFrom extracts the service parameters from the application config.
func ConfigFrom(cfg *models.Config) Config {
	return Config{
		StartingBalance: cfg.Station.StartingBalance,
		Limits:          cfg.Security.Limits,
	}
}

// Service handles station business logic on top of a storage backend
type Service struct {
	storage storage.Storage
	hasher  auth.Hasher
	tokens  auth.TokenIssuer
	limiter KeyedLimiter
	config  Config
	metrics *serviceMetrics
}

// ServiceOption configures optional service behavior.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	meterProvider metric.MeterProvider
}

// WithMeterProvider records the station counters on mp instead of the
// global meter provider.
func WithMeterProvider(mp metric.MeterProvider) ServiceOption {
	return func(o *serviceOptions) {
		o.meterProvider = mp
	}
}

// NewService creates a station service. The limiter is shared by every
// keyed limit the service enforces.
func NewService(store storage.Storage, hasher auth.Hasher, tokens auth.TokenIssuer, limiter KeyedLimiter, config Config, opts ...ServiceOption) (*Service, error) {
	o := serviceOptions{meterProvider: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(&o)
	}

	m, err := newServiceMetrics(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create station metrics: %w", err)
	}
	return &Service{
		storage: store,
		hasher:  hasher,
		tokens:  tokens,
		limiter: limiter,
		config:  config,
		metrics: m,
	}, nil
}

// CheckRateLimit records an attempt for key and fails with RateLimited when
// more than max attempts fall inside the current window.
func (s *Service) CheckRateLimit(key string, max int, window time.Duration) error {
	if !s.limiter.Allow(key, max, window) {
		return NewRateLimitedError(key)
	}
	return nil
}

// Fuels returns every fuel that has at least one tank, ordered by ID. The
// listing is throttled by a single global limit.
func (s *Service) Fuels(ctx context.Context) ([]*models.FuelStock, error) {
	lim := s.config.Limits.FuelListing
	if err := s.CheckRateLimit(fuelListingKey, lim.Max, lim.Window); err != nil {
		return nil, err
	}

	stock, err := s.storage.FuelStock(ctx)
	if err != nil {
		return nil, NewStoreFailureError("failed to list fuels", err)
	}
	return stock, nil
}

// AdminFuels is the stock listing for operators. It needs an admin session
// and is not counted against the global listing limit.
func (s *Service) AdminFuels(ctx context.Context, adminToken string) ([]*models.FuelStock, error) {
	if _, err := s.authorizeAdmin(ctx, adminToken); err != nil {
		return nil, err
	}

	stock, err := s.storage.FuelStock(ctx)
	if err != nil {
		return nil, NewStoreFailureError("failed to list fuels", err)
	}
	return stock, nil
}

// Register creates a customer holding the configured starting balance.
func (s *Service) Register(ctx context.Context, login, password string) (*models.Customer, error) {
	if err := models.ValidateCredentials(login, password); err != nil {
		return nil, NewInvalidRequestError("invalid credentials", err)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, NewStoreFailureError("failed to hash password", err)
	}

	customer := models.NewCustomer(login, hash, s.config.StartingBalance)
	if err := s.storage.CreateCustomer(ctx, customer); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, NewConflictError(fmt.Sprintf("login '%s' is already registered", customer.Login))
		}
		return nil, NewStoreFailureError("failed to create customer", err)
	}

	s.metrics.registered(ctx)
	return customer, nil
}

// Login verifies a customer's credentials and replaces its session token.
// The returned customer carries the new token.
func (s *Service) Login(ctx context.Context, login, password string) (*models.Customer, error) {
	login = strings.TrimSpace(login)
	lim := s.config.Limits.CustomerLogin
	if err := s.CheckRateLimit(customerLoginKeyPrefix+login, lim.Max, lim.Window); err != nil {
		return nil, err
	}

	customer, err := s.storage.GetCustomerByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewInvalidCredentialsError()
		}
		return nil, NewStoreFailureError("failed to look up customer", err)
	}

	if err := s.verify(ctx, customer.PasswordHash, password); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue()
	if err != nil {
		return nil, NewStoreFailureError("failed to issue session", err)
	}
	if err := s.storage.SetCustomerToken(ctx, customer.ID, token); err != nil {
		return nil, NewStoreFailureError("failed to store session", err)
	}

	customer.SessionToken = token
	return customer, nil
}

// AdminLogin verifies an admin's credentials and replaces its session token.
func (s *Service) AdminLogin(ctx context.Context, login, password string) (*models.Admin, error) {
	login = strings.TrimSpace(login)
	lim := s.config.Limits.AdminLogin
	if err := s.CheckRateLimit(adminLoginKeyPrefix+login, lim.Max, lim.Window); err != nil {
		return nil, err
	}

	admin, err := s.storage.GetAdminByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewInvalidCredentialsError()
		}
		return nil, NewStoreFailureError("failed to look up admin", err)
	}

	if err := s.verify(ctx, admin.PasswordHash, password); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue()
	if err != nil {
		return nil, NewStoreFailureError("failed to issue session", err)
	}
	if err := s.storage.SetAdminToken(ctx, admin.ID, token); err != nil {
		return nil, NewStoreFailureError("failed to store session", err)
	}

	admin.SessionToken = token
	return admin, nil
}

// BankInfo returns the bank ledger. Before the first sale there is no bank;
// that reads as a zero ledger, not as an error.
func (s *Service) BankInfo(ctx context.Context, adminToken string) (*models.Bank, error) {
	if _, err := s.authorizeAdmin(ctx, adminToken); err != nil {
		return nil, err
	}

	bank, err := s.storage.GetBank(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &models.Bank{}, nil
		}
		return nil, NewStoreFailureError("failed to read bank", err)
	}
	return bank, nil
}

func (s *Service) verify(ctx context.Context, hash, password string) error {
	err := s.hasher.Verify(ctx, hash, password)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrMismatch):
		return NewInvalidCredentialsError()
	default:
		return NewStoreFailureError("failed to verify credentials", err)
	}
}

// authorizeAdmin resolves a live admin session.
func (s *Service) authorizeAdmin(ctx context.Context, token string) (*models.Admin, error) {
	if token == "" {
		return nil, NewUnauthorizedError()
	}
	admin, err := s.storage.GetAdminByToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewUnauthorizedError()
		}
		return nil, NewStoreFailureError("failed to check admin session", err)
	}
	return admin, nil
}

// authorizeCustomer reads the customer inside tx and checks its session.
func authorizeCustomer(ctx context.Context, tx storage.Tx, customerID int64, token string) (*models.Customer, error) {
	customer, err := tx.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewCustomerNotFoundError(customerID)
		}
		return nil, err
	}
	if !customer.HasSession(token) {
		return nil, NewUnauthorizedError()
	}
	return customer, nil
}
