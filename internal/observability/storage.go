package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"fuelstation/internal/models"
	"fuelstation/internal/storage"
)

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation. Calls made through a
// transaction are recorded as child spans of the transaction span.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
func NewInstrumentedStorage(inner storage.Storage, tp trace.TracerProvider, mp metric.MeterProvider) (*InstrumentedStorage, error) {
	tracer := tp.Tracer("fuelstation/storage")
	meter := mp.Meter("fuelstation/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// observe runs fn inside a span named after operation and records its outcome.
func (s *InstrumentedStorage) observe(ctx context.Context, operation string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := s.startSpan(ctx, operation, attrs...)
	start := time.Now()
	err := fn(ctx)
	s.record(ctx, span, operation, start, err)
	return err
}

func (s *InstrumentedStorage) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	return s.observe(ctx, "CreateCustomer", func(ctx context.Context) error {
		return s.inner.CreateCustomer(ctx, customer)
	})
}

func (s *InstrumentedStorage) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	var result *models.Customer
	err := s.observe(ctx, "GetCustomer", func(ctx context.Context) (err error) {
		result, err = s.inner.GetCustomer(ctx, id)
		return err
	}, attribute.Int64("customer_id", id))
	return result, err
}

func (s *InstrumentedStorage) GetCustomerByLogin(ctx context.Context, login string) (*models.Customer, error) {
	var result *models.Customer
	err := s.observe(ctx, "GetCustomerByLogin", func(ctx context.Context) (err error) {
		result, err = s.inner.GetCustomerByLogin(ctx, login)
		return err
	})
	return result, err
}

func (s *InstrumentedStorage) SetCustomerToken(ctx context.Context, id int64, token string) error {
	return s.observe(ctx, "SetCustomerToken", func(ctx context.Context) error {
		return s.inner.SetCustomerToken(ctx, id, token)
	}, attribute.Int64("customer_id", id))
}

func (s *InstrumentedStorage) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	return s.observe(ctx, "CreateAdmin", func(ctx context.Context) error {
		return s.inner.CreateAdmin(ctx, admin)
	})
}

func (s *InstrumentedStorage) GetAdminByLogin(ctx context.Context, login string) (*models.Admin, error) {
	var result *models.Admin
	err := s.observe(ctx, "GetAdminByLogin", func(ctx context.Context) (err error) {
		result, err = s.inner.GetAdminByLogin(ctx, login)
		return err
	})
	return result, err
}

func (s *InstrumentedStorage) GetAdminByToken(ctx context.Context, token string) (*models.Admin, error) {
	var result *models.Admin
	err := s.observe(ctx, "GetAdminByToken", func(ctx context.Context) (err error) {
		result, err = s.inner.GetAdminByToken(ctx, token)
		return err
	})
	return result, err
}

func (s *InstrumentedStorage) SetAdminToken(ctx context.Context, id int64, token string) error {
	return s.observe(ctx, "SetAdminToken", func(ctx context.Context) error {
		return s.inner.SetAdminToken(ctx, id, token)
	}, attribute.Int64("admin_id", id))
}

func (s *InstrumentedStorage) CreateFuel(ctx context.Context, fuel *models.Fuel) error {
	return s.observe(ctx, "CreateFuel", func(ctx context.Context) error {
		return s.inner.CreateFuel(ctx, fuel)
	}, attribute.String("fuel_name", fuel.Name))
}

func (s *InstrumentedStorage) GetFuel(ctx context.Context, id int64) (*models.Fuel, error) {
	var result *models.Fuel
	err := s.observe(ctx, "GetFuel", func(ctx context.Context) (err error) {
		result, err = s.inner.GetFuel(ctx, id)
		return err
	}, attribute.Int64("fuel_id", id))
	return result, err
}

func (s *InstrumentedStorage) Fuels(ctx context.Context) ([]*models.Fuel, error) {
	var result []*models.Fuel
	err := s.observe(ctx, "Fuels", func(ctx context.Context) (err error) {
		result, err = s.inner.Fuels(ctx)
		return err
	})
	return result, err
}

func (s *InstrumentedStorage) FuelStock(ctx context.Context) ([]*models.FuelStock, error) {
	var result []*models.FuelStock
	err := s.observe(ctx, "FuelStock", func(ctx context.Context) (err error) {
		result, err = s.inner.FuelStock(ctx)
		return err
	})
	return result, err
}

func (s *InstrumentedStorage) UpdateFuelPrice(ctx context.Context, id int64, price int64) error {
	return s.observe(ctx, "UpdateFuelPrice", func(ctx context.Context) error {
		return s.inner.UpdateFuelPrice(ctx, id, price)
	}, attribute.Int64("fuel_id", id), attribute.Int64("price", price))
}

func (s *InstrumentedStorage) CreateTank(ctx context.Context, tank *models.Tank) error {
	return s.observe(ctx, "CreateTank", func(ctx context.Context) error {
		return s.inner.CreateTank(ctx, tank)
	}, attribute.Int64("fuel_id", tank.FuelID))
}

func (s *InstrumentedStorage) Tanks(ctx context.Context, fuelID int64) ([]models.Tank, error) {
	var result []models.Tank
	err := s.observe(ctx, "Tanks", func(ctx context.Context) (err error) {
		result, err = s.inner.Tanks(ctx, fuelID)
		return err
	}, attribute.Int64("fuel_id", fuelID))
	return result, err
}

func (s *InstrumentedStorage) GetBank(ctx context.Context) (*models.Bank, error) {
	var result *models.Bank
	err := s.observe(ctx, "GetBank", func(ctx context.Context) (err error) {
		result, err = s.inner.GetBank(ctx)
		return err
	})
	return result, err
}

// WithTx records the whole transaction as one span. The tx handed to fn is
// instrumented too.
func (s *InstrumentedStorage) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.observe(ctx, "WithTx", func(ctx context.Context) error {
		return s.inner.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return fn(ctx, &instrumentedTx{s: s, inner: tx})
		})
	})
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	return s.observe(ctx, "Ping", s.inner.Ping)
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}

// instrumentedTx records each transactional call under a "Tx." prefix.
type instrumentedTx struct {
	s     *InstrumentedStorage
	inner storage.Tx
}

func (t *instrumentedTx) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	var result *models.Customer
	err := t.s.observe(ctx, "Tx.GetCustomer", func(ctx context.Context) (err error) {
		result, err = t.inner.GetCustomer(ctx, id)
		return err
	}, attribute.Int64("customer_id", id))
	return result, err
}

func (t *instrumentedTx) GetFuel(ctx context.Context, id int64) (*models.Fuel, error) {
	var result *models.Fuel
	err := t.s.observe(ctx, "Tx.GetFuel", func(ctx context.Context) (err error) {
		result, err = t.inner.GetFuel(ctx, id)
		return err
	}, attribute.Int64("fuel_id", id))
	return result, err
}

func (t *instrumentedTx) Tanks(ctx context.Context, fuelID int64) ([]models.Tank, error) {
	var result []models.Tank
	err := t.s.observe(ctx, "Tx.Tanks", func(ctx context.Context) (err error) {
		result, err = t.inner.Tanks(ctx, fuelID)
		return err
	}, attribute.Int64("fuel_id", fuelID))
	return result, err
}

func (t *instrumentedTx) GetBank(ctx context.Context) (*models.Bank, error) {
	var result *models.Bank
	err := t.s.observe(ctx, "Tx.GetBank", func(ctx context.Context) (err error) {
		result, err = t.inner.GetBank(ctx)
		return err
	})
	return result, err
}

func (t *instrumentedTx) UpdateTankStored(ctx context.Context, tankID, expected, value int64) error {
	return t.s.observe(ctx, "Tx.UpdateTankStored", func(ctx context.Context) error {
		return t.inner.UpdateTankStored(ctx, tankID, expected, value)
	}, attribute.Int64("tank_id", tankID), attribute.Int64("stored", value))
}

func (t *instrumentedTx) UpdateCustomerBalance(ctx context.Context, customerID, expected, value int64) error {
	return t.s.observe(ctx, "Tx.UpdateCustomerBalance", func(ctx context.Context) error {
		return t.inner.UpdateCustomerBalance(ctx, customerID, expected, value)
	}, attribute.Int64("customer_id", customerID))
}

func (t *instrumentedTx) CreditBank(ctx context.Context, amount int64) error {
	return t.s.observe(ctx, "Tx.CreditBank", func(ctx context.Context) error {
		return t.inner.CreditBank(ctx, amount)
	}, attribute.Int64("amount", amount))
}

func (t *instrumentedTx) DebitBank(ctx context.Context, amount int64) error {
	return t.s.observe(ctx, "Tx.DebitBank", func(ctx context.Context) error {
		return t.inner.DebitBank(ctx, amount)
	}, attribute.Int64("amount", amount))
}

// Ensure the wrappers satisfy the storage contracts
var (
	_ storage.Storage = (*InstrumentedStorage)(nil)
	_ storage.Tx      = (*instrumentedTx)(nil)
)
