package station

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type serviceMetrics struct {
	operations    metric.Int64Counter
	revenue       metric.Int64Counter
	refillCost    metric.Int64Counter
	units         metric.Int64Counter
	registrations metric.Int64Counter
}

func newServiceMetrics(mp metric.MeterProvider) (*serviceMetrics, error) {
	meter := mp.Meter("fuelstation/station")

	operations, err := meter.Int64Counter(
		"station.operations",
		metric.WithDescription("Station operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	revenue, err := meter.Int64Counter(
		"station.revenue",
		metric.WithDescription("Sales credited to the bank in minor currency units"),
		metric.WithUnit("{cent}"),
	)
	if err != nil {
		return nil, err
	}

	refillCost, err := meter.Int64Counter(
		"station.refill.cost",
		metric.WithDescription("Refill costs debited from the bank in minor currency units"),
		metric.WithUnit("{cent}"),
	)
	if err != nil {
		return nil, err
	}

	units, err := meter.Int64Counter(
		"station.units",
		metric.WithDescription("Metered fuel units drawn from or filled into tanks"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, err
	}

	registrations, err := meter.Int64Counter(
		"station.registrations",
		metric.WithDescription("Customers registered"),
		metric.WithUnit("{customer}"),
	)
	if err != nil {
		return nil, err
	}

	return &serviceMetrics{
		operations:    operations,
		revenue:       revenue,
		refillCost:    refillCost,
		units:         units,
		registrations: registrations,
	}, nil
}

// operation counts one call of name; failures are labelled with their kind.
func (m *serviceMetrics) operation(ctx context.Context, name string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", name),
		attribute.String("outcome", outcome),
	))
}

func (m *serviceMetrics) sold(ctx context.Context, cost, units int64) {
	m.revenue.Add(ctx, cost)
	m.units.Add(ctx, units, metric.WithAttributes(attribute.String("direction", "sold")))
}

func (m *serviceMetrics) refilled(ctx context.Context, cost, units int64) {
	m.refillCost.Add(ctx, cost)
	m.units.Add(ctx, units, metric.WithAttributes(attribute.String("direction", "refilled")))
}

func (m *serviceMetrics) registered(ctx context.Context) {
	m.registrations.Add(ctx, 1)
}
