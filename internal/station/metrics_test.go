package station

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/crypto/bcrypt"

	"fuelstation/internal/auth"
	"fuelstation/internal/models"
	"fuelstation/internal/ratelimit"
)

// collectSums flattens every int64 sum into name and, for operation
// counters, name/operation/outcome.
func collectSums(t *testing.T, reader sdkmetric.Reader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			data, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range data.DataPoints {
				sums[m.Name] += dp.Value
				op, hasOp := dp.Attributes.Value(attribute.Key("operation"))
				outcome, hasOutcome := dp.Attributes.Value(attribute.Key("outcome"))
				if hasOp && hasOutcome {
					sums[m.Name+"/"+op.AsString()+"/"+outcome.AsString()] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestServiceMetricsUseInjectedProvider(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	store := newMemoryStore(t)
	limiter := ratelimit.NewWindow()
	t.Cleanup(limiter.Close)
	svc, err := NewService(store, auth.NewBcryptHasher(bcrypt.MinCost, nil), auth.RandomTokens{}, limiter, testConfig(),
		WithMeterProvider(mp),
	)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "alice-password")
	require.NoError(t, err)
	customer, err := svc.Login(ctx, "alice", "alice-password")
	require.NoError(t, err)

	fuel := models.NewFuel("Petrol 95", 10, models.CategoryPetrol)
	require.NoError(t, store.CreateFuel(ctx, fuel))
	require.NoError(t, store.CreateTank(ctx, models.NewTank(fuel.ID, 10, 10)))

	_, err = svc.Purchase(ctx, customer.ID, fuel.ID, 3, customer.SessionToken)
	require.NoError(t, err)
	_, err = svc.Purchase(ctx, customer.ID, fuel.ID, 3, "stale")
	assertKind(t, err, KindUnauthorized)

	sums := collectSums(t, reader)
	assert.Equal(t, int64(1), sums["station.registrations"])
	assert.Equal(t, int64(30), sums["station.revenue"])
	assert.Equal(t, int64(3), sums["station.units"])
	assert.Equal(t, int64(1), sums["station.operations/purchase/ok"])
	assert.Equal(t, int64(1), sums["station.operations/purchase/"+string(KindUnauthorized)])
}
