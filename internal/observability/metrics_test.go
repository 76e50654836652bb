package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelstation/internal/version"
)

func TestNewMetricsServer(t *testing.T) {
	cfg := testConfig(true, false)

	provider, err := Setup(cfg, version.Info{})
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	ms := NewMetricsServer(9090, cfg.Metrics.Path, provider)
	assert.NotNil(t, ms)
	assert.Equal(t, ":9090", ms.server.Addr)
}

func TestMetricsServer_ServesStationCounters(t *testing.T) {
	cfg := testConfig(true, false)

	provider, err := Setup(cfg, version.Info{Version: "test"})
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	counter, err := provider.MeterProvider().Meter("fuelstation/test").Int64Counter("station.test.sales")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	ms := NewMetricsServer(0, cfg.Metrics.Path, provider)
	rec := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "station_test_sales"), "metric missing from scrape output")
}

func TestMetricsServer_StartAndShutdown(t *testing.T) {
	cfg := testConfig(true, false)

	provider, err := Setup(cfg, version.Info{})
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	// Port 0 picks a free port
	ms := NewMetricsServer(0, cfg.Metrics.Path, provider)

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- ms.Start()
	}()

	// Give the server time to start
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = ms.Shutdown(ctx)
	assert.NoError(t, err)

	serverErr := <-errCh
	assert.Equal(t, http.ErrServerClosed, serverErr)
}

func TestNewMetricsServer_NilProvider(t *testing.T) {
	ms := NewMetricsServer(9090, "/metrics", nil)
	require.NotNil(t, ms)

	rec := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
