package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminders/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		DBDSN:              "postgres://unused",
		Port:               "0",
		Timezone:           "UTC",
		DeliveryInterval:   time.Minute,
		HTTPTimeout:        time.Second,
		GesthorScheme:      "http",
		GesthorBasePath:    "/gthWS",
		OmniplusScheme:     "https",
		OmniplusBasePath:   "/api/v1",
		GatewayRPS:         5,
		GatewayBurst:       10,
		BreakerMaxFailures: 5,
		BreakerTimeout:     30 * time.Second,
		AffirmativeValues:  []string{"sim"},
	}
}

func TestBuildWiresRoutes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ready := true
	a, err := Build(testConfig(), mock, func(ctx context.Context) error {
		if !ready {
			return errors.New("down")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, a.Location)
	assert.Same(t, a.Discovery, a.Scheduler.Discovery)
	assert.Same(t, a.Delivery, a.Scheduler.Delivery)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		a.HTTP.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}
	assert.Equal(t, http.StatusOK, get("/healthz").Code)
	assert.Equal(t, http.StatusOK, get("/readyz").Code)
	ready = false
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)

	metrics := get("/metrics")
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "reminder_gateway_latency_seconds")
}

func TestBuildRejectsUnknownTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.Timezone = "Mars/Olympus"
	_, err := Build(cfg, nil, nil)
	assert.Error(t, err)
}
