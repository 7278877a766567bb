package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/booking-platform/internal/config"
	"github.com/wolfman30/booking-platform/internal/notify"
	"github.com/wolfman30/booking-platform/pkg/logging"
)

func TestSetupMetricsExposesEngineMetrics(t *testing.T) {
	registry, handler := setupMetrics()
	require.NotNil(t, handler)

	engine, err := bootstrap.BuildEngine(bootstrap.EngineDeps{
		Config:     appconfig.Load(),
		Stores:     bootstrap.NewMemoryStores(time.UTC),
		Registerer: registry,
		Logger:     logging.New("error"),
	})
	require.NoError(t, err)
	engine.Metrics.ObserveOperation("create", "ok", 0.01)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "booking_engine_operations_total"), "engine counter exported")
	assert.True(t, strings.Contains(body, "go_goroutines"), "go collector exported")
}

func TestSetupEmailFallsBackToStub(t *testing.T) {
	cfg := &appconfig.Config{EmailProvider: "auto", AWSRegion: "us-east-1"}
	sender := setupEmail(context.Background(), cfg, logging.New("error"))
	_, ok := sender.(*notify.StubEmailSender)
	assert.True(t, ok)
}
