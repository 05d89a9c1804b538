package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(t *testing.T, h *HealthHandler) (int, OverallHealth) {
	t.Helper()
	app := fiber.New()
	app.Get("/v1/health", h.HandleHealth)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body OverallHealth
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func okCheck(context.Context) error { return nil }

func TestHealthStartingUntilReady(t *testing.T) {
	h := NewHealthHandler(map[string]Check{"redis": okCheck})

	code, body := probe(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "starting", body.OverallStatus)

	h.SetReady()
	code, body = probe(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.OverallStatus)
	assert.Equal(t, "ok", body.Components["redis"].Status)
}

func TestHealthReportsFailingComponent(t *testing.T) {
	h := NewHealthHandler(map[string]Check{
		"redis":        okCheck,
		"status_store": func(context.Context) error { return errors.New("connection refused") },
	})
	h.SetReady()

	code, body := probe(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", body.OverallStatus)
	assert.Equal(t, "ok", body.Components["redis"].Status)
	assert.Equal(t, "connection refused", body.Components["status_store"].Error)
}
