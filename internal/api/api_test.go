package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fracreserve/banksim/internal/directory"
	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/engine"
	"github.com/fracreserve/banksim/internal/platform/logger"
	"github.com/fracreserve/banksim/internal/platform/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *engine.Engine) {
	t.Helper()
	log := logger.NewNop()
	m := metrics.New()
	eng := engine.New(agent.NewDefaultFed(), directory.New(), engine.WithLogger(log), engine.WithMetrics(m))
	ticker := engine.NewTicker(eng, 0, log)
	t.Cleanup(ticker.Stop)

	r := NewRouter(RouterConfig{
		SimulationHandler: NewSimulationHandler(context.Background(), eng, ticker),
		Metrics:           m,
		Logger:            log,
	})
	return r, eng
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthCheck(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := do(t, r, http.MethodGet, "/healthcheck", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRegisterAndTransact(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/api/banks", map[string]any{
		"mode":    "BALANCES",
		"reserve": "1000",
		"deposit": "1000",
		"equity":  "1000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bankID := decode[registeredResponse](t, rec).ID

	rec = do(t, r, http.MethodPost, "/api/households", map[string]any{"cash": "500"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	hhID := decode[registeredResponse](t, rec).ID

	rec = do(t, r, http.MethodPost, "/api/transactions/deposit", map[string]any{
		"amount": "200", "household_id": hhID, "bank_id": bankID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[engine.Result](t, rec).Success)

	rec = do(t, r, http.MethodGet, "/api/banks/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[agent.BankView](t, rec)
	assert.True(t, view.Reserve.Equal(dec("1200")))
	assert.True(t, view.Deposit.Equal(dec("1200")))
}

func TestErrorsCarryKindAndStatus(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(t, r, http.MethodGet, "/api/banks/42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[ErrorEnvelope](t, rec).Error.Code)

	rec = do(t, r, http.MethodGet, "/api/banks/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", decode[ErrorEnvelope](t, rec).Error.Code)

	rec = do(t, r, http.MethodPut, "/api/fed/reserve-ratio", map[string]any{"value": "1.5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/transactions/fed-lend", map[string]any{"amount": "-1", "bank_id": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_AMOUNT", decode[ErrorEnvelope](t, rec).Error.Code)
}

func TestBankRunEndpoint(t *testing.T) {
	r, eng := newTestRouter(t)
	_, err := eng.RegisterBank(agent.BankSpec{
		Mode:    agent.BankModeBalances,
		Reserve: dec("100"),
		Deposit: dec("1000"),
		Equity:  dec("50"),
	})
	require.NoError(t, err)

	rec := do(t, r, http.MethodPost, "/api/banks/1/run", map[string]any{"ratio": "0.5"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[engine.BankRunResult](t, rec).Bankrupt)

	rec = do(t, r, http.MethodGet, "/api/banks/1/compliance", nil)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "INACTIVE_AGENT", decode[ErrorEnvelope](t, rec).Error.Code)

	rec = do(t, r, http.MethodGet, "/api/overview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ov := decode[engine.Overview](t, rec)
	assert.Equal(t, 0, ov.ActiveBanks)
	assert.Equal(t, 1, ov.RetiredBanks)
}

func TestSimulationControls(t *testing.T) {
	r, eng := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/api/simulation/step", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[engine.TickReport](t, rec).TickNumber)
	assert.Equal(t, int64(1), eng.CurrentTick())

	rec = do(t, r, http.MethodPost, "/api/simulation/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[statusResponse](t, rec).Running)

	rec = do(t, r, http.MethodPost, "/api/simulation/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[statusResponse](t, rec).Running)

	rec = do(t, r, http.MethodGet, "/api/simulation/status", nil)
	st := decode[statusResponse](t, rec)
	require.NotNil(t, st.LastReport)
	assert.Equal(t, int64(1), st.LastReport.TickNumber)
}

func TestMetricsRoutes(t *testing.T) {
	r, _ := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/simulation/step", nil)

	rec := do(t, r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tick")

	rec = do(t, r, http.MethodGet, "/metrics/prometheus", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "banksim_")
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
