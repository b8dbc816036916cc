package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whois-cat/ETL/pkg/middleware"
)

func serve(t *testing.T, c *Checker, path string) (*httptest.ResponseRecorder, Report) {
	t.Helper()
	e := echo.New()
	e.Use(middleware.RequestContext())
	e.HTTPErrorHandler = middleware.Error(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	c.RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp Report
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestReadiness_NotReadyUntilStarted(t *testing.T) {
	c := NewChecker("test")
	c.AddCheck("postgres", func(context.Context) error { return nil })

	rec, resp := serve(t, c, "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, StateDown, resp.State)

	c.SetReady(true)
	rec, resp = serve(t, c, "/api/v1/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StateUp, resp.State)
}

func TestHealth_RequiredFailureIsUnhealthy(t *testing.T) {
	c := NewChecker("test")
	c.AddCheck("postgres", func(context.Context) error { return nil })
	c.AddCheck("elasticsearch", func(context.Context) error { return errors.New("connection refused") })

	rec, resp := serve(t, c, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, StateDown, resp.State)
	assert.Equal(t, "connection refused", resp.Probes["elasticsearch"].Error)
	assert.Equal(t, StateUp, resp.Probes["postgres"].State)
}

func TestHealth_OptionalFailureDegrades(t *testing.T) {
	c := NewChecker("test")
	c.AddCheck("postgres", func(context.Context) error { return nil })
	c.AddOptionalCheck("kafka", func(context.Context) error { return errors.New("broker down") })

	rec, resp := serve(t, c, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StateDegraded, resp.State)
}

func TestLiveness(t *testing.T) {
	rec, resp := serve(t, NewChecker("1.2.3"), "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestStatusHandler(t *testing.T) {
	c := NewChecker("test")
	rec, _ := serve(t, c, "/api/v1/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var errResp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Contains(t, errResp.Message, "status not available")
	assert.NotEmpty(t, errResp.RequestID)

	c.SetStatusFunc(func() any { return map[string]int{"cycles": 3} })
	rec, _ = serve(t, c, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cycles":3}`, rec.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	rec, _ := serve(t, NewChecker("test"), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheck_RegistrationAfterServingStarts(t *testing.T) {
	c := NewChecker("test")
	assert.Equal(t, StateUp, c.Check(context.Background()).State)

	c.AddCheck("postgres", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	r := c.Check(ctx)
	assert.Equal(t, StateDown, r.State)
	assert.Contains(t, r.Probes["postgres"].Error, "deadline")
}
