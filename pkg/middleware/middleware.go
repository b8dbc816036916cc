// Package middleware holds the echo middleware for the operational HTTP surface.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/whois-cat/ETL/pkg/tracing"
)

type requestIDKey struct{}

// RequestID returns the id RequestContext stored on ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestContext keeps the caller's X-Request-ID or issues a uuid, echoes it in the
// response and stores it on the request context.
func RequestContext() echo.MiddlewareFunc {
	return echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(context.WithValue(req.Context(), requestIDKey{}, id)))
		},
	})
}

func quiet(path string) bool {
	return path == "/metrics" || strings.HasPrefix(path, "/api/v1/health")
}

// Logger writes one line per request; probes and scrapes only at debug.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			started := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			ctx := c.Request().Context()
			entry := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id":  RequestID(ctx),
				"http_method": c.Request().Method,
				"http_route":  c.Path(),
				"http_status": c.Response().Status,
				"duration_ms": time.Since(started).Milliseconds(),
				"bytes_out":   c.Response().Size,
			})
			if quiet(c.Path()) {
				entry.Debugf("%s %s", c.Request().Method, c.Path())
			} else {
				entry.Infof("%s %s", c.Request().Method, c.Path())
			}
			return nil
		}
	}
}

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// resolve maps an error to a response code and body. Unknown errors become a bare 500.
func resolve(err error) (int, ErrorResponse) {
	var he *echo.HTTPError
	switch {
	case httperror.IsHTTPError(err):
		httperr := httperror.ToHTTPError(err)
		return httperror.GetStatusCode(err), ErrorResponse{Message: httperr.Error(), Meta: httperr.Meta}
	case errors.As(err, &he):
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, ErrorResponse{Message: msg}
	default:
		return http.StatusInternalServerError, ErrorResponse{Message: http.StatusText(http.StatusInternalServerError)}
	}
}

// Error is the echo error handler. Server-side failures are logged with the request id.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ctx := c.Request().Context()

		code, body := resolve(err)
		body.RequestID = RequestID(ctx)
		body.TraceID = tracing.GetTraceID(ctx)

		if code >= http.StatusInternalServerError {
			logger.WithContext(ctx).WithError(err).WithField("request_id", body.RequestID).Errorf("Request failed with %d", code)
		}
		_ = c.JSON(code, body)
	}
}
