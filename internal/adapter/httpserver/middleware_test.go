package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/sinecast/internal/platform/correlation"
	apperrors "github.com/pscheid92/sinecast/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestMiddlewareWithStructuredError(t *testing.T) {
	c, rec := newTestContext()

	handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return apperrors.ValidationError("invalid input")
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid input", resp.Error)
	assert.Equal(t, apperrors.TypeValidation, resp.Type)
}

func TestMiddlewareWithWrappedStructuredError(t *testing.T) {
	c, rec := newTestContext()

	handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return fmt.Errorf("handler: %w", apperrors.RateLimitedError("slow down"))
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMiddlewareWithStandardError(t *testing.T) {
	c, rec := newTestContext()

	handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return errors.New("standard error")
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, apperrors.TypeInternal, resp.Type)
}

func TestMiddlewareWithNoError(t *testing.T) {
	c, rec := newTestContext()

	handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "success")
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", rec.Body.String())
}

func TestMiddlewarePassesEchoHTTPErrors(t *testing.T) {
	c, _ := newTestContext()

	handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return echo.ErrMethodNotAllowed
	})

	err := handler(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusMethodNotAllowed, httpErr.Code)
}

func TestMiddlewareStructuresBodyLimitRejection(t *testing.T) {
	c, rec := newTestContext()

	handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return echo.ErrRequestEntityTooLarge
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apperrors.TypeTooLarge, resp.Type)
	assert.Equal(t, "request body too large", resp.Error)
}

func TestMiddlewareWithContext(t *testing.T) {
	c, rec := newTestContext()

	handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return apperrors.NotFoundError("series not found").WithField("name", "x")
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "x", resp.Context["name"])
}

func TestMiddlewareAllErrorTypes(t *testing.T) {
	tests := []struct {
		name       string
		err        *apperrors.Error
		wantStatus int
	}{
		{"validation", apperrors.ValidationError("invalid"), http.StatusBadRequest},
		{"too_large", apperrors.TooLargeError("too big"), http.StatusRequestEntityTooLarge},
		{"not_found", apperrors.NotFoundError("missing"), http.StatusNotFound},
		{"rate_limited", apperrors.RateLimitedError("slow down"), http.StatusTooManyRequests},
		{"unavailable", apperrors.UnavailableError("full"), http.StatusServiceUnavailable},
		{"internal", apperrors.InternalError("failed", errors.New("cause")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestContext()

			handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
				return tt.err
			})

			require.NoError(t, handler(c))
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp apperrors.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.err.Type, resp.Type)
		})
	}
}

func TestHandleErrorWithNil(t *testing.T) {
	c, rec := newTestContext()

	assert.NoError(t, HandleError(c, nil))
	assert.Equal(t, 0, rec.Body.Len())
}

func TestCorrelationMiddlewareSetsID(t *testing.T) {
	c, _ := newTestContext()

	var seen string
	var ok bool
	handler := correlationMiddleware(func(c echo.Context) error {
		seen, ok = correlation.ID(c.Request().Context())
		return nil
	})

	require.NoError(t, handler(c))
	assert.True(t, ok)
	assert.NotEmpty(t, seen)
}
