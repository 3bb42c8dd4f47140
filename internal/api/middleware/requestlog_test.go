package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLog_GeneratesRequestID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := RequestLog(logger)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	require.NoError(t, handler(c))

	reqID := rec.Header().Get(requestIDHeader)
	assert.NotEmpty(t, reqID)
	assert.Contains(t, buf.String(), reqID)
	assert.Contains(t, buf.String(), "path=/api/v1/alerts")
	assert.Contains(t, buf.String(), "status=200")
}

func TestRequestLog_SkipsScrapeAndProbePaths(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	e := echo.New()
	for _, path := range []string{"/metrics", "/healthz"} {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		handler := RequestLog(logger)(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})

		require.NoError(t, handler(c))

		// The request id is still issued; only the log line is dropped.
		assert.NotEmpty(t, rec.Header().Get(requestIDHeader), path)
		assert.Empty(t, buf.String(), path)
	}
}

func TestRequestLog_PropagatesClientRequestID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(requestIDHeader, "client-supplied-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := RequestLog(logger)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	require.NoError(t, handler(c))

	assert.Equal(t, "client-supplied-id", rec.Header().Get(requestIDHeader))
	assert.Equal(t, "client-supplied-id", c.Get("request_id"))
	assert.Contains(t, buf.String(), "client-supplied-id")
}
