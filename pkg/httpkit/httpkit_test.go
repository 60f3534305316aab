package httpkit

import (
	"bufio"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEWriterSetsRequiredHeaders(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/stream", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	w := NewSSEWriter(c)
	require.NoError(t, w.Send(SSEMetadata, map[string]any{"run_id": "r1"}))
	require.NoError(t, w.End())

	assert.Equal(t, "text/event-stream; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

func TestSSEWriterFramesEventAndDataLines(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/stream", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	w := NewSSEWriter(c)
	require.NoError(t, w.Send(SSEValues, map[string]any{"foo": "bar"}))
	require.NoError(t, w.End())

	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, "event: values", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "data: "))
	assert.Contains(t, rec.Body.String(), "event: end")
}

func TestSSEWriterSendErrorFramesErrorEvent(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/stream", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	w := NewSSEWriter(c)
	require.NoError(t, w.SendError("boom"))
	assert.Contains(t, rec.Body.String(), "event: error")
	assert.Contains(t, rec.Body.String(), `"detail":"boom"`)
}

func TestErrorWritesDetailEnvelope(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, NotFound(c, ""))
	assert.Equal(t, 404, rec.Code)
	assert.JSONEq(t, `{"detail":"Not found"}`, rec.Body.String())
}

func TestConflictDefaultMessage(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, Conflict(c, ""))
	assert.Equal(t, 409, rec.Code)
	assert.JSONEq(t, `{"detail":"Resource already exists"}`, rec.Body.String())
}

func TestDeletedReturnsEmptyObject(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, Deleted(c))
	assert.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestCountReturnsBareInteger(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, Count(c, 42))
	assert.Equal(t, "42", strings.TrimSpace(rec.Body.String()))
}
