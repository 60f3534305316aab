package api

import (
	"bytes"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentrt/pkg/engine"
	"github.com/codeready-toolchain/agentrt/pkg/metrics"
	"github.com/codeready-toolchain/agentrt/pkg/store"
)

func TestPublicRoutesBypassAuth(t *testing.T) {
	st := store.NewMemoryStore()
	reg := engine.NewRegistry()
	eng := engine.New(st, reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := denyAllVerifier{}

	e := NewServer(Deps{Store: st, Engine: eng, Registry: reg, Metrics: metrics.NewRegistry(), Verifier: verifier, Logger: logger})

	for _, path := range []string{"/", "/health", "/ok", "/info", "/openapi.json", "/metrics/json"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, 200, rec.Code, "public route %s must not require auth", path)
	}
}

func TestAuthedRouteRejectsMissingBearerToken(t *testing.T) {
	st := store.NewMemoryStore()
	reg := engine.NewRegistry()
	eng := engine.New(st, reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := denyAllVerifier{}

	e := NewServer(Deps{Store: st, Engine: eng, Registry: reg, Metrics: metrics.NewRegistry(), Verifier: verifier, Logger: logger})

	req := httptest.NewRequest("POST", "/assistants", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, 401, rec.Code)
}

func TestCronRoutesAreMountedUnderRunsPrefix(t *testing.T) {
	st := store.NewMemoryStore()
	reg := engine.NewRegistry()
	eng := engine.New(st, reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := NewServer(Deps{Store: st, Engine: eng, Registry: reg, Metrics: metrics.NewRegistry(), Logger: logger})

	req := httptest.NewRequest("POST", "/runs/crons/count", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code, "count endpoint must be reachable at /runs/crons/count")
	assert.Equal(t, "0", string(bytes.TrimSpace(rec.Body.Bytes())))

	// The old, non-spec "/crons" prefix must not be routed.
	req2 := httptest.NewRequest("POST", "/crons/count", bytes.NewBufferString(`{}`))
	rec2 := httptest.NewRecorder()
	e.ServeHTTP(rec2, req2)
	assert.Equal(t, 404, rec2.Code)
}

type denyAllVerifier struct{}

func (denyAllVerifier) Verify(token string) (string, error) { return "", assert.AnError }
