package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-lending/library"
)

type stubBroker bool

func (b stubBroker) IsHealthy() bool { return bool(b) }

func TestHealthHandler(t *testing.T) {
	db, err := library.NewDatabase(filepath.Join(t.TempDir(), "health.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	check := func(broker brokerHealth) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		healthHandler(db, broker).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rec
	}

	rec := check(nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	assert.Equal(t, http.StatusOK, check(stubBroker(true)).Code)

	rec = check(stubBroker(false))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "broker")

	require.NoError(t, db.Close())
	rec = check(nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store")
}
