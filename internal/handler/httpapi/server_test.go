package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-messaging-service/internal/domain/model"
	"github.com/webitel/im-messaging-service/internal/domain/registry"
	"github.com/webitel/im-messaging-service/internal/presence"
	"github.com/webitel/im-messaging-service/internal/storage"
	"github.com/webitel/im-messaging-service/internal/storage/memstore"
)

type nopSocket struct{}

func (nopSocket) WriteMessage(int, []byte) error { return nil }

func (nopSocket) SetWriteDeadline(time.Time) error { return nil }

func (nopSocket) Close() error { return nil }

// deadStore fails its health probe; everything else is inherited and unused.
type deadStore struct{ storage.Store }

func (deadStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestStatusReportsRegistrySnapshot(t *testing.T) {
	reg := registry.New()
	t.Cleanup(reg.Shutdown)
	for range 3 {
		_, err := reg.Attach(model.Identity{UserID: uuid.New(), Username: "u"}, nopSocket{})
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	statusHandler(reg)(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body["connected_users"])
	assert.Equal(t, float64(3), body["total_connections"])
}

func TestHealthzOK(t *testing.T) {
	pres := presence.NewMemoryStore(time.Minute, time.Hour)
	rec := httptest.NewRecorder()
	healthHandler(pres, memstore.NewStore())(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthzDegradedWhenStoreDown(t *testing.T) {
	pres := presence.NewMemoryStore(time.Minute, time.Hour)
	rec := httptest.NewRecorder()
	healthHandler(pres, deadStore{})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["healthy"])
}
