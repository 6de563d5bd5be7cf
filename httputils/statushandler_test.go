package httputils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextgg/go-projections/es"
	"github.com/contextgg/go-projections/es/basic"
)

func TestStatusHandler(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	coordinator := es.NewCoordinator(basic.NewStatusStore(), es.WithClock(func() time.Time { return now }))

	_, err := coordinator.StartRebuild(ctx, "OrderSummary", "1", es.BlueGreen, time.Minute)
	require.NoError(t, err)
	require.NoError(t, coordinator.Disable(ctx, "OrderSummary", "2"))

	handler := StatusHandler(coordinator)
	serve := func(method, target string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
		return rr
	}

	t.Run("one", func(t *testing.T) {
		rr := serve(http.MethodGet, "/?projection=OrderSummary&object_id=1")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var info es.StatusInfo
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
		assert.Equal(t, es.StatusRebuilding, info.Status)
		assert.Contains(t, rr.Body.String(), `"status":"Rebuilding"`)
	})

	t.Run("missing", func(t *testing.T) {
		rr := serve(http.MethodGet, "/?projection=OrderSummary&object_id=9")
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), es.ErrStatusNotFound.Error())
	})

	t.Run("by status", func(t *testing.T) {
		rr := serve(http.MethodGet, "/?status=disabled")
		require.Equal(t, http.StatusOK, rr.Code)

		var list []*es.StatusInfo
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
		require.Len(t, list, 1)
		assert.Equal(t, "2", list[0].ObjectID)
	})

	t.Run("bad requests", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, serve(http.MethodGet, "/?status=sleeping").Code)
		assert.Equal(t, http.StatusBadRequest, serve(http.MethodGet, "/?projection=OrderSummary").Code)
		assert.Equal(t, http.StatusMethodNotAllowed, serve(http.MethodDelete, "/").Code)
	})

	t.Run("recover", func(t *testing.T) {
		rr := serve(http.MethodPost, "/")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"recovered":0}`, rr.Body.String())

		now = now.Add(time.Hour)
		rr = serve(http.MethodPost, "/")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"recovered":1}`, rr.Body.String())
	})
}
