package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkride-insights-backend/internal/insights"
)

func TestGetInsights(t *testing.T) {
	writer := insights.NewWriter(filepath.Join(t.TempDir(), "insights.json"))
	handler := NewHandler(nil, nil, writer, nil, time.UTC)

	r := gin.Default()
	r.GET("/api/insights", handler.GetInsights)

	t.Run("404 before the first publish", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/insights", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("serves the published document verbatim", func(t *testing.T) {
		doc := insights.Document{
			SchemaVersion: insights.SchemaVersion,
			GeneratedAt:   time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC),
			Facilities:    map[string]insights.FacilityInsights{},
		}
		require.NoError(t, writer.Write(doc))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/insights", nil)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), `"schema_version": 1`)
	})
}

func TestGetVAPIDPublicKey(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		handler := NewHandler(nil, nil, nil, nil, time.UTC)
		r := gin.Default()
		r.GET("/api/vapid_public_key", handler.GetVAPIDPublicKey)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/vapid_public_key", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("configured", func(t *testing.T) {
		handler := NewHandler(nil, nil, nil, &webpush.Options{VAPIDPublicKey: "test-key"}, time.UTC)
		r := gin.Default()
		r.GET("/api/vapid_public_key", handler.GetVAPIDPublicKey)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/vapid_public_key", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"public_key":"test-key"}`, w.Body.String())
	})
}
